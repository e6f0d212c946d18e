package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/Daemonophobic/phalerum-api/internal/metrics"
	"github.com/Daemonophobic/phalerum-api/internal/operr"
	"github.com/Daemonophobic/phalerum-api/pkg/models"
)

type contextKey string

const claimsKey contextKey = "session-claims"

// SessionCookieName is the cookie carrying the signed session token.
const SessionCookieName = "session"

// publicPaths are reachable without a session: login and enrollment, the
// first-run admin bootstrap, and the agent-token endpoints.
var publicPaths = map[string]bool{
	"/api/v1/auth/login":                  true,
	"/api/v1/auth/initialize/credentials": true,
	"/api/v1/auth/initialize/2fa":         true,
	"/api/v1/auth/logout":                 true,
	"/api/v1/auth/health":                 true,
	"/api/v1/admin/user/initialize":       true,
	"/api/v1/agents/hello":                true,
	"/api/v1/outputs":                     true,
	"/health":                             true,
	"/metrics":                            true,
}

// claimsFromContext returns the verified session claims, nil when the
// request carried none.
func claimsFromContext(ctx context.Context) *models.SessionClaims {
	claims, _ := ctx.Value(claimsKey).(*models.SessionClaims)
	return claims
}

// sessionMiddleware verifies the session cookie and stores the claims on
// the request context. Public paths pass through, with claims attached
// when a valid cookie happens to be present.
func (s *Server) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookieName)
		if err == nil {
			claims, err := s.signer.Verify(cookie.Value)
			if err == nil {
				r = r.WithContext(context.WithValue(r.Context(), claimsKey, claims))
			} else if !publicPaths[r.URL.Path] {
				writeError(w, operr.ErrUnauthenticated)
				return
			}
		} else if !publicPaths[r.URL.Path] {
			writeError(w, operr.ErrUnauthenticated)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// observeMiddleware emits a structured log line and request metrics.
func observeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tmpl, err := current.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}

		duration := time.Since(start)
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(duration.Seconds())

		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", duration).
			Str("remote", r.RemoteAddr).
			Msg("Request handled")
	})
}

// requirePermission gates a handler behind a permission action.
func (s *Server) requirePermission(action string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFromContext(r.Context())
		if err := s.resolver.Require(r.Context(), claims, action); err != nil {
			writeError(w, err)
			return
		}
		handler(w, r)
	}
}
