package api

import (
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"github.com/Daemonophobic/phalerum-api/internal/metrics"
	"github.com/Daemonophobic/phalerum-api/internal/operr"
)

type loginRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	OTP         string `json:"OTP"`
	KeepSession bool   `json:"keepSession"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Email == "" || req.Password == "" || req.OTP == "" {
		writeError(w, operr.MissingParameters("email", "password", "OTP"))
		return
	}

	user, token, err := s.authority.Authenticate(r.Context(), req.Email, req.Password, req.OTP)
	if err != nil {
		metrics.AuthRequestsTotal.WithLabelValues("failure").Inc()
		switch {
		case errors.Is(err, operr.ErrForbidden):
			writeErrorMessage(w, err, "This account is locked")
		case errors.Is(err, operr.ErrUnauthenticated):
			writeErrorMessage(w, err, "Invalid OTP, credentials, or user does not exist")
		default:
			writeError(w, err)
		}
		return
	}

	metrics.AuthRequestsTotal.WithLabelValues("success").Inc()

	cookie := &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/api",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	}
	if req.KeepSession {
		cookie.MaxAge = int(s.signer.TTL() / time.Second)
	}
	http.SetCookie(w, cookie)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"username": user.Username,
	})
}

type initializeCredentialsRequest struct {
	InitializationToken string `json:"initializationToken"`
	Email               string `json:"email"`
	Password            string `json:"password"`
	VerifyPassword      string `json:"verifyPassword"`
}

func (s *Server) handleInitializeCredentials(w http.ResponseWriter, r *http.Request) {
	var req initializeCredentialsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.InitializationToken == "" || req.Email == "" || req.Password == "" || req.VerifyPassword == "" {
		writeError(w, operr.MissingParameters("initializationToken", "email", "password", "verifyPassword"))
		return
	}
	if req.Password != req.VerifyPassword {
		writeJSON(w, http.StatusBadRequest, errorBody{
			Error:      "The submitted passwords are not equal to each other",
			Parameters: []string{"password", "verifyPassword"},
		})
		return
	}

	enrollment, err := s.authority.InitializeCredentials(r.Context(), req.Email, req.InitializationToken, req.Password, req.VerifyPassword)
	if err != nil {
		if errors.Is(err, operr.ErrForbidden) {
			writeErrorMessage(w, err, "The initializationToken is incorrect")
			return
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"provisioningUrl": enrollment.ProvisioningURL,
		"qrImage":         base64.StdEncoding.EncodeToString(enrollment.QRImage),
	})
}

type initializeTwoFactorRequest struct {
	Email string `json:"email"`
	OTP   string `json:"OTP"`
}

func (s *Server) handleInitializeTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req initializeTwoFactorRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Email == "" || req.OTP == "" {
		writeError(w, operr.MissingParameters("email", "OTP"))
		return
	}

	if err := s.authority.InitializeTwoFactor(r.Context(), req.Email, req.OTP); err != nil {
		switch {
		case errors.Is(err, operr.ErrForbidden):
			writeErrorMessage(w, operr.ErrUnauthenticated, "Invalid OTP code")
		case errors.Is(err, operr.ErrInvalidResult):
			writeErrorMessage(w, operr.ErrForbidden, "Account already initialized")
		default:
			writeError(w, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if claimsFromContext(r.Context()) != nil {
		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookieName,
			Value:    "",
			Path:     "/api",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   true,
			SameSite: http.SameSiteStrictMode,
		})
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleAuthHealth(w http.ResponseWriter, r *http.Request) {
	authenticated := claimsFromContext(r.Context()) != nil
	writeJSON(w, http.StatusOK, map[string]bool{"authenticated": authenticated})
}

type initialUserRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Username  string `json:"username"`
	Email     string `json:"email"`
}

func (s *Server) handleInitialUser(w http.ResponseWriter, r *http.Request) {
	var req initialUserRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	token, err := s.seeder.CreateInitialUser(r.Context(), req.FirstName, req.LastName, req.Username, req.Email)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"initializationToken": token})
}
