package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/Daemonophobic/phalerum-api/internal/auth"
	"github.com/Daemonophobic/phalerum-api/internal/compiler"
	"github.com/Daemonophobic/phalerum-api/internal/config"
	"github.com/Daemonophobic/phalerum-api/internal/database"
	"github.com/Daemonophobic/phalerum-api/internal/engine"
	"github.com/Daemonophobic/phalerum-api/internal/seed"
)

// Server is the HTTP API surface.
type Server struct {
	cfg       *config.Config
	db        *database.BunDB
	signer    *auth.TokenSigner
	authority *auth.CredentialAuthority
	resolver  *auth.PermissionResolver
	registry  *engine.Registry
	catalog   *engine.Catalog
	checkin   *engine.CheckInHandler
	ingestor  *engine.Ingestor
	subnets   *engine.SubnetManager
	pipeline  *compiler.Pipeline
	seeder    *seed.Seeder

	httpServer *http.Server
}

// NewServer wires the API surface onto the engine components.
func NewServer(
	cfg *config.Config,
	db *database.BunDB,
	signer *auth.TokenSigner,
	authority *auth.CredentialAuthority,
	resolver *auth.PermissionResolver,
	registry *engine.Registry,
	catalog *engine.Catalog,
	checkin *engine.CheckInHandler,
	ingestor *engine.Ingestor,
	subnets *engine.SubnetManager,
	pipeline *compiler.Pipeline,
	seeder *seed.Seeder,
) *Server {
	s := &Server{
		cfg:       cfg,
		db:        db,
		signer:    signer,
		authority: authority,
		resolver:  resolver,
		registry:  registry,
		catalog:   catalog,
		checkin:   checkin,
		ingestor:  ingestor,
		subnets:   subnets,
		pipeline:  pipeline,
		seeder:    seeder,
	}

	router := s.routes()
	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddress(),
		Handler:           h2c.NewHandler(router, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the routed handler, used by the HTTP tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()
	router.Use(observeMiddleware)
	router.Use(s.sessionMiddleware)

	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()

	// Session lifecycle
	api.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)
	api.HandleFunc("/auth/initialize/credentials", s.handleInitializeCredentials).Methods(http.MethodPost)
	api.HandleFunc("/auth/initialize/2fa", s.handleInitializeTwoFactor).Methods(http.MethodPost)
	api.HandleFunc("/auth/logout", s.handleLogout).Methods(http.MethodGet)
	api.HandleFunc("/auth/health", s.handleAuthHealth).Methods(http.MethodGet)

	// First-run bootstrap
	api.HandleFunc("/admin/user/initialize", s.handleInitialUser).Methods(http.MethodPost)

	// Agents
	api.HandleFunc("/agents", s.requirePermission("agent.read", s.handleListAgents)).Methods(http.MethodGet)
	api.HandleFunc("/agents", s.requirePermission("agent.write", s.handleAddAgent)).Methods(http.MethodPost)
	api.HandleFunc("/agents/hello", s.handleCheckIn).Methods(http.MethodPost)
	api.HandleFunc("/agents/{id}", s.requirePermission("agent.read", s.handleGetAgent)).Methods(http.MethodGet)
	api.HandleFunc("/agents/{id}", s.requirePermission("agent.write", s.handleDeleteAgent)).Methods(http.MethodDelete)
	api.HandleFunc("/agents/{id}/config", s.requirePermission("master.config.read", s.handleMasterConfig)).Methods(http.MethodGet)
	api.HandleFunc("/agents/{id}/compile", s.handleCompileAgent).Methods(http.MethodPost)

	// Jobs
	api.HandleFunc("/jobs", s.requirePermission("job.read", s.handleListJobs)).Methods(http.MethodGet)
	api.HandleFunc("/jobs", s.requirePermission("job.write", s.handleCreateJob)).Methods(http.MethodPost)
	api.HandleFunc("/jobs/{id}", s.requirePermission("job.read", s.handleGetJob)).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{id}", s.requirePermission("job.write", s.handleUpdateJob)).Methods(http.MethodPut)
	api.HandleFunc("/jobs/{id}", s.requirePermission("job.write", s.handleDeleteJob)).Methods(http.MethodDelete)
	api.HandleFunc("/jobs/{id}/toggle", s.requirePermission("job.write", s.handleToggleJob)).Methods(http.MethodPost)
	api.HandleFunc("/jobs/{id}/outputs", s.requirePermission("job.read", s.handleListOutputs)).Methods(http.MethodGet)

	// Outputs
	api.HandleFunc("/outputs", s.handleAddOutput).Methods(http.MethodPost)
	api.HandleFunc("/outputs/{id}", s.requirePermission("job.write", s.handleDeleteOutput)).Methods(http.MethodDelete)

	// Users and roles
	api.HandleFunc("/users", s.requirePermission("user.read", s.handleListUsers)).Methods(http.MethodGet)
	api.HandleFunc("/users", s.requirePermission("admin.user.write", s.handleCreateUser)).Methods(http.MethodPost)
	api.HandleFunc("/users/{id}", s.requirePermission("admin.user.read", s.handleGetUser)).Methods(http.MethodGet)
	api.HandleFunc("/users/{id}", s.requirePermission("admin.user.write", s.handleDeleteUser)).Methods(http.MethodDelete)
	api.HandleFunc("/users/{id}/unlock", s.requirePermission("admin.user.write", s.handleUnlockUser)).Methods(http.MethodPost)
	api.HandleFunc("/roles", s.requirePermission("role.read", s.handleListRoles)).Methods(http.MethodGet)

	// Settings
	api.HandleFunc("/settings/campaign/subnets", s.requirePermission("job.read", s.handleGetSubnets)).Methods(http.MethodGet)
	api.HandleFunc("/settings/campaign/subnets", s.requirePermission("campaign.write", s.handleSetSubnets)).Methods(http.MethodPut)

	return router
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	log.Info().Str("addr", s.httpServer.Addr).Msg("API server listening")
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
