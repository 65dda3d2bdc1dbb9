package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"hackhub/api/handlers"
	"hackhub/config"
	"hackhub/core/accounts"
	"hackhub/core/authz"
	"hackhub/core/importer"
	"hackhub/core/store"
	"hackhub/core/utils"
)

// BackgroundWorker is anything started alongside the HTTP server and stopped
// on shutdown (the maintenance scheduler).
type BackgroundWorker interface {
	Start()
	Stop()
}

type ServerDeps struct {
	Cfg      *config.AppConfig
	Profiles store.ProfilesStore
	Teams    store.TeamsStore
	Roles    store.RolesStore
	Audits   store.AuditStore
	Guard    *authz.Guard
	Accounts *accounts.Service
	Importer *importer.Importer
	// Issuer is non-nil only with the embedded identity provider.
	Issuer handlers.TokenIssuer
	Logger *utils.Logger
}

type Server struct {
	cfg        *config.AppConfig
	guard      *authz.Guard
	logger     *utils.Logger
	users      *handlers.UsersHandler
	auth       *handlers.AuthHandler
	httpServer *http.Server
}

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		cfg:    deps.Cfg,
		guard:  deps.Guard,
		logger: deps.Logger,
	}
	s.users = handlers.NewUsersHandler(deps.Cfg, deps.Profiles, deps.Teams, deps.Roles,
		deps.Audits, deps.Accounts, deps.Importer, deps.Logger)
	s.auth = handlers.NewAuthHandler(deps.Issuer, deps.Logger)
	return s
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.recoverMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.loggingMiddleware)

	require := s.requirePermission

	r.MethodFunc(http.MethodGet, "/api/health", s.health)
	r.MethodFunc(http.MethodPost, "/api/auth/login", s.auth.Login)

	r.MethodFunc(http.MethodGet, "/api/admin/users", require(authz.PermUsersView)(s.users.List))
	r.MethodFunc(http.MethodPost, "/api/admin/users", require(authz.PermUsersCreate)(s.users.Create))
	r.MethodFunc(http.MethodPut, "/api/admin/users/{id}", require(authz.PermUsersEdit)(s.users.UpdateProfile))
	r.MethodFunc(http.MethodDelete, "/api/admin/users/{id}", require(authz.PermUsersDelete)(s.users.Delete))
	r.MethodFunc(http.MethodPut, "/api/admin/users/{id}/role", require(authz.PermRolesEdit)(s.users.UpdateRole))
	r.MethodFunc(http.MethodPost, "/api/admin/users/import", require(authz.PermUsersImport)(s.users.Import))
	r.MethodFunc(http.MethodGet, "/api/admin/teams", require(authz.PermUsersView)(s.users.ListTeams))

	return r
}

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:    s.cfg.ListenAddr,
		Handler: s.Handler(),
	}
	if s.logger != nil {
		s.logger.Printf("listening on %s", s.cfg.ListenAddr)
	}
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
