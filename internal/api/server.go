// Package api provides the HTTP gateway for crypta.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/cryptadb/crypta/internal/auth"
	"github.com/cryptadb/crypta/internal/config"
	"github.com/cryptadb/crypta/internal/email"
	"github.com/cryptadb/crypta/internal/query"
	"github.com/cryptadb/crypta/internal/store"
)

// Server is the crypta HTTP gateway.
type Server struct {
	cfg         *config.Config
	store       *store.Store
	engine      *query.Engine
	auth        *auth.Service
	sso         *auth.SSO
	sender      email.Sender
	logger      *slog.Logger
	router      chi.Router
	server      *http.Server
	rateLimiter *RateLimiter

	// ssoStates is touched from concurrent login and callback requests.
	ssoMu     sync.Mutex
	ssoStates map[string]time.Time
}

// NewServer creates the gateway. sso may be nil when SSO is not
// configured; sender may be nil to disable dispatch (counts still work).
func NewServer(cfg *config.Config, st *store.Store, authSvc *auth.Service, sso *auth.SSO, sender email.Sender, logger *slog.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		store:     st,
		engine:    query.NewEngine(st.DB()),
		auth:      authSvc,
		sso:       sso,
		sender:    sender,
		logger:    logger,
		ssoStates: make(map[string]time.Time),
	}
	s.router = s.setupRouter()
	return s
}

func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(s.loggerMiddleware)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))

	corsConfig := CORSConfig{
		AllowedOrigins:   s.cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: s.cfg.Server.CORSCredentials,
		MaxAge:           s.cfg.Server.CORSMaxAge,
	}
	if corsConfig.MaxAge == 0 && len(corsConfig.AllowedOrigins) > 0 {
		corsConfig.MaxAge = 86400
	}
	r.Use(CORSMiddleware(corsConfig))

	s.rateLimiter = NewRateLimiter(s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst)
	r.Use(RateLimitMiddleware(s.rateLimiter))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		// Auth endpoints issue tokens and cannot require them.
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", s.handleLogin)
			r.Post("/register", s.handleRegister)
			r.Post("/refresh", s.handleRefresh)
			r.Post("/mfa/verify", s.handleVerifyMFA)
			if s.sso != nil {
				r.Get("/sso/login", s.handleSSOLogin)
				r.Get("/sso/callback", s.handleSSOCallback)
			}
		})

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/filter_tree", s.handleFilterTree)
			r.Get("/filter_results", s.handleFilterResults)
			r.Get("/search", s.handleSearch)
			r.Get("/details", s.handleDetails)

			r.Post("/email/count", s.handleEmailCount)
			r.Post("/upload-tmp", s.handleUploadTmp)
			r.Post("/email/send", s.handleEmailSend)

			r.Post("/auth/mfa/enroll", s.handleEnrollMFA)

			r.Route("/admin", func(r chi.Router) {
				r.Use(s.requireSuperuser)
				r.Get("/stats", s.handleStats)
				r.Get("/users", s.handleListUsers)
				r.Delete("/users/{id}", s.handleDeleteUser)
				r.Get("/roles", s.handleListRoles)
				r.Post("/roles", s.handleCreateRole)
				r.Delete("/roles/{id}", s.handleDeleteRole)
				r.Post("/roles/{id}/assign", s.handleAssignRole)
				r.Get("/organizations", s.handleListOrganizations)
				r.Post("/organizations", s.handleCreateOrganization)
				r.Delete("/organizations/{id}", s.handleDeleteOrganization)
				r.Get("/query_permissions", s.handleListQueryPermissions)
				r.Post("/query_permissions", s.handleCreateQueryPermission)
				r.Delete("/query_permissions/{id}", s.handleDeleteQueryPermission)
				r.Get("/login_attempts", s.handleListLoginAttempts)
			})
		})
	})

	return r
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	bindAddr := s.cfg.Server.BindAddr
	if bindAddr == "" {
		bindAddr = "127.0.0.1"
	}
	addr := net.JoinHostPort(bindAddr, strconv.Itoa(s.cfg.Server.Port))

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("starting gateway", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.rateLimiter != nil {
		s.rateLimiter.Close()
	}
	if s.server == nil {
		return nil
	}
	s.logger.Info("shutting down gateway")
	return s.server.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

func (s *Server) loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", chimw.GetReqID(r.Context()),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}
