package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/liamcoop/recon/internal/access"
	"github.com/liamcoop/recon/internal/accounts"
	"github.com/liamcoop/recon/internal/audit"
	"github.com/liamcoop/recon/internal/connectors"
	"github.com/liamcoop/recon/internal/dashboard"
	"github.com/liamcoop/recon/internal/exceptions"
	"github.com/liamcoop/recon/internal/logger"
	"github.com/liamcoop/recon/internal/metrics"
	"github.com/liamcoop/recon/internal/templates"
	"github.com/liamcoop/recon/rules"
)

// Services are the collaborators the HTTP layer depends on.
type Services struct {
	Engine     *rules.Engine
	Exceptions *exceptions.Queue
	Templates  *templates.Library
	Connectors *connectors.Registry
	Scheduler  *connectors.Scheduler
	Dashboard  *dashboard.Service
	Accounts   *accounts.Service
	Gate       *access.Gate
	Audit      audit.Store
	Metrics    *metrics.Collector

	// StoreName labels the rule store in health output.
	StoreName string
	// Ping checks the rule store's backing database, if any.
	Ping func(ctx context.Context) error
}

type ServerOptions struct {
	RequestTimeout time.Duration
	SlowRequest    time.Duration
	MetricsPath    string
}

type Server struct {
	svc    Services
	opts   ServerOptions
	router *chi.Mux
}

func NewServer(svc Services, opts ServerOptions) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	s := &Server{svc: svc, opts: opts}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	gate := s.svc.Gate

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(countStatus(s.opts.SlowRequest))
	if s.svc.Metrics != nil {
		r.Use(s.svc.Metrics.Middleware)
	}
	r.Use(middleware.Timeout(s.opts.RequestTimeout))
	r.Use(access.Authenticate(s.svc.Accounts))

	if s.svc.Metrics != nil && s.opts.MetricsPath != "" {
		r.Method(http.MethodGet, s.opts.MetricsPath, s.svc.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Health check
		r.Get("/health", s.handleHealth)

		// Authentication
		r.Post("/auth/login", s.handleLogin)
		r.Post("/invitations/{invitationId}/accept", s.handleAcceptInvitation)
		r.With(requireAuth).Post("/auth/logout", s.handleLogout)
		r.With(requireAuth).Get("/auth/me", s.handleMe)
		r.With(requireAuth).Get("/navigation", s.handleNavigation)

		// Dashboard
		r.Route("/dashboard", func(r chi.Router) {
			r.Use(gate.Require(access.CapDashboard))
			r.Get("/kpis", s.handleKPIs)
			r.Get("/trends", s.handleTrends)
		})

		// Exception queue
		r.Route("/exceptions", func(r chi.Router) {
			r.With(gate.Require(access.CapExceptionsView)).Get("/", s.handleListExceptions)
			r.With(gate.Require(access.CapExceptionsView)).Get("/{exceptionId}", s.handleGetException)
			r.Group(func(r chi.Router) {
				r.Use(gate.Require(access.CapExceptionsManage))
				r.Post("/{exceptionId}/assign", s.handleAssignException)
				r.Patch("/{exceptionId}/status", s.handleExceptionStatus)
				r.Post("/{exceptionId}/resolve", s.handleResolveException)
			})
		})

		// Rule management
		r.Route("/rules", func(r chi.Router) {
			r.With(gate.Require(access.CapRulesView)).Get("/", s.handleListRules)
			r.With(gate.Require(access.CapRulesEdit)).Post("/", s.handleCreateRule)

			r.Route("/{ruleId}", func(r chi.Router) {
				r.With(gate.Require(access.CapRulesView)).Get("/", s.handleGetRule)
				r.With(gate.Require(access.CapRulesView)).Get("/versions", s.handleListVersions)
				r.With(gate.Require(access.CapRulesView)).Get("/versions/{version}", s.handleGetVersion)

				r.Group(func(r chi.Router) {
					r.Use(gate.Require(access.CapRulesEdit))
					r.Post("/versions", s.handleNewVersion)
					r.Post("/activate", s.handleActivate)
					r.Post("/deactivate", s.handleDeactivate)
					r.Post("/versions/{version}/activate", s.handleActivate)
					r.Post("/versions/{version}/deactivate", s.handleDeactivate)
				})

				r.Group(func(r chi.Router) {
					r.Use(gate.Require(access.CapRulesRun))
					r.Post("/test", s.handleTestRule)
					r.Post("/run", s.handleRunRule)
				})
			})
		})

		// Templates
		r.Route("/templates", func(r chi.Router) {
			r.Use(gate.Require(access.CapTemplatesView))
			r.Get("/", s.handleListTemplates)
			r.Get("/categories", s.handleTemplateCategories)
			r.Get("/{templateId}", s.handleGetTemplate)
			r.With(gate.Require(access.CapRulesEdit)).Post("/{templateId}/instantiate", s.handleInstantiateTemplate)
		})

		// Data source connectors
		r.Route("/connectors", func(r chi.Router) {
			r.With(gate.Require(access.CapConnectorsView)).Get("/", s.handleListConnectors)
			r.With(gate.Require(access.CapConnectorsView)).Get("/{connectorId}", s.handleGetConnector)
			r.Group(func(r chi.Router) {
				r.Use(gate.Require(access.CapConnectorsManage))
				r.Post("/", s.handleCreateConnector)
				r.Post("/{connectorId}/test", s.handleTestConnector)
				r.Post("/{connectorId}/sync", s.handleSyncConnector)
			})
		})

		// Users and invitations
		r.Route("/users", func(r chi.Router) {
			r.Use(gate.Require(access.CapUsersManage))
			r.Get("/", s.handleListUsers)
			r.Get("/invitations", s.handleListInvitations)
			r.Post("/invitations", s.handleInvite)
		})

		// Run history
		r.With(gate.Require(access.CapAuditView)).Get("/audit/runs", s.handleListRuns)
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// requireAuth rejects anonymous requests.
func requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := access.PrincipalFrom(r.Context()); !ok {
			respondError(w, http.StatusUnauthorized, "authentication required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// countStatus feeds response statuses and slow requests into the logger
// counters.
func countStatus(slow time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			logger.HTTPStatus(status)
			if elapsed := time.Since(start); slow > 0 && elapsed > slow {
				logger.WarnSlowRequest()
				logger.Warn("slow request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", status,
					"duration_ms", elapsed.Milliseconds(),
					"request_id", middleware.GetReqID(r.Context()),
				)
			}
		})
	}
}

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "healthy", RuleStore: s.svc.StoreName}
	if s.svc.Ping != nil {
		if err := s.svc.Ping(r.Context()); err != nil {
			resp.Status = "unhealthy"
			resp.Error = err.Error()
			respondJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	if active, err := s.svc.Engine.ListActive(); err == nil {
		resp.ActiveRules = len(active)
	}
	respondJSON(w, http.StatusOK, resp)
}
