// Package httpapi exposes the ledger over HTTP. Route gating follows the
// page surface of the app: public auth and catalog, session-gated
// generate/credits/images, role-gated admin.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pixelmint/pixelmint/internal/config"
	"github.com/pixelmint/pixelmint/internal/ledger"
	"github.com/pixelmint/pixelmint/internal/service"
)

type Server struct {
	cfg        config.Config
	log        *slog.Logger
	book       *ledger.Book
	generation *service.GenerationService
	router     *chi.Mux
}

func NewServer(cfg config.Config, log *slog.Logger, book *ledger.Book, generation *service.GenerationService) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{
		cfg:        cfg,
		log:        log,
		book:       book,
		generation: generation,
		router:     r,
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/signup", s.handleSignup)
		r.Post("/auth/login", s.handleLogin)
		r.Get("/plans", s.handleListPlans)

		r.Group(func(protected chi.Router) {
			protected.Use(s.sessionMiddleware)
			protected.Post("/auth/logout", s.handleLogout)
			protected.Get("/me", s.handleMe)
			protected.Post("/generate", s.handleGenerate)
			protected.Post("/transactions", s.handleOpenTransaction)
			protected.Get("/transactions", s.handleMyTransactions)
			protected.Get("/images", s.handleMyImages)
			protected.Get("/images/{id}", s.handleImageByID)

			protected.Route("/admin", func(admin chi.Router) {
				admin.Use(s.adminMiddleware)
				admin.Get("/users", s.handleListUsers)
				admin.Post("/users/{id}/credits", s.handleAdjustCredits)
				admin.Get("/transactions", s.handleAllTransactions)
				admin.Post("/transactions/{id}/decision", s.handleDecideTransaction)
			})
		})
	})

	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // generate requests wait on the provider
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("api shutdown error", "err", err)
		}
	}()

	s.log.Info("api listening", "addr", s.cfg.ListenAddr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api listen: %w", err)
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// writeLedgerError maps typed ledger and service errors onto HTTP statuses.
func (s *Server) writeLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidCredentials),
		errors.Is(err, ledger.ErrNotAuthenticated):
		s.writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, ledger.ErrDuplicateEmail):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ledger.ErrUnauthorized):
		s.writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, ledger.ErrInsufficientCredits):
		s.writeError(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, ledger.ErrAccountNotFound),
		errors.Is(err, ledger.ErrPlanNotFound),
		errors.Is(err, ledger.ErrTransactionNotFound),
		errors.Is(err, ledger.ErrImageNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ledger.ErrInvalidDecision):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrProvider):
		s.writeError(w, http.StatusBadGateway, err.Error())
	default:
		s.log.Error("handler error", "err", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}
