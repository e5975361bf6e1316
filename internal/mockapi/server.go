// Package mockapi is a self-contained PubFlow backend serving the auth and
// bridge endpoints the client SDK talks to. It backs local development,
// examples and integration tests.
package mockapi

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/pubflow/pubflow-go/internal/telemetry"
)

// Server is the mock backend.
type Server struct {
	app      *fiber.App
	cfg      *Config
	store    RecordStore
	sessions *SessionManager
	handler  *Handler
}

// New builds the fiber application for cfg on top of store.
func New(cfg *Config, store RecordStore, provider *telemetry.Provider, accounts ...Account) *Server {
	if len(accounts) == 0 {
		accounts = DemoAccounts()
	}
	sessions := NewSessionManager(accounts, cfg.DemoPassword, cfg.SessionTTL)
	logger := provider.Logger.WithField("component", "mockapi")
	handler := NewHandler(cfg, store, sessions, provider.Metrics, logger)

	app := fiber.New(fiber.Config{
		AppName:               "PubFlow Mock API",
		ReadTimeout:           time.Duration(cfg.RequestTimeout) * time.Second,
		WriteTimeout:          time.Duration(cfg.RequestTimeout) * time.Second,
		IdleTimeout:           120 * time.Second,
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(Failure(err.Error()))
		},
	})

	SetupMiddleware(app, cfg, provider)
	SetupRoutes(app, handler, provider.Metrics, cfg)

	return &Server{
		app:      app,
		cfg:      cfg,
		store:    store,
		sessions: sessions,
		handler:  handler,
	}
}

// App exposes the fiber application, e.g. for app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

// Sessions exposes the session manager.
func (s *Server) Sessions() *SessionManager {
	return s.sessions
}

// Seed stores records for resource, replacing records with the same id.
func (s *Server) Seed(ctx context.Context, resource string, records ...Record) error {
	for _, rec := range records {
		if id := rec.ID(); id != "" {
			if err := s.store.Delete(ctx, resource, id); err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
		}
		if _, err := s.store.Create(ctx, resource, rec); err != nil {
			return fmt.Errorf("failed to seed %s: %w", resource, err)
		}
	}
	n, err := s.store.Count(ctx, resource)
	if err != nil {
		return err
	}
	s.handler.metrics.SetRecordCount(resource, n)
	return nil
}

// Listen serves on the configured address until Shutdown.
func (s *Server) Listen() error {
	s.handler.logger.WithField("addr", s.cfg.Address()).Info("PubFlow mock API listening")
	return s.app.Listen(s.cfg.Address())
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
