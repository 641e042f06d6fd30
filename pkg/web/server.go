// Package web serves session status, grading and Prometheus metrics over HTTP.
package web

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teslashibe/go-gesture/internal/log"
	"github.com/teslashibe/go-gesture/pkg/metrics"
	"github.com/teslashibe/go-gesture/pkg/trainer"
)

// Server is the status and metrics server.
type Server struct {
	app     *fiber.App
	addr    string
	session *trainer.Session
	log     *slog.Logger
}

// NewServer creates a server for session, exposing the collectors registered
// on reg. A nil reg uses a fresh registry with the gesture collectors.
func NewServer(addr string, session *trainer.Session, reg *prometheus.Registry, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = log.Component("web")
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	if err := metrics.Register(reg); err != nil {
		return nil, err
	}

	s := &Server{addr: addr, session: session, log: logger}

	app := fiber.New(fiber.Config{
		AppName:               "go-gesture",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	app.Get("/healthz", s.handleHealth)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})))

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/attempts", s.handleAttempts)
	api.Post("/grade", s.handleGrade)

	s.app = app
	return s, nil
}

// Start serves until Shutdown.
func (s *Server) Start() error {
	s.log.Info("status server listening", "addr", s.addr)
	return s.app.Listen(s.addr)
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			s.log.Warn("status server stopped", "error", err)
		}
	}()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
