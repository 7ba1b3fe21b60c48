// Package server exposes the hub over a REST API and a websocket state feed.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/anicoll/ics2000-integration/internal/pkg/hub"
	"github.com/anicoll/ics2000-integration/internal/pkg/model"
	"github.com/anicoll/ics2000-integration/pkg/sockets"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const DefaultTokenTTL = 12 * time.Hour

type hubService interface {
	Devices(ctx context.Context) []model.Device
	Device(ctx context.Context, id int64) (model.Device, error)
	TurnOn(ctx context.Context, id int64) (model.Device, error)
	TurnOff(ctx context.Context, id int64) (model.Device, error)
	Identify(ctx context.Context, id int64) (model.Device, error)
	SetBrightness(ctx context.Context, id int64, pct int) (model.Device, error)
	SetCoverPosition(ctx context.Context, id int64, position int) (model.Device, error)
	Refresh(ctx context.Context) error
	ResetState(ctx context.Context, id int64) error
	ResetAllStates(ctx context.Context) error
	Scenes() []model.Scene
	ExecuteScene(ctx context.Context, id int64) error
	Diagnostics(ctx context.Context) hub.Diagnostics
}

type historyReader interface {
	GetEvents(ctx context.Context, deviceID *int64, from, to *time.Time) ([]model.Event, error)
}

type Config struct {
	// TokenHash is the bcrypt hash of the API token. Auth is disabled when empty.
	TokenHash string
	JWTSecret string
	TokenTTL  time.Duration
}

type server struct {
	hub     hubService
	cfg     Config
	history historyReader
	feed    *sockets.Broadcaster
	logger  *zap.Logger
}

type Option func(*server)

func WithLogger(logger *zap.Logger) Option {
	return func(s *server) {
		s.logger = logger
	}
}

func WithHistory(h historyReader) Option {
	return func(s *server) {
		s.history = h
	}
}

func WithFeed(b *sockets.Broadcaster) Option {
	return func(s *server) {
		s.feed = b
	}
}

func New(h hubService, cfg Config, opts ...Option) *server {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	s := &server{hub: h, cfg: cfg, logger: zap.L()}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.LoggingMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/auth/token", s.handleToken)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetDevice)
					r.Post("/on", s.handleTurnOn)
					r.Post("/off", s.handleTurnOff)
					r.Post("/identify", s.handleIdentify)
					r.Post("/brightness", s.handleBrightness)
					r.Post("/position", s.handlePosition)
				})
			})
			r.Route("/scenes", func(r chi.Router) {
				r.Get("/", s.handleListScenes)
				r.Post("/{id}/execute", s.handleExecuteScene)
			})
			r.Post("/refresh", s.handleRefresh)
			r.Post("/reset", s.handleReset)
			r.Get("/diagnostics", s.handleDiagnostics)
			if s.history != nil {
				r.Get("/events", s.handleEvents)
			}
			if s.feed != nil {
				r.Get("/ws", s.feed.ServeHTTP)
			}
		})
	})
	return r
}
