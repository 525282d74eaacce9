// Package web serves password generation over HTTP.
package web

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/entropass/pkg/backup"
	"github.com/teslashibe/entropass/pkg/hub"
	"github.com/teslashibe/entropass/pkg/password"
	"github.com/teslashibe/entropass/pkg/pipeline"
)

const contentSecurityPolicy = "default-src 'self'; " +
	"script-src 'self' 'unsafe-inline' https://cdnjs.cloudflare.com; " +
	"style-src 'self' 'unsafe-inline' https://cdnjs.cloudflare.com; " +
	"font-src 'self' https://cdnjs.cloudflare.com; " +
	"img-src 'self' data:; " +
	"connect-src 'self'"

// Generator produces passwords. *pipeline.Generator implements it.
type Generator interface {
	Generate(ctx context.Context, req password.Request) (*pipeline.Result, error)
}

// Lister lists stored backups. *backup.SQLiteStore implements it.
type Lister interface {
	List(ctx context.Context, limit int) ([]backup.Summary, error)
}

// Config configures the server.
type Config struct {
	Port            int
	RateLimitMax    int
	RateLimitWindow time.Duration

	// RequestTimeout bounds one generation, including the wait for the camera.
	RequestTimeout time.Duration

	// StaticDir holds index.html, generator.html and privacy.html.
	StaticDir string

	// DefaultLength is used when the length parameter is absent.
	DefaultLength int

	// Request builds the request for a validated length. Nil means every group.
	Request func(length int) password.Request
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Port:            5000,
		RateLimitMax:    10,
		RateLimitWindow: 60 * time.Second,
		RequestTimeout:  60 * time.Second,
		StaticDir:       "./web",
		DefaultLength:   password.DefaultLength,
	}
}

// Server is the HTTP front end.
type Server struct {
	app    *fiber.App
	cfg    Config
	gen    Generator
	logger *slog.Logger

	// device serializes access to the single camera.
	device chan struct{}

	events *hub.Hub

	// Backup, when set, receives the samples of every generated password.
	Backup backup.Writer

	// Backups, when set, is exposed at /api/backups.
	Backups Lister
}

// NewServer creates a server around gen.
func NewServer(cfg Config, gen Generator, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Request == nil {
		cfg.Request = password.DefaultRequest
	}
	if cfg.DefaultLength == 0 {
		cfg.DefaultLength = password.DefaultLength
	}

	logger = logger.With("component", "web")
	s := &Server{
		cfg:    cfg,
		gen:    gen,
		logger: logger,
		device: make(chan struct{}, 1),
		events: hub.New("events", logger),
	}

	app := fiber.New(fiber.Config{
		AppName:               "entropass",
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(helmet.New(helmet.Config{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: contentSecurityPolicy,
		PermissionPolicy:      "camera=(self)",
	}))
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/health", s.handleHealth)
	api.Get("/backups", s.handleListBackups)
	api.Get("/password", limiter.New(limiter.Config{
		Max:        cfg.RateLimitMax,
		Expiration: cfg.RateLimitWindow,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests. Please wait a moment.",
			})
		},
	}), s.handlePassword)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/events", websocket.New(s.handleEventsWS))

	app.Static("/", cfg.StaticDir)

	s.app = app
	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// PublishEvent forwards a pipeline event to websocket subscribers.
// It is meant for pipeline.Generator.OnEvent.
func (s *Server) PublishEvent(e pipeline.Event) {
	if err := s.events.BroadcastJSON(e); err != nil {
		s.logger.Warn("event.encode_failed", "error", err)
	}
}

// Start runs the event hub and serves until Shutdown.
func (s *Server) Start() error {
	go s.events.Run()
	s.logger.Info("server.listening", "port", s.cfg.Port)
	return s.app.Listen(":" + strconv.Itoa(s.cfg.Port))
}

// StartAsync starts the web server in a goroutine
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			s.logger.Error("server.failed", "error", err)
		}
	}()
}

// Shutdown gracefully stops the web server
func (s *Server) Shutdown() error {
	s.events.Stop()
	return s.app.Shutdown()
}
