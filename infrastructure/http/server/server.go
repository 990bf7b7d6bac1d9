package server

import (
	"context"
	"log/slog"
	"time"

	"chat-relay/auth"
	"chat-relay/contract"
	"chat-relay/errors"
	"chat-relay/observability"
	"chat-relay/repositories"
	"chat-relay/services"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

type Options struct {
	ConnectionBufferSize int
	WriteTimeout         time.Duration
	PongWait             time.Duration
	PingPeriod           time.Duration
	MaxMessageSize       int64
	// Inspect is mounted on /debug/inspect when set.
	Inspect fiber.Handler
}

func (o Options) withDefaults() Options {
	if o.ConnectionBufferSize <= 0 {
		o.ConnectionBufferSize = 256
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = o.PongWait * 9 / 10
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 64 << 10
	}
	return o
}

// Server exposes the chat core over HTTP and WebSocket.
type Server struct {
	app         *fiber.App
	chatService services.IChatService
	authService services.IAuthService
	users       repositories.IUserRepository
	verifier    contract.TokenVerifier
	metrics     *observability.Metrics
	log         *slog.Logger
	options     Options

	ctx    context.Context
	cancel context.CancelFunc
}

func NewServer(
	log *slog.Logger,
	chatService services.IChatService,
	authService services.IAuthService,
	users repositories.IUserRepository,
	verifier contract.TokenVerifier,
	metrics *observability.Metrics,
	options Options,
) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		chatService: chatService,
		authService: authService,
		users:       users,
		verifier:    verifier,
		metrics:     metrics,
		log:         log,
		options:     options.withDefaults(),
		ctx:         ctx,
		cancel:      cancel,
	}
	s.app = fiber.New(fiber.Config{
		AppName:               "chat-relay",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString("OK")
	})

	metricsHandler := fasthttpadaptor.NewFastHTTPHandler(s.metrics.Handler())
	s.app.Get("/metrics", func(c *fiber.Ctx) error {
		metricsHandler(c.Context())
		return nil
	})

	api := s.app.Group("/api")
	api.Post("/auth/register", s.register)
	api.Post("/auth/login", s.login)

	protected := api.Group("", auth.Middleware(s.verifier, s.countAuthFailure))
	protected.Get("/messages", s.history)
	protected.Get("/users", s.listUsers)

	if s.options.Inspect != nil {
		s.app.Get("/debug/inspect", s.options.Inspect)
	}

	s.app.Use("/ws", s.upgrade)
	s.app.Get("/ws", websocket.New(s.handleConnection))
}

// App is exposed for tests driving requests through app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Listen(address string) error {
	return s.app.Listen(address)
}

// Shutdown stops accepting requests and closes every live WebSocket.
func (s *Server) Shutdown() error {
	s.cancel()
	return s.app.Shutdown()
}

func (s *Server) countAuthFailure(err error) {
	s.metrics.AuthFailures.WithLabelValues(errors.AuthReason(err)).Inc()
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(fiber.Map{"error": fiberErr.Message})
	}
	status := errors.HTTPStatus(err)
	message := err.Error()
	if status >= fiber.StatusInternalServerError {
		s.log.Error("Request failed", "method", c.Method(), "path", c.Path(), "error", err)
		message = "internal error"
	}
	return c.Status(status).JSON(fiber.Map{"error": message})
}
