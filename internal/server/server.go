package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"splitcoord/internal/chain"
	"splitcoord/internal/config"
	"splitcoord/internal/db"
	"splitcoord/internal/eip712"
	"splitcoord/internal/handlers"
	"splitcoord/internal/middleware"
	"splitcoord/internal/reconcile"
	"splitcoord/internal/splits"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
)

// Server represents the Splits Coordination Service HTTP server, plus the
// background reconciler that backfills orphaned on-chain split ids.
type Server struct {
	app        *fiber.App
	config     *config.Config
	database   *db.DB
	gateway    *chain.Gateway
	engine     *splits.Engine
	reconciler *reconcile.Reconciler
}

// New creates a new server instance bound to the given config. It dials the
// chain gateway, opens the database pool and wires the Coordination Engine.
func New(cfg *config.Config) (*Server, error) {
	database, err := db.New(&db.Config{
		Host: cfg.Database.Host, Port: cfg.Database.Port, User: cfg.Database.User,
		Password: cfg.Database.Password, Name: cfg.Database.Name,
		SSLMode: cfg.Database.SSLMode, MaxConns: cfg.Database.MaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	gateway, err := chain.New(context.Background(), cfg.Chain.RPCURL, cfg.Chain.ChainID,
		cfg.Chain.CoordinatorAddress, cfg.Executor.PrivateKeyHex)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to create chain gateway: %w", err)
	}

	engine := splits.New(database, gateway, cfg.Chain.ChainID, cfg.Chain.CoordinatorAddress, eip712.DomainConfig{
		Name:              cfg.EIP712.Name,
		Version:           cfg.EIP712.Version,
		ChainID:           cfg.Chain.ChainID,
		VerifyingContract: cfg.Chain.CoordinatorAddress,
	})

	reconciler := reconcile.New(database, gateway)

	app := fiber.New(fiber.Config{
		AppName:      "Splits Coordination Service",
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		ErrorHandler: errorHandler,
	})

	s := &Server{
		app:        app,
		config:     cfg,
		database:   database,
		gateway:    gateway,
		engine:     engine,
		reconciler: reconciler,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

func (s *Server) setupMiddleware() {
	s.app.Use(recover.New())
	s.app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path} ${latency}\n",
	}))
	s.app.Use(middleware.RequestID())
	s.app.Use(middleware.SecurityHeaders())
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "X-Request-ID"},
		MaxAge:       300,
	}))
}

func (s *Server) setupRoutes() {
	healthHandler := handlers.NewHealthHandler(s.database, s.gateway, s.config)
	healthHandler.RegisterRoutes(s.app)

	splitsHandler := handlers.NewSplitsHandler(s.engine)
	splitsHandler.RegisterRoutes(s.app)

	s.app.Use(func(c fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "not_found",
			"message": "the requested endpoint does not exist",
			"path":    c.Path(),
		})
	})
}

// Start launches the background reconciler (which stops when ctx is
// cancelled or Shutdown is called) and then runs the HTTP listener until
// Shutdown, returning the listener's error.
func (s *Server) Start(ctx context.Context) error {
	go s.reconciler.Run(ctx)

	addr := fmt.Sprintf(":%s", s.config.Server.Port)
	slog.Info("starting splits coordination service", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server, the reconciler and the database pool.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down server")

	s.reconciler.Stop()
	s.database.Close()

	return s.app.ShutdownWithContext(ctx)
}

// errorHandler maps a splits.Error's Kind to an HTTP status code, and
// everything else to 500, in one central place per SPEC_FULL.md §10.2.
func errorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "internal server error"
	kind := "internal"

	if se, ok := err.(*splits.Error); ok {
		kind = string(se.Kind)
		message = se.Message
		switch se.Kind {
		case splits.KindInvalidInput:
			code = fiber.StatusBadRequest
		case splits.KindNotFound:
			code = fiber.StatusNotFound
		case splits.KindConflict:
			code = fiber.StatusConflict
		case splits.KindChainFailed:
			code = fiber.StatusBadGateway
		case splits.KindMisconfigured:
			code = fiber.StatusInternalServerError
		default:
			code = fiber.StatusInternalServerError
		}
	} else if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	slog.Error("request failed", "error", err, "kind", kind, "status", code,
		"request_id", middleware.GetRequestID(c))

	return c.Status(code).JSON(fiber.Map{
		"error":      kind,
		"message":    message,
		"status":     code,
		"timestamp":  time.Now().Unix(),
		"request_id": middleware.GetRequestID(c),
	})
}
