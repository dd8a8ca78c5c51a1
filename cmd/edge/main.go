package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/comandocentral/edge-svc/internal/cache"
	"github.com/comandocentral/edge-svc/internal/config"
	"github.com/comandocentral/edge-svc/internal/edge"
	"github.com/comandocentral/edge-svc/internal/logger"
	"github.com/comandocentral/edge-svc/internal/resolver"
)

func main() {
	if err := logger.Init(os.Getenv("LOG_LEVEL")); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer logger.Sync()

	cfg, err := config.LoadEdge()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	tenantCache, err := cache.NewRedis(ctx, cfg.Redis, cfg.Edge.CacheTTL)
	cancel()
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer tenantCache.Close()

	res, err := resolver.New(cfg.Edge.ResolverURL, tenantCache, 10*time.Second, logger.Named("resolver"))
	if err != nil {
		logger.Fatal("Failed to create resolver", zap.Error(err))
	}

	router, err := edge.NewRouter(cfg.Edge, res, logger.Named("edge"))
	if err != nil {
		logger.Fatal("Failed to create edge router", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		AppName:      "Comando Central Edge",
		ServerHeader: "Fiber",
		ErrorHandler: router.ErrorHandler,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// Registered before the catch-all so orchestration probes never reach a
	// tenant origin.
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy"})
	})

	app.All("/*", router.Handle)

	go func() {
		addr := cfg.Server.Host + ":" + cfg.Server.Port
		logger.Info("Edge server starting",
			zap.String("address", addr),
			zap.String("origin_host", cfg.Edge.OriginHost),
		)
		if err := app.Listen(addr); err != nil {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down edge server")
	if err := app.Shutdown(); err != nil {
		logger.Error("Error during server shutdown", zap.Error(err))
	}

	// Let in-flight background cache writes finish before closing Redis.
	res.Flush()

	logger.Info("Edge server stopped")
}
