package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/comandocentral/edge-svc/internal/auth"
	"github.com/comandocentral/edge-svc/internal/config"
	"github.com/comandocentral/edge-svc/internal/database"
	"github.com/comandocentral/edge-svc/internal/dispatch"
	"github.com/comandocentral/edge-svc/internal/handlers"
	"github.com/comandocentral/edge-svc/internal/ingest"
	"github.com/comandocentral/edge-svc/internal/logger"
	"github.com/comandocentral/edge-svc/internal/rabbitmq"
	"github.com/comandocentral/edge-svc/internal/routes"
)

func main() {
	if err := logger.Init(os.Getenv("LOG_LEVEL")); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	if os.Getenv("RUN_MIGRATIONS") == "true" {
		if err := database.RunMigrations(&cfg.Database, logger.Logger); err != nil {
			logger.Fatal("Failed to run migrations", zap.Error(err))
		}
	}

	db, err := database.Connect(&cfg.Database, logger.Logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := database.Close(db, logger.Logger); err != nil {
			logger.Error("Error closing database", zap.Error(err))
		}
	}()

	// RabbitMQ is optional: without it the inbox table is fed by other means
	// and the dispatch loop still runs.
	var rmq *rabbitmq.Connection
	var consumer *ingest.Consumer
	if cfg.RabbitMQ.Enabled() {
		rmq = rabbitmq.NewConnection(&cfg.RabbitMQ, logger.Named("rabbitmq"))
		if err := rmq.Connect(); err != nil {
			logger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
		}
		defer rmq.Close()

		consumer = ingest.NewConsumer(&cfg.RabbitMQ, rmq, db, logger.Named("ingest"))
		if err := consumer.Start(); err != nil {
			logger.Fatal("Failed to start ingest consumer", zap.Error(err))
		}
	} else {
		logger.Info("RabbitMQ not configured, ingest consumer disabled")
	}

	store := dispatch.NewStore(db)
	processor := dispatch.NewProcessor(db, cfg.Dispatch.MaxAttempts, logger.Named("processor"))
	sender := dispatch.NewSender(cfg.Dispatch.DeliveryTimeout, cfg.Dispatch.MaxResponseBodySize)
	runner := dispatch.NewRunner(db, sender, logger.Named("runner"))
	replayer := dispatch.NewReplayer(store, logger.Named("replay"))

	stages := dispatch.NewHTTPStageClient(cfg.Dispatch.StageBaseURL, cfg.Dispatch.StageBudget)
	ticker := dispatch.NewTicker(stages, store, cfg.Dispatch.InterPassDelay, cfg.Dispatch.StageBudget, logger.Named("tick"))

	authz := auth.NewAuthorizer(auth.NewGormStore(db))

	dispatchHandler := handlers.NewDispatchHandler(ticker, processor, runner, replayer, authz, store, logger.Named("handlers"))
	healthHandler := handlers.NewHealthHandler(db, rmq)

	app := fiber.New(fiber.Config{
		AppName:      "Comando Central Dispatch",
		ServerHeader: "Fiber",
	})

	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	routes.SetupRoutes(app, dispatchHandler, healthHandler)

	go func() {
		addr := cfg.Server.Host + ":" + cfg.Server.Port
		logger.Info("Dispatch server starting",
			zap.String("address", addr),
		)
		if err := app.Listen(addr); err != nil {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down dispatch server")
	if err := app.Shutdown(); err != nil {
		logger.Error("Error during server shutdown", zap.Error(err))
	}

	if consumer != nil {
		if err := consumer.Stop(); err != nil {
			logger.Error("Error stopping ingest consumer", zap.Error(err))
		}
	}

	logger.Info("Dispatch server stopped")
}
