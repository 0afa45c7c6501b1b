package main

import (
	"context"
	"log"
	"os"

	"formloft/config"
	"formloft/engine"
	"formloft/middleware"
	"formloft/models"
	"formloft/routes"
	"formloft/utils"
	"formloft/worker"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

func main() {
	// Initialize logger
	logger := log.New(os.Stdout, "LIFECYCLE: ", log.Ldate|log.Ltime|log.Lshortfile)

	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize Sentry when a DSN is configured
	if config.AppConfig.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         config.AppConfig.SentryDSN,
			Environment: config.AppConfig.Environment,
		}); err != nil {
			logger.Printf("Sentry initialization failed: %v", err)
		}
	}

	// Initialize database connection
	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	if err := models.CreateDefaultPlans(config.DB); err != nil {
		logger.Fatalf("Failed to seed default plans: %v", err)
	}

	structuredLog := logrus.New()
	structuredLog.SetFormatter(&logrus.JSONFormatter{})

	// Wire the lifecycle engine
	facts := engine.NewGormFactRepository(config.DB)
	mailer := utils.NewSMTPMailer(config.AppConfig)
	segments := engine.DefaultSegments(config.AppConfig.Lifecycle)
	eng := engine.New(config.DB, facts, mailer, segments, engine.Options{
		BaseURL:     config.AppConfig.BaseURL,
		LinkSecret:  config.AppConfig.LinkSecret,
		WorkerLimit: config.AppConfig.Lifecycle.WorkerLimit,
	}, structuredLog)

	// Create Fiber app
	app := fiber.New()
	app.Use(middleware.CORS())

	// Start the periodic worker
	lifecycleWorker := worker.NewLifecycleWorker(
		eng,
		config.AppConfig.Lifecycle.EvaluateInterval,
		config.AppConfig.Lifecycle.ProcessInterval,
		logger,
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go lifecycleWorker.Start(ctx)

	// Setup routes
	routes.SetupRoutes(app, config.DB, eng, structuredLog)

	// Health check endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "running",
			"version": "1.0.0",
		})
	})

	// Start server
	logger.Printf("🚀 Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
