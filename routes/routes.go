package routes

import (
	"formloft/config"
	controller "formloft/controllers"
	"formloft/engine"
	"formloft/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

func SetupRoutes(app *fiber.App, db *gorm.DB, eng *engine.Engine, log *logrus.Logger) {
	webhookController := controller.NewWebhookController(eng.Reactor, config.AppConfig.WebhookSecret, log)
	unsubscribeController := controller.NewUnsubscribeController(db, config.AppConfig.LinkSecret, log)
	adminController := controller.NewAdminController(db, eng, log)

	// Provider callbacks; rate limited, signature-verified inside
	lifecycle := app.Group("/lifecycle", logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	lifecycle.Post("/webhook", middleware.WebhookRateLimiter(), webhookController.HandleDeliveryWebhook)

	// Public opt-out route; the signed token is the credential
	app.Get("/unsubscribe", unsubscribeController.HandleUnsubscribe)

	// Admin surface (service tokens)
	admin := app.Group("/admin", middleware.Protected(), logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	admin.Post("/ticks/evaluate", adminController.RunEvaluateTick)
	admin.Post("/ticks/process", adminController.RunProcessTick)
	admin.Post("/ticks/digest", adminController.RunDigestTick)
	admin.Get("/tenants/:id/sequences", adminController.ListTenantSequences)
}
