package controller

import (
	"formloft/models"
	"formloft/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// UnsubscribeController processes opt-out clicks from message footers
type UnsubscribeController struct {
	DB         *gorm.DB
	LinkSecret string
	Logger     *logrus.Logger
}

func NewUnsubscribeController(db *gorm.DB, linkSecret string, logger *logrus.Logger) *UnsubscribeController {
	return &UnsubscribeController{
		DB:         db,
		LinkSecret: linkSecret,
		Logger:     logger,
	}
}

// HandleUnsubscribe verifies the signed token from the link and flips
// the matching opt-out flag. The token is the only credential needed;
// unsubscribing must work without a login.
func (uc *UnsubscribeController) HandleUnsubscribe(c *fiber.Ctx) error {
	tenantID, category, err := utils.VerifyUnsubscribeToken(uc.LinkSecret, c.Query("token"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).SendString("This unsubscribe link is invalid or has expired.")
	}

	var tenant models.Tenant
	if err := uc.DB.First(&tenant, tenantID).Error; err != nil {
		return c.Status(fiber.StatusBadRequest).SendString("This unsubscribe link is invalid or has expired.")
	}

	var update map[string]interface{}
	switch category {
	case "lifecycle":
		update = map[string]interface{}{"lifecycle_opt_out": true}
	case "digest":
		update = map[string]interface{}{"digest_opt_out": true}
	default:
		return c.Status(fiber.StatusBadRequest).SendString("Unknown message category.")
	}

	if err := uc.DB.Model(&tenant).Updates(update).Error; err != nil {
		utils.LogError("unsubscribe_update", err, map[string]interface{}{"tenant_id": tenantID})
		return c.Status(fiber.StatusInternalServerError).SendString("Something went wrong. Please try again.")
	}

	record := models.Unsubscribe{
		TenantID:  tenant.ID,
		Email:     tenant.Email,
		Category:  category,
		Reason:    "link_click",
		IPAddress: c.IP(),
		UserAgent: c.Get("User-Agent"),
	}
	if err := uc.DB.Create(&record).Error; err != nil {
		uc.Logger.WithError(err).Warn("failed to record unsubscribe audit row")
	}

	utils.LogEvent("tenant_unsubscribed", map[string]interface{}{
		"tenant_id": tenant.ID,
		"category":  category,
	})

	c.Set("Content-Type", "text/html; charset=utf-8")
	return c.SendString(`<html><body style="font-family: Arial, sans-serif; text-align: center; padding: 60px;">
<h2>You're unsubscribed</h2>
<p>You won't receive these emails from Formloft anymore.</p>
</body></html>`)
}
