package controller

import (
	"formloft/engine"
	"formloft/models"
	"formloft/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AdminController exposes the engine's ticks for manual runs and the
// sequence audit trail for support. The periodic worker calls the same
// RunTick methods; triggering one here while the worker is mid-tick is
// safe because every effect is idempotent or conditionally written.
type AdminController struct {
	DB     *gorm.DB
	Engine *engine.Engine
	Logger *logrus.Logger
}

func NewAdminController(db *gorm.DB, eng *engine.Engine, logger *logrus.Logger) *AdminController {
	return &AdminController{
		DB:     db,
		Engine: eng,
		Logger: logger,
	}
}

// RunEvaluateTick triggers one segment evaluation pass
func (ac *AdminController) RunEvaluateTick(c *fiber.Ctx) error {
	summary, err := ac.Engine.Evaluator.RunTick(c.Context())
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Evaluation tick failed", err)
	}
	return c.JSON(utils.SuccessResponse(summary))
}

// RunProcessTick triggers one sequence processing pass
func (ac *AdminController) RunProcessTick(c *fiber.Ctx) error {
	summary, err := ac.Engine.Processor.RunTick(c.Context())
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Processing tick failed", err)
	}
	return c.JSON(utils.SuccessResponse(summary))
}

// RunDigestTick triggers one weekly digest pass; the dedup guard makes
// repeated runs within the same week no-ops
func (ac *AdminController) RunDigestTick(c *fiber.Ctx) error {
	summary, err := ac.Engine.Digest.RunTick(c.Context())
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Digest tick failed", err)
	}
	return c.JSON(utils.SuccessResponse(summary))
}

// ListTenantSequences returns a tenant's full sequence history
func (ac *AdminController) ListTenantSequences(c *fiber.Ctx) error {
	tenantID := utils.ParseUint(c.Params("id"))
	if tenantID == 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid tenant id", nil)
	}

	var sequences []models.Sequence
	err := ac.DB.Where("tenant_id = ?", tenantID).
		Order("started_at DESC").
		Preload("Events").
		Find(&sequences).Error
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch sequences", err)
	}

	return c.JSON(utils.SuccessResponse(sequences))
}
