package controller

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"

	"formloft/engine"
	"formloft/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// Provider callback headers
const (
	HeaderRequestID = "X-Provider-Request-Id"
	HeaderTimestamp = "X-Provider-Timestamp"
	HeaderSignature = "X-Provider-Signature"
)

// WebhookController receives signed delivery callbacks from the
// provider and feeds them to the reactor.
type WebhookController struct {
	Reactor *engine.Reactor
	Secret  string
	Logger  *logrus.Logger
}

func NewWebhookController(reactor *engine.Reactor, secret string, logger *logrus.Logger) *WebhookController {
	return &WebhookController{
		Reactor: reactor,
		Secret:  secret,
		Logger:  logger,
	}
}

// HandleDeliveryWebhook verifies and processes one provider callback.
// Unrecognized event types and unmatched message ids are acknowledged
// with 200: both are expected, benign cases. Only a bad signature gets
// 401 and only genuine internal failure gets 500.
func (wc *WebhookController) HandleDeliveryWebhook(c *fiber.Ctx) error {
	// A missing shared secret is a hard misconfiguration, never a
	// silent allow
	if wc.Secret == "" {
		err := errors.New("webhook signing secret is not configured")
		utils.LogError("webhook_config", err, nil)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Webhook verification is not configured",
		})
	}

	timestamp := c.Get(HeaderTimestamp)
	signature := c.Get(HeaderSignature)
	body := c.Body()

	if !verifySignature(wc.Secret, timestamp, body, signature) {
		utils.LogEvent("webhook_signature_rejected", map[string]interface{}{
			"request_id": c.Get(HeaderRequestID),
			"ip":         c.IP(),
		})
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid signature",
		})
	}

	var callback engine.ProviderCallback
	if err := json.Unmarshal(body, &callback); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := utils.ValidateStruct(callback); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	result, err := wc.Reactor.Apply(c.Context(), engine.ParseCallback(callback))
	if err != nil {
		utils.LogError("webhook_apply", err, map[string]interface{}{
			"message_id": callback.MessageID,
			"event_type": callback.EventType,
		})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process delivery event",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Webhook processed",
		"result":  result,
	})
}

// verifySignature checks hex(HMAC-SHA256(secret, timestamp + "." + body))
func verifySignature(secret, timestamp string, body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
