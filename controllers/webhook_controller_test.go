package controller

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"formloft/engine"
	"formloft/models"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const testWebhookSecret = "whsec-test"

func newWebhookTestApp(t *testing.T, secret string) (*fiber.App, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Plan{},
		&models.Tenant{},
		&models.Sequence{},
		&models.DeliveryEvent{},
	))

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	reactor := &engine.Reactor{DB: db, Logger: logger}
	wc := NewWebhookController(reactor, secret, logger)

	app := fiber.New()
	app.Post("/lifecycle/webhook", wc.HandleDeliveryWebhook)
	return app, db
}

func doWebhook(t *testing.T, app *fiber.App, body []byte, secret, signatureOverride string) int {
	t.Helper()

	timestamp := fmt.Sprintf("%d", time.Now().Unix())
	signature := signatureOverride
	if signature == "" && secret != "" {
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write([]byte(timestamp))
		mac.Write([]byte("."))
		mac.Write(body)
		signature = hex.EncodeToString(mac.Sum(nil))
	}

	req := httptest.NewRequest("POST", "/lifecycle/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderRequestID, "req-1")
	req.Header.Set(HeaderTimestamp, timestamp)
	req.Header.Set(HeaderSignature, signature)

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp.StatusCode
}

func callbackBody(t *testing.T, eventType, messageID, bounceClass string) []byte {
	t.Helper()
	body, err := json.Marshal(engine.ProviderCallback{
		EventType:   eventType,
		MessageID:   messageID,
		Timestamp:   time.Now().Unix(),
		BounceClass: bounceClass,
	})
	require.NoError(t, err)
	return body
}

func TestWebhookRejectsWhenSecretUnconfigured(t *testing.T) {
	app, _ := newWebhookTestApp(t, "")

	status := doWebhook(t, app, callbackBody(t, "delivered", "m1", ""), testWebhookSecret, "")
	assert.Equal(t, fiber.StatusInternalServerError, status)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	app, _ := newWebhookTestApp(t, testWebhookSecret)

	status := doWebhook(t, app, callbackBody(t, "delivered", "m1", ""), testWebhookSecret, "deadbeef")
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestWebhookAcksUnknownEventType(t *testing.T) {
	app, _ := newWebhookTestApp(t, testWebhookSecret)

	status := doWebhook(t, app, callbackBody(t, "subscription_changed", "m1", ""), testWebhookSecret, "")
	assert.Equal(t, fiber.StatusOK, status)
}

func TestWebhookAcksUnmatchedMessageID(t *testing.T) {
	app, _ := newWebhookTestApp(t, testWebhookSecret)

	// The callback may race ahead of the send's own write; never fatal
	status := doWebhook(t, app, callbackBody(t, "delivered", "never-recorded", ""), testWebhookSecret, "")
	assert.Equal(t, fiber.StatusOK, status)
}

func TestWebhookRejectsMalformedPayload(t *testing.T) {
	app, _ := newWebhookTestApp(t, testWebhookSecret)

	status := doWebhook(t, app, []byte("{not json"), testWebhookSecret, "")
	assert.Equal(t, fiber.StatusBadRequest, status)

	// Valid JSON missing required fields
	status = doWebhook(t, app, []byte(`{"event_type":"delivered"}`), testWebhookSecret, "")
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestWebhookHardBounceCancelsOwningSequence(t *testing.T) {
	app, db := newWebhookTestApp(t, testWebhookSecret)

	now := time.Now().UTC()
	seq := models.Sequence{
		TenantID:    1,
		SegmentName: "frozen_starter",
		CurrentStep: 2,
		Status:      models.SequenceActive,
		StartedAt:   now,
		NextSendAt:  &now,
	}
	require.NoError(t, db.Create(&seq).Error)

	event := models.DeliveryEvent{
		SequenceID: &seq.ID,
		TenantID:   1,
		MessageID:  "msg-hook",
		Recipient:  "someone@example.com",
		Category:   "frozen_starter",
		Status:     models.EventSent,
		SentAt:     now,
	}
	require.NoError(t, db.Create(&event).Error)

	body := callbackBody(t, "bounced", "msg-hook", "hard")
	status := doWebhook(t, app, body, testWebhookSecret, "")
	assert.Equal(t, fiber.StatusOK, status)

	var gotSeq models.Sequence
	require.NoError(t, db.First(&gotSeq, seq.ID).Error)
	assert.Equal(t, models.SequenceCancelled, gotSeq.Status)
	assert.Equal(t, models.CancelBounced, gotSeq.CancelReason)

	// Redelivery of the same callback stays 200 and changes nothing
	status = doWebhook(t, app, body, testWebhookSecret, "")
	assert.Equal(t, fiber.StatusOK, status)
}
