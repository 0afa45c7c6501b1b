package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"formloft/models"
	"formloft/utils"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// DigestCategory tags weekly digest delivery events for the dedup guard
const DigestCategory = "weekly_digest"

// DigestSender mails each opted-in tenant a summary of the week's
// submissions. Digests are one-shot-per-period sends, not sequence
// steps: the AlreadySent guard decides skip-vs-send before rendering,
// so the worker can attempt the digest every tick without duplicates.
type DigestSender struct {
	DB         *gorm.DB
	Facts      FactRepository
	Mailer     utils.Mailer
	BaseURL    string
	LinkSecret string
	Limit      int
	Logger     *logrus.Logger
}

func (d *DigestSender) RunTick(ctx context.Context) (TickSummary, error) {
	ids, err := d.Facts.AllTenantIDs(ctx)
	if err != nil {
		return TickSummary{}, fmt.Errorf("digest tick: %w", err)
	}

	weekStart := WeekStart(time.Now().UTC())

	var (
		summary TickSummary
		mu      sync.Mutex
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(d.Limit)
	for _, id := range ids {
		tenantID := id
		g.Go(func() error {
			item := d.sendDigest(ctx, tenantID, weekStart)
			summary.merge(&mu, item)
			return nil
		})
	}
	_ = g.Wait()

	if summary.Errors > 0 {
		d.Logger.WithFields(logrus.Fields{
			"processed": summary.Processed,
			"errors":    summary.Errors,
		}).Warn("digest tick finished with errors")
	}
	return summary, nil
}

func (d *DigestSender) sendDigest(ctx context.Context, tenantID uint, weekStart time.Time) TickSummary {
	item := TickSummary{Processed: 1}
	logCtx := map[string]interface{}{"tenant_id": tenantID}

	sent, err := AlreadySent(d.DB.WithContext(ctx), tenantID, DigestCategory, weekStart)
	if err != nil {
		utils.LogError("digest_guard", err, logCtx)
		item.Errors++
		return item
	}
	if sent {
		return item
	}

	facts, err := d.Facts.Facts(ctx, tenantID)
	if err != nil {
		utils.LogError("digest_facts", err, logCtx)
		item.Errors++
		return item
	}
	if facts.DigestOptOut {
		return item
	}

	weekCount, err := d.Facts.SubmissionsSince(ctx, tenantID, weekStart)
	if err != nil {
		utils.LogError("digest_counts", err, logCtx)
		item.Errors++
		return item
	}
	if weekCount == 0 {
		// Nothing happened this week; an empty digest helps nobody
		return item
	}

	body, err := utils.RenderTemplate("weekly_digest", utils.TemplateData{
		TenantName:     facts.Name,
		FormCount:      facts.FormCount,
		SubmissionWeek: weekCount,
		DashboardURL:   d.BaseURL + "/dashboard",
		UnsubscribeURL: utils.GenerateUnsubscribeURL(d.BaseURL, d.LinkSecret, tenantID, "digest"),
	})
	if err != nil {
		utils.LogError("digest_render", err, logCtx)
		item.Errors++
		return item
	}

	messageID, err := d.Mailer.Send(facts.Email, "Your week on Formloft", body, map[string]string{
		"category": DigestCategory,
	})
	if err != nil {
		utils.LogError("digest_send", err, logCtx)
		item.Errors++
		return item
	}

	event := models.DeliveryEvent{
		TenantID:  tenantID,
		MessageID: messageID,
		Recipient: facts.Email,
		Category:  DigestCategory,
		Status:    models.EventSent,
		Metadata: map[string]interface{}{
			"week_start":  weekStart.Format(time.RFC3339),
			"submissions": weekCount,
		},
		SentAt: time.Now().UTC(),
	}
	if err := d.DB.WithContext(ctx).Create(&event).Error; err != nil {
		// Same at-least-once window as sequence sends: the message is
		// out, the guard row is not
		utils.LogError("digest_record", err, logCtx)
		item.Errors++
		return item
	}

	item.Sent++
	return item
}
