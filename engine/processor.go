package engine

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"formloft/models"
	"formloft/utils"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// Processor drives active sequences through their steps. For each due
// sequence it re-validates eligibility, renders and sends the step's
// message, then advances or terminates. A send that fails leaves the
// sequence untouched so the next tick retries it; a sequence is only
// marked as sent after the provider accepted the message.
//
// Known at-least-once window: if the provider accepts the message but
// the delivery event insert or the advance write fails, the next tick
// sends the same step again. The design accepts this duplicate rather
// than risking dropped sends.
type Processor struct {
	DB         *gorm.DB
	Facts      FactRepository
	Segments   []Segment
	Mailer     utils.Mailer
	BaseURL    string
	LinkSecret string
	Limit      int
	Logger     *logrus.Logger
}

// RunTick processes every sequence whose next-send time has arrived
func (p *Processor) RunTick(ctx context.Context) (TickSummary, error) {
	now := time.Now().UTC()

	var due []models.Sequence
	err := p.DB.WithContext(ctx).
		Where("status = ? AND next_send_at IS NOT NULL AND next_send_at <= ?", models.SequenceActive, now).
		Find(&due).Error
	if err != nil {
		return TickSummary{}, fmt.Errorf("processor tick: %w", err)
	}

	var (
		summary TickSummary
		mu      sync.Mutex
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.Limit)
	for i := range due {
		seq := due[i]
		g.Go(func() error {
			item := p.processSequence(ctx, seq)
			summary.merge(&mu, item)
			return nil
		})
	}
	_ = g.Wait()

	if summary.Errors > 0 {
		p.Logger.WithFields(logrus.Fields{
			"processed": summary.Processed,
			"errors":    summary.Errors,
		}).Warn("processor tick finished with errors")
	}
	return summary, nil
}

func (p *Processor) processSequence(ctx context.Context, seq models.Sequence) TickSummary {
	item := TickSummary{Processed: 1}
	logCtx := map[string]interface{}{
		"sequence_id": seq.ID,
		"tenant_id":   seq.TenantID,
		"segment":     seq.SegmentName,
		"step":        seq.CurrentStep,
	}

	// Re-fetch the tenant; a read failure here is transient, so skip
	// without cancelling and let the next tick retry
	facts, err := p.Facts.Facts(ctx, seq.TenantID)
	if err != nil {
		utils.LogError("process_sequence_facts", err, logCtx)
		item.Errors++
		return item
	}

	if facts.LifecycleOptOut {
		return p.cancel(ctx, seq.ID, models.CancelUnsubscribed, &item, logCtx)
	}

	seg := FindSegment(p.Segments, seq.SegmentName)
	if seg == nil {
		utils.LogError("process_sequence_segment", fmt.Errorf("segment %q no longer defined", seq.SegmentName), logCtx)
		item.Errors++
		return item
	}

	// The tenant may have resolved the underlying situation since the
	// sequence started; a stale nurture message must not go out
	if !seg.StillQualifies(facts) {
		return p.cancel(ctx, seq.ID, models.CancelProgressed, &item, logCtx)
	}

	step := seg.Step(seq.CurrentStep)
	if step == nil {
		utils.LogError("process_sequence_step", fmt.Errorf("step %d not defined for segment %q", seq.CurrentStep, seq.SegmentName), logCtx)
		item.Errors++
		return item
	}

	body, err := utils.RenderTemplate(step.Template, p.templateData(facts))
	if err != nil {
		utils.LogError("render_step", err, logCtx)
		item.Errors++
		return item
	}

	messageID, err := p.Mailer.Send(facts.Email, step.Subject, body, map[string]string{
		"segment": seg.Name,
		"step":    strconv.Itoa(step.Number),
	})
	if err != nil {
		// Transient provider outage: next_send_at is unchanged, so the
		// send is delayed to the next tick, not dropped
		utils.LogError("send_step", err, logCtx)
		item.Errors++
		return item
	}

	now := time.Now().UTC()
	event := models.DeliveryEvent{
		SequenceID: &seq.ID,
		TenantID:   seq.TenantID,
		MessageID:  messageID,
		Recipient:  facts.Email,
		Category:   seg.Name,
		Status:     models.EventSent,
		Metadata: map[string]interface{}{
			"segment": seg.Name,
			"step":    step.Number,
		},
		SentAt: now,
	}
	if err := p.DB.WithContext(ctx).Create(&event).Error; err != nil {
		// The message already left; losing this write means one
		// duplicate send on retry (accepted at-least-once risk)
		utils.LogError("record_delivery_event", err, logCtx)
		item.Errors++
		return item
	}

	item.Sent++

	next := seg.Step(seq.CurrentStep + 1)
	var res *gorm.DB
	if next != nil {
		res = p.DB.WithContext(ctx).Model(&models.Sequence{}).
			Where("id = ? AND status = ?", seq.ID, models.SequenceActive).
			Updates(map[string]interface{}{
				"current_step": next.Number,
				"last_sent_at": now,
				"next_send_at": now.Add(next.Delay),
			})
	} else {
		res = p.DB.WithContext(ctx).Model(&models.Sequence{}).
			Where("id = ? AND status = ?", seq.ID, models.SequenceActive).
			Updates(map[string]interface{}{
				"status":       models.SequenceCompleted,
				"last_sent_at": now,
				"next_send_at": nil,
			})
	}
	if res.Error != nil {
		utils.LogError("advance_sequence", res.Error, logCtx)
		item.Errors++
		return item
	}
	if res.RowsAffected == 0 {
		// A concurrent webhook cancelled the sequence mid-send; its
		// terminal status wins
		p.Logger.WithFields(logrus.Fields{"sequence_id": seq.ID}).
			Info("sequence reached terminal status during send, leaving it")
		return item
	}

	if next == nil {
		item.Completed++
		p.Logger.WithFields(logrus.Fields{
			"sequence_id": seq.ID,
			"segment":     seq.SegmentName,
		}).Info("sequence completed")
	}
	return item
}

func (p *Processor) cancel(ctx context.Context, sequenceID uint, reason string, item *TickSummary, logCtx map[string]interface{}) TickSummary {
	cancelled, err := CancelSequence(p.DB.WithContext(ctx), sequenceID, reason)
	if err != nil {
		utils.LogError("cancel_sequence", err, logCtx)
		item.Errors++
		return *item
	}
	if cancelled {
		item.Cancelled++
		utils.LogEvent("sequence_cancelled", map[string]interface{}{
			"sequence_id": sequenceID,
			"reason":      reason,
		})
	}
	return *item
}

func (p *Processor) templateData(facts *TenantFacts) utils.TemplateData {
	return utils.TemplateData{
		TenantName:     facts.Name,
		FormCount:      facts.FormCount,
		PlanName:       facts.PlanName,
		SubmissionUsed: facts.SubmissionsThisMonth,
		SubmissionMax:  facts.SubmissionLimit,
		DashboardURL:   p.BaseURL + "/dashboard",
		UnsubscribeURL: utils.GenerateUnsubscribeURL(p.BaseURL, p.LinkSecret, facts.TenantID, "lifecycle"),
	}
}
