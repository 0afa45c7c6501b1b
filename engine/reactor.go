package engine

import (
	"context"
	"fmt"

	"formloft/models"
	"formloft/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Reactor applies provider delivery updates to the audit trail. It is
// invoked by the webhook handler, potentially concurrently with an
// in-flight processor tick touching the same sequence; the only shared
// write on the sequence is the conditional cancellation in
// CancelSequence.
type Reactor struct {
	DB     *gorm.DB
	Logger *logrus.Logger
}

// ApplyResult reports what an update actually changed
type ApplyResult struct {
	Matched           bool `json:"matched"`
	SequenceCancelled bool `json:"sequence_cancelled"`
}

// mergeAttempts bounds the retry loop for a contended event write
const mergeAttempts = 3

// Apply finds the delivery event by provider message id and applies
// the update. A missing event is not an error: the callback may race
// ahead of the send's own write, or arrive long after for a pruned
// tenant. Unknown update kinds are ignored the same way.
func (r *Reactor) Apply(ctx context.Context, update DeliveryUpdate) (ApplyResult, error) {
	var result ApplyResult

	if update.Kind == KindUnknown {
		r.Logger.WithField("message_id", update.MessageID).
			Debug("ignoring unknown delivery event type")
		return result, nil
	}

	var event models.DeliveryEvent
	err := r.DB.WithContext(ctx).Where("message_id = ?", update.MessageID).First(&event).Error
	if err == gorm.ErrRecordNotFound {
		r.Logger.WithField("message_id", update.MessageID).
			Debug("delivery event not found for callback, ignoring")
		return result, nil
	}
	if err != nil {
		return result, fmt.Errorf("looking up delivery event %s: %w", update.MessageID, err)
	}
	result.Matched = true

	// Two callbacks for one message can interleave, so the write is
	// conditional on the row being unchanged since the read and is
	// retried from a fresh read when another merge got there first
	for attempt := 0; ; attempt++ {
		// Merge metadata: keys recorded by earlier callbacks survive
		// later ones (an opened_at is kept when a clicked event arrives)
		merged := map[string]interface{}{}
		for k, v := range event.Metadata {
			merged[k] = v
		}
		for k, v := range update.Metadata {
			if _, exists := merged[k]; !exists {
				merged[k] = v
			}
		}

		// A terminal negative status is never downgraded by a late
		// positive callback
		status := event.Status
		if s := update.Status(); s != "" && status != models.EventBounced && status != models.EventComplained {
			status = s
		}

		res := r.DB.WithContext(ctx).Model(&models.DeliveryEvent{}).
			Where("id = ? AND updated_at = ?", event.ID, event.UpdatedAt).
			Updates(&models.DeliveryEvent{Status: status, Metadata: merged})
		if res.Error != nil {
			return result, fmt.Errorf("updating delivery event %s: %w", update.MessageID, res.Error)
		}
		if res.RowsAffected == 1 {
			break
		}
		if attempt == mergeAttempts-1 {
			return result, fmt.Errorf("delivery event %s kept changing while applying update", update.MessageID)
		}
		if err := r.DB.WithContext(ctx).Where("message_id = ?", update.MessageID).First(&event).Error; err != nil {
			return result, fmt.Errorf("refetching delivery event %s: %w", update.MessageID, err)
		}
	}

	if reason := update.CancelReason(); reason != "" && event.SequenceID != nil {
		cancelled, err := CancelSequence(r.DB.WithContext(ctx), *event.SequenceID, reason)
		if err != nil {
			return result, fmt.Errorf("cancelling sequence %d: %w", *event.SequenceID, err)
		}
		result.SequenceCancelled = cancelled
		if cancelled {
			utils.LogEvent("sequence_cancelled", map[string]interface{}{
				"sequence_id": *event.SequenceID,
				"reason":      reason,
				"message_id":  update.MessageID,
			})
		}
	}

	return result, nil
}
