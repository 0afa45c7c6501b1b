package engine

import (
	"time"

	"formloft/models"
)

// ProviderCallback is the wire shape the delivery provider posts to the
// webhook. Only the fields relevant to the known event types are kept;
// everything else in the payload is ignored at the boundary.
type ProviderCallback struct {
	EventType   string `json:"event_type" validate:"required"`
	MessageID   string `json:"message_id" validate:"required"`
	Recipient   string `json:"recipient"`
	Timestamp   int64  `json:"timestamp"`
	URL         string `json:"url,omitempty"`          // click events
	BounceClass string `json:"bounce_class,omitempty"` // hard, soft, block
	Description string `json:"description,omitempty"`
}

// UpdateKind is the closed set of delivery updates the reactor knows.
// Unrecognized provider event types parse to KindUnknown and are
// acknowledged without processing, so new provider events cannot break
// the webhook.
type UpdateKind string

const (
	KindDelivered   UpdateKind = "delivered"
	KindOpened      UpdateKind = "opened"
	KindClicked     UpdateKind = "clicked"
	KindBouncedHard UpdateKind = "bounced_hard"
	KindBouncedSoft UpdateKind = "bounced_soft"
	KindComplained  UpdateKind = "complained"
	KindUnknown     UpdateKind = "unknown"
)

// DeliveryUpdate is the parsed, tagged form of a provider callback
type DeliveryUpdate struct {
	Kind       UpdateKind
	MessageID  string
	OccurredAt time.Time
	Metadata   map[string]interface{}
}

// ParseCallback maps a raw provider callback onto a DeliveryUpdate
func ParseCallback(cb ProviderCallback) DeliveryUpdate {
	occurred := time.Now().UTC()
	if cb.Timestamp > 0 {
		occurred = time.Unix(cb.Timestamp, 0).UTC()
	}

	update := DeliveryUpdate{
		MessageID:  cb.MessageID,
		OccurredAt: occurred,
		Metadata:   map[string]interface{}{},
	}

	switch cb.EventType {
	case "delivered":
		update.Kind = KindDelivered
		update.Metadata["delivered_at"] = occurred.Format(time.RFC3339)
	case "opened":
		update.Kind = KindOpened
		update.Metadata["opened_at"] = occurred.Format(time.RFC3339)
	case "clicked":
		update.Kind = KindClicked
		update.Metadata["clicked_at"] = occurred.Format(time.RFC3339)
		if cb.URL != "" {
			update.Metadata["clicked_url"] = cb.URL
		}
	case "bounced":
		if cb.BounceClass == "soft" {
			update.Kind = KindBouncedSoft
		} else {
			// Treat block and unclassified bounces as hard
			update.Kind = KindBouncedHard
		}
		update.Metadata["bounced_at"] = occurred.Format(time.RFC3339)
		update.Metadata["bounce_class"] = cb.BounceClass
		if cb.Description != "" {
			update.Metadata["bounce_description"] = cb.Description
		}
	case "complained":
		update.Kind = KindComplained
		update.Metadata["complained_at"] = occurred.Format(time.RFC3339)
	default:
		update.Kind = KindUnknown
	}
	return update
}

// Status returns the delivery event status this update maps to, or ""
// for updates that carry no status change.
func (u DeliveryUpdate) Status() string {
	switch u.Kind {
	case KindDelivered:
		return models.EventDelivered
	case KindOpened:
		return models.EventOpened
	case KindClicked:
		return models.EventClicked
	case KindBouncedHard, KindBouncedSoft:
		return models.EventBounced
	case KindComplained:
		return models.EventComplained
	}
	return ""
}

// CancelReason returns the sequence cancellation reason for terminal
// negative updates, or "" for everything else.
func (u DeliveryUpdate) CancelReason() string {
	switch u.Kind {
	case KindBouncedHard:
		return models.CancelBounced
	case KindComplained:
		return models.CancelComplained
	}
	return ""
}
