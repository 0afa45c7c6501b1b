package models

import (
	"time"

	"gorm.io/gorm"
)

// Sequence statuses. Paused is reserved for manual operator use; the
// engine never sets it.
const (
	SequenceActive    = "active"
	SequencePaused    = "paused"
	SequenceCompleted = "completed"
	SequenceCancelled = "cancelled"
)

// Cancellation reasons
const (
	CancelUnsubscribed = "user_unsubscribed"
	CancelProgressed   = "user_progressed"
	CancelBounced      = "bounced"
	CancelComplained   = "complained"
)

// Sequence is one tenant's run through a segment's steps. At most one
// active sequence may exist per (tenant, segment); the partial unique
// index enforces that even across interleaved evaluation ticks. Rows
// are never deleted, they are the audit trail.
type Sequence struct {
	gorm.Model
	TenantID    uint   `gorm:"not null;index:idx_sequences_tenant_segment;uniqueIndex:uniq_sequences_active,where:status = 'active'" json:"tenant_id"`
	SegmentName string `gorm:"not null;index:idx_sequences_tenant_segment;uniqueIndex:uniq_sequences_active" json:"segment_name"`

	CurrentStep int    `gorm:"default:1" json:"current_step"`
	Status      string `gorm:"default:'active';index" json:"status"`

	StartedAt    time.Time  `gorm:"not null" json:"started_at"`
	LastSentAt   *time.Time `json:"last_sent_at"`
	NextSendAt   *time.Time `gorm:"index" json:"next_send_at"`
	CancelReason string     `json:"cancel_reason,omitempty"`

	// Relations
	Tenant Tenant          `json:"-"`
	Events []DeliveryEvent `gorm:"foreignKey:SequenceID" json:"events,omitempty"`
}

// IsTerminal reports whether no further transitions may leave the status.
func (s *Sequence) IsTerminal() bool {
	return s.Status == SequenceCompleted || s.Status == SequenceCancelled
}
