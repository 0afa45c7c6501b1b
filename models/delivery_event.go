package models

import (
	"time"

	"gorm.io/gorm"
)

// Delivery event statuses, in rough lifecycle order
const (
	EventSent       = "sent"
	EventDelivered  = "delivered"
	EventOpened     = "opened"
	EventClicked    = "clicked"
	EventBounced    = "bounced"
	EventComplained = "complained"
)

// DeliveryEvent is the audit record of one outbound send and the
// provider-reported status it ended up in. Created at send time with
// status=sent; only the webhook reactor mutates it afterwards. Rows
// are never deleted.
type DeliveryEvent struct {
	gorm.Model
	// SequenceID is null for sends outside a sequence (weekly digest)
	SequenceID *uint `gorm:"index" json:"sequence_id,omitempty"`
	TenantID   uint  `gorm:"not null;index" json:"tenant_id"`

	MessageID string `gorm:"not null;uniqueIndex" json:"message_id"`
	Recipient string `gorm:"not null" json:"recipient"`
	Category  string `gorm:"not null;index" json:"category"` // segment name or digest category
	Status    string `gorm:"default:'sent'" json:"status"`

	// Provider timestamps, clicked link, bounce class. Merged, never
	// overwritten, as callbacks arrive.
	Metadata map[string]interface{} `gorm:"type:jsonb;serializer:json" json:"metadata"`

	SentAt time.Time `gorm:"not null;index" json:"sent_at"`

	// Relations
	Sequence *Sequence `json:"-"`
	Tenant   Tenant    `json:"-"`
}

// Unsubscribe records an opt-out click for auditing
type Unsubscribe struct {
	gorm.Model
	TenantID uint   `gorm:"not null;index" json:"tenant_id"`
	Email    string `gorm:"not null;index" json:"email"`
	Category string `gorm:"not null" json:"category"` // lifecycle, digest

	Reason    string `json:"reason"`
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`

	// Relations
	Tenant Tenant `json:"-"`
}
