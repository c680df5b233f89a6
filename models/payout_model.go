package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	PayoutStatusPending    = "pending"
	PayoutStatusScheduled  = "scheduled"
	PayoutStatusProcessing = "processing"
	PayoutStatusInTransit  = "in_transit"
	PayoutStatusCompleted  = "completed"
	PayoutStatusFailed     = "failed"
	PayoutStatusCancelled  = "cancelled"
	PayoutStatusReversed   = "reversed"
)

// PayoutAttempt is one immutable entry in a payout's attempt history.
type PayoutAttempt struct {
	Number          int       `json:"number"`
	At              time.Time `json:"at"`
	Status          string    `json:"status"`
	FailureCategory string    `json:"failure_category,omitempty"`
	Message         string    `json:"message,omitempty"`
}

type Payout struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	TeacherID uuid.UUID `gorm:"not null;index" json:"teacher_id"`

	Amount   float64 `gorm:"type:numeric(12,2);not null" json:"amount"`
	Currency string  `gorm:"size:3;default:'USD'" json:"currency"`
	Status   string  `gorm:"size:20;not null;default:'scheduled';index" json:"status"`

	StripeTransferID *string `gorm:"size:255" json:"-"`
	StripePayoutID   *string `gorm:"size:255" json:"-"`

	TransactionIDs datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"transaction_ids"`

	RetryCount  int        `gorm:"default:0" json:"retry_count"`
	MaxRetries  int        `gorm:"default:5" json:"max_retries"`
	NextRetryAt *time.Time `gorm:"index" json:"next_retry_at"`

	Attempts datatypes.JSONSlice[PayoutAttempt] `gorm:"type:jsonb" json:"attempts"`

	LastFailureCategory *string `gorm:"size:40" json:"last_failure_category"`
	LastFailureMessage  *string `gorm:"type:text" json:"last_failure_message"`
	AdminNotes          *string `gorm:"type:text" json:"admin_notes"`

	Teacher User `gorm:"foreignkey:TeacherID" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
