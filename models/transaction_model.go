package models

import (
	"time"

	"github.com/google/uuid"
)

// Transaction is the ledger row for one completed sale, kept separate from
// Payment so payout batching can claim it independently. Immutable after
// creation except for the transfer columns.
type Transaction struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	CourseID  uuid.UUID `gorm:"not null" json:"course_id"`
	StudentID uuid.UUID `gorm:"not null" json:"student_id"`
	TeacherID uuid.UUID `gorm:"not null;index" json:"teacher_id"`

	TotalAmount     float64 `gorm:"type:numeric(10,2);not null" json:"total_amount"`
	TeacherEarning  float64 `gorm:"type:numeric(10,2);not null" json:"teacher_earning"`
	PlatformEarning float64 `gorm:"type:numeric(10,2);not null" json:"platform_earning"`
	Currency        string  `gorm:"size:3;default:'USD'" json:"currency"`

	// Gateway payment reference; unique, doubles as the idempotency key.
	StripeTransactionID string  `gorm:"size:255;not null;unique" json:"-"`
	InvoiceURL          *string `gorm:"size:512" json:"invoice_url"`
	HostedInvoiceURL    *string `gorm:"size:512" json:"hosted_invoice_url"`

	// PayoutID is the claim column: a scheduler run takes ownership of a
	// pending row with a single conditional update, so a transaction can sit
	// in at most one live payout.
	PayoutID       *uuid.UUID `gorm:"type:uuid;index" json:"payout_id"`
	TransferStatus string     `gorm:"size:20;not null;default:'pending'" json:"transfer_status"`
	TransferID     *string    `gorm:"size:255" json:"-"`

	Status string `gorm:"size:20;not null;default:'success'" json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
