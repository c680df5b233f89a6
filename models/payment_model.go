package models

import (
	"time"

	"github.com/google/uuid"
)

type Payment struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	StudentID uuid.UUID `gorm:"not null" json:"student_id"`
	CourseID  uuid.UUID `gorm:"not null" json:"course_id"`
	TeacherID uuid.UUID `gorm:"not null" json:"teacher_id"`

	Amount        float64 `gorm:"type:numeric(10,2);not null" json:"amount"`
	TeacherShare  float64 `gorm:"type:numeric(10,2);not null" json:"teacher_share"`
	PlatformShare float64 `gorm:"type:numeric(10,2);not null" json:"platform_share"`
	Currency      string  `gorm:"size:3;default:'USD'" json:"currency"`

	// Gateway charge reference (checkout session or payment intent).
	// Unique so a redelivered event cannot create a second record.
	StripeChargeID string  `gorm:"size:255;not null;unique" json:"-"`
	CustomerEmail  *string `gorm:"size:255" json:"customer_email"`

	Status     string  `gorm:"size:20;not null;default:'pending'" json:"status"`
	ReceiptURL *string `gorm:"size:512" json:"receipt_url"`

	Student User   `gorm:"foreignkey:StudentID" json:"-"`
	Course  Course `gorm:"foreignkey:CourseID" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
