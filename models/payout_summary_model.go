package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type CourseEarning struct {
	CourseID string  `json:"course_id"`
	Count    int     `json:"count"`
	Earnings float64 `json:"earnings"`
}

// PayoutSummary aggregates one teacher's earnings for one calendar month
// (Month is "2006-01"). It is updated incrementally inside each settlement
// transaction, never recomputed from scratch on the hot path.
type PayoutSummary struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	TeacherID uuid.UUID `gorm:"not null;uniqueIndex:idx_summary_teacher_month" json:"teacher_id"`
	Month     string    `gorm:"size:7;not null;uniqueIndex:idx_summary_teacher_month" json:"month"`

	TotalEarned    float64                              `gorm:"type:numeric(12,2);default:0.00" json:"total_earned"`
	TransactionIDs datatypes.JSONSlice[string]          `gorm:"type:jsonb" json:"transaction_ids"`
	CourseEarnings datatypes.JSONSlice[CourseEarning]   `gorm:"type:jsonb" json:"course_earnings"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}
