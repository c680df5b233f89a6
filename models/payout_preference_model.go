package models

import (
	"time"

	config "github.com/edusoko/course_market/configs"
	"github.com/google/uuid"
)

const (
	ScheduleDaily    = "daily"
	ScheduleWeekly   = "weekly"
	ScheduleBiweekly = "biweekly"
	ScheduleMonthly  = "monthly"
	ScheduleManual   = "manual"
)

type PayoutPreference struct {
	TeacherID uuid.UUID `gorm:"type:uuid;primary_key" json:"teacher_id"`

	Schedule      string  `gorm:"size:20;not null;default:'monthly'" json:"schedule"`
	MinimumAmount float64 `gorm:"type:numeric(10,2);default:50.00" json:"minimum_amount"`
	// No DB default: gorm drops a zero-value bool on INSERT, so a column
	// default of true would silently re-enable payouts a teacher turned off.
	AutoPayout bool `json:"auto_payout"`

	// Anchor for schedule advancement: weekly/biweekly runs land on AnchorDay
	// (weekday, 0=Sunday), monthly on AnchorDay-of-month clamped to the last
	// valid day. All runs land at AnchorHour UTC.
	AnchorDay  int `gorm:"default:1" json:"anchor_day"`
	AnchorHour int `gorm:"default:9" json:"anchor_hour"`

	MaxRetries        int     `gorm:"default:5" json:"max_retries"`
	BaseDelaySeconds  int     `gorm:"default:3600" json:"base_delay_seconds"`
	MaxDelaySeconds   int     `gorm:"default:86400" json:"max_delay_seconds"`
	BackoffMultiplier float64 `gorm:"default:2.0" json:"backoff_multiplier"`
	RetryJitter       bool    `json:"retry_jitter"`

	LastPayoutAt *time.Time `json:"last_payout_at"`
	NextPayoutAt *time.Time `gorm:"index" json:"next_payout_at"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// DefaultPayoutPreference returns the platform-default policy for a teacher
// who has never saved one.
func DefaultPayoutPreference(teacherID uuid.UUID) PayoutPreference {
	return PayoutPreference{
		TeacherID:         teacherID,
		Schedule:          config.DefaultPayoutSchedule(),
		MinimumAmount:     config.DefaultMinimumPayout(),
		AutoPayout:        true,
		AnchorDay:         1,
		AnchorHour:        9,
		MaxRetries:        5,
		BaseDelaySeconds:  3600,
		MaxDelaySeconds:   86400,
		BackoffMultiplier: 2,
		RetryJitter:       true,
	}
}
