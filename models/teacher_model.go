package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Teacher struct {
	UserID   uuid.UUID `gorm:"primary_key" json:"user_id"`
	Headline *string   `gorm:"size:255" json:"headline"`
	Bio      *string   `gorm:"type:text" json:"bio"`
	Status   string    `gorm:"size:20;not null;default:'pending'" json:"status"`

	// Connected gateway account. PayoutsEnabled mirrors the account's
	// transfer capability and is refreshed from account.updated events.
	StripeAccountID    *string `gorm:"size:255;unique" json:"-"`
	PayoutsEnabled     bool    `gorm:"default:false" json:"payouts_enabled"`
	ChargesEnabled     bool    `gorm:"default:false" json:"-"`
	OnboardingComplete bool    `gorm:"default:false" json:"onboarding_complete"`

	// Running earnings counters, maintained transactionally alongside each
	// settlement. Transaction rows remain the source of truth for rebuilds.
	TotalEarnings   float64 `gorm:"type:numeric(12,2);default:0.00" json:"total_earnings"`
	WeeklyEarnings  float64 `gorm:"type:numeric(12,2);default:0.00" json:"weekly_earnings"`
	MonthlyEarnings float64 `gorm:"type:numeric(12,2);default:0.00" json:"monthly_earnings"`
	YearlyEarnings  float64 `gorm:"type:numeric(12,2);default:0.00" json:"yearly_earnings"`

	TransactionIDs datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"-"`

	User User `gorm:"foreignkey:UserID" json:"user"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}
