package settlement

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Split is a commission breakdown of one sale. All three cent figures sum
// exactly: the teacher share absorbs any rounding from the fee percentage.
type Split struct {
	GrossCents    int64
	TeacherCents  int64
	PlatformCents int64

	Gross         float64
	TeacherShare  float64
	PlatformShare float64

	TeacherPercent  float64
	PlatformPercent float64
}

// SplitBounds are the accepted gross amount range in cents.
type SplitBounds struct {
	MinCents int64
	MaxCents int64
}

// CalculateSplit divides a gross amount between teacher and platform.
// The platform fee is rounded to the nearest cent; teacher share is the exact
// remainder so TeacherCents+PlatformCents == GrossCents always holds.
func CalculateSplit(grossCents int64, platformFeePercent float64, bounds SplitBounds) (*Split, error) {
	if grossCents < bounds.MinCents || grossCents > bounds.MaxCents {
		return nil, fmt.Errorf("%w: %d cents not in [%d, %d]", ErrInvalidAmount, grossCents, bounds.MinCents, bounds.MaxCents)
	}
	if platformFeePercent < 0 || platformFeePercent > 100 {
		return nil, fmt.Errorf("%w: platform fee %.2f%% not in [0, 100]", ErrInvalidAmount, platformFeePercent)
	}

	gross := decimal.NewFromInt(grossCents)
	pct := decimal.NewFromFloat(platformFeePercent).Div(decimal.NewFromInt(100))

	platformCents := gross.Mul(pct).Round(0).IntPart()
	teacherCents := grossCents - platformCents

	return &Split{
		GrossCents:      grossCents,
		TeacherCents:    teacherCents,
		PlatformCents:   platformCents,
		Gross:           CentsToMajor(grossCents),
		TeacherShare:    CentsToMajor(teacherCents),
		PlatformShare:   CentsToMajor(platformCents),
		TeacherPercent:  100 - platformFeePercent,
		PlatformPercent: platformFeePercent,
	}, nil
}

// CentsToMajor converts a minor-unit amount to its exact major-unit value.
func CentsToMajor(cents int64) float64 {
	f, _ := decimal.NewFromInt(cents).Div(decimal.NewFromInt(100)).Float64()
	return f
}
