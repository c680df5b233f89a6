package services

import (
	"context"
	"testing"
	"time"

	"github.com/edusoko/course_market/models"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newSchedulerDB(t *testing.T, name string) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Teacher{},
		&models.Transaction{},
		&models.Payout{},
		&models.PayoutPreference{},
	))
	return db
}

func seedEarning(t *testing.T, db *gorm.DB, teacherID uuid.UUID, amount float64, transferStatus, status string) models.Transaction {
	t.Helper()
	txn := models.Transaction{
		ID:                  uuid.New(),
		CourseID:            uuid.New(),
		StudentID:           uuid.New(),
		TeacherID:           teacherID,
		TotalAmount:         amount / 0.7,
		TeacherEarning:      amount,
		PlatformEarning:     amount/0.7 - amount,
		Currency:            "USD",
		StripeTransactionID: "pi_" + uuid.New().String(),
		TransferStatus:      transferStatus,
		Status:              status,
	}
	require.NoError(t, db.Create(&txn).Error)
	return txn
}

func TestCreatePayoutFor_ClaimsOnlyEligibleTransactions(t *testing.T) {
	db := newSchedulerDB(t, "sched_claims")
	s := NewPayoutScheduler(db)
	teacherID := uuid.New()
	otherTeacher := uuid.New()

	t1 := seedEarning(t, db, teacherID, 70, "pending", "success")
	t2 := seedEarning(t, db, teacherID, 35, "pending", "success")
	seedEarning(t, db, teacherID, 10, "pending", "failed")      // not a successful sale
	seedEarning(t, db, teacherID, 20, "completed", "success")   // already paid out
	seedEarning(t, db, otherTeacher, 50, "pending", "success")  // someone else's money

	pref := models.DefaultPayoutPreference(teacherID)
	payout, err := s.CreatePayoutFor(context.Background(), teacherID, pref, false)
	require.NoError(t, err)

	assert.Equal(t, 105.0, payout.Amount)
	assert.Equal(t, models.PayoutStatusScheduled, payout.Status)
	assert.ElementsMatch(t, []string{t1.ID.String(), t2.ID.String()}, []string(payout.TransactionIDs))

	var claimed int64
	db.Model(&models.Transaction{}).Where("payout_id = ?", payout.ID).Count(&claimed)
	assert.Equal(t, int64(2), claimed)

	// Nothing left to claim: the next run is a no-op.
	_, err = s.CreatePayoutFor(context.Background(), teacherID, pref, false)
	assert.ErrorIs(t, err, ErrNoPendingEarnings)
}

func TestCreatePayoutFor_MinimumThreshold(t *testing.T) {
	db := newSchedulerDB(t, "sched_minimum")
	s := NewPayoutScheduler(db)
	teacherID := uuid.New()

	seedEarning(t, db, teacherID, 20, "pending", "success")

	pref := models.DefaultPayoutPreference(teacherID) // minimum 50
	_, err := s.CreatePayoutFor(context.Background(), teacherID, pref, false)
	assert.ErrorIs(t, err, ErrNoPendingEarnings)

	// Manual requests bypass the minimum.
	payout, err := s.CreatePayoutFor(context.Background(), teacherID, pref, true)
	require.NoError(t, err)
	assert.Equal(t, 20.0, payout.Amount)
}

func TestRunOnce_AnchorsNewPreferences(t *testing.T) {
	db := newSchedulerDB(t, "sched_anchor")
	s := NewPayoutScheduler(db)
	teacherID := uuid.New()

	pref := models.DefaultPayoutPreference(teacherID)
	require.NoError(t, db.Create(&pref).Error)
	seedEarning(t, db, teacherID, 500, "pending", "success")

	stats := s.RunOnce(context.Background())
	assert.Equal(t, 0, stats.Scheduled)
	assert.Equal(t, 1, stats.Skipped)

	// First sight only anchors the schedule; no payout yet.
	var payouts int64
	db.Model(&models.Payout{}).Count(&payouts)
	assert.Zero(t, payouts)

	var saved models.PayoutPreference
	require.NoError(t, db.First(&saved, "teacher_id = ?", teacherID).Error)
	require.NotNil(t, saved.NextPayoutAt)
	assert.True(t, saved.NextPayoutAt.After(time.Now().UTC()))
}

func TestRunOnce_SchedulesDuePayoutAndAdvances(t *testing.T) {
	db := newSchedulerDB(t, "sched_due")
	s := NewPayoutScheduler(db)
	teacherID := uuid.New()

	due := time.Now().UTC().Add(-time.Hour)
	pref := models.DefaultPayoutPreference(teacherID)
	pref.NextPayoutAt = &due
	require.NoError(t, db.Create(&pref).Error)
	seedEarning(t, db, teacherID, 500, "pending", "success")

	stats := s.RunOnce(context.Background())
	assert.Equal(t, 1, stats.Scheduled)

	var payout models.Payout
	require.NoError(t, db.First(&payout, "teacher_id = ?", teacherID).Error)
	assert.Equal(t, 500.0, payout.Amount)

	var saved models.PayoutPreference
	require.NoError(t, db.First(&saved, "teacher_id = ?", teacherID).Error)
	require.NotNil(t, saved.NextPayoutAt)
	assert.True(t, saved.NextPayoutAt.After(time.Now().UTC()))
	require.NotNil(t, saved.LastPayoutAt)
}

func TestRunOnce_BelowMinimumStillAdvances(t *testing.T) {
	db := newSchedulerDB(t, "sched_below")
	s := NewPayoutScheduler(db)
	teacherID := uuid.New()

	due := time.Now().UTC().Add(-time.Hour)
	pref := models.DefaultPayoutPreference(teacherID)
	pref.NextPayoutAt = &due
	require.NoError(t, db.Create(&pref).Error)
	seedEarning(t, db, teacherID, 5, "pending", "success")

	stats := s.RunOnce(context.Background())
	assert.Equal(t, 0, stats.Scheduled)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 0, stats.Errored)

	// The schedule must move forward even when nothing was paid, or the
	// teacher would be rescanned every run forever.
	var saved models.PayoutPreference
	require.NoError(t, db.First(&saved, "teacher_id = ?", teacherID).Error)
	require.NotNil(t, saved.NextPayoutAt)
	assert.True(t, saved.NextPayoutAt.After(time.Now().UTC()))
}

func TestRunOnce_IgnoresManualAndDisabled(t *testing.T) {
	db := newSchedulerDB(t, "sched_manual")
	s := NewPayoutScheduler(db)

	due := time.Now().UTC().Add(-time.Hour)

	manual := models.DefaultPayoutPreference(uuid.New())
	manual.Schedule = models.ScheduleManual
	manual.NextPayoutAt = &due
	require.NoError(t, db.Create(&manual).Error)

	disabled := models.DefaultPayoutPreference(uuid.New())
	disabled.AutoPayout = false
	disabled.NextPayoutAt = &due
	require.NoError(t, db.Create(&disabled).Error)

	stats := s.RunOnce(context.Background())
	assert.Equal(t, SchedulerStats{}, stats)

	// The opt-out has to survive the INSERT itself: a column default of true
	// would swallow the zero-value false and re-enable automatic payouts.
	var saved models.PayoutPreference
	require.NoError(t, db.First(&saved, "teacher_id = ?", disabled.TeacherID).Error)
	assert.False(t, saved.AutoPayout)
}

func TestRunOnce_ErrorKeepsScheduleSlot(t *testing.T) {
	db := newSchedulerDB(t, "sched_err")
	s := NewPayoutScheduler(db)
	teacherID := uuid.New()

	due := time.Now().UTC().Add(-time.Hour)
	pref := models.DefaultPayoutPreference(teacherID)
	pref.NextPayoutAt = &due
	require.NoError(t, db.Create(&pref).Error)
	seedEarning(t, db, teacherID, 500, "pending", "success")

	require.NoError(t, db.Exec(`CREATE TRIGGER fail_payout_insert BEFORE INSERT ON payouts
		BEGIN SELECT RAISE(ABORT, 'payout insert disabled'); END;`).Error)

	stats := s.RunOnce(context.Background())
	assert.Equal(t, SchedulerStats{Errored: 1}, stats)

	// The slot is still due; the next scan retries instead of pushing the
	// teacher a full schedule cycle out.
	var saved models.PayoutPreference
	require.NoError(t, db.First(&saved, "teacher_id = ?", teacherID).Error)
	require.NotNil(t, saved.NextPayoutAt)
	assert.WithinDuration(t, due, *saved.NextPayoutAt, time.Second)
	assert.Nil(t, saved.LastPayoutAt)

	require.NoError(t, db.Exec(`DROP TRIGGER fail_payout_insert`).Error)

	stats = s.RunOnce(context.Background())
	assert.Equal(t, SchedulerStats{Scheduled: 1}, stats)
}

func TestNextRunTime(t *testing.T) {
	// Wednesday 2026-03-04 12:30 UTC
	from := time.Date(2026, 3, 4, 12, 30, 0, 0, time.UTC)

	t.Run("daily", func(t *testing.T) {
		next := NextRunTime(models.ScheduleDaily, from, 1, 9)
		assert.Equal(t, time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC), next)
	})

	t.Run("weekly lands on anchor weekday", func(t *testing.T) {
		// anchor 1 = Monday
		next := NextRunTime(models.ScheduleWeekly, from, 1, 9)
		assert.Equal(t, time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC), next)
		assert.Equal(t, time.Monday, next.Weekday())
	})

	t.Run("weekly same weekday moves a full week", func(t *testing.T) {
		// anchor 3 = Wednesday, same as from
		next := NextRunTime(models.ScheduleWeekly, from, 3, 9)
		assert.Equal(t, time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC), next)
	})

	t.Run("biweekly", func(t *testing.T) {
		next := NextRunTime(models.ScheduleBiweekly, from, 1, 9)
		assert.Equal(t, time.Date(2026, 3, 16, 9, 0, 0, 0, time.UTC), next)
	})

	t.Run("monthly", func(t *testing.T) {
		next := NextRunTime(models.ScheduleMonthly, from, 1, 9)
		assert.Equal(t, time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC), next)
	})

	t.Run("monthly clamps to short months", func(t *testing.T) {
		jan := time.Date(2026, 1, 31, 10, 0, 0, 0, time.UTC)
		next := NextRunTime(models.ScheduleMonthly, jan, 31, 9)
		// February 2026 has 28 days
		assert.Equal(t, time.Date(2026, 2, 28, 9, 0, 0, 0, time.UTC), next)
	})

	t.Run("manual never auto-runs", func(t *testing.T) {
		next := NextRunTime(models.ScheduleManual, from, 1, 9)
		assert.True(t, next.After(from.AddDate(99, 0, 0)))
	})
}
