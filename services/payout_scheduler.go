package services

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/edusoko/course_market/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PayoutScheduler batches pending teacher earnings into scheduled payouts.
// It is the only writer of new Payout records and of preference timestamps.
type PayoutScheduler struct {
	DB      *gorm.DB
	Workers int
}

func NewPayoutScheduler(db *gorm.DB) *PayoutScheduler {
	return &PayoutScheduler{DB: db, Workers: 4}
}

type SchedulerStats struct {
	Scheduled int
	Skipped   int
	Errored   int
}

// ErrNoPendingEarnings means the teacher had nothing claimable above the
// minimum; callers treat it as a skip, not a failure.
var ErrNoPendingEarnings = errors.New("no pending earnings to pay out")

// RunOnce scans every auto-payout preference whose next run date has passed.
// Teachers are independent, so the scan fans out over a bounded worker pool;
// one teacher's error never aborts the batch.
func (s *PayoutScheduler) RunOnce(ctx context.Context) SchedulerStats {
	now := time.Now().UTC()

	var prefs []models.PayoutPreference
	err := s.DB.WithContext(ctx).
		Where("auto_payout = ? AND schedule <> ?", true, models.ScheduleManual).
		Where("next_payout_at IS NULL OR next_payout_at <= ?", now).
		Find(&prefs).Error
	if err != nil {
		log.Printf("🔥 Payout scheduler scan failed: %v", err)
		return SchedulerStats{}
	}

	workers := s.Workers
	if workers < 1 {
		workers = 1
	}

	var (
		mu    sync.Mutex
		stats SchedulerStats
		wg    sync.WaitGroup
		sem   = make(chan struct{}, workers)
	)

	for i := range prefs {
		pref := prefs[i]
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			created, err := s.schedulePreference(ctx, pref, now)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				stats.Errored++
				log.Printf("🔥 Payout scheduling for teacher %s failed: %v", pref.TeacherID, err)
			case created:
				stats.Scheduled++
			default:
				stats.Skipped++
			}
		}()
	}
	wg.Wait()

	log.Printf("Payout scheduler run: %d scheduled, %d skipped, %d errored", stats.Scheduled, stats.Skipped, stats.Errored)
	return stats
}

func (s *PayoutScheduler) schedulePreference(ctx context.Context, pref models.PayoutPreference, now time.Time) (bool, error) {
	// A preference without a next run date anchors itself on first sight
	// and waits for the following tick.
	if pref.NextPayoutAt == nil {
		next := NextRunTime(pref.Schedule, now, pref.AnchorDay, pref.AnchorHour)
		return false, s.DB.WithContext(ctx).Model(&models.PayoutPreference{}).
			Where("teacher_id = ?", pref.TeacherID).
			Update("next_payout_at", next).Error
	}

	_, err := s.CreatePayoutFor(ctx, pref.TeacherID, pref, false)
	if errors.Is(err, ErrNoPendingEarnings) {
		// Below the minimum (or nothing pending): no payout this cycle,
		// but the schedule still moves forward.
		return false, s.advance(ctx, pref, now, false)
	}
	if err != nil {
		// A transient failure must not consume the slot; the next hourly
		// scan retries this teacher instead of waiting a whole cycle.
		return false, err
	}
	return true, s.advance(ctx, pref, now, true)
}

// CreatePayoutFor claims the teacher's unbatched successful transactions and
// wraps them in one scheduled Payout. The claim is a single conditional
// update on the payout_id column, so a concurrent run for the same teacher
// cannot double-book a transaction. ignoreMinimum is the manual-request path.
func (s *PayoutScheduler) CreatePayoutFor(ctx context.Context, teacherID uuid.UUID, pref models.PayoutPreference, ignoreMinimum bool) (*models.Payout, error) {
	var payout models.Payout

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pending float64
		if err := tx.Model(&models.Transaction{}).
			Where("teacher_id = ? AND transfer_status = ? AND payout_id IS NULL AND status = ?", teacherID, "pending", "success").
			Select("COALESCE(SUM(teacher_earning), 0)").
			Scan(&pending).Error; err != nil {
			return err
		}

		if pending <= 0 || (!ignoreMinimum && pending < pref.MinimumAmount) {
			return ErrNoPendingEarnings
		}

		maxRetries := pref.MaxRetries
		if maxRetries <= 0 {
			maxRetries = 5
		}
		payout = models.Payout{
			ID:         uuid.New(),
			TeacherID:  teacherID,
			Currency:   "USD",
			Status:     models.PayoutStatusScheduled,
			MaxRetries: maxRetries,
		}
		if err := tx.Create(&payout).Error; err != nil {
			return err
		}

		claim := tx.Model(&models.Transaction{}).
			Where("teacher_id = ? AND transfer_status = ? AND payout_id IS NULL AND status = ?", teacherID, "pending", "success").
			Update("payout_id", payout.ID)
		if claim.Error != nil {
			return claim.Error
		}
		if claim.RowsAffected == 0 {
			return ErrNoPendingEarnings
		}

		// the claimed rows are authoritative for the batch amount
		var claimed []models.Transaction
		if err := tx.Where("payout_id = ?", payout.ID).Find(&claimed).Error; err != nil {
			return err
		}
		var amount float64
		ids := make([]string, 0, len(claimed))
		for _, t := range claimed {
			amount += t.TeacherEarning
			ids = append(ids, t.ID.String())
		}

		payout.Amount = amount
		payout.TransactionIDs = ids
		return tx.Save(&payout).Error
	})
	if err != nil {
		return nil, err
	}

	log.Printf("Scheduled payout %s of $%.2f for teacher %s (%d transactions)", payout.ID, payout.Amount, teacherID, len(payout.TransactionIDs))
	return &payout, nil
}

func (s *PayoutScheduler) advance(ctx context.Context, pref models.PayoutPreference, now time.Time, created bool) error {
	next := NextRunTime(pref.Schedule, now, pref.AnchorDay, pref.AnchorHour)
	updates := map[string]interface{}{"next_payout_at": next}
	if created {
		updates["last_payout_at"] = now
	}
	return s.DB.WithContext(ctx).Model(&models.PayoutPreference{}).
		Where("teacher_id = ?", pref.TeacherID).
		Updates(updates).Error
}

// NextRunTime computes the next scheduled slot strictly after from, anchored
// on anchorDay (weekday for weekly/biweekly, day-of-month for monthly) at
// anchorHour UTC. Monthly clamps to the last valid day of the target month.
func NextRunTime(schedule string, from time.Time, anchorDay, anchorHour int) time.Time {
	from = from.UTC()
	if anchorHour < 0 || anchorHour > 23 {
		anchorHour = 0
	}

	at := func(t time.Time) time.Time {
		return time.Date(t.Year(), t.Month(), t.Day(), anchorHour, 0, 0, 0, time.UTC)
	}

	switch schedule {
	case models.ScheduleDaily:
		return at(from.AddDate(0, 0, 1))

	case models.ScheduleWeekly, models.ScheduleBiweekly:
		days := (anchorDay - int(from.Weekday()) + 7) % 7
		if days == 0 {
			days = 7
		}
		if schedule == models.ScheduleBiweekly {
			days += 7
		}
		return at(from.AddDate(0, 0, days))

	case models.ScheduleMonthly:
		year, month, _ := from.Date()
		month++
		day := clampDayOfMonth(anchorDay, year, month)
		return time.Date(year, month, day, anchorHour, 0, 0, 0, time.UTC)

	default:
		// manual schedules never auto-run
		return from.AddDate(100, 0, 0)
	}
}

func clampDayOfMonth(day int, year int, month time.Month) int {
	if day < 1 {
		day = 1
	}
	lastDay := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > lastDay {
		return lastDay
	}
	return day
}
