package settlement

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	config "github.com/edusoko/course_market/configs"
	"github.com/edusoko/course_market/models"
	"gorm.io/gorm"
)

// Processor turns one validated payment event into a consistent set of writes:
// Payment, Transaction, PayoutSummary delta, enrollment and teacher counters,
// all inside a single storage transaction.
type Processor struct {
	DB *gorm.DB

	FeePercent    float64
	Bounds        SplitBounds
	RetryAttempts int
	RetryDelay    time.Duration

	// OnSettled runs outside the transaction, best effort, after a new sale
	// is committed. Used for invoice generation and notifications.
	OnSettled func(payment models.Payment, txn models.Transaction)
}

func NewProcessor(db *gorm.DB) *Processor {
	return &Processor{
		DB:         db,
		FeePercent: config.PlatformFeePercent(),
		Bounds: SplitBounds{
			MinCents: config.MinPaymentCents(),
			MaxCents: config.MaxPaymentCents(),
		},
		RetryAttempts: config.SettleRetryAttempts(),
		RetryDelay:    time.Duration(config.SettleRetryDelayMs()) * time.Millisecond,
	}
}

// Result reports what one settlement did. AlreadyEnrolled means the event was
// a redelivery and the run committed nothing.
type Result struct {
	AlreadyEnrolled bool
	Payment         models.Payment
	Transaction     models.Transaction
}

// Settle processes one payment event, retrying the whole transaction with
// linear backoff on transient storage failures. Re-runs are safe: the
// enrollment check short-circuits before any write.
func (p *Processor) Settle(ctx context.Context, ev *CheckoutEventData) (*Result, error) {
	attempts := p.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		res, err := p.settleOnce(ctx, ev)
		if err == nil {
			if !res.AlreadyEnrolled && p.OnSettled != nil {
				go p.OnSettled(res.Payment, res.Transaction)
			}
			return res, nil
		}

		if IsDuplicateKey(err) {
			// Another delivery of the same event won the race; its writes
			// are the ones we would have made.
			log.Printf("Settlement for event %s hit duplicate gateway reference, treating as already settled", ev.EventID)
			return &Result{AlreadyEnrolled: true}, nil
		}

		lastErr = err
		if !IsTransient(err) || attempt == attempts {
			break
		}

		delay := p.RetryDelay * time.Duration(attempt)
		log.Printf("Settlement attempt %d/%d for event %s failed transiently (%v), retrying in %s",
			attempt, attempts, ev.EventID, err, delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, lastErr
}

func (p *Processor) settleOnce(ctx context.Context, ev *CheckoutEventData) (*Result, error) {
	res := &Result{}

	err := p.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var student models.User
		if err := tx.First(&student, "id = ?", ev.StudentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Entity: "student", ID: ev.StudentID.String(), EventID: ev.EventID}
			}
			return err
		}

		var course models.Course
		if err := tx.First(&course, "id = ?", ev.CourseID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Entity: "course", ID: ev.CourseID.String(), EventID: ev.EventID}
			}
			return err
		}

		var teacher models.Teacher
		if err := tx.First(&teacher, "user_id = ?", ev.TeacherID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Entity: "teacher", ID: ev.TeacherID.String(), EventID: ev.EventID}
			}
			return err
		}

		// Idempotency guard: the enrollment itself marks this sale as
		// settled. A redelivered event stops here with zero writes.
		var enrolled int64
		if err := tx.Model(&models.Enrollment{}).
			Where("user_id = ? AND course_id = ?", ev.StudentID, ev.CourseID).
			Count(&enrolled).Error; err != nil {
			return err
		}
		if enrolled > 0 {
			res.AlreadyEnrolled = true
			return nil
		}

		split, err := CalculateSplit(ev.AmountCents, p.FeePercent, p.Bounds)
		if err != nil {
			return err
		}

		status := "pending"
		if ev.PaymentStatus == "paid" {
			status = "success"
		}

		payment := models.Payment{
			StudentID:      ev.StudentID,
			CourseID:       ev.CourseID,
			TeacherID:      ev.TeacherID,
			Amount:         split.Gross,
			TeacherShare:   split.TeacherShare,
			PlatformShare:  split.PlatformShare,
			Currency:       currencyOrDefault(ev.Currency),
			StripeChargeID: ev.GatewayRef,
			Status:         status,
		}
		if ev.CustomerEmail != "" {
			payment.CustomerEmail = &ev.CustomerEmail
		}
		if ev.ReceiptURL != "" {
			payment.ReceiptURL = &ev.ReceiptURL
		}
		if err := tx.Create(&payment).Error; err != nil {
			return err
		}

		txnRef := ev.PaymentIntentID
		if txnRef == "" {
			txnRef = ev.GatewayRef
		}
		txn := models.Transaction{
			CourseID:            ev.CourseID,
			StudentID:           ev.StudentID,
			TeacherID:           ev.TeacherID,
			TotalAmount:         split.Gross,
			TeacherEarning:      split.TeacherShare,
			PlatformEarning:     split.PlatformShare,
			Currency:            currencyOrDefault(ev.Currency),
			StripeTransactionID: txnRef,
			TransferStatus:      "pending",
			Status:              status,
		}
		if txn.TeacherEarning+txn.PlatformEarning != txn.TotalAmount {
			log.Printf("⚠️ Event %s: transaction split %.2f+%.2f != total %.2f",
				ev.EventID, txn.TeacherEarning, txn.PlatformEarning, txn.TotalAmount)
		}
		if err := tx.Create(&txn).Error; err != nil {
			return err
		}

		if err := upsertSummary(tx, &txn, time.Now().UTC()); err != nil {
			return err
		}

		if err := tx.Create(&models.Enrollment{UserID: ev.StudentID, CourseID: ev.CourseID}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Course{}).Where("id = ?", course.ID).
			UpdateColumn("enrollment_count", gorm.Expr("enrollment_count + 1")).Error; err != nil {
			return err
		}

		// Expression increments, like the enrollment counter above: two
		// concurrent settlements for the same teacher must both land instead
		// of the second overwriting the first with stale totals.
		if err := tx.Model(&models.Teacher{}).Where("user_id = ?", teacher.UserID).
			UpdateColumns(map[string]interface{}{
				"total_earnings":   gorm.Expr("total_earnings + ?", split.TeacherShare),
				"weekly_earnings":  gorm.Expr("weekly_earnings + ?", split.TeacherShare),
				"monthly_earnings": gorm.Expr("monthly_earnings + ?", split.TeacherShare),
				"yearly_earnings":  gorm.Expr("yearly_earnings + ?", split.TeacherShare),
				"transaction_ids":  append(teacher.TransactionIDs, txn.ID.String()),
			}).Error; err != nil {
			return err
		}

		res.Payment = payment
		res.Transaction = txn
		return nil
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}

// upsertSummary folds one new transaction into the (teacher, month) aggregate.
func upsertSummary(tx *gorm.DB, txn *models.Transaction, now time.Time) error {
	month := now.Format("2006-01")

	var summary models.PayoutSummary
	err := tx.Where("teacher_id = ? AND month = ?", txn.TeacherID, month).First(&summary).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		summary = models.PayoutSummary{TeacherID: txn.TeacherID, Month: month}
	} else if err != nil {
		return err
	}

	summary.TotalEarned += txn.TeacherEarning
	summary.TransactionIDs = append(summary.TransactionIDs, txn.ID.String())

	found := false
	for i := range summary.CourseEarnings {
		if summary.CourseEarnings[i].CourseID == txn.CourseID.String() {
			summary.CourseEarnings[i].Count++
			summary.CourseEarnings[i].Earnings += txn.TeacherEarning
			found = true
			break
		}
	}
	if !found {
		summary.CourseEarnings = append(summary.CourseEarnings, models.CourseEarning{
			CourseID: txn.CourseID.String(),
			Count:    1,
			Earnings: txn.TeacherEarning,
		})
	}

	return tx.Save(&summary).Error
}

func currencyOrDefault(c string) string {
	// the gateway reports lowercase ISO codes
	if len(c) == 3 {
		return strings.ToUpper(c)
	}
	return "USD"
}
