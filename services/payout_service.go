package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"math/rand"
	"time"

	"github.com/edusoko/course_market/models"
	"github.com/edusoko/course_market/notifications"
	"github.com/edusoko/course_market/payments"
	"github.com/stripe/stripe-go/v82"
	"gorm.io/gorm"
)

// PayoutService submits scheduled payouts to the gateway and owns every
// mutation of a Payout's status and attempt history. The local record write
// and the external submission are deliberately separate steps: the gateway
// idempotency key (payout ID + attempt) makes a crash-and-retry safe.
type PayoutService struct {
	DB      *gorm.DB
	Gateway payments.Gateway

	// SubmitTimeout bounds each outbound gateway call. No storage
	// transaction is ever held open across one.
	SubmitTimeout time.Duration

	// StaleAfter is how long a payout may sit in processing before the scan
	// reclaims it. A crash between the status flip and the final save leaves
	// the row in processing; resubmission is safe because the attempt reuses
	// the same idempotency keys.
	StaleAfter time.Duration

	Notify func(teacher models.User, payout models.Payout, category string)
}

func NewPayoutService(db *gorm.DB, gateway payments.Gateway) *PayoutService {
	s := &PayoutService{
		DB:            db,
		Gateway:       gateway,
		SubmitTimeout: 30 * time.Second,
		StaleAfter:    15 * time.Minute,
	}
	s.Notify = s.emailTerminalFailure
	return s
}

// ProcessDuePayouts submits every payout that is scheduled, or failed with a
// due retry. Failures never abort the loop; each payout's outcome lands in
// its own record.
func (s *PayoutService) ProcessDuePayouts(ctx context.Context) (submitted, failed int) {
	now := time.Now().UTC()

	var due []models.Payout
	err := s.DB.WithContext(ctx).
		Where("status = ?", models.PayoutStatusScheduled).
		Or("status = ? AND next_retry_at IS NOT NULL AND next_retry_at <= ?", models.PayoutStatusFailed, now).
		Or("status = ? AND updated_at <= ?", models.PayoutStatusProcessing, now.Add(-s.StaleAfter)).
		Find(&due).Error
	if err != nil {
		log.Printf("🔥 Failed to scan for due payouts: %v", err)
		return 0, 0
	}

	for i := range due {
		if err := s.processOne(ctx, &due[i]); err != nil {
			failed++
		} else {
			submitted++
		}
	}
	if submitted+failed > 0 {
		log.Printf("Payout executor run: %d submitted, %d failed", submitted, failed)
	}
	return submitted, failed
}

func (s *PayoutService) processOne(ctx context.Context, p *models.Payout) error {
	var teacher models.Teacher
	if err := s.DB.WithContext(ctx).Preload("User").First(&teacher, "user_id = ?", p.TeacherID).Error; err != nil {
		s.recordFailure(ctx, p, payments.FailureUnknown, false, "teacher record missing")
		return err
	}

	if teacher.StripeAccountID == nil || *teacher.StripeAccountID == "" {
		s.recordFailure(ctx, p, payments.FailureInvalidAccount, false, "teacher has no connected payout account")
		return errors.New("teacher has no connected payout account")
	}

	callCtx, cancel := context.WithTimeout(ctx, s.SubmitTimeout)
	defer cancel()

	acct, err := s.Gateway.GetAccount(callCtx, *teacher.StripeAccountID)
	if err != nil {
		category, retryable := payments.CategoryOf(err)
		s.recordFailure(ctx, p, category, retryable, err.Error())
		return err
	}
	if !acct.PayoutsEnabled {
		msg := "connected account cannot receive payouts"
		if acct.DisabledReason != "" {
			msg = fmt.Sprintf("%s (%s)", msg, acct.DisabledReason)
		}
		s.recordFailure(ctx, p, payments.FailureCompliance, false, msg)
		return errors.New(msg)
	}

	if err := s.DB.WithContext(ctx).Model(p).Update("status", models.PayoutStatusProcessing).Error; err != nil {
		return err
	}
	p.Status = models.PayoutStatusProcessing

	amountCents := int64(math.Round(p.Amount * 100))
	meta := map[string]string{
		"payout_id":  p.ID.String(),
		"teacher_id": p.TeacherID.String(),
	}

	transferID, err := s.Gateway.Transfer(callCtx, payments.TransferRequest{
		AmountCents:    amountCents,
		Currency:       p.Currency,
		Destination:    *teacher.StripeAccountID,
		IdempotencyKey: fmt.Sprintf("%s-transfer-%d", p.ID, p.RetryCount),
		Metadata:       meta,
	})
	if err != nil {
		category, retryable := payments.CategoryOf(err)
		s.recordFailure(ctx, p, category, retryable, err.Error())
		return err
	}
	p.StripeTransferID = &transferID

	bankPayoutID, err := s.Gateway.PayoutToBank(callCtx, payments.BankPayoutRequest{
		AmountCents:    amountCents,
		Currency:       p.Currency,
		Account:        *teacher.StripeAccountID,
		IdempotencyKey: fmt.Sprintf("%s-payout-%d", p.ID, p.RetryCount),
		Metadata:       meta,
	})
	if err != nil {
		// The transfer landed but the bank payout did not. The funds sit on
		// the connected account; the retry reuses them rather than
		// re-transferring thanks to the idempotency key.
		log.Printf("🔥 CRITICAL: transfer %s succeeded but payout initiation failed for payout %s: %v", transferID, p.ID, err)
		category, retryable := payments.CategoryOf(err)
		s.recordFailure(ctx, p, category, retryable, err.Error())
		return err
	}
	p.StripePayoutID = &bankPayoutID

	attempt := models.PayoutAttempt{
		Number: p.RetryCount + 1,
		At:     time.Now().UTC(),
		Status: models.PayoutStatusInTransit,
	}
	p.Attempts = append(p.Attempts, attempt)
	p.Status = models.PayoutStatusInTransit
	p.NextRetryAt = nil

	if err := s.DB.WithContext(ctx).Save(p).Error; err != nil {
		log.Printf("🔥 CRITICAL: transfer %s and payout %s submitted but local payout %s not updated: %v", transferID, bankPayoutID, p.ID, err)
		return err
	}

	log.Printf("✅ Payout %s submitted for teacher %s (transfer %s, payout %s), awaiting gateway confirmation", p.ID, p.TeacherID, transferID, bankPayoutID)
	return nil
}

// HandleGatewayPayoutEvent finalizes a payout when the gateway confirms or
// rejects the bank transfer. Idempotent: only transitional states move.
func (s *PayoutService) HandleGatewayPayoutEvent(ctx context.Context, eventType string, gp *stripe.Payout) error {
	payoutID := gp.Metadata["payout_id"]
	if payoutID == "" {
		log.Printf("Ignoring gateway payout event %s for %s without payout_id metadata", eventType, gp.ID)
		return nil
	}

	var p models.Payout
	err := s.DB.WithContext(ctx).First(&p, "id = ?", payoutID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Printf("Gateway payout event %s references unknown payout %s", eventType, payoutID)
		return nil
	}
	if err != nil {
		return err
	}

	switch eventType {
	case "payout.paid":
		if p.Status != models.PayoutStatusProcessing && p.Status != models.PayoutStatusInTransit {
			return nil
		}
		return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			p.Status = models.PayoutStatusCompleted
			if len(p.Attempts) > 0 {
				p.Attempts[len(p.Attempts)-1].Status = models.PayoutStatusCompleted
			}
			if err := tx.Save(&p).Error; err != nil {
				return err
			}
			if err := tx.Model(&models.Transaction{}).
				Where("payout_id = ?", p.ID).
				Updates(map[string]interface{}{
					"transfer_status": "completed",
					"transfer_id":     p.StripeTransferID,
				}).Error; err != nil {
				return err
			}
			log.Printf("✅ Payout %s confirmed paid by gateway (%s)", p.ID, gp.ID)
			return nil
		})

	case "payout.failed":
		// Same guard as payout.paid: a redelivered or out-of-order failure
		// event must not reopen a completed payout, or the next executor run
		// would re-submit it under a fresh idempotency key.
		if p.Status != models.PayoutStatusProcessing && p.Status != models.PayoutStatusInTransit {
			return nil
		}
		category, retryable := payments.ClassifyFailureCode(string(gp.FailureCode))
		s.recordFailure(ctx, &p, category, retryable, string(gp.FailureMessage))
		return nil
	}
	return nil
}

// recordFailure appends an attempt entry and either schedules the next retry
// per the teacher's backoff policy or fails the payout terminally.
func (s *PayoutService) recordFailure(ctx context.Context, p *models.Payout, category string, retryable bool, msg string) {
	pref := s.preferenceFor(ctx, p.TeacherID)

	p.RetryCount++
	p.Attempts = append(p.Attempts, models.PayoutAttempt{
		Number:          p.RetryCount,
		At:              time.Now().UTC(),
		Status:          models.PayoutStatusFailed,
		FailureCategory: category,
		Message:         msg,
	})
	p.Status = models.PayoutStatusFailed
	p.LastFailureCategory = &category
	failMsg := msg
	p.LastFailureMessage = &failMsg

	if retryable && p.RetryCount < p.MaxRetries {
		delay := backoffDelay(pref, p.RetryCount)
		next := time.Now().UTC().Add(delay)
		p.NextRetryAt = &next
		log.Printf("Payout %s failed (%s: %s); retry %d/%d at %s", p.ID, category, msg, p.RetryCount, p.MaxRetries, next.Format(time.RFC3339))
	} else {
		p.NextRetryAt = nil
		log.Printf("🔥 Payout %s for teacher %s failed terminally after %d attempts (%s: %s)", p.ID, p.TeacherID, p.RetryCount, category, msg)
		s.notifyTerminal(ctx, p, category)
	}

	if err := s.DB.WithContext(ctx).Save(p).Error; err != nil {
		log.Printf("🔥 CRITICAL: failed to persist failure state for payout %s: %v", p.ID, err)
	}
}

// backoffDelay is baseDelay × multiplier^(attempt-1), capped at maxDelay,
// with up to 10%% added jitter when enabled.
func backoffDelay(pref models.PayoutPreference, attempt int) time.Duration {
	base := time.Duration(pref.BaseDelaySeconds) * time.Second
	max := time.Duration(pref.MaxDelaySeconds) * time.Second
	mult := pref.BackoffMultiplier
	if mult < 1 {
		mult = 2
	}

	delay := time.Duration(float64(base) * math.Pow(mult, float64(attempt-1)))
	if delay > max || delay < 0 {
		delay = max
	}
	if pref.RetryJitter {
		delay += time.Duration(rand.Int63n(int64(delay)/10 + 1))
	}
	return delay
}

func (s *PayoutService) preferenceFor(ctx context.Context, teacherID interface{}) models.PayoutPreference {
	var pref models.PayoutPreference
	if err := s.DB.WithContext(ctx).First(&pref, "teacher_id = ?", teacherID).Error; err != nil {
		// policy defaults when the teacher never saved a preference
		pref.BaseDelaySeconds = 3600
		pref.MaxDelaySeconds = 86400
		pref.BackoffMultiplier = 2
	}
	return pref
}

func (s *PayoutService) notifyTerminal(ctx context.Context, p *models.Payout, category string) {
	if s.Notify == nil {
		return
	}
	var teacher models.User
	if err := s.DB.WithContext(ctx).First(&teacher, "id = ?", p.TeacherID).Error; err != nil {
		log.Printf("Failed to load teacher %s for payout failure notice: %v", p.TeacherID, err)
		return
	}
	go s.Notify(teacher, *p, category)
}

func (s *PayoutService) emailTerminalFailure(teacher models.User, payout models.Payout, category string) {
	body := fmt.Sprintf(
		"<h1>Payout Failed</h1><p>Hi %s,</p><p>Your payout of $%.2f could not be completed (reason: %s). Please review your connected payout account details, then contact support if the problem persists.</p>",
		teacher.FullName, payout.Amount, category,
	)
	notifications.SendEmail(teacher.FullName, teacher.Email, "Action Required: Your Payout Failed", body)
}
