package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/edusoko/course_market/models"
	"github.com/edusoko/course_market/payments"
	"github.com/stripe/stripe-go/v82"
	"gorm.io/gorm"
)

// PayoutEventHandler reacts to the gateway's asynchronous payout outcomes
// (payout.paid / payout.failed on connected accounts).
type PayoutEventHandler interface {
	HandleGatewayPayoutEvent(ctx context.Context, eventType string, p *stripe.Payout) error
}

// Dispatcher routes verified gateway events by type. It keeps no dedupe table:
// every handler is idempotent (enrollment guard or unique gateway reference),
// so redelivery and reordering are safe.
type Dispatcher struct {
	DB        *gorm.DB
	Gateway   payments.Gateway
	Processor *Processor
	Payouts   PayoutEventHandler
}

func NewDispatcher(db *gorm.DB, gateway payments.Gateway, processor *Processor, payouts PayoutEventHandler) *Dispatcher {
	return &Dispatcher{DB: db, Gateway: gateway, Processor: processor, Payouts: payouts}
}

// Dispatch processes one verified event. The HTTP 200 has already been sent
// by the time this runs; a failure here must be loud in the logs because
// nobody upstream will see it.
func (d *Dispatcher) Dispatch(ctx context.Context, event stripe.Event) error {
	switch string(event.Type) {
	case "checkout.session.completed":
		return d.handleCheckoutCompleted(ctx, event)
	case "checkout.session.async_payment_succeeded":
		return d.handleAsyncPaymentSucceeded(ctx, event)
	case "checkout.session.async_payment_failed":
		return d.handleAsyncPaymentFailed(ctx, event)
	case "payment_intent.succeeded":
		return d.handlePaymentSucceeded(ctx, event)
	case "payment_intent.payment_failed":
		return d.handlePaymentFailed(ctx, event)
	case "account.updated":
		return d.handleAccountUpdated(ctx, event)
	case "payout.paid", "payout.failed":
		return d.handleGatewayPayout(ctx, event)
	default:
		log.Printf("Ignoring unhandled webhook event type %s (%s)", event.Type, event.ID)
		return nil
	}
}

func (d *Dispatcher) handleCheckoutCompleted(ctx context.Context, event stripe.Event) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return fmt.Errorf("event %s: cannot parse checkout session: %w", event.ID, err)
	}

	data, err := ValidateCheckoutSession(event.ID, &sess)
	if err != nil {
		return err
	}

	res, err := d.Processor.Settle(ctx, data)
	if err != nil {
		return err
	}
	if res.AlreadyEnrolled {
		log.Printf("Event %s: student %s already enrolled in course %s, nothing to do", event.ID, data.StudentID, data.CourseID)
	}
	return nil
}

func (d *Dispatcher) handleAsyncPaymentSucceeded(ctx context.Context, event stripe.Event) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return fmt.Errorf("event %s: cannot parse checkout session: %w", event.ID, err)
	}

	data, err := ValidateCheckoutSession(event.ID, &sess)
	if err != nil {
		return err
	}
	data.PaymentStatus = "paid"

	// Settle first in case checkout.session.completed never arrived, then
	// promote the (possibly pre-existing) pending records.
	if _, err := d.Processor.Settle(ctx, data); err != nil {
		return err
	}
	return d.markPaymentStatus(ctx, data.GatewayRef, "pending", "success")
}

func (d *Dispatcher) handleAsyncPaymentFailed(ctx context.Context, event stripe.Event) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return fmt.Errorf("event %s: cannot parse checkout session: %w", event.ID, err)
	}

	// The bank bounced a payment we may already have settled optimistically.
	// Correct the records; the enrollment stays, revocation is a support flow.
	log.Printf("🔥 CRITICAL: async payment failed for session %s (event %s), correcting records", sess.ID, event.ID)
	if err := d.markPaymentStatus(ctx, sess.ID, "pending", "failed"); err != nil {
		return err
	}
	return d.markPaymentStatus(ctx, sess.ID, "success", "failed")
}

func (d *Dispatcher) handlePaymentSucceeded(ctx context.Context, event stripe.Event) error {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return fmt.Errorf("event %s: cannot parse payment intent: %w", event.ID, err)
	}

	data, err := ValidatePaymentIntent(event.ID, &pi)
	if errors.Is(err, ErrMissingMetadata) {
		// Some gateways do not copy session metadata onto the intent. Fall
		// back to the originating checkout session and settle from there.
		log.Printf("Event %s: payment intent %s missing metadata, falling back to checkout session lookup", event.ID, pi.ID)
		sess, lookupErr := d.Gateway.SessionForPaymentIntent(ctx, pi.ID)
		if lookupErr != nil {
			return fmt.Errorf("event %s: metadata fallback failed: %w", event.ID, lookupErr)
		}
		data, err = ValidateCheckoutSession(event.ID, sess)
	}
	if err != nil {
		return err
	}

	_, err = d.Processor.Settle(ctx, data)
	return err
}

func (d *Dispatcher) handlePaymentFailed(ctx context.Context, event stripe.Event) error {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return fmt.Errorf("event %s: cannot parse payment intent: %w", event.ID, err)
	}

	res := d.DB.WithContext(ctx).Model(&models.Payment{}).
		Where("stripe_charge_id = ? AND status IN ?", pi.ID, []string{"pending", "success"}).
		Update("status", "failed")
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		log.Printf("Event %s: payment_intent.payment_failed for %s with no matching payment record", event.ID, pi.ID)
	}
	return nil
}

// handleAccountUpdated refreshes a teacher's gateway capability flags.
// Independent of any payment flow.
func (d *Dispatcher) handleAccountUpdated(ctx context.Context, event stripe.Event) error {
	var acct stripe.Account
	if err := json.Unmarshal(event.Data.Raw, &acct); err != nil {
		return fmt.Errorf("event %s: cannot parse account: %w", event.ID, err)
	}

	status := payments.AccountStatusFrom(&acct)

	res := d.DB.WithContext(ctx).Model(&models.Teacher{}).
		Where("stripe_account_id = ?", acct.ID).
		Updates(map[string]interface{}{
			"payouts_enabled":     status.PayoutsEnabled,
			"charges_enabled":     status.ChargesEnabled,
			"onboarding_complete": status.DetailsSubmitted,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		log.Printf("Event %s: account.updated for unknown account %s", event.ID, acct.ID)
	} else {
		log.Printf("Updated capability flags for account %s (payouts_enabled=%v)", acct.ID, status.PayoutsEnabled)
	}
	return nil
}

func (d *Dispatcher) handleGatewayPayout(ctx context.Context, event stripe.Event) error {
	if d.Payouts == nil {
		return nil
	}
	var p stripe.Payout
	if err := json.Unmarshal(event.Data.Raw, &p); err != nil {
		return fmt.Errorf("event %s: cannot parse payout: %w", event.ID, err)
	}
	return d.Payouts.HandleGatewayPayoutEvent(ctx, string(event.Type), &p)
}

func (d *Dispatcher) markPaymentStatus(ctx context.Context, chargeRef, from, to string) error {
	if err := d.DB.WithContext(ctx).Model(&models.Payment{}).
		Where("stripe_charge_id = ? AND status = ?", chargeRef, from).
		Update("status", to).Error; err != nil {
		return err
	}

	// the ledger row keys on the payment intent, but mirrors the same status
	var payment models.Payment
	err := d.DB.WithContext(ctx).Where("stripe_charge_id = ?", chargeRef).First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return d.DB.WithContext(ctx).Model(&models.Transaction{}).
		Where("student_id = ? AND course_id = ? AND status = ?", payment.StudentID, payment.CourseID, from).
		Update("status", to).Error
}
