package settlement

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/edusoko/course_market/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
)

type recordingPayoutHandler struct {
	eventType string
	payout    *stripe.Payout
}

func (r *recordingPayoutHandler) HandleGatewayPayoutEvent(ctx context.Context, eventType string, p *stripe.Payout) error {
	r.eventType = eventType
	r.payout = p
	return nil
}

func sessionEvent(eventType, eventID string, f fixture, sessionID, paymentStatus string) stripe.Event {
	raw := fmt.Sprintf(`{
		"id": %q,
		"amount_total": 10000,
		"currency": "usd",
		"payment_status": %q,
		"payment_intent": {"id": "pi_%s"},
		"metadata": {
			"student_id": %q,
			"course_id": %q,
			"teacher_id": %q
		}
	}`, sessionID, paymentStatus, sessionID, f.student.ID, f.course.ID, f.teacher.UserID)

	return stripe.Event{
		ID:   eventID,
		Type: stripe.EventType(eventType),
		Data: &stripe.EventData{Raw: json.RawMessage(raw)},
	}
}

func TestDispatch_CheckoutCompletedSettles(t *testing.T) {
	db := newTestDB(t, "disp_completed")
	f := seedSale(t, db)
	d := NewDispatcher(db, nil, newTestProcessor(db), nil)

	ev := sessionEvent("checkout.session.completed", "evt_disp_1", f, "cs_disp_1", "paid")
	require.NoError(t, d.Dispatch(context.Background(), ev))

	var payment models.Payment
	require.NoError(t, db.First(&payment, "stripe_charge_id = ?", "cs_disp_1").Error)
	assert.Equal(t, "success", payment.Status)

	var enrolled int64
	db.Model(&models.Enrollment{}).Where("user_id = ?", f.student.ID).Count(&enrolled)
	assert.Equal(t, int64(1), enrolled)

	// Redelivery of the same event settles nothing twice.
	require.NoError(t, d.Dispatch(context.Background(), ev))
	var payments int64
	db.Model(&models.Payment{}).Count(&payments)
	assert.Equal(t, int64(1), payments)
}

func TestDispatch_UnknownEventIgnored(t *testing.T) {
	d := NewDispatcher(nil, nil, nil, nil)
	err := d.Dispatch(context.Background(), stripe.Event{
		ID:   "evt_noop",
		Type: "balance.available",
		Data: &stripe.EventData{Raw: json.RawMessage(`{}`)},
	})
	assert.NoError(t, err)
}

func TestDispatch_AsyncPaymentFailedCorrectsRecords(t *testing.T) {
	db := newTestDB(t, "disp_asyncfail")
	f := seedSale(t, db)
	d := NewDispatcher(db, nil, newTestProcessor(db), nil)

	// Bank-debit checkout settles optimistically as pending...
	completed := sessionEvent("checkout.session.completed", "evt_async_1", f, "cs_async_1", "unpaid")
	require.NoError(t, d.Dispatch(context.Background(), completed))

	var payment models.Payment
	require.NoError(t, db.First(&payment, "stripe_charge_id = ?", "cs_async_1").Error)
	require.Equal(t, "pending", payment.Status)

	// ...then the bank bounces it.
	failed := sessionEvent("checkout.session.async_payment_failed", "evt_async_2", f, "cs_async_1", "unpaid")
	require.NoError(t, d.Dispatch(context.Background(), failed))

	require.NoError(t, db.First(&payment, "stripe_charge_id = ?", "cs_async_1").Error)
	assert.Equal(t, "failed", payment.Status)

	var txn models.Transaction
	require.NoError(t, db.First(&txn, "student_id = ?", f.student.ID).Error)
	assert.Equal(t, "failed", txn.Status)
}

func TestDispatch_AsyncPaymentSucceededPromotesPending(t *testing.T) {
	db := newTestDB(t, "disp_asyncok")
	f := seedSale(t, db)
	d := NewDispatcher(db, nil, newTestProcessor(db), nil)

	completed := sessionEvent("checkout.session.completed", "evt_prom_1", f, "cs_prom_1", "unpaid")
	require.NoError(t, d.Dispatch(context.Background(), completed))

	succeeded := sessionEvent("checkout.session.async_payment_succeeded", "evt_prom_2", f, "cs_prom_1", "unpaid")
	require.NoError(t, d.Dispatch(context.Background(), succeeded))

	var payment models.Payment
	require.NoError(t, db.First(&payment, "stripe_charge_id = ?", "cs_prom_1").Error)
	assert.Equal(t, "success", payment.Status)

	// Still exactly one settlement despite two events.
	var payments int64
	db.Model(&models.Payment{}).Count(&payments)
	assert.Equal(t, int64(1), payments)
}

func TestDispatch_AccountUpdatedSyncsTeacherFlags(t *testing.T) {
	db := newTestDB(t, "disp_account")
	f := seedSale(t, db)

	acctID := "acct_disp_1"
	require.NoError(t, db.Model(&models.Teacher{}).
		Where("user_id = ?", f.teacher.UserID).
		Update("stripe_account_id", acctID).Error)

	d := NewDispatcher(db, nil, nil, nil)
	raw := fmt.Sprintf(`{"id": %q, "payouts_enabled": true, "charges_enabled": true, "details_submitted": true}`, acctID)
	require.NoError(t, d.Dispatch(context.Background(), stripe.Event{
		ID:   "evt_acct_1",
		Type: "account.updated",
		Data: &stripe.EventData{Raw: json.RawMessage(raw)},
	}))

	var teacher models.Teacher
	require.NoError(t, db.First(&teacher, "user_id = ?", f.teacher.UserID).Error)
	assert.True(t, teacher.PayoutsEnabled)
	assert.True(t, teacher.ChargesEnabled)
	assert.True(t, teacher.OnboardingComplete)
}

func TestDispatch_PayoutEventsDelegated(t *testing.T) {
	handler := &recordingPayoutHandler{}
	d := NewDispatcher(nil, nil, nil, handler)

	raw := `{"id": "po_disp_1", "metadata": {"payout_id": "11111111-1111-1111-1111-111111111111"}}`
	require.NoError(t, d.Dispatch(context.Background(), stripe.Event{
		ID:   "evt_po_1",
		Type: "payout.paid",
		Data: &stripe.EventData{Raw: json.RawMessage(raw)},
	}))

	assert.Equal(t, "payout.paid", handler.eventType)
	require.NotNil(t, handler.payout)
	assert.Equal(t, "po_disp_1", handler.payout.ID)
}
