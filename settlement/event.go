package settlement

import (
	"fmt"
	"log"
	"strconv"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
)

// CheckoutEventData is the normalized, validated view of one gateway payment
// event. Everything downstream of the dispatcher works from this struct, not
// from raw gateway payloads.
type CheckoutEventData struct {
	EventID string

	StudentID uuid.UUID
	CourseID  uuid.UUID
	TeacherID uuid.UUID

	AmountCents int64
	Amount      float64
	Currency    string

	// Advisory split carried in metadata. The authoritative amount is the
	// gateway's total; these are only cross-checked.
	TeacherShareCents int64
	PlatformFeeCents  int64

	GatewayRef      string
	PaymentIntentID string
	PaymentStatus   string
	CustomerEmail   string
	ReceiptURL      string
}

// ValidateCheckoutSession extracts and validates the identifying metadata of a
// completed checkout session before any state is mutated.
func ValidateCheckoutSession(eventID string, sess *stripe.CheckoutSession) (*CheckoutEventData, error) {
	data, err := fromMetadata(eventID, sess.Metadata, sess.AmountTotal)
	if err != nil {
		return nil, err
	}

	data.GatewayRef = sess.ID
	if sess.PaymentIntent != nil {
		data.PaymentIntentID = sess.PaymentIntent.ID
	}
	data.PaymentStatus = string(sess.PaymentStatus)
	if sess.Currency != "" {
		data.Currency = string(sess.Currency)
	}
	if sess.CustomerDetails != nil {
		data.CustomerEmail = sess.CustomerDetails.Email
	}
	return data, nil
}

// ValidatePaymentIntent is the payment-intent-shaped variant, used when the
// gateway propagated metadata onto the intent itself.
func ValidatePaymentIntent(eventID string, pi *stripe.PaymentIntent) (*CheckoutEventData, error) {
	data, err := fromMetadata(eventID, pi.Metadata, pi.Amount)
	if err != nil {
		return nil, err
	}

	data.GatewayRef = pi.ID
	data.PaymentIntentID = pi.ID
	if pi.Status == stripe.PaymentIntentStatusSucceeded {
		data.PaymentStatus = "paid"
	} else {
		data.PaymentStatus = string(pi.Status)
	}
	if pi.Currency != "" {
		data.Currency = string(pi.Currency)
	}
	if pi.ReceiptEmail != "" {
		data.CustomerEmail = pi.ReceiptEmail
	}
	return data, nil
}

func fromMetadata(eventID string, meta map[string]string, amountCents int64) (*CheckoutEventData, error) {
	required := []string{"student_id", "course_id", "teacher_id"}
	for _, key := range required {
		if meta[key] == "" {
			return nil, fmt.Errorf("%w: %s (event %s)", ErrMissingMetadata, key, eventID)
		}
	}

	studentID, err := uuid.Parse(meta["student_id"])
	if err != nil {
		return nil, fmt.Errorf("%w: student_id=%q (event %s)", ErrMalformedIdentifier, meta["student_id"], eventID)
	}
	courseID, err := uuid.Parse(meta["course_id"])
	if err != nil {
		return nil, fmt.Errorf("%w: course_id=%q (event %s)", ErrMalformedIdentifier, meta["course_id"], eventID)
	}
	teacherID, err := uuid.Parse(meta["teacher_id"])
	if err != nil {
		return nil, fmt.Errorf("%w: teacher_id=%q (event %s)", ErrMalformedIdentifier, meta["teacher_id"], eventID)
	}

	data := &CheckoutEventData{
		EventID:     eventID,
		StudentID:   studentID,
		CourseID:    courseID,
		TeacherID:   teacherID,
		AmountCents: amountCents,
		Amount:      CentsToMajor(amountCents),
		Currency:    "usd",
	}

	data.TeacherShareCents, _ = strconv.ParseInt(meta["teacher_share"], 10, 64)
	data.PlatformFeeCents, _ = strconv.ParseInt(meta["platform_fee"], 10, 64)

	// The metadata split is advisory only; a mismatch against the gateway
	// total is logged, not failed, so a stale client cannot block settlement.
	if data.TeacherShareCents != 0 || data.PlatformFeeCents != 0 {
		if data.TeacherShareCents+data.PlatformFeeCents != amountCents {
			log.Printf("⚠️ Event %s: metadata split %d+%d does not equal gateway total %d, trusting gateway total",
				eventID, data.TeacherShareCents, data.PlatformFeeCents, amountCents)
		}
	}

	return data, nil
}
