package payments

import (
	"errors"
	"net/http"

	"github.com/stripe/stripe-go/v82"
)

// Failure categories for a declined or failed gateway operation.
const (
	FailureInsufficientFunds = "insufficient_funds"
	FailureAccountClosed     = "account_closed"
	FailureInvalidAccount    = "invalid_account"
	FailureBankDeclined      = "bank_declined"
	FailureCompliance        = "compliance"
	FailureTechnical         = "technical"
	FailureRateLimited       = "rate_limited"
	FailureUnknown           = "unknown"
)

// GatewayError wraps a gateway failure with the classification the callers
// act on: 4xx request errors are terminal, 5xx/network errors retryable.
type GatewayError struct {
	Code      string
	Message   string
	Category  string
	Retryable bool
	Err       error
}

func (e *GatewayError) Error() string {
	if e.Message != "" {
		return "gateway: " + e.Message
	}
	return "gateway: " + e.Err.Error()
}

func (e *GatewayError) Unwrap() error { return e.Err }

func classify(err error) error {
	if err == nil {
		return nil
	}

	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		// transport-level failure: no response from the gateway at all
		return &GatewayError{
			Message:   err.Error(),
			Category:  FailureTechnical,
			Retryable: true,
			Err:       err,
		}
	}

	ge := &GatewayError{
		Code:    string(stripeErr.Code),
		Message: stripeErr.Msg,
		Err:     err,
	}
	ge.Category, ge.Retryable = ClassifyFailureCode(string(stripeErr.Code))

	switch {
	case stripeErr.HTTPStatusCode == http.StatusTooManyRequests:
		ge.Category, ge.Retryable = FailureRateLimited, true
	case stripeErr.HTTPStatusCode >= 500:
		ge.Category, ge.Retryable = FailureTechnical, true
	}
	return ge
}

// ClassifyFailureCode maps a gateway failure code (API error codes and payout
// failure codes both) to a category and whether retrying can ever succeed.
func ClassifyFailureCode(code string) (category string, retryable bool) {
	switch code {
	case string(stripe.ErrorCodeBalanceInsufficient),
		string(stripe.PayoutFailureCodeInsufficientFunds):
		return FailureInsufficientFunds, true

	case string(stripe.PayoutFailureCodeAccountClosed),
		string(stripe.PayoutFailureCodeAccountFrozen),
		string(stripe.PayoutFailureCodeNoAccount):
		return FailureAccountClosed, false

	case string(stripe.PayoutFailureCodeInvalidAccountNumber),
		string(stripe.PayoutFailureCodeIncorrectAccountHolderName),
		string(stripe.PayoutFailureCodeInvalidCurrency),
		string(stripe.ErrorCodePayoutsNotAllowed):
		return FailureInvalidAccount, false

	case string(stripe.PayoutFailureCodeDeclined),
		string(stripe.PayoutFailureCodeDebitNotAuthorized),
		string(stripe.PayoutFailureCodeBankOwnershipChanged):
		return FailureBankDeclined, false

	case string(stripe.PayoutFailureCodeBankAccountRestricted),
		"account_restricted":
		return FailureCompliance, false

	case string(stripe.ErrorCodeRateLimit):
		return FailureRateLimited, true

	case "":
		return FailureUnknown, false
	}
	return FailureUnknown, false
}

// CategoryOf extracts the failure category from any error chain.
func CategoryOf(err error) (category string, retryable bool) {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Category, ge.Retryable
	}
	return FailureUnknown, false
}
