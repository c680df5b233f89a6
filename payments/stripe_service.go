package payments

import (
	"context"
	"fmt"

	config "github.com/edusoko/course_market/configs"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/account"
	"github.com/stripe/stripe-go/v82/accountlink"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/payout"
	"github.com/stripe/stripe-go/v82/transfer"
)

// AccountStatus is the capability snapshot of a connected account.
type AccountStatus struct {
	ID               string
	PayoutsEnabled   bool
	ChargesEnabled   bool
	DetailsSubmitted bool
	TransfersCapable bool
	DisabledReason   string
}

type CheckoutParams struct {
	CourseTitle   string
	AmountCents   int64
	Currency      string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
	Metadata      map[string]string
}

type TransferRequest struct {
	AmountCents    int64
	Currency       string
	Destination    string
	IdempotencyKey string
	Metadata       map[string]string
}

type BankPayoutRequest struct {
	AmountCents    int64
	Currency       string
	Account        string
	IdempotencyKey string
	Metadata       map[string]string
}

// Gateway is the outbound surface of the payment processor. The stripe-backed
// implementation is the only production one; tests substitute fakes.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*stripe.CheckoutSession, error)
	RetrieveCheckoutSession(ctx context.Context, id string) (*stripe.CheckoutSession, error)
	SessionForPaymentIntent(ctx context.Context, paymentIntentID string) (*stripe.CheckoutSession, error)
	RetrievePaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error)

	CreateExpressAccount(ctx context.Context, email string) (string, error)
	CreateAccountLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error)
	GetAccount(ctx context.Context, accountID string) (*AccountStatus, error)

	Transfer(ctx context.Context, req TransferRequest) (string, error)
	PayoutToBank(ctx context.Context, req BankPayoutRequest) (string, error)
}

// StripeGateway talks to Stripe with the platform secret key.
type StripeGateway struct{}

func NewStripeGateway() *StripeGateway {
	stripe.Key = config.Config("STRIPE_SECRET_KEY")
	return &StripeGateway{}
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(p.Currency),
					UnitAmount: stripe.Int64(p.AmountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(p.CourseTitle),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(p.SuccessURL),
		CancelURL:  stripe.String(p.CancelURL),
		Metadata:   p.Metadata,
	}
	if p.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(p.CustomerEmail)
	}
	if params.Metadata == nil {
		params.Metadata = map[string]string{}
	}
	params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{
		Metadata: params.Metadata,
	}
	params.Params.Context = ctx

	sess, err := session.New(params)
	if err != nil {
		return nil, classify(err)
	}
	return sess, nil
}

func (g *StripeGateway) RetrieveCheckoutSession(ctx context.Context, id string) (*stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Params.Context = ctx
	sess, err := session.Get(id, params)
	if err != nil {
		return nil, classify(err)
	}
	return sess, nil
}

// SessionForPaymentIntent recovers the checkout session that created a payment
// intent. Used when a payment_intent event arrives without our metadata.
func (g *StripeGateway) SessionForPaymentIntent(ctx context.Context, paymentIntentID string) (*stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionListParams{
		PaymentIntent: stripe.String(paymentIntentID),
	}
	params.Limit = stripe.Int64(1)
	params.Context = ctx

	it := session.List(params)
	for it.Next() {
		return it.CheckoutSession(), nil
	}
	if err := it.Err(); err != nil {
		return nil, classify(err)
	}
	return nil, fmt.Errorf("no checkout session found for payment intent %s", paymentIntentID)
}

func (g *StripeGateway) RetrievePaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Params.Context = ctx
	pi, err := paymentintent.Get(id, params)
	if err != nil {
		return nil, classify(err)
	}
	return pi, nil
}

func (g *StripeGateway) CreateExpressAccount(ctx context.Context, email string) (string, error) {
	params := &stripe.AccountParams{
		Type:  stripe.String(string(stripe.AccountTypeExpress)),
		Email: stripe.String(email),
		Capabilities: &stripe.AccountCapabilitiesParams{
			Transfers: &stripe.AccountCapabilitiesTransfersParams{
				Requested: stripe.Bool(true),
			},
		},
	}
	params.Params.Context = ctx

	acct, err := account.New(params)
	if err != nil {
		return "", classify(err)
	}
	return acct.ID, nil
}

func (g *StripeGateway) CreateAccountLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error) {
	params := &stripe.AccountLinkParams{
		Account:    stripe.String(accountID),
		RefreshURL: stripe.String(refreshURL),
		ReturnURL:  stripe.String(returnURL),
		Type:       stripe.String("account_onboarding"),
	}
	params.Params.Context = ctx

	link, err := accountlink.New(params)
	if err != nil {
		return "", classify(err)
	}
	return link.URL, nil
}

func (g *StripeGateway) GetAccount(ctx context.Context, accountID string) (*AccountStatus, error) {
	params := &stripe.AccountParams{}
	params.Params.Context = ctx

	acct, err := account.GetByID(accountID, params)
	if err != nil {
		return nil, classify(err)
	}
	return AccountStatusFrom(acct), nil
}

// AccountStatusFrom maps a raw gateway account onto the capability snapshot.
// Shared with the account.updated webhook handler.
func AccountStatusFrom(acct *stripe.Account) *AccountStatus {
	status := &AccountStatus{
		ID:               acct.ID,
		PayoutsEnabled:   acct.PayoutsEnabled,
		ChargesEnabled:   acct.ChargesEnabled,
		DetailsSubmitted: acct.DetailsSubmitted,
	}
	if acct.Capabilities != nil {
		status.TransfersCapable = acct.Capabilities.Transfers == stripe.AccountCapabilityStatusActive
	}
	if acct.Requirements != nil {
		status.DisabledReason = string(acct.Requirements.DisabledReason)
	}
	return status
}

func (g *StripeGateway) Transfer(ctx context.Context, req TransferRequest) (string, error) {
	params := &stripe.TransferParams{
		Amount:      stripe.Int64(req.AmountCents),
		Currency:    stripe.String(req.Currency),
		Destination: stripe.String(req.Destination),
		Metadata:    req.Metadata,
	}
	params.Params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)

	t, err := transfer.New(params)
	if err != nil {
		return "", classify(err)
	}
	return t.ID, nil
}

func (g *StripeGateway) PayoutToBank(ctx context.Context, req BankPayoutRequest) (string, error) {
	params := &stripe.PayoutParams{
		Amount:   stripe.Int64(req.AmountCents),
		Currency: stripe.String(req.Currency),
		Metadata: req.Metadata,
	}
	params.Params.Context = ctx
	params.SetStripeAccount(req.Account)
	params.SetIdempotencyKey(req.IdempotencyKey)

	po, err := payout.New(params)
	if err != nil {
		return "", classify(err)
	}
	return po.ID, nil
}
