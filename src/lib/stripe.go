package lib

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"ccr/src/types"

	"github.com/stripe/stripe-go/v82"
)

var stripeClient *stripe.Client

func GetStripeClient() *stripe.Client {
	if stripeClient != nil {
		return stripeClient
	}
	apiKey := os.Getenv("STRIPE_SECRET_KEY")
	sc := stripe.NewClient(apiKey)
	stripeClient = sc

	return sc
}

func NewStripeClient(c *stripe.Client) {
	stripeClient = c
}

// CheckoutParams describes one payment the engine wants collected.
type CheckoutParams struct {
	RentalNumber string
	Description  string
	Amount       float64
	Currency     string
	ExpiresAt    time.Time
	Metadata     map[string]string
}

// CheckoutResult is the provider-side handle for an opened session.
type CheckoutResult struct {
	SessionID string
	URL       string
}

// PaymentProvider is the payment surface the engine depends on. The engine
// never calls Stripe directly; tests swap in a fake via NewPaymentProvider.
type PaymentProvider interface {
	OpenCheckoutSession(ctx context.Context, params *CheckoutParams) (*CheckoutResult, error)
	IssueRefund(ctx context.Context, paymentIntentID string, amount float64) (string, error)
	ExpireSession(ctx context.Context, sessionID string) error
}

type StripeProvider struct {
	client *stripe.Client
}

func (s *StripeProvider) OpenCheckoutSession(ctx context.Context, params *CheckoutParams) (*CheckoutResult, error) {
	successUrl := fmt.Sprintf("%s/checkout/callback/success", os.Getenv("APP_HOST"))
	createParams := stripe.CheckoutSessionCreateParams{
		SuccessURL: stripe.String(successUrl),
		UIMode:     stripe.String("hosted"),
		Mode:       stripe.String("payment"),
		ExpiresAt:  stripe.Int64(params.ExpiresAt.Unix()),
		Metadata:   params.Metadata,
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionCreateLineItemPriceDataParams{
					Currency:   stripe.String(params.Currency),
					UnitAmount: stripe.Int64(int64(params.Amount * 100)),
					ProductData: &stripe.CheckoutSessionCreateLineItemPriceDataProductDataParams{
						Name: stripe.String(params.Description),
					},
				},
			},
		},
	}
	session, err := s.client.V1CheckoutSessions.Create(ctx, &createParams)
	if err != nil {
		log.Printf("[stripe] Error creating checkout session for %s: %s\n", params.RentalNumber, err.Error())
		return nil, fmt.Errorf("%w: %v", types.ErrProviderError, err)
	}
	log.Printf("[stripe] CheckoutSessionID: %s\n", session.ID)
	return &CheckoutResult{SessionID: session.ID, URL: session.URL}, nil
}

func (s *StripeProvider) IssueRefund(ctx context.Context, paymentIntentID string, amount float64) (string, error) {
	refund, err := s.client.V1Refunds.Create(ctx, &stripe.RefundCreateParams{
		PaymentIntent: stripe.String(paymentIntentID),
		Amount:        stripe.Int64(int64(amount * 100)),
	})
	if err != nil {
		log.Printf("[stripe] Error creating refund for %s: %s\n", paymentIntentID, err.Error())
		return "", fmt.Errorf("%w: %v", types.ErrProviderError, err)
	}
	return refund.ID, nil
}

func (s *StripeProvider) ExpireSession(ctx context.Context, sessionID string) error {
	_, err := s.client.V1CheckoutSessions.Expire(ctx, sessionID, &stripe.CheckoutSessionExpireParams{})
	if err != nil {
		log.Printf("[stripe] Error expiring session %s: %s\n", sessionID, err.Error())
		return fmt.Errorf("%w: %v", types.ErrProviderError, err)
	}
	return nil
}

var paymentProvider PaymentProvider

func GetPaymentProvider() PaymentProvider {
	if paymentProvider != nil {
		return paymentProvider
	}
	paymentProvider = &StripeProvider{client: GetStripeClient()}
	return paymentProvider
}

// NewPaymentProvider Replace provider instance with custom implementation
func NewPaymentProvider(p PaymentProvider) PaymentProvider {
	paymentProvider = p
	return paymentProvider
}
