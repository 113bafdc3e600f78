// Package payments looks up payment-gateway confirmations for wallet top-ups.
package payments

import (
	"context"
	"errors"
	"fmt"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
)

// ErrNotConfigured is returned when no gateway credentials were supplied.
var ErrNotConfigured = errors.New("payment gateway not configured")

// Confirmation is the gateway's answer for one payment reference.
// Amount is in minor currency units.
type Confirmation struct {
	Reference string
	Verified  bool
	Amount    int64
	Currency  string
}

// Verifier resolves a gateway reference into a Confirmation.
type Verifier interface {
	Confirm(ctx context.Context, reference string) (Confirmation, error)
}

// intentGetter matches paymentintent.Get.
type intentGetter func(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)

// StripeVerifier treats a succeeded PaymentIntent as verified funds.
type StripeVerifier struct {
	get intentGetter
}

// NewStripeVerifier sets the process-wide Stripe key and returns a verifier.
func NewStripeVerifier(apiKey string) *StripeVerifier {
	stripe.Key = apiKey
	return &StripeVerifier{get: paymentintent.Get}
}

// Confirm retrieves the PaymentIntent named by reference.
func (s *StripeVerifier) Confirm(ctx context.Context, reference string) (Confirmation, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := s.get(reference, params)
	if err != nil {
		return Confirmation{}, fmt.Errorf("payments.StripeVerifier.Confirm: %w", err)
	}
	return Confirmation{
		Reference: pi.ID,
		Verified:  pi.Status == stripe.PaymentIntentStatusSucceeded,
		Amount:    pi.AmountReceived,
		Currency:  string(pi.Currency),
	}, nil
}

// DisabledVerifier is used when STRIPE_API_KEY is unset.
type DisabledVerifier struct{}

func (DisabledVerifier) Confirm(context.Context, string) (Confirmation, error) {
	return Confirmation{}, ErrNotConfigured
}
