package payments

import (
	"context"
	"errors"
	"testing"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripeVerifier_Succeeded(t *testing.T) {
	v := &StripeVerifier{get: func(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
		require.NotNil(t, params.Context, "request context is forwarded")
		return &stripe.PaymentIntent{
			ID:             id,
			Status:         stripe.PaymentIntentStatusSucceeded,
			AmountReceived: 50000,
			Currency:       stripe.CurrencyINR,
		}, nil
	}}

	c, err := v.Confirm(context.Background(), "pi_123")

	require.NoError(t, err)
	assert.True(t, c.Verified)
	assert.Equal(t, int64(50000), c.Amount)
	assert.Equal(t, "pi_123", c.Reference)
}

func TestStripeVerifier_NotYetSucceeded(t *testing.T) {
	v := &StripeVerifier{get: func(id string, _ *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
		return &stripe.PaymentIntent{ID: id, Status: stripe.PaymentIntentStatusProcessing}, nil
	}}

	c, err := v.Confirm(context.Background(), "pi_456")

	require.NoError(t, err)
	assert.False(t, c.Verified)
}

func TestStripeVerifier_GatewayError(t *testing.T) {
	v := &StripeVerifier{get: func(string, *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
		return nil, errors.New("no such payment_intent")
	}}

	_, err := v.Confirm(context.Background(), "pi_missing")

	assert.ErrorContains(t, err, "no such payment_intent")
}

func TestDisabledVerifier(t *testing.T) {
	_, err := DisabledVerifier{}.Confirm(context.Background(), "pi_1")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
