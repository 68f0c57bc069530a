package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/paymentintent"
)

// Stripe confirms payment intents server-side with an attached payment method.
type Stripe struct{}

// NewStripe configures the process-wide Stripe key and bounds each HTTP call
// by timeout.
func NewStripe(secretKey string, timeout time.Duration) *Stripe {
	stripe.Key = secretKey
	stripe.SetBackend(stripe.APIBackend, stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		HTTPClient: &http.Client{Timeout: timeout},
	}))
	return &Stripe{}
}

func (s *Stripe) CreatePaymentIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.AmountCents),
		Currency:      stripe.String(strings.ToLower(req.Currency)),
		PaymentMethod: stripe.String(req.PaymentMethodID),
		Confirm:       stripe.Bool(true),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	type result struct {
		pi  *stripe.PaymentIntent
		err error
	}
	done := make(chan result, 1)
	go func() {
		pi, err := paymentintent.New(params)
		done <- result{pi: pi, err: err}
	}()

	select {
	case <-ctx.Done():
		return Intent{}, &TemporaryError{Err: ctx.Err()}
	case r := <-done:
		if r.err != nil {
			return Intent{}, classifyStripeError(r.err)
		}
		return intentFromStripe(r.pi), nil
	}
}

func intentFromStripe(pi *stripe.PaymentIntent) Intent {
	intent := Intent{
		ID:          pi.ID,
		AmountCents: pi.Amount,
		Currency:    strings.ToUpper(string(pi.Currency)),
	}
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		intent.Status = StatusSucceeded
	case stripe.PaymentIntentStatusProcessing:
		intent.Status = StatusProcessing
	case stripe.PaymentIntentStatusCanceled:
		intent.Status = StatusCanceled
	case stripe.PaymentIntentStatusRequiresAction:
		intent.Status = StatusRequiresAction
	default:
		intent.Status = StatusFailed
	}
	if pi.LastPaymentError != nil {
		intent.FailureReason = pi.LastPaymentError.Msg
	}
	return intent
}

func classifyStripeError(err error) error {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return &TemporaryError{Err: err}
	}
	if se.Type == stripe.ErrorTypeCard {
		return &DeclineError{Code: string(se.Code), Reason: se.Msg}
	}
	if se.HTTPStatusCode == http.StatusTooManyRequests || se.HTTPStatusCode >= http.StatusInternalServerError {
		return &TemporaryError{Err: err}
	}
	return err
}
