// Package gateway abstracts the external card processor behind a single
// payment-intent call.
package gateway

import (
	"context"
	"errors"
	"fmt"
)

type IntentStatus string

const (
	StatusSucceeded      IntentStatus = "succeeded"
	StatusProcessing     IntentStatus = "processing"
	StatusRequiresAction IntentStatus = "requires_action"
	StatusFailed         IntentStatus = "failed"
	StatusCanceled       IntentStatus = "canceled"
)

type IntentRequest struct {
	AmountCents     int64
	Currency        string
	PaymentMethodID string
	// IdempotencyKey makes a retried request return the original intent.
	IdempotencyKey string
	Metadata       map[string]string
}

type Intent struct {
	ID            string
	Status        IntentStatus
	AmountCents   int64
	Currency      string
	FailureReason string
}

// PaymentGateway creates and confirms a payment intent in one call.
type PaymentGateway interface {
	CreatePaymentIntent(ctx context.Context, req IntentRequest) (Intent, error)
}

// ErrUnavailable is returned when the circuit is open or every retry failed.
var ErrUnavailable = errors.New("payment gateway unavailable")

// DeclineError is a definitive refusal by the processor. It is never retried.
type DeclineError struct {
	Code   string
	Reason string
}

func (e *DeclineError) Error() string {
	if e.Code == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s (%s)", e.Reason, e.Code)
}

// TemporaryError marks a failure that is safe to retry with the same
// idempotency key: network errors, timeouts, 429 and 5xx responses.
type TemporaryError struct {
	Err error
}

func (e *TemporaryError) Error() string { return "temporary gateway failure: " + e.Err.Error() }
func (e *TemporaryError) Unwrap() error { return e.Err }

func IsTemporary(err error) bool {
	var t *TemporaryError
	return errors.As(err, &t)
}

func IsDecline(err error) bool {
	var d *DeclineError
	return errors.As(err, &d)
}
