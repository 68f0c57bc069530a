package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Test payment method ids understood by Fake, named after the processor's
// own test cards.
const (
	FakeMethodSucceeds       = "pm_card_visa"
	FakeMethodDeclined       = "pm_card_chargeDeclined"
	FakeMethodRequiresAction = "pm_card_authenticationRequired"
)

// Fake is a deterministic in-memory gateway. Requests that reuse an
// idempotency key get the intent recorded for the first one.
type Fake struct {
	mu       sync.Mutex
	seq      int
	calls    []IntentRequest
	byKey    map[string]Intent
	declines map[string]string
	failures []error
}

func NewFake() *Fake {
	return &Fake{
		byKey: make(map[string]Intent),
		declines: map[string]string{
			FakeMethodDeclined: "Your card was declined.",
		},
	}
}

// Decline makes every charge against methodID fail with reason.
func (f *Fake) Decline(methodID, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.declines[methodID] = reason
}

// FailNext queues errors returned, in order, by the next calls.
func (f *Fake) FailNext(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, errs...)
}

// Calls returns every request received, including failed ones.
func (f *Fake) Calls() []IntentRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]IntentRequest, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *Fake) CreatePaymentIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	if err := ctx.Err(); err != nil {
		return Intent{}, &TemporaryError{Err: err}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)

	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		return Intent{}, err
	}
	if req.IdempotencyKey != "" {
		if intent, ok := f.byKey[req.IdempotencyKey]; ok {
			return intent, nil
		}
	}
	if reason, ok := f.declines[req.PaymentMethodID]; ok {
		return Intent{}, &DeclineError{Code: "card_declined", Reason: reason}
	}

	f.seq++
	intent := Intent{
		ID:          fmt.Sprintf("pi_fake_%06d", f.seq),
		Status:      StatusSucceeded,
		AmountCents: req.AmountCents,
		Currency:    strings.ToUpper(req.Currency),
	}
	if req.PaymentMethodID == FakeMethodRequiresAction {
		intent.Status = StatusRequiresAction
		intent.FailureReason = "authentication required"
	}
	if req.IdempotencyKey != "" {
		f.byKey[req.IdempotencyKey] = intent
	}
	return intent, nil
}
