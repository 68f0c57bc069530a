package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/omise/omise-go"
	"github.com/omise/omise-go/operations"
)

// Omise charges a card token. The API has no idempotency keys, so the
// resilient wrapper must not retry it.
type Omise struct {
	client *omise.Client
}

func NewOmise(publicKey, secretKey string) (*Omise, error) {
	c, err := omise.NewClient(publicKey, secretKey)
	if err != nil {
		return nil, err
	}
	return &Omise{client: c}, nil
}

func (o *Omise) CreatePaymentIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	metadata := make(map[string]any, len(req.Metadata))
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	op := &operations.CreateCharge{
		Amount:   req.AmountCents,
		Currency: strings.ToLower(req.Currency),
		Card:     req.PaymentMethodID,
		Metadata: metadata,
	}

	type result struct {
		ch  *omise.Charge
		err error
	}
	done := make(chan result, 1)
	go func() {
		ch := &omise.Charge{}
		err := o.client.Do(ch, op)
		done <- result{ch: ch, err: err}
	}()

	select {
	case <-ctx.Done():
		return Intent{}, &TemporaryError{Err: ctx.Err()}
	case r := <-done:
		if r.err != nil {
			return Intent{}, classifyOmiseError(r.err)
		}
		return intentFromCharge(r.ch)
	}
}

func intentFromCharge(ch *omise.Charge) (Intent, error) {
	intent := Intent{
		ID:          ch.ID,
		AmountCents: ch.Amount,
		Currency:    strings.ToUpper(ch.Currency),
	}
	switch string(ch.Status) {
	case "successful":
		intent.Status = StatusSucceeded
	case "pending":
		intent.Status = StatusProcessing
	case "failed":
		var code, msg string
		if ch.FailureCode != nil {
			code = *ch.FailureCode
		}
		if ch.FailureMessage != nil {
			msg = *ch.FailureMessage
		}
		return Intent{}, &DeclineError{Code: code, Reason: msg}
	default:
		intent.Status = StatusFailed
		intent.FailureReason = "charge status " + string(ch.Status)
	}
	return intent, nil
}

func classifyOmiseError(err error) error {
	var oe *omise.Error
	if !errors.As(err, &oe) {
		return &TemporaryError{Err: err}
	}
	switch {
	case oe.StatusCode >= http.StatusInternalServerError:
		return &TemporaryError{Err: err}
	case oe.StatusCode == http.StatusBadRequest, oe.StatusCode == http.StatusPaymentRequired:
		return &DeclineError{Code: oe.Code, Reason: oe.Message}
	default:
		return err
	}
}
