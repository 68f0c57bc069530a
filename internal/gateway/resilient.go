package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	defaultTimeout    = 10 * time.Second
	defaultMaxRetries = 2
	defaultBackoff    = 200 * time.Millisecond
	defaultTripAfter  = 5
)

var tracer = otel.Tracer("github.com/kojjob/property-marketplace-sub000/internal/gateway")

// Resilient bounds every call with a timeout, retries temporary failures
// with exponential backoff and stops calling a failing processor through a
// circuit breaker. Declines count as successful calls for the breaker.
type Resilient struct {
	next       PaymentGateway
	cb         *gobreaker.CircuitBreaker
	timeout    time.Duration
	maxRetries int
	backoff    time.Duration
	tripAfter  uint32
	openFor    time.Duration
	logger     logrus.FieldLogger
	sleep      func(ctx context.Context, d time.Duration) error
}

type Option func(*Resilient)

func WithTimeout(d time.Duration) Option {
	return func(r *Resilient) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithRetries sets how many times a temporary failure is retried. Zero disables retries.
func WithRetries(n int) Option {
	return func(r *Resilient) {
		if n >= 0 {
			r.maxRetries = n
		}
	}
}

func WithBackoff(d time.Duration) Option {
	return func(r *Resilient) {
		if d >= 0 {
			r.backoff = d
		}
	}
}

// WithBreaker trips the circuit after n consecutive failures and keeps it open for openFor.
func WithBreaker(n uint32, openFor time.Duration) Option {
	return func(r *Resilient) {
		if n > 0 {
			r.tripAfter = n
		}
		if openFor > 0 {
			r.openFor = openFor
		}
	}
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(r *Resilient) {
		if l != nil {
			r.logger = l
		}
	}
}

func NewResilient(next PaymentGateway, opts ...Option) *Resilient {
	r := &Resilient{
		next:       next,
		timeout:    defaultTimeout,
		maxRetries: defaultMaxRetries,
		backoff:    defaultBackoff,
		tripAfter:  defaultTripAfter,
		openFor:    30 * time.Second,
		logger:     logrus.StandardLogger(),
		sleep:      sleepCtx,
	}
	for _, opt := range opts {
		opt(r)
	}

	r.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "payment-gateway",
		MaxRequests: 1,
		Timeout:     r.openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= r.tripAfter
		},
		IsSuccessful: func(err error) bool {
			return err == nil || IsDecline(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			r.logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("circuit breaker state changed")
		},
	})
	return r
}

func (r *Resilient) CreatePaymentIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	ctx, span := tracer.Start(ctx, "gateway.CreatePaymentIntent")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("payment.amount_cents", req.AmountCents),
		attribute.String("payment.currency", req.Currency),
	)

	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			wait := r.backoff << (attempt - 1)
			if err := r.sleep(ctx, wait); err != nil {
				break
			}
			r.logger.WithFields(logrus.Fields{
				"attempt": attempt,
				"error":   lastErr.Error(),
			}).Warn("retrying payment gateway call")
		}

		intent, err := r.attempt(ctx, req)
		if err == nil {
			span.SetAttributes(attribute.String("payment.intent_status", string(intent.Status)))
			return intent, nil
		}
		lastErr = err
		if !IsTemporary(err) || errors.Is(err, ErrUnavailable) {
			break
		}
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, lastErr.Error())
	if IsTemporary(lastErr) {
		return Intent{}, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
	}
	return Intent{}, lastErr
}

func (r *Resilient) attempt(ctx context.Context, req IntentRequest) (Intent, error) {
	res, err := r.cb.Execute(func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		return r.next.CreatePaymentIntent(callCtx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Intent{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if errors.Is(err, context.DeadlineExceeded) && !IsTemporary(err) {
			return Intent{}, &TemporaryError{Err: err}
		}
		return Intent{}, err
	}
	return res.(Intent), nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
