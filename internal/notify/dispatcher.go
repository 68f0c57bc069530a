// Package notify delivers committed booking and ledger events to external
// sinks without holding up the request that produced them.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kojjob/property-marketplace-sub000/internal/events"
)

// Sink receives one event. Implementations must honour ctx cancellation.
type Sink interface {
	Publish(ctx context.Context, ev events.Event) error
}

// Dispatcher fans every event out to its sinks, each in its own goroutine
// with a bounded timeout. Failures are logged and dropped.
type Dispatcher struct {
	sinks   []Sink
	timeout time.Duration
	logger  logrus.FieldLogger
	wg      sync.WaitGroup
}

func NewDispatcher(logger logrus.FieldLogger, timeout time.Duration, sinks ...Sink) *Dispatcher {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	active := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			active = append(active, s)
		}
	}
	return &Dispatcher{sinks: active, timeout: timeout, logger: logger}
}

// Fire returns immediately. The request context only contributes its values;
// its cancellation does not reach the sinks.
func (d *Dispatcher) Fire(ctx context.Context, ev events.Event) {
	base := context.WithoutCancel(ctx)
	for _, sink := range d.sinks {
		d.wg.Add(1)
		go d.deliver(base, sink, ev)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, sink Sink, ev events.Event) {
	defer d.wg.Done()

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("sink panic: %v", r)
			}
		}()
		return sink.Publish(ctx, ev)
	}()
	if err != nil {
		d.logger.WithFields(logrus.Fields{
			"event":      ev.Key,
			"booking_id": ev.BookingID,
			"payment_id": ev.PaymentID,
			"sink":       fmt.Sprintf("%T", sink),
			"error":      err.Error(),
		}).Warn("event delivery failed")
	}
}

// Wait blocks until in-flight deliveries finish or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LogSink writes every event to the logger at debug level. It is the sink of
// last resort when no broker or journal is configured.
type LogSink struct {
	Logger logrus.FieldLogger
}

func (s LogSink) Publish(_ context.Context, ev events.Event) error {
	s.Logger.WithFields(logrus.Fields{
		"event":      ev.Key,
		"booking_id": ev.BookingID,
		"payment_id": ev.PaymentID,
		"status":     ev.Status,
	}).Debug("event")
	return nil
}
