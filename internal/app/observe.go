package app

import (
	"context"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kojjob/property-marketplace-sub000/internal/events"
)

var tracer = otel.Tracer("github.com/kojjob/property-marketplace-sub000/internal/app")

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Notifier receives events after the transaction that produced them commits.
// Fire must not block and must not report delivery failures.
type Notifier interface {
	Fire(ctx context.Context, ev events.Event)
}

type nopNotifier struct{}

func (nopNotifier) Fire(context.Context, events.Event) {}

func defaultLogger() logrus.FieldLogger {
	return logrus.StandardLogger()
}
