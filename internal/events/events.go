// Package events names the notifications emitted after booking and ledger
// changes commit.
package events

import (
	"time"

	"github.com/kojjob/property-marketplace-sub000/internal/domain"
)

const (
	BookingCreated   = "booking.created"
	BookingConfirmed = "booking.confirmed"
	BookingCancelled = "booking.cancelled"
	BookingCompleted = "booking.completed"

	PaymentCreated   = "payment.created"
	PaymentCompleted = "payment.completed"
	PaymentFailed    = "payment.failed"
	PaymentRefunded  = "payment.refunded"
)

// Event is the JSON payload published for every routing key.
type Event struct {
	Key        string         `json:"key"`
	BookingID  string         `json:"booking_id"`
	PaymentID  string         `json:"payment_id,omitempty"`
	ActorID    string         `json:"actor_id,omitempty"`
	Status     string         `json:"status"`
	Data       map[string]any `json:"data,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

func ForBooking(key string, b domain.Booking, actorID string, at time.Time) Event {
	ev := Event{
		Key:        key,
		BookingID:  b.ID,
		ActorID:    actorID,
		Status:     string(b.Status),
		OccurredAt: at,
		Data: map[string]any{
			"listing_id":     b.ListingID,
			"tenant_id":      b.TenantID,
			"landlord_id":    b.LandlordID,
			"check_in_date":  b.CheckIn.Format(time.DateOnly),
			"check_out_date": b.CheckOut.Format(time.DateOnly),
		},
	}
	if b.CancellationReason != "" {
		ev.Data["cancellation_reason"] = b.CancellationReason
	}
	return ev
}

func ForPayment(key string, p domain.Payment, at time.Time) Event {
	ev := Event{
		Key:        key,
		BookingID:  p.BookingID,
		PaymentID:  p.ID,
		Status:     string(p.Status),
		OccurredAt: at,
		Data: map[string]any{
			"transaction_id": p.TransactionID,
			"payment_type":   string(p.Type),
			"amount":         p.Amount,
			"currency":       p.Currency,
			"payer_id":       p.PayerID,
			"payee_id":       p.PayeeID,
		},
	}
	if p.FailureReason != "" {
		ev.Data["failure_reason"] = p.FailureReason
	}
	if p.OriginalPaymentID != "" {
		ev.Data["original_payment_id"] = p.OriginalPaymentID
	}
	return ev
}
