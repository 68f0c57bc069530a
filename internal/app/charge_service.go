package app

import (
	"context"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kojjob/property-marketplace-sub000/internal/clock"
	"github.com/kojjob/property-marketplace-sub000/internal/domain"
	"github.com/kojjob/property-marketplace-sub000/internal/events"
	"github.com/kojjob/property-marketplace-sub000/internal/gateway"
)

const (
	platformFeePercent  = 5
	processingFeeCents  = 300
	chargeIdempotencyNS = "charge"
)

// Fees is the informational breakdown of what the platform keeps from a
// charge. It is stored as the payment's service fee, never added on top.
type Fees struct {
	PlatformCents   int64
	ProcessingCents int64
}

func (f Fees) Total() int64 { return f.PlatformCents + f.ProcessingCents }

func ComputeFees(amountCents int64) Fees {
	return Fees{
		PlatformCents:   domain.PercentOf(amountCents, platformFeePercent),
		ProcessingCents: processingFeeCents,
	}
}

type ChargeInput struct {
	BookingID       string
	AmountCents     int64
	PaymentMethodID string
	Currency        string
}

type ChargeResult struct {
	Payment  domain.Payment
	Fees     Fees
	IntentID string
}

// ChargeService charges a booking through the gateway and records the
// captured money in the ledger.
type ChargeService struct {
	ledger   *Ledger
	repo     LedgerRepository
	gateway  PaymentGateway
	clock    clock.Clock
	notifier Notifier
	logger   logrus.FieldLogger
}

type ChargeServiceOption func(*ChargeService)

func WithChargeNotifier(n Notifier) ChargeServiceOption {
	return func(s *ChargeService) {
		if n != nil {
			s.notifier = n
		}
	}
}

func WithChargeLogger(l logrus.FieldLogger) ChargeServiceOption {
	return func(s *ChargeService) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewChargeService(ledger *Ledger, opts ...ChargeServiceOption) *ChargeService {
	svc := &ChargeService{
		ledger:   ledger,
		repo:     ledger.repo,
		gateway:  ledger.gateway,
		clock:    ledger.clock,
		notifier: ledger.notifier,
		logger:   ledger.logger,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// ChargeBooking holds the booking row lock from validation through the
// gateway call to the insert, so concurrent charges on one booking run one
// after another and a second full payment is rejected before it reaches the
// gateway. A charge the gateway refuses leaves no rows behind.
func (s *ChargeService) ChargeBooking(ctx context.Context, in ChargeInput) (result ChargeResult, err error) {
	ctx, span := tracer.Start(ctx, "ChargeService.ChargeBooking")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(
		attribute.String("booking.id", in.BookingID),
		attribute.Int64("payment.amount_cents", in.AmountCents),
	)

	if in.AmountCents <= 0 {
		return ChargeResult{}, domain.ErrInvalidAmount
	}
	if in.AmountCents > domain.MaxAmountCents {
		return ChargeResult{}, domain.ErrAmountTooLarge
	}
	if in.PaymentMethodID == "" {
		return ChargeResult{}, domain.ErrMissingMethod
	}

	fees := ComputeFees(in.AmountCents)
	now := s.clock.Now()
	var captured *gateway.Intent

	err = s.repo.WithTx(ctx, func(txCtx context.Context) error {
		booking, err := s.repo.GetBookingForUpdate(txCtx, in.BookingID)
		if err != nil {
			return err
		}

		paymentType := domain.PaymentTypeDeposit
		if in.AmountCents >= booking.TotalAmount {
			paymentType = domain.PaymentTypeFullPayment
		}

		p := domain.Payment{
			ID:         newID(),
			BookingID:  booking.ID,
			PayerID:    booking.TenantID,
			PayeeID:    booking.LandlordID,
			Amount:     in.AmountCents,
			Currency:   in.Currency,
			Status:     domain.PaymentStatusPending,
			Type:       paymentType,
			Method:     in.PaymentMethodID,
			ServiceFee: fees.Total(),
			Version:    1,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.ledger.prepare(txCtx, &p, booking); err != nil {
			return err
		}

		intent, err := s.ledger.callGateway(txCtx, gateway.IntentRequest{
			AmountCents:     p.Amount,
			Currency:        p.Currency,
			PaymentMethodID: in.PaymentMethodID,
			IdempotencyKey:  chargeIdempotencyNS + ":" + booking.ID + ":" + p.ID,
			Metadata: map[string]string{
				"booking_id": booking.ID,
				"payment_id": p.ID,
			},
		})
		if err != nil {
			return gatewayError(err)
		}
		if intent.Status != gateway.StatusSucceeded {
			return gatewayError(intentNotSucceeded(intent))
		}
		captured = &intent

		p.GatewayReference = intent.ID
		if err := p.TransitionTo(domain.PaymentStatusCompleted, now); err != nil {
			return err
		}
		if err := s.ledger.insert(txCtx, &p); err != nil {
			return err
		}
		if err := s.ledger.refreshPaymentStatus(txCtx, booking); err != nil {
			return err
		}

		result = ChargeResult{Payment: p, Fees: fees, IntentID: intent.ID}
		return nil
	})
	if err != nil {
		if captured != nil {
			s.logger.WithFields(logrus.Fields{
				"booking_id": in.BookingID,
				"intent_id":  captured.ID,
				"amount":     captured.AmountCents,
				"error":      err.Error(),
			}).Error("gateway captured a charge that was not recorded, reconcile manually")
		}
		return ChargeResult{}, err
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id":     result.Payment.BookingID,
		"payment_id":     result.Payment.ID,
		"payment_type":   result.Payment.Type,
		"platform_fee":   fees.PlatformCents,
		"processing_fee": fees.ProcessingCents,
	}).Info("booking charged")
	s.notifier.Fire(ctx, events.ForPayment(events.PaymentCompleted, result.Payment, now))
	return result, nil
}
