package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kojjob/property-marketplace-sub000/internal/clock"
	"github.com/kojjob/property-marketplace-sub000/internal/domain"
	"github.com/kojjob/property-marketplace-sub000/internal/events"
	"github.com/kojjob/property-marketplace-sub000/internal/gateway"
)

type LedgerRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetBookingForUpdate(ctx context.Context, bookingID string) (domain.Booking, error)
	GetPayment(ctx context.Context, paymentID string) (domain.Payment, error)
	GetPaymentForUpdate(ctx context.Context, paymentID string) (domain.Payment, error)
	ListPayments(ctx context.Context, bookingID string) ([]domain.Payment, error)
	HasFullPayment(ctx context.Context, bookingID string) (bool, error)
	// InsertPayment returns domain.ErrTransactionIDTaken when the transaction
	// id collides and domain.ErrDuplicateFullPayment when a second
	// full_payment row would be created for the booking.
	InsertPayment(ctx context.Context, p domain.Payment) error
	UpdatePayment(ctx context.Context, p domain.Payment, prevVersion int) error
	// SumRefunds totals the completed refund rows pointing at originalID.
	SumRefunds(ctx context.Context, originalID string) (int64, error)
	// SumCollected totals completed non-refund payments of a booking.
	SumCollected(ctx context.Context, bookingID string) (int64, error)
	UpdateBookingPaymentStatus(ctx context.Context, bookingID string, status domain.BookingPaymentStatus) error
}

type PaymentGateway interface {
	CreatePaymentIntent(ctx context.Context, req gateway.IntentRequest) (gateway.Intent, error)
}

// Ledger owns the payment lifecycle: creation, processing and refunds.
type Ledger struct {
	repo     LedgerRepository
	gateway  PaymentGateway
	ids      TransactionIDs
	clock    clock.Clock
	notifier Notifier
	logger   logrus.FieldLogger
}

type LedgerOption func(*Ledger)

func WithTransactionIDs(ids TransactionIDs) LedgerOption {
	return func(l *Ledger) {
		if ids != nil {
			l.ids = ids
		}
	}
}

func WithLedgerNotifier(n Notifier) LedgerOption {
	return func(l *Ledger) {
		if n != nil {
			l.notifier = n
		}
	}
}

func WithLedgerLogger(log logrus.FieldLogger) LedgerOption {
	return func(l *Ledger) {
		if log != nil {
			l.logger = log
		}
	}
}

func NewLedger(repo LedgerRepository, gw PaymentGateway, clk clock.Clock, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		repo:     repo,
		gateway:  gw,
		ids:      NewTransactionIDs(),
		clock:    clk,
		notifier: nopNotifier{},
		logger:   defaultLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type CreatePaymentInput struct {
	BookingID string
	// PayerID and PayeeID default to the booking's tenant and landlord.
	PayerID    string
	PayeeID    string
	Amount     float64
	ServiceFee *float64
	Currency   string
	Type       domain.PaymentType
	Method     string
	// Status is pending when empty. Completed records money already collected.
	Status domain.PaymentStatus
}

// PaymentSummary is a payment with its derived amounts.
type PaymentSummary struct {
	Payment   domain.Payment
	NetAmount int64
	Refunded  int64
}

func (l *Ledger) CreatePayment(ctx context.Context, in CreatePaymentInput) (domain.Payment, error) {
	if in.Status != "" && in.Status != domain.PaymentStatusPending && in.Status != domain.PaymentStatusCompleted {
		return domain.Payment{}, domain.ErrInvalidInitialState
	}
	if in.Type == domain.PaymentTypeRefund {
		return domain.Payment{}, domain.ErrInvalidPaymentType
	}
	amount, err := domain.ToCents(in.Amount)
	if err != nil {
		return domain.Payment{}, err
	}
	var serviceFee int64
	if in.ServiceFee != nil {
		if serviceFee, err = domain.ToCents(*in.ServiceFee); err != nil {
			return domain.Payment{}, domain.ErrInvalidServiceFee
		}
	}

	now := l.clock.Now()
	var result domain.Payment

	err = l.repo.WithTx(ctx, func(txCtx context.Context) error {
		booking, err := l.repo.GetBookingForUpdate(txCtx, in.BookingID)
		if err != nil {
			return err
		}

		p := domain.Payment{
			ID:         newID(),
			BookingID:  booking.ID,
			PayerID:    firstNonEmpty(in.PayerID, booking.TenantID),
			PayeeID:    firstNonEmpty(in.PayeeID, booking.LandlordID),
			Amount:     amount,
			ServiceFee: serviceFee,
			Currency:   in.Currency,
			Status:     domain.PaymentStatusPending,
			Type:       in.Type,
			Method:     in.Method,
			Version:    1,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if in.Status == domain.PaymentStatusCompleted {
			if err := p.TransitionTo(domain.PaymentStatusCompleted, now); err != nil {
				return err
			}
		}

		if err := l.prepare(txCtx, &p, booking); err != nil {
			return err
		}
		if err := l.insert(txCtx, &p); err != nil {
			return err
		}
		if p.Status == domain.PaymentStatusCompleted {
			if err := l.refreshPaymentStatus(txCtx, booking); err != nil {
				return err
			}
		}
		result = p
		return nil
	})
	if err != nil {
		return domain.Payment{}, err
	}

	l.notifier.Fire(ctx, events.ForPayment(events.PaymentCreated, result, now))
	if result.Status == domain.PaymentStatusCompleted {
		l.notifier.Fire(ctx, events.ForPayment(events.PaymentCompleted, result, now))
	}
	return result, nil
}

// ProcessPayment charges a pending payment through the gateway. Terminal
// payments are returned untouched. A declined or failed charge is recorded
// on the row and returned together with a gateway error.
func (l *Ledger) ProcessPayment(ctx context.Context, paymentID string) (result domain.Payment, err error) {
	ctx, span := tracer.Start(ctx, "Ledger.ProcessPayment")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("payment.id", paymentID))

	claimed, skip, err := l.claim(ctx, paymentID)
	if err != nil {
		return domain.Payment{}, err
	}
	if skip {
		return claimed, nil
	}

	intent, gwErr := l.callGateway(ctx, gateway.IntentRequest{
		AmountCents:     claimed.Amount,
		Currency:        claimed.Currency,
		PaymentMethodID: claimed.Method,
		IdempotencyKey:  claimed.TransactionID,
		Metadata: map[string]string{
			"booking_id":     claimed.BookingID,
			"transaction_id": claimed.TransactionID,
		},
	})
	if gwErr == nil && intent.Status != gateway.StatusSucceeded {
		gwErr = intentNotSucceeded(intent)
	}

	now := l.clock.Now()
	err = l.repo.WithTx(ctx, func(txCtx context.Context) error {
		p, err := l.repo.GetPaymentForUpdate(txCtx, paymentID)
		if err != nil {
			return err
		}
		if p.Version != claimed.Version {
			return domain.ErrStaleWrite
		}
		prev := p.Version
		p.GatewayReference = intent.ID
		if gwErr != nil {
			if err := p.Fail(failureReason(gwErr), now); err != nil {
				return err
			}
		} else if err := p.TransitionTo(domain.PaymentStatusCompleted, now); err != nil {
			return err
		}
		if err := l.repo.UpdatePayment(txCtx, p, prev); err != nil {
			return err
		}
		p.Version = prev + 1

		if p.Status == domain.PaymentStatusCompleted {
			booking, err := l.repo.GetBookingForUpdate(txCtx, p.BookingID)
			if err != nil {
				return err
			}
			if err := l.refreshPaymentStatus(txCtx, booking); err != nil {
				return err
			}
		}
		result = p
		return nil
	})
	if err != nil {
		if gwErr == nil && intent.ID != "" {
			l.logger.WithFields(logrus.Fields{
				"payment_id": claimed.ID,
				"booking_id": claimed.BookingID,
				"intent_id":  intent.ID,
				"amount":     claimed.Amount,
				"error":      err.Error(),
			}).Error("gateway captured a charge that was not recorded, reconcile manually")
		}
		return domain.Payment{}, err
	}

	if gwErr != nil {
		l.logger.WithFields(logrus.Fields{
			"payment_id": result.ID,
			"booking_id": result.BookingID,
			"reason":     result.FailureReason,
		}).Warn("payment processing failed")
		l.notifier.Fire(ctx, events.ForPayment(events.PaymentFailed, result, now))
		return result, gatewayError(gwErr)
	}
	l.notifier.Fire(ctx, events.ForPayment(events.PaymentCompleted, result, now))
	return result, nil
}

// claim moves a processable payment to processing and bumps its version so a
// concurrent processor cannot finalize it.
func (l *Ledger) claim(ctx context.Context, paymentID string) (domain.Payment, bool, error) {
	now := l.clock.Now()
	var claimed domain.Payment
	skip := false

	err := l.repo.WithTx(ctx, func(txCtx context.Context) error {
		p, err := l.repo.GetPaymentForUpdate(txCtx, paymentID)
		if err != nil {
			return err
		}
		if !p.Status.Processable() {
			claimed = p
			skip = true
			return nil
		}
		if p.Method == "" {
			return domain.ErrMissingMethod
		}
		prev := p.Version
		if p.Status == domain.PaymentStatusPending {
			if err := p.TransitionTo(domain.PaymentStatusProcessing, now); err != nil {
				return err
			}
		}
		p.UpdatedAt = now
		if err := l.repo.UpdatePayment(txCtx, p, prev); err != nil {
			return err
		}
		p.Version = prev + 1
		claimed = p
		return nil
	})
	return claimed, skip, err
}

type RefundInput struct {
	PaymentID string
	// Amount in cents. Nil refunds the full original amount.
	Amount *int64
}

// RefundPayment records money returned to the payer as a new refund row.
// The original only moves to refunded when a single refund covers its whole
// amount.
func (l *Ledger) RefundPayment(ctx context.Context, in RefundInput) (result domain.Payment, err error) {
	ctx, span := tracer.Start(ctx, "Ledger.RefundPayment")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("payment.id", in.PaymentID))

	now := l.clock.Now()
	var original domain.Payment

	err = l.repo.WithTx(ctx, func(txCtx context.Context) error {
		orig, err := l.repo.GetPaymentForUpdate(txCtx, in.PaymentID)
		if err != nil {
			return err
		}
		if orig.Status != domain.PaymentStatusCompleted || orig.Type == domain.PaymentTypeRefund {
			return domain.ErrNotRefundable
		}

		amount := orig.Amount
		if in.Amount != nil {
			amount = *in.Amount
		}
		if amount <= 0 || amount > orig.Amount {
			return domain.ErrInvalidRefund
		}

		refunded, err := l.repo.SumRefunds(txCtx, orig.ID)
		if err != nil {
			return err
		}
		if refunded+amount > orig.Amount {
			return domain.ErrRefundExceeds
		}

		booking, err := l.repo.GetBookingForUpdate(txCtx, orig.BookingID)
		if err != nil {
			return err
		}

		refund := domain.Payment{
			ID:                newID(),
			BookingID:         orig.BookingID,
			PayerID:           orig.PayeeID,
			PayeeID:           orig.PayerID,
			Amount:            amount,
			Currency:          orig.Currency,
			Status:            domain.PaymentStatusCompleted,
			Type:              domain.PaymentTypeRefund,
			Method:            orig.Method,
			OriginalPaymentID: orig.ID,
			ProcessedAt:       &now,
			Version:           1,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := l.prepare(txCtx, &refund, booking); err != nil {
			return err
		}
		if err := l.insert(txCtx, &refund); err != nil {
			return err
		}

		total, err := l.repo.SumRefunds(txCtx, orig.ID)
		if err != nil {
			return err
		}
		if total > orig.Amount {
			l.logger.WithFields(logrus.Fields{
				"payment_id": orig.ID,
				"booking_id": orig.BookingID,
				"original":   orig.Amount,
				"refunded":   total,
			}).Error("refund total exceeds original payment, rolling back")
			return domain.ErrRefundOverLimit
		}

		if amount == orig.Amount {
			prev := orig.Version
			if err := orig.TransitionTo(domain.PaymentStatusRefunded, now); err != nil {
				return err
			}
			if err := l.repo.UpdatePayment(txCtx, orig, prev); err != nil {
				return err
			}
			orig.Version = prev + 1
		}
		if err := l.refreshPaymentStatus(txCtx, booking); err != nil {
			return err
		}

		original = orig
		result = refund
		return nil
	})
	if err != nil {
		return domain.Payment{}, err
	}

	l.logger.WithFields(logrus.Fields{
		"payment_id":      original.ID,
		"refund_id":       result.ID,
		"amount":          result.Amount,
		"original_status": original.Status,
	}).Info("payment refunded")
	l.notifier.Fire(ctx, events.ForPayment(events.PaymentRefunded, result, now))
	return result, nil
}

func (l *Ledger) GetPayment(ctx context.Context, paymentID string) (PaymentSummary, error) {
	p, err := l.repo.GetPayment(ctx, paymentID)
	if err != nil {
		return PaymentSummary{}, err
	}
	summary := PaymentSummary{Payment: p, NetAmount: p.NetAmount()}
	if p.Type != domain.PaymentTypeRefund {
		refunded, err := l.repo.SumRefunds(ctx, p.ID)
		if err != nil {
			return PaymentSummary{}, err
		}
		summary.Refunded = refunded
	}
	return summary, nil
}

func (l *Ledger) ListPayments(ctx context.Context, bookingID string) ([]domain.Payment, error) {
	return l.repo.ListPayments(ctx, bookingID)
}

// prepare runs normalization and every creation rule against p.
func (l *Ledger) prepare(ctx context.Context, p *domain.Payment, booking domain.Booking) error {
	p.Normalize()
	if err := p.Validate(); err != nil {
		return err
	}
	if err := p.ValidateForBooking(booking, true); err != nil {
		return err
	}
	if p.Type == domain.PaymentTypeFullPayment {
		exists, err := l.repo.HasFullPayment(ctx, booking.ID)
		if err != nil {
			return err
		}
		if exists {
			return domain.ErrDuplicateFullPayment
		}
	}
	return nil
}

// insert assigns a transaction id and persists p, drawing a new id when the
// storage layer reports a collision.
func (l *Ledger) insert(ctx context.Context, p *domain.Payment) error {
	for attempt := 0; attempt < maxTransactionIDTries; attempt++ {
		id, err := l.ids.Next()
		if err != nil {
			return err
		}
		p.TransactionID = id
		err = l.repo.InsertPayment(ctx, *p)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrTransactionIDTaken) {
			return err
		}
		l.logger.WithField("transaction_id", id).Warn("transaction id collision, reissuing")
	}
	return fmt.Errorf("issue transaction id: no unique id after %d attempts", maxTransactionIDTries)
}

func (l *Ledger) refreshPaymentStatus(ctx context.Context, booking domain.Booking) error {
	collected, err := l.repo.SumCollected(ctx, booking.ID)
	if err != nil {
		return err
	}
	status := domain.DerivePaymentStatus(collected, booking.TotalAmount)
	if status == booking.PaymentStatus {
		return nil
	}
	return l.repo.UpdateBookingPaymentStatus(ctx, booking.ID, status)
}

// callGateway converts a panicking gateway into an ordinary error.
func (l *Ledger) callGateway(ctx context.Context, req gateway.IntentRequest) (intent gateway.Intent, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("gateway panic: %v", r)
		}
	}()
	return l.gateway.CreatePaymentIntent(ctx, req)
}

func intentNotSucceeded(intent gateway.Intent) error {
	reason := intent.FailureReason
	if reason == "" {
		reason = "payment intent " + string(intent.Status)
	}
	return &gateway.DeclineError{Code: string(intent.Status), Reason: reason}
}

func failureReason(err error) string {
	var decline *gateway.DeclineError
	if errors.As(err, &decline) && decline.Reason != "" {
		return decline.Reason
	}
	return err.Error()
}

// gatewayError maps gateway failures onto the domain taxonomy.
func gatewayError(err error) error {
	var decline *gateway.DeclineError
	switch {
	case errors.As(err, &decline):
		return domain.Declined(decline.Reason, err)
	case errors.Is(err, gateway.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		return &domain.Error{Kind: domain.KindGateway, Code: domain.ErrGatewayUnavailable.Code, Msg: domain.ErrGatewayUnavailable.Msg, Err: err}
	default:
		return &domain.Error{Kind: domain.KindGateway, Code: domain.ErrGatewayFailure.Code, Msg: domain.ErrGatewayFailure.Msg, Err: err}
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
