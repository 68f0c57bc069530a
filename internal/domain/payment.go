package domain

import (
	"regexp"
	"time"
)

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusRefunded   PaymentStatus = "refunded"
	PaymentStatusCancelled  PaymentStatus = "cancelled"
)

// CanTransitionTo reports whether the payment lifecycle allows s -> next.
// Every status is listed so a new one cannot slip through unhandled.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	switch s {
	case PaymentStatusPending:
		switch next {
		case PaymentStatusProcessing, PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusCancelled:
			return true
		}
		return false
	case PaymentStatusProcessing:
		return next == PaymentStatusCompleted || next == PaymentStatusFailed
	case PaymentStatusCompleted:
		return next == PaymentStatusRefunded
	case PaymentStatusCancelled, PaymentStatusRefunded, PaymentStatusFailed:
		return false
	default:
		return false
	}
}

func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case PaymentStatusCancelled, PaymentStatusRefunded, PaymentStatusFailed:
		return true
	}
	return false
}

// Processable reports whether process() does any work for a payment in s.
func (s PaymentStatus) Processable() bool {
	return s == PaymentStatusPending || s == PaymentStatusProcessing
}

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusProcessing, PaymentStatusCompleted,
		PaymentStatusFailed, PaymentStatusRefunded, PaymentStatusCancelled:
		return true
	}
	return false
}

type PaymentType string

const (
	PaymentTypeDeposit         PaymentType = "deposit"
	PaymentTypeFullPayment     PaymentType = "full_payment"
	PaymentTypeFinalPayment    PaymentType = "final_payment"
	PaymentTypeRefund          PaymentType = "refund"
	PaymentTypeSecurityDeposit PaymentType = "security_deposit"
	PaymentTypeAdditionalFee   PaymentType = "additional_fee"
)

func (t PaymentType) Valid() bool {
	switch t {
	case PaymentTypeDeposit, PaymentTypeFullPayment, PaymentTypeFinalPayment,
		PaymentTypeRefund, PaymentTypeSecurityDeposit, PaymentTypeAdditionalFee:
		return true
	}
	return false
}

var transactionIDPattern = regexp.MustCompile(`^PAY-[A-Z0-9]{10}$`)

// ValidTransactionID reports whether id has the PAY-XXXXXXXXXX shape.
func ValidTransactionID(id string) bool {
	return transactionIDPattern.MatchString(id)
}

// Payment is a ledger row. Amounts are minor currency units.
type Payment struct {
	ID                string
	BookingID         string
	PayerID           string
	PayeeID           string
	Amount            int64
	Currency          string
	Status            PaymentStatus
	Type              PaymentType
	Method            string
	ServiceFee        int64
	TransactionID     string
	GatewayReference  string
	OriginalPaymentID string
	ProcessedAt       *time.Time
	FailureReason     string
	RefundedAt        *time.Time
	Version           int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Normalize canonicalises fields before validation.
func (p *Payment) Normalize() {
	p.Currency = NormalizeCurrency(p.Currency)
	if p.Status == "" {
		p.Status = PaymentStatusPending
	}
}

// Validate checks the rules that need nothing but the row itself.
func (p Payment) Validate() error {
	if p.Amount <= 0 {
		return ErrInvalidAmount
	}
	if p.Amount > MaxAmountCents {
		return ErrAmountTooLarge
	}
	if p.ServiceFee < 0 || p.ServiceFee > MaxAmountCents {
		return ErrInvalidServiceFee
	}
	if !ValidCurrency(p.Currency) {
		return ErrInvalidCurrency
	}
	if !p.Type.Valid() {
		return ErrInvalidPaymentType
	}
	if p.PayerID == p.PayeeID {
		return ErrSamePayerPayee
	}
	return nil
}

// ValidateForBooking checks the rules that depend on the owning booking.
// isNew gates the booking-status rule, which only applies at creation.
// Refund rows are exempt from it: money goes back after a cancellation too.
func (p Payment) ValidateForBooking(b Booking, isNew bool) error {
	if p.Type == PaymentTypeFullPayment && p.Amount != b.TotalAmount {
		return ErrFullPaymentMismatch
	}
	if isNew && p.Type != PaymentTypeRefund && !b.Status.Payable() {
		return ErrBookingNotPayable
	}
	return nil
}

// NetAmount is the amount left after the service fee. It is not clamped.
func (p Payment) NetAmount() int64 {
	return p.Amount - p.ServiceFee
}

// TransitionTo applies next when the lifecycle allows it.
func (p *Payment) TransitionTo(next PaymentStatus, now time.Time) error {
	if !p.Status.CanTransitionTo(next) {
		return ErrInvalidTransition
	}
	p.Status = next
	p.UpdatedAt = now
	switch next {
	case PaymentStatusCompleted:
		t := now
		p.ProcessedAt = &t
	case PaymentStatusRefunded:
		t := now
		p.RefundedAt = &t
	}
	return nil
}

// Fail moves the payment to failed and records reason.
func (p *Payment) Fail(reason string, now time.Time) error {
	if err := p.TransitionTo(PaymentStatusFailed, now); err != nil {
		return err
	}
	p.FailureReason = reason
	return nil
}
