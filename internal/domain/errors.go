package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an Error for callers that need to react to a family of
// failures rather than a single code.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindConflict
	KindState
	KindGateway
	KindIntegrity
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindState:
		return "state"
	case KindGateway:
		return "gateway"
	case KindIntegrity:
		return "integrity"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Error is the typed failure returned by every booking and ledger operation.
// Two Errors match under errors.Is when their codes are equal.
type Error struct {
	Kind  Kind
	Code  string
	Field string
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Msg)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

// Invalid builds a field-attributed validation error.
func Invalid(field, code, msg string) *Error {
	return &Error{Kind: KindValidation, Code: code, Field: field, Msg: msg}
}

// Declined wraps a gateway refusal, keeping the processor's reason as the message.
func Declined(reason string, cause error) *Error {
	if reason == "" {
		reason = "payment declined"
	}
	return &Error{Kind: KindGateway, Code: ErrPaymentDeclined.Code, Msg: reason, Err: cause}
}

// KindOf reports the Kind of err, or zero when err is not a domain Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

var (
	ErrInvalidID = &Error{Kind: KindNotFound, Code: "invalid_id", Msg: "invalid id"}

	ErrListingNotFound = &Error{Kind: KindNotFound, Code: "listing_not_found", Msg: "listing not found"}
	ErrBookingNotFound = &Error{Kind: KindNotFound, Code: "booking_not_found", Msg: "booking not found"}
	ErrPaymentNotFound = &Error{Kind: KindNotFound, Code: "payment_not_found", Msg: "payment not found"}

	ErrInvalidDates    = Invalid("check_out_date", "invalid_dates", "check-out date must be after check-in date")
	ErrCheckInPast     = Invalid("check_in_date", "check_in_in_past", "check-in date cannot be in the past")
	ErrInvalidGuests   = Invalid("guests_count", "invalid_guests", "guest count is outside the listing's limits")
	ErrListingInactive = Invalid("listing_id", "listing_inactive", "listing is not available for booking")
	ErrMissingActor    = Invalid("actor_id", "missing_actor", "an acting user is required")
	ErrOwnListing      = Invalid("listing_id", "own_listing", "landlords cannot book their own listing")

	ErrInvalidAmount       = Invalid("amount", "invalid_amount", "amount must be greater than 0")
	ErrAmountTooLarge      = Invalid("amount", "amount_too_large", "amount exceeds the supported maximum")
	ErrInvalidServiceFee   = Invalid("service_fee", "invalid_service_fee", "service fee must be greater than or equal to 0")
	ErrInvalidCurrency     = Invalid("currency", "invalid_currency", "currency must be a supported 3-letter ISO code")
	ErrInvalidPaymentType  = Invalid("payment_type", "invalid_payment_type", "unknown payment type")
	ErrSamePayerPayee      = Invalid("payee_id", "payer_is_payee", "payer and payee must be different")
	ErrFullPaymentMismatch = Invalid("amount", "full_payment_mismatch", "full payment must equal the booking total")
	ErrBookingNotPayable   = Invalid("booking_id", "booking_not_payable", "booking must be confirmed or completed for payment")
	ErrInvalidRefund       = Invalid("amount", "invalid_refund_amount", "refund amount must be greater than 0 and at most the original amount")
	ErrRefundExceeds       = Invalid("amount", "refund_exceeds_remaining", "refund exceeds remaining refundable amount")
	ErrInvalidInitialState = Invalid("status", "invalid_initial_status", "payments are created pending or completed")
	ErrMissingMethod       = Invalid("payment_method", "missing_payment_method", "payment method is required")

	ErrDatesUnavailable     = &Error{Kind: KindConflict, Code: "dates_unavailable", Msg: "these dates are not available"}
	ErrDuplicateFullPayment = &Error{Kind: KindConflict, Code: "duplicate_full_payment", Msg: "booking already has a full payment"}
	ErrTransactionIDTaken   = &Error{Kind: KindConflict, Code: "transaction_id_taken", Msg: "transaction id already issued"}

	ErrInvalidTransition = &Error{Kind: KindState, Code: "invalid_transition", Msg: "transition not allowed from current status"}
	ErrNotAuthorized     = &Error{Kind: KindState, Code: "forbidden", Msg: "actor may not perform this transition"}
	ErrNotRefundable     = &Error{Kind: KindState, Code: "payment_not_refundable", Msg: "only completed payments can be refunded"}
	ErrStaleWrite        = &Error{Kind: KindState, Code: "stale_write", Msg: "record changed concurrently, retry"}

	ErrPaymentDeclined    = &Error{Kind: KindGateway, Code: "payment_declined", Msg: "payment declined"}
	ErrGatewayUnavailable = &Error{Kind: KindGateway, Code: "gateway_unavailable", Msg: "payment gateway unavailable"}
	ErrGatewayFailure     = &Error{Kind: KindGateway, Code: "gateway_error", Msg: "payment gateway error"}

	ErrRefundOverLimit = &Error{Kind: KindIntegrity, Code: "refund_over_limit", Msg: "refunds exceed original payment amount"}
)
