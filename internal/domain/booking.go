package domain

import "time"

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusCompleted BookingStatus = "completed"
)

// CanTransitionTo reports whether the booking lifecycle allows s -> next.
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	switch s {
	case BookingStatusPending:
		return next == BookingStatusConfirmed || next == BookingStatusCancelled
	case BookingStatusConfirmed:
		return next == BookingStatusCancelled || next == BookingStatusCompleted
	case BookingStatusCancelled, BookingStatusCompleted:
		return false
	default:
		return false
	}
}

func (s BookingStatus) IsTerminal() bool {
	return s == BookingStatusCancelled || s == BookingStatusCompleted
}

// BlocksCalendar reports whether a booking in this status holds its dates.
func (s BookingStatus) BlocksCalendar() bool {
	return s == BookingStatusPending || s == BookingStatusConfirmed
}

// Payable reports whether payments may be created against a booking in this status.
func (s BookingStatus) Payable() bool {
	return s == BookingStatusConfirmed || s == BookingStatusCompleted
}

type BookingPaymentStatus string

const (
	BookingUnpaid        BookingPaymentStatus = "unpaid"
	BookingPartiallyPaid BookingPaymentStatus = "partially_paid"
	BookingPaid          BookingPaymentStatus = "paid"
)

// DerivePaymentStatus computes a booking's payment status from the cents
// collected by completed payments.
func DerivePaymentStatus(paidCents, totalCents int64) BookingPaymentStatus {
	switch {
	case paidCents >= totalCents && paidCents > 0:
		return BookingPaid
	case paidCents > 0:
		return BookingPartiallyPaid
	default:
		return BookingUnpaid
	}
}

type Booking struct {
	ID                 string
	ListingID          string
	TenantID           string
	LandlordID         string
	CheckIn            time.Time
	CheckOut           time.Time
	GuestsCount        int
	TotalAmount        int64
	Currency           string
	Status             BookingStatus
	PaymentStatus      BookingPaymentStatus
	CancellationReason string
	Version            int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Nights is the number of nights between check-in and check-out.
func (b Booking) Nights() int {
	return NightsBetween(b.CheckIn, b.CheckOut)
}

// Overlaps applies the inclusive interval test: a stay ending on day N
// conflicts with one starting on day N.
func (b Booking) Overlaps(checkIn, checkOut time.Time) bool {
	return !b.CheckIn.After(checkOut) && !b.CheckOut.Before(checkIn)
}

// Confirm moves a pending booking to confirmed. Only the landlord may confirm.
func (b *Booking) Confirm(actorID string, now time.Time) bool {
	if actorID == "" || actorID != b.LandlordID {
		return false
	}
	return b.moveTo(BookingStatusConfirmed, now)
}

// Cancel records reason and cancels a pending or confirmed booking.
// Tenant or landlord may cancel.
func (b *Booking) Cancel(actorID, reason string, now time.Time) bool {
	if !b.IsParty(actorID) {
		return false
	}
	if !b.moveTo(BookingStatusCancelled, now) {
		return false
	}
	b.CancellationReason = reason
	return true
}

// Complete marks a confirmed stay as finished. Landlord only.
func (b *Booking) Complete(actorID string, now time.Time) bool {
	if actorID == "" || actorID != b.LandlordID {
		return false
	}
	return b.moveTo(BookingStatusCompleted, now)
}

func (b Booking) IsParty(actorID string) bool {
	return actorID != "" && (actorID == b.TenantID || actorID == b.LandlordID)
}

func (b *Booking) moveTo(next BookingStatus, now time.Time) bool {
	if !b.Status.CanTransitionTo(next) {
		return false
	}
	b.Status = next
	b.UpdatedAt = now
	return true
}

// DateOnly truncates t to midnight UTC.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func NightsBetween(checkIn, checkOut time.Time) int {
	return int(DateOnly(checkOut).Sub(DateOnly(checkIn)).Hours() / 24)
}
