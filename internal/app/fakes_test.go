package app

import (
	"context"
	"sync"
	"time"

	"github.com/kojjob/property-marketplace-sub000/internal/domain"
	"github.com/kojjob/property-marketplace-sub000/internal/events"
)

type txMarker struct{}

// fakeStore is an in-memory BookingRepository and LedgerRepository. A
// transaction holds the store mutex for its whole duration and restores the
// previous state when fn fails, which stands in for row locks and rollback.
type fakeStore struct {
	mu       sync.Mutex
	listings map[string]domain.Listing
	bookings map[string]domain.Booking
	payments []domain.Payment

	lockedListings []string
	insertErr      error
	refundSumCalls int
	inflateRefunds func(call int) int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		listings: make(map[string]domain.Listing),
		bookings: make(map[string]domain.Booking),
	}
}

func (f *fakeStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txMarker{}) != nil {
		return fn(ctx)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	bookings := make(map[string]domain.Booking, len(f.bookings))
	for k, v := range f.bookings {
		bookings[k] = v
	}
	payments := append([]domain.Payment(nil), f.payments...)

	if err := fn(context.WithValue(ctx, txMarker{}, true)); err != nil {
		f.bookings = bookings
		f.payments = payments
		return err
	}
	return nil
}

func (f *fakeStore) guard(ctx context.Context) func() {
	if ctx.Value(txMarker{}) != nil {
		return func() {}
	}
	f.mu.Lock()
	return f.mu.Unlock
}

func (f *fakeStore) ListActiveBookings(ctx context.Context, listingID, excludeBookingID string) ([]domain.Booking, error) {
	defer f.guard(ctx)()
	var out []domain.Booking
	for _, b := range f.bookings {
		if b.ListingID != listingID || b.ID == excludeBookingID || !b.Status.BlocksCalendar() {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (f *fakeStore) LockListing(_ context.Context, listingID string) error {
	f.lockedListings = append(f.lockedListings, listingID)
	return nil
}

func (f *fakeStore) GetListing(ctx context.Context, listingID string) (domain.Listing, error) {
	defer f.guard(ctx)()
	l, ok := f.listings[listingID]
	if !ok {
		return domain.Listing{}, domain.ErrListingNotFound
	}
	return l, nil
}

func (f *fakeStore) CreateBooking(_ context.Context, booking domain.Booking) error {
	f.bookings[booking.ID] = booking
	return nil
}

func (f *fakeStore) GetBooking(ctx context.Context, bookingID string) (domain.Booking, error) {
	defer f.guard(ctx)()
	b, ok := f.bookings[bookingID]
	if !ok {
		return domain.Booking{}, domain.ErrBookingNotFound
	}
	return b, nil
}

func (f *fakeStore) GetBookingForUpdate(ctx context.Context, bookingID string) (domain.Booking, error) {
	return f.GetBooking(ctx, bookingID)
}

func (f *fakeStore) UpdateBookingStatus(_ context.Context, booking domain.Booking, prevVersion int) error {
	stored, ok := f.bookings[booking.ID]
	if !ok {
		return domain.ErrBookingNotFound
	}
	if stored.Version != prevVersion {
		return domain.ErrStaleWrite
	}
	stored.Status = booking.Status
	stored.CancellationReason = booking.CancellationReason
	stored.UpdatedAt = booking.UpdatedAt
	stored.Version = prevVersion + 1
	f.bookings[booking.ID] = stored
	return nil
}

func (f *fakeStore) GetPayment(ctx context.Context, paymentID string) (domain.Payment, error) {
	defer f.guard(ctx)()
	for _, p := range f.payments {
		if p.ID == paymentID {
			return p, nil
		}
	}
	return domain.Payment{}, domain.ErrPaymentNotFound
}

func (f *fakeStore) GetPaymentForUpdate(ctx context.Context, paymentID string) (domain.Payment, error) {
	return f.GetPayment(ctx, paymentID)
}

func (f *fakeStore) ListPayments(ctx context.Context, bookingID string) ([]domain.Payment, error) {
	defer f.guard(ctx)()
	var out []domain.Payment
	for _, p := range f.payments {
		if p.BookingID == bookingID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) HasFullPayment(_ context.Context, bookingID string) (bool, error) {
	for _, p := range f.payments {
		if p.BookingID == bookingID && p.Type == domain.PaymentTypeFullPayment {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) InsertPayment(_ context.Context, p domain.Payment) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	for _, existing := range f.payments {
		if existing.TransactionID == p.TransactionID {
			return domain.ErrTransactionIDTaken
		}
		if p.Type == domain.PaymentTypeFullPayment && existing.BookingID == p.BookingID && existing.Type == domain.PaymentTypeFullPayment {
			return domain.ErrDuplicateFullPayment
		}
	}
	f.payments = append(f.payments, p)
	return nil
}

func (f *fakeStore) UpdatePayment(_ context.Context, p domain.Payment, prevVersion int) error {
	for i, existing := range f.payments {
		if existing.ID != p.ID {
			continue
		}
		if existing.Version != prevVersion {
			return domain.ErrStaleWrite
		}
		p.Version = prevVersion + 1
		f.payments[i] = p
		return nil
	}
	return domain.ErrPaymentNotFound
}

func (f *fakeStore) SumRefunds(_ context.Context, originalID string) (int64, error) {
	f.refundSumCalls++
	var sum int64
	for _, p := range f.payments {
		if p.Type == domain.PaymentTypeRefund && p.OriginalPaymentID == originalID && p.Status == domain.PaymentStatusCompleted {
			sum += p.Amount
		}
	}
	if f.inflateRefunds != nil {
		sum += f.inflateRefunds(f.refundSumCalls)
	}
	return sum, nil
}

func (f *fakeStore) SumCollected(_ context.Context, bookingID string) (int64, error) {
	var sum int64
	for _, p := range f.payments {
		if p.BookingID == bookingID && p.Type != domain.PaymentTypeRefund && p.Status == domain.PaymentStatusCompleted {
			sum += p.Amount
		}
	}
	return sum, nil
}

func (f *fakeStore) UpdateBookingPaymentStatus(_ context.Context, bookingID string, status domain.BookingPaymentStatus) error {
	b, ok := f.bookings[bookingID]
	if !ok {
		return domain.ErrBookingNotFound
	}
	b.PaymentStatus = status
	f.bookings[bookingID] = b
	return nil
}

// snapshot helpers take the lock so tests can read state after concurrent calls.

func (f *fakeStore) booking(id string) domain.Booking {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bookings[id]
}

func (f *fakeStore) allPayments() []domain.Payment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Payment(nil), f.payments...)
}

func (f *fakeStore) countPayments(bookingID string, typ domain.PaymentType) int {
	n := 0
	for _, p := range f.allPayments() {
		if p.BookingID == bookingID && p.Type == typ {
			n++
		}
	}
	return n
}

func (f *fakeStore) seedListing(l domain.Listing) {
	f.listings[l.ID] = l
}

func (f *fakeStore) seedBooking(b domain.Booking) {
	if b.Version == 0 {
		b.Version = 1
	}
	if b.PaymentStatus == "" {
		b.PaymentStatus = domain.BookingUnpaid
	}
	f.bookings[b.ID] = b
}

func (f *fakeStore) seedPayment(p domain.Payment) {
	if p.Version == 0 {
		p.Version = 1
	}
	f.payments = append(f.payments, p)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingNotifier) Fire(_ context.Context, ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingNotifier) keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Key)
	}
	return out
}

// seqTransactionIDs hands out fixed ids first, then falls back to random ones.
type seqTransactionIDs struct {
	mu    sync.Mutex
	fixed []string
}

func (s *seqTransactionIDs) Next() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.fixed) > 0 {
		id := s.fixed[0]
		s.fixed = s.fixed[1:]
		return id, nil
	}
	return NewTransactionIDs().Next()
}

func date(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}
