package app

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kojjob/property-marketplace-sub000/internal/clock"
	"github.com/kojjob/property-marketplace-sub000/internal/domain"
	"github.com/kojjob/property-marketplace-sub000/internal/events"
)

type BookingRepository interface {
	AvailabilityRepository
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	// LockListing serializes booking creation per listing until the tx ends.
	LockListing(ctx context.Context, listingID string) error
	GetListing(ctx context.Context, listingID string) (domain.Listing, error)
	CreateBooking(ctx context.Context, booking domain.Booking) error
	GetBooking(ctx context.Context, bookingID string) (domain.Booking, error)
	GetBookingForUpdate(ctx context.Context, bookingID string) (domain.Booking, error)
	UpdateBookingStatus(ctx context.Context, booking domain.Booking, prevVersion int) error
}

type BookingService struct {
	repo         BookingRepository
	availability *AvailabilityValidator
	clock        clock.Clock
	notifier     Notifier
	logger       logrus.FieldLogger
}

type BookingServiceOption func(*BookingService)

func WithBookingNotifier(n Notifier) BookingServiceOption {
	return func(s *BookingService) {
		if n != nil {
			s.notifier = n
		}
	}
}

func WithBookingLogger(l logrus.FieldLogger) BookingServiceOption {
	return func(s *BookingService) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewBookingService(repo BookingRepository, clk clock.Clock, opts ...BookingServiceOption) *BookingService {
	svc := &BookingService{
		repo:         repo,
		availability: NewAvailabilityValidator(repo),
		clock:        clk,
		notifier:     nopNotifier{},
		logger:       defaultLogger(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type CreateBookingInput struct {
	ListingID string
	TenantID  string
	CheckIn   time.Time
	CheckOut  time.Time
	Guests    int
}

func (s *BookingService) CreateBooking(ctx context.Context, in CreateBookingInput) (result domain.Booking, err error) {
	ctx, span := tracer.Start(ctx, "BookingService.CreateBooking")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("listing.id", in.ListingID))

	if in.TenantID == "" {
		return domain.Booking{}, domain.ErrMissingActor
	}
	checkIn, checkOut := domain.DateOnly(in.CheckIn), domain.DateOnly(in.CheckOut)
	if in.CheckIn.IsZero() || in.CheckOut.IsZero() || !checkOut.After(checkIn) {
		return domain.Booking{}, domain.ErrInvalidDates
	}
	if checkIn.Before(clock.Today(s.clock)) {
		return domain.Booking{}, domain.ErrCheckInPast
	}
	if in.Guests <= 0 {
		return domain.Booking{}, domain.ErrInvalidGuests
	}

	now := s.clock.Now()

	err = s.repo.WithTx(ctx, func(txCtx context.Context) error {
		listing, err := s.repo.GetListing(txCtx, in.ListingID)
		if err != nil {
			return err
		}
		if !listing.Active {
			return domain.ErrListingInactive
		}
		if listing.MaxGuests > 0 && in.Guests > listing.MaxGuests {
			return domain.ErrInvalidGuests
		}
		if listing.LandlordID == in.TenantID {
			return domain.ErrOwnListing
		}

		if err := s.repo.LockListing(txCtx, listing.ID); err != nil {
			return err
		}
		conflict, err := s.availability.Conflicts(txCtx, listing.ID, checkIn, checkOut, "")
		if err != nil {
			return err
		}
		if conflict {
			return domain.ErrDatesUnavailable
		}

		nights := int64(domain.NightsBetween(checkIn, checkOut))
		if listing.NightlyRate > domain.MaxAmountCents/nights {
			return domain.ErrAmountTooLarge
		}

		booking := domain.Booking{
			ID:            newID(),
			ListingID:     listing.ID,
			TenantID:      in.TenantID,
			LandlordID:    listing.LandlordID,
			CheckIn:       checkIn,
			CheckOut:      checkOut,
			GuestsCount:   in.Guests,
			TotalAmount:   listing.NightlyRate * nights,
			Currency:      domain.NormalizeCurrency(listing.Currency),
			Status:        domain.BookingStatusPending,
			PaymentStatus: domain.BookingUnpaid,
			Version:       1,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.repo.CreateBooking(txCtx, booking); err != nil {
			return err
		}
		result = booking
		return nil
	})
	if err != nil {
		return domain.Booking{}, err
	}

	s.notifier.Fire(ctx, events.ForBooking(events.BookingCreated, result, in.TenantID, now))
	return result, nil
}

func (s *BookingService) ConfirmBooking(ctx context.Context, bookingID, actorID string) (domain.Booking, error) {
	return s.transition(ctx, bookingID, actorID, domain.BookingStatusConfirmed, events.BookingConfirmed,
		func(b *domain.Booking, now time.Time) bool { return b.Confirm(actorID, now) })
}

func (s *BookingService) CancelBooking(ctx context.Context, bookingID, actorID, reason string) (domain.Booking, error) {
	return s.transition(ctx, bookingID, actorID, domain.BookingStatusCancelled, events.BookingCancelled,
		func(b *domain.Booking, now time.Time) bool { return b.Cancel(actorID, reason, now) })
}

func (s *BookingService) CompleteBooking(ctx context.Context, bookingID, actorID string) (domain.Booking, error) {
	return s.transition(ctx, bookingID, actorID, domain.BookingStatusCompleted, events.BookingCompleted,
		func(b *domain.Booking, now time.Time) bool { return b.Complete(actorID, now) })
}

func (s *BookingService) GetBooking(ctx context.Context, bookingID string) (domain.Booking, error) {
	return s.repo.GetBooking(ctx, bookingID)
}

func (s *BookingService) transition(
	ctx context.Context,
	bookingID, actorID string,
	target domain.BookingStatus,
	eventKey string,
	apply func(b *domain.Booking, now time.Time) bool,
) (domain.Booking, error) {
	if actorID == "" {
		return domain.Booking{}, domain.ErrMissingActor
	}

	now := s.clock.Now()
	var result domain.Booking

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		booking, err := s.repo.GetBookingForUpdate(txCtx, bookingID)
		if err != nil {
			return err
		}
		prev := booking.Version
		if !apply(&booking, now) {
			if !booking.Status.CanTransitionTo(target) {
				return domain.ErrInvalidTransition
			}
			return domain.ErrNotAuthorized
		}
		if err := s.repo.UpdateBookingStatus(txCtx, booking, prev); err != nil {
			return err
		}
		booking.Version = prev + 1
		result = booking
		return nil
	})
	if err != nil {
		return domain.Booking{}, err
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": result.ID,
		"status":     result.Status,
		"actor_id":   actorID,
	}).Info("booking status changed")
	s.notifier.Fire(ctx, events.ForBooking(eventKey, result, actorID, now))
	return result, nil
}
