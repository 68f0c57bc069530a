package app

import (
	"context"
	"time"

	"github.com/kojjob/property-marketplace-sub000/internal/domain"
)

type AvailabilityRepository interface {
	// ListActiveBookings returns the pending and confirmed bookings of a
	// listing, skipping excludeBookingID when it is set.
	ListActiveBookings(ctx context.Context, listingID, excludeBookingID string) ([]domain.Booking, error)
}

type AvailabilityValidator struct {
	repo AvailabilityRepository
}

func NewAvailabilityValidator(repo AvailabilityRepository) *AvailabilityValidator {
	return &AvailabilityValidator{repo: repo}
}

// Conflicts reports whether [checkIn, checkOut] overlaps an active booking on
// the listing. Both ends are inclusive, so same-day turnover conflicts.
// Callers that insert afterwards must hold the listing lock.
func (v *AvailabilityValidator) Conflicts(ctx context.Context, listingID string, checkIn, checkOut time.Time, excludeBookingID string) (bool, error) {
	active, err := v.repo.ListActiveBookings(ctx, listingID, excludeBookingID)
	if err != nil {
		return false, err
	}
	checkIn, checkOut = domain.DateOnly(checkIn), domain.DateOnly(checkOut)
	for _, b := range active {
		if b.ID == excludeBookingID && excludeBookingID != "" {
			continue
		}
		if !b.Status.BlocksCalendar() {
			continue
		}
		if b.Overlaps(checkIn, checkOut) {
			return true, nil
		}
	}
	return false, nil
}
