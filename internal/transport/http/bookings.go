package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kojjob/property-marketplace-sub000/internal/app"
	"github.com/kojjob/property-marketplace-sub000/internal/domain"
)

// BookingCreator is the minimal interface needed to create a booking.
type BookingCreator interface {
	CreateBooking(ctx context.Context, in app.CreateBookingInput) (domain.Booking, error)
}

// BookingReader is the minimal interface needed to load a booking.
type BookingReader interface {
	GetBooking(ctx context.Context, bookingID string) (domain.Booking, error)
}

// BookingTransitioner moves a booking through its lifecycle on behalf of an actor.
type BookingTransitioner interface {
	ConfirmBooking(ctx context.Context, bookingID, actorID string) (domain.Booking, error)
	CancelBooking(ctx context.Context, bookingID, actorID, reason string) (domain.Booking, error)
	CompleteBooking(ctx context.Context, bookingID, actorID string) (domain.Booking, error)
}

// HandleCreateBooking books a listing for the acting tenant.
func HandleCreateBooking(svc BookingCreator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createBookingRequest
		if !decodeJSON(c, &req, false) {
			return
		}
		in, err := req.toInput(actorID(c))
		if err != nil {
			writeDomainError(c, err)
			return
		}

		booking, err := svc.CreateBooking(c.Request.Context(), in)
		if err != nil {
			writeDomainError(c, err)
			return
		}
		c.JSON(http.StatusCreated, newBookingResponse(booking))
	}
}

func HandleGetBooking(svc BookingReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		booking, err := svc.GetBooking(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, newBookingResponse(booking))
	}
}

func HandleConfirmBooking(svc BookingTransitioner) gin.HandlerFunc {
	return func(c *gin.Context) {
		booking, err := svc.ConfirmBooking(c.Request.Context(), c.Param("id"), actorID(c))
		respondBooking(c, booking, err)
	}
}

// HandleCancelBooking accepts an optional {"reason": "..."} body.
func HandleCancelBooking(svc BookingTransitioner) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req cancelBookingRequest
		if !decodeJSON(c, &req, true) {
			return
		}
		booking, err := svc.CancelBooking(c.Request.Context(), c.Param("id"), actorID(c), strings.TrimSpace(req.Reason))
		respondBooking(c, booking, err)
	}
}

func HandleCompleteBooking(svc BookingTransitioner) gin.HandlerFunc {
	return func(c *gin.Context) {
		booking, err := svc.CompleteBooking(c.Request.Context(), c.Param("id"), actorID(c))
		respondBooking(c, booking, err)
	}
}

func respondBooking(c *gin.Context, booking domain.Booking, err error) {
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, newBookingResponse(booking))
}

type createBookingRequest struct {
	ListingID    string `json:"listing_id"`
	CheckInDate  string `json:"check_in_date"`
	CheckOutDate string `json:"check_out_date"`
	GuestsCount  int    `json:"guests_count"`
}

func (r createBookingRequest) toInput(tenantID string) (app.CreateBookingInput, error) {
	if err := required("listing_id", r.ListingID); err != nil {
		return app.CreateBookingInput{}, err
	}
	checkIn, err := parseDate("check_in_date", r.CheckInDate)
	if err != nil {
		return app.CreateBookingInput{}, err
	}
	checkOut, err := parseDate("check_out_date", r.CheckOutDate)
	if err != nil {
		return app.CreateBookingInput{}, err
	}
	return app.CreateBookingInput{
		ListingID: r.ListingID,
		TenantID:  tenantID,
		CheckIn:   checkIn,
		CheckOut:  checkOut,
		Guests:    r.GuestsCount,
	}, nil
}

type cancelBookingRequest struct {
	Reason string `json:"reason"`
}
