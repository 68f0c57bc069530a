package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kojjob/property-marketplace-sub000/internal/domain"
)

const dateLayout = time.DateOnly

// decodeJSON reads a strict JSON body into dst. An empty body is accepted
// when optional is set.
func decodeJSON(c *gin.Context, dst any, optional bool) bool {
	dec := json.NewDecoder(c.Request.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return true
		}
		writeError(c, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
		return false
	}
	return true
}

func parseDate(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, domain.Invalid(field, codeMissingField, field+" is required")
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, domain.Invalid(field, codeInvalidDate, field+" must be formatted as YYYY-MM-DD")
	}
	return t, nil
}

func required(field, value string) error {
	if value == "" {
		return domain.Invalid(field, codeMissingField, field+" is required")
	}
	return nil
}

type bookingResponse struct {
	ID                 string    `json:"id"`
	ListingID          string    `json:"listing_id"`
	TenantID           string    `json:"tenant_id"`
	LandlordID         string    `json:"landlord_id"`
	CheckInDate        string    `json:"check_in_date"`
	CheckOutDate       string    `json:"check_out_date"`
	Nights             int       `json:"nights"`
	GuestsCount        int       `json:"guests_count"`
	TotalAmount        float64   `json:"total_amount"`
	TotalAmountCents   int64     `json:"total_amount_cents"`
	Currency           string    `json:"currency"`
	Status             string    `json:"status"`
	PaymentStatus      string    `json:"payment_status"`
	CancellationReason string    `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func newBookingResponse(b domain.Booking) bookingResponse {
	return bookingResponse{
		ID:                 b.ID,
		ListingID:          b.ListingID,
		TenantID:           b.TenantID,
		LandlordID:         b.LandlordID,
		CheckInDate:        b.CheckIn.Format(dateLayout),
		CheckOutDate:       b.CheckOut.Format(dateLayout),
		Nights:             b.Nights(),
		GuestsCount:        b.GuestsCount,
		TotalAmount:        domain.FromCents(b.TotalAmount),
		TotalAmountCents:   b.TotalAmount,
		Currency:           b.Currency,
		Status:             string(b.Status),
		PaymentStatus:      string(b.PaymentStatus),
		CancellationReason: b.CancellationReason,
		CreatedAt:          b.CreatedAt,
		UpdatedAt:          b.UpdatedAt,
	}
}

type paymentResponse struct {
	ID                string     `json:"id"`
	BookingID         string     `json:"booking_id"`
	PayerID           string     `json:"payer_id"`
	PayeeID           string     `json:"payee_id"`
	Amount            float64    `json:"amount"`
	AmountCents       int64      `json:"amount_cents"`
	ServiceFee        float64    `json:"service_fee"`
	Currency          string     `json:"currency"`
	Status            string     `json:"status"`
	PaymentType       string     `json:"payment_type"`
	PaymentMethod     string     `json:"payment_method,omitempty"`
	TransactionID     string     `json:"transaction_id"`
	GatewayReference  string     `json:"gateway_reference,omitempty"`
	OriginalPaymentID string     `json:"original_payment_id,omitempty"`
	FailureReason     string     `json:"failure_reason,omitempty"`
	ProcessedAt       *time.Time `json:"processed_at,omitempty"`
	RefundedAt        *time.Time `json:"refunded_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func newPaymentResponse(p domain.Payment) paymentResponse {
	return paymentResponse{
		ID:                p.ID,
		BookingID:         p.BookingID,
		PayerID:           p.PayerID,
		PayeeID:           p.PayeeID,
		Amount:            domain.FromCents(p.Amount),
		AmountCents:       p.Amount,
		ServiceFee:        domain.FromCents(p.ServiceFee),
		Currency:          p.Currency,
		Status:            string(p.Status),
		PaymentType:       string(p.Type),
		PaymentMethod:     p.Method,
		TransactionID:     p.TransactionID,
		GatewayReference:  p.GatewayReference,
		OriginalPaymentID: p.OriginalPaymentID,
		FailureReason:     p.FailureReason,
		ProcessedAt:       p.ProcessedAt,
		RefundedAt:        p.RefundedAt,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
}
