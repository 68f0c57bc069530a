package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kojjob/property-marketplace-sub000/internal/app"
	"github.com/kojjob/property-marketplace-sub000/internal/domain"
)

// BookingCharger is the minimal interface needed to charge a booking.
type BookingCharger interface {
	ChargeBooking(ctx context.Context, in app.ChargeInput) (app.ChargeResult, error)
}

// PaymentLedger covers the payment record operations exposed over HTTP.
type PaymentLedger interface {
	CreatePayment(ctx context.Context, in app.CreatePaymentInput) (domain.Payment, error)
	ProcessPayment(ctx context.Context, paymentID string) (domain.Payment, error)
	RefundPayment(ctx context.Context, in app.RefundInput) (domain.Payment, error)
	GetPayment(ctx context.Context, paymentID string) (app.PaymentSummary, error)
	ListPayments(ctx context.Context, bookingID string) ([]domain.Payment, error)
}

// HandleChargeBooking charges the payment method and records a captured
// deposit or full payment for the booking in the path.
func HandleChargeBooking(svc BookingCharger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req chargeRequest
		if !decodeJSON(c, &req, false) {
			return
		}
		if err := required("payment_method_id", req.PaymentMethodID); err != nil {
			writeDomainError(c, err)
			return
		}

		res, err := svc.ChargeBooking(c.Request.Context(), app.ChargeInput{
			BookingID:       c.Param("id"),
			AmountCents:     req.AmountCents,
			PaymentMethodID: req.PaymentMethodID,
			Currency:        req.Currency,
		})
		if err != nil {
			writeDomainError(c, err)
			return
		}
		c.JSON(http.StatusCreated, chargeResponse{
			Payment:  newPaymentResponse(res.Payment),
			IntentID: res.IntentID,
			Fees: feesResponse{
				PlatformCents:   res.Fees.PlatformCents,
				ProcessingCents: res.Fees.ProcessingCents,
				TotalCents:      res.Fees.Total(),
			},
		})
	}
}

func HandleListPayments(svc PaymentLedger) gin.HandlerFunc {
	return func(c *gin.Context) {
		payments, err := svc.ListPayments(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeDomainError(c, err)
			return
		}
		out := make([]paymentResponse, 0, len(payments))
		for _, p := range payments {
			out = append(out, newPaymentResponse(p))
		}
		c.JSON(http.StatusOK, gin.H{"payments": out})
	}
}

func HandleCreatePayment(svc PaymentLedger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createPaymentRequest
		if !decodeJSON(c, &req, false) {
			return
		}
		if err := required("booking_id", req.BookingID); err != nil {
			writeDomainError(c, err)
			return
		}

		payment, err := svc.CreatePayment(c.Request.Context(), app.CreatePaymentInput{
			BookingID:  req.BookingID,
			PayerID:    req.PayerID,
			PayeeID:    req.PayeeID,
			Amount:     req.Amount,
			ServiceFee: req.ServiceFee,
			Currency:   req.Currency,
			Type:       domain.PaymentType(req.PaymentType),
			Method:     req.PaymentMethod,
			Status:     domain.PaymentStatus(req.Status),
		})
		if err != nil {
			writeDomainError(c, err)
			return
		}
		c.JSON(http.StatusCreated, newPaymentResponse(payment))
	}
}

// HandleGetPayment returns the payment with its net and refunded amounts.
func HandleGetPayment(svc PaymentLedger) gin.HandlerFunc {
	return func(c *gin.Context) {
		summary, err := svc.GetPayment(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, paymentSummaryResponse{
			paymentResponse: newPaymentResponse(summary.Payment),
			NetAmount:       domain.FromCents(summary.NetAmount),
			RefundedAmount:  domain.FromCents(summary.Refunded),
		})
	}
}

// HandleProcessPayment charges a pending payment. When the gateway refuses,
// the failed payment is returned alongside the error so the client sees the
// recorded failure reason.
func HandleProcessPayment(svc PaymentLedger) gin.HandlerFunc {
	return func(c *gin.Context) {
		payment, err := svc.ProcessPayment(c.Request.Context(), c.Param("id"))
		if err != nil {
			var de *domain.Error
			if payment.ID != "" && errors.As(err, &de) && de.Kind == domain.KindGateway {
				c.AbortWithStatusJSON(statusFor(de), gin.H{
					"error":   de.Msg,
					"code":    de.Code,
					"payment": newPaymentResponse(payment),
				})
				return
			}
			writeDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, newPaymentResponse(payment))
	}
}

// HandleRefundPayment refunds the payment in the path. Without an amount the
// whole original is refunded.
func HandleRefundPayment(svc PaymentLedger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req refundRequest
		if !decodeJSON(c, &req, true) {
			return
		}
		in := app.RefundInput{PaymentID: c.Param("id")}
		if req.Amount != nil {
			cents, err := domain.ToCents(*req.Amount)
			if err != nil {
				writeDomainError(c, err)
				return
			}
			in.Amount = &cents
		}

		refund, err := svc.RefundPayment(c.Request.Context(), in)
		if err != nil {
			writeDomainError(c, err)
			return
		}
		c.JSON(http.StatusCreated, newPaymentResponse(refund))
	}
}

type chargeRequest struct {
	AmountCents     int64  `json:"amount_cents"`
	PaymentMethodID string `json:"payment_method_id"`
	Currency        string `json:"currency"`
}

type feesResponse struct {
	PlatformCents   int64 `json:"platform_cents"`
	ProcessingCents int64 `json:"processing_cents"`
	TotalCents      int64 `json:"total_cents"`
}

type chargeResponse struct {
	Payment  paymentResponse `json:"payment"`
	IntentID string          `json:"intent_id"`
	Fees     feesResponse    `json:"fees"`
}

type createPaymentRequest struct {
	BookingID     string   `json:"booking_id"`
	PayerID       string   `json:"payer_id"`
	PayeeID       string   `json:"payee_id"`
	Amount        float64  `json:"amount"`
	ServiceFee    *float64 `json:"service_fee"`
	Currency      string   `json:"currency"`
	PaymentType   string   `json:"payment_type"`
	PaymentMethod string   `json:"payment_method"`
	Status        string   `json:"status"`
}

type refundRequest struct {
	Amount *float64 `json:"amount"`
}

type paymentSummaryResponse struct {
	paymentResponse
	NetAmount      float64 `json:"net_amount"`
	RefundedAmount float64 `json:"refunded_amount"`
}
