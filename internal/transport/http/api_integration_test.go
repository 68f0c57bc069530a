package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/kojjob/property-marketplace-sub000/internal/app"
	"github.com/kojjob/property-marketplace-sub000/internal/clock"
	"github.com/kojjob/property-marketplace-sub000/internal/gateway"
	"github.com/kojjob/property-marketplace-sub000/internal/storage/postgres"
	"github.com/kojjob/property-marketplace-sub000/internal/testutil"
)

func TestBookingAndPaymentFlow_HTTPIntegration(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)
	testutil.TruncateAll(t, ctx, pool)

	landlord := testutil.InsertUser(t, ctx, pool, "landlord")
	tenant := testutil.InsertUser(t, ctx, pool, "tenant")
	other := testutil.InsertUser(t, ctx, pool, "other")
	listing := testutil.InsertListing(t, ctx, pool, landlord, 25000, 4)

	logger, _ := logtest.NewNullLogger()
	clk := clock.NewSystem()
	bookings := app.NewBookingService(postgres.NewBookingRepository(pool), clk, app.WithBookingLogger(logger))
	ledger := app.NewLedger(postgres.NewPaymentRepository(pool), gateway.NewFake(), clk, app.WithLedgerLogger(logger))
	r := NewRouter(RouterDeps{
		Bookings: bookings,
		Charges:  app.NewChargeService(ledger, app.WithChargeLogger(logger)),
		Payments: ledger,
		Logger:   logger,
	})

	do := func(method, path, actor, body string) *httptest.ResponseRecorder {
		t.Helper()
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(actorHeader, actor)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}
	decode := func(rec *httptest.ResponseRecorder, dst any) {
		t.Helper()
		if err := json.NewDecoder(rec.Body).Decode(dst); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}

	today := clock.Today(clk)
	checkIn := today.AddDate(0, 0, 30).Format(time.DateOnly)
	checkOut := today.AddDate(0, 0, 33).Format(time.DateOnly)
	body := fmt.Sprintf(`{"listing_id":%q,"check_in_date":%q,"check_out_date":%q,"guests_count":2}`, listing, checkIn, checkOut)

	rec := do(http.MethodPost, "/bookings", tenant, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var booking bookingResponse
	decode(rec, &booking)
	if booking.TotalAmountCents != 75000 || booking.TenantID != tenant || booking.LandlordID != landlord {
		t.Fatalf("unexpected booking %+v", booking)
	}

	if rec := do(http.MethodPost, "/bookings", other, body); rec.Code != http.StatusConflict {
		t.Fatalf("expected overlapping booking to conflict, got %d", rec.Code)
	}
	if rec := do(http.MethodPost, "/bookings", landlord, body); rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "own_listing") {
		t.Fatalf("expected landlord booking own listing to be rejected, got %d: %s", rec.Code, rec.Body.String())
	}

	if rec := do(http.MethodPost, "/bookings/"+booking.ID+"/confirm", tenant, ""); rec.Code != http.StatusForbidden {
		t.Fatalf("expected tenant confirm to be forbidden, got %d", rec.Code)
	}
	if rec := do(http.MethodPost, "/bookings/"+booking.ID+"/confirm", landlord, ""); rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(http.MethodPost, "/bookings/"+booking.ID+"/charges", tenant,
		fmt.Sprintf(`{"amount_cents":75000,"payment_method_id":%q}`, gateway.FakeMethodSucceeds))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var charge chargeResponse
	decode(rec, &charge)
	if charge.Payment.PaymentType != "full_payment" || charge.Payment.Status != "completed" {
		t.Fatalf("unexpected charge %+v", charge.Payment)
	}

	rec = do(http.MethodGet, "/bookings/"+booking.ID, tenant, "")
	decode(rec, &booking)
	if booking.PaymentStatus != "paid" {
		t.Fatalf("expected booking paid, got %s", booking.PaymentStatus)
	}

	rec = do(http.MethodPost, "/payments/"+charge.Payment.ID+"/refunds", landlord, `{"amount":250}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var refund paymentResponse
	decode(rec, &refund)
	if refund.PaymentType != "refund" || refund.AmountCents != 25000 || refund.OriginalPaymentID != charge.Payment.ID {
		t.Fatalf("unexpected refund %+v", refund)
	}

	rec = do(http.MethodGet, "/payments/"+charge.Payment.ID, tenant, "")
	var summary struct {
		Status         string  `json:"status"`
		RefundedAmount float64 `json:"refunded_amount"`
	}
	decode(rec, &summary)
	if summary.Status != "completed" || summary.RefundedAmount != 250 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	rec = do(http.MethodGet, "/bookings/"+booking.ID+"/payments", tenant, "")
	var list struct {
		Payments []paymentResponse `json:"payments"`
	}
	decode(rec, &list)
	if len(list.Payments) != 2 {
		t.Fatalf("expected 2 payments, got %d", len(list.Payments))
	}

	if rec := do(http.MethodGet, "/payments/not-a-uuid", tenant, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected invalid id to be rejected, got %d", rec.Code)
	}
}
