package postgres

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/kojjob/property-marketplace-sub000/internal/app"
	"github.com/kojjob/property-marketplace-sub000/internal/clock"
	"github.com/kojjob/property-marketplace-sub000/internal/domain"
	"github.com/kojjob/property-marketplace-sub000/internal/gateway"
	"github.com/kojjob/property-marketplace-sub000/internal/testutil"
)

func runConcurrently(n int, fn func(i int) error) []error {
	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			errs[i] = fn(i)
		}(i)
	}
	close(start)
	wg.Wait()
	return errs
}

func TestConcurrentBookingCreation(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)
	testutil.TruncateAll(t, ctx, pool)

	landlord := testutil.InsertUser(t, ctx, pool, "landlord")
	listing := testutil.InsertListing(t, ctx, pool, landlord, 10000, 2)
	tenants := make([]string, 6)
	for i := range tenants {
		tenants[i] = testutil.InsertUser(t, ctx, pool, "tenant")
	}

	logger, _ := logtest.NewNullLogger()
	svc := app.NewBookingService(NewBookingRepository(pool), clock.NewSystem(), app.WithBookingLogger(logger))

	errs := runConcurrently(len(tenants), func(i int) error {
		_, err := svc.CreateBooking(ctx, app.CreateBookingInput{
			ListingID: listing,
			TenantID:  tenants[i],
			CheckIn:   day(30),
			CheckOut:  day(33),
			Guests:    1,
		})
		return err
	})

	created := 0
	for _, err := range errs {
		switch {
		case err == nil:
			created++
		case errors.Is(err, domain.ErrDatesUnavailable):
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if created != 1 {
		t.Fatalf("expected exactly one booking, got %d", created)
	}

	var count int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM bookings WHERE listing_id = $1`, listing).Scan(&count); err != nil {
		t.Fatalf("count bookings: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one stored booking, got %d", count)
	}
}

func TestConcurrentFullCharges(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)
	testutil.TruncateAll(t, ctx, pool)

	landlord := testutil.InsertUser(t, ctx, pool, "landlord")
	tenant := testutil.InsertUser(t, ctx, pool, "tenant")
	listing := testutil.InsertListing(t, ctx, pool, landlord, 25000, 2)
	booking := testutil.InsertBooking(t, ctx, pool, domain.Booking{
		ListingID: listing, TenantID: tenant, LandlordID: landlord,
		CheckIn: day(5), CheckOut: day(9), TotalAmount: 100000, Status: domain.BookingStatusConfirmed,
	})

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	gw := gateway.NewFake()
	ledger := app.NewLedger(NewPaymentRepository(pool), gw, clock.NewSystem(), app.WithLedgerLogger(logger))
	charges := app.NewChargeService(ledger)

	errs := runConcurrently(4, func(int) error {
		_, err := charges.ChargeBooking(ctx, app.ChargeInput{
			BookingID:       booking,
			AmountCents:     100000,
			PaymentMethodID: gateway.FakeMethodSucceeds,
		})
		return err
	})

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, domain.ErrDuplicateFullPayment):
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one successful charge, got %d", succeeded)
	}

	var full int
	if err := pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM payments WHERE booking_id = $1 AND payment_type = 'full_payment'`, booking,
	).Scan(&full); err != nil {
		t.Fatalf("count payments: %v", err)
	}
	if full != 1 {
		t.Fatalf("expected one full payment row, got %d", full)
	}
	if n := len(gw.Calls()); n != 1 {
		t.Fatalf("expected one gateway call, got %d", n)
	}

	var paymentStatus string
	if err := pool.QueryRow(ctx, `SELECT payment_status FROM bookings WHERE id = $1`, booking).Scan(&paymentStatus); err != nil {
		t.Fatalf("query booking: %v", err)
	}
	if paymentStatus != string(domain.BookingPaid) {
		t.Fatalf("expected paid, got %s", paymentStatus)
	}
}

func TestConcurrentRefundsNeverExceedOriginal(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)
	testutil.TruncateAll(t, ctx, pool)

	landlord := testutil.InsertUser(t, ctx, pool, "landlord")
	tenant := testutil.InsertUser(t, ctx, pool, "tenant")
	listing := testutil.InsertListing(t, ctx, pool, landlord, 25000, 2)
	booking := testutil.InsertBooking(t, ctx, pool, domain.Booking{
		ListingID: listing, TenantID: tenant, LandlordID: landlord,
		CheckIn: day(5), CheckOut: day(9), TotalAmount: 100000, Status: domain.BookingStatusConfirmed,
	})
	original := testutil.InsertPayment(t, ctx, pool, domain.Payment{
		BookingID: booking, PayerID: tenant, PayeeID: landlord, Amount: 100000,
		Status: domain.PaymentStatusCompleted, Type: domain.PaymentTypeDeposit,
	})

	logger, _ := logtest.NewNullLogger()
	ledger := app.NewLedger(NewPaymentRepository(pool), gateway.NewFake(), clock.NewSystem(), app.WithLedgerLogger(logger))

	amount := int64(40000)
	errs := runConcurrently(4, func(int) error {
		_, err := ledger.RefundPayment(ctx, app.RefundInput{PaymentID: original, Amount: &amount})
		return err
	})

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, domain.ErrRefundExceeds):
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if succeeded != 2 {
		t.Fatalf("expected two refunds to fit, got %d", succeeded)
	}

	var refunded int64
	if err := pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount_cents), 0)::bigint FROM payments WHERE original_payment_id = $1`, original,
	).Scan(&refunded); err != nil {
		t.Fatalf("sum refunds: %v", err)
	}
	if refunded != 80000 {
		t.Fatalf("expected 80000 refunded, got %d", refunded)
	}
}
