package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kojjob/property-marketplace-sub000/internal/domain"
)

const bookingColumns = `id, listing_id, tenant_id, landlord_id, check_in_date, check_out_date,
	guests_count, total_amount_cents, currency, status, payment_status, cancellation_reason,
	version, created_at, updated_at`

type BookingRepository struct {
	conn
}

func NewBookingRepository(pool *pgxpool.Pool) *BookingRepository {
	return &BookingRepository{conn: conn{pool: pool}}
}

// LockListing takes a transaction-scoped advisory lock keyed on the listing,
// serializing availability check and insert across concurrent creators.
func (r *BookingRepository) LockListing(ctx context.Context, listingID string) error {
	if txFromContext(ctx) == nil {
		return errors.New("lock listing: no transaction in context")
	}
	if _, err := r.exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))`, listingID); err != nil {
		return fmt.Errorf("lock listing: %w", err)
	}
	return nil
}

func (r *BookingRepository) GetListing(ctx context.Context, listingID string) (domain.Listing, error) {
	const query = `
SELECT id, landlord_id, title, nightly_rate_cents, currency, max_guests, active
FROM listings
WHERE id = $1`

	var l domain.Listing
	err := r.queryRow(ctx, query, listingID).
		Scan(&l.ID, &l.LandlordID, &l.Title, &l.NightlyRate, &l.Currency, &l.MaxGuests, &l.Active)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Listing{}, domain.ErrInvalidID
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Listing{}, domain.ErrListingNotFound
		}
		return domain.Listing{}, fmt.Errorf("get listing: %w", err)
	}
	return l, nil
}

func (r *BookingRepository) ListActiveBookings(ctx context.Context, listingID, excludeBookingID string) ([]domain.Booking, error) {
	query := `
SELECT ` + bookingColumns + `
FROM bookings
WHERE listing_id = $1
  AND status IN ('pending', 'confirmed')
  AND ($2::text = '' OR id::text <> $2::text)
ORDER BY check_in_date`

	rows, err := r.query(ctx, query, listingID, excludeBookingID)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("list active bookings: %w", err)
	}
	defer rows.Close()

	var out []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list active bookings: %w", err)
	}
	return out, nil
}

func (r *BookingRepository) CreateBooking(ctx context.Context, b domain.Booking) error {
	const stmt = `
INSERT INTO bookings (id, listing_id, tenant_id, landlord_id, check_in_date, check_out_date,
	guests_count, total_amount_cents, currency, status, payment_status, cancellation_reason,
	version, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err := r.exec(ctx, stmt,
		b.ID, b.ListingID, b.TenantID, b.LandlordID, b.CheckIn, b.CheckOut,
		b.GuestsCount, b.TotalAmount, b.Currency, string(b.Status), string(b.PaymentStatus), b.CancellationReason,
		b.Version, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		switch {
		case isExclusionViolation(err):
			return domain.ErrDatesUnavailable
		case isInvalidUUID(err), isForeignKeyViolation(err):
			return domain.ErrInvalidID
		}
		return fmt.Errorf("create booking: %w", err)
	}
	return nil
}

func (r *BookingRepository) GetBooking(ctx context.Context, bookingID string) (domain.Booking, error) {
	return getBooking(ctx, r.conn, bookingID, false)
}

func (r *BookingRepository) GetBookingForUpdate(ctx context.Context, bookingID string) (domain.Booking, error) {
	return getBooking(ctx, r.conn, bookingID, true)
}

func (r *BookingRepository) UpdateBookingStatus(ctx context.Context, b domain.Booking, prevVersion int) error {
	const stmt = `
UPDATE bookings
SET status = $3, cancellation_reason = $4, updated_at = $5, version = version + 1
WHERE id = $1 AND version = $2`

	tag, err := r.exec(ctx, stmt, b.ID, prevVersion, string(b.Status), b.CancellationReason, b.UpdatedAt)
	if err != nil {
		if isExclusionViolation(err) {
			return domain.ErrDatesUnavailable
		}
		return fmt.Errorf("update booking status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStaleWrite
	}
	return nil
}

func getBooking(ctx context.Context, c conn, bookingID string, forUpdate bool) (domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	b, err := scanBooking(c.queryRow(ctx, query, bookingID))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Booking{}, domain.ErrInvalidID
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Booking{}, domain.ErrBookingNotFound
		}
		return domain.Booking{}, fmt.Errorf("get booking: %w", err)
	}
	return b, nil
}

func updateBookingPaymentStatus(ctx context.Context, c conn, bookingID string, status domain.BookingPaymentStatus) error {
	const stmt = `UPDATE bookings SET payment_status = $2, updated_at = NOW() WHERE id = $1`

	tag, err := c.exec(ctx, stmt, bookingID, string(status))
	if err != nil {
		return fmt.Errorf("update booking payment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBookingNotFound
	}
	return nil
}

func scanBooking(row pgx.Row) (domain.Booking, error) {
	var b domain.Booking
	var status, paymentStatus string
	err := row.Scan(
		&b.ID, &b.ListingID, &b.TenantID, &b.LandlordID, &b.CheckIn, &b.CheckOut,
		&b.GuestsCount, &b.TotalAmount, &b.Currency, &status, &paymentStatus, &b.CancellationReason,
		&b.Version, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return domain.Booking{}, err
	}
	b.Status = domain.BookingStatus(status)
	b.PaymentStatus = domain.BookingPaymentStatus(paymentStatus)
	return b, nil
}
