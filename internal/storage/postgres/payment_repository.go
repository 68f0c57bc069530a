package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kojjob/property-marketplace-sub000/internal/domain"
)

const (
	paymentColumns = `id, booking_id, payer_id, payee_id, amount_cents, currency, status, payment_type,
	payment_method, service_fee_cents, transaction_id, gateway_reference, original_payment_id,
	processed_at, failure_reason, refunded_at, version, created_at, updated_at`

	fullPaymentIndex = "payments_one_full_payment_per_booking"
)

type PaymentRepository struct {
	conn
}

func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{conn: conn{pool: pool}}
}

func (r *PaymentRepository) GetBookingForUpdate(ctx context.Context, bookingID string) (domain.Booking, error) {
	return getBooking(ctx, r.conn, bookingID, true)
}

func (r *PaymentRepository) UpdateBookingPaymentStatus(ctx context.Context, bookingID string, status domain.BookingPaymentStatus) error {
	return updateBookingPaymentStatus(ctx, r.conn, bookingID, status)
}

func (r *PaymentRepository) GetPayment(ctx context.Context, paymentID string) (domain.Payment, error) {
	return r.getPayment(ctx, paymentID, false)
}

func (r *PaymentRepository) GetPaymentForUpdate(ctx context.Context, paymentID string) (domain.Payment, error) {
	return r.getPayment(ctx, paymentID, true)
}

func (r *PaymentRepository) getPayment(ctx context.Context, paymentID string, forUpdate bool) (domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	p, err := scanPayment(r.queryRow(ctx, query, paymentID))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Payment{}, domain.ErrInvalidID
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Payment{}, domain.ErrPaymentNotFound
		}
		return domain.Payment{}, fmt.Errorf("get payment: %w", err)
	}
	return p, nil
}

func (r *PaymentRepository) ListPayments(ctx context.Context, bookingID string) ([]domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE booking_id = $1 ORDER BY created_at, id`

	rows, err := r.query(ctx, query, bookingID)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var out []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return out, nil
}

func (r *PaymentRepository) HasFullPayment(ctx context.Context, bookingID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM payments WHERE booking_id = $1 AND payment_type = 'full_payment')`

	var exists bool
	if err := r.queryRow(ctx, query, bookingID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check full payment: %w", err)
	}
	return exists, nil
}

// InsertPayment writes p. A taken transaction id is reported as
// domain.ErrTransactionIDTaken without aborting the transaction.
func (r *PaymentRepository) InsertPayment(ctx context.Context, p domain.Payment) error {
	const stmt = `
INSERT INTO payments (id, booking_id, payer_id, payee_id, amount_cents, currency, status, payment_type,
	payment_method, service_fee_cents, transaction_id, gateway_reference, original_payment_id,
	processed_at, failure_reason, refunded_at, version, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
ON CONFLICT (transaction_id) DO NOTHING`

	var original *string
	if p.OriginalPaymentID != "" {
		original = &p.OriginalPaymentID
	}

	tag, err := r.exec(ctx, stmt,
		p.ID, p.BookingID, p.PayerID, p.PayeeID, p.Amount, p.Currency, string(p.Status), string(p.Type),
		p.Method, p.ServiceFee, p.TransactionID, p.GatewayReference, original,
		p.ProcessedAt, p.FailureReason, p.RefundedAt, p.Version, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		switch {
		case isUniqueViolation(err, fullPaymentIndex):
			return domain.ErrDuplicateFullPayment
		case isInvalidUUID(err), isForeignKeyViolation(err):
			return domain.ErrInvalidID
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTransactionIDTaken
	}
	return nil
}

func (r *PaymentRepository) UpdatePayment(ctx context.Context, p domain.Payment, prevVersion int) error {
	const stmt = `
UPDATE payments
SET status = $3, gateway_reference = $4, processed_at = $5, failure_reason = $6,
	refunded_at = $7, updated_at = $8, version = version + 1
WHERE id = $1 AND version = $2`

	tag, err := r.exec(ctx, stmt,
		p.ID, prevVersion, string(p.Status), p.GatewayReference, p.ProcessedAt, p.FailureReason,
		p.RefundedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStaleWrite
	}
	return nil
}

func (r *PaymentRepository) SumRefunds(ctx context.Context, originalID string) (int64, error) {
	const query = `
SELECT COALESCE(SUM(amount_cents), 0)::bigint
FROM payments
WHERE original_payment_id = $1 AND payment_type = 'refund' AND status = 'completed'`

	var sum int64
	if err := r.queryRow(ctx, query, originalID).Scan(&sum); err != nil {
		return 0, fmt.Errorf("sum refunds: %w", err)
	}
	return sum, nil
}

func (r *PaymentRepository) SumCollected(ctx context.Context, bookingID string) (int64, error) {
	const query = `
SELECT COALESCE(SUM(amount_cents), 0)::bigint
FROM payments
WHERE booking_id = $1 AND payment_type <> 'refund' AND status = 'completed'`

	var sum int64
	if err := r.queryRow(ctx, query, bookingID).Scan(&sum); err != nil {
		return 0, fmt.Errorf("sum collected: %w", err)
	}
	return sum, nil
}

func scanPayment(row pgx.Row) (domain.Payment, error) {
	var p domain.Payment
	var status, paymentType string
	var original *string
	err := row.Scan(
		&p.ID, &p.BookingID, &p.PayerID, &p.PayeeID, &p.Amount, &p.Currency, &status, &paymentType,
		&p.Method, &p.ServiceFee, &p.TransactionID, &p.GatewayReference, &original,
		&p.ProcessedAt, &p.FailureReason, &p.RefundedAt, &p.Version, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return domain.Payment{}, err
	}
	p.Status = domain.PaymentStatus(status)
	p.Type = domain.PaymentType(paymentType)
	if original != nil {
		p.OriginalPaymentID = *original
	}
	return p, nil
}
