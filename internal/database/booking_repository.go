package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rideshare/seat-booking-backend/internal/models"
)

// BookingRepository handles booking reads and payment-state updates.
// Seat-affecting writes live in ScheduleRepository.
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository creates a new BookingRepository
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

const bookingColumns = `
	b.id, b.user_id, b.route_id, b.schedule_id, b.car_id, b.passengers, b.selected_seats,
	b.total_amount, b.status, b.payment_status, b.advance_amount, b.remaining_amount,
	b.paid_amount, b.payment_date, b.gateway_order_id, b.gateway_payment_id, b.gateway_signature,
	b.payment_timeout, b.cached_schedule_data, b.schedule_deleted, b.schedule_deleted_at,
	b.cancelled_by, b.created_at, b.updated_at`

// GetBookingByID returns a booking, or nil if absent
func (r *BookingRepository) GetBookingByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	err := r.db.GetContext(ctx, &booking, `SELECT`+bookingColumns+` FROM bookings b WHERE b.id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return &booking, nil
}

// GetBookingByOrderID returns the booking correlated with a gateway order, or nil
func (r *BookingRepository) GetBookingByOrderID(ctx context.Context, orderID string) (*models.Booking, error) {
	var booking models.Booking
	err := r.db.GetContext(ctx, &booking, `SELECT`+bookingColumns+` FROM bookings b WHERE b.gateway_order_id = $1`, orderID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking by order: %w", err)
	}
	return &booking, nil
}

// SetGatewayOrder records the gateway order created for a pending booking
func (r *BookingRepository) SetGatewayOrder(ctx context.Context, id uuid.UUID, orderID string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE bookings SET gateway_order_id = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`, id, orderID)
	if err != nil {
		return fmt.Errorf("failed to set gateway order: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("booking %s is no longer pending", id)
	}
	return nil
}

// ConfirmPayment moves a pending, unexpired booking to confirmed/partially_paid.
// It reports false when the booking no longer qualifies.
func (r *BookingRepository) ConfirmPayment(ctx context.Context, id uuid.UUID, conf models.PaymentConfirmation) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE bookings
		SET status = 'confirmed',
		    payment_status = 'partially_paid',
		    paid_amount = $2,
		    remaining_amount = total_amount - $2,
		    payment_date = $3,
		    gateway_payment_id = $4,
		    gateway_signature = $5,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'pending' AND payment_timeout >= $3`,
		id, conf.PaidAmount, conf.PaidAt, conf.PaymentID, conf.Signature)
	if err != nil {
		return false, fmt.Errorf("failed to confirm booking: %w", err)
	}
	n, _ := result.RowsAffected()
	return n == 1, nil
}

// ListTimedOutPending returns up to limit pending bookings whose payment window closed before now
func (r *BookingRepository) ListTimedOutPending(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	ids := []uuid.UUID{}
	err := r.db.SelectContext(ctx, &ids, `
		SELECT id FROM bookings
		WHERE status = 'pending' AND payment_timeout < $1
		ORDER BY payment_timeout
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list timed out bookings: %w", err)
	}
	return ids, nil
}

// ListBookingsByUser returns a user's bookings, newest first
func (r *BookingRepository) ListBookingsByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Booking, error) {
	bookings := []models.Booking{}
	err := r.db.SelectContext(ctx, &bookings, `SELECT`+bookingColumns+`
		FROM bookings b
		WHERE b.user_id = $1
		ORDER BY b.created_at DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list user bookings: %w", err)
	}
	return bookings, nil
}

// ListBookingsByAdmin returns the bookings on routes administered by adminID
func (r *BookingRepository) ListBookingsByAdmin(ctx context.Context, adminID uuid.UUID, limit, offset int) ([]models.Booking, error) {
	bookings := []models.Booking{}
	err := r.db.SelectContext(ctx, &bookings, `SELECT`+bookingColumns+`
		FROM bookings b
		JOIN routes rt ON rt.id = b.route_id
		WHERE rt.admin_id = $1
		ORDER BY b.created_at DESC
		LIMIT $2 OFFSET $3`, adminID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list admin bookings: %w", err)
	}
	return bookings, nil
}
