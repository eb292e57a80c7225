package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rideshare/seat-booking-backend/internal/models"
)

// ErrSeatsUnavailable is returned when a conditional inventory update matched
// fewer rows than requested; the transaction has been rolled back
var ErrSeatsUnavailable = errors.New("seats no longer available")

// ScheduleRepository owns route schedules and their seat inventory
type ScheduleRepository struct {
	db *sqlx.DB
}

// NewScheduleRepository creates a new ScheduleRepository
func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

const scheduleColumns = `
	id, route_id, schedule_date, start_time, total_seats, available_seats,
	price_per_seat, status, created_at, updated_at`

// ============================================================================
// READS
// ============================================================================

// GetScheduleByID returns a schedule without its layout, or nil if absent
func (r *ScheduleRepository) GetScheduleByID(ctx context.Context, id uuid.UUID) (*models.Schedule, error) {
	var schedule models.Schedule
	query := `SELECT` + scheduleColumns + ` FROM route_schedules WHERE id = $1`
	err := r.db.GetContext(ctx, &schedule, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}
	return &schedule, nil
}

// GetScheduleWithSeats returns a consistent snapshot of a schedule and its ordered layout
func (r *ScheduleRepository) GetScheduleWithSeats(ctx context.Context, id uuid.UUID) (*models.Schedule, error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to begin snapshot: %w", err)
	}
	defer tx.Rollback()

	var schedule models.Schedule
	err = tx.GetContext(ctx, &schedule, `SELECT`+scheduleColumns+` FROM route_schedules WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}

	err = tx.SelectContext(ctx, &schedule.SeatLayout, `
		SELECT seat_number, seat_order, is_booked, booking_id
		FROM schedule_seats
		WHERE schedule_id = $1
		ORDER BY seat_order`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get seat layout: %w", err)
	}

	return &schedule, tx.Commit()
}

// ListSchedulesByRoute returns the schedules of a route ordered by date
func (r *ScheduleRepository) ListSchedulesByRoute(ctx context.Context, routeID uuid.UUID) ([]models.Schedule, error) {
	schedules := []models.Schedule{}
	query := `SELECT` + scheduleColumns + ` FROM route_schedules WHERE route_id = $1 ORDER BY schedule_date, start_time`
	if err := r.db.SelectContext(ctx, &schedules, query, routeID); err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	return schedules, nil
}

// FindExistingDates returns which of dates already have a schedule for the route
func (r *ScheduleRepository) FindExistingDates(ctx context.Context, routeID uuid.UUID, dates []time.Time) ([]time.Time, error) {
	days := make([]string, len(dates))
	for i, d := range dates {
		days[i] = d.Format("2006-01-02")
	}

	existing := []time.Time{}
	err := r.db.SelectContext(ctx, &existing, `
		SELECT schedule_date FROM route_schedules
		WHERE route_id = $1 AND schedule_date = ANY($2::date[])
		ORDER BY schedule_date`, routeID, pq.Array(days))
	if err != nil {
		return nil, fmt.Errorf("failed to check existing schedules: %w", err)
	}
	return existing, nil
}

type searchRow struct {
	models.Schedule
	RouteName    string           `db:"route_name"`
	CarID        uuid.UUID        `db:"car_id"`
	AdminID      uuid.UUID        `db:"admin_id"`
	StartAddress string           `db:"start_address"`
	StartLat     *float64         `db:"start_lat"`
	StartLng     *float64         `db:"start_lng"`
	EndAddress   string           `db:"end_address"`
	EndLat       *float64         `db:"end_lat"`
	EndLng       *float64         `db:"end_lng"`
	Waypoints    models.Waypoints `db:"waypoints"`
	CarModel     string           `db:"car_model"`
	CarReg       string           `db:"car_registration"`
}

// ListBookableOnDate returns active schedules of active routes on date with at
// least minSeats free, joined with their route and car
func (r *ScheduleRepository) ListBookableOnDate(ctx context.Context, date time.Time, minSeats int) ([]models.SearchCandidate, error) {
	rows := []searchRow{}
	err := r.db.SelectContext(ctx, &rows, `
		SELECT
			s.id, s.route_id, s.schedule_date, s.start_time, s.total_seats, s.available_seats,
			s.price_per_seat, s.status, s.created_at, s.updated_at,
			rt.name AS route_name, rt.car_id, rt.admin_id,
			rt.start_address, rt.start_lat, rt.start_lng,
			rt.end_address, rt.end_lat, rt.end_lng, rt.waypoints,
			c.model AS car_model, c.registration_number AS car_registration
		FROM route_schedules s
		JOIN routes rt ON rt.id = s.route_id
		JOIN cars c ON c.id = rt.car_id
		WHERE s.schedule_date = $1::date
		  AND s.status = 'active'
		  AND rt.status = 'active'
		  AND s.available_seats >= $2`, date.Format("2006-01-02"), minSeats)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookable schedules: %w", err)
	}

	candidates := make([]models.SearchCandidate, 0, len(rows))
	for _, row := range rows {
		candidates = append(candidates, models.SearchCandidate{
			Schedule: row.Schedule,
			Route: models.Route{
				ID:        row.RouteID,
				Name:      row.RouteName,
				CarID:     row.CarID,
				AdminID:   row.AdminID,
				StartAddr: row.StartAddress,
				StartLat:  row.StartLat,
				StartLng:  row.StartLng,
				EndAddr:   row.EndAddress,
				EndLat:    row.EndLat,
				EndLng:    row.EndLng,
				Waypoints: row.Waypoints,
				Status:    models.FleetStatusActive,
			},
			CarModel: row.CarModel,
			CarReg:   row.CarReg,
		})
	}
	return candidates, nil
}

// ============================================================================
// ADMIN EDITS
// ============================================================================

// CreateSchedules inserts schedules with a fresh seat layout each, in one transaction
func (r *ScheduleRepository) CreateSchedules(ctx context.Context, schedules []*models.Schedule) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, s := range schedules {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO route_schedules (
				id, route_id, schedule_date, start_time, total_seats, available_seats,
				price_per_seat, status, created_at, updated_at
			) VALUES ($1, $2, $3::date, $4, $5, $5, $6, $7, NOW(), NOW())`,
			s.ID, s.RouteID, s.Date.Format("2006-01-02"), s.StartTime, s.TotalSeats, s.PricePerSeat, s.Status)
		if err != nil {
			return fmt.Errorf("failed to insert schedule for %s: %w", s.Date.Format("2006-01-02"), err)
		}

		if err := insertSeatsTx(ctx, tx, s.ID, 1, s.TotalSeats); err != nil {
			return err
		}
		s.AvailableSeats = s.TotalSeats
		s.SeatLayout = models.BuildSeatLayout(s.TotalSeats)
	}

	return tx.Commit()
}

// insertSeatsTx appends free seats A<from>..A<to>
func insertSeatsTx(ctx context.Context, tx *sqlx.Tx, scheduleID uuid.UUID, from, to int) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO schedule_seats (schedule_id, seat_number, seat_order, is_booked)
		SELECT $1, 'A' || n, n, FALSE FROM generate_series($2::int, $3::int) AS n`,
		scheduleID, from, to)
	if err != nil {
		return fmt.Errorf("failed to create seat layout: %w", err)
	}
	return nil
}

// UpdateSchedule applies an admin edit. Capacity changes re-derive the layout:
// growth appends free seats, shrinking drops only trailing unbooked seats.
func (r *ScheduleRepository) UpdateSchedule(ctx context.Context, id uuid.UUID, req *models.UpdateScheduleRequest) (*models.Schedule, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var current models.Schedule
	err = tx.GetContext(ctx, &current, `SELECT`+scheduleColumns+` FROM route_schedules WHERE id = $1 FOR UPDATE`, id)
	if err == sql.ErrNoRows {
		return nil, models.NewNotFoundError("schedule", id.String())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock schedule: %w", err)
	}

	if req.PricePerSeat != nil {
		current.PricePerSeat = *req.PricePerSeat
	}
	if req.Status != nil {
		current.Status = *req.Status
	}
	if req.StartTime != nil {
		current.StartTime = *req.StartTime
	}

	if req.TotalSeats != nil && *req.TotalSeats != current.TotalSeats {
		newTotal := *req.TotalSeats

		var booked int
		if err := tx.GetContext(ctx, &booked,
			`SELECT COUNT(*) FROM schedule_seats WHERE schedule_id = $1 AND is_booked`, id); err != nil {
			return nil, fmt.Errorf("failed to count booked seats: %w", err)
		}
		if newTotal < booked {
			return nil, models.NewValidationError("total_seats",
				fmt.Sprintf("cannot reduce below %d booked seats", booked))
		}

		if newTotal > current.TotalSeats {
			if err := insertSeatsTx(ctx, tx, id, current.TotalSeats+1, newTotal); err != nil {
				return nil, err
			}
		} else {
			var blocking []string
			if err := tx.SelectContext(ctx, &blocking, `
				SELECT seat_number FROM schedule_seats
				WHERE schedule_id = $1 AND seat_order > $2 AND is_booked
				ORDER BY seat_order`, id, newTotal); err != nil {
				return nil, fmt.Errorf("failed to check trailing seats: %w", err)
			}
			if len(blocking) > 0 {
				return nil, models.NewValidationError("total_seats",
					fmt.Sprintf("booked seats %v would be removed", blocking))
			}
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM schedule_seats WHERE schedule_id = $1 AND seat_order > $2`, id, newTotal); err != nil {
				return nil, fmt.Errorf("failed to shrink seat layout: %w", err)
			}
		}

		current.TotalSeats = newTotal
		current.AvailableSeats = newTotal - booked
	}

	err = tx.GetContext(ctx, &current.UpdatedAt, `
		UPDATE route_schedules
		SET price_per_seat = $2, status = $3, start_time = $4,
		    total_seats = $5, available_seats = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		id, current.PricePerSeat, current.Status, current.StartTime, current.TotalSeats, current.AvailableSeats)
	if err != nil {
		return nil, fmt.Errorf("failed to update schedule: %w", err)
	}

	return &current, tx.Commit()
}

// DeleteScheduleWithSnapshot copies the schedule's data into every booking that
// references it, flags them, then deletes the schedule and its layout. The
// schedule row is locked first, the same row ReserveSeats updates, so with
// refuseActive no reservation can land between the booking check and the delete.
func (r *ScheduleRepository) DeleteScheduleWithSnapshot(ctx context.Context, schedule *models.Schedule, deletedAt time.Time, refuseActive bool) (int64, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var available int
	err = tx.GetContext(ctx, &available, `SELECT available_seats FROM route_schedules WHERE id = $1 FOR UPDATE`, schedule.ID)
	if err == sql.ErrNoRows {
		return 0, models.NewNotFoundError("schedule", schedule.ID.String())
	}
	if err != nil {
		return 0, fmt.Errorf("failed to lock schedule: %w", err)
	}

	if refuseActive {
		var active int
		err = tx.GetContext(ctx, &active, `
			SELECT COUNT(*) FROM bookings
			WHERE schedule_id = $1 AND status IN ('pending', 'confirmed')`, schedule.ID)
		if err != nil {
			return 0, fmt.Errorf("failed to count bookings: %w", err)
		}
		if active > 0 {
			return 0, models.NewValidationError("schedule",
				fmt.Sprintf("cannot delete an upcoming schedule with %d active bookings", active))
		}
	}

	snapshot := models.CachedScheduleData{
		Date:           schedule.Date,
		StartTime:      schedule.StartTime,
		TotalSeats:     schedule.TotalSeats,
		AvailableSeats: available,
		PricePerSeat:   schedule.PricePerSeat,
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE bookings
		SET cached_schedule_data = $2, schedule_deleted = TRUE, schedule_deleted_at = $3, updated_at = NOW()
		WHERE schedule_id = $1`, schedule.ID, snapshot, deletedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to snapshot bookings: %w", err)
	}
	affected, _ := result.RowsAffected()

	result, err = tx.ExecContext(ctx, `DELETE FROM route_schedules WHERE id = $1`, schedule.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete schedule: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return 0, models.NewNotFoundError("schedule", schedule.ID.String())
	}

	return affected, tx.Commit()
}

// ============================================================================
// ATOMIC INVENTORY OPERATIONS
// ============================================================================

// ReserveSeats takes the seats of a pending booking and inserts it, as one
// indivisible operation. The schedule row is locked first so that concurrent
// reservations on one schedule serialize; every update is conditional and a
// short count rolls the whole transaction back with ErrSeatsUnavailable.
func (r *ScheduleRepository) ReserveSeats(ctx context.Context, booking *models.Booking) error {
	if booking.ScheduleID == nil || len(booking.SelectedSeats) == 0 {
		return fmt.Errorf("booking has no schedule or seats")
	}
	seatCount := len(booking.SelectedSeats)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// 1. Decrement capacity only if the schedule is active and has room
	result, err := tx.ExecContext(ctx, `
		UPDATE route_schedules
		SET available_seats = available_seats - $2, updated_at = NOW()
		WHERE id = $1 AND status = 'active' AND available_seats >= $2`,
		*booking.ScheduleID, seatCount)
	if err != nil {
		return fmt.Errorf("failed to decrement available seats: %w", err)
	}
	if n, _ := result.RowsAffected(); n != 1 {
		return ErrSeatsUnavailable
	}

	// 2. Mark exactly the named seats, only where still free
	result, err = tx.ExecContext(ctx, `
		UPDATE schedule_seats
		SET is_booked = TRUE, booking_id = $3
		WHERE schedule_id = $1 AND seat_number = ANY($2) AND NOT is_booked`,
		*booking.ScheduleID, pq.Array([]string(booking.SelectedSeats)), booking.ID)
	if err != nil {
		return fmt.Errorf("failed to mark seats: %w", err)
	}
	if n, _ := result.RowsAffected(); int(n) != seatCount {
		return ErrSeatsUnavailable
	}

	// 3. Insert the pending booking
	_, err = tx.ExecContext(ctx, `
		INSERT INTO bookings (
			id, user_id, route_id, schedule_id, car_id, passengers, selected_seats,
			total_amount, status, payment_status, advance_amount, remaining_amount,
			payment_timeout, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)`,
		booking.ID, booking.UserID, booking.RouteID, booking.ScheduleID, booking.CarID,
		booking.Passengers, booking.SelectedSeats, booking.TotalAmount,
		booking.Status, booking.PaymentStatus, booking.AdvanceAmount, booking.RemainingAmount,
		booking.PaymentTimeout, booking.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert booking: %w", err)
	}

	return tx.Commit()
}

// ReleaseBookingSeats applies a conditional status transition to a booking and,
// if it matched, returns its seats to the schedule in the same transaction.
// It reports false without changing anything when the booking is no longer in
// one of tr.From (or, with RequireExpiry, has not timed out yet).
func (r *ScheduleRepository) ReleaseBookingSeats(ctx context.Context, bookingID uuid.UUID, tr models.BookingTransition) (bool, error) {
	from := make([]string, len(tr.From))
	for i, s := range tr.From {
		from[i] = string(s)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	query := `
		UPDATE bookings
		SET status = $2, payment_status = COALESCE(NULLIF($3, ''), payment_status), cancelled_by = COALESCE($4, cancelled_by), updated_at = NOW()
		WHERE id = $1 AND status = ANY($5)`
	args := []interface{}{bookingID, tr.To, tr.PaymentStatus, tr.CancelledBy, pq.Array(from)}
	if tr.RequireExpiry {
		query += ` AND payment_timeout < $6`
		args = append(args, tr.Now)
	}
	query += ` RETURNING schedule_id, cardinality(selected_seats)`

	var scheduleID *uuid.UUID
	var seatCount int
	err = tx.QueryRowxContext(ctx, query, args...).Scan(&scheduleID, &seatCount)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to transition booking: %w", err)
	}

	if scheduleID != nil {
		if err := releaseSeatsTx(ctx, tx, *scheduleID, bookingID, seatCount); err != nil {
			return false, err
		}
	}

	return true, tx.Commit()
}

// DeleteReservation undoes ReserveSeats for a still-pending booking: the seats
// go back to the schedule and the booking row is removed
func (r *ScheduleRepository) DeleteReservation(ctx context.Context, bookingID uuid.UUID) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var scheduleID *uuid.UUID
	var seatCount int
	err = tx.QueryRowxContext(ctx, `
		DELETE FROM bookings
		WHERE id = $1 AND status = 'pending'
		RETURNING schedule_id, cardinality(selected_seats)`, bookingID).Scan(&scheduleID, &seatCount)
	if err == sql.ErrNoRows {
		return models.NewNotFoundError("pending booking", bookingID.String())
	}
	if err != nil {
		return fmt.Errorf("failed to delete booking: %w", err)
	}

	if scheduleID != nil {
		if err := releaseSeatsTx(ctx, tx, *scheduleID, bookingID, seatCount); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// releaseSeatsTx returns seatCount seats held by bookingID to the schedule,
// locking the schedule row before the seat rows as ReserveSeats does
func releaseSeatsTx(ctx context.Context, tx *sqlx.Tx, scheduleID, bookingID uuid.UUID, seatCount int) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE route_schedules
		SET available_seats = available_seats + $2, updated_at = NOW()
		WHERE id = $1 AND available_seats + $2 <= total_seats`, scheduleID, seatCount)
	if err != nil {
		return fmt.Errorf("failed to increment available seats: %w", err)
	}
	if n, _ := result.RowsAffected(); n != 1 {
		return fmt.Errorf("schedule %s cannot take back %d seats", scheduleID, seatCount)
	}

	result, err = tx.ExecContext(ctx, `
		UPDATE schedule_seats
		SET is_booked = FALSE, booking_id = NULL
		WHERE schedule_id = $1 AND booking_id = $2`, scheduleID, bookingID)
	if err != nil {
		return fmt.Errorf("failed to release seats: %w", err)
	}
	if n, _ := result.RowsAffected(); int(n) != seatCount {
		return fmt.Errorf("released %d seats for booking %s, expected %d", n, bookingID, seatCount)
	}

	return nil
}
