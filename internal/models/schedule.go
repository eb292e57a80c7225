package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ScheduleStatus represents whether a schedule accepts reservations
type ScheduleStatus string

const (
	ScheduleStatusActive   ScheduleStatus = "active"
	ScheduleStatusInactive ScheduleStatus = "inactive"
)

// StartTimeLayout is the wall-clock format of Schedule.StartTime
const StartTimeLayout = "15:04"

// Seat is one entry of a schedule's seat layout
type Seat struct {
	SeatNumber string     `json:"seat_number" db:"seat_number"`
	SeatOrder  int        `json:"-" db:"seat_order"`
	IsBooked   bool       `json:"is_booked" db:"is_booked"`
	BookingID  *uuid.UUID `json:"-" db:"booking_id"`
}

// Schedule is a single dated departure of a route with its own seat inventory
type Schedule struct {
	ID             uuid.UUID      `json:"id" db:"id"`
	RouteID        uuid.UUID      `json:"route_id" db:"route_id"`
	Date           time.Time      `json:"date" db:"schedule_date"`
	StartTime      string         `json:"start_time" db:"start_time"`
	TotalSeats     int            `json:"total_seats" db:"total_seats"`
	AvailableSeats int            `json:"available_seats" db:"available_seats"`
	PricePerSeat   float64        `json:"price_per_seat" db:"price_per_seat"`
	Status         ScheduleStatus `json:"status" db:"status"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at" db:"updated_at"`

	SeatLayout []Seat `json:"seat_layout,omitempty" db:"-"`
}

// SeatNumber returns the conventional name of the n-th seat (1-based)
func SeatNumber(n int) string {
	return fmt.Sprintf("A%d", n)
}

// BuildSeatLayout returns a fresh layout of total unbooked seats
func BuildSeatLayout(total int) []Seat {
	layout := make([]Seat, total)
	for i := range layout {
		layout[i] = Seat{SeatNumber: SeatNumber(i + 1), SeatOrder: i + 1}
	}
	return layout
}

// Departure returns the departure instant of the schedule in loc
func (s *Schedule) Departure(loc *time.Location) (time.Time, error) {
	clock, err := time.Parse(StartTimeLayout, s.StartTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid start time %q: %w", s.StartTime, err)
	}
	y, m, d := s.Date.Date()
	return time.Date(y, m, d, clock.Hour(), clock.Minute(), 0, 0, loc), nil
}

// BookedSeats returns the seat numbers currently booked
func (s *Schedule) BookedSeats() []string {
	var booked []string
	for _, seat := range s.SeatLayout {
		if seat.IsBooked {
			booked = append(booked, seat.SeatNumber)
		}
	}
	return booked
}

// CheckInventory verifies availableSeats agrees with the layout
func (s *Schedule) CheckInventory() error {
	if s.AvailableSeats < 0 || s.AvailableSeats > s.TotalSeats {
		return fmt.Errorf("available seats %d outside [0, %d]", s.AvailableSeats, s.TotalSeats)
	}
	if s.SeatLayout == nil {
		return nil
	}
	free := len(s.SeatLayout) - len(s.BookedSeats())
	if len(s.SeatLayout) != s.TotalSeats || free != s.AvailableSeats {
		return fmt.Errorf("inventory mismatch: total=%d layout=%d available=%d free=%d",
			s.TotalSeats, len(s.SeatLayout), s.AvailableSeats, free)
	}
	return nil
}

// CreateScheduleRequest creates one schedule per date for a route
type CreateScheduleRequest struct {
	RouteID      uuid.UUID `json:"route_id" binding:"required"`
	Dates        []string  `json:"dates" binding:"required,min=1"` // YYYY-MM-DD
	StartTime    string    `json:"start_time" binding:"required"`  // HH:MM
	TotalSeats   int       `json:"total_seats" binding:"required,min=1"`
	PricePerSeat float64   `json:"price_per_seat" binding:"required,gt=0"`
}

// UpdateScheduleRequest holds the editable fields of a schedule
type UpdateScheduleRequest struct {
	PricePerSeat *float64        `json:"price_per_seat,omitempty"`
	Status       *ScheduleStatus `json:"status,omitempty"`
	StartTime    *string         `json:"start_time,omitempty"`
	TotalSeats   *int            `json:"total_seats,omitempty"`
}

// Validate checks the update payload
func (r *UpdateScheduleRequest) Validate() error {
	if r.PricePerSeat != nil && *r.PricePerSeat <= 0 {
		return NewValidationError("price_per_seat", "must be positive")
	}
	if r.Status != nil && *r.Status != ScheduleStatusActive && *r.Status != ScheduleStatusInactive {
		return NewValidationError("status", "must be 'active' or 'inactive'")
	}
	if r.StartTime != nil {
		if _, err := time.Parse(StartTimeLayout, *r.StartTime); err != nil {
			return NewValidationError("start_time", "must be HH:MM")
		}
	}
	if r.TotalSeats != nil && *r.TotalSeats < 1 {
		return NewValidationError("total_seats", "must be at least 1")
	}
	return nil
}

// AvailableSeatsResponse lists the free seats of a schedule
type AvailableSeatsResponse struct {
	ScheduleID     uuid.UUID `json:"schedule_id"`
	TotalSeats     int       `json:"total_seats"`
	AvailableSeats int       `json:"available_seats"`
	SeatLayout     []Seat    `json:"seat_layout"`
	PricePerSeat   float64   `json:"price_per_seat"`
}
