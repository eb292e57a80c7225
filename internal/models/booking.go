package models

import (
	"database/sql/driver"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BookingStatus represents the lifecycle state of a booking
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusAbandoned BookingStatus = "abandoned"
	BookingStatusExpired   BookingStatus = "expired"
)

// PaymentStatus represents the payment state of a booking
type PaymentStatus string

const (
	PaymentStatusPending       PaymentStatus = "pending"
	PaymentStatusPartiallyPaid PaymentStatus = "partially_paid"
	PaymentStatusCompleted     PaymentStatus = "completed"
	PaymentStatusFailed        PaymentStatus = "failed"
)

// Passenger is one traveler on a booking
type Passenger struct {
	Name   string `json:"name" binding:"required"`
	Age    int    `json:"age" binding:"required"`
	Gender string `json:"gender" binding:"required"`
	Phone  string `json:"phone" binding:"required"`
	Email  string `json:"email,omitempty"`
}

// Validate checks a passenger entry
func (p Passenger) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return NewValidationError("passengers.name", "is required")
	}
	if p.Age <= 0 || p.Age > 120 {
		return NewValidationError("passengers.age", "must be between 1 and 120")
	}
	switch p.Gender {
	case "male", "female", "other":
	default:
		return NewValidationError("passengers.gender", "must be male, female or other")
	}
	if strings.TrimSpace(p.Phone) == "" {
		return NewValidationError("passengers.phone", "is required")
	}
	return nil
}

// Passengers is stored as JSONB
type Passengers []Passenger

// Value implements the driver.Valuer interface
func (p Passengers) Value() (driver.Value, error) {
	if p == nil {
		return "[]", nil
	}
	return jsonValue(p)
}

// Scan implements the sql.Scanner interface
func (p *Passengers) Scan(src interface{}) error {
	if src == nil {
		*p = nil
		return nil
	}
	return jsonScan(src, p)
}

// CachedScheduleData is the schedule snapshot kept on a booking after its schedule is deleted
type CachedScheduleData struct {
	Date           time.Time `json:"date"`
	StartTime      string    `json:"start_time"`
	TotalSeats     int       `json:"total_seats"`
	AvailableSeats int       `json:"available_seats"`
	PricePerSeat   float64   `json:"price_per_seat"`
}

// Value implements the driver.Valuer interface
func (c CachedScheduleData) Value() (driver.Value, error) {
	return jsonValue(c)
}

// Scan implements the sql.Scanner interface
func (c *CachedScheduleData) Scan(src interface{}) error {
	if src == nil {
		return nil
	}
	return jsonScan(src, c)
}

// Booking is a traveler's reservation of seats on a schedule
type Booking struct {
	ID            uuid.UUID     `json:"id" db:"id"`
	UserID        uuid.UUID     `json:"user_id" db:"user_id"`
	RouteID       uuid.UUID     `json:"route_id" db:"route_id"`
	ScheduleID    *uuid.UUID    `json:"schedule_id,omitempty" db:"schedule_id"`
	CarID         uuid.UUID     `json:"car_id" db:"car_id"`
	Passengers    Passengers    `json:"passengers" db:"passengers"`
	SelectedSeats SeatNumbers   `json:"selected_seats" db:"selected_seats"`
	TotalAmount   float64       `json:"total_amount" db:"total_amount"`
	Status        BookingStatus `json:"status" db:"status"`
	PaymentStatus PaymentStatus `json:"payment_status" db:"payment_status"`

	// Payment split
	AdvanceAmount   float64    `json:"advance_amount" db:"advance_amount"`
	RemainingAmount float64    `json:"remaining_amount" db:"remaining_amount"`
	PaidAmount      float64    `json:"paid_amount" db:"paid_amount"`
	PaymentDate     *time.Time `json:"payment_date,omitempty" db:"payment_date"`

	// Gateway correlation
	GatewayOrderID   *string   `json:"gateway_order_id,omitempty" db:"gateway_order_id"`
	GatewayPaymentID *string   `json:"gateway_payment_id,omitempty" db:"gateway_payment_id"`
	GatewaySignature *string   `json:"-" db:"gateway_signature"`
	PaymentTimeout   time.Time `json:"payment_timeout" db:"payment_timeout"`

	// Snapshot kept when the schedule is deleted
	CachedScheduleData *CachedScheduleData `json:"cached_schedule_data,omitempty" db:"cached_schedule_data"`
	ScheduleDeleted    bool                `json:"schedule_deleted" db:"schedule_deleted"`
	ScheduleDeletedAt  *time.Time          `json:"schedule_deleted_at,omitempty" db:"schedule_deleted_at"`

	CancelledBy *uuid.UUID `json:"cancelled_by,omitempty" db:"cancelled_by"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// PaymentDetails groups the payment split of a booking
type PaymentDetails struct {
	AdvanceAmount   float64    `json:"advance_amount"`
	RemainingAmount float64    `json:"remaining_amount"`
	TotalAmount     float64    `json:"total_amount"`
	PaymentDate     *time.Time `json:"payment_date,omitempty"`
}

// PaymentDetails returns the payment split of the booking
func (b *Booking) PaymentDetails() PaymentDetails {
	return PaymentDetails{
		AdvanceAmount:   b.AdvanceAmount,
		RemainingAmount: b.RemainingAmount,
		TotalAmount:     b.TotalAmount,
		PaymentDate:     b.PaymentDate,
	}
}

// IsPaymentExpired reports whether the payment window closed before now
func (b *Booking) IsPaymentExpired(now time.Time) bool {
	return now.After(b.PaymentTimeout)
}

// SplitPayment divides total into an advance of advancePercent and the remainder,
// both rounded to whole currency units with advance + remaining == total
func SplitPayment(total float64, advancePercent int) (advance, remaining float64) {
	total = math.Round(total)
	advance = math.Round(total * float64(advancePercent) / 100)
	return advance, total - advance
}

// BookingTransition describes a conditional status change that releases seats
type BookingTransition struct {
	From          []BookingStatus
	To            BookingStatus
	PaymentStatus PaymentStatus // empty keeps the current value
	Now           time.Time
	RequireExpiry bool       // only when payment_timeout < Now
	CancelledBy   *uuid.UUID // recorded for admin cancellations
}

// PaymentConfirmation is the data recorded when a payment is verified
type PaymentConfirmation struct {
	OrderID    string
	PaymentID  string
	Signature  string
	PaidAmount float64
	PaidAt     time.Time
}

// ReserveRequest is the payload for reserving seats
type ReserveRequest struct {
	ScheduleID    uuid.UUID   `json:"schedule_id" binding:"required"`
	RouteID       uuid.UUID   `json:"route_id" binding:"required"`
	CarID         uuid.UUID   `json:"car_id" binding:"required"`
	SelectedSeats []string    `json:"selected_seats" binding:"required"`
	Passengers    []Passenger `json:"passengers" binding:"required"`
}

// ReserveResponse is returned after a successful reservation
type ReserveResponse struct {
	Booking        *Booking       `json:"booking"`
	PaymentDetails PaymentDetails `json:"payment_details"`
	OrderID        string         `json:"order_id"`
	KeyID          string         `json:"key_id"`
	Amount         int64          `json:"amount"` // minor units
	Currency       string         `json:"currency"`
}

// ConfirmPaymentRequest is the payload posted after checkout
type ConfirmPaymentRequest struct {
	BookingID *uuid.UUID `json:"booking_id,omitempty"`
	OrderID   string     `json:"razorpay_order_id" binding:"required"`
	PaymentID string     `json:"razorpay_payment_id" binding:"required"`
	Signature string     `json:"razorpay_signature" binding:"required"`
}
