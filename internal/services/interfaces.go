package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rideshare/seat-booking-backend/internal/models"
)

// ScheduleStore is the seat inventory. Implemented by database.ScheduleRepository.
type ScheduleStore interface {
	GetScheduleByID(ctx context.Context, id uuid.UUID) (*models.Schedule, error)
	GetScheduleWithSeats(ctx context.Context, id uuid.UUID) (*models.Schedule, error)
	ReserveSeats(ctx context.Context, booking *models.Booking) error
	ReleaseBookingSeats(ctx context.Context, bookingID uuid.UUID, tr models.BookingTransition) (bool, error)
	DeleteReservation(ctx context.Context, bookingID uuid.UUID) error
}

// BookingStore reads bookings and records payment state.
// Implemented by database.BookingRepository.
type BookingStore interface {
	GetBookingByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	GetBookingByOrderID(ctx context.Context, orderID string) (*models.Booking, error)
	SetGatewayOrder(ctx context.Context, id uuid.UUID, orderID string) error
	ConfirmPayment(ctx context.Context, id uuid.UUID, conf models.PaymentConfirmation) (bool, error)
	ListTimedOutPending(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
}

// RouteStore resolves the routes and cars bookings point at
type RouteStore interface {
	GetRouteByID(ctx context.Context, id uuid.UUID) (*models.Route, error)
	GetCarByID(ctx context.Context, id uuid.UUID) (*models.Car, error)
}

// PaymentGateway creates payment orders and verifies payments
type PaymentGateway interface {
	CreateOrder(ctx context.Context, req OrderRequest) (*GatewayOrder, error)
	FetchOrder(ctx context.Context, orderID string) (*GatewayOrder, error)
	FetchPayment(ctx context.Context, paymentID string) (*GatewayPayment, error)
	VerifySignature(orderID, paymentID, signature string) bool
	ParseWebhook(body []byte, signature string) (*WebhookEvent, error)
	KeyID() string
}

// AuditLogger records payment audit entries
type AuditLogger interface {
	Log(ctx context.Context, audit *models.PaymentAudit) error
}

// AbandonmentScheduler arms the delayed sweep of a pending booking
type AbandonmentScheduler interface {
	ScheduleAbandon(ctx context.Context, bookingID uuid.UUID, at time.Time) error
}

// Notifier tells passengers about their booking. Delivery is best effort.
type Notifier interface {
	BookingReserved(ctx context.Context, booking *models.Booking)
	BookingConfirmed(ctx context.Context, booking *models.Booking)
	BookingCancelled(ctx context.Context, booking *models.Booking)
}
