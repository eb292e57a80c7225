package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentEventType represents the type of payment event
type PaymentEventType string

const (
	PaymentEventOrderCreated       PaymentEventType = "order_created"
	PaymentEventOrderFailed        PaymentEventType = "order_failed"
	PaymentEventConfirmAttempt     PaymentEventType = "confirm_attempt"
	PaymentEventSignatureMismatch  PaymentEventType = "signature_mismatch"
	PaymentEventStatusCheck        PaymentEventType = "status_check"
	PaymentEventNotSuccessful      PaymentEventType = "payment_not_successful"
	PaymentEventBookingConfirmed   PaymentEventType = "booking_confirmed"
	PaymentEventDuplicateConfirm   PaymentEventType = "duplicate_confirm"
	PaymentEventWebhookReceived    PaymentEventType = "webhook_received"
	PaymentEventBookingAbandoned   PaymentEventType = "booking_abandoned"
	PaymentEventBookingCancelled   PaymentEventType = "booking_cancelled"
	PaymentEventReservationRevoked PaymentEventType = "reservation_revoked"
)

// PaymentEventSource identifies where the event originated
type PaymentEventSource string

const (
	PaymentSourceBackend PaymentEventSource = "backend"
	PaymentSourceWebhook PaymentEventSource = "gateway_webhook"
	PaymentSourceGateway PaymentEventSource = "gateway_api"
	PaymentSourceUser    PaymentEventSource = "user"
	PaymentSourceSystem  PaymentEventSource = "system"
)

// PaymentAudit represents an immutable audit log entry for payment events
type PaymentAudit struct {
	ID           uuid.UUID          `json:"id" db:"id"`
	BookingID    *uuid.UUID         `json:"booking_id,omitempty" db:"booking_id"`
	OrderID      *string            `json:"order_id,omitempty" db:"order_id"`
	PaymentID    *string            `json:"payment_id,omitempty" db:"payment_id"`
	EventType    PaymentEventType   `json:"event_type" db:"event_type"`
	EventSource  PaymentEventSource `json:"event_source" db:"event_source"`
	Amount       *float64           `json:"amount,omitempty" db:"amount"`
	Status       *string            `json:"status,omitempty" db:"status"`
	ErrorMessage *string            `json:"error_message,omitempty" db:"error_message"`
	CreatedAt    time.Time          `json:"created_at" db:"created_at"`
}

// NewPaymentAudit starts an audit entry for a booking
func NewPaymentAudit(bookingID *uuid.UUID, eventType PaymentEventType, source PaymentEventSource) *PaymentAudit {
	return &PaymentAudit{
		ID:          uuid.New(),
		BookingID:   bookingID,
		EventType:   eventType,
		EventSource: source,
		CreatedAt:   time.Now(),
	}
}

// WithOrder sets the gateway order and payment ids
func (a *PaymentAudit) WithOrder(orderID, paymentID string) *PaymentAudit {
	if orderID != "" {
		a.OrderID = &orderID
	}
	if paymentID != "" {
		a.PaymentID = &paymentID
	}
	return a
}

// WithError records an error message
func (a *PaymentAudit) WithError(err error) *PaymentAudit {
	if err != nil {
		msg := err.Error()
		a.ErrorMessage = &msg
	}
	return a
}

// WithStatus records a gateway or booking status
func (a *PaymentAudit) WithStatus(status string, amount *float64) *PaymentAudit {
	if status != "" {
		a.Status = &status
	}
	a.Amount = amount
	return a
}
