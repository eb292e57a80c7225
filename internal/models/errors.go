package models

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError is returned for malformed or inconsistent input
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError creates a ValidationError
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// NotFoundError is returned when a schedule, route, car or booking does not exist
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// NewNotFoundError creates a NotFoundError
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// InactiveScheduleError is returned when reserving on a schedule that is not active
type InactiveScheduleError struct {
	ScheduleID string
}

func (e *InactiveScheduleError) Error() string {
	return fmt.Sprintf("schedule %s is not active", e.ScheduleID)
}

// CapacityError is returned when a schedule has fewer free seats than requested
type CapacityError struct {
	Requested int
	Available int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("only %d seats available, %d requested", e.Available, e.Requested)
}

// SeatConflictError names the seats that are already booked
type SeatConflictError struct {
	Seats []string
}

func (e *SeatConflictError) Error() string {
	if len(e.Seats) == 0 {
		return "selected seats are no longer available"
	}
	return fmt.Sprintf("seats already booked: %s", strings.Join(e.Seats, ", "))
}

// AuthenticityError is returned when a payment signature does not verify
type AuthenticityError struct {
	Message string
}

func (e *AuthenticityError) Error() string {
	if e.Message == "" {
		return "payment signature verification failed"
	}
	return e.Message
}

// InvalidStateError is returned when a booking is in the wrong status for a transition
type InvalidStateError struct {
	Status BookingStatus
	Action string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s booking in status %q", e.Action, e.Status)
}

// ExpiredError is returned when the payment window of a booking has closed
type ExpiredError struct {
	BookingID string
}

func (e *ExpiredError) Error() string {
	return fmt.Sprintf("payment window for booking %s has expired", e.BookingID)
}

// PaymentNotSuccessfulError is returned when the gateway reports a non-captured payment
type PaymentNotSuccessfulError struct {
	Status string
}

func (e *PaymentNotSuccessfulError) Error() string {
	return fmt.Sprintf("payment not successful (status: %s)", e.Status)
}

// GatewayError wraps a payment gateway failure
type GatewayError struct {
	Code        string
	Description string
	Err         error
}

func (e *GatewayError) Error() string {
	msg := "payment gateway error"
	if e.Code != "" {
		msg += " [" + e.Code + "]"
	}
	if e.Description != "" {
		msg += ": " + e.Description
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// IsValidationError checks if err is a ValidationError
func IsValidationError(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsNotFoundError checks if err is a NotFoundError
func IsNotFoundError(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsSeatConflictError checks if err is a SeatConflictError
func IsSeatConflictError(err error) bool {
	var target *SeatConflictError
	return errors.As(err, &target)
}

// IsGatewayError checks if err is a GatewayError
func IsGatewayError(err error) bool {
	var target *GatewayError
	return errors.As(err, &target)
}
