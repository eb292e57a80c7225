package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rideshare/seat-booking-backend/internal/models"
	"github.com/sirupsen/logrus"
)

// WebhookSignatureHeader carries the HMAC of the raw webhook body
const WebhookSignatureHeader = "X-Razorpay-Signature"

// Reserver holds seats for a traveler
type Reserver interface {
	Reserve(ctx context.Context, userID uuid.UUID, req *models.ReserveRequest) (*models.ReserveResponse, error)
}

// PaymentConfirmer reconciles gateway payments with pending bookings
type PaymentConfirmer interface {
	Confirm(ctx context.Context, req *models.ConfirmPaymentRequest) (*models.Booking, error)
	HandleWebhook(ctx context.Context, body []byte, signature string) error
}

// BookingQueries serves booking reads and admin cancellation
type BookingQueries interface {
	Cancel(ctx context.Context, bookingID, adminID uuid.UUID) (*models.Booking, error)
	GetMyBookings(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Booking, error)
	GetAdminBookings(ctx context.Context, adminID uuid.UUID, limit, offset int) ([]models.Booking, error)
	GetBookingDetail(ctx context.Context, bookingID, callerID uuid.UUID) (*models.Booking, error)
	GetAvailableSeats(ctx context.Context, scheduleID uuid.UUID) (*models.AvailableSeatsResponse, error)
}

// BookingHandler handles traveler booking and payment endpoints
type BookingHandler struct {
	reservations Reserver
	payments     PaymentConfirmer
	bookings     BookingQueries
	logger       *logrus.Logger
}

// NewBookingHandler creates a new BookingHandler
func NewBookingHandler(reservations Reserver, payments PaymentConfirmer, bookings BookingQueries, logger *logrus.Logger) *BookingHandler {
	return &BookingHandler{
		reservations: reservations,
		payments:     payments,
		bookings:     bookings,
		logger:       logger,
	}
}

// Reserve holds the selected seats and opens a payment order
// @Summary Reserve seats
// @Tags Bookings
// @Accept json
// @Produce json
// @Param request body models.ReserveRequest true "Reservation request"
// @Success 201 {object} models.ReserveResponse
// @Failure 400 {object} map[string]interface{} "Invalid request"
// @Failure 404 {object} map[string]interface{} "Schedule not found"
// @Failure 409 {object} map[string]interface{} "Seats unavailable"
// @Failure 502 {object} map[string]interface{} "Payment gateway error"
// @Security BearerAuth
// @Router /api/v1/bookings [post]
func (h *BookingHandler) Reserve(c *gin.Context) {
	userCtx, ok := currentUser(c)
	if !ok {
		return
	}

	var req models.ReserveRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.reservations.Reserve(c.Request.Context(), userCtx.UserID, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// ConfirmPayment verifies a checkout result and confirms the booking
// @Summary Confirm payment
// @Tags Bookings
// @Accept json
// @Produce json
// @Param request body models.ConfirmPaymentRequest true "Checkout result"
// @Success 200 {object} models.Booking
// @Failure 401 {object} map[string]interface{} "Signature mismatch"
// @Failure 402 {object} map[string]interface{} "Payment not captured"
// @Failure 409 {object} map[string]interface{} "Booking not pending"
// @Failure 410 {object} map[string]interface{} "Payment window expired"
// @Security BearerAuth
// @Router /api/v1/bookings/confirm-payment [post]
func (h *BookingHandler) ConfirmPayment(c *gin.Context) {
	if _, ok := currentUser(c); !ok {
		return
	}

	var req models.ConfirmPaymentRequest
	if !bindJSON(c, &req) {
		return
	}

	booking, err := h.payments.Confirm(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Payment confirmed",
		"booking": booking,
	})
}

// PaymentWebhook receives gateway payment events. The body must be read raw
// because the signature covers its exact bytes.
// @Router /api/v1/payments/webhook [post]
func (h *BookingHandler) PaymentWebhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read body"})
		return
	}

	if err := h.payments.HandleWebhook(c.Request.Context(), body, c.GetHeader(WebhookSignatureHeader)); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetMyBookings lists the caller's bookings
// @Router /api/v1/bookings/my [get]
func (h *BookingHandler) GetMyBookings(c *gin.Context) {
	userCtx, ok := currentUser(c)
	if !ok {
		return
	}

	limit, offset := pageParams(c)
	bookings, err := h.bookings.GetMyBookings(c.Request.Context(), userCtx.UserID, limit, offset)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"bookings": bookings,
		"count":    len(bookings),
		"limit":    limit,
		"offset":   offset,
	})
}

// GetBooking returns one booking to its traveler or route admin
// @Router /api/v1/bookings/{id} [get]
func (h *BookingHandler) GetBooking(c *gin.Context) {
	userCtx, ok := currentUser(c)
	if !ok {
		return
	}
	bookingID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	booking, err := h.bookings.GetBookingDetail(c.Request.Context(), bookingID, userCtx.UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

// GetAvailableSeats returns the seat layout of a schedule
// @Router /api/v1/schedules/{id}/seats [get]
func (h *BookingHandler) GetAvailableSeats(c *gin.Context) {
	scheduleID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	seats, err := h.bookings.GetAvailableSeats(c.Request.Context(), scheduleID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, seats)
}

// GetAdminBookings lists bookings on the admin's routes
// @Security BearerAuth
// @Router /api/v1/admin/bookings [get]
func (h *BookingHandler) GetAdminBookings(c *gin.Context) {
	userCtx, ok := currentUser(c)
	if !ok {
		return
	}

	limit, offset := pageParams(c)
	bookings, err := h.bookings.GetAdminBookings(c.Request.Context(), userCtx.UserID, limit, offset)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"bookings": bookings,
		"count":    len(bookings),
		"limit":    limit,
		"offset":   offset,
	})
}

// CancelBooking cancels a pending or confirmed booking and frees its seats
// @Security BearerAuth
// @Router /api/v1/admin/bookings/{id}/cancel [post]
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	userCtx, ok := currentUser(c)
	if !ok {
		return
	}
	bookingID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	booking, err := h.bookings.Cancel(c.Request.Context(), bookingID, userCtx.UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Booking cancelled",
		"booking": booking,
	})
}

// pageParams reads limit and offset query parameters; the service clamps them
func pageParams(c *gin.Context) (int, int) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	return limit, offset
}
