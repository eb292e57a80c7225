package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rideshare/seat-booking-backend/internal/middleware"
	"github.com/rideshare/seat-booking-backend/internal/models"
	"github.com/rideshare/seat-booking-backend/internal/services"
	"github.com/sirupsen/logrus"
)

// respondError writes the JSON error body and status for a service error.
// Unknown errors are logged and reported as 500 without details.
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	var (
		validation   *models.ValidationError
		notFound     *models.NotFoundError
		inactive     *models.InactiveScheduleError
		capacity     *models.CapacityError
		conflict     *models.SeatConflictError
		authenticity *models.AuthenticityError
		invalidState *models.InvalidStateError
		expired      *models.ExpiredError
		notPaid      *models.PaymentNotSuccessfulError
		gateway      *models.GatewayError
		rateLimited  *services.RateLimitError
	)

	switch {
	case errors.As(err, &validation):
		body := gin.H{"error": validation.Error(), "code": "VALIDATION_FAILED"}
		if validation.Field != "" {
			body["field"] = validation.Field
		}
		c.JSON(http.StatusBadRequest, body)
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"error": notFound.Error(), "code": "NOT_FOUND"})
	case errors.As(err, &inactive):
		c.JSON(http.StatusConflict, gin.H{"error": inactive.Error(), "code": "SCHEDULE_INACTIVE"})
	case errors.As(err, &capacity):
		c.JSON(http.StatusConflict, gin.H{
			"error":     capacity.Error(),
			"code":      "INSUFFICIENT_CAPACITY",
			"available": capacity.Available,
		})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{
			"error": conflict.Error(),
			"code":  "SEATS_UNAVAILABLE",
			"seats": conflict.Seats,
		})
	case errors.As(err, &authenticity):
		c.JSON(http.StatusUnauthorized, gin.H{"error": authenticity.Error(), "code": "SIGNATURE_INVALID"})
	case errors.As(err, &invalidState):
		c.JSON(http.StatusConflict, gin.H{
			"error":  invalidState.Error(),
			"code":   "INVALID_BOOKING_STATE",
			"status": invalidState.Status,
		})
	case errors.As(err, &expired):
		c.JSON(http.StatusGone, gin.H{"error": expired.Error(), "code": "PAYMENT_WINDOW_EXPIRED"})
	case errors.As(err, &notPaid):
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error":  notPaid.Error(),
			"code":   "PAYMENT_NOT_SUCCESSFUL",
			"status": notPaid.Status,
		})
	case errors.As(err, &gateway):
		logger.WithError(err).Error("Payment gateway call failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Payment gateway unavailable, please retry", "code": "GATEWAY_ERROR"})
	case errors.As(err, &rateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": rateLimited.Message, "code": "RATE_LIMITED"})
	default:
		logger.WithError(err).WithField("path", c.Request.URL.Path).Error("Request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// currentUser returns the authenticated user or writes a 401
func currentUser(c *gin.Context) (middleware.UserContext, bool) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return middleware.UserContext{}, false
	}
	return userCtx, true
}

// uuidParam parses a UUID path parameter or writes a 400
func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name, "code": "VALIDATION_FAILED"})
		return uuid.Nil, false
	}
	return id, true
}

// bindJSON binds the request body or writes a 400
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error(), "code": "VALIDATION_FAILED"})
		return false
	}
	return true
}
