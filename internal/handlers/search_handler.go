package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rideshare/seat-booking-backend/internal/models"
	"github.com/sirupsen/logrus"
)

// Searcher finds bookable schedules between two places
type Searcher interface {
	Search(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error)
}

// SearchHandler handles HTTP requests for schedule search
type SearchHandler struct {
	service Searcher
	logger  *logrus.Logger
}

// NewSearchHandler creates a new search handler
func NewSearchHandler(service Searcher, logger *logrus.Logger) *SearchHandler {
	return &SearchHandler{
		service: service,
		logger:  logger,
	}
}

// Search handles POST /api/v1/bookings/search
// @Summary Search available schedules
// @Description Direct matches first, then waypoint matches, each by ascending total price
// @Tags Search
// @Accept json
// @Produce json
// @Param search body models.SearchRequest true "Search parameters"
// @Success 200 {object} models.SearchResponse
// @Failure 400 {object} map[string]interface{} "Invalid request"
// @Router /api/v1/bookings/search [post]
func (h *SearchHandler) Search(c *gin.Context) {
	var req models.SearchRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.service.Search(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"from":       req.From,
		"to":         req.To,
		"date":       req.Date,
		"passengers": req.Passengers,
		"results":    resp.Results,
	}).Debug("Search completed")

	c.JSON(http.StatusOK, resp)
}
