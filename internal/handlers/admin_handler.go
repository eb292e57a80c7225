package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rideshare/seat-booking-backend/internal/models"
	"github.com/sirupsen/logrus"
)

// ScheduleManager is the admin side of the schedule store
type ScheduleManager interface {
	CreateSchedules(ctx context.Context, adminID uuid.UUID, req *models.CreateScheduleRequest) ([]*models.Schedule, error)
	ListSchedules(ctx context.Context, adminID, routeID uuid.UUID) ([]models.Schedule, error)
	UpdateSchedule(ctx context.Context, adminID, scheduleID uuid.UUID, req *models.UpdateScheduleRequest) (*models.Schedule, error)
	DeleteSchedule(ctx context.Context, adminID, scheduleID uuid.UUID) error
}

// FleetManager registers an admin's cars and routes
type FleetManager interface {
	CreateCar(ctx context.Context, adminID uuid.UUID, req *models.CreateCarRequest) (*models.Car, error)
	ListCars(ctx context.Context, adminID uuid.UUID) ([]models.Car, error)
	CreateRoute(ctx context.Context, adminID uuid.UUID, req *models.CreateRouteRequest) (*models.Route, error)
	ListRoutes(ctx context.Context, adminID uuid.UUID) ([]models.Route, error)
}

// AdminHandler handles fleet and schedule management for route admins
type AdminHandler struct {
	fleet     FleetManager
	schedules ScheduleManager
	logger    *logrus.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(fleet FleetManager, schedules ScheduleManager, logger *logrus.Logger) *AdminHandler {
	return &AdminHandler{
		fleet:     fleet,
		schedules: schedules,
		logger:    logger,
	}
}

// CreateCar registers a car
// @Security BearerAuth
// @Router /api/v1/admin/cars [post]
func (h *AdminHandler) CreateCar(c *gin.Context) {
	userCtx, ok := currentUser(c)
	if !ok {
		return
	}

	var req models.CreateCarRequest
	if !bindJSON(c, &req) {
		return
	}

	car, err := h.fleet.CreateCar(c.Request.Context(), userCtx.UserID, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, car)
}

// ListCars lists the admin's cars
// @Security BearerAuth
// @Router /api/v1/admin/cars [get]
func (h *AdminHandler) ListCars(c *gin.Context) {
	userCtx, ok := currentUser(c)
	if !ok {
		return
	}

	cars, err := h.fleet.ListCars(c.Request.Context(), userCtx.UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"cars": cars, "count": len(cars)})
}

// CreateRoute registers a route for one of the admin's cars
// @Security BearerAuth
// @Router /api/v1/admin/routes [post]
func (h *AdminHandler) CreateRoute(c *gin.Context) {
	userCtx, ok := currentUser(c)
	if !ok {
		return
	}

	var req models.CreateRouteRequest
	if !bindJSON(c, &req) {
		return
	}

	route, err := h.fleet.CreateRoute(c.Request.Context(), userCtx.UserID, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, route)
}

// ListRoutes lists the admin's routes
// @Security BearerAuth
// @Router /api/v1/admin/routes [get]
func (h *AdminHandler) ListRoutes(c *gin.Context) {
	userCtx, ok := currentUser(c)
	if !ok {
		return
	}

	routes, err := h.fleet.ListRoutes(c.Request.Context(), userCtx.UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"routes": routes, "count": len(routes)})
}

// CreateSchedules creates one schedule per requested date
// @Security BearerAuth
// @Router /api/v1/admin/schedules [post]
func (h *AdminHandler) CreateSchedules(c *gin.Context) {
	userCtx, ok := currentUser(c)
	if !ok {
		return
	}

	var req models.CreateScheduleRequest
	if !bindJSON(c, &req) {
		return
	}

	schedules, err := h.schedules.CreateSchedules(c.Request.Context(), userCtx.UserID, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"schedules": schedules, "count": len(schedules)})
}

// ListSchedules lists the schedules of a route
// @Security BearerAuth
// @Router /api/v1/admin/routes/{id}/schedules [get]
func (h *AdminHandler) ListSchedules(c *gin.Context) {
	userCtx, ok := currentUser(c)
	if !ok {
		return
	}
	routeID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	schedules, err := h.schedules.ListSchedules(c.Request.Context(), userCtx.UserID, routeID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"schedules": schedules, "count": len(schedules)})
}

// UpdateSchedule edits price, status, start time or capacity
// @Security BearerAuth
// @Router /api/v1/admin/schedules/{id} [patch]
func (h *AdminHandler) UpdateSchedule(c *gin.Context) {
	userCtx, ok := currentUser(c)
	if !ok {
		return
	}
	scheduleID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req models.UpdateScheduleRequest
	if !bindJSON(c, &req) {
		return
	}

	schedule, err := h.schedules.UpdateSchedule(c.Request.Context(), userCtx.UserID, scheduleID, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, schedule)
}

// DeleteSchedule deletes a schedule
// @Security BearerAuth
// @Router /api/v1/admin/schedules/{id} [delete]
func (h *AdminHandler) DeleteSchedule(c *gin.Context) {
	userCtx, ok := currentUser(c)
	if !ok {
		return
	}
	scheduleID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	if err := h.schedules.DeleteSchedule(c.Request.Context(), userCtx.UserID, scheduleID); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Schedule deleted"})
}
