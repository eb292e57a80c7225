package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rideshare/seat-booking-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFleet struct {
	adminID uuid.UUID
	car     *models.Car
	route   *models.Route
	err     error
}

func (s *stubFleet) CreateCar(ctx context.Context, adminID uuid.UUID, req *models.CreateCarRequest) (*models.Car, error) {
	s.adminID = adminID
	return s.car, s.err
}

func (s *stubFleet) ListCars(ctx context.Context, adminID uuid.UUID) ([]models.Car, error) {
	s.adminID = adminID
	if s.car == nil {
		return nil, s.err
	}
	return []models.Car{*s.car}, s.err
}

func (s *stubFleet) CreateRoute(ctx context.Context, adminID uuid.UUID, req *models.CreateRouteRequest) (*models.Route, error) {
	s.adminID = adminID
	return s.route, s.err
}

func (s *stubFleet) ListRoutes(ctx context.Context, adminID uuid.UUID) ([]models.Route, error) {
	s.adminID = adminID
	return nil, s.err
}

type stubSchedules struct {
	adminID uuid.UUID
	created []*models.Schedule
	listed  []models.Schedule
	updated *models.Schedule
	update  *models.UpdateScheduleRequest
	deleted uuid.UUID
	err     error
}

func (s *stubSchedules) CreateSchedules(ctx context.Context, adminID uuid.UUID, req *models.CreateScheduleRequest) ([]*models.Schedule, error) {
	s.adminID = adminID
	return s.created, s.err
}

func (s *stubSchedules) ListSchedules(ctx context.Context, adminID, routeID uuid.UUID) ([]models.Schedule, error) {
	s.adminID = adminID
	return s.listed, s.err
}

func (s *stubSchedules) UpdateSchedule(ctx context.Context, adminID, scheduleID uuid.UUID, req *models.UpdateScheduleRequest) (*models.Schedule, error) {
	s.adminID, s.update = adminID, req
	return s.updated, s.err
}

func (s *stubSchedules) DeleteSchedule(ctx context.Context, adminID, scheduleID uuid.UUID) error {
	s.adminID, s.deleted = adminID, scheduleID
	return s.err
}

func setupAdminRouter(adminID uuid.UUID, fleet *stubFleet, schedules *stubSchedules) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	h := NewAdminHandler(fleet, schedules, quietLogger())

	admin := router.Group("/api/v1/admin", withUser(adminID))
	admin.POST("/cars", h.CreateCar)
	admin.GET("/cars", h.ListCars)
	admin.POST("/routes", h.CreateRoute)
	admin.GET("/routes", h.ListRoutes)
	admin.GET("/routes/:id/schedules", h.ListSchedules)
	admin.POST("/schedules", h.CreateSchedules)
	admin.PATCH("/schedules/:id", h.UpdateSchedule)
	admin.DELETE("/schedules/:id", h.DeleteSchedule)
	return router
}

func TestCreateCar(t *testing.T) {
	adminID := uuid.New()
	fleet := &stubFleet{car: &models.Car{ID: uuid.New(), LicensePlate: "MH12AB1234"}}
	router := setupAdminRouter(adminID, fleet, &stubSchedules{})

	w := doJSON(router, "POST", "/api/v1/admin/cars", map[string]interface{}{
		"make": "Toyota", "model": "Innova", "year": 2022,
		"license_plate": "mh12ab1234", "insurance_number": "INS-1",
		"registration_number": "REG-1", "seater": 7,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, adminID, fleet.adminID)

	w = doJSON(router, "POST", "/api/v1/admin/cars", map[string]interface{}{"make": "Toyota", "seater": 100})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, "GET", "/api/v1/admin/cars", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["count"])
}

func TestCreateRoute_ForeignCar(t *testing.T) {
	fleet := &stubFleet{err: models.NewNotFoundError("car", "x")}
	router := setupAdminRouter(uuid.New(), fleet, &stubSchedules{})

	w := doJSON(router, "POST", "/api/v1/admin/routes", map[string]interface{}{
		"name":           "Express",
		"car_id":         uuid.New(),
		"start_location": map[string]interface{}{"address": "Pune"},
		"end_location":   map[string]interface{}{"address": "Mumbai"},
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateSchedules(t *testing.T) {
	adminID := uuid.New()
	schedules := &stubSchedules{created: []*models.Schedule{{ID: uuid.New()}, {ID: uuid.New()}}}
	router := setupAdminRouter(adminID, &stubFleet{}, schedules)

	w := doJSON(router, "POST", "/api/v1/admin/schedules", map[string]interface{}{
		"route_id":       uuid.New(),
		"dates":          []string{"2025-05-01", "2025-05-02"},
		"start_time":     "09:00",
		"total_seats":    6,
		"price_per_seat": 450,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, float64(2), decode(t, w)["count"])
	assert.Equal(t, adminID, schedules.adminID)

	schedules.err = models.NewValidationError("dates", "2025-05-01 already has a schedule")
	w = doJSON(router, "POST", "/api/v1/admin/schedules", map[string]interface{}{
		"route_id":       uuid.New(),
		"dates":          []string{"2025-05-01"},
		"start_time":     "09:00",
		"total_seats":    6,
		"price_per_seat": 450,
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "dates", decode(t, w)["field"])
}

func TestUpdateSchedule(t *testing.T) {
	schedules := &stubSchedules{updated: &models.Schedule{ID: uuid.New(), TotalSeats: 8}}
	router := setupAdminRouter(uuid.New(), &stubFleet{}, schedules)

	w := doJSON(router, "PATCH", "/api/v1/admin/schedules/"+uuid.NewString(), map[string]interface{}{"total_seats": 8})
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, schedules.update.TotalSeats)
	assert.Equal(t, 8, *schedules.update.TotalSeats)
	assert.Nil(t, schedules.update.PricePerSeat)
}

func TestDeleteSchedule(t *testing.T) {
	scheduleID := uuid.New()
	schedules := &stubSchedules{}
	router := setupAdminRouter(uuid.New(), &stubFleet{}, schedules)

	w := doJSON(router, "DELETE", "/api/v1/admin/schedules/"+scheduleID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, scheduleID, schedules.deleted)

	schedules.err = models.NewValidationError("schedule", "cannot delete an upcoming schedule with 2 active bookings")
	w = doJSON(router, "DELETE", "/api/v1/admin/schedules/"+scheduleID.String(), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "2 active bookings")
}

func TestListSchedules(t *testing.T) {
	schedules := &stubSchedules{listed: []models.Schedule{{ID: uuid.New()}}}
	router := setupAdminRouter(uuid.New(), &stubFleet{}, schedules)

	w := doJSON(router, "GET", "/api/v1/admin/routes/"+uuid.NewString()+"/schedules", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["count"])

	w = doJSON(router, "GET", "/api/v1/admin/routes/nope/schedules", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
