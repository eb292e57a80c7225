package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rideshare/seat-booking-backend/internal/models"
	"github.com/sirupsen/logrus"
)

// ScheduleAdminStore is the schedule persistence used by admins
type ScheduleAdminStore interface {
	GetScheduleByID(ctx context.Context, id uuid.UUID) (*models.Schedule, error)
	ListSchedulesByRoute(ctx context.Context, routeID uuid.UUID) ([]models.Schedule, error)
	FindExistingDates(ctx context.Context, routeID uuid.UUID, dates []time.Time) ([]time.Time, error)
	CreateSchedules(ctx context.Context, schedules []*models.Schedule) error
	UpdateSchedule(ctx context.Context, id uuid.UUID, req *models.UpdateScheduleRequest) (*models.Schedule, error)
	DeleteScheduleWithSnapshot(ctx context.Context, schedule *models.Schedule, deletedAt time.Time, refuseActive bool) (int64, error)
}

// ScheduleService manages the dated schedules of an admin's routes
type ScheduleService struct {
	schedules ScheduleAdminStore
	routes    RouteStore
	location  *time.Location
	logger    *logrus.Logger
	now       func() time.Time
}

// NewScheduleService creates a new ScheduleService
func NewScheduleService(
	schedules ScheduleAdminStore,
	routes RouteStore,
	location *time.Location,
	logger *logrus.Logger,
) *ScheduleService {
	return &ScheduleService{
		schedules: schedules,
		routes:    routes,
		location:  location,
		logger:    logger,
		now:       time.Now,
	}
}

// CreateSchedules creates one schedule per date. The whole request is
// rejected if any date already has a schedule for the route.
func (s *ScheduleService) CreateSchedules(ctx context.Context, adminID uuid.UUID, req *models.CreateScheduleRequest) ([]*models.Schedule, error) {
	route, err := s.ownedRoute(ctx, req.RouteID, adminID)
	if err != nil {
		return nil, err
	}
	if _, err := time.Parse(models.StartTimeLayout, req.StartTime); err != nil {
		return nil, models.NewValidationError("start_time", "must be HH:MM")
	}
	if req.TotalSeats < 1 {
		return nil, models.NewValidationError("total_seats", "must be at least 1")
	}
	if req.PricePerSeat <= 0 {
		return nil, models.NewValidationError("price_per_seat", "must be positive")
	}
	if len(req.Dates) == 0 {
		return nil, models.NewValidationError("dates", "at least one date is required")
	}

	car, err := s.routes.GetCarByID(ctx, route.CarID)
	if err != nil {
		return nil, fmt.Errorf("failed to load car: %w", err)
	}
	if car != nil && req.TotalSeats > car.Seater {
		return nil, models.NewValidationError("total_seats", fmt.Sprintf("car seats at most %d", car.Seater))
	}

	seen := map[string]bool{}
	dates := make([]time.Time, 0, len(req.Dates))
	for _, raw := range req.Dates {
		date, err := time.ParseInLocation("2006-01-02", raw, s.location)
		if err != nil {
			return nil, models.NewValidationError("dates", fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", raw))
		}
		if seen[raw] {
			return nil, models.NewValidationError("dates", fmt.Sprintf("date %s listed twice", raw))
		}
		seen[raw] = true
		dates = append(dates, date)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	existing, err := s.schedules.FindExistingDates(ctx, route.ID, dates)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		taken := make([]string, len(existing))
		for i, d := range existing {
			taken[i] = d.Format("2006-01-02")
		}
		return nil, models.NewValidationError("dates",
			fmt.Sprintf("a schedule already exists for %s", strings.Join(taken, ", ")))
	}

	schedules := make([]*models.Schedule, len(dates))
	for i, date := range dates {
		schedules[i] = &models.Schedule{
			ID:           uuid.New(),
			RouteID:      route.ID,
			Date:         date,
			StartTime:    req.StartTime,
			TotalSeats:   req.TotalSeats,
			PricePerSeat: req.PricePerSeat,
			Status:       models.ScheduleStatusActive,
		}
	}

	if err := s.schedules.CreateSchedules(ctx, schedules); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"route_id": route.ID,
		"count":    len(schedules),
	}).Info("Schedules created")
	return schedules, nil
}

// ListSchedules returns the schedules of one of the admin's routes
func (s *ScheduleService) ListSchedules(ctx context.Context, adminID, routeID uuid.UUID) ([]models.Schedule, error) {
	if _, err := s.ownedRoute(ctx, routeID, adminID); err != nil {
		return nil, err
	}
	return s.schedules.ListSchedulesByRoute(ctx, routeID)
}

// UpdateSchedule edits price, status, start time or capacity
func (s *ScheduleService) UpdateSchedule(ctx context.Context, adminID, scheduleID uuid.UUID, req *models.UpdateScheduleRequest) (*models.Schedule, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	schedule, err := s.ownedSchedule(ctx, scheduleID, adminID)
	if err != nil {
		return nil, err
	}

	updated, err := s.schedules.UpdateSchedule(ctx, schedule.ID, req)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"schedule_id": scheduleID,
		"total_seats": updated.TotalSeats,
		"available":   updated.AvailableSeats,
		"status":      updated.Status,
	}).Info("Schedule updated")
	return updated, nil
}

// DeleteSchedule deletes a schedule. A schedule that has not departed cannot
// be deleted while it has pending or confirmed bookings; bookings of a
// departed schedule keep a snapshot of it.
func (s *ScheduleService) DeleteSchedule(ctx context.Context, adminID, scheduleID uuid.UUID) error {
	schedule, err := s.ownedSchedule(ctx, scheduleID, adminID)
	if err != nil {
		return err
	}

	now := s.now()
	departure, err := schedule.Departure(s.location)
	if err != nil {
		return err
	}

	snapshotted, err := s.schedules.DeleteScheduleWithSnapshot(ctx, schedule, now, departure.After(now))
	if err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"schedule_id": scheduleID,
		"bookings":    snapshotted,
	}).Info("Schedule deleted")
	return nil
}

func (s *ScheduleService) ownedRoute(ctx context.Context, routeID, adminID uuid.UUID) (*models.Route, error) {
	route, err := s.routes.GetRouteByID(ctx, routeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load route: %w", err)
	}
	if route == nil || route.AdminID != adminID {
		return nil, models.NewNotFoundError("route", routeID.String())
	}
	return route, nil
}

func (s *ScheduleService) ownedSchedule(ctx context.Context, scheduleID, adminID uuid.UUID) (*models.Schedule, error) {
	schedule, err := s.schedules.GetScheduleByID(ctx, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load schedule: %w", err)
	}
	if schedule == nil {
		return nil, models.NewNotFoundError("schedule", scheduleID.String())
	}
	if _, err := s.ownedRoute(ctx, schedule.RouteID, adminID); err != nil {
		if models.IsNotFoundError(err) {
			return nil, models.NewNotFoundError("schedule", scheduleID.String())
		}
		return nil, err
	}
	return schedule, nil
}
