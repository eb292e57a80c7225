package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rideshare/seat-booking-backend/internal/models"
)

// RouteRepository handles cars and the routes they drive
type RouteRepository struct {
	db *sqlx.DB
}

// NewRouteRepository creates a new RouteRepository
func NewRouteRepository(db *sqlx.DB) *RouteRepository {
	return &RouteRepository{db: db}
}

// ============================================================================
// CARS
// ============================================================================

// CreateCar inserts a car
func (r *RouteRepository) CreateCar(ctx context.Context, car *models.Car) error {
	err := r.db.GetContext(ctx, &car.CreatedAt, `
		INSERT INTO cars (
			id, admin_id, make, model, year, license_plate,
			insurance_number, registration_number, seater, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at`,
		car.ID, car.AdminID, car.Make, car.Model, car.Year, car.LicensePlate,
		car.InsuranceNumber, car.RegistrationNumber, car.Seater, car.Status)
	if err != nil {
		return fmt.Errorf("failed to create car: %w", err)
	}
	return nil
}

// GetCarByID returns a car, or nil if absent
func (r *RouteRepository) GetCarByID(ctx context.Context, id uuid.UUID) (*models.Car, error) {
	var car models.Car
	err := r.db.GetContext(ctx, &car, `SELECT * FROM cars WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get car: %w", err)
	}
	return &car, nil
}

// ListCarsByAdmin returns the cars registered by an admin
func (r *RouteRepository) ListCarsByAdmin(ctx context.Context, adminID uuid.UUID) ([]models.Car, error) {
	cars := []models.Car{}
	if err := r.db.SelectContext(ctx, &cars, `SELECT * FROM cars WHERE admin_id = $1 ORDER BY created_at DESC`, adminID); err != nil {
		return nil, fmt.Errorf("failed to list cars: %w", err)
	}
	return cars, nil
}

// ============================================================================
// ROUTES
// ============================================================================

const routeColumns = `
	id, name, car_id, admin_id, start_address, start_lat, start_lng,
	end_address, end_lat, end_lng, waypoints, status, created_at`

// CreateRoute inserts a route
func (r *RouteRepository) CreateRoute(ctx context.Context, route *models.Route) error {
	err := r.db.GetContext(ctx, &route.CreatedAt, `
		INSERT INTO routes (
			id, name, car_id, admin_id, start_address, start_lat, start_lng,
			end_address, end_lat, end_lng, waypoints, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at`,
		route.ID, route.Name, route.CarID, route.AdminID,
		route.StartAddr, route.StartLat, route.StartLng,
		route.EndAddr, route.EndLat, route.EndLng,
		route.Waypoints, route.Status)
	if err != nil {
		return fmt.Errorf("failed to create route: %w", err)
	}
	return nil
}

// GetRouteByID returns a route, or nil if absent
func (r *RouteRepository) GetRouteByID(ctx context.Context, id uuid.UUID) (*models.Route, error) {
	var route models.Route
	err := r.db.GetContext(ctx, &route, `SELECT`+routeColumns+` FROM routes WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get route: %w", err)
	}
	route.FillLocations()
	return &route, nil
}

// ListRoutesByAdmin returns the routes owned by an admin
func (r *RouteRepository) ListRoutesByAdmin(ctx context.Context, adminID uuid.UUID) ([]models.Route, error) {
	routes := []models.Route{}
	err := r.db.SelectContext(ctx, &routes, `SELECT`+routeColumns+` FROM routes WHERE admin_id = $1 ORDER BY created_at DESC`, adminID)
	if err != nil {
		return nil, fmt.Errorf("failed to list routes: %w", err)
	}
	for i := range routes {
		routes[i].FillLocations()
	}
	return routes, nil
}
