package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rideshare/seat-booking-backend/internal/models"
	"github.com/sirupsen/logrus"
)

// FleetStore persists cars and routes
type FleetStore interface {
	RouteStore
	CreateCar(ctx context.Context, car *models.Car) error
	ListCarsByAdmin(ctx context.Context, adminID uuid.UUID) ([]models.Car, error)
	CreateRoute(ctx context.Context, route *models.Route) error
	ListRoutesByAdmin(ctx context.Context, adminID uuid.UUID) ([]models.Route, error)
}

// Geocoder resolves an address to coordinates
type Geocoder interface {
	Geocode(ctx context.Context, address string) (lat, lng float64, err error)
}

// FleetService registers the cars and routes schedules are created on
type FleetService struct {
	store    FleetStore
	geocoder Geocoder
	logger   *logrus.Logger
}

// NewFleetService creates a new FleetService. geocoder may be nil.
func NewFleetService(store FleetStore, geocoder Geocoder, logger *logrus.Logger) *FleetService {
	return &FleetService{store: store, geocoder: geocoder, logger: logger}
}

// CreateCar registers a car for an admin
func (s *FleetService) CreateCar(ctx context.Context, adminID uuid.UUID, req *models.CreateCarRequest) (*models.Car, error) {
	car := &models.Car{
		ID:                 uuid.New(),
		AdminID:            adminID,
		Make:               strings.TrimSpace(req.Make),
		Model:              strings.TrimSpace(req.Model),
		Year:               req.Year,
		LicensePlate:       strings.ToUpper(strings.TrimSpace(req.LicensePlate)),
		InsuranceNumber:    strings.TrimSpace(req.InsuranceNumber),
		RegistrationNumber: strings.ToUpper(strings.TrimSpace(req.RegistrationNumber)),
		Seater:             req.Seater,
		Status:             models.FleetStatusActive,
	}
	if err := s.store.CreateCar(ctx, car); err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{"car_id": car.ID, "admin_id": adminID}).Info("Car registered")
	return car, nil
}

// ListCars returns the admin's cars
func (s *FleetService) ListCars(ctx context.Context, adminID uuid.UUID) ([]models.Car, error) {
	return s.store.ListCarsByAdmin(ctx, adminID)
}

// CreateRoute registers a route on one of the admin's cars. Locations without
// coordinates are geocoded when possible; failures leave them unset.
func (s *FleetService) CreateRoute(ctx context.Context, adminID uuid.UUID, req *models.CreateRouteRequest) (*models.Route, error) {
	car, err := s.store.GetCarByID(ctx, req.CarID)
	if err != nil {
		return nil, fmt.Errorf("failed to load car: %w", err)
	}
	if car == nil || car.AdminID != adminID {
		return nil, models.NewNotFoundError("car", req.CarID.String())
	}
	if strings.EqualFold(strings.TrimSpace(req.StartLocation.Address), strings.TrimSpace(req.EndLocation.Address)) {
		return nil, models.NewValidationError("end_location", "must differ from start_location")
	}

	start := s.locate(ctx, req.StartLocation)
	end := s.locate(ctx, req.EndLocation)
	waypoints := make(models.Waypoints, 0, len(req.Waypoints))
	for _, wp := range req.Waypoints {
		if strings.TrimSpace(wp.Address) == "" {
			return nil, models.NewValidationError("waypoints", "address is required")
		}
		waypoints = append(waypoints, s.locate(ctx, wp))
	}

	route := &models.Route{
		ID:        uuid.New(),
		Name:      strings.TrimSpace(req.Name),
		CarID:     car.ID,
		AdminID:   adminID,
		StartAddr: start.Address,
		StartLat:  start.Lat,
		StartLng:  start.Lng,
		EndAddr:   end.Address,
		EndLat:    end.Lat,
		EndLng:    end.Lng,
		Waypoints: waypoints,
		Status:    models.FleetStatusActive,
	}
	if err := s.store.CreateRoute(ctx, route); err != nil {
		return nil, err
	}
	route.FillLocations()

	s.logger.WithFields(logrus.Fields{
		"route_id":  route.ID,
		"waypoints": len(waypoints),
	}).Info("Route registered")
	return route, nil
}

// ListRoutes returns the admin's routes
func (s *FleetService) ListRoutes(ctx context.Context, adminID uuid.UUID) ([]models.Route, error) {
	return s.store.ListRoutesByAdmin(ctx, adminID)
}

func (s *FleetService) locate(ctx context.Context, loc models.Location) models.Location {
	loc.Address = strings.TrimSpace(loc.Address)
	if loc.HasCoordinates() || s.geocoder == nil {
		return loc
	}
	lat, lng, err := s.geocoder.Geocode(ctx, loc.Address)
	if err != nil {
		s.logger.WithError(err).WithField("address", loc.Address).Warn("Geocoding failed, storing address only")
		return loc
	}
	loc.Lat, loc.Lng = &lat, &lng
	return loc
}
