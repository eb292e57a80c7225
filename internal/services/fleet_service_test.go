package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rideshare/seat-booking-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGeocoder struct {
	coords map[string][2]float64
	calls  int
}

func (g *stubGeocoder) Geocode(ctx context.Context, address string) (float64, float64, error) {
	g.calls++
	c, ok := g.coords[address]
	if !ok {
		return 0, 0, ErrNoCoordinates
	}
	return c[0], c[1], nil
}

func TestCreateCar_NormalizesIdentifiers(t *testing.T) {
	store := newMemoryStore()
	svc := NewFleetService(store, nil, quietLogger())
	adminID := uuid.New()

	car, err := svc.CreateCar(context.Background(), adminID, &models.CreateCarRequest{
		Make:               " Toyota ",
		Model:              "Innova",
		Year:               2022,
		LicensePlate:       "mh12 ab 1234",
		InsuranceNumber:    "INS-1",
		RegistrationNumber: "reg-99",
		Seater:             7,
	})
	require.NoError(t, err)

	assert.Equal(t, "Toyota", car.Make)
	assert.Equal(t, "MH12 AB 1234", car.LicensePlate)
	assert.Equal(t, "REG-99", car.RegistrationNumber)
	assert.Equal(t, models.FleetStatusActive, car.Status)

	cars, err := svc.ListCars(context.Background(), adminID)
	require.NoError(t, err)
	assert.Len(t, cars, 1)
}

func TestCreateRoute_GeocodesMissingCoordinates(t *testing.T) {
	f := newFixture(t)
	geocoder := &stubGeocoder{coords: map[string][2]float64{
		"Pune":     {18.52, 73.85},
		"Lonavala": {18.75, 73.40},
		"Mumbai":   {19.07, 72.87},
	}}
	svc := NewFleetService(f.store, geocoder, quietLogger())
	lat, lng := 18.0, 73.0

	route, err := svc.CreateRoute(context.Background(), f.adminID, &models.CreateRouteRequest{
		Name:          "Express",
		CarID:         f.car.ID,
		StartLocation: models.Location{Address: " Pune ", Lat: &lat, Lng: &lng},
		EndLocation:   models.Location{Address: "Mumbai"},
		Waypoints:     []models.Location{{Address: "Lonavala"}, {Address: "Khandala"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "Pune", route.Start.Address)
	assert.Equal(t, 18.0, *route.StartLat)
	require.True(t, route.End.HasCoordinates())
	assert.Equal(t, 19.07, *route.EndLat)
	require.Len(t, route.Waypoints, 2)
	assert.True(t, route.Waypoints[0].HasCoordinates())
	assert.False(t, route.Waypoints[1].HasCoordinates())
	assert.Equal(t, 3, geocoder.calls)

	routes, err := svc.ListRoutes(context.Background(), f.adminID)
	require.NoError(t, err)
	assert.Len(t, routes, 2)
}

func TestCreateRoute_Rejects(t *testing.T) {
	f := newFixture(t)
	svc := NewFleetService(f.store, nil, quietLogger())

	_, err := svc.CreateRoute(context.Background(), uuid.New(), &models.CreateRouteRequest{
		Name:          "Stolen car",
		CarID:         f.car.ID,
		StartLocation: models.Location{Address: "Pune"},
		EndLocation:   models.Location{Address: "Mumbai"},
	})
	assert.True(t, models.IsNotFoundError(err))

	_, err = svc.CreateRoute(context.Background(), f.adminID, &models.CreateRouteRequest{
		Name:          "Loop",
		CarID:         f.car.ID,
		StartLocation: models.Location{Address: "Pune"},
		EndLocation:   models.Location{Address: "pune "},
	})
	assert.True(t, models.IsValidationError(err))

	_, err = svc.CreateRoute(context.Background(), f.adminID, &models.CreateRouteRequest{
		Name:          "Blank stop",
		CarID:         f.car.ID,
		StartLocation: models.Location{Address: "Pune"},
		EndLocation:   models.Location{Address: "Mumbai"},
		Waypoints:     []models.Location{{Address: " "}},
	})
	var validation *models.ValidationError
	require.True(t, errors.As(err, &validation))
	assert.Equal(t, "waypoints", validation.Field)
}
