package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rideshare/seat-booking-backend/internal/config"
	"github.com/rideshare/seat-booking-backend/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Pricing sources reported on search results
const (
	PricingRouting   = "routing"
	PricingHaversine = "haversine"
	PricingFlat      = "flat"
)

const earthRadiusKm = 6371.0

// ErrNoCoordinates is returned when a location cannot be placed on the map
var ErrNoCoordinates = errors.New("location has no coordinates")

// DistanceService measures driving distances with OpenRouteService and falls
// back to great-circle distance when the API is unavailable
type DistanceService struct {
	cfg     config.RoutingConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *logrus.Logger
}

// NewDistanceService creates a new DistanceService. Outbound calls are
// throttled to cfg.RequestsPerMinute.
func NewDistanceService(cfg config.RoutingConfig, logger *logrus.Logger) *DistanceService {
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 40
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &DistanceService{
		cfg:     cfg,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), rpm),
		logger:  logger,
	}
}

type orsDirectionsResponse struct {
	Features []struct {
		Properties struct {
			Summary struct {
				Distance float64 `json:"distance"` // meters
			} `json:"summary"`
		} `json:"properties"`
	} `json:"features"`
}

type orsGeocodeResponse struct {
	Features []struct {
		Geometry struct {
			Coordinates []float64 `json:"coordinates"` // lng, lat
		} `json:"geometry"`
	} `json:"features"`
}

// Distance returns the distance in km between two locations and how it was
// obtained. Locations without coordinates are geocoded first.
func (s *DistanceService) Distance(ctx context.Context, from, to models.Location) (float64, string, error) {
	from, err := s.resolve(ctx, from)
	if err != nil {
		return 0, "", err
	}
	to, err = s.resolve(ctx, to)
	if err != nil {
		return 0, "", err
	}

	if s.cfg.APIKey != "" {
		km, err := s.drivingDistance(ctx, from, to)
		if err == nil {
			return km, PricingRouting, nil
		}
		s.logger.WithError(err).WithFields(logrus.Fields{
			"from": from.Address,
			"to":   to.Address,
		}).Warn("Routing distance failed, using great-circle distance")
	}

	return Haversine(*from.Lat, *from.Lng, *to.Lat, *to.Lng), PricingHaversine, nil
}

// Geocode resolves an address to coordinates
func (s *DistanceService) Geocode(ctx context.Context, address string) (float64, float64, error) {
	if s.cfg.APIKey == "" {
		return 0, 0, fmt.Errorf("geocoding disabled: %w", ErrNoCoordinates)
	}

	params := url.Values{}
	params.Set("api_key", s.cfg.APIKey)
	params.Set("text", address)
	params.Set("size", "1")

	var resp orsGeocodeResponse
	if err := s.get(ctx, "/geocode/search", params, &resp); err != nil {
		return 0, 0, err
	}
	if len(resp.Features) == 0 || len(resp.Features[0].Geometry.Coordinates) < 2 {
		return 0, 0, fmt.Errorf("no geocoding match for %q: %w", address, ErrNoCoordinates)
	}
	coords := resp.Features[0].Geometry.Coordinates
	return coords[1], coords[0], nil
}

func (s *DistanceService) resolve(ctx context.Context, loc models.Location) (models.Location, error) {
	if loc.HasCoordinates() {
		return loc, nil
	}
	lat, lng, err := s.Geocode(ctx, loc.Address)
	if err != nil {
		return loc, err
	}
	loc.Lat, loc.Lng = &lat, &lng
	return loc, nil
}

func (s *DistanceService) drivingDistance(ctx context.Context, from, to models.Location) (float64, error) {
	params := url.Values{}
	params.Set("api_key", s.cfg.APIKey)
	params.Set("start", fmt.Sprintf("%f,%f", *from.Lng, *from.Lat))
	params.Set("end", fmt.Sprintf("%f,%f", *to.Lng, *to.Lat))

	var resp orsDirectionsResponse
	if err := s.get(ctx, "/v2/directions/driving-car", params, &resp); err != nil {
		return 0, err
	}
	if len(resp.Features) == 0 {
		return 0, errors.New("no route found")
	}
	return resp.Features[0].Properties.Summary.Distance / 1000, nil
}

func (s *DistanceService) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("routing rate limit: %w", err)
	}

	endpoint := strings.TrimRight(s.cfg.BaseURL, "/") + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json, application/geo+json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("routing request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("routing API returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode routing response: %w", err)
	}
	return nil
}

// Haversine returns the great-circle distance in km between two points
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
