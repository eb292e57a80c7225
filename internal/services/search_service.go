package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rideshare/seat-booking-backend/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// SearchStore loads bookable schedules for a date
type SearchStore interface {
	ListBookableOnDate(ctx context.Context, date time.Time, minSeats int) ([]models.SearchCandidate, error)
}

// DistanceCalculator measures the distance between two locations in km
type DistanceCalculator interface {
	Distance(ctx context.Context, from, to models.Location) (float64, string, error)
}

// SearchService finds schedules connecting two locations on a date
type SearchService struct {
	store     SearchStore
	distances DistanceCalculator
	location  *time.Location
	logger    *logrus.Logger
	now       func() time.Time
}

// NewSearchService creates a new search service
func NewSearchService(store SearchStore, distances DistanceCalculator, location *time.Location, logger *logrus.Logger) *SearchService {
	return &SearchService{
		store:     store,
		distances: distances,
		location:  location,
		logger:    logger,
		now:       time.Now,
	}
}

// match is a candidate that connects the searched locations
type match struct {
	candidate models.SearchCandidate
	kind      models.MatchType
	from      models.Location
	to        models.Location
}

// Search returns bookable schedules, direct routes first, each tier by
// ascending total price
func (s *SearchService) Search(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error) {
	from := strings.TrimSpace(req.From)
	to := strings.TrimSpace(req.To)
	if from == "" {
		return nil, models.NewValidationError("from_location", "is required")
	}
	if to == "" {
		return nil, models.NewValidationError("to_location", "is required")
	}
	if req.Passengers < 0 {
		return nil, models.NewValidationError("passengers", "must be at least 1")
	}
	passengers := req.Passengers
	if passengers == 0 {
		passengers = 1
	}
	date, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(req.Date), s.location)
	if err != nil {
		return nil, models.NewValidationError("date", "must be YYYY-MM-DD")
	}

	candidates, err := s.store.ListBookableOnDate(ctx, date, passengers)
	if err != nil {
		return nil, fmt.Errorf("failed to load schedules: %w", err)
	}

	now := s.now().In(s.location)
	var matches []match
	for _, c := range candidates {
		if departed(c.Schedule, date, now, s.location) {
			continue
		}
		if m, ok := matchRoute(c, from, to); ok {
			matches = append(matches, m)
		}
	}

	results := make([]models.SearchResult, len(matches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i := range matches {
		i := i
		g.Go(func() error {
			results[i] = s.price(gctx, matches[i], passengers)
			return nil
		})
	}
	_ = g.Wait()

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].MatchType != results[j].MatchType {
			return results[i].MatchType == models.MatchDirect
		}
		return results[i].TotalPrice < results[j].TotalPrice
	})

	s.logger.WithFields(logrus.Fields{
		"from":       from,
		"to":         to,
		"date":       req.Date,
		"passengers": passengers,
		"results":    len(results),
	}).Info("Search completed")

	return &models.SearchResponse{
		Status:  "success",
		Results: len(results),
		Routes:  results,
	}, nil
}

// departed reports whether a schedule on today's date has already left
func departed(schedule models.Schedule, date, now time.Time, loc *time.Location) bool {
	y, m, d := now.Date()
	if !date.Equal(time.Date(y, m, d, 0, 0, 0, 0, loc)) {
		return false
	}
	departure, err := schedule.Departure(loc)
	if err != nil {
		return true
	}
	return !departure.After(now)
}

// matchRoute checks whether a candidate's route connects from and to, either
// end to end or between two of its stops in travel order
func matchRoute(c models.SearchCandidate, from, to string) (match, bool) {
	route := c.Route
	if route.StartLocation().Matches(from) && route.EndLocation().Matches(to) {
		return match{candidate: c, kind: models.MatchDirect, from: route.StartLocation(), to: route.EndLocation()}, true
	}

	stops := route.Stops()
	for i := 0; i < len(stops)-1; i++ {
		if !stops[i].Matches(from) {
			continue
		}
		for j := i + 1; j < len(stops); j++ {
			if stops[j].Matches(to) {
				return match{candidate: c, kind: models.MatchWaypoint, from: stops[i], to: stops[j]}, true
			}
		}
	}
	return match{}, false
}

// price computes the fare of a match. Waypoint segments are charged
// ceil(price * segment / full); any distance failure charges the full price.
func (s *SearchService) price(ctx context.Context, m match, passengers int) models.SearchResult {
	c := m.candidate
	result := models.SearchResult{
		RouteID:        c.Route.ID,
		RouteName:      c.Route.Name,
		ScheduleID:     c.Schedule.ID,
		CarID:          c.Route.CarID,
		CarModel:       c.CarModel,
		CarRegNumber:   c.CarReg,
		MatchType:      m.kind,
		From:           m.from.Address,
		To:             m.to.Address,
		Date:           c.Schedule.Date,
		StartTime:      c.Schedule.StartTime,
		TotalSeats:     c.Schedule.TotalSeats,
		AvailableSeats: c.Schedule.AvailableSeats,
		BasePrice:      c.Schedule.PricePerSeat,
		PricePerSeat:   c.Schedule.PricePerSeat,
	}

	if m.kind == models.MatchWaypoint && s.distances != nil {
		result.PricingSource = PricingFlat
		segment, full, source, err := s.segmentDistances(ctx, m.from, m.to, c.Route.StartLocation(), c.Route.EndLocation())
		if err != nil {
			s.logger.WithError(err).WithField("route_id", c.Route.ID).Warn("Could not price segment, charging full fare")
		} else {
			result.SegmentKm = segment
			result.FullRouteKm = full
			result.PricePerSeat = ProratedFare(c.Schedule.PricePerSeat, segment, full)
			result.PricingSource = source
		}
	}

	result.TotalPrice = result.PricePerSeat * float64(passengers)
	return result
}

// segmentDistances measures a segment and its full route with the same method,
// so the ratio never mixes driving and great-circle distances. When the two
// lookups disagree both are recomputed as great-circle distances.
func (s *SearchService) segmentDistances(ctx context.Context, from, to, start, end models.Location) (segment, full float64, source string, err error) {
	segment, segSource, err := s.distances.Distance(ctx, from, to)
	if err != nil {
		return 0, 0, "", err
	}
	full, fullSource, err := s.distances.Distance(ctx, start, end)
	if err != nil {
		return 0, 0, "", err
	}
	if segSource == fullSource {
		return segment, full, segSource, nil
	}

	for _, loc := range []models.Location{from, to, start, end} {
		if !loc.HasCoordinates() {
			return 0, 0, "", fmt.Errorf("distances measured by %s and %s: %w", segSource, fullSource, ErrNoCoordinates)
		}
	}
	segment = Haversine(*from.Lat, *from.Lng, *to.Lat, *to.Lng)
	full = Haversine(*start.Lat, *start.Lng, *end.Lat, *end.Lng)
	return segment, full, PricingHaversine, nil
}

// ProratedFare scales price by segment/full, rounded up to a whole unit and
// never above price
func ProratedFare(price, segment, full float64) float64 {
	if full <= 0 || segment <= 0 || segment >= full {
		return price
	}
	// Epsilon keeps exact ratios like 900*100/300 from rounding up to 301
	fare := math.Ceil(price*segment/full - 1e-9)
	return math.Min(fare, price)
}
