package models

import (
	"time"

	"github.com/google/uuid"
)

// SearchRequest represents a traveler's availability query
type SearchRequest struct {
	From       string `json:"from_location" binding:"required"`
	To         string `json:"to_location" binding:"required"`
	Date       string `json:"date" binding:"required"` // YYYY-MM-DD
	Passengers int    `json:"passengers,omitempty"`    // default 1
}

// MatchType tells how a route connects the searched locations
type MatchType string

const (
	MatchDirect   MatchType = "direct"
	MatchWaypoint MatchType = "waypoint"
)

// SearchResult is one bookable schedule
type SearchResult struct {
	RouteID        uuid.UUID `json:"route_id"`
	RouteName      string    `json:"route_name"`
	ScheduleID     uuid.UUID `json:"schedule_id"`
	CarID          uuid.UUID `json:"car_id"`
	CarModel       string    `json:"car_model"`
	CarRegNumber   string    `json:"car_registration_number"`
	MatchType      MatchType `json:"match_type"`
	From           string    `json:"from"`
	To             string    `json:"to"`
	Date           time.Time `json:"date"`
	StartTime      string    `json:"start_time"`
	TotalSeats     int       `json:"total_seats"`
	AvailableSeats int       `json:"available_seats"`
	BasePrice      float64   `json:"base_price_per_seat"`
	PricePerSeat   float64   `json:"price_per_seat"`
	TotalPrice     float64   `json:"total_price"`
	SegmentKm      float64   `json:"segment_km,omitempty"`
	FullRouteKm    float64   `json:"full_route_km,omitempty"`
	PricingSource  string    `json:"pricing_source,omitempty"` // routing, haversine, flat
}

// SearchCandidate is a schedule joined with its route and car, as loaded for search
type SearchCandidate struct {
	Route    Route
	Schedule Schedule
	CarModel string
	CarReg   string
}

// SearchResponse wraps the results
type SearchResponse struct {
	Status  string         `json:"status"`
	Results int            `json:"results"`
	Routes  []SearchResult `json:"routes"`
}
