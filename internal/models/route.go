package models

import (
	"database/sql/driver"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FleetStatus is the status shared by cars and routes
type FleetStatus string

const (
	FleetStatusActive   FleetStatus = "active"
	FleetStatusInactive FleetStatus = "inactive"
)

// Car is a vehicle registered by an admin
type Car struct {
	ID                 uuid.UUID   `json:"id" db:"id"`
	AdminID            uuid.UUID   `json:"admin_id" db:"admin_id"`
	Make               string      `json:"make" db:"make"`
	Model              string      `json:"model" db:"model"`
	Year               int         `json:"year" db:"year"`
	LicensePlate       string      `json:"license_plate" db:"license_plate"`
	InsuranceNumber    string      `json:"insurance_number" db:"insurance_number"`
	RegistrationNumber string      `json:"registration_number" db:"registration_number"`
	Seater             int         `json:"seater" db:"seater"`
	Status             FleetStatus `json:"status" db:"status"`
	CreatedAt          time.Time   `json:"created_at" db:"created_at"`
}

// Location is an address with optional coordinates
type Location struct {
	Address string   `json:"address" binding:"required"`
	Lat     *float64 `json:"lat,omitempty"`
	Lng     *float64 `json:"lng,omitempty"`
}

// HasCoordinates reports whether both coordinates are known
func (l Location) HasCoordinates() bool {
	return l.Lat != nil && l.Lng != nil
}

// Matches reports whether query names this location, exactly or as a
// case-insensitive substring of its address (e.g. a city name)
func (l Location) Matches(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return false
	}
	addr := strings.ToLower(l.Address)
	return addr == q || strings.Contains(addr, q)
}

// Waypoints is the ordered list of intermediate stops stored as JSONB
type Waypoints []Location

// Value implements the driver.Valuer interface
func (w Waypoints) Value() (driver.Value, error) {
	if w == nil {
		return "[]", nil
	}
	return jsonValue(w)
}

// Scan implements the sql.Scanner interface
func (w *Waypoints) Scan(src interface{}) error {
	if src == nil {
		*w = nil
		return nil
	}
	return jsonScan(src, w)
}

// Route is a car's journey between two locations with optional waypoints
type Route struct {
	ID        uuid.UUID   `json:"id" db:"id"`
	Name      string      `json:"name" db:"name"`
	CarID     uuid.UUID   `json:"car_id" db:"car_id"`
	AdminID   uuid.UUID   `json:"admin_id" db:"admin_id"`
	StartAddr string      `json:"-" db:"start_address"`
	StartLat  *float64    `json:"-" db:"start_lat"`
	StartLng  *float64    `json:"-" db:"start_lng"`
	EndAddr   string      `json:"-" db:"end_address"`
	EndLat    *float64    `json:"-" db:"end_lat"`
	EndLng    *float64    `json:"-" db:"end_lng"`
	Waypoints Waypoints   `json:"waypoints" db:"waypoints"`
	Status    FleetStatus `json:"status" db:"status"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`

	// Populated for JSON output
	Start Location `json:"start_location" db:"-"`
	End   Location `json:"end_location" db:"-"`
}

// StartLocation returns the route origin
func (r *Route) StartLocation() Location {
	return Location{Address: r.StartAddr, Lat: r.StartLat, Lng: r.StartLng}
}

// EndLocation returns the route destination
func (r *Route) EndLocation() Location {
	return Location{Address: r.EndAddr, Lat: r.EndLat, Lng: r.EndLng}
}

// Stops returns start, waypoints and end in travel order
func (r *Route) Stops() []Location {
	stops := make([]Location, 0, len(r.Waypoints)+2)
	stops = append(stops, r.StartLocation())
	stops = append(stops, r.Waypoints...)
	return append(stops, r.EndLocation())
}

// FillLocations copies the flat columns into Start/End for JSON output
func (r *Route) FillLocations() {
	r.Start = r.StartLocation()
	r.End = r.EndLocation()
}

// CreateCarRequest is the payload for registering a car
type CreateCarRequest struct {
	Make               string `json:"make" binding:"required"`
	Model              string `json:"model" binding:"required"`
	Year               int    `json:"year" binding:"required,min=1950"`
	LicensePlate       string `json:"license_plate" binding:"required"`
	InsuranceNumber    string `json:"insurance_number" binding:"required"`
	RegistrationNumber string `json:"registration_number" binding:"required"`
	Seater             int    `json:"seater" binding:"required,min=1,max=60"`
}

// CreateRouteRequest is the payload for registering a route
type CreateRouteRequest struct {
	Name          string     `json:"name" binding:"required"`
	CarID         uuid.UUID  `json:"car_id" binding:"required"`
	StartLocation Location   `json:"start_location" binding:"required"`
	EndLocation   Location   `json:"end_location" binding:"required"`
	Waypoints     []Location `json:"waypoints"`
}
