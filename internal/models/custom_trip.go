package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TripStatus is the lifecycle status of a saved custom trip
type TripStatus string

const (
	TripStatusDraft     TripStatus = "draft"
	TripStatusQuoted    TripStatus = "quoted"
	TripStatusBooked    TripStatus = "booked"
	TripStatusCompleted TripStatus = "completed"
	TripStatusCancelled TripStatus = "cancelled"
)

var tripTransitions = map[TripStatus][]TripStatus{
	TripStatusDraft:  {TripStatusQuoted, TripStatusBooked, TripStatusCancelled},
	TripStatusQuoted: {TripStatusDraft, TripStatusBooked, TripStatusCancelled},
	TripStatusBooked: {TripStatusCompleted, TripStatusCancelled},
}

// IsValid reports whether s is a known status
func (s TripStatus) IsValid() bool {
	switch s {
	case TripStatusDraft, TripStatusQuoted, TripStatusBooked, TripStatusCompleted, TripStatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether the status may move to next
func (s TripStatus) CanTransitionTo(next TripStatus) bool {
	for _, allowed := range tripTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TripStops is the frozen stop list stored as JSONB
type TripStops []Stop

// Value implements the driver.Valuer interface
func (t TripStops) Value() (driver.Value, error) {
	if t == nil {
		return "[]", nil
	}
	bytes, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	return string(bytes), nil
}

// Scan implements the sql.Scanner interface
func (t *TripStops) Scan(value interface{}) error {
	if value == nil {
		*t = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, t)
	case string:
		return json.Unmarshal([]byte(v), t)
	}
	return fmt.Errorf("cannot scan %T into TripStops", value)
}

// CustomTrip is a named, persisted snapshot of a travel plan
type CustomTrip struct {
	ID                    uuid.UUID  `json:"id" db:"id"`
	UserID                uuid.UUID  `json:"user_id" db:"user_id"`
	Name                  string     `json:"name" db:"name"`
	Status                TripStatus `json:"status" db:"status"`
	Stops                 TripStops  `json:"stops" db:"stops"`
	EstimatedDurationDays int        `json:"estimated_duration_days" db:"estimated_duration_days"`
	TotalPrice            float64    `json:"total_price" db:"total_price"`
	PricePerDay           float64    `json:"price_per_day" db:"price_per_day"`
	CreatedAt             time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at" db:"updated_at"`
}

// Plan rebuilds a travel plan from the frozen stops
func (t *CustomTrip) Plan() *TravelPlan {
	stops := make([]Stop, len(t.Stops))
	copy(stops, t.Stops)
	return &TravelPlan{Stops: stops}
}

// UpdateTripStatusRequest is the body for status changes
type UpdateTripStatusRequest struct {
	Status TripStatus `json:"status" binding:"required"`
}

// SaveTripRequest saves the caller's current plan under a name
type SaveTripRequest struct {
	Name string `json:"name" binding:"required"`
}
