package models

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// PlanDayPolicy is the number of days each stop contributes to a trip.
// One day per stop, with a one day minimum for an empty plan.
const PlanDayPolicy = 1

// DuplicateStopError is returned when a stop is already part of the plan
type DuplicateStopError struct {
	StopID string
}

func (e *DuplicateStopError) Error() string {
	return fmt.Sprintf("stop %s is already in the plan", e.StopID)
}

// IndexOutOfRangeError is returned for positions outside the plan
type IndexOutOfRangeError struct {
	Index int
	Len   int
}

func (e *IndexOutOfRangeError) Error() string {
	return fmt.Sprintf("index %d out of range for plan of %d stops", e.Index, e.Len)
}

// PlanMetrics are the economics derived from a plan's composition
type PlanMetrics struct {
	EstimatedDurationDays int     `json:"estimated_duration_days"`
	TotalPrice            float64 `json:"total_price"`
	PricePerDay           float64 `json:"price_per_day"`
}

// TravelPlan is an ordered, duplicate-free sequence of stops.
// Order is visit order.
type TravelPlan struct {
	Stops []Stop `json:"stops"`
}

// NewTravelPlan returns an empty plan
func NewTravelPlan() *TravelPlan {
	return &TravelPlan{Stops: []Stop{}}
}

// Len returns the number of stops
func (p *TravelPlan) Len() int {
	return len(p.Stops)
}

// Contains reports whether a stop with this ID is in the plan
func (p *TravelPlan) Contains(stopID string) bool {
	return p.indexOf(stopID) >= 0
}

func (p *TravelPlan) indexOf(stopID string) int {
	for i := range p.Stops {
		if p.Stops[i].ID == stopID {
			return i
		}
	}
	return -1
}

// InsertAt places stop at index, shifting later stops right.
// index must be in [0, Len()]. The plan is unchanged on error.
func (p *TravelPlan) InsertAt(stop Stop, index int) error {
	if p.Contains(stop.ID) {
		return &DuplicateStopError{StopID: stop.ID}
	}
	if index < 0 || index > len(p.Stops) {
		return &IndexOutOfRangeError{Index: index, Len: len(p.Stops)}
	}

	p.Stops = append(p.Stops, Stop{})
	copy(p.Stops[index+1:], p.Stops[index:])
	p.Stops[index] = stop
	return nil
}

// Append adds stop to the end of the plan
func (p *TravelPlan) Append(stop Stop) error {
	return p.InsertAt(stop, len(p.Stops))
}

// RemoveByID removes the stop if present. Removing an absent ID is a no-op.
func (p *TravelPlan) RemoveByID(stopID string) bool {
	i := p.indexOf(stopID)
	if i < 0 {
		return false
	}
	p.Stops = append(p.Stops[:i], p.Stops[i+1:]...)
	return true
}

// Reorder moves the stop at from to position to
func (p *TravelPlan) Reorder(from, to int) error {
	n := len(p.Stops)
	if from < 0 || from >= n {
		return &IndexOutOfRangeError{Index: from, Len: n}
	}
	if to < 0 || to >= n {
		return &IndexOutOfRangeError{Index: to, Len: n}
	}
	if from == to {
		return nil
	}

	moved := p.Stops[from]
	if from < to {
		copy(p.Stops[from:to], p.Stops[from+1:to+1])
	} else {
		copy(p.Stops[to+1:from+1], p.Stops[to:from])
	}
	p.Stops[to] = moved
	return nil
}

// Clear empties the plan
func (p *TravelPlan) Clear() {
	p.Stops = []Stop{}
}

// Metrics derives duration, total and per-day price. Pure.
func (p *TravelPlan) Metrics() PlanMetrics {
	days := len(p.Stops) * PlanDayPolicy
	if days < 1 {
		days = 1
	}

	var total float64
	for _, s := range p.Stops {
		total += s.Price
	}

	perDay := 0.0
	if len(p.Stops) > 0 {
		perDay = total / float64(days)
	}

	return PlanMetrics{
		EstimatedDurationDays: days,
		TotalPrice:            RoundMoney(total),
		PricePerDay:           RoundMoney(perDay),
	}
}

// StopIDs returns the stop IDs in visit order
func (p *TravelPlan) StopIDs() []string {
	ids := make([]string, 0, len(p.Stops))
	for _, s := range p.Stops {
		ids = append(ids, s.ID)
	}
	return ids
}

// ToCustomTrip freezes the plan and its metrics into a draft custom trip
func (p *TravelPlan) ToCustomTrip(name string, userID uuid.UUID) (*CustomTrip, error) {
	if name == "" {
		return nil, &ValidationError{Field: "name", Message: "trip name is required"}
	}
	if len(p.Stops) == 0 {
		return nil, &ValidationError{Field: "stops", Message: "cannot save an empty plan"}
	}

	stops := make(TripStops, len(p.Stops))
	copy(stops, p.Stops)
	m := p.Metrics()
	now := time.Now()

	return &CustomTrip{
		ID:                    uuid.New(),
		UserID:                userID,
		Name:                  name,
		Status:                TripStatusDraft,
		Stops:                 stops,
		EstimatedDurationDays: m.EstimatedDurationDays,
		TotalPrice:            m.TotalPrice,
		PricePerDay:           m.PricePerDay,
		CreatedAt:             now,
		UpdatedAt:             now,
	}, nil
}

// RoundMoney rounds to two decimal places
func RoundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}

// PlanView is a plan together with its derived metrics
type PlanView struct {
	Stops   []Stop      `json:"stops"`
	Metrics PlanMetrics `json:"metrics"`
}

// View snapshots the plan for clients
func (p *TravelPlan) View() PlanView {
	return PlanView{Stops: p.Stops, Metrics: p.Metrics()}
}

// AddStopRequest inserts a catalog stop. A nil index appends.
type AddStopRequest struct {
	StopID string `json:"stop_id" binding:"required"`
	Index  *int   `json:"index,omitempty"`
}

// ReorderStopsRequest moves the stop at FromIndex to ToIndex
type ReorderStopsRequest struct {
	FromIndex *int `json:"from_index" binding:"required"`
	ToIndex   *int `json:"to_index" binding:"required"`
}
