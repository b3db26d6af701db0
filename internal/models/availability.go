package models

import (
	"fmt"
	"time"
)

// DateLayout is the calendar key format
const DateLayout = "2006-01-02"

// DayStatus is the scheduling status of a single day
type DayStatus string

const (
	DayStatusAvailable DayStatus = "available"
	DayStatusLimited   DayStatus = "limited"
	DayStatusSoldOut   DayStatus = "sold-out"
	DayStatusCancelled DayStatus = "cancelled"
)

// IsValid reports whether s is a known day status
func (s DayStatus) IsValid() bool {
	switch s {
	case DayStatusAvailable, DayStatusLimited, DayStatusSoldOut, DayStatusCancelled:
		return true
	}
	return false
}

// DayAvailability is the capacity on one date
type DayAvailability struct {
	AvailableSpots int       `json:"available_spots" db:"available_spots"`
	Status         DayStatus `json:"status" db:"status"`
}

// AvailabilityRecord is the sparse per-program calendar keyed by DateLayout
type AvailabilityRecord struct {
	ProgramID string                     `json:"program_id"`
	Days      map[string]DayAvailability `json:"days"`
}

// NewAvailabilityRecord returns an empty calendar for a program
func NewAvailabilityRecord(programID string) *AvailabilityRecord {
	return &AvailabilityRecord{ProgramID: programID, Days: map[string]DayAvailability{}}
}

// Set stores a day in the calendar
func (r *AvailabilityRecord) Set(date time.Time, day DayAvailability) {
	if r.Days == nil {
		r.Days = map[string]DayAvailability{}
	}
	r.Days[date.Format(DateLayout)] = day
}

// Lookup returns the entry for date, if any
func (r *AvailabilityRecord) Lookup(date time.Time) (DayAvailability, bool) {
	if r == nil || r.Days == nil {
		return DayAvailability{}, false
	}
	day, ok := r.Days[date.Format(DateLayout)]
	return day, ok
}

// AvailabilityDay is a calendar row as stored and as returned to clients
type AvailabilityDay struct {
	ProgramID      string    `json:"-" db:"program_id"`
	Date           time.Time `json:"-" db:"travel_date"`
	DateString     string    `json:"date" db:"-"`
	AvailableSpots int       `json:"available_spots" db:"available_spots"`
	Status         DayStatus `json:"status" db:"status"`
}

// AvailabilityReason classifies an availability rejection
type AvailabilityReason string

const (
	AvailabilityPastDate             AvailabilityReason = "past_date"
	AvailabilityDateNotOffered       AvailabilityReason = "date_not_offered"
	AvailabilitySoldOut              AvailabilityReason = "sold_out"
	AvailabilityCancelled            AvailabilityReason = "cancelled"
	AvailabilityInsufficientCapacity AvailabilityReason = "insufficient_capacity"
)

// AvailabilityError is a capacity rejection. Recoverable by choosing another date or count.
type AvailabilityError struct {
	Reason    AvailabilityReason
	ProgramID string
	Date      string
	Requested int
	Available int
}

func (e *AvailabilityError) Error() string {
	switch e.Reason {
	case AvailabilityInsufficientCapacity:
		return fmt.Sprintf("insufficient capacity for %s on %s: requested %d, available %d",
			e.ProgramID, e.Date, e.Requested, e.Available)
	case AvailabilityPastDate:
		return fmt.Sprintf("travel date %s is in the past", e.Date)
	default:
		return fmt.Sprintf("program %s not bookable on %s: %s", e.ProgramID, e.Date, e.Reason)
	}
}

// UpsertAvailabilityRequest ingests scheduling data for a program
type UpsertAvailabilityRequest struct {
	Days []AvailabilityDayInput `json:"days" binding:"required,dive"`
}

// AvailabilityDayInput is one day of a scheduling feed
type AvailabilityDayInput struct {
	Date           string    `json:"date" binding:"required" yaml:"date"`
	AvailableSpots int       `json:"available_spots" binding:"min=0" yaml:"available_spots"`
	Status         DayStatus `json:"status" binding:"required" yaml:"status"`
}

// ToDay validates and converts the input
func (in AvailabilityDayInput) ToDay(programID string) (*AvailabilityDay, error) {
	date, err := time.Parse(DateLayout, in.Date)
	if err != nil {
		return nil, &ValidationError{Field: "date", Message: "date must be formatted YYYY-MM-DD"}
	}
	if in.AvailableSpots < 0 {
		return nil, &ValidationError{Field: "available_spots", Message: "available spots cannot be negative"}
	}
	if !in.Status.IsValid() {
		return nil, &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", in.Status)}
	}
	return &AvailabilityDay{
		ProgramID:      programID,
		Date:           date,
		DateString:     in.Date,
		AvailableSpots: in.AvailableSpots,
		Status:         in.Status,
	}, nil
}
