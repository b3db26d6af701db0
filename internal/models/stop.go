package models

import "time"

// Stop is a bookable destination or program supplied by the catalog feed.
// The core never mutates a Stop; plans reference stops by ID.
type Stop struct {
	ID          string    `json:"id" db:"id"`
	Title       string    `json:"title" db:"title"`
	Price       float64   `json:"price" db:"price"`
	Location    *string   `json:"location,omitempty" db:"location"`
	Description *string   `json:"description,omitempty" db:"description"`
	IsActive    bool      `json:"is_active" db:"is_active"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// StopFilter narrows catalog listings
type StopFilter struct {
	Location *string
	MaxPrice *float64
	Limit    int
	Offset   int
}

// ValidateForCatalog checks the fields a catalog entry must carry
func (s *Stop) ValidateForCatalog() error {
	if s.ID == "" {
		return &ValidationError{Field: "id", Message: "stop id is required"}
	}
	if s.Title == "" {
		return &ValidationError{Field: "title", Message: "stop title is required"}
	}
	if s.Price < 0 {
		return &ValidationError{Field: "price", Message: "stop price cannot be negative"}
	}
	return nil
}
