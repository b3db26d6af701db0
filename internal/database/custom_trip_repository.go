package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/travelcraft/booking-backend/internal/models"
)

// CustomTripRepository persists saved itineraries. Trips are never deleted.
type CustomTripRepository struct {
	db *sqlx.DB
}

// NewCustomTripRepository creates a new CustomTripRepository
func NewCustomTripRepository(db *sqlx.DB) *CustomTripRepository {
	return &CustomTripRepository{db: db}
}

const customTripColumns = `id, user_id, name, status, stops, estimated_duration_days,
	total_price, price_per_day, created_at, updated_at`

// Create inserts a trip snapshot
func (r *CustomTripRepository) Create(ctx context.Context, trip *models.CustomTrip) error {
	query := `
		INSERT INTO custom_trips (
			id, user_id, name, status, stops, estimated_duration_days,
			total_price, price_per_day, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.ExecContext(ctx, query,
		trip.ID, trip.UserID, trip.Name, trip.Status, trip.Stops, trip.EstimatedDurationDays,
		trip.TotalPrice, trip.PricePerDay, trip.CreatedAt, trip.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create custom trip: %w", err)
	}
	return nil
}

// GetByID returns a trip by id
func (r *CustomTripRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.CustomTrip, error) {
	var trip models.CustomTrip
	query := `SELECT ` + customTripColumns + ` FROM custom_trips WHERE id = $1`
	if err := r.db.GetContext(ctx, &trip, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get custom trip: %w", err)
	}
	return &trip, nil
}

// ListByUser returns a user's trips, newest first
func (r *CustomTripRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.CustomTrip, error) {
	trips := []models.CustomTrip{}
	query := `SELECT ` + customTripColumns + ` FROM custom_trips
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`
	if err := r.db.SelectContext(ctx, &trips, query, userID, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list custom trips: %w", err)
	}
	return trips, nil
}

// UpdateStatus moves a trip from one status to another.
// Returns ErrInvalidTransition if the trip is no longer in from.
func (r *CustomTripRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.TripStatus) error {
	query := `UPDATE custom_trips SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`
	result, err := r.db.ExecContext(ctx, query, id, from, to)
	if err != nil {
		return fmt.Errorf("failed to update custom trip status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return models.ErrInvalidTransition
	}
	return nil
}
