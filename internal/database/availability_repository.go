package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/travelcraft/booking-backend/internal/models"
)

// AvailabilityRepository stores the per-program scheduling calendar
type AvailabilityRepository struct {
	db *sqlx.DB
}

// NewAvailabilityRepository creates a new AvailabilityRepository
func NewAvailabilityRepository(db *sqlx.DB) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

// GetRecord loads the full calendar for a program. An empty record means
// the scheduling feed has published nothing for it.
func (r *AvailabilityRepository) GetRecord(ctx context.Context, programID string) (*models.AvailabilityRecord, error) {
	var days []models.AvailabilityDay
	query := `
		SELECT program_id, travel_date, available_spots, status
		FROM program_availability
		WHERE program_id = $1`

	if err := r.db.SelectContext(ctx, &days, query, programID); err != nil {
		return nil, fmt.Errorf("failed to load availability for %s: %w", programID, err)
	}

	record := models.NewAvailabilityRecord(programID)
	for _, d := range days {
		record.Set(d.Date, models.DayAvailability{AvailableSpots: d.AvailableSpots, Status: d.Status})
	}
	return record, nil
}

// ListRange returns the sparse calendar between from and to inclusive
func (r *AvailabilityRepository) ListRange(ctx context.Context, programID string, from, to time.Time) ([]models.AvailabilityDay, error) {
	days := []models.AvailabilityDay{}
	query := `
		SELECT program_id, travel_date, available_spots, status
		FROM program_availability
		WHERE program_id = $1 AND travel_date BETWEEN $2 AND $3
		ORDER BY travel_date`

	if err := r.db.SelectContext(ctx, &days, query, programID, from, to); err != nil {
		return nil, fmt.Errorf("failed to list availability for %s: %w", programID, err)
	}
	for i := range days {
		days[i].DateString = days[i].Date.Format(models.DateLayout)
	}
	return days, nil
}

// UpsertDays replaces the given days of a program calendar in one transaction
func (r *AvailabilityRepository) UpsertDays(ctx context.Context, programID string, days []*models.AvailabilityDay) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO program_availability (program_id, travel_date, available_spots, status, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (program_id, travel_date) DO UPDATE SET
			available_spots = EXCLUDED.available_spots,
			status = EXCLUDED.status,
			updated_at = NOW()`

	for _, d := range days {
		if _, err := tx.ExecContext(ctx, query, programID, d.Date, d.AvailableSpots, d.Status); err != nil {
			return fmt.Errorf("failed to upsert availability %s on %s: %w", programID, d.DateString, err)
		}
	}

	return tx.Commit()
}
