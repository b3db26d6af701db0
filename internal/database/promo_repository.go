package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/travelcraft/booking-backend/internal/models"
)

// PromoRepository handles promo code storage. Usage counters are only
// incremented by BookingRepository.ConfirmBooking.
type PromoRepository struct {
	db *sqlx.DB
}

// NewPromoRepository creates a new PromoRepository
func NewPromoRepository(db *sqlx.DB) *PromoRepository {
	return &PromoRepository{db: db}
}

const promoColumns = `id, code, discount_type, discount_value, program_id, user_id,
	usage_limit, usage_count, expires_at, is_active, created_at`

// GetByCode looks up an active code case-insensitively
func (r *PromoRepository) GetByCode(ctx context.Context, code string) (*models.PromoCode, error) {
	var promo models.PromoCode
	query := `SELECT ` + promoColumns + ` FROM promo_codes WHERE code = $1 AND is_active = TRUE`
	if err := r.db.GetContext(ctx, &promo, query, models.NormalizePromoCode(code)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get promo code: %w", err)
	}
	return &promo, nil
}

// GetByID returns a code by id
func (r *PromoRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.PromoCode, error) {
	var promo models.PromoCode
	query := `SELECT ` + promoColumns + ` FROM promo_codes WHERE id = $1`
	if err := r.db.GetContext(ctx, &promo, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get promo code: %w", err)
	}
	return &promo, nil
}

// Create inserts a new code. Duplicate codes fail with a ValidationError.
func (r *PromoRepository) Create(ctx context.Context, promo *models.PromoCode) error {
	query := `
		INSERT INTO promo_codes (
			id, code, discount_type, discount_value, program_id, user_id,
			usage_limit, usage_count, expires_at, is_active, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9, $10)`

	_, err := r.db.ExecContext(ctx, query,
		promo.ID, promo.Code, promo.DiscountType, promo.DiscountValue, promo.ProgramID, promo.UserID,
		promo.UsageLimit, promo.ExpiresAt, promo.IsActive, promo.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return &models.ValidationError{Field: "code", Message: "promo code already exists"}
		}
		return fmt.Errorf("failed to create promo code: %w", err)
	}
	return nil
}
