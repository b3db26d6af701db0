package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/travelcraft/booking-backend/internal/models"
)

// CatalogRepository reads the program catalog and service add-ons.
// Writes come only from the import tool and admin ingestion.
type CatalogRepository struct {
	db *sqlx.DB
}

// NewCatalogRepository creates a new CatalogRepository
func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// ============================================================================
// STOPS
// ============================================================================

const stopColumns = `id, title, price, location, description, is_active, created_at, updated_at`

// GetStop returns an active stop by id
func (r *CatalogRepository) GetStop(ctx context.Context, id string) (*models.Stop, error) {
	var stop models.Stop
	query := `SELECT ` + stopColumns + ` FROM stops WHERE id = $1 AND is_active = TRUE`
	if err := r.db.GetContext(ctx, &stop, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get stop: %w", err)
	}
	return &stop, nil
}

// ListStops returns active stops ordered by title
func (r *CatalogRepository) ListStops(ctx context.Context, filter models.StopFilter) ([]models.Stop, error) {
	var conditions []string
	var args []interface{}
	conditions = append(conditions, "is_active = TRUE")

	if filter.Location != nil && *filter.Location != "" {
		args = append(args, "%"+*filter.Location+"%")
		conditions = append(conditions, fmt.Sprintf("location ILIKE $%d", len(args)))
	}
	if filter.MaxPrice != nil {
		args = append(args, *filter.MaxPrice)
		conditions = append(conditions, fmt.Sprintf("price <= $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)

	query := fmt.Sprintf(`SELECT %s FROM stops WHERE %s ORDER BY title LIMIT $%d OFFSET $%d`,
		stopColumns, strings.Join(conditions, " AND "), len(args)-1, len(args))

	stops := []models.Stop{}
	if err := r.db.SelectContext(ctx, &stops, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list stops: %w", err)
	}
	return stops, nil
}

// GetStopsByIDs returns the active stops among ids, keyed by id
func (r *CatalogRepository) GetStopsByIDs(ctx context.Context, ids []string) (map[string]models.Stop, error) {
	result := make(map[string]models.Stop, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var stops []models.Stop
	query := `SELECT ` + stopColumns + ` FROM stops WHERE id = ANY($1) AND is_active = TRUE`
	if err := r.db.SelectContext(ctx, &stops, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("failed to get stops: %w", err)
	}
	for _, s := range stops {
		result[s.ID] = s
	}
	return result, nil
}

// UpsertStop inserts or refreshes a catalog entry
func (r *CatalogRepository) UpsertStop(ctx context.Context, stop *models.Stop) error {
	query := `
		INSERT INTO stops (id, title, price, location, description, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			price = EXCLUDED.price,
			location = EXCLUDED.location,
			description = EXCLUDED.description,
			is_active = EXCLUDED.is_active,
			updated_at = NOW()`

	_, err := r.db.ExecContext(ctx, query,
		stop.ID, stop.Title, stop.Price, stop.Location, stop.Description, stop.IsActive)
	if err != nil {
		return fmt.Errorf("failed to upsert stop %s: %w", stop.ID, err)
	}
	return nil
}

// ============================================================================
// SERVICE ADD-ONS
// ============================================================================

// ListAddons returns all active add-ons
func (r *CatalogRepository) ListAddons(ctx context.Context) ([]models.ServiceAddon, error) {
	addons := []models.ServiceAddon{}
	query := `SELECT id, name, price, pricing_mode FROM service_addons WHERE is_active = TRUE ORDER BY name`
	if err := r.db.SelectContext(ctx, &addons, query); err != nil {
		return nil, fmt.Errorf("failed to list add-ons: %w", err)
	}
	return addons, nil
}

// GetAddonsByIDs returns the requested add-ons in request order.
// Unknown or inactive ids fail with a ValidationError.
func (r *CatalogRepository) GetAddonsByIDs(ctx context.Context, ids []string) (models.ServiceAddons, error) {
	if len(ids) == 0 {
		return models.ServiceAddons{}, nil
	}

	var rows []models.ServiceAddon
	query := `SELECT id, name, price, pricing_mode FROM service_addons WHERE id = ANY($1) AND is_active = TRUE`
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("failed to get add-ons: %w", err)
	}

	byID := make(map[string]models.ServiceAddon, len(rows))
	for _, a := range rows {
		byID[a.ID] = a
	}

	addons := make(models.ServiceAddons, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		a, ok := byID[id]
		if !ok {
			return nil, &models.ValidationError{Field: "service_ids", Message: fmt.Sprintf("unknown service %q", id)}
		}
		addons = append(addons, a)
	}
	return addons, nil
}

// UpsertAddon inserts or refreshes a service add-on
func (r *CatalogRepository) UpsertAddon(ctx context.Context, addon *models.ServiceAddon) error {
	query := `
		INSERT INTO service_addons (id, name, price, pricing_mode, is_active)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			price = EXCLUDED.price,
			pricing_mode = EXCLUDED.pricing_mode,
			is_active = TRUE`

	if _, err := r.db.ExecContext(ctx, query, addon.ID, addon.Name, addon.Price, addon.PricingMode); err != nil {
		return fmt.Errorf("failed to upsert add-on %s: %w", addon.ID, err)
	}
	return nil
}
