package services

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/travelcraft/booking-backend/internal/models"
)

// CatalogStore is the persistent program catalog
type CatalogStore interface {
	GetStop(ctx context.Context, id string) (*models.Stop, error)
	ListStops(ctx context.Context, filter models.StopFilter) ([]models.Stop, error)
	GetStopsByIDs(ctx context.Context, ids []string) (map[string]models.Stop, error)
	UpsertStop(ctx context.Context, stop *models.Stop) error
	ListAddons(ctx context.Context) ([]models.ServiceAddon, error)
	GetAddonsByIDs(ctx context.Context, ids []string) (models.ServiceAddons, error)
	UpsertAddon(ctx context.Context, addon *models.ServiceAddon) error
}

// StopCache caches individual catalog entries
type StopCache interface {
	GetStop(ctx context.Context, id string) (*models.Stop, error)
	SetStop(ctx context.Context, stop *models.Stop) error
	InvalidateStop(ctx context.Context, id string) error
}

// CatalogService serves programs and add-ons
type CatalogService struct {
	store  CatalogStore
	cache  StopCache
	logger *logrus.Logger
}

// NewCatalogService creates a new CatalogService. cache may be nil.
func NewCatalogService(store CatalogStore, cache StopCache, logger *logrus.Logger) *CatalogService {
	return &CatalogService{store: store, cache: cache, logger: logger}
}

// GetStop returns an active program, reading through the cache
func (s *CatalogService) GetStop(ctx context.Context, id string) (*models.Stop, error) {
	if s.cache != nil {
		stop, err := s.cache.GetStop(ctx, id)
		if err != nil {
			s.logger.WithError(err).WithField("stop_id", id).Warn("Catalog cache read failed")
		} else if stop != nil {
			return stop, nil
		}
	}

	stop, err := s.store.GetStop(ctx, id)
	if err != nil {
		return nil, err
	}
	if !stop.IsActive {
		return nil, models.ErrNotFound
	}

	if s.cache != nil {
		if err := s.cache.SetStop(ctx, stop); err != nil {
			s.logger.WithError(err).WithField("stop_id", id).Warn("Catalog cache write failed")
		}
	}
	return stop, nil
}

// ListStops returns active programs matching the filter
func (s *CatalogService) ListStops(ctx context.Context, filter models.StopFilter) ([]models.Stop, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.store.ListStops(ctx, filter)
}

// ListAddons returns the optional services sold with bookings
func (s *CatalogService) ListAddons(ctx context.Context) ([]models.ServiceAddon, error) {
	return s.store.ListAddons(ctx)
}

// GetAddonsByIDs resolves selected add-ons; an unknown id is a validation error
func (s *CatalogService) GetAddonsByIDs(ctx context.Context, ids []string) (models.ServiceAddons, error) {
	return s.store.GetAddonsByIDs(ctx, ids)
}

// ImportStop creates or replaces a program and evicts its cached copy
func (s *CatalogService) ImportStop(ctx context.Context, stop *models.Stop) error {
	if err := stop.ValidateForCatalog(); err != nil {
		return err
	}
	if err := s.store.UpsertStop(ctx, stop); err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.InvalidateStop(ctx, stop.ID); err != nil {
			s.logger.WithError(err).WithField("stop_id", stop.ID).Warn("Failed to evict cached stop")
		}
	}
	return nil
}

// ImportAddon creates or replaces an add-on
func (s *CatalogService) ImportAddon(ctx context.Context, addon *models.ServiceAddon) error {
	if addon.ID == "" || addon.Name == "" {
		return &models.ValidationError{Field: "id", Message: "add-on id and name are required"}
	}
	if addon.Price < 0 {
		return &models.ValidationError{Field: "price", Message: "price cannot be negative"}
	}
	if addon.PricingMode != models.AddonPerPerson && addon.PricingMode != models.AddonPerBooking {
		return &models.ValidationError{Field: "pricing_mode", Message: "pricing_mode must be per_person or per_booking"}
	}
	return s.store.UpsertAddon(ctx, addon)
}
