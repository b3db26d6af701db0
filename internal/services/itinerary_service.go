package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/travelcraft/booking-backend/internal/models"
)

// PlanStore keeps one in-progress plan per user
type PlanStore interface {
	GetPlan(ctx context.Context, userID uuid.UUID) (*models.TravelPlan, error)
	SavePlan(ctx context.Context, userID uuid.UUID, plan *models.TravelPlan) error
	DeletePlan(ctx context.Context, userID uuid.UUID) error
}

// StopLookup resolves catalog stops by id
type StopLookup interface {
	GetStop(ctx context.Context, id string) (*models.Stop, error)
}

// TripStore persists saved custom trips
type TripStore interface {
	Create(ctx context.Context, trip *models.CustomTrip) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.CustomTrip, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.CustomTrip, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.TripStatus) error
}

// ItineraryService is the per-user plan session. Every mutation loads the
// session, applies one plan operation and stores it back.
type ItineraryService struct {
	plans   PlanStore
	catalog StopLookup
	trips   TripStore
	logger  *logrus.Logger
}

// NewItineraryService creates a new ItineraryService
func NewItineraryService(plans PlanStore, catalog StopLookup, trips TripStore, logger *logrus.Logger) *ItineraryService {
	return &ItineraryService{
		plans:   plans,
		catalog: catalog,
		trips:   trips,
		logger:  logger,
	}
}

// Get returns the user's current plan
func (s *ItineraryService) Get(ctx context.Context, userID uuid.UUID) (models.PlanView, error) {
	plan, err := s.plans.GetPlan(ctx, userID)
	if err != nil {
		return models.PlanView{}, fmt.Errorf("failed to load plan: %w", err)
	}
	return plan.View(), nil
}

// AddStop inserts a catalog stop at index, or appends when index is nil
func (s *ItineraryService) AddStop(ctx context.Context, userID uuid.UUID, stopID string, index *int) (models.PlanView, error) {
	stop, err := s.catalog.GetStop(ctx, stopID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.PlanView{}, &models.ValidationError{Field: "stop_id", Message: "unknown stop " + stopID}
		}
		return models.PlanView{}, err
	}

	return s.mutate(ctx, userID, func(plan *models.TravelPlan) error {
		if index == nil {
			return plan.Append(*stop)
		}
		return plan.InsertAt(*stop, *index)
	})
}

// RemoveStop drops a stop from the plan. Removing an absent stop is not an error.
func (s *ItineraryService) RemoveStop(ctx context.Context, userID uuid.UUID, stopID string) (models.PlanView, error) {
	return s.mutate(ctx, userID, func(plan *models.TravelPlan) error {
		plan.RemoveByID(stopID)
		return nil
	})
}

// Reorder moves one stop to a new position
func (s *ItineraryService) Reorder(ctx context.Context, userID uuid.UUID, from, to int) (models.PlanView, error) {
	return s.mutate(ctx, userID, func(plan *models.TravelPlan) error {
		return plan.Reorder(from, to)
	})
}

// Clear empties the plan
func (s *ItineraryService) Clear(ctx context.Context, userID uuid.UUID) error {
	return s.plans.DeletePlan(ctx, userID)
}

// Save freezes the current plan into a draft custom trip and ends the session
func (s *ItineraryService) Save(ctx context.Context, userID uuid.UUID, name string) (*models.CustomTrip, error) {
	plan, err := s.plans.GetPlan(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load plan: %w", err)
	}

	trip, err := plan.ToCustomTrip(name, userID)
	if err != nil {
		return nil, err
	}
	if err := s.trips.Create(ctx, trip); err != nil {
		return nil, err
	}

	if err := s.plans.DeletePlan(ctx, userID); err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("Failed to clear saved plan session")
	}

	s.logger.WithFields(logrus.Fields{
		"trip_id":     trip.ID,
		"user_id":     userID,
		"stops":       len(trip.Stops),
		"total_price": trip.TotalPrice,
	}).Info("Custom trip saved")

	return trip, nil
}

func (s *ItineraryService) mutate(ctx context.Context, userID uuid.UUID, apply func(*models.TravelPlan) error) (models.PlanView, error) {
	plan, err := s.plans.GetPlan(ctx, userID)
	if err != nil {
		return models.PlanView{}, fmt.Errorf("failed to load plan: %w", err)
	}
	if err := apply(plan); err != nil {
		return models.PlanView{}, err
	}
	if err := s.plans.SavePlan(ctx, userID, plan); err != nil {
		return models.PlanView{}, fmt.Errorf("failed to store plan: %w", err)
	}
	return plan.View(), nil
}

// ============================================================================
// SAVED TRIPS
// ============================================================================

// ListTrips returns the user's saved trips
func (s *ItineraryService) ListTrips(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.CustomTrip, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.trips.ListByUser(ctx, userID, limit, offset)
}

// GetTrip returns a saved trip owned by the user
func (s *ItineraryService) GetTrip(ctx context.Context, userID, tripID uuid.UUID) (*models.CustomTrip, error) {
	trip, err := s.trips.GetByID(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if trip.UserID != userID {
		return nil, models.ErrForbidden
	}
	return trip, nil
}

// UpdateTripStatus moves a trip along its lifecycle. Owners may only quote,
// re-draft or cancel; booked and completed are set by the system or an admin.
func (s *ItineraryService) UpdateTripStatus(ctx context.Context, userID, tripID uuid.UUID, next models.TripStatus, isAdmin bool) (*models.CustomTrip, error) {
	if !next.IsValid() {
		return nil, &models.ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", next)}
	}

	trip, err := s.trips.GetByID(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if !isAdmin {
		if trip.UserID != userID {
			return nil, models.ErrForbidden
		}
		if next == models.TripStatusBooked || next == models.TripStatusCompleted {
			return nil, models.ErrForbidden
		}
	}
	if !trip.Status.CanTransitionTo(next) {
		return nil, models.ErrInvalidTransition
	}

	if err := s.trips.UpdateStatus(ctx, tripID, trip.Status, next); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"trip_id": tripID,
		"from":    trip.Status,
		"to":      next,
	}).Info("Custom trip status updated")

	trip.Status = next
	return trip, nil
}
