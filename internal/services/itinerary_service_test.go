package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/travelcraft/booking-backend/internal/models"
)

type memPlanStore struct {
	plans map[uuid.UUID]*models.TravelPlan
}

func newMemPlanStore() *memPlanStore {
	return &memPlanStore{plans: map[uuid.UUID]*models.TravelPlan{}}
}

func (m *memPlanStore) GetPlan(ctx context.Context, userID uuid.UUID) (*models.TravelPlan, error) {
	stored, ok := m.plans[userID]
	if !ok {
		return models.NewTravelPlan(), nil
	}
	// Hand out a copy so callers behave like a round trip through Redis
	stops := make([]models.Stop, len(stored.Stops))
	copy(stops, stored.Stops)
	return &models.TravelPlan{Stops: stops}, nil
}

func (m *memPlanStore) SavePlan(ctx context.Context, userID uuid.UUID, plan *models.TravelPlan) error {
	m.plans[userID] = plan
	return nil
}

func (m *memPlanStore) DeletePlan(ctx context.Context, userID uuid.UUID) error {
	delete(m.plans, userID)
	return nil
}

type fakeStopLookup map[string]models.Stop

func (f fakeStopLookup) GetStop(ctx context.Context, id string) (*models.Stop, error) {
	stop, ok := f[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &stop, nil
}

type mockTripStore struct {
	mock.Mock
}

func (m *mockTripStore) Create(ctx context.Context, trip *models.CustomTrip) error {
	return m.Called(ctx, trip).Error(0)
}

func (m *mockTripStore) GetByID(ctx context.Context, id uuid.UUID) (*models.CustomTrip, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CustomTrip), args.Error(1)
}

func (m *mockTripStore) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.CustomTrip, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.CustomTrip), args.Error(1)
}

func (m *mockTripStore) UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.TripStatus) error {
	return m.Called(ctx, id, from, to).Error(0)
}

var sampleStops = fakeStopLookup{
	"sigiriya": {ID: "sigiriya", Title: "Sigiriya Rock", Price: 100, IsActive: true},
	"kandy":    {ID: "kandy", Title: "Kandy Temple", Price: 150, IsActive: true},
	"ella":     {ID: "ella", Title: "Ella Hike", Price: 200, IsActive: true},
}

func newItineraryFixture() (*ItineraryService, *memPlanStore, *mockTripStore) {
	plans := newMemPlanStore()
	trips := &mockTripStore{}
	return NewItineraryService(plans, sampleStops, trips, quietLogger()), plans, trips
}

func TestItineraryBuildsPlan(t *testing.T) {
	svc, _, _ := newItineraryFixture()
	ctx := context.Background()
	user := uuid.New()

	_, err := svc.AddStop(ctx, user, "sigiriya", nil)
	require.NoError(t, err)
	_, err = svc.AddStop(ctx, user, "ella", nil)
	require.NoError(t, err)
	middle := 1
	view, err := svc.AddStop(ctx, user, "kandy", &middle)
	require.NoError(t, err)

	assert.Equal(t, []string{"sigiriya", "kandy", "ella"}, stopIDs(view.Stops))
	assert.Equal(t, 450.0, view.Metrics.TotalPrice)
	assert.Equal(t, 3, view.Metrics.EstimatedDurationDays)
	assert.Equal(t, 150.0, view.Metrics.PricePerDay)

	t.Run("Duplicate leaves the stored plan unchanged", func(t *testing.T) {
		_, err := svc.AddStop(ctx, user, "kandy", nil)
		var dup *models.DuplicateStopError
		assert.True(t, errors.As(err, &dup))

		current, err := svc.Get(ctx, user)
		require.NoError(t, err)
		assert.Len(t, current.Stops, 3)
	})

	t.Run("Unknown stop is a validation error", func(t *testing.T) {
		_, err := svc.AddStop(ctx, user, "atlantis", nil)
		var vErr *models.ValidationError
		assert.True(t, errors.As(err, &vErr))
	})

	t.Run("Reorder and idempotent remove", func(t *testing.T) {
		view, err := svc.Reorder(ctx, user, 2, 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"ella", "sigiriya", "kandy"}, stopIDs(view.Stops))

		_, err = svc.RemoveStop(ctx, user, "sigiriya")
		require.NoError(t, err)
		view, err = svc.RemoveStop(ctx, user, "sigiriya")
		require.NoError(t, err)
		assert.Equal(t, []string{"ella", "kandy"}, stopIDs(view.Stops))
	})

	t.Run("Out of range reorder", func(t *testing.T) {
		_, err := svc.Reorder(ctx, user, 0, 5)
		var rangeErr *models.IndexOutOfRangeError
		assert.True(t, errors.As(err, &rangeErr))
	})

	t.Run("Sessions are per user", func(t *testing.T) {
		other, err := svc.Get(ctx, uuid.New())
		require.NoError(t, err)
		assert.Empty(t, other.Stops)
		assert.Equal(t, 1, other.Metrics.EstimatedDurationDays)
	})
}

func TestItinerarySave(t *testing.T) {
	ctx := context.Background()

	t.Run("Freezes the plan and ends the session", func(t *testing.T) {
		svc, plans, trips := newItineraryFixture()
		user := uuid.New()
		_, err := svc.AddStop(ctx, user, "sigiriya", nil)
		require.NoError(t, err)
		_, err = svc.AddStop(ctx, user, "kandy", nil)
		require.NoError(t, err)

		trips.On("Create", ctx, mock.MatchedBy(func(trip *models.CustomTrip) bool {
			return trip.UserID == user && trip.Status == models.TripStatusDraft && trip.TotalPrice == 250
		})).Return(nil)

		trip, err := svc.Save(ctx, user, "Hill country")
		require.NoError(t, err)
		assert.Equal(t, "Hill country", trip.Name)
		assert.Equal(t, 2, trip.EstimatedDurationDays)
		assert.NotContains(t, plans.plans, user)
		trips.AssertExpectations(t)
	})

	t.Run("Empty plan cannot be saved", func(t *testing.T) {
		svc, _, trips := newItineraryFixture()
		_, err := svc.Save(ctx, uuid.New(), "Nothing")
		var vErr *models.ValidationError
		assert.True(t, errors.As(err, &vErr))
		trips.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})
}

func TestItineraryUpdateTripStatus(t *testing.T) {
	ctx := context.Background()
	owner := uuid.New()
	tripID := uuid.New()

	newTrip := func(status models.TripStatus) *models.CustomTrip {
		return &models.CustomTrip{ID: tripID, UserID: owner, Name: "Coast", Status: status}
	}

	t.Run("Owner quotes a draft", func(t *testing.T) {
		svc, _, trips := newItineraryFixture()
		trips.On("GetByID", ctx, tripID).Return(newTrip(models.TripStatusDraft), nil)
		trips.On("UpdateStatus", ctx, tripID, models.TripStatusDraft, models.TripStatusQuoted).Return(nil)

		trip, err := svc.UpdateTripStatus(ctx, owner, tripID, models.TripStatusQuoted, false)
		require.NoError(t, err)
		assert.Equal(t, models.TripStatusQuoted, trip.Status)
		trips.AssertExpectations(t)
	})

	t.Run("Other users are forbidden", func(t *testing.T) {
		svc, _, trips := newItineraryFixture()
		trips.On("GetByID", ctx, tripID).Return(newTrip(models.TripStatusDraft), nil)

		_, err := svc.UpdateTripStatus(ctx, uuid.New(), tripID, models.TripStatusCancelled, false)
		assert.ErrorIs(t, err, models.ErrForbidden)
	})

	t.Run("Owner cannot mark a trip booked", func(t *testing.T) {
		svc, _, trips := newItineraryFixture()
		trips.On("GetByID", ctx, tripID).Return(newTrip(models.TripStatusQuoted), nil)

		_, err := svc.UpdateTripStatus(ctx, owner, tripID, models.TripStatusBooked, false)
		assert.ErrorIs(t, err, models.ErrForbidden)
	})

	t.Run("Admin completes a booked trip", func(t *testing.T) {
		svc, _, trips := newItineraryFixture()
		trips.On("GetByID", ctx, tripID).Return(newTrip(models.TripStatusBooked), nil)
		trips.On("UpdateStatus", ctx, tripID, models.TripStatusBooked, models.TripStatusCompleted).Return(nil)

		_, err := svc.UpdateTripStatus(ctx, uuid.New(), tripID, models.TripStatusCompleted, true)
		assert.NoError(t, err)
	})

	t.Run("Cancelled is terminal", func(t *testing.T) {
		svc, _, trips := newItineraryFixture()
		trips.On("GetByID", ctx, tripID).Return(newTrip(models.TripStatusCancelled), nil)

		_, err := svc.UpdateTripStatus(ctx, owner, tripID, models.TripStatusDraft, false)
		assert.ErrorIs(t, err, models.ErrInvalidTransition)
		trips.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func stopIDs(stops []models.Stop) []string {
	ids := make([]string, len(stops))
	for i, s := range stops {
		ids[i] = s.ID
	}
	return ids
}
