package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/travelcraft/booking-backend/internal/middleware"
	"github.com/travelcraft/booking-backend/internal/models"
)

type mockItinerary struct {
	mock.Mock
}

func (m *mockItinerary) Get(ctx context.Context, userID uuid.UUID) (models.PlanView, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(models.PlanView), args.Error(1)
}

func (m *mockItinerary) AddStop(ctx context.Context, userID uuid.UUID, stopID string, index *int) (models.PlanView, error) {
	args := m.Called(ctx, userID, stopID, index)
	return args.Get(0).(models.PlanView), args.Error(1)
}

func (m *mockItinerary) RemoveStop(ctx context.Context, userID uuid.UUID, stopID string) (models.PlanView, error) {
	args := m.Called(ctx, userID, stopID)
	return args.Get(0).(models.PlanView), args.Error(1)
}

func (m *mockItinerary) Reorder(ctx context.Context, userID uuid.UUID, from, to int) (models.PlanView, error) {
	args := m.Called(ctx, userID, from, to)
	return args.Get(0).(models.PlanView), args.Error(1)
}

func (m *mockItinerary) Clear(ctx context.Context, userID uuid.UUID) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *mockItinerary) Save(ctx context.Context, userID uuid.UUID, name string) (*models.CustomTrip, error) {
	args := m.Called(ctx, userID, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CustomTrip), args.Error(1)
}

func (m *mockItinerary) ListTrips(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.CustomTrip, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.CustomTrip), args.Error(1)
}

func (m *mockItinerary) GetTrip(ctx context.Context, userID, tripID uuid.UUID) (*models.CustomTrip, error) {
	args := m.Called(ctx, userID, tripID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CustomTrip), args.Error(1)
}

func (m *mockItinerary) UpdateTripStatus(ctx context.Context, userID, tripID uuid.UUID, next models.TripStatus, isAdmin bool) (*models.CustomTrip, error) {
	args := m.Called(ctx, userID, tripID, next, isAdmin)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CustomTrip), args.Error(1)
}

func TestAddStop_AppendsAndReturnsMetrics(t *testing.T) {
	itinerary := new(mockItinerary)
	h := NewItineraryHandler(itinerary, testLogger())
	router := setupTestRouter()
	router.POST("/itinerary/stops", h.AddStop)

	view := models.PlanView{Stops: []models.Stop{{ID: "sigiriya", Title: "Sigiriya", Price: 150}}}
	itinerary.On("AddStop", mock.Anything, testUserID, "sigiriya", (*int)(nil)).Return(view, nil)

	w := performRequest(router, http.MethodPost, "/itinerary/stops", map[string]interface{}{"stop_id": "sigiriya"}, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	stops := decodeBody(t, w)["stops"].([]interface{})
	assert.Len(t, stops, 1)
	itinerary.AssertExpectations(t)
}

func TestAddStop_MissingStopID(t *testing.T) {
	itinerary := new(mockItinerary)
	h := NewItineraryHandler(itinerary, testLogger())
	router := setupTestRouter()
	router.POST("/itinerary/stops", h.AddStop)

	w := performRequest(router, http.MethodPost, "/itinerary/stops", map[string]interface{}{}, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReorder(t *testing.T) {
	itinerary := new(mockItinerary)
	h := NewItineraryHandler(itinerary, testLogger())
	router := setupTestRouter()
	router.POST("/itinerary/reorder", h.Reorder)

	t.Run("zero indexes are accepted", func(t *testing.T) {
		itinerary.On("Reorder", mock.Anything, testUserID, 2, 0).Return(models.PlanView{}, nil).Once()

		w := performRequest(router, http.MethodPost, "/itinerary/reorder", map[string]interface{}{"from_index": 2, "to_index": 0}, nil)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("out of range", func(t *testing.T) {
		itinerary.On("Reorder", mock.Anything, testUserID, 0, 9).
			Return(models.PlanView{}, &models.ValidationError{Field: "to_index", Message: "index out of range"}).Once()

		w := performRequest(router, http.MethodPost, "/itinerary/reorder", map[string]interface{}{"from_index": 0, "to_index": 9}, nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "to_index", decodeBody(t, w)["field"])
	})
}

func TestSaveTrip(t *testing.T) {
	itinerary := new(mockItinerary)
	h := NewItineraryHandler(itinerary, testLogger())
	router := setupTestRouter()
	router.POST("/itinerary/save", h.Save)

	trip := &models.CustomTrip{ID: uuid.New(), UserID: testUserID, Name: "Hill country", Status: models.TripStatusDraft, TotalPrice: 300}
	itinerary.On("Save", mock.Anything, testUserID, "Hill country").Return(trip, nil)

	w := performRequest(router, http.MethodPost, "/itinerary/save", map[string]interface{}{"name": "Hill country"}, nil)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "draft", decodeBody(t, w)["status"])
}

func TestClearPlan(t *testing.T) {
	itinerary := new(mockItinerary)
	h := NewItineraryHandler(itinerary, testLogger())
	router := setupTestRouter()
	router.DELETE("/itinerary", h.Clear)
	itinerary.On("Clear", mock.Anything, testUserID).Return(nil)

	w := performRequest(router, http.MethodDelete, "/itinerary", nil, nil)

	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestUpdateTripStatus_PassesAdminFlag(t *testing.T) {
	tripID := uuid.New()

	tests := []struct {
		name    string
		roles   []string
		isAdmin bool
	}{
		{"traveler", []string{"traveler"}, false},
		{"admin", []string{middleware.RoleAdmin}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			itinerary := new(mockItinerary)
			h := NewItineraryHandler(itinerary, testLogger())
			router := setupTestRouter(tt.roles...)
			router.PATCH("/trips/:id/status", h.UpdateTripStatus)

			itinerary.On("UpdateTripStatus", mock.Anything, testUserID, tripID, models.TripStatusCancelled, tt.isAdmin).
				Return(&models.CustomTrip{ID: tripID, Status: models.TripStatusCancelled}, nil)

			w := performRequest(router, http.MethodPatch, "/trips/"+tripID.String()+"/status", map[string]interface{}{"status": "cancelled"}, nil)

			assert.Equal(t, http.StatusOK, w.Code)
			itinerary.AssertExpectations(t)
		})
	}
}

func TestListTrips_EmptyIsArray(t *testing.T) {
	itinerary := new(mockItinerary)
	h := NewItineraryHandler(itinerary, testLogger())
	router := setupTestRouter()
	router.GET("/trips", h.ListTrips)
	itinerary.On("ListTrips", mock.Anything, testUserID, 20, 0).Return(nil, nil)

	w := performRequest(router, http.MethodGet, "/trips", nil, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"trips":[]}`, w.Body.String())
}
