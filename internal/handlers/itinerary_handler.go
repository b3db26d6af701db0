package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/travelcraft/booking-backend/internal/middleware"
	"github.com/travelcraft/booking-backend/internal/models"
)

// Itinerary is the plan builder and saved-trip store
type Itinerary interface {
	Get(ctx context.Context, userID uuid.UUID) (models.PlanView, error)
	AddStop(ctx context.Context, userID uuid.UUID, stopID string, index *int) (models.PlanView, error)
	RemoveStop(ctx context.Context, userID uuid.UUID, stopID string) (models.PlanView, error)
	Reorder(ctx context.Context, userID uuid.UUID, from, to int) (models.PlanView, error)
	Clear(ctx context.Context, userID uuid.UUID) error
	Save(ctx context.Context, userID uuid.UUID, name string) (*models.CustomTrip, error)
	ListTrips(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.CustomTrip, error)
	GetTrip(ctx context.Context, userID, tripID uuid.UUID) (*models.CustomTrip, error)
	UpdateTripStatus(ctx context.Context, userID, tripID uuid.UUID, next models.TripStatus, isAdmin bool) (*models.CustomTrip, error)
}

// ItineraryHandler handles the plan builder and custom trip endpoints
type ItineraryHandler struct {
	itinerary Itinerary
	logger    *logrus.Logger
}

// NewItineraryHandler creates a new ItineraryHandler
func NewItineraryHandler(itinerary Itinerary, logger *logrus.Logger) *ItineraryHandler {
	return &ItineraryHandler{itinerary: itinerary, logger: logger}
}

// ============================================================================
// PLAN - /api/v1/itinerary
// ============================================================================

// GetPlan handles GET /api/v1/itinerary
func (h *ItineraryHandler) GetPlan(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)
	view, err := h.itinerary.Get(c.Request.Context(), userCtx.UserID)
	h.respondPlan(c, view, err)
}

// AddStop handles POST /api/v1/itinerary/stops
func (h *ItineraryHandler) AddStop(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)

	var req models.AddStopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	view, err := h.itinerary.AddStop(c.Request.Context(), userCtx.UserID, req.StopID, req.Index)
	h.respondPlan(c, view, err)
}

// RemoveStop handles DELETE /api/v1/itinerary/stops/:stop_id
func (h *ItineraryHandler) RemoveStop(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)
	view, err := h.itinerary.RemoveStop(c.Request.Context(), userCtx.UserID, c.Param("stop_id"))
	h.respondPlan(c, view, err)
}

// Reorder handles POST /api/v1/itinerary/reorder
func (h *ItineraryHandler) Reorder(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)

	var req models.ReorderStopsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	view, err := h.itinerary.Reorder(c.Request.Context(), userCtx.UserID, *req.FromIndex, *req.ToIndex)
	h.respondPlan(c, view, err)
}

// Clear handles DELETE /api/v1/itinerary
func (h *ItineraryHandler) Clear(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)
	if err := h.itinerary.Clear(c.Request.Context(), userCtx.UserID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Save handles POST /api/v1/itinerary/save
func (h *ItineraryHandler) Save(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)

	var req models.SaveTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	trip, err := h.itinerary.Save(c.Request.Context(), userCtx.UserID, req.Name)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, trip)
}

func (h *ItineraryHandler) respondPlan(c *gin.Context, view models.PlanView, err error) {
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// ============================================================================
// SAVED TRIPS - /api/v1/trips
// ============================================================================

// ListTrips handles GET /api/v1/trips
func (h *ItineraryHandler) ListTrips(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	trips, err := h.itinerary.ListTrips(c.Request.Context(), userCtx.UserID, limit, offset)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if trips == nil {
		trips = []models.CustomTrip{}
	}
	c.JSON(http.StatusOK, gin.H{"trips": trips})
}

// GetTrip handles GET /api/v1/trips/:id
func (h *ItineraryHandler) GetTrip(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)
	tripID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	trip, err := h.itinerary.GetTrip(c.Request.Context(), userCtx.UserID, tripID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, trip)
}

// UpdateTripStatus handles PATCH /api/v1/trips/:id/status and its admin twin
func (h *ItineraryHandler) UpdateTripStatus(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)
	tripID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req models.UpdateTripStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	trip, err := h.itinerary.UpdateTripStatus(c.Request.Context(), userCtx.UserID, tripID, req.Status, userCtx.IsAdmin())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"trip_id": tripID,
		"status":  trip.Status,
		"user_id": userCtx.UserID,
	}).Info("Trip status updated")
	c.JSON(http.StatusOK, trip)
}

// parseUUIDParam reads a uuid path parameter, answering 400 when malformed
func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "invalid " + name,
			"code":    "INVALID_ID",
		})
		return uuid.Nil, false
	}
	return id, true
}
