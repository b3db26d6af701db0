package handlers

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/travelcraft/booking-backend/internal/middleware"
	"github.com/travelcraft/booking-backend/internal/models"
	"github.com/travelcraft/booking-backend/internal/utils"
)

// maxWebhookBody caps what the payment webhook will read
const maxWebhookBody = 64 << 10

// BookingWorkflow drives a booking from submission to confirmation
type BookingWorkflow interface {
	Submit(ctx context.Context, userID uuid.UUID, req *models.SubmitBookingRequest, meta models.RequestMeta) (*models.SubmitBookingResponse, error)
	RecordAuthorization(ctx context.Context, userID, bookingID uuid.UUID, req *models.AuthorizationRequest, meta models.RequestMeta) (*models.Booking, error)
	Verify(ctx context.Context, userID, bookingID uuid.UUID, req *models.VerifyBookingRequest, meta models.RequestMeta) (*models.ConfirmBookingResponse, error)
	HandleWebhook(ctx context.Context, body []byte, meta models.RequestMeta) error
	Retry(ctx context.Context, userID, bookingID uuid.UUID) (*models.RetryBookingResponse, error)
	Abandon(ctx context.Context, userID, bookingID uuid.UUID) error
	Get(ctx context.Context, userID, bookingID uuid.UUID) (*models.Booking, error)
	List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Booking, error)
}

// BookingHandler handles the booking and payment endpoints
type BookingHandler struct {
	workflow BookingWorkflow
	logger   *logrus.Logger
}

// NewBookingHandler creates a new BookingHandler
func NewBookingHandler(workflow BookingWorkflow, logger *logrus.Logger) *BookingHandler {
	return &BookingHandler{workflow: workflow, logger: logger}
}

// ============================================================================
// SUBMISSION
// ============================================================================

// Submit handles POST /api/v1/bookings
// A client-supplied Idempotency-Key replays the first response for the same user.
func (h *BookingHandler) Submit(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)

	var req models.SubmitBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	if key := c.GetHeader("Idempotency-Key"); key != "" {
		req.IdempotencyKey = &key
	}

	resp, err := h.workflow.Submit(c.Request.Context(), userCtx.UserID, &req, utils.RequestMeta(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"booking_id":   resp.BookingID,
		"user_id":      userCtx.UserID,
		"final_amount": resp.FinalAmount,
	}).Info("Booking submitted")

	c.JSON(http.StatusCreated, resp)
}

// ListBookings handles GET /api/v1/bookings
func (h *BookingHandler) ListBookings(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	bookings, err := h.workflow.List(c.Request.Context(), userCtx.UserID, limit, offset)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if bookings == nil {
		bookings = []models.Booking{}
	}
	c.JSON(http.StatusOK, gin.H{"bookings": bookings})
}

// GetBooking handles GET /api/v1/bookings/:id
func (h *BookingHandler) GetBooking(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)
	bookingID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	booking, err := h.workflow.Get(c.Request.Context(), userCtx.UserID, bookingID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

// ============================================================================
// PAYMENT
// ============================================================================

// RecordAuthorization handles POST /api/v1/bookings/:id/authorization
// The client reports what the hosted payment page told it.
func (h *BookingHandler) RecordAuthorization(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)
	bookingID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req models.AuthorizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	booking, err := h.workflow.RecordAuthorization(c.Request.Context(), userCtx.UserID, bookingID, &req, utils.RequestMeta(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"booking_id":     booking.ID,
		"status":         booking.Status,
		"failure_reason": booking.FailureReason,
	})
}

// Verify handles POST /api/v1/bookings/:id/verify
func (h *BookingHandler) Verify(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)
	bookingID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req models.VerifyBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	resp, err := h.workflow.Verify(c.Request.Context(), userCtx.UserID, bookingID, &req, utils.RequestMeta(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Retry handles POST /api/v1/bookings/:id/retry
func (h *BookingHandler) Retry(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)
	bookingID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	resp, err := h.workflow.Retry(c.Request.Context(), userCtx.UserID, bookingID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Abandon handles DELETE /api/v1/bookings/:id
func (h *BookingHandler) Abandon(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)
	bookingID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.workflow.Abandon(c.Request.Context(), userCtx.UserID, bookingID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Webhook handles POST /api/v1/payments/webhook
// Always answers 200 once the body is read so the provider stops redelivering;
// anything unprocessed is picked up by reconciliation.
func (h *BookingHandler) Webhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		respondBindError(c, err)
		return
	}

	if err := h.workflow.HandleWebhook(c.Request.Context(), body, utils.RequestMeta(c)); err != nil {
		h.logger.WithError(err).WithField("ip", utils.GetRealIP(c)).Warn("Payment webhook not processed")
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
