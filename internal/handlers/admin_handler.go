package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/travelcraft/booking-backend/internal/middleware"
	"github.com/travelcraft/booking-backend/internal/models"
)

// AvailabilityIngester replaces a program's published calendar days
type AvailabilityIngester interface {
	Ingest(ctx context.Context, programID string, inputs []models.AvailabilityDayInput) (int, error)
}

// PromoCreator issues new promo codes
type PromoCreator interface {
	Create(ctx context.Context, req *models.CreatePromoRequest) (*models.PromoCode, error)
}

// BookingLookup finds bookings by id or gateway order
type BookingLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	GetByProviderOrderID(ctx context.Context, orderID string) (*models.Booking, error)
}

// PaymentTrail returns the payment audit entries of a booking
type PaymentTrail interface {
	GetByBookingID(ctx context.Context, bookingID uuid.UUID) ([]models.PaymentAudit, error)
}

// JobRunner exposes the scheduled maintenance jobs
type JobRunner interface {
	RunReconcileNow()
	RunDocumentRetryNow()
	GetJobStatus() map[string]interface{}
}

// AdminHandler handles operator endpoints under /api/v1/admin
type AdminHandler struct {
	availability AvailabilityIngester
	promos       PromoCreator
	bookings     BookingLookup
	trail        PaymentTrail
	jobs         JobRunner
	logger       *logrus.Logger
}

// NewAdminHandler creates a new admin handler. jobs may be nil when the
// scheduler runs in a separate process.
func NewAdminHandler(
	availability AvailabilityIngester,
	promos PromoCreator,
	bookings BookingLookup,
	trail PaymentTrail,
	jobs JobRunner,
	logger *logrus.Logger,
) *AdminHandler {
	return &AdminHandler{
		availability: availability,
		promos:       promos,
		bookings:     bookings,
		trail:        trail,
		jobs:         jobs,
		logger:       logger,
	}
}

// ===================================================================
// SCHEDULING FEED
// ===================================================================

// UpsertAvailability handles PUT /api/v1/admin/availability/:program_id
func (h *AdminHandler) UpsertAvailability(c *gin.Context) {
	programID := c.Param("program_id")

	var req models.UpsertAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	written, err := h.availability.Ingest(c.Request.Context(), programID, req.Days)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	admin := middleware.MustGetUserContext(c)
	h.logger.WithFields(logrus.Fields{
		"program_id": programID,
		"days":       written,
		"admin_id":   admin.UserID,
	}).Info("Availability ingested")

	c.JSON(http.StatusOK, gin.H{
		"program_id": programID,
		"days":       written,
	})
}

// ===================================================================
// PROMO CODES
// ===================================================================

// CreatePromo handles POST /api/v1/admin/promos
func (h *AdminHandler) CreatePromo(c *gin.Context) {
	var req models.CreatePromoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	promo, err := h.promos.Create(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	admin := middleware.MustGetUserContext(c)
	h.logger.WithFields(logrus.Fields{
		"promo_id": promo.ID,
		"code":     promo.Code,
		"admin_id": admin.UserID,
	}).Info("Promo code created")

	c.JSON(http.StatusCreated, promo)
}

// ===================================================================
// PAYMENT INVESTIGATION
// ===================================================================

// GetBookingPayments handles GET /api/v1/admin/bookings/:id/payments
func (h *AdminHandler) GetBookingPayments(c *gin.Context) {
	bookingID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	booking, err := h.bookings.GetByID(c.Request.Context(), bookingID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.respondTrail(c, booking)
}

// GetPaymentByOrder handles GET /api/v1/admin/payments/:order_id
func (h *AdminHandler) GetPaymentByOrder(c *gin.Context) {
	booking, err := h.bookings.GetByProviderOrderID(c.Request.Context(), c.Param("order_id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.respondTrail(c, booking)
}

func (h *AdminHandler) respondTrail(c *gin.Context, booking *models.Booking) {
	audits, err := h.trail.GetByBookingID(c.Request.Context(), booking.ID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if audits == nil {
		audits = []models.PaymentAudit{}
	}
	c.JSON(http.StatusOK, gin.H{
		"booking": booking,
		"audits":  audits,
	})
}

// ===================================================================
// MAINTENANCE JOBS
// ===================================================================

// GetJobs handles GET /api/v1/admin/jobs
func (h *AdminHandler) GetJobs(c *gin.Context) {
	if h.jobs == nil {
		c.JSON(http.StatusOK, gin.H{"jobs": []interface{}{}, "count": 0})
		return
	}
	c.JSON(http.StatusOK, h.jobs.GetJobStatus())
}

// RunJob handles POST /api/v1/admin/jobs/:name/run
func (h *AdminHandler) RunJob(c *gin.Context) {
	if h.jobs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "scheduler_unavailable",
			"message": "Scheduler is not running in this process",
			"code":    "SCHEDULER_UNAVAILABLE",
		})
		return
	}

	name := c.Param("name")
	switch name {
	case "reconcile":
		go h.jobs.RunReconcileNow()
	case "documents":
		go h.jobs.RunDocumentRetryNow()
	default:
		respondError(c, h.logger, models.ErrNotFound)
		return
	}

	h.logger.WithField("job", name).Info("Manual job run triggered")
	c.JSON(http.StatusAccepted, gin.H{"job": name, "started": true})
}
