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

// PromoValidator previews a promo code against a subtotal
type PromoValidator interface {
	Validate(ctx context.Context, userID uuid.UUID, code string, subtotal float64, programIDs []string) (*models.PromoResult, error)
}

// PromoHandler handles promo code previews
type PromoHandler struct {
	promos PromoValidator
	logger *logrus.Logger
}

// NewPromoHandler creates a new PromoHandler
func NewPromoHandler(promos PromoValidator, logger *logrus.Logger) *PromoHandler {
	return &PromoHandler{promos: promos, logger: logger}
}

// Validate handles POST /api/v1/promos/validate
// The preview never reserves or consumes a usage.
func (h *PromoHandler) Validate(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)

	var req models.ValidatePromoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	var programIDs []string
	if req.ProgramID != "" {
		programIDs = []string{req.ProgramID}
	}

	result, err := h.promos.Validate(c.Request.Context(), userCtx.UserID, req.Code, req.Subtotal, programIDs)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"valid": true,
		"promo": result,
	})
}
