package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/travelcraft/booking-backend/internal/models"
)

// PaymentError reasons that mean "try again later" rather than "declined"
const (
	reasonGatewayUnavailable = "gateway_unavailable"
	reasonGatewayPending     = "gateway_pending"
)

// respondError maps a service error onto {error, message, code}.
// Unrecognized errors are logged and returned as 500 without detail.
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	var (
		validationErr   *models.ValidationError
		availabilityErr *models.AvailabilityError
		promoErr        *models.PromoError
		paymentErr      *models.PaymentError
		verificationErr *models.VerificationError
	)

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": validationErr.Error(),
			"code":    "VALIDATION_FAILED",
			"field":   validationErr.Field,
		})

	case errors.As(err, &availabilityErr):
		c.JSON(http.StatusConflict, gin.H{
			"error":      "unavailable",
			"message":    availabilityErr.Error(),
			"code":       "AVAILABILITY_" + strings.ToUpper(string(availabilityErr.Reason)),
			"reason":     availabilityErr.Reason,
			"program_id": availabilityErr.ProgramID,
			"date":       availabilityErr.Date,
			"available":  availabilityErr.Available,
		})

	case errors.As(err, &promoErr):
		status := http.StatusBadRequest
		if promoErr.Reason == models.PromoRateLimited {
			status = http.StatusTooManyRequests
		}
		c.JSON(status, gin.H{
			"error":   "promo_rejected",
			"message": promoErr.Error(),
			"code":    "PROMO_" + strings.ToUpper(string(promoErr.Reason)),
			"reason":  promoErr.Reason,
		})

	case errors.As(err, &verificationErr):
		logger.WithError(err).Warn("Payment verification rejected")
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error":   "verification_failed",
			"message": "Payment could not be verified. Contact support if you were charged.",
			"code":    "PAYMENT_NOT_VERIFIED",
		})

	case errors.As(err, &paymentErr):
		if paymentErr.Reason == reasonGatewayUnavailable {
			logger.WithError(err).Error("Payment gateway unavailable")
			c.JSON(http.StatusBadGateway, gin.H{
				"error":   "gateway_unavailable",
				"message": "Payment provider is not reachable. Your payment will be checked again shortly.",
				"code":    "GATEWAY_UNAVAILABLE",
			})
			return
		}
		if paymentErr.Reason == reasonGatewayPending {
			c.JSON(http.StatusAccepted, gin.H{
				"error":   "payment_pending",
				"message": "Your payment is still being processed. The booking will be confirmed once it settles.",
				"code":    "PAYMENT_PENDING",
			})
			return
		}
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error":   "payment_failed",
			"message": paymentErr.Error(),
			"code":    "PAYMENT_" + strings.ToUpper(paymentErr.Reason),
		})

	case errors.Is(err, models.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "invalid_state",
			"message": "This action is not allowed in the current state",
			"code":    "INVALID_TRANSITION",
		})

	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Resource not found",
			"code":    "NOT_FOUND",
		})

	case errors.Is(err, models.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "forbidden",
			"message": "You don't have permission to access this resource",
			"code":    "FORBIDDEN",
		})

	default:
		logger.WithError(err).WithField("path", c.FullPath()).Error("Unhandled request error")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Something went wrong. Please try again.",
			"code":    "INTERNAL_ERROR",
		})
	}
}

// respondBindError reports a malformed request body
func respondBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "invalid_request",
		"message": err.Error(),
		"code":    "INVALID_REQUEST",
	})
}
