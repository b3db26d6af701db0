package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/travelcraft/booking-backend/internal/config"
	"github.com/travelcraft/booking-backend/internal/models"
)

// PromoStore reads and creates promo codes
type PromoStore interface {
	GetByCode(ctx context.Context, code string) (*models.PromoCode, error)
	Create(ctx context.Context, promo *models.PromoCode) error
}

// RateCounter is a fixed-window attempt counter
type RateCounter interface {
	IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, error)
}

// PromoService validates and manages promo codes
type PromoService struct {
	store   PromoStore
	counter RateCounter
	config  config.PromoConfig
	logger  *logrus.Logger
	now     func() time.Time
}

// NewPromoService creates a new PromoService. counter may be nil to disable limiting.
func NewPromoService(store PromoStore, counter RateCounter, cfg config.PromoConfig, logger *logrus.Logger) *PromoService {
	return &PromoService{
		store:   store,
		counter: counter,
		config:  cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// ApplyPromo proposes the discount a code gives on subtotal. It mutates nothing;
// usage is only counted when a booking is confirmed.
// Returns *models.PromoError when the code cannot be applied.
func ApplyPromo(code *models.PromoCode, subtotal float64, pctx models.PromoContext) (*models.PromoResult, error) {
	if code == nil || !code.IsActive {
		name := ""
		if code != nil {
			name = code.Code
		}
		return nil, &models.PromoError{Reason: models.PromoNotFound, Code: name}
	}

	if code.ExpiresAt != nil && !pctx.Now.Before(*code.ExpiresAt) {
		return nil, &models.PromoError{Reason: models.PromoExpired, Code: code.Code}
	}

	if code.ProgramID != nil && !containsString(pctx.ProgramIDs, *code.ProgramID) {
		return nil, &models.PromoError{Reason: models.PromoScopeMismatch, Code: code.Code}
	}
	if code.UserID != nil && *code.UserID != pctx.UserID {
		return nil, &models.PromoError{Reason: models.PromoScopeMismatch, Code: code.Code}
	}

	if code.UsageLimit != nil && code.UsageCount >= *code.UsageLimit {
		return nil, &models.PromoError{Reason: models.PromoUsageExhausted, Code: code.Code}
	}

	var discount float64
	switch code.DiscountType {
	case models.DiscountPercentage:
		discount = subtotal * code.DiscountValue / 100
	case models.DiscountFixed:
		discount = code.DiscountValue
	}
	if discount > subtotal {
		discount = subtotal
	}
	if discount < 0 {
		discount = 0
	}
	discount = models.RoundMoney(discount)

	return &models.PromoResult{
		PromoID:        code.ID,
		Code:           code.Code,
		Subtotal:       models.RoundMoney(subtotal),
		DiscountAmount: discount,
		FinalPrice:     models.RoundMoney(subtotal - discount),
	}, nil
}

// Validate is the user-facing preview. Attempts are rate limited per user.
func (s *PromoService) Validate(ctx context.Context, userID uuid.UUID, code string, subtotal float64, programIDs []string) (*models.PromoResult, error) {
	if subtotal < 0 {
		return nil, &models.ValidationError{Field: "subtotal", Message: "subtotal cannot be negative"}
	}

	if s.counter != nil && s.config.MaxAttempts > 0 {
		count, err := s.counter.IncrementWindow(ctx, "promo:"+userID.String(), s.config.Window)
		if err != nil {
			// Limiter outage does not block checkout
			s.logger.WithError(err).Warn("Promo rate limiter unavailable")
		} else if count > int64(s.config.MaxAttempts) {
			s.logger.WithFields(logrus.Fields{
				"user_id":  userID,
				"attempts": count,
			}).Warn("Promo validation rate limited")
			return nil, &models.PromoError{Reason: models.PromoRateLimited, Code: models.NormalizePromoCode(code)}
		}
	}

	result, _, err := s.Resolve(ctx, code, subtotal, models.PromoContext{
		ProgramIDs: programIDs,
		UserID:     userID,
		Now:        s.now(),
	})
	return result, err
}

// Resolve looks a code up and applies it without rate limiting
func (s *PromoService) Resolve(ctx context.Context, code string, subtotal float64, pctx models.PromoContext) (*models.PromoResult, *models.PromoCode, error) {
	normalized := models.NormalizePromoCode(code)
	if normalized == "" {
		return nil, nil, &models.PromoError{Reason: models.PromoNotFound, Code: normalized}
	}

	promo, err := s.store.GetByCode(ctx, normalized)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil, &models.PromoError{Reason: models.PromoNotFound, Code: normalized}
		}
		return nil, nil, err
	}

	result, err := ApplyPromo(promo, subtotal, pctx)
	if err != nil {
		return nil, nil, err
	}
	return result, promo, nil
}

// Create adds a promo code
func (s *PromoService) Create(ctx context.Context, req *models.CreatePromoRequest) (*models.PromoCode, error) {
	promo, err := req.ToPromoCode()
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, promo); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"code":           promo.Code,
		"discount_type":  promo.DiscountType,
		"discount_value": promo.DiscountValue,
	}).Info("Promo code created")

	return promo, nil
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
