package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travelcraft/booking-backend/internal/config"
	"github.com/travelcraft/booking-backend/internal/models"
)

func promoReason(t *testing.T, err error) models.PromoRejection {
	t.Helper()
	var promoErr *models.PromoError
	require.True(t, errors.As(err, &promoErr), "expected *PromoError, got %v", err)
	return promoErr.Reason
}

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }

func TestApplyPromo(t *testing.T) {
	now := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)
	userID := uuid.New()
	pctx := models.PromoContext{ProgramIDs: []string{"kandy-day"}, UserID: userID, Now: now}

	save10 := &models.PromoCode{
		ID: uuid.New(), Code: "SAVE10", DiscountType: models.DiscountPercentage, DiscountValue: 10, IsActive: true,
	}

	t.Run("Percentage code on 500 gives 50 off", func(t *testing.T) {
		result, err := ApplyPromo(save10, 500, pctx)
		require.NoError(t, err)
		assert.Equal(t, 50.0, result.DiscountAmount)
		assert.Equal(t, 450.0, result.FinalPrice)
		assert.Equal(t, save10.ID, result.PromoID)
	})

	t.Run("Applying does not consume usage", func(t *testing.T) {
		limited := *save10
		limited.UsageLimit = intPtr(1)
		_, err := ApplyPromo(&limited, 100, pctx)
		require.NoError(t, err)
		assert.Equal(t, 0, limited.UsageCount)
	})

	t.Run("Fixed discount is clamped to the subtotal", func(t *testing.T) {
		fixed := &models.PromoCode{ID: uuid.New(), Code: "FLAT300", DiscountType: models.DiscountFixed, DiscountValue: 300, IsActive: true}
		result, err := ApplyPromo(fixed, 120, pctx)
		require.NoError(t, err)
		assert.Equal(t, 120.0, result.DiscountAmount)
		assert.Equal(t, 0.0, result.FinalPrice)
	})

	t.Run("Percentage rounds to cents", func(t *testing.T) {
		odd := &models.PromoCode{ID: uuid.New(), Code: "ODD", DiscountType: models.DiscountPercentage, DiscountValue: 15, IsActive: true}
		result, err := ApplyPromo(odd, 19.99, pctx)
		require.NoError(t, err)
		assert.Equal(t, 3.0, result.DiscountAmount)
		assert.Equal(t, 16.99, result.FinalPrice)
	})

	otherUser := uuid.New()
	tests := []struct {
		name   string
		code   *models.PromoCode
		reason models.PromoRejection
	}{
		{"Missing code", nil, models.PromoNotFound},
		{"Inactive code", &models.PromoCode{Code: "OFF", DiscountType: models.DiscountFixed, DiscountValue: 5}, models.PromoNotFound},
		{"Expired exactly now", &models.PromoCode{Code: "OLD", DiscountType: models.DiscountFixed, DiscountValue: 5, IsActive: true, ExpiresAt: &now}, models.PromoExpired},
		{"Other program", &models.PromoCode{Code: "GALLE", DiscountType: models.DiscountFixed, DiscountValue: 5, IsActive: true, ProgramID: strPtr("galle-fort")}, models.PromoScopeMismatch},
		{"Other user", &models.PromoCode{Code: "VIP", DiscountType: models.DiscountFixed, DiscountValue: 5, IsActive: true, UserID: &otherUser}, models.PromoScopeMismatch},
		{"Usage exhausted", &models.PromoCode{Code: "ONCE", DiscountType: models.DiscountFixed, DiscountValue: 5, IsActive: true, UsageLimit: intPtr(3), UsageCount: 3}, models.PromoUsageExhausted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ApplyPromo(tt.code, 100, pctx)
			assert.Equal(t, tt.reason, promoReason(t, err))
		})
	}

	t.Run("Expiry is checked before scope", func(t *testing.T) {
		past := now.Add(-time.Hour)
		code := &models.PromoCode{Code: "BOTH", DiscountType: models.DiscountFixed, DiscountValue: 5, IsActive: true,
			ExpiresAt: &past, ProgramID: strPtr("elsewhere")}
		_, err := ApplyPromo(code, 100, pctx)
		assert.Equal(t, models.PromoExpired, promoReason(t, err))
	})

	t.Run("Program scope matches any stop of an itinerary", func(t *testing.T) {
		code := &models.PromoCode{ID: uuid.New(), Code: "KANDY", DiscountType: models.DiscountFixed, DiscountValue: 5, IsActive: true, ProgramID: strPtr("kandy-day")}
		_, err := ApplyPromo(code, 100, models.PromoContext{ProgramIDs: []string{"ella", "kandy-day"}, UserID: userID, Now: now})
		assert.NoError(t, err)
	})
}

type fakePromoStore struct {
	codes   map[string]*models.PromoCode
	created []*models.PromoCode
}

func (f *fakePromoStore) GetByCode(ctx context.Context, code string) (*models.PromoCode, error) {
	if p, ok := f.codes[models.NormalizePromoCode(code)]; ok {
		return p, nil
	}
	return nil, models.ErrNotFound
}

func (f *fakePromoStore) Create(ctx context.Context, promo *models.PromoCode) error {
	f.created = append(f.created, promo)
	return nil
}

type fakeRateCounter struct {
	counts map[string]int64
}

func (f *fakeRateCounter) IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	f.counts[key]++
	return f.counts[key], nil
}

func newPromoFixture() (*PromoService, *fakePromoStore, *fakeRateCounter) {
	store := &fakePromoStore{codes: map[string]*models.PromoCode{
		"SAVE10": {ID: uuid.New(), Code: "SAVE10", DiscountType: models.DiscountPercentage, DiscountValue: 10, IsActive: true},
	}}
	counter := &fakeRateCounter{counts: map[string]int64{}}
	svc := NewPromoService(store, counter, config.PromoConfig{MaxAttempts: 3, Window: time.Minute}, quietLogger())
	return svc, store, counter
}

func TestPromoServiceValidate(t *testing.T) {
	ctx := context.Background()

	t.Run("Lookup is case-insensitive", func(t *testing.T) {
		svc, _, _ := newPromoFixture()
		result, err := svc.Validate(ctx, uuid.New(), " save10 ", 500, nil)
		require.NoError(t, err)
		assert.Equal(t, 450.0, result.FinalPrice)
	})

	t.Run("Unknown code", func(t *testing.T) {
		svc, _, _ := newPromoFixture()
		_, err := svc.Validate(ctx, uuid.New(), "NOPE", 500, nil)
		assert.Equal(t, models.PromoNotFound, promoReason(t, err))
	})

	t.Run("Attempts past the window limit are rejected", func(t *testing.T) {
		svc, _, _ := newPromoFixture()
		user := uuid.New()
		for i := 0; i < 3; i++ {
			_, err := svc.Validate(ctx, user, "NOPE", 10, nil)
			assert.Equal(t, models.PromoNotFound, promoReason(t, err))
		}
		_, err := svc.Validate(ctx, user, "SAVE10", 10, nil)
		assert.Equal(t, models.PromoRateLimited, promoReason(t, err))

		// Other users are unaffected
		_, err = svc.Validate(ctx, uuid.New(), "SAVE10", 10, nil)
		assert.NoError(t, err)
	})

	t.Run("Negative subtotal is a validation error", func(t *testing.T) {
		svc, _, _ := newPromoFixture()
		_, err := svc.Validate(ctx, uuid.New(), "SAVE10", -1, nil)
		var vErr *models.ValidationError
		assert.True(t, errors.As(err, &vErr))
	})
}

func TestPromoServiceCreate(t *testing.T) {
	svc, store, _ := newPromoFixture()

	promo, err := svc.Create(context.Background(), &models.CreatePromoRequest{
		Code: "summer25", DiscountType: models.DiscountPercentage, DiscountValue: 25, UsageLimit: intPtr(100),
	})
	require.NoError(t, err)
	assert.Equal(t, "SUMMER25", promo.Code)
	assert.Len(t, store.created, 1)

	_, err = svc.Create(context.Background(), &models.CreatePromoRequest{
		Code: "BAD", DiscountType: models.DiscountPercentage, DiscountValue: 150,
	})
	var vErr *models.ValidationError
	assert.True(t, errors.As(err, &vErr))
	assert.Len(t, store.created, 1)
}
