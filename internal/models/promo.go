package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DiscountType is how a promo discount is computed
type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// PromoCode is a discount code with its scope and usage counters
type PromoCode struct {
	ID            uuid.UUID    `json:"id" db:"id"`
	Code          string       `json:"code" db:"code"`
	DiscountType  DiscountType `json:"discount_type" db:"discount_type"`
	DiscountValue float64      `json:"discount_value" db:"discount_value"`
	ProgramID     *string      `json:"program_id,omitempty" db:"program_id"`
	UserID        *uuid.UUID   `json:"user_id,omitempty" db:"user_id"`
	UsageLimit    *int         `json:"usage_limit,omitempty" db:"usage_limit"`
	UsageCount    int          `json:"usage_count" db:"usage_count"`
	ExpiresAt     *time.Time   `json:"expires_at,omitempty" db:"expires_at"`
	IsActive      bool         `json:"is_active" db:"is_active"`
	CreatedAt     time.Time    `json:"created_at" db:"created_at"`
}

// NormalizePromoCode is the canonical lookup form of a code
func NormalizePromoCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// PromoContext is the scope a code is being applied in.
// ProgramIDs holds the single program or every stop of an itinerary.
type PromoContext struct {
	ProgramIDs []string
	UserID     uuid.UUID
	Now        time.Time
}

// PromoResult is a proposed discount. Nothing is committed until confirmation.
type PromoResult struct {
	PromoID        uuid.UUID `json:"promo_id"`
	Code           string    `json:"code"`
	Subtotal       float64   `json:"subtotal"`
	DiscountAmount float64   `json:"discount_amount"`
	FinalPrice     float64   `json:"final_price"`
}

// PromoRejection classifies why a code cannot be applied
type PromoRejection string

const (
	PromoNotFound       PromoRejection = "not_found"
	PromoExpired        PromoRejection = "expired"
	PromoScopeMismatch  PromoRejection = "scope_mismatch"
	PromoUsageExhausted PromoRejection = "usage_exhausted"
	PromoRateLimited    PromoRejection = "rate_limited"
)

// PromoError is a recoverable promo rejection
type PromoError struct {
	Reason PromoRejection
	Code   string
}

func (e *PromoError) Error() string {
	return fmt.Sprintf("promo code %q rejected: %s", e.Code, e.Reason)
}

// ValidatePromoRequest is the promo preview body
type ValidatePromoRequest struct {
	Code      string  `json:"code" binding:"required"`
	Subtotal  float64 `json:"subtotal" binding:"min=0"`
	ProgramID string  `json:"program_id"`
}

// CreatePromoRequest is the admin body for new codes
type CreatePromoRequest struct {
	Code          string       `json:"code" binding:"required"`
	DiscountType  DiscountType `json:"discount_type" binding:"required"`
	DiscountValue float64      `json:"discount_value" binding:"required,gt=0"`
	ProgramID     *string      `json:"program_id,omitempty"`
	UserID        *uuid.UUID   `json:"user_id,omitempty"`
	UsageLimit    *int         `json:"usage_limit,omitempty"`
	ExpiresAt     *time.Time   `json:"expires_at,omitempty"`
}

// ToPromoCode validates the request and builds the record
func (r *CreatePromoRequest) ToPromoCode() (*PromoCode, error) {
	code := NormalizePromoCode(r.Code)
	if code == "" {
		return nil, &ValidationError{Field: "code", Message: "code is required"}
	}
	switch r.DiscountType {
	case DiscountPercentage:
		if r.DiscountValue <= 0 || r.DiscountValue > 100 {
			return nil, &ValidationError{Field: "discount_value", Message: "percentage must be in (0, 100]"}
		}
	case DiscountFixed:
		if r.DiscountValue <= 0 {
			return nil, &ValidationError{Field: "discount_value", Message: "fixed discount must be positive"}
		}
	default:
		return nil, &ValidationError{Field: "discount_type", Message: "discount_type must be percentage or fixed"}
	}
	if r.UsageLimit != nil && *r.UsageLimit < 1 {
		return nil, &ValidationError{Field: "usage_limit", Message: "usage_limit must be at least 1"}
	}

	return &PromoCode{
		ID:            uuid.New(),
		Code:          code,
		DiscountType:  r.DiscountType,
		DiscountValue: r.DiscountValue,
		ProgramID:     r.ProgramID,
		UserID:        r.UserID,
		UsageLimit:    r.UsageLimit,
		ExpiresAt:     r.ExpiresAt,
		IsActive:      true,
		CreatedAt:     time.Now(),
	}, nil
}
