package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/travelcraft/booking-backend/internal/middleware"
	"github.com/travelcraft/booking-backend/internal/models"
)

var testUserID = uuid.MustParse("6c1e2f3a-4b5c-4d6e-8f70-112233445566")

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// setupTestRouter returns a router whose requests are already authenticated as roles
func setupTestRouter(roles ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(middleware.UserContextKey, middleware.UserContext{
			UserID: testUserID,
			Email:  "traveler@example.com",
			Roles:  roles,
		})
		c.Next()
	})
	return router
}

func performRequest(router *gin.Engine, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewBufferString(b)
		default:
			payload, _ := json.Marshal(b)
			reader = bytes.NewBuffer(payload)
		}
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

// ============================================================================
// MOCK WORKFLOW
// ============================================================================

type mockWorkflow struct {
	mock.Mock
}

func (m *mockWorkflow) Submit(ctx context.Context, userID uuid.UUID, req *models.SubmitBookingRequest, meta models.RequestMeta) (*models.SubmitBookingResponse, error) {
	args := m.Called(ctx, userID, req, meta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SubmitBookingResponse), args.Error(1)
}

func (m *mockWorkflow) RecordAuthorization(ctx context.Context, userID, bookingID uuid.UUID, req *models.AuthorizationRequest, meta models.RequestMeta) (*models.Booking, error) {
	args := m.Called(ctx, userID, bookingID, req, meta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *mockWorkflow) Verify(ctx context.Context, userID, bookingID uuid.UUID, req *models.VerifyBookingRequest, meta models.RequestMeta) (*models.ConfirmBookingResponse, error) {
	args := m.Called(ctx, userID, bookingID, req, meta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ConfirmBookingResponse), args.Error(1)
}

func (m *mockWorkflow) HandleWebhook(ctx context.Context, body []byte, meta models.RequestMeta) error {
	return m.Called(ctx, body, meta).Error(0)
}

func (m *mockWorkflow) Retry(ctx context.Context, userID, bookingID uuid.UUID) (*models.RetryBookingResponse, error) {
	args := m.Called(ctx, userID, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RetryBookingResponse), args.Error(1)
}

func (m *mockWorkflow) Abandon(ctx context.Context, userID, bookingID uuid.UUID) error {
	return m.Called(ctx, userID, bookingID).Error(0)
}

func (m *mockWorkflow) Get(ctx context.Context, userID, bookingID uuid.UUID) (*models.Booking, error) {
	args := m.Called(ctx, userID, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *mockWorkflow) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Booking, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Booking), args.Error(1)
}

func setupBookingRouter(workflow *mockWorkflow) *gin.Engine {
	h := NewBookingHandler(workflow, testLogger())
	router := setupTestRouter("traveler")
	router.POST("/bookings", h.Submit)
	router.GET("/bookings", h.ListBookings)
	router.GET("/bookings/:id", h.GetBooking)
	router.POST("/bookings/:id/authorization", h.RecordAuthorization)
	router.POST("/bookings/:id/verify", h.Verify)
	router.POST("/bookings/:id/retry", h.Retry)
	router.DELETE("/bookings/:id", h.Abandon)
	router.POST("/payments/webhook", h.Webhook)
	return router
}

// ============================================================================
// TESTS
// ============================================================================

func TestSubmitBooking_Success(t *testing.T) {
	workflow := new(mockWorkflow)
	router := setupBookingRouter(workflow)
	bookingID := uuid.New()

	workflow.On("Submit", mock.Anything, testUserID, mock.MatchedBy(func(req *models.SubmitBookingRequest) bool {
		return req.IdempotencyKey != nil && *req.IdempotencyKey == "idem-1" &&
			req.NumberOfTravelers == 2 && req.PromoCode != nil && *req.PromoCode == "SAVE10"
	}), mock.Anything).Return(&models.SubmitBookingResponse{
		BookingID:   bookingID,
		Status:      models.BookingStatusPaymentPending,
		FinalAmount: 405,
		Currency:    "USD",
		PaymentURL:  "https://pay.example/checkout",
	}, nil)

	w := performRequest(router, http.MethodPost, "/bookings", map[string]interface{}{
		"program_id":          "galle-fort",
		"traveler_name":       "Ada Perera",
		"traveler_email":      "ada@example.com",
		"traveler_phone":      "0771234567",
		"number_of_travelers": 2,
		"travel_date":         "2025-03-01",
		"promo_code":          "SAVE10",
	}, map[string]string{"Idempotency-Key": "idem-1"})

	assert.Equal(t, http.StatusCreated, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, bookingID.String(), body["booking_id"])
	assert.Equal(t, 405.0, body["final_amount"])
	workflow.AssertExpectations(t)
}

func TestSubmitBooking_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", &models.ValidationError{Field: "traveler_email", Message: "invalid email"}, http.StatusBadRequest, "VALIDATION_FAILED"},
		{"sold out", &models.AvailabilityError{Reason: models.AvailabilitySoldOut, ProgramID: "galle-fort"}, http.StatusConflict, "AVAILABILITY_SOLD_OUT"},
		{"gateway down", &models.PaymentError{Reason: "gateway_unavailable", Err: errors.New("dial tcp")}, http.StatusBadGateway, "GATEWAY_UNAVAILABLE"},
		{"not found", models.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			workflow := new(mockWorkflow)
			router := setupBookingRouter(workflow)
			workflow.On("Submit", mock.Anything, testUserID, mock.Anything, mock.Anything).Return(nil, tt.err)

			w := performRequest(router, http.MethodPost, "/bookings", map[string]interface{}{
				"program_id":          "galle-fort",
				"number_of_travelers": 1,
			}, nil)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantCode, decodeBody(t, w)["code"])
		})
	}
}

func TestSubmitBooking_MalformedBody(t *testing.T) {
	workflow := new(mockWorkflow)
	router := setupBookingRouter(workflow)

	w := performRequest(router, http.MethodPost, "/bookings", "{not json", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_REQUEST", decodeBody(t, w)["code"])
	workflow.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestGetBooking_InvalidID(t *testing.T) {
	workflow := new(mockWorkflow)
	router := setupBookingRouter(workflow)

	w := performRequest(router, http.MethodGet, "/bookings/not-a-uuid", nil, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_ID", decodeBody(t, w)["code"])
}

func TestGetBooking_Forbidden(t *testing.T) {
	workflow := new(mockWorkflow)
	router := setupBookingRouter(workflow)
	bookingID := uuid.New()
	workflow.On("Get", mock.Anything, testUserID, bookingID).Return(nil, models.ErrForbidden)

	w := performRequest(router, http.MethodGet, "/bookings/"+bookingID.String(), nil, nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestListBookings_EmptyIsArray(t *testing.T) {
	workflow := new(mockWorkflow)
	router := setupBookingRouter(workflow)
	workflow.On("List", mock.Anything, testUserID, 5, 10).Return(nil, nil)

	w := performRequest(router, http.MethodGet, "/bookings?limit=5&offset=10", nil, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"bookings":[]}`, w.Body.String())
}

func TestRecordAuthorization_RequiresOutcome(t *testing.T) {
	workflow := new(mockWorkflow)
	router := setupBookingRouter(workflow)

	w := performRequest(router, http.MethodPost, "/bookings/"+uuid.NewString()+"/authorization", map[string]interface{}{
		"provider_order_id": "ord-1",
	}, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVerifyBooking(t *testing.T) {
	bookingID := uuid.New()

	t.Run("confirmed", func(t *testing.T) {
		workflow := new(mockWorkflow)
		router := setupBookingRouter(workflow)
		workflow.On("Verify", mock.Anything, testUserID, bookingID, mock.MatchedBy(func(req *models.VerifyBookingRequest) bool {
			return req.ProviderOrderID == "ord-1"
		}), mock.Anything).Return(&models.ConfirmBookingResponse{
			BookingID:     bookingID,
			Status:        models.BookingStatusConfirmed,
			InvoiceNumber: "INV-20250201-0001",
		}, nil)

		w := performRequest(router, http.MethodPost, "/bookings/"+bookingID.String()+"/verify", map[string]interface{}{
			"provider_order_id": "ord-1",
		}, nil)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "INV-20250201-0001", decodeBody(t, w)["invoice_number"])
	})

	t.Run("not verified", func(t *testing.T) {
		workflow := new(mockWorkflow)
		router := setupBookingRouter(workflow)
		workflow.On("Verify", mock.Anything, testUserID, bookingID, mock.Anything, mock.Anything).
			Return(nil, &models.VerificationError{ProviderOrderID: "ord-1", Detail: "amount mismatch"})

		w := performRequest(router, http.MethodPost, "/bookings/"+bookingID.String()+"/verify", map[string]interface{}{
			"provider_order_id": "ord-1",
		}, nil)

		assert.Equal(t, http.StatusPaymentRequired, w.Code)
		assert.Equal(t, "PAYMENT_NOT_VERIFIED", decodeBody(t, w)["code"])
	})

	t.Run("capture still pending", func(t *testing.T) {
		workflow := new(mockWorkflow)
		router := setupBookingRouter(workflow)
		workflow.On("Verify", mock.Anything, testUserID, bookingID, mock.Anything, mock.Anything).
			Return(nil, &models.PaymentError{Reason: "gateway_pending"})

		w := performRequest(router, http.MethodPost, "/bookings/"+bookingID.String()+"/verify", map[string]interface{}{
			"provider_order_id": "ord-1",
		}, nil)

		assert.Equal(t, http.StatusAccepted, w.Code)
		assert.Equal(t, "PAYMENT_PENDING", decodeBody(t, w)["code"])
	})

	t.Run("already settled", func(t *testing.T) {
		workflow := new(mockWorkflow)
		router := setupBookingRouter(workflow)
		workflow.On("Verify", mock.Anything, testUserID, bookingID, mock.Anything, mock.Anything).
			Return(nil, models.ErrInvalidTransition)

		w := performRequest(router, http.MethodPost, "/bookings/"+bookingID.String()+"/verify", map[string]interface{}{
			"provider_order_id": "ord-1",
		}, nil)

		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestAbandonBooking(t *testing.T) {
	workflow := new(mockWorkflow)
	router := setupBookingRouter(workflow)
	bookingID := uuid.New()
	workflow.On("Abandon", mock.Anything, testUserID, bookingID).Return(nil)

	w := performRequest(router, http.MethodDelete, "/bookings/"+bookingID.String(), nil, nil)

	assert.Equal(t, http.StatusNoContent, w.Code)
	workflow.AssertExpectations(t)
}

func TestWebhook_AlwaysAcknowledges(t *testing.T) {
	workflow := new(mockWorkflow)
	router := setupBookingRouter(workflow)
	payload := `{"uid":"u-1","statusIndicator":"ok"}`
	workflow.On("HandleWebhook", mock.Anything, []byte(payload), mock.Anything).Return(errors.New("unknown booking"))

	w := performRequest(router, http.MethodPost, "/payments/webhook", payload, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	workflow.AssertExpectations(t)
}
