package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/travelcraft/booking-backend/internal/database"
	"github.com/travelcraft/booking-backend/internal/kafka"
	"github.com/travelcraft/booking-backend/internal/models"
	"github.com/travelcraft/booking-backend/pkg/validator"
)

// BookingWorkflowConfig holds checkout policy
type BookingWorkflowConfig struct {
	MaxTravelers int           // Largest party a single booking may carry
	PaymentTTL   time.Duration // How long a booking may wait in payment_pending
	Currency     string
	EventsTopic  string // Empty disables booking event publishing
}

// DefaultBookingWorkflowConfig returns default configuration
func DefaultBookingWorkflowConfig() BookingWorkflowConfig {
	return BookingWorkflowConfig{
		MaxTravelers: 20,
		PaymentTTL:   30 * time.Minute,
		Currency:     "USD",
		EventsTopic:  "booking-events",
	}
}

// BookingStore persists bookings and runs the confirmation transaction
type BookingStore interface {
	Create(ctx context.Context, b *models.Booking) error
	Resubmit(ctx context.Context, b *models.Booking) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	GetByIdempotencyKey(ctx context.Context, userID uuid.UUID, key string) (*models.Booking, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Booking, error)
	Delete(ctx context.Context, id uuid.UUID) error
	SetPaymentIntent(ctx context.Context, id uuid.UUID, gatewayUID, gatewayToken, paymentURL string) error
	MarkVerifying(ctx context.Context, id uuid.UUID, providerOrderID string) error
	MarkFailed(ctx context.Context, id uuid.UUID, from models.BookingStatus, reason string) error
	ResetToDetails(ctx context.Context, id uuid.UUID) error
	ExpirePaymentPending(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
	ListExpiredWithIntent(ctx context.Context, now time.Time, limit int) ([]models.Booking, error)
	ExpireBooking(ctx context.Context, id uuid.UUID) error
	ListStuckVerifying(ctx context.Context, cutoff time.Time, limit int) ([]models.Booking, error)
	ConfirmBooking(ctx context.Context, p database.ConfirmParams) (*database.ConfirmResult, error)
}

// BookableCatalog resolves programs and add-ons at submit
type BookableCatalog interface {
	GetStop(ctx context.Context, id string) (*models.Stop, error)
	GetAddonsByIDs(ctx context.Context, ids []string) (models.ServiceAddons, error)
}

// TripReader loads saved custom trips
type TripReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.CustomTrip, error)
}

// AvailabilityGate is the authoritative capacity check
type AvailabilityGate interface {
	Check(ctx context.Context, programID string, date time.Time, travelerCount int) error
	CheckItinerary(ctx context.Context, stops []models.Stop, start time.Time, travelerCount int) error
}

// PromoResolver re-validates a promo code at submit
type PromoResolver interface {
	Resolve(ctx context.Context, code string, subtotal float64, pctx models.PromoContext) (*models.PromoResult, *models.PromoCode, error)
}

// InvoiceIssuer builds paid invoices and renders their receipts
type InvoiceIssuer interface {
	IssuePaid(bc models.BookingContext, payment *VerifiedPayment) (*models.Invoice, error)
	RenderDocument(ctx context.Context, inv *models.Invoice) (*models.InvoiceDocument, error)
}

// BookingNotifier tells operations about confirmed bookings
type BookingNotifier interface {
	NotifyAsync(b *models.Booking)
}

// AuditLogger appends payment audit entries
type AuditLogger interface {
	Log(ctx context.Context, audit *models.PaymentAudit) error
}

// BookingWorkflowService drives a booking from submit to confirmation.
// Confirmation is only ever reached through server-side gateway verification.
type BookingWorkflowService struct {
	bookings     BookingStore
	catalog      BookableCatalog
	trips        TripReader
	availability AvailabilityGate
	promos       PromoResolver
	gateway      PaymentGateway
	invoices     InvoiceIssuer
	notifier     BookingNotifier
	audits       AuditLogger
	events       Publisher
	config       BookingWorkflowConfig
	logger       *logrus.Logger
	now          func() time.Time
	wg           sync.WaitGroup
}

// NewBookingWorkflowService creates a new BookingWorkflowService. events may be nil.
func NewBookingWorkflowService(
	bookings BookingStore,
	catalog BookableCatalog,
	trips TripReader,
	availability AvailabilityGate,
	promos PromoResolver,
	gateway PaymentGateway,
	invoices InvoiceIssuer,
	notifier BookingNotifier,
	audits AuditLogger,
	events Publisher,
	config BookingWorkflowConfig,
	logger *logrus.Logger,
) *BookingWorkflowService {
	return &BookingWorkflowService{
		bookings:     bookings,
		catalog:      catalog,
		trips:        trips,
		availability: availability,
		promos:       promos,
		gateway:      gateway,
		invoices:     invoices,
		notifier:     notifier,
		audits:       audits,
		events:       events,
		config:       config,
		logger:       logger,
		now:          time.Now,
	}
}

// ============================================================================
// SUBMIT (details -> payment_pending)
// ============================================================================

// bookingDraft is a validated, priced submit ready to persist
type bookingDraft struct {
	booking        *models.Booking
	promoRejection *string
}

// Submit validates traveler details, re-checks availability, prices the booking
// and opens a gateway intent. Validation and capacity failures persist nothing.
func (s *BookingWorkflowService) Submit(ctx context.Context, userID uuid.UUID, req *models.SubmitBookingRequest, meta models.RequestMeta) (*models.SubmitBookingResponse, error) {
	if req.IdempotencyKey != nil && *req.IdempotencyKey != "" && req.BookingID == nil {
		existing, err := s.bookings.GetByIdempotencyKey(ctx, userID, *req.IdempotencyKey)
		if err == nil {
			s.logger.WithFields(logrus.Fields{
				"booking_id": existing.ID,
				"user_id":    userID,
			}).Info("Replaying submit for idempotency key")
			return submitResponse(existing, nil), nil
		}
		if !errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
	}

	draft, err := s.prepare(ctx, userID, req)
	if err != nil {
		return nil, err
	}
	b := draft.booking

	if req.BookingID != nil {
		existing, err := s.bookings.GetByID(ctx, *req.BookingID)
		if err != nil {
			return nil, err
		}
		if existing.UserID != userID {
			return nil, models.ErrForbidden
		}
		if existing.Status != models.BookingStatusDetails {
			return nil, models.ErrInvalidTransition
		}
		b.ID = existing.ID
		b.CreatedAt = existing.CreatedAt
		b.IdempotencyKey = existing.IdempotencyKey
		if err := s.bookings.Resubmit(ctx, b); err != nil {
			return nil, err
		}
	} else {
		if err := s.bookings.Create(ctx, b); err != nil {
			return nil, err
		}
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id":   b.ID,
		"user_id":      userID,
		"final_amount": b.FinalAmount,
		"travelers":    b.NumberOfTravelers,
	}).Info("Booking submitted")

	start := time.Now()
	intent, err := s.gateway.CreateIntent(ctx, &PaymentIntentParams{
		Reference:     b.PaymentReference(),
		Amount:        b.FinalAmount,
		Currency:      b.Currency,
		CustomerName:  b.TravelerName,
		CustomerEmail: b.TravelerEmail,
		CustomerPhone: b.TravelerPhone,
		Description:   strings.Join(b.Pricing.Items, ", "),
	})
	if err != nil {
		audit := models.NewPaymentAudit(b.ID, models.PaymentEventIntentFailed, models.PaymentSourceBackend).
			SetError(err.Error()).
			SetClientInfo(meta.IPAddress, meta.UserAgent, meta.Client).
			SetProcessingTime(start)
		s.audit(ctx, audit)

		if markErr := s.bookings.MarkFailed(ctx, b.ID, models.BookingStatusPaymentPending, models.FailureReasonPaymentError); markErr != nil {
			s.logger.WithError(markErr).WithField("booking_id", b.ID).Error("Failed to mark booking failed after intent error")
		}
		b.Status = models.BookingStatusFailed
		s.publishEvent(b, kafka.EventBookingFailed, models.FailureReasonPaymentError)

		var payErr *models.PaymentError
		if errors.As(err, &payErr) {
			return nil, err
		}
		return nil, &models.PaymentError{Reason: models.FailureReasonPaymentError, Err: err}
	}

	if err := s.bookings.SetPaymentIntent(ctx, b.ID, intent.GatewayUID, intent.GatewayToken, intent.PaymentURL); err != nil {
		return nil, fmt.Errorf("failed to store payment intent: %w", err)
	}
	b.GatewayUID = &intent.GatewayUID
	b.PaymentURL = &intent.PaymentURL

	audit := models.NewPaymentAudit(b.ID, models.PaymentEventIntentCreated, models.PaymentSourceBackend).
		SetProviderOrderID(intent.GatewayUID).
		SetPaymentStatus("pending").
		SetClientInfo(meta.IPAddress, meta.UserAgent, meta.Client).
		SetProcessingTime(start)
	audit.SetAmounts(b.FinalAmount, b.FinalAmount, b.Currency)
	s.audit(ctx, audit)

	return submitResponse(b, draft.promoRejection), nil
}

func (s *BookingWorkflowService) prepare(ctx context.Context, userID uuid.UUID, req *models.SubmitBookingRequest) (*bookingDraft, error) {
	hasProgram := req.ProgramID != nil && *req.ProgramID != ""
	hasTrip := req.CustomTripID != nil
	if hasProgram == hasTrip {
		return nil, &models.ValidationError{Field: "program_id", Message: "exactly one of program_id or custom_trip_id is required"}
	}

	contact, err := validator.ValidateTravelerContact(req.TravelerName, req.TravelerEmail, req.TravelerPhone)
	if err != nil {
		var fieldErr *validator.FieldError
		if errors.As(err, &fieldErr) {
			return nil, &models.ValidationError{Field: fieldErr.Field, Message: fieldErr.Err.Error()}
		}
		return nil, err
	}

	if req.NumberOfTravelers < 1 {
		return nil, &models.ValidationError{Field: "number_of_travelers", Message: "at least one traveler is required"}
	}
	if req.NumberOfTravelers > s.config.MaxTravelers {
		return nil, &models.ValidationError{
			Field:   "number_of_travelers",
			Message: fmt.Sprintf("a booking can carry at most %d travelers", s.config.MaxTravelers),
		}
	}

	if strings.TrimSpace(req.TravelDate) == "" {
		return nil, &models.ValidationError{Field: "travel_date", Message: "travel date is required"}
	}
	travelDate, err := time.Parse(models.DateLayout, req.TravelDate)
	if err != nil {
		return nil, &models.ValidationError{Field: "travel_date", Message: "travel date must be formatted YYYY-MM-DD"}
	}

	// Resolve the target and gate capacity against the database
	var (
		items      []string
		programIDs []string
		unitPrice  float64
	)
	if hasProgram {
		stop, err := s.catalog.GetStop(ctx, *req.ProgramID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return nil, &models.ValidationError{Field: "program_id", Message: "unknown program " + *req.ProgramID}
			}
			return nil, err
		}
		if err := s.availability.Check(ctx, stop.ID, travelDate, req.NumberOfTravelers); err != nil {
			return nil, err
		}
		items = []string{stop.Title}
		programIDs = []string{stop.ID}
		unitPrice = stop.Price
	} else {
		trip, err := s.trips.GetByID(ctx, *req.CustomTripID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return nil, &models.ValidationError{Field: "custom_trip_id", Message: "unknown custom trip"}
			}
			return nil, err
		}
		if trip.UserID != userID {
			return nil, models.ErrForbidden
		}
		if !trip.Status.CanTransitionTo(models.TripStatusBooked) {
			return nil, &models.ValidationError{Field: "custom_trip_id", Message: fmt.Sprintf("a %s trip cannot be booked", trip.Status)}
		}
		if len(trip.Stops) == 0 {
			return nil, &models.ValidationError{Field: "custom_trip_id", Message: "custom trip has no stops"}
		}
		if err := s.availability.CheckItinerary(ctx, trip.Stops, travelDate, req.NumberOfTravelers); err != nil {
			return nil, err
		}
		for _, stop := range trip.Stops {
			items = append(items, stop.Title)
			programIDs = append(programIDs, stop.ID)
		}
		unitPrice = trip.TotalPrice
	}

	addons, err := s.catalog.GetAddonsByIDs(ctx, req.ServiceIDs)
	if err != nil {
		return nil, err
	}

	now := s.now()
	pricing := models.PricingSnapshot{
		Items:        items,
		UnitPrice:    models.RoundMoney(unitPrice),
		Travelers:    req.NumberOfTravelers,
		BaseAmount:   models.RoundMoney(unitPrice * float64(req.NumberOfTravelers)),
		Currency:     s.config.Currency,
		CalculatedAt: now,
	}
	var addonsTotal float64
	for _, a := range addons {
		addonsTotal += a.ChargeFor(req.NumberOfTravelers)
	}
	pricing.AddonsAmount = models.RoundMoney(addonsTotal)
	pricing.Subtotal = models.RoundMoney(pricing.BaseAmount + pricing.AddonsAmount)
	pricing.Total = pricing.Subtotal

	var (
		promoID        *uuid.UUID
		promoRejection *string
	)
	if req.PromoCode != nil && strings.TrimSpace(*req.PromoCode) != "" {
		result, code, err := s.promos.Resolve(ctx, *req.PromoCode, pricing.Subtotal, models.PromoContext{
			ProgramIDs: programIDs,
			UserID:     userID,
			Now:        now,
		})
		var promoErr *models.PromoError
		switch {
		case errors.As(err, &promoErr):
			// Booking proceeds at full price
			reason := string(promoErr.Reason)
			promoRejection = &reason
			s.logger.WithFields(logrus.Fields{
				"user_id": userID,
				"code":    promoErr.Code,
				"reason":  promoErr.Reason,
			}).Info("Promo rejected at submit")
		case err != nil:
			return nil, err
		default:
			id := code.ID
			promoID = &id
			pricing.DiscountAmount = result.DiscountAmount
			pricing.Total = result.FinalPrice
			pricing.Discount = &models.BookingDiscountInfo{
				PromoID:        code.ID,
				Code:           code.Code,
				DiscountType:   code.DiscountType,
				DiscountValue:  code.DiscountValue,
				DiscountAmount: result.DiscountAmount,
			}
		}
	}

	if req.ExpectedAmount != nil && !amountsMatch(*req.ExpectedAmount, pricing.Total) {
		s.logger.WithFields(logrus.Fields{
			"user_id":         userID,
			"client_amount":   *req.ExpectedAmount,
			"server_amount":   pricing.Total,
			"promo_rejection": promoRejection,
		}).Warn("Client price differs from server price; server price wins")
	}

	expiresAt := now.Add(s.config.PaymentTTL)
	b := &models.Booking{
		ID:                uuid.New(),
		UserID:            userID,
		Status:            models.BookingStatusPaymentPending,
		ProgramID:         req.ProgramID,
		CustomTripID:      req.CustomTripID,
		TravelerName:      contact.Name,
		TravelerEmail:     contact.Email,
		TravelerPhone:     contact.Phone,
		NumberOfTravelers: req.NumberOfTravelers,
		TravelDate:        travelDate,
		Addons:            addons,
		PromoID:           promoID,
		Pricing:           pricing,
		FinalAmount:       pricing.Total,
		Currency:          s.config.Currency,
		PaymentExpiresAt:  &expiresAt,
		IdempotencyKey:    req.IdempotencyKey,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if !hasProgram {
		b.ProgramID = nil
	}

	return &bookingDraft{booking: b, promoRejection: promoRejection}, nil
}

func submitResponse(b *models.Booking, promoRejection *string) *models.SubmitBookingResponse {
	resp := &models.SubmitBookingResponse{
		BookingID:      b.ID,
		Status:         b.Status,
		FinalAmount:    b.FinalAmount,
		Currency:       b.Currency,
		PromoRejection: promoRejection,
	}
	if b.PaymentURL != nil {
		resp.PaymentURL = *b.PaymentURL
	}
	return resp
}

// ============================================================================
// CLIENT CLAIMS (payment_pending -> verifying | failed)
// ============================================================================

// RecordAuthorization stores what the client says the gateway did. A success
// claim only moves the booking to verifying; it never confirms anything.
func (s *BookingWorkflowService) RecordAuthorization(ctx context.Context, userID, bookingID uuid.UUID, req *models.AuthorizationRequest, meta models.RequestMeta) (*models.Booking, error) {
	b, err := s.ownedBooking(ctx, userID, bookingID)
	if err != nil {
		return nil, err
	}

	switch req.Outcome {
	case models.AuthorizationSuccess:
		if strings.TrimSpace(req.ProviderOrderID) == "" {
			return nil, &models.ValidationError{Field: "provider_order_id", Message: "provider order id is required for a successful authorization"}
		}
		if b.Status == models.BookingStatusVerifying && b.ProviderOrderID != nil && *b.ProviderOrderID == req.ProviderOrderID {
			return b, nil
		}
		if err := s.claim(ctx, b, req.ProviderOrderID, models.PaymentSourceClient, meta); err != nil {
			return nil, err
		}
		return b, nil

	case models.AuthorizationCancelled, models.AuthorizationError:
		if b.Status != models.BookingStatusPaymentPending {
			return nil, models.ErrInvalidTransition
		}
		reason := models.FailureReasonPaymentCancelled
		if req.Outcome == models.AuthorizationError {
			reason = models.FailureReasonPaymentError
		}
		if err := s.bookings.MarkFailed(ctx, b.ID, models.BookingStatusPaymentPending, reason); err != nil {
			return nil, err
		}

		audit := models.NewPaymentAudit(b.ID, models.PaymentEventCancelled, models.PaymentSourceClient).
			SetPaymentStatus(string(req.Outcome)).
			SetClientInfo(meta.IPAddress, meta.UserAgent, meta.Client)
		if req.Message != "" {
			audit.SetError(req.Message)
		}
		s.audit(ctx, audit)

		b.Status = models.BookingStatusFailed
		b.FailureReason = &reason
		s.publishEvent(b, kafka.EventBookingFailed, reason)
		return b, nil

	default:
		return nil, &models.ValidationError{Field: "outcome", Message: "outcome must be success, cancelled or error"}
	}
}

// claim moves payment_pending -> verifying with the claimed order id
func (s *BookingWorkflowService) claim(ctx context.Context, b *models.Booking, providerOrderID string, source models.PaymentEventSource, meta models.RequestMeta) error {
	if b.Status != models.BookingStatusPaymentPending {
		return models.ErrInvalidTransition
	}
	if err := s.bookings.MarkVerifying(ctx, b.ID, providerOrderID); err != nil {
		return err
	}

	audit := models.NewPaymentAudit(b.ID, models.PaymentEventClientClaim, source).
		SetProviderOrderID(providerOrderID).
		SetPaymentStatus("claimed").
		SetClientInfo(meta.IPAddress, meta.UserAgent, meta.Client)
	s.audit(ctx, audit)

	b.Status = models.BookingStatusVerifying
	b.ProviderOrderID = &providerOrderID
	return nil
}

// ============================================================================
// VERIFY (verifying -> confirmed | failed)
// ============================================================================

// Verify asks the gateway to confirm the claimed payment. A confirmed booking
// returns the same result again.
func (s *BookingWorkflowService) Verify(ctx context.Context, userID, bookingID uuid.UUID, req *models.VerifyBookingRequest, meta models.RequestMeta) (*models.ConfirmBookingResponse, error) {
	b, err := s.ownedBooking(ctx, userID, bookingID)
	if err != nil {
		return nil, err
	}

	if b.Status == models.BookingStatusConfirmed {
		return confirmedResponse(b, false), nil
	}

	if b.Status == models.BookingStatusPaymentPending {
		if strings.TrimSpace(req.ProviderOrderID) == "" {
			return nil, &models.ValidationError{Field: "provider_order_id", Message: "provider order id is required"}
		}
		if err := s.claim(ctx, b, req.ProviderOrderID, models.PaymentSourceClient, meta); err != nil {
			return nil, err
		}
	}
	if b.Status != models.BookingStatusVerifying {
		return nil, models.ErrInvalidTransition
	}

	if req.FinalAmount != nil && !amountsMatch(*req.FinalAmount, b.FinalAmount) {
		audit := models.NewPaymentAudit(b.ID, models.PaymentEventAmountMismatch, models.PaymentSourceClient).
			SetClientInfo(meta.IPAddress, meta.UserAgent, meta.Client)
		audit.SetAmounts(b.FinalAmount, *req.FinalAmount, b.Currency)
		s.audit(ctx, audit)
		s.logger.WithFields(logrus.Fields{
			"booking_id":    b.ID,
			"client_amount": *req.FinalAmount,
			"booked_amount": b.FinalAmount,
		}).Warn("Client reported a different amount at verification")
	}

	return s.verifyAndConfirm(ctx, b, models.PaymentSourceGateway, meta)
}

func (s *BookingWorkflowService) verifyAndConfirm(ctx context.Context, b *models.Booking, source models.PaymentEventSource, meta models.RequestMeta) (*models.ConfirmBookingResponse, error) {
	providerOrderID := ""
	if b.ProviderOrderID != nil {
		providerOrderID = *b.ProviderOrderID
	}
	lookup := paymentLookup(b, providerOrderID)

	start := time.Now()
	s.audit(ctx, models.NewPaymentAudit(b.ID, models.PaymentEventVerifyRequest, source).
		SetProviderOrderID(providerOrderID).
		SetClientInfo(meta.IPAddress, meta.UserAgent, meta.Client))

	verified, err := s.gateway.VerifyIntent(ctx, lookup)
	if err == nil {
		err = s.checkVerifiedPayment(b, verified)
	}
	if err != nil {
		var verifyErr *models.VerificationError
		if !errors.As(err, &verifyErr) {
			// Unreachable or not yet settled: the booking stays verifying for reconciliation
			s.audit(ctx, models.NewPaymentAudit(b.ID, models.PaymentEventVerifyFailed, source).
				SetProviderOrderID(providerOrderID).
				SetError(err.Error()).
				SetProcessingTime(start))
			if isPaymentPending(err) {
				s.logger.WithField("booking_id", b.ID).Info("Payment not settled yet; booking stays verifying")
			} else {
				s.logger.WithError(err).WithField("booking_id", b.ID).Error("Payment verification could not reach the gateway")
			}
			return nil, err
		}
		return nil, s.failVerification(ctx, b, verifyErr, source, start)
	}

	audit := models.NewPaymentAudit(b.ID, models.PaymentEventVerifySuccess, source).
		SetProviderOrderID(providerOrderID).
		SetPaymentStatus(verified.PaymentStatus).
		SetPayload(verified.Raw).
		SetProcessingTime(start)
	audit.SetAmounts(b.FinalAmount, verified.Amount, verified.Currency)
	s.audit(ctx, audit)

	return s.confirm(ctx, b, verified)
}

// checkVerifiedPayment rejects a gateway answer that does not match the booking
func (s *BookingWorkflowService) checkVerifiedPayment(b *models.Booking, verified *VerifiedPayment) error {
	if verified.Reference != "" && verified.Reference != b.PaymentReference() {
		return &models.VerificationError{ProviderOrderID: verified.ProviderOrderID, Detail: "charge belongs to another booking"}
	}
	if !amountsMatch(verified.Amount, b.FinalAmount) {
		return &models.VerificationError{
			ProviderOrderID: verified.ProviderOrderID,
			Detail:          fmt.Sprintf("captured %.2f but booking total is %.2f", verified.Amount, b.FinalAmount),
		}
	}
	if verified.Currency != "" && b.Currency != "" && !strings.EqualFold(verified.Currency, b.Currency) {
		return &models.VerificationError{
			ProviderOrderID: verified.ProviderOrderID,
			Detail:          fmt.Sprintf("captured in %s but booking is in %s", verified.Currency, b.Currency),
		}
	}
	return nil
}

func (s *BookingWorkflowService) failVerification(ctx context.Context, b *models.Booking, verifyErr *models.VerificationError, source models.PaymentEventSource, start time.Time) error {
	if err := s.bookings.MarkFailed(ctx, b.ID, models.BookingStatusVerifying, models.FailureReasonVerificationFailed); err != nil {
		s.logger.WithError(err).WithField("booking_id", b.ID).Error("Failed to mark booking failed after verification error")
	}

	s.audit(ctx, models.NewPaymentAudit(b.ID, models.PaymentEventVerifyFailed, source).
		SetProviderOrderID(verifyErr.ProviderOrderID).
		SetPaymentStatus("failed").
		SetError(verifyErr.Detail).
		SetProcessingTime(start))

	// Support has to reconcile: money may have moved
	s.logger.WithFields(logrus.Fields{
		"booking_id":        b.ID,
		"provider_order_id": verifyErr.ProviderOrderID,
		"detail":            verifyErr.Detail,
	}).Error("Payment verification failed")

	reason := models.FailureReasonVerificationFailed
	b.Status = models.BookingStatusFailed
	b.FailureReason = &reason
	s.publishEvent(b, kafka.EventBookingFailed, reason)
	return verifyErr
}

// confirm commits the verified booking. Everything after the commit is best
// effort and never rolls the booking back.
func (s *BookingWorkflowService) confirm(ctx context.Context, b *models.Booking, verified *VerifiedPayment) (*models.ConfirmBookingResponse, error) {
	inv, err := s.invoices.IssuePaid(models.BookingContext{Booking: b}, verified)
	if err != nil {
		return nil, err
	}

	result, err := s.bookings.ConfirmBooking(ctx, database.ConfirmParams{
		BookingID:     b.ID,
		GatewayUID:    verified.ProviderOrderID,
		PaymentStatus: "paid",
		PromoID:       b.PromoID,
		CustomTripID:  b.CustomTripID,
		Invoice:       inv,
	})
	if err != nil {
		if errors.Is(err, models.ErrInvalidTransition) {
			// Another path confirmed first
			current, getErr := s.bookings.GetByID(ctx, b.ID)
			if getErr == nil && current.Status == models.BookingStatusConfirmed {
				return confirmedResponse(current, false), nil
			}
		}
		s.logger.WithError(err).WithField("booking_id", b.ID).Error("Confirmation transaction failed")
		return nil, err
	}

	now := s.now()
	b.Status = models.BookingStatusConfirmed
	b.InvoiceNumber = &inv.InvoiceNumber
	b.ConfirmedAt = &now

	s.audit(ctx, models.NewPaymentAudit(b.ID, models.PaymentEventBookingConfirmed, models.PaymentSourceSystem).
		SetProviderOrderID(verified.ProviderOrderID).
		SetPaymentStatus("paid").
		SetPayload(map[string]interface{}{
			"invoice_number":  inv.InvoiceNumber,
			"promo_counted":   result.PromoCounted,
			"invoice_created": result.InvoiceCreated,
		}))

	s.logger.WithFields(logrus.Fields{
		"booking_id":     b.ID,
		"invoice_number": inv.InvoiceNumber,
		"amount":         b.FinalAmount,
		"promo_counted":  result.PromoCounted,
	}).Info("Booking confirmed")

	receiptPending := true
	if result.InvoiceCreated {
		if _, err := s.invoices.RenderDocument(ctx, inv); err != nil {
			s.logger.WithError(err).WithField("invoice_number", inv.InvoiceNumber).Warn("Receipt rendering failed; will retry")
		} else {
			receiptPending = false
		}
	}

	if s.notifier != nil {
		s.notifier.NotifyAsync(b)
	}
	s.publishEvent(b, kafka.EventBookingConfirmed, "")

	return confirmedResponse(b, receiptPending), nil
}

func confirmedResponse(b *models.Booking, receiptPending bool) *models.ConfirmBookingResponse {
	resp := &models.ConfirmBookingResponse{
		BookingID:      b.ID,
		Status:         b.Status,
		ReceiptPending: receiptPending,
	}
	if b.InvoiceNumber != nil {
		resp.InvoiceNumber = *b.InvoiceNumber
	}
	return resp
}

// ============================================================================
// WEBHOOK (treated as a claim, always re-verified)
// ============================================================================

// HandleWebhook processes a gateway notification. The payload is never trusted
// on its own; a success notification leads to the same server-side verification.
func (s *BookingWorkflowService) HandleWebhook(ctx context.Context, body []byte, meta models.RequestMeta) error {
	claim, err := s.gateway.ParseWebhook(body)
	if err != nil {
		return &models.ValidationError{Field: "body", Message: err.Error()}
	}

	bookingID, err := uuid.Parse(claim.Reference)
	if err != nil {
		return &models.ValidationError{Field: "invoiceId", Message: "unknown payment reference"}
	}
	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return err
	}

	s.audit(ctx, models.NewPaymentAudit(b.ID, models.PaymentEventWebhookReceived, models.PaymentSourceWebhook).
		SetProviderOrderID(claim.ProviderOrderID).
		SetPaymentStatus(string(claim.Outcome)).
		SetPayload(claim.Raw).
		SetClientInfo(meta.IPAddress, meta.UserAgent, meta.Client))

	switch b.Status {
	case models.BookingStatusPaymentPending:
		if claim.Outcome != models.AuthorizationSuccess {
			reason := models.FailureReasonPaymentError
			if claim.Outcome == models.AuthorizationCancelled {
				reason = models.FailureReasonPaymentCancelled
			}
			if err := s.bookings.MarkFailed(ctx, b.ID, models.BookingStatusPaymentPending, reason); err != nil && !errors.Is(err, models.ErrInvalidTransition) {
				return err
			}
			b.Status = models.BookingStatusFailed
			b.FailureReason = &reason
			s.publishEvent(b, kafka.EventBookingFailed, reason)
			return nil
		}
		if err := s.claim(ctx, b, claim.ProviderOrderID, models.PaymentSourceWebhook, meta); err != nil {
			if errors.Is(err, models.ErrInvalidTransition) {
				return nil
			}
			return err
		}
	case models.BookingStatusVerifying:
		// Fall through to verification
	case models.BookingStatusFailed:
		if claim.Outcome == models.AuthorizationSuccess {
			s.flagLateCapture(ctx, b, claim, meta)
			return nil
		}
		s.logger.WithField("booking_id", b.ID).Info("Ignoring webhook for failed booking")
		return nil
	default:
		s.logger.WithFields(logrus.Fields{
			"booking_id": b.ID,
			"status":     b.Status,
		}).Info("Ignoring webhook for settled booking")
		return nil
	}

	_, err = s.verifyAndConfirm(ctx, b, models.PaymentSourceWebhook, meta)
	var verifyErr *models.VerificationError
	if errors.As(err, &verifyErr) || isPaymentPending(err) {
		return nil
	}
	return err
}

// flagLateCapture handles a success notification for a booking that already
// failed. The booking is not reopened; a confirmed capture is audited and
// raised for a manual refund or rebooking.
func (s *BookingWorkflowService) flagLateCapture(ctx context.Context, b *models.Booking, claim *PaymentClaim, meta models.RequestMeta) {
	start := time.Now()
	audit := models.NewPaymentAudit(b.ID, models.PaymentEventLateCapture, models.PaymentSourceWebhook).
		SetProviderOrderID(claim.ProviderOrderID).
		SetPayload(claim.Raw).
		SetClientInfo(meta.IPAddress, meta.UserAgent, meta.Client)

	fields := logrus.Fields{
		"booking_id":        b.ID,
		"user_id":           b.UserID,
		"provider_order_id": claim.ProviderOrderID,
		"booked_amount":     b.FinalAmount,
	}
	if b.FailureReason != nil {
		fields["failure_reason"] = *b.FailureReason
	}

	verified, err := s.gateway.VerifyIntent(ctx, paymentLookup(b, claim.ProviderOrderID))
	audit.SetProcessingTime(start)

	var verifyErr *models.VerificationError
	switch {
	case err == nil:
		audit.SetPaymentStatus(verified.PaymentStatus)
		audit.SetAmounts(b.FinalAmount, verified.Amount, verified.Currency)
		s.audit(ctx, audit)
		fields["captured_amount"] = verified.Amount
		fields["transaction_id"] = verified.TransactionID
		s.logger.WithFields(fields).Error("Payment captured for a failed booking; refund or rebook manually")
	case errors.As(err, &verifyErr):
		audit.SetPaymentStatus("not_captured").SetError(verifyErr.Detail)
		s.audit(ctx, audit)
		s.logger.WithFields(fields).Warn("Success webhook for a failed booking is not backed by a capture")
	default:
		audit.SetError(err.Error())
		s.audit(ctx, audit)
		s.logger.WithFields(fields).WithError(err).Error("Success webhook for a failed booking could not be checked; review the charge manually")
	}
}

// ============================================================================
// RETRY / ABANDON
// ============================================================================

// Retry reopens a failed booking and hands back its details for re-entry
func (s *BookingWorkflowService) Retry(ctx context.Context, userID, bookingID uuid.UUID) (*models.RetryBookingResponse, error) {
	b, err := s.ownedBooking(ctx, userID, bookingID)
	if err != nil {
		return nil, err
	}

	switch b.Status {
	case models.BookingStatusFailed:
		if err := s.bookings.ResetToDetails(ctx, b.ID); err != nil {
			return nil, err
		}
		b.Status = models.BookingStatusDetails
	case models.BookingStatusDetails:
	default:
		return nil, models.ErrInvalidTransition
	}

	return &models.RetryBookingResponse{
		BookingID: b.ID,
		Status:    b.Status,
		Details:   b.DetailsForRetry(),
	}, nil
}

// Abandon discards a booking that has not reached verification
func (s *BookingWorkflowService) Abandon(ctx context.Context, userID, bookingID uuid.UUID) error {
	b, err := s.ownedBooking(ctx, userID, bookingID)
	if err != nil {
		return err
	}
	if !b.Status.IsAbandonable() {
		return models.ErrInvalidTransition
	}
	if err := s.bookings.Delete(ctx, b.ID); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": b.ID,
		"status":     b.Status,
	}).Info("Booking abandoned")
	return nil
}

// ============================================================================
// READS
// ============================================================================

// Get returns a booking the caller owns
func (s *BookingWorkflowService) Get(ctx context.Context, userID, bookingID uuid.UUID) (*models.Booking, error) {
	return s.ownedBooking(ctx, userID, bookingID)
}

// List returns the caller's bookings
func (s *BookingWorkflowService) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Booking, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.bookings.ListByUser(ctx, userID, limit, offset)
}

func (s *BookingWorkflowService) ownedBooking(ctx context.Context, userID, bookingID uuid.UUID) (*models.Booking, error) {
	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.UserID != userID {
		return nil, models.ErrForbidden
	}
	return b, nil
}

// ============================================================================
// BACKGROUND JOBS
// ============================================================================

// ExpirePending fails bookings whose payment window closed. Nothing was
// reserved or counted, so nothing needs releasing. Bookings that hold a
// gateway intent are checked with the gateway first: a captured charge is
// confirmed instead, and an unreachable gateway defers the booking to the next run.
func (s *BookingWorkflowService) ExpirePending(ctx context.Context, limit int) (int, error) {
	now := s.now()
	ids, err := s.bookings.ExpirePaymentPending(ctx, now, limit)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		s.audit(ctx, models.NewPaymentAudit(id, models.PaymentEventTimedOut, models.PaymentSourceSystem).
			SetPaymentStatus("expired"))
		s.publishEvent(&models.Booking{ID: id, Status: models.BookingStatusFailed}, kafka.EventBookingFailed, models.FailureReasonPaymentTimeout)
	}
	expired := len(ids)

	withIntent, err := s.bookings.ListExpiredWithIntent(ctx, now, limit)
	if err != nil {
		return expired, err
	}
	for i := range withIntent {
		if s.settleExpired(ctx, &withIntent[i]) {
			expired++
		}
	}
	return expired, nil
}

// settleExpired resolves one expired payment_pending booking that has a gateway
// intent. Reports whether the booking was expired.
func (s *BookingWorkflowService) settleExpired(ctx context.Context, b *models.Booking) bool {
	uid := *b.GatewayUID
	start := time.Now()
	s.audit(ctx, models.NewPaymentAudit(b.ID, models.PaymentEventVerifyRequest, models.PaymentSourceSystem).
		SetProviderOrderID(uid))

	verified, err := s.gateway.VerifyIntent(ctx, paymentLookup(b, uid))
	if err == nil {
		// Paid on the hosted page but neither the client nor the webhook told us
		if err := s.claim(ctx, b, uid, models.PaymentSourceSystem, models.RequestMeta{}); err != nil {
			if !errors.Is(err, models.ErrInvalidTransition) {
				s.logger.WithError(err).WithField("booking_id", b.ID).Error("Failed to claim captured payment on expiry")
			}
			return false
		}
		if err := s.checkVerifiedPayment(b, verified); err != nil {
			var verifyErr *models.VerificationError
			if errors.As(err, &verifyErr) {
				_ = s.failVerification(ctx, b, verifyErr, models.PaymentSourceSystem, start)
			}
			return false
		}

		audit := models.NewPaymentAudit(b.ID, models.PaymentEventVerifySuccess, models.PaymentSourceSystem).
			SetProviderOrderID(uid).
			SetPaymentStatus(verified.PaymentStatus).
			SetPayload(verified.Raw).
			SetProcessingTime(start)
		audit.SetAmounts(b.FinalAmount, verified.Amount, verified.Currency)
		s.audit(ctx, audit)

		if _, err := s.confirm(ctx, b, verified); err != nil {
			s.logger.WithError(err).WithField("booking_id", b.ID).Error("Captured payment found on expiry could not be confirmed; left for reconciliation")
		}
		return false
	}

	var payErr *models.PaymentError
	if errors.As(err, &payErr) && payErr.Reason == PaymentReasonGatewayUnavailable {
		s.logger.WithError(err).WithField("booking_id", b.ID).Warn("Gateway unreachable; expiry deferred")
		return false
	}

	// Declined, abandoned or still unpaid after the window
	if err := s.bookings.ExpireBooking(ctx, b.ID); err != nil {
		if !errors.Is(err, models.ErrInvalidTransition) {
			s.logger.WithError(err).WithField("booking_id", b.ID).Error("Failed to expire booking")
		}
		return false
	}

	s.audit(ctx, models.NewPaymentAudit(b.ID, models.PaymentEventTimedOut, models.PaymentSourceSystem).
		SetProviderOrderID(uid).
		SetPaymentStatus("expired").
		SetError(err.Error()).
		SetProcessingTime(start))

	reason := models.FailureReasonPaymentTimeout
	b.Status = models.BookingStatusFailed
	b.FailureReason = &reason
	s.publishEvent(b, kafka.EventBookingFailed, reason)
	return true
}

// ReconcileVerifying re-verifies bookings stuck in verifying since before olderThan ago
func (s *BookingWorkflowService) ReconcileVerifying(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	stuck, err := s.bookings.ListStuckVerifying(ctx, s.now().Add(-olderThan), limit)
	if err != nil {
		return 0, err
	}

	confirmed := 0
	for i := range stuck {
		b := &stuck[i]
		s.audit(ctx, models.NewPaymentAudit(b.ID, models.PaymentEventReconciliationRetry, models.PaymentSourceSystem))

		resp, err := s.verifyAndConfirm(ctx, b, models.PaymentSourceSystem, models.RequestMeta{})
		if err != nil {
			s.logger.WithError(err).WithField("booking_id", b.ID).Warn("Reconciliation did not confirm booking")
			continue
		}
		if resp.Status == models.BookingStatusConfirmed {
			confirmed++
		}
	}
	return confirmed, nil
}

// ============================================================================
// HELPERS
// ============================================================================

func (s *BookingWorkflowService) audit(ctx context.Context, audit *models.PaymentAudit) {
	if s.audits == nil {
		return
	}
	if err := s.audits.Log(ctx, audit); err != nil {
		s.logger.WithError(err).WithField("event_type", audit.EventType).Warn("Failed to write payment audit")
	}
}

// publishEvent writes the booking event in the background so request paths
// never wait on the broker. Wait drains in-flight events.
func (s *BookingWorkflowService) publishEvent(b *models.Booking, eventType, reason string) {
	if s.events == nil || s.config.EventsTopic == "" {
		return
	}

	event := kafka.BookingEvent{
		Type:       eventType,
		BookingID:  b.ID,
		UserID:     b.UserID,
		Status:     string(b.Status),
		Amount:     b.FinalAmount,
		Currency:   b.Currency,
		Reason:     reason,
		OccurredAt: s.now(),
	}
	if b.InvoiceNumber != nil {
		event.InvoiceNumber = *b.InvoiceNumber
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.events.Publish(ctx, s.config.EventsTopic, event.BookingID.String(), event); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"booking_id": event.BookingID,
				"event":      eventType,
			}).Warn("Failed to publish booking event")
		}
	}()
}

// Wait blocks until in-flight booking events are written
func (s *BookingWorkflowService) Wait() {
	s.wg.Wait()
}

// paymentLookup builds the gateway query for a booking's intent
func paymentLookup(b *models.Booking, providerOrderID string) *PaymentLookup {
	lookup := &PaymentLookup{
		ProviderOrderID: providerOrderID,
		Reference:       b.PaymentReference(),
	}
	if b.GatewayUID != nil {
		lookup.GatewayUID = *b.GatewayUID
	}
	if b.GatewayToken != nil {
		lookup.GatewayToken = *b.GatewayToken
	}
	return lookup
}

// isPaymentPending reports whether err means the charge has not settled yet
func isPaymentPending(err error) bool {
	var payErr *models.PaymentError
	return errors.As(err, &payErr) && payErr.Reason == PaymentReasonGatewayPending
}

// amountsMatch compares money to the cent
func amountsMatch(a, b float64) bool {
	return math.Abs(a-b) < 0.01
}
