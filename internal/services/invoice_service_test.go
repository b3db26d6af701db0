package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travelcraft/booking-backend/internal/config"
	"github.com/travelcraft/booking-backend/internal/kafka"
	"github.com/travelcraft/booking-backend/internal/models"
)

func sampleBooking() *models.Booking {
	id := uuid.MustParse("3f2b8c1a-9d4e-4b7a-8c21-5e6f7a8b9c0d")
	return &models.Booking{
		ID:                id,
		UserID:            uuid.New(),
		Status:            models.BookingStatusVerifying,
		TravelerName:      "Nimal Perera",
		TravelerEmail:     "nimal@example.com",
		TravelerPhone:     "+94771234567",
		NumberOfTravelers: 2,
		TravelDate:        day("2025-03-01"),
		Addons: models.ServiceAddons{
			{ID: "guide", Name: "Private guide", Price: 25, PricingMode: models.AddonPerPerson},
			{ID: "transfer", Name: "Airport transfer", Price: 40, PricingMode: models.AddonPerBooking},
		},
		Pricing: models.PricingSnapshot{
			Items:          []string{"Sigiriya Rock", "Kandy Temple"},
			UnitPrice:      250,
			Travelers:      2,
			BaseAmount:     500,
			AddonsAmount:   90,
			Subtotal:       590,
			DiscountAmount: 59,
			Total:          531,
			Currency:       "USD",
			Discount:       &models.BookingDiscountInfo{Code: "SAVE10", DiscountType: models.DiscountPercentage, DiscountValue: 10, DiscountAmount: 59},
		},
		FinalAmount: 531,
		Currency:    "USD",
	}
}

func TestBuildInvoice(t *testing.T) {
	b := sampleBooking()
	inv := BuildInvoice("INV", models.BookingContext{Booking: b, Title: "Hill country"}, time.Now())

	assert.Equal(t, "INV-3F2B8C1A9D4E", inv.InvoiceNumber)
	assert.Equal(t, models.InvoiceStatusPending, inv.Status)
	assert.Equal(t, 590.0, inv.Subtotal)
	assert.Equal(t, 59.0, inv.DiscountAmount)
	assert.Equal(t, 531.0, inv.TotalAmount)
	assert.Equal(t, b.FinalAmount, inv.TotalAmount)

	require.Len(t, inv.LineItems, 4)
	assert.Equal(t, models.InvoiceLineItem{Name: "Hill country", Quantity: 2, UnitPrice: 250, Amount: 500}, inv.LineItems[0])
	assert.Equal(t, 2, inv.LineItems[1].Quantity)
	assert.Equal(t, 50.0, inv.LineItems[1].Amount)
	assert.Equal(t, 1, inv.LineItems[2].Quantity)
	assert.Equal(t, 40.0, inv.LineItems[2].Amount)
	assert.Equal(t, -59.0, inv.LineItems[3].Amount)
	assert.Contains(t, inv.LineItems[3].Name, "SAVE10")

	t.Run("Same booking yields the same number", func(t *testing.T) {
		again := BuildInvoice("INV", models.BookingContext{Booking: b}, time.Now())
		assert.Equal(t, inv.InvoiceNumber, again.InvoiceNumber)
		assert.Equal(t, "Sigiriya Rock, Kandy Temple", again.LineItems[0].Name)
	})

	t.Run("Discount never drives the total negative", func(t *testing.T) {
		free := sampleBooking()
		free.Addons = nil
		free.Pricing.DiscountAmount = 9999
		inv := BuildInvoice("INV", models.BookingContext{Booking: free}, time.Now())
		assert.Equal(t, 500.0, inv.DiscountAmount)
		assert.Equal(t, 0.0, inv.TotalAmount)
	})
}

type fakeInvoiceStore struct {
	docs     map[string]*models.InvoiceDocument
	urls     map[string]string
	missing  []models.Invoice
	invoices map[string]*models.Invoice
	failSave bool
}

func newFakeInvoiceStore() *fakeInvoiceStore {
	return &fakeInvoiceStore{
		docs:     map[string]*models.InvoiceDocument{},
		urls:     map[string]string{},
		invoices: map[string]*models.Invoice{},
	}
}

func (f *fakeInvoiceStore) GetByNumber(ctx context.Context, number string) (*models.Invoice, error) {
	if inv, ok := f.invoices[number]; ok {
		return inv, nil
	}
	return nil, models.ErrNotFound
}

func (f *fakeInvoiceStore) GetByBookingID(ctx context.Context, bookingID uuid.UUID) (*models.Invoice, error) {
	for _, inv := range f.invoices {
		if inv.BookingID == bookingID {
			return inv, nil
		}
	}
	return nil, models.ErrNotFound
}

func (f *fakeInvoiceStore) ListMissingDocuments(ctx context.Context, limit int) ([]models.Invoice, error) {
	return f.missing, nil
}

func (f *fakeInvoiceStore) SaveDocument(ctx context.Context, doc *models.InvoiceDocument, url string) error {
	if f.failSave {
		return errors.New("connection reset")
	}
	f.docs[doc.InvoiceNumber] = doc
	f.urls[doc.InvoiceNumber] = url
	return nil
}

func (f *fakeInvoiceStore) GetDocument(ctx context.Context, number string) (*models.InvoiceDocument, error) {
	if doc, ok := f.docs[number]; ok {
		return doc, nil
	}
	return nil, models.ErrNotFound
}

type fakeBookingReader map[uuid.UUID]*models.Booking

func (f fakeBookingReader) GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	if b, ok := f[id]; ok {
		return b, nil
	}
	return nil, models.ErrNotFound
}

func newInvoiceService(store *fakeInvoiceStore, bookings fakeBookingReader) *InvoiceService {
	return NewInvoiceService(store, bookings,
		config.InvoiceConfig{NumberPrefix: "INV", CompanyName: "TravelCraft Tours"},
		"https://api.example.com/", quietLogger())
}

func TestInvoiceIssuePaid(t *testing.T) {
	svc := newInvoiceService(newFakeInvoiceStore(), nil)
	bc := models.BookingContext{Booking: sampleBooking(), Title: "Hill country"}

	_, err := svc.IssuePaid(bc, nil)
	assert.Error(t, err)

	verifiedAt := time.Date(2025, 2, 20, 10, 0, 0, 0, time.UTC)
	inv, err := svc.IssuePaid(bc, &VerifiedPayment{ProviderOrderID: "UID-1", TransactionID: "TXN-9", VerifiedAt: verifiedAt})
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusPaid, inv.Status)
	require.NotNil(t, inv.PaymentReference)
	assert.Equal(t, "TXN-9", *inv.PaymentReference)
	assert.Equal(t, verifiedAt, *inv.PaidAt)
}

func TestInvoiceRenderDocument(t *testing.T) {
	store := newFakeInvoiceStore()
	svc := newInvoiceService(store, nil)
	inv := BuildInvoice("INV", models.BookingContext{Booking: sampleBooking(), Title: "Hill country"}, time.Now())

	doc, err := svc.RenderDocument(context.Background(), inv)
	require.NoError(t, err)
	assert.Len(t, doc.Checksum, 64)
	assert.Contains(t, doc.Body, "TravelCraft Tours")
	assert.Contains(t, doc.Body, "INV-3F2B8C1A9D4E")
	assert.Contains(t, doc.Body, "Hill country")
	assert.Equal(t, "https://api.example.com/api/v1/invoices/INV-3F2B8C1A9D4E/document", store.urls[inv.InvoiceNumber])
	require.NotNil(t, inv.DocumentURL)

	t.Run("Rendering is deterministic for the same invoice", func(t *testing.T) {
		again, err := svc.RenderDocument(context.Background(), inv)
		require.NoError(t, err)
		assert.Equal(t, doc.Checksum, again.Checksum)
	})

	t.Run("Storage failure is a persistence error", func(t *testing.T) {
		store.failSave = true
		defer func() { store.failSave = false }()
		_, err := svc.RenderDocument(context.Background(), inv)
		var pErr *models.PersistenceError
		assert.True(t, errors.As(err, &pErr))
	})
}

func TestInvoiceRetryMissingDocuments(t *testing.T) {
	store := newFakeInvoiceStore()
	svc := newInvoiceService(store, nil)
	a := BuildInvoice("INV", models.BookingContext{Booking: sampleBooking()}, time.Now())
	other := sampleBooking()
	other.ID = uuid.New()
	b := BuildInvoice("INV", models.BookingContext{Booking: other}, time.Now())
	store.missing = []models.Invoice{*a, *b}

	n, err := svc.RetryMissingDocuments(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, store.docs, 2)
}

func TestInvoiceGetForUser(t *testing.T) {
	b := sampleBooking()
	store := newFakeInvoiceStore()
	inv := BuildInvoice("INV", models.BookingContext{Booking: b}, time.Now())
	store.invoices[inv.InvoiceNumber] = inv
	svc := newInvoiceService(store, fakeBookingReader{b.ID: b})
	ctx := context.Background()

	got, err := svc.GetForUser(ctx, inv.InvoiceNumber, b.UserID, false)
	require.NoError(t, err)
	assert.Equal(t, inv.ID, got.ID)

	_, err = svc.GetForUser(ctx, inv.InvoiceNumber, uuid.New(), false)
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, err = svc.GetForUser(ctx, inv.InvoiceNumber, uuid.New(), true)
	assert.NoError(t, err)

	_, err = svc.GetForUser(ctx, "INV-000000000000", b.UserID, false)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

type recordingDispatcher struct {
	messages chan kafka.NotificationMessage
	err      error
}

func (r *recordingDispatcher) Dispatch(ctx context.Context, msg kafka.NotificationMessage) error {
	r.messages <- msg
	return r.err
}

func TestBuildBookingMessage(t *testing.T) {
	b := sampleBooking()
	number := "INV-3F2B8C1A9D4E"
	b.InvoiceNumber = &number

	msg := BuildBookingMessage(b, "+94 77 000 1111", "https://wa.me/")

	assert.Equal(t, b.ID, msg.BookingID)
	assert.Contains(t, msg.Text, "Sigiriya Rock -> Kandy Temple")
	assert.Contains(t, msg.Text, "Travelers: 2")
	assert.Contains(t, msg.Text, "Date: 2025-03-01")
	assert.Contains(t, msg.Text, "Total: 531.00 USD")
	assert.Contains(t, msg.Text, "+94771234567")
	assert.Contains(t, msg.Text, number)

	assert.True(t, strings.HasPrefix(msg.DeepLink, "https://wa.me/94770001111?text="))
	assert.NotContains(t, msg.DeepLink, " ")
	assert.NotContains(t, msg.DeepLink, "\n")
	assert.Contains(t, msg.DeepLink, "New%20booking%20confirmed")
}

func TestNotifyAsync(t *testing.T) {
	dispatcher := &recordingDispatcher{messages: make(chan kafka.NotificationMessage, 1), err: errors.New("broker down")}
	svc := NewNotificationService(dispatcher, config.NotificationConfig{
		OpsWhatsAppNumber: "94770001111",
		DeepLinkBase:      "https://wa.me",
		DispatchTimeout:   time.Second,
	}, quietLogger())

	b := sampleBooking()
	svc.NotifyAsync(b)
	svc.Wait()

	msg := <-dispatcher.messages
	assert.Equal(t, b.ID, msg.BookingID)
	assert.Equal(t, "94770001111", msg.Destination)
}
