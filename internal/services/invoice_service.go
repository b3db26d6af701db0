package services

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/travelcraft/booking-backend/internal/config"
	"github.com/travelcraft/booking-backend/internal/models"
	"golang.org/x/crypto/blake2b"
)

// InvoiceStore reads invoices and stores rendered receipts
type InvoiceStore interface {
	GetByNumber(ctx context.Context, number string) (*models.Invoice, error)
	GetByBookingID(ctx context.Context, bookingID uuid.UUID) (*models.Invoice, error)
	ListMissingDocuments(ctx context.Context, limit int) ([]models.Invoice, error)
	SaveDocument(ctx context.Context, doc *models.InvoiceDocument, url string) error
	GetDocument(ctx context.Context, number string) (*models.InvoiceDocument, error)
}

// BookingReader loads bookings for ownership checks
type BookingReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
}

// InvoiceService issues invoices and their receipt documents
type InvoiceService struct {
	store    InvoiceStore
	bookings BookingReader
	config   config.InvoiceConfig
	baseURL  string
	logger   *logrus.Logger
	tmpl     *template.Template
}

const receiptTemplate = `{{.Company}}
RECEIPT {{.Invoice.InvoiceNumber}}
Issued: {{.Issued}}

Billed to: {{.Invoice.CustomerName}}
Email:     {{.Invoice.CustomerEmail}}
Phone:     {{.Invoice.CustomerPhone}}

{{range .Invoice.LineItems}}{{printf "%-40s %3d x %10.2f = %10.2f" .Name .Quantity .UnitPrice .Amount}}
{{end}}
{{printf "%-40s %29.2f" "Subtotal" .Invoice.Subtotal}}
{{printf "%-40s %29.2f" "Discount" .Invoice.DiscountAmount}}
{{printf "%-40s %25.2f %s" "Total paid" .Invoice.TotalAmount .Invoice.Currency}}
{{if .Invoice.PaymentReference}}
Payment reference: {{deref .Invoice.PaymentReference}}{{end}}
Status: {{.Invoice.Status}}
`

// NewInvoiceService creates a new InvoiceService
func NewInvoiceService(store InvoiceStore, bookings BookingReader, cfg config.InvoiceConfig, publicBaseURL string, logger *logrus.Logger) *InvoiceService {
	tmpl := template.Must(template.New("receipt").Funcs(template.FuncMap{
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
	}).Parse(receiptTemplate))

	return &InvoiceService{
		store:    store,
		bookings: bookings,
		config:   cfg,
		baseURL:  strings.TrimRight(publicBaseURL, "/"),
		logger:   logger,
		tmpl:     tmpl,
	}
}

// BuildInvoice itemizes a booking into a pending invoice. Per-person add-ons are
// charged per traveler, per-booking add-ons once, and the discount is clamped so
// the total never goes negative.
func BuildInvoice(prefix string, bc models.BookingContext, now time.Time) *models.Invoice {
	b := bc.Booking
	travelers := b.NumberOfTravelers

	title := bc.Title
	if title == "" {
		title = strings.Join(b.Pricing.Items, ", ")
	}

	items := models.InvoiceLineItems{{
		Name:      title,
		Quantity:  travelers,
		UnitPrice: models.RoundMoney(b.Pricing.UnitPrice),
		Amount:    models.RoundMoney(b.Pricing.UnitPrice * float64(travelers)),
	}}
	subtotal := b.Pricing.UnitPrice * float64(travelers)

	for _, addon := range b.Addons {
		qty := 1
		if addon.PricingMode == models.AddonPerPerson {
			qty = travelers
		}
		charge := addon.ChargeFor(travelers)
		items = append(items, models.InvoiceLineItem{
			Name:      addon.Name,
			Quantity:  qty,
			UnitPrice: models.RoundMoney(addon.Price),
			Amount:    models.RoundMoney(charge),
		})
		subtotal += charge
	}
	subtotal = models.RoundMoney(subtotal)

	discount := models.RoundMoney(b.Pricing.DiscountAmount)
	if discount > subtotal {
		discount = subtotal
	}
	if discount > 0 {
		name := "Discount"
		if b.Pricing.Discount != nil {
			name = fmt.Sprintf("Discount (%s)", b.Pricing.Discount.Code)
		}
		items = append(items, models.InvoiceLineItem{Name: name, Quantity: 1, UnitPrice: -discount, Amount: -discount})
	}

	currency := b.Currency
	if currency == "" {
		currency = b.Pricing.Currency
	}

	return &models.Invoice{
		ID:             uuid.New(),
		InvoiceNumber:  models.InvoiceNumberFor(prefix, b.ID),
		BookingID:      b.ID,
		CustomerName:   b.TravelerName,
		CustomerEmail:  b.TravelerEmail,
		CustomerPhone:  b.TravelerPhone,
		LineItems:      items,
		Subtotal:       subtotal,
		DiscountAmount: discount,
		TotalAmount:    models.RoundMoney(subtotal - discount),
		Currency:       currency,
		Status:         models.InvoiceStatusPending,
		CreatedAt:      now,
	}
}

// IssuePaid builds the invoice and marks it paid. A verified payment is required;
// a client claim is never enough.
func (s *InvoiceService) IssuePaid(bc models.BookingContext, payment *VerifiedPayment) (*models.Invoice, error) {
	if payment == nil {
		return nil, fmt.Errorf("cannot mark invoice paid without a verified payment")
	}
	inv := BuildInvoice(s.config.NumberPrefix, bc, time.Now())

	reference := payment.TransactionID
	if reference == "" {
		reference = payment.ProviderOrderID
	}
	paidAt := payment.VerifiedAt
	inv.Status = models.InvoiceStatusPaid
	inv.PaymentReference = &reference
	inv.PaidAt = &paidAt
	return inv, nil
}

// RenderDocument renders the receipt and stores it with its checksum.
// The invoice itself is never modified apart from its document link.
func (s *InvoiceService) RenderDocument(ctx context.Context, inv *models.Invoice) (*models.InvoiceDocument, error) {
	var buf bytes.Buffer
	err := s.tmpl.Execute(&buf, map[string]interface{}{
		"Company": s.config.CompanyName,
		"Issued":  inv.CreatedAt.UTC().Format(time.RFC1123),
		"Invoice": inv,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render receipt: %w", err)
	}

	sum := blake2b.Sum256(buf.Bytes())
	doc := &models.InvoiceDocument{
		InvoiceNumber: inv.InvoiceNumber,
		ContentType:   "text/plain; charset=utf-8",
		Body:          buf.String(),
		Checksum:      hex.EncodeToString(sum[:]),
		CreatedAt:     time.Now(),
	}

	url := s.DocumentURL(inv.InvoiceNumber)
	if err := s.store.SaveDocument(ctx, doc, url); err != nil {
		return nil, &models.PersistenceError{Op: "store receipt " + inv.InvoiceNumber, Err: err}
	}

	inv.DocumentURL = &url
	inv.DocumentChecksum = &doc.Checksum

	s.logger.WithFields(logrus.Fields{
		"invoice_number": inv.InvoiceNumber,
		"checksum":       doc.Checksum,
	}).Info("Receipt rendered")

	return doc, nil
}

// DocumentURL is the public link to an invoice's receipt
func (s *InvoiceService) DocumentURL(number string) string {
	return fmt.Sprintf("%s/api/v1/invoices/%s/document", s.baseURL, number)
}

// RetryMissingDocuments renders receipts that failed after confirmation
func (s *InvoiceService) RetryMissingDocuments(ctx context.Context, limit int) (int, error) {
	invoices, err := s.store.ListMissingDocuments(ctx, limit)
	if err != nil {
		return 0, err
	}

	rendered := 0
	for i := range invoices {
		if _, err := s.RenderDocument(ctx, &invoices[i]); err != nil {
			s.logger.WithError(err).WithField("invoice_number", invoices[i].InvoiceNumber).Warn("Receipt retry failed")
			continue
		}
		rendered++
	}
	return rendered, nil
}

// GetForUser returns an invoice the caller may see
func (s *InvoiceService) GetForUser(ctx context.Context, number string, userID uuid.UUID, isAdmin bool) (*models.Invoice, error) {
	inv, err := s.store.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if err := s.checkOwner(ctx, inv, userID, isAdmin); err != nil {
		return nil, err
	}
	return inv, nil
}

// DocumentForUser returns the rendered receipt the caller may see
func (s *InvoiceService) DocumentForUser(ctx context.Context, number string, userID uuid.UUID, isAdmin bool) (*models.InvoiceDocument, error) {
	if _, err := s.GetForUser(ctx, number, userID, isAdmin); err != nil {
		return nil, err
	}
	return s.store.GetDocument(ctx, number)
}

func (s *InvoiceService) checkOwner(ctx context.Context, inv *models.Invoice, userID uuid.UUID, isAdmin bool) error {
	if isAdmin {
		return nil
	}
	booking, err := s.bookings.GetByID(ctx, inv.BookingID)
	if err != nil {
		return err
	}
	if booking.UserID != userID {
		return models.ErrForbidden
	}
	return nil
}
