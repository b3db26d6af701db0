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

// InvoiceReader returns invoices to their owner or an admin
type InvoiceReader interface {
	GetForUser(ctx context.Context, number string, userID uuid.UUID, isAdmin bool) (*models.Invoice, error)
	DocumentForUser(ctx context.Context, number string, userID uuid.UUID, isAdmin bool) (*models.InvoiceDocument, error)
}

// InvoiceHandler serves issued invoices and their receipts
type InvoiceHandler struct {
	invoices InvoiceReader
	logger   *logrus.Logger
}

// NewInvoiceHandler creates a new InvoiceHandler
func NewInvoiceHandler(invoices InvoiceReader, logger *logrus.Logger) *InvoiceHandler {
	return &InvoiceHandler{invoices: invoices, logger: logger}
}

// GetInvoice handles GET /api/v1/invoices/:number
func (h *InvoiceHandler) GetInvoice(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)

	invoice, err := h.invoices.GetForUser(c.Request.Context(), c.Param("number"), userCtx.UserID, userCtx.IsAdmin())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, invoice)
}

// GetDocument handles GET /api/v1/invoices/:number/document
func (h *InvoiceHandler) GetDocument(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)

	doc, err := h.invoices.DocumentForUser(c.Request.Context(), c.Param("number"), userCtx.UserID, userCtx.IsAdmin())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.Header("Content-Disposition", `inline; filename="`+doc.InvoiceNumber+`.txt"`)
	c.Header("ETag", `"`+doc.Checksum+`"`)
	c.Data(http.StatusOK, doc.ContentType, []byte(doc.Body))
}
