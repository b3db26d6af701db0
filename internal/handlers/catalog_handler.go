package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/travelcraft/booking-backend/internal/models"
)

// defaultCalendarWindow is how far ahead the calendar looks when no range is given
const defaultCalendarWindow = 60 * 24 * time.Hour

// CatalogReader is the read side of the program catalog
type CatalogReader interface {
	GetStop(ctx context.Context, id string) (*models.Stop, error)
	ListStops(ctx context.Context, filter models.StopFilter) ([]models.Stop, error)
	ListAddons(ctx context.Context) ([]models.ServiceAddon, error)
}

// CalendarReader returns a program's availability calendar
type CalendarReader interface {
	Calendar(ctx context.Context, programID string, from, to time.Time) ([]models.AvailabilityDay, error)
	Preview(ctx context.Context, programID string, date time.Time, travelerCount int) error
}

// CatalogHandler serves programs, add-ons and availability calendars
type CatalogHandler struct {
	catalog      CatalogReader
	availability CalendarReader
	logger       *logrus.Logger
}

// NewCatalogHandler creates a new CatalogHandler
func NewCatalogHandler(catalog CatalogReader, availability CalendarReader, logger *logrus.Logger) *CatalogHandler {
	return &CatalogHandler{
		catalog:      catalog,
		availability: availability,
		logger:       logger,
	}
}

// ListStops handles GET /api/v1/catalog/stops?location=&max_price=&limit=&offset=
func (h *CatalogHandler) ListStops(c *gin.Context) {
	filter := models.StopFilter{}
	if location := c.Query("location"); location != "" {
		filter.Location = &location
	}
	if raw := c.Query("max_price"); raw != "" {
		maxPrice, err := strconv.ParseFloat(raw, 64)
		if err != nil || maxPrice < 0 {
			respondError(c, h.logger, &models.ValidationError{Field: "max_price", Message: "must be a non-negative number"})
			return
		}
		filter.MaxPrice = &maxPrice
	}
	filter.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	filter.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))

	stops, err := h.catalog.ListStops(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"stops": stops,
		"count": len(stops),
	})
}

// GetStop handles GET /api/v1/catalog/stops/:id
func (h *CatalogHandler) GetStop(c *gin.Context) {
	stop, err := h.catalog.GetStop(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, stop)
}

// ListAddons handles GET /api/v1/catalog/services
func (h *CatalogHandler) ListAddons(c *gin.Context) {
	addons, err := h.catalog.ListAddons(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"services": addons})
}

// GetAvailability handles GET /api/v1/catalog/stops/:id/availability?from=&to=
// The calendar is sparse: only days the scheduling feed published are returned.
func (h *CatalogHandler) GetAvailability(c *gin.Context) {
	from := time.Now().UTC().Truncate(24 * time.Hour)
	if raw := c.Query("from"); raw != "" {
		parsed, err := time.Parse(models.DateLayout, raw)
		if err != nil {
			respondError(c, h.logger, &models.ValidationError{Field: "from", Message: "must be formatted YYYY-MM-DD"})
			return
		}
		from = parsed
	}

	to := from.Add(defaultCalendarWindow)
	if raw := c.Query("to"); raw != "" {
		parsed, err := time.Parse(models.DateLayout, raw)
		if err != nil {
			respondError(c, h.logger, &models.ValidationError{Field: "to", Message: "must be formatted YYYY-MM-DD"})
			return
		}
		to = parsed
	}

	programID := c.Param("id")
	days, err := h.availability.Calendar(c.Request.Context(), programID, from, to)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if days == nil {
		days = []models.AvailabilityDay{}
	}

	c.JSON(http.StatusOK, gin.H{
		"program_id": programID,
		"from":       from.Format(models.DateLayout),
		"to":         to.Format(models.DateLayout),
		"days":       days,
	})
}

// CheckAvailability handles GET /api/v1/catalog/stops/:id/availability/check?date=&travelers=
// Answers from the cached calendar; the booking itself re-checks the live record.
func (h *CatalogHandler) CheckAvailability(c *gin.Context) {
	date, err := time.Parse(models.DateLayout, c.Query("date"))
	if err != nil {
		respondError(c, h.logger, &models.ValidationError{Field: "date", Message: "must be formatted YYYY-MM-DD"})
		return
	}
	travelers, err := strconv.Atoi(c.DefaultQuery("travelers", "1"))
	if err != nil || travelers < 1 {
		respondError(c, h.logger, &models.ValidationError{Field: "travelers", Message: "must be a positive integer"})
		return
	}

	if err := h.availability.Preview(c.Request.Context(), c.Param("id"), date, travelers); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"available": true,
		"date":      date.Format(models.DateLayout),
		"travelers": travelers,
	})
}
