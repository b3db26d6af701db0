package services

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/travelcraft/booking-backend/internal/models"
	"gopkg.in/yaml.v3"
)

// CatalogFeed is the YAML document operations maintain for programs,
// add-ons and published availability.
//
//	stops:
//	  - id: galle-fort
//	    title: Galle Fort Walk
//	    price: 200
//	    location: Galle
//	services:
//	  - id: guide
//	    name: Private guide
//	    price: 25
//	    pricing_mode: per_person
//	availability:
//	  galle-fort:
//	    - {date: "2025-03-01", available_spots: 12, status: available}
type CatalogFeed struct {
	Stops        []FeedStop                               `yaml:"stops"`
	Services     []FeedAddon                              `yaml:"services"`
	Availability map[string][]models.AvailabilityDayInput `yaml:"availability"`
}

// FeedStop is one program entry of the feed
type FeedStop struct {
	ID          string  `yaml:"id"`
	Title       string  `yaml:"title"`
	Price       float64 `yaml:"price"`
	Location    string  `yaml:"location"`
	Description string  `yaml:"description"`
	Inactive    bool    `yaml:"inactive"`
}

// FeedAddon is one add-on entry of the feed
type FeedAddon struct {
	ID          string                  `yaml:"id"`
	Name        string                  `yaml:"name"`
	Price       float64                 `yaml:"price"`
	PricingMode models.AddonPricingMode `yaml:"pricing_mode"`
}

// ParseCatalogFeed decodes a feed, rejecting unknown keys
func ParseCatalogFeed(r io.Reader) (*CatalogFeed, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var feed CatalogFeed
	if err := dec.Decode(&feed); err != nil {
		if err == io.EOF {
			return &feed, nil
		}
		return nil, fmt.Errorf("failed to parse catalog feed: %w", err)
	}
	return &feed, nil
}

// CatalogImporter writes programs and add-ons
type CatalogImporter interface {
	ImportStop(ctx context.Context, stop *models.Stop) error
	ImportAddon(ctx context.Context, addon *models.ServiceAddon) error
}

// CalendarIngester replaces published calendar days
type CalendarIngester interface {
	Ingest(ctx context.Context, programID string, inputs []models.AvailabilityDayInput) (int, error)
}

// FeedResult counts what an import wrote
type FeedResult struct {
	Stops    int
	Services int
	Days     int
}

// ApplyCatalogFeed imports stops first so availability always refers to a known program.
// The first failing entry aborts the import; entries before it stay written.
func ApplyCatalogFeed(ctx context.Context, feed *CatalogFeed, catalog CatalogImporter, calendar CalendarIngester, logger *logrus.Logger) (*FeedResult, error) {
	result := &FeedResult{}

	for _, fs := range feed.Stops {
		stop := &models.Stop{
			ID:       fs.ID,
			Title:    fs.Title,
			Price:    fs.Price,
			IsActive: !fs.Inactive,
		}
		if fs.Location != "" {
			location := fs.Location
			stop.Location = &location
		}
		if fs.Description != "" {
			description := fs.Description
			stop.Description = &description
		}
		if err := catalog.ImportStop(ctx, stop); err != nil {
			return result, fmt.Errorf("stop %q: %w", fs.ID, err)
		}
		result.Stops++
	}

	for _, fa := range feed.Services {
		addon := &models.ServiceAddon{
			ID:          fa.ID,
			Name:        fa.Name,
			Price:       fa.Price,
			PricingMode: fa.PricingMode,
		}
		if err := catalog.ImportAddon(ctx, addon); err != nil {
			return result, fmt.Errorf("service %q: %w", fa.ID, err)
		}
		result.Services++
	}

	for programID, days := range feed.Availability {
		written, err := calendar.Ingest(ctx, programID, days)
		if err != nil {
			return result, fmt.Errorf("availability for %q: %w", programID, err)
		}
		result.Days += written
	}

	logger.WithFields(logrus.Fields{
		"stops":    result.Stops,
		"services": result.Services,
		"days":     result.Days,
	}).Info("Catalog feed applied")

	return result, nil
}
