package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/travelcraft/booking-backend/internal/cache"
	"github.com/travelcraft/booking-backend/internal/config"
	"github.com/travelcraft/booking-backend/internal/database"
	"github.com/travelcraft/booking-backend/internal/services"
)

// import-catalog loads a YAML catalog feed (programs, add-ons, availability)
// into the database and evicts the affected cache entries.
//
//	go run ./cmd/import-catalog -file catalog.yaml
func main() {
	file := flag.String("file", "catalog.yaml", "path to the YAML catalog feed")
	timeout := flag.Duration("timeout", 2*time.Minute, "overall import timeout")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	f, err := os.Open(*file)
	if err != nil {
		logger.Fatalf("Failed to open feed: %v", err)
	}
	defer f.Close()

	feed, err := services.ParseCatalogFeed(f)
	if err != nil {
		logger.Fatalf("Invalid feed: %v", err)
	}

	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	redisCache := cache.NewRedisCache(cfg.Redis, logger)
	defer redisCache.Close()

	catalogService := services.NewCatalogService(database.NewCatalogRepository(db), redisCache, logger)
	availabilityService := services.NewAvailabilityService(database.NewAvailabilityRepository(db), redisCache, logger)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	result, err := services.ApplyCatalogFeed(ctx, feed, catalogService, availabilityService, logger)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"stops":    result.Stops,
			"services": result.Services,
			"days":     result.Days,
		}).Fatalf("Import aborted: %v", err)
	}

	logger.WithField("file", *file).Info("✅ Catalog import complete")
}
