package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"
	"github.com/travelcraft/booking-backend/internal/config"
	"github.com/travelcraft/booking-backend/migrations"
)

// migrate applies the embedded schema.
//
//	go run ./cmd/migrate            # up
//	go run ./cmd/migrate -cmd down  # roll back one
//	go run ./cmd/migrate -cmd status
func main() {
	command := flag.String("cmd", "up", "up, down or status")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		logger.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations.FS)
	if err != nil {
		logger.Fatalf("Failed to create migration provider: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	switch *command {
	case "up":
		results, err := provider.Up(ctx)
		for _, r := range results {
			logger.WithFields(logrus.Fields{
				"version":  r.Source.Version,
				"file":     r.Source.Path,
				"duration": r.Duration.String(),
			}).Info("Applied migration")
		}
		if err != nil {
			logger.Fatalf("Migration failed: %v", err)
		}
		if len(results) == 0 {
			logger.Info("Schema is up to date")
		}

	case "down":
		result, err := provider.Down(ctx)
		if err != nil {
			logger.Fatalf("Rollback failed: %v", err)
		}
		if result != nil {
			logger.WithField("version", result.Source.Version).Info("Rolled back migration")
		}

	case "status":
		statuses, err := provider.Status(ctx)
		if err != nil {
			logger.Fatalf("Failed to read status: %v", err)
		}
		for _, s := range statuses {
			logger.WithFields(logrus.Fields{
				"version": s.Source.Version,
				"file":    s.Source.Path,
				"state":   s.State,
			}).Info("Migration")
		}

	default:
		logger.Errorf("Unknown command %q", *command)
		os.Exit(2)
	}
}
