package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/travelcraft/booking-backend/internal/config"
	"github.com/travelcraft/booking-backend/internal/models"
)

// RedisCache holds advisory copies of catalog data, per-user itinerary
// sessions and rate-limit counters. Nothing authoritative lives here.
type RedisCache struct {
	client      *redis.Client
	calendarTTL time.Duration
	catalogTTL  time.Duration
	planTTL     time.Duration
	logger      *logrus.Logger
}

// NewRedisCache creates a cache client from config
func NewRedisCache(cfg config.RedisConfig, logger *logrus.Logger) *RedisCache {
	return &RedisCache{
		client:      redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}),
		calendarTTL: cfg.CalendarTTL,
		catalogTTL:  cfg.CatalogTTL,
		planTTL:     cfg.PlanTTL,
		logger:      logger,
	}
}

// Ping checks connectivity
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the client
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// ============================================================================
// AVAILABILITY CALENDAR (advisory preview only)
// ============================================================================

// GetCalendar returns the cached calendar or nil on a miss
func (c *RedisCache) GetCalendar(ctx context.Context, programID string) (*models.AvailabilityRecord, error) {
	var record models.AvailabilityRecord
	found, err := c.getJSON(ctx, calendarKey(programID), &record)
	if err != nil || !found {
		return nil, err
	}
	return &record, nil
}

// SetCalendar caches a calendar
func (c *RedisCache) SetCalendar(ctx context.Context, record *models.AvailabilityRecord) error {
	return c.setJSON(ctx, calendarKey(record.ProgramID), record, c.calendarTTL)
}

// InvalidateCalendar drops a cached calendar after ingestion
func (c *RedisCache) InvalidateCalendar(ctx context.Context, programID string) error {
	return c.client.Del(ctx, calendarKey(programID)).Err()
}

// ============================================================================
// CATALOG
// ============================================================================

// GetStop returns a cached stop or nil on a miss
func (c *RedisCache) GetStop(ctx context.Context, id string) (*models.Stop, error) {
	var stop models.Stop
	found, err := c.getJSON(ctx, stopKey(id), &stop)
	if err != nil || !found {
		return nil, err
	}
	return &stop, nil
}

// SetStop caches a stop
func (c *RedisCache) SetStop(ctx context.Context, stop *models.Stop) error {
	return c.setJSON(ctx, stopKey(stop.ID), stop, c.catalogTTL)
}

// InvalidateStop drops a cached stop after an import
func (c *RedisCache) InvalidateStop(ctx context.Context, id string) error {
	return c.client.Del(ctx, stopKey(id)).Err()
}

// ============================================================================
// ITINERARY SESSIONS
// ============================================================================

// GetPlan returns the user's in-progress plan, or an empty plan if none is stored
func (c *RedisCache) GetPlan(ctx context.Context, userID uuid.UUID) (*models.TravelPlan, error) {
	plan := models.NewTravelPlan()
	if _, err := c.getJSON(ctx, planKey(userID), plan); err != nil {
		return nil, err
	}
	if plan.Stops == nil {
		plan.Stops = []models.Stop{}
	}
	return plan, nil
}

// SavePlan stores the user's plan and refreshes its TTL
func (c *RedisCache) SavePlan(ctx context.Context, userID uuid.UUID, plan *models.TravelPlan) error {
	return c.setJSON(ctx, planKey(userID), plan, c.planTTL)
}

// DeletePlan ends the user's plan session
func (c *RedisCache) DeletePlan(ctx context.Context, userID uuid.UUID) error {
	return c.client.Del(ctx, planKey(userID)).Err()
}

// ============================================================================
// RATE LIMITING
// ============================================================================

// IncrementWindow bumps a fixed-window counter and returns the new count.
// The window starts at the first hit.
func (c *RedisCache) IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, rateKey(key))
		pipe.ExpireNX(ctx, rateKey(key), window)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to increment rate counter: %w", err)
	}
	return incr.Val(), nil
}

// ============================================================================
// HELPERS
// ============================================================================

func (c *RedisCache) getJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		// A corrupt entry is treated as a miss and evicted
		c.logger.WithError(err).WithField("key", key).Warn("Discarding undecodable cache entry")
		c.client.Del(ctx, key)
		return false, nil
	}
	return true, nil
}

func (c *RedisCache) setJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}

func calendarKey(programID string) string {
	return "cache:availability:" + programID
}

func stopKey(id string) string {
	return "cache:stop:" + id
}

func planKey(userID uuid.UUID) string {
	return "plan:" + userID.String()
}

func rateKey(key string) string {
	return "ratelimit:" + key
}
