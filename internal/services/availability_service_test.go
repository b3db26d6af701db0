package services

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travelcraft/booking-backend/internal/models"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func day(s string) time.Time {
	t, err := time.Parse(models.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func rejectionReason(t *testing.T, err error) models.AvailabilityReason {
	t.Helper()
	var availErr *models.AvailabilityError
	require.True(t, errors.As(err, &availErr), "expected *AvailabilityError, got %v", err)
	return availErr.Reason
}

func TestCheckAvailability(t *testing.T) {
	today := day("2025-02-15")

	record := models.NewAvailabilityRecord("sigiriya")
	record.Set(day("2025-03-01"), models.DayAvailability{AvailableSpots: 2, Status: models.DayStatusLimited})
	record.Set(day("2025-03-02"), models.DayAvailability{AvailableSpots: 10, Status: models.DayStatusSoldOut})
	record.Set(day("2025-03-03"), models.DayAvailability{AvailableSpots: 10, Status: models.DayStatusCancelled})
	record.Set(day("2025-03-04"), models.DayAvailability{AvailableSpots: 12, Status: models.DayStatusAvailable})

	t.Run("Empty calendar admits any future date", func(t *testing.T) {
		empty := models.NewAvailabilityRecord("unscheduled")
		assert.NoError(t, CheckAvailability(empty, day("2025-03-01"), 5, today))
		assert.NoError(t, CheckAvailability(empty, day("2026-12-31"), 20, today))
	})

	t.Run("Nil record behaves like an empty calendar", func(t *testing.T) {
		assert.NoError(t, CheckAvailability(nil, day("2025-04-01"), 1, today))
	})

	t.Run("Limited day rejects a larger party", func(t *testing.T) {
		err := CheckAvailability(record, day("2025-03-01"), 3, today)
		assert.Equal(t, models.AvailabilityInsufficientCapacity, rejectionReason(t, err))

		var availErr *models.AvailabilityError
		require.True(t, errors.As(err, &availErr))
		assert.Equal(t, 3, availErr.Requested)
		assert.Equal(t, 2, availErr.Available)
		assert.Equal(t, "2025-03-01", availErr.Date)
	})

	t.Run("Limited day admits a party that fits", func(t *testing.T) {
		assert.NoError(t, CheckAvailability(record, day("2025-03-01"), 2, today))
	})

	tests := []struct {
		name   string
		date   string
		count  int
		reason models.AvailabilityReason
	}{
		{"Past date", "2025-02-14", 1, models.AvailabilityPastDate},
		{"Long past date", "2024-01-01", 1, models.AvailabilityPastDate},
		{"Date absent from a populated calendar", "2025-03-10", 1, models.AvailabilityDateNotOffered},
		{"Sold out", "2025-03-02", 1, models.AvailabilitySoldOut},
		{"Cancelled", "2025-03-03", 1, models.AvailabilityCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckAvailability(record, day(tt.date), tt.count, today)
			assert.Equal(t, tt.reason, rejectionReason(t, err))
		})
	}

	t.Run("Past date rejected even without scheduling data", func(t *testing.T) {
		err := CheckAvailability(models.NewAvailabilityRecord("x"), day("2025-02-01"), 1, today)
		assert.Equal(t, models.AvailabilityPastDate, rejectionReason(t, err))
	})

	t.Run("Today is bookable regardless of clock time", func(t *testing.T) {
		lateToday := today.Add(23 * time.Hour)
		assert.NoError(t, CheckAvailability(nil, today, 1, lateToday))
	})
}

type fakeAvailabilityStore struct {
	records  map[string]*models.AvailabilityRecord
	upserted []*models.AvailabilityDay
	reads    int
}

func (f *fakeAvailabilityStore) GetRecord(ctx context.Context, programID string) (*models.AvailabilityRecord, error) {
	f.reads++
	if r, ok := f.records[programID]; ok {
		return r, nil
	}
	return models.NewAvailabilityRecord(programID), nil
}

func (f *fakeAvailabilityStore) ListRange(ctx context.Context, programID string, from, to time.Time) ([]models.AvailabilityDay, error) {
	var days []models.AvailabilityDay
	for key, d := range f.records[programID].Days {
		date := day(key)
		if date.Before(from) || date.After(to) {
			continue
		}
		days = append(days, models.AvailabilityDay{ProgramID: programID, Date: date, AvailableSpots: d.AvailableSpots, Status: d.Status})
	}
	return days, nil
}

func (f *fakeAvailabilityStore) UpsertDays(ctx context.Context, programID string, days []*models.AvailabilityDay) error {
	f.upserted = append(f.upserted, days...)
	return nil
}

type fakeCalendarCache struct {
	records     map[string]*models.AvailabilityRecord
	invalidated []string
}

func (f *fakeCalendarCache) GetCalendar(ctx context.Context, programID string) (*models.AvailabilityRecord, error) {
	return f.records[programID], nil
}

func (f *fakeCalendarCache) SetCalendar(ctx context.Context, record *models.AvailabilityRecord) error {
	f.records[record.ProgramID] = record
	return nil
}

func (f *fakeCalendarCache) InvalidateCalendar(ctx context.Context, programID string) error {
	f.invalidated = append(f.invalidated, programID)
	delete(f.records, programID)
	return nil
}

func newAvailabilityFixture() (*AvailabilityService, *fakeAvailabilityStore, *fakeCalendarCache) {
	record := models.NewAvailabilityRecord("ella")
	record.Set(day("2025-03-01"), models.DayAvailability{AvailableSpots: 4, Status: models.DayStatusAvailable})
	record.Set(day("2025-03-02"), models.DayAvailability{AvailableSpots: 1, Status: models.DayStatusLimited})

	store := &fakeAvailabilityStore{records: map[string]*models.AvailabilityRecord{"ella": record}}
	cache := &fakeCalendarCache{records: map[string]*models.AvailabilityRecord{}}
	svc := NewAvailabilityService(store, cache, quietLogger())
	svc.now = func() time.Time { return day("2025-02-01") }
	return svc, store, cache
}

func TestAvailabilityServicePreviewUsesCache(t *testing.T) {
	svc, store, cache := newAvailabilityFixture()
	ctx := context.Background()

	require.NoError(t, svc.Preview(ctx, "ella", day("2025-03-01"), 2))
	require.NoError(t, svc.Preview(ctx, "ella", day("2025-03-01"), 2))

	assert.Equal(t, 1, store.reads)
	assert.Contains(t, cache.records, "ella")
}

func TestAvailabilityServiceCheckIsAuthoritative(t *testing.T) {
	svc, store, cache := newAvailabilityFixture()
	ctx := context.Background()

	// A stale cached calendar must not admit a booking
	stale := models.NewAvailabilityRecord("ella")
	stale.Set(day("2025-03-02"), models.DayAvailability{AvailableSpots: 50, Status: models.DayStatusAvailable})
	cache.records["ella"] = stale

	err := svc.Check(ctx, "ella", day("2025-03-02"), 2)
	assert.Equal(t, models.AvailabilityInsufficientCapacity, rejectionReason(t, err))
	assert.Equal(t, 1, store.reads)
}

func TestAvailabilityServiceCheckItinerary(t *testing.T) {
	svc, _, _ := newAvailabilityFixture()
	ctx := context.Background()
	stops := []models.Stop{{ID: "ella"}, {ID: "ella"}}

	t.Run("Each stop is checked on its own day", func(t *testing.T) {
		err := svc.CheckItinerary(ctx, stops, day("2025-03-01"), 2)
		// Day two only has one spot
		assert.Equal(t, models.AvailabilityInsufficientCapacity, rejectionReason(t, err))
	})

	t.Run("Party that fits every day is admitted", func(t *testing.T) {
		assert.NoError(t, svc.CheckItinerary(ctx, stops, day("2025-03-01"), 1))
	})
}

func TestAvailabilityServiceIngest(t *testing.T) {
	svc, store, cache := newAvailabilityFixture()
	ctx := context.Background()
	cache.records["ella"] = models.NewAvailabilityRecord("ella")

	n, err := svc.Ingest(ctx, "ella", []models.AvailabilityDayInput{
		{Date: "2025-04-01", AvailableSpots: 6, Status: models.DayStatusAvailable},
		{Date: "2025-04-02", AvailableSpots: 0, Status: models.DayStatusSoldOut},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, store.upserted, 2)
	assert.Equal(t, []string{"ella"}, cache.invalidated)

	t.Run("Invalid day rejects the whole batch", func(t *testing.T) {
		before := len(store.upserted)
		_, err := svc.Ingest(ctx, "ella", []models.AvailabilityDayInput{
			{Date: "2025-04-03", AvailableSpots: 1, Status: models.DayStatusAvailable},
			{Date: "04/04/2025", AvailableSpots: 1, Status: models.DayStatusAvailable},
		})
		var vErr *models.ValidationError
		assert.True(t, errors.As(err, &vErr))
		assert.Len(t, store.upserted, before)
	})
}

func TestAvailabilityServiceCalendar(t *testing.T) {
	svc, _, _ := newAvailabilityFixture()

	days, err := svc.Calendar(context.Background(), "ella", day("2025-03-02"), day("2025-03-31"))
	require.NoError(t, err)
	require.Len(t, days, 1)
	assert.Equal(t, "2025-03-02", days[0].DateString)

	_, err = svc.Calendar(context.Background(), "ella", day("2025-03-31"), day("2025-03-01"))
	var vErr *models.ValidationError
	assert.True(t, errors.As(err, &vErr))
}
