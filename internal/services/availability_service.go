package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/travelcraft/booking-backend/internal/models"
)

// AvailabilityStore is the authoritative scheduling calendar
type AvailabilityStore interface {
	GetRecord(ctx context.Context, programID string) (*models.AvailabilityRecord, error)
	ListRange(ctx context.Context, programID string, from, to time.Time) ([]models.AvailabilityDay, error)
	UpsertDays(ctx context.Context, programID string, days []*models.AvailabilityDay) error
}

// CalendarCache holds short-lived calendar copies for previews
type CalendarCache interface {
	GetCalendar(ctx context.Context, programID string) (*models.AvailabilityRecord, error)
	SetCalendar(ctx context.Context, record *models.AvailabilityRecord) error
	InvalidateCalendar(ctx context.Context, programID string) error
}

// AvailabilityService answers whether a party can travel on a date
type AvailabilityService struct {
	store  AvailabilityStore
	cache  CalendarCache
	logger *logrus.Logger
	now    func() time.Time
}

// NewAvailabilityService creates a new AvailabilityService. cache may be nil.
func NewAvailabilityService(store AvailabilityStore, cache CalendarCache, logger *logrus.Logger) *AvailabilityService {
	return &AvailabilityService{
		store:  store,
		cache:  cache,
		logger: logger,
		now:    time.Now,
	}
}

// CheckAvailability decides whether travelerCount people can travel on date.
// The past-date check runs before any calendar lookup. A program with an empty
// calendar admits any future date; otherwise a missing date is not offered.
// Returns nil or *models.AvailabilityError.
func CheckAvailability(record *models.AvailabilityRecord, date time.Time, travelerCount int, today time.Time) error {
	day := calendarDay(date)
	programID := ""
	if record != nil {
		programID = record.ProgramID
	}
	rejection := &models.AvailabilityError{
		ProgramID: programID,
		Date:      day.Format(models.DateLayout),
		Requested: travelerCount,
	}

	if day.Before(calendarDay(today)) {
		rejection.Reason = models.AvailabilityPastDate
		return rejection
	}

	// No scheduling data at all admits every future date
	if record == nil || len(record.Days) == 0 {
		return nil
	}

	entry, ok := record.Lookup(day)
	if !ok {
		rejection.Reason = models.AvailabilityDateNotOffered
		return rejection
	}
	rejection.Available = entry.AvailableSpots

	switch entry.Status {
	case models.DayStatusSoldOut:
		rejection.Reason = models.AvailabilitySoldOut
		return rejection
	case models.DayStatusCancelled:
		rejection.Reason = models.AvailabilityCancelled
		return rejection
	}

	if entry.AvailableSpots < travelerCount {
		rejection.Reason = models.AvailabilityInsufficientCapacity
		return rejection
	}
	return nil
}

// calendarDay strips the clock so dates compare by calendar day
func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Preview checks against the cached calendar. Advisory only; never used to book.
func (s *AvailabilityService) Preview(ctx context.Context, programID string, date time.Time, travelerCount int) error {
	record, err := s.cachedRecord(ctx, programID)
	if err != nil {
		return err
	}
	return CheckAvailability(record, date, travelerCount, s.now())
}

// Check is the authoritative gate, read straight from the database
func (s *AvailabilityService) Check(ctx context.Context, programID string, date time.Time, travelerCount int) error {
	record, err := s.store.GetRecord(ctx, programID)
	if err != nil {
		return fmt.Errorf("failed to load availability for %s: %w", programID, err)
	}
	return CheckAvailability(record, date, travelerCount, s.now())
}

// CheckItinerary gates every stop of an itinerary. Stop i is visited on start+i days.
func (s *AvailabilityService) CheckItinerary(ctx context.Context, stops []models.Stop, start time.Time, travelerCount int) error {
	for i, stop := range stops {
		date := calendarDay(start).AddDate(0, 0, i*models.PlanDayPolicy)
		if err := s.Check(ctx, stop.ID, date, travelerCount); err != nil {
			return err
		}
	}
	return nil
}

// Calendar returns the stored days of a program between from and to inclusive
func (s *AvailabilityService) Calendar(ctx context.Context, programID string, from, to time.Time) ([]models.AvailabilityDay, error) {
	if to.Before(from) {
		return nil, &models.ValidationError{Field: "to", Message: "to must not be before from"}
	}
	days, err := s.store.ListRange(ctx, programID, calendarDay(from), calendarDay(to))
	if err != nil {
		return nil, err
	}
	for i := range days {
		days[i].DateString = days[i].Date.Format(models.DateLayout)
	}
	return days, nil
}

// Ingest stores scheduling data for a program and drops its cached calendar
func (s *AvailabilityService) Ingest(ctx context.Context, programID string, inputs []models.AvailabilityDayInput) (int, error) {
	if programID == "" {
		return 0, &models.ValidationError{Field: "program_id", Message: "program id is required"}
	}

	days := make([]*models.AvailabilityDay, 0, len(inputs))
	for _, in := range inputs {
		day, err := in.ToDay(programID)
		if err != nil {
			return 0, err
		}
		days = append(days, day)
	}
	if len(days) == 0 {
		return 0, nil
	}

	if err := s.store.UpsertDays(ctx, programID, days); err != nil {
		return 0, err
	}

	if s.cache != nil {
		if err := s.cache.InvalidateCalendar(ctx, programID); err != nil {
			s.logger.WithError(err).WithField("program_id", programID).Warn("Failed to invalidate cached calendar")
		}
	}

	s.logger.WithFields(logrus.Fields{
		"program_id": programID,
		"days":       len(days),
	}).Info("Availability ingested")

	return len(days), nil
}

func (s *AvailabilityService) cachedRecord(ctx context.Context, programID string) (*models.AvailabilityRecord, error) {
	if s.cache != nil {
		record, err := s.cache.GetCalendar(ctx, programID)
		if err != nil {
			s.logger.WithError(err).WithField("program_id", programID).Warn("Calendar cache read failed")
		} else if record != nil {
			return record, nil
		}
	}

	record, err := s.store.GetRecord(ctx, programID)
	if err != nil {
		return nil, fmt.Errorf("failed to load availability for %s: %w", programID, err)
	}

	if s.cache != nil {
		if err := s.cache.SetCalendar(ctx, record); err != nil {
			s.logger.WithError(err).WithField("program_id", programID).Warn("Calendar cache write failed")
		}
	}
	return record, nil
}
