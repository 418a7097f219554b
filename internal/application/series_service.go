package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/recurring-bookings/internal/events"
	"github.com/example/recurring-bookings/internal/pattern"
	"github.com/example/recurring-bookings/internal/persistence"
)

// SeriesStore captures the persistence interactions needed by the series
// lifecycle operations.
type SeriesStore interface {
	CreateSeries(ctx context.Context, series Series) (Series, error)
	GetSeries(ctx context.Context, id string) (Series, error)
	UpdateSeries(ctx context.Context, series Series) (Series, error)
	ListSeries(ctx context.Context, filter SeriesStoreFilter) ([]Series, error)
	IncrementTotalOccurrences(ctx context.Context, id string, delta int) error
	IncrementCompletedOccurrences(ctx context.Context, id string) error
}

// SeriesStoreFilter narrows queries issued to the series store.
type SeriesStoreFilter struct {
	Status     SeriesStatus
	CustomerID string
	Limit      int
}

// ExclusionStore captures the persistence interactions for exclusion rules.
type ExclusionStore interface {
	AddExclusion(ctx context.Context, exclusion Exclusion) (Exclusion, error)
	ListExclusionsForSeries(ctx context.Context, seriesID string) ([]Exclusion, error)
}

// BookingDirectory exposes master booking lookups and the back-reference
// write used when an instance is linked to a booking.
type BookingDirectory interface {
	GetBooking(ctx context.Context, id string) (Booking, error)
	LinkInstance(ctx context.Context, bookingID, instanceID string) error
}

// EventPublisher publishes engine events to in-process subscribers.
type EventPublisher interface {
	Publish(event events.Event)
}

// SeriesDefaults carries the configured fallbacks for occurrence budgeting.
type SeriesDefaults struct {
	// DefaultMaxOccurrences applies when neither an explicit count nor an
	// end date is supplied.
	DefaultMaxOccurrences int
	// MaxOccurrencesCap bounds every series regardless of input.
	MaxOccurrencesCap int
}

// maxPreviewDates caps the read-only pattern preview.
const maxPreviewDates = 12

// SeriesService owns the series lifecycle: creation, restricted updates,
// cancellation, exclusions and pattern previews.
type SeriesService struct {
	series      SeriesStore
	exclusions  ExclusionStore
	bookings    BookingDirectory
	registry    *pattern.Registry
	publisher   EventPublisher
	defaults    SeriesDefaults
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewSeriesService wires dependencies for series lifecycle operations.
func NewSeriesService(series SeriesStore, exclusions ExclusionStore, bookings BookingDirectory, registry *pattern.Registry, publisher EventPublisher, defaults SeriesDefaults, idGenerator func() string, now func() time.Time) *SeriesService {
	return NewSeriesServiceWithLogger(series, exclusions, bookings, registry, publisher, defaults, idGenerator, now, nil)
}

// NewSeriesServiceWithLogger wires dependencies including a base logger.
func NewSeriesServiceWithLogger(series SeriesStore, exclusions ExclusionStore, bookings BookingDirectory, registry *pattern.Registry, publisher EventPublisher, defaults SeriesDefaults, idGenerator func() string, now func() time.Time, logger *slog.Logger) *SeriesService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	if defaults.DefaultMaxOccurrences <= 0 {
		defaults.DefaultMaxOccurrences = 52
	}
	if defaults.MaxOccurrencesCap <= 0 {
		defaults.MaxOccurrencesCap = 104
	}
	return &SeriesService{
		series:      series,
		exclusions:  exclusions,
		bookings:    bookings,
		registry:    registry,
		publisher:   publisher,
		defaults:    defaults,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

// CreateSeries validates the pattern and master booking before persisting a
// new active series. The master booking counts as occurrence number one, so
// the materialized total starts at one.
func (s *SeriesService) CreateSeries(ctx context.Context, input SeriesInput) (Series, error) {
	if s == nil {
		return Series{}, fmt.Errorf("SeriesService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "series", "create")

	vErr := &ValidationError{}
	if input.MasterBookingID == "" {
		vErr.add("master_booking_id", "is required")
	}

	pat, ok := s.registry.Lookup(input.PatternKey)
	if !ok {
		vErr.add("pattern_key", "unknown pattern")
	} else if err := pat.Validate(input.PatternOptions); err != nil {
		addOptionError(vErr, err)
	}

	if vErr.HasErrors() {
		return Series{}, vErr
	}

	booking, err := s.bookings.GetBooking(ctx, input.MasterBookingID)
	if err != nil {
		if isNotFoundError(err) {
			vErr.add("master_booking_id", "booking does not exist")
			return Series{}, vErr
		}
		return Series{}, err
	}

	startDate := input.StartDate
	if startDate.IsZero() {
		startDate = booking.BookingDate
	}
	startDate = pattern.NormalizeDate(startDate)

	startTime := input.StartTime
	if startTime == "" {
		startTime = booking.BookingTime
	}

	timezone := input.Timezone
	if timezone == "" {
		timezone = "UTC"
	}

	maxOccurrences, err := s.resolveMaxOccurrences(pat, startDate, input)
	if err != nil {
		return Series{}, err
	}

	createdAt := s.now()
	series := Series{
		ID:               s.idGenerator(),
		MasterBookingID:  input.MasterBookingID,
		CustomerID:       booking.CustomerID,
		StaffID:          booking.StaffID,
		ServiceID:        booking.ServiceID,
		PatternKey:       input.PatternKey,
		PatternOptions:   input.PatternOptions,
		StartDate:        startDate,
		StartTime:        startTime,
		EndDate:          input.EndDate,
		EndTime:          input.EndTime,
		Timezone:         timezone,
		MaxOccurrences:   maxOccurrences,
		// The master booking occupies occurrence slot one and is never
		// materialized as an instance row, so the counter starts at 1 and
		// reaches max_occurrences when generation exhausts the budget.
		TotalOccurrences: 1,
		Discount:         input.Discount,
		Status:           SeriesActive,
		Metadata:         cloneMetadata(input.Metadata),
		CreatedAt:        createdAt,
		UpdatedAt:        createdAt,
	}

	persisted, err := s.series.CreateSeries(ctx, series)
	if err != nil {
		return Series{}, mapRepoError(err)
	}

	s.publish(events.Event{Type: events.SeriesCreated, SeriesID: persisted.ID, OccurredAt: s.now()})
	logger.Info("series created", "series_id", persisted.ID, "pattern", persisted.PatternKey, "max_occurrences", persisted.MaxOccurrences)
	return persisted, nil
}

// GetSeries retrieves a series by ID.
func (s *SeriesService) GetSeries(ctx context.Context, id string) (Series, error) {
	series, err := s.series.GetSeries(ctx, id)
	if err != nil {
		return Series{}, mapRepoError(err)
	}
	return series, nil
}

// ListSeries enumerates series matching the filter.
func (s *SeriesService) ListSeries(ctx context.Context, filter SeriesStoreFilter) ([]Series, error) {
	series, err := s.series.ListSeries(ctx, filter)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return series, nil
}

// UpdateSeries applies the restricted partial update to an existing series.
func (s *SeriesService) UpdateSeries(ctx context.Context, id string, input UpdateSeriesInput) (Series, error) {
	if s == nil {
		return Series{}, fmt.Errorf("SeriesService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "series", "update", "series_id", id)

	existing, err := s.series.GetSeries(ctx, id)
	if err != nil {
		return Series{}, mapRepoError(err)
	}

	updated := existing
	vErr := &ValidationError{}

	if input.Status != nil {
		if !validSeriesStatus(*input.Status) {
			vErr.add("status", "unknown status")
		} else if err := guardSeriesTransition(existing, *input.Status); err != nil {
			return Series{}, err
		} else {
			updated.Status = *input.Status
		}
	}

	if input.MaxOccurrences != nil {
		switch {
		case *input.MaxOccurrences < existing.TotalOccurrences:
			vErr.add("max_occurrences", "cannot drop below the materialized count")
		case *input.MaxOccurrences > s.defaults.MaxOccurrencesCap:
			vErr.add("max_occurrences", fmt.Sprintf("cannot exceed %d", s.defaults.MaxOccurrencesCap))
		default:
			updated.MaxOccurrences = *input.MaxOccurrences
		}
	}

	if input.PatternOptions != nil {
		pat, ok := s.registry.Lookup(existing.PatternKey)
		if !ok {
			vErr.add("pattern_key", "unknown pattern")
		} else if err := pat.Validate(*input.PatternOptions); err != nil {
			addOptionError(vErr, err)
		} else {
			updated.PatternOptions = *input.PatternOptions
		}
	}

	if input.EndDate != nil {
		normalized := pattern.NormalizeDate(*input.EndDate)
		if normalized.Before(existing.StartDate) {
			vErr.add("end_date", "cannot precede the series start date")
		} else {
			updated.EndDate = &normalized
		}
	}

	if input.Metadata != nil {
		updated.Metadata = cloneMetadata(input.Metadata)
	}

	if vErr.HasErrors() {
		return Series{}, vErr
	}

	persisted, err := s.series.UpdateSeries(ctx, updated)
	if err != nil {
		return Series{}, mapRepoError(err)
	}

	s.publish(events.Event{Type: events.SeriesUpdated, SeriesID: persisted.ID, OccurredAt: s.now()})
	logger.Info("series updated", "status", string(persisted.Status))
	return persisted, nil
}

// CancelSeries marks a series cancelled. Cancelling an already cancelled
// series is a no-op success.
func (s *SeriesService) CancelSeries(ctx context.Context, id, reason string) (Series, error) {
	if s == nil {
		return Series{}, fmt.Errorf("SeriesService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "series", "cancel", "series_id", id)

	existing, err := s.series.GetSeries(ctx, id)
	if err != nil {
		return Series{}, mapRepoError(err)
	}

	if existing.Status == SeriesCancelled {
		return existing, nil
	}

	updated := existing
	updated.Status = SeriesCancelled
	if reason != "" {
		metadata := cloneMetadata(existing.Metadata)
		if metadata == nil {
			metadata = make(map[string]string, 1)
		}
		metadata["cancellation_reason"] = reason
		updated.Metadata = metadata
	}

	persisted, err := s.series.UpdateSeries(ctx, updated)
	if err != nil {
		return Series{}, mapRepoError(err)
	}

	s.publish(events.Event{
		Type:       events.SeriesCancelled,
		SeriesID:   persisted.ID,
		OccurredAt: s.now(),
		Detail:     map[string]string{"reason": reason},
	})
	logger.Info("series cancelled", "reason", reason)
	return persisted, nil
}

// PauseSeries suspends instance generation for an active series.
func (s *SeriesService) PauseSeries(ctx context.Context, id string) (Series, error) {
	status := SeriesPaused
	return s.UpdateSeries(ctx, id, UpdateSeriesInput{Status: &status})
}

// ResumeSeries reactivates a paused series.
func (s *SeriesService) ResumeSeries(ctx context.Context, id string) (Series, error) {
	status := SeriesActive
	return s.UpdateSeries(ctx, id, UpdateSeriesInput{Status: &status})
}

// AddExclusion attaches a new exclusion rule to a series.
func (s *SeriesService) AddExclusion(ctx context.Context, input ExclusionInput) (Exclusion, error) {
	if s == nil {
		return Exclusion{}, fmt.Errorf("SeriesService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "series", "add_exclusion", "series_id", input.SeriesID)

	if _, err := s.series.GetSeries(ctx, input.SeriesID); err != nil {
		return Exclusion{}, mapRepoError(err)
	}

	vErr := &ValidationError{}
	switch input.Kind {
	case ExclusionDate:
		if input.ExactDate == nil {
			vErr.add("exact_date", "is required for date exclusions")
		}
	case ExclusionWeekday:
		if input.Weekday == nil {
			vErr.add("weekday", "is required for weekday exclusions")
		} else if *input.Weekday < time.Sunday || *input.Weekday > time.Saturday {
			vErr.add("weekday", "is not a valid weekday")
		}
	case ExclusionRange:
		switch {
		case input.RangeStart == nil || input.RangeEnd == nil:
			vErr.add("range", "both range_start and range_end are required")
		case pattern.NormalizeDate(*input.RangeEnd).Before(pattern.NormalizeDate(*input.RangeStart)):
			vErr.add("range", "range_end cannot precede range_start")
		}
	default:
		vErr.add("kind", "unknown exclusion kind")
	}
	if vErr.HasErrors() {
		return Exclusion{}, vErr
	}

	exclusion := Exclusion{
		ID:         s.idGenerator(),
		SeriesID:   input.SeriesID,
		Kind:       input.Kind,
		ExactDate:  normalizeDatePtr(input.ExactDate),
		Weekday:    input.Weekday,
		RangeStart: normalizeDatePtr(input.RangeStart),
		RangeEnd:   normalizeDatePtr(input.RangeEnd),
		Reason:     input.Reason,
		CreatedAt:  s.now(),
	}

	persisted, err := s.exclusions.AddExclusion(ctx, exclusion)
	if err != nil {
		return Exclusion{}, mapRepoError(err)
	}

	logger.Info("exclusion added", "kind", string(persisted.Kind))
	return persisted, nil
}

// GetExclusions lists the exclusion rules of a series.
func (s *SeriesService) GetExclusions(ctx context.Context, seriesID string) ([]Exclusion, error) {
	exclusions, err := s.exclusions.ListExclusionsForSeries(ctx, seriesID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return exclusions, nil
}

// IsDateExcluded reports whether any exclusion rule of the series matches
// the date. Rules are ORed: one match is enough.
func (s *SeriesService) IsDateExcluded(ctx context.Context, seriesID string, date time.Time) (bool, error) {
	exclusions, err := s.exclusions.ListExclusionsForSeries(ctx, seriesID)
	if err != nil {
		return false, mapRepoError(err)
	}

	day := pattern.NormalizeDate(date)
	for _, exclusion := range exclusions {
		if exclusionMatches(exclusion, day) {
			return true, nil
		}
	}
	return false, nil
}

// Preview expands a pattern read-only for display. It runs through the same
// registry as real generation so previews cannot drift from materialization.
func (s *SeriesService) Preview(ctx context.Context, patternKey string, start time.Time, opts pattern.Options, count int) (Preview, error) {
	pat, ok := s.registry.Lookup(patternKey)
	if !ok {
		vErr := &ValidationError{}
		vErr.add("pattern_key", "unknown pattern")
		return Preview{}, vErr
	}
	if err := pat.Validate(opts); err != nil {
		vErr := &ValidationError{}
		addOptionError(vErr, err)
		return Preview{}, vErr
	}

	if count < 1 || count > maxPreviewDates {
		count = maxPreviewDates
	}

	dates, err := pat.Generate(pattern.NormalizeDate(start), count, opts)
	if err != nil {
		return Preview{}, err
	}

	return Preview{Dates: dates, Description: pat.Describe(opts)}, nil
}

// IncrementTotal applies a relative update to the materialized counter.
func (s *SeriesService) IncrementTotal(ctx context.Context, id string, delta int) error {
	if err := s.series.IncrementTotalOccurrences(ctx, id, delta); err != nil {
		return mapRepoError(err)
	}
	return nil
}

// IncrementCompleted bumps the completed counter by one.
func (s *SeriesService) IncrementCompleted(ctx context.Context, id string) error {
	if err := s.series.IncrementCompletedOccurrences(ctx, id); err != nil {
		return mapRepoError(err)
	}
	return nil
}

func (s *SeriesService) resolveMaxOccurrences(pat pattern.Pattern, start time.Time, input SeriesInput) (int, error) {
	ceiling := s.defaults.MaxOccurrencesCap

	if input.MaxOccurrences != 0 {
		if input.MaxOccurrences < 1 || input.MaxOccurrences > ceiling {
			vErr := &ValidationError{}
			vErr.add("max_occurrences", fmt.Sprintf("must be between 1 and %d", ceiling))
			return 0, vErr
		}
		return input.MaxOccurrences, nil
	}

	if input.EndDate != nil {
		opts := input.PatternOptions
		opts.EndDate = input.EndDate
		dates, err := pat.Generate(start, ceiling, opts)
		if err != nil {
			return 0, err
		}
		if len(dates) == 0 {
			return 1, nil
		}
		return len(dates), nil
	}

	return s.defaults.DefaultMaxOccurrences, nil
}

func (s *SeriesService) publish(event events.Event) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(event)
}

func exclusionMatches(exclusion Exclusion, day time.Time) bool {
	switch exclusion.Kind {
	case ExclusionDate:
		return exclusion.ExactDate != nil && day.Equal(pattern.NormalizeDate(*exclusion.ExactDate))
	case ExclusionWeekday:
		return exclusion.Weekday != nil && day.Weekday() == *exclusion.Weekday
	case ExclusionRange:
		if exclusion.RangeStart == nil || exclusion.RangeEnd == nil {
			return false
		}
		start := pattern.NormalizeDate(*exclusion.RangeStart)
		end := pattern.NormalizeDate(*exclusion.RangeEnd)
		return !day.Before(start) && !day.After(end)
	default:
		return false
	}
}

func validSeriesStatus(status SeriesStatus) bool {
	switch status {
	case SeriesActive, SeriesPaused, SeriesCancelled, SeriesCompleted:
		return true
	default:
		return false
	}
}

// seriesTransitions lists the legal status moves. Cancelled and completed
// are terminal.
var seriesTransitions = map[SeriesStatus][]SeriesStatus{
	SeriesActive:    {SeriesActive, SeriesPaused, SeriesCancelled, SeriesCompleted},
	SeriesPaused:    {SeriesPaused, SeriesActive, SeriesCancelled},
	SeriesCancelled: {SeriesCancelled},
	SeriesCompleted: {SeriesCompleted},
}

func guardSeriesTransition(series Series, to SeriesStatus) error {
	for _, allowed := range seriesTransitions[series.Status] {
		if allowed == to {
			return nil
		}
	}
	return &StateError{EntityID: series.ID, From: string(series.Status), To: string(to)}
}

func addOptionError(vErr *ValidationError, err error) {
	var optErr *pattern.OptionError
	if errors.As(err, &optErr) {
		vErr.add(optErr.Field, optErr.Reason)
		return
	}
	vErr.add("pattern_options", err.Error())
}

func cloneMetadata(metadata map[string]string) map[string]string {
	if metadata == nil {
		return nil
	}
	clone := make(map[string]string, len(metadata))
	for key, value := range metadata {
		clone[key] = value
	}
	return clone
}

func normalizeDatePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	normalized := pattern.NormalizeDate(*t)
	return &normalized
}

func mapRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, persistence.ErrDuplicate) {
		return ErrAlreadyExists
	}
	if errors.Is(err, persistence.ErrForeignKeyViolation) {
		vErr := &ValidationError{}
		vErr.add("references", "related records are missing")
		return vErr
	}
	return err
}

func isNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, persistence.ErrNotFound)
}
