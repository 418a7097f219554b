package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/example/recurring-bookings/internal/application"
	"github.com/example/recurring-bookings/internal/config"
	"github.com/example/recurring-bookings/internal/events"
	"github.com/example/recurring-bookings/internal/logging"
	"github.com/example/recurring-bookings/internal/pattern"
	"github.com/example/recurring-bookings/internal/persistence"
	"github.com/example/recurring-bookings/internal/persistence/sqlite"
)

func main() {
	logger := logging.NewJSONLogger(os.Stdout, slog.LevelInfo)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	pool, err := sqlite.NewConnectionPool(cfg.SQLiteDSN)
	if err != nil {
		logger.Error("failed to open storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		if cerr := pool.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	if err := pool.Migrate(context.Background()); err != nil {
		logger.Error("failed to apply migrations", "error", err)
		os.Exit(1)
	}

	idGenerator := uuid.NewString
	now := time.Now

	registry := pattern.Default()
	bus := events.NewBus(logger)

	seriesStore := newSeriesStoreAdapter(sqlite.NewSeriesRepository(pool))
	exclusionStore := newExclusionStoreAdapter(sqlite.NewExclusionRepository(pool))
	instanceStore := newInstanceStoreAdapter(sqlite.NewInstanceRepository(pool))
	bookingDirectory := newBookingDirectoryAdapter(sqlite.NewBookingRepository(pool))

	defaults := application.SeriesDefaults{
		DefaultMaxOccurrences: cfg.DefaultMaxOccurrences,
		MaxOccurrencesCap:     cfg.MaxOccurrencesCap,
	}
	seriesService := application.NewSeriesServiceWithLogger(seriesStore, exclusionStore, bookingDirectory, registry, bus, defaults, idGenerator, now, logger)
	instanceService := application.NewInstanceServiceWithLogger(instanceStore, seriesStore, bookingDirectory, bus, cfg.RetentionDays, now, logger)
	generator := application.NewGeneratorWithLogger(seriesService, instanceStore, registry, bus, application.GeneratorConfig{
		LookaheadDays: cfg.LookaheadDays,
		BatchSize:     cfg.GenerationBatchSize,
		SeriesPerRun:  cfg.SeriesBatchSize,
	}, idGenerator, now, logger)

	bus.Subscribe(func(event events.Event) {
		logger.Info("engine event",
			"type", string(event.Type),
			"series_id", event.SeriesID,
			"instance_id", event.InstanceID,
		)
	})
	bus.Subscribe(func(event events.Event) {
		if event.Type != events.SeriesCancelled {
			return
		}
		cancelCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := instanceService.CancelOpenInstances(cancelCtx, event.SeriesID, event.Detail["reason"]); err != nil {
			logger.Error("failed to cancel open instances", "series_id", event.SeriesID, "error", err)
		}
	})

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.GenerationSchedule, func() {
		runCtx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if _, err := generator.GenerateUpcoming(runCtx); err != nil {
			logger.Error("generation run failed", "error", err)
		}
	}); err != nil {
		logger.Error("invalid generation schedule", "error", err)
		os.Exit(1)
	}
	if _, err := scheduler.AddFunc(cfg.CleanupSchedule, func() {
		runCtx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if _, err := instanceService.CleanupExpired(runCtx); err != nil {
			logger.Error("cleanup run failed", "error", err)
		}
	}); err != nil {
		logger.Error("invalid cleanup schedule", "error", err)
		os.Exit(1)
	}

	// Catch up immediately so a restart does not wait for the next trigger.
	startupCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	if _, err := generator.GenerateUpcoming(startupCtx); err != nil {
		logger.Error("startup generation run failed", "error", err)
	}
	cancel()

	scheduler.Start()
	logger.Info("booking engine running",
		"generation_schedule", cfg.GenerationSchedule,
		"cleanup_schedule", cfg.CleanupSchedule,
		"lookahead_days", cfg.LookaheadDays,
	)

	<-ctx.Done()
	logger.Info("shutting down")
	<-scheduler.Stop().Done()
}

type seriesStoreAdapter struct {
	repo persistence.SeriesRepository
}

func newSeriesStoreAdapter(repo persistence.SeriesRepository) *seriesStoreAdapter {
	return &seriesStoreAdapter{repo: repo}
}

func (a *seriesStoreAdapter) CreateSeries(ctx context.Context, series application.Series) (application.Series, error) {
	model, err := toPersistenceSeries(series)
	if err != nil {
		return application.Series{}, err
	}
	if err := a.repo.CreateSeries(ctx, model); err != nil {
		return application.Series{}, err
	}
	stored, err := a.repo.GetSeries(ctx, series.ID)
	if err != nil {
		return application.Series{}, err
	}
	return toApplicationSeries(stored)
}

func (a *seriesStoreAdapter) GetSeries(ctx context.Context, id string) (application.Series, error) {
	stored, err := a.repo.GetSeries(ctx, id)
	if err != nil {
		return application.Series{}, err
	}
	return toApplicationSeries(stored)
}

func (a *seriesStoreAdapter) UpdateSeries(ctx context.Context, series application.Series) (application.Series, error) {
	model, err := toPersistenceSeries(series)
	if err != nil {
		return application.Series{}, err
	}
	if err := a.repo.UpdateSeries(ctx, model); err != nil {
		return application.Series{}, err
	}
	stored, err := a.repo.GetSeries(ctx, series.ID)
	if err != nil {
		return application.Series{}, err
	}
	return toApplicationSeries(stored)
}

func (a *seriesStoreAdapter) ListSeries(ctx context.Context, filter application.SeriesStoreFilter) ([]application.Series, error) {
	models, err := a.repo.ListSeries(ctx, persistence.SeriesFilter{
		Status:     persistence.SeriesStatus(filter.Status),
		CustomerID: filter.CustomerID,
		Limit:      filter.Limit,
	})
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	series := make([]application.Series, 0, len(models))
	for _, model := range models {
		converted, err := toApplicationSeries(model)
		if err != nil {
			return nil, err
		}
		series = append(series, converted)
	}
	return series, nil
}

func (a *seriesStoreAdapter) IncrementTotalOccurrences(ctx context.Context, id string, delta int) error {
	return a.repo.IncrementTotalOccurrences(ctx, id, delta)
}

func (a *seriesStoreAdapter) IncrementCompletedOccurrences(ctx context.Context, id string) error {
	return a.repo.IncrementCompletedOccurrences(ctx, id)
}

type exclusionStoreAdapter struct {
	repo persistence.ExclusionRepository
}

func newExclusionStoreAdapter(repo persistence.ExclusionRepository) *exclusionStoreAdapter {
	return &exclusionStoreAdapter{repo: repo}
}

func (a *exclusionStoreAdapter) AddExclusion(ctx context.Context, exclusion application.Exclusion) (application.Exclusion, error) {
	if err := a.repo.AddExclusion(ctx, toPersistenceExclusion(exclusion)); err != nil {
		return application.Exclusion{}, err
	}
	return exclusion, nil
}

func (a *exclusionStoreAdapter) ListExclusionsForSeries(ctx context.Context, seriesID string) ([]application.Exclusion, error) {
	models, err := a.repo.ListExclusionsForSeries(ctx, seriesID)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	exclusions := make([]application.Exclusion, 0, len(models))
	for _, model := range models {
		exclusions = append(exclusions, toApplicationExclusion(model))
	}
	return exclusions, nil
}

type instanceStoreAdapter struct {
	repo persistence.InstanceRepository
}

func newInstanceStoreAdapter(repo persistence.InstanceRepository) *instanceStoreAdapter {
	return &instanceStoreAdapter{repo: repo}
}

func (a *instanceStoreAdapter) CreateInstances(ctx context.Context, instances []application.Instance) (int, error) {
	models := make([]persistence.Instance, 0, len(instances))
	for _, instance := range instances {
		models = append(models, toPersistenceInstance(instance))
	}
	return a.repo.CreateInstances(ctx, models)
}

func (a *instanceStoreAdapter) GetInstance(ctx context.Context, id string) (application.Instance, error) {
	stored, err := a.repo.GetInstance(ctx, id)
	if err != nil {
		return application.Instance{}, err
	}
	return toApplicationInstance(stored), nil
}

func (a *instanceStoreAdapter) UpdateInstance(ctx context.Context, instance application.Instance) error {
	return a.repo.UpdateInstance(ctx, toPersistenceInstance(instance))
}

func (a *instanceStoreAdapter) ListInstancesForSeries(ctx context.Context, seriesID string) ([]application.Instance, error) {
	models, err := a.repo.ListInstancesForSeries(ctx, seriesID)
	if err != nil {
		return nil, err
	}
	return toApplicationInstances(models), nil
}

func (a *instanceStoreAdapter) LatestScheduledDate(ctx context.Context, seriesID string) (time.Time, bool, error) {
	return a.repo.LatestScheduledDate(ctx, seriesID)
}

func (a *instanceStoreAdapter) MaxInstanceNumber(ctx context.Context, seriesID string) (int, error) {
	return a.repo.MaxInstanceNumber(ctx, seriesID)
}

func (a *instanceStoreAdapter) ListUpcomingForCustomer(ctx context.Context, customerID string, from time.Time, limit int) ([]application.Instance, error) {
	models, err := a.repo.ListUpcomingForCustomer(ctx, customerID, from, limit)
	if err != nil {
		return nil, err
	}
	return toApplicationInstances(models), nil
}

func (a *instanceStoreAdapter) CountByStatus(ctx context.Context, seriesID string) (map[application.InstanceStatus]int, error) {
	models, err := a.repo.CountByStatus(ctx, seriesID)
	if err != nil {
		return nil, err
	}
	counts := make(map[application.InstanceStatus]int, len(models))
	for status, count := range models {
		counts[application.InstanceStatus(status)] = count
	}
	return counts, nil
}

func (a *instanceStoreAdapter) DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	return a.repo.DeleteResolvedBefore(ctx, cutoff)
}

type bookingDirectoryAdapter struct {
	repo persistence.BookingRepository
}

func newBookingDirectoryAdapter(repo persistence.BookingRepository) *bookingDirectoryAdapter {
	return &bookingDirectoryAdapter{repo: repo}
}

func (a *bookingDirectoryAdapter) GetBooking(ctx context.Context, id string) (application.Booking, error) {
	stored, err := a.repo.GetBooking(ctx, id)
	if err != nil {
		return application.Booking{}, err
	}
	return application.Booking{
		ID:          stored.ID,
		CustomerID:  stored.CustomerID,
		StaffID:     stored.StaffID,
		ServiceID:   stored.ServiceID,
		BookingDate: stored.BookingDate,
		BookingTime: stored.BookingTime,
		InstanceID:  cloneString(stored.InstanceID),
	}, nil
}

func (a *bookingDirectoryAdapter) LinkInstance(ctx context.Context, bookingID, instanceID string) error {
	return a.repo.SetInstanceRef(ctx, bookingID, instanceID)
}

func toPersistenceSeries(series application.Series) (persistence.Series, error) {
	options, err := json.Marshal(series.PatternOptions)
	if err != nil {
		return persistence.Series{}, fmt.Errorf("failed to encode pattern options: %w", err)
	}
	return persistence.Series{
		ID:                   series.ID,
		MasterBookingID:      series.MasterBookingID,
		CustomerID:           series.CustomerID,
		StaffID:              series.StaffID,
		ServiceID:            series.ServiceID,
		PatternKey:           series.PatternKey,
		PatternOptions:       string(options),
		StartDate:            series.StartDate,
		StartTime:            series.StartTime,
		EndDate:              cloneTime(series.EndDate),
		EndTime:              series.EndTime,
		Timezone:             series.Timezone,
		MaxOccurrences:       series.MaxOccurrences,
		TotalOccurrences:     series.TotalOccurrences,
		CompletedOccurrences: series.CompletedOccurrences,
		Discount:             cloneFloat(series.Discount),
		Status:               persistence.SeriesStatus(series.Status),
		Metadata:             series.Metadata,
		CreatedAt:            series.CreatedAt,
		UpdatedAt:            series.UpdatedAt,
	}, nil
}

func toApplicationSeries(model persistence.Series) (application.Series, error) {
	var options pattern.Options
	if model.PatternOptions != "" {
		if err := json.Unmarshal([]byte(model.PatternOptions), &options); err != nil {
			return application.Series{}, fmt.Errorf("failed to decode pattern options: %w", err)
		}
	}
	return application.Series{
		ID:                   model.ID,
		MasterBookingID:      model.MasterBookingID,
		CustomerID:           model.CustomerID,
		StaffID:              model.StaffID,
		ServiceID:            model.ServiceID,
		PatternKey:           model.PatternKey,
		PatternOptions:       options,
		StartDate:            model.StartDate,
		StartTime:            model.StartTime,
		EndDate:              cloneTime(model.EndDate),
		EndTime:              model.EndTime,
		Timezone:             model.Timezone,
		MaxOccurrences:       model.MaxOccurrences,
		TotalOccurrences:     model.TotalOccurrences,
		CompletedOccurrences: model.CompletedOccurrences,
		Discount:             cloneFloat(model.Discount),
		Status:               application.SeriesStatus(model.Status),
		Metadata:             model.Metadata,
		CreatedAt:            model.CreatedAt,
		UpdatedAt:            model.UpdatedAt,
	}, nil
}

func toPersistenceExclusion(exclusion application.Exclusion) persistence.Exclusion {
	return persistence.Exclusion{
		ID:         exclusion.ID,
		SeriesID:   exclusion.SeriesID,
		Kind:       persistence.ExclusionKind(exclusion.Kind),
		ExactDate:  cloneTime(exclusion.ExactDate),
		Weekday:    exclusion.Weekday,
		RangeStart: cloneTime(exclusion.RangeStart),
		RangeEnd:   cloneTime(exclusion.RangeEnd),
		Reason:     exclusion.Reason,
		CreatedAt:  exclusion.CreatedAt,
	}
}

func toApplicationExclusion(model persistence.Exclusion) application.Exclusion {
	return application.Exclusion{
		ID:         model.ID,
		SeriesID:   model.SeriesID,
		Kind:       application.ExclusionKind(model.Kind),
		ExactDate:  cloneTime(model.ExactDate),
		Weekday:    model.Weekday,
		RangeStart: cloneTime(model.RangeStart),
		RangeEnd:   cloneTime(model.RangeEnd),
		Reason:     model.Reason,
		CreatedAt:  model.CreatedAt,
	}
}

func toPersistenceInstance(instance application.Instance) persistence.Instance {
	return persistence.Instance{
		ID:             instance.ID,
		SeriesID:       instance.SeriesID,
		InstanceNumber: instance.InstanceNumber,
		ScheduledDate:  instance.ScheduledDate,
		ScheduledTime:  instance.ScheduledTime,
		OriginalDate:   cloneTime(instance.OriginalDate),
		OriginalTime:   cloneString(instance.OriginalTime),
		Status:         persistence.InstanceStatus(instance.Status),
		Reason:         instance.Reason,
		BookingID:      cloneString(instance.BookingID),
		CreatedAt:      instance.CreatedAt,
		UpdatedAt:      instance.UpdatedAt,
	}
}

func toApplicationInstance(model persistence.Instance) application.Instance {
	return application.Instance{
		ID:             model.ID,
		SeriesID:       model.SeriesID,
		InstanceNumber: model.InstanceNumber,
		ScheduledDate:  model.ScheduledDate,
		ScheduledTime:  model.ScheduledTime,
		OriginalDate:   cloneTime(model.OriginalDate),
		OriginalTime:   cloneString(model.OriginalTime),
		Status:         application.InstanceStatus(model.Status),
		Reason:         model.Reason,
		BookingID:      cloneString(model.BookingID),
		CreatedAt:      model.CreatedAt,
		UpdatedAt:      model.UpdatedAt,
	}
}

func toApplicationInstances(models []persistence.Instance) []application.Instance {
	if len(models) == 0 {
		return nil
	}
	instances := make([]application.Instance, 0, len(models))
	for _, model := range models {
		instances = append(instances, toApplicationInstance(model))
	}
	return instances
}

func cloneString(value *string) *string {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}

func cloneFloat(value *float64) *float64 {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}
