package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/recurring-bookings/internal/events"
	"github.com/example/recurring-bookings/internal/pattern"
)

// SeriesDirectory is the narrow view of the series lifecycle the generator
// depends on. SeriesService satisfies it.
type SeriesDirectory interface {
	GetSeries(ctx context.Context, id string) (Series, error)
	ListSeries(ctx context.Context, filter SeriesStoreFilter) ([]Series, error)
	IsDateExcluded(ctx context.Context, seriesID string, date time.Time) (bool, error)
	IncrementTotal(ctx context.Context, id string, delta int) error
}

// GeneratorConfig bounds how far ahead and how much per run the generator
// materializes.
type GeneratorConfig struct {
	// LookaheadDays is the rolling generation horizon.
	LookaheadDays int
	// BatchSize caps the instances created for one series in one run.
	BatchSize int
	// SeriesPerRun caps how many active series one batch run processes.
	SeriesPerRun int
}

// Generator materializes upcoming instances for active series. Runs are
// idempotent: the scheduled-date uniqueness constraint absorbs overlapping
// runs, so re-running never duplicates rows.
type Generator struct {
	series      SeriesDirectory
	instances   InstanceStore
	registry    *pattern.Registry
	publisher   EventPublisher
	config      GeneratorConfig
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewGenerator wires dependencies for instance generation.
func NewGenerator(series SeriesDirectory, instances InstanceStore, registry *pattern.Registry, publisher EventPublisher, config GeneratorConfig, idGenerator func() string, now func() time.Time) *Generator {
	return NewGeneratorWithLogger(series, instances, registry, publisher, config, idGenerator, now, nil)
}

// NewGeneratorWithLogger wires dependencies including a base logger.
func NewGeneratorWithLogger(series SeriesDirectory, instances InstanceStore, registry *pattern.Registry, publisher EventPublisher, config GeneratorConfig, idGenerator func() string, now func() time.Time, logger *slog.Logger) *Generator {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	if config.LookaheadDays <= 0 {
		config.LookaheadDays = 60
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.SeriesPerRun <= 0 {
		config.SeriesPerRun = 500
	}
	return &Generator{
		series:      series,
		instances:   instances,
		registry:    registry,
		publisher:   publisher,
		config:      config,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

// GenerateForSeries materializes the missing upcoming instances of one
// series and returns the rows actually created. Non-active series generate
// nothing.
func (g *Generator) GenerateForSeries(ctx context.Context, seriesID string) ([]Instance, error) {
	if g == nil {
		return nil, fmt.Errorf("Generator is nil")
	}
	logger := serviceLogger(ctx, g.logger, "generator", "generate", "series_id", seriesID)

	series, err := g.series.GetSeries(ctx, seriesID)
	if err != nil {
		return nil, err
	}

	if series.Status != SeriesActive {
		logger.Debug("series not active, skipping generation", "status", string(series.Status))
		return nil, nil
	}

	pat, ok := g.registry.Lookup(series.PatternKey)
	if !ok {
		// An unregistered pattern key yields an empty run, not a batch
		// failure; the series stays untouched until the key is registered.
		logger.Warn("unknown pattern key, skipping generation", "pattern_key", series.PatternKey)
		return nil, nil
	}

	// The master booking holds occurrence slot one, so remaining capacity is
	// measured against the running total, never recounted from rows.
	remaining := series.MaxOccurrences - series.TotalOccurrences
	if remaining <= 0 {
		return nil, nil
	}
	if remaining > g.config.BatchSize {
		remaining = g.config.BatchSize
	}

	horizon := pattern.NormalizeDate(g.now().AddDate(0, 0, g.config.LookaheadDays))
	if series.EndDate != nil {
		end := pattern.NormalizeDate(*series.EndDate)
		if end.Before(horizon) {
			horizon = end
		}
	}

	// Anchor on the stored rows, not on any cached pointer, so a crashed or
	// overlapping run resumes from what actually got written.
	after := pattern.NormalizeDate(series.StartDate)
	if latest, found, err := g.instances.LatestScheduledDate(ctx, series.ID); err != nil {
		return nil, err
	} else if found {
		after = pattern.NormalizeDate(latest)
	}

	opts := series.PatternOptions
	if series.EndDate != nil && opts.EndDate == nil {
		opts.EndDate = series.EndDate
	}

	var candidates []time.Time
	for len(candidates) < remaining {
		next, ok := pat.Next(series.StartDate, after, opts)
		if !ok {
			break
		}
		after = next
		if next.After(horizon) {
			break
		}

		excluded, err := g.series.IsDateExcluded(ctx, series.ID, next)
		if err != nil {
			return nil, err
		}
		if excluded {
			// Excluded dates do not consume occurrence capacity.
			continue
		}
		candidates = append(candidates, next)
	}

	if len(candidates) == 0 {
		return nil, nil
	}

	base, err := g.instances.MaxInstanceNumber(ctx, series.ID)
	if err != nil {
		return nil, err
	}
	if base == 0 {
		base = 1
	}

	createdAt := g.now()
	batch := make([]Instance, 0, len(candidates))
	for i, date := range candidates {
		batch = append(batch, Instance{
			ID:             g.idGenerator(),
			SeriesID:       series.ID,
			InstanceNumber: base + i + 1,
			ScheduledDate:  date,
			ScheduledTime:  series.StartTime,
			Status:         InstanceScheduled,
			CreatedAt:      createdAt,
			UpdatedAt:      createdAt,
		})
	}

	inserted, err := g.instances.CreateInstances(ctx, batch)
	if err != nil {
		return nil, mapRepoError(err)
	}

	created := batch
	if inserted < len(batch) {
		// A concurrent run won some dates. Keep only the rows this run wrote.
		created = created[:0]
		for _, instance := range batch {
			if _, err := g.instances.GetInstance(ctx, instance.ID); err == nil {
				created = append(created, instance)
			}
		}
		logger.Warn("duplicate scheduled dates skipped", "requested", len(batch), "created", len(created))
	}

	if len(created) > 0 {
		if err := g.series.IncrementTotal(ctx, series.ID, len(created)); err != nil {
			return nil, err
		}
		for _, instance := range created {
			g.publish(events.Event{
				Type:       events.InstanceCreated,
				SeriesID:   series.ID,
				InstanceID: instance.ID,
				OccurredAt: g.now(),
			})
		}
	}

	logger.Info("instances generated", "created", len(created))
	return created, nil
}

// GenerateUpcoming runs generation across active series, at most SeriesPerRun
// of them per invocation. One series' failure is recorded in the summary and
// never aborts the batch.
func (g *Generator) GenerateUpcoming(ctx context.Context) (GenerationSummary, error) {
	if g == nil {
		return GenerationSummary{}, fmt.Errorf("Generator is nil")
	}
	logger := serviceLogger(ctx, g.logger, "generator", "generate_upcoming")

	active, err := g.series.ListSeries(ctx, SeriesStoreFilter{Status: SeriesActive, Limit: g.config.SeriesPerRun})
	if err != nil {
		return GenerationSummary{}, err
	}

	summary := GenerationSummary{}
	for _, series := range active {
		created, err := g.GenerateForSeries(ctx, series.ID)
		summary.SeriesProcessed++
		if err != nil {
			summary.Errors = append(summary.Errors, GenerationError{SeriesID: series.ID, Err: err})
			logger.Error("generation failed for series", "series_id", series.ID, "error", err, "error_kind", ErrorKind(err))
			continue
		}
		summary.InstancesCreated += len(created)
	}

	logger.Info("generation run finished",
		"series_processed", summary.SeriesProcessed,
		"instances_created", summary.InstancesCreated,
		"failures", len(summary.Errors),
	)
	return summary, nil
}

func (g *Generator) publish(event events.Event) {
	if g.publisher == nil {
		return
	}
	g.publisher.Publish(event)
}
