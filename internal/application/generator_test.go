package application_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/recurring-bookings/internal/application"
	"github.com/example/recurring-bookings/internal/events"
	"github.com/example/recurring-bookings/internal/pattern"
	"github.com/example/recurring-bookings/internal/testfixtures"
)

type engineHarness struct {
	factory    *testfixtures.ServiceFactory
	series     *testfixtures.MemorySeriesStore
	exclusions *testfixtures.MemoryExclusionStore
	instances  *testfixtures.MemoryInstanceStore
	bookings   *testfixtures.MemoryBookingDirectory
	publisher  *capturingPublisher

	seriesService   *application.SeriesService
	instanceService *application.InstanceService
	generator       *application.Generator
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *capturingPublisher) Publish(event events.Event) {
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()
}

func (p *capturingPublisher) byType(eventType events.Type) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var matched []events.Event
	for _, event := range p.events {
		if event.Type == eventType {
			matched = append(matched, event)
		}
	}
	return matched
}

func newEngineHarness(t *testing.T) *engineHarness {
	t.Helper()

	h := &engineHarness{
		factory:    testfixtures.NewServiceFactory(),
		series:     testfixtures.NewMemorySeriesStore(),
		exclusions: testfixtures.NewMemoryExclusionStore(),
		instances:  testfixtures.NewMemoryInstanceStore(),
		bookings:   testfixtures.NewMemoryBookingDirectory(),
		publisher:  &capturingPublisher{},
	}

	h.seriesService = h.factory.NewSeriesService(testfixtures.SeriesServiceDeps{
		Series:     h.series,
		Exclusions: h.exclusions,
		Bookings:   h.bookings,
		Publisher:  h.publisher,
	})
	h.instanceService = h.factory.NewInstanceService(testfixtures.InstanceServiceDeps{
		Instances: h.instances,
		Series:    h.series,
		Bookings:  h.bookings,
		Publisher: h.publisher,
	})
	h.generator = h.factory.NewGenerator(testfixtures.GeneratorDeps{
		Series:    h.seriesService,
		Instances: h.instances,
		Publisher: h.publisher,
		Config:    application.GeneratorConfig{LookaheadDays: 60, BatchSize: 100},
	})
	return h
}

// createSeries seeds a master booking and creates a series through the
// service so counters start the way production writes them.
func (h *engineHarness) createSeries(t *testing.T, input application.SeriesInput) application.Series {
	t.Helper()
	booking := testfixtures.NewBookingFixture(testfixtures.WithBookingDate(input.StartDate)).Application()
	h.bookings.Add(booking)
	input.MasterBookingID = booking.ID
	series, err := h.seriesService.CreateSeries(context.Background(), input)
	if err != nil {
		t.Fatalf("CreateSeries returned error: %v", err)
	}
	return series
}

func weeklyMondayInput(maxOccurrences int) application.SeriesInput {
	fixture := testfixtures.NewSeriesFixture(testfixtures.WithSeriesMaxOccurrences(maxOccurrences))
	return fixture.Input()
}

func TestGenerateForSeriesWeeklyBudget(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	series := h.createSeries(t, weeklyMondayInput(4))

	created, err := h.generator.GenerateForSeries(context.Background(), series.ID)
	if err != nil {
		t.Fatalf("GenerateForSeries returned error: %v", err)
	}

	// The master booking is occurrence one, so a budget of four yields three
	// materialized rows on the following Mondays.
	if len(created) != 3 {
		t.Fatalf("expected 3 instances, got %d", len(created))
	}
	start := testfixtures.ReferenceDate()
	for i, instance := range created {
		wantDate := start.AddDate(0, 0, 7*(i+1))
		if !instance.ScheduledDate.Equal(wantDate) {
			t.Errorf("instance %d: expected date %s, got %s", i, wantDate.Format("2006-01-02"), instance.ScheduledDate.Format("2006-01-02"))
		}
		if instance.InstanceNumber != i+2 {
			t.Errorf("instance %d: expected number %d, got %d", i, i+2, instance.InstanceNumber)
		}
		if instance.Status != application.InstanceScheduled {
			t.Errorf("instance %d: expected scheduled status, got %s", i, instance.Status)
		}
		if instance.ScheduledTime != "09:00" {
			t.Errorf("instance %d: expected time 09:00, got %s", i, instance.ScheduledTime)
		}
	}

	updated, err := h.seriesService.GetSeries(context.Background(), series.ID)
	if err != nil {
		t.Fatalf("GetSeries returned error: %v", err)
	}
	if updated.TotalOccurrences != 4 {
		t.Fatalf("expected total occurrences 4, got %d", updated.TotalOccurrences)
	}

	if got := len(h.publisher.byType(events.InstanceCreated)); got != 3 {
		t.Fatalf("expected 3 instance.created events, got %d", got)
	}
}

func TestGenerateForSeriesIdempotent(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	series := h.createSeries(t, weeklyMondayInput(4))

	first, err := h.generator.GenerateForSeries(context.Background(), series.ID)
	if err != nil {
		t.Fatalf("first run returned error: %v", err)
	}
	second, err := h.generator.GenerateForSeries(context.Background(), series.ID)
	if err != nil {
		t.Fatalf("second run returned error: %v", err)
	}

	if len(first) != 3 {
		t.Fatalf("expected 3 instances from the first run, got %d", len(first))
	}
	if len(second) != 0 {
		t.Fatalf("expected no instances from the second run, got %d", len(second))
	}

	all, err := h.instanceService.ListForSeries(context.Background(), series.ID)
	if err != nil {
		t.Fatalf("ListForSeries returned error: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 stored instances, got %d", len(all))
	}
}

func TestGenerateForSeriesSkipsExcludedDates(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	friday := testfixtures.ReferenceDate().AddDate(0, 0, 4)
	fixture := testfixtures.NewSeriesFixture(
		testfixtures.WithSeriesPattern("daily", pattern.Options{Interval: 1}),
		testfixtures.WithSeriesStartDate(friday),
		testfixtures.WithSeriesMaxOccurrences(5),
	)
	series := h.createSeries(t, fixture.Input())

	sunday := time.Sunday
	if _, err := h.seriesService.AddExclusion(context.Background(), application.ExclusionInput{
		SeriesID: series.ID,
		Kind:     application.ExclusionWeekday,
		Weekday:  &sunday,
	}); err != nil {
		t.Fatalf("AddExclusion returned error: %v", err)
	}

	created, err := h.generator.GenerateForSeries(context.Background(), series.ID)
	if err != nil {
		t.Fatalf("GenerateForSeries returned error: %v", err)
	}

	// The Sunday after the Friday start is skipped without consuming
	// capacity, so four rows still land on the surrounding days.
	if len(created) != 4 {
		t.Fatalf("expected 4 instances, got %d", len(created))
	}
	for _, instance := range created {
		if instance.ScheduledDate.Weekday() == time.Sunday {
			t.Fatalf("generated an excluded Sunday: %s", instance.ScheduledDate.Format("2006-01-02"))
		}
	}
	last := created[len(created)-1]
	if !last.ScheduledDate.Equal(friday.AddDate(0, 0, 5)) {
		t.Fatalf("expected the run to extend past the skipped Sunday, last date %s", last.ScheduledDate.Format("2006-01-02"))
	}
}

func TestGenerateForSeriesHonorsEndDate(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	fixture := testfixtures.NewSeriesFixture(
		testfixtures.WithSeriesMaxOccurrences(10),
		testfixtures.WithSeriesEndDate(testfixtures.ReferenceDate().AddDate(0, 0, 14)),
	)
	series := h.createSeries(t, fixture.Input())

	created, err := h.generator.GenerateForSeries(context.Background(), series.ID)
	if err != nil {
		t.Fatalf("GenerateForSeries returned error: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("expected 2 instances inside the end date, got %d", len(created))
	}
}

func TestGenerateForSeriesInactiveSeries(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	series := h.createSeries(t, weeklyMondayInput(4))
	if _, err := h.seriesService.PauseSeries(context.Background(), series.ID); err != nil {
		t.Fatalf("PauseSeries returned error: %v", err)
	}

	created, err := h.generator.GenerateForSeries(context.Background(), series.ID)
	if err != nil {
		t.Fatalf("GenerateForSeries returned error: %v", err)
	}
	if len(created) != 0 {
		t.Fatalf("expected no instances for a paused series, got %d", len(created))
	}
}

func TestGenerateForSeriesExhaustedBudget(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	series := h.createSeries(t, weeklyMondayInput(1))

	created, err := h.generator.GenerateForSeries(context.Background(), series.ID)
	if err != nil {
		t.Fatalf("GenerateForSeries returned error: %v", err)
	}
	if len(created) != 0 {
		t.Fatalf("expected no instances when the master fills the budget, got %d", len(created))
	}
}

func TestGenerateForSeriesResumesFromStoredAnchor(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	series := h.createSeries(t, weeklyMondayInput(6))

	h.instances.Seed(testfixtures.NewInstanceFixture(
		testfixtures.WithInstanceSeries(series.ID),
		testfixtures.WithInstanceNumber(2),
		testfixtures.WithInstanceDate(testfixtures.ReferenceDate().AddDate(0, 0, 7)),
	).Application())
	if err := h.seriesService.IncrementTotal(context.Background(), series.ID, 1); err != nil {
		t.Fatalf("IncrementTotal returned error: %v", err)
	}

	created, err := h.generator.GenerateForSeries(context.Background(), series.ID)
	if err != nil {
		t.Fatalf("GenerateForSeries returned error: %v", err)
	}

	if len(created) != 4 {
		t.Fatalf("expected 4 instances, got %d", len(created))
	}
	if !created[0].ScheduledDate.Equal(testfixtures.ReferenceDate().AddDate(0, 0, 14)) {
		t.Fatalf("expected generation to resume after the stored anchor, got %s", created[0].ScheduledDate.Format("2006-01-02"))
	}
	if created[0].InstanceNumber != 3 {
		t.Fatalf("expected numbering to continue at 3, got %d", created[0].InstanceNumber)
	}
}

func TestGenerateUpcomingIsolatesFailures(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	healthy := h.createSeries(t, weeklyMondayInput(4))
	broken := h.createSeries(t, weeklyMondayInput(4))
	h.instances.FailForSeries(broken.ID, errors.New("storage offline"))

	summary, err := h.generator.GenerateUpcoming(context.Background())
	if err != nil {
		t.Fatalf("GenerateUpcoming returned error: %v", err)
	}

	if summary.SeriesProcessed != 2 {
		t.Fatalf("expected 2 series processed, got %d", summary.SeriesProcessed)
	}
	if summary.InstancesCreated != 3 {
		t.Fatalf("expected 3 instances created, got %d", summary.InstancesCreated)
	}
	if len(summary.Errors) != 1 {
		t.Fatalf("expected 1 recorded failure, got %d", len(summary.Errors))
	}
	if summary.Errors[0].SeriesID != broken.ID {
		t.Fatalf("expected the broken series to be recorded, got %s", summary.Errors[0].SeriesID)
	}

	stored, err := h.instanceService.ListForSeries(context.Background(), healthy.ID)
	if err != nil {
		t.Fatalf("ListForSeries returned error: %v", err)
	}
	if len(stored) != 3 {
		t.Fatalf("expected the healthy series to be generated, got %d instances", len(stored))
	}
}

func TestGenerateForSeriesUnknownPatternKey(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	series := testfixtures.NewSeriesFixture().Application()
	series.PatternKey = "lunar"
	h.series.Seed(series)

	created, err := h.generator.GenerateForSeries(context.Background(), series.ID)
	if err != nil {
		t.Fatalf("GenerateForSeries returned error: %v", err)
	}
	if len(created) != 0 {
		t.Fatalf("expected no instances for an unregistered pattern, got %d", len(created))
	}

	summary, err := h.generator.GenerateUpcoming(context.Background())
	if err != nil {
		t.Fatalf("GenerateUpcoming returned error: %v", err)
	}
	if len(summary.Errors) != 0 {
		t.Fatalf("expected an empty run rather than a recorded failure, got %v", summary.Errors)
	}
}

func TestGenerateUpcomingCapsSeriesPerRun(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	for i := 0; i < 3; i++ {
		h.createSeries(t, weeklyMondayInput(4))
	}

	capped := h.factory.NewGenerator(testfixtures.GeneratorDeps{
		Series:    h.seriesService,
		Instances: h.instances,
		Publisher: h.publisher,
		Config:    application.GeneratorConfig{LookaheadDays: 60, BatchSize: 100, SeriesPerRun: 2},
	})

	summary, err := capped.GenerateUpcoming(context.Background())
	if err != nil {
		t.Fatalf("GenerateUpcoming returned error: %v", err)
	}
	if summary.SeriesProcessed != 2 {
		t.Fatalf("expected the run to stop at 2 series, got %d", summary.SeriesProcessed)
	}
	if summary.InstancesCreated != 6 {
		t.Fatalf("expected 6 instances from the capped run, got %d", summary.InstancesCreated)
	}
}
