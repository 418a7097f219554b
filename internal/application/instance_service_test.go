package application_test

import (
	"context"
	"errors"
	"testing"

	"github.com/example/recurring-bookings/internal/application"
	"github.com/example/recurring-bookings/internal/events"
	"github.com/example/recurring-bookings/internal/testfixtures"
)

// generateInstances creates a series and materializes its instances.
func generateInstances(t *testing.T, h *engineHarness, maxOccurrences int) (application.Series, []application.Instance) {
	t.Helper()
	series := h.createSeries(t, weeklyMondayInput(maxOccurrences))
	created, err := h.generator.GenerateForSeries(context.Background(), series.ID)
	if err != nil {
		t.Fatalf("GenerateForSeries returned error: %v", err)
	}
	return series, created
}

func TestLinkBooking(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	_, instances := generateInstances(t, h, 4)
	target := instances[0]

	booking := testfixtures.NewBookingFixture().Application()
	h.bookings.Add(booking)

	linked, err := h.instanceService.LinkBooking(context.Background(), target.ID, booking.ID)
	if err != nil {
		t.Fatalf("LinkBooking returned error: %v", err)
	}
	if linked.Status != application.InstanceBooked {
		t.Fatalf("expected booked status, got %s", linked.Status)
	}
	if linked.BookingID == nil || *linked.BookingID != booking.ID {
		t.Fatalf("expected the booking reference to be set, got %v", linked.BookingID)
	}

	stored, err := h.bookings.GetBooking(context.Background(), booking.ID)
	if err != nil {
		t.Fatalf("GetBooking returned error: %v", err)
	}
	if stored.InstanceID == nil || *stored.InstanceID != target.ID {
		t.Fatalf("expected the back-reference on the booking, got %v", stored.InstanceID)
	}
	if got := len(h.publisher.byType(events.InstanceBooked)); got != 1 {
		t.Fatalf("expected 1 instance.booked event, got %d", got)
	}
}

func TestLinkBookingUnknownBooking(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	_, instances := generateInstances(t, h, 4)

	_, err := h.instanceService.LinkBooking(context.Background(), instances[0].ID, "missing")
	var vErr *application.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestCompleteInstance(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	series, instances := generateInstances(t, h, 4)

	completed, err := h.instanceService.CompleteInstance(context.Background(), instances[0].ID)
	if err != nil {
		t.Fatalf("CompleteInstance returned error: %v", err)
	}
	if completed.Status != application.InstanceCompleted {
		t.Fatalf("expected completed status, got %s", completed.Status)
	}

	stored, err := h.seriesService.GetSeries(context.Background(), series.ID)
	if err != nil {
		t.Fatalf("GetSeries returned error: %v", err)
	}
	if stored.CompletedOccurrences != 1 {
		t.Fatalf("expected completed counter 1, got %d", stored.CompletedOccurrences)
	}
	if stored.Status != application.SeriesActive {
		t.Fatalf("series should stay active while instances remain, got %s", stored.Status)
	}
}

func TestCompletingLastInstanceCompletesSeries(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	series, instances := generateInstances(t, h, 4)

	for _, instance := range instances {
		if _, err := h.instanceService.CompleteInstance(context.Background(), instance.ID); err != nil {
			t.Fatalf("CompleteInstance returned error: %v", err)
		}
	}

	stored, err := h.seriesService.GetSeries(context.Background(), series.ID)
	if err != nil {
		t.Fatalf("GetSeries returned error: %v", err)
	}
	if stored.Status != application.SeriesCompleted {
		t.Fatalf("expected the series to complete, got %s", stored.Status)
	}
}

func TestCompleteInstanceFromTerminalState(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	_, instances := generateInstances(t, h, 4)

	if _, err := h.instanceService.SkipInstance(context.Background(), instances[0].ID, "vacation"); err != nil {
		t.Fatalf("SkipInstance returned error: %v", err)
	}

	_, err := h.instanceService.CompleteInstance(context.Background(), instances[0].ID)
	var sErr *application.StateError
	if !errors.As(err, &sErr) {
		t.Fatalf("expected StateError, got %v", err)
	}
}

func TestSkipInstance(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	_, instances := generateInstances(t, h, 4)

	skipped, err := h.instanceService.SkipInstance(context.Background(), instances[1].ID, "public holiday")
	if err != nil {
		t.Fatalf("SkipInstance returned error: %v", err)
	}
	if skipped.Status != application.InstanceSkipped {
		t.Fatalf("expected skipped status, got %s", skipped.Status)
	}
	if skipped.Reason != "public holiday" {
		t.Fatalf("expected the reason to be recorded, got %q", skipped.Reason)
	}
}

func TestSkipInstanceOnlyFromScheduled(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	_, instances := generateInstances(t, h, 4)

	booking := testfixtures.NewBookingFixture().Application()
	h.bookings.Add(booking)
	if _, err := h.instanceService.LinkBooking(context.Background(), instances[0].ID, booking.ID); err != nil {
		t.Fatalf("LinkBooking returned error: %v", err)
	}

	_, err := h.instanceService.SkipInstance(context.Background(), instances[0].ID, "too late")
	var sErr *application.StateError
	if !errors.As(err, &sErr) {
		t.Fatalf("expected StateError, got %v", err)
	}
	if sErr.From != "booked" {
		t.Fatalf("expected transition from booked, got %s", sErr.From)
	}
}

func TestRescheduleInstanceKeepsFirstOriginal(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	_, instances := generateInstances(t, h, 4)
	target := instances[0]
	firstDate := target.ScheduledDate

	moved, err := h.instanceService.RescheduleInstance(context.Background(), target.ID, firstDate.AddDate(0, 0, 1), "11:00")
	if err != nil {
		t.Fatalf("RescheduleInstance returned error: %v", err)
	}
	if moved.OriginalDate == nil || !moved.OriginalDate.Equal(firstDate) {
		t.Fatalf("expected the original date to be recorded, got %v", moved.OriginalDate)
	}
	if moved.OriginalTime == nil || *moved.OriginalTime != "09:00" {
		t.Fatalf("expected the original time to be recorded, got %v", moved.OriginalTime)
	}
	if moved.ScheduledTime != "11:00" {
		t.Fatalf("expected the new time, got %q", moved.ScheduledTime)
	}

	// A second move keeps the first original, not the intermediate slot.
	again, err := h.instanceService.RescheduleInstance(context.Background(), target.ID, firstDate.AddDate(0, 0, 2), "")
	if err != nil {
		t.Fatalf("second RescheduleInstance returned error: %v", err)
	}
	if again.OriginalDate == nil || !again.OriginalDate.Equal(firstDate) {
		t.Fatalf("expected the first original date to survive, got %v", again.OriginalDate)
	}
	if again.ScheduledTime != "11:00" {
		t.Fatalf("expected the time to carry over when omitted, got %q", again.ScheduledTime)
	}
}

func TestRescheduleInstanceDateCollision(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	_, instances := generateInstances(t, h, 4)

	_, err := h.instanceService.RescheduleInstance(context.Background(), instances[0].ID, instances[1].ScheduledDate, "")
	if !errors.Is(err, application.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestCancelInstanceIdempotent(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	_, instances := generateInstances(t, h, 4)

	first, err := h.instanceService.CancelInstance(context.Background(), instances[0].ID, "no longer needed")
	if err != nil {
		t.Fatalf("CancelInstance returned error: %v", err)
	}
	if first.Status != application.InstanceCancelled {
		t.Fatalf("expected cancelled status, got %s", first.Status)
	}

	second, err := h.instanceService.CancelInstance(context.Background(), instances[0].ID, "again")
	if err != nil {
		t.Fatalf("repeated CancelInstance returned error: %v", err)
	}
	if second.Reason != "no longer needed" {
		t.Fatalf("expected the first reason to survive, got %q", second.Reason)
	}
}

func TestCancelOpenInstances(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	series, instances := generateInstances(t, h, 5)

	if _, err := h.instanceService.CompleteInstance(context.Background(), instances[0].ID); err != nil {
		t.Fatalf("CompleteInstance returned error: %v", err)
	}

	cancelled, err := h.instanceService.CancelOpenInstances(context.Background(), series.ID, "series cancelled")
	if err != nil {
		t.Fatalf("CancelOpenInstances returned error: %v", err)
	}
	if cancelled != 3 {
		t.Fatalf("expected 3 cancelled instances, got %d", cancelled)
	}

	stats, err := h.instanceService.Stats(context.Background(), series.ID)
	if err != nil {
		t.Fatalf("Stats returned error: %v", err)
	}
	if stats.Counts[application.InstanceCompleted] != 1 {
		t.Fatalf("completed instance should be untouched, got %v", stats.Counts)
	}
	if stats.Counts[application.InstanceCancelled] != 3 {
		t.Fatalf("expected 3 cancelled instances, got %v", stats.Counts)
	}
}

func TestStats(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	series, instances := generateInstances(t, h, 4)

	if _, err := h.instanceService.CompleteInstance(context.Background(), instances[0].ID); err != nil {
		t.Fatalf("CompleteInstance returned error: %v", err)
	}
	if _, err := h.instanceService.SkipInstance(context.Background(), instances[1].ID, "away"); err != nil {
		t.Fatalf("SkipInstance returned error: %v", err)
	}

	stats, err := h.instanceService.Stats(context.Background(), series.ID)
	if err != nil {
		t.Fatalf("Stats returned error: %v", err)
	}
	if stats.Counts[application.InstanceCompleted] != 1 || stats.Counts[application.InstanceSkipped] != 1 || stats.Counts[application.InstanceScheduled] != 1 {
		t.Fatalf("unexpected counts: %v", stats.Counts)
	}
	if stats.TotalOccurrences != 4 || stats.MaxOccurrences != 4 {
		t.Fatalf("unexpected counters: total %d max %d", stats.TotalOccurrences, stats.MaxOccurrences)
	}
	if stats.CompletedOccurrences != 1 {
		t.Fatalf("expected completed counter 1, got %d", stats.CompletedOccurrences)
	}
}

func TestUpcomingForCustomer(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	series, instances := generateInstances(t, h, 4)

	if _, err := h.instanceService.SkipInstance(context.Background(), instances[0].ID, "away"); err != nil {
		t.Fatalf("SkipInstance returned error: %v", err)
	}

	upcoming, err := h.instanceService.UpcomingForCustomer(context.Background(), series.CustomerID, 10)
	if err != nil {
		t.Fatalf("UpcomingForCustomer returned error: %v", err)
	}
	if len(upcoming) != 2 {
		t.Fatalf("expected 2 unresolved instances, got %d", len(upcoming))
	}
	for i := 1; i < len(upcoming); i++ {
		if upcoming[i].ScheduledDate.Before(upcoming[i-1].ScheduledDate) {
			t.Fatal("expected upcoming instances in date order")
		}
	}
}

func TestCleanupExpired(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	series := h.createSeries(t, weeklyMondayInput(10))
	old := testfixtures.ReferenceDate().AddDate(0, 0, -200)

	h.instances.Seed(testfixtures.NewInstanceFixture(
		testfixtures.WithInstanceSeries(series.ID),
		testfixtures.WithInstanceDate(old),
		testfixtures.WithInstanceStatus(application.InstanceCompleted),
	).Application())
	h.instances.Seed(testfixtures.NewInstanceFixture(
		testfixtures.WithInstanceSeries(series.ID),
		testfixtures.WithInstanceDate(old.AddDate(0, 0, 1)),
		testfixtures.WithInstanceStatus(application.InstanceSkipped),
	).Application())
	h.instances.Seed(testfixtures.NewInstanceFixture(
		testfixtures.WithInstanceSeries(series.ID),
		testfixtures.WithInstanceDate(old.AddDate(0, 0, 2)),
		testfixtures.WithInstanceStatus(application.InstanceCancelled),
	).Application())

	deleted, err := h.instanceService.CleanupExpired(context.Background())
	if err != nil {
		t.Fatalf("CleanupExpired returned error: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 deleted instances, got %d", deleted)
	}

	remaining, err := h.instanceService.ListForSeries(context.Background(), series.ID)
	if err != nil {
		t.Fatalf("ListForSeries returned error: %v", err)
	}
	for _, instance := range remaining {
		if instance.Status == application.InstanceCompleted || instance.Status == application.InstanceSkipped {
			t.Fatalf("expected resolved instances to be removed, found %s", instance.Status)
		}
	}
}

func TestGetInstanceNotFound(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	_, err := h.instanceService.GetInstance(context.Background(), "missing")
	if !errors.Is(err, application.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGeneratedInstancesCarrySeriesTime(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	booking := testfixtures.NewBookingFixture(testfixtures.WithBookingTime("16:45")).Application()
	h.bookings.Add(booking)

	series, err := h.seriesService.CreateSeries(context.Background(), application.SeriesInput{
		MasterBookingID: booking.ID,
		PatternKey:      "weekly",
		PatternOptions:  weeklyMondayInput(4).PatternOptions,
		MaxOccurrences:  3,
	})
	if err != nil {
		t.Fatalf("CreateSeries returned error: %v", err)
	}

	created, err := h.generator.GenerateForSeries(context.Background(), series.ID)
	if err != nil {
		t.Fatalf("GenerateForSeries returned error: %v", err)
	}
	for _, instance := range created {
		if instance.ScheduledTime != "16:45" {
			t.Fatalf("expected the series time on instances, got %q", instance.ScheduledTime)
		}
	}
	if instances := len(created); instances != 2 {
		t.Fatalf("expected 2 instances for a budget of 3, got %d", instances)
	}
}
