package main

import (
	"testing"
	"time"

	"github.com/example/recurring-bookings/internal/application"
	"github.com/example/recurring-bookings/internal/pattern"
	"github.com/example/recurring-bookings/internal/persistence"
)

func TestSeriesConversionRoundTrip(t *testing.T) {
	end := time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC)
	series := application.Series{
		ID:              "series-1",
		MasterBookingID: "booking-1",
		CustomerID:      "customer-1",
		PatternKey:      "weekly",
		PatternOptions: pattern.Options{
			Interval: 2,
			Weekdays: []time.Weekday{time.Monday, time.Thursday},
		},
		StartDate:        time.Date(2025, time.June, 2, 0, 0, 0, 0, time.UTC),
		StartTime:        "09:00",
		EndDate:          &end,
		Timezone:         "UTC",
		MaxOccurrences:   10,
		TotalOccurrences: 1,
		Status:           application.SeriesActive,
		Metadata:         map[string]string{"source": "portal"},
	}

	model, err := toPersistenceSeries(series)
	if err != nil {
		t.Fatalf("toPersistenceSeries returned error: %v", err)
	}
	if model.PatternOptions == "" {
		t.Fatal("expected pattern options to be encoded")
	}

	restored, err := toApplicationSeries(model)
	if err != nil {
		t.Fatalf("toApplicationSeries returned error: %v", err)
	}

	if restored.PatternOptions.Interval != 2 {
		t.Fatalf("expected interval 2, got %d", restored.PatternOptions.Interval)
	}
	if len(restored.PatternOptions.Weekdays) != 2 || restored.PatternOptions.Weekdays[0] != time.Monday {
		t.Fatalf("unexpected weekdays: %v", restored.PatternOptions.Weekdays)
	}
	if restored.EndDate == nil || !restored.EndDate.Equal(end) {
		t.Fatalf("unexpected end date: %v", restored.EndDate)
	}
	if restored.Metadata["source"] != "portal" {
		t.Fatalf("unexpected metadata: %v", restored.Metadata)
	}
}

func TestSeriesConversionEmptyOptions(t *testing.T) {
	restored, err := toApplicationSeries(mustPersistenceSeries(t, application.Series{
		ID:         "series-2",
		PatternKey: "daily",
		Status:     application.SeriesActive,
	}))
	if err != nil {
		t.Fatalf("toApplicationSeries returned error: %v", err)
	}
	if restored.PatternOptions.Interval != 0 {
		t.Fatalf("expected zero interval, got %d", restored.PatternOptions.Interval)
	}
}

func TestInstanceConversionRoundTrip(t *testing.T) {
	original := time.Date(2025, time.June, 9, 0, 0, 0, 0, time.UTC)
	originalTime := "09:00"
	bookingID := "booking-9"
	instance := application.Instance{
		ID:             "instance-1",
		SeriesID:       "series-1",
		InstanceNumber: 3,
		ScheduledDate:  time.Date(2025, time.June, 11, 0, 0, 0, 0, time.UTC),
		ScheduledTime:  "10:30",
		OriginalDate:   &original,
		OriginalTime:   &originalTime,
		Status:         application.InstanceBooked,
		BookingID:      &bookingID,
	}

	restored := toApplicationInstance(toPersistenceInstance(instance))
	if restored.Status != application.InstanceBooked {
		t.Fatalf("unexpected status: %s", restored.Status)
	}
	if restored.OriginalDate == nil || !restored.OriginalDate.Equal(original) {
		t.Fatalf("unexpected original date: %v", restored.OriginalDate)
	}
	if restored.BookingID == nil || *restored.BookingID != bookingID {
		t.Fatalf("unexpected booking reference: %v", restored.BookingID)
	}
}

func mustPersistenceSeries(t *testing.T, series application.Series) persistence.Series {
	t.Helper()
	converted, err := toPersistenceSeries(series)
	if err != nil {
		t.Fatalf("toPersistenceSeries returned error: %v", err)
	}
	return converted
}
