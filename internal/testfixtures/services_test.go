package testfixtures

import (
	"context"
	"testing"
)

func TestServiceFactoryNewSeriesService(t *testing.T) {
	factory := NewServiceFactory()

	bookings := NewMemoryBookingDirectory()
	booking := NewBookingFixture().Application()
	bookings.Add(booking)

	svc := factory.NewSeriesService(SeriesServiceDeps{
		Series:     NewMemorySeriesStore(),
		Exclusions: NewMemoryExclusionStore(),
		Bookings:   bookings,
	})

	fixture := NewSeriesFixture(WithSeriesMasterBooking(booking.ID))
	series, err := svc.CreateSeries(context.Background(), fixture.Input())
	if err != nil {
		t.Fatalf("CreateSeries returned error: %v", err)
	}

	if series.ID != "id-1" {
		t.Fatalf("expected generated ID id-1, got %q", series.ID)
	}
	if !series.CreatedAt.Equal(factory.Clock.Current()) {
		t.Fatalf("expected timestamp %v, got %v", factory.Clock.Current(), series.CreatedAt)
	}
	if series.TotalOccurrences != 1 {
		t.Fatalf("expected total occurrences 1, got %d", series.TotalOccurrences)
	}
}
