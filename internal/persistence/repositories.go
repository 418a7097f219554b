package persistence

import (
	"context"
	"time"
)

// SeriesFilter narrows series queries.
type SeriesFilter struct {
	Status     SeriesStatus
	CustomerID string
	Limit      int
}

// SeriesRepository stores recurring series definitions.
type SeriesRepository interface {
	CreateSeries(ctx context.Context, series Series) error
	GetSeries(ctx context.Context, id string) (Series, error)
	UpdateSeries(ctx context.Context, series Series) error
	ListSeries(ctx context.Context, filter SeriesFilter) ([]Series, error)
	// IncrementTotalOccurrences applies a relative update to the stored
	// counter; callers never read-modify-write.
	IncrementTotalOccurrences(ctx context.Context, id string, delta int) error
	// IncrementCompletedOccurrences bumps the completed counter by one.
	IncrementCompletedOccurrences(ctx context.Context, id string) error
}

// ExclusionRepository stores exclusion rules attached to series.
type ExclusionRepository interface {
	AddExclusion(ctx context.Context, exclusion Exclusion) error
	ListExclusionsForSeries(ctx context.Context, seriesID string) ([]Exclusion, error)
	DeleteExclusion(ctx context.Context, id string) error
}

// InstanceRepository stores materialized series instances.
type InstanceRepository interface {
	// CreateInstance inserts a new instance. ErrDuplicate is returned when
	// the series already has an instance on the same scheduled date.
	CreateInstance(ctx context.Context, instance Instance) error
	// CreateInstances inserts a batch of instances in one transaction and
	// returns how many rows were actually written. Instances colliding with
	// an existing scheduled date are skipped, not treated as errors.
	CreateInstances(ctx context.Context, instances []Instance) (int, error)
	GetInstance(ctx context.Context, id string) (Instance, error)
	UpdateInstance(ctx context.Context, instance Instance) error
	ListInstancesForSeries(ctx context.Context, seriesID string) ([]Instance, error)
	// LatestScheduledDate returns the maximum scheduled date persisted for
	// the series, reading the stored rows rather than any cache.
	LatestScheduledDate(ctx context.Context, seriesID string) (time.Time, bool, error)
	// MaxInstanceNumber returns the highest instance number assigned so far.
	MaxInstanceNumber(ctx context.Context, seriesID string) (int, error)
	ListUpcomingForCustomer(ctx context.Context, customerID string, from time.Time, limit int) ([]Instance, error)
	CountByStatus(ctx context.Context, seriesID string) (map[InstanceStatus]int, error)
	// DeleteResolvedBefore removes completed and skipped instances scheduled
	// before the cutoff. Cancelled rows are left in place.
	DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// BookingRepository exposes the narrow master-booking operations the engine
// consumes.
type BookingRepository interface {
	GetBooking(ctx context.Context, id string) (Booking, error)
	// SetInstanceRef writes the back-reference from a booking to the
	// instance it fulfils.
	SetInstanceRef(ctx context.Context, bookingID, instanceID string) error
}
