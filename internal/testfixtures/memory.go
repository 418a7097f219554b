package testfixtures

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/recurring-bookings/internal/application"
	"github.com/example/recurring-bookings/internal/pattern"
)

// MemoryBookingDirectory is an in-memory application.BookingDirectory.
type MemoryBookingDirectory struct {
	mu       sync.Mutex
	bookings map[string]application.Booking
}

// NewMemoryBookingDirectory constructs an empty in-memory directory.
func NewMemoryBookingDirectory() *MemoryBookingDirectory {
	return &MemoryBookingDirectory{bookings: make(map[string]application.Booking)}
}

// Add seeds a booking into the directory.
func (d *MemoryBookingDirectory) Add(booking application.Booking) {
	d.mu.Lock()
	d.bookings[booking.ID] = booking
	d.mu.Unlock()
}

// GetBooking retrieves a booking by ID.
func (d *MemoryBookingDirectory) GetBooking(_ context.Context, id string) (application.Booking, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	booking, ok := d.bookings[id]
	if !ok {
		return application.Booking{}, application.ErrNotFound
	}
	return booking, nil
}

// LinkInstance writes the back-reference from a booking to an instance.
func (d *MemoryBookingDirectory) LinkInstance(_ context.Context, bookingID, instanceID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	booking, ok := d.bookings[bookingID]
	if !ok {
		return application.ErrNotFound
	}
	ref := instanceID
	booking.InstanceID = &ref
	d.bookings[bookingID] = booking
	return nil
}

// MemorySeriesStore is an in-memory application.SeriesStore.
type MemorySeriesStore struct {
	mu     sync.Mutex
	series map[string]application.Series
}

// NewMemorySeriesStore constructs an empty in-memory series store.
func NewMemorySeriesStore() *MemorySeriesStore {
	return &MemorySeriesStore{series: make(map[string]application.Series)}
}

// Seed inserts a series without the checks CreateSeries applies.
func (s *MemorySeriesStore) Seed(series application.Series) {
	s.mu.Lock()
	s.series[series.ID] = series
	s.mu.Unlock()
}

// CreateSeries stores a new series.
func (s *MemorySeriesStore) CreateSeries(_ context.Context, series application.Series) (application.Series, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.series[series.ID]; exists {
		return application.Series{}, application.ErrAlreadyExists
	}
	s.series[series.ID] = series
	return series, nil
}

// GetSeries retrieves a series by ID.
func (s *MemorySeriesStore) GetSeries(_ context.Context, id string) (application.Series, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	series, ok := s.series[id]
	if !ok {
		return application.Series{}, application.ErrNotFound
	}
	return series, nil
}

// UpdateSeries rewrites a stored series.
func (s *MemorySeriesStore) UpdateSeries(_ context.Context, series application.Series) (application.Series, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.series[series.ID]
	if !ok {
		return application.Series{}, application.ErrNotFound
	}
	series.TotalOccurrences = existing.TotalOccurrences
	series.CompletedOccurrences = existing.CompletedOccurrences
	s.series[series.ID] = series
	return series, nil
}

// ListSeries enumerates stored series matching the filter in ID order.
func (s *MemorySeriesStore) ListSeries(_ context.Context, filter application.SeriesStoreFilter) ([]application.Series, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []application.Series
	for _, series := range s.series {
		if filter.Status != "" && series.Status != filter.Status {
			continue
		}
		if filter.CustomerID != "" && series.CustomerID != filter.CustomerID {
			continue
		}
		result = append(result, series)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// IncrementTotalOccurrences applies a relative counter update.
func (s *MemorySeriesStore) IncrementTotalOccurrences(_ context.Context, id string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	series, ok := s.series[id]
	if !ok {
		return application.ErrNotFound
	}
	series.TotalOccurrences += delta
	s.series[id] = series
	return nil
}

// IncrementCompletedOccurrences bumps the completed counter by one.
func (s *MemorySeriesStore) IncrementCompletedOccurrences(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	series, ok := s.series[id]
	if !ok {
		return application.ErrNotFound
	}
	series.CompletedOccurrences++
	s.series[id] = series
	return nil
}

// MemoryExclusionStore is an in-memory application.ExclusionStore.
type MemoryExclusionStore struct {
	mu         sync.Mutex
	exclusions []application.Exclusion
}

// NewMemoryExclusionStore constructs an empty in-memory exclusion store.
func NewMemoryExclusionStore() *MemoryExclusionStore {
	return &MemoryExclusionStore{}
}

// AddExclusion stores a new exclusion rule.
func (s *MemoryExclusionStore) AddExclusion(_ context.Context, exclusion application.Exclusion) (application.Exclusion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exclusions = append(s.exclusions, exclusion)
	return exclusion, nil
}

// ListExclusionsForSeries returns the rules attached to a series.
func (s *MemoryExclusionStore) ListExclusionsForSeries(_ context.Context, seriesID string) ([]application.Exclusion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []application.Exclusion
	for _, exclusion := range s.exclusions {
		if exclusion.SeriesID == seriesID {
			result = append(result, exclusion)
		}
	}
	return result, nil
}

// MemoryInstanceStore is an in-memory application.InstanceStore. It enforces
// the same per-series scheduled-date uniqueness as the SQLite schema.
type MemoryInstanceStore struct {
	mu        sync.Mutex
	instances map[string]application.Instance
	failures  map[string]error
}

// NewMemoryInstanceStore constructs an empty in-memory instance store.
func NewMemoryInstanceStore() *MemoryInstanceStore {
	return &MemoryInstanceStore{
		instances: make(map[string]application.Instance),
		failures:  make(map[string]error),
	}
}

// FailForSeries makes reads touching the given series return err, simulating
// a storage fault scoped to one series.
func (s *MemoryInstanceStore) FailForSeries(seriesID string, err error) {
	s.mu.Lock()
	s.failures[seriesID] = err
	s.mu.Unlock()
}

// Seed inserts an instance bypassing the uniqueness check.
func (s *MemoryInstanceStore) Seed(instance application.Instance) {
	s.mu.Lock()
	s.instances[instance.ID] = instance
	s.mu.Unlock()
}

// CreateInstances stores a batch, silently skipping rows whose scheduled
// date collides with an existing row of the same series.
func (s *MemoryInstanceStore) CreateInstances(_ context.Context, batch []application.Instance) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inserted := 0
	for _, instance := range batch {
		if s.dateTakenLocked(instance.SeriesID, instance.ScheduledDate) {
			continue
		}
		s.instances[instance.ID] = instance
		inserted++
	}
	return inserted, nil
}

// GetInstance retrieves an instance by ID.
func (s *MemoryInstanceStore) GetInstance(_ context.Context, id string) (application.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	instance, ok := s.instances[id]
	if !ok {
		return application.Instance{}, application.ErrNotFound
	}
	return instance, nil
}

// UpdateInstance rewrites a stored instance.
func (s *MemoryInstanceStore) UpdateInstance(_ context.Context, instance application.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.instances[instance.ID]
	if !ok {
		return application.ErrNotFound
	}
	if !existing.ScheduledDate.Equal(instance.ScheduledDate) && s.dateTakenLocked(instance.SeriesID, instance.ScheduledDate) {
		return application.ErrAlreadyExists
	}
	s.instances[instance.ID] = instance
	return nil
}

// ListInstancesForSeries returns a series' instances in date order.
func (s *MemoryInstanceStore) ListInstancesForSeries(_ context.Context, seriesID string) ([]application.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []application.Instance
	for _, instance := range s.instances {
		if instance.SeriesID == seriesID {
			result = append(result, instance)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ScheduledDate.Before(result[j].ScheduledDate)
	})
	return result, nil
}

// LatestScheduledDate returns the maximum scheduled date of a series.
func (s *MemoryInstanceStore) LatestScheduledDate(_ context.Context, seriesID string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures[seriesID]; err != nil {
		return time.Time{}, false, err
	}
	var latest time.Time
	found := false
	for _, instance := range s.instances {
		if instance.SeriesID != seriesID {
			continue
		}
		if !found || instance.ScheduledDate.After(latest) {
			latest = instance.ScheduledDate
			found = true
		}
	}
	return latest, found, nil
}

// MaxInstanceNumber returns the highest assigned instance number.
func (s *MemoryInstanceStore) MaxInstanceNumber(_ context.Context, seriesID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	highest := 0
	for _, instance := range s.instances {
		if instance.SeriesID == seriesID && instance.InstanceNumber > highest {
			highest = instance.InstanceNumber
		}
	}
	return highest, nil
}

// ListUpcomingForCustomer is not customer-aware in memory; series ownership
// is resolved by the caller seeding only relevant instances.
func (s *MemoryInstanceStore) ListUpcomingForCustomer(_ context.Context, _ string, from time.Time, limit int) ([]application.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	day := pattern.NormalizeDate(from)
	var result []application.Instance
	for _, instance := range s.instances {
		if instance.Status != application.InstanceScheduled && instance.Status != application.InstanceBooked {
			continue
		}
		if instance.ScheduledDate.Before(day) {
			continue
		}
		result = append(result, instance)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ScheduledDate.Before(result[j].ScheduledDate)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// CountByStatus aggregates a series' instance counts by status.
func (s *MemoryInstanceStore) CountByStatus(_ context.Context, seriesID string) (map[application.InstanceStatus]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[application.InstanceStatus]int)
	for _, instance := range s.instances {
		if instance.SeriesID == seriesID {
			counts[instance.Status]++
		}
	}
	return counts, nil
}

// DeleteResolvedBefore removes completed and skipped instances scheduled
// before the cutoff.
func (s *MemoryInstanceStore) DeleteResolvedBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for id, instance := range s.instances {
		if instance.Status != application.InstanceCompleted && instance.Status != application.InstanceSkipped {
			continue
		}
		if instance.ScheduledDate.Before(cutoff) {
			delete(s.instances, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *MemoryInstanceStore) dateTakenLocked(seriesID string, date time.Time) bool {
	for _, instance := range s.instances {
		if instance.SeriesID == seriesID && instance.ScheduledDate.Equal(date) {
			return true
		}
	}
	return false
}
