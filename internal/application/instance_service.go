package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/recurring-bookings/internal/events"
	"github.com/example/recurring-bookings/internal/pattern"
)

// InstanceStore captures the persistence interactions for materialized
// instances.
type InstanceStore interface {
	CreateInstances(ctx context.Context, instances []Instance) (int, error)
	GetInstance(ctx context.Context, id string) (Instance, error)
	UpdateInstance(ctx context.Context, instance Instance) error
	ListInstancesForSeries(ctx context.Context, seriesID string) ([]Instance, error)
	LatestScheduledDate(ctx context.Context, seriesID string) (time.Time, bool, error)
	MaxInstanceNumber(ctx context.Context, seriesID string) (int, error)
	ListUpcomingForCustomer(ctx context.Context, customerID string, from time.Time, limit int) ([]Instance, error)
	CountByStatus(ctx context.Context, seriesID string) (map[InstanceStatus]int, error)
	DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// InstanceService owns the lifecycle of materialized instances: booking
// links, completion, skips, reschedules and retention cleanup.
type InstanceService struct {
	instances     InstanceStore
	series        SeriesStore
	bookings      BookingDirectory
	publisher     EventPublisher
	retentionDays int
	now           func() time.Time
	logger        *slog.Logger
}

// NewInstanceService wires dependencies for instance lifecycle operations.
func NewInstanceService(instances InstanceStore, series SeriesStore, bookings BookingDirectory, publisher EventPublisher, retentionDays int, now func() time.Time) *InstanceService {
	return NewInstanceServiceWithLogger(instances, series, bookings, publisher, retentionDays, now, nil)
}

// NewInstanceServiceWithLogger wires dependencies including a base logger.
func NewInstanceServiceWithLogger(instances InstanceStore, series SeriesStore, bookings BookingDirectory, publisher EventPublisher, retentionDays int, now func() time.Time, logger *slog.Logger) *InstanceService {
	if now == nil {
		now = time.Now
	}
	if retentionDays <= 0 {
		retentionDays = 90
	}
	return &InstanceService{
		instances:     instances,
		series:        series,
		bookings:      bookings,
		publisher:     publisher,
		retentionDays: retentionDays,
		now:           now,
		logger:        defaultLogger(logger),
	}
}

// GetInstance retrieves an instance by ID.
func (s *InstanceService) GetInstance(ctx context.Context, id string) (Instance, error) {
	instance, err := s.instances.GetInstance(ctx, id)
	if err != nil {
		return Instance{}, mapRepoError(err)
	}
	return instance, nil
}

// ListForSeries returns every instance of a series in date order.
func (s *InstanceService) ListForSeries(ctx context.Context, seriesID string) ([]Instance, error) {
	instances, err := s.instances.ListInstancesForSeries(ctx, seriesID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return instances, nil
}

// LinkBooking connects a scheduled instance to the booking fulfilling it.
// Both references are written: the instance records the booking, and the
// booking records the instance.
func (s *InstanceService) LinkBooking(ctx context.Context, instanceID, bookingID string) (Instance, error) {
	if s == nil {
		return Instance{}, fmt.Errorf("InstanceService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "instance", "link_booking", "instance_id", instanceID)

	instance, err := s.instances.GetInstance(ctx, instanceID)
	if err != nil {
		return Instance{}, mapRepoError(err)
	}
	if instance.Status != InstanceScheduled {
		return Instance{}, &StateError{EntityID: instance.ID, From: string(instance.Status), To: string(InstanceBooked)}
	}

	if _, err := s.bookings.GetBooking(ctx, bookingID); err != nil {
		if isNotFoundError(err) {
			vErr := &ValidationError{}
			vErr.add("booking_id", "booking does not exist")
			return Instance{}, vErr
		}
		return Instance{}, err
	}

	instance.Status = InstanceBooked
	instance.BookingID = &bookingID
	instance.UpdatedAt = s.now()
	if err := s.instances.UpdateInstance(ctx, instance); err != nil {
		return Instance{}, mapRepoError(err)
	}
	if err := s.bookings.LinkInstance(ctx, bookingID, instanceID); err != nil {
		return Instance{}, mapRepoError(err)
	}

	s.publish(events.Event{
		Type:       events.InstanceBooked,
		SeriesID:   instance.SeriesID,
		InstanceID: instance.ID,
		OccurredAt: s.now(),
		Detail:     map[string]string{"booking_id": bookingID},
	})
	logger.Info("instance linked to booking", "booking_id", bookingID)
	return instance, nil
}

// CompleteInstance resolves a scheduled or booked instance as completed and
// bumps the series completed counter.
func (s *InstanceService) CompleteInstance(ctx context.Context, id string) (Instance, error) {
	if s == nil {
		return Instance{}, fmt.Errorf("InstanceService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "instance", "complete", "instance_id", id)

	instance, err := s.instances.GetInstance(ctx, id)
	if err != nil {
		return Instance{}, mapRepoError(err)
	}
	if instance.Status != InstanceScheduled && instance.Status != InstanceBooked {
		return Instance{}, &StateError{EntityID: instance.ID, From: string(instance.Status), To: string(InstanceCompleted)}
	}

	instance.Status = InstanceCompleted
	instance.UpdatedAt = s.now()
	if err := s.instances.UpdateInstance(ctx, instance); err != nil {
		return Instance{}, mapRepoError(err)
	}
	if err := s.series.IncrementCompletedOccurrences(ctx, instance.SeriesID); err != nil {
		return Instance{}, mapRepoError(err)
	}

	s.publish(events.Event{
		Type:       events.InstanceCompleted,
		SeriesID:   instance.SeriesID,
		InstanceID: instance.ID,
		OccurredAt: s.now(),
	})
	if err := s.maybeCompleteSeries(ctx, instance.SeriesID); err != nil {
		logger.Warn("series completion check failed", "error", err)
	}
	logger.Info("instance completed")
	return instance, nil
}

// SkipInstance resolves a scheduled instance as skipped. The skipped date
// stays on record, so the slot is not regenerated and capacity is not
// refunded.
func (s *InstanceService) SkipInstance(ctx context.Context, id, reason string) (Instance, error) {
	if s == nil {
		return Instance{}, fmt.Errorf("InstanceService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "instance", "skip", "instance_id", id)

	instance, err := s.instances.GetInstance(ctx, id)
	if err != nil {
		return Instance{}, mapRepoError(err)
	}
	if instance.Status != InstanceScheduled {
		return Instance{}, &StateError{EntityID: instance.ID, From: string(instance.Status), To: string(InstanceSkipped)}
	}

	instance.Status = InstanceSkipped
	instance.Reason = reason
	instance.UpdatedAt = s.now()
	if err := s.instances.UpdateInstance(ctx, instance); err != nil {
		return Instance{}, mapRepoError(err)
	}

	s.publish(events.Event{
		Type:       events.InstanceSkipped,
		SeriesID:   instance.SeriesID,
		InstanceID: instance.ID,
		OccurredAt: s.now(),
		Detail:     map[string]string{"reason": reason},
	})
	if err := s.maybeCompleteSeries(ctx, instance.SeriesID); err != nil {
		logger.Warn("series completion check failed", "error", err)
	}
	logger.Info("instance skipped", "reason", reason)
	return instance, nil
}

// RescheduleInstance moves a scheduled instance to a new date and time. The
// original slot is recorded once: repeated reschedules keep the first
// original, never the intermediate ones.
func (s *InstanceService) RescheduleInstance(ctx context.Context, id string, newDate time.Time, newTime string) (Instance, error) {
	if s == nil {
		return Instance{}, fmt.Errorf("InstanceService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "instance", "reschedule", "instance_id", id)

	instance, err := s.instances.GetInstance(ctx, id)
	if err != nil {
		return Instance{}, mapRepoError(err)
	}
	if instance.Status != InstanceScheduled {
		return Instance{}, &StateError{EntityID: instance.ID, From: string(instance.Status), To: string(InstanceScheduled)}
	}

	if instance.OriginalDate == nil {
		originalDate := instance.ScheduledDate
		originalTime := instance.ScheduledTime
		instance.OriginalDate = &originalDate
		instance.OriginalTime = &originalTime
	}

	instance.ScheduledDate = pattern.NormalizeDate(newDate)
	if newTime != "" {
		instance.ScheduledTime = newTime
	}
	instance.UpdatedAt = s.now()
	if err := s.instances.UpdateInstance(ctx, instance); err != nil {
		return Instance{}, mapRepoError(err)
	}

	s.publish(events.Event{
		Type:       events.InstanceRescheduled,
		SeriesID:   instance.SeriesID,
		InstanceID: instance.ID,
		OccurredAt: s.now(),
		Detail:     map[string]string{"scheduled_date": instance.ScheduledDate.Format("2006-01-02")},
	})
	logger.Info("instance rescheduled", "scheduled_date", instance.ScheduledDate.Format("2006-01-02"))
	return instance, nil
}

// CancelInstance marks an unresolved instance cancelled. Cancelling an
// already cancelled instance is a no-op success.
func (s *InstanceService) CancelInstance(ctx context.Context, id, reason string) (Instance, error) {
	if s == nil {
		return Instance{}, fmt.Errorf("InstanceService is nil")
	}

	instance, err := s.instances.GetInstance(ctx, id)
	if err != nil {
		return Instance{}, mapRepoError(err)
	}
	switch instance.Status {
	case InstanceCancelled:
		return instance, nil
	case InstanceScheduled, InstanceBooked:
	default:
		return Instance{}, &StateError{EntityID: instance.ID, From: string(instance.Status), To: string(InstanceCancelled)}
	}

	instance.Status = InstanceCancelled
	instance.Reason = reason
	instance.UpdatedAt = s.now()
	if err := s.instances.UpdateInstance(ctx, instance); err != nil {
		return Instance{}, mapRepoError(err)
	}
	return instance, nil
}

// CancelOpenInstances cancels every scheduled or booked instance of a
// series. It backs the series cancellation fan-out.
func (s *InstanceService) CancelOpenInstances(ctx context.Context, seriesID, reason string) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("InstanceService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "instance", "cancel_open", "series_id", seriesID)

	instances, err := s.instances.ListInstancesForSeries(ctx, seriesID)
	if err != nil {
		return 0, mapRepoError(err)
	}

	cancelled := 0
	for _, instance := range instances {
		if instance.Status != InstanceScheduled && instance.Status != InstanceBooked {
			continue
		}
		instance.Status = InstanceCancelled
		instance.Reason = reason
		instance.UpdatedAt = s.now()
		if err := s.instances.UpdateInstance(ctx, instance); err != nil {
			return cancelled, mapRepoError(err)
		}
		cancelled++
	}

	logger.Info("open instances cancelled", "count", cancelled)
	return cancelled, nil
}

// Stats aggregates the instance counts and counters of one series.
func (s *InstanceService) Stats(ctx context.Context, seriesID string) (SeriesStats, error) {
	series, err := s.series.GetSeries(ctx, seriesID)
	if err != nil {
		return SeriesStats{}, mapRepoError(err)
	}
	counts, err := s.instances.CountByStatus(ctx, seriesID)
	if err != nil {
		return SeriesStats{}, mapRepoError(err)
	}
	return SeriesStats{
		SeriesID:             seriesID,
		Counts:               counts,
		TotalOccurrences:     series.TotalOccurrences,
		CompletedOccurrences: series.CompletedOccurrences,
		MaxOccurrences:       series.MaxOccurrences,
	}, nil
}

// UpcomingForCustomer lists the customer's unresolved instances from today
// forward.
func (s *InstanceService) UpcomingForCustomer(ctx context.Context, customerID string, limit int) ([]Instance, error) {
	from := pattern.NormalizeDate(s.now())
	instances, err := s.instances.ListUpcomingForCustomer(ctx, customerID, from, limit)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return instances, nil
}

// CleanupExpired deletes completed and skipped instances older than the
// retention window. Cancelled instances are kept for audit.
func (s *InstanceService) CleanupExpired(ctx context.Context) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("InstanceService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "instance", "cleanup")

	cutoff := pattern.NormalizeDate(s.now().AddDate(0, 0, -s.retentionDays))
	deleted, err := s.instances.DeleteResolvedBefore(ctx, cutoff)
	if err != nil {
		return 0, mapRepoError(err)
	}

	logger.Info("expired instances removed", "deleted", deleted, "cutoff", cutoff.Format("2006-01-02"))
	return deleted, nil
}

// maybeCompleteSeries flips an active series to completed once its capacity
// is fully materialized and no unresolved instances remain.
func (s *InstanceService) maybeCompleteSeries(ctx context.Context, seriesID string) error {
	series, err := s.series.GetSeries(ctx, seriesID)
	if err != nil {
		return mapRepoError(err)
	}
	if series.Status != SeriesActive || series.TotalOccurrences < series.MaxOccurrences {
		return nil
	}

	counts, err := s.instances.CountByStatus(ctx, seriesID)
	if err != nil {
		return mapRepoError(err)
	}
	if counts[InstanceScheduled] > 0 || counts[InstanceBooked] > 0 {
		return nil
	}

	series.Status = SeriesCompleted
	if _, err := s.series.UpdateSeries(ctx, series); err != nil {
		return mapRepoError(err)
	}
	s.publish(events.Event{Type: events.SeriesUpdated, SeriesID: seriesID, OccurredAt: s.now()})
	return nil
}

func (s *InstanceService) publish(event events.Event) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(event)
}
