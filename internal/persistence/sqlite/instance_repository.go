package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/recurring-bookings/internal/persistence"
)

// InstanceRepository implements persistence.InstanceRepository using SQLite.
type InstanceRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
}

// NewInstanceRepository creates a new SQLite instance repository.
func NewInstanceRepository(pool *ConnectionPool) *InstanceRepository {
	return &InstanceRepository{pool: pool, mapper: NewErrorMapper()}
}

const instanceColumns = `id, series_id, instance_number, scheduled_date, scheduled_time,
	original_date, original_time, status, reason, booking_id, created_at, updated_at`

// CreateInstance inserts a new instance row. A second instance on the same
// date for the same series trips the storage uniqueness constraint and
// surfaces as persistence.ErrDuplicate.
func (r *InstanceRepository) CreateInstance(ctx context.Context, instance persistence.Instance) error {
	if instance.ID == "" || instance.SeriesID == "" {
		return persistence.ErrConstraintViolation
	}

	now := time.Now().UTC()
	if instance.CreatedAt.IsZero() {
		instance.CreatedAt = now
	}
	instance.UpdatedAt = instance.CreatedAt

	query := `
		INSERT INTO series_instances (` + instanceColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.pool.db.ExecContext(ctx, query,
		instance.ID,
		instance.SeriesID,
		instance.InstanceNumber,
		formatDate(instance.ScheduledDate),
		instance.ScheduledTime,
		nullDate(instance.OriginalDate),
		nullString(instance.OriginalTime),
		string(instance.Status),
		instance.Reason,
		nullString(instance.BookingID),
		formatTimestamp(instance.CreatedAt),
		formatTimestamp(instance.UpdatedAt),
	)
	if err != nil {
		return r.mapper.MapError(err)
	}

	return nil
}

// CreateInstances inserts a batch of instance rows inside one transaction.
// Rows colliding with an existing scheduled date are skipped via
// INSERT OR IGNORE, and the returned count reflects only the rows written.
func (r *InstanceRepository) CreateInstances(ctx context.Context, instances []persistence.Instance) (int, error) {
	if len(instances) == 0 {
		return 0, nil
	}

	query := `
		INSERT OR IGNORE INTO series_instances (` + instanceColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	inserted := 0
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		for _, instance := range instances {
			if instance.ID == "" || instance.SeriesID == "" {
				return persistence.ErrConstraintViolation
			}
			if instance.CreatedAt.IsZero() {
				instance.CreatedAt = now
			}
			instance.UpdatedAt = instance.CreatedAt

			result, err := tx.ExecContext(ctx, query,
				instance.ID,
				instance.SeriesID,
				instance.InstanceNumber,
				formatDate(instance.ScheduledDate),
				instance.ScheduledTime,
				nullDate(instance.OriginalDate),
				nullString(instance.OriginalTime),
				string(instance.Status),
				instance.Reason,
				nullString(instance.BookingID),
				formatTimestamp(instance.CreatedAt),
				formatTimestamp(instance.UpdatedAt),
			)
			if err != nil {
				return err
			}
			affected, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to get rows affected: %w", err)
			}
			inserted += int(affected)
		}
		return nil
	})
	if err != nil {
		return 0, r.mapper.MapError(err)
	}

	return inserted, nil
}

// GetInstance retrieves an instance by ID.
func (r *InstanceRepository) GetInstance(ctx context.Context, id string) (persistence.Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM series_instances WHERE id = ?`
	row := r.pool.db.QueryRowContext(ctx, query, id)
	instance, err := scanInstance(row)
	if err != nil {
		return persistence.Instance{}, r.mapper.MapError(err)
	}
	return instance, nil
}

// UpdateInstance rewrites the mutable columns of an existing instance.
func (r *InstanceRepository) UpdateInstance(ctx context.Context, instance persistence.Instance) error {
	query := `
		UPDATE series_instances
		SET scheduled_date = ?, scheduled_time = ?, original_date = ?, original_time = ?,
			status = ?, reason = ?, booking_id = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.pool.db.ExecContext(ctx, query,
		formatDate(instance.ScheduledDate),
		instance.ScheduledTime,
		nullDate(instance.OriginalDate),
		nullString(instance.OriginalTime),
		string(instance.Status),
		instance.Reason,
		nullString(instance.BookingID),
		formatTimestamp(time.Now().UTC()),
		instance.ID,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}

	return nil
}

// ListInstancesForSeries returns every instance of a series in date order.
func (r *InstanceRepository) ListInstancesForSeries(ctx context.Context, seriesID string) ([]persistence.Instance, error) {
	query := `
		SELECT ` + instanceColumns + `
		FROM series_instances
		WHERE series_id = ?
		ORDER BY scheduled_date ASC, id ASC
	`
	return r.queryInstances(ctx, query, seriesID)
}

// LatestScheduledDate reads the maximum persisted scheduled date for the
// series directly from storage.
func (r *InstanceRepository) LatestScheduledDate(ctx context.Context, seriesID string) (time.Time, bool, error) {
	var latest sql.NullString
	err := r.pool.db.QueryRowContext(ctx,
		"SELECT MAX(scheduled_date) FROM series_instances WHERE series_id = ?",
		seriesID,
	).Scan(&latest)
	if err != nil {
		return time.Time{}, false, r.mapper.MapError(err)
	}
	if !latest.Valid {
		return time.Time{}, false, nil
	}
	date, err := parseDate(latest.String)
	if err != nil {
		return time.Time{}, false, err
	}
	return date, true, nil
}

// MaxInstanceNumber returns the highest instance number assigned to the
// series, or zero when it has no instances.
func (r *InstanceRepository) MaxInstanceNumber(ctx context.Context, seriesID string) (int, error) {
	var highest sql.NullInt64
	err := r.pool.db.QueryRowContext(ctx,
		"SELECT MAX(instance_number) FROM series_instances WHERE series_id = ?",
		seriesID,
	).Scan(&highest)
	if err != nil {
		return 0, r.mapper.MapError(err)
	}
	if !highest.Valid {
		return 0, nil
	}
	return int(highest.Int64), nil
}

// ListUpcomingForCustomer returns unresolved instances for a customer's
// series on or after the given date.
func (r *InstanceRepository) ListUpcomingForCustomer(ctx context.Context, customerID string, from time.Time, limit int) ([]persistence.Instance, error) {
	query := `
		SELECT i.id, i.series_id, i.instance_number, i.scheduled_date, i.scheduled_time,
			i.original_date, i.original_time, i.status, i.reason, i.booking_id, i.created_at, i.updated_at
		FROM series_instances i
		JOIN series s ON s.id = i.series_id
		WHERE s.customer_id = ?
			AND i.scheduled_date >= ?
			AND i.status IN ('scheduled', 'booked')
		ORDER BY i.scheduled_date ASC, i.id ASC
	`
	args := []any{customerID, formatDate(from)}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return r.queryInstances(ctx, query, args...)
}

// CountByStatus aggregates instance counts for a series grouped by status.
func (r *InstanceRepository) CountByStatus(ctx context.Context, seriesID string) (map[persistence.InstanceStatus]int, error) {
	rows, err := r.pool.db.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM series_instances WHERE series_id = ? GROUP BY status",
		seriesID,
	)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	counts := make(map[persistence.InstanceStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, r.mapper.MapError(err)
		}
		counts[persistence.InstanceStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}

	return counts, nil
}

// DeleteResolvedBefore removes completed and skipped instances scheduled
// before the cutoff. Cancelled instances are left untouched.
func (r *InstanceRepository) DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := r.pool.db.ExecContext(ctx,
		"DELETE FROM series_instances WHERE status IN ('completed', 'skipped') AND scheduled_date < ?",
		formatDate(cutoff),
	)
	if err != nil {
		return 0, r.mapper.MapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(affected), nil
}

func (r *InstanceRepository) queryInstances(ctx context.Context, query string, args ...any) ([]persistence.Instance, error) {
	rows, err := r.pool.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var instances []persistence.Instance
	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		instances = append(instances, instance)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}

	return instances, nil
}

func scanInstance(row rowScanner) (persistence.Instance, error) {
	var (
		instance                            persistence.Instance
		scheduledDate, createdAt, updatedAt string
		originalDate, originalTime          sql.NullString
		status                              string
		bookingID                           sql.NullString
	)

	err := row.Scan(
		&instance.ID,
		&instance.SeriesID,
		&instance.InstanceNumber,
		&scheduledDate,
		&instance.ScheduledTime,
		&originalDate,
		&originalTime,
		&status,
		&instance.Reason,
		&bookingID,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return persistence.Instance{}, err
	}

	if instance.ScheduledDate, err = parseDate(scheduledDate); err != nil {
		return persistence.Instance{}, err
	}
	if instance.OriginalDate, err = parseNullDate(originalDate); err != nil {
		return persistence.Instance{}, err
	}
	if instance.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return persistence.Instance{}, err
	}
	if instance.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return persistence.Instance{}, err
	}
	instance.OriginalTime = stringPtr(originalTime)
	instance.BookingID = stringPtr(bookingID)
	instance.Status = persistence.InstanceStatus(status)

	return instance, nil
}
