package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/recurring-bookings/internal/persistence"
)

// SeriesRepository implements persistence.SeriesRepository using SQLite.
type SeriesRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
}

// NewSeriesRepository creates a new SQLite series repository.
func NewSeriesRepository(pool *ConnectionPool) *SeriesRepository {
	return &SeriesRepository{pool: pool, mapper: NewErrorMapper()}
}

const seriesColumns = `id, master_booking_id, customer_id, staff_id, service_id,
	pattern_key, pattern_options, start_date, start_time, end_date, end_time,
	timezone, max_occurrences, total_occurrences, completed_occurrences,
	discount, status, metadata, created_at, updated_at`

// CreateSeries inserts a new series row.
func (r *SeriesRepository) CreateSeries(ctx context.Context, series persistence.Series) error {
	if series.ID == "" {
		return persistence.ErrConstraintViolation
	}

	metadata, err := encodeMetadata(series.Metadata)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if series.CreatedAt.IsZero() {
		series.CreatedAt = now
	}
	series.UpdatedAt = series.CreatedAt

	query := `
		INSERT INTO series (` + seriesColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.pool.db.ExecContext(ctx, query,
		series.ID,
		series.MasterBookingID,
		series.CustomerID,
		series.StaffID,
		series.ServiceID,
		series.PatternKey,
		series.PatternOptions,
		formatDate(series.StartDate),
		series.StartTime,
		nullDate(series.EndDate),
		series.EndTime,
		series.Timezone,
		series.MaxOccurrences,
		series.TotalOccurrences,
		series.CompletedOccurrences,
		nullFloat(series.Discount),
		string(series.Status),
		metadata,
		formatTimestamp(series.CreatedAt),
		formatTimestamp(series.UpdatedAt),
	)
	if err != nil {
		return r.mapper.MapError(err)
	}

	return nil
}

// GetSeries retrieves a series by ID.
func (r *SeriesRepository) GetSeries(ctx context.Context, id string) (persistence.Series, error) {
	query := `SELECT ` + seriesColumns + ` FROM series WHERE id = ?`
	row := r.pool.db.QueryRowContext(ctx, query, id)
	series, err := scanSeries(row)
	if err != nil {
		return persistence.Series{}, r.mapper.MapError(err)
	}
	return series, nil
}

// UpdateSeries rewrites the mutable columns of an existing series. Counter
// columns are excluded; those move only through the increment operations.
func (r *SeriesRepository) UpdateSeries(ctx context.Context, series persistence.Series) error {
	metadata, err := encodeMetadata(series.Metadata)
	if err != nil {
		return err
	}

	query := `
		UPDATE series
		SET pattern_options = ?, end_date = ?, end_time = ?, max_occurrences = ?,
			status = ?, metadata = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.pool.db.ExecContext(ctx, query,
		series.PatternOptions,
		nullDate(series.EndDate),
		series.EndTime,
		series.MaxOccurrences,
		string(series.Status),
		metadata,
		formatTimestamp(time.Now().UTC()),
		series.ID,
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

// ListSeries returns series matching the filter ordered by creation time.
func (r *SeriesRepository) ListSeries(ctx context.Context, filter persistence.SeriesFilter) ([]persistence.Series, error) {
	query := `SELECT ` + seriesColumns + ` FROM series`
	args := make([]any, 0, 3)
	where := ""

	if filter.Status != "" {
		where = " WHERE status = ?"
		args = append(args, string(filter.Status))
	}
	if filter.CustomerID != "" {
		if where == "" {
			where = " WHERE customer_id = ?"
		} else {
			where += " AND customer_id = ?"
		}
		args = append(args, filter.CustomerID)
	}

	query += where + " ORDER BY created_at ASC, id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := r.pool.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var result []persistence.Series
	for rows.Next() {
		series, err := scanSeries(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		result = append(result, series)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}

	return result, nil
}

// IncrementTotalOccurrences applies a relative update to the total counter.
func (r *SeriesRepository) IncrementTotalOccurrences(ctx context.Context, id string, delta int) error {
	return r.incrementCounter(ctx, id, "total_occurrences", delta)
}

// IncrementCompletedOccurrences bumps the completed counter by one.
func (r *SeriesRepository) IncrementCompletedOccurrences(ctx context.Context, id string) error {
	return r.incrementCounter(ctx, id, "completed_occurrences", 1)
}

func (r *SeriesRepository) incrementCounter(ctx context.Context, id, column string, delta int) error {
	query := fmt.Sprintf(
		"UPDATE series SET %s = %s + ?, updated_at = ? WHERE id = ?",
		column, column,
	)
	result, err := r.pool.db.ExecContext(ctx, query, delta, formatTimestamp(time.Now().UTC()), id)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSeries(row rowScanner) (persistence.Series, error) {
	var (
		series                          persistence.Series
		startDate, createdAt, updatedAt string
		endDate                         sql.NullString
		discount                        sql.NullFloat64
		status, metadata                string
	)

	err := row.Scan(
		&series.ID,
		&series.MasterBookingID,
		&series.CustomerID,
		&series.StaffID,
		&series.ServiceID,
		&series.PatternKey,
		&series.PatternOptions,
		&startDate,
		&series.StartTime,
		&endDate,
		&series.EndTime,
		&series.Timezone,
		&series.MaxOccurrences,
		&series.TotalOccurrences,
		&series.CompletedOccurrences,
		&discount,
		&status,
		&metadata,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return persistence.Series{}, err
	}

	if series.StartDate, err = parseDate(startDate); err != nil {
		return persistence.Series{}, err
	}
	if series.EndDate, err = parseNullDate(endDate); err != nil {
		return persistence.Series{}, err
	}
	if series.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return persistence.Series{}, err
	}
	if series.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return persistence.Series{}, err
	}
	if series.Metadata, err = decodeMetadata(metadata); err != nil {
		return persistence.Series{}, err
	}
	series.Discount = floatPtr(discount)
	series.Status = persistence.SeriesStatus(status)

	return series, nil
}
