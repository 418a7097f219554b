package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/recurring-bookings/internal/persistence"
)

// ExclusionRepository implements persistence.ExclusionRepository using SQLite.
type ExclusionRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
}

// NewExclusionRepository creates a new SQLite exclusion repository.
func NewExclusionRepository(pool *ConnectionPool) *ExclusionRepository {
	return &ExclusionRepository{pool: pool, mapper: NewErrorMapper()}
}

// AddExclusion inserts a new exclusion rule.
func (r *ExclusionRepository) AddExclusion(ctx context.Context, exclusion persistence.Exclusion) error {
	if exclusion.ID == "" || exclusion.SeriesID == "" {
		return persistence.ErrConstraintViolation
	}

	if exclusion.CreatedAt.IsZero() {
		exclusion.CreatedAt = time.Now().UTC()
	}

	var weekday sql.NullInt64
	if exclusion.Weekday != nil {
		weekday = sql.NullInt64{Int64: int64(*exclusion.Weekday), Valid: true}
	}

	query := `
		INSERT INTO series_exclusions (id, series_id, kind, exact_date, weekday, range_start, range_end, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.pool.db.ExecContext(ctx, query,
		exclusion.ID,
		exclusion.SeriesID,
		string(exclusion.Kind),
		nullDate(exclusion.ExactDate),
		weekday,
		nullDate(exclusion.RangeStart),
		nullDate(exclusion.RangeEnd),
		exclusion.Reason,
		formatTimestamp(exclusion.CreatedAt),
	)
	if err != nil {
		return r.mapper.MapError(err)
	}

	return nil
}

// ListExclusionsForSeries returns the exclusion rules for a series ordered by
// creation time.
func (r *ExclusionRepository) ListExclusionsForSeries(ctx context.Context, seriesID string) ([]persistence.Exclusion, error) {
	query := `
		SELECT id, series_id, kind, exact_date, weekday, range_start, range_end, reason, created_at
		FROM series_exclusions
		WHERE series_id = ?
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.pool.db.QueryContext(ctx, query, seriesID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var exclusions []persistence.Exclusion
	for rows.Next() {
		var (
			exclusion                       persistence.Exclusion
			kind, createdAt                 string
			exactDate, rangeStart, rangeEnd sql.NullString
			weekday                         sql.NullInt64
		)

		err := rows.Scan(
			&exclusion.ID,
			&exclusion.SeriesID,
			&kind,
			&exactDate,
			&weekday,
			&rangeStart,
			&rangeEnd,
			&exclusion.Reason,
			&createdAt,
		)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}

		exclusion.Kind = persistence.ExclusionKind(kind)
		if exclusion.ExactDate, err = parseNullDate(exactDate); err != nil {
			return nil, err
		}
		if exclusion.RangeStart, err = parseNullDate(rangeStart); err != nil {
			return nil, err
		}
		if exclusion.RangeEnd, err = parseNullDate(rangeEnd); err != nil {
			return nil, err
		}
		if weekday.Valid {
			day := time.Weekday(weekday.Int64)
			exclusion.Weekday = &day
		}
		if exclusion.CreatedAt, err = parseTimestamp(createdAt); err != nil {
			return nil, err
		}

		exclusions = append(exclusions, exclusion)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}

	return exclusions, nil
}

// DeleteExclusion removes an exclusion rule by ID.
func (r *ExclusionRepository) DeleteExclusion(ctx context.Context, id string) error {
	result, err := r.pool.db.ExecContext(ctx, "DELETE FROM series_exclusions WHERE id = ?", id)
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
