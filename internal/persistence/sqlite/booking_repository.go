package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/recurring-bookings/internal/persistence"
)

// BookingRepository implements persistence.BookingRepository using SQLite.
type BookingRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
}

// NewBookingRepository creates a new SQLite booking repository.
func NewBookingRepository(pool *ConnectionPool) *BookingRepository {
	return &BookingRepository{pool: pool, mapper: NewErrorMapper()}
}

// CreateBooking inserts a booking row. The engine itself only reads bookings;
// this write path exists for wiring and tests.
func (r *BookingRepository) CreateBooking(ctx context.Context, booking persistence.Booking) error {
	if booking.ID == "" {
		return persistence.ErrConstraintViolation
	}
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO bookings (id, customer_id, staff_id, service_id, booking_date, booking_time, instance_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.pool.db.ExecContext(ctx, query,
		booking.ID,
		booking.CustomerID,
		booking.StaffID,
		booking.ServiceID,
		formatDate(booking.BookingDate),
		booking.BookingTime,
		nullString(booking.InstanceID),
		formatTimestamp(booking.CreatedAt),
	)
	if err != nil {
		return r.mapper.MapError(err)
	}

	return nil
}

// GetBooking retrieves a booking by ID.
func (r *BookingRepository) GetBooking(ctx context.Context, id string) (persistence.Booking, error) {
	query := `
		SELECT id, customer_id, staff_id, service_id, booking_date, booking_time, instance_id, created_at
		FROM bookings
		WHERE id = ?
	`

	var (
		result                 persistence.Booking
		bookingDate, createdAt string
		instanceID             sql.NullString
	)
	err := r.pool.db.QueryRowContext(ctx, query, id).Scan(
		&result.ID,
		&result.CustomerID,
		&result.StaffID,
		&result.ServiceID,
		&bookingDate,
		&result.BookingTime,
		&instanceID,
		&createdAt,
	)
	if err != nil {
		return persistence.Booking{}, r.mapper.MapError(err)
	}

	if result.BookingDate, err = parseDate(bookingDate); err != nil {
		return persistence.Booking{}, err
	}
	if result.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return persistence.Booking{}, err
	}
	result.InstanceID = stringPtr(instanceID)

	return result, nil
}

// SetInstanceRef records the instance back-reference on a booking.
func (r *BookingRepository) SetInstanceRef(ctx context.Context, bookingID, instanceID string) error {
	result, err := r.pool.db.ExecContext(ctx,
		"UPDATE bookings SET instance_id = ? WHERE id = ?",
		instanceID, bookingID,
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
