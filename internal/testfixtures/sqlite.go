package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/recurring-bookings/internal/persistence/sqlite"
)

// SQLiteHarness provides repository access backed by a temporary SQLite
// database for integration-style persistence tests. The fields carry the
// concrete repository types so tests can reach helper operations beyond the
// persistence interfaces, such as seeding bookings.
type SQLiteHarness struct {
	Pool       *sqlite.ConnectionPool
	Bookings   *sqlite.BookingRepository
	Series     *sqlite.SeriesRepository
	Exclusions *sqlite.ExclusionRepository
	Instances  *sqlite.InstanceRepository

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness constructs a SQLiteHarness using a temporary file that is
// migrated automatically. Cleanup is registered with the provided testing.TB.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	dir := tb.TempDir()
	path := filepath.Join(dir, "bookings.db")

	pool, err := sqlite.NewConnectionPool("file:" + path + "?_pragma=foreign_keys(1)")
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}

	if err := pool.Migrate(context.Background()); err != nil {
		_ = pool.Close()
		tb.Fatalf("failed to migrate storage: %v", err)
	}

	harness := &SQLiteHarness{
		Pool:       pool,
		Bookings:   sqlite.NewBookingRepository(pool),
		Series:     sqlite.NewSeriesRepository(pool),
		Exclusions: sqlite.NewExclusionRepository(pool),
		Instances:  sqlite.NewInstanceRepository(pool),
		cleanup: func() {
			_ = pool.Close()
		},
	}

	tb.Cleanup(harness.Close)
	return harness
}
