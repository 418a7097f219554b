package config

import (
	"os"
	"strings"
	"testing"
)

var allVars = []string{
	"BOOKING_SQLITE_DSN",
	"BOOKING_LOOKAHEAD_DAYS",
	"BOOKING_DEFAULT_MAX_OCCURRENCES",
	"BOOKING_MAX_OCCURRENCES_CAP",
	"BOOKING_GENERATION_BATCH_SIZE",
	"BOOKING_SERIES_BATCH_SIZE",
	"BOOKING_RETENTION_DAYS",
	"BOOKING_GENERATION_SCHEDULE",
	"BOOKING_CLEANUP_SCHEDULE",
}

func clearEnvironment(t *testing.T) {
	t.Helper()
	for _, key := range allVars {
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("failed to unset %s: %v", key, err)
		}
	}
}

func TestLoader_ParseEnvironment(t *testing.T) {

	t.Run("applies defaults when variables are missing", func(t *testing.T) {
		clearEnvironment(t)

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}

		if cfg.SQLiteDSN != "file:bookings.db?_pragma=foreign_keys(1)" {
			t.Fatalf("unexpected default DSN: %q", cfg.SQLiteDSN)
		}
		if cfg.LookaheadDays != 60 {
			t.Fatalf("expected default lookahead 60, got %d", cfg.LookaheadDays)
		}
		if cfg.DefaultMaxOccurrences != 52 {
			t.Fatalf("expected default max occurrences 52, got %d", cfg.DefaultMaxOccurrences)
		}
		if cfg.MaxOccurrencesCap != 104 {
			t.Fatalf("expected occurrence cap 104, got %d", cfg.MaxOccurrencesCap)
		}
		if cfg.GenerationBatchSize != 100 {
			t.Fatalf("expected batch size 100, got %d", cfg.GenerationBatchSize)
		}
		if cfg.SeriesBatchSize != 500 {
			t.Fatalf("expected series batch size 500, got %d", cfg.SeriesBatchSize)
		}
		if cfg.RetentionDays != 90 {
			t.Fatalf("expected retention 90, got %d", cfg.RetentionDays)
		}
		if cfg.GenerationSchedule != "0 3 * * *" {
			t.Fatalf("unexpected generation schedule: %q", cfg.GenerationSchedule)
		}
		if cfg.CleanupSchedule != "30 3 * * *" {
			t.Fatalf("unexpected cleanup schedule: %q", cfg.CleanupSchedule)
		}
	})

	t.Run("parses overrides", func(t *testing.T) {
		clearEnvironment(t)
		t.Setenv("BOOKING_SQLITE_DSN", "file:/tmp/bookings.db")
		t.Setenv("BOOKING_LOOKAHEAD_DAYS", "30")
		t.Setenv("BOOKING_DEFAULT_MAX_OCCURRENCES", "12")
		t.Setenv("BOOKING_MAX_OCCURRENCES_CAP", "24")
		t.Setenv("BOOKING_GENERATION_BATCH_SIZE", "25")
		t.Setenv("BOOKING_SERIES_BATCH_SIZE", "50")
		t.Setenv("BOOKING_RETENTION_DAYS", "180")
		t.Setenv("BOOKING_GENERATION_SCHEDULE", "@hourly")
		t.Setenv("BOOKING_CLEANUP_SCHEDULE", "15 4 * * 0")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}

		if cfg.SQLiteDSN != "file:/tmp/bookings.db" {
			t.Fatalf("unexpected DSN: %q", cfg.SQLiteDSN)
		}
		if cfg.LookaheadDays != 30 {
			t.Fatalf("expected lookahead 30, got %d", cfg.LookaheadDays)
		}
		if cfg.DefaultMaxOccurrences != 12 || cfg.MaxOccurrencesCap != 24 {
			t.Fatalf("unexpected occurrence limits: %d / %d", cfg.DefaultMaxOccurrences, cfg.MaxOccurrencesCap)
		}
		if cfg.GenerationBatchSize != 25 {
			t.Fatalf("expected batch size 25, got %d", cfg.GenerationBatchSize)
		}
		if cfg.SeriesBatchSize != 50 {
			t.Fatalf("expected series batch size 50, got %d", cfg.SeriesBatchSize)
		}
		if cfg.RetentionDays != 180 {
			t.Fatalf("expected retention 180, got %d", cfg.RetentionDays)
		}
		if cfg.GenerationSchedule != "@hourly" {
			t.Fatalf("unexpected generation schedule: %q", cfg.GenerationSchedule)
		}
		if cfg.CleanupSchedule != "15 4 * * 0" {
			t.Fatalf("unexpected cleanup schedule: %q", cfg.CleanupSchedule)
		}
	})

	t.Run("collects every invalid value", func(t *testing.T) {
		clearEnvironment(t)
		t.Setenv("BOOKING_LOOKAHEAD_DAYS", "zero")
		t.Setenv("BOOKING_RETENTION_DAYS", "-5")
		t.Setenv("BOOKING_GENERATION_SCHEDULE", "not a cron spec")

		_, err := Load()
		if err == nil {
			t.Fatal("expected error for invalid values")
		}
		for _, name := range []string{
			"BOOKING_LOOKAHEAD_DAYS",
			"BOOKING_RETENTION_DAYS",
			"BOOKING_GENERATION_SCHEDULE",
		} {
			if !strings.Contains(err.Error(), name) {
				t.Fatalf("expected error to name %s, got %q", name, err.Error())
			}
		}
	})

	t.Run("rejects a default above the cap", func(t *testing.T) {
		clearEnvironment(t)
		t.Setenv("BOOKING_DEFAULT_MAX_OCCURRENCES", "200")
		t.Setenv("BOOKING_MAX_OCCURRENCES_CAP", "100")

		_, err := Load()
		if err == nil {
			t.Fatal("expected error when the default exceeds the cap")
		}
		if !strings.Contains(err.Error(), "BOOKING_DEFAULT_MAX_OCCURRENCES") {
			t.Fatalf("expected error to name the default variable, got %q", err.Error())
		}
	})
}
