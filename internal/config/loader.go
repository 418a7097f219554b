package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"
)

// Config captures environment driven configuration values for the booking
// engine.
type Config struct {
	SQLiteDSN             string
	LookaheadDays         int
	DefaultMaxOccurrences int
	MaxOccurrencesCap     int
	GenerationBatchSize   int
	SeriesBatchSize       int
	RetentionDays         int
	GenerationSchedule    string
	CleanupSchedule       string
}

// Load parses configuration values from the current process environment.
//
// Optional fields fall back to defaults; invalid values are collected and
// reported together rather than one at a time.
func Load() (Config, error) {
	cfg := Config{
		SQLiteDSN:             "file:bookings.db?_pragma=foreign_keys(1)",
		LookaheadDays:         60,
		DefaultMaxOccurrences: 52,
		MaxOccurrencesCap:     104,
		GenerationBatchSize:   100,
		SeriesBatchSize:       500,
		RetentionDays:         90,
		GenerationSchedule:    "0 3 * * *",
		CleanupSchedule:       "30 3 * * *",
	}

	invalid := make([]string, 0, 2)

	if dsn := strings.TrimSpace(os.Getenv("BOOKING_SQLITE_DSN")); dsn != "" {
		cfg.SQLiteDSN = dsn
	}

	loadPositiveInt("BOOKING_LOOKAHEAD_DAYS", &cfg.LookaheadDays, &invalid)
	loadPositiveInt("BOOKING_DEFAULT_MAX_OCCURRENCES", &cfg.DefaultMaxOccurrences, &invalid)
	loadPositiveInt("BOOKING_MAX_OCCURRENCES_CAP", &cfg.MaxOccurrencesCap, &invalid)
	loadPositiveInt("BOOKING_GENERATION_BATCH_SIZE", &cfg.GenerationBatchSize, &invalid)
	loadPositiveInt("BOOKING_SERIES_BATCH_SIZE", &cfg.SeriesBatchSize, &invalid)
	loadPositiveInt("BOOKING_RETENTION_DAYS", &cfg.RetentionDays, &invalid)

	loadCronSpec("BOOKING_GENERATION_SCHEDULE", &cfg.GenerationSchedule, &invalid)
	loadCronSpec("BOOKING_CLEANUP_SCHEDULE", &cfg.CleanupSchedule, &invalid)

	if cfg.DefaultMaxOccurrences > cfg.MaxOccurrencesCap {
		invalid = append(invalid, "BOOKING_DEFAULT_MAX_OCCURRENCES")
	}

	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid environment variable values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

func loadPositiveInt(name string, target *int, invalid *[]string) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		*invalid = append(*invalid, name)
		return
	}
	*target = parsed
}

func loadCronSpec(name string, target *string, invalid *[]string) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return
	}
	if _, err := cron.ParseStandard(value); err != nil {
		*invalid = append(*invalid, name)
		return
	}
	*target = value
}
