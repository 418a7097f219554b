package application

import (
	"time"

	"github.com/example/recurring-bookings/internal/pattern"
)

// SeriesStatus enumerates the lifecycle states of a recurring series.
type SeriesStatus string

// Series lifecycle states.
const (
	SeriesActive    SeriesStatus = "active"
	SeriesPaused    SeriesStatus = "paused"
	SeriesCancelled SeriesStatus = "cancelled"
	SeriesCompleted SeriesStatus = "completed"
)

// InstanceStatus enumerates the lifecycle states of a scheduled instance.
type InstanceStatus string

// Instance lifecycle states.
const (
	InstanceScheduled InstanceStatus = "scheduled"
	InstanceBooked    InstanceStatus = "booked"
	InstanceCompleted InstanceStatus = "completed"
	InstanceSkipped   InstanceStatus = "skipped"
	InstanceCancelled InstanceStatus = "cancelled"
)

// ExclusionKind enumerates the supported exclusion rule shapes.
type ExclusionKind string

// Exclusion rule kinds.
const (
	ExclusionDate    ExclusionKind = "date"
	ExclusionWeekday ExclusionKind = "weekday"
	ExclusionRange   ExclusionKind = "range"
)

// Series is a recurring booking definition. The master booking itself counts
// as occurrence number one and is never materialized as an instance.
type Series struct {
	ID                   string
	MasterBookingID      string
	CustomerID           string
	StaffID              string
	ServiceID            string
	PatternKey           string
	PatternOptions       pattern.Options
	StartDate            time.Time
	StartTime            string
	EndDate              *time.Time
	EndTime              string
	Timezone             string
	MaxOccurrences       int
	TotalOccurrences     int
	CompletedOccurrences int
	Discount             *float64
	Status               SeriesStatus
	Metadata             map[string]string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Exclusion removes candidate dates from a series during materialization.
type Exclusion struct {
	ID         string
	SeriesID   string
	Kind       ExclusionKind
	ExactDate  *time.Time
	Weekday    *time.Weekday
	RangeStart *time.Time
	RangeEnd   *time.Time
	Reason     string
	CreatedAt  time.Time
}

// Instance is one materialized occurrence of a series.
type Instance struct {
	ID             string
	SeriesID       string
	InstanceNumber int
	ScheduledDate  time.Time
	ScheduledTime  string
	OriginalDate   *time.Time
	OriginalTime   *string
	Status         InstanceStatus
	Reason         string
	BookingID      *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Booking is the narrow view of a master booking the engine consumes.
type Booking struct {
	ID          string
	CustomerID  string
	StaffID     string
	ServiceID   string
	BookingDate time.Time
	BookingTime string
	InstanceID  *string
}

// SeriesInput carries the caller supplied fields for series creation. Fields
// left empty are seeded from the master booking.
type SeriesInput struct {
	MasterBookingID string
	PatternKey      string
	PatternOptions  pattern.Options
	StartDate       time.Time
	StartTime       string
	EndDate         *time.Time
	EndTime         string
	Timezone        string
	MaxOccurrences  int
	Discount        *float64
	Metadata        map[string]string
}

// UpdateSeriesInput is the restricted partial update for a series. Nil
// pointers leave the corresponding field unchanged.
type UpdateSeriesInput struct {
	EndDate        *time.Time
	MaxOccurrences *int
	Status         *SeriesStatus
	PatternOptions *pattern.Options
	Metadata       map[string]string
}

// ExclusionInput carries the fields for a new exclusion rule.
type ExclusionInput struct {
	SeriesID   string
	Kind       ExclusionKind
	ExactDate  *time.Time
	Weekday    *time.Weekday
	RangeStart *time.Time
	RangeEnd   *time.Time
	Reason     string
}

// Preview is a read-only expansion of a pattern for display.
type Preview struct {
	Dates       []time.Time
	Description string
}

// SeriesStats aggregates instance counts for one series.
type SeriesStats struct {
	SeriesID             string
	Counts               map[InstanceStatus]int
	TotalOccurrences     int
	CompletedOccurrences int
	MaxOccurrences       int
}

// GenerationError records one series' failure inside a batch run.
type GenerationError struct {
	SeriesID string
	Err      error
}

// GenerationSummary reports the outcome of a batch generation run. One
// series' failure never aborts the batch; it is recorded here instead.
type GenerationSummary struct {
	SeriesProcessed  int
	InstancesCreated int
	Errors           []GenerationError
}
