package persistence

import "time"

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

// Series represents a recurring booking definition stored in persistence.
type Series struct {
	ID                   string
	MasterBookingID      string
	CustomerID           string
	StaffID              string
	ServiceID            string
	PatternKey           string
	PatternOptions       string
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

// Exclusion represents a rule removing candidate dates from a series.
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

// Instance represents one materialized occurrence of a series.
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

// Booking represents the narrow view of a master booking the engine needs.
type Booking struct {
	ID          string
	CustomerID  string
	StaffID     string
	ServiceID   string
	BookingDate time.Time
	BookingTime string
	InstanceID  *string
	CreatedAt   time.Time
}
