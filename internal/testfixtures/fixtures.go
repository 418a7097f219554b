package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/recurring-bookings/internal/application"
	"github.com/example/recurring-bookings/internal/pattern"
	"github.com/example/recurring-bookings/internal/persistence"
)

var (
	bookingCounter  uint64
	seriesCounter   uint64
	instanceCounter uint64
)

var referenceTime = time.Date(2025, time.June, 2, 9, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
// It falls on a Monday so weekday patterns behave predictably.
func ReferenceTime() time.Time {
	return referenceTime
}

// ReferenceDate returns the reference time truncated to midnight UTC.
func ReferenceDate() time.Time {
	return pattern.NormalizeDate(referenceTime)
}

// ----------------------------- Booking fixtures ---------------------------

// BookingFixture represents a deterministic master booking record.
type BookingFixture struct {
	ID          string
	CustomerID  string
	StaffID     string
	ServiceID   string
	BookingDate time.Time
	BookingTime string
}

// BookingOption configures the generated booking fixture.
type BookingOption func(*BookingFixture)

// NewBookingFixture returns a deterministic booking fixture with optional
// overrides.
func NewBookingFixture(opts ...BookingOption) BookingFixture {
	idx := atomic.AddUint64(&bookingCounter, 1)
	fixture := BookingFixture{
		ID:          fmt.Sprintf("booking-%03d", idx),
		CustomerID:  fmt.Sprintf("customer-%03d", idx),
		StaffID:     fmt.Sprintf("staff-%03d", idx),
		ServiceID:   fmt.Sprintf("service-%03d", idx),
		BookingDate: ReferenceDate(),
		BookingTime: "09:00",
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithBookingID overrides the generated booking ID.
func WithBookingID(id string) BookingOption {
	return func(f *BookingFixture) {
		f.ID = id
	}
}

// WithBookingCustomer sets the customer ID.
func WithBookingCustomer(id string) BookingOption {
	return func(f *BookingFixture) {
		f.CustomerID = id
	}
}

// WithBookingDate sets the booking date.
func WithBookingDate(t time.Time) BookingOption {
	return func(f *BookingFixture) {
		f.BookingDate = pattern.NormalizeDate(t)
	}
}

// WithBookingTime sets the booking time of day.
func WithBookingTime(hhmm string) BookingOption {
	return func(f *BookingFixture) {
		f.BookingTime = hhmm
	}
}

// Application returns the fixture as an application.Booking value.
func (f BookingFixture) Application() application.Booking {
	return application.Booking{
		ID:          f.ID,
		CustomerID:  f.CustomerID,
		StaffID:     f.StaffID,
		ServiceID:   f.ServiceID,
		BookingDate: f.BookingDate,
		BookingTime: f.BookingTime,
	}
}

// Persistence returns the fixture as a persistence.Booking value.
func (f BookingFixture) Persistence() persistence.Booking {
	return persistence.Booking{
		ID:          f.ID,
		CustomerID:  f.CustomerID,
		StaffID:     f.StaffID,
		ServiceID:   f.ServiceID,
		BookingDate: f.BookingDate,
		BookingTime: f.BookingTime,
		CreatedAt:   referenceTime,
	}
}

// ----------------------------- Series fixtures ----------------------------

// SeriesFixture represents a deterministic recurring series record.
type SeriesFixture struct {
	ID               string
	MasterBookingID  string
	CustomerID       string
	StaffID          string
	ServiceID        string
	PatternKey       string
	PatternOptions   pattern.Options
	StartDate        time.Time
	StartTime        string
	EndDate          *time.Time
	MaxOccurrences   int
	TotalOccurrences int
	Status           application.SeriesStatus
}

// SeriesOption configures the generated series fixture.
type SeriesOption func(*SeriesFixture)

// NewSeriesFixture returns a deterministic weekly series fixture with
// optional overrides. The default pattern is every Monday.
func NewSeriesFixture(opts ...SeriesOption) SeriesFixture {
	idx := atomic.AddUint64(&seriesCounter, 1)
	fixture := SeriesFixture{
		ID:              fmt.Sprintf("series-%03d", idx),
		MasterBookingID: fmt.Sprintf("booking-%03d", idx),
		CustomerID:      fmt.Sprintf("customer-%03d", idx),
		StaffID:         fmt.Sprintf("staff-%03d", idx),
		ServiceID:       fmt.Sprintf("service-%03d", idx),
		PatternKey:      "weekly",
		PatternOptions: pattern.Options{
			Interval: 1,
			Weekdays: []time.Weekday{time.Monday},
		},
		StartDate:        ReferenceDate(),
		StartTime:        "09:00",
		MaxOccurrences:   4,
		TotalOccurrences: 1,
		Status:           application.SeriesActive,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithSeriesID overrides the generated series ID.
func WithSeriesID(id string) SeriesOption {
	return func(f *SeriesFixture) {
		f.ID = id
	}
}

// WithSeriesPattern sets the pattern key and options.
func WithSeriesPattern(key string, opts pattern.Options) SeriesOption {
	return func(f *SeriesFixture) {
		f.PatternKey = key
		f.PatternOptions = opts
	}
}

// WithSeriesStartDate sets the series start date.
func WithSeriesStartDate(t time.Time) SeriesOption {
	return func(f *SeriesFixture) {
		f.StartDate = pattern.NormalizeDate(t)
	}
}

// WithSeriesEndDate sets the optional series end date.
func WithSeriesEndDate(t time.Time) SeriesOption {
	return func(f *SeriesFixture) {
		end := pattern.NormalizeDate(t)
		f.EndDate = &end
	}
}

// WithSeriesMaxOccurrences sets the occurrence ceiling.
func WithSeriesMaxOccurrences(count int) SeriesOption {
	return func(f *SeriesFixture) {
		f.MaxOccurrences = count
	}
}

// WithSeriesTotalOccurrences sets the materialized counter.
func WithSeriesTotalOccurrences(count int) SeriesOption {
	return func(f *SeriesFixture) {
		f.TotalOccurrences = count
	}
}

// WithSeriesStatus sets the lifecycle status.
func WithSeriesStatus(status application.SeriesStatus) SeriesOption {
	return func(f *SeriesFixture) {
		f.Status = status
	}
}

// WithSeriesMasterBooking sets the master booking reference.
func WithSeriesMasterBooking(id string) SeriesOption {
	return func(f *SeriesFixture) {
		f.MasterBookingID = id
	}
}

// Application returns the fixture as an application.Series value.
func (f SeriesFixture) Application() application.Series {
	return application.Series{
		ID:               f.ID,
		MasterBookingID:  f.MasterBookingID,
		CustomerID:       f.CustomerID,
		StaffID:          f.StaffID,
		ServiceID:        f.ServiceID,
		PatternKey:       f.PatternKey,
		PatternOptions:   f.PatternOptions,
		StartDate:        f.StartDate,
		StartTime:        f.StartTime,
		EndDate:          copyTimePtr(f.EndDate),
		Timezone:         "UTC",
		MaxOccurrences:   f.MaxOccurrences,
		TotalOccurrences: f.TotalOccurrences,
		Status:           f.Status,
		CreatedAt:        referenceTime,
		UpdatedAt:        referenceTime,
	}
}

// Input returns the fixture as an application.SeriesInput.
func (f SeriesFixture) Input() application.SeriesInput {
	return application.SeriesInput{
		MasterBookingID: f.MasterBookingID,
		PatternKey:      f.PatternKey,
		PatternOptions:  f.PatternOptions,
		StartDate:       f.StartDate,
		StartTime:       f.StartTime,
		EndDate:         copyTimePtr(f.EndDate),
		MaxOccurrences:  f.MaxOccurrences,
	}
}

// ---------------------------- Instance fixtures ---------------------------

// InstanceFixture represents a deterministic materialized instance.
type InstanceFixture struct {
	ID             string
	SeriesID       string
	InstanceNumber int
	ScheduledDate  time.Time
	ScheduledTime  string
	Status         application.InstanceStatus
}

// InstanceOption configures the generated instance fixture.
type InstanceOption func(*InstanceFixture)

// NewInstanceFixture returns a deterministic instance fixture with optional
// overrides.
func NewInstanceFixture(opts ...InstanceOption) InstanceFixture {
	idx := atomic.AddUint64(&instanceCounter, 1)
	fixture := InstanceFixture{
		ID:             fmt.Sprintf("instance-%03d", idx),
		SeriesID:       fmt.Sprintf("series-%03d", idx),
		InstanceNumber: 2,
		ScheduledDate:  ReferenceDate().AddDate(0, 0, 7),
		ScheduledTime:  "09:00",
		Status:         application.InstanceScheduled,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithInstanceID overrides the generated instance ID.
func WithInstanceID(id string) InstanceOption {
	return func(f *InstanceFixture) {
		f.ID = id
	}
}

// WithInstanceSeries sets the owning series ID.
func WithInstanceSeries(id string) InstanceOption {
	return func(f *InstanceFixture) {
		f.SeriesID = id
	}
}

// WithInstanceNumber sets the ordinal position.
func WithInstanceNumber(n int) InstanceOption {
	return func(f *InstanceFixture) {
		f.InstanceNumber = n
	}
}

// WithInstanceDate sets the scheduled date.
func WithInstanceDate(t time.Time) InstanceOption {
	return func(f *InstanceFixture) {
		f.ScheduledDate = pattern.NormalizeDate(t)
	}
}

// WithInstanceStatus sets the lifecycle status.
func WithInstanceStatus(status application.InstanceStatus) InstanceOption {
	return func(f *InstanceFixture) {
		f.Status = status
	}
}

// Application returns the fixture as an application.Instance value.
func (f InstanceFixture) Application() application.Instance {
	return application.Instance{
		ID:             f.ID,
		SeriesID:       f.SeriesID,
		InstanceNumber: f.InstanceNumber,
		ScheduledDate:  f.ScheduledDate,
		ScheduledTime:  f.ScheduledTime,
		Status:         f.Status,
		CreatedAt:      referenceTime,
		UpdatedAt:      referenceTime,
	}
}

func copyTimePtr(src *time.Time) *time.Time {
	if src == nil {
		return nil
	}
	value := *src
	return &value
}
