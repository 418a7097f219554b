package testfixtures

import (
	"log/slog"
	"time"

	"github.com/example/recurring-bookings/internal/application"
	"github.com/example/recurring-bookings/internal/pattern"
)

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// SeriesServiceDeps captures dependencies for constructing a series service.
type SeriesServiceDeps struct {
	Series     application.SeriesStore
	Exclusions application.ExclusionStore
	Bookings   application.BookingDirectory
	Registry   *pattern.Registry
	Publisher  application.EventPublisher
	Defaults   application.SeriesDefaults
	Logger     *slog.Logger
}

// NewSeriesService builds a series service using the supplied dependencies
// combined with the factory defaults.
func (f *ServiceFactory) NewSeriesService(deps SeriesServiceDeps) *application.SeriesService {
	registry := deps.Registry
	if registry == nil {
		registry = pattern.Default()
	}
	return application.NewSeriesServiceWithLogger(
		deps.Series,
		deps.Exclusions,
		deps.Bookings,
		registry,
		deps.Publisher,
		deps.Defaults,
		f.IDGenerator.NextFunc(),
		f.Clock.NowFunc(),
		deps.Logger,
	)
}

// GeneratorDeps captures dependencies for constructing a generator.
type GeneratorDeps struct {
	Series    application.SeriesDirectory
	Instances application.InstanceStore
	Registry  *pattern.Registry
	Publisher application.EventPublisher
	Config    application.GeneratorConfig
	Logger    *slog.Logger
}

// NewGenerator builds a generator using the supplied dependencies combined
// with the factory defaults.
func (f *ServiceFactory) NewGenerator(deps GeneratorDeps) *application.Generator {
	registry := deps.Registry
	if registry == nil {
		registry = pattern.Default()
	}
	return application.NewGeneratorWithLogger(
		deps.Series,
		deps.Instances,
		registry,
		deps.Publisher,
		deps.Config,
		f.IDGenerator.NextFunc(),
		f.Clock.NowFunc(),
		deps.Logger,
	)
}

// InstanceServiceDeps captures dependencies for constructing an instance
// service.
type InstanceServiceDeps struct {
	Instances     application.InstanceStore
	Series        application.SeriesStore
	Bookings      application.BookingDirectory
	Publisher     application.EventPublisher
	RetentionDays int
	Logger        *slog.Logger
}

// NewInstanceService builds an instance service using the supplied
// dependencies combined with the factory defaults.
func (f *ServiceFactory) NewInstanceService(deps InstanceServiceDeps) *application.InstanceService {
	return application.NewInstanceServiceWithLogger(
		deps.Instances,
		deps.Series,
		deps.Bookings,
		deps.Publisher,
		deps.RetentionDays,
		f.Clock.NowFunc(),
		deps.Logger,
	)
}
