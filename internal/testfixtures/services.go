package testfixtures

import (
	"io"
	"log/slog"
	"time"

	"github.com/example/weekwise/internal/application"
	"github.com/example/weekwise/internal/persistence"
	"github.com/example/weekwise/internal/persistence/memory"
)

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
	Location    *time.Location
	Logger      *slog.Logger
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults: the reference
// clock, "rule" ids, UTC and a discarding logger.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("rule"),
		Location:    time.UTC,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("rule")
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

// WithLocation overrides the location deciding where "today" starts.
func WithLocation(loc *time.Location) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Location = loc
	}
}

// NewScheduleService builds a schedule service over store.
func (f *ServiceFactory) NewScheduleService(store persistence.Store) *application.ScheduleService {
	return application.NewScheduleService(
		store,
		store,
		f.IDGenerator.NextFunc(),
		f.Clock.NowFunc(),
		f.Location,
		f.Logger,
	)
}

// NewMemoryScheduleService builds a schedule service over a fresh in-memory
// store and returns both.
func (f *ServiceFactory) NewMemoryScheduleService() (*application.ScheduleService, *memory.Storage) {
	store := memory.Open(NewIDGenerator("exc").NextFunc())
	return f.NewScheduleService(store), store
}
