package testfixtures

import (
	"sync"
	"time"

	"github.com/example/weekwise/internal/calendar"
	"github.com/example/weekwise/internal/persistence/persistencetest"
)

// Clock provides a controllable time source for tests.
type Clock struct {
	mu      sync.Mutex
	current time.Time
}

// NewClock returns a clock initialised to the supplied time. When start is the
// zero value, persistencetest.ReferenceTime is used.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = persistencetest.ReferenceTime()
	}
	return &Clock{current: start}
}

// Now returns the current instant tracked by the clock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// NowFunc exposes Now as a function suitable for dependency injection.
func (c *Clock) NowFunc() func() time.Time {
	if c == nil {
		return time.Now
	}
	return c.Now
}

// Set updates the clock to the provided time.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.current = t
	c.mu.Unlock()
}

// Advance moves the clock forward by the provided duration and returns the
// updated time.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	c.current = c.current.Add(d)
	updated := c.current
	c.mu.Unlock()
	return updated
}

// AdvanceDays moves the clock forward by whole calendar days in loc.
func (c *Clock) AdvanceDays(n int, loc *time.Location) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if loc == nil {
		loc = time.UTC
	}
	c.current = c.current.In(loc).AddDate(0, 0, n)
	return c.current
}

// Today returns the calendar date of the clock in loc.
func (c *Clock) Today(loc *time.Location) calendar.Date {
	return calendar.Today(c.Now(), loc)
}
