// Package clientcache keeps a consumer-side, per-week copy of expanded slots
// and applies optimistic edits before server mutations complete. Every
// mutation ends with a refetch of each cached week, so the cache converges
// to the server's view whether the mutation succeeded or not.
package clientcache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/example/weekwise/internal/calendar"
	"github.com/example/weekwise/internal/client"
)

const (
	// DefaultCapacity is the number of weeks retained before eviction.
	DefaultCapacity = 16
	// ProvisionalScheduleID marks slots that exist only locally.
	ProvisionalScheduleID = "provisional"

	provisionalPrefix = "provisional-"
	maxSlotsPerDate   = 2
	maxFetchAttempts  = 3
)

var (
	// ErrProvisionalSlot is returned when editing a slot the server has not
	// acknowledged yet.
	ErrProvisionalSlot = errors.New("clientcache: provisional slots cannot be modified")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("clientcache: closed")
)

// Fetcher loads one week of slots from the server.
type Fetcher interface {
	GetWeek(ctx context.Context, weekStart string) ([]client.Slot, error)
}

// Backend is the server surface the cache drives.
type Backend interface {
	Fetcher
	CreateRule(ctx context.Context, dayOfWeek int, startTime, endTime string) (client.CreatedRule, error)
	DeleteRule(ctx context.Context, ruleID string) error
	UpdateSlot(ctx context.Context, ruleID, date, startTime, endTime string) (client.Exception, error)
	DeleteSlotOccurrence(ctx context.Context, ruleID, date string) (client.Exception, error)
}

// Cache is one session's view of the owner's weeks. It is safe for
// concurrent use; discard it with Close on logout.
type Cache struct {
	backend Backend
	weeks   *lru.Cache[string, []client.Slot]
	fetches singleflight.Group

	// Set by New and never written again, so they are read without mu.
	now      func() time.Time
	location *time.Location
	newID    func() string

	// mu serialises read-modify-write patches against wholesale refetches.
	mu     sync.Mutex
	closed bool
	// generation counts settled server mutations. A fetch that was in
	// flight across one is not cached.
	generation uint64
}

type fetchResult struct {
	slots      []client.Slot
	generation uint64
}

// Option customises a Cache.
type Option func(*Cache) error

// WithCapacity bounds the number of cached weeks.
func WithCapacity(weeks int) Option {
	return func(c *Cache) error {
		cache, err := lru.New[string, []client.Slot](weeks)
		if err != nil {
			return fmt.Errorf("clientcache: capacity %d: %w", weeks, err)
		}
		c.weeks = cache
		return nil
	}
}

// WithClock replaces the time source deciding which dates are in the past.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) error {
		if now != nil {
			c.now = now
		}
		return nil
	}
}

// WithLocation sets where "today" begins; it should match the server's.
func WithLocation(loc *time.Location) Option {
	return func(c *Cache) error {
		if loc != nil {
			c.location = loc
		}
		return nil
	}
}

// WithIDGenerator replaces the provisional id source.
func WithIDGenerator(next func() string) Option {
	return func(c *Cache) error {
		if next != nil {
			c.newID = next
		}
		return nil
	}
}

// New builds an empty cache over backend.
func New(backend Backend, opts ...Option) (*Cache, error) {
	if backend == nil {
		return nil, errors.New("clientcache: backend is required")
	}
	c := &Cache{
		backend:  backend,
		now:      time.Now,
		location: time.Local,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.weeks == nil {
		if err := WithCapacity(DefaultCapacity)(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Close drops every cached week. Later calls fail with ErrClosed.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.weeks.Purge()
}

// Get returns a copy of the cached slots for weekStart.
func (c *Cache) Get(weekStart string) ([]client.Slot, bool) {
	slots, ok := c.weeks.Peek(weekStart)
	if !ok {
		return nil, false
	}
	return cloneSlots(slots), true
}

// Weeks lists the cached week starts in ascending order.
func (c *Cache) Weeks() []string {
	keys := c.weeks.Keys()
	sort.Strings(keys)
	return keys
}

// Invalidate forgets weekStart so the next EnsureWeek refetches it.
func (c *Cache) Invalidate(weekStart string) {
	c.weeks.Remove(weekStart)
}

// Patch rewrites the cached slots of weekStart with fn. Weeks that are not
// cached are left alone; the return value reports whether fn ran.
func (c *Cache) Patch(weekStart string, fn func([]client.Slot) []client.Slot) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.patchLocked(weekStart, fn)
}

func (c *Cache) patchLocked(weekStart string, fn func([]client.Slot) []client.Slot) bool {
	if c.closed {
		return false
	}
	slots, ok := c.weeks.Peek(weekStart)
	if !ok {
		return false
	}
	c.weeks.Add(weekStart, fn(cloneSlots(slots)))
	return true
}

// EnsureWeek returns the cached week, fetching it first when absent.
// Concurrent callers for the same week share one request.
func (c *Cache) EnsureWeek(ctx context.Context, weekStart string) ([]client.Slot, error) {
	if slots, ok := c.weeks.Get(weekStart); ok {
		return cloneSlots(slots), nil
	}
	return c.fetch(ctx, weekStart)
}

// Refresh refetches weekStart and overwrites the cached copy. A fetch of
// weekStart already in flight is joined rather than duplicated.
func (c *Cache) Refresh(ctx context.Context, weekStart string) ([]client.Slot, error) {
	return c.fetch(ctx, weekStart)
}

// fetch returns a result loaded no earlier than the last mutation settled
// before the call, joining concurrent fetches of the same week.
func (c *Cache) fetch(ctx context.Context, weekStart string) ([]client.Slot, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}
	want := c.currentGeneration()

	var res fetchResult
	for attempt := 0; attempt < maxFetchAttempts; attempt++ {
		v, err, _ := c.fetches.Do(weekStart, func() (any, error) {
			return c.load(ctx, weekStart)
		})
		if err != nil {
			return nil, err
		}
		res = v.(fetchResult)
		if res.generation >= want {
			break
		}
	}
	return cloneSlots(res.slots), nil
}

// load asks the server for weekStart and caches the answer unless a
// mutation settled while the request was in flight, in which case it asks
// again.
func (c *Cache) load(ctx context.Context, weekStart string) (fetchResult, error) {
	var res fetchResult
	for attempt := 0; attempt < maxFetchAttempts; attempt++ {
		started := c.currentGeneration()
		slots, err := c.backend.GetWeek(ctx, weekStart)
		if err != nil {
			return fetchResult{}, err
		}
		if slots == nil {
			slots = []client.Slot{}
		}
		res = fetchResult{slots: slots, generation: started}

		c.mu.Lock()
		current := c.generation == started
		if current && !c.closed {
			c.weeks.Add(weekStart, slots)
		}
		c.mu.Unlock()
		if current {
			break
		}
	}
	return res, nil
}

// settle records that a server mutation finished and refetches every
// cached week.
func (c *Cache) settle(ctx context.Context) error {
	c.mu.Lock()
	c.generation++
	c.mu.Unlock()
	return c.refreshAll(ctx)
}

func (c *Cache) currentGeneration() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

func (c *Cache) refreshAll(ctx context.Context) error {
	var errs []error
	for _, week := range c.Weeks() {
		if _, err := c.Refresh(ctx, week); err != nil {
			errs = append(errs, fmt.Errorf("refresh %s: %w", week, err))
		}
	}
	return errors.Join(errs...)
}

func (c *Cache) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// IsProvisional reports whether slot exists only in the local cache.
func IsProvisional(slot client.Slot) bool {
	return slot.ScheduleID == ProvisionalScheduleID || strings.HasPrefix(slot.ID, provisionalPrefix)
}

func isProvisionalRule(ruleID string) bool {
	return ruleID == ProvisionalScheduleID || strings.HasPrefix(ruleID, provisionalPrefix)
}

func cloneSlots(slots []client.Slot) []client.Slot {
	return append(make([]client.Slot, 0, len(slots)), slots...)
}

func sortSlots(slots []client.Slot) {
	sort.SliceStable(slots, func(i, j int) bool {
		return slots[i].Date < slots[j].Date
	})
}

// today reads only fields fixed by New and needs no lock.
func (c *Cache) today() calendar.Date {
	return calendar.Today(c.now(), c.location)
}
