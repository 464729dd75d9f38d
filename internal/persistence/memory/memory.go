// Package memory provides an in-process implementation of persistence.Store.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/example/weekwise/internal/calendar"
	"github.com/example/weekwise/internal/persistence"
)

// Storage keeps rules and exceptions in maps guarded by a single lock.
type Storage struct {
	mu         sync.RWMutex
	sequence   int64
	rules      map[string]persistence.RecurrenceRule
	exceptions map[persistence.ExceptionKey]persistence.Exception
	idGen      func() string
}

var _ persistence.Store = (*Storage)(nil)

// Open returns an empty Storage. idGen names new exception rows; when nil a
// sequential generator is used.
func Open(idGen func() string) *Storage {
	s := &Storage{
		rules:      make(map[string]persistence.RecurrenceRule),
		exceptions: make(map[persistence.ExceptionKey]persistence.Exception),
	}
	if idGen == nil {
		var counter int64
		var mu sync.Mutex
		idGen = func() string {
			mu.Lock()
			defer mu.Unlock()
			counter++
			return fmt.Sprintf("exc-%d", counter)
		}
	}
	s.idGen = idGen
	return s
}

// Close releases resources held by the storage. No-op for the in-memory implementation.
func (s *Storage) Close() error {
	return nil
}

// InsertRule stores a new rule if the owner has capacity left on that day.
func (s *Storage) InsertRule(ctx context.Context, rule persistence.RecurrenceRule, maxActive int) (persistence.RecurrenceRule, error) {
	if err := ctx.Err(); err != nil {
		return persistence.RecurrenceRule{}, err
	}
	if rule.ID == "" || rule.OwnerID == "" {
		return persistence.RecurrenceRule{}, persistence.ErrConstraintViolation
	}
	if rule.End <= rule.Start {
		return persistence.RecurrenceRule{}, persistence.ErrConstraintViolation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[rule.ID]; ok {
		return persistence.RecurrenceRule{}, persistence.ErrDuplicate
	}

	if rule.Active && maxActive > 0 {
		count := 0
		for _, existing := range s.rules {
			if existing.OwnerID == rule.OwnerID && existing.DayOfWeek == rule.DayOfWeek && existing.Active {
				count++
			}
		}
		if count >= maxActive {
			return persistence.RecurrenceRule{}, persistence.ErrCapacityExceeded
		}
	}

	s.sequence++
	rule.Sequence = s.sequence
	s.rules[rule.ID] = rule
	return rule, nil
}

// GetRule retrieves a rule scoped to its owner.
func (s *Storage) GetRule(ctx context.Context, ownerID, id string) (persistence.RecurrenceRule, error) {
	if err := ctx.Err(); err != nil {
		return persistence.RecurrenceRule{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, ok := s.rules[id]
	if !ok || rule.OwnerID != ownerID {
		return persistence.RecurrenceRule{}, persistence.ErrNotFound
	}
	return rule, nil
}

// ListRules returns the owner's rules ordered by creation.
func (s *Storage) ListRules(ctx context.Context, filter persistence.RuleFilter) ([]persistence.RecurrenceRule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if filter.OwnerID == "" {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rules := make([]persistence.RecurrenceRule, 0)
	for _, rule := range s.rules {
		if rule.OwnerID != filter.OwnerID {
			continue
		}
		if filter.ActiveOnly && !rule.Active {
			continue
		}
		if filter.DayOfWeek != nil && rule.DayOfWeek != *filter.DayOfWeek {
			continue
		}
		rules = append(rules, rule)
	}
	persistence.SortRules(rules)
	return rules, nil
}

// DeactivateRule soft-deletes an owned, active rule.
func (s *Storage) DeactivateRule(ctx context.Context, ownerID, id string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rule, ok := s.rules[id]
	if !ok || rule.OwnerID != ownerID || !rule.Active {
		return persistence.ErrNotFound
	}
	rule.Active = false
	rule.UpdatedAt = at
	s.rules[id] = rule
	return nil
}

// UpsertException creates or replaces the exception keyed by (RuleID, Date).
func (s *Storage) UpsertException(ctx context.Context, exception persistence.Exception) (persistence.Exception, error) {
	if err := ctx.Err(); err != nil {
		return persistence.Exception{}, err
	}
	if exception.RuleID == "" || exception.Date.IsZero() {
		return persistence.Exception{}, persistence.ErrConstraintViolation
	}
	if exception.Override != nil && exception.Override.End <= exception.Override.Start {
		return persistence.Exception{}, persistence.ErrConstraintViolation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[exception.RuleID]; !ok {
		return persistence.Exception{}, persistence.ErrForeignKeyViolation
	}

	key := exception.Key()
	if existing, ok := s.exceptions[key]; ok {
		exception.ID = existing.ID
		exception.CreatedAt = existing.CreatedAt
	} else if exception.ID == "" {
		exception.ID = s.idGen()
	}

	stored := exception.Clone()
	s.exceptions[key] = stored
	return stored.Clone(), nil
}

// GetException returns the exception at (ruleID, date).
func (s *Storage) GetException(ctx context.Context, ruleID string, date calendar.Date) (persistence.Exception, error) {
	if err := ctx.Err(); err != nil {
		return persistence.Exception{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	exception, ok := s.exceptions[persistence.ExceptionKey{RuleID: ruleID, Date: date}]
	if !ok {
		return persistence.Exception{}, persistence.ErrNotFound
	}
	return exception.Clone(), nil
}

// ListExceptions returns exceptions for ruleIDs dated within [from, to].
func (s *Storage) ListExceptions(ctx context.Context, ruleIDs []string, from, to calendar.Date) ([]persistence.Exception, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(ruleIDs) == 0 {
		return nil, nil
	}
	wanted := make(map[string]struct{}, len(ruleIDs))
	for _, id := range ruleIDs {
		wanted[id] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]persistence.Exception, 0)
	for key, exception := range s.exceptions {
		if _, ok := wanted[key.RuleID]; !ok {
			continue
		}
		if key.Date.Before(from) || key.Date.After(to) {
			continue
		}
		out = append(out, exception.Clone())
	}
	persistence.SortExceptions(out)
	return out, nil
}
