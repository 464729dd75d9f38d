package clientcache

import (
	"context"
	"errors"
	"time"

	"github.com/example/weekwise/internal/calendar"
	"github.com/example/weekwise/internal/client"
)

// CreateRule shows a provisional slot in every cached week, asks the server
// to create the rule and then refetches every cached week.
//
// A week receives a provisional slot only when its date for dayOfWeek is on
// or after the rule's first upcoming occurrence and that date holds fewer
// than two slots.
func (c *Cache) CreateRule(ctx context.Context, dayOfWeek int, startTime, endTime string) (client.CreatedRule, error) {
	if c.isClosed() {
		return client.CreatedRule{}, ErrClosed
	}

	if dayOfWeek >= int(time.Sunday) && dayOfWeek <= int(time.Saturday) {
		c.addProvisional(time.Weekday(dayOfWeek), startTime, endTime)
	}

	rule, err := c.backend.CreateRule(ctx, dayOfWeek, startTime, endTime)
	return rule, errors.Join(err, c.settle(ctx))
}

func (c *Cache) addProvisional(day time.Weekday, startTime, endTime string) {
	firstOccurrence := calendar.NextOnOrAfter(c.today(), day)

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, week := range c.Weeks() {
		start, err := calendar.ParseDate(week)
		if err != nil {
			continue
		}
		date := calendar.NextOnOrAfter(start, day)
		if date.Before(firstOccurrence) {
			continue
		}
		key := date.String()
		c.patchLocked(week, func(slots []client.Slot) []client.Slot {
			count := 0
			for _, slot := range slots {
				if slot.Date == key {
					count++
				}
			}
			if count >= maxSlotsPerDate {
				return slots
			}
			slots = append(slots, client.Slot{
				ID:         provisionalPrefix + c.newID(),
				ScheduleID: ProvisionalScheduleID,
				Date:       key,
				StartTime:  startTime,
				EndTime:    endTime,
			})
			sortSlots(slots)
			return slots
		})
	}
}

// UpdateSlot shows the new times for (ruleID, date) in every cached week,
// asks the server to override the occurrence and then refetches.
func (c *Cache) UpdateSlot(ctx context.Context, ruleID, date, startTime, endTime string) (client.Exception, error) {
	if isProvisionalRule(ruleID) {
		return client.Exception{}, ErrProvisionalSlot
	}
	if c.isClosed() {
		return client.Exception{}, ErrClosed
	}

	c.patchAll(func(slots []client.Slot) []client.Slot {
		for i := range slots {
			if slots[i].ScheduleID == ruleID && slots[i].Date == date {
				slots[i].StartTime = startTime
				slots[i].EndTime = endTime
				slots[i].IsException = true
			}
		}
		return slots
	})

	exception, err := c.backend.UpdateSlot(ctx, ruleID, date, startTime, endTime)
	return exception, errors.Join(err, c.settle(ctx))
}

// DeleteSlotOccurrence hides (ruleID, date) in every cached week, asks the
// server to cancel the occurrence and then refetches.
func (c *Cache) DeleteSlotOccurrence(ctx context.Context, ruleID, date string) (client.Exception, error) {
	if isProvisionalRule(ruleID) {
		return client.Exception{}, ErrProvisionalSlot
	}
	if c.isClosed() {
		return client.Exception{}, ErrClosed
	}

	c.patchAll(func(slots []client.Slot) []client.Slot {
		return removeSlots(slots, func(slot client.Slot) bool {
			return slot.ScheduleID == ruleID && slot.Date == date
		})
	})

	exception, err := c.backend.DeleteSlotOccurrence(ctx, ruleID, date)
	return exception, errors.Join(err, c.settle(ctx))
}

// DeleteRule hides every slot of ruleID, asks the server to deactivate the
// rule and then refetches.
func (c *Cache) DeleteRule(ctx context.Context, ruleID string) error {
	if isProvisionalRule(ruleID) {
		return ErrProvisionalSlot
	}
	if c.isClosed() {
		return ErrClosed
	}

	c.patchAll(func(slots []client.Slot) []client.Slot {
		return removeSlots(slots, func(slot client.Slot) bool {
			return slot.ScheduleID == ruleID
		})
	})

	err := c.backend.DeleteRule(ctx, ruleID)
	return errors.Join(err, c.settle(ctx))
}

func (c *Cache) patchAll(fn func([]client.Slot) []client.Slot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, week := range c.Weeks() {
		c.patchLocked(week, fn)
	}
}

func removeSlots(slots []client.Slot, drop func(client.Slot) bool) []client.Slot {
	kept := slots[:0]
	for _, slot := range slots {
		if !drop(slot) {
			kept = append(kept, slot)
		}
	}
	return kept
}
