package application

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	// ErrUnauthorized is returned when no owner identity accompanies a call.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrNotFound is returned when the requested rule does not exist, is
	// inactive or belongs to another owner.
	ErrNotFound = errors.New("application: not found")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	if len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for field := range v.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, field+": "+v.FieldErrors[field])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

// CapacityError reports that the owner already holds the maximum number of
// active rules for the weekday.
type CapacityError struct {
	OwnerID   string
	DayOfWeek time.Weekday
	Limit     int
}

// Error implements the error interface.
func (c *CapacityError) Error() string {
	return fmt.Sprintf("Maximum %d slots allowed per day", c.Limit)
}
