package application

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/example/weekwise/internal/persistence"
)

func TestValidationError_Error(t *testing.T) {
	t.Parallel()

	var err *ValidationError
	if err.Error() != "" {
		t.Fatalf("expected empty string for nil error, got %q", err.Error())
	}

	empty := &ValidationError{}
	if got := empty.Error(); got != "validation failed" {
		t.Fatalf("expected generic message for empty error, got %q", got)
	}

	withFields := &ValidationError{FieldErrors: map[string]string{"startTime": "bad", "endTime": "worse"}}
	if got := withFields.Error(); got != "validation failed: endTime: worse; startTime: bad" {
		t.Fatalf("expected sorted field listing, got %q", got)
	}
}

func TestValidationError_HasErrors(t *testing.T) {
	t.Parallel()

	if (&ValidationError{}).HasErrors() {
		t.Fatalf("expected HasErrors to report false for empty error")
	}

	v := &ValidationError{}
	v.add("field", "bad")
	if !v.HasErrors() {
		t.Fatalf("expected HasErrors to report true when fields are present")
	}
}

func TestCapacityErrorMessage(t *testing.T) {
	t.Parallel()

	err := &CapacityError{OwnerID: "o", DayOfWeek: time.Monday, Limit: 2}
	if err.Error() != "Maximum 2 slots allowed per day" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestMapRepoError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   error
		want error
	}{
		{in: nil, want: nil},
		{in: persistence.ErrNotFound, want: ErrNotFound},
		{in: fmt.Errorf("wrapped: %w", persistence.ErrForeignKeyViolation), want: ErrNotFound},
		{in: persistence.ErrDuplicate, want: persistence.ErrDuplicate},
	}
	for _, tc := range cases {
		if got := mapRepoError(tc.in); !errors.Is(got, tc.want) && got != tc.want {
			t.Fatalf("mapRepoError(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
