package client_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/example/weekwise/internal/client"
	weekhttp "github.com/example/weekwise/internal/http"
	"github.com/example/weekwise/internal/identity"
	"github.com/example/weekwise/internal/testfixtures"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	service, _ := testfixtures.NewServiceFactory().NewMemoryScheduleService()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	resolver := identity.ResolverFunc(func(_ context.Context, token string) (string, error) {
		if token == "alice-token" {
			return "alice", nil
		}
		return "", identity.ErrUnauthenticated
	})

	server := httptest.NewServer(weekhttp.NewRouter(weekhttp.RouterConfig{
		Rules:        weekhttp.NewRuleHandler(service, logger),
		Weeks:        weekhttp.NewWeekHandler(service, nil, logger),
		Authenticate: weekhttp.RequireIdentity(resolver, logger),
	}))
	t.Cleanup(server.Close)
	return server
}

func newClient(t *testing.T, server *httptest.Server, token string) *client.Client {
	t.Helper()
	c, err := client.New(server.URL, token, client.WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatalf("client.New failed: %v", err)
	}
	return c
}

func TestClientRoundTrip(t *testing.T) {
	t.Parallel()
	server := newServer(t)
	c := newClient(t, server, "alice-token")
	ctx := context.Background()

	created, err := c.CreateRule(ctx, 1, "09:00", "11:00")
	if err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}
	if created.ID == "" || created.StartTime != "09:00" || len(created.Warnings) != 0 {
		t.Fatalf("unexpected created rule %+v", created)
	}

	overlapping, err := c.CreateRule(ctx, 1, "10:00", "12:00")
	if err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}
	if len(overlapping.Warnings) != 1 || overlapping.Warnings[0].ScheduleID != created.ID {
		t.Fatalf("expected overlap warning, got %+v", overlapping.Warnings)
	}

	if _, err := c.CreateRule(ctx, 1, "13:00", "14:00"); !client.IsCapacity(err) {
		t.Fatalf("expected capacity error, got %v", err)
	}

	rules, err := c.ListRules(ctx)
	if err != nil || len(rules) != 2 {
		t.Fatalf("expected two rules, got %+v (%v)", rules, err)
	}

	slots, err := c.GetWeek(ctx, "2024-03-04")
	if err != nil || len(slots) != 2 {
		t.Fatalf("expected two slots, got %+v (%v)", slots, err)
	}

	exception, err := c.UpdateSlot(ctx, created.ID, "2024-03-04", "10:00", "12:00")
	if err != nil || exception.StartTime == nil || *exception.StartTime != "10:00" {
		t.Fatalf("unexpected override %+v (%v)", exception, err)
	}

	cancelled, err := c.DeleteSlotOccurrence(ctx, created.ID, "2024-03-04")
	if err != nil || !cancelled.IsDeleted || cancelled.ID != exception.ID {
		t.Fatalf("unexpected cancellation %+v (%v)", cancelled, err)
	}

	if err := c.DeleteRule(ctx, created.ID); err != nil {
		t.Fatalf("DeleteRule failed: %v", err)
	}
	if err := c.DeleteRule(ctx, created.ID); !errors.Is(err, client.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestClientErrors(t *testing.T) {
	t.Parallel()
	server := newServer(t)
	ctx := context.Background()

	if _, err := newClient(t, server, "wrong").ListRules(ctx); !errors.Is(err, client.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	_, err := newClient(t, server, "alice-token").CreateRule(ctx, 1, "09:00", "09:00")
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnprocessableEntity || apiErr.Fields["endTime"] == "" {
		t.Fatalf("expected validation APIError, got %v", err)
	}
}

func TestNewRejectsRelativeURL(t *testing.T) {
	t.Parallel()

	if _, err := client.New("localhost:8080", ""); err == nil {
		t.Fatalf("expected error for relative base url")
	}
}
