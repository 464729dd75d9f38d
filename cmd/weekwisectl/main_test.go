package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/zalando/go-keyring"

	"github.com/example/weekwise/internal/client"
	weekhttp "github.com/example/weekwise/internal/http"
	"github.com/example/weekwise/internal/identity"
	"github.com/example/weekwise/internal/testfixtures"
)

func fixedNow() time.Time {
	return time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)
}

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
		Weeks:        weekhttp.NewWeekHandler(service, time.UTC, logger),
		Authenticate: weekhttp.RequireIdentity(resolver, logger),
	}))
	t.Cleanup(server.Close)
	return server
}

func runCLI(t *testing.T, server *httptest.Server, stdin string, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{"--server", server.URL, "--timezone", "UTC"}, args...)
	err := run(context.Background(), full, strings.NewReader(stdin), &stdout, &stderr, fixedNow)
	return stdout.String(), err
}

// addedRuleID extracts the id from "Added rule <id>: ...".
func addedRuleID(t *testing.T, output string) string {
	t.Helper()
	for _, line := range strings.Split(output, "\n") {
		if rest, ok := strings.CutPrefix(line, "Added rule "); ok {
			id, _, _ := strings.Cut(rest, ":")
			return id
		}
	}
	t.Fatalf("no rule id in output:\n%s", output)
	return ""
}

func TestRuleAndSlotCommands(t *testing.T) {
	t.Setenv("WEEKWISE_TOKEN", "")
	server := newServer(t)

	out, err := runCLI(t, server, "", "--token", "alice-token", "rules", "add", "mon", "09:00", "11:00")
	if err != nil {
		t.Fatalf("rules add: %v", err)
	}
	ruleID := addedRuleID(t, out)
	for _, want := range []string{"Week of 2024-03-04", "Mon 2024-03-04", "09:00-11:00  " + ruleID} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
	if strings.Contains(out, "(pending)") {
		t.Fatalf("reconciled week must not contain provisional slots:\n%s", out)
	}

	out, err = runCLI(t, server, "", "--token", "alice-token", "rules", "add", "1", "10:00", "12:00")
	if err != nil {
		t.Fatalf("rules add overlapping: %v", err)
	}
	if !strings.Contains(out, "warning: overlaps rule "+ruleID) {
		t.Fatalf("expected overlap warning:\n%s", out)
	}

	_, err = runCLI(t, server, "", "--token", "alice-token", "rules", "add", "monday", "13:00", "14:00")
	if err == nil || !strings.Contains(err.Error(), "Maximum 2 slots allowed per day") {
		t.Fatalf("expected capacity error, got %v", err)
	}
	if !client.IsCapacity(err) {
		t.Fatalf("capacity error should stay inspectable, got %v", err)
	}

	out, err = runCLI(t, server, "", "--token", "alice-token", "rules", "list")
	if err != nil {
		t.Fatalf("rules list: %v", err)
	}
	if !strings.Contains(out, ruleID) || !strings.Contains(out, "Mon  09:00-11:00") {
		t.Fatalf("unexpected rules listing:\n%s", out)
	}

	out, err = runCLI(t, server, "", "--token", "alice-token", "slot", "edit", ruleID, "2024-03-11", "13:00", "14:00")
	if err != nil {
		t.Fatalf("slot edit: %v", err)
	}
	if !strings.Contains(out, "13:00-14:00  "+ruleID+" (moved)") {
		t.Fatalf("expected moved slot:\n%s", out)
	}

	out, err = runCLI(t, server, "", "--token", "alice-token", "slot", "rm", ruleID, "2024-03-11")
	if err != nil {
		t.Fatalf("slot rm: %v", err)
	}
	if !strings.Contains(out, "Cancelled "+ruleID+" on 2024-03-11") || strings.Contains(out, "13:00-14:00") {
		t.Fatalf("unexpected output after cancel:\n%s", out)
	}

	out, err = runCLI(t, server, "", "--token", "alice-token", "week", "--start", "2024-03-04")
	if err != nil {
		t.Fatalf("week: %v", err)
	}
	if !strings.Contains(out, "09:00-11:00  "+ruleID) {
		t.Fatalf("cancelling next week must leave this week untouched:\n%s", out)
	}

	out, err = runCLI(t, server, "", "--token", "alice-token", "rules", "rm", ruleID)
	if err != nil {
		t.Fatalf("rules rm: %v", err)
	}
	if strings.Contains(out, "  "+ruleID) {
		t.Fatalf("deleted rule still shown:\n%s", out)
	}

	_, err = runCLI(t, server, "", "--token", "alice-token", "rules", "rm", ruleID)
	if !errors.Is(err, client.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestWeekCommandErrors(t *testing.T) {
	t.Setenv("WEEKWISE_TOKEN", "")
	server := newServer(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "bad token", args: []string{"--token", "nope", "week"}, want: "not authorized"},
		{name: "bad start", args: []string{"--token", "alice-token", "week", "--start", "04/03/2024"}, want: "invalid --start"},
		{name: "bad day", args: []string{"--token", "alice-token", "rules", "add", "someday", "09:00", "10:00"}, want: "invalid day"},
		{name: "bad timezone", args: []string{"--token", "alice-token", "--timezone", "Mars/Base", "week"}, want: "invalid timezone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, server, "", tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestRulesAddRejectsEmptyRuleID(t *testing.T) {
	t.Setenv("WEEKWISE_TOKEN", "")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusCreated)
			io.WriteString(w, "{}")
			return
		}
		io.WriteString(w, "[]")
	}))
	defer server.Close()

	out, err := runCLI(t, server, "", "--token", "alice-token", "rules", "add", "mon", "09:00", "10:00")
	if !errors.Is(err, errEmptyRule) {
		t.Fatalf("expected errEmptyRule, got %v", err)
	}
	if strings.Contains(out, "Added rule") {
		t.Fatalf("nothing must be reported as added:\n%s", out)
	}
}

func TestLoginStoresTokenInKeyring(t *testing.T) {
	keyring.MockInit()
	t.Setenv("WEEKWISE_TOKEN", "")
	server := newServer(t)

	if _, err := runCLI(t, server, "", "week"); !errors.Is(err, errNoToken) {
		t.Fatalf("expected errNoToken before login, got %v", err)
	}

	out, err := runCLI(t, server, "alice-token\n", "login")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !strings.Contains(out, "Token stored for "+server.URL) {
		t.Fatalf("unexpected login output: %s", out)
	}

	out, err = runCLI(t, server, "", "week")
	if err != nil {
		t.Fatalf("week after login: %v", err)
	}
	if !strings.Contains(out, "Week of 2024-03-04") {
		t.Fatalf("unexpected week output:\n%s", out)
	}

	if _, err := runCLI(t, server, "", "logout"); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := runCLI(t, server, "", "logout"); !errors.Is(err, errTokenNotStored) {
		t.Fatalf("expected errTokenNotStored on second logout, got %v", err)
	}
	if _, err := runCLI(t, server, "", "week"); !errors.Is(err, errNoToken) {
		t.Fatalf("expected errNoToken after logout, got %v", err)
	}
}

func TestResolveTokenPrefersExplicitValue(t *testing.T) {
	keyring.MockInit()
	if err := storeToken("http://example.test/", "stored"); err != nil {
		t.Fatalf("storeToken: %v", err)
	}

	tests := []struct {
		name     string
		explicit string
		server   string
		want     string
		wantErr  error
	}{
		{name: "explicit wins", explicit: " flag ", server: "http://example.test", want: "flag"},
		{name: "keyring fallback ignores trailing slash", server: "http://example.test", want: "stored"},
		{name: "nothing stored", server: "http://other.test", wantErr: errNoToken},
	}
	for _, tt := range tests {
		got, err := resolveToken(tt.explicit, tt.server)
		if tt.wantErr != nil {
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("%s: expected %v, got %v", tt.name, tt.wantErr, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("%s: got %q, %v", tt.name, got, err)
		}
	}

	if err := storeToken("http://example.test", "  "); err == nil {
		t.Fatalf("expected error for blank token")
	}
}

func TestParseWeekday(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    time.Weekday
		wantErr bool
	}{
		{input: "0", want: time.Sunday},
		{input: "6", want: time.Saturday},
		{input: "Mon", want: time.Monday},
		{input: "wednesday", want: time.Wednesday},
		{input: "7", wantErr: true},
		{input: "-1", wantErr: true},
		{input: "funday", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseWeekday(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("%q: expected error", tt.input)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("%q: got %v, %v", tt.input, got, err)
		}
	}
}

func TestRenderWeekMarksPendingAndMovedSlots(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	renderWeek(&buf, "2024-03-04", []client.Slot{
		{ID: "provisional-1", ScheduleID: "provisional", Date: "2024-03-04", StartTime: "09:00", EndTime: "10:00"},
		{ID: "r1:2024-03-06", ScheduleID: "r1", Date: "2024-03-06", StartTime: "13:00", EndTime: "14:00", IsException: true},
	})
	out := buf.String()

	for _, want := range []string{"Week of 2024-03-04", "Mon 2024-03-04", "09:00-10:00  provisional (pending)", "Wed 2024-03-06", "13:00-14:00  r1 (moved)", "Sun 2024-03-10"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in:\n%s", want, out)
		}
	}
	if got := strings.Count(out, "  -"); got != 5 {
		t.Fatalf("expected five empty days, got %d:\n%s", got, out)
	}
}
