package main

import (
	"bufio"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/example/weekwise/internal/calendar"
	"github.com/example/weekwise/internal/client"
)

var errEmptyRule = errors.New("server accepted the rule but returned no rule id")

type LoginCmd struct {
	Credential string `arg:"" optional:"" help:"Token to store. Read from stdin when omitted."`
}

func (c *LoginCmd) Run(app *App) error {
	token := strings.TrimSpace(c.Credential)
	if token == "" {
		line, err := bufio.NewReader(app.in).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("failed to read token: %w", err)
		}
		token = strings.TrimSpace(line)
	}
	if err := storeToken(app.cli.Server, token); err != nil {
		return err
	}
	fmt.Fprintf(app.out, "Token stored for %s\n", keyringUser(app.cli.Server))
	return nil
}

type LogoutCmd struct{}

func (c *LogoutCmd) Run(app *App) error {
	if err := deleteToken(app.cli.Server); err != nil {
		return err
	}
	fmt.Fprintf(app.out, "Token removed for %s\n", keyringUser(app.cli.Server))
	return nil
}

type WeekCmd struct {
	Start string `help:"First date of the window (YYYY-MM-DD). Defaults to today."`
}

func (c *WeekCmd) Run(app *App) error {
	start, err := app.windowStart(c.Start)
	if err != nil {
		return err
	}
	_, cache, err := app.session()
	if err != nil {
		return err
	}
	slots, err := cache.EnsureWeek(app.ctx, start)
	if err != nil {
		return explain(err)
	}
	renderWeek(app.out, start, slots)
	return nil
}

type RulesAddCmd struct {
	Day   string `arg:"" help:"Day of week: 0-6 with Sunday as 0, or a name such as mon."`
	Start string `arg:"" help:"Start time (HH:MM)."`
	End   string `arg:"" help:"End time (HH:MM)."`
}

func (c *RulesAddCmd) Run(app *App) error {
	day, err := parseWeekday(c.Day)
	if err != nil {
		return err
	}
	_, cache, err := app.session()
	if err != nil {
		return err
	}

	start := app.today().String()
	if _, err := cache.EnsureWeek(app.ctx, start); err != nil {
		return explain(err)
	}

	created, err := cache.CreateRule(app.ctx, int(day), c.Start, c.End)
	switch {
	case err != nil && created.ID == "":
		return explain(err)
	case err != nil:
		app.logger.Warn("rule created but the week could not be refreshed", "error", err)
	case created.ID == "":
		return errEmptyRule
	}

	fmt.Fprintf(app.out, "Added rule %s: %s %s-%s\n", created.ID, day, created.StartTime, created.EndTime)
	renderWarnings(app.out, created.Warnings)
	return app.showCached(start)
}

type RulesListCmd struct{}

func (c *RulesListCmd) Run(app *App) error {
	api, _, err := app.session()
	if err != nil {
		return err
	}
	rules, err := api.ListRules(app.ctx)
	if err != nil {
		return explain(err)
	}
	renderRules(app.out, rules)
	return nil
}

type RulesRmCmd struct {
	ID string `arg:"" help:"Rule ID to delete."`
}

func (c *RulesRmCmd) Run(app *App) error {
	_, cache, err := app.session()
	if err != nil {
		return err
	}

	start := app.today().String()
	if _, err := cache.EnsureWeek(app.ctx, start); err != nil {
		return explain(err)
	}
	if err := cache.DeleteRule(app.ctx, c.ID); err != nil {
		return explain(err)
	}

	fmt.Fprintf(app.out, "Deleted rule %s\n", c.ID)
	return app.showCached(start)
}

type SlotEditCmd struct {
	RuleID string `arg:"" help:"Rule the occurrence belongs to."`
	Date   string `arg:"" help:"Occurrence date (YYYY-MM-DD)."`
	Start  string `arg:"" help:"New start time (HH:MM)."`
	End    string `arg:"" help:"New end time (HH:MM)."`
}

func (c *SlotEditCmd) Run(app *App) error {
	_, cache, err := app.session()
	if err != nil {
		return err
	}

	if _, err := cache.EnsureWeek(app.ctx, c.Date); err != nil {
		return explain(err)
	}
	exception, err := cache.UpdateSlot(app.ctx, c.RuleID, c.Date, c.Start, c.End)
	if err != nil {
		return explain(err)
	}

	fmt.Fprintf(app.out, "Moved %s on %s to %s-%s\n", exception.ScheduleID, exception.Date, c.Start, c.End)
	return app.showCached(c.Date)
}

type SlotRmCmd struct {
	RuleID string `arg:"" help:"Rule the occurrence belongs to."`
	Date   string `arg:"" help:"Occurrence date (YYYY-MM-DD)."`
}

func (c *SlotRmCmd) Run(app *App) error {
	_, cache, err := app.session()
	if err != nil {
		return err
	}

	if _, err := cache.EnsureWeek(app.ctx, c.Date); err != nil {
		return explain(err)
	}
	exception, err := cache.DeleteSlotOccurrence(app.ctx, c.RuleID, c.Date)
	if err != nil {
		return explain(err)
	}

	fmt.Fprintf(app.out, "Cancelled %s on %s\n", exception.ScheduleID, exception.Date)
	return app.showCached(c.Date)
}

func (a *App) windowStart(value string) (string, error) {
	if strings.TrimSpace(value) == "" {
		return a.today().String(), nil
	}
	date, err := calendar.ParseDate(value)
	if err != nil {
		return "", fmt.Errorf("invalid --start: %w", err)
	}
	return date.String(), nil
}

// showCached prints the reconciled copy of a week after a mutation.
func (a *App) showCached(start string) error {
	if a.cache == nil {
		return nil
	}
	slots, ok := a.cache.Get(start)
	if !ok {
		var err error
		if slots, err = a.cache.EnsureWeek(a.ctx, start); err != nil {
			return explain(err)
		}
	}
	renderWeek(a.out, start, slots)
	return nil
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

func parseWeekday(value string) (time.Weekday, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if day, ok := weekdayNames[value]; ok {
		return day, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < int(time.Sunday) || n > int(time.Saturday) {
		return 0, fmt.Errorf("invalid day %q: use 0-6 or a weekday name", value)
	}
	return time.Weekday(n), nil
}

// explain turns API failures into messages a terminal user can act on.
func explain(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *client.APIError
	switch {
	case errors.Is(err, client.ErrUnauthorized):
		return fmt.Errorf("not authorized: check --token or run 'weekwisectl login': %w", err)
	case client.IsCapacity(err) && errors.As(err, &apiErr):
		return fmt.Errorf("%s: %w", apiErr.Message, err)
	case errors.Is(err, client.ErrNotFound):
		return fmt.Errorf("not found: %w", err)
	}
	return err
}
