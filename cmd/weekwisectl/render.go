package main

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/example/weekwise/internal/calendar"
	"github.com/example/weekwise/internal/client"
	"github.com/example/weekwise/internal/clientcache"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true)

	dayStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Italic(true)
)

func renderWeek(w io.Writer, start string, slots []client.Slot) {
	fmt.Fprintln(w, headerStyle.Render("Week of "+start))

	first, err := calendar.ParseDate(start)
	if err != nil {
		for _, slot := range slots {
			fmt.Fprintln(w, slotLine(slot))
		}
		return
	}

	byDate := make(map[string][]client.Slot, len(slots))
	for _, slot := range slots {
		byDate[slot.Date] = append(byDate[slot.Date], slot)
	}
	for _, date := range calendar.Window(first, 7) {
		key := date.String()
		fmt.Fprintln(w, dayStyle.Render(fmt.Sprintf("%s %s", date.Weekday().String()[:3], key)))
		if len(byDate[key]) == 0 {
			fmt.Fprintln(w, "  "+mutedStyle.Render("-"))
			continue
		}
		for _, slot := range byDate[key] {
			fmt.Fprintln(w, slotLine(slot))
		}
	}
}

func slotLine(slot client.Slot) string {
	line := fmt.Sprintf("  %s-%s  %s", slot.StartTime, slot.EndTime, slot.ScheduleID)
	switch {
	case clientcache.IsProvisional(slot):
		line += " " + mutedStyle.Render("(pending)")
	case slot.IsException:
		line += " " + mutedStyle.Render("(moved)")
	}
	return line
}

func renderWarnings(w io.Writer, warnings []client.Warning) {
	for _, warning := range warnings {
		fmt.Fprintln(w, warningStyle.Render(fmt.Sprintf("warning: overlaps rule %s (%s-%s)", warning.ScheduleID, warning.StartTime, warning.EndTime)))
	}
}

func renderRules(w io.Writer, rules []client.Rule) {
	if len(rules) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No rules"))
		return
	}
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%-36s  %-3s  %s", "ID", "DAY", "TIME")))
	for _, rule := range rules {
		day := "?"
		if rule.DayOfWeek >= int(time.Sunday) && rule.DayOfWeek <= int(time.Saturday) {
			day = time.Weekday(rule.DayOfWeek).String()[:3]
		}
		fmt.Fprintf(w, "%-36s  %-3s  %s-%s\n", rule.ID, day, rule.StartTime, rule.EndTime)
	}
}
