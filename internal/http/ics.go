package http

import (
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/example/weekwise/internal/recurrence"
)

const calendarProductID = "-//weekwise//weekly schedule//EN"

func renderCalendar(weekStart string, slots []recurrence.Slot, loc *time.Location, stamp time.Time) string {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(calendarProductID)
	cal.SetXWRCalName("Week of " + weekStart)

	for _, slot := range slots {
		event := cal.AddEvent(slot.ID + "@weekwise")
		event.SetDtStampTime(stamp)
		event.SetStartAt(slot.Date.At(slot.Start, loc))
		event.SetEndAt(slot.Date.At(slot.End, loc))
		event.SetSummary("Scheduled slot")
		event.AddProperty(ics.ComponentPropertyRelatedTo, slot.ScheduleID)
		if slot.IsException {
			event.AddProperty(ics.ComponentPropertyCategories, "override")
		}
	}
	return cal.Serialize()
}
