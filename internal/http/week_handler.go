package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/weekwise/internal/recurrence"
)

type weekService interface {
	GetWeek(ctx context.Context, ownerID, weekStart string) ([]recurrence.Slot, error)
}

// WeekHandler serves expanded weeks as JSON or iCalendar.
type WeekHandler struct {
	service   weekService
	responder responder
	logger    *slog.Logger
	location  *time.Location
	now       func() time.Time
}

// NewWeekHandler builds a handler. location anchors slot times in the
// calendar export; nil means time.Local.
func NewWeekHandler(service weekService, location *time.Location, logger *slog.Logger) *WeekHandler {
	if location == nil {
		location = time.Local
	}
	base := defaultLogger(logger)
	return &WeekHandler{service: service, responder: newResponder(base), logger: base, location: location, now: time.Now}
}

func (h *WeekHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	owner, _ := OwnerFromContext(r.Context())
	slots, err := h.service.GetWeek(r.Context(), owner, r.PathValue("date"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toSlotDTOs(slots))
}

func (h *WeekHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	owner, _ := OwnerFromContext(r.Context())
	weekStart := r.PathValue("date")
	slots, err := h.service.GetWeek(r.Context(), owner, weekStart)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	body := renderCalendar(weekStart, slots, h.location, h.now())
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(body)); err != nil {
		h.log(r.Context(), "Calendar").ErrorContext(r.Context(), "failed to write calendar", "error", err)
	}
}

func (h *WeekHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "WeekHandler", operation, attrs...)
}

type slotDTO struct {
	ID          string `json:"id"`
	ScheduleID  string `json:"scheduleId"`
	Date        string `json:"date"`
	StartTime   string `json:"startTime"`
	EndTime     string `json:"endTime"`
	IsException bool   `json:"isException"`
	ExceptionID string `json:"exceptionId,omitempty"`
}

func toSlotDTOs(slots []recurrence.Slot) []slotDTO {
	out := make([]slotDTO, 0, len(slots))
	for _, slot := range slots {
		out = append(out, slotDTO{
			ID:          slot.ID,
			ScheduleID:  slot.ScheduleID,
			Date:        slot.Date.String(),
			StartTime:   slot.Start.String(),
			EndTime:     slot.End.String(),
			IsException: slot.IsException,
			ExceptionID: slot.ExceptionID,
		})
	}
	return out
}
