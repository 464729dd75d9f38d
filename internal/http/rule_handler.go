package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/weekwise/internal/application"
	"github.com/example/weekwise/internal/persistence"
)

type ruleService interface {
	CreateRule(ctx context.Context, params application.CreateRuleParams) (persistence.RecurrenceRule, []application.ConflictWarning, error)
	ListRules(ctx context.Context, ownerID string) ([]persistence.RecurrenceRule, error)
	DeleteRule(ctx context.Context, ownerID, ruleID string) error
	UpdateSlot(ctx context.Context, params application.SlotParams) (persistence.Exception, error)
	DeleteSlotOccurrence(ctx context.Context, params application.SlotParams) (persistence.Exception, error)
}

// RuleHandler serves rule and per-occurrence mutations.
type RuleHandler struct {
	service   ruleService
	responder responder
	logger    *slog.Logger
}

func NewRuleHandler(service ruleService, logger *slog.Logger) *RuleHandler {
	base := defaultLogger(logger)
	return &RuleHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *RuleHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "RuleHandler", operation, attrs...)
}

func (h *RuleHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	owner, _ := OwnerFromContext(r.Context())

	var req createRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Create", "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode rule request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	rule, warnings, err := h.service.CreateRule(r.Context(), application.CreateRuleParams{
		OwnerID:   owner,
		DayOfWeek: req.DayOfWeek,
		StartTime: strings.TrimSpace(req.StartTime),
		EndTime:   strings.TrimSpace(req.EndTime),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, createRuleResponse{
		ruleDTO:  toRuleDTO(rule),
		Warnings: toWarningDTOs(warnings),
	})
}

func (h *RuleHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	owner, _ := OwnerFromContext(r.Context())
	rules, err := h.service.ListRules(r.Context(), owner)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toRuleDTOs(rules))
}

func (h *RuleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	owner, _ := OwnerFromContext(r.Context())
	if err := h.service.DeleteRule(r.Context(), owner, r.PathValue("id")); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, successResponse{Success: true})
}

func (h *RuleHandler) UpdateOccurrence(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	owner, _ := OwnerFromContext(r.Context())

	var req occurrenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "UpdateOccurrence", "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode occurrence request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	exception, err := h.service.UpdateSlot(r.Context(), application.SlotParams{
		OwnerID:   owner,
		RuleID:    r.PathValue("id"),
		Date:      r.PathValue("date"),
		StartTime: strings.TrimSpace(req.StartTime),
		EndTime:   strings.TrimSpace(req.EndTime),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toExceptionDTO(exception))
}

func (h *RuleHandler) DeleteOccurrence(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	owner, _ := OwnerFromContext(r.Context())
	exception, err := h.service.DeleteSlotOccurrence(r.Context(), application.SlotParams{
		OwnerID: owner,
		RuleID:  r.PathValue("id"),
		Date:    r.PathValue("date"),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toExceptionDTO(exception))
}

type createRuleRequest struct {
	DayOfWeek int    `json:"dayOfWeek"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

type occurrenceRequest struct {
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

type successResponse struct {
	Success bool `json:"success"`
}

type ruleDTO struct {
	ID        string `json:"id"`
	OwnerID   string `json:"userId"`
	DayOfWeek int    `json:"dayOfWeek"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	IsActive  bool   `json:"isActive"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

type createRuleResponse struct {
	ruleDTO
	Warnings []warningDTO `json:"warnings,omitempty"`
}

func toRuleDTO(rule persistence.RecurrenceRule) ruleDTO {
	return ruleDTO{
		ID:        rule.ID,
		OwnerID:   rule.OwnerID,
		DayOfWeek: int(rule.DayOfWeek),
		StartTime: rule.Start.String(),
		EndTime:   rule.End.String(),
		IsActive:  rule.Active,
		CreatedAt: rule.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt: rule.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func toRuleDTOs(rules []persistence.RecurrenceRule) []ruleDTO {
	out := make([]ruleDTO, 0, len(rules))
	for _, rule := range rules {
		out = append(out, toRuleDTO(rule))
	}
	return out
}

type warningDTO struct {
	ScheduleID string `json:"scheduleId"`
	Type       string `json:"type"`
	StartTime  string `json:"startTime"`
	EndTime    string `json:"endTime"`
}

func toWarningDTOs(warnings []application.ConflictWarning) []warningDTO {
	if len(warnings) == 0 {
		return nil
	}
	out := make([]warningDTO, 0, len(warnings))
	for _, warning := range warnings {
		out = append(out, warningDTO{
			ScheduleID: warning.RuleID,
			Type:       warning.Type,
			StartTime:  warning.StartTime,
			EndTime:    warning.EndTime,
		})
	}
	return out
}

type exceptionDTO struct {
	ID         string  `json:"id"`
	ScheduleID string  `json:"scheduleId"`
	Date       string  `json:"date"`
	StartTime  *string `json:"startTime"`
	EndTime    *string `json:"endTime"`
	IsDeleted  bool    `json:"isDeleted"`
	CreatedAt  string  `json:"createdAt"`
	UpdatedAt  string  `json:"updatedAt"`
}

func toExceptionDTO(exception persistence.Exception) exceptionDTO {
	dto := exceptionDTO{
		ID:         exception.ID,
		ScheduleID: exception.RuleID,
		Date:       exception.Date.String(),
		IsDeleted:  exception.Cancelled(),
		CreatedAt:  exception.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:  exception.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if exception.Override != nil {
		start, end := exception.Override.Start.String(), exception.Override.End.String()
		dto.StartTime, dto.EndTime = &start, &end
	}
	return dto
}
