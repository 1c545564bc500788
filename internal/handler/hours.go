package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/volunteerd/internal/auth"
	"github.com/dukerupert/volunteerd/internal/events"
	"github.com/dukerupert/volunteerd/internal/model"
	"github.com/dukerupert/volunteerd/internal/store"
)

type HoursHandler struct {
	hours  *store.HourStore
	events events.Publisher
	logger *slog.Logger
	now    func() time.Time
}

func NewHoursHandler(hs *store.HourStore, pub events.Publisher, logger *slog.Logger) *HoursHandler {
	return &HoursHandler{hours: hs, events: pub, logger: logger.With("component", "hours"), now: time.Now}
}

type logHoursRequest struct {
	OpportunityID int64   `json:"opportunity_id" validate:"required,gt=0"`
	Hours         float64 `json:"hours" validate:"required,gt=0,lte=24"`
	Notes         string  `json:"notes" validate:"max=1000"`
}

func (h *HoursHandler) Log(w http.ResponseWriter, r *http.Request) {
	var req logHoursRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	volunteerID := auth.UserID(r.Context())
	entry, err := h.hours.Log(r.Context(), volunteerID, req.OpportunityID, req.Hours, req.Notes)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.events.Publish(r.Context(), events.New(events.EntityHours, events.ActionLogged, entry.ID, map[string]any{
		"volunteer_id": volunteerID,
		"hours":        entry.Hours,
	}).ForOpportunity(req.OpportunityID))
	writeJSON(w, http.StatusCreated, entry)
}

type hoursSummary struct {
	TotalVerified float64         `json:"total_verified"`
	Logs          []model.HourLog `json:"logs"`
}

func (h *HoursHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	volunteerID := auth.UserID(r.Context())

	logs, err := h.hours.ListByVolunteer(r.Context(), volunteerID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	total, err := h.hours.TotalVerified(r.Context(), volunteerID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, hoursSummary{TotalVerified: total, Logs: logs})
}

func (h *HoursHandler) Verify(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	entry, err := h.hours.Verify(r.Context(), id, auth.UserID(r.Context()), h.now())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.events.Publish(r.Context(), events.New(events.EntityHours, events.ActionVerified, entry.ID, nil).ForOpportunity(entry.OpportunityID))
	writeJSON(w, http.StatusOK, entry)
}
