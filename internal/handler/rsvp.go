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

type RSVPHandler struct {
	rsvps         *store.RSVPStore
	opportunities *store.OpportunityStore
	events        events.Publisher
	notifier      *Notifier
	logger        *slog.Logger
	now           func() time.Time
}

func NewRSVPHandler(rs *store.RSVPStore, opportunities *store.OpportunityStore, pub events.Publisher, notifier *Notifier, logger *slog.Logger) *RSVPHandler {
	return &RSVPHandler{
		rsvps:         rs,
		opportunities: opportunities,
		events:        pub,
		notifier:      notifier,
		logger:        logger.With("component", "rsvps"),
		now:           time.Now,
	}
}

type signupRequest struct {
	Notes string `json:"notes" validate:"max=1000"`
}

type signupResponse struct {
	RSVP              model.RSVP              `json:"rsvp"`
	OpportunityStatus model.OpportunityStatus `json:"opportunity_status"`
}

// Signup claims a slot for the calling volunteer. The body is optional.
func (h *RSVPHandler) Signup(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req signupRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	volunteerID := auth.UserID(r.Context())
	res, err := h.rsvps.Signup(r.Context(), volunteerID, id, req.Notes)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if res.Claimed {
		h.logger.Info("volunteer signed up", "volunteer_id", volunteerID, "opportunity_id", id, "status", res.OpportunityStatus)
		if o, err := h.opportunities.GetByID(r.Context(), id); err == nil {
			h.notifier.SignupConfirmed(r.Context(), volunteerID, o)
		}
	}
	h.events.Publish(r.Context(), events.New(events.EntityRSVP, events.ActionSignedUp, id, map[string]any{
		"volunteer_id":       volunteerID,
		"opportunity_status": res.OpportunityStatus,
	}).ForOpportunity(id))

	writeJSON(w, http.StatusOK, signupResponse{RSVP: res.RSVP, OpportunityStatus: res.OpportunityStatus})
}

// Cancel releases the calling volunteer's slot.
func (h *RSVPHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	volunteerID := auth.UserID(r.Context())
	res, err := h.rsvps.Cancel(r.Context(), volunteerID, id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.events.Publish(r.Context(), events.New(events.EntityRSVP, events.ActionDeclined, id, map[string]any{
		"volunteer_id":       volunteerID,
		"opportunity_status": res.OpportunityStatus,
	}).ForOpportunity(id))
	w.WriteHeader(http.StatusNoContent)
}

func (h *RSVPHandler) ListForOpportunity(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	list, err := h.rsvps.ListByOpportunity(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type attendanceRequest struct {
	Status model.RSVPStatus `json:"status" validate:"required,oneof=attended no_show pending"`
}

// MarkAttendance lets staff record whether a volunteer showed up.
func (h *RSVPHandler) MarkAttendance(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	volunteerID, err := parsePathID(r, "volunteer_id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req attendanceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	rsvp, err := h.rsvps.MarkAttendance(r.Context(), volunteerID, id, req.Status)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.events.Publish(r.Context(), events.New(events.EntityRSVP, events.ActionAttended, id, map[string]any{
		"volunteer_id": volunteerID,
		"status":       rsvp.Status,
	}).ForOpportunity(id))
	writeJSON(w, http.StatusOK, rsvp)
}

// ListMine returns the caller's upcoming and past RSVPs.
func (h *RSVPHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	list, err := h.rsvps.ListByVolunteer(r.Context(), auth.UserID(r.Context()), h.now())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}
