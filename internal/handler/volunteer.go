package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/volunteerd/internal/model"
	"github.com/dukerupert/volunteerd/internal/store"
)

type VolunteerHandler struct {
	volunteers *store.VolunteerStore
	hours      *store.HourStore
	logger     *slog.Logger
}

func NewVolunteerHandler(vs *store.VolunteerStore, hs *store.HourStore, logger *slog.Logger) *VolunteerHandler {
	return &VolunteerHandler{volunteers: vs, hours: hs, logger: logger.With("component", "volunteers")}
}

type volunteerRequest struct {
	Name  string `json:"name" validate:"required,max=200"`
	Email string `json:"email" validate:"omitempty,email"`
}

type volunteerProfile struct {
	*model.Volunteer
	VerifiedHours float64 `json:"verified_hours"`
}

func (h *VolunteerHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req volunteerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	v, err := h.volunteers.Create(r.Context(), req.Name, req.Email)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (h *VolunteerHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	v, err := h.volunteers.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	total, err := h.hours.TotalVerified(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, volunteerProfile{Volunteer: v, VerifiedHours: total})
}

func (h *VolunteerHandler) List(w http.ResponseWriter, r *http.Request) {
	vols, err := h.volunteers.List(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, vols)
}
