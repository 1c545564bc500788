package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/volunteerd/internal/auth"
	"github.com/dukerupert/volunteerd/internal/capacity"
	"github.com/dukerupert/volunteerd/internal/events"
	"github.com/dukerupert/volunteerd/internal/model"
	"github.com/dukerupert/volunteerd/internal/recurrence"
	"github.com/dukerupert/volunteerd/internal/store"
)

type OpportunityHandler struct {
	opportunities *store.OpportunityStore
	rsvps         *store.RSVPStore
	skills        *store.TagStore
	interests     *store.TagStore
	events        events.Publisher
	notifier      *Notifier
	logger        *slog.Logger
}

func NewOpportunityHandler(
	opportunities *store.OpportunityStore,
	rs *store.RSVPStore,
	skills, interests *store.TagStore,
	pub events.Publisher,
	notifier *Notifier,
	logger *slog.Logger,
) *OpportunityHandler {
	return &OpportunityHandler{
		opportunities: opportunities,
		rsvps:         rs,
		skills:        skills,
		interests:     interests,
		events:        pub,
		notifier:      notifier,
		logger:        logger.With("component", "opportunities"),
	}
}

type opportunityRequest struct {
	Title         string    `json:"title" validate:"required,max=200"`
	Description   string    `json:"description" validate:"max=5000"`
	Location      string    `json:"location" validate:"max=500"`
	StartTime     time.Time `json:"start_time" validate:"required"`
	EndTime       time.Time `json:"end_time" validate:"required"`
	MaxVolunteers *int      `json:"max_volunteers" validate:"omitempty,min=0"`
	SkillIDs      []int64   `json:"skill_ids" validate:"dive,gt=0"`
	InterestIDs   []int64   `json:"interest_ids" validate:"dive,gt=0"`
}

func (req opportunityRequest) draft(createdBy int64) model.OpportunityDraft {
	return model.OpportunityDraft{
		Title:         req.Title,
		Description:   req.Description,
		Location:      req.Location,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
		MaxVolunteers: req.MaxVolunteers,
		CreatedBy:     createdBy,
	}
}

// recurrenceRequest accepts either structured fields or RRULE text.
type recurrenceRequest struct {
	Freq     recurrence.Freq `json:"freq"`
	Interval *int            `json:"interval"`
	EndDate  string          `json:"end_date"`
	Count    int             `json:"count"`
	RRule    string          `json:"rrule"`
}

func (rr recurrenceRequest) rule() (recurrence.Rule, error) {
	if rr.RRule != "" {
		return recurrence.Parse(rr.RRule)
	}

	rule := recurrence.Rule{Freq: rr.Freq, Interval: 1, Count: rr.Count}
	if rr.Interval != nil {
		rule.Interval = *rr.Interval
	}
	if rr.EndDate != "" {
		d, err := time.Parse(time.DateOnly, rr.EndDate)
		if err != nil {
			return recurrence.Rule{}, fmt.Errorf("%w: end_date must be YYYY-MM-DD", model.ErrInvalidRule)
		}
		rule.EndDate = &d
	}
	return rule, rule.Validate()
}

type recurringRequest struct {
	opportunityRequest
	Recurrence *recurrenceRequest `json:"recurrence" validate:"required"`
}

func (h *OpportunityHandler) checkTags(r *http.Request, skillIDs, interestIDs []int64) error {
	if err := h.skills.Exist(r.Context(), skillIDs); err != nil {
		return err
	}
	return h.interests.Exist(r.Context(), interestIDs)
}

func (h *OpportunityHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req opportunityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.checkTags(r, req.SkillIDs, req.InterestIDs); err != nil {
		writeError(w, h.logger, err)
		return
	}

	o, err := h.opportunities.Create(r.Context(), req.draft(auth.UserID(r.Context())), req.SkillIDs, req.InterestIDs)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.events.Publish(r.Context(), events.New(events.EntityOpportunity, events.ActionCreated, o.ID, nil).ForOpportunity(o.ID))
	writeJSON(w, http.StatusCreated, o)
}

// CreateRecurring expands the rule and persists every instance at once.
// Nothing is created unless every instance is.
func (h *OpportunityHandler) CreateRecurring(w http.ResponseWriter, r *http.Request) {
	var req recurringRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	rule, err := req.Recurrence.rule()
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.checkTags(r, req.SkillIDs, req.InterestIDs); err != nil {
		writeError(w, h.logger, err)
		return
	}

	opps, err := h.opportunities.CreateRecurring(r.Context(), req.draft(auth.UserID(r.Context())), rule, req.SkillIDs, req.InterestIDs)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	seriesID := opps[0].SeriesID
	h.logger.Info("created recurring series", "series_id", seriesID, "instances", len(opps), "rule", rule.String())
	h.events.Publish(r.Context(), events.New(events.EntitySeries, events.ActionCreated, 0, map[string]any{
		"series_id": seriesID,
		"instances": len(opps),
	}))

	writeJSON(w, http.StatusCreated, map[string]any{
		"series_id":         seriesID,
		"recurrence":        rule.Describe(),
		"created_instances": opps,
	})
}

func parseTimeQuery(r *http.Request, name string) (*time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be RFC 3339", model.ErrInvalidInput, name)
	}
	return &t, nil
}

func parseOpportunityFilter(r *http.Request) (model.OpportunityFilter, model.Page, error) {
	var f model.OpportunityFilter
	var page model.Page
	var err error

	q := r.URL.Query()
	if s := q.Get("status"); s != "" {
		f.Status = model.OpportunityStatus(s)
		if !f.Status.Valid() {
			return f, page, fmt.Errorf("%w: unknown status %q", model.ErrInvalidInput, s)
		}
	}
	f.SeriesID = q.Get("series_id")
	if f.From, err = parseTimeQuery(r, "from"); err != nil {
		return f, page, err
	}
	if f.To, err = parseTimeQuery(r, "to"); err != nil {
		return f, page, err
	}
	if f.CreatedBy, err = parseQueryID(r, "created_by"); err != nil {
		return f, page, err
	}
	if f.SkillID, err = parseQueryID(r, "skill_id"); err != nil {
		return f, page, err
	}
	if f.InterestID, err = parseQueryID(r, "interest_id"); err != nil {
		return f, page, err
	}
	if page.Limit, err = parseQueryInt(r, "limit"); err != nil {
		return f, page, err
	}
	if page.Offset, err = parseQueryInt(r, "offset"); err != nil {
		return f, page, err
	}
	return f, page, nil
}

func (h *OpportunityHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, page, err := parseOpportunityFilter(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	opps, err := h.opportunities.List(r.Context(), filter, page)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, opps)
}

type opportunityDetail struct {
	Opportunity    *model.Opportunity `json:"opportunity"`
	SpotsRemaining capacity.Spots     `json:"spots_remaining"`
}

func (h *OpportunityHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	o, spots, err := h.opportunities.GetWithSpots(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, opportunityDetail{Opportunity: o, SpotsRemaining: spots})
}

// optionalInt distinguishes an absent field from an explicit null.
type optionalInt struct {
	Set   bool
	Value *int
}

func (o *optionalInt) UnmarshalJSON(b []byte) error {
	o.Set = true
	if string(b) == "null" {
		o.Value = nil
		return nil
	}
	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	o.Value = &n
	return nil
}

type updateRequest struct {
	Title         *string     `json:"title" validate:"omitempty,max=200"`
	Description   *string     `json:"description" validate:"omitempty,max=5000"`
	Location      *string     `json:"location" validate:"omitempty,max=500"`
	StartTime     *time.Time  `json:"start_time"`
	EndTime       *time.Time  `json:"end_time"`
	MaxVolunteers optionalInt `json:"max_volunteers"`
}

func (req updateRequest) patch() model.OpportunityPatch {
	p := model.OpportunityPatch{
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
	}
	if req.MaxVolunteers.Set {
		if req.MaxVolunteers.Value == nil {
			p.ClearMaxVolunteers = true
		} else {
			p.MaxVolunteers = req.MaxVolunteers.Value
		}
	}
	return p
}

// Update applies a partial change. "max_volunteers": null makes the
// opportunity unlimited.
func (h *OpportunityHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req updateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	o, err := h.opportunities.Update(r.Context(), id, req.patch())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.events.Publish(r.Context(), events.New(events.EntityOpportunity, events.ActionUpdated, id, map[string]any{
		"status": o.Status,
	}).ForOpportunity(id))
	writeJSON(w, http.StatusOK, o)
}

func (h *OpportunityHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.opportunities.Delete(r.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.events.Publish(r.Context(), events.New(events.EntityOpportunity, events.ActionDeleted, id, nil).ForOpportunity(id))
	w.WriteHeader(http.StatusNoContent)
}

func (h *OpportunityHandler) DeleteSeries(w http.ResponseWriter, r *http.Request) {
	seriesID := r.PathValue("series_id")

	n, err := h.opportunities.DeleteSeries(r.Context(), seriesID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.logger.Info("deleted series", "series_id", seriesID, "instances", n)
	h.events.Publish(r.Context(), events.New(events.EntitySeries, events.ActionDeleted, 0, map[string]any{
		"series_id": seriesID,
		"instances": n,
	}))
	w.WriteHeader(http.StatusNoContent)
}

// Cancel closes the opportunity to signups and tells the volunteers who
// were coming.
func (h *OpportunityHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	o, err := h.opportunities.Cancel(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	roster, err := h.rsvps.ListByOpportunity(r.Context(), id)
	if err != nil {
		h.logger.Warn("load roster for cancel notice", "opportunity_id", id, "error", err)
	} else {
		h.notifier.OpportunityCanceled(r.Context(), o, roster)
	}

	h.events.Publish(r.Context(), events.New(events.EntityOpportunity, events.ActionCanceled, id, nil).ForOpportunity(id))
	writeJSON(w, http.StatusOK, o)
}
