package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/volunteerd/internal/auth"
	"github.com/dukerupert/volunteerd/internal/database"
	"github.com/dukerupert/volunteerd/internal/email"
	"github.com/dukerupert/volunteerd/internal/events"
	"github.com/dukerupert/volunteerd/internal/model"
	"github.com/dukerupert/volunteerd/internal/store"
)

type fakeMailer struct {
	mu       sync.Mutex
	signups  []email.OpportunityNotice
	canceled []email.OpportunityNotice
}

func (m *fakeMailer) Configured() bool { return true }

func (m *fakeMailer) SendSignupConfirmation(_ context.Context, n email.OpportunityNotice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signups = append(m.signups, n)
	return nil
}

func (m *fakeMailer) SendOpportunityCanceled(_ context.Context, n email.OpportunityNotice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.canceled = append(m.canceled, n)
	return nil
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type testEnv struct {
	db         *sql.DB
	mux        *http.ServeMux
	mailer     *fakeMailer
	published  *recorder
	notifier   *Notifier
	volunteers *store.VolunteerStore
	skills     *store.TagStore
}

var (
	staff     = auth.AuthContext{UserID: 100, Role: auth.RoleStaff}
	start2030 = time.Date(2030, time.March, 4, 9, 0, 0, 0, time.UTC)
)

func volunteer(id int64) auth.AuthContext {
	return auth.AuthContext{UserID: id, Role: auth.RoleVolunteer}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env := &testEnv{
		db:         db,
		mux:        http.NewServeMux(),
		mailer:     &fakeMailer{},
		published:  &recorder{},
		volunteers: store.NewVolunteerStore(db),
		skills:     store.NewSkillStore(db),
	}

	opportunities := store.NewOpportunityStore(db)
	rsvps := store.NewRSVPStore(db)
	hours := store.NewHourStore(db)
	interests := store.NewInterestStore(db)
	env.notifier = NewNotifier(env.mailer, env.volunteers, logger)

	oh := NewOpportunityHandler(opportunities, rsvps, env.skills, interests, env.published, env.notifier, logger)
	rh := NewRSVPHandler(rsvps, opportunities, env.published, env.notifier, logger)
	hh := NewHoursHandler(hours, env.published, logger)
	sh := NewCatalogHandler(env.skills, "skills", logger)
	vh := NewVolunteerHandler(env.volunteers, hours, logger)

	env.mux.HandleFunc("POST /opportunities", oh.Create)
	env.mux.HandleFunc("POST /opportunities/recurring", oh.CreateRecurring)
	env.mux.HandleFunc("GET /opportunities", oh.List)
	env.mux.HandleFunc("GET /opportunities/{id}", oh.Get)
	env.mux.HandleFunc("PUT /opportunities/{id}", oh.Update)
	env.mux.HandleFunc("DELETE /opportunities/{id}", oh.Delete)
	env.mux.HandleFunc("POST /opportunities/{id}/cancel", oh.Cancel)
	env.mux.HandleFunc("DELETE /series/{series_id}", oh.DeleteSeries)
	env.mux.HandleFunc("POST /opportunities/{id}/rsvp", rh.Signup)
	env.mux.HandleFunc("DELETE /opportunities/{id}/rsvp", rh.Cancel)
	env.mux.HandleFunc("GET /opportunities/{id}/rsvps", rh.ListForOpportunity)
	env.mux.HandleFunc("PUT /opportunities/{id}/rsvps/{volunteer_id}", rh.MarkAttendance)
	env.mux.HandleFunc("GET /me/rsvps", rh.ListMine)
	env.mux.HandleFunc("POST /hours", hh.Log)
	env.mux.HandleFunc("GET /me/hours", hh.ListMine)
	env.mux.HandleFunc("POST /hours/{id}/verify", hh.Verify)
	env.mux.HandleFunc("GET /skills", sh.List)
	env.mux.HandleFunc("POST /skills", sh.Create)
	env.mux.HandleFunc("DELETE /skills/{id}", sh.Delete)
	env.mux.HandleFunc("GET /volunteers", vh.List)
	env.mux.HandleFunc("POST /volunteers", vh.Create)
	env.mux.HandleFunc("GET /volunteers/{id}", vh.Get)
	env.mux.HandleFunc("POST /recurrence/preview", PreviewRecurrence(logger))
	return env
}

func (env *testEnv) do(t *testing.T, ac auth.AuthContext, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	req = req.WithContext(auth.WithAuth(req.Context(), ac))
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func assertError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
	body := decode[errorBody](t, rec)
	assert.Equal(t, code, body.Error)
}

func opportunityBody(max *int) map[string]any {
	body := map[string]any{
		"title":      "Sort donations",
		"location":   "Warehouse",
		"start_time": start2030,
		"end_time":   start2030.Add(3 * time.Hour),
	}
	if max != nil {
		body["max_volunteers"] = *max
	}
	return body
}

func intPtr(n int) *int { return &n }

func itoa(id int64) string { return strconv.FormatInt(id, 10) }

func (env *testEnv) createOpportunity(t *testing.T, max *int) model.Opportunity {
	t.Helper()
	rec := env.do(t, staff, http.MethodPost, "/opportunities", opportunityBody(max))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[model.Opportunity](t, rec)
}

func TestCreateOpportunity(t *testing.T) {
	env := newTestEnv(t)

	o := env.createOpportunity(t, intPtr(3))
	assert.Equal(t, "Sort donations", o.Title)
	assert.Equal(t, model.StatusOpen, o.Status)
	assert.Equal(t, staff.UserID, o.CreatedBy)
	assert.Equal(t, []string{"opportunity_created"}, env.published.types())
}

func TestCreateOpportunityRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		body   map[string]any
		status int
		code   string
	}{
		{"missing title", map[string]any{"start_time": start2030, "end_time": start2030.Add(time.Hour)}, http.StatusBadRequest, "invalid_input"},
		{"unknown field", map[string]any{"title": "x", "start_time": start2030, "end_time": start2030.Add(time.Hour), "colour": "red"}, http.StatusBadRequest, "invalid_input"},
		{"end before start", map[string]any{"title": "x", "start_time": start2030, "end_time": start2030.Add(-time.Hour)}, http.StatusBadRequest, "invalid_window"},
		{"negative capacity", map[string]any{"title": "x", "start_time": start2030, "end_time": start2030.Add(time.Hour), "max_volunteers": -1}, http.StatusBadRequest, "invalid_input"},
		{"unknown skill", map[string]any{"title": "x", "start_time": start2030, "end_time": start2030.Add(time.Hour), "skill_ids": []int64{42}}, http.StatusBadRequest, "invalid_input"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, staff, http.MethodPost, "/opportunities", tt.body)
			assertError(t, rec, tt.status, tt.code)
		})
	}
	assert.Empty(t, env.published.types())
}

func TestCreateRecurring(t *testing.T) {
	env := newTestEnv(t)

	body := opportunityBody(intPtr(2))
	body["recurrence"] = map[string]any{"freq": "weekly", "count": 4}
	rec := env.do(t, staff, http.MethodPost, "/opportunities/recurring", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decode[struct {
		SeriesID         string              `json:"series_id"`
		Recurrence       string              `json:"recurrence"`
		CreatedInstances []model.Opportunity `json:"created_instances"`
	}](t, rec)
	require.Len(t, resp.CreatedInstances, 4)
	assert.NotEmpty(t, resp.SeriesID)
	assert.NotEmpty(t, resp.Recurrence)
	for i, o := range resp.CreatedInstances {
		assert.Equal(t, resp.SeriesID, o.SeriesID)
		assert.True(t, o.IsRecurring)
		assert.True(t, o.StartTime.Equal(start2030.AddDate(0, 0, 7*i)), "instance %d start %v", i, o.StartTime)
	}

	rec = env.do(t, staff, http.MethodGet, "/opportunities?series_id="+resp.SeriesID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.Opportunity](t, rec), 4)

	rec = env.do(t, staff, http.MethodDelete, "/series/"+resp.SeriesID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, staff, http.MethodDelete, "/series/"+resp.SeriesID, nil)
	assertError(t, rec, http.StatusNotFound, "not_found")
}

func TestCreateRecurringRejectsBadRules(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		rule map[string]any
		code string
	}{
		{"unknown freq", map[string]any{"freq": "yearly", "count": 3}, "invalid_rule"},
		{"zero interval", map[string]any{"freq": "daily", "interval": 0, "count": 3}, "invalid_rule"},
		{"no terminator", map[string]any{"freq": "daily"}, "invalid_rule"},
		{"bad end date", map[string]any{"freq": "daily", "end_date": "03/10/2030"}, "invalid_rule"},
		{"too many", map[string]any{"freq": "daily", "end_date": "2032-01-01"}, "recurrence_too_large"},
		{"bad rrule", map[string]any{"rrule": "FREQ=HOURLY;COUNT=3"}, "invalid_rule"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := opportunityBody(nil)
			body["recurrence"] = tt.rule
			rec := env.do(t, staff, http.MethodPost, "/opportunities/recurring", body)
			assertError(t, rec, http.StatusBadRequest, tt.code)
		})
	}

	var n int
	require.NoError(t, env.db.QueryRow(`SELECT COUNT(*) FROM opportunities`).Scan(&n))
	assert.Zero(t, n)
}

func TestSignupFillsAndReopens(t *testing.T) {
	env := newTestEnv(t)
	o := env.createOpportunity(t, intPtr(1))
	path := "/opportunities/" + itoa(o.ID)

	rec := env.do(t, volunteer(1), http.MethodPost, path+"/rsvp", map[string]string{"notes": "bringing gloves"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[signupResponse](t, rec)
	assert.Equal(t, model.RSVPConfirmed, resp.RSVP.Status)
	assert.Equal(t, "bringing gloves", resp.RSVP.Notes)
	assert.Equal(t, model.StatusFull, resp.OpportunityStatus)

	rec = env.do(t, volunteer(2), http.MethodPost, path+"/rsvp", nil)
	assertError(t, rec, http.StatusConflict, "opportunity_full")

	rec = env.do(t, staff, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "0", string(decode[map[string]json.RawMessage](t, rec)["spots_remaining"]))

	rec = env.do(t, volunteer(1), http.MethodDelete, path+"/rsvp", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, volunteer(2), http.MethodPost, path+"/rsvp", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, model.StatusFull, decode[signupResponse](t, rec).OpportunityStatus)

	rec = env.do(t, staff, http.MethodGet, path+"/rsvps", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	roster := decode[[]model.RSVP](t, rec)
	require.Len(t, roster, 2)
	assert.Equal(t, model.RSVPDeclined, roster[0].Status)
	assert.Equal(t, model.RSVPConfirmed, roster[1].Status)
}

func TestSignupUnlimitedReportsUnlimitedSpots(t *testing.T) {
	env := newTestEnv(t)
	o := env.createOpportunity(t, nil)

	rec := env.do(t, volunteer(1), http.MethodPost, "/opportunities/"+itoa(o.ID)+"/rsvp", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, staff, http.MethodGet, "/opportunities/"+itoa(o.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `"unlimited"`, string(decode[map[string]json.RawMessage](t, rec)["spots_remaining"]))
}

func TestSignupErrors(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, volunteer(1), http.MethodPost, "/opportunities/999/rsvp", nil)
	assertError(t, rec, http.StatusNotFound, "not_found")

	rec = env.do(t, volunteer(1), http.MethodPost, "/opportunities/abc/rsvp", nil)
	assertError(t, rec, http.StatusBadRequest, "invalid_input")

	o := env.createOpportunity(t, intPtr(5))
	rec = env.do(t, staff, http.MethodPost, "/opportunities/"+itoa(o.ID)+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, volunteer(1), http.MethodPost, "/opportunities/"+itoa(o.ID)+"/rsvp", nil)
	assertError(t, rec, http.StatusConflict, "opportunity_closed")
}

func TestSignupBodyOfUnknownLength(t *testing.T) {
	env := newTestEnv(t)
	o := env.createOpportunity(t, intPtr(5))
	path := "/opportunities/" + itoa(o.ID) + "/rsvp"

	// Bodies that are not a known-size reader arrive with ContentLength -1,
	// as a chunked request would.
	send := func(ac auth.AuthContext, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, io.NopCloser(strings.NewReader(body)))
		require.Equal(t, int64(-1), req.ContentLength)
		req = req.WithContext(auth.WithAuth(req.Context(), ac))
		rec := httptest.NewRecorder()
		env.mux.ServeHTTP(rec, req)
		return rec
	}

	rec := send(volunteer(1), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = send(volunteer(2), `{"notes":"can bring a van"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "can bring a van", decode[signupResponse](t, rec).RSVP.Notes)

	rec = send(volunteer(3), `{"notes":`)
	assertError(t, rec, http.StatusBadRequest, "invalid_input")
}

func TestSignupSendsConfirmation(t *testing.T) {
	env := newTestEnv(t)
	v, err := env.volunteers.Create(context.Background(), "Ada", "ada@example.com")
	require.NoError(t, err)
	o := env.createOpportunity(t, intPtr(2))

	rec := env.do(t, volunteer(v.ID), http.MethodPost, "/opportunities/"+itoa(o.ID)+"/rsvp", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	// A repeat signup does not send a second email.
	rec = env.do(t, volunteer(v.ID), http.MethodPost, "/opportunities/"+itoa(o.ID)+"/rsvp", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	env.notifier.Wait()

	require.Len(t, env.mailer.signups, 1)
	assert.Equal(t, "ada@example.com", env.mailer.signups[0].To)
	assert.Equal(t, o.ID, env.mailer.signups[0].OpportunityID)
}

func TestCancelOpportunityNotifiesRoster(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ada, err := env.volunteers.Create(ctx, "Ada", "ada@example.com")
	require.NoError(t, err)
	bob, err := env.volunteers.Create(ctx, "Bob", "bob@example.com")
	require.NoError(t, err)
	o := env.createOpportunity(t, intPtr(5))
	path := "/opportunities/" + itoa(o.ID)

	require.Equal(t, http.StatusOK, env.do(t, volunteer(ada.ID), http.MethodPost, path+"/rsvp", nil).Code)
	require.Equal(t, http.StatusOK, env.do(t, volunteer(bob.ID), http.MethodPost, path+"/rsvp", nil).Code)
	require.Equal(t, http.StatusNoContent, env.do(t, volunteer(bob.ID), http.MethodDelete, path+"/rsvp", nil).Code)

	rec := env.do(t, staff, http.MethodPost, path+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.StatusCanceled, decode[model.Opportunity](t, rec).Status)
	env.notifier.Wait()

	require.Len(t, env.mailer.canceled, 1)
	assert.Equal(t, "ada@example.com", env.mailer.canceled[0].To)
}

func TestUpdateOpportunityCapacity(t *testing.T) {
	env := newTestEnv(t)
	o := env.createOpportunity(t, intPtr(2))
	path := "/opportunities/" + itoa(o.ID)
	require.Equal(t, http.StatusOK, env.do(t, volunteer(1), http.MethodPost, path+"/rsvp", nil).Code)

	rec := env.do(t, staff, http.MethodPut, path, map[string]any{"max_volunteers": 1})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, model.StatusFull, decode[model.Opportunity](t, rec).Status)

	rec = env.do(t, staff, http.MethodPut, path, map[string]any{"max_volunteers": nil})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[model.Opportunity](t, rec)
	assert.Nil(t, updated.MaxVolunteers)
	assert.Equal(t, model.StatusOpen, updated.Status)

	rec = env.do(t, staff, http.MethodPut, path, map[string]any{"end_time": start2030.Add(-time.Hour)})
	assertError(t, rec, http.StatusBadRequest, "invalid_window")
}

func TestDeleteOpportunity(t *testing.T) {
	env := newTestEnv(t)
	o := env.createOpportunity(t, intPtr(2))
	path := "/opportunities/" + itoa(o.ID)
	require.Equal(t, http.StatusOK, env.do(t, volunteer(1), http.MethodPost, path+"/rsvp", nil).Code)

	assert.Equal(t, http.StatusNoContent, env.do(t, staff, http.MethodDelete, path, nil).Code)
	assertError(t, env.do(t, staff, http.MethodGet, path, nil), http.StatusNotFound, "not_found")
	assertError(t, env.do(t, staff, http.MethodDelete, path, nil), http.StatusNotFound, "not_found")
}

func TestMarkAttendance(t *testing.T) {
	env := newTestEnv(t)
	o := env.createOpportunity(t, intPtr(2))
	path := "/opportunities/" + itoa(o.ID)
	require.Equal(t, http.StatusOK, env.do(t, volunteer(7), http.MethodPost, path+"/rsvp", nil).Code)

	rec := env.do(t, staff, http.MethodPut, path+"/rsvps/7", map[string]string{"status": "attended"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, model.RSVPAttended, decode[model.RSVP](t, rec).Status)

	rec = env.do(t, staff, http.MethodPut, path+"/rsvps/7", map[string]string{"status": "declined"})
	assertError(t, rec, http.StatusBadRequest, "invalid_input")

	rec = env.do(t, staff, http.MethodPut, path+"/rsvps/8", map[string]string{"status": "attended"})
	assertError(t, rec, http.StatusNotFound, "not_found")

	rec = env.do(t, volunteer(7), http.MethodDelete, path+"/rsvp", nil)
	assertError(t, rec, http.StatusConflict, "invalid_transition")
}

func TestListMyRSVPs(t *testing.T) {
	env := newTestEnv(t)
	a := env.createOpportunity(t, nil)
	b := env.createOpportunity(t, nil)
	require.Equal(t, http.StatusOK, env.do(t, volunteer(3), http.MethodPost, "/opportunities/"+itoa(a.ID)+"/rsvp", nil).Code)
	require.Equal(t, http.StatusOK, env.do(t, volunteer(3), http.MethodPost, "/opportunities/"+itoa(b.ID)+"/rsvp", nil).Code)
	require.Equal(t, http.StatusNoContent, env.do(t, volunteer(3), http.MethodDelete, "/opportunities/"+itoa(b.ID)+"/rsvp", nil).Code)

	rec := env.do(t, volunteer(3), http.MethodGet, "/me/rsvps", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[model.VolunteerRSVPs](t, rec)
	assert.Len(t, list.All, 2)
	require.Len(t, list.Upcoming, 2)
	statuses := map[int64]model.RSVPStatus{}
	for _, r := range list.Upcoming {
		statuses[r.OpportunityID] = r.Status
	}
	assert.Equal(t, model.RSVPConfirmed, statuses[a.ID])
	assert.Equal(t, model.RSVPDeclined, statuses[b.ID])
}

func TestHoursFlow(t *testing.T) {
	env := newTestEnv(t)
	o := env.createOpportunity(t, nil)

	// No RSVP yet.
	rec := env.do(t, volunteer(4), http.MethodPost, "/hours", map[string]any{"opportunity_id": o.ID, "hours": 2.5})
	assertError(t, rec, http.StatusNotFound, "not_found")

	require.Equal(t, http.StatusOK, env.do(t, volunteer(4), http.MethodPost, "/opportunities/"+itoa(o.ID)+"/rsvp", nil).Code)

	rec = env.do(t, volunteer(4), http.MethodPost, "/hours", map[string]any{"opportunity_id": o.ID, "hours": 30})
	assertError(t, rec, http.StatusBadRequest, "invalid_input")

	rec = env.do(t, volunteer(4), http.MethodPost, "/hours", map[string]any{"opportunity_id": o.ID, "hours": 2.5})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	entry := decode[model.HourLog](t, rec)
	assert.False(t, entry.Verified)

	rec = env.do(t, staff, http.MethodPost, "/hours/"+itoa(entry.ID)+"/verify", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	verified := decode[model.HourLog](t, rec)
	assert.True(t, verified.Verified)
	require.NotNil(t, verified.VerifiedBy)
	assert.Equal(t, staff.UserID, *verified.VerifiedBy)

	rec = env.do(t, volunteer(4), http.MethodGet, "/me/hours", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode[hoursSummary](t, rec)
	assert.InDelta(t, 2.5, summary.TotalVerified, 0.001)
	assert.Len(t, summary.Logs, 1)
}

func TestCatalogAndVolunteers(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, staff, http.MethodPost, "/skills", map[string]string{"name": "First aid"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	skill := decode[model.Tag](t, rec)

	body := opportunityBody(nil)
	body["skill_ids"] = []int64{skill.ID}
	rec = env.do(t, staff, http.MethodPost, "/opportunities", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, []int64{skill.ID}, decode[model.Opportunity](t, rec).SkillIDs)

	rec = env.do(t, staff, http.MethodGet, "/opportunities?skill_id="+itoa(skill.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.Opportunity](t, rec), 1)

	assert.Equal(t, http.StatusNoContent, env.do(t, staff, http.MethodDelete, "/skills/"+itoa(skill.ID), nil).Code)
	rec = env.do(t, staff, http.MethodGet, "/skills", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]model.Tag](t, rec))

	rec = env.do(t, staff, http.MethodPost, "/volunteers", map[string]string{"name": "Ada", "email": "not-an-email"})
	assertError(t, rec, http.StatusBadRequest, "invalid_input")

	rec = env.do(t, staff, http.MethodPost, "/volunteers", map[string]string{"name": "Ada", "email": "ada@example.com"})
	require.Equal(t, http.StatusCreated, rec.Code)
	v := decode[model.Volunteer](t, rec)

	rec = env.do(t, staff, http.MethodGet, "/volunteers/"+itoa(v.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	profile := decode[map[string]any](t, rec)
	assert.Equal(t, "Ada", profile["name"])
	assert.Equal(t, float64(0), profile["verified_hours"])

	rec = env.do(t, staff, http.MethodGet, "/volunteers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]model.Volunteer](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, v.ID, list[0].ID)
}

func TestListOpportunitiesRejectsBadFilters(t *testing.T) {
	env := newTestEnv(t)

	for _, q := range []string{"status=maybe", "from=yesterday", "skill_id=-1", "limit=ten"} {
		rec := env.do(t, staff, http.MethodGet, "/opportunities?"+q, nil)
		assertError(t, rec, http.StatusBadRequest, "invalid_input")
	}
}

func TestPreviewRecurrence(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, staff, http.MethodPost, "/recurrence/preview", map[string]any{
		"start_time": start2030,
		"end_time":   start2030.Add(2 * time.Hour),
		"recurrence": map[string]any{"freq": "daily", "interval": 2, "end_date": "2030-03-10"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[previewResponse](t, rec)
	assert.Equal(t, 4, resp.Count)
	require.Len(t, resp.Occurrences, 4)
	assert.True(t, resp.Occurrences[3].Start.Equal(start2030.AddDate(0, 0, 6)))
	assert.True(t, resp.Occurrences[3].End.Equal(start2030.AddDate(0, 0, 6).Add(2*time.Hour)))

	var n int
	require.NoError(t, env.db.QueryRow(`SELECT COUNT(*) FROM opportunities`).Scan(&n))
	assert.Zero(t, n)
}

func TestWriteErrorHidesInternalDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, slog.New(slog.NewTextHandler(io.Discard, nil)), io.ErrUnexpectedEOF)

	assertError(t, rec, http.StatusInternalServerError, "internal")
	assert.NotContains(t, rec.Body.String(), "unexpected EOF")
}
