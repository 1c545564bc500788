package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dukerupert/volunteerd/internal/capacity"
	"github.com/dukerupert/volunteerd/internal/model"
)

type RSVPStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewRSVPStore(db *sql.DB) *RSVPStore {
	return &RSVPStore{db: db, now: time.Now}
}

// SignupResult reports the ledger row after a signup and the opportunity
// status that resulted from it. Claimed is true when the call took a slot
// the volunteer did not already hold.
type SignupResult struct {
	RSVP              model.RSVP
	OpportunityStatus model.OpportunityStatus
	Claimed           bool
}

const rsvpCols = `r.volunteer_id, r.opportunity_id, r.status, r.rsvp_at, r.notes, o.title, o.start_time`

func scanRSVP(row scanner) (*model.RSVP, error) {
	var r model.RSVP
	if err := row.Scan(&r.VolunteerID, &r.OpportunityID, &r.Status, &r.RSVPAt, &r.Notes,
		&r.OpportunityTitle, &r.OpportunityStart); err != nil {
		return nil, err
	}
	return &r, nil
}

func getRSVP(ctx context.Context, q querier, volunteerID, opportunityID int64) (*model.RSVP, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+rsvpCols+` FROM rsvps r JOIN opportunities o ON o.id = r.opportunity_id
		 WHERE r.volunteer_id = ? AND r.opportunity_id = ?`,
		volunteerID, opportunityID,
	)
	r, err := scanRSVP(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rsvp %d/%d: %w", volunteerID, opportunityID, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query rsvp: %w", err)
	}
	return r, nil
}

// syncStatus recomputes open/full from the live RSVP count and stores it
// when it changed.
func syncStatus(ctx context.Context, q querier, o *model.Opportunity) (model.OpportunityStatus, error) {
	occupied, err := countOccupied(ctx, q, o.ID)
	if err != nil {
		return "", err
	}
	status := capacity.StatusFor(o.Status, o.MaxVolunteers, occupied)
	if status == o.Status {
		return status, nil
	}
	if _, err := q.ExecContext(ctx,
		`UPDATE opportunities SET status = ? WHERE id = ?`, string(status), o.ID); err != nil {
		return "", fmt.Errorf("update opportunity status: %w", err)
	}
	return status, nil
}

// Signup registers a volunteer for an opportunity. The capacity check and
// the write happen in one transaction that holds the database write lock,
// so concurrent signups cannot overfill an opportunity.
//
// Signing up again while already holding a slot re-confirms the existing
// row. A volunteer whose attendance was already recorded gets the row back
// unchanged.
func (s *RSVPStore) Signup(ctx context.Context, volunteerID, opportunityID int64, notes string) (*SignupResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	o, err := getOpportunity(ctx, tx, opportunityID)
	if err != nil {
		return nil, err
	}
	if o.Status.Closed() {
		return nil, fmt.Errorf("opportunity %d is %s: %w", opportunityID, o.Status, model.ErrOpportunityClosed)
	}

	existing, err := getRSVP(ctx, tx, volunteerID, opportunityID)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}

	if existing != nil && (existing.Status == model.RSVPAttended || existing.Status == model.RSVPNoShow) {
		return &SignupResult{RSVP: *existing, OpportunityStatus: o.Status}, nil
	}

	now := s.now().UTC()
	claimed := false

	if existing != nil && capacity.Occupies(existing.Status) {
		_, err = tx.ExecContext(ctx,
			`UPDATE rsvps SET status = ?, rsvp_at = ?, notes = ? WHERE volunteer_id = ? AND opportunity_id = ?`,
			string(model.RSVPConfirmed), now, notes, volunteerID, opportunityID,
		)
		if err != nil {
			return nil, fmt.Errorf("reconfirm rsvp: %w", err)
		}
	} else {
		occupied, err := countOccupied(ctx, tx, opportunityID)
		if err != nil {
			return nil, err
		}
		if capacity.IsFull(o.MaxVolunteers, occupied) {
			return nil, fmt.Errorf("opportunity %d: %w", opportunityID, model.ErrOpportunityFull)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO rsvps (volunteer_id, opportunity_id, status, rsvp_at, notes)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(volunteer_id, opportunity_id)
			 DO UPDATE SET status = excluded.status, rsvp_at = excluded.rsvp_at, notes = excluded.notes`,
			volunteerID, opportunityID, string(model.RSVPConfirmed), now, notes,
		)
		if err != nil {
			return nil, fmt.Errorf("insert rsvp: %w", err)
		}
		claimed = true
	}

	status, err := syncStatus(ctx, tx, o)
	if err != nil {
		return nil, err
	}

	r, err := getRSVP(ctx, tx, volunteerID, opportunityID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &SignupResult{RSVP: *r, OpportunityStatus: status, Claimed: claimed}, nil
}

// Cancel releases the volunteer's slot by marking the RSVP declined. A row
// that is already declined is returned unchanged; recorded attendance
// cannot be canceled.
func (s *RSVPStore) Cancel(ctx context.Context, volunteerID, opportunityID int64) (*SignupResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	o, err := getOpportunity(ctx, tx, opportunityID)
	if err != nil {
		return nil, err
	}
	r, err := getRSVP(ctx, tx, volunteerID, opportunityID)
	if err != nil {
		return nil, err
	}

	switch r.Status {
	case model.RSVPDeclined:
		return &SignupResult{RSVP: *r, OpportunityStatus: o.Status}, nil
	case model.RSVPAttended, model.RSVPNoShow:
		return nil, fmt.Errorf("cancel %s rsvp: %w", r.Status, model.ErrInvalidTransition)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE rsvps SET status = ? WHERE volunteer_id = ? AND opportunity_id = ?`,
		string(model.RSVPDeclined), volunteerID, opportunityID,
	); err != nil {
		return nil, fmt.Errorf("decline rsvp: %w", err)
	}

	status, err := syncStatus(ctx, tx, o)
	if err != nil {
		return nil, err
	}
	r.Status = model.RSVPDeclined

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &SignupResult{RSVP: *r, OpportunityStatus: status}, nil
}

// MarkAttendance records whether a volunteer showed up. Only attended,
// no_show and pending (undo) are accepted, and a declined RSVP cannot be
// marked.
func (s *RSVPStore) MarkAttendance(ctx context.Context, volunteerID, opportunityID int64, status model.RSVPStatus) (*model.RSVP, error) {
	switch status {
	case model.RSVPAttended, model.RSVPNoShow, model.RSVPPending:
	default:
		return nil, fmt.Errorf("%w: attendance must be attended, no_show or pending", model.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	o, err := getOpportunity(ctx, tx, opportunityID)
	if err != nil {
		return nil, err
	}
	r, err := getRSVP(ctx, tx, volunteerID, opportunityID)
	if err != nil {
		return nil, err
	}
	if r.Status == model.RSVPDeclined {
		return nil, fmt.Errorf("mark declined rsvp: %w", model.ErrInvalidTransition)
	}

	// no_show gives the slot back; taking it again needs room.
	if !capacity.Occupies(r.Status) && capacity.Occupies(status) {
		occupied, err := countOccupied(ctx, tx, opportunityID)
		if err != nil {
			return nil, err
		}
		if capacity.IsFull(o.MaxVolunteers, occupied) {
			return nil, fmt.Errorf("opportunity %d: %w", opportunityID, model.ErrOpportunityFull)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE rsvps SET status = ? WHERE volunteer_id = ? AND opportunity_id = ?`,
		string(status), volunteerID, opportunityID,
	); err != nil {
		return nil, fmt.Errorf("mark attendance: %w", err)
	}
	if _, err := syncStatus(ctx, tx, o); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	r.Status = status
	return r, nil
}

// Get returns a single ledger row or model.ErrNotFound.
func (s *RSVPStore) Get(ctx context.Context, volunteerID, opportunityID int64) (*model.RSVP, error) {
	return getRSVP(ctx, s.db, volunteerID, opportunityID)
}

// ListByVolunteer returns every RSVP of the volunteer, newest first, plus
// the subset for opportunities that have not started yet, soonest first.
// Upcoming keeps every status; callers filter declined rows if they need to.
func (s *RSVPStore) ListByVolunteer(ctx context.Context, volunteerID int64, now time.Time) (*model.VolunteerRSVPs, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+rsvpCols+` FROM rsvps r JOIN opportunities o ON o.id = r.opportunity_id
		 WHERE r.volunteer_id = ?
		 ORDER BY r.rsvp_at DESC, r.opportunity_id DESC`,
		volunteerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list volunteer rsvps: %w", err)
	}
	defer rows.Close()

	out := &model.VolunteerRSVPs{Upcoming: []model.RSVP{}, All: []model.RSVP{}}
	for rows.Next() {
		r, err := scanRSVP(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rsvp: %w", err)
		}
		out.All = append(out.All, *r)
		if r.OpportunityStart.After(now) {
			out.Upcoming = append(out.Upcoming, *r)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(out.Upcoming, func(i, j int) bool {
		return out.Upcoming[i].OpportunityStart.Before(out.Upcoming[j].OpportunityStart)
	})
	return out, nil
}

// ListByOpportunity returns the roster of an opportunity in signup order.
func (s *RSVPStore) ListByOpportunity(ctx context.Context, opportunityID int64) ([]model.RSVP, error) {
	if _, err := getOpportunity(ctx, s.db, opportunityID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+rsvpCols+` FROM rsvps r JOIN opportunities o ON o.id = r.opportunity_id
		 WHERE r.opportunity_id = ?
		 ORDER BY r.rsvp_at ASC, r.volunteer_id ASC`,
		opportunityID,
	)
	if err != nil {
		return nil, fmt.Errorf("list opportunity rsvps: %w", err)
	}
	defer rows.Close()

	list := []model.RSVP{}
	for rows.Next() {
		r, err := scanRSVP(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rsvp: %w", err)
		}
		list = append(list, *r)
	}
	return list, rows.Err()
}
