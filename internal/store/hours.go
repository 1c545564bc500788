package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dukerupert/volunteerd/internal/model"
)

const MaxHoursPerLog = 24

type HourStore struct {
	db *sql.DB
}

func NewHourStore(db *sql.DB) *HourStore {
	return &HourStore{db: db}
}

const hourCols = `id, volunteer_id, opportunity_id, hours, notes, verified, verified_by, verified_at, created_at`

func scanHourLog(row scanner) (*model.HourLog, error) {
	var h model.HourLog
	var verifiedInt int
	var verifiedBy sql.NullInt64
	var verifiedAt sql.NullTime

	if err := row.Scan(&h.ID, &h.VolunteerID, &h.OpportunityID, &h.Hours, &h.Notes,
		&verifiedInt, &verifiedBy, &verifiedAt, &h.CreatedAt); err != nil {
		return nil, err
	}
	h.Verified = verifiedInt != 0
	if verifiedBy.Valid {
		id := verifiedBy.Int64
		h.VerifiedBy = &id
	}
	if verifiedAt.Valid {
		t := verifiedAt.Time
		h.VerifiedAt = &t
	}
	return &h, nil
}

// Log records hours a volunteer worked on an opportunity. The volunteer
// must hold an RSVP for it that was not declined.
func (s *HourStore) Log(ctx context.Context, volunteerID, opportunityID int64, hours float64, notes string) (*model.HourLog, error) {
	if hours <= 0 || hours > MaxHoursPerLog {
		return nil, fmt.Errorf("%w: hours must be in (0, %d]", model.ErrInvalidInput, MaxHoursPerLog)
	}

	r, err := getRSVP(ctx, s.db, volunteerID, opportunityID)
	if err != nil {
		return nil, err
	}
	if r.Status == model.RSVPDeclined {
		return nil, fmt.Errorf("log hours on declined rsvp: %w", model.ErrInvalidTransition)
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO hour_logs (volunteer_id, opportunity_id, hours, notes) VALUES (?, ?, ?, ?)`,
		volunteerID, opportunityID, hours, notes,
	)
	if err != nil {
		return nil, fmt.Errorf("insert hour log: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *HourStore) GetByID(ctx context.Context, id int64) (*model.HourLog, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+hourCols+` FROM hour_logs WHERE id = ?`, id)
	h, err := scanHourLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("hour log %d: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query hour log: %w", err)
	}
	return h, nil
}

// Verify marks a log as checked by a staff member. Verifying twice keeps
// the first verifier.
func (s *HourStore) Verify(ctx context.Context, id, verifierID int64, now time.Time) (*model.HourLog, error) {
	h, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if h.Verified {
		return h, nil
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE hour_logs SET verified = 1, verified_by = ?, verified_at = ? WHERE id = ?`,
		verifierID, now.UTC(), id,
	); err != nil {
		return nil, fmt.Errorf("verify hour log: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *HourStore) ListByVolunteer(ctx context.Context, volunteerID int64) ([]model.HourLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+hourCols+` FROM hour_logs WHERE volunteer_id = ? ORDER BY created_at DESC, id DESC`,
		volunteerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list hour logs: %w", err)
	}
	defer rows.Close()

	logs := []model.HourLog{}
	for rows.Next() {
		h, err := scanHourLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scan hour log: %w", err)
		}
		logs = append(logs, *h)
	}
	return logs, rows.Err()
}

// TotalVerified sums the verified hours of a volunteer.
func (s *HourStore) TotalVerified(ctx context.Context, volunteerID int64) (float64, error) {
	var total float64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(hours), 0) FROM hour_logs WHERE volunteer_id = ? AND verified = 1`,
		volunteerID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum hours: %w", err)
	}
	return total, nil
}
