package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/volunteerd/internal/capacity"
	"github.com/dukerupert/volunteerd/internal/model"
)

type OpportunityStore struct {
	db *sql.DB
}

func NewOpportunityStore(db *sql.DB) *OpportunityStore {
	return &OpportunityStore{db: db}
}

const opportunityCols = `id, title, description, location, start_time, end_time, status, max_volunteers,
	created_by, is_recurring, recurrence_pattern, series_id, created_at, updated_at`

func scanOpportunity(row scanner) (*model.Opportunity, error) {
	var o model.Opportunity
	var maxVolunteers sql.NullInt64
	var recurringInt int

	err := row.Scan(
		&o.ID, &o.Title, &o.Description, &o.Location, &o.StartTime, &o.EndTime, &o.Status, &maxVolunteers,
		&o.CreatedBy, &recurringInt, &o.RecurrencePattern, &o.SeriesID, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	o.IsRecurring = recurringInt != 0
	if maxVolunteers.Valid {
		n := int(maxVolunteers.Int64)
		o.MaxVolunteers = &n
	}
	o.SkillIDs = []int64{}
	o.InterestIDs = []int64{}
	return &o, nil
}

func validateDraft(d model.OpportunityDraft) error {
	if strings.TrimSpace(d.Title) == "" {
		return fmt.Errorf("%w: title is required", model.ErrInvalidInput)
	}
	if !d.EndTime.After(d.StartTime) {
		return fmt.Errorf("%w: end must be after start", model.ErrInvalidWindow)
	}
	if d.MaxVolunteers != nil && *d.MaxVolunteers < 0 {
		return fmt.Errorf("%w: max volunteers cannot be negative", model.ErrInvalidInput)
	}
	return nil
}

func nullableInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}

func insertOpportunity(ctx context.Context, q querier, d model.OpportunityDraft, seriesID string) (int64, error) {
	result, err := q.ExecContext(ctx,
		`INSERT INTO opportunities (title, description, location, start_time, end_time, status, max_volunteers,
			created_by, is_recurring, recurrence_pattern, series_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		strings.TrimSpace(d.Title), d.Description, d.Location, d.StartTime.UTC(), d.EndTime.UTC(),
		initialStatus(d), nullableInt(d.MaxVolunteers), d.CreatedBy, boolToInt(d.IsRecurring),
		d.RecurrencePattern, seriesID,
	)
	if err != nil {
		return 0, fmt.Errorf("insert opportunity: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// A zero-capacity opportunity is full from the moment it exists.
func initialStatus(d model.OpportunityDraft) model.OpportunityStatus {
	return capacity.StatusFor(model.StatusOpen, d.MaxVolunteers, 0)
}

func insertTags(ctx context.Context, q querier, opportunityID int64, skillIDs, interestIDs []int64) error {
	for _, id := range skillIDs {
		if _, err := q.ExecContext(ctx,
			`INSERT OR IGNORE INTO opportunity_skills (opportunity_id, skill_id) VALUES (?, ?)`,
			opportunityID, id,
		); err != nil {
			return fmt.Errorf("insert skill tag %d: %w", id, err)
		}
	}
	for _, id := range interestIDs {
		if _, err := q.ExecContext(ctx,
			`INSERT OR IGNORE INTO opportunity_interests (opportunity_id, interest_id) VALUES (?, ?)`,
			opportunityID, id,
		); err != nil {
			return fmt.Errorf("insert interest tag %d: %w", id, err)
		}
	}
	return nil
}

// Create persists a single, non-recurring opportunity.
func (s *OpportunityStore) Create(ctx context.Context, d model.OpportunityDraft, skillIDs, interestIDs []int64) (*model.Opportunity, error) {
	if err := validateDraft(d); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	id, err := insertOpportunity(ctx, tx, d, "")
	if err != nil {
		return nil, err
	}
	if err := insertTags(ctx, tx, id, skillIDs, interestIDs); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return s.GetByID(ctx, id)
}

// CreateBatch persists every draft and gives each one the same skill and
// interest tags. It runs in one transaction: either every instance is
// created or none is, and any storage failure is reported as
// model.ErrBatchCreateFailed.
func (s *OpportunityStore) CreateBatch(ctx context.Context, drafts []model.OpportunityDraft, skillIDs, interestIDs []int64) ([]model.Opportunity, error) {
	if len(drafts) == 0 {
		return nil, fmt.Errorf("%w: batch is empty", model.ErrInvalidInput)
	}
	for _, d := range drafts {
		if err := validateDraft(d); err != nil {
			return nil, err
		}
	}

	var seriesID string
	if len(drafts) > 1 || drafts[0].IsRecurring {
		seriesID = uuid.NewString()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin tx: %w", model.ErrBatchCreateFailed, err)
	}
	defer tx.Rollback()

	ids := make([]int64, 0, len(drafts))
	for i, d := range drafts {
		id, err := insertOpportunity(ctx, tx, d, seriesID)
		if err != nil {
			return nil, fmt.Errorf("%w: instance %d: %w", model.ErrBatchCreateFailed, i+1, err)
		}
		if err := insertTags(ctx, tx, id, skillIDs, interestIDs); err != nil {
			return nil, fmt.Errorf("%w: instance %d: %w", model.ErrBatchCreateFailed, i+1, err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %w", model.ErrBatchCreateFailed, err)
	}

	opps := make([]model.Opportunity, 0, len(ids))
	for _, id := range ids {
		o, err := s.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		opps = append(opps, *o)
	}
	return opps, nil
}

func getOpportunity(ctx context.Context, q querier, id int64) (*model.Opportunity, error) {
	row := q.QueryRowContext(ctx, `SELECT `+opportunityCols+` FROM opportunities WHERE id = ?`, id)
	o, err := scanOpportunity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("opportunity %d: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query opportunity: %w", err)
	}
	return o, nil
}

// GetByID returns the opportunity with its tags, or model.ErrNotFound.
func (s *OpportunityStore) GetByID(ctx context.Context, id int64) (*model.Opportunity, error) {
	o, err := getOpportunity(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	opps := []model.Opportunity{*o}
	if err := loadTags(ctx, s.db, opps); err != nil {
		return nil, err
	}
	return &opps[0], nil
}

// GetWithSpots returns the opportunity and its remaining spots, computed
// from the current RSVP rows.
func (s *OpportunityStore) GetWithSpots(ctx context.Context, id int64) (*model.Opportunity, capacity.Spots, error) {
	o, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, capacity.Spots{}, err
	}
	occupied, err := countOccupied(ctx, s.db, id)
	if err != nil {
		return nil, capacity.Spots{}, err
	}
	return o, capacity.SpotsRemaining(o.MaxVolunteers, occupied), nil
}

// CountOccupied returns the number of RSVPs currently holding a slot.
func (s *OpportunityStore) CountOccupied(ctx context.Context, id int64) (int, error) {
	return countOccupied(ctx, s.db, id)
}

func countOccupied(ctx context.Context, q querier, opportunityID int64) (int, error) {
	statuses := capacity.OccupyingStatuses()
	args := []any{opportunityID}
	for _, st := range statuses {
		args = append(args, string(st))
	}

	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM rsvps WHERE opportunity_id = ? AND status IN (`+placeholders(len(statuses))+`)`,
		args...,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count rsvps: %w", err)
	}
	return n, nil
}

func loadTags(ctx context.Context, q querier, opps []model.Opportunity) error {
	if len(opps) == 0 {
		return nil
	}
	index := make(map[int64]int, len(opps))
	args := make([]any, 0, len(opps))
	for i := range opps {
		index[opps[i].ID] = i
		args = append(args, opps[i].ID)
	}
	in := placeholders(len(args))

	rows, err := q.QueryContext(ctx,
		`SELECT opportunity_id, skill_id FROM opportunity_skills WHERE opportunity_id IN (`+in+`) ORDER BY skill_id`, args...)
	if err != nil {
		return fmt.Errorf("query skill tags: %w", err)
	}
	for rows.Next() {
		var oppID, tagID int64
		if err := rows.Scan(&oppID, &tagID); err != nil {
			rows.Close()
			return fmt.Errorf("scan skill tag: %w", err)
		}
		o := &opps[index[oppID]]
		o.SkillIDs = append(o.SkillIDs, tagID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = q.QueryContext(ctx,
		`SELECT opportunity_id, interest_id FROM opportunity_interests WHERE opportunity_id IN (`+in+`) ORDER BY interest_id`, args...)
	if err != nil {
		return fmt.Errorf("query interest tags: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var oppID, tagID int64
		if err := rows.Scan(&oppID, &tagID); err != nil {
			return fmt.Errorf("scan interest tag: %w", err)
		}
		o := &opps[index[oppID]]
		o.InterestIDs = append(o.InterestIDs, tagID)
	}
	return rows.Err()
}

// List returns opportunities matching filter, ordered by start time.
func (s *OpportunityStore) List(ctx context.Context, filter model.OpportunityFilter, page model.Page) ([]model.Opportunity, error) {
	page = page.Normalize()

	var where []string
	var args []any
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.From != nil {
		where = append(where, "end_time > ?")
		args = append(args, filter.From.UTC())
	}
	if filter.To != nil {
		where = append(where, "start_time < ?")
		args = append(args, filter.To.UTC())
	}
	if filter.SeriesID != "" {
		where = append(where, "series_id = ?")
		args = append(args, filter.SeriesID)
	}
	if filter.CreatedBy != 0 {
		where = append(where, "created_by = ?")
		args = append(args, filter.CreatedBy)
	}
	if filter.SkillID != 0 {
		where = append(where, "id IN (SELECT opportunity_id FROM opportunity_skills WHERE skill_id = ?)")
		args = append(args, filter.SkillID)
	}
	if filter.InterestID != 0 {
		where = append(where, "id IN (SELECT opportunity_id FROM opportunity_interests WHERE interest_id = ?)")
		args = append(args, filter.InterestID)
	}

	query := `SELECT ` + opportunityCols + ` FROM opportunities`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY start_time ASC, id ASC LIMIT ? OFFSET ?`
	args = append(args, page.Limit, page.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list opportunities: %w", err)
	}
	defer rows.Close()

	opps := []model.Opportunity{}
	for rows.Next() {
		o, err := scanOpportunity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan opportunity: %w", err)
		}
		opps = append(opps, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if err := loadTags(ctx, s.db, opps); err != nil {
		return nil, err
	}
	return opps, nil
}

// Update applies a partial change. A change that leaves end <= start fails
// with model.ErrInvalidWindow. Capacity changes re-evaluate open/full.
func (s *OpportunityStore) Update(ctx context.Context, id int64, patch model.OpportunityPatch) (*model.Opportunity, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	o, err := getOpportunity(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if patch.Title != nil {
		o.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Description != nil {
		o.Description = *patch.Description
	}
	if patch.Location != nil {
		o.Location = *patch.Location
	}
	if patch.StartTime != nil {
		o.StartTime = *patch.StartTime
	}
	if patch.EndTime != nil {
		o.EndTime = *patch.EndTime
	}
	if patch.ClearMaxVolunteers {
		o.MaxVolunteers = nil
	} else if patch.MaxVolunteers != nil {
		n := *patch.MaxVolunteers
		o.MaxVolunteers = &n
	}

	err = validateDraft(model.OpportunityDraft{
		Title:         o.Title,
		StartTime:     o.StartTime,
		EndTime:       o.EndTime,
		MaxVolunteers: o.MaxVolunteers,
	})
	if err != nil {
		return nil, err
	}

	occupied, err := countOccupied(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	status := capacity.StatusFor(o.Status, o.MaxVolunteers, occupied)

	_, err = tx.ExecContext(ctx,
		`UPDATE opportunities
		 SET title = ?, description = ?, location = ?, start_time = ?, end_time = ?, max_volunteers = ?, status = ?
		 WHERE id = ?`,
		o.Title, o.Description, o.Location, o.StartTime.UTC(), o.EndTime.UTC(), nullableInt(o.MaxVolunteers), string(status), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update opportunity: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return s.GetByID(ctx, id)
}

// Cancel marks the opportunity canceled. Existing RSVPs are kept.
func (s *OpportunityStore) Cancel(ctx context.Context, id int64) (*model.Opportunity, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE opportunities SET status = ? WHERE id = ?`, string(model.StatusCanceled), id)
	if err != nil {
		return nil, fmt.Errorf("cancel opportunity: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("opportunity %d: %w", id, model.ErrNotFound)
	}
	return s.GetByID(ctx, id)
}

// MarkCompleted moves every open or full opportunity that ended before now
// to completed and returns how many changed.
func (s *OpportunityStore) MarkCompleted(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE opportunities SET status = ? WHERE end_time < ? AND status IN (?, ?)`,
		string(model.StatusCompleted), now.UTC(), string(model.StatusOpen), string(model.StatusFull),
	)
	if err != nil {
		return 0, fmt.Errorf("mark completed: %w", err)
	}
	return result.RowsAffected()
}

// Delete removes the opportunity together with its RSVPs, hour logs and tags.
func (s *OpportunityStore) Delete(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := getOpportunity(ctx, tx, id); err != nil {
		return err
	}
	if err := deleteCascade(ctx, tx, id); err != nil {
		return err
	}
	return tx.Commit()
}

// cascadeTables lists dependent tables in deletion order; the opportunity
// row itself goes last.
var cascadeTables = []string{"rsvps", "hour_logs", "reminders_sent", "opportunity_skills", "opportunity_interests"}

func deleteCascade(ctx context.Context, q querier, id int64) error {
	for _, table := range cascadeTables {
		if _, err := q.ExecContext(ctx, `DELETE FROM `+table+` WHERE opportunity_id = ?`, id); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM opportunities WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete opportunity: %w", err)
	}
	return nil
}
