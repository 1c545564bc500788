package store

import (
	"context"
	"fmt"

	"github.com/dukerupert/volunteerd/internal/model"
	"github.com/dukerupert/volunteerd/internal/recurrence"
)

// ExpandDrafts turns one base draft into one draft per occurrence of rule.
// The base start/end are the first occurrence; every other field is copied.
func ExpandDrafts(base model.OpportunityDraft, rule recurrence.Rule) ([]model.OpportunityDraft, error) {
	occs, err := recurrence.Expand(rule, base.StartTime, base.EndTime)
	if err != nil {
		return nil, err
	}

	pattern := rule.String()
	drafts := make([]model.OpportunityDraft, 0, len(occs))
	for _, occ := range occs {
		d := base
		d.StartTime = occ.Start
		d.EndTime = occ.End
		d.IsRecurring = true
		d.RecurrencePattern = pattern
		if base.MaxVolunteers != nil {
			n := *base.MaxVolunteers
			d.MaxVolunteers = &n
		}
		drafts = append(drafts, d)
	}
	return drafts, nil
}

// CreateRecurring expands rule from base and persists the whole series
// atomically.
func (s *OpportunityStore) CreateRecurring(ctx context.Context, base model.OpportunityDraft, rule recurrence.Rule, skillIDs, interestIDs []int64) ([]model.Opportunity, error) {
	drafts, err := ExpandDrafts(base, rule)
	if err != nil {
		return nil, err
	}
	return s.CreateBatch(ctx, drafts, skillIDs, interestIDs)
}

// DeleteSeries removes every instance of a series, with the same cascade as
// Delete, and returns how many opportunities were removed.
func (s *OpportunityStore) DeleteSeries(ctx context.Context, seriesID string) (int, error) {
	if seriesID == "" {
		return 0, fmt.Errorf("%w: series id is required", model.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT id FROM opportunities WHERE series_id = ?`, seriesID)
	if err != nil {
		return 0, fmt.Errorf("query series: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan series id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, fmt.Errorf("series %s: %w", seriesID, model.ErrNotFound)
	}

	for _, id := range ids {
		if err := deleteCascade(ctx, tx, id); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(ids), nil
}
