package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/volunteerd/internal/model"
)

type PushStore struct {
	db *sql.DB
}

func NewPushStore(db *sql.DB) *PushStore {
	return &PushStore{db: db}
}

const subscriptionCols = `id, volunteer_id, endpoint, p256dh_key, auth_key, created_at`

func scanSubscription(row scanner) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	if err := row.Scan(&sub.ID, &sub.VolunteerID, &sub.Endpoint, &sub.P256dhKey, &sub.AuthKey, &sub.CreatedAt); err != nil {
		return nil, err
	}
	return &sub, nil
}

// Subscribe registers endpoint for the volunteer. An endpoint already known
// moves to the caller with its keys refreshed.
func (s *PushStore) Subscribe(ctx context.Context, volunteerID int64, endpoint, p256dh, auth string) (*model.PushSubscription, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" || p256dh == "" || auth == "" {
		return nil, fmt.Errorf("%w: endpoint and keys are required", model.ErrInvalidInput)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO push_subscriptions (volunteer_id, endpoint, p256dh_key, auth_key)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(endpoint) DO UPDATE SET
		   volunteer_id = excluded.volunteer_id,
		   p256dh_key = excluded.p256dh_key,
		   auth_key = excluded.auth_key`,
		volunteerID, endpoint, p256dh, auth,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert push subscription: %w", err)
	}

	sub, err := scanSubscription(s.db.QueryRowContext(ctx,
		`SELECT `+subscriptionCols+` FROM push_subscriptions WHERE endpoint = ?`, endpoint))
	if err != nil {
		return nil, fmt.Errorf("query push subscription: %w", err)
	}
	return sub, nil
}

// Unsubscribe removes one of the volunteer's endpoints.
func (s *PushStore) Unsubscribe(ctx context.Context, volunteerID int64, endpoint string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM push_subscriptions WHERE volunteer_id = ? AND endpoint = ?`, volunteerID, endpoint)
	if err != nil {
		return fmt.Errorf("delete push subscription: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("push subscription: %w", model.ErrNotFound)
	}
	return nil
}

// DeleteByEndpoint drops a subscription the push service reported gone.
func (s *PushStore) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM push_subscriptions WHERE endpoint = ?`, endpoint); err != nil {
		return fmt.Errorf("delete push subscription: %w", err)
	}
	return nil
}

func (s *PushStore) ListByVolunteer(ctx context.Context, volunteerID int64) ([]model.PushSubscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+subscriptionCols+` FROM push_subscriptions WHERE volunteer_id = ? ORDER BY id`, volunteerID)
	if err != nil {
		return nil, fmt.Errorf("list push subscriptions: %w", err)
	}
	defer rows.Close()

	subs := []model.PushSubscription{}
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan push subscription: %w", err)
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

// DueReminders returns volunteers holding a pending or confirmed RSVP for an
// active opportunity starting in (from, to] who have not been reminded yet
// and have at least one push subscription.
func (s *PushStore) DueReminders(ctx context.Context, from, to time.Time) ([]model.Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.volunteer_id, o.id, o.title, o.location, o.start_time
		 FROM rsvps r
		 JOIN opportunities o ON o.id = r.opportunity_id
		 WHERE r.status IN (?, ?)
		   AND o.status IN (?, ?)
		   AND o.start_time > ? AND o.start_time <= ?
		   AND EXISTS (SELECT 1 FROM push_subscriptions p WHERE p.volunteer_id = r.volunteer_id)
		   AND NOT EXISTS (SELECT 1 FROM reminders_sent rs
		                   WHERE rs.volunteer_id = r.volunteer_id AND rs.opportunity_id = r.opportunity_id)
		 ORDER BY o.start_time, o.id, r.volunteer_id`,
		model.RSVPPending, model.RSVPConfirmed,
		model.StatusOpen, model.StatusFull,
		from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("query due reminders: %w", err)
	}
	defer rows.Close()

	var due []model.Reminder
	for rows.Next() {
		var r model.Reminder
		if err := rows.Scan(&r.VolunteerID, &r.OpportunityID, &r.Title, &r.Location, &r.StartTime); err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		due = append(due, r)
	}
	return due, rows.Err()
}

// MarkReminded records that the volunteer was reminded about the
// opportunity. Marking twice is a no-op.
func (s *PushStore) MarkReminded(ctx context.Context, volunteerID, opportunityID int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO reminders_sent (volunteer_id, opportunity_id, sent_at) VALUES (?, ?, ?)`,
		volunteerID, opportunityID, at.UTC())
	if err != nil {
		return fmt.Errorf("record reminder: %w", err)
	}
	return nil
}
