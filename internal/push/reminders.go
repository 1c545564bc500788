package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/volunteerd/internal/model"
)

type sender interface {
	Send(ctx context.Context, sub model.PushSubscription, payload Payload) error
}

// reminderStore is the slice of store.PushStore the reminder loop uses.
type reminderStore interface {
	DueReminders(ctx context.Context, from, to time.Time) ([]model.Reminder, error)
	ListByVolunteer(ctx context.Context, volunteerID int64) ([]model.PushSubscription, error)
	DeleteByEndpoint(ctx context.Context, endpoint string) error
	MarkReminded(ctx context.Context, volunteerID, opportunityID int64, at time.Time) error
}

// Reminders pushes a notice to every device of a volunteer shortly before an
// opportunity they signed up for starts. Each volunteer is reminded at most
// once per opportunity.
type Reminders struct {
	sender sender
	store  reminderStore
	lead   time.Duration
	logger *slog.Logger
	now    func() time.Time
}

func NewReminders(s sender, store reminderStore, lead time.Duration, logger *slog.Logger) *Reminders {
	return &Reminders{sender: s, store: store, lead: lead, logger: logger, now: time.Now}
}

// Tick sends every reminder now due and returns how many volunteers were
// reached.
func (r *Reminders) Tick(ctx context.Context) (int, error) {
	now := r.now()
	due, err := r.store.DueReminders(ctx, now, now.Add(r.lead))
	if err != nil {
		return 0, err
	}

	reached := 0
	for _, rem := range due {
		if r.remind(ctx, rem) {
			reached++
		}
		// Recorded even when every device failed so a dead endpoint is not
		// retried on each tick.
		if err := r.store.MarkReminded(ctx, rem.VolunteerID, rem.OpportunityID, now); err != nil {
			return reached, err
		}
	}
	return reached, nil
}

func (r *Reminders) remind(ctx context.Context, rem model.Reminder) bool {
	subs, err := r.store.ListByVolunteer(ctx, rem.VolunteerID)
	if err != nil {
		r.logger.Warn("list push subscriptions", "volunteer_id", rem.VolunteerID, "error", err)
		return false
	}

	payload := Payload{
		Title: "Upcoming: " + rem.Title,
		Body:  reminderBody(rem, r.now()),
		URL:   fmt.Sprintf("/opportunities/%d", rem.OpportunityID),
		Tag:   fmt.Sprintf("opportunity-%d", rem.OpportunityID),
	}

	delivered := false
	for _, sub := range subs {
		err := r.sender.Send(ctx, sub, payload)
		switch {
		case err == nil:
			delivered = true
		case errors.Is(err, ErrExpired):
			if err := r.store.DeleteByEndpoint(ctx, sub.Endpoint); err != nil {
				r.logger.Warn("drop expired subscription", "endpoint", sub.Endpoint, "error", err)
			}
		default:
			r.logger.Warn("send reminder", "volunteer_id", rem.VolunteerID, "opportunity_id", rem.OpportunityID, "error", err)
		}
	}
	return delivered
}

func reminderBody(rem model.Reminder, now time.Time) string {
	in := rem.StartTime.Sub(now).Round(time.Minute)
	where := ""
	if rem.Location != "" {
		where = " at " + rem.Location
	}
	if in < time.Hour {
		return fmt.Sprintf("Starts in %d minutes%s", int(in.Minutes()), where)
	}
	return fmt.Sprintf("Starts %s%s", rem.StartTime.Format("Mon Jan 2, 3:04 PM MST"), where)
}
