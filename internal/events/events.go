// Package events defines the domain change notifications fanned out to
// websocket clients and the message broker.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	EntityOpportunity = "opportunity"
	EntitySeries      = "series"
	EntityRSVP        = "rsvp"
	EntityHours       = "hours"

	ActionCreated   = "created"
	ActionUpdated   = "updated"
	ActionDeleted   = "deleted"
	ActionCanceled  = "canceled"
	ActionCompleted = "completed"
	ActionSignedUp  = "signed_up"
	ActionDeclined  = "declined"
	ActionAttended  = "attendance"
	ActionLogged    = "logged"
	ActionVerified  = "verified"
)

// Event is a single change. OpportunityID is set for everything tied to an
// opportunity so subscribers can filter on it.
type Event struct {
	Type          string         `json:"type"`
	Entity        string         `json:"entity"`
	Action        string         `json:"action"`
	ID            int64          `json:"id,omitempty"`
	OpportunityID int64          `json:"opportunity_id,omitempty"`
	At            time.Time      `json:"at"`
	Data          map[string]any `json:"data,omitempty"`
}

// New creates an Event with Type derived from entity and action.
func New(entity, action string, id int64, data map[string]any) Event {
	return Event{
		Type:   fmt.Sprintf("%s_%s", entity, action),
		Entity: entity,
		Action: action,
		ID:     id,
		At:     time.Now().UTC(),
		Data:   data,
	}
}

// ForOpportunity sets OpportunityID and returns the event.
func (e Event) ForOpportunity(id int64) Event {
	e.OpportunityID = id
	return e
}

// RoutingKey is the topic used on the broker, e.g. "rsvp.signed_up".
func (e Event) RoutingKey() string {
	return e.Entity + "." + e.Action
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Fanout delivers each event to every publisher. Delivery is best effort:
// failures are logged and never reach the caller.
type Fanout struct {
	logger     *slog.Logger
	publishers []Publisher
}

func NewFanout(logger *slog.Logger, publishers ...Publisher) *Fanout {
	return &Fanout{logger: logger, publishers: publishers}
}

func (f *Fanout) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range f.publishers {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		f.logger.Warn("publish event", "type", e.Type, "id", e.ID, "error", err)
	}
	return nil
}
