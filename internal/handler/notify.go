package handler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/volunteerd/internal/email"
	"github.com/dukerupert/volunteerd/internal/model"
	"github.com/dukerupert/volunteerd/internal/store"
)

const notifyTimeout = 15 * time.Second

type Mailer interface {
	Configured() bool
	SendSignupConfirmation(ctx context.Context, n email.OpportunityNotice) error
	SendOpportunityCanceled(ctx context.Context, n email.OpportunityNotice) error
}

// Notifier sends volunteer email in the background. Failures are logged and
// never affect the request that triggered them.
type Notifier struct {
	mailer     Mailer
	volunteers *store.VolunteerStore
	logger     *slog.Logger
	wg         sync.WaitGroup
}

func NewNotifier(mailer Mailer, volunteers *store.VolunteerStore, logger *slog.Logger) *Notifier {
	return &Notifier{mailer: mailer, volunteers: volunteers, logger: logger}
}

// SignupConfirmed emails the volunteer a confirmation for o.
func (n *Notifier) SignupConfirmed(ctx context.Context, volunteerID int64, o *model.Opportunity) {
	n.run(ctx, func(ctx context.Context) {
		n.sendTo(ctx, volunteerID, o, n.mailer.SendSignupConfirmation)
	})
}

// OpportunityCanceled emails every volunteer on the roster still holding a
// slot.
func (n *Notifier) OpportunityCanceled(ctx context.Context, o *model.Opportunity, roster []model.RSVP) {
	n.run(ctx, func(ctx context.Context) {
		for _, r := range roster {
			if r.Status != model.RSVPPending && r.Status != model.RSVPConfirmed {
				continue
			}
			n.sendTo(ctx, r.VolunteerID, o, n.mailer.SendOpportunityCanceled)
		}
	})
}

// Wait blocks until every pending notification has finished.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) run(ctx context.Context, fn func(context.Context)) {
	if n == nil || n.mailer == nil || !n.mailer.Configured() {
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()
		fn(ctx)
	}()
}

func (n *Notifier) sendTo(ctx context.Context, volunteerID int64, o *model.Opportunity,
	send func(context.Context, email.OpportunityNotice) error) {
	v, err := n.volunteers.GetByID(ctx, volunteerID)
	if errors.Is(err, model.ErrNotFound) {
		n.logger.Debug("no volunteer profile, skipping email", "volunteer_id", volunteerID)
		return
	}
	if err != nil {
		n.logger.Warn("load volunteer for email", "volunteer_id", volunteerID, "error", err)
		return
	}
	if v.Email == "" {
		return
	}

	err = send(ctx, email.OpportunityNotice{
		To:            v.Email,
		VolunteerName: v.Name,
		OpportunityID: o.ID,
		Title:         o.Title,
		Location:      o.Location,
		Start:         o.StartTime,
		End:           o.EndTime,
	})
	if err != nil {
		n.logger.Warn("send email", "volunteer_id", volunteerID, "opportunity_id", o.ID, "error", err)
	}
}
