// Package capacity computes how many volunteer slots an opportunity has left.
// Everything here is derived from the live RSVP set; nothing is stored.
package capacity

import (
	"encoding/json"
	"fmt"

	"github.com/dukerupert/volunteerd/internal/model"
)

// Spots is the number of open slots, or Unlimited when the opportunity has no cap.
type Spots struct {
	Remaining int
	Unlimited bool
}

func (s Spots) String() string {
	if s.Unlimited {
		return "unlimited"
	}
	return fmt.Sprintf("%d", s.Remaining)
}

// MarshalJSON encodes unlimited capacity as the string "unlimited" and a
// bounded count as a plain number.
func (s Spots) MarshalJSON() ([]byte, error) {
	if s.Unlimited {
		return []byte(`"unlimited"`), nil
	}
	return json.Marshal(s.Remaining)
}

func (s *Spots) UnmarshalJSON(b []byte) error {
	if string(b) == `"unlimited"` {
		*s = Spots{Unlimited: true}
		return nil
	}
	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("spots: %w", err)
	}
	*s = Spots{Remaining: n}
	return nil
}

// Occupies reports whether an RSVP in this status holds a slot.
func Occupies(status model.RSVPStatus) bool {
	switch status {
	case model.RSVPPending, model.RSVPConfirmed, model.RSVPAttended:
		return true
	}
	return false
}

// OccupyingStatuses lists the statuses counted against capacity.
func OccupyingStatuses() []model.RSVPStatus {
	return []model.RSVPStatus{model.RSVPPending, model.RSVPConfirmed, model.RSVPAttended}
}

// SpotsRemaining returns max(0, maxVolunteers-occupied), or Unlimited when
// maxVolunteers is nil.
func SpotsRemaining(maxVolunteers *int, occupied int) Spots {
	if maxVolunteers == nil {
		return Spots{Unlimited: true}
	}
	return Spots{Remaining: max(0, *maxVolunteers-occupied)}
}

// IsFull is true only for capped opportunities with no spots left.
func IsFull(maxVolunteers *int, occupied int) bool {
	if maxVolunteers == nil {
		return false
	}
	return SpotsRemaining(maxVolunteers, occupied).Remaining == 0
}

// StatusFor returns the open/full status implied by the occupied count.
// Completed and canceled are terminal and returned unchanged.
func StatusFor(current model.OpportunityStatus, maxVolunteers *int, occupied int) model.OpportunityStatus {
	if current.Closed() {
		return current
	}
	if IsFull(maxVolunteers, occupied) {
		return model.StatusFull
	}
	return model.StatusOpen
}
