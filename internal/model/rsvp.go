package model

import "time"

type RSVPStatus string

const (
	RSVPPending   RSVPStatus = "pending"
	RSVPConfirmed RSVPStatus = "confirmed"
	RSVPDeclined  RSVPStatus = "declined"
	RSVPAttended  RSVPStatus = "attended"
	RSVPNoShow    RSVPStatus = "no_show"
)

func (s RSVPStatus) Valid() bool {
	switch s {
	case RSVPPending, RSVPConfirmed, RSVPDeclined, RSVPAttended, RSVPNoShow:
		return true
	}
	return false
}

type RSVP struct {
	VolunteerID      int64      `json:"volunteer_id"`
	OpportunityID    int64      `json:"opportunity_id"`
	Status           RSVPStatus `json:"status"`
	RSVPAt           time.Time  `json:"rsvp_at"`
	Notes            string     `json:"notes"`
	OpportunityTitle string     `json:"opportunity_title,omitempty"`
	OpportunityStart time.Time  `json:"opportunity_start"`
}

// VolunteerRSVPs is a volunteer's RSVP history split for display.
type VolunteerRSVPs struct {
	Upcoming []RSVP `json:"upcoming"`
	All      []RSVP `json:"all"`
}
