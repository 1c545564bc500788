package model

import "time"

// PushSubscription is a browser push endpoint registered by a volunteer.
type PushSubscription struct {
	ID          int64     `json:"id"`
	VolunteerID int64     `json:"volunteer_id"`
	Endpoint    string    `json:"endpoint"`
	P256dhKey   string    `json:"-"`
	AuthKey     string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

// Reminder is an upcoming shift a volunteer has not yet been reminded of.
type Reminder struct {
	VolunteerID   int64
	OpportunityID int64
	Title         string
	Location      string
	StartTime     time.Time
}
