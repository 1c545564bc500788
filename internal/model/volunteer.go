package model

import "time"

type Volunteer struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Tag is a catalog entry: either a skill or an interest.
type Tag struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type HourLog struct {
	ID            int64      `json:"id"`
	VolunteerID   int64      `json:"volunteer_id"`
	OpportunityID int64      `json:"opportunity_id"`
	Hours         float64    `json:"hours"`
	Notes         string     `json:"notes"`
	Verified      bool       `json:"verified"`
	VerifiedBy    *int64     `json:"verified_by"`
	VerifiedAt    *time.Time `json:"verified_at"`
	CreatedAt     time.Time  `json:"created_at"`
}
