package model

import "time"

type OpportunityStatus string

const (
	StatusOpen      OpportunityStatus = "open"
	StatusFull      OpportunityStatus = "full"
	StatusCompleted OpportunityStatus = "completed"
	StatusCanceled  OpportunityStatus = "canceled"
)

// Valid reports whether s is one of the known opportunity statuses.
func (s OpportunityStatus) Valid() bool {
	switch s {
	case StatusOpen, StatusFull, StatusCompleted, StatusCanceled:
		return true
	}
	return false
}

// Closed reports whether the opportunity no longer accepts signups.
func (s OpportunityStatus) Closed() bool {
	return s == StatusCompleted || s == StatusCanceled
}

type Opportunity struct {
	ID                int64             `json:"id"`
	Title             string            `json:"title"`
	Description       string            `json:"description"`
	Location          string            `json:"location"`
	StartTime         time.Time         `json:"start_time"`
	EndTime           time.Time         `json:"end_time"`
	Status            OpportunityStatus `json:"status"`
	MaxVolunteers     *int              `json:"max_volunteers"`
	CreatedBy         int64             `json:"created_by"`
	IsRecurring       bool              `json:"is_recurring"`
	RecurrencePattern string            `json:"recurrence_pattern,omitempty"`
	SeriesID          string            `json:"series_id,omitempty"`
	SkillIDs          []int64           `json:"skill_ids"`
	InterestIDs       []int64           `json:"interest_ids"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// OpportunityDraft carries everything needed to persist one opportunity
// instance. Recurring batches share every field except StartTime/EndTime.
type OpportunityDraft struct {
	Title             string
	Description       string
	Location          string
	StartTime         time.Time
	EndTime           time.Time
	MaxVolunteers     *int
	CreatedBy         int64
	IsRecurring       bool
	RecurrencePattern string
}

// OpportunityPatch holds the fields of a partial update. Nil means unchanged.
// ClearMaxVolunteers switches the opportunity to unlimited capacity.
type OpportunityPatch struct {
	Title              *string
	Description        *string
	Location           *string
	StartTime          *time.Time
	EndTime            *time.Time
	MaxVolunteers      *int
	ClearMaxVolunteers bool
}

// OpportunityFilter narrows List results. Zero values are ignored.
type OpportunityFilter struct {
	Status     OpportunityStatus
	From       *time.Time
	To         *time.Time
	SeriesID   string
	CreatedBy  int64
	SkillID    int64
	InterestID int64
}

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 200
)

type Page struct {
	Limit  int
	Offset int
}

// Normalize clamps the page to sane bounds.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
