package model

import "errors"

var (
	ErrInvalidRule        = errors.New("invalid recurrence rule")
	ErrInvalidWindow      = errors.New("invalid time window")
	ErrRecurrenceTooLarge = errors.New("recurrence produces too many occurrences")
	ErrNotFound           = errors.New("not found")
	ErrOpportunityFull    = errors.New("opportunity is full")
	ErrBatchCreateFailed  = errors.New("batch create failed")

	ErrOpportunityClosed = errors.New("opportunity is not accepting signups")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidTransition = errors.New("rsvp status cannot change")
)
