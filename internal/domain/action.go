package domain

import "time"

type Urgency string

const (
	UrgencyInfo    Urgency = "info"
	UrgencyWarning Urgency = "warning"
	UrgencyDanger  Urgency = "danger"
)

// Rank orders urgencies for worklist sorting: danger first, info last.
// Unknown values sort after everything.
func (u Urgency) Rank() int {
	switch u {
	case UrgencyDanger:
		return 0
	case UrgencyWarning:
		return 1
	case UrgencyInfo:
		return 2
	default:
		return 9
	}
}

// UserAction is a transient derivation output: this incident requires this
// action by this time, at this urgency. It is never persisted.
type UserAction struct {
	Urgency      Urgency   `json:"urgency"`
	Message      string    `json:"message"`
	Incident     *Incident `json:"incident"`
	TimeRequired time.Time `json:"time_required"`
}
