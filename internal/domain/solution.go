package domain

import "time"

type SolutionPriority string

const (
	SolutionPriorityA SolutionPriority = "A"
	SolutionPriorityB SolutionPriority = "B"
	SolutionPriorityC SolutionPriority = "C"
)

type SolutionTimeframe string

const (
	TimeframeShortTerm  SolutionTimeframe = "short_term"
	TimeframeMediumTerm SolutionTimeframe = "medium_term"
	TimeframeLongTerm   SolutionTimeframe = "long_term"
)

type SolutionStatus string

const (
	SolutionScheduled SolutionStatus = "scheduled"
	SolutionCompleted SolutionStatus = "completed"
)

// Solution is a remediation action item spawned after close-out approval.
type Solution struct {
	ID         string `json:"id"`
	IncidentID string `json:"incident_id"`

	Priority          SolutionPriority  `json:"priority"`
	Timeframe         SolutionTimeframe `json:"timeframe"`
	Description       string            `json:"description"`
	PersonResponsible string            `json:"person_responsible"`

	PlannedCompletionDate *time.Time `json:"planned_completion_date,omitempty"`
	ActualCompletionDate  *time.Time `json:"actual_completion_date,omitempty"`
	DateVerified          *time.Time `json:"date_verified,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Status is derived from verification-date presence on every read, never
// stored, so it cannot go stale.
func (s Solution) Status() SolutionStatus {
	if s.DateVerified != nil {
		return SolutionCompleted
	}
	return SolutionScheduled
}

// Completed reports whether the solution has been verified.
func (s Solution) Completed() bool {
	return s.DateVerified != nil
}
