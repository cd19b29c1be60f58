package domain

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type Role string

const (
	RoleReliabilityEngineer       Role = "reliability_engineer"
	RoleSectionEngineer           Role = "section_engineer"
	RoleEngineeringManager        Role = "engineering_manager"
	RoleSectionEngineeringManager Role = "section_engineering_manager"
	RoleSeniorAssetManager        Role = "senior_asset_manager"
	RoleAdmin                     Role = "admin"
)

// IsValid checks if the role is a known role.
func (r Role) IsValid() bool {
	switch r {
	case RoleReliabilityEngineer, RoleSectionEngineer, RoleEngineeringManager,
		RoleSectionEngineeringManager, RoleSeniorAssetManager, RoleAdmin:
		return true
	}
	return false
}

var roleCaser = cases.Title(language.English)

// DisplayName renders the role for worklist messages,
// e.g. "section_engineering_manager" -> "Section Engineering Manager".
func (r Role) DisplayName() string {
	return roleCaser.String(strings.ReplaceAll(string(r), "_", " "))
}

type ApprovalType string

const (
	ApprovalNotification ApprovalType = "notification"
	ApprovalRCA          ApprovalType = "rca"
	ApprovalCloseOut     ApprovalType = "close_out"
)

type Outcome string

const (
	OutcomePending  Outcome = "pending"
	OutcomeAccepted Outcome = "accepted"
	OutcomeRejected Outcome = "rejected"
)

// CloseOutMinimumScore is the lowest concurring close-out confidence score
// that still closes an incident. Scores below it from either reviewer put the
// incident into the close-out-rejected state.
const CloseOutMinimumScore = 2

// Approval is a request for a human decision on a workflow stage. Rejection
// followed by resubmission creates a fresh approval; earlier ones are kept.
type Approval struct {
	ID         string       `json:"id"`
	IncidentID string       `json:"incident_id"`
	Role       Role         `json:"role"`
	Type       ApprovalType `json:"type"`

	// Outcome carries the decision for notification and RCA approvals.
	// Close-out approvals are score-based and leave it pending.
	Outcome Outcome `json:"outcome"`

	// Score is the close-out confidence rating, 1-5. Zero means not yet
	// scored; other approval types never set it.
	Score int `json:"score,omitempty"`

	UserID    string `json:"user_id"`
	CreatedBy string `json:"created_by"`

	// Comment is required when the outcome is rejected.
	Comment string `json:"comment,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Pending reports whether the approval still awaits a decision. The unresolved
// predicate differs by type: close-out approvals resolve by score, the rest by
// outcome.
func (a Approval) Pending() bool {
	if a.Type == ApprovalCloseOut {
		return a.Score == 0
	}
	return a.Outcome == OutcomePending
}

// Resolved reports whether a decision has been recorded.
func (a Approval) Resolved() bool {
	return !a.Pending()
}
