package lifecycle

import (
	"fmt"
	"time"

	"github.com/obakeng/relitrack/internal/domain"
)

// Stage deadlines.
const (
	NotificationDeadline = 48 * time.Hour
	RCADeadline          = 14 * 24 * time.Hour
	SolutionDeadline     = 14 * 24 * time.Hour
	AnniversaryAfter     = 365 * 24 * time.Hour
)

// Urgency escalation thresholds.
const (
	NotificationWarnWithin = 24 * time.Hour
	RCAWarnWithin          = 7 * 24 * time.Hour
	AnniversaryWarnWithin  = 30 * 24 * time.Hour
	AnniversaryShowWithin  = 60 * 24 * time.Hour
)

// Snapshot is one incident together with its approval ledger and solution
// set, as loaded at a single point in time.
type Snapshot struct {
	Incident  *domain.Incident
	Approvals []domain.Approval
	Solutions []domain.Solution
}

// Rules tunes the engine where the inherited semantics are ambiguous.
type Rules struct {
	// RCAOverdueAfterDeadline controls the comparison direction of the
	// RCA branch in Status. The inherited behavior flags OVERDUE while the
	// incident is still inside the 14-day RCA window, which reads inverted
	// from the evident intent. False keeps that behavior; true flags OVERDUE
	// only once the window has passed.
	RCAOverdueAfterDeadline bool
}

// Evaluation derives lifecycle state for a single snapshot at a fixed "now".
// Expensive derived booleans are memoized for the lifetime of the evaluation;
// build a fresh one per snapshot and per clock reading.
type Evaluation struct {
	snap  Snapshot
	now   time.Time
	rules Rules

	notificationApproved *bool
	rcaReportRejected    *bool
}

// NewEvaluation builds an evaluation with default rules. Solutions whose
// incident reference does not match the snapshot's incident are dropped
// rather than propagated into derived state.
func NewEvaluation(snap Snapshot, now time.Time) *Evaluation {
	return NewEvaluationWithRules(snap, now, Rules{})
}

// NewEvaluationWithRules builds an evaluation with explicit rules.
func NewEvaluationWithRules(snap Snapshot, now time.Time, rules Rules) *Evaluation {
	if snap.Incident != nil {
		kept := snap.Solutions[:0:0]
		for _, sol := range snap.Solutions {
			if sol.IncidentID == snap.Incident.ID {
				kept = append(kept, sol)
			}
		}
		snap.Solutions = kept
	}
	return &Evaluation{snap: snap, now: now, rules: rules}
}

// Incident returns the snapshot's incident.
func (e *Evaluation) Incident() *domain.Incident {
	return e.snap.Incident
}

// Now returns the evaluation's fixed clock reading.
func (e *Evaluation) Now() time.Time {
	return e.now
}

// NotificationOverdue reports whether the 48-hour notification deadline has
// been missed. An unset incident end time counts as overdue: under-reporting
// is the worse failure, so missing data fails safe toward a reminder.
func (e *Evaluation) NotificationOverdue() bool {
	inc := e.snap.Incident
	if inc.TimeEnd == nil {
		return true
	}
	if inc.NotificationTimePublished != nil {
		return false
	}
	return e.now.After(inc.TimeEnd.Add(NotificationDeadline))
}

// NotificationApproved reports whether an accepted notification approval
// exists.
func (e *Evaluation) NotificationApproved() bool {
	if e.notificationApproved == nil {
		v := false
		for _, a := range e.snap.Approvals {
			if a.Type == domain.ApprovalNotification && a.Outcome == domain.OutcomeAccepted {
				v = true
				break
			}
		}
		e.notificationApproved = &v
	}
	return *e.notificationApproved
}

// NotificationRejected reports whether the published notification stands
// rejected. A fresh pending approval is a resubmission in flight and clears
// the flag until that approval too is decided.
func (e *Evaluation) NotificationRejected() bool {
	inc := e.snap.Incident
	if inc.NotificationTimePublished == nil {
		return false
	}
	if e.NotificationApproved() {
		return false
	}
	if HasPendingApproval(e.snap.Approvals, domain.ApprovalNotification) {
		return false
	}
	return CountResolvedOfType(e.snap.Approvals, domain.ApprovalNotification) > 0
}

// RCAReportRejected reports whether the published RCA report stands rejected
// by either the Senior Asset Manager or the Section Engineering Manager. Only
// the most recently modified approval per role counts, so a resubmission
// clears the flag for that role.
func (e *Evaluation) RCAReportRejected() bool {
	if e.rcaReportRejected == nil {
		v := e.rcaReportRejectedUncached()
		e.rcaReportRejected = &v
	}
	return *e.rcaReportRejected
}

func (e *Evaluation) rcaReportRejectedUncached() bool {
	inc := e.snap.Incident
	if !inc.Significant {
		return false
	}
	if inc.RCAReportTimeApproved != nil {
		return false
	}
	if inc.RCAReportTimePublished == nil {
		return false
	}
	for _, role := range []domain.Role{domain.RoleSeniorAssetManager, domain.RoleSectionEngineeringManager} {
		if out, ok := MostRecentOutcomeForRole(e.snap.Approvals, domain.ApprovalRCA, role); ok && out == domain.OutcomeRejected {
			return true
		}
	}
	return false
}

// CloseOutRejected reports whether a published close-out stands rejected.
// Close-out needs concurring scores from the SE and the SEM; more than one
// recorded score without an approval stamp means the scores did not concur
// and the slide must be resubmitted.
func (e *Evaluation) CloseOutRejected() bool {
	inc := e.snap.Incident
	if inc.CloseOutTimePublished == nil {
		return false
	}
	if inc.CloseOutTimeApproved != nil {
		return false
	}
	return CountResolvedOfType(e.snap.Approvals, domain.ApprovalCloseOut) > 1
}

// Status derives the lifecycle status. Rules are evaluated in a fixed
// precedence order; the first match wins.
func (e *Evaluation) Status() domain.Status {
	inc := e.snap.Incident

	if inc.TimeAnniversaryReviewed != nil {
		return domain.StatusComplete
	}

	if inc.NotificationTimePublished == nil {
		return domain.StatusActive
	}

	// Shadowed by the branch above; kept to match the inherited evaluation
	// order rather than silently dropped.
	if inc.NotificationTimePublished == nil && e.NotificationOverdue() {
		return domain.StatusOverdue
	}

	if inc.Significant && inc.RCAReportTimePublished == nil && e.rcaStatusOverdue() {
		return domain.StatusOverdue
	}

	if len(e.snap.Solutions) > 0 {
		for _, sol := range e.snap.Solutions {
			if !sol.Completed() {
				return domain.StatusScheduled
			}
		}
		return domain.StatusComplete
	}

	return domain.StatusActive
}

// rcaStatusOverdue evaluates the RCA branch of Status. See Rules for the
// comparison direction.
func (e *Evaluation) rcaStatusOverdue() bool {
	deadline := e.snap.Incident.NotificationTimePublished.Add(RCADeadline)
	if e.rules.RCAOverdueAfterDeadline {
		return e.now.After(deadline)
	}
	return e.now.Before(deadline)
}

// DurationText formats the incident occurrence window as "H hours, M minutes"
// (hours omitted when zero), or "---" while the end time is unknown.
func DurationText(inc *domain.Incident) string {
	if inc.TimeEnd == nil {
		return "---"
	}
	d := inc.TimeEnd.Sub(inc.TimeStart)
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	if hours == 0 {
		return fmt.Sprintf("%d minutes", minutes)
	}
	return fmt.Sprintf("%d hours, %d minutes", hours, minutes)
}

// AnniversaryDate returns the one-year review date. The boolean is false
// while the incident end time is unknown.
func AnniversaryDate(inc *domain.Incident) (time.Time, bool) {
	if inc.TimeEnd == nil {
		return time.Time{}, false
	}
	return inc.TimeEnd.Add(AnniversaryAfter), true
}
