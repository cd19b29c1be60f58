package lifecycle

import (
	"time"

	"github.com/obakeng/relitrack/internal/domain"
)

// Worklist messages. The wording is load-bearing: dashboards and emails key
// off these strings.
const (
	MsgCreateNotification   = "Create 48H Notification"
	MsgResubmitNotification = "Resubmit Rejected 48H Notification"
	MsgUploadRCAReport      = "Upload RCA Report"
	MsgPublishRCAReport     = "Publish RCA Report and Submit for Senior Asset Manager (SnrAM) approval"
	MsgSubmitRCAToSEM       = "Submit RCA Report to SEM"
	MsgResubmitRCAReport    = "Resubmit Rejected RCA Report"
	MsgPublishCloseOut      = "Publish Close-Out Slide"
	MsgResubmitCloseOut     = "Resubmit Rejected Close-Out Slide"
	MsgAddSolutions         = "Add Solutions"
	MsgVerifyCompletion     = "Verify Completion Date"
	MsgAnniversaryReview    = "Conduct Anniversary Review"
)

// An actionRule inspects the evaluation and emits zero or more actions.
// Rules are independent; Actions evaluates them in order and concatenates,
// so every applicable entry appears. Urgency ordering happens in the
// worklist aggregator, not here.
type actionRule func(e *Evaluation) []domain.UserAction

var actionRules = []actionRule{
	ruleCreateNotification,
	ruleResubmitNotification,
	ruleUploadRCAReport,
	rulePublishRCAReport,
	ruleSubmitRCAToSEM,
	ruleResubmitRCAReport,
	rulePublishCloseOut,
	ruleResubmitCloseOut,
	ruleAddSolutions,
	ruleVerifyCompletion,
	ruleAnniversaryReview,
}

// Actions returns the pending actions for the snapshot, in rule order.
func (e *Evaluation) Actions() []domain.UserAction {
	var out []domain.UserAction
	for _, rule := range actionRules {
		out = append(out, rule(e)...)
	}
	return out
}

func (e *Evaluation) action(msg string, urgency domain.Urgency, due time.Time) []domain.UserAction {
	return []domain.UserAction{{
		Urgency:      urgency,
		Message:      msg,
		Incident:     e.snap.Incident,
		TimeRequired: due,
	}}
}

// tiered escalates urgency as the deadline approaches: past due is DANGER,
// inside the warning window is WARNING, otherwise INFO.
func tiered(now, due time.Time, warnWithin time.Duration) domain.Urgency {
	remaining := due.Sub(now)
	switch {
	case remaining < 0:
		return domain.UrgencyDanger
	case remaining < warnWithin:
		return domain.UrgencyWarning
	default:
		return domain.UrgencyInfo
	}
}

func ruleCreateNotification(e *Evaluation) []domain.UserAction {
	inc := e.snap.Incident
	if inc.NotificationTimePublished != nil {
		return nil
	}
	due := notificationDue(inc)
	return e.action(MsgCreateNotification, tiered(e.now, due, NotificationWarnWithin), due)
}

// notificationDue anchors the 48-hour deadline to the incident end time,
// falling back to the start time while the end is unknown.
func notificationDue(inc *domain.Incident) time.Time {
	if inc.TimeEnd != nil {
		return inc.TimeEnd.Add(NotificationDeadline)
	}
	return inc.TimeStart.Add(NotificationDeadline)
}

func ruleResubmitNotification(e *Evaluation) []domain.UserAction {
	if !e.NotificationRejected() {
		return nil
	}
	if HasPendingApproval(e.snap.Approvals, domain.ApprovalNotification) {
		return nil
	}
	return e.action(MsgResubmitNotification, domain.UrgencyDanger, e.now)
}

func ruleUploadRCAReport(e *Evaluation) []domain.UserAction {
	inc := e.snap.Incident
	if !inc.Significant || inc.ReportFile != "" || inc.NotificationTimeApproved == nil {
		return nil
	}
	due := rcaDue(inc)
	return e.action(MsgUploadRCAReport, tiered(e.now, due, RCAWarnWithin), due)
}

func rulePublishRCAReport(e *Evaluation) []domain.UserAction {
	inc := e.snap.Incident
	if !inc.Significant || inc.ReportFile == "" || inc.NotificationTimeApproved == nil {
		return nil
	}
	if inc.RCAReportTimePublished != nil {
		return nil
	}
	due := rcaDue(inc)
	return e.action(MsgPublishRCAReport, tiered(e.now, due, RCAWarnWithin), due)
}

// rcaDue is 14 days after the notification was published. The publication
// time is guaranteed set once the notification is approved; the fallback to
// the approval stamp only covers inconsistent historical data.
func rcaDue(inc *domain.Incident) time.Time {
	if inc.NotificationTimePublished != nil {
		return inc.NotificationTimePublished.Add(RCADeadline)
	}
	return inc.NotificationTimeApproved.Add(RCADeadline)
}

func ruleSubmitRCAToSEM(e *Evaluation) []domain.UserAction {
	inc := e.snap.Incident
	if !inc.Significant || inc.RCAReportTimeApproved != nil {
		return nil
	}
	out, ok := MostRecentOutcomeForRole(e.snap.Approvals, domain.ApprovalRCA, domain.RoleSeniorAssetManager)
	if !ok || out != domain.OutcomeAccepted {
		return nil
	}
	if HasApprovalForRole(e.snap.Approvals, domain.ApprovalRCA, domain.RoleSectionEngineeringManager) {
		return nil
	}
	return e.action(MsgSubmitRCAToSEM, domain.UrgencyInfo, e.now)
}

func ruleResubmitRCAReport(e *Evaluation) []domain.UserAction {
	if !e.RCAReportRejected() {
		return nil
	}
	if HasPendingApproval(e.snap.Approvals, domain.ApprovalRCA) {
		return nil
	}
	return e.action(MsgResubmitRCAReport, domain.UrgencyDanger, e.now)
}

func rulePublishCloseOut(e *Evaluation) []domain.UserAction {
	inc := e.snap.Incident
	if inc.CloseOutTimePublished != nil || inc.CloseOutTimeApproved != nil {
		return nil
	}
	if inc.Significant && inc.RCAReportTimeApproved == nil {
		return nil
	}
	// The due time is anchored to the notification publication; nothing to
	// publish against before that.
	if inc.NotificationTimePublished == nil {
		return nil
	}
	due := inc.NotificationTimePublished.Add(RCADeadline)
	return e.action(MsgPublishCloseOut, tiered(e.now, due, RCAWarnWithin), due)
}

func ruleResubmitCloseOut(e *Evaluation) []domain.UserAction {
	if !e.CloseOutRejected() {
		return nil
	}
	if HasPendingApproval(e.snap.Approvals, domain.ApprovalCloseOut) {
		return nil
	}
	return e.action(MsgResubmitCloseOut, domain.UrgencyDanger, e.now)
}

func ruleAddSolutions(e *Evaluation) []domain.UserAction {
	inc := e.snap.Incident
	if inc.CloseOutTimeApproved == nil || len(e.snap.Solutions) > 0 {
		return nil
	}
	due := inc.CloseOutTimeApproved.Add(SolutionDeadline)
	return e.action(MsgAddSolutions, domain.UrgencyInfo, due)
}

func ruleVerifyCompletion(e *Evaluation) []domain.UserAction {
	inc := e.snap.Incident
	if inc.CloseOutTimeApproved == nil {
		return nil
	}
	for _, sol := range e.snap.Solutions {
		if sol.DateVerified != nil || sol.PlannedCompletionDate == nil {
			continue
		}
		if !sol.PlannedCompletionDate.After(e.now) {
			return e.action(MsgVerifyCompletion, domain.UrgencyInfo, e.now)
		}
	}
	return nil
}

func ruleAnniversaryReview(e *Evaluation) []domain.UserAction {
	inc := e.snap.Incident
	if inc.CloseOutTimeApproved == nil || inc.TimeAnniversaryReviewed != nil {
		return nil
	}
	anniversary, ok := AnniversaryDate(inc)
	if !ok || anniversary.Sub(e.now) >= AnniversaryShowWithin {
		return nil
	}
	return e.action(MsgAnniversaryReview, tiered(e.now, anniversary, AnniversaryWarnWithin), anniversary)
}
