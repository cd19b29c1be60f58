package incidents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/obakeng/relitrack/internal/domain"
	"github.com/obakeng/relitrack/internal/lifecycle"
	"github.com/obakeng/relitrack/internal/pkg/ctxlog"
)

// Service implements the incident workflow. Every mutation is a status
// boundary: the cached incident status is recomputed from a fresh snapshot
// and re-persisted before the mutation commits.
type Service struct {
	repo  Repository
	rules lifecycle.Rules
	now   func() time.Time
}

// NewService creates a new incident service.
func NewService(repo Repository, rules lifecycle.Rules) *Service {
	return &Service{
		repo:  repo,
		rules: rules,
		now:   time.Now,
	}
}

// CreateIncidentInput holds data for logging an incident.
type CreateIncidentInput struct {
	Operation         *string
	Area              *string
	Section           *string
	Equipment         *string
	SectionEngineerID *string

	TimeStart time.Time
	TimeEnd   *time.Time

	// Significant defaults to true when nil: under-classification is the
	// worse failure.
	Significant *bool

	ShortDescription     string
	LongDescription      string
	ImmediateCause       string
	ImmediateActionTaken string
	RemainingRisk        string

	ProductionValueLoss float64
	RandValueLoss       float64
}

// Create logs a new incident with a generated code.
func (s *Service) Create(ctx context.Context, input CreateIncidentInput, createdBy string) (*domain.Incident, error) {
	if input.TimeEnd != nil && input.TimeEnd.Before(input.TimeStart) {
		return nil, ErrInvalidWindow
	}

	significant := true
	if input.Significant != nil {
		significant = *input.Significant
	}

	year := input.TimeStart.Year()
	seq, err := s.repo.NextCodeSequence(ctx, year)
	if err != nil {
		return nil, fmt.Errorf("next code sequence: %w", err)
	}

	incident := &domain.Incident{
		Code:                 generateCode(input.Operation, year, seq),
		Status:               domain.StatusActive,
		CreatedBy:            createdBy,
		Operation:            input.Operation,
		Area:                 input.Area,
		Section:              input.Section,
		Equipment:            input.Equipment,
		SectionEngineerID:    input.SectionEngineerID,
		TimeStart:            input.TimeStart,
		TimeEnd:              input.TimeEnd,
		Significant:          significant,
		ShortDescription:     input.ShortDescription,
		LongDescription:      input.LongDescription,
		ImmediateCause:       input.ImmediateCause,
		ImmediateActionTaken: input.ImmediateActionTaken,
		RemainingRisk:        input.RemainingRisk,
		ProductionValueLoss:  input.ProductionValueLoss,
		RandValueLoss:        input.RandValueLoss,
	}

	if err := s.repo.CreateIncident(ctx, incident); err != nil {
		return nil, fmt.Errorf("create incident: %w", err)
	}

	return incident, nil
}

// generateCode builds the incident code, e.g. "RI-CON-2024-0012". The
// operation segment falls back to GEN when the incident has no operation.
func generateCode(operation *string, year, seq int) string {
	op := "GEN"
	if operation != nil && *operation != "" {
		cleaned := strings.ToUpper(strings.ReplaceAll(*operation, " ", ""))
		// Truncate by runes so multibyte operation names stay valid UTF-8.
		if runes := []rune(cleaned); len(runes) > 3 {
			cleaned = string(runes[:3])
		}
		if cleaned != "" {
			op = cleaned
		}
	}
	return fmt.Sprintf("RI-%s-%d-%04d", op, year, seq)
}

// UpdateIncidentInput holds optional field updates. Nil fields are untouched.
type UpdateIncidentInput struct {
	TimeStart *time.Time
	TimeEnd   *time.Time

	ShortDescription     *string
	LongDescription      *string
	ImmediateCause       *string
	RootCause            *string
	ImmediateActionTaken *string
	RemainingRisk        *string

	ProductionValueLoss *float64
	RandValueLoss       *float64
}

// Update edits descriptive and loss fields.
func (s *Service) Update(ctx context.Context, id string, input UpdateIncidentInput) (*domain.Incident, error) {
	incident, err := s.repo.GetIncident(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.TimeStart != nil {
		incident.TimeStart = *input.TimeStart
	}
	if input.TimeEnd != nil {
		incident.TimeEnd = input.TimeEnd
	}
	if incident.TimeEnd != nil && incident.TimeEnd.Before(incident.TimeStart) {
		return nil, ErrInvalidWindow
	}

	if input.ShortDescription != nil {
		incident.ShortDescription = *input.ShortDescription
	}
	if input.LongDescription != nil {
		incident.LongDescription = *input.LongDescription
	}
	if input.ImmediateCause != nil {
		incident.ImmediateCause = *input.ImmediateCause
	}
	if input.RootCause != nil {
		incident.RootCause = *input.RootCause
	}
	if input.ImmediateActionTaken != nil {
		incident.ImmediateActionTaken = *input.ImmediateActionTaken
	}
	if input.RemainingRisk != nil {
		incident.RemainingRisk = *input.RemainingRisk
	}
	if input.ProductionValueLoss != nil {
		incident.ProductionValueLoss = *input.ProductionValueLoss
	}
	if input.RandValueLoss != nil {
		incident.RandValueLoss = *input.RandValueLoss
	}

	if err := s.persistWithStatus(ctx, incident); err != nil {
		return nil, err
	}
	return incident, nil
}

// PublishNotification publishes the 48-hour notification and requests an SEM
// decision on it. Allowed again after a rejection; the resubmission creates a
// fresh approval and leaves the earlier ones in the ledger.
func (s *Service) PublishNotification(ctx context.Context, incidentID, semUserID, createdBy string) (*domain.Approval, error) {
	incident, err := s.repo.GetIncident(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	if incident.NotificationTimeApproved != nil {
		return nil, ErrAlreadyApproved
	}

	approvals, err := s.repo.ListApprovals(ctx, incidentID)
	if err != nil {
		return nil, fmt.Errorf("list approvals: %w", err)
	}
	if lifecycle.HasPendingApproval(approvals, domain.ApprovalNotification) {
		return nil, fmt.Errorf("%w: notification approval pending", ErrAlreadyPublished)
	}

	approval := &domain.Approval{
		IncidentID: incidentID,
		Role:       domain.RoleSectionEngineeringManager,
		Type:       domain.ApprovalNotification,
		Outcome:    domain.OutcomePending,
		UserID:     semUserID,
		CreatedBy:  createdBy,
	}

	return approval, s.publishStage(ctx, incident, approval, func(inc *domain.Incident, now time.Time) {
		if inc.NotificationTimePublished == nil {
			inc.NotificationTimePublished = &now
		}
	})
}

// AttachRCAReport records that an RCA report document has been uploaded.
func (s *Service) AttachRCAReport(ctx context.Context, incidentID, reportFile string) (*domain.Incident, error) {
	incident, err := s.repo.GetIncident(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	if !incident.Significant {
		return nil, fmt.Errorf("%w: incident does not require an RCA report", ErrStageNotReady)
	}

	incident.ReportFile = reportFile
	if err := s.persistWithStatus(ctx, incident); err != nil {
		return nil, err
	}
	return incident, nil
}

// SubmitRCAReport publishes the RCA report and requests the Senior Asset
// Manager's decision.
func (s *Service) SubmitRCAReport(ctx context.Context, incidentID, snrAMUserID, createdBy string) (*domain.Approval, error) {
	incident, err := s.repo.GetIncident(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	if !incident.Significant || incident.ReportFile == "" || incident.NotificationTimeApproved == nil {
		return nil, ErrStageNotReady
	}
	if incident.RCAReportTimeApproved != nil {
		return nil, ErrAlreadyApproved
	}

	approvals, err := s.repo.ListApprovals(ctx, incidentID)
	if err != nil {
		return nil, fmt.Errorf("list approvals: %w", err)
	}
	if lifecycle.HasPendingApproval(approvals, domain.ApprovalRCA) {
		return nil, fmt.Errorf("%w: rca approval pending", ErrAlreadyPublished)
	}

	approval := &domain.Approval{
		IncidentID: incidentID,
		Role:       domain.RoleSeniorAssetManager,
		Type:       domain.ApprovalRCA,
		Outcome:    domain.OutcomePending,
		UserID:     snrAMUserID,
		CreatedBy:  createdBy,
	}

	return approval, s.publishStage(ctx, incident, approval, func(inc *domain.Incident, now time.Time) {
		if inc.RCAReportTimePublished == nil {
			inc.RCAReportTimePublished = &now
		}
	})
}

// SubmitRCAToSEM forwards an SnrAM-accepted RCA report to the Section
// Engineering Manager for the second decision.
func (s *Service) SubmitRCAToSEM(ctx context.Context, incidentID, semUserID, createdBy string) (*domain.Approval, error) {
	incident, err := s.repo.GetIncident(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	if incident.RCAReportTimeApproved != nil {
		return nil, ErrAlreadyApproved
	}

	approvals, err := s.repo.ListApprovals(ctx, incidentID)
	if err != nil {
		return nil, fmt.Errorf("list approvals: %w", err)
	}

	out, ok := lifecycle.MostRecentOutcomeForRole(approvals, domain.ApprovalRCA, domain.RoleSeniorAssetManager)
	if !ok || out != domain.OutcomeAccepted {
		return nil, fmt.Errorf("%w: senior asset manager has not accepted the report", ErrStageNotReady)
	}
	if lifecycle.HasPendingApproval(approvals, domain.ApprovalRCA, domain.RoleSectionEngineeringManager) {
		return nil, fmt.Errorf("%w: sem decision pending", ErrAlreadyPublished)
	}

	approval := &domain.Approval{
		IncidentID: incidentID,
		Role:       domain.RoleSectionEngineeringManager,
		Type:       domain.ApprovalRCA,
		Outcome:    domain.OutcomePending,
		UserID:     semUserID,
		CreatedBy:  createdBy,
	}

	return approval, s.publishStage(ctx, incident, approval, func(*domain.Incident, time.Time) {})
}

// PublishCloseOut publishes the close-out slide and requests confidence
// scores from the Section Engineer and the Section Engineering Manager.
func (s *Service) PublishCloseOut(ctx context.Context, incidentID, seUserID, semUserID, createdBy string) ([]*domain.Approval, error) {
	incident, err := s.repo.GetIncident(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	if incident.CloseOutTimeApproved != nil {
		return nil, ErrAlreadyApproved
	}
	if incident.NotificationTimePublished == nil {
		return nil, fmt.Errorf("%w: notification not published", ErrStageNotReady)
	}
	if incident.Significant && incident.RCAReportTimeApproved == nil {
		return nil, fmt.Errorf("%w: rca report not approved", ErrStageNotReady)
	}

	approvals, err := s.repo.ListApprovals(ctx, incidentID)
	if err != nil {
		return nil, fmt.Errorf("list approvals: %w", err)
	}
	if lifecycle.HasPendingApproval(approvals, domain.ApprovalCloseOut) {
		return nil, fmt.Errorf("%w: close-out scores pending", ErrAlreadyPublished)
	}

	pair := []*domain.Approval{
		{
			IncidentID: incidentID,
			Role:       domain.RoleSectionEngineer,
			Type:       domain.ApprovalCloseOut,
			Outcome:    domain.OutcomePending,
			UserID:     seUserID,
			CreatedBy:  createdBy,
		},
		{
			IncidentID: incidentID,
			Role:       domain.RoleSectionEngineeringManager,
			Type:       domain.ApprovalCloseOut,
			Outcome:    domain.OutcomePending,
			UserID:     semUserID,
			CreatedBy:  createdBy,
		},
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer s.rollback(ctx, tx)

	locked, err := s.repo.GetIncidentForUpdateTx(ctx, tx, incident.ID)
	if err != nil {
		return nil, err
	}

	for _, approval := range pair {
		if err := s.repo.CreateApprovalTx(ctx, tx, approval); err != nil {
			return nil, fmt.Errorf("create approval: %w", err)
		}
	}

	now := s.now()
	if locked.CloseOutTimePublished == nil {
		locked.CloseOutTimePublished = &now
	}

	if err := s.refreshStatusTx(ctx, tx, locked); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return pair, nil
}

// DecisionInput carries a reviewer's decision on an approval.
type DecisionInput struct {
	// Outcome is accepted or rejected for notification and RCA approvals.
	Outcome domain.Outcome
	// Score is the 1-5 close-out confidence rating.
	Score   int
	Comment string
}

// RecordDecision applies the assigned reviewer's decision and, in the same
// transaction, any incident stamp the decision completes:
//   - notification accepted stamps notification_time_approved;
//   - RCA accepted by both SnrAM and SEM stamps rca_report_time_approved;
//   - close-out scored by both reviewers at or above the minimum stamps
//     close_out_time_approved and records the SEM score as the rating.
func (s *Service) RecordDecision(ctx context.Context, approvalID, userID string, input DecisionInput) (*domain.Approval, error) {
	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer s.rollback(ctx, tx)

	approval, err := s.repo.GetApprovalForUpdateTx(ctx, tx, approvalID)
	if err != nil {
		return nil, err
	}
	if approval.UserID != userID {
		return nil, ErrNotAssigned
	}
	if approval.Resolved() {
		return nil, ErrApprovalResolved
	}

	if err := applyDecision(approval, input); err != nil {
		return nil, err
	}
	approval.UpdatedAt = s.now()

	if err := s.repo.UpdateApprovalTx(ctx, tx, approval); err != nil {
		return nil, fmt.Errorf("update approval: %w", err)
	}

	incident, err := s.repo.GetIncidentForUpdateTx(ctx, tx, approval.IncidentID)
	if err != nil {
		return nil, err
	}

	approvals, err := s.repo.ListApprovalsTx(ctx, tx, incident.ID)
	if err != nil {
		return nil, fmt.Errorf("list approvals: %w", err)
	}

	s.applyApprovalStamps(incident, approvals)

	if err := s.refreshStatusTxWithApprovals(ctx, tx, incident, approvals); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return approval, nil
}

func applyDecision(approval *domain.Approval, input DecisionInput) error {
	if approval.Type == domain.ApprovalCloseOut {
		if input.Score < 1 || input.Score > 5 {
			return ErrInvalidScore
		}
		approval.Score = input.Score
		approval.Comment = input.Comment
		return nil
	}

	switch input.Outcome {
	case domain.OutcomeAccepted:
	case domain.OutcomeRejected:
		if strings.TrimSpace(input.Comment) == "" {
			return ErrCommentRequired
		}
	default:
		return ErrInvalidDecision
	}

	approval.Outcome = input.Outcome
	approval.Comment = input.Comment
	return nil
}

// applyApprovalStamps derives stage approval timestamps from the ledger.
// Stamps are never cleared; rejection after approval cannot happen because
// resolved approvals are immutable.
func (s *Service) applyApprovalStamps(incident *domain.Incident, approvals []domain.Approval) {
	now := s.now()

	if incident.NotificationTimeApproved == nil {
		for _, a := range approvals {
			if a.Type == domain.ApprovalNotification && a.Outcome == domain.OutcomeAccepted {
				incident.NotificationTimeApproved = &now
				break
			}
		}
	}

	if incident.RCAReportTimeApproved == nil && s.rcaFullyAccepted(approvals) {
		incident.RCAReportTimeApproved = &now
	}

	if incident.CloseOutTimeApproved == nil {
		if semScore, ok := closeOutConcurrence(approvals); ok {
			incident.CloseOutTimeApproved = &now
			incident.CloseOutRating = semScore
		}
	}
}

// rcaFullyAccepted reports whether both the SnrAM and the SEM most recently
// accepted the RCA report.
func (s *Service) rcaFullyAccepted(approvals []domain.Approval) bool {
	for _, role := range []domain.Role{domain.RoleSeniorAssetManager, domain.RoleSectionEngineeringManager} {
		out, ok := lifecycle.MostRecentOutcomeForRole(approvals, domain.ApprovalRCA, role)
		if !ok || out != domain.OutcomeAccepted {
			return false
		}
	}
	return true
}

// closeOutConcurrence reports whether the latest SE and SEM close-out scores
// both meet the minimum. Returns the SEM score, which becomes the incident's
// close-out rating.
func closeOutConcurrence(approvals []domain.Approval) (int, bool) {
	latest := func(role domain.Role) (domain.Approval, bool) {
		var found domain.Approval
		var ok bool
		for _, a := range approvals {
			if a.Type != domain.ApprovalCloseOut || a.Role != role {
				continue
			}
			if !ok || a.UpdatedAt.After(found.UpdatedAt) {
				found = a
				ok = true
			}
		}
		return found, ok
	}

	se, okSE := latest(domain.RoleSectionEngineer)
	sem, okSEM := latest(domain.RoleSectionEngineeringManager)
	if !okSE || !okSEM || se.Score == 0 || sem.Score == 0 {
		return 0, false
	}
	if se.Score < domain.CloseOutMinimumScore || sem.Score < domain.CloseOutMinimumScore {
		return 0, false
	}
	return sem.Score, true
}

// SolutionInput holds data for a remediation solution.
type SolutionInput struct {
	Priority              domain.SolutionPriority
	Timeframe             domain.SolutionTimeframe
	Description           string
	PersonResponsible     string
	PlannedCompletionDate *time.Time
}

// AddSolution attaches a remediation solution to a close-out-approved incident.
func (s *Service) AddSolution(ctx context.Context, incidentID string, input SolutionInput) (*domain.Solution, error) {
	incident, err := s.repo.GetIncident(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	if incident.CloseOutTimeApproved == nil {
		return nil, fmt.Errorf("%w: close-out not approved", ErrStageNotReady)
	}

	solution := &domain.Solution{
		IncidentID:            incidentID,
		Priority:              input.Priority,
		Timeframe:             input.Timeframe,
		Description:           input.Description,
		PersonResponsible:     input.PersonResponsible,
		PlannedCompletionDate: input.PlannedCompletionDate,
	}
	if err := s.repo.CreateSolution(ctx, solution); err != nil {
		return nil, fmt.Errorf("create solution: %w", err)
	}

	// A first solution moves the incident from ACTIVE to SCHEDULED.
	if err := s.persistWithStatus(ctx, incident); err != nil {
		return nil, err
	}
	return solution, nil
}

// UpdateSolutionInput holds optional solution updates.
type UpdateSolutionInput struct {
	Priority              *domain.SolutionPriority
	Timeframe             *domain.SolutionTimeframe
	Description           *string
	PersonResponsible     *string
	PlannedCompletionDate *time.Time
	ActualCompletionDate  *time.Time
}

// UpdateSolution edits a solution.
func (s *Service) UpdateSolution(ctx context.Context, solutionID string, input UpdateSolutionInput) (*domain.Solution, error) {
	solution, err := s.repo.GetSolution(ctx, solutionID)
	if err != nil {
		return nil, err
	}

	if input.Priority != nil {
		solution.Priority = *input.Priority
	}
	if input.Timeframe != nil {
		solution.Timeframe = *input.Timeframe
	}
	if input.Description != nil {
		solution.Description = *input.Description
	}
	if input.PersonResponsible != nil {
		solution.PersonResponsible = *input.PersonResponsible
	}
	if input.PlannedCompletionDate != nil {
		solution.PlannedCompletionDate = input.PlannedCompletionDate
	}
	if input.ActualCompletionDate != nil {
		solution.ActualCompletionDate = input.ActualCompletionDate
	}

	if err := s.repo.UpdateSolution(ctx, solution); err != nil {
		return nil, fmt.Errorf("update solution: %w", err)
	}
	return solution, nil
}

// VerifySolution marks a solution's completion as verified. Once every
// solution is verified the incident becomes COMPLETE.
func (s *Service) VerifySolution(ctx context.Context, solutionID string) (*domain.Solution, error) {
	solution, err := s.repo.GetSolution(ctx, solutionID)
	if err != nil {
		return nil, err
	}
	if solution.DateVerified != nil {
		return nil, ErrSolutionVerified
	}

	now := s.now()
	solution.DateVerified = &now
	if solution.ActualCompletionDate == nil {
		solution.ActualCompletionDate = &now
	}

	if err := s.repo.UpdateSolution(ctx, solution); err != nil {
		return nil, fmt.Errorf("update solution: %w", err)
	}

	incident, err := s.repo.GetIncident(ctx, solution.IncidentID)
	if err != nil {
		return nil, err
	}
	if err := s.persistWithStatus(ctx, incident); err != nil {
		return nil, err
	}
	return solution, nil
}

// ReviewAnniversary stamps the one-year review, terminally completing the
// incident.
func (s *Service) ReviewAnniversary(ctx context.Context, incidentID string) (*domain.Incident, error) {
	incident, err := s.repo.GetIncident(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	if incident.CloseOutTimeApproved == nil {
		return nil, fmt.Errorf("%w: close-out not approved", ErrStageNotReady)
	}
	if incident.TimeAnniversaryReviewed != nil {
		return nil, ErrAlreadyReviewed
	}

	now := s.now()
	incident.TimeAnniversaryReviewed = &now

	if err := s.persistWithStatus(ctx, incident); err != nil {
		return nil, err
	}
	return incident, nil
}

// IncidentDetail is an incident with its ledger, solutions and derived state.
type IncidentDetail struct {
	Incident  *domain.Incident    `json:"incident"`
	Approvals []domain.Approval   `json:"approvals"`
	Solutions []domain.Solution   `json:"solutions"`
	Actions   []domain.UserAction `json:"actions"`
	Duration  string              `json:"duration"`
}

// GetDetail returns the incident with approvals, solutions and the actions
// derived at the given time. A zero "at" means the wall clock.
func (s *Service) GetDetail(ctx context.Context, id string, at time.Time) (*IncidentDetail, error) {
	snap, err := s.repo.GetSnapshot(ctx, id)
	if err != nil {
		return nil, err
	}

	if at.IsZero() {
		at = s.now()
	}
	eval := lifecycle.NewEvaluationWithRules(snap, at, s.rules)
	snap.Incident.Status = eval.Status()

	return &IncidentDetail{
		Incident:  snap.Incident,
		Approvals: snap.Approvals,
		Solutions: snap.Solutions,
		Actions:   eval.Actions(),
		Duration:  lifecycle.DurationText(snap.Incident),
	}, nil
}

// GetIncident returns the bare incident.
func (s *Service) GetIncident(ctx context.Context, id string) (*domain.Incident, error) {
	return s.repo.GetIncident(ctx, id)
}

// ListIncidents returns incidents matching the filters.
func (s *Service) ListIncidents(ctx context.Context, filters IncidentFilters) ([]*domain.Incident, error) {
	return s.repo.ListIncidents(ctx, filters)
}

// GetApproval returns an approval by ID.
func (s *Service) GetApproval(ctx context.Context, id string) (*domain.Approval, error) {
	return s.repo.GetApproval(ctx, id)
}

// ListSolutions returns the solutions for an incident.
func (s *Service) ListSolutions(ctx context.Context, incidentID string) ([]domain.Solution, error) {
	return s.repo.ListSolutions(ctx, incidentID)
}

// SweepResult summarizes a status sweep over all open incidents.
type SweepResult struct {
	Scanned       int
	Repersisted   int
	StatusCounts  map[domain.Status]int
	UrgencyCounts map[domain.Urgency]int

	// DangerByCreator groups DANGER actions by the incident creator, for
	// reminder digests.
	DangerByCreator map[string][]domain.UserAction
}

// SweepStatuses recomputes the cached status of every open incident,
// re-persisting where the stored value went stale, and aggregates the
// pending-action urgency profile.
func (s *Service) SweepStatuses(ctx context.Context) (*SweepResult, error) {
	incidents, err := s.repo.ListOpenIncidents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list open incidents: %w", err)
	}

	result := &SweepResult{
		StatusCounts:    make(map[domain.Status]int),
		UrgencyCounts:   make(map[domain.Urgency]int),
		DangerByCreator: make(map[string][]domain.UserAction),
	}

	now := s.now()
	logger := ctxlog.FromContext(ctx)

	for _, incident := range incidents {
		snap, err := s.repo.GetSnapshot(ctx, incident.ID)
		if err != nil {
			logger.Error("sweep: load snapshot", "incident_id", incident.ID, "error", err)
			continue
		}

		eval := lifecycle.NewEvaluationWithRules(snap, now, s.rules)
		status := eval.Status()
		result.Scanned++
		result.StatusCounts[status]++

		if status != snap.Incident.Status {
			snap.Incident.Status = status
			if err := s.repo.UpdateIncident(ctx, snap.Incident); err != nil {
				logger.Error("sweep: persist status", "incident_id", incident.ID, "error", err)
				continue
			}
			result.Repersisted++
		}

		for _, action := range eval.Actions() {
			result.UrgencyCounts[action.Urgency]++
			if action.Urgency == domain.UrgencyDanger {
				result.DangerByCreator[incident.CreatedBy] = append(result.DangerByCreator[incident.CreatedBy], action)
			}
		}
	}

	return result, nil
}

// publishStage creates the approval and applies the stage stamp in one
// transaction, recomputing the cached status before commit.
func (s *Service) publishStage(ctx context.Context, incident *domain.Incident, approval *domain.Approval, stamp func(*domain.Incident, time.Time)) error {
	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer s.rollback(ctx, tx)

	locked, err := s.repo.GetIncidentForUpdateTx(ctx, tx, incident.ID)
	if err != nil {
		return err
	}

	if err := s.repo.CreateApprovalTx(ctx, tx, approval); err != nil {
		return fmt.Errorf("create approval: %w", err)
	}

	stamp(locked, s.now())

	if err := s.refreshStatusTx(ctx, tx, locked); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	*incident = *locked
	return nil
}

// refreshStatusTx recomputes the cached status from a transactional snapshot
// and persists the incident.
func (s *Service) refreshStatusTx(ctx context.Context, tx pgx.Tx, incident *domain.Incident) error {
	approvals, err := s.repo.ListApprovalsTx(ctx, tx, incident.ID)
	if err != nil {
		return fmt.Errorf("list approvals: %w", err)
	}
	return s.refreshStatusTxWithApprovals(ctx, tx, incident, approvals)
}

func (s *Service) refreshStatusTxWithApprovals(ctx context.Context, tx pgx.Tx, incident *domain.Incident, approvals []domain.Approval) error {
	solutions, err := s.repo.ListSolutionsTx(ctx, tx, incident.ID)
	if err != nil {
		return fmt.Errorf("list solutions: %w", err)
	}

	snap := lifecycle.Snapshot{Incident: incident, Approvals: approvals, Solutions: solutions}
	incident.Status = lifecycle.NewEvaluationWithRules(snap, s.now(), s.rules).Status()

	if err := s.repo.UpdateIncidentTx(ctx, tx, incident); err != nil {
		return fmt.Errorf("update incident: %w", err)
	}
	return nil
}

// persistWithStatus recomputes the cached status outside a transaction and
// persists the incident.
func (s *Service) persistWithStatus(ctx context.Context, incident *domain.Incident) error {
	snap, err := s.repo.GetSnapshot(ctx, incident.ID)
	if err != nil {
		return err
	}
	snap.Incident = incident

	incident.Status = lifecycle.NewEvaluationWithRules(snap, s.now(), s.rules).Status()
	if err := s.repo.UpdateIncident(ctx, incident); err != nil {
		return fmt.Errorf("update incident: %w", err)
	}
	return nil
}

func (s *Service) rollback(ctx context.Context, tx pgx.Tx) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		ctxlog.FromContext(ctx).Error("failed to rollback transaction", "error", err)
	}
}
