// Package worklist aggregates per-user pending actions across incidents.
package worklist

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/obakeng/relitrack/internal/domain"
	"github.com/obakeng/relitrack/internal/lifecycle"
	"github.com/obakeng/relitrack/internal/pkg/ctxlog"
)

// IncidentSource is the slice of the incidents repository the aggregator
// reads from.
type IncidentSource interface {
	ListOpenIncidentsByCreator(ctx context.Context, userID string) ([]*domain.Incident, error)
	GetSnapshot(ctx context.Context, incidentID string) (lifecycle.Snapshot, error)
	ListPendingApprovalsForUser(ctx context.Context, userID string) ([]domain.Approval, error)
	GetIncident(ctx context.Context, id string) (*domain.Incident, error)
}

// Service builds worklists. The output is derived on every call and never
// persisted.
type Service struct {
	source IncidentSource
	rules  lifecycle.Rules
	now    func() time.Time
}

// NewService creates a new worklist service.
func NewService(source IncidentSource, rules lifecycle.Rules) *Service {
	return &Service{
		source: source,
		rules:  rules,
		now:    time.Now,
	}
}

// approvalSubject names the document a decision is about.
func approvalSubject(t domain.ApprovalType) string {
	switch t {
	case domain.ApprovalNotification:
		return "48H Notification"
	case domain.ApprovalRCA:
		return "RCA Report"
	case domain.ApprovalCloseOut:
		return "Close-Out Slide"
	default:
		return string(t)
	}
}

// ForUser returns the user's worklist: action entries for every open incident
// the user logged, plus one entry per pending approval assigned to them.
// Entries are sorted by urgency, danger first; ties keep derivation order.
// A user holding no recognized role gets an empty list.
func (s *Service) ForUser(ctx context.Context, userID string, roles []domain.Role) ([]domain.UserAction, error) {
	now := s.now()
	entries := make([]domain.UserAction, 0)

	if hasAny(roles, domain.RoleReliabilityEngineer, domain.RoleAdmin) {
		own, err := s.creatorEntries(ctx, userID, now)
		if err != nil {
			return nil, err
		}
		entries = append(entries, own...)
	}

	if hasAny(roles,
		domain.RoleSectionEngineer,
		domain.RoleEngineeringManager,
		domain.RoleSectionEngineeringManager,
		domain.RoleSeniorAssetManager,
		domain.RoleAdmin,
	) {
		assigned, err := s.approverEntries(ctx, userID)
		if err != nil {
			return nil, err
		}
		entries = append(entries, assigned...)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Urgency.Rank() < entries[j].Urgency.Rank()
	})
	return entries, nil
}

func (s *Service) creatorEntries(ctx context.Context, userID string, now time.Time) ([]domain.UserAction, error) {
	incidents, err := s.source.ListOpenIncidentsByCreator(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list open incidents: %w", err)
	}

	logger := ctxlog.FromContext(ctx)
	entries := make([]domain.UserAction, 0)
	for _, incident := range incidents {
		snap, err := s.source.GetSnapshot(ctx, incident.ID)
		if err != nil {
			// One broken incident must not empty the whole worklist.
			logger.Error("worklist: load snapshot", "incident_id", incident.ID, "error", err)
			continue
		}
		eval := lifecycle.NewEvaluationWithRules(snap, now, s.rules)
		entries = append(entries, eval.Actions()...)
	}
	return entries, nil
}

func (s *Service) approverEntries(ctx context.Context, userID string) ([]domain.UserAction, error) {
	approvals, err := s.source.ListPendingApprovalsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list pending approvals: %w", err)
	}

	logger := ctxlog.FromContext(ctx)
	entries := make([]domain.UserAction, 0, len(approvals))
	for _, approval := range approvals {
		incident, err := s.source.GetIncident(ctx, approval.IncidentID)
		if err != nil {
			logger.Error("worklist: load incident", "incident_id", approval.IncidentID, "error", err)
			continue
		}
		entries = append(entries, domain.UserAction{
			Urgency:      domain.UrgencyInfo,
			Message:      fmt.Sprintf("Record %s decision (%s)", approvalSubject(approval.Type), approval.Role.DisplayName()),
			Incident:     incident,
			TimeRequired: approval.CreatedAt,
		})
	}
	return entries, nil
}

func hasAny(roles []domain.Role, wanted ...domain.Role) bool {
	for _, role := range roles {
		for _, w := range wanted {
			if role == w {
				return true
			}
		}
	}
	return false
}
