package incidents

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/obakeng/relitrack/internal/domain"
	"github.com/obakeng/relitrack/internal/lifecycle"
)

// IncidentFilters narrows incident listings.
type IncidentFilters struct {
	Status      *domain.Status
	CreatedBy   *string
	Significant *bool
	Limit       int
	Offset      int
}

// Repository defines the data access interface for the incidents module.
type Repository interface {
	CreateIncident(ctx context.Context, incident *domain.Incident) error
	GetIncident(ctx context.Context, id string) (*domain.Incident, error)
	ListIncidents(ctx context.Context, filters IncidentFilters) ([]*domain.Incident, error)
	ListOpenIncidents(ctx context.Context) ([]*domain.Incident, error)
	ListOpenIncidentsByCreator(ctx context.Context, userID string) ([]*domain.Incident, error)
	UpdateIncident(ctx context.Context, incident *domain.Incident) error

	// NextCodeSequence returns the next per-year sequence number used when
	// generating incident codes.
	NextCodeSequence(ctx context.Context, year int) (int, error)

	// GetSnapshot loads an incident together with its approvals and solutions.
	GetSnapshot(ctx context.Context, incidentID string) (lifecycle.Snapshot, error)

	CreateApproval(ctx context.Context, approval *domain.Approval) error
	GetApproval(ctx context.Context, id string) (*domain.Approval, error)
	ListApprovals(ctx context.Context, incidentID string) ([]domain.Approval, error)
	ListPendingApprovalsForUser(ctx context.Context, userID string) ([]domain.Approval, error)

	CreateSolution(ctx context.Context, solution *domain.Solution) error
	GetSolution(ctx context.Context, id string) (*domain.Solution, error)
	ListSolutions(ctx context.Context, incidentID string) ([]domain.Solution, error)
	UpdateSolution(ctx context.Context, solution *domain.Solution) error

	BeginTx(ctx context.Context) (pgx.Tx, error)
	CreateApprovalTx(ctx context.Context, tx pgx.Tx, approval *domain.Approval) error
	GetIncidentForUpdateTx(ctx context.Context, tx pgx.Tx, id string) (*domain.Incident, error)
	GetApprovalForUpdateTx(ctx context.Context, tx pgx.Tx, id string) (*domain.Approval, error)
	ListApprovalsTx(ctx context.Context, tx pgx.Tx, incidentID string) ([]domain.Approval, error)
	ListSolutionsTx(ctx context.Context, tx pgx.Tx, incidentID string) ([]domain.Solution, error)
	UpdateApprovalTx(ctx context.Context, tx pgx.Tx, approval *domain.Approval) error
	UpdateIncidentTx(ctx context.Context, tx pgx.Tx, incident *domain.Incident) error
}
