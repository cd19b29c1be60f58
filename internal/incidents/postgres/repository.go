// Package postgres provides PostgreSQL implementation of incidents repository.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/obakeng/relitrack/internal/domain"
	"github.com/obakeng/relitrack/internal/incidents"
	"github.com/obakeng/relitrack/internal/lifecycle"
)

// Repository implements incidents.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const incidentColumns = `
	id, code, status, created_by,
	operation, area, section, equipment, section_engineer_id,
	time_start, time_end, significant,
	short_description, long_description, immediate_cause, root_cause,
	immediate_action_taken, remaining_risk,
	production_value_loss, rand_value_loss,
	notification_time_published, notification_time_approved,
	rca_report_time_published, rca_report_time_approved,
	close_out_time_published, close_out_time_approved,
	time_anniversary_reviewed,
	report_file, close_out_rating, created_at, updated_at
`

type scanner interface {
	Scan(dest ...any) error
}

func scanIncident(row scanner) (*domain.Incident, error) {
	var incident domain.Incident
	err := row.Scan(
		&incident.ID,
		&incident.Code,
		&incident.Status,
		&incident.CreatedBy,
		&incident.Operation,
		&incident.Area,
		&incident.Section,
		&incident.Equipment,
		&incident.SectionEngineerID,
		&incident.TimeStart,
		&incident.TimeEnd,
		&incident.Significant,
		&incident.ShortDescription,
		&incident.LongDescription,
		&incident.ImmediateCause,
		&incident.RootCause,
		&incident.ImmediateActionTaken,
		&incident.RemainingRisk,
		&incident.ProductionValueLoss,
		&incident.RandValueLoss,
		&incident.NotificationTimePublished,
		&incident.NotificationTimeApproved,
		&incident.RCAReportTimePublished,
		&incident.RCAReportTimeApproved,
		&incident.CloseOutTimePublished,
		&incident.CloseOutTimeApproved,
		&incident.TimeAnniversaryReviewed,
		&incident.ReportFile,
		&incident.CloseOutRating,
		&incident.CreatedAt,
		&incident.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &incident, nil
}

// CreateIncident creates a new incident in the database.
func (r *Repository) CreateIncident(ctx context.Context, incident *domain.Incident) error {
	query := `
		INSERT INTO incidents (
			code, status, created_by,
			operation, area, section, equipment, section_engineer_id,
			time_start, time_end, significant,
			short_description, long_description, immediate_cause, root_cause,
			immediate_action_taken, remaining_risk,
			production_value_loss, rand_value_loss,
			report_file
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		incident.Code,
		incident.Status,
		incident.CreatedBy,
		incident.Operation,
		incident.Area,
		incident.Section,
		incident.Equipment,
		incident.SectionEngineerID,
		incident.TimeStart,
		incident.TimeEnd,
		incident.Significant,
		incident.ShortDescription,
		incident.LongDescription,
		incident.ImmediateCause,
		incident.RootCause,
		incident.ImmediateActionTaken,
		incident.RemainingRisk,
		incident.ProductionValueLoss,
		incident.RandValueLoss,
		incident.ReportFile,
	).Scan(&incident.ID, &incident.CreatedAt, &incident.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create incident: %w", err)
	}
	return nil
}

// GetIncident retrieves an incident by ID.
func (r *Repository) GetIncident(ctx context.Context, id string) (*domain.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE id = $1`

	incident, err := scanIncident(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, incidents.ErrIncidentNotFound
		}
		return nil, fmt.Errorf("get incident: %w", err)
	}
	return incident, nil
}

// ListIncidents retrieves incidents with optional filters.
func (r *Repository) ListIncidents(ctx context.Context, filters incidents.IncidentFilters) ([]*domain.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE 1=1`
	args := []interface{}{}
	argNum := 1

	if filters.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, *filters.Status)
		argNum++
	}

	if filters.CreatedBy != nil {
		query += fmt.Sprintf(" AND created_by = $%d", argNum)
		args = append(args, *filters.CreatedBy)
		argNum++
	}

	if filters.Significant != nil {
		query += fmt.Sprintf(" AND significant = $%d", argNum)
		args = append(args, *filters.Significant)
		argNum++
	}

	query += " ORDER BY time_start DESC"

	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, filters.Limit)
		argNum++
	}

	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argNum)
		args = append(args, filters.Offset)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()

	return collectIncidents(rows)
}

// ListOpenIncidents retrieves every incident not yet complete.
func (r *Repository) ListOpenIncidents(ctx context.Context) ([]*domain.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE status != 'complete' ORDER BY time_start DESC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list open incidents: %w", err)
	}
	defer rows.Close()

	return collectIncidents(rows)
}

// ListOpenIncidentsByCreator retrieves a user's incidents not yet complete.
func (r *Repository) ListOpenIncidentsByCreator(ctx context.Context, userID string) ([]*domain.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE status != 'complete' AND created_by = $1 ORDER BY time_start DESC`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list open incidents by creator: %w", err)
	}
	defer rows.Close()

	return collectIncidents(rows)
}

func collectIncidents(rows pgx.Rows) ([]*domain.Incident, error) {
	incidentsList := make([]*domain.Incident, 0)
	for rows.Next() {
		incident, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		incidentsList = append(incidentsList, incident)
	}
	return incidentsList, rows.Err()
}

const updateIncidentQuery = `
	UPDATE incidents
	SET status = $2, time_start = $3, time_end = $4,
	    short_description = $5, long_description = $6,
	    immediate_cause = $7, root_cause = $8,
	    immediate_action_taken = $9, remaining_risk = $10,
	    production_value_loss = $11, rand_value_loss = $12,
	    notification_time_published = $13, notification_time_approved = $14,
	    rca_report_time_published = $15, rca_report_time_approved = $16,
	    close_out_time_published = $17, close_out_time_approved = $18,
	    time_anniversary_reviewed = $19,
	    report_file = $20, close_out_rating = $21,
	    updated_at = NOW()
	WHERE id = $1
	RETURNING updated_at
`

func incidentUpdateArgs(incident *domain.Incident) []any {
	return []any{
		incident.ID,
		incident.Status,
		incident.TimeStart,
		incident.TimeEnd,
		incident.ShortDescription,
		incident.LongDescription,
		incident.ImmediateCause,
		incident.RootCause,
		incident.ImmediateActionTaken,
		incident.RemainingRisk,
		incident.ProductionValueLoss,
		incident.RandValueLoss,
		incident.NotificationTimePublished,
		incident.NotificationTimeApproved,
		incident.RCAReportTimePublished,
		incident.RCAReportTimeApproved,
		incident.CloseOutTimePublished,
		incident.CloseOutTimeApproved,
		incident.TimeAnniversaryReviewed,
		incident.ReportFile,
		incident.CloseOutRating,
	}
}

// UpdateIncident updates an existing incident.
func (r *Repository) UpdateIncident(ctx context.Context, incident *domain.Incident) error {
	err := r.db.QueryRow(ctx, updateIncidentQuery, incidentUpdateArgs(incident)...).Scan(&incident.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return incidents.ErrIncidentNotFound
		}
		return fmt.Errorf("update incident: %w", err)
	}
	return nil
}

// UpdateIncidentTx updates an existing incident within a transaction.
func (r *Repository) UpdateIncidentTx(ctx context.Context, tx pgx.Tx, incident *domain.Incident) error {
	err := tx.QueryRow(ctx, updateIncidentQuery, incidentUpdateArgs(incident)...).Scan(&incident.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return incidents.ErrIncidentNotFound
		}
		return fmt.Errorf("update incident: %w", err)
	}
	return nil
}

// NextCodeSequence returns the next per-year sequence number for incident
// codes. The counter row is upserted atomically so concurrent creates cannot
// collide.
func (r *Repository) NextCodeSequence(ctx context.Context, year int) (int, error) {
	query := `
		INSERT INTO incident_code_sequences (year, last_seq)
		VALUES ($1, 1)
		ON CONFLICT (year)
		DO UPDATE SET last_seq = incident_code_sequences.last_seq + 1
		RETURNING last_seq
	`
	var seq int
	if err := r.db.QueryRow(ctx, query, year).Scan(&seq); err != nil {
		return 0, fmt.Errorf("next code sequence: %w", err)
	}
	return seq, nil
}

// GetSnapshot loads an incident together with its approvals and solutions.
func (r *Repository) GetSnapshot(ctx context.Context, incidentID string) (lifecycle.Snapshot, error) {
	incident, err := r.GetIncident(ctx, incidentID)
	if err != nil {
		return lifecycle.Snapshot{}, err
	}

	approvals, err := r.ListApprovals(ctx, incidentID)
	if err != nil {
		return lifecycle.Snapshot{}, err
	}

	solutions, err := r.ListSolutions(ctx, incidentID)
	if err != nil {
		return lifecycle.Snapshot{}, err
	}

	return lifecycle.Snapshot{
		Incident:  incident,
		Approvals: approvals,
		Solutions: solutions,
	}, nil
}

const approvalColumns = `id, incident_id, role, type, outcome, score, user_id, created_by, comment, created_at, updated_at`

func scanApproval(row scanner) (*domain.Approval, error) {
	var approval domain.Approval
	err := row.Scan(
		&approval.ID,
		&approval.IncidentID,
		&approval.Role,
		&approval.Type,
		&approval.Outcome,
		&approval.Score,
		&approval.UserID,
		&approval.CreatedBy,
		&approval.Comment,
		&approval.CreatedAt,
		&approval.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &approval, nil
}

const createApprovalQuery = `
	INSERT INTO approvals (incident_id, role, type, outcome, score, user_id, created_by, comment)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	RETURNING id, created_at, updated_at
`

// CreateApproval creates a new approval request.
func (r *Repository) CreateApproval(ctx context.Context, approval *domain.Approval) error {
	err := r.db.QueryRow(ctx, createApprovalQuery,
		approval.IncidentID,
		approval.Role,
		approval.Type,
		approval.Outcome,
		approval.Score,
		approval.UserID,
		approval.CreatedBy,
		approval.Comment,
	).Scan(&approval.ID, &approval.CreatedAt, &approval.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create approval: %w", err)
	}
	return nil
}

// CreateApprovalTx creates a new approval request within a transaction.
func (r *Repository) CreateApprovalTx(ctx context.Context, tx pgx.Tx, approval *domain.Approval) error {
	err := tx.QueryRow(ctx, createApprovalQuery,
		approval.IncidentID,
		approval.Role,
		approval.Type,
		approval.Outcome,
		approval.Score,
		approval.UserID,
		approval.CreatedBy,
		approval.Comment,
	).Scan(&approval.ID, &approval.CreatedAt, &approval.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create approval: %w", err)
	}
	return nil
}

// GetApproval retrieves an approval by ID.
func (r *Repository) GetApproval(ctx context.Context, id string) (*domain.Approval, error) {
	query := `SELECT ` + approvalColumns + ` FROM approvals WHERE id = $1`

	approval, err := scanApproval(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, incidents.ErrApprovalNotFound
		}
		return nil, fmt.Errorf("get approval: %w", err)
	}
	return approval, nil
}

// ListApprovals retrieves the full approval ledger for an incident, oldest
// first.
func (r *Repository) ListApprovals(ctx context.Context, incidentID string) ([]domain.Approval, error) {
	query := `SELECT ` + approvalColumns + ` FROM approvals WHERE incident_id = $1 ORDER BY created_at ASC`

	rows, err := r.db.Query(ctx, query, incidentID)
	if err != nil {
		return nil, fmt.Errorf("list approvals: %w", err)
	}
	defer rows.Close()

	return collectApprovals(rows)
}

// ListApprovalsTx retrieves the approval ledger within a transaction.
func (r *Repository) ListApprovalsTx(ctx context.Context, tx pgx.Tx, incidentID string) ([]domain.Approval, error) {
	query := `SELECT ` + approvalColumns + ` FROM approvals WHERE incident_id = $1 ORDER BY created_at ASC`

	rows, err := tx.Query(ctx, query, incidentID)
	if err != nil {
		return nil, fmt.Errorf("list approvals: %w", err)
	}
	defer rows.Close()

	return collectApprovals(rows)
}

// ListPendingApprovalsForUser retrieves unresolved approvals assigned to a
// user. Close-out approvals resolve by score, the rest by outcome.
func (r *Repository) ListPendingApprovalsForUser(ctx context.Context, userID string) ([]domain.Approval, error) {
	query := `
		SELECT ` + approvalColumns + `
		FROM approvals
		WHERE user_id = $1
		  AND ((type = 'close_out' AND score = 0) OR (type != 'close_out' AND outcome = 'pending'))
		ORDER BY created_at ASC
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list pending approvals: %w", err)
	}
	defer rows.Close()

	return collectApprovals(rows)
}

func collectApprovals(rows pgx.Rows) ([]domain.Approval, error) {
	approvals := make([]domain.Approval, 0)
	for rows.Next() {
		approval, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("scan approval: %w", err)
		}
		approvals = append(approvals, *approval)
	}
	return approvals, rows.Err()
}

// UpdateApprovalTx records a decision on an approval within a transaction.
func (r *Repository) UpdateApprovalTx(ctx context.Context, tx pgx.Tx, approval *domain.Approval) error {
	query := `
		UPDATE approvals
		SET outcome = $2, score = $3, comment = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err := tx.QueryRow(ctx, query,
		approval.ID,
		approval.Outcome,
		approval.Score,
		approval.Comment,
	).Scan(&approval.UpdatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return incidents.ErrApprovalNotFound
		}
		return fmt.Errorf("update approval: %w", err)
	}
	return nil
}

const solutionColumns = `id, incident_id, priority, timeframe, description, person_responsible, planned_completion_date, actual_completion_date, date_verified, created_at, updated_at`

func scanSolution(row scanner) (*domain.Solution, error) {
	var solution domain.Solution
	err := row.Scan(
		&solution.ID,
		&solution.IncidentID,
		&solution.Priority,
		&solution.Timeframe,
		&solution.Description,
		&solution.PersonResponsible,
		&solution.PlannedCompletionDate,
		&solution.ActualCompletionDate,
		&solution.DateVerified,
		&solution.CreatedAt,
		&solution.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &solution, nil
}

// CreateSolution creates a new solution.
func (r *Repository) CreateSolution(ctx context.Context, solution *domain.Solution) error {
	query := `
		INSERT INTO solutions (incident_id, priority, timeframe, description, person_responsible, planned_completion_date)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		solution.IncidentID,
		solution.Priority,
		solution.Timeframe,
		solution.Description,
		solution.PersonResponsible,
		solution.PlannedCompletionDate,
	).Scan(&solution.ID, &solution.CreatedAt, &solution.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create solution: %w", err)
	}
	return nil
}

// GetSolution retrieves a solution by ID.
func (r *Repository) GetSolution(ctx context.Context, id string) (*domain.Solution, error) {
	query := `SELECT ` + solutionColumns + ` FROM solutions WHERE id = $1`

	solution, err := scanSolution(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, incidents.ErrSolutionNotFound
		}
		return nil, fmt.Errorf("get solution: %w", err)
	}
	return solution, nil
}

// ListSolutions retrieves all solutions for an incident.
func (r *Repository) ListSolutions(ctx context.Context, incidentID string) ([]domain.Solution, error) {
	query := `SELECT ` + solutionColumns + ` FROM solutions WHERE incident_id = $1 ORDER BY created_at ASC`

	rows, err := r.db.Query(ctx, query, incidentID)
	if err != nil {
		return nil, fmt.Errorf("list solutions: %w", err)
	}
	defer rows.Close()

	return collectSolutions(rows)
}

// ListSolutionsTx retrieves all solutions for an incident within a transaction.
func (r *Repository) ListSolutionsTx(ctx context.Context, tx pgx.Tx, incidentID string) ([]domain.Solution, error) {
	query := `SELECT ` + solutionColumns + ` FROM solutions WHERE incident_id = $1 ORDER BY created_at ASC`

	rows, err := tx.Query(ctx, query, incidentID)
	if err != nil {
		return nil, fmt.Errorf("list solutions: %w", err)
	}
	defer rows.Close()

	return collectSolutions(rows)
}

func collectSolutions(rows pgx.Rows) ([]domain.Solution, error) {
	solutions := make([]domain.Solution, 0)
	for rows.Next() {
		solution, err := scanSolution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan solution: %w", err)
		}
		solutions = append(solutions, *solution)
	}
	return solutions, rows.Err()
}

// UpdateSolution updates an existing solution.
func (r *Repository) UpdateSolution(ctx context.Context, solution *domain.Solution) error {
	query := `
		UPDATE solutions
		SET priority = $2, timeframe = $3, description = $4, person_responsible = $5,
		    planned_completion_date = $6, actual_completion_date = $7, date_verified = $8,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err := r.db.QueryRow(ctx, query,
		solution.ID,
		solution.Priority,
		solution.Timeframe,
		solution.Description,
		solution.PersonResponsible,
		solution.PlannedCompletionDate,
		solution.ActualCompletionDate,
		solution.DateVerified,
	).Scan(&solution.UpdatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return incidents.ErrSolutionNotFound
		}
		return fmt.Errorf("update solution: %w", err)
	}
	return nil
}

// BeginTx starts a new database transaction.
func (r *Repository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.db.Begin(ctx)
}

// GetIncidentForUpdateTx retrieves an incident with a row lock.
func (r *Repository) GetIncidentForUpdateTx(ctx context.Context, tx pgx.Tx, id string) (*domain.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE id = $1 FOR UPDATE`

	incident, err := scanIncident(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, incidents.ErrIncidentNotFound
		}
		return nil, fmt.Errorf("get incident for update: %w", err)
	}
	return incident, nil
}

// GetApprovalForUpdateTx retrieves an approval with a row lock.
func (r *Repository) GetApprovalForUpdateTx(ctx context.Context, tx pgx.Tx, id string) (*domain.Approval, error) {
	query := `SELECT ` + approvalColumns + ` FROM approvals WHERE id = $1 FOR UPDATE`

	approval, err := scanApproval(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, incidents.ErrApprovalNotFound
		}
		return nil, fmt.Errorf("get approval for update: %w", err)
	}
	return approval, nil
}
