// Package incidents provides the incident review workflow: notification,
// RCA report, close-out, solutions and the anniversary review.
package incidents

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/obakeng/relitrack/internal/domain"
	"github.com/obakeng/relitrack/internal/pkg/httputil"
)

// Pagination constants.
const (
	DefaultIncidentsLimit = 50
	MaxIncidentsLimit     = 200
)

// Handler handles HTTP requests for the incidents module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new incidents handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers all HTTP routes for the incidents module.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/incidents", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/{id}", h.Get)
		r.Patch("/{id}", h.Update)
		r.Get("/{id}/actions", h.GetActions)

		r.Post("/{id}/notification", h.PublishNotification)
		r.Post("/{id}/rca-report", h.AttachRCAReport)
		r.Post("/{id}/rca-report/submit", h.SubmitRCAReport)
		r.Post("/{id}/rca-report/submit-sem", h.SubmitRCAToSEM)
		r.Post("/{id}/close-out", h.PublishCloseOut)
		r.Post("/{id}/anniversary-review", h.ReviewAnniversary)

		r.Get("/{id}/solutions", h.ListSolutions)
		r.Post("/{id}/solutions", h.AddSolution)
	})

	r.Route("/approvals", func(r chi.Router) {
		r.Get("/{id}", h.GetApproval)
		r.Post("/{id}/decision", h.RecordDecision)
	})

	r.Route("/solutions", func(r chi.Router) {
		r.Patch("/{id}", h.UpdateSolution)
		r.Post("/{id}/verify", h.VerifySolution)
	})
}

// CreateIncidentRequest represents the request body for logging an incident.
type CreateIncidentRequest struct {
	Operation         *string `json:"operation"`
	Area              *string `json:"area"`
	Section           *string `json:"section"`
	Equipment         *string `json:"equipment"`
	SectionEngineerID *string `json:"section_engineer_id"`

	TimeStart   time.Time  `json:"time_start" validate:"required"`
	TimeEnd     *time.Time `json:"time_end"`
	Significant *bool      `json:"significant"`

	ShortDescription     string `json:"short_description" validate:"required,min=1,max=255"`
	LongDescription      string `json:"long_description"`
	ImmediateCause       string `json:"immediate_cause"`
	ImmediateActionTaken string `json:"immediate_action_taken"`
	RemainingRisk        string `json:"remaining_risk"`

	ProductionValueLoss float64 `json:"production_value_loss" validate:"gte=0"`
	RandValueLoss       float64 `json:"rand_value_loss" validate:"gte=0"`
}

// Create handles POST /incidents request.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateIncidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	input := CreateIncidentInput{
		Operation:            req.Operation,
		Area:                 req.Area,
		Section:              req.Section,
		Equipment:            req.Equipment,
		SectionEngineerID:    req.SectionEngineerID,
		TimeStart:            req.TimeStart,
		TimeEnd:              req.TimeEnd,
		Significant:          req.Significant,
		ShortDescription:     req.ShortDescription,
		LongDescription:      req.LongDescription,
		ImmediateCause:       req.ImmediateCause,
		ImmediateActionTaken: req.ImmediateActionTaken,
		RemainingRisk:        req.RemainingRisk,
		ProductionValueLoss:  req.ProductionValueLoss,
		RandValueLoss:        req.RandValueLoss,
	}

	incident, err := h.service.Create(r.Context(), input, httputil.GetUserID(r.Context()))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	httputil.Success(w, http.StatusCreated, incident)
}

// Get handles GET /incidents/{id} request. An optional "at" query parameter
// (RFC 3339) evaluates the derived state at a different point in time.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	at, ok := h.parseAt(w, r)
	if !ok {
		return
	}

	detail, err := h.service.GetDetail(r.Context(), chi.URLParam(r, "id"), at)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	httputil.Success(w, http.StatusOK, detail)
}

// GetActions handles GET /incidents/{id}/actions request.
func (h *Handler) GetActions(w http.ResponseWriter, r *http.Request) {
	at, ok := h.parseAt(w, r)
	if !ok {
		return
	}

	detail, err := h.service.GetDetail(r.Context(), chi.URLParam(r, "id"), at)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	httputil.Success(w, http.StatusOK, detail.Actions)
}

func (h *Handler) parseAt(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	raw := r.URL.Query().Get("at")
	if raw == "" {
		return time.Time{}, true
	}
	at, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "at must be an RFC 3339 timestamp")
		return time.Time{}, false
	}
	return at, true
}

// List handles GET /incidents request.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filters := IncidentFilters{Limit: DefaultIncidentsLimit}

	if status := r.URL.Query().Get("status"); status != "" {
		s := domain.Status(status)
		filters.Status = &s
	}

	if createdBy := r.URL.Query().Get("created_by"); createdBy != "" {
		filters.CreatedBy = &createdBy
	}

	if significant := r.URL.Query().Get("significant"); significant != "" {
		parsed, err := strconv.ParseBool(significant)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, "significant must be a boolean")
			return
		}
		filters.Significant = &parsed
	}

	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			httputil.Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if parsed > MaxIncidentsLimit {
			parsed = MaxIncidentsLimit
		}
		filters.Limit = parsed
	}

	if o := r.URL.Query().Get("offset"); o != "" {
		parsed, err := strconv.Atoi(o)
		if err != nil || parsed < 0 {
			httputil.Error(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		filters.Offset = parsed
	}

	incidentsList, err := h.service.ListIncidents(r.Context(), filters)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	httputil.Success(w, http.StatusOK, incidentsList)
}

// UpdateIncidentRequest represents the request body for editing an incident.
type UpdateIncidentRequest struct {
	TimeStart *time.Time `json:"time_start"`
	TimeEnd   *time.Time `json:"time_end"`

	ShortDescription     *string `json:"short_description" validate:"omitempty,min=1,max=255"`
	LongDescription      *string `json:"long_description"`
	ImmediateCause       *string `json:"immediate_cause"`
	RootCause            *string `json:"root_cause"`
	ImmediateActionTaken *string `json:"immediate_action_taken"`
	RemainingRisk        *string `json:"remaining_risk"`

	ProductionValueLoss *float64 `json:"production_value_loss" validate:"omitempty,gte=0"`
	RandValueLoss       *float64 `json:"rand_value_loss" validate:"omitempty,gte=0"`
}

// Update handles PATCH /incidents/{id} request.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateIncidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	incident, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), UpdateIncidentInput{
		TimeStart:            req.TimeStart,
		TimeEnd:              req.TimeEnd,
		ShortDescription:     req.ShortDescription,
		LongDescription:      req.LongDescription,
		ImmediateCause:       req.ImmediateCause,
		RootCause:            req.RootCause,
		ImmediateActionTaken: req.ImmediateActionTaken,
		RemainingRisk:        req.RemainingRisk,
		ProductionValueLoss:  req.ProductionValueLoss,
		RandValueLoss:        req.RandValueLoss,
	})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	httputil.Success(w, http.StatusOK, incident)
}

// PublishNotificationRequest names the SEM who must approve the notification.
type PublishNotificationRequest struct {
	SEMUserID string `json:"sem_user_id" validate:"required,uuid"`
}

// PublishNotification handles POST /incidents/{id}/notification request.
func (h *Handler) PublishNotification(w http.ResponseWriter, r *http.Request) {
	var req PublishNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	approval, err := h.service.PublishNotification(r.Context(), chi.URLParam(r, "id"), req.SEMUserID, httputil.GetUserID(r.Context()))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	httputil.Success(w, http.StatusCreated, approval)
}

// AttachRCAReportRequest carries the uploaded report reference.
type AttachRCAReportRequest struct {
	ReportFile string `json:"report_file" validate:"required,min=1,max=1024"`
}

// AttachRCAReport handles POST /incidents/{id}/rca-report request.
func (h *Handler) AttachRCAReport(w http.ResponseWriter, r *http.Request) {
	var req AttachRCAReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	incident, err := h.service.AttachRCAReport(r.Context(), chi.URLParam(r, "id"), req.ReportFile)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	httputil.Success(w, http.StatusOK, incident)
}

// SubmitRCAReportRequest names the SnrAM who must approve the RCA report.
type SubmitRCAReportRequest struct {
	SnrAMUserID string `json:"snr_am_user_id" validate:"required,uuid"`
}

// SubmitRCAReport handles POST /incidents/{id}/rca-report/submit request.
func (h *Handler) SubmitRCAReport(w http.ResponseWriter, r *http.Request) {
	var req SubmitRCAReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	approval, err := h.service.SubmitRCAReport(r.Context(), chi.URLParam(r, "id"), req.SnrAMUserID, httputil.GetUserID(r.Context()))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	httputil.Success(w, http.StatusCreated, approval)
}

// SubmitRCAToSEMRequest names the SEM for the second RCA decision.
type SubmitRCAToSEMRequest struct {
	SEMUserID string `json:"sem_user_id" validate:"required,uuid"`
}

// SubmitRCAToSEM handles POST /incidents/{id}/rca-report/submit-sem request.
func (h *Handler) SubmitRCAToSEM(w http.ResponseWriter, r *http.Request) {
	var req SubmitRCAToSEMRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	approval, err := h.service.SubmitRCAToSEM(r.Context(), chi.URLParam(r, "id"), req.SEMUserID, httputil.GetUserID(r.Context()))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	httputil.Success(w, http.StatusCreated, approval)
}

// PublishCloseOutRequest names the two close-out reviewers.
type PublishCloseOutRequest struct {
	SEUserID  string `json:"se_user_id" validate:"required,uuid"`
	SEMUserID string `json:"sem_user_id" validate:"required,uuid"`
}

// PublishCloseOut handles POST /incidents/{id}/close-out request.
func (h *Handler) PublishCloseOut(w http.ResponseWriter, r *http.Request) {
	var req PublishCloseOutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	approvals, err := h.service.PublishCloseOut(r.Context(), chi.URLParam(r, "id"), req.SEUserID, req.SEMUserID, httputil.GetUserID(r.Context()))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	httputil.Success(w, http.StatusCreated, approvals)
}

// ReviewAnniversary handles POST /incidents/{id}/anniversary-review request.
func (h *Handler) ReviewAnniversary(w http.ResponseWriter, r *http.Request) {
	incident, err := h.service.ReviewAnniversary(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	httputil.Success(w, http.StatusOK, incident)
}

// GetApproval handles GET /approvals/{id} request.
func (h *Handler) GetApproval(w http.ResponseWriter, r *http.Request) {
	approval, err := h.service.GetApproval(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	httputil.Success(w, http.StatusOK, approval)
}

// DecisionRequest represents the request body for recording a decision.
// Outcome applies to notification and RCA approvals, score to close-out ones.
type DecisionRequest struct {
	Outcome string `json:"outcome" validate:"omitempty,oneof=accepted rejected"`
	Score   int    `json:"score" validate:"omitempty,min=1,max=5"`
	Comment string `json:"comment" validate:"max=2000"`
}

// RecordDecision handles POST /approvals/{id}/decision request.
func (h *Handler) RecordDecision(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	approval, err := h.service.RecordDecision(r.Context(), chi.URLParam(r, "id"), httputil.GetUserID(r.Context()), DecisionInput{
		Outcome: domain.Outcome(req.Outcome),
		Score:   req.Score,
		Comment: req.Comment,
	})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	httputil.Success(w, http.StatusOK, approval)
}

// SolutionRequest represents the request body for adding a solution.
type SolutionRequest struct {
	Priority              string     `json:"priority" validate:"required,oneof=A B C"`
	Timeframe             string     `json:"timeframe" validate:"required,oneof=short_term medium_term long_term"`
	Description           string     `json:"description" validate:"required,min=1,max=2000"`
	PersonResponsible     string     `json:"person_responsible" validate:"required,min=1,max=255"`
	PlannedCompletionDate *time.Time `json:"planned_completion_date"`
}

// AddSolution handles POST /incidents/{id}/solutions request.
func (h *Handler) AddSolution(w http.ResponseWriter, r *http.Request) {
	var req SolutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	solution, err := h.service.AddSolution(r.Context(), chi.URLParam(r, "id"), SolutionInput{
		Priority:              domain.SolutionPriority(req.Priority),
		Timeframe:             domain.SolutionTimeframe(req.Timeframe),
		Description:           req.Description,
		PersonResponsible:     req.PersonResponsible,
		PlannedCompletionDate: req.PlannedCompletionDate,
	})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	httputil.Success(w, http.StatusCreated, solution)
}

// ListSolutions handles GET /incidents/{id}/solutions request.
func (h *Handler) ListSolutions(w http.ResponseWriter, r *http.Request) {
	solutions, err := h.service.ListSolutions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	httputil.Success(w, http.StatusOK, solutions)
}

// UpdateSolutionRequest represents the request body for editing a solution.
type UpdateSolutionRequest struct {
	Priority              *string    `json:"priority" validate:"omitempty,oneof=A B C"`
	Timeframe             *string    `json:"timeframe" validate:"omitempty,oneof=short_term medium_term long_term"`
	Description           *string    `json:"description" validate:"omitempty,min=1,max=2000"`
	PersonResponsible     *string    `json:"person_responsible" validate:"omitempty,min=1,max=255"`
	PlannedCompletionDate *time.Time `json:"planned_completion_date"`
	ActualCompletionDate  *time.Time `json:"actual_completion_date"`
}

// UpdateSolution handles PATCH /solutions/{id} request.
func (h *Handler) UpdateSolution(w http.ResponseWriter, r *http.Request) {
	var req UpdateSolutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	input := UpdateSolutionInput{
		PlannedCompletionDate: req.PlannedCompletionDate,
		ActualCompletionDate:  req.ActualCompletionDate,
		Description:           req.Description,
		PersonResponsible:     req.PersonResponsible,
	}
	if req.Priority != nil {
		p := domain.SolutionPriority(*req.Priority)
		input.Priority = &p
	}
	if req.Timeframe != nil {
		tf := domain.SolutionTimeframe(*req.Timeframe)
		input.Timeframe = &tf
	}

	solution, err := h.service.UpdateSolution(r.Context(), chi.URLParam(r, "id"), input)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	httputil.Success(w, http.StatusOK, solution)
}

// VerifySolution handles POST /solutions/{id}/verify request.
func (h *Handler) VerifySolution(w http.ResponseWriter, r *http.Request) {
	solution, err := h.service.VerifySolution(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	httputil.Success(w, http.StatusOK, solution)
}

func (h *Handler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrIncidentNotFound), errors.Is(err, ErrApprovalNotFound), errors.Is(err, ErrSolutionNotFound):
		httputil.Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidWindow), errors.Is(err, ErrCommentRequired),
		errors.Is(err, ErrInvalidDecision), errors.Is(err, ErrInvalidScore):
		httputil.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotAssigned):
		httputil.Error(w, http.StatusForbidden, err.Error())
	case errors.Is(err, ErrAlreadyPublished), errors.Is(err, ErrAlreadyApproved),
		errors.Is(err, ErrStageNotReady), errors.Is(err, ErrApprovalResolved),
		errors.Is(err, ErrAlreadyReviewed), errors.Is(err, ErrSolutionVerified):
		httputil.Error(w, http.StatusConflict, err.Error())
	default:
		slog.Error("internal error", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "internal error")
	}
}
