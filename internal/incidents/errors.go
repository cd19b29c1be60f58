package incidents

import "errors"

// Incident workflow errors.
var (
	ErrIncidentNotFound = errors.New("incident not found")
	ErrApprovalNotFound = errors.New("approval not found")
	ErrSolutionNotFound = errors.New("solution not found")

	ErrInvalidWindow    = errors.New("time_end must not be before time_start")
	ErrAlreadyPublished = errors.New("stage already published")
	ErrAlreadyApproved  = errors.New("stage already approved")
	ErrStageNotReady    = errors.New("stage preconditions not met")
	ErrAlreadyReviewed  = errors.New("anniversary already reviewed")

	ErrNotAssigned      = errors.New("approval assigned to another user")
	ErrApprovalResolved = errors.New("approval already decided")
	ErrCommentRequired  = errors.New("comment required when rejecting")
	ErrInvalidDecision  = errors.New("invalid decision")
	ErrInvalidScore     = errors.New("score must be between 1 and 5")

	ErrSolutionVerified = errors.New("solution already verified")
)
