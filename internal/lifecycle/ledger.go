// Package lifecycle derives an incident's lifecycle status, deadlines and
// pending actions from its timestamps and its approval/solution records.
// Every derivation is a pure function of the snapshot plus an explicit "now";
// nothing here reads the wall clock or touches storage.
package lifecycle

import (
	"github.com/obakeng/relitrack/internal/domain"
)

// HasPendingApproval reports whether any approval of the given type is still
// awaiting a decision. With roles given, only approvals requested from one of
// those roles are considered.
func HasPendingApproval(approvals []domain.Approval, t domain.ApprovalType, roles ...domain.Role) bool {
	for _, a := range approvals {
		if a.Type != t {
			continue
		}
		if len(roles) > 0 && !roleMatches(a.Role, roles) {
			continue
		}
		if a.Pending() {
			return true
		}
	}
	return false
}

// MostRecentOutcomeForRole returns the outcome of the most recently modified
// approval of the given type and role. The boolean is false when no such
// approval exists; that is a sentinel "none", not an error.
func MostRecentOutcomeForRole(approvals []domain.Approval, t domain.ApprovalType, role domain.Role) (domain.Outcome, bool) {
	var latest *domain.Approval
	for i := range approvals {
		a := &approvals[i]
		if a.Type != t || a.Role != role {
			continue
		}
		if latest == nil || a.UpdatedAt.After(latest.UpdatedAt) {
			latest = a
		}
	}
	if latest == nil {
		return "", false
	}
	return latest.Outcome, true
}

// CountResolvedOfType counts approvals of the given type that carry a
// decision. Close-out approvals count as resolved once scored.
func CountResolvedOfType(approvals []domain.Approval, t domain.ApprovalType) int {
	n := 0
	for _, a := range approvals {
		if a.Type == t && a.Resolved() {
			n++
		}
	}
	return n
}

// HasApprovalForRole reports whether any approval of the given type has been
// requested from the role, decided or not.
func HasApprovalForRole(approvals []domain.Approval, t domain.ApprovalType, role domain.Role) bool {
	for _, a := range approvals {
		if a.Type == t && a.Role == role {
			return true
		}
	}
	return false
}

func roleMatches(role domain.Role, roles []domain.Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
