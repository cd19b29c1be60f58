package lifecycle

import (
	"testing"
	"time"

	"github.com/obakeng/relitrack/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasPendingApproval(t *testing.T) {
	approvals := []domain.Approval{
		approval(domain.ApprovalNotification, domain.RoleSectionEngineeringManager, domain.OutcomeRejected, testNow.Add(-time.Hour)),
		approval(domain.ApprovalNotification, domain.RoleSectionEngineeringManager, domain.OutcomePending, testNow),
		approval(domain.ApprovalRCA, domain.RoleSeniorAssetManager, domain.OutcomeAccepted, testNow),
	}

	assert.True(t, HasPendingApproval(approvals, domain.ApprovalNotification))
	assert.False(t, HasPendingApproval(approvals, domain.ApprovalRCA))
	assert.False(t, HasPendingApproval(approvals, domain.ApprovalCloseOut))

	// Role filter.
	assert.True(t, HasPendingApproval(approvals, domain.ApprovalNotification, domain.RoleSectionEngineeringManager))
	assert.False(t, HasPendingApproval(approvals, domain.ApprovalNotification, domain.RoleSeniorAssetManager))
}

func TestHasPendingApprovalScoreBased(t *testing.T) {
	unscored := domain.Approval{Type: domain.ApprovalCloseOut, Role: domain.RoleSectionEngineer}
	assert.True(t, HasPendingApproval([]domain.Approval{unscored}, domain.ApprovalCloseOut))

	scored := unscored
	scored.Score = 4
	assert.False(t, HasPendingApproval([]domain.Approval{scored}, domain.ApprovalCloseOut))
}

func TestMostRecentOutcomeForRole(t *testing.T) {
	t.Run("none present", func(t *testing.T) {
		_, ok := MostRecentOutcomeForRole(nil, domain.ApprovalRCA, domain.RoleSeniorAssetManager)
		assert.False(t, ok)
	})

	t.Run("latest modification wins", func(t *testing.T) {
		approvals := []domain.Approval{
			approval(domain.ApprovalRCA, domain.RoleSeniorAssetManager, domain.OutcomeRejected, testNow.Add(-2*time.Hour)),
			approval(domain.ApprovalRCA, domain.RoleSeniorAssetManager, domain.OutcomeAccepted, testNow),
		}
		out, ok := MostRecentOutcomeForRole(approvals, domain.ApprovalRCA, domain.RoleSeniorAssetManager)
		require.True(t, ok)
		assert.Equal(t, domain.OutcomeAccepted, out)
	})

	t.Run("other roles and types ignored", func(t *testing.T) {
		approvals := []domain.Approval{
			approval(domain.ApprovalRCA, domain.RoleSectionEngineeringManager, domain.OutcomeRejected, testNow),
			approval(domain.ApprovalNotification, domain.RoleSeniorAssetManager, domain.OutcomeRejected, testNow),
		}
		_, ok := MostRecentOutcomeForRole(approvals, domain.ApprovalRCA, domain.RoleSeniorAssetManager)
		assert.False(t, ok)
	})
}

func TestCountResolvedOfType(t *testing.T) {
	scored := domain.Approval{Type: domain.ApprovalCloseOut, Role: domain.RoleSectionEngineer, Score: 3}
	unscored := domain.Approval{Type: domain.ApprovalCloseOut, Role: domain.RoleSectionEngineeringManager}

	approvals := []domain.Approval{
		approval(domain.ApprovalNotification, domain.RoleSectionEngineeringManager, domain.OutcomeRejected, testNow),
		approval(domain.ApprovalNotification, domain.RoleSectionEngineeringManager, domain.OutcomePending, testNow),
		scored,
		unscored,
	}

	assert.Equal(t, 1, CountResolvedOfType(approvals, domain.ApprovalNotification))
	assert.Equal(t, 1, CountResolvedOfType(approvals, domain.ApprovalCloseOut))
	assert.Equal(t, 0, CountResolvedOfType(approvals, domain.ApprovalRCA))
}

func TestHasApprovalForRole(t *testing.T) {
	approvals := []domain.Approval{
		approval(domain.ApprovalRCA, domain.RoleSeniorAssetManager, domain.OutcomePending, testNow),
	}

	assert.True(t, HasApprovalForRole(approvals, domain.ApprovalRCA, domain.RoleSeniorAssetManager))
	assert.False(t, HasApprovalForRole(approvals, domain.ApprovalRCA, domain.RoleSectionEngineeringManager))
	assert.False(t, HasApprovalForRole(approvals, domain.ApprovalCloseOut, domain.RoleSeniorAssetManager))
}
