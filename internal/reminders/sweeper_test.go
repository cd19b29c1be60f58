package reminders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obakeng/relitrack/internal/domain"
	"github.com/obakeng/relitrack/internal/incidents"
)

type mockSweeper struct {
	result *incidents.SweepResult
	err    error
	calls  int
}

func (m *mockSweeper) SweepStatuses(_ context.Context) (*incidents.SweepResult, error) {
	m.calls++
	return m.result, m.err
}

type mockDirectory struct {
	users map[string]*domain.User
}

func (m *mockDirectory) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	user, ok := m.users[id]
	if !ok {
		return nil, errors.New("user not found")
	}
	return user, nil
}

type mockDigests struct {
	sent map[string][]domain.UserAction
	err  error
}

func (m *mockDigests) SendDigest(_ context.Context, user *domain.User, actions []domain.UserAction) error {
	if m.err != nil {
		return m.err
	}
	if m.sent == nil {
		m.sent = make(map[string][]domain.UserAction)
	}
	m.sent[user.Email] = actions
	return nil
}

func dangerResult() *incidents.SweepResult {
	return &incidents.SweepResult{
		Scanned:      2,
		Repersisted:  1,
		StatusCounts: map[domain.Status]int{domain.StatusOverdue: 2},
		UrgencyCounts: map[domain.Urgency]int{
			domain.UrgencyDanger: 2,
		},
		DangerByCreator: map[string][]domain.UserAction{
			"user-1": {
				{
					Urgency:      domain.UrgencyDanger,
					Message:      "Upload RCA Report",
					TimeRequired: time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC),
				},
			},
		},
	}
}

func TestRunSendsDigests(t *testing.T) {
	directory := &mockDirectory{users: map[string]*domain.User{
		"user-1": {ID: "user-1", Email: "re@example.com"},
	}}
	digests := &mockDigests{}
	sweeper := NewSweeper(&mockSweeper{result: dangerResult()}, directory, digests, true)

	sweeper.Run(context.Background())

	require.Len(t, digests.sent, 1)
	actions := digests.sent["re@example.com"]
	require.Len(t, actions, 1)
	assert.Equal(t, "Upload RCA Report", actions[0].Message)
}

func TestRunEmailDisabled(t *testing.T) {
	directory := &mockDirectory{users: map[string]*domain.User{
		"user-1": {ID: "user-1", Email: "re@example.com"},
	}}
	digests := &mockDigests{}
	sweeper := NewSweeper(&mockSweeper{result: dangerResult()}, directory, digests, false)

	sweeper.Run(context.Background())

	assert.Empty(t, digests.sent)
}

func TestRunSurvivesDigestFailure(t *testing.T) {
	directory := &mockDirectory{users: map[string]*domain.User{
		"user-1": {ID: "user-1", Email: "re@example.com"},
	}}
	digests := &mockDigests{err: errors.New("smtp down")}
	sweeper := NewSweeper(&mockSweeper{result: dangerResult()}, directory, digests, true)

	// Must not panic or propagate the error.
	sweeper.Run(context.Background())
}

func TestRunSurvivesUnknownUser(t *testing.T) {
	directory := &mockDirectory{users: map[string]*domain.User{}}
	digests := &mockDigests{}
	sweeper := NewSweeper(&mockSweeper{result: dangerResult()}, directory, digests, true)

	sweeper.Run(context.Background())

	assert.Empty(t, digests.sent)
}

func TestRunSweepError(t *testing.T) {
	source := &mockSweeper{err: errors.New("db down")}
	digests := &mockDigests{}
	sweeper := NewSweeper(source, &mockDirectory{}, digests, true)

	sweeper.Run(context.Background())

	assert.Equal(t, 1, source.calls)
	assert.Empty(t, digests.sent)
}
