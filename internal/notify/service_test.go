package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obakeng/relitrack/internal/domain"
)

type capturedMail struct {
	subject string
	body    string
	to      string
}

type mockSender struct {
	sent []capturedMail
	err  error
}

func (m *mockSender) Send(_ context.Context, subject, body, to string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, capturedMail{subject: subject, body: body, to: to})
	return nil
}

func TestOnUserCreated(t *testing.T) {
	sender := &mockSender{}
	service, err := NewService(sender)
	require.NoError(t, err)

	err = service.OnUserCreated(context.Background(), &domain.User{
		Email:     "thabo@example.com",
		FirstName: "Thabo",
	})
	require.NoError(t, err)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "thabo@example.com", sender.sent[0].to)
	assert.Contains(t, sender.sent[0].body, "Hi Thabo,")
	assert.Contains(t, sender.sent[0].body, "account has been created")
}

func TestSendDigest(t *testing.T) {
	sender := &mockSender{}
	service, err := NewService(sender)
	require.NoError(t, err)

	user := &domain.User{Email: "re@example.com"}
	due := time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)
	actions := []domain.UserAction{
		{
			Urgency:      domain.UrgencyDanger,
			Message:      "Create 48H Notification",
			Incident:     &domain.Incident{Code: "RI-CON-2024-0007"},
			TimeRequired: due,
		},
	}

	err = service.SendDigest(context.Background(), user, actions)
	require.NoError(t, err)

	require.Len(t, sender.sent, 1)
	mail := sender.sent[0]
	assert.Equal(t, "1 overdue incident action(s) need your attention", mail.subject)
	assert.Contains(t, mail.body, "Hi re@example.com,")
	assert.Contains(t, mail.body, "[DANGER] RI-CON-2024-0007: Create 48H Notification")
	assert.Contains(t, mail.body, "2024-03-01 06:00 UTC")
}

func TestSendDigestSkipsEmpty(t *testing.T) {
	sender := &mockSender{}
	service, err := NewService(sender)
	require.NoError(t, err)

	err = service.SendDigest(context.Background(), &domain.User{Email: "re@example.com"}, nil)
	require.NoError(t, err)
	assert.Empty(t, sender.sent)
}
