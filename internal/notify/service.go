package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/obakeng/relitrack/internal/domain"
)

// EmailSender is the outbound mail transport.
type EmailSender interface {
	Send(ctx context.Context, subject, body, to string) error
}

// Service composes and sends the tracker's emails.
type Service struct {
	sender   EmailSender
	renderer *Renderer
}

// NewService creates a new notify service.
func NewService(sender EmailSender) (*Service, error) {
	renderer, err := NewRenderer()
	if err != nil {
		return nil, err
	}
	return &Service{
		sender:   sender,
		renderer: renderer,
	}, nil
}

type welcomeData struct {
	Name string
}

// OnUserCreated sends the welcome email for a freshly registered user. It
// satisfies the identity module's user-created hook.
func (s *Service) OnUserCreated(ctx context.Context, user *domain.User) error {
	body, err := s.renderer.Render("welcome", welcomeData{Name: displayName(user)})
	if err != nil {
		return err
	}
	return s.sender.Send(ctx, "Welcome to the reliability incident tracker", body, user.Email)
}

// DigestEntry is one line of the overdue-action digest.
type DigestEntry struct {
	Urgency string
	Code    string
	Message string
	Due     time.Time
}

type digestData struct {
	Name    string
	Entries []DigestEntry
}

// SendDigest emails the user a digest of their overdue actions. Callers skip
// users with nothing overdue; an empty action list is a no-op.
func (s *Service) SendDigest(ctx context.Context, user *domain.User, actions []domain.UserAction) error {
	if len(actions) == 0 {
		return nil
	}

	entries := make([]DigestEntry, 0, len(actions))
	for _, action := range actions {
		entry := DigestEntry{
			Urgency: string(action.Urgency),
			Message: action.Message,
			Due:     action.TimeRequired,
		}
		if action.Incident != nil {
			entry.Code = action.Incident.Code
		}
		entries = append(entries, entry)
	}

	body, err := s.renderer.Render("digest", digestData{
		Name:    displayName(user),
		Entries: entries,
	})
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("%d overdue incident action(s) need your attention", len(entries))
	return s.sender.Send(ctx, subject, body, user.Email)
}

func displayName(user *domain.User) string {
	if user.FirstName != "" {
		return user.FirstName
	}
	return user.Email
}
