// Package reminders runs the nightly maintenance sweep: cached incident
// statuses are recomputed, lifecycle gauges refreshed and overdue-action
// digests emailed to incident owners.
package reminders

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/obakeng/relitrack/internal/domain"
	"github.com/obakeng/relitrack/internal/incidents"
	"github.com/obakeng/relitrack/internal/pkg/ctxlog"
	"github.com/obakeng/relitrack/internal/pkg/metrics"
)

// StatusSweeper recomputes and re-persists cached incident statuses.
type StatusSweeper interface {
	SweepStatuses(ctx context.Context) (*incidents.SweepResult, error)
}

// UserDirectory resolves user IDs to users for digest delivery.
type UserDirectory interface {
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
}

// DigestSender emails a user their overdue actions.
type DigestSender interface {
	SendDigest(ctx context.Context, user *domain.User, actions []domain.UserAction) error
}

// Sweeper runs the sweep, either on demand or on a cron schedule.
type Sweeper struct {
	incidents StatusSweeper
	users     UserDirectory
	digests   DigestSender
	emailOn   bool
	cron      *cron.Cron
}

// NewSweeper creates a new sweeper. digests may be nil when reminder email is
// disabled; the status and metrics work still runs.
func NewSweeper(incidentsSvc StatusSweeper, users UserDirectory, digests DigestSender, emailOn bool) *Sweeper {
	return &Sweeper{
		incidents: incidentsSvc,
		users:     users,
		digests:   digests,
		emailOn:   emailOn && digests != nil,
	}
}

// Start schedules the sweep with the given cron expression (standard five
// field syntax) and starts the scheduler.
func (s *Sweeper) Start(ctx context.Context, schedule string) error {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		s.Run(ctx)
	})
	if err != nil {
		return err
	}

	s.cron = c
	c.Start()
	ctxlog.FromContext(ctx).Info("reminder sweep scheduled", "schedule", schedule)
	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Run executes one sweep. Digest failures are logged and counted, never
// propagated: a broken mail relay must not stop status maintenance.
func (s *Sweeper) Run(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)
	started := time.Now()

	result, err := s.incidents.SweepStatuses(ctx)
	if err != nil {
		logger.Error("reminder sweep failed", "error", err)
		return
	}

	metrics.SweepDuration.Observe(time.Since(started).Seconds())
	publishGauges(result)

	logger.Info("reminder sweep finished",
		"scanned", result.Scanned,
		"repersisted", result.Repersisted,
		"duration", time.Since(started),
	)

	if s.emailOn {
		s.sendDigests(ctx, result.DangerByCreator)
	}
}

// publishGauges resets the lifecycle gauges to this sweep's profile. Statuses
// and urgencies absent from the result are explicitly zeroed so stale series
// do not linger.
func publishGauges(result *incidents.SweepResult) {
	for _, status := range []domain.Status{
		domain.StatusActive,
		domain.StatusOverdue,
		domain.StatusScheduled,
		domain.StatusComplete,
	} {
		metrics.IncidentsByStatus.WithLabelValues(string(status)).Set(float64(result.StatusCounts[status]))
	}

	for _, urgency := range []domain.Urgency{
		domain.UrgencyInfo,
		domain.UrgencyWarning,
		domain.UrgencyDanger,
	} {
		metrics.PendingActionsByUrgency.WithLabelValues(string(urgency)).Set(float64(result.UrgencyCounts[urgency]))
	}
}

func (s *Sweeper) sendDigests(ctx context.Context, byCreator map[string][]domain.UserAction) {
	logger := ctxlog.FromContext(ctx)

	for userID, actions := range byCreator {
		user, err := s.users.GetUserByID(ctx, userID)
		if err != nil {
			logger.Error("reminder digest: resolve user", "user_id", userID, "error", err)
			metrics.ReminderEmailsSent.WithLabelValues("error").Inc()
			continue
		}

		if err := s.digests.SendDigest(ctx, user, actions); err != nil {
			logger.Error("reminder digest: send", "user_id", userID, "error", err)
			metrics.ReminderEmailsSent.WithLabelValues("error").Inc()
			continue
		}

		metrics.ReminderEmailsSent.WithLabelValues("success").Inc()
	}
}
