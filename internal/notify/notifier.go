package notify

import (
	"context"

	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/model"
)

// Notifier dispatches operational email: admin alerts for records that
// need human action, and welcome mail for learners created on the fly.
type Notifier interface {
	NotifyAdmins(ctx context.Context, subject, body string) error
	SendWelcome(ctx context.Context, learner *model.Learner, course *model.Course) error
}

// Noop discards everything. Used in tests and in deployments that handle
// alerting elsewhere.
type Noop struct{}

func (Noop) NotifyAdmins(ctx context.Context, subject, body string) error { return nil }

func (Noop) SendWelcome(ctx context.Context, learner *model.Learner, course *model.Course) error {
	return nil
}
