// Package notify abstracts outbound email. Actual delivery is an external
// collaborator; the core only needs somewhere to hand notices to.
package notify

import (
	"context"
	"time"

	"userhub.org/internal/obs"
)

// Mailer sends account notices.
type Mailer interface {
	SendLockoutNotice(ctx context.Context, email string, until time.Time) error
	SendVerification(ctx context.Context, email, token string) error
}

// LogMailer writes notices to the structured log instead of delivering
// them. Used in development and tests.
type LogMailer struct{}

func (LogMailer) SendLockoutNotice(_ context.Context, email string, until time.Time) error {
	obs.LogRequest(map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"type":  "mail",
		"event": "account.lockout",
		"to":    email,
		"until": until.UTC().Format(time.RFC3339),
	})
	return nil
}

func (LogMailer) SendVerification(_ context.Context, email, token string) error {
	obs.LogRequest(map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"type":  "mail",
		"event": "account.verification",
		"to":    email,
		"token": token,
	})
	return nil
}
