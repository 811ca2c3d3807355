// Package notify dispatches new-lead and high-score notifications to the
// configured channels. Channels are fire-and-forget sinks: each send returns
// an opaque delivery token when the channel reports one, and an empty token
// otherwise.
package notify

import (
	"context"

	"github.com/sells-group/lead-intake/internal/model"
)

// Event identifies the kind of notification being sent.
type Event string

const (
	EventNewLead   Event = "new_lead"
	EventHighScore Event = "high_score"
	EventReminder  Event = "reminder"
)

// Notifier sends lead notifications and returns an opaque delivery token
// for audit logging, or an empty string when the channel did not report one.
// An unconfigured channel returns ("", nil).
type Notifier interface {
	SendNewLead(ctx context.Context, lead *model.Lead, score int) (string, error)
	SendHighScore(ctx context.Context, lead *model.Lead, score int) (string, error)
}
