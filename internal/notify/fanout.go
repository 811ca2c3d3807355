package notify

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-intake/internal/model"
)

// Fanout dispatches to every configured channel. The first non-empty
// delivery token wins (channels are tried in order, chat first by
// convention). A channel failure is logged and does not stop the others;
// an error is returned only when every channel failed.
type Fanout struct {
	channels []Notifier
}

// NewFanout creates a Fanout over the given channels.
func NewFanout(channels ...Notifier) *Fanout {
	return &Fanout{channels: channels}
}

func (f *Fanout) SendNewLead(ctx context.Context, lead *model.Lead, score int) (string, error) {
	return f.send(ctx, EventNewLead, lead, score)
}

func (f *Fanout) SendHighScore(ctx context.Context, lead *model.Lead, score int) (string, error) {
	return f.send(ctx, EventHighScore, lead, score)
}

func (f *Fanout) send(ctx context.Context, event Event, lead *model.Lead, score int) (string, error) {
	token := ""
	attempted := 0
	failed := 0

	for _, ch := range f.channels {
		var t string
		var err error
		switch event {
		case EventHighScore:
			t, err = ch.SendHighScore(ctx, lead, score)
		default:
			t, err = ch.SendNewLead(ctx, lead, score)
		}
		attempted++
		if err != nil {
			failed++
			zap.L().Error("notification channel failed",
				zap.String("event", string(event)),
				zap.String("lead_id", lead.ID),
				zap.Error(err),
			)
			continue
		}
		if token == "" && t != "" {
			token = t
		}
	}

	if attempted > 0 && failed == attempted {
		return "", eris.Errorf("notify: all %d channels failed for %s", attempted, event)
	}
	return token, nil
}
