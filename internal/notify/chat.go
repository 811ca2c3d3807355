package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-intake/internal/model"
)

// ChatConfig configures the chat webhook channel.
type ChatConfig struct {
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url"`
	Channel    string `yaml:"channel" mapstructure:"channel"`
}

// ChatNotifier posts notification messages to a chat webhook. The webhook
// response may carry a message timestamp which becomes the delivery token.
type ChatNotifier struct {
	cfg    ChatConfig
	client *http.Client
}

// NewChat creates a ChatNotifier.
func NewChat(cfg ChatConfig) *ChatNotifier {
	return &ChatNotifier{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type chatMessage struct {
	Event   Event          `json:"event"`
	Channel string         `json:"channel,omitempty"`
	Text    string         `json:"text"`
	Lead    map[string]any `json:"lead"`
}

type chatResponse struct {
	OK bool   `json:"ok"`
	TS string `json:"ts"`
}

func (c *ChatNotifier) SendNewLead(ctx context.Context, lead *model.Lead, score int) (string, error) {
	text := fmt.Sprintf("New lead: %s (score %d)", displayName(lead), score)
	return c.send(ctx, EventNewLead, text, lead, score)
}

func (c *ChatNotifier) SendHighScore(ctx context.Context, lead *model.Lead, score int) (string, error) {
	text := fmt.Sprintf("High score lead: %s reached %d", displayName(lead), score)
	return c.send(ctx, EventHighScore, text, lead, score)
}

// SendReminder nudges the owner of a lead that has gone quiet. Reminders
// are chat-only and not part of the Notifier fan-out.
func (c *ChatNotifier) SendReminder(ctx context.Context, lead *model.Lead) (string, error) {
	owner := "unassigned"
	if lead.OwnerName != nil && *lead.OwnerName != "" {
		owner = *lead.OwnerName
	}
	text := fmt.Sprintf("Reminder: lead %s (%s) has had no activity, last touched %s",
		displayName(lead), owner, lead.UpdatedAt.Format("2006-01-02"))
	return c.send(ctx, EventReminder, text, lead, lead.Score)
}

func (c *ChatNotifier) send(ctx context.Context, event Event, text string, lead *model.Lead, score int) (string, error) {
	if c.cfg.WebhookURL == "" {
		return "", nil
	}

	payload, err := json.Marshal(chatMessage{
		Event:   event,
		Channel: c.cfg.Channel,
		Text:    text,
		Lead:    leadSummary(lead, score),
	})
	if err != nil {
		return "", eris.Wrap(err, "notify: marshal chat message")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return "", eris.Wrap(err, "notify: create chat request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "notify: chat request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return "", eris.Errorf("notify: chat webhook returned status %d", resp.StatusCode)
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil || cr.TS == "" {
		// Token is optional; a webhook that replies with a bare 200 is fine.
		return "", nil
	}
	return "chat:" + cr.TS, nil
}

func displayName(lead *model.Lead) string {
	if lead.Name != nil && *lead.Name != "" {
		return *lead.Name
	}
	return lead.ExternalID
}

func leadSummary(lead *model.Lead, score int) map[string]any {
	out := map[string]any{
		"id":          lead.ID,
		"external_id": lead.ExternalID,
		"score":       score,
	}
	put := func(key string, v *string) {
		if v != nil && *v != "" {
			out[key] = *v
		}
	}
	put("name", lead.Name)
	put("email", lead.Email)
	put("phone", lead.Phone)
	put("company", lead.Company)
	put("status", lead.Status)
	put("source", lead.LeadSource)
	return out
}
