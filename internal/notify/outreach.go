package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-intake/internal/model"
	"github.com/sells-group/lead-intake/internal/textparse"
)

// Drafter produces outreach copy for a lead. Implemented by summarize.AI.
type Drafter interface {
	DraftOutreach(ctx context.Context, lead *model.Lead) (textparse.Sections, error)
}

// OutreachConfig configures the SMS and email webhook sinks.
type OutreachConfig struct {
	SMSWebhookURL   string `yaml:"sms_webhook_url" mapstructure:"sms_webhook_url"`
	EmailWebhookURL string `yaml:"email_webhook_url" mapstructure:"email_webhook_url"`
	FromNumber      string `yaml:"from_number" mapstructure:"from_number"`
	FromAddress     string `yaml:"from_address" mapstructure:"from_address"`
}

// OutreachNotifier sends AI-drafted SMS and email copy to delivery webhooks
// when a new lead comes in. High-score events are chat-only, so it reports
// nothing for them.
type OutreachNotifier struct {
	cfg     OutreachConfig
	drafter Drafter
	client  *http.Client
}

// NewOutreach creates an OutreachNotifier.
func NewOutreach(cfg OutreachConfig, drafter Drafter) *OutreachNotifier {
	return &OutreachNotifier{
		cfg:     cfg,
		drafter: drafter,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type smsPayload struct {
	To   string `json:"to"`
	From string `json:"from,omitempty"`
	Body string `json:"body"`
}

type emailPayload struct {
	To      string `json:"to"`
	From    string `json:"from,omitempty"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (o *OutreachNotifier) SendNewLead(ctx context.Context, lead *model.Lead, _ int) (string, error) {
	if o.drafter == nil {
		return "", nil
	}
	wantSMS := o.cfg.SMSWebhookURL != "" && lead.Phone != nil && *lead.Phone != ""
	wantEmail := o.cfg.EmailWebhookURL != "" && lead.HasEmail()
	if !wantSMS && !wantEmail {
		return "", nil
	}

	sections, err := o.drafter.DraftOutreach(ctx, lead)
	if err != nil {
		return "", eris.Wrap(err, "notify: draft outreach")
	}

	if wantSMS && sections.SMS != "" {
		if err := o.post(ctx, o.cfg.SMSWebhookURL, smsPayload{
			To:   *lead.Phone,
			From: o.cfg.FromNumber,
			Body: sections.SMS,
		}); err != nil {
			return "", err
		}
	}
	if wantEmail && sections.Body != "" {
		if err := o.post(ctx, o.cfg.EmailWebhookURL, emailPayload{
			To:      *lead.Email,
			From:    o.cfg.FromAddress,
			Subject: sections.Subject,
			Body:    sections.Body,
		}); err != nil {
			return "", err
		}
	}
	return "", nil
}

func (o *OutreachNotifier) SendHighScore(context.Context, *model.Lead, int) (string, error) {
	return "", nil
}

func (o *OutreachNotifier) post(ctx context.Context, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return eris.Wrap(err, "notify: marshal outreach payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "notify: create outreach request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "notify: outreach request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("notify: outreach webhook returned status %d", resp.StatusCode)
	}
	return nil
}
