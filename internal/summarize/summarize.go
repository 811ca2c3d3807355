// Package summarize wraps the AI client for interaction summaries and
// outreach drafts. Every operation here is best-effort: the pipeline never
// fails because a model call failed.
package summarize

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/lead-intake/internal/model"
	"github.com/sells-group/lead-intake/internal/textparse"
	"github.com/sells-group/lead-intake/pkg/anthropic"
)

const (
	defaultModel     = "claude-haiku-4-5-20251001"
	summaryMaxTokens = 256
	draftMaxTokens   = 1024
)

const summarySystemPrompt = `You summarize sales interaction notes for a CRM.
Reply with a single sentence capturing outcome and next step. No preamble.`

const draftSystemPrompt = `You draft follow-up outreach for a new sales lead.
Reply with exactly three labeled sections:
SMS: <one short text message>
Subject: <email subject line>
Body: <email body>`

// Summarizer produces a one-line summary of an interaction, or nil when
// none could be derived.
type Summarizer interface {
	Summarize(ctx context.Context, typ model.InteractionType, content string) *string
}

// AI implements Summarizer and outreach drafting on top of pkg/anthropic.
type AI struct {
	client anthropic.Client
	model  string
	labels textparse.Labels
}

// NewAI creates an AI summarizer. An empty model selects the default.
func NewAI(client anthropic.Client, modelID string, labels textparse.Labels) *AI {
	if modelID == "" {
		modelID = defaultModel
	}
	return &AI{client: client, model: modelID, labels: labels}
}

func (a *AI) Summarize(ctx context.Context, typ model.InteractionType, content string) *string {
	if a == nil || a.client == nil || strings.TrimSpace(content) == "" {
		return nil
	}

	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     a.model,
		MaxTokens: summaryMaxTokens,
		System:    summarySystemPrompt,
		Messages: []anthropic.Message{
			{Role: "user", Content: fmt.Sprintf("Interaction type: %s\n\n%s", typ, content)},
		},
	})
	if err != nil {
		zap.L().Warn("interaction summary failed", zap.Error(err))
		return nil
	}
	resp.Usage.LogCost(a.model, "summarize")

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return nil
	}
	return &text
}

// DraftOutreach asks the model for SMS and email copy for a lead and parses
// the labeled sections out of the reply.
func (a *AI) DraftOutreach(ctx context.Context, lead *model.Lead) (textparse.Sections, error) {
	if a == nil || a.client == nil {
		return textparse.Sections{}, nil
	}

	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     a.model,
		MaxTokens: draftMaxTokens,
		System:    draftSystemPrompt,
		Messages: []anthropic.Message{
			{Role: "user", Content: leadPrompt(lead)},
		},
	})
	if err != nil {
		return textparse.Sections{}, err
	}
	resp.Usage.LogCost(a.model, "draft_outreach")

	return textparse.Parse(resp.Text(), a.labels), nil
}

func leadPrompt(lead *model.Lead) string {
	var b strings.Builder
	b.WriteString("Draft outreach for this lead:\n")
	writeField := func(label string, v *string) {
		if v != nil && *v != "" {
			fmt.Fprintf(&b, "%s: %s\n", label, *v)
		}
	}
	writeField("Name", lead.Name)
	writeField("Company", lead.Company)
	writeField("Title", lead.Title)
	writeField("Status", lead.Status)
	writeField("Timeframe", lead.Timeframe)
	writeField("Source", lead.LeadSource)
	fmt.Fprintf(&b, "Score: %d\n", lead.Score)
	return b.String()
}
