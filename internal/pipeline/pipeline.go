// Package pipeline composes normalization, scoring, persistence, and
// notification into the lead intake flow.
package pipeline

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-intake/internal/model"
	"github.com/sells-group/lead-intake/internal/normalize"
	"github.com/sells-group/lead-intake/internal/notify"
	"github.com/sells-group/lead-intake/internal/scorer"
	"github.com/sells-group/lead-intake/internal/store"
	"github.com/sells-group/lead-intake/internal/summarize"
)

// placeholderToken is recorded in the alert log when a channel attempted a
// send but reported no delivery token.
const placeholderToken = "unrecorded"

// Pipeline processes incoming lead payloads end to end.
type Pipeline struct {
	store      store.Store
	notifier   notify.Notifier
	summarizer summarize.Summarizer
	cfg        scorer.Config
}

// New creates a Pipeline. summarizer may be nil, in which case interactions
// are logged without derived summaries.
func New(st store.Store, notifier notify.Notifier, summarizer summarize.Summarizer, cfg scorer.Config) *Pipeline {
	return &Pipeline{
		store:      st,
		notifier:   notifier,
		summarizer: summarizer,
		cfg:        cfg,
	}
}

// Outcome describes what one pipeline run did with a payload.
type Outcome struct {
	Lead          *model.Lead
	Created       bool
	PreviousScore int
	Score         int
	Crossed       bool
	Alerted       bool
}

// Process runs one payload through normalize → score → upsert → notify.
// Processing for the same external id is not mutually exclusive; concurrent
// sync and webhook runs for one lead can race.
func (p *Pipeline) Process(ctx context.Context, payload any) (*Outcome, error) {
	fields := normalize.Payload(payload)
	score := scorer.Initial(fields, p.cfg)

	existing, err := p.store.FindByExternalID(ctx, fields.ExternalID)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: lookup lead %s", fields.ExternalID)
	}

	out := &Outcome{Score: score}
	if existing == nil {
		lead, err := p.store.Create(ctx, fields, score)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: create lead %s", fields.ExternalID)
		}
		out.Lead = lead
		out.Created = true
	} else {
		merged := mergeFields(existing, fields)
		lead, err := p.store.Update(ctx, existing.ID, merged, score)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: update lead %s", existing.ID)
		}
		out.Lead = lead
		out.PreviousScore = existing.Score
	}

	out.Crossed = scorer.Crossed(out.PreviousScore, score, p.cfg.Threshold)

	if out.Created {
		out.Alerted = p.dispatch(ctx, notify.EventNewLead, out.Lead, score) || out.Alerted
	}
	if out.Crossed {
		out.Alerted = p.dispatch(ctx, notify.EventHighScore, out.Lead, score) || out.Alerted
	}

	zap.L().Info("lead processed",
		zap.String("lead_id", out.Lead.ID),
		zap.String("external_id", out.Lead.ExternalID),
		zap.Bool("created", out.Created),
		zap.Int("score", score),
		zap.Bool("crossed", out.Crossed),
	)
	return out, nil
}

// dispatch sends one notification and appends the audit record for the
// attempt. Send failures are logged and do not fail the pipeline run.
func (p *Pipeline) dispatch(ctx context.Context, event notify.Event, lead *model.Lead, score int) bool {
	if p.notifier == nil {
		return false
	}

	var token string
	var err error
	switch event {
	case notify.EventHighScore:
		token, err = p.notifier.SendHighScore(ctx, lead, score)
	default:
		token, err = p.notifier.SendNewLead(ctx, lead, score)
	}
	if err != nil {
		zap.L().Error("notification dispatch failed",
			zap.String("event", string(event)),
			zap.String("lead_id", lead.ID),
			zap.Error(err),
		)
		return false
	}

	if token == "" {
		token = placeholderToken
	}
	if _, err := p.store.AppendAlert(ctx, lead.ID, token, score); err != nil {
		zap.L().Error("alert record append failed",
			zap.String("lead_id", lead.ID),
			zap.Error(err),
		)
	}
	return true
}

// Summary aggregates a batch sync run.
type Summary struct {
	Processed int
	Created   int
	Updated   int
	Alerted   int
	Errored   int
}

// SyncBatch processes payloads sequentially. A failure for one payload is
// counted and logged; the rest of the batch still runs.
func (p *Pipeline) SyncBatch(ctx context.Context, payloads []any) Summary {
	var sum Summary
	for i, payload := range payloads {
		out, err := p.Process(ctx, payload)
		if err != nil {
			sum.Errored++
			zap.L().Error("batch item failed",
				zap.Int("index", i),
				zap.Error(err),
			)
			continue
		}
		sum.Processed++
		if out.Created {
			sum.Created++
		} else {
			sum.Updated++
		}
		if out.Alerted {
			sum.Alerted++
		}
	}
	return sum
}

// InteractionOutcome describes the result of logging one interaction.
type InteractionOutcome struct {
	Lead          *model.Lead
	Interaction   *model.Interaction
	PreviousScore int
	Score         int
	Crossed       bool
}

// IdentifierKind tags how an interaction identifier should be resolved.
// KindAuto infers from the identifier shape.
type IdentifierKind string

const (
	KindAuto       IdentifierKind = ""
	KindEmail      IdentifierKind = "email"
	KindExternalID IdentifierKind = "external_id"
)

// LogInteraction records an interaction against an existing lead, rescores
// it incrementally, and runs the same threshold alerting as Process. The
// identifier is an email address or an external id, resolved per kind.
func (p *Pipeline) LogInteraction(ctx context.Context, identifier string, kind IdentifierKind, typ model.InteractionType, content string) (*InteractionOutcome, error) {
	lead, err := p.resolveLead(ctx, identifier, kind)
	if err != nil {
		return nil, err
	}

	var summary *string
	if p.summarizer != nil {
		summary = p.summarizer.Summarize(ctx, typ, content)
	}

	interaction, err := p.store.AppendInteraction(ctx, lead.ID, typ, content, summary)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: append interaction for lead %s", lead.ID)
	}

	summaryText := ""
	if summary != nil {
		summaryText = *summary
	}
	newScore := scorer.Rescore(lead.Score, typ, summaryText, p.cfg)
	if err := p.store.UpdateScore(ctx, lead.ID, newScore); err != nil {
		return nil, eris.Wrapf(err, "pipeline: update score for lead %s", lead.ID)
	}

	out := &InteractionOutcome{
		Lead:          lead,
		Interaction:   interaction,
		PreviousScore: lead.Score,
		Score:         newScore,
		Crossed:       scorer.Crossed(lead.Score, newScore, p.cfg.Threshold),
	}
	if out.Crossed {
		p.dispatch(ctx, notify.EventHighScore, lead, newScore)
	}
	return out, nil
}

func (p *Pipeline) resolveLead(ctx context.Context, identifier string, kind IdentifierKind) (*model.Lead, error) {
	var lead *model.Lead
	var err error
	switch kind {
	case KindEmail:
		lead, err = p.store.FindByEmail(ctx, identifier)
	case KindExternalID:
		lead, err = p.store.FindByExternalID(ctx, identifier)
	case KindAuto:
		if strings.ContainsRune(identifier, '@') {
			lead, err = p.store.FindByEmail(ctx, identifier)
		} else {
			lead, err = p.store.FindByExternalID(ctx, identifier)
		}
	default:
		return nil, eris.Errorf("pipeline: unknown identifier kind %q", kind)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: resolve lead %s", identifier)
	}
	if lead == nil {
		return nil, eris.Errorf("pipeline: no lead matches %s", identifier)
	}
	return lead, nil
}

// mergeFields applies the non-destructive merge policy: contact fields and
// bookkeeping survive a null in the incoming payload, everything else is
// refreshed wholesale (nulls included).
func mergeFields(existing *model.Lead, incoming *model.LeadFields) *model.LeadFields {
	merged := *incoming
	merged.ExternalID = existing.ExternalID

	if merged.Name == nil {
		merged.Name = existing.Name
	}
	if merged.Email == nil {
		merged.Email = existing.Email
	}
	if merged.Phone == nil {
		merged.Phone = existing.Phone
	}
	if merged.Tags == nil {
		merged.Tags = existing.Tags
	}
	if merged.LastContacted == nil {
		merged.LastContacted = existing.LastContacted
	}
	return &merged
}
