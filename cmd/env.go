package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-intake/internal/notify"
	"github.com/sells-group/lead-intake/internal/pipeline"
	"github.com/sells-group/lead-intake/internal/scorer"
	"github.com/sells-group/lead-intake/internal/store"
	"github.com/sells-group/lead-intake/internal/summarize"
	anthropicpkg "github.com/sells-group/lead-intake/pkg/anthropic"
	"github.com/sells-group/lead-intake/pkg/sharpspring"
)

// pipelineEnv holds all initialized clients and the pipeline needed by the
// sync/serve/remind commands.
type pipelineEnv struct {
	Store       store.Store
	Pipeline    *pipeline.Pipeline
	Notifier    notify.Notifier
	SharpSpring sharpspring.Client
	ScorerCfg   scorer.Config
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initStore opens the configured store backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		st, err := store.NewSQLite(cfg.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		zap.L().Info("using sqlite store", zap.String("path", cfg.Store.DatabaseURL))
		return st, nil
	case "postgres", "":
		st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
		if err != nil {
			return nil, err
		}
		zap.L().Info("using postgres store")
		return st, nil
	default:
		return nil, eris.Errorf("unknown store driver: %s", cfg.Store.Driver)
	}
}

// initPipeline sets up the store, notification channels, and API clients,
// and builds the Pipeline. Callers should defer env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	scoringCfg, err := scorer.LoadConfig(cfg.Scoring.ConfigPath)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	var summarizer summarize.Summarizer
	var drafter notify.Drafter
	if cfg.Anthropic.Key != "" {
		ai := summarize.NewAI(anthropicpkg.NewClient(cfg.Anthropic.Key), cfg.Anthropic.Model, cfg.Parser)
		summarizer = ai
		drafter = ai
	} else {
		zap.L().Warn("LEADINTAKE_ANTHROPIC_KEY not set, summaries and outreach drafts disabled")
	}

	channels := []notify.Notifier{notify.NewChat(cfg.Chat)}
	if drafter != nil && (cfg.Outreach.SMSWebhookURL != "" || cfg.Outreach.EmailWebhookURL != "") {
		channels = append(channels, notify.NewOutreach(cfg.Outreach, drafter))
	}
	notifier := notify.NewFanout(channels...)

	var ssClient sharpspring.Client
	if cfg.SharpSpring.AccountID != "" {
		ssClient = sharpspring.NewClient(
			cfg.SharpSpring.AccountID,
			cfg.SharpSpring.SecretKey,
			sharpspring.WithBaseURL(cfg.SharpSpring.BaseURL),
			sharpspring.WithRateLimit(cfg.SharpSpring.RPS, cfg.SharpSpring.Burst),
		)
	}

	return &pipelineEnv{
		Store:       st,
		Pipeline:    pipeline.New(st, notifier, summarizer, scoringCfg),
		Notifier:    notifier,
		SharpSpring: ssClient,
		ScorerCfg:   scoringCfg,
	}, nil
}
