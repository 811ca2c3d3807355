package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/sells-group/lead-intake/internal/model"
	"github.com/sells-group/lead-intake/internal/pipeline"
)

var servePort int

// webhookSecretHeader carries the shared secret for push deliveries.
const webhookSecretHeader = "X-Webhook-Secret"

// serveHandler holds the state behind the HTTP surface. Webhook processing
// runs on baseCtx, not the request context: the delivery is acknowledged
// before the pipeline touches the payload.
type serveHandler struct {
	pipeline *pipeline.Pipeline
	secret   string
	sem      *semaphore.Weighted
	baseCtx  context.Context
}

func newServeHandler(ctx context.Context, p *pipeline.Pipeline, secret string, maxConcurrent int) *serveHandler {
	if maxConcurrent <= 0 {
		maxConcurrent = 16
	}
	return &serveHandler{
		pipeline: p,
		secret:   secret,
		sem:      semaphore.NewWeighted(int64(maxConcurrent)),
		baseCtx:  ctx,
	}
}

func (h *serveHandler) router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type", webhookSecretHeader},
	}))

	r.Get("/health", h.handleHealth)
	r.Post("/webhook/sharpspring", h.handleWebhook)
	r.Post("/interactions", h.handleInteraction)
	return r
}

func (h *serveHandler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleWebhook validates the delivery, acknowledges it, and only then runs
// the pipeline. Processing failures after the ack are visible in logs only.
func (h *serveHandler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if h.secret != "" && r.Header.Get(webhookSecretHeader) != h.secret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid webhook secret"})
		return
	}

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	leadPayload, ok := body["lead"]
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing lead object"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})

	go func() {
		if err := h.sem.Acquire(h.baseCtx, 1); err != nil {
			return
		}
		defer h.sem.Release(1)

		out, err := h.pipeline.Process(h.baseCtx, leadPayload)
		if err != nil {
			zap.L().Error("webhook lead processing failed", zap.Error(err))
			return
		}
		zap.L().Info("webhook lead processed",
			zap.String("lead_id", out.Lead.ID),
			zap.Bool("created", out.Created),
			zap.Int("score", out.Score),
		)
	}()
}

func (h *serveHandler) handleInteraction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Identifier string `json:"identifier"`
		Kind       string `json:"kind"`
		Type       string `json:"type"`
		Content    string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Identifier == "" || req.Type == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "identifier and type are required"})
		return
	}
	kind := pipeline.IdentifierKind(req.Kind)
	switch kind {
	case pipeline.KindAuto, pipeline.KindEmail, pipeline.KindExternalID:
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown identifier kind"})
		return
	}

	out, err := h.pipeline.LogInteraction(r.Context(), req.Identifier, kind,
		model.InteractionType(req.Type), req.Content)
	if err != nil {
		if strings.Contains(err.Error(), "no lead matches") {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "lead not found"})
			return
		}
		zap.L().Error("interaction logging failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"lead_id":        out.Lead.ID,
		"previous_score": out.PreviousScore,
		"score":          out.Score,
		"crossed":        out.Crossed,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook and interaction server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		handler := newServeHandler(ctx, env.Pipeline, cfg.Server.WebhookSecret, cfg.Server.MaxConcurrent)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: handler.router(),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
