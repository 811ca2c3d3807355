package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-intake/internal/pipeline"
	"github.com/sells-group/lead-intake/internal/scorer"
	"github.com/sells-group/lead-intake/internal/store"
)

func newTestHandler(t *testing.T, secret string) (*serveHandler, *store.SQLiteStore) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	p := pipeline.New(st, nil, nil, scorer.Default())
	return newServeHandler(context.Background(), p, secret, 4), st
}

func postJSON(t *testing.T, h http.Handler, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestServe_Health(t *testing.T) {
	h, _ := newTestHandler(t, "")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	h.router().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestServe_Webhook_AcksAndProcesses(t *testing.T) {
	h, st := newTestHandler(t, "")

	rr := postJSON(t, h.router(), "/webhook/sharpspring", map[string]any{
		"lead": map[string]any{
			"id":           "296",
			"firstName":    "Karli",
			"lastName":     "Lang",
			"emailAddress": "karli@acme.test",
		},
	}, nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	// Processing happens after the ack; poll for the result.
	deadline := time.Now().Add(2 * time.Second)
	for {
		lead, err := st.FindByExternalID(context.Background(), "296")
		require.NoError(t, err)
		if lead != nil {
			assert.Equal(t, "Karli Lang", *lead.Name)
			break
		}
		require.True(t, time.Now().Before(deadline), "lead was never processed")
		time.Sleep(10 * time.Millisecond)
	}
}

func TestServe_Webhook_MissingLeadKey(t *testing.T) {
	h, _ := newTestHandler(t, "")

	rr := postJSON(t, h.router(), "/webhook/sharpspring", map[string]any{
		"firstName": "Karli",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestServe_Webhook_BadJSON(t *testing.T) {
	h, _ := newTestHandler(t, "")

	req := httptest.NewRequest(http.MethodPost, "/webhook/sharpspring", bytes.NewReader([]byte("{nope")))
	rr := httptest.NewRecorder()
	h.router().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestServe_Webhook_SecretEnforced(t *testing.T) {
	h, _ := newTestHandler(t, "topsecret")

	body := map[string]any{"lead": map[string]any{"id": "1"}}

	rr := postJSON(t, h.router(), "/webhook/sharpspring", body, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = postJSON(t, h.router(), "/webhook/sharpspring", body, map[string]string{
		webhookSecretHeader: "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = postJSON(t, h.router(), "/webhook/sharpspring", body, map[string]string{
		webhookSecretHeader: "topsecret",
	})
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestServe_Webhook_NameOnlyLead(t *testing.T) {
	h, st := newTestHandler(t, "")

	rr := postJSON(t, h.router(), "/webhook/sharpspring", map[string]any{
		"lead": map[string]any{"name": "Karli"},
	}, nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	deadline := time.Now().Add(2 * time.Second)
	for {
		leads, err := st.ListIdleLeads(context.Background(), time.Now().Add(time.Hour), 10)
		require.NoError(t, err)
		if len(leads) == 1 {
			require.NotNil(t, leads[0].Name)
			assert.Equal(t, "Karli", *leads[0].Name)
			assert.Contains(t, leads[0].ExternalID, "webhook-")
			break
		}
		require.True(t, time.Now().Before(deadline), "lead was never processed")
		time.Sleep(10 * time.Millisecond)
	}
}

func TestServe_Interactions_LogsAndRescores(t *testing.T) {
	h, st := newTestHandler(t, "")

	email := "karli@acme.test"
	_, err := h.pipeline.Process(context.Background(), map[string]any{
		"id":           "296",
		"firstName":    "Karli",
		"emailAddress": email,
	})
	require.NoError(t, err)

	rr := postJSON(t, h.router(), "/interactions", map[string]string{
		"identifier": email,
		"type":       "call",
		"content":    "Discussed install dates.",
	}, nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		LeadID        string `json:"lead_id"`
		PreviousScore int    `json:"previous_score"`
		Score         int    `json:"score"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, resp.PreviousScore+10, resp.Score) // call delta

	lead, err := st.FindByExternalID(context.Background(), "296")
	require.NoError(t, err)
	assert.Equal(t, resp.Score, lead.Score)
}

func TestServe_Interactions_UnknownLead(t *testing.T) {
	h, _ := newTestHandler(t, "")

	rr := postJSON(t, h.router(), "/interactions", map[string]string{
		"identifier": "nobody@acme.test",
		"type":       "call",
		"content":    "x",
	}, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestServe_Interactions_MissingFields(t *testing.T) {
	h, _ := newTestHandler(t, "")

	rr := postJSON(t, h.router(), "/interactions", map[string]string{
		"content": "x",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestServe_Interactions_ExplicitKind(t *testing.T) {
	h, _ := newTestHandler(t, "")

	_, err := h.pipeline.Process(context.Background(), map[string]any{
		"id":           "296",
		"firstName":    "Karli",
		"emailAddress": "karli@acme.test",
	})
	require.NoError(t, err)

	rr := postJSON(t, h.router(), "/interactions", map[string]string{
		"identifier": "296",
		"kind":       "external_id",
		"type":       "note",
		"content":    "checked in",
	}, nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = postJSON(t, h.router(), "/interactions", map[string]string{
		"identifier": "296",
		"kind":       "phone",
		"type":       "note",
		"content":    "x",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
