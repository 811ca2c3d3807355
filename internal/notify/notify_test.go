package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-intake/internal/model"
	"github.com/sells-group/lead-intake/internal/textparse"
)

func strPtr(s string) *string { return &s }

func testLead() *model.Lead {
	return &model.Lead{
		ID:         "lead-uuid-1",
		ExternalID: "296",
		Name:       strPtr("Karli Lang"),
		Email:      strPtr("karli@acme.com"),
		Phone:      strPtr("555-0100"),
		Score:      90,
	}
}

func TestChat_SendNewLead_TokenFromResponse(t *testing.T) {
	var got chatMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "ts": "1699999999.123"}) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewChat(ChatConfig{WebhookURL: srv.URL, Channel: "#leads"})
	token, err := c.SendNewLead(context.Background(), testLead(), 90)
	require.NoError(t, err)
	assert.Equal(t, "chat:1699999999.123", token)
	assert.Equal(t, EventNewLead, got.Event)
	assert.Equal(t, "#leads", got.Channel)
	assert.Contains(t, got.Text, "Karli Lang")
	assert.Equal(t, "296", got.Lead["external_id"])
}

func TestChat_SendHighScore_BareOKGivesEmptyToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewChat(ChatConfig{WebhookURL: srv.URL})
	token, err := c.SendHighScore(context.Background(), testLead(), 91)
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestChat_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewChat(ChatConfig{WebhookURL: srv.URL})
	_, err := c.SendNewLead(context.Background(), testLead(), 90)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestChat_Unconfigured(t *testing.T) {
	c := NewChat(ChatConfig{})
	token, err := c.SendNewLead(context.Background(), testLead(), 90)
	require.NoError(t, err)
	assert.Empty(t, token)
}

type stubDrafter struct {
	sections textparse.Sections
	err      error
	calls    int
}

func (d *stubDrafter) DraftOutreach(context.Context, *model.Lead) (textparse.Sections, error) {
	d.calls++
	return d.sections, d.err
}

func TestOutreach_SendsSMSAndEmail(t *testing.T) {
	var sms smsPayload
	var email emailPayload
	smsSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&sms))
	}))
	defer smsSrv.Close()
	emailSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&email))
	}))
	defer emailSrv.Close()

	d := &stubDrafter{sections: textparse.Sections{
		SMS:     "Hi Karli!",
		Subject: "Your quote",
		Body:    "Thanks for reaching out.",
	}}
	o := NewOutreach(OutreachConfig{
		SMSWebhookURL:   smsSrv.URL,
		EmailWebhookURL: emailSrv.URL,
		FromNumber:      "555-0000",
		FromAddress:     "sales@acme.com",
	}, d)

	token, err := o.SendNewLead(context.Background(), testLead(), 90)
	require.NoError(t, err)
	assert.Empty(t, token)
	assert.Equal(t, 1, d.calls)
	assert.Equal(t, "555-0100", sms.To)
	assert.Equal(t, "Hi Karli!", sms.Body)
	assert.Equal(t, "karli@acme.com", email.To)
	assert.Equal(t, "Your quote", email.Subject)
}

func TestOutreach_NoContactInfoSkipsDraft(t *testing.T) {
	d := &stubDrafter{}
	o := NewOutreach(OutreachConfig{SMSWebhookURL: "http://example.com"}, d)

	lead := testLead()
	lead.Phone = nil
	token, err := o.SendNewLead(context.Background(), lead, 90)
	require.NoError(t, err)
	assert.Empty(t, token)
	assert.Zero(t, d.calls)
}

func TestOutreach_HighScoreIsNoop(t *testing.T) {
	d := &stubDrafter{}
	o := NewOutreach(OutreachConfig{SMSWebhookURL: "http://example.com"}, d)

	token, err := o.SendHighScore(context.Background(), testLead(), 95)
	require.NoError(t, err)
	assert.Empty(t, token)
	assert.Zero(t, d.calls)
}

type stubChannel struct {
	token string
	err   error
}

func (s *stubChannel) SendNewLead(context.Context, *model.Lead, int) (string, error) {
	return s.token, s.err
}

func (s *stubChannel) SendHighScore(context.Context, *model.Lead, int) (string, error) {
	return s.token, s.err
}

func TestFanout_FirstTokenWins(t *testing.T) {
	f := NewFanout(
		&stubChannel{token: ""},
		&stubChannel{token: "chat:111"},
		&stubChannel{token: "chat:222"},
	)

	token, err := f.SendNewLead(context.Background(), testLead(), 90)
	require.NoError(t, err)
	assert.Equal(t, "chat:111", token)
}

func TestFanout_PartialFailureStillSucceeds(t *testing.T) {
	f := NewFanout(
		&stubChannel{err: errors.New("down")},
		&stubChannel{token: "chat:333"},
	)

	token, err := f.SendHighScore(context.Background(), testLead(), 95)
	require.NoError(t, err)
	assert.Equal(t, "chat:333", token)
}

func TestFanout_AllFailed(t *testing.T) {
	f := NewFanout(
		&stubChannel{err: errors.New("down")},
		&stubChannel{err: errors.New("also down")},
	)

	_, err := f.SendNewLead(context.Background(), testLead(), 90)
	require.Error(t, err)
}

func TestFanout_NoChannels(t *testing.T) {
	f := NewFanout()

	token, err := f.SendNewLead(context.Background(), testLead(), 90)
	require.NoError(t, err)
	assert.Empty(t, token)
}
