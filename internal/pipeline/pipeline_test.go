package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-intake/internal/model"
	"github.com/sells-group/lead-intake/internal/scorer"
)

// fakeStore is an in-memory Store for pipeline tests.
type fakeStore struct {
	leads        map[string]*model.Lead // keyed by id
	interactions []model.Interaction
	alerts       []model.AlertRecord
	nextID       int

	findErr      error
	createErr    error
	updateErr    error
	createErrFor map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{leads: map[string]*model.Lead{}}
}

func (f *fakeStore) FindByExternalID(_ context.Context, externalID string) (*model.Lead, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	for _, l := range f.leads {
		if l.ExternalID == externalID {
			cp := *l
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) FindByEmail(_ context.Context, email string) (*model.Lead, error) {
	for _, l := range f.leads {
		if l.Email != nil && *l.Email == email {
			cp := *l
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) Create(_ context.Context, fields *model.LeadFields, score int) (*model.Lead, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	if err, ok := f.createErrFor[fields.ExternalID]; ok {
		return nil, err
	}
	f.nextID++
	now := time.Now().UTC()
	lead := &model.Lead{
		ID:            fmt.Sprintf("lead-%d", f.nextID),
		ExternalID:    fields.ExternalID,
		Name:          fields.Name,
		Email:         fields.Email,
		Phone:         fields.Phone,
		Score:         score,
		Status:        fields.Status,
		Company:       fields.Company,
		Tags:          fields.Tags,
		LastContacted: fields.LastContacted,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	f.leads[lead.ID] = lead
	cp := *lead
	return &cp, nil
}

func (f *fakeStore) Update(_ context.Context, id string, fields *model.LeadFields, score int) (*model.Lead, error) {
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	lead, ok := f.leads[id]
	if !ok {
		return nil, errors.New("lead not found")
	}
	lead.Name = fields.Name
	lead.Email = fields.Email
	lead.Phone = fields.Phone
	lead.Score = score
	lead.Status = fields.Status
	lead.Company = fields.Company
	lead.Tags = fields.Tags
	lead.LastContacted = fields.LastContacted
	lead.UpdatedAt = time.Now().UTC()
	cp := *lead
	return &cp, nil
}

func (f *fakeStore) UpdateScore(_ context.Context, id string, score int) error {
	lead, ok := f.leads[id]
	if !ok {
		return errors.New("lead not found")
	}
	lead.Score = score
	return nil
}

func (f *fakeStore) AppendInteraction(_ context.Context, leadID string, typ model.InteractionType, content string, summary *string) (*model.Interaction, error) {
	in := model.Interaction{
		ID:        fmt.Sprintf("int-%d", len(f.interactions)+1),
		LeadID:    leadID,
		Type:      typ,
		Content:   content,
		Summary:   summary,
		CreatedAt: time.Now().UTC(),
	}
	f.interactions = append(f.interactions, in)
	cp := in
	return &cp, nil
}

func (f *fakeStore) AppendAlert(_ context.Context, leadID, token string, scoreAtSend int) (*model.AlertRecord, error) {
	rec := model.AlertRecord{
		ID:            fmt.Sprintf("alert-%d", len(f.alerts)+1),
		LeadID:        leadID,
		DeliveryToken: token,
		ScoreAtSend:   scoreAtSend,
		SentAt:        time.Now().UTC(),
	}
	f.alerts = append(f.alerts, rec)
	cp := rec
	return &cp, nil
}

func (f *fakeStore) ClaimLead(context.Context, string, string, string) error    { return nil }
func (f *fakeStore) EscalateLead(context.Context, string, string, string) error { return nil }
func (f *fakeStore) UpdateStage(context.Context, string, string, string) error {
	return nil
}
func (f *fakeStore) ListIdleLeads(context.Context, time.Time, int) ([]model.Lead, error) {
	return nil, nil
}
func (f *fakeStore) TouchReminder(context.Context, string, time.Time) error { return nil }
func (f *fakeStore) Migrate(context.Context) error                          { return nil }
func (f *fakeStore) Ping(context.Context) error                             { return nil }
func (f *fakeStore) Close() error                                           { return nil }

// fakeNotifier records sends per event.
type fakeNotifier struct {
	newLead   int
	highScore int
	token     string
	err       error
}

func (f *fakeNotifier) SendNewLead(context.Context, *model.Lead, int) (string, error) {
	f.newLead++
	return f.token, f.err
}

func (f *fakeNotifier) SendHighScore(context.Context, *model.Lead, int) (string, error) {
	f.highScore++
	return f.token, f.err
}

func newTestPipeline(st *fakeStore, n *fakeNotifier) *Pipeline {
	return New(st, n, nil, scorer.Default())
}

func karliPayload() map[string]any {
	return map[string]any{
		"id":                "296",
		"firstName":         "Karli",
		"lastName":          "Lang",
		"emailAddress":      "karli.lang@acme.test",
		"phoneNumber":       "555-0100",
		"companyName":       "Acme Pools",
		"leadStatus":        "open",
		"title":             "Owner",
		"time_frame":        "Within 1 Month",
		"leadScoreWeighted": "10",
	}
}

func TestProcess_CreatesNewLead(t *testing.T) {
	st := newFakeStore()
	n := &fakeNotifier{token: "chat:111"}
	p := newTestPipeline(st, n)

	out, err := p.Process(context.Background(), karliPayload())
	require.NoError(t, err)
	assert.True(t, out.Created)
	assert.Equal(t, 0, out.PreviousScore)
	// 5 (open) + 15 (owner) + 15 (email+phone+company) + 25 (timeframe) + 5 (upstream)
	assert.Equal(t, 65, out.Score)
	assert.False(t, out.Crossed)
	assert.Equal(t, 1, n.newLead)
	assert.Equal(t, 0, n.highScore)
	require.Len(t, st.alerts, 1)
	assert.Equal(t, "chat:111", st.alerts[0].DeliveryToken)
}

func TestProcess_DuplicateSubmissionIsIdempotent(t *testing.T) {
	st := newFakeStore()
	n := &fakeNotifier{}
	p := newTestPipeline(st, n)

	first, err := p.Process(context.Background(), karliPayload())
	require.NoError(t, err)
	second, err := p.Process(context.Background(), karliPayload())
	require.NoError(t, err)

	assert.True(t, first.Created)
	assert.False(t, second.Created)
	assert.Equal(t, first.Lead.ID, second.Lead.ID)
	assert.Len(t, st.leads, 1)
	assert.Equal(t, 1, n.newLead)
}

func TestProcess_MergeKeepsProtectedFields(t *testing.T) {
	st := newFakeStore()
	p := newTestPipeline(st, &fakeNotifier{})

	_, err := p.Process(context.Background(), karliPayload())
	require.NoError(t, err)

	// Second sighting drops contact info and the company.
	update := map[string]any{
		"id":         "296",
		"firstName":  "Karli",
		"lastName":   "Lang",
		"leadStatus": "contacted",
	}
	out, err := p.Process(context.Background(), update)
	require.NoError(t, err)
	require.False(t, out.Created)

	stored := st.leads[out.Lead.ID]
	require.NotNil(t, stored.Email)
	assert.Equal(t, "karli.lang@acme.test", *stored.Email)
	require.NotNil(t, stored.Phone)
	assert.Equal(t, "555-0100", *stored.Phone)
	// Company is not protected; the null overwrites.
	assert.Nil(t, stored.Company)
	assert.Equal(t, "contacted", *stored.Status)
}

func TestProcess_NewLeadAboveThresholdGetsBothNotifications(t *testing.T) {
	st := newFakeStore()
	n := &fakeNotifier{token: "chat:222"}
	p := newTestPipeline(st, n)

	payload := karliPayload()
	payload["leadScoreWeighted"] = "60" // +30 carry, total 90, above threshold
	out, err := p.Process(context.Background(), payload)
	require.NoError(t, err)

	assert.True(t, out.Created)
	assert.True(t, out.Crossed)
	assert.Equal(t, 1, n.newLead)
	assert.Equal(t, 1, n.highScore)
	assert.Len(t, st.alerts, 2)
}

func TestProcess_NoCrossingWhenAlreadyAboveThreshold(t *testing.T) {
	st := newFakeStore()
	n := &fakeNotifier{}
	p := newTestPipeline(st, n)

	high := karliPayload()
	high["leadScoreWeighted"] = "80" // 40 carry → score 100
	_, err := p.Process(context.Background(), high)
	require.NoError(t, err)
	require.Equal(t, 1, n.highScore)

	// Re-sighting with a still-high score does not alert again.
	_, err = p.Process(context.Background(), high)
	require.NoError(t, err)
	assert.Equal(t, 1, n.highScore)
}

func TestProcess_NotifierFailureDoesNotFailRun(t *testing.T) {
	st := newFakeStore()
	n := &fakeNotifier{err: errors.New("webhook down")}
	p := newTestPipeline(st, n)

	out, err := p.Process(context.Background(), karliPayload())
	require.NoError(t, err)
	assert.True(t, out.Created)
	assert.False(t, out.Alerted)
	assert.Empty(t, st.alerts)
}

func TestProcess_EmptyTokenRecordsPlaceholder(t *testing.T) {
	st := newFakeStore()
	p := newTestPipeline(st, &fakeNotifier{token: ""})

	_, err := p.Process(context.Background(), karliPayload())
	require.NoError(t, err)
	require.Len(t, st.alerts, 1)
	assert.Equal(t, "unrecorded", st.alerts[0].DeliveryToken)
}

func TestProcess_NameOnlyWrapperPayload(t *testing.T) {
	st := newFakeStore()
	p := newTestPipeline(st, &fakeNotifier{})

	out, err := p.Process(context.Background(), map[string]any{"name": "Karli"})
	require.NoError(t, err)
	assert.True(t, out.Created)
	require.NotNil(t, out.Lead.Name)
	assert.Equal(t, "Karli", *out.Lead.Name)
	assert.Contains(t, out.Lead.ExternalID, "webhook-")
}

func TestSyncBatch_FaultIsolation(t *testing.T) {
	st := newFakeStore()
	p := newTestPipeline(st, &fakeNotifier{})

	good1 := karliPayload()
	bad := karliPayload()
	bad["id"] = "boom"
	good2 := karliPayload()
	good2["id"] = "297"
	st.createErrFor = map[string]error{"boom": errors.New("insert failed")}

	sum := p.SyncBatch(context.Background(), []any{good1, bad, good2})
	assert.Equal(t, 2, sum.Processed)
	assert.Equal(t, 2, sum.Created)
	assert.Equal(t, 1, sum.Errored)
	assert.Len(t, st.leads, 2)
}

func TestSyncBatch_CountsUpdates(t *testing.T) {
	st := newFakeStore()
	p := newTestPipeline(st, &fakeNotifier{})

	_, err := p.Process(context.Background(), karliPayload())
	require.NoError(t, err)

	sum := p.SyncBatch(context.Background(), []any{karliPayload(), karliPayload()})
	assert.Equal(t, 2, sum.Processed)
	assert.Equal(t, 0, sum.Created)
	assert.Equal(t, 2, sum.Updated)
	assert.Equal(t, 0, sum.Errored)
}

func TestLogInteraction_RescoresAndAlertsOnCrossing(t *testing.T) {
	st := newFakeStore()
	n := &fakeNotifier{token: "chat:333"}
	p := newTestPipeline(st, n)

	payload := karliPayload()
	payload["leadScoreWeighted"] = "30" // 15 carry → score 75
	created, err := p.Process(context.Background(), payload)
	require.NoError(t, err)
	require.Equal(t, 75, created.Score)

	out, err := p.LogInteraction(context.Background(), "karli.lang@acme.test",
		KindAuto, model.InteractionCall, "Walked through the install process.")
	require.NoError(t, err)

	assert.Equal(t, 75, out.PreviousScore)
	assert.Equal(t, 85, out.Score) // call +10 crosses the 85 threshold
	assert.True(t, out.Crossed)
	assert.Equal(t, 1, n.highScore)
	require.Len(t, st.interactions, 1)
	assert.Equal(t, model.InteractionCall, st.interactions[0].Type)
	assert.Equal(t, 85, st.leads[out.Lead.ID].Score)
}

func TestLogInteraction_ResolvesByExternalID(t *testing.T) {
	st := newFakeStore()
	p := newTestPipeline(st, &fakeNotifier{})

	_, err := p.Process(context.Background(), karliPayload())
	require.NoError(t, err)

	out, err := p.LogInteraction(context.Background(), "296", KindAuto, model.InteractionNote, "left a note")
	require.NoError(t, err)
	assert.Equal(t, "296", out.Lead.ExternalID)
}

func TestLogInteraction_ExplicitKindOverridesInference(t *testing.T) {
	st := newFakeStore()
	p := newTestPipeline(st, &fakeNotifier{})

	// An external id that looks like an email resolves by the declared kind.
	payload := karliPayload()
	payload["id"] = "lead@legacy-import"
	_, err := p.Process(context.Background(), payload)
	require.NoError(t, err)

	out, err := p.LogInteraction(context.Background(), "lead@legacy-import",
		KindExternalID, model.InteractionNote, "left a note")
	require.NoError(t, err)
	assert.Equal(t, "lead@legacy-import", out.Lead.ExternalID)

	out, err = p.LogInteraction(context.Background(), "karli.lang@acme.test",
		KindEmail, model.InteractionNote, "left another note")
	require.NoError(t, err)
	assert.Equal(t, "lead@legacy-import", out.Lead.ExternalID)

	_, err = p.LogInteraction(context.Background(), "296",
		IdentifierKind("phone"), model.InteractionNote, "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown identifier kind")
}

func TestLogInteraction_UnknownLead(t *testing.T) {
	st := newFakeStore()
	p := newTestPipeline(st, &fakeNotifier{})

	_, err := p.LogInteraction(context.Background(), "nobody@acme.test", KindAuto, model.InteractionCall, "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no lead matches")
}
