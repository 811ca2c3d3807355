package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-intake/internal/db"
	"github.com/sells-group/lead-intake/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need direct
// query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS leads (
	id                  TEXT PRIMARY KEY,
	external_id         TEXT NOT NULL UNIQUE,
	name                TEXT,
	email               TEXT,
	phone               TEXT,
	score               INTEGER NOT NULL DEFAULT 0,
	upstream_score      INTEGER,
	status              TEXT,
	company             TEXT,
	title               TEXT,
	website             TEXT,
	lead_source         TEXT,
	initial_lead_source TEXT,
	timeframe           TEXT,
	city                TEXT,
	state               TEXT,
	postal_code         TEXT,
	is_customer         BOOLEAN NOT NULL DEFAULT false,
	is_qualified        BOOLEAN NOT NULL DEFAULT false,
	is_unsubscribed     BOOLEAN NOT NULL DEFAULT false,
	tags                JSONB,
	last_contacted      TIMESTAMPTZ,
	owner               TEXT,
	owner_name          TEXT,
	last_reminder       TIMESTAMPTZ,
	escalated_by        TEXT,
	escalated_at        TIMESTAMPTZ,
	escalated_channel   TEXT,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_leads_email ON leads(email);
CREATE INDEX IF NOT EXISTS idx_leads_score ON leads(score);
CREATE INDEX IF NOT EXISTS idx_leads_updated_at ON leads(updated_at);

CREATE TABLE IF NOT EXISTS interactions (
	id         TEXT PRIMARY KEY,
	lead_id    TEXT NOT NULL REFERENCES leads(id) ON DELETE CASCADE,
	type       TEXT NOT NULL,
	content    TEXT NOT NULL,
	summary    TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_interactions_lead_id ON interactions(lead_id);

CREATE TABLE IF NOT EXISTS alerts (
	id             TEXT PRIMARY KEY,
	lead_id        TEXT NOT NULL REFERENCES leads(id) ON DELETE CASCADE,
	delivery_token TEXT NOT NULL,
	score_at_send  INTEGER NOT NULL,
	sent_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_alerts_lead_id ON alerts(lead_id);

CREATE TABLE IF NOT EXISTS stage_changes (
	id         TEXT PRIMARY KEY,
	lead_id    TEXT NOT NULL REFERENCES leads(id) ON DELETE CASCADE,
	from_stage TEXT,
	to_stage   TEXT NOT NULL,
	changed_by TEXT NOT NULL,
	changed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_stage_changes_lead_id ON stage_changes(lead_id);
`

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot pipeline paths.
var preparedStatements = map[string]string{
	"find_lead_by_external_id": `SELECT ` + leadColumns + ` FROM leads WHERE external_id = $1`,
	"find_lead_by_email":       `SELECT ` + leadColumns + ` FROM leads WHERE email = $1 ORDER BY updated_at DESC LIMIT 1`,
	"update_lead_score":        `UPDATE leads SET score = $1, updated_at = $2 WHERE id = $3`,
	"insert_interaction":       `INSERT INTO interactions (id, lead_id, type, content, summary, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
	"insert_alert":             `INSERT INTO alerts (id, lead_id, delivery_token, score_at_send, sent_at) VALUES ($1, $2, $3, $4, $5)`,
}

// leadColumns is the SELECT column list matching scanLead's destinations.
const leadColumns = `id, external_id, name, email, phone, score, upstream_score,
	status, company, title, website, lead_source, initial_lead_source,
	timeframe, city, state, postal_code, is_customer, is_qualified,
	is_unsubscribed, tags, last_contacted, owner, owner_name, last_reminder,
	escalated_by, escalated_at, escalated_channel, created_at, updated_at`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) FindByExternalID(ctx context.Context, externalID string) (*model.Lead, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE external_id = $1`,
		externalID,
	)
	lead, err := scanLead(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: find lead by external id %s", externalID)
	}
	return lead, nil
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*model.Lead, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE email = $1 ORDER BY updated_at DESC LIMIT 1`,
		email,
	)
	lead, err := scanLead(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: find lead by email %s", email)
	}
	return lead, nil
}

func (s *PostgresStore) Create(ctx context.Context, fields *model.LeadFields, score int) (*model.Lead, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	tagsJSON, err := marshalTags(fields.Tags)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal tags")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO leads (id, external_id, name, email, phone, score, upstream_score,
		 status, company, title, website, lead_source, initial_lead_source,
		 timeframe, city, state, postal_code, is_customer, is_qualified,
		 is_unsubscribed, tags, last_contacted, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		 $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)`,
		id, fields.ExternalID, fields.Name, fields.Email, fields.Phone, score,
		fields.UpstreamScore, fields.Status, fields.Company, fields.Title,
		fields.Website, fields.LeadSource, fields.InitialLeadSource,
		fields.Timeframe, fields.City, fields.State, fields.PostalCode,
		fields.IsCustomer, fields.IsQualified, fields.IsUnsubscribed,
		tagsJSON, fields.LastContacted, now, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert lead %s", fields.ExternalID)
	}

	return leadFromFields(id, fields, score, now, now), nil
}

func (s *PostgresStore) Update(ctx context.Context, id string, fields *model.LeadFields, score int) (*model.Lead, error) {
	now := time.Now().UTC()

	tagsJSON, err := marshalTags(fields.Tags)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal tags")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET name = $1, email = $2, phone = $3, score = $4,
		 upstream_score = $5, status = $6, company = $7, title = $8,
		 website = $9, lead_source = $10, initial_lead_source = $11,
		 timeframe = $12, city = $13, state = $14, postal_code = $15,
		 is_customer = $16, is_qualified = $17, is_unsubscribed = $18,
		 tags = $19, last_contacted = $20, updated_at = $21
		 WHERE id = $22`,
		fields.Name, fields.Email, fields.Phone, score, fields.UpstreamScore,
		fields.Status, fields.Company, fields.Title, fields.Website,
		fields.LeadSource, fields.InitialLeadSource, fields.Timeframe,
		fields.City, fields.State, fields.PostalCode, fields.IsCustomer,
		fields.IsQualified, fields.IsUnsubscribed, tagsJSON,
		fields.LastContacted, now, id,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: update lead %s", id)
	}
	if tag.RowsAffected() == 0 {
		return nil, eris.Errorf("lead not found: %s", id)
	}

	return leadFromFields(id, fields, score, time.Time{}, now), nil
}

func (s *PostgresStore) UpdateScore(ctx context.Context, id string, score int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET score = $1, updated_at = $2 WHERE id = $3`,
		score, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update score %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("lead not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) AppendInteraction(ctx context.Context, leadID string, typ model.InteractionType, content string, summary *string) (*model.Interaction, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO interactions (id, lead_id, type, content, summary, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		id, leadID, string(typ), content, summary, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert interaction for lead %s", leadID)
	}

	return &model.Interaction{
		ID:        id,
		LeadID:    leadID,
		Type:      typ,
		Content:   content,
		Summary:   summary,
		CreatedAt: now,
	}, nil
}

func (s *PostgresStore) AppendAlert(ctx context.Context, leadID, deliveryToken string, scoreAtSend int) (*model.AlertRecord, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO alerts (id, lead_id, delivery_token, score_at_send, sent_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		id, leadID, deliveryToken, scoreAtSend, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert alert for lead %s", leadID)
	}

	return &model.AlertRecord{
		ID:            id,
		LeadID:        leadID,
		DeliveryToken: deliveryToken,
		ScoreAtSend:   scoreAtSend,
		SentAt:        now,
	}, nil
}

func (s *PostgresStore) ClaimLead(ctx context.Context, leadID, owner, ownerName string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET owner = $1, owner_name = $2, status = 'Claimed', updated_at = $3
		 WHERE id = $4`,
		owner, ownerName, time.Now().UTC(), leadID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: claim lead %s", leadID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("lead not found: %s", leadID)
	}
	return nil
}

func (s *PostgresStore) EscalateLead(ctx context.Context, leadID, escalatedBy, channel string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET status = 'Escalated', escalated_by = $1, escalated_at = $2,
		 escalated_channel = $3, updated_at = $2 WHERE id = $4`,
		escalatedBy, time.Now().UTC(), channel, leadID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: escalate lead %s", leadID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("lead not found: %s", leadID)
	}
	return nil
}

func (s *PostgresStore) UpdateStage(ctx context.Context, leadID, stage, changedBy string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin stage update")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var fromStage *string
	err = tx.QueryRow(ctx, `SELECT status FROM leads WHERE id = $1`, leadID).Scan(&fromStage)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return eris.Errorf("lead not found: %s", leadID)
		}
		return eris.Wrapf(err, "postgres: read stage for lead %s", leadID)
	}

	now := time.Now().UTC()
	_, err = tx.Exec(ctx,
		`UPDATE leads SET status = $1, updated_at = $2 WHERE id = $3`,
		stage, now, leadID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update stage for lead %s", leadID)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO stage_changes (id, lead_id, from_stage, to_stage, changed_by, changed_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.New().String(), leadID, fromStage, stage, changedBy, now,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert stage change for lead %s", leadID)
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit stage update")
}

func (s *PostgresStore) ListIdleLeads(ctx context.Context, idleSince time.Time, limit int) ([]model.Lead, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+leadColumns+` FROM leads
		 WHERE updated_at < $1
		   AND (last_reminder IS NULL OR last_reminder < $1)
		   AND (status IS NULL OR status NOT IN ('Won', 'Lost'))
		 ORDER BY updated_at ASC LIMIT $2`,
		idleSince, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list idle leads")
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan idle lead")
		}
		leads = append(leads, *lead)
	}
	return leads, eris.Wrap(rows.Err(), "postgres: list idle leads iterate")
}

func (s *PostgresStore) TouchReminder(ctx context.Context, leadID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET last_reminder = $1 WHERE id = $2`,
		at.UTC(), leadID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: touch reminder %s", leadID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("lead not found: %s", leadID)
	}
	return nil
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanLead(row scannable) (*model.Lead, error) {
	var l model.Lead
	var tagsJSON []byte

	err := row.Scan(
		&l.ID, &l.ExternalID, &l.Name, &l.Email, &l.Phone, &l.Score,
		&l.UpstreamScore, &l.Status, &l.Company, &l.Title, &l.Website,
		&l.LeadSource, &l.InitialLeadSource, &l.Timeframe, &l.City, &l.State,
		&l.PostalCode, &l.IsCustomer, &l.IsQualified, &l.IsUnsubscribed,
		&tagsJSON, &l.LastContacted, &l.Owner, &l.OwnerName, &l.LastReminder,
		&l.EscalatedBy, &l.EscalatedAt, &l.EscalatedChannel,
		&l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(tagsJSON) > 0 {
		if err := json.Unmarshal(tagsJSON, &l.Tags); err != nil {
			return nil, eris.Wrap(err, "unmarshal tags")
		}
	}
	return &l, nil
}

func marshalTags(tags []string) (any, error) {
	if tags == nil {
		return nil, nil
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func leadFromFields(id string, f *model.LeadFields, score int, createdAt, updatedAt time.Time) *model.Lead {
	return &model.Lead{
		ID:                id,
		ExternalID:        f.ExternalID,
		Name:              f.Name,
		Email:             f.Email,
		Phone:             f.Phone,
		Score:             score,
		UpstreamScore:     f.UpstreamScore,
		Status:            f.Status,
		Company:           f.Company,
		Title:             f.Title,
		Website:           f.Website,
		LeadSource:        f.LeadSource,
		InitialLeadSource: f.InitialLeadSource,
		Timeframe:         f.Timeframe,
		City:              f.City,
		State:             f.State,
		PostalCode:        f.PostalCode,
		IsCustomer:        f.IsCustomer,
		IsQualified:       f.IsQualified,
		IsUnsubscribed:    f.IsUnsubscribed,
		Tags:              f.Tags,
		LastContacted:     f.LastContacted,
		CreatedAt:         createdAt,
		UpdatedAt:         updatedAt,
	}
}
