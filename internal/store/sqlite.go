package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/lead-intake/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite, for development and
// offline runs without a Postgres instance.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	sdb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := sdb.Exec(pragma); err != nil {
			sdb.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: sdb}, nil
}

const sqliteMigration = `
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
	is_customer         INTEGER NOT NULL DEFAULT 0,
	is_qualified        INTEGER NOT NULL DEFAULT 0,
	is_unsubscribed     INTEGER NOT NULL DEFAULT 0,
	tags                TEXT,
	last_contacted      DATETIME,
	owner               TEXT,
	owner_name          TEXT,
	last_reminder       DATETIME,
	escalated_by        TEXT,
	escalated_at        DATETIME,
	escalated_channel   TEXT,
	created_at          DATETIME NOT NULL,
	updated_at          DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_leads_email ON leads(email);
CREATE INDEX IF NOT EXISTS idx_leads_updated_at ON leads(updated_at);

CREATE TABLE IF NOT EXISTS interactions (
	id         TEXT PRIMARY KEY,
	lead_id    TEXT NOT NULL REFERENCES leads(id) ON DELETE CASCADE,
	type       TEXT NOT NULL,
	content    TEXT NOT NULL,
	summary    TEXT,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_interactions_lead_id ON interactions(lead_id);

CREATE TABLE IF NOT EXISTS alerts (
	id             TEXT PRIMARY KEY,
	lead_id        TEXT NOT NULL REFERENCES leads(id) ON DELETE CASCADE,
	delivery_token TEXT NOT NULL,
	score_at_send  INTEGER NOT NULL,
	sent_at        DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_alerts_lead_id ON alerts(lead_id);

CREATE TABLE IF NOT EXISTS stage_changes (
	id         TEXT PRIMARY KEY,
	lead_id    TEXT NOT NULL REFERENCES leads(id) ON DELETE CASCADE,
	from_stage TEXT,
	to_stage   TEXT NOT NULL,
	changed_by TEXT NOT NULL,
	changed_at DATETIME NOT NULL
);
`

const sqliteLeadColumns = `id, external_id, name, email, phone, score, upstream_score,
	status, company, title, website, lead_source, initial_lead_source,
	timeframe, city, state, postal_code, is_customer, is_qualified,
	is_unsubscribed, tags, last_contacted, owner, owner_name, last_reminder,
	escalated_by, escalated_at, escalated_channel, created_at, updated_at`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) FindByExternalID(ctx context.Context, externalID string) (*model.Lead, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteLeadColumns+` FROM leads WHERE external_id = ?`,
		externalID,
	)
	lead, err := scanSQLiteLead(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: find lead by external id %s", externalID)
	}
	return lead, nil
}

func (s *SQLiteStore) FindByEmail(ctx context.Context, email string) (*model.Lead, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteLeadColumns+` FROM leads WHERE email = ? ORDER BY updated_at DESC LIMIT 1`,
		email,
	)
	lead, err := scanSQLiteLead(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: find lead by email %s", email)
	}
	return lead, nil
}

func (s *SQLiteStore) Create(ctx context.Context, fields *model.LeadFields, score int) (*model.Lead, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	tagsJSON, err := marshalTagsString(fields.Tags)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal tags")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO leads (id, external_id, name, email, phone, score, upstream_score,
		 status, company, title, website, lead_source, initial_lead_source,
		 timeframe, city, state, postal_code, is_customer, is_qualified,
		 is_unsubscribed, tags, last_contacted, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, fields.ExternalID, fields.Name, fields.Email, fields.Phone, score,
		fields.UpstreamScore, fields.Status, fields.Company, fields.Title,
		fields.Website, fields.LeadSource, fields.InitialLeadSource,
		fields.Timeframe, fields.City, fields.State, fields.PostalCode,
		fields.IsCustomer, fields.IsQualified, fields.IsUnsubscribed,
		tagsJSON, fields.LastContacted, now, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert lead %s", fields.ExternalID)
	}

	return leadFromFields(id, fields, score, now, now), nil
}

func (s *SQLiteStore) Update(ctx context.Context, id string, fields *model.LeadFields, score int) (*model.Lead, error) {
	now := time.Now().UTC()

	tagsJSON, err := marshalTagsString(fields.Tags)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal tags")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET name = ?, email = ?, phone = ?, score = ?,
		 upstream_score = ?, status = ?, company = ?, title = ?, website = ?,
		 lead_source = ?, initial_lead_source = ?, timeframe = ?, city = ?,
		 state = ?, postal_code = ?, is_customer = ?, is_qualified = ?,
		 is_unsubscribed = ?, tags = ?, last_contacted = ?, updated_at = ?
		 WHERE id = ?`,
		fields.Name, fields.Email, fields.Phone, score, fields.UpstreamScore,
		fields.Status, fields.Company, fields.Title, fields.Website,
		fields.LeadSource, fields.InitialLeadSource, fields.Timeframe,
		fields.City, fields.State, fields.PostalCode, fields.IsCustomer,
		fields.IsQualified, fields.IsUnsubscribed, tagsJSON,
		fields.LastContacted, now, id,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: update lead %s", id)
	}
	if err := checkRowsAffected(res, "lead", id); err != nil {
		return nil, err
	}

	return leadFromFields(id, fields, score, time.Time{}, now), nil
}

func (s *SQLiteStore) UpdateScore(ctx context.Context, id string, score int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET score = ?, updated_at = ? WHERE id = ?`,
		score, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update score %s", id)
	}
	return checkRowsAffected(res, "lead", id)
}

func (s *SQLiteStore) AppendInteraction(ctx context.Context, leadID string, typ model.InteractionType, content string, summary *string) (*model.Interaction, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO interactions (id, lead_id, type, content, summary, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, leadID, string(typ), content, summary, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert interaction for lead %s", leadID)
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

func (s *SQLiteStore) AppendAlert(ctx context.Context, leadID, deliveryToken string, scoreAtSend int) (*model.AlertRecord, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (id, lead_id, delivery_token, score_at_send, sent_at)
		 VALUES (?, ?, ?, ?, ?)`,
		id, leadID, deliveryToken, scoreAtSend, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert alert for lead %s", leadID)
	}

	return &model.AlertRecord{
		ID:            id,
		LeadID:        leadID,
		DeliveryToken: deliveryToken,
		ScoreAtSend:   scoreAtSend,
		SentAt:        now,
	}, nil
}

func (s *SQLiteStore) ClaimLead(ctx context.Context, leadID, owner, ownerName string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET owner = ?, owner_name = ?, status = 'Claimed', updated_at = ?
		 WHERE id = ?`,
		owner, ownerName, time.Now().UTC(), leadID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: claim lead %s", leadID)
	}
	return checkRowsAffected(res, "lead", leadID)
}

func (s *SQLiteStore) EscalateLead(ctx context.Context, leadID, escalatedBy, channel string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET status = 'Escalated', escalated_by = ?, escalated_at = ?,
		 escalated_channel = ?, updated_at = ? WHERE id = ?`,
		escalatedBy, now, channel, now, leadID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: escalate lead %s", leadID)
	}
	return checkRowsAffected(res, "lead", leadID)
}

func (s *SQLiteStore) UpdateStage(ctx context.Context, leadID, stage, changedBy string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin stage update")
	}
	defer tx.Rollback() //nolint:errcheck

	var fromStage *string
	err = tx.QueryRowContext(ctx, `SELECT status FROM leads WHERE id = ?`, leadID).Scan(&fromStage)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return eris.Errorf("lead not found: %s", leadID)
		}
		return eris.Wrapf(err, "sqlite: read stage for lead %s", leadID)
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`UPDATE leads SET status = ?, updated_at = ? WHERE id = ?`,
		stage, now, leadID,
	); err != nil {
		return eris.Wrapf(err, "sqlite: update stage for lead %s", leadID)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO stage_changes (id, lead_id, from_stage, to_stage, changed_by, changed_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), leadID, fromStage, stage, changedBy, now,
	); err != nil {
		return eris.Wrapf(err, "sqlite: insert stage change for lead %s", leadID)
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit stage update")
}

func (s *SQLiteStore) ListIdleLeads(ctx context.Context, idleSince time.Time, limit int) ([]model.Lead, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteLeadColumns+` FROM leads
		 WHERE updated_at < ?
		   AND (last_reminder IS NULL OR last_reminder < ?)
		   AND (status IS NULL OR status NOT IN ('Won', 'Lost'))
		 ORDER BY updated_at ASC LIMIT ?`,
		idleSince, idleSince, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list idle leads")
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		lead, err := scanSQLiteLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan idle lead")
		}
		leads = append(leads, *lead)
	}
	return leads, eris.Wrap(rows.Err(), "sqlite: list idle leads iterate")
}

func (s *SQLiteStore) TouchReminder(ctx context.Context, leadID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET last_reminder = ? WHERE id = ?`,
		at.UTC(), leadID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: touch reminder %s", leadID)
	}
	return checkRowsAffected(res, "lead", leadID)
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func scanSQLiteLead(row scannable) (*model.Lead, error) {
	var l model.Lead
	var tagsJSON sql.NullString

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
	if tagsJSON.Valid && tagsJSON.String != "" {
		if err := json.Unmarshal([]byte(tagsJSON.String), &l.Tags); err != nil {
			return nil, eris.Wrap(err, "unmarshal tags")
		}
	}
	return &l, nil
}

func marshalTagsString(tags []string) (any, error) {
	if tags == nil {
		return nil, nil
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
