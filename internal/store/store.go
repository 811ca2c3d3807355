package store

import (
	"context"
	"time"

	"github.com/sells-group/lead-intake/internal/model"
)

// Store defines the persistence gateway for the lead pipeline. Single-row
// lookups return (nil, nil) when no record matches; that is a
// distinguishable non-error outcome, not a failure.
type Store interface {
	// Leads
	FindByExternalID(ctx context.Context, externalID string) (*model.Lead, error)
	FindByEmail(ctx context.Context, email string) (*model.Lead, error)
	Create(ctx context.Context, fields *model.LeadFields, score int) (*model.Lead, error)
	// Update overwrites every pipeline-owned column with the merged field
	// set (nils become NULL) and refreshes updated_at. CRM workflow columns
	// are left untouched.
	Update(ctx context.Context, id string, fields *model.LeadFields, score int) (*model.Lead, error)
	UpdateScore(ctx context.Context, id string, score int) error

	// Append-only logs
	AppendInteraction(ctx context.Context, leadID string, typ model.InteractionType, content string, summary *string) (*model.Interaction, error)
	AppendAlert(ctx context.Context, leadID, deliveryToken string, scoreAtSend int) (*model.AlertRecord, error)

	// CRM workflow surface
	ClaimLead(ctx context.Context, leadID, owner, ownerName string) error
	EscalateLead(ctx context.Context, leadID, escalatedBy, channel string) error
	UpdateStage(ctx context.Context, leadID, stage, changedBy string) error
	ListIdleLeads(ctx context.Context, idleSince time.Time, limit int) ([]model.Lead, error)
	TouchReminder(ctx context.Context, leadID string, at time.Time) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
