package model

import "time"

// InteractionType tags a logged touchpoint with a lead.
type InteractionType string

const (
	InteractionCall    InteractionType = "call"
	InteractionSMS     InteractionType = "sms"
	InteractionEmail   InteractionType = "email"
	InteractionNote    InteractionType = "note"
	InteractionMeeting InteractionType = "meeting"
	InteractionDemo    InteractionType = "demo"
)

// Interaction is an append-only log entry for one lead. Immutable once
// created.
type Interaction struct {
	ID        string          `json:"id"`
	LeadID    string          `json:"lead_id"`
	Type      InteractionType `json:"type"`
	Content   string          `json:"content"`
	Summary   *string         `json:"summary,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// AlertRecord is an append-only audit entry for a sent notification. The
// pipeline computes threshold crossings from before/after scores, not from
// this log; it exists for audit only.
type AlertRecord struct {
	ID            string    `json:"id"`
	LeadID        string    `json:"lead_id"`
	DeliveryToken string    `json:"delivery_token"`
	ScoreAtSend   int       `json:"score_at_send"`
	SentAt        time.Time `json:"sent_at"`
}

// StageChange records one lead's stage transition for the CRM workflow.
type StageChange struct {
	ID        string    `json:"id"`
	LeadID    string    `json:"lead_id"`
	FromStage *string   `json:"from_stage,omitempty"`
	ToStage   string    `json:"to_stage"`
	ChangedBy string    `json:"changed_by"`
	ChangedAt time.Time `json:"changed_at"`
}
