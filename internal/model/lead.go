package model

import (
	"strings"
	"time"
)

// Lead is the canonical record of one prospect. The internal ID is assigned
// by the store on creation; ExternalID is the upstream system's stable
// identifier and the idempotency key for create-vs-update decisions.
type Lead struct {
	ID         string `json:"id"`
	ExternalID string `json:"external_id"`

	Name  *string `json:"name,omitempty"`
	Email *string `json:"email,omitempty"`
	Phone *string `json:"phone,omitempty"`

	Score         int  `json:"score"`
	UpstreamScore *int `json:"upstream_score,omitempty"`

	Status            *string `json:"status,omitempty"`
	Company           *string `json:"company,omitempty"`
	Title             *string `json:"title,omitempty"`
	Website           *string `json:"website,omitempty"`
	LeadSource        *string `json:"lead_source,omitempty"`
	InitialLeadSource *string `json:"initial_lead_source,omitempty"`
	Timeframe         *string `json:"timeframe,omitempty"`
	City              *string `json:"city,omitempty"`
	State             *string `json:"state,omitempty"`
	PostalCode        *string `json:"postal_code,omitempty"`
	IsCustomer        bool    `json:"is_customer"`
	IsQualified       bool    `json:"is_qualified"`
	IsUnsubscribed    bool    `json:"is_unsubscribed"`

	Tags          []string   `json:"tags,omitempty"`
	LastContacted *time.Time `json:"last_contacted,omitempty"`

	// CRM workflow fields, written by the chat-bot surface.
	Owner            *string    `json:"owner,omitempty"`
	OwnerName        *string    `json:"owner_name,omitempty"`
	LastReminder     *time.Time `json:"last_reminder,omitempty"`
	EscalatedBy      *string    `json:"escalated_by,omitempty"`
	EscalatedAt      *time.Time `json:"escalated_at,omitempty"`
	EscalatedChannel *string    `json:"escalated_channel,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasEmail reports whether a non-empty email is present.
func (l *Lead) HasEmail() bool {
	return l.Email != nil && *l.Email != ""
}

// LeadFields is the canonical, fully-optional field set produced by the
// normalizer, independent of upstream payload shape. ExternalID is always
// resolved (synthesized when the payload carries no id).
type LeadFields struct {
	ExternalID string `json:"external_id"`

	Name  *string `json:"name,omitempty"`
	Email *string `json:"email,omitempty"`
	Phone *string `json:"phone,omitempty"`

	UpstreamScore *int `json:"upstream_score,omitempty"`

	Status            *string `json:"status,omitempty"`
	Company           *string `json:"company,omitempty"`
	Title             *string `json:"title,omitempty"`
	Website           *string `json:"website,omitempty"`
	LeadSource        *string `json:"lead_source,omitempty"`
	InitialLeadSource *string `json:"initial_lead_source,omitempty"`
	Timeframe         *string `json:"timeframe,omitempty"`
	City              *string `json:"city,omitempty"`
	State             *string `json:"state,omitempty"`
	PostalCode        *string `json:"postal_code,omitempty"`
	IsCustomer        bool    `json:"is_customer"`
	IsQualified       bool    `json:"is_qualified"`
	IsUnsubscribed    bool    `json:"is_unsubscribed"`

	Tags          []string   `json:"tags,omitempty"`
	LastContacted *time.Time `json:"last_contacted,omitempty"`
}

// HasEmail reports whether a non-empty email is present.
func (f *LeadFields) HasEmail() bool {
	return f.Email != nil && *f.Email != ""
}

// EmailDomain returns the lowercased domain part of the email, or "".
func (f *LeadFields) EmailDomain() string {
	if !f.HasEmail() {
		return ""
	}
	at := strings.LastIndexByte(*f.Email, '@')
	if at < 0 || at == len(*f.Email)-1 {
		return ""
	}
	return strings.ToLower((*f.Email)[at+1:])
}
