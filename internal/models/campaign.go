package models

import (
	"fmt"
	"time"
)

// CampaignStatus represents valid campaign statuses
type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusPending   CampaignStatus = "pending"
	CampaignStatusSending   CampaignStatus = "sending"
	CampaignStatusCompleted CampaignStatus = "completed"
	CampaignStatusFailed    CampaignStatus = "failed"
	CampaignStatusCancelled CampaignStatus = "cancelled"
)

// Campaign represents a batch send targeting many recipients with one template
type Campaign struct {
	ID               int                 `json:"id" db:"id"`
	CampaignRef      string              `json:"campaign_ref" db:"campaign_ref"`
	Name             string              `json:"name" db:"name"`
	TemplateName     string              `json:"template_name" db:"template_name"`
	TemplateLanguage string              `json:"template_language" db:"template_language"`
	RecipientListID  *int                `json:"recipient_list_id,omitempty" db:"recipient_list_id"`
	CreatedBy        string              `json:"created_by" db:"created_by"`
	Status           CampaignStatus      `json:"status" db:"status"`
	Total            int                 `json:"total" db:"total"`
	SentCount        int                 `json:"sent_count" db:"sent_count"`
	FailedCount      int                 `json:"failed_count" db:"failed_count"`
	PendingCount     int                 `json:"pending_count" db:"pending_count"`
	Recipients       []RecipientSnapshot `json:"recipients" db:"recipients"`
	ScheduledAt      *time.Time          `json:"scheduled_at,omitempty" db:"scheduled_at"`
	StartedAt        *time.Time          `json:"started_at,omitempty" db:"started_at"`
	CompletedAt      *time.Time          `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt        time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at" db:"updated_at"`
}

// RecipientSnapshot is the denormalized per-recipient status copy embedded in
// the campaign record. It is a read-optimized projection of the message log and
// is only ever rewritten by the reconciler, never mutated on its own.
type RecipientSnapshot struct {
	RecipientID       int           `json:"recipient_id"`
	Phone             string        `json:"phone"`
	Name              string        `json:"name"`
	Status            MessageStatus `json:"status"`
	ProviderMessageID *string       `json:"provider_message_id,omitempty"`
	StatusAt          *time.Time    `json:"status_at,omitempty"`
	ErrorMessage      *string       `json:"error_message,omitempty"`
}

// CampaignAggregates holds the counters recomputed from the message log.
type CampaignAggregates struct {
	Total        int `json:"total"`
	SentOrBetter int `json:"sent_or_better"`
	Failed       int `json:"failed"`
	Pending      int `json:"pending"`
}

// Settled reports whether every seeded message reached a terminal state.
func (a CampaignAggregates) Settled() bool {
	return a.Total > 0 && a.Pending == 0
}

// Validate checks if the campaign fields are valid
func (c *Campaign) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("campaign name is required")
	}
	if c.TemplateName == "" {
		return fmt.Errorf("template name is required")
	}
	if c.TemplateLanguage == "" {
		return fmt.Errorf("template language is required")
	}
	return nil
}

// CanStart checks if the campaign is in a startable state
func (c *Campaign) CanStart() bool {
	return c.Status == CampaignStatusDraft || c.Status == CampaignStatusPending
}

// IsTerminal reports whether the campaign state machine can no longer advance.
func (c *Campaign) IsTerminal() bool {
	return c.Status == CampaignStatusCompleted ||
		c.Status == CampaignStatusFailed ||
		c.Status == CampaignStatusCancelled
}
