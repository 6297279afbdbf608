package models

import "time"

// TemplateStatus is the provider-side approval status of a message template.
// Approval itself happens on the provider platform; this system only consumes
// the current value (seeded locally, updated by webhook template events).
type TemplateStatus string

const (
	TemplateStatusApproved TemplateStatus = "APPROVED"
	TemplateStatusPending  TemplateStatus = "PENDING"
	TemplateStatusRejected TemplateStatus = "REJECTED"
)

// Template represents a provider message template
type Template struct {
	ID        int            `json:"id" db:"id"`
	Name      string         `json:"name" db:"name"`
	Language  string         `json:"language" db:"language"`
	Status    TemplateStatus `json:"status" db:"status"`
	Category  *string        `json:"category,omitempty" db:"category"`
	BodyText  *string        `json:"body_text,omitempty" db:"body_text"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" db:"updated_at"`
}

// IsApproved reports whether the template can be dispatched
func (t *Template) IsApproved() bool {
	return t.Status == TemplateStatusApproved
}
