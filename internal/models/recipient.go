package models

import "time"

// Recipient represents a message recipient in the system
type Recipient struct {
	ID             int       `json:"id" db:"id"`
	Phone          string    `json:"phone" db:"phone"`
	FirstName      *string   `json:"first_name,omitempty" db:"first_name"`
	LastName       *string   `json:"last_name,omitempty" db:"last_name"`
	Active         bool      `json:"active" db:"active"`
	MarketingOptIn bool      `json:"marketing_opt_in" db:"marketing_opt_in"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// FullName returns the recipient's full name
func (r *Recipient) FullName() string {
	var firstName, lastName string

	if r.FirstName != nil {
		firstName = *r.FirstName
	}
	if r.LastName != nil {
		lastName = *r.LastName
	}

	if firstName != "" && lastName != "" {
		return firstName + " " + lastName
	}
	if firstName != "" {
		return firstName
	}
	if lastName != "" {
		return lastName
	}
	return "Recipient"
}

// RecipientList represents a saved list of recipients
type RecipientList struct {
	ID        int       `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedBy string    `json:"created_by" db:"created_by"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
