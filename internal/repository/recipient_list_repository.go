package repository

import (
	"context"
	"database/sql"
	"fmt"

	"sendhorn/internal/models"
)

type recipientListRepository struct {
	db *sql.DB
}

// NewRecipientListRepository creates a new recipient list repository
func NewRecipientListRepository(db *sql.DB) RecipientListRepository {
	return &recipientListRepository{db: db}
}

// GetByID retrieves a recipient list by ID
func (r *recipientListRepository) GetByID(ctx context.Context, id int) (*models.RecipientList, error) {
	query := `
		SELECT id, name, created_by, created_at
		FROM recipient_lists
		WHERE id = $1
	`

	list := &models.RecipientList{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&list.ID,
		&list.Name,
		&list.CreatedBy,
		&list.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("recipient list not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recipient list: %w", err)
	}

	return list, nil
}

// GetActiveMembers retrieves the active recipients in a list
func (r *recipientListRepository) GetActiveMembers(ctx context.Context, listID int) ([]*models.Recipient, error) {
	query := `
		SELECT r.id, r.phone, r.first_name, r.last_name, r.active, r.marketing_opt_in, r.created_at
		FROM recipients r
		JOIN recipient_list_members m ON m.recipient_id = r.id
		WHERE m.list_id = $1 AND r.active = TRUE
		ORDER BY r.id
	`

	rows, err := r.db.QueryContext(ctx, query, listID)
	if err != nil {
		return nil, fmt.Errorf("failed to get list members: %w", err)
	}
	defer rows.Close()

	recipients := []*models.Recipient{}
	for rows.Next() {
		recipient, err := scanRecipient(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recipient: %w", err)
		}
		recipients = append(recipients, recipient)
	}

	return recipients, nil
}
