package repository

import (
	"context"
	"database/sql"
	"fmt"

	"sendhorn/internal/models"

	"github.com/lib/pq"
)

type recipientRepository struct {
	db *sql.DB
}

// NewRecipientRepository creates a new recipient repository
func NewRecipientRepository(db *sql.DB) RecipientRepository {
	return &recipientRepository{db: db}
}

const recipientColumns = `id, phone, first_name, last_name, active, marketing_opt_in, created_at`

// GetByID retrieves a recipient by ID
func (r *recipientRepository) GetByID(ctx context.Context, id int) (*models.Recipient, error) {
	query := `SELECT ` + recipientColumns + ` FROM recipients WHERE id = $1`

	recipient, err := scanRecipient(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("recipient not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recipient: %w", err)
	}

	return recipient, nil
}

// GetActiveByIDs retrieves active recipients matching the given IDs
func (r *recipientRepository) GetActiveByIDs(ctx context.Context, ids []int) ([]*models.Recipient, error) {
	if len(ids) == 0 {
		return []*models.Recipient{}, nil
	}

	query := `
		SELECT ` + recipientColumns + `
		FROM recipients
		WHERE id = ANY($1) AND active = TRUE
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to get recipients: %w", err)
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

// SetMarketingOptInByPhone records a provider-reported preference change
func (r *recipientRepository) SetMarketingOptInByPhone(ctx context.Context, phone string, optIn bool) error {
	query := `
		UPDATE recipients
		SET marketing_opt_in = $2
		WHERE phone = $1
	`

	_, err := r.db.ExecContext(ctx, query, phone, optIn)
	if err != nil {
		return fmt.Errorf("failed to update marketing opt-in: %w", err)
	}

	return nil
}

func scanRecipient(row scanner) (*models.Recipient, error) {
	recipient := &models.Recipient{}
	err := row.Scan(
		&recipient.ID,
		&recipient.Phone,
		&recipient.FirstName,
		&recipient.LastName,
		&recipient.Active,
		&recipient.MarketingOptIn,
		&recipient.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return recipient, nil
}
