package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"sendhorn/internal/models"
)

type messageLogRepository struct {
	db *sql.DB
}

// NewMessageLogRepository creates a new message log repository
func NewMessageLogRepository(db *sql.DB) MessageLogRepository {
	return &messageLogRepository{db: db}
}

const messageLogColumns = `id, campaign_id, recipient_id, phone, provider_message_id,
		status, conversation_id, pricing_category, error_message,
		queued_at, sent_at, delivered_at, read_at, failed_at, created_at, updated_at`

// CreateBatch creates message log rows for a freshly seeded campaign.
// The UNIQUE(campaign_id, recipient_id) constraint makes re-seeding fail
// instead of silently duplicating rows.
func (r *messageLogRepository) CreateBatch(ctx context.Context, q DB, logs []*models.MessageLog) error {
	if len(logs) == 0 {
		return nil
	}

	query := `
		INSERT INTO message_logs (campaign_id, recipient_id, phone, status, queued_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`

	for _, log := range logs {
		err := q.QueryRowContext(
			ctx,
			query,
			log.CampaignID,
			log.RecipientID,
			log.Phone,
			log.Status,
			log.QueuedAt,
		).Scan(&log.ID, &log.CreatedAt, &log.UpdatedAt)

		if err != nil {
			return fmt.Errorf("failed to create message log: %w", err)
		}
	}

	return nil
}

// GetByID retrieves a message log by ID
func (r *messageLogRepository) GetByID(ctx context.Context, id int) (*models.MessageLog, error) {
	query := `SELECT ` + messageLogColumns + ` FROM message_logs WHERE id = $1`

	log, err := scanMessageLog(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("message log not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message log: %w", err)
	}

	return log, nil
}

// GetByCampaignID retrieves all message logs for a campaign
func (r *messageLogRepository) GetByCampaignID(ctx context.Context, campaignID int) ([]*models.MessageLog, error) {
	query := `SELECT ` + messageLogColumns + ` FROM message_logs WHERE campaign_id = $1 ORDER BY recipient_id`

	rows, err := r.db.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to get message logs by campaign: %w", err)
	}
	defer rows.Close()

	logs := []*models.MessageLog{}
	for rows.Next() {
		log, err := scanMessageLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message log: %w", err)
		}
		logs = append(logs, log)
	}

	return logs, nil
}

// CountByCampaignID counts message logs for a campaign
func (r *messageLogRepository) CountByCampaignID(ctx context.Context, q DB, campaignID int) (int, error) {
	query := `SELECT COUNT(*) FROM message_logs WHERE campaign_id = $1`

	var count int
	if err := q.QueryRowContext(ctx, query, campaignID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count message logs: %w", err)
	}

	return count, nil
}

// MarkSent records a successful provider send
func (r *messageLogRepository) MarkSent(ctx context.Context, id int, providerMessageID string, sentAt time.Time) error {
	query := `
		UPDATE message_logs
		SET provider_message_id = $2,
			status = CASE WHEN status IN ('queued', 'pending') THEN 'sent' ELSE status END,
			sent_at = COALESCE(sent_at, $3),
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, providerMessageID, sentAt)
	if err != nil {
		return fmt.Errorf("failed to mark message sent: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("message log not found")
	}

	return nil
}

// MarkFailed records a send failure for one recipient
func (r *messageLogRepository) MarkFailed(ctx context.Context, id int, errorMessage string, failedAt time.Time) error {
	query := `
		UPDATE message_logs
		SET status = CASE WHEN status IN ('delivered', 'read') THEN status ELSE 'failed' END,
			error_message = $2,
			failed_at = COALESCE(failed_at, $3),
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, errorMessage, failedAt)
	if err != nil {
		return fmt.Errorf("failed to mark message failed: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("message log not found")
	}

	return nil
}

// ApplyStatusEvent merges a webhook status event into the matching row.
// The row is locked for the duration of the merge so concurrent events for
// the same provider message id serialize; the merge itself is monotonic, so
// ordering between them does not matter.
func (r *messageLogRepository) ApplyStatusEvent(ctx context.Context, event *models.StatusEvent) (*models.MessageLog, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `SELECT ` + messageLogColumns + ` FROM message_logs WHERE provider_message_id = $1 FOR UPDATE`

	log, err := scanMessageLog(tx.QueryRowContext(ctx, query, event.ProviderMessageID))
	if err == sql.ErrNoRows {
		// Unknown provider message id: nothing to update
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load message log for event: %w", err)
	}

	if !event.Apply(log) {
		// Duplicate or stale event, nothing changed
		return log, nil
	}

	update := `
		UPDATE message_logs
		SET status = $2, conversation_id = $3, pricing_category = $4,
			error_message = $5, sent_at = $6, delivered_at = $7, read_at = $8,
			failed_at = $9, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`

	_, err = tx.ExecContext(
		ctx,
		update,
		log.ID,
		log.Status,
		log.ConversationID,
		log.PricingCategory,
		log.ErrorMessage,
		log.SentAt,
		log.DeliveredAt,
		log.ReadAt,
		log.FailedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to apply status event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit status event: %w", err)
	}

	return log, nil
}

// Aggregates recomputes campaign counters from the message log
func (r *messageLogRepository) Aggregates(ctx context.Context, campaignID int) (models.CampaignAggregates, error) {
	query := `
		SELECT
			COUNT(*) as total,
			COUNT(*) FILTER (WHERE status IN ('sent', 'delivered', 'read')) as sent_or_better,
			COUNT(*) FILTER (WHERE status = 'failed') as failed
		FROM message_logs
		WHERE campaign_id = $1
	`

	agg := models.CampaignAggregates{}
	err := r.db.QueryRowContext(ctx, query, campaignID).Scan(
		&agg.Total,
		&agg.SentOrBetter,
		&agg.Failed,
	)
	if err != nil {
		return agg, fmt.Errorf("failed to get campaign aggregates: %w", err)
	}

	agg.Pending = agg.Total - agg.SentOrBetter - agg.Failed
	return agg, nil
}

func scanMessageLog(row scanner) (*models.MessageLog, error) {
	log := &models.MessageLog{}
	err := row.Scan(
		&log.ID,
		&log.CampaignID,
		&log.RecipientID,
		&log.Phone,
		&log.ProviderMessageID,
		&log.Status,
		&log.ConversationID,
		&log.PricingCategory,
		&log.ErrorMessage,
		&log.QueuedAt,
		&log.SentAt,
		&log.DeliveredAt,
		&log.ReadAt,
		&log.FailedAt,
		&log.CreatedAt,
		&log.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return log, nil
}
