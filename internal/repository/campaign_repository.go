package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"sendhorn/internal/models"

	"github.com/lib/pq"
)

type campaignRepository struct {
	db *sql.DB
}

// NewCampaignRepository creates a new campaign repository
func NewCampaignRepository(db *sql.DB) CampaignRepository {
	return &campaignRepository{db: db}
}

const campaignColumns = `id, campaign_ref, name, template_name, template_language,
		recipient_list_id, created_by, status, total, sent_count, failed_count,
		pending_count, recipients, scheduled_at, started_at, completed_at,
		created_at, updated_at`

// Create creates a new campaign
func (r *campaignRepository) Create(ctx context.Context, campaign *models.Campaign) error {
	snapshot, err := marshalSnapshot(campaign.Recipients)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO campaigns (campaign_ref, name, template_name, template_language,
			recipient_list_id, created_by, status, recipients, scheduled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`

	err = r.db.QueryRowContext(
		ctx,
		query,
		campaign.CampaignRef,
		campaign.Name,
		campaign.TemplateName,
		campaign.TemplateLanguage,
		campaign.RecipientListID,
		campaign.CreatedBy,
		campaign.Status,
		snapshot,
		campaign.ScheduledAt,
	).Scan(&campaign.ID, &campaign.CreatedAt, &campaign.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}

	return nil
}

// GetByID retrieves a campaign by ID
func (r *campaignRepository) GetByID(ctx context.Context, id int) (*models.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1`

	campaign, err := scanCampaign(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("campaign not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}

	return campaign, nil
}

// List retrieves campaigns with filters and pagination
func (r *campaignRepository) List(ctx context.Context, filters CampaignFilters) ([]*models.Campaign, int, error) {
	queryBuilder := strings.Builder{}
	queryBuilder.WriteString(`SELECT ` + campaignColumns + ` FROM campaigns WHERE 1=1`)

	args := []interface{}{}
	argPos := 1

	if filters.Status != nil {
		queryBuilder.WriteString(fmt.Sprintf(" AND status = $%d", argPos))
		args = append(args, *filters.Status)
		argPos++
	}

	// Order by ID DESC for stable pagination
	queryBuilder.WriteString(" ORDER BY id DESC")

	limit := filters.PageSize
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	offset := (filters.Page - 1) * limit
	if offset < 0 {
		offset = 0
	}

	queryBuilder.WriteString(fmt.Sprintf(" LIMIT $%d OFFSET $%d", argPos, argPos+1))
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list campaigns: %w", err)
	}
	defer rows.Close()

	campaigns := []*models.Campaign{}
	for rows.Next() {
		campaign, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan campaign: %w", err)
		}
		campaigns = append(campaigns, campaign)
	}

	countQuery := "SELECT COUNT(*) FROM campaigns WHERE 1=1"
	countArgs := []interface{}{}

	if filters.Status != nil {
		countQuery += " AND status = $1"
		countArgs = append(countArgs, *filters.Status)
	}

	var totalCount int
	err = r.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&totalCount)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get total count: %w", err)
	}

	return campaigns, totalCount, nil
}

// MarkSending atomically transitions a startable campaign to sending
func (r *campaignRepository) MarkSending(ctx context.Context, q DB, id int, startedAt time.Time) (bool, error) {
	query := `
		UPDATE campaigns
		SET status = 'sending', started_at = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND status IN ('draft', 'pending')
	`

	result, err := q.ExecContext(ctx, query, id, startedAt)
	if err != nil {
		return false, fmt.Errorf("failed to mark campaign sending: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows > 0, nil
}

// SetSeeded stores the seeded total and the initial recipient snapshot
func (r *campaignRepository) SetSeeded(ctx context.Context, q DB, id int, total int, snapshot []models.RecipientSnapshot) error {
	data, err := marshalSnapshot(snapshot)
	if err != nil {
		return err
	}

	query := `
		UPDATE campaigns
		SET total = $2, pending_count = $2, sent_count = 0, failed_count = 0,
			recipients = $3, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`

	result, err := q.ExecContext(ctx, query, id, total, data)
	if err != nil {
		return fmt.Errorf("failed to seed campaign: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("campaign not found")
	}

	return nil
}

// UpdateAggregates overwrites the campaign counters and snapshot projection
func (r *campaignRepository) UpdateAggregates(ctx context.Context, id int, agg models.CampaignAggregates, snapshot []models.RecipientSnapshot) error {
	data, err := marshalSnapshot(snapshot)
	if err != nil {
		return err
	}

	query := `
		UPDATE campaigns
		SET sent_count = $2, failed_count = $3, pending_count = $4,
			recipients = $5, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, agg.SentOrBetter, agg.Failed, agg.Pending, data)
	if err != nil {
		return fmt.Errorf("failed to update campaign aggregates: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("campaign not found")
	}

	return nil
}

// MarkCompleted conditionally advances a sending campaign to completed
func (r *campaignRepository) MarkCompleted(ctx context.Context, id int, completedAt time.Time) (bool, error) {
	query := `
		UPDATE campaigns
		SET status = 'completed', completed_at = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND status = 'sending'
	`

	result, err := r.db.ExecContext(ctx, query, id, completedAt)
	if err != nil {
		return false, fmt.Errorf("failed to mark campaign completed: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows > 0, nil
}

// UpdateStatus applies an administrative campaign status change
func (r *campaignRepository) UpdateStatus(ctx context.Context, id int, status models.CampaignStatus) error {
	query := `
		UPDATE campaigns
		SET status = $1, updated_at = CURRENT_TIMESTAMP
		WHERE id = $2 AND status != 'completed'
	`

	result, err := r.db.ExecContext(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("failed to update campaign status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("campaign not found or already completed")
	}

	return nil
}

// AddRecipients stores an explicit direct-selection recipient set
func (r *campaignRepository) AddRecipients(ctx context.Context, campaignID int, recipientIDs []int) error {
	if len(recipientIDs) == 0 {
		return nil
	}

	query := `
		INSERT INTO campaign_recipients (campaign_id, recipient_id)
		SELECT $1, unnest($2::int[])
		ON CONFLICT DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, query, campaignID, pq.Array(recipientIDs))
	if err != nil {
		return fmt.Errorf("failed to add campaign recipients: %w", err)
	}

	return nil
}

// GetRecipientIDs returns the explicit direct-selection set for a campaign
func (r *campaignRepository) GetRecipientIDs(ctx context.Context, campaignID int) ([]int, error) {
	query := `
		SELECT recipient_id FROM campaign_recipients
		WHERE campaign_id = $1
		ORDER BY recipient_id
	`

	rows, err := r.db.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign recipients: %w", err)
	}
	defer rows.Close()

	ids := []int{}
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan recipient id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, nil
}

// scanner covers both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanCampaign(row scanner) (*models.Campaign, error) {
	campaign := &models.Campaign{}
	var snapshot []byte

	err := row.Scan(
		&campaign.ID,
		&campaign.CampaignRef,
		&campaign.Name,
		&campaign.TemplateName,
		&campaign.TemplateLanguage,
		&campaign.RecipientListID,
		&campaign.CreatedBy,
		&campaign.Status,
		&campaign.Total,
		&campaign.SentCount,
		&campaign.FailedCount,
		&campaign.PendingCount,
		&snapshot,
		&campaign.ScheduledAt,
		&campaign.StartedAt,
		&campaign.CompletedAt,
		&campaign.CreatedAt,
		&campaign.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(snapshot) > 0 {
		if err := json.Unmarshal(snapshot, &campaign.Recipients); err != nil {
			return nil, fmt.Errorf("failed to decode recipient snapshot: %w", err)
		}
	}

	return campaign, nil
}

func marshalSnapshot(snapshot []models.RecipientSnapshot) ([]byte, error) {
	if snapshot == nil {
		snapshot = []models.RecipientSnapshot{}
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to encode recipient snapshot: %w", err)
	}
	return data, nil
}
