package repository

import (
	"context"
	"database/sql"
	"time"

	"sendhorn/internal/models"
)

// CampaignRepository defines campaign data access operations.
//
// MarkSending, SetSeeded and CountForCampaign-style operations that take part
// in the dispatch transaction accept a DB so they run on the caller's *sql.Tx.
type CampaignRepository interface {
	Create(ctx context.Context, campaign *models.Campaign) error
	GetByID(ctx context.Context, id int) (*models.Campaign, error)
	List(ctx context.Context, filters CampaignFilters) ([]*models.Campaign, int, error)

	// MarkSending is the atomic conditional start transition: it flips the
	// campaign from draft/pending to sending in a single statement and
	// reports whether the transition happened. A false result means the
	// campaign was not in a startable state.
	MarkSending(ctx context.Context, q DB, id int, startedAt time.Time) (bool, error)

	// SetSeeded stores the immutable total and the initial recipient
	// snapshot after the message log rows are created.
	SetSeeded(ctx context.Context, q DB, id int, total int, snapshot []models.RecipientSnapshot) error

	// UpdateAggregates overwrites the denormalized counters and snapshot
	// projection. Idempotent by construction.
	UpdateAggregates(ctx context.Context, id int, agg models.CampaignAggregates, snapshot []models.RecipientSnapshot) error

	// MarkCompleted conditionally advances sending -> completed and reports
	// whether this call performed the transition. completed_at is only
	// written by the call that wins the transition.
	MarkCompleted(ctx context.Context, id int, completedAt time.Time) (bool, error)

	// UpdateStatus applies an administrative transition (failed/cancelled).
	UpdateStatus(ctx context.Context, id int, status models.CampaignStatus) error

	// AddRecipients stores an explicit direct-selection recipient set.
	AddRecipients(ctx context.Context, campaignID int, recipientIDs []int) error

	// GetRecipientIDs returns the explicit direct-selection set, empty when
	// the campaign targets a saved list instead.
	GetRecipientIDs(ctx context.Context, campaignID int) ([]int, error)
}

// CampaignFilters defines filters for listing campaigns
type CampaignFilters struct {
	Page     int
	PageSize int
	Status   *models.CampaignStatus
}

// MessageLogRepository defines message log data access operations
type MessageLogRepository interface {
	CreateBatch(ctx context.Context, q DB, logs []*models.MessageLog) error
	GetByID(ctx context.Context, id int) (*models.MessageLog, error)
	GetByCampaignID(ctx context.Context, campaignID int) ([]*models.MessageLog, error)
	CountByCampaignID(ctx context.Context, q DB, campaignID int) (int, error)

	// MarkSent records a successful provider send: assigns the provider
	// message id and advances queued/pending to sent. A row that already
	// moved past sent keeps its status; sent_at is backfilled if unset.
	MarkSent(ctx context.Context, id int, providerMessageID string, sentAt time.Time) error

	// MarkFailed records a send failure for one recipient.
	MarkFailed(ctx context.Context, id int, errorMessage string, failedAt time.Time) error

	// ApplyStatusEvent merges a webhook status event into the row keyed by
	// the event's provider message id, under a row lock so concurrent events
	// for the same message serialize. Returns (nil, nil) when no row matches
	// the provider message id: unknown ids are nothing to update, not an
	// error. A non-nil result is the row after the merge, whether or not
	// the event changed anything.
	ApplyStatusEvent(ctx context.Context, event *models.StatusEvent) (*models.MessageLog, error)

	// Aggregates recomputes the campaign counters from the log.
	Aggregates(ctx context.Context, campaignID int) (models.CampaignAggregates, error)
}

// RecipientRepository defines recipient data access operations
type RecipientRepository interface {
	GetByID(ctx context.Context, id int) (*models.Recipient, error)
	GetActiveByIDs(ctx context.Context, ids []int) ([]*models.Recipient, error)
	SetMarketingOptInByPhone(ctx context.Context, phone string, optIn bool) error
}

// RecipientListRepository defines saved recipient list access
type RecipientListRepository interface {
	GetByID(ctx context.Context, id int) (*models.RecipientList, error)
	GetActiveMembers(ctx context.Context, listID int) ([]*models.Recipient, error)
}

// TemplateRepository defines template data access operations
type TemplateRepository interface {
	Create(ctx context.Context, template *models.Template) error
	GetByNameAndLanguage(ctx context.Context, name, language string) (*models.Template, error)
	UpdateStatus(ctx context.Context, name, language string, status models.TemplateStatus) error
}

// DB is a wrapper around *sql.DB to allow passing in a transaction
type DB interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}
