package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"sendhorn/internal/models"
	"sendhorn/internal/queue"
	"sendhorn/internal/repository"
)

// Dispatcher validates and starts campaigns: it resolves recipients, seeds the
// message log and campaign snapshot, and hands one send job per recipient to
// the outbound queue.
type Dispatcher struct {
	campaignRepo   repository.CampaignRepository
	messageLogRepo repository.MessageLogRepository
	recipientRepo  repository.RecipientRepository
	listRepo       repository.RecipientListRepository
	templateRepo   repository.TemplateRepository
	jobQueue       queue.JobQueue
	db             *sql.DB
	log            zerolog.Logger
	now            func() time.Time
}

// NewDispatcher creates a new dispatcher
func NewDispatcher(
	campaignRepo repository.CampaignRepository,
	messageLogRepo repository.MessageLogRepository,
	recipientRepo repository.RecipientRepository,
	listRepo repository.RecipientListRepository,
	templateRepo repository.TemplateRepository,
	jobQueue queue.JobQueue,
	db *sql.DB,
	log zerolog.Logger,
) *Dispatcher {
	return &Dispatcher{
		campaignRepo:   campaignRepo,
		messageLogRepo: messageLogRepo,
		recipientRepo:  recipientRepo,
		listRepo:       listRepo,
		templateRepo:   templateRepo,
		jobQueue:       jobQueue,
		db:             db,
		log:            log,
		now:            time.Now,
	}
}

// StartCampaignResult reports the outcome of a successful start
type StartCampaignResult struct {
	CampaignID      int                   `json:"campaign_id"`
	EnqueuedCount   int                   `json:"enqueued_count"`
	TotalRecipients int                   `json:"total_recipients"`
	Status          models.CampaignStatus `json:"status"`
}

// StartCampaign starts a campaign for the given requester.
//
// The whole seeding step runs inside one transaction: the conditional
// sending transition, the message log rows and the snapshot all commit
// together or not at all, so a failed validation never leaves partial state.
// Jobs are published only after the commit, guaranteeing a webhook can never
// race ahead of the rows it needs to update.
func (d *Dispatcher) StartCampaign(ctx context.Context, campaignID int, requester string) (*StartCampaignResult, error) {
	campaign, err := d.campaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, &NotFoundError{Resource: "campaign", ID: campaignID}
	}

	if campaign.CreatedBy != requester {
		return nil, &ValidationError{Message: "campaign is not owned by requester"}
	}

	if campaign.Status == models.CampaignStatusSending || campaign.Status == models.CampaignStatusCompleted {
		return nil, &ConflictError{
			Resource: "campaign",
			Message:  fmt.Sprintf("campaign cannot be started: status is %s", campaign.Status),
		}
	}
	if !campaign.CanStart() {
		return nil, &BusinessLogicError{
			Message: fmt.Sprintf("campaign cannot be started: status is %s", campaign.Status),
		}
	}

	template, err := d.templateRepo.GetByNameAndLanguage(ctx, campaign.TemplateName, campaign.TemplateLanguage)
	if err != nil {
		return nil, &ValidationError{Message: fmt.Sprintf("template %q (%s) not found", campaign.TemplateName, campaign.TemplateLanguage)}
	}
	if !template.IsApproved() {
		return nil, &ValidationError{Message: fmt.Sprintf("template %q is not approved (status %s)", template.Name, template.Status)}
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	// Seeding idempotency guard: existing rows mean a previous start already
	// enqueued this campaign.
	existing, err := d.messageLogRepo.CountByCampaignID(ctx, tx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing message logs: %w", err)
	}
	if existing > 0 {
		return nil, &ConflictError{Resource: "campaign", Message: "campaign already enqueued"}
	}

	// Atomic conditional transition executed before recipient resolution.
	// A concurrent start loses here, not at the check above.
	startedAt := d.now().UTC()
	ok, err := d.campaignRepo.MarkSending(ctx, tx, campaignID, startedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to transition campaign: %w", err)
	}
	if !ok {
		return nil, &ConflictError{Resource: "campaign", Message: "campaign already enqueued"}
	}

	recipients, err := d.resolveRecipients(ctx, campaign)
	if err != nil {
		return nil, err
	}

	logs := make([]*models.MessageLog, 0, len(recipients))
	snapshot := make([]models.RecipientSnapshot, 0, len(recipients))
	for _, recipient := range recipients {
		queuedAt := startedAt
		logs = append(logs, &models.MessageLog{
			CampaignID:  campaign.ID,
			RecipientID: recipient.ID,
			Phone:       recipient.Phone,
			Status:      models.MessageStatusQueued,
			QueuedAt:    &queuedAt,
		})
		snapshot = append(snapshot, models.RecipientSnapshot{
			RecipientID: recipient.ID,
			Phone:       recipient.Phone,
			Name:        recipient.FullName(),
			Status:      models.MessageStatusQueued,
			StatusAt:    &queuedAt,
		})
	}

	if err := d.messageLogRepo.CreateBatch(ctx, tx, logs); err != nil {
		return nil, fmt.Errorf("failed to seed message logs: %w", err)
	}

	if err := d.campaignRepo.SetSeeded(ctx, tx, campaign.ID, len(logs), snapshot); err != nil {
		return nil, fmt.Errorf("failed to seed campaign: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	// Publish jobs outside the transaction. A publish failure is local to
	// one recipient: the queued row stays behind for a manual requeue and
	// the start still succeeds with a partial enqueued count.
	enqueued := 0
	for _, log := range logs {
		err := d.jobQueue.Publish(queue.SendJob{
			MessageLogID: log.ID,
			CampaignID:   log.CampaignID,
			RecipientID:  log.RecipientID,
		})
		if err != nil {
			d.log.Warn().Err(err).
				Int("campaign_id", campaign.ID).
				Int("message_log_id", log.ID).
				Msg("failed to publish send job")
			continue
		}
		enqueued++
	}

	d.log.Info().
		Int("campaign_id", campaign.ID).
		Str("campaign_ref", campaign.CampaignRef).
		Int("enqueued", enqueued).
		Int("total", len(logs)).
		Msg("campaign started")

	return &StartCampaignResult{
		CampaignID:      campaign.ID,
		EnqueuedCount:   enqueued,
		TotalRecipients: len(logs),
		Status:          models.CampaignStatusSending,
	}, nil
}

// resolveRecipients loads the target set from the saved list or the explicit
// direct selection; the two sources are mutually exclusive.
func (d *Dispatcher) resolveRecipients(ctx context.Context, campaign *models.Campaign) ([]*models.Recipient, error) {
	if campaign.RecipientListID != nil {
		if _, err := d.listRepo.GetByID(ctx, *campaign.RecipientListID); err != nil {
			return nil, &ValidationError{Message: fmt.Sprintf("recipient list %d not found", *campaign.RecipientListID)}
		}
		recipients, err := d.listRepo.GetActiveMembers(ctx, *campaign.RecipientListID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve recipient list: %w", err)
		}
		if len(recipients) == 0 {
			return nil, &ValidationError{Message: "recipient list has no active members"}
		}
		return recipients, nil
	}

	ids, err := d.campaignRepo.GetRecipientIDs(ctx, campaign.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load campaign recipient selection: %w", err)
	}
	if len(ids) == 0 {
		return nil, &ValidationError{Message: "campaign has no recipient source"}
	}

	recipients, err := d.recipientRepo.GetActiveByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve recipients: %w", err)
	}
	if len(recipients) == 0 {
		return nil, &ValidationError{Message: "no active recipients resolved"}
	}

	return recipients, nil
}
