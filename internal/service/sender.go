package service

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"sendhorn/internal/models"
	"sendhorn/internal/provider"
	"sendhorn/internal/queue"
	"sendhorn/internal/repository"
)

var (
	sendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_sends_total",
			Help: "Total provider send attempts by outcome",
		},
		[]string{"outcome"},
	)
)

// Sender is the queue worker that calls the external provider for one
// recipient at a time and records the outcome on the message log.
type Sender struct {
	campaignRepo   repository.CampaignRepository
	messageLogRepo repository.MessageLogRepository
	recipientRepo  repository.RecipientRepository
	provider       provider.Client
	reconciler     *CompletionReconciler
	log            zerolog.Logger
	now            func() time.Time
}

// NewSender creates a new sender
func NewSender(
	campaignRepo repository.CampaignRepository,
	messageLogRepo repository.MessageLogRepository,
	recipientRepo repository.RecipientRepository,
	providerClient provider.Client,
	reconciler *CompletionReconciler,
	log zerolog.Logger,
) *Sender {
	return &Sender{
		campaignRepo:   campaignRepo,
		messageLogRepo: messageLogRepo,
		recipientRepo:  recipientRepo,
		provider:       providerClient,
		reconciler:     reconciler,
		log:            log,
		now:            time.Now,
	}
}

// Send processes one send job.
//
// A send failure is local to the one recipient: it is recorded as a failed
// message and Send returns nil so the job is acked rather than retried
// forever. Only infrastructure failures (store unavailable) return an error,
// which requeues the job under the queue's at-least-once semantics.
func (s *Sender) Send(ctx context.Context, job *queue.SendJob) error {
	log, err := s.messageLogRepo.GetByID(ctx, job.MessageLogID)
	if err != nil {
		return fmt.Errorf("failed to load message log %d: %w", job.MessageLogID, err)
	}

	// Redelivery guard: if a previous attempt already got a provider
	// response, skip the network call so the recipient is not messaged
	// twice. Reconciliation is still re-triggered.
	if log.Status != models.MessageStatusQueued {
		s.log.Debug().
			Int("message_log_id", log.ID).
			Str("status", string(log.Status)).
			Msg("skipping send, message already processed")
		s.reconciler.TryCompleteAsync(log.CampaignID)
		return nil
	}

	campaign, err := s.campaignRepo.GetByID(ctx, log.CampaignID)
	if err != nil {
		return fmt.Errorf("failed to load campaign %d: %w", log.CampaignID, err)
	}

	components := s.buildComponents(ctx, log)

	result, err := s.provider.SendTemplate(ctx, &provider.TemplateSendRequest{
		To:               log.Phone,
		TemplateName:     campaign.TemplateName,
		TemplateLanguage: campaign.TemplateLanguage,
		Components:       components,
	})

	if err != nil {
		sendsTotal.WithLabelValues("failed").Inc()
		s.log.Warn().Err(err).
			Int("campaign_id", log.CampaignID).
			Int("message_log_id", log.ID).
			Msg("provider send failed")

		if updateErr := s.messageLogRepo.MarkFailed(ctx, log.ID, err.Error(), s.now().UTC()); updateErr != nil {
			return fmt.Errorf("failed to record send failure: %w", updateErr)
		}
		s.reconciler.TryCompleteAsync(log.CampaignID)
		return nil
	}

	sendsTotal.WithLabelValues("sent").Inc()

	if err := s.messageLogRepo.MarkSent(ctx, log.ID, result.ProviderMessageID, s.now().UTC()); err != nil {
		return fmt.Errorf("failed to record send success: %w", err)
	}

	s.log.Info().
		Int("campaign_id", log.CampaignID).
		Int("message_log_id", log.ID).
		Str("provider_message_id", result.ProviderMessageID).
		Msg("message sent")

	s.reconciler.TryCompleteAsync(log.CampaignID)
	return nil
}

// buildComponents assembles per-recipient template parameters. The recipient
// name personalizes the body when available; a missing recipient row only
// loses the personalization, never the send.
func (s *Sender) buildComponents(ctx context.Context, log *models.MessageLog) []provider.Component {
	body := []string{}
	if recipient, err := s.recipientRepo.GetByID(ctx, log.RecipientID); err == nil {
		body = append(body, recipient.FullName())
	}
	return provider.BuildComponents("", body, "")
}
