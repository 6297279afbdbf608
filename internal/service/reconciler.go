package service

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"sendhorn/internal/models"
	"sendhorn/internal/repository"
)

var (
	reconcileRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_reconcile_runs_total",
			Help: "Total reconciliation runs by outcome",
		},
		[]string{"outcome"},
	)
	campaignsCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "campaigns_completed_total",
			Help: "Total campaigns transitioned to completed",
		},
	)
)

// CompletionReconciler recomputes campaign aggregates from the message log
// and advances the campaign state machine to completed once every seeded
// message reached a terminal state.
//
// Its output is overwrite-style and idempotent, so it is safe to trigger
// redundantly and run concurrently: every invocation converges on the same
// aggregate, and the completed transition is a conditional update only one
// caller can win.
type CompletionReconciler struct {
	campaignRepo   repository.CampaignRepository
	messageLogRepo repository.MessageLogRepository
	log            zerolog.Logger
	now            func() time.Time
	asyncTimeout   time.Duration
}

// NewCompletionReconciler creates a new completion reconciler
func NewCompletionReconciler(
	campaignRepo repository.CampaignRepository,
	messageLogRepo repository.MessageLogRepository,
	log zerolog.Logger,
) *CompletionReconciler {
	return &CompletionReconciler{
		campaignRepo:   campaignRepo,
		messageLogRepo: messageLogRepo,
		log:            log,
		now:            time.Now,
		asyncTimeout:   30 * time.Second,
	}
}

// TryCompleteAsync triggers reconciliation in the background. Failures are
// logged only; the campaign stays in its last good state and the next
// webhook event or a manual recheck retries.
func (r *CompletionReconciler) TryCompleteAsync(campaignID int) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.asyncTimeout)
		defer cancel()

		if err := r.TryComplete(ctx, campaignID); err != nil {
			reconcileRuns.WithLabelValues("error").Inc()
			r.log.Error().Err(err).Int("campaign_id", campaignID).Msg("reconciliation failed")
		}
	}()
}

// TryComplete recomputes the campaign's aggregates and snapshot from the
// message log and flips the campaign to completed when nothing is pending.
func (r *CompletionReconciler) TryComplete(ctx context.Context, campaignID int) error {
	campaign, err := r.campaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return fmt.Errorf("failed to load campaign %d: %w", campaignID, err)
	}

	logs, err := r.messageLogRepo.GetByCampaignID(ctx, campaignID)
	if err != nil {
		return fmt.Errorf("failed to load message logs: %w", err)
	}
	if len(logs) == 0 {
		// Not seeded yet, nothing to reconcile
		reconcileRuns.WithLabelValues("empty").Inc()
		return nil
	}

	agg, err := r.messageLogRepo.Aggregates(ctx, campaignID)
	if err != nil {
		return fmt.Errorf("failed to compute aggregates: %w", err)
	}

	snapshot := projectSnapshot(campaign.Recipients, logs)
	if err := r.campaignRepo.UpdateAggregates(ctx, campaignID, agg, snapshot); err != nil {
		return fmt.Errorf("failed to update aggregates: %w", err)
	}

	if agg.Settled() && campaign.Status == models.CampaignStatusSending {
		completed, err := r.campaignRepo.MarkCompleted(ctx, campaignID, r.now().UTC())
		if err != nil {
			return fmt.Errorf("failed to complete campaign: %w", err)
		}
		if completed {
			campaignsCompleted.Inc()
			r.log.Info().
				Int("campaign_id", campaignID).
				Int("sent_or_better", agg.SentOrBetter).
				Int("failed", agg.Failed).
				Msg("campaign completed")
		}
	}

	reconcileRuns.WithLabelValues("ok").Inc()
	return nil
}

// projectSnapshot rebuilds the embedded recipient snapshot from the
// authoritative message log. Names seeded at start time are preserved; every
// status-bearing field comes from the log.
func projectSnapshot(current []models.RecipientSnapshot, logs []*models.MessageLog) []models.RecipientSnapshot {
	names := make(map[int]string, len(current))
	for _, entry := range current {
		names[entry.RecipientID] = entry.Name
	}

	snapshot := make([]models.RecipientSnapshot, 0, len(logs))
	for _, log := range logs {
		snapshot = append(snapshot, models.RecipientSnapshot{
			RecipientID:       log.RecipientID,
			Phone:             log.Phone,
			Name:              names[log.RecipientID],
			Status:            log.Status,
			ProviderMessageID: log.ProviderMessageID,
			StatusAt:          log.StatusTimestamp(),
			ErrorMessage:      log.ErrorMessage,
		})
	}

	return snapshot
}
