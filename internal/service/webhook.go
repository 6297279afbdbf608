package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"sendhorn/internal/models"
	"sendhorn/internal/provider"
	"sendhorn/internal/repository"
)

var (
	webhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Total webhook events processed by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)
)

// DedupCache sheds recently applied status events. *dedup.Cache implements
// it; both methods must be best-effort no-ops when the backing store is
// unavailable.
type DedupCache interface {
	Seen(ctx context.Context, key string) bool
	Mark(ctx context.Context, key string)
}

// WebhookReceiver ingests provider callbacks and applies per-message status
// events to the message log via the monotonic merge. Every internal failure
// is logged and swallowed; the HTTP layer always acknowledges the delivery
// so the provider does not retry-storm.
type WebhookReceiver struct {
	messageLogRepo repository.MessageLogRepository
	templateRepo   repository.TemplateRepository
	recipientRepo  repository.RecipientRepository
	reconciler     *CompletionReconciler
	dedupCache     DedupCache
	log            zerolog.Logger
}

// NewWebhookReceiver creates a new webhook receiver
func NewWebhookReceiver(
	messageLogRepo repository.MessageLogRepository,
	templateRepo repository.TemplateRepository,
	recipientRepo repository.RecipientRepository,
	reconciler *CompletionReconciler,
	dedupCache DedupCache,
	log zerolog.Logger,
) *WebhookReceiver {
	return &WebhookReceiver{
		messageLogRepo: messageLogRepo,
		templateRepo:   templateRepo,
		recipientRepo:  recipientRepo,
		reconciler:     reconciler,
		dedupCache:     dedupCache,
		log:            log,
	}
}

// ProcessPayload walks the entry[] -> changes[] -> value structure and
// routes every event to its handler. Per-event failures never abort the
// batch or surface to the HTTP response.
func (w *WebhookReceiver) ProcessPayload(ctx context.Context, payload *provider.WebhookPayload) {
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			switch change.Field {
			case provider.FieldMessages:
				w.processMessagesChange(ctx, &change.Value)
			case provider.FieldTemplateStatusUpdate:
				w.processTemplateStatusUpdate(ctx, &change.Value)
			case provider.FieldUserPreferences:
				w.processUserPreferences(ctx, &change.Value)
			case provider.FieldPhoneQualityUpdate:
				webhookEvents.WithLabelValues("phone_quality", "ok").Inc()
				w.log.Info().
					Str("phone", change.Value.DisplayPhoneNumber).
					Str("event", change.Value.Event).
					Str("current_limit", change.Value.CurrentLimit).
					Msg("phone number quality update")
			default:
				webhookEvents.WithLabelValues("unknown", "skipped").Inc()
				w.log.Debug().Str("field", change.Field).Msg("ignoring unknown webhook field")
			}
		}
	}
}

// processMessagesChange handles per-message status events plus the auxiliary
// inbound message/contact arrays.
func (w *WebhookReceiver) processMessagesChange(ctx context.Context, value *provider.ChangeValue) {
	for i := range value.Statuses {
		event, err := parseStatusEvent(&value.Statuses[i])
		if err != nil {
			webhookEvents.WithLabelValues("status", "malformed").Inc()
			w.log.Warn().Err(err).Str("provider_message_id", value.Statuses[i].ID).Msg("skipping malformed status event")
			continue
		}
		if err := w.HandleStatusEvent(ctx, event); err != nil {
			w.log.Error().Err(err).Str("provider_message_id", event.ProviderMessageID).Msg("failed to apply status event")
		}
	}

	// Inbound traffic is outside the campaign state machine; record and move on.
	for _, msg := range value.Messages {
		webhookEvents.WithLabelValues("inbound_message", "ok").Inc()
		w.log.Info().
			Str("from", msg.From).
			Str("provider_message_id", msg.ID).
			Str("type", msg.Type).
			Msg("inbound message received")
	}
	for _, contact := range value.Contacts {
		w.log.Debug().Str("wa_id", contact.WaID).Msg("contact info received")
	}
}

// HandleStatusEvent applies one status event through the monotonic merge and
// triggers reconciliation on success. An unknown provider message id is
// nothing to update, not an error.
func (w *WebhookReceiver) HandleStatusEvent(ctx context.Context, event *models.StatusEvent) error {
	dedupKey := event.ProviderMessageID + ":" + string(event.Status)
	if w.dedupCache.Seen(ctx, dedupKey) {
		webhookEvents.WithLabelValues("status", "duplicate").Inc()
		w.log.Debug().
			Str("provider_message_id", event.ProviderMessageID).
			Str("status", string(event.Status)).
			Msg("dropping duplicate status event")
		return nil
	}

	log, err := w.messageLogRepo.ApplyStatusEvent(ctx, event)
	if err != nil {
		webhookEvents.WithLabelValues("status", "error").Inc()
		return fmt.Errorf("failed to apply status event: %w", err)
	}
	if log == nil {
		webhookEvents.WithLabelValues("status", "unknown_id").Inc()
		w.log.Debug().
			Str("provider_message_id", event.ProviderMessageID).
			Msg("status event for unknown message id, nothing to update")
		return nil
	}

	// Recorded only after the apply committed, so a transient store failure
	// leaves the provider's retry of this event processable. An unknown
	// message id is also left unrecorded: the row may appear once the send
	// worker commits its provider message id.
	w.dedupCache.Mark(ctx, dedupKey)

	webhookEvents.WithLabelValues("status", "ok").Inc()
	w.reconciler.TryCompleteAsync(log.CampaignID)
	return nil
}

// processTemplateStatusUpdate records a provider-side template approval change
func (w *WebhookReceiver) processTemplateStatusUpdate(ctx context.Context, value *provider.ChangeValue) {
	status := models.TemplateStatus(value.Event)
	switch status {
	case models.TemplateStatusApproved, models.TemplateStatusPending, models.TemplateStatusRejected:
	default:
		webhookEvents.WithLabelValues("template_status", "malformed").Inc()
		w.log.Warn().Str("event", value.Event).Msg("skipping unknown template status event")
		return
	}

	err := w.templateRepo.UpdateStatus(ctx, value.MessageTemplateName, value.MessageTemplateLanguage, status)
	if err != nil {
		webhookEvents.WithLabelValues("template_status", "error").Inc()
		w.log.Error().Err(err).
			Str("template", value.MessageTemplateName).
			Msg("failed to record template status update")
		return
	}

	webhookEvents.WithLabelValues("template_status", "ok").Inc()
	w.log.Info().
		Str("template", value.MessageTemplateName).
		Str("language", value.MessageTemplateLanguage).
		Str("status", string(status)).
		Msg("template status updated")
}

// processUserPreferences records opt-in/opt-out changes for recipients
func (w *WebhookReceiver) processUserPreferences(ctx context.Context, value *provider.ChangeValue) {
	for _, pref := range value.UserPreferences {
		optIn := pref.Value == "resume"
		if err := w.recipientRepo.SetMarketingOptInByPhone(ctx, pref.WaID, optIn); err != nil {
			webhookEvents.WithLabelValues("user_preference", "error").Inc()
			w.log.Error().Err(err).Str("wa_id", pref.WaID).Msg("failed to record preference change")
			continue
		}

		webhookEvents.WithLabelValues("user_preference", "ok").Inc()
		w.log.Info().
			Str("wa_id", pref.WaID).
			Bool("marketing_opt_in", optIn).
			Msg("recipient preference updated")
	}
}

// parseStatusEvent converts a raw webhook status into a domain status event
func parseStatusEvent(raw *provider.Status) (*models.StatusEvent, error) {
	if raw.ID == "" {
		return nil, fmt.Errorf("status event missing message id")
	}

	status := models.MessageStatus(raw.Status)
	if !models.IsValidMessageStatus(status) {
		return nil, fmt.Errorf("unknown status value %q", raw.Status)
	}

	epoch, err := strconv.ParseInt(raw.Timestamp, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid status timestamp %q: %w", raw.Timestamp, err)
	}

	event := &models.StatusEvent{
		ProviderMessageID: raw.ID,
		Status:            status,
		Timestamp:         time.Unix(epoch, 0).UTC(),
		RecipientPhone:    raw.RecipientID,
	}

	if raw.Conversation != nil && raw.Conversation.ID != "" {
		event.ConversationID = &raw.Conversation.ID
	}
	if raw.Pricing != nil && raw.Pricing.Category != "" {
		event.PricingCategory = &raw.Pricing.Category
	}
	if len(raw.Errors) > 0 {
		msg := raw.Errors[0].Title
		if raw.Errors[0].Message != "" {
			msg = raw.Errors[0].Message
		}
		event.ErrorMessage = &msg
	}

	return event, nil
}
