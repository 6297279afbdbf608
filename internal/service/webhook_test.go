package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sendhorn/internal/dedup"
	"sendhorn/internal/models"
	"sendhorn/internal/provider"
)

func newTestWebhookReceiver(t *testing.T) (*WebhookReceiver, *MockMessageLogRepository, *MockTemplateRepository, *MockRecipientRepository) {
	t.Helper()

	campaignRepo := NewMockCampaignRepository()
	messageLogRepo := NewMockMessageLogRepository()
	templateRepo := NewMockTemplateRepository()
	recipientRepo := NewMockRecipientRepository()

	reconciler := NewCompletionReconciler(campaignRepo, messageLogRepo, zerolog.Nop())

	w := NewWebhookReceiver(
		messageLogRepo,
		templateRepo,
		recipientRepo,
		reconciler,
		dedup.New(nil, 0, zerolog.Nop()),
		zerolog.Nop(),
	)

	return w, messageLogRepo, templateRepo, recipientRepo
}

func statusPayload(statuses ...provider.Status) *provider.WebhookPayload {
	return &provider.WebhookPayload{
		Object: "whatsapp_business_account",
		Entry: []provider.Entry{{
			ID: "123456",
			Changes: []provider.Change{{
				Field: provider.FieldMessages,
				Value: provider.ChangeValue{Statuses: statuses},
			}},
		}},
	}
}

func TestProcessPayload_StatusEvent(t *testing.T) {
	w, messageLogRepo, _, _ := newTestWebhookReceiver(t)

	var gotEvent *models.StatusEvent
	messageLogRepo.ApplyStatusEventFunc = func(ctx context.Context, event *models.StatusEvent) (*models.MessageLog, error) {
		gotEvent = event
		return newTestMessageLog(1, 1, models.MessageStatusDelivered), nil
	}

	w.ProcessPayload(context.Background(), statusPayload(provider.Status{
		ID:          "wamid.abc",
		Status:      "delivered",
		Timestamp:   "1756728000",
		RecipientID: "254700000001",
		Conversation: &provider.Conversation{
			ID: "conv-1",
		},
		Pricing: &provider.Pricing{Category: "marketing"},
	}))

	require.NotNil(t, gotEvent)
	assert.Equal(t, "wamid.abc", gotEvent.ProviderMessageID)
	assert.Equal(t, models.MessageStatusDelivered, gotEvent.Status)
	assert.Equal(t, time.Unix(1756728000, 0).UTC(), gotEvent.Timestamp)
	assert.Equal(t, "254700000001", gotEvent.RecipientPhone)
	require.NotNil(t, gotEvent.ConversationID)
	assert.Equal(t, "conv-1", *gotEvent.ConversationID)
	require.NotNil(t, gotEvent.PricingCategory)
	assert.Equal(t, "marketing", *gotEvent.PricingCategory)
}

// Malformed events in a batch are skipped; the rest still apply.
func TestProcessPayload_SkipsMalformedStatus(t *testing.T) {
	w, messageLogRepo, _, _ := newTestWebhookReceiver(t)

	var applied []string
	messageLogRepo.ApplyStatusEventFunc = func(ctx context.Context, event *models.StatusEvent) (*models.MessageLog, error) {
		applied = append(applied, event.ProviderMessageID)
		return newTestMessageLog(1, 1, event.Status), nil
	}

	w.ProcessPayload(context.Background(), statusPayload(
		provider.Status{ID: "", Status: "delivered", Timestamp: "1756728000"},
		provider.Status{ID: "wamid.bad-status", Status: "teleported", Timestamp: "1756728000"},
		provider.Status{ID: "wamid.bad-ts", Status: "delivered", Timestamp: "yesterday"},
		provider.Status{ID: "wamid.good", Status: "sent", Timestamp: "1756728000"},
	))

	assert.Equal(t, []string{"wamid.good"}, applied)
}

// An unknown provider message id is nothing to update, not an error.
func TestHandleStatusEvent_UnknownID(t *testing.T) {
	w, messageLogRepo, _, _ := newTestWebhookReceiver(t)

	messageLogRepo.ApplyStatusEventFunc = func(ctx context.Context, event *models.StatusEvent) (*models.MessageLog, error) {
		return nil, nil
	}

	err := w.HandleStatusEvent(context.Background(), &models.StatusEvent{
		ProviderMessageID: "wamid.unknown",
		Status:            models.MessageStatusDelivered,
		Timestamp:         time.Now(),
	})
	require.NoError(t, err)
}

func TestHandleStatusEvent_StoreError(t *testing.T) {
	w, messageLogRepo, _, _ := newTestWebhookReceiver(t)

	messageLogRepo.ApplyStatusEventFunc = func(ctx context.Context, event *models.StatusEvent) (*models.MessageLog, error) {
		return nil, errors.New("connection refused")
	}

	err := w.HandleStatusEvent(context.Background(), &models.StatusEvent{
		ProviderMessageID: "wamid.abc",
		Status:            models.MessageStatusDelivered,
		Timestamp:         time.Now(),
	})
	require.Error(t, err)
}

// memoryDedupCache is an in-process DedupCache for exercising the dedup path.
type memoryDedupCache struct {
	seen map[string]bool
}

func newMemoryDedupCache() *memoryDedupCache {
	return &memoryDedupCache{seen: make(map[string]bool)}
}

func (m *memoryDedupCache) Seen(ctx context.Context, key string) bool { return m.seen[key] }
func (m *memoryDedupCache) Mark(ctx context.Context, key string)      { m.seen[key] = true }

func newDedupWebhookReceiver(t *testing.T, cache DedupCache) (*WebhookReceiver, *MockMessageLogRepository) {
	t.Helper()

	messageLogRepo := NewMockMessageLogRepository()
	reconciler := NewCompletionReconciler(NewMockCampaignRepository(), messageLogRepo, zerolog.Nop())

	w := NewWebhookReceiver(
		messageLogRepo,
		NewMockTemplateRepository(),
		NewMockRecipientRepository(),
		reconciler,
		cache,
		zerolog.Nop(),
	)
	return w, messageLogRepo
}

// A store failure must leave the event unrecorded so the provider's retry
// still reaches the merge.
func TestHandleStatusEvent_RetryAfterStoreErrorReapplies(t *testing.T) {
	cache := newMemoryDedupCache()
	w, messageLogRepo := newDedupWebhookReceiver(t, cache)

	attempts := 0
	messageLogRepo.ApplyStatusEventFunc = func(ctx context.Context, event *models.StatusEvent) (*models.MessageLog, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("connection refused")
		}
		return newTestMessageLog(1, 1, models.MessageStatusDelivered), nil
	}

	event := &models.StatusEvent{
		ProviderMessageID: "wamid.abc",
		Status:            models.MessageStatusDelivered,
		Timestamp:         time.Now(),
	}

	require.Error(t, w.HandleStatusEvent(context.Background(), event))
	assert.Empty(t, cache.seen)

	require.NoError(t, w.HandleStatusEvent(context.Background(), event))
	assert.Equal(t, 2, attempts)
	assert.True(t, cache.seen["wamid.abc:delivered"])
}

func TestHandleStatusEvent_DuplicateShedAfterApply(t *testing.T) {
	cache := newMemoryDedupCache()
	w, messageLogRepo := newDedupWebhookReceiver(t, cache)

	attempts := 0
	messageLogRepo.ApplyStatusEventFunc = func(ctx context.Context, event *models.StatusEvent) (*models.MessageLog, error) {
		attempts++
		return newTestMessageLog(1, 1, models.MessageStatusDelivered), nil
	}

	event := &models.StatusEvent{
		ProviderMessageID: "wamid.abc",
		Status:            models.MessageStatusDelivered,
		Timestamp:         time.Now(),
	}

	require.NoError(t, w.HandleStatusEvent(context.Background(), event))
	require.NoError(t, w.HandleStatusEvent(context.Background(), event))
	assert.Equal(t, 1, attempts)
}

// Unknown message ids stay unrecorded: the row may appear once the send
// worker commits its provider message id, and the retry must then land.
func TestHandleStatusEvent_UnknownIDNotRecorded(t *testing.T) {
	cache := newMemoryDedupCache()
	w, messageLogRepo := newDedupWebhookReceiver(t, cache)

	messageLogRepo.ApplyStatusEventFunc = func(ctx context.Context, event *models.StatusEvent) (*models.MessageLog, error) {
		return nil, nil
	}

	err := w.HandleStatusEvent(context.Background(), &models.StatusEvent{
		ProviderMessageID: "wamid.early",
		Status:            models.MessageStatusDelivered,
		Timestamp:         time.Now(),
	})
	require.NoError(t, err)
	assert.Empty(t, cache.seen)
}

func TestHandleStatusEvent_FailedCarriesError(t *testing.T) {
	w, messageLogRepo, _, _ := newTestWebhookReceiver(t)

	var gotEvent *models.StatusEvent
	messageLogRepo.ApplyStatusEventFunc = func(ctx context.Context, event *models.StatusEvent) (*models.MessageLog, error) {
		gotEvent = event
		return newTestMessageLog(1, 1, models.MessageStatusFailed), nil
	}

	w.ProcessPayload(context.Background(), statusPayload(provider.Status{
		ID:        "wamid.abc",
		Status:    "failed",
		Timestamp: "1756728000",
		Errors: []provider.ErrorDetail{{
			Code:    131026,
			Title:   "Message undeliverable",
			Message: "Recipient cannot receive this message",
		}},
	}))

	require.NotNil(t, gotEvent)
	require.NotNil(t, gotEvent.ErrorMessage)
	assert.Equal(t, "Recipient cannot receive this message", *gotEvent.ErrorMessage)
}

func TestProcessPayload_TemplateStatusUpdate(t *testing.T) {
	w, _, templateRepo, _ := newTestWebhookReceiver(t)

	var gotName, gotLang string
	var gotStatus models.TemplateStatus
	templateRepo.UpdateStatusFunc = func(ctx context.Context, name, language string, status models.TemplateStatus) error {
		gotName, gotLang, gotStatus = name, language, status
		return nil
	}

	w.ProcessPayload(context.Background(), &provider.WebhookPayload{
		Entry: []provider.Entry{{
			Changes: []provider.Change{{
				Field: provider.FieldTemplateStatusUpdate,
				Value: provider.ChangeValue{
					Event:                   "APPROVED",
					MessageTemplateName:     "promo_september",
					MessageTemplateLanguage: "en",
				},
			}},
		}},
	})

	assert.Equal(t, "promo_september", gotName)
	assert.Equal(t, "en", gotLang)
	assert.Equal(t, models.TemplateStatusApproved, gotStatus)
}

func TestProcessPayload_TemplateStatusUnknownEvent(t *testing.T) {
	w, _, templateRepo, _ := newTestWebhookReceiver(t)

	w.ProcessPayload(context.Background(), &provider.WebhookPayload{
		Entry: []provider.Entry{{
			Changes: []provider.Change{{
				Field: provider.FieldTemplateStatusUpdate,
				Value: provider.ChangeValue{Event: "FLAGGED", MessageTemplateName: "promo_september"},
			}},
		}},
	})

	assert.Equal(t, 0, templateRepo.count("UpdateStatus"))
}

func TestProcessPayload_UserPreferences(t *testing.T) {
	w, _, _, recipientRepo := newTestWebhookReceiver(t)

	changes := map[string]bool{}
	recipientRepo.SetMarketingOptInByPhoneFunc = func(ctx context.Context, phone string, optIn bool) error {
		changes[phone] = optIn
		return nil
	}

	w.ProcessPayload(context.Background(), &provider.WebhookPayload{
		Entry: []provider.Entry{{
			Changes: []provider.Change{{
				Field: provider.FieldUserPreferences,
				Value: provider.ChangeValue{
					UserPreferences: []provider.UserPreference{
						{WaID: "254700000001", Category: "marketing_messages", Value: "stop"},
						{WaID: "254700000002", Category: "marketing_messages", Value: "resume"},
					},
				},
			}},
		}},
	})

	assert.Equal(t, map[string]bool{
		"254700000001": false,
		"254700000002": true,
	}, changes)
}

// Unknown change fields are ignored without touching any store.
func TestProcessPayload_UnknownField(t *testing.T) {
	w, messageLogRepo, templateRepo, recipientRepo := newTestWebhookReceiver(t)

	w.ProcessPayload(context.Background(), &provider.WebhookPayload{
		Entry: []provider.Entry{{
			Changes: []provider.Change{{
				Field: "account_alerts",
				Value: provider.ChangeValue{Event: "something"},
			}},
		}},
	})

	assert.Equal(t, 0, messageLogRepo.count("ApplyStatusEvent"))
	assert.Equal(t, 0, templateRepo.count("UpdateStatus"))
	assert.Equal(t, 0, recipientRepo.count("SetMarketingOptInByPhone"))
}
