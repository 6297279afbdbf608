package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sendhorn/internal/models"
	"sendhorn/internal/provider"
	"sendhorn/internal/queue"
)

func newTestSender(t *testing.T) (*Sender, *MockCampaignRepository, *MockMessageLogRepository, *MockProviderClient) {
	t.Helper()

	campaignRepo := NewMockCampaignRepository()
	messageLogRepo := NewMockMessageLogRepository()
	providerClient := NewMockProviderClient()

	reconciler := NewCompletionReconciler(campaignRepo, messageLogRepo, zerolog.Nop())

	s := NewSender(
		campaignRepo,
		messageLogRepo,
		NewMockRecipientRepository(),
		providerClient,
		reconciler,
		zerolog.Nop(),
	)
	s.now = func() time.Time { return time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC) }

	return s, campaignRepo, messageLogRepo, providerClient
}

func TestSend_Success(t *testing.T) {
	s, _, messageLogRepo, providerClient := newTestSender(t)

	var gotID int
	var gotPMID string
	messageLogRepo.MarkSentFunc = func(ctx context.Context, id int, providerMessageID string, sentAt time.Time) error {
		gotID = id
		gotPMID = providerMessageID
		return nil
	}
	providerClient.SendTemplateFunc = func(ctx context.Context, req *provider.TemplateSendRequest) (*provider.TemplateSendResult, error) {
		assert.Equal(t, "254700000001", req.To)
		assert.Equal(t, "promo_september", req.TemplateName)
		return &provider.TemplateSendResult{ProviderMessageID: "wamid.abc123"}, nil
	}

	err := s.Send(context.Background(), &queue.SendJob{MessageLogID: 5, CampaignID: 1, RecipientID: 5})
	require.NoError(t, err)

	assert.Equal(t, 5, gotID)
	assert.Equal(t, "wamid.abc123", gotPMID)
	assert.Equal(t, 0, messageLogRepo.count("MarkFailed"))
}

// A provider rejection is a per-recipient outcome, not a worker failure:
// the row is marked failed and the job is acked (nil return).
func TestSend_ProviderFailure(t *testing.T) {
	s, _, messageLogRepo, providerClient := newTestSender(t)

	providerClient.SendTemplateFunc = func(ctx context.Context, req *provider.TemplateSendRequest) (*provider.TemplateSendResult, error) {
		return nil, errors.New("(#131026) message undeliverable")
	}

	var gotErrMsg string
	messageLogRepo.MarkFailedFunc = func(ctx context.Context, id int, errorMessage string, failedAt time.Time) error {
		gotErrMsg = errorMessage
		return nil
	}

	err := s.Send(context.Background(), &queue.SendJob{MessageLogID: 5, CampaignID: 1, RecipientID: 5})
	require.NoError(t, err)

	assert.Contains(t, gotErrMsg, "131026")
	assert.Equal(t, 0, messageLogRepo.count("MarkSent"))
}

// Redelivered jobs for already-processed rows must not hit the provider again.
func TestSend_SkipsRedelivery(t *testing.T) {
	statuses := []models.MessageStatus{
		models.MessageStatusSent,
		models.MessageStatusDelivered,
		models.MessageStatusRead,
		models.MessageStatusFailed,
	}

	for _, status := range statuses {
		t.Run(string(status), func(t *testing.T) {
			s, _, messageLogRepo, providerClient := newTestSender(t)

			messageLogRepo.GetByIDFunc = func(ctx context.Context, id int) (*models.MessageLog, error) {
				return newTestMessageLog(id, 1, status), nil
			}

			err := s.Send(context.Background(), &queue.SendJob{MessageLogID: 5, CampaignID: 1, RecipientID: 5})
			require.NoError(t, err)

			assert.Empty(t, providerClient.Requests)
			assert.Equal(t, 0, messageLogRepo.count("MarkSent"))
			assert.Equal(t, 0, messageLogRepo.count("MarkFailed"))
		})
	}
}

// Infrastructure failures surface as errors so the queue redelivers.
func TestSend_StoreUnavailableRequeues(t *testing.T) {
	s, _, messageLogRepo, _ := newTestSender(t)

	messageLogRepo.GetByIDFunc = func(ctx context.Context, id int) (*models.MessageLog, error) {
		return nil, errors.New("connection refused")
	}

	err := s.Send(context.Background(), &queue.SendJob{MessageLogID: 5, CampaignID: 1, RecipientID: 5})
	require.Error(t, err)
}

func TestSend_MarkSentFailureRequeues(t *testing.T) {
	s, _, messageLogRepo, _ := newTestSender(t)

	messageLogRepo.MarkSentFunc = func(ctx context.Context, id int, providerMessageID string, sentAt time.Time) error {
		return errors.New("connection refused")
	}

	err := s.Send(context.Background(), &queue.SendJob{MessageLogID: 5, CampaignID: 1, RecipientID: 5})
	require.Error(t, err)
}

// A missing recipient row only loses the personalization, never the send.
func TestSend_MissingRecipientStillSends(t *testing.T) {
	s, _, _, providerClient := newTestSender(t)

	s.recipientRepo = &MockRecipientRepository{
		callCounter: newCallCounter(),
		GetByIDFunc: func(ctx context.Context, id int) (*models.Recipient, error) {
			return nil, errors.New("recipient not found")
		},
	}

	err := s.Send(context.Background(), &queue.SendJob{MessageLogID: 5, CampaignID: 1, RecipientID: 5})
	require.NoError(t, err)

	require.Len(t, providerClient.Requests, 1)
	assert.Empty(t, providerClient.Requests[0].Components)
}
