package service

import (
	"context"
	"sync"
	"time"

	"sendhorn/internal/models"
	"sendhorn/internal/provider"
	"sendhorn/internal/queue"
	"sendhorn/internal/repository"
)

// callCounter tracks method invocations; a mutex keeps it safe for the
// async reconciliation goroutines.
type callCounter struct {
	mu    sync.Mutex
	calls map[string]int
}

func newCallCounter() *callCounter {
	return &callCounter{calls: make(map[string]int)}
}

func (c *callCounter) inc(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[name]++
}

func (c *callCounter) count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[name]
}

// MockCampaignRepository mocks repository.CampaignRepository
type MockCampaignRepository struct {
	CreateFunc           func(ctx context.Context, campaign *models.Campaign) error
	GetByIDFunc          func(ctx context.Context, id int) (*models.Campaign, error)
	ListFunc             func(ctx context.Context, filters repository.CampaignFilters) ([]*models.Campaign, int, error)
	MarkSendingFunc      func(ctx context.Context, q repository.DB, id int, startedAt time.Time) (bool, error)
	SetSeededFunc        func(ctx context.Context, q repository.DB, id int, total int, snapshot []models.RecipientSnapshot) error
	UpdateAggregatesFunc func(ctx context.Context, id int, agg models.CampaignAggregates, snapshot []models.RecipientSnapshot) error
	MarkCompletedFunc    func(ctx context.Context, id int, completedAt time.Time) (bool, error)
	UpdateStatusFunc     func(ctx context.Context, id int, status models.CampaignStatus) error
	AddRecipientsFunc    func(ctx context.Context, campaignID int, recipientIDs []int) error
	GetRecipientIDsFunc  func(ctx context.Context, campaignID int) ([]int, error)

	*callCounter
}

func NewMockCampaignRepository() *MockCampaignRepository {
	return &MockCampaignRepository{callCounter: newCallCounter()}
}

func (m *MockCampaignRepository) Create(ctx context.Context, campaign *models.Campaign) error {
	m.inc("Create")
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, campaign)
	}
	campaign.ID = 1
	campaign.CreatedAt = time.Now()
	campaign.UpdatedAt = time.Now()
	return nil
}

func (m *MockCampaignRepository) GetByID(ctx context.Context, id int) (*models.Campaign, error) {
	m.inc("GetByID")
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return newTestCampaign(id), nil
}

func (m *MockCampaignRepository) List(ctx context.Context, filters repository.CampaignFilters) ([]*models.Campaign, int, error) {
	m.inc("List")
	if m.ListFunc != nil {
		return m.ListFunc(ctx, filters)
	}
	return []*models.Campaign{newTestCampaign(1)}, 1, nil
}

func (m *MockCampaignRepository) MarkSending(ctx context.Context, q repository.DB, id int, startedAt time.Time) (bool, error) {
	m.inc("MarkSending")
	if m.MarkSendingFunc != nil {
		return m.MarkSendingFunc(ctx, q, id, startedAt)
	}
	return true, nil
}

func (m *MockCampaignRepository) SetSeeded(ctx context.Context, q repository.DB, id int, total int, snapshot []models.RecipientSnapshot) error {
	m.inc("SetSeeded")
	if m.SetSeededFunc != nil {
		return m.SetSeededFunc(ctx, q, id, total, snapshot)
	}
	return nil
}

func (m *MockCampaignRepository) UpdateAggregates(ctx context.Context, id int, agg models.CampaignAggregates, snapshot []models.RecipientSnapshot) error {
	m.inc("UpdateAggregates")
	if m.UpdateAggregatesFunc != nil {
		return m.UpdateAggregatesFunc(ctx, id, agg, snapshot)
	}
	return nil
}

func (m *MockCampaignRepository) MarkCompleted(ctx context.Context, id int, completedAt time.Time) (bool, error) {
	m.inc("MarkCompleted")
	if m.MarkCompletedFunc != nil {
		return m.MarkCompletedFunc(ctx, id, completedAt)
	}
	return true, nil
}

func (m *MockCampaignRepository) UpdateStatus(ctx context.Context, id int, status models.CampaignStatus) error {
	m.inc("UpdateStatus")
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, id, status)
	}
	return nil
}

func (m *MockCampaignRepository) AddRecipients(ctx context.Context, campaignID int, recipientIDs []int) error {
	m.inc("AddRecipients")
	if m.AddRecipientsFunc != nil {
		return m.AddRecipientsFunc(ctx, campaignID, recipientIDs)
	}
	return nil
}

func (m *MockCampaignRepository) GetRecipientIDs(ctx context.Context, campaignID int) ([]int, error) {
	m.inc("GetRecipientIDs")
	if m.GetRecipientIDsFunc != nil {
		return m.GetRecipientIDsFunc(ctx, campaignID)
	}
	return []int{1, 2}, nil
}

// MockMessageLogRepository mocks repository.MessageLogRepository
type MockMessageLogRepository struct {
	CreateBatchFunc       func(ctx context.Context, q repository.DB, logs []*models.MessageLog) error
	GetByIDFunc           func(ctx context.Context, id int) (*models.MessageLog, error)
	GetByCampaignIDFunc   func(ctx context.Context, campaignID int) ([]*models.MessageLog, error)
	CountByCampaignIDFunc func(ctx context.Context, q repository.DB, campaignID int) (int, error)
	MarkSentFunc          func(ctx context.Context, id int, providerMessageID string, sentAt time.Time) error
	MarkFailedFunc        func(ctx context.Context, id int, errorMessage string, failedAt time.Time) error
	ApplyStatusEventFunc  func(ctx context.Context, event *models.StatusEvent) (*models.MessageLog, error)
	AggregatesFunc        func(ctx context.Context, campaignID int) (models.CampaignAggregates, error)

	*callCounter
}

func NewMockMessageLogRepository() *MockMessageLogRepository {
	return &MockMessageLogRepository{callCounter: newCallCounter()}
}

func (m *MockMessageLogRepository) CreateBatch(ctx context.Context, q repository.DB, logs []*models.MessageLog) error {
	m.inc("CreateBatch")
	if m.CreateBatchFunc != nil {
		return m.CreateBatchFunc(ctx, q, logs)
	}
	for i, log := range logs {
		log.ID = i + 1
	}
	return nil
}

func (m *MockMessageLogRepository) GetByID(ctx context.Context, id int) (*models.MessageLog, error) {
	m.inc("GetByID")
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return newTestMessageLog(id, 1, models.MessageStatusQueued), nil
}

func (m *MockMessageLogRepository) GetByCampaignID(ctx context.Context, campaignID int) ([]*models.MessageLog, error) {
	m.inc("GetByCampaignID")
	if m.GetByCampaignIDFunc != nil {
		return m.GetByCampaignIDFunc(ctx, campaignID)
	}
	return nil, nil
}

func (m *MockMessageLogRepository) CountByCampaignID(ctx context.Context, q repository.DB, campaignID int) (int, error) {
	m.inc("CountByCampaignID")
	if m.CountByCampaignIDFunc != nil {
		return m.CountByCampaignIDFunc(ctx, q, campaignID)
	}
	return 0, nil
}

func (m *MockMessageLogRepository) MarkSent(ctx context.Context, id int, providerMessageID string, sentAt time.Time) error {
	m.inc("MarkSent")
	if m.MarkSentFunc != nil {
		return m.MarkSentFunc(ctx, id, providerMessageID, sentAt)
	}
	return nil
}

func (m *MockMessageLogRepository) MarkFailed(ctx context.Context, id int, errorMessage string, failedAt time.Time) error {
	m.inc("MarkFailed")
	if m.MarkFailedFunc != nil {
		return m.MarkFailedFunc(ctx, id, errorMessage, failedAt)
	}
	return nil
}

func (m *MockMessageLogRepository) ApplyStatusEvent(ctx context.Context, event *models.StatusEvent) (*models.MessageLog, error) {
	m.inc("ApplyStatusEvent")
	if m.ApplyStatusEventFunc != nil {
		return m.ApplyStatusEventFunc(ctx, event)
	}
	return nil, nil
}

func (m *MockMessageLogRepository) Aggregates(ctx context.Context, campaignID int) (models.CampaignAggregates, error) {
	m.inc("Aggregates")
	if m.AggregatesFunc != nil {
		return m.AggregatesFunc(ctx, campaignID)
	}
	return models.CampaignAggregates{}, nil
}

// MockRecipientRepository mocks repository.RecipientRepository
type MockRecipientRepository struct {
	GetByIDFunc                  func(ctx context.Context, id int) (*models.Recipient, error)
	GetActiveByIDsFunc           func(ctx context.Context, ids []int) ([]*models.Recipient, error)
	SetMarketingOptInByPhoneFunc func(ctx context.Context, phone string, optIn bool) error

	*callCounter
}

func NewMockRecipientRepository() *MockRecipientRepository {
	return &MockRecipientRepository{callCounter: newCallCounter()}
}

func (m *MockRecipientRepository) GetByID(ctx context.Context, id int) (*models.Recipient, error) {
	m.inc("GetByID")
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return newTestRecipient(id), nil
}

func (m *MockRecipientRepository) GetActiveByIDs(ctx context.Context, ids []int) ([]*models.Recipient, error) {
	m.inc("GetActiveByIDs")
	if m.GetActiveByIDsFunc != nil {
		return m.GetActiveByIDsFunc(ctx, ids)
	}
	recipients := make([]*models.Recipient, len(ids))
	for i, id := range ids {
		recipients[i] = newTestRecipient(id)
	}
	return recipients, nil
}

func (m *MockRecipientRepository) SetMarketingOptInByPhone(ctx context.Context, phone string, optIn bool) error {
	m.inc("SetMarketingOptInByPhone")
	if m.SetMarketingOptInByPhoneFunc != nil {
		return m.SetMarketingOptInByPhoneFunc(ctx, phone, optIn)
	}
	return nil
}

// MockRecipientListRepository mocks repository.RecipientListRepository
type MockRecipientListRepository struct {
	GetByIDFunc          func(ctx context.Context, id int) (*models.RecipientList, error)
	GetActiveMembersFunc func(ctx context.Context, listID int) ([]*models.Recipient, error)

	*callCounter
}

func NewMockRecipientListRepository() *MockRecipientListRepository {
	return &MockRecipientListRepository{callCounter: newCallCounter()}
}

func (m *MockRecipientListRepository) GetByID(ctx context.Context, id int) (*models.RecipientList, error) {
	m.inc("GetByID")
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return &models.RecipientList{ID: id, Name: "test list", CreatedBy: "tester"}, nil
}

func (m *MockRecipientListRepository) GetActiveMembers(ctx context.Context, listID int) ([]*models.Recipient, error) {
	m.inc("GetActiveMembers")
	if m.GetActiveMembersFunc != nil {
		return m.GetActiveMembersFunc(ctx, listID)
	}
	return []*models.Recipient{newTestRecipient(1), newTestRecipient(2)}, nil
}

// MockTemplateRepository mocks repository.TemplateRepository
type MockTemplateRepository struct {
	CreateFunc               func(ctx context.Context, template *models.Template) error
	GetByNameAndLanguageFunc func(ctx context.Context, name, language string) (*models.Template, error)
	UpdateStatusFunc         func(ctx context.Context, name, language string, status models.TemplateStatus) error

	*callCounter
}

func NewMockTemplateRepository() *MockTemplateRepository {
	return &MockTemplateRepository{callCounter: newCallCounter()}
}

func (m *MockTemplateRepository) Create(ctx context.Context, template *models.Template) error {
	m.inc("Create")
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, template)
	}
	template.ID = 1
	return nil
}

func (m *MockTemplateRepository) GetByNameAndLanguage(ctx context.Context, name, language string) (*models.Template, error) {
	m.inc("GetByNameAndLanguage")
	if m.GetByNameAndLanguageFunc != nil {
		return m.GetByNameAndLanguageFunc(ctx, name, language)
	}
	return &models.Template{
		ID:       1,
		Name:     name,
		Language: language,
		Status:   models.TemplateStatusApproved,
	}, nil
}

func (m *MockTemplateRepository) UpdateStatus(ctx context.Context, name, language string, status models.TemplateStatus) error {
	m.inc("UpdateStatus")
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, name, language, status)
	}
	return nil
}

// MockJobQueue mocks queue.JobQueue and records published jobs
type MockJobQueue struct {
	PublishFunc func(job queue.SendJob) error

	mu        sync.Mutex
	Published []queue.SendJob
}

func NewMockJobQueue() *MockJobQueue {
	return &MockJobQueue{}
}

func (m *MockJobQueue) Publish(job queue.SendJob) error {
	m.mu.Lock()
	m.Published = append(m.Published, job)
	m.mu.Unlock()
	if m.PublishFunc != nil {
		return m.PublishFunc(job)
	}
	return nil
}

// MockProviderClient mocks provider.Client
type MockProviderClient struct {
	SendTemplateFunc func(ctx context.Context, req *provider.TemplateSendRequest) (*provider.TemplateSendResult, error)

	mu       sync.Mutex
	Requests []*provider.TemplateSendRequest
}

func NewMockProviderClient() *MockProviderClient {
	return &MockProviderClient{}
}

func (m *MockProviderClient) SendTemplate(ctx context.Context, req *provider.TemplateSendRequest) (*provider.TemplateSendResult, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	m.mu.Unlock()
	if m.SendTemplateFunc != nil {
		return m.SendTemplateFunc(ctx, req)
	}
	return &provider.TemplateSendResult{ProviderMessageID: "wamid.test"}, nil
}

// Test fixtures

func newTestCampaign(id int) *models.Campaign {
	return &models.Campaign{
		ID:               id,
		CampaignRef:      "cmp-test",
		Name:             "Test Campaign",
		TemplateName:     "promo_september",
		TemplateLanguage: "en",
		CreatedBy:        "tester",
		Status:           models.CampaignStatusDraft,
		CreatedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	}
}

func newTestRecipient(id int) *models.Recipient {
	first := "Test"
	last := "Recipient"
	return &models.Recipient{
		ID:             id,
		Phone:          "2547000000" + string(rune('0'+id%10)),
		FirstName:      &first,
		LastName:       &last,
		Active:         true,
		MarketingOptIn: true,
	}
}

func newTestMessageLog(id, campaignID int, status models.MessageStatus) *models.MessageLog {
	queuedAt := time.Now().Add(-time.Minute)
	return &models.MessageLog{
		ID:          id,
		CampaignID:  campaignID,
		RecipientID: id,
		Phone:       "254700000001",
		Status:      status,
		QueuedAt:    &queuedAt,
	}
}
