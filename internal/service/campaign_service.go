package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"sendhorn/internal/models"
	"sendhorn/internal/repository"
)

// CampaignService handles campaign lifecycle operations outside dispatch
type CampaignService struct {
	campaignRepo  repository.CampaignRepository
	templateRepo  repository.TemplateRepository
	recipientRepo repository.RecipientRepository
	listRepo      repository.RecipientListRepository
	validate      *validator.Validate
}

// NewCampaignService creates a new campaign service
func NewCampaignService(
	campaignRepo repository.CampaignRepository,
	templateRepo repository.TemplateRepository,
	recipientRepo repository.RecipientRepository,
	listRepo repository.RecipientListRepository,
) *CampaignService {
	return &CampaignService{
		campaignRepo:  campaignRepo,
		templateRepo:  templateRepo,
		recipientRepo: recipientRepo,
		listRepo:      listRepo,
		validate:      validator.New(),
	}
}

// CreateCampaignRequest represents a request to create a campaign.
// Exactly one recipient source must be provided: a saved list or an explicit
// recipient id set.
type CreateCampaignRequest struct {
	Name             string     `json:"name" validate:"required,max=200"`
	TemplateName     string     `json:"template_name" validate:"required"`
	TemplateLanguage string     `json:"template_language" validate:"required"`
	RecipientListID  *int       `json:"recipient_list_id,omitempty" validate:"omitempty,gt=0"`
	RecipientIDs     []int      `json:"recipient_ids,omitempty" validate:"omitempty,min=1,dive,gt=0"`
	ScheduledAt      *time.Time `json:"scheduled_at,omitempty"`
}

// CreateCampaign creates a new campaign in draft state
func (s *CampaignService) CreateCampaign(ctx context.Context, req *CreateCampaignRequest, creator string) (*models.Campaign, error) {
	if creator == "" {
		return nil, &ValidationError{Message: "creator is required"}
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}

	hasList := req.RecipientListID != nil
	hasIDs := len(req.RecipientIDs) > 0
	if hasList == hasIDs {
		return nil, &ValidationError{Message: "exactly one of recipient_list_id or recipient_ids is required"}
	}

	// The template must exist locally; approval is checked again at start
	// time because it can change between create and start.
	if _, err := s.templateRepo.GetByNameAndLanguage(ctx, req.TemplateName, req.TemplateLanguage); err != nil {
		return nil, &ValidationError{Message: fmt.Sprintf("template %q (%s) not found", req.TemplateName, req.TemplateLanguage)}
	}

	if hasList {
		if _, err := s.listRepo.GetByID(ctx, *req.RecipientListID); err != nil {
			return nil, &ValidationError{Message: fmt.Sprintf("recipient list %d not found", *req.RecipientListID)}
		}
	}

	campaign := &models.Campaign{
		CampaignRef:      "cmp-" + uuid.NewString(),
		Name:             req.Name,
		TemplateName:     req.TemplateName,
		TemplateLanguage: req.TemplateLanguage,
		RecipientListID:  req.RecipientListID,
		CreatedBy:        creator,
		Status:           models.CampaignStatusDraft,
		ScheduledAt:      req.ScheduledAt,
	}

	if err := s.campaignRepo.Create(ctx, campaign); err != nil {
		return nil, fmt.Errorf("failed to create campaign: %w", err)
	}

	if hasIDs {
		if err := s.campaignRepo.AddRecipients(ctx, campaign.ID, req.RecipientIDs); err != nil {
			return nil, fmt.Errorf("failed to store recipient selection: %w", err)
		}
	}

	return campaign, nil
}

// GetCampaign retrieves a campaign by ID
func (s *CampaignService) GetCampaign(ctx context.Context, id int) (*models.Campaign, error) {
	campaign, err := s.campaignRepo.GetByID(ctx, id)
	if err != nil {
		return nil, &NotFoundError{Resource: "campaign", ID: id}
	}
	return campaign, nil
}

// ListCampaigns lists campaigns with filters
func (s *CampaignService) ListCampaigns(ctx context.Context, filters repository.CampaignFilters) ([]*models.Campaign, *PaginationInfo, error) {
	campaigns, total, err := s.campaignRepo.List(ctx, filters)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list campaigns: %w", err)
	}

	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	pagination := &PaginationInfo{
		Page:       filters.Page,
		PageSize:   pageSize,
		TotalCount: total,
		TotalPages: (total + pageSize - 1) / pageSize,
	}

	return campaigns, pagination, nil
}

// PaginationInfo represents pagination metadata
type PaginationInfo struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
	TotalPages int `json:"total_pages"`
}
