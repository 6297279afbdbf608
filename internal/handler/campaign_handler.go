package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"sendhorn/internal/models"
	"sendhorn/internal/repository"
	"sendhorn/internal/service"
)

// ActorHeader carries the authenticated caller identity. Authentication
// itself happens upstream; this core only consumes the resolved identity.
const ActorHeader = "X-Actor-Id"

// Reconciler is the campaign handler's view of the completion reconciler
type Reconciler interface {
	TryComplete(ctx context.Context, campaignID int) error
}

// CampaignHandler handles HTTP requests for campaign operations
type CampaignHandler struct {
	campaignService *service.CampaignService
	dispatcher      *service.Dispatcher
	reconciler      Reconciler
}

// NewCampaignHandler creates a new campaign handler
func NewCampaignHandler(campaignService *service.CampaignService, dispatcher *service.Dispatcher, reconciler Reconciler) *CampaignHandler {
	return &CampaignHandler{
		campaignService: campaignService,
		dispatcher:      dispatcher,
		reconciler:      reconciler,
	}
}

// Create handles POST /campaigns - creates a new campaign
func (h *CampaignHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor := r.Header.Get(ActorHeader)
	if actor == "" {
		WriteValidationError(w, "missing "+ActorHeader+" header")
		return
	}

	var req service.CreateCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err == io.EOF {
			WriteError(w, http.StatusBadRequest, "INVALID_JSON", "Request body is empty")
			return
		}
		WriteError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON format")
		return
	}

	campaign, err := h.campaignService.CreateCampaign(r.Context(), &req, actor)
	if err != nil {
		HandleServiceError(w, err)
		return
	}

	WriteCreated(w, campaign)
}

// List handles GET /campaigns - lists campaigns with filters
func (h *CampaignHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	page := 1
	if pageStr := query.Get("page"); pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
			page = p
		}
	}

	perPage := 20
	if perPageStr := query.Get("per_page"); perPageStr != "" {
		if pp, err := strconv.Atoi(perPageStr); err == nil && pp > 0 {
			perPage = pp
		}
	}
	if perPage > 100 {
		perPage = 100
	}

	filters := repository.CampaignFilters{
		Page:     page,
		PageSize: perPage,
	}

	if statusStr := query.Get("status"); statusStr != "" {
		validStatuses := map[string]models.CampaignStatus{
			"draft":     models.CampaignStatusDraft,
			"pending":   models.CampaignStatusPending,
			"sending":   models.CampaignStatusSending,
			"completed": models.CampaignStatusCompleted,
			"failed":    models.CampaignStatusFailed,
			"cancelled": models.CampaignStatusCancelled,
		}
		if status, ok := validStatuses[statusStr]; ok {
			filters.Status = &status
		} else {
			WriteValidationError(w, "invalid status: must be one of draft, pending, sending, completed, failed, cancelled")
			return
		}
	}

	campaigns, pagination, err := h.campaignService.ListCampaigns(r.Context(), filters)
	if err != nil {
		HandleServiceError(w, err)
		return
	}

	WriteOK(w, ListCampaignsResponse{
		Campaigns:  campaigns,
		Pagination: pagination,
	})
}

// GetByID handles GET /campaigns/{id} - gets a campaign by ID
func (h *CampaignHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignIDFromRequest(w, r)
	if !ok {
		return
	}

	campaign, err := h.campaignService.GetCampaign(r.Context(), id)
	if err != nil {
		HandleServiceError(w, err)
		return
	}

	WriteOK(w, campaign)
}

// Start handles POST /campaigns/{id}/start - dispatches a campaign
func (h *CampaignHandler) Start(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignIDFromRequest(w, r)
	if !ok {
		return
	}

	actor := r.Header.Get(ActorHeader)
	if actor == "" {
		WriteValidationError(w, "missing "+ActorHeader+" header")
		return
	}

	result, err := h.dispatcher.StartCampaign(r.Context(), id, actor)
	if err != nil {
		HandleServiceError(w, err)
		return
	}

	WriteOK(w, result)
}

// Reconcile handles POST /campaigns/{id}/reconcile - manual aggregate recheck
func (h *CampaignHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignIDFromRequest(w, r)
	if !ok {
		return
	}

	if err := h.reconciler.TryComplete(r.Context(), id); err != nil {
		HandleServiceError(w, err)
		return
	}

	campaign, err := h.campaignService.GetCampaign(r.Context(), id)
	if err != nil {
		HandleServiceError(w, err)
		return
	}

	WriteOK(w, campaign)
}

// campaignIDFromRequest extracts and validates the {id} path variable
func campaignIDFromRequest(w http.ResponseWriter, r *http.Request) (int, bool) {
	vars := mux.Vars(r)
	id, err := strconv.Atoi(vars["id"])
	if err != nil {
		WriteValidationError(w, "invalid campaign ID format")
		return 0, false
	}
	if id <= 0 {
		WriteValidationError(w, "campaign ID must be greater than 0")
		return 0, false
	}
	return id, true
}

// ListCampaignsResponse represents the response for listing campaigns
type ListCampaignsResponse struct {
	Campaigns  []*models.Campaign      `json:"campaigns"`
	Pagination *service.PaginationInfo `json:"pagination"`
}
