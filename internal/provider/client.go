package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client sends template messages through the provider's messaging API.
// The returned provider message id is the cross-reference key all later
// webhook status events are correlated by.
type Client interface {
	SendTemplate(ctx context.Context, req *TemplateSendRequest) (*TemplateSendResult, error)
}

// TemplateSendRequest describes one template send to one recipient
type TemplateSendRequest struct {
	To               string
	TemplateName     string
	TemplateLanguage string
	Components       []Component
}

// TemplateSendResult carries the provider-assigned message id
type TemplateSendResult struct {
	ProviderMessageID string
}

// HTTPClient calls the provider's Cloud API over HTTP
type HTTPClient struct {
	baseURL       string
	phoneNumberID string
	accessToken   string
	client        *http.Client
}

// NewHTTPClient creates a provider client for the given phone number id
func NewHTTPClient(baseURL, phoneNumberID, accessToken string) *HTTPClient {
	return &HTTPClient{
		baseURL:       baseURL,
		phoneNumberID: phoneNumberID,
		accessToken:   accessToken,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type sendPayload struct {
	MessagingProduct string       `json:"messaging_product"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Template         templateBody `json:"template"`
}

type templateBody struct {
	Name       string       `json:"name"`
	Language   languageBody `json:"language"`
	Components []Component  `json:"components,omitempty"`
}

type languageBody struct {
	Code string `json:"code"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

// SendTemplate posts a template-send request and returns the assigned
// provider message id.
func (c *HTTPClient) SendTemplate(ctx context.Context, req *TemplateSendRequest) (*TemplateSendResult, error) {
	payload := sendPayload{
		MessagingProduct: "whatsapp",
		To:               req.To,
		Type:             "template",
		Template: templateBody{
			Name:       req.TemplateName,
			Language:   languageBody{Code: req.TemplateLanguage},
			Components: req.Components,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal send payload: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneNumberID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build send request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.accessToken)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read provider response: %w", err)
	}

	var out sendResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("failed to decode provider response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if out.Error != nil {
			return nil, fmt.Errorf("provider rejected send (code %d): %s", out.Error.Code, out.Error.Message)
		}
		return nil, fmt.Errorf("provider returned http status %d", resp.StatusCode)
	}

	if len(out.Messages) == 0 || out.Messages[0].ID == "" {
		return nil, fmt.Errorf("provider response missing message id")
	}

	return &TemplateSendResult{ProviderMessageID: out.Messages[0].ID}, nil
}
