package handler

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"sendhorn/internal/provider"
	"sendhorn/internal/service"
)

// WebhookHandler handles provider callback requests
type WebhookHandler struct {
	receiver    *service.WebhookReceiver
	verifyToken string
	log         zerolog.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(receiver *service.WebhookReceiver, verifyToken string, log zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{
		receiver:    receiver,
		verifyToken: verifyToken,
		log:         log.With().Str("component", "webhook_handler").Logger(),
	}
}

// Verify handles GET /webhook - the provider's subscription handshake.
// The challenge is echoed back verbatim only when the token matches.
func (h *WebhookHandler) Verify(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	mode := query.Get("hub.mode")
	token := query.Get("hub.verify_token")
	challenge := query.Get("hub.challenge")

	if mode == "subscribe" && token == h.verifyToken {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(challenge))
		return
	}

	h.log.Warn().Str("mode", mode).Msg("webhook verification rejected")
	w.WriteHeader(http.StatusForbidden)
}

// Receive handles POST /webhook - status callbacks and side-channel events.
// Always answers 200 so the provider does not retry payloads we cannot
// parse; processing failures are logged and resolved by reconciliation.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	var payload provider.WebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.log.Warn().Err(err).Msg("discarding malformed webhook body")
		w.WriteHeader(http.StatusOK)
		return
	}

	h.receiver.ProcessPayload(r.Context(), &payload)
	w.WriteHeader(http.StatusOK)
}
