package provider

// Webhook payload types. The provider delivers events shaped as
// entry[] -> changes[] -> value; each change's field discriminates what the
// value carries (per-message statuses, inbound messages, template status
// updates, user preference changes, phone quality updates).

// WebhookPayload is the top-level body of a webhook POST
type WebhookPayload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry groups changes for one business account
type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

// Change carries one event batch; Field identifies the event kind
type Change struct {
	Field string      `json:"field"`
	Value ChangeValue `json:"value"`
}

// Change field discriminators
const (
	FieldMessages             = "messages"
	FieldTemplateStatusUpdate = "message_template_status_update"
	FieldUserPreferences      = "user_preferences"
	FieldPhoneQualityUpdate   = "phone_number_quality_update"
)

// ChangeValue is the union of all change payloads. Which fields are populated
// depends on the change's Field value.
type ChangeValue struct {
	MessagingProduct string    `json:"messaging_product,omitempty"`
	Metadata         *Metadata `json:"metadata,omitempty"`

	// field == "messages"
	Statuses []Status         `json:"statuses,omitempty"`
	Messages []InboundMessage `json:"messages,omitempty"`
	Contacts []Contact        `json:"contacts,omitempty"`

	// field == "message_template_status_update"
	Event                   string `json:"event,omitempty"`
	MessageTemplateID       int64  `json:"message_template_id,omitempty"`
	MessageTemplateName     string `json:"message_template_name,omitempty"`
	MessageTemplateLanguage string `json:"message_template_language,omitempty"`

	// field == "user_preferences"
	UserPreferences []UserPreference `json:"user_preferences,omitempty"`

	// field == "phone_number_quality_update"
	DisplayPhoneNumber string `json:"display_phone_number,omitempty"`
	CurrentLimit       string `json:"current_limit,omitempty"`
}

// Metadata identifies the receiving business phone number
type Metadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

// Status is one per-message delivery status event
type Status struct {
	ID           string        `json:"id"`
	Status       string        `json:"status"`
	Timestamp    string        `json:"timestamp"`
	RecipientID  string        `json:"recipient_id"`
	Conversation *Conversation `json:"conversation,omitempty"`
	Pricing      *Pricing      `json:"pricing,omitempty"`
	Errors       []ErrorDetail `json:"errors,omitempty"`
}

// Conversation identifies the provider conversation a message belongs to
type Conversation struct {
	ID     string              `json:"id"`
	Origin *ConversationOrigin `json:"origin,omitempty"`
}

// ConversationOrigin carries the conversation category
type ConversationOrigin struct {
	Type string `json:"type"`
}

// Pricing carries the billing category for a message
type Pricing struct {
	Category     string `json:"category"`
	PricingModel string `json:"pricing_model"`
}

// ErrorDetail is a provider-reported error attached to a failed status
type ErrorDetail struct {
	Code    int    `json:"code"`
	Title   string `json:"title"`
	Message string `json:"message,omitempty"`
	Details string `json:"error_data,omitempty"`
}

// InboundMessage is a user-originated message (outside the campaign state
// machine; ingested through the side channel only)
type InboundMessage struct {
	ID        string       `json:"id"`
	From      string       `json:"from"`
	Timestamp string       `json:"timestamp"`
	Type      string       `json:"type"`
	Text      *MessageText `json:"text,omitempty"`
}

// MessageText is the text body of an inbound message
type MessageText struct {
	Body string `json:"body"`
}

// Contact is profile info the provider attaches to inbound messages
type Contact struct {
	WaID    string          `json:"wa_id"`
	Profile *ContactProfile `json:"profile,omitempty"`
}

// ContactProfile carries the contact's display name
type ContactProfile struct {
	Name string `json:"name"`
}

// UserPreference is an opt-in/opt-out change for marketing messages
type UserPreference struct {
	WaID      string `json:"wa_id"`
	Detail    string `json:"detail"`
	Category  string `json:"category"`
	Value     string `json:"value"` // "stop" or "resume"
	Timestamp string `json:"timestamp"`
}
