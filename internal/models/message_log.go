package models

import "time"

// MessageStatus represents valid message statuses
type MessageStatus string

const (
	MessageStatusQueued    MessageStatus = "queued"
	MessageStatusPending   MessageStatus = "pending"
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
	MessageStatusFailed    MessageStatus = "failed"
)

// statusRank encodes the delivery progression queued < pending < sent <
// delivered < read. Failed sits outside the chain and is handled explicitly
// by MergeStatus.
var statusRank = map[MessageStatus]int{
	MessageStatusQueued:    0,
	MessageStatusPending:   1,
	MessageStatusSent:      2,
	MessageStatusDelivered: 3,
	MessageStatusRead:      4,
}

// IsValidMessageStatus checks whether s is a known message status
func IsValidMessageStatus(s MessageStatus) bool {
	switch s {
	case MessageStatusQueued, MessageStatusPending, MessageStatusSent,
		MessageStatusDelivered, MessageStatusRead, MessageStatusFailed:
		return true
	}
	return false
}

// IsTerminalMessageStatus reports whether a message counts toward campaign
// completion. Sent counts as terminal even though delivered/read may still
// supersede it later.
func IsTerminalMessageStatus(s MessageStatus) bool {
	switch s {
	case MessageStatusSent, MessageStatusDelivered, MessageStatusRead, MessageStatusFailed:
		return true
	}
	return false
}

// MergeStatus resolves the primary status after applying an incoming provider
// status to the currently stored one. Provider webhook delivery is unordered
// and duplicate-prone, so the merge must be monotonic: a lower-ranked incoming
// status never regresses the stored one.
//
// Rules:
//   - failed is terminal: once stored it is never replaced
//   - an incoming failed is not applied over delivered/read (a delivery
//     confirmation wins over a late failure report)
//   - otherwise the higher rank wins; ties keep the stored value
func MergeStatus(current, incoming MessageStatus) MessageStatus {
	if current == MessageStatusFailed {
		return current
	}
	if incoming == MessageStatusFailed {
		if current == MessageStatusDelivered || current == MessageStatusRead {
			return current
		}
		return incoming
	}
	if statusRank[incoming] > statusRank[current] {
		return incoming
	}
	return current
}

// MessageLog is the authoritative per-message record. Before the provider
// assigns a message id the row is keyed by (campaign_id, recipient_id); that
// pair is unique and acts as the seeding idempotency key.
type MessageLog struct {
	ID                int           `json:"id" db:"id"`
	CampaignID        int           `json:"campaign_id" db:"campaign_id"`
	RecipientID       int           `json:"recipient_id" db:"recipient_id"`
	Phone             string        `json:"phone" db:"phone"`
	ProviderMessageID *string       `json:"provider_message_id,omitempty" db:"provider_message_id"`
	Status            MessageStatus `json:"status" db:"status"`
	ConversationID    *string       `json:"conversation_id,omitempty" db:"conversation_id"`
	PricingCategory   *string       `json:"pricing_category,omitempty" db:"pricing_category"`
	ErrorMessage      *string       `json:"error_message,omitempty" db:"error_message"`
	QueuedAt          *time.Time    `json:"queued_at,omitempty" db:"queued_at"`
	SentAt            *time.Time    `json:"sent_at,omitempty" db:"sent_at"`
	DeliveredAt       *time.Time    `json:"delivered_at,omitempty" db:"delivered_at"`
	ReadAt            *time.Time    `json:"read_at,omitempty" db:"read_at"`
	FailedAt          *time.Time    `json:"failed_at,omitempty" db:"failed_at"`
	CreatedAt         time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at" db:"updated_at"`
}

// StatusTimestamp returns the timestamp recorded for the message's current
// primary status, used when projecting the log into the campaign snapshot.
func (m *MessageLog) StatusTimestamp() *time.Time {
	switch m.Status {
	case MessageStatusSent:
		return m.SentAt
	case MessageStatusDelivered:
		return m.DeliveredAt
	case MessageStatusRead:
		return m.ReadAt
	case MessageStatusFailed:
		return m.FailedAt
	default:
		return m.QueuedAt
	}
}

// StatusEvent is one per-message status callback extracted from a provider
// webhook delivery.
type StatusEvent struct {
	ProviderMessageID string
	Status            MessageStatus
	Timestamp         time.Time
	RecipientPhone    string
	ConversationID    *string
	PricingCategory   *string
	ErrorMessage      *string
}

// Apply merges the event into the log in place: the primary status via
// MergeStatus, the event's own timestamp field backfilled if unset (a late
// sent event arriving after delivered still sets sent_at), and provider
// metadata filled when missing. Returns true if anything changed.
func (e *StatusEvent) Apply(m *MessageLog) bool {
	changed := false

	if merged := MergeStatus(m.Status, e.Status); merged != m.Status {
		m.Status = merged
		changed = true
	}

	ts := e.Timestamp
	switch e.Status {
	case MessageStatusSent:
		if m.SentAt == nil {
			m.SentAt = &ts
			changed = true
		}
	case MessageStatusDelivered:
		if m.DeliveredAt == nil {
			m.DeliveredAt = &ts
			changed = true
		}
	case MessageStatusRead:
		if m.ReadAt == nil {
			m.ReadAt = &ts
			changed = true
		}
	case MessageStatusFailed:
		if m.FailedAt == nil {
			m.FailedAt = &ts
			changed = true
		}
	}

	if e.ConversationID != nil && m.ConversationID == nil {
		m.ConversationID = e.ConversationID
		changed = true
	}
	if e.PricingCategory != nil && m.PricingCategory == nil {
		m.PricingCategory = e.PricingCategory
		changed = true
	}
	if e.ErrorMessage != nil && m.Status == MessageStatusFailed && m.ErrorMessage == nil {
		m.ErrorMessage = e.ErrorMessage
		changed = true
	}

	return changed
}
