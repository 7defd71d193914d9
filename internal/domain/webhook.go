package domain

// Message kinds the relay handles.
const (
	MessageText  = "text"
	MessageImage = "image"
)

// WebhookPayload is the body delivered by the chat platform.
type WebhookPayload struct {
	Destination string         `json:"destination,omitempty"`
	Events      []WebhookEvent `json:"events"`
}

// WebhookEvent is one entry of a delivery. Events without a reply token
// (redeliveries, unfollows, read receipts) cannot be answered.
type WebhookEvent struct {
	Type       string          `json:"type,omitempty"`
	ReplyToken string          `json:"replyToken,omitempty"`
	Timestamp  int64           `json:"timestamp,omitempty"` // platform time in ms, informational only
	Source     *EventSource    `json:"source,omitempty"`
	Message    *WebhookMessage `json:"message,omitempty"`
}

type EventSource struct {
	Type    string `json:"type,omitempty"`
	UserID  string `json:"userId"`
	GroupID string `json:"groupId,omitempty"`
	RoomID  string `json:"roomId,omitempty"`
}

type WebhookMessage struct {
	ID   string  `json:"id,omitempty"`
	Type string  `json:"type"`
	Text *string `json:"text,omitempty"`
}
