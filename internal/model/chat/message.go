package chat

import "time"

// TimestampLayout renders message times the way the widget displays them (HH:MM).
const TimestampLayout = "15:04"

// OutboundMessage is the request body posted to the chatbot webhook.
type OutboundMessage struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// InboundMessage is the webhook reply. SessionID is echoed by the backend.
type InboundMessage struct {
	SessionID string `json:"session_id"`
	Response  string `json:"response"`
}

// Message is one rendered turn of a conversation. Messages live only as long as
// the conversation that owns them.
type Message struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	IsUser    bool   `json:"isUser"`
	Timestamp string `json:"timestamp"`
}

// NewMessage stamps a message with the provided clock reading.
func NewMessage(id, text string, isUser bool, at time.Time) Message {
	return Message{
		ID:        id,
		Text:      text,
		IsUser:    isUser,
		Timestamp: at.Format(TimestampLayout),
	}
}
