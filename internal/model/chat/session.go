package chat

// SessionStorageKey is the fixed storage key holding the session identifier.
const SessionStorageKey = "chatbot-session-id"

// Conversation captures the transient transcript of one widget instance.
type Conversation struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Messages  []Message `json:"messages"`
}
