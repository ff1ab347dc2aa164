package history

import "time"

// Message is one persisted chat turn.
type Message struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Avatar    string    `json:"avatar"`
	CreatedAt time.Time `json:"created_at"`
}
