package domain

import "time"

// ChatMessage is a single entry in the shared chat room. Messages are
// ephemeral: the room keeps a capped backlog and older entries fall off.
type ChatMessage struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
