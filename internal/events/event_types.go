package events

import (
	"time"

	"github.com/maplebug/helpdesk/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketReplied       EventType = "ticket_replied"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventTicketDeleted       EventType = "ticket_deleted"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Title      string `json:"title"`
	Category   string `json:"category"`
	IPLocation string `json:"ip_location"`
}

// TicketRepliedPayload payload.
type TicketRepliedPayload struct {
	ReplyID        string `json:"reply_id"`
	User           string `json:"user"`
	MessagePreview string `json:"message_preview"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
}

// TicketDeletedPayload payload.
type TicketDeletedPayload struct {
	Title string `json:"title"`
}
