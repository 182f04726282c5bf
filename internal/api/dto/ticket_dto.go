package dto

import (
	"time"

	"github.com/maplebug/helpdesk/internal/domain"
	"github.com/maplebug/helpdesk/internal/repository"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Category    string              `json:"category"`
	SubCategory string              `json:"subCategory"`
	Coordinates *domain.Coordinates `json:"coordinates"`
	CreatedAt   *time.Time          `json:"createdAt"`
}

// CreateReplyRequest payload.
type CreateReplyRequest struct {
	Reply string `json:"reply"`
	User  string `json:"user"`
}

// UpdateStatusRequest payload. A null status leaves the ticket unchanged.
type UpdateStatusRequest struct {
	Status *string `json:"status"`
}

// ReplyResponse represents one thread entry.
type ReplyResponse struct {
	ID         string    `json:"id"`
	Message    string    `json:"message"`
	User       string    `json:"user"`
	Timestamp  time.Time `json:"timestamp"`
	IP         string    `json:"ip"`
	IPLocation string    `json:"ipLocation"`
}

// TicketResponse is the full ticket representation.
type TicketResponse struct {
	ID          string              `json:"id"`
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Category    string              `json:"category"`
	SubCategory string              `json:"subCategory"`
	Coordinates domain.Coordinates  `json:"coordinates"`
	Status      domain.TicketStatus `json:"status"`
	Replies     []ReplyResponse     `json:"replies"`
	Views       int64               `json:"views"`
	CreatedAt   time.Time           `json:"createdAt"`
	UserIP      string              `json:"userIp"`
	IPLocation  string              `json:"ipLocation"`
}

// CategoryCount is one aggregate bucket keyed by category.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int64  `json:"count"`
}

// StatusCount is one aggregate bucket keyed by status.
type StatusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

// ListTicketsResponse is the composed listing payload.
type ListTicketsResponse struct {
	TopTickets []TicketResponse `json:"topTickets"`
	Tickets    []TicketResponse `json:"tickets"`
	TotalPages int64            `json:"totalPages"`
	Categories []CategoryCount  `json:"categories"`
	Statuses   []StatusCount    `json:"statuses"`
}

// NewTicketResponse maps a domain ticket.
func NewTicketResponse(ticket *domain.Ticket) TicketResponse {
	replies := make([]ReplyResponse, 0, len(ticket.Replies))
	for _, reply := range ticket.Replies {
		replies = append(replies, ReplyResponse{
			ID:         reply.ID,
			Message:    reply.Message,
			User:       reply.User,
			Timestamp:  reply.Timestamp,
			IP:         reply.IP,
			IPLocation: reply.IPLocation,
		})
	}
	return TicketResponse{
		ID:          ticket.ID,
		Title:       ticket.Title,
		Description: ticket.Description,
		Category:    ticket.Category,
		SubCategory: ticket.SubCategory,
		Coordinates: ticket.Coordinates,
		Status:      ticket.Status,
		Replies:     replies,
		Views:       ticket.Views,
		CreatedAt:   ticket.CreatedAt,
		UserIP:      ticket.UserIP,
		IPLocation:  ticket.IPLocation,
	}
}

// NewTicketResponses maps a slice of domain tickets.
func NewTicketResponses(tickets []domain.Ticket) []TicketResponse {
	result := make([]TicketResponse, 0, len(tickets))
	for i := range tickets {
		result = append(result, NewTicketResponse(&tickets[i]))
	}
	return result
}

// NewCategoryCounts maps repository aggregates.
func NewCategoryCounts(counts []repository.KeyCount) []CategoryCount {
	result := make([]CategoryCount, 0, len(counts))
	for _, kc := range counts {
		result = append(result, CategoryCount{Category: kc.Key, Count: kc.Count})
	}
	return result
}

// NewStatusCounts maps repository aggregates.
func NewStatusCounts(counts []repository.KeyCount) []StatusCount {
	result := make([]StatusCount, 0, len(counts))
	for _, kc := range counts {
		result = append(result, StatusCount{Status: kc.Key, Count: kc.Count})
	}
	return result
}
