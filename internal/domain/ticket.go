package domain

import "time"

// TicketStatus is an open-ended status label. The set below is the
// conventional one; callers may set other values via the status endpoint.
type TicketStatus string

const (
	// TicketStatusCreated is assigned to every new ticket.
	TicketStatusCreated TicketStatus = "created"
	// TicketStatusPinned surfaces a ticket in every listing response
	// regardless of the active category/status filter.
	TicketStatusPinned     TicketStatus = "pinned"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusResolved   TicketStatus = "resolved"
	TicketStatusClosed     TicketStatus = "closed"
)

// LocationUnknown is the sentinel stored when an IP location could not be
// resolved. A ticket holding it is re-resolved lazily on detail reads.
const LocationUnknown = "unknown"

// CategorySuggestion is the one category whose tickets receive a default
// sub-category when none is supplied.
const CategorySuggestion = "suggestion"

// SubCategoryFallback is that default.
const SubCategoryFallback = "other suggestions"

// Coordinates carries optional free-form positional metadata.
type Coordinates struct {
	X string `json:"x,omitempty"`
	Y string `json:"y,omitempty"`
	Z string `json:"z,omitempty"`
}

// Reply is a single message in a ticket's thread. Replies belong to exactly
// one ticket and are removed with it. The User field is a display name, not
// an account reference.
type Reply struct {
	ID         string
	TicketID   string
	Message    string
	User       string
	Timestamp  time.Time
	IP         string
	IPLocation string
}

// Ticket is the aggregate for support requests. Replies are loaded with the
// ticket in append order.
type Ticket struct {
	ID          string
	Title       string
	Description string
	Category    string
	SubCategory string
	Coordinates Coordinates
	Status      TicketStatus
	Replies     []Reply
	Views       int64
	CreatedAt   time.Time
	UserIP      string
	IPLocation  string
}

// ApplySubCategoryFallback backfills the default sub-category for tickets in
// the suggestion category. Older records predate the field.
func (t *Ticket) ApplySubCategoryFallback() {
	if t.SubCategory == "" && t.Category == CategorySuggestion {
		t.SubCategory = SubCategoryFallback
	}
}
