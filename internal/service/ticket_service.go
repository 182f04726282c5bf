package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/maplebug/helpdesk/internal/domain"
	"github.com/maplebug/helpdesk/internal/events"
	"github.com/maplebug/helpdesk/internal/geoip"
	"github.com/maplebug/helpdesk/internal/repository"
	"github.com/maplebug/helpdesk/internal/sanitize"
	apperrors "github.com/maplebug/helpdesk/pkg/util"
)

const defaultPageSize = 10

// TicketService coordinates ticket workflows: creation, threaded replies,
// status changes, listing with aggregates, and lazy IP-location enrichment.
type TicketService struct {
	tickets    repository.TicketRepository
	resolver   geoip.Resolver
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo repository.TicketRepository
	Resolver   geoip.Resolver
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title       string
	Description string
	Category    string
	SubCategory string
	Coordinates domain.Coordinates
	CreatedAt   *time.Time
	RequestIP   string
}

// ListInput describes listing parameters.
type ListInput struct {
	Category string
	Status   string
	Page     int
	PageSize int
	SortBy   string
	SortDesc bool
}

// ListResult is the composed listing response: the full pinned set, one page
// of the filtered normal set, and aggregate counts over the filtered set.
type ListResult struct {
	Pinned     []domain.Ticket
	Tickets    []domain.Ticket
	TotalPages int64
	Categories []repository.KeyCount
	Statuses   []repository.KeyCount
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		tickets:    deps.TicketRepo,
		resolver:   deps.Resolver,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
	}
}

// Create persists a new ticket. The caller's IP is resolved synchronously so
// the location is stored with the record; a failed lookup stores the
// sentinel and is retried lazily on later reads.
func (s *TicketService) Create(ctx context.Context, input TicketCreateInput) (*domain.Ticket, error) {
	if strings.TrimSpace(input.Title) == "" {
		return nil, apperrors.NewValidationError("title required", nil)
	}
	if strings.TrimSpace(input.Description) == "" {
		return nil, apperrors.NewValidationError("description required", nil)
	}
	if strings.TrimSpace(input.Category) == "" {
		return nil, apperrors.NewValidationError("category required", nil)
	}

	createdAt := time.Now()
	if input.CreatedAt != nil {
		// accepted as given; the client backfills historical reports
		createdAt = *input.CreatedAt
	}

	ip := input.RequestIP
	if ip == "" {
		ip = domain.LocationUnknown
	}

	ticket := &domain.Ticket{
		Title:       strings.TrimSpace(input.Title),
		Description: input.Description,
		Category:    input.Category,
		SubCategory: input.SubCategory,
		Coordinates: input.Coordinates,
		Status:      domain.TicketStatusCreated,
		Views:       0,
		CreatedAt:   createdAt,
		UserIP:      ip,
		IPLocation:  s.resolver.Resolve(ctx, ip),
	}
	ticket.ApplySubCategoryFallback()

	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.NewStorageError(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Payload: events.TicketCreatedPayload{
			Title:      ticket.Title,
			Category:   ticket.Category,
			IPLocation: ticket.IPLocation,
		},
	})
	return ticket, nil
}

// Get returns a ticket with its reply thread. Reply messages are run through
// the sanitization gate again on the way out; records written before the
// gate existed stay safe to render.
func (s *TicketService) Get(ctx context.Context, id string) (*domain.Ticket, error) {
	ticket, err := s.loadTicket(ctx, id)
	if err != nil {
		return nil, err
	}
	for i := range ticket.Replies {
		ticket.Replies[i].Message = sanitize.Clean(ticket.Replies[i].Message)
	}
	ticket.ApplySubCategoryFallback()
	return ticket, nil
}

// IncrementViews bumps the view counter and returns the updated ticket.
func (s *TicketService) IncrementViews(ctx context.Context, id string) (*domain.Ticket, error) {
	ticket, err := s.tickets.IncrementViews(ctx, id)
	if err != nil {
		return nil, mapTicketErr(err)
	}
	return ticket, nil
}

// AppendReply adds a sanitized reply to the ticket's thread and returns the
// updated ticket. The reply author is a free-text display name.
func (s *TicketService) AppendReply(ctx context.Context, ticketID, message, user, requestIP string) (*domain.Ticket, error) {
	if strings.TrimSpace(message) == "" {
		return nil, apperrors.NewValidationError("reply required", nil)
	}
	if strings.TrimSpace(user) == "" {
		return nil, apperrors.NewValidationError("user required", nil)
	}

	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	ip := requestIP
	if ip == "" {
		ip = domain.LocationUnknown
	}
	reply := &domain.Reply{
		TicketID:   ticket.ID,
		Message:    sanitize.Clean(message),
		User:       user,
		Timestamp:  time.Now(),
		IP:         ip,
		IPLocation: s.resolver.Resolve(ctx, ip),
	}
	if err := s.tickets.AppendReply(ctx, reply); err != nil {
		return nil, apperrors.NewStorageError(err)
	}
	ticket.Replies = append(ticket.Replies, *reply)

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketReplied,
		TicketID: ticket.ID,
		Payload: events.TicketRepliedPayload{
			ReplyID:        reply.ID,
			User:           reply.User,
			MessagePreview: stringPreview(reply.Message, 120),
		},
	})
	return ticket, nil
}

// DeleteReply removes a reply from the thread. An unknown replyID leaves the
// thread unchanged without error.
func (s *TicketService) DeleteReply(ctx context.Context, ticketID, replyID string) error {
	if _, err := s.loadTicket(ctx, ticketID); err != nil {
		return err
	}
	if err := s.tickets.DeleteReply(ctx, ticketID, replyID); err != nil {
		return apperrors.NewStorageError(err)
	}
	return nil
}

// UpdateStatus sets a new status. A nil status is not an error; the ticket
// is returned unchanged.
func (s *TicketService) UpdateStatus(ctx context.Context, ticketID string, status *domain.TicketStatus) (*domain.Ticket, error) {
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if status == nil {
		return ticket, nil
	}

	oldStatus := ticket.Status
	if err := s.tickets.SetStatus(ctx, ticketID, *status); err != nil {
		return nil, mapTicketErr(err)
	}
	ticket.Status = *status

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: ticket.ID,
		Payload: events.TicketStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: *status,
		},
	})
	return ticket, nil
}

// Delete removes the ticket and its reply thread.
func (s *TicketService) Delete(ctx context.Context, id string) error {
	ticket, err := s.loadTicket(ctx, id)
	if err != nil {
		return err
	}
	if err := s.tickets.Delete(ctx, id); err != nil {
		return mapTicketErr(err)
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketDeleted,
		TicketID: id,
		Payload:  events.TicketDeletedPayload{Title: ticket.Title},
	})
	return nil
}

// List composes the listing response: pinned tickets in full regardless of
// the filter, one page of the filtered set, total pages, and per-category /
// per-status counts over the filtered set ignoring pagination.
func (s *TicketService) List(ctx context.Context, input ListInput) (*ListResult, error) {
	page := input.Page
	if page <= 0 {
		page = 1
	}
	pageSize := input.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	filter := repository.ListFilter{
		SortBy:   input.SortBy,
		SortDesc: input.SortDesc,
		Limit:    pageSize,
		Offset:   (page - 1) * pageSize,
	}
	if input.Category != "" {
		category := input.Category
		filter.Category = &category
	}
	if input.Status != "" {
		status := domain.TicketStatus(input.Status)
		filter.Status = &status
	}

	pinned, err := s.tickets.ListByStatus(ctx, domain.TicketStatusPinned)
	if err != nil {
		return nil, apperrors.NewStorageError(err)
	}
	tickets, err := s.tickets.List(ctx, filter)
	if err != nil {
		return nil, apperrors.NewStorageError(err)
	}
	total, err := s.tickets.Count(ctx, filter)
	if err != nil {
		return nil, apperrors.NewStorageError(err)
	}
	categories, err := s.tickets.CountByCategory(ctx, filter)
	if err != nil {
		return nil, apperrors.NewStorageError(err)
	}
	statuses, err := s.tickets.CountByStatus(ctx, filter)
	if err != nil {
		return nil, apperrors.NewStorageError(err)
	}

	return &ListResult{
		Pinned:     pinned,
		Tickets:    tickets,
		TotalPages: (total + int64(pageSize) - 1) / int64(pageSize),
		Categories: categories,
		Statuses:   statuses,
	}, nil
}

// loadTicket fetches a ticket and lazily fills its IP location. The fill
// only succeeds while the stored value is still the sentinel, so concurrent
// reads racing on the same ticket cannot clobber a resolved value.
func (s *TicketService) loadTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		return nil, mapTicketErr(err)
	}

	if ticket.IPLocation == domain.LocationUnknown {
		if location := s.resolver.Resolve(ctx, ticket.UserIP); location != domain.LocationUnknown {
			if err := s.tickets.FillIPLocation(ctx, id, location); err != nil {
				return nil, apperrors.NewStorageError(err)
			}
			ticket.IPLocation = location
		}
	}
	return ticket, nil
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func mapTicketErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NewNotFound("ticket", nil)
	}
	return apperrors.NewStorageError(err)
}

// stringPreview truncates on rune boundaries so previews of multi-byte text
// stay valid UTF-8.
func stringPreview(body string, max int) string {
	runes := []rune(strings.TrimSpace(body))
	if len(runes) <= max {
		return string(runes)
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
