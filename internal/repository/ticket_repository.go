package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/maplebug/helpdesk/internal/domain"
)

// ListFilter captures listing parameters. Category and Status are
// exact-match; nil means no constraint.
type ListFilter struct {
	Category *string
	Status   *domain.TicketStatus
	SortBy   string
	SortDesc bool
	Limit    int
	Offset   int
}

// KeyCount is one aggregate bucket of a GROUP BY query.
type KeyCount struct {
	Key   string
	Count int64
}

// TicketRepository encapsulates ticket persistence. Every operation that
// returns tickets loads their reply threads in append order; listings batch
// the reply lookup per page.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	Delete(ctx context.Context, id string) error
	IncrementViews(ctx context.Context, id string) (*domain.Ticket, error)
	SetStatus(ctx context.Context, id string, status domain.TicketStatus) error
	FillIPLocation(ctx context.Context, id, location string) error
	AppendReply(ctx context.Context, reply *domain.Reply) error
	DeleteReply(ctx context.Context, ticketID, replyID string) error
	List(ctx context.Context, filter ListFilter) ([]domain.Ticket, error)
	ListByStatus(ctx context.Context, status domain.TicketStatus) ([]domain.Ticket, error)
	Count(ctx context.Context, filter ListFilter) (int64, error)
	CountByCategory(ctx context.Context, filter ListFilter) ([]KeyCount, error)
	CountByStatus(ctx context.Context, filter ListFilter) ([]KeyCount, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, title, description, category, sub_category,
       coord_x, coord_y, coord_z, status, views, created_at, user_ip, ip_location`

// sortColumns whitelists sortable fields. Anything else falls back to the
// creation timestamp.
var sortColumns = map[string]string{
	"createdAt": "created_at",
	"views":     "views",
	"title":     "title",
	"category":  "category",
	"status":    "status",
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (title, description, category, sub_category, coord_x, coord_y, coord_z,
                             status, views, created_at, user_ip, ip_location)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
        RETURNING id`
	return r.pool.QueryRow(ctx, query,
		ticket.Title,
		ticket.Description,
		ticket.Category,
		ticket.SubCategory,
		ticket.Coordinates.X,
		ticket.Coordinates.Y,
		ticket.Coordinates.Z,
		ticket.Status,
		ticket.Views,
		ticket.CreatedAt,
		ticket.UserIP,
		ticket.IPLocation,
	).Scan(&ticket.ID)
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	ticket, err := r.fetchSingle(ctx, query, id)
	if err != nil {
		return nil, err
	}
	replies, err := r.listReplies(ctx, ticket.ID)
	if err != nil {
		return nil, err
	}
	ticket.Replies = replies
	return ticket, nil
}

func (r *ticketRepository) Delete(ctx context.Context, id string) error {
	// ticket_replies rows go with the ticket via ON DELETE CASCADE.
	cmd, err := r.pool.Exec(ctx, `DELETE FROM tickets WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) IncrementViews(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `UPDATE tickets SET views = views + 1 WHERE id=$1 RETURNING ` + ticketColumns
	ticket, err := r.fetchSingle(ctx, query, id)
	if err != nil {
		return nil, err
	}
	replies, err := r.listReplies(ctx, ticket.ID)
	if err != nil {
		return nil, err
	}
	ticket.Replies = replies
	return ticket, nil
}

func (r *ticketRepository) SetStatus(ctx context.Context, id string, status domain.TicketStatus) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE tickets SET status=$1 WHERE id=$2`, status, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// FillIPLocation records a resolved location. The guard on the sentinel
// keeps a resolved value from ever being overwritten, so concurrent reads
// racing to fill the same ticket stay idempotent.
func (r *ticketRepository) FillIPLocation(ctx context.Context, id, location string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE tickets SET ip_location=$1 WHERE id=$2 AND ip_location=$3`,
		location, id, domain.LocationUnknown)
	return err
}

func (r *ticketRepository) AppendReply(ctx context.Context, reply *domain.Reply) error {
	const query = `
        INSERT INTO ticket_replies (ticket_id, message, user_name, ip, ip_location, created_at)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id`
	return r.pool.QueryRow(ctx, query,
		reply.TicketID,
		reply.Message,
		reply.User,
		reply.IP,
		reply.IPLocation,
		reply.Timestamp,
	).Scan(&reply.ID)
}

// DeleteReply removes a reply when present. A replyId with no match is a
// no-op, not an error.
func (r *ticketRepository) DeleteReply(ctx context.Context, ticketID, replyID string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM ticket_replies WHERE ticket_id=$1 AND id=$2`, ticketID, replyID)
	return err
}

func (r *ticketRepository) List(ctx context.Context, filter ListFilter) ([]domain.Ticket, error) {
	clauses, args := filterClauses(filter)

	column, ok := sortColumns[filter.SortBy]
	if !ok {
		column = "created_at"
	}
	direction := "ASC"
	if filter.SortDesc {
		direction = "DESC"
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY %s %s, id ASC LIMIT %d OFFSET %d`,
		ticketColumns, strings.Join(clauses, " AND "), column, direction, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tickets, err := scanTickets(rows)
	if err != nil {
		return nil, err
	}
	return tickets, r.attachReplies(ctx, tickets)
}

func (r *ticketRepository) ListByStatus(ctx context.Context, status domain.TicketStatus) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE status=$1 ORDER BY created_at DESC, id ASC`
	rows, err := r.pool.Query(ctx, query, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tickets, err := scanTickets(rows)
	if err != nil {
		return nil, err
	}
	return tickets, r.attachReplies(ctx, tickets)
}

func (r *ticketRepository) Count(ctx context.Context, filter ListFilter) (int64, error) {
	clauses, args := filterClauses(filter)
	query := fmt.Sprintf(`SELECT COUNT(*) FROM tickets WHERE %s`, strings.Join(clauses, " AND "))
	var count int64
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *ticketRepository) CountByCategory(ctx context.Context, filter ListFilter) ([]KeyCount, error) {
	return r.countGrouped(ctx, "category", filter)
}

func (r *ticketRepository) CountByStatus(ctx context.Context, filter ListFilter) ([]KeyCount, error) {
	return r.countGrouped(ctx, "status", filter)
}

func (r *ticketRepository) countGrouped(ctx context.Context, column string, filter ListFilter) ([]KeyCount, error) {
	clauses, args := filterClauses(filter)
	query := fmt.Sprintf(`SELECT %s, COUNT(*) FROM tickets WHERE %s GROUP BY %s`,
		column, strings.Join(clauses, " AND "), column)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []KeyCount{}
	for rows.Next() {
		var kc KeyCount
		if err := rows.Scan(&kc.Key, &kc.Count); err != nil {
			return nil, err
		}
		result = append(result, kc)
	}
	return result, rows.Err()
}

func filterClauses(filter ListFilter) ([]string, []any) {
	clauses := []string{"1=1"}
	args := []any{}
	if filter.Category != nil {
		args = append(args, *filter.Category)
		clauses = append(clauses, fmt.Sprintf("category=$%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		clauses = append(clauses, fmt.Sprintf("status=$%d", len(args)))
	}
	return clauses, args
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&ticket.ID,
		&ticket.Title,
		&ticket.Description,
		&ticket.Category,
		&ticket.SubCategory,
		&ticket.Coordinates.X,
		&ticket.Coordinates.Y,
		&ticket.Coordinates.Z,
		&ticket.Status,
		&ticket.Views,
		&ticket.CreatedAt,
		&ticket.UserIP,
		&ticket.IPLocation,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

// attachReplies loads the reply threads for a page of tickets in one query.
func (r *ticketRepository) attachReplies(ctx context.Context, tickets []domain.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}

	ids := make([]string, 0, len(tickets))
	byID := make(map[string]*domain.Ticket, len(tickets))
	for i := range tickets {
		ids = append(ids, tickets[i].ID)
		byID[tickets[i].ID] = &tickets[i]
	}

	const query = `
        SELECT id, ticket_id, message, user_name, ip, ip_location, created_at
        FROM ticket_replies WHERE ticket_id = ANY($1) ORDER BY created_at ASC, id ASC`
	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var reply domain.Reply
		if err := rows.Scan(
			&reply.ID,
			&reply.TicketID,
			&reply.Message,
			&reply.User,
			&reply.IP,
			&reply.IPLocation,
			&reply.Timestamp,
		); err != nil {
			return err
		}
		if ticket, ok := byID[reply.TicketID]; ok {
			ticket.Replies = append(ticket.Replies, reply)
		}
	}
	return rows.Err()
}

func (r *ticketRepository) listReplies(ctx context.Context, ticketID string) ([]domain.Reply, error) {
	const query = `
        SELECT id, ticket_id, message, user_name, ip, ip_location, created_at
        FROM ticket_replies WHERE ticket_id=$1 ORDER BY created_at ASC, id ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Reply
	for rows.Next() {
		var reply domain.Reply
		if err := rows.Scan(
			&reply.ID,
			&reply.TicketID,
			&reply.Message,
			&reply.User,
			&reply.IP,
			&reply.IPLocation,
			&reply.Timestamp,
		); err != nil {
			return nil, err
		}
		result = append(result, reply)
	}
	return result, rows.Err()
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(
			&ticket.ID,
			&ticket.Title,
			&ticket.Description,
			&ticket.Category,
			&ticket.SubCategory,
			&ticket.Coordinates.X,
			&ticket.Coordinates.Y,
			&ticket.Coordinates.Z,
			&ticket.Status,
			&ticket.Views,
			&ticket.CreatedAt,
			&ticket.UserIP,
			&ticket.IPLocation,
		); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}
