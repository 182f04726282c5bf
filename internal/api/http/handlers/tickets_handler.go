package handlers

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/maplebug/helpdesk/internal/api/dto"
	"github.com/maplebug/helpdesk/internal/domain"
	"github.com/maplebug/helpdesk/internal/service"
	apperrors "github.com/maplebug/helpdesk/pkg/util"
)

// TicketsHandler manages ticket endpoints.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// List GET /tickets.
func (h *TicketsHandler) List(c *fiber.Ctx) error {
	result, err := h.service.List(c.UserContext(), parseListQuery(c))
	if err != nil {
		return err
	}
	return c.JSON(dto.ListTicketsResponse{
		TopTickets: dto.NewTicketResponses(result.Pinned),
		Tickets:    dto.NewTicketResponses(result.Tickets),
		TotalPages: result.TotalPages,
		Categories: dto.NewCategoryCounts(result.Categories),
		Statuses:   dto.NewStatusCounts(result.Statuses),
	})
}

// Create POST /tickets.
func (h *TicketsHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	input := service.TicketCreateInput{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		SubCategory: req.SubCategory,
		CreatedAt:   req.CreatedAt,
		RequestIP:   clientIP(c),
	}
	if req.Coordinates != nil {
		input.Coordinates = *req.Coordinates
	}

	ticket, err := h.service.Create(c.UserContext(), input)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(dto.NewTicketResponse(ticket))
}

// Get GET /tickets/:id.
func (h *TicketsHandler) Get(c *fiber.Ctx) error {
	ticket, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(dto.NewTicketResponse(ticket))
}

// IncrementViews PATCH /tickets/:id/views.
func (h *TicketsHandler) IncrementViews(c *fiber.Ctx) error {
	ticket, err := h.service.IncrementViews(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(dto.NewTicketResponse(ticket))
}

// AddReply POST /tickets/:id/replies.
func (h *TicketsHandler) AddReply(c *fiber.Ctx) error {
	var req dto.CreateReplyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	ticket, err := h.service.AppendReply(c.UserContext(), c.Params("id"), req.Reply, req.User, clientIP(c))
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(dto.NewTicketResponse(ticket))
}

// DeleteReply DELETE /tickets/:id/replies/:replyId.
func (h *TicketsHandler) DeleteReply(c *fiber.Ctx) error {
	if err := h.service.DeleteReply(c.UserContext(), c.Params("id"), c.Params("replyId")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "reply deleted"})
}

// UpdateStatus PATCH /tickets/:id/status.
func (h *TicketsHandler) UpdateStatus(c *fiber.Ctx) error {
	var req dto.UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	var status *domain.TicketStatus
	if req.Status != nil {
		s := domain.TicketStatus(*req.Status)
		status = &s
	}

	ticket, err := h.service.UpdateStatus(c.UserContext(), c.Params("id"), status)
	if err != nil {
		return err
	}
	return c.JSON(dto.NewTicketResponse(ticket))
}

// Delete DELETE /tickets/:id.
func (h *TicketsHandler) Delete(c *fiber.Ctx) error {
	if err := h.service.Delete(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "ticket deleted"})
}

func parseListQuery(c *fiber.Ctx) service.ListInput {
	return service.ListInput{
		Category: c.Query("category"),
		Status:   c.Query("status"),
		Page:     parseInt(c.Query("page"), 1),
		PageSize: parseInt(c.Query("limit"), 10),
		SortBy:   c.Query("sortBy", "createdAt"),
		SortDesc: c.Query("sort", "desc") != "asc",
	}
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
