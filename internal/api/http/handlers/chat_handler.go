package handlers

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/maplebug/helpdesk/internal/api/dto"
	"github.com/maplebug/helpdesk/internal/service"
	apperrors "github.com/maplebug/helpdesk/pkg/util"
)

// ChatHandler exposes the chat room backlog to the polling client.
type ChatHandler struct {
	chat *service.ChatService
}

// NewChatHandler constructs handler.
func NewChatHandler(chatService *service.ChatService) *ChatHandler {
	return &ChatHandler{chat: chatService}
}

// ListMessages GET /chat/messages?offset=.
func (h *ChatHandler) ListMessages(c *fiber.Ctx) error {
	offset, err := strconv.ParseInt(c.Query("offset", "0"), 10, 64)
	if err != nil || offset < 0 {
		offset = 0
	}
	msgs, err := h.chat.List(c.UserContext(), offset)
	if err != nil {
		return err
	}
	return c.JSON(msgs)
}

// PostMessage POST /chat/messages.
func (h *ChatHandler) PostMessage(c *fiber.Ctx) error {
	var req dto.PostChatMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	msg, err := h.chat.Post(c.UserContext(), req.Username, req.Message)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(msg)
}
