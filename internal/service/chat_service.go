package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/maplebug/helpdesk/internal/domain"
	"github.com/maplebug/helpdesk/internal/repository"
	"github.com/maplebug/helpdesk/internal/sanitize"
	apperrors "github.com/maplebug/helpdesk/pkg/util"
)

// ChatService manages the shared chat room backlog that the polling client
// reads.
type ChatService struct {
	messages repository.ChatRepository
	pageSize int64
}

// NewChatService constructs the service.
func NewChatService(messages repository.ChatRepository, pageSize int64) *ChatService {
	if pageSize <= 0 {
		pageSize = 50
	}
	return &ChatService{messages: messages, pageSize: pageSize}
}

// Post stores a new chat message. The message body passes through the
// sanitization gate like ticket replies do.
func (s *ChatService) Post(ctx context.Context, username, message string) (*domain.ChatMessage, error) {
	if strings.TrimSpace(username) == "" {
		return nil, apperrors.NewValidationError("username required", nil)
	}
	if strings.TrimSpace(message) == "" {
		return nil, apperrors.NewValidationError("message required", nil)
	}

	msg := &domain.ChatMessage{
		ID:        uuid.NewString(),
		Username:  username,
		Message:   sanitize.Clean(message),
		CreatedAt: time.Now(),
	}
	if err := s.messages.Append(ctx, msg); err != nil {
		return nil, apperrors.NewStorageError(err)
	}
	return msg, nil
}

// List returns one page of the backlog, newest first. The polling client
// passes the number of messages it already holds as the offset.
func (s *ChatService) List(ctx context.Context, offset int64) ([]domain.ChatMessage, error) {
	msgs, err := s.messages.List(ctx, offset, s.pageSize)
	if err != nil {
		return nil, apperrors.NewStorageError(err)
	}
	return msgs, nil
}
