package repository

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/maplebug/helpdesk/internal/domain"
)

const chatKey = "chat:messages"

// ChatRepository stores the chat room backlog. Messages are kept
// newest-first in a capped list; history beyond the cap is dropped.
type ChatRepository interface {
	Append(ctx context.Context, msg *domain.ChatMessage) error
	List(ctx context.Context, offset, count int64) ([]domain.ChatMessage, error)
}

type chatRepository struct {
	client  *redis.Client
	maxSize int64
}

// NewChatRepository returns a Redis-backed implementation capped at maxSize
// messages.
func NewChatRepository(client *redis.Client, maxSize int64) ChatRepository {
	if maxSize <= 0 {
		maxSize = 500
	}
	return &chatRepository{client: client, maxSize: maxSize}
}

func (r *chatRepository) Append(ctx context.Context, msg *domain.ChatMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, chatKey, payload)
	pipe.LTrim(ctx, chatKey, 0, r.maxSize-1)
	_, err = pipe.Exec(ctx)
	return err
}

// List returns up to count messages starting at offset, newest first.
func (r *chatRepository) List(ctx context.Context, offset, count int64) ([]domain.ChatMessage, error) {
	if offset < 0 {
		offset = 0
	}
	if count <= 0 {
		count = 50
	}
	raw, err := r.client.LRange(ctx, chatKey, offset, offset+count-1).Result()
	if err != nil {
		return nil, err
	}

	result := make([]domain.ChatMessage, 0, len(raw))
	for _, item := range raw {
		var msg domain.ChatMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			// skip entries written by older builds
			continue
		}
		result = append(result, msg)
	}
	return result, nil
}
