package repository

import (
	"context"

	"fleetchat/internal/domain/entity"
)

type MessageRepository interface {
	Create(ctx context.Context, msg *entity.Message) error
	GetByID(ctx context.Context, id string) (*entity.Message, error)
	Delete(ctx context.Context, id string) error
	DeleteByConversation(ctx context.Context, conversationID string) error

	// ListByConversation returns messages newest-first, offset paginated,
	// plus whether older ones remain past the page.
	ListByConversation(ctx context.Context, conversationID string, limit, offset int) ([]*entity.Message, bool, error)

	MarkRead(ctx context.Context, conversationID, readerID string) (int, error)
}
