package repository

import (
	"context"
	"time"

	"fleetchat/internal/domain/entity"
)

type ConversationRepository interface {
	Create(ctx context.Context, conv *entity.Conversation) error
	GetByID(ctx context.Context, id string) (*entity.Conversation, error)
	GetByPair(ctx context.Context, customerID, adminID string) (*entity.Conversation, error)
	GetByGroupID(ctx context.Context, groupID string) (*entity.Conversation, error)
	Delete(ctx context.Context, id string) error

	// Counter and preview writes are field-level so concurrent senders and
	// readers never clobber each other through whole-document updates.
	IncrementUnread(ctx context.Context, id, viewerID string, delta int) error
	ResetUnread(ctx context.Context, id, viewerID string) error
	// IncrementGroupUnread floors the aggregate at zero on decrements.
	IncrementGroupUnread(ctx context.Context, id string, delta int) error
	SetLastMessage(ctx context.Context, id, preview string, at time.Time) error
	SetGroupMeta(ctx context.Context, id, groupName string, memberCount int) error
	SetBlocked(ctx context.Context, id string, blocked bool, by string, at time.Time) error

	// ListFor returns every conversation userID participates in.
	// Ordering is applied by the caller.
	ListFor(ctx context.Context, userID string) ([]*entity.Conversation, error)
}
