package repository

import (
	"context"

	"fleetchat/internal/domain/entity"
)

type UserRepository interface {
	Create(ctx context.Context, user *entity.User) error
	GetByID(ctx context.Context, id string) (*entity.User, error)
	GetByUsername(ctx context.Context, username string) (*entity.User, error)
	GetByPhone(ctx context.Context, phone string) (*entity.User, error)
	Update(ctx context.Context, user *entity.User) error

	// Partial updates used on hot paths so concurrent field writes do not
	// clobber each other.
	SetPresence(ctx context.Context, id string, online bool) error
	SetPushToken(ctx context.Context, id string, token string) error
	ClearPushToken(ctx context.Context, id string) error

	ListByRole(ctx context.Context, role string) ([]*entity.User, error)
}
