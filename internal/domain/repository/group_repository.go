package repository

import (
	"context"

	"fleetchat/internal/domain/entity"
)

type GroupRepository interface {
	Create(ctx context.Context, group *entity.Group) error
	GetByID(ctx context.Context, id string) (*entity.Group, error)
	Update(ctx context.Context, group *entity.Group) error
	Delete(ctx context.Context, id string) error
	ListByCreator(ctx context.Context, creatorID string) ([]*entity.Group, error)

	// Partial updates so membership churn and renames do not race through
	// whole-document writes.
	IncrementMemberCount(ctx context.Context, id string, delta int) error
	SetInfo(ctx context.Context, id, name, description string) error
	Deactivate(ctx context.Context, id string) error

	AddMember(ctx context.Context, member *entity.GroupMember) error
	GetMember(ctx context.Context, groupID, memberID string) (*entity.GroupMember, error)
	RemoveMember(ctx context.Context, groupID, memberID string) error
	ListMembers(ctx context.Context, groupID string) ([]*entity.GroupMember, error)
	ListGroupsFor(ctx context.Context, memberID string) ([]*entity.GroupMember, error)
	RemoveAllMembers(ctx context.Context, groupID string) error
}
