package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"fleetchat/internal/domain/entity"
	"fleetchat/internal/domain/repository"
	"fleetchat/pkg/errors"
)

type firestoreGroupRepository struct {
	client *firestore.Client
}

func NewFirestoreGroupRepository(client *firestore.Client) repository.GroupRepository {
	return &firestoreGroupRepository{
		client: client,
	}
}

func (r *firestoreGroupRepository) Create(ctx context.Context, group *entity.Group) error {
	if group.ID == "" {
		group.ID = uuid.New().String()
	}
	now := time.Now()
	if group.CreatedAt.IsZero() {
		group.CreatedAt = now
	}
	group.UpdatedAt = now

	_, err := r.client.Collection("groups").Doc(group.ID).Set(ctx, group)
	if err != nil {
		return errors.StoreUnavailable("Failed to create group", err)
	}
	return nil
}

func (r *firestoreGroupRepository) GetByID(ctx context.Context, id string) (*entity.Group, error) {
	doc, err := r.client.Collection("groups").Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Group", err)
		}
		return nil, errors.StoreUnavailable("Failed to get group", err)
	}

	var group entity.Group
	if err := doc.DataTo(&group); err != nil {
		return nil, errors.Internal("Failed to parse group data", err)
	}
	return &group, nil
}

func (r *firestoreGroupRepository) Update(ctx context.Context, group *entity.Group) error {
	group.UpdatedAt = time.Now()
	_, err := r.client.Collection("groups").Doc(group.ID).Set(ctx, group)
	if err != nil {
		return errors.StoreUnavailable("Failed to update group", err)
	}
	return nil
}

func (r *firestoreGroupRepository) IncrementMemberCount(ctx context.Context, id string, delta int) error {
	_, err := r.client.Collection("groups").Doc(id).Update(ctx, []firestore.Update{
		{Path: "memberCount", Value: firestore.Increment(delta)},
		{Path: "updatedAt", Value: time.Now()},
	})
	if err != nil {
		return errors.StoreUnavailable("Failed to update group member count", err)
	}
	return nil
}

func (r *firestoreGroupRepository) SetInfo(ctx context.Context, id, name, description string) error {
	_, err := r.client.Collection("groups").Doc(id).Update(ctx, []firestore.Update{
		{Path: "name", Value: name},
		{Path: "description", Value: description},
		{Path: "updatedAt", Value: time.Now()},
	})
	if err != nil {
		return errors.StoreUnavailable("Failed to update group info", err)
	}
	return nil
}

func (r *firestoreGroupRepository) Deactivate(ctx context.Context, id string) error {
	_, err := r.client.Collection("groups").Doc(id).Update(ctx, []firestore.Update{
		{Path: "isActive", Value: false},
		{Path: "updatedAt", Value: time.Now()},
	})
	if err != nil {
		return errors.StoreUnavailable("Failed to deactivate group", err)
	}
	return nil
}

func (r *firestoreGroupRepository) Delete(ctx context.Context, id string) error {
	_, err := r.client.Collection("groups").Doc(id).Delete(ctx)
	if err != nil {
		return errors.StoreUnavailable("Failed to delete group", err)
	}
	return nil
}

func (r *firestoreGroupRepository) ListByCreator(ctx context.Context, creatorID string) ([]*entity.Group, error) {
	iter := r.client.Collection("groups").Where("createdBy", "==", creatorID).Documents(ctx)
	var groups []*entity.Group
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.StoreUnavailable("Failed to iterate groups", err)
		}

		var group entity.Group
		if err := doc.DataTo(&group); err != nil {
			return nil, errors.Internal("Failed to parse group data", err)
		}
		groups = append(groups, &group)
	}
	return groups, nil
}

func (r *firestoreGroupRepository) AddMember(ctx context.Context, member *entity.GroupMember) error {
	if member.ID == "" {
		member.ID = uuid.New().String()
	}
	if member.JoinedAt.IsZero() {
		member.JoinedAt = time.Now()
	}

	_, err := r.client.Collection("group_members").Doc(member.ID).Set(ctx, member)
	if err != nil {
		return errors.StoreUnavailable("Failed to add group member", err)
	}
	return nil
}

func (r *firestoreGroupRepository) GetMember(ctx context.Context, groupID, memberID string) (*entity.GroupMember, error) {
	iter := r.client.Collection("group_members").
		Where("groupId", "==", groupID).
		Where("memberId", "==", memberID).
		Limit(1).
		Documents(ctx)
	doc, err := iter.Next()
	if err == iterator.Done {
		return nil, errors.NotFound("Group member", nil)
	}
	if err != nil {
		return nil, errors.StoreUnavailable("Failed to query group members", err)
	}

	var member entity.GroupMember
	if err := doc.DataTo(&member); err != nil {
		return nil, errors.Internal("Failed to parse group member data", err)
	}
	return &member, nil
}

func (r *firestoreGroupRepository) RemoveMember(ctx context.Context, groupID, memberID string) error {
	member, err := r.GetMember(ctx, groupID, memberID)
	if err != nil {
		return err
	}
	_, err = r.client.Collection("group_members").Doc(member.ID).Delete(ctx)
	if err != nil {
		return errors.StoreUnavailable("Failed to remove group member", err)
	}
	return nil
}

func (r *firestoreGroupRepository) ListMembers(ctx context.Context, groupID string) ([]*entity.GroupMember, error) {
	return r.listMembersBy(ctx, "groupId", groupID)
}

func (r *firestoreGroupRepository) ListGroupsFor(ctx context.Context, memberID string) ([]*entity.GroupMember, error) {
	return r.listMembersBy(ctx, "memberId", memberID)
}

func (r *firestoreGroupRepository) listMembersBy(ctx context.Context, field, value string) ([]*entity.GroupMember, error) {
	iter := r.client.Collection("group_members").Where(field, "==", value).Documents(ctx)
	var members []*entity.GroupMember
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.StoreUnavailable("Failed to iterate group members", err)
		}

		var member entity.GroupMember
		if err := doc.DataTo(&member); err != nil {
			return nil, errors.Internal("Failed to parse group member data", err)
		}
		members = append(members, &member)
	}
	return members, nil
}

func (r *firestoreGroupRepository) RemoveAllMembers(ctx context.Context, groupID string) error {
	members, err := r.ListMembers(ctx, groupID)
	if err != nil {
		return err
	}
	batch := r.client.Batch()
	for _, member := range members {
		batch.Delete(r.client.Collection("group_members").Doc(member.ID))
	}
	if len(members) == 0 {
		return nil
	}
	if _, err := batch.Commit(ctx); err != nil {
		return errors.StoreUnavailable("Failed to remove group members", err)
	}
	return nil
}
