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

type firestoreConversationRepository struct {
	client *firestore.Client
}

func NewFirestoreConversationRepository(client *firestore.Client) repository.ConversationRepository {
	return &firestoreConversationRepository{
		client: client,
	}
}

func (r *firestoreConversationRepository) Create(ctx context.Context, conv *entity.Conversation) error {
	if conv.ID == "" {
		conv.ID = uuid.New().String()
	}
	now := time.Now()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	conv.UpdatedAt = now

	_, err := r.client.Collection("conversations").Doc(conv.ID).Set(ctx, conv)
	if err != nil {
		return errors.StoreUnavailable("Failed to create conversation", err)
	}
	return nil
}

func (r *firestoreConversationRepository) GetByID(ctx context.Context, id string) (*entity.Conversation, error) {
	doc, err := r.client.Collection("conversations").Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Conversation", err)
		}
		return nil, errors.StoreUnavailable("Failed to get conversation", err)
	}

	var conv entity.Conversation
	if err := doc.DataTo(&conv); err != nil {
		return nil, errors.Internal("Failed to parse conversation data", err)
	}
	return &conv, nil
}

func (r *firestoreConversationRepository) GetByPair(ctx context.Context, customerID, adminID string) (*entity.Conversation, error) {
	iter := r.client.Collection("conversations").
		Where("type", "==", entity.ConversationTypeIndividual).
		Where("customerId", "==", customerID).
		Where("adminId", "==", adminID).
		Limit(1).
		Documents(ctx)
	doc, err := iter.Next()
	if err == iterator.Done {
		return nil, errors.NotFound("Conversation", nil)
	}
	if err != nil {
		return nil, errors.StoreUnavailable("Failed to query conversations", err)
	}

	var conv entity.Conversation
	if err := doc.DataTo(&conv); err != nil {
		return nil, errors.Internal("Failed to parse conversation data", err)
	}
	return &conv, nil
}

func (r *firestoreConversationRepository) GetByGroupID(ctx context.Context, groupID string) (*entity.Conversation, error) {
	iter := r.client.Collection("conversations").Where("groupId", "==", groupID).Limit(1).Documents(ctx)
	doc, err := iter.Next()
	if err == iterator.Done {
		return nil, errors.NotFound("Conversation", nil)
	}
	if err != nil {
		return nil, errors.StoreUnavailable("Failed to query conversations", err)
	}

	var conv entity.Conversation
	if err := doc.DataTo(&conv); err != nil {
		return nil, errors.Internal("Failed to parse conversation data", err)
	}
	return &conv, nil
}

func (r *firestoreConversationRepository) SetBlocked(ctx context.Context, id string, blocked bool, by string, at time.Time) error {
	_, err := r.client.Collection("conversations").Doc(id).Update(ctx, []firestore.Update{
		{Path: "isBlocked", Value: blocked},
		{Path: "blockedBy", Value: by},
		{Path: "blockedAt", Value: at},
		{Path: "updatedAt", Value: time.Now()},
	})
	if err != nil {
		return errors.StoreUnavailable("Failed to update conversation block state", err)
	}
	return nil
}

func (r *firestoreConversationRepository) IncrementUnread(ctx context.Context, id, viewerID string, delta int) error {
	// The map key travels as a FieldPath element so ids never split on dots.
	_, err := r.client.Collection("conversations").Doc(id).Update(ctx, []firestore.Update{
		{FieldPath: firestore.FieldPath{"unreadCount", viewerID}, Value: firestore.Increment(delta)},
		{Path: "updatedAt", Value: time.Now()},
	})
	if err != nil {
		return errors.StoreUnavailable("Failed to update unread counter", err)
	}
	return nil
}

func (r *firestoreConversationRepository) ResetUnread(ctx context.Context, id, viewerID string) error {
	_, err := r.client.Collection("conversations").Doc(id).Update(ctx, []firestore.Update{
		{FieldPath: firestore.FieldPath{"unreadCount", viewerID}, Value: 0},
		{Path: "updatedAt", Value: time.Now()},
	})
	if err != nil {
		return errors.StoreUnavailable("Failed to reset unread counter", err)
	}
	return nil
}

func (r *firestoreConversationRepository) IncrementGroupUnread(ctx context.Context, id string, delta int) error {
	if delta >= 0 {
		_, err := r.client.Collection("conversations").Doc(id).Update(ctx, []firestore.Update{
			{Path: "groupUnread", Value: firestore.Increment(delta)},
			{Path: "updatedAt", Value: time.Now()},
		})
		if err != nil {
			return errors.StoreUnavailable("Failed to update group unread counter", err)
		}
		return nil
	}

	// Decrements floor at zero, which a blind increment cannot guarantee.
	ref := r.client.Collection("conversations").Doc(id)
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var conv entity.Conversation
		if err := doc.DataTo(&conv); err != nil {
			return err
		}
		next := conv.GroupUnread + delta
		if next < 0 {
			next = 0
		}
		return tx.Update(ref, []firestore.Update{
			{Path: "groupUnread", Value: next},
			{Path: "updatedAt", Value: time.Now()},
		})
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return errors.NotFound("Conversation", err)
		}
		return errors.StoreUnavailable("Failed to update group unread counter", err)
	}
	return nil
}

func (r *firestoreConversationRepository) SetLastMessage(ctx context.Context, id, preview string, at time.Time) error {
	_, err := r.client.Collection("conversations").Doc(id).Update(ctx, []firestore.Update{
		{Path: "lastMessage", Value: preview},
		{Path: "lastMessageAt", Value: at},
		{Path: "updatedAt", Value: at},
	})
	if err != nil {
		return errors.StoreUnavailable("Failed to update conversation preview", err)
	}
	return nil
}

func (r *firestoreConversationRepository) SetGroupMeta(ctx context.Context, id, groupName string, memberCount int) error {
	_, err := r.client.Collection("conversations").Doc(id).Update(ctx, []firestore.Update{
		{Path: "groupName", Value: groupName},
		{Path: "memberCount", Value: memberCount},
		{Path: "updatedAt", Value: time.Now()},
	})
	if err != nil {
		return errors.StoreUnavailable("Failed to update conversation metadata", err)
	}
	return nil
}

func (r *firestoreConversationRepository) Delete(ctx context.Context, id string) error {
	_, err := r.client.Collection("conversations").Doc(id).Delete(ctx)
	if err != nil {
		return errors.StoreUnavailable("Failed to delete conversation", err)
	}
	return nil
}

func (r *firestoreConversationRepository) ListFor(ctx context.Context, userID string) ([]*entity.Conversation, error) {
	var convs []*entity.Conversation
	// Firestore has no OR queries across fields; run one query per side.
	for _, field := range []string{"customerId", "adminId"} {
		iter := r.client.Collection("conversations").
			Where("type", "==", entity.ConversationTypeIndividual).
			Where(field, "==", userID).
			Documents(ctx)
		for {
			doc, err := iter.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				return nil, errors.StoreUnavailable("Failed to iterate conversations", err)
			}

			var conv entity.Conversation
			if err := doc.DataTo(&conv); err != nil {
				return nil, errors.Internal("Failed to parse conversation data", err)
			}
			convs = append(convs, &conv)
		}
	}
	return convs, nil
}
