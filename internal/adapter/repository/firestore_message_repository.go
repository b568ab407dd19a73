package repository

import (
	"context"
	"log"
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

type firestoreMessageRepository struct {
	client *firestore.Client
}

func NewFirestoreMessageRepository(client *firestore.Client) repository.MessageRepository {
	return &firestoreMessageRepository{
		client: client,
	}
}

func (r *firestoreMessageRepository) Create(ctx context.Context, msg *entity.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	_, err := r.client.Collection("messages").Doc(msg.ID).Set(ctx, msg)
	if err != nil {
		return errors.StoreUnavailable("Failed to create message", err)
	}
	return nil
}

func (r *firestoreMessageRepository) GetByID(ctx context.Context, id string) (*entity.Message, error) {
	doc, err := r.client.Collection("messages").Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Message", err)
		}
		return nil, errors.StoreUnavailable("Failed to get message", err)
	}

	var msg entity.Message
	if err := doc.DataTo(&msg); err != nil {
		return nil, errors.Internal("Failed to parse message data", err)
	}
	return &msg, nil
}

func (r *firestoreMessageRepository) Delete(ctx context.Context, id string) error {
	_, err := r.client.Collection("messages").Doc(id).Delete(ctx)
	if err != nil {
		return errors.StoreUnavailable("Failed to delete message", err)
	}
	return nil
}

func (r *firestoreMessageRepository) DeleteByConversation(ctx context.Context, conversationID string) error {
	iter := r.client.Collection("messages").Where("conversationId", "==", conversationID).Documents(ctx)
	batch := r.client.Batch()
	count := 0
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return errors.StoreUnavailable("Failed to iterate messages", err)
		}
		batch.Delete(doc.Ref)
		count++
	}
	if count == 0 {
		return nil
	}
	if _, err := batch.Commit(ctx); err != nil {
		return errors.StoreUnavailable("Failed to delete messages", err)
	}
	return nil
}

func (r *firestoreMessageRepository) ListByConversation(ctx context.Context, conversationID string, limit, offset int) ([]*entity.Message, bool, error) {
	query := r.client.Collection("messages").
		Where("conversationId", "==", conversationID).
		OrderBy("createdAt", firestore.Desc)

	countDocs, err := query.Documents(ctx).GetAll()
	if err != nil {
		log.Printf("Firestore error while counting messages for conversation %s: %v", conversationID, err)
		return nil, false, errors.StoreUnavailable("Failed to count messages", err)
	}
	total := len(countDocs)

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	iter := query.Documents(ctx)
	var messages []*entity.Message
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, false, errors.StoreUnavailable("Failed to iterate messages", err)
		}

		var msg entity.Message
		if err := doc.DataTo(&msg); err != nil {
			return nil, false, errors.Internal("Failed to parse message data", err)
		}
		messages = append(messages, &msg)
	}

	return messages, offset+len(messages) < total, nil
}

func (r *firestoreMessageRepository) MarkRead(ctx context.Context, conversationID, readerID string) (int, error) {
	iter := r.client.Collection("messages").Where("conversationId", "==", conversationID).Documents(ctx)
	batch := r.client.Batch()
	marked := 0
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return 0, errors.StoreUnavailable("Failed to iterate messages", err)
		}

		var msg entity.Message
		if err := doc.DataTo(&msg); err != nil {
			return 0, errors.Internal("Failed to parse message data", err)
		}
		if msg.SenderID == readerID || hasReceipt(&msg, readerID) {
			continue
		}
		batch.Update(doc.Ref, []firestore.Update{
			{Path: "read", Value: true},
			{Path: "readBy", Value: firestore.ArrayUnion(entity.ReadReceipt{UserID: readerID, ReadAt: time.Now()})},
		})
		marked++
	}
	if marked == 0 {
		return 0, nil
	}
	if _, err := batch.Commit(ctx); err != nil {
		return 0, errors.StoreUnavailable("Failed to mark messages read", err)
	}
	return marked, nil
}

func hasReceipt(msg *entity.Message, readerID string) bool {
	for _, receipt := range msg.ReadBy {
		if receipt.UserID == readerID {
			return true
		}
	}
	return false
}
