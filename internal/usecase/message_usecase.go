package usecase

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"fleetchat/internal/domain/entity"
	"fleetchat/internal/domain/repository"
	"fleetchat/internal/domain/service"
	"fleetchat/internal/infrastructure/presence"
	"fleetchat/pkg/errors"
)

// UnreadPolicy decides how a send moves unread counters. Kept as data so the
// per-conversation-type behavior is visible and swappable in tests.
type UnreadPolicy struct {
	// IndividualResetRole names the sender role whose own counter resets on
	// send; the recipient counter always increments. Replying implies the
	// customer caught up, so the default resets on customer sends.
	IndividualResetRole string
	// GroupIncrementPerMember increments the group aggregate once per
	// non-sender member.
	GroupIncrementPerMember bool
}

func DefaultUnreadPolicy() UnreadPolicy {
	return UnreadPolicy{
		IndividualResetRole:     entity.RoleCustomer,
		GroupIncrementPerMember: true,
	}
}

type MessageInput struct {
	Type     string                 `json:"type" validate:"required"`
	Text     string                 `json:"text"`
	File     *entity.FileAttachment `json:"file"`
	Location *entity.GeoPoint       `json:"location"`
	Link     *entity.LinkPreview    `json:"link"`
}

// MessageUseCase routes messages: validate, persist, update aggregates, fan
// out to live connections, push-notify, refresh directories. Persistence
// failures abort everything after them; delivery failures never do.
type MessageUseCase struct {
	userRepo    repository.UserRepository
	convRepo    repository.ConversationRepository
	groupRepo   repository.GroupRepository
	messageRepo repository.MessageRepository
	registry    *presence.Registry
	broadcaster Broadcaster
	dispatcher  service.NotificationDispatcher
	directory   *DirectoryUseCase
	policy      UnreadPolicy
	brandTitle  string
}

func NewMessageUseCase(
	userRepo repository.UserRepository,
	convRepo repository.ConversationRepository,
	groupRepo repository.GroupRepository,
	messageRepo repository.MessageRepository,
	registry *presence.Registry,
	broadcaster Broadcaster,
	dispatcher service.NotificationDispatcher,
	directory *DirectoryUseCase,
	policy UnreadPolicy,
	brandTitle string,
) *MessageUseCase {
	return &MessageUseCase{
		userRepo:    userRepo,
		convRepo:    convRepo,
		groupRepo:   groupRepo,
		messageRepo: messageRepo,
		registry:    registry,
		broadcaster: broadcaster,
		dispatcher:  dispatcher,
		directory:   directory,
		policy:      policy,
		brandTitle:  brandTitle,
	}
}

// SendToConversation routes a message in an individual conversation.
func (uc *MessageUseCase) SendToConversation(ctx context.Context, senderID, conversationID string, input MessageInput) (*entity.Message, error) {
	conv, err := uc.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, errors.NotFound("Conversation", err)
	}
	if conv.Type != entity.ConversationTypeIndividual {
		return nil, errors.Validation("Not an individual conversation", nil)
	}
	if senderID != conv.CustomerID && senderID != conv.AdminID {
		return nil, errors.Forbidden("Not a participant in this conversation", nil)
	}
	if conv.IsBlocked {
		return nil, errors.Forbidden("Conversation is blocked", nil)
	}

	sender, err := uc.userRepo.GetByID(ctx, senderID)
	if err != nil {
		return nil, errors.NotFound("Sender", err)
	}

	msg, err := uc.buildMessage(sender, conv.ID, "", input)
	if err != nil {
		return nil, err
	}
	if err := uc.messageRepo.Create(ctx, msg); err != nil {
		log.Printf("SendMessage Error: %v", err)
		return nil, errors.StoreUnavailable("Failed to store message", err)
	}

	// Message is durable past this point; aggregate drift is logged, not
	// fatal. Counters move through atomic field increments so concurrent
	// sends never lose each other's updates.
	recipientID := conv.OtherParty(senderID)
	uc.applyIndividualUnread(ctx, conv.ID, sender, recipientID)
	if err := uc.convRepo.SetLastMessage(ctx, conv.ID, msg.Preview(), msg.CreatedAt); err != nil {
		log.Printf("SendMessage Error: %v", err)
	}

	if frame := event("new_message", map[string]interface{}{"message": msg}); frame != nil {
		uc.broadcaster.SendToUsers([]string{conv.CustomerID, conv.AdminID}, frame)
	}

	uc.notifyRecipient(ctx, recipientID, sender, msg, "")
	uc.directory.PushTo(ctx, conv.CustomerID, conv.AdminID)
	return msg, nil
}

// SendToGroup routes a message to every member of a group.
func (uc *MessageUseCase) SendToGroup(ctx context.Context, senderID, groupID string, input MessageInput) (*entity.Message, error) {
	group, err := uc.groupRepo.GetByID(ctx, groupID)
	if err != nil {
		return nil, errors.NotFound("Group", err)
	}
	// Deactivation is terminal; a group mid-deletion takes no new messages.
	if !group.IsActive {
		return nil, errors.NotFound("Group", nil)
	}
	if _, err := uc.groupRepo.GetMember(ctx, groupID, senderID); err != nil {
		return nil, errors.Forbidden("Not a member of this group", err)
	}
	members, err := uc.groupRepo.ListMembers(ctx, groupID)
	if err != nil {
		log.Printf("SendGroupMessage Error: %v", err)
		return nil, errors.StoreUnavailable("Failed to list group members", err)
	}
	conv, err := uc.convRepo.GetByGroupID(ctx, groupID)
	if err != nil {
		return nil, errors.NotFound("Group conversation", err)
	}

	sender, err := uc.userRepo.GetByID(ctx, senderID)
	if err != nil {
		return nil, errors.NotFound("Sender", err)
	}

	msg, err := uc.buildMessage(sender, conv.ID, groupID, input)
	if err != nil {
		return nil, err
	}
	if err := uc.messageRepo.Create(ctx, msg); err != nil {
		log.Printf("SendGroupMessage Error: %v", err)
		return nil, errors.StoreUnavailable("Failed to store message", err)
	}

	if uc.policy.GroupIncrementPerMember && len(members) > 1 {
		if err := uc.convRepo.IncrementGroupUnread(ctx, conv.ID, len(members)-1); err != nil {
			log.Printf("SendGroupMessage Error: %v", err)
		}
	}
	if err := uc.convRepo.SetLastMessage(ctx, conv.ID, sender.DisplayName()+": "+msg.Preview(), msg.CreatedAt); err != nil {
		log.Printf("SendGroupMessage Error: %v", err)
	}

	memberIDs := make([]string, 0, len(members))
	for _, member := range members {
		memberIDs = append(memberIDs, member.MemberID)
	}
	if frame := event("new_group_message", map[string]interface{}{"message": msg, "group_id": groupID}); frame != nil {
		uc.broadcaster.SendToUsers(memberIDs, frame)
	}

	for _, member := range members {
		if member.MemberID == senderID {
			continue
		}
		uc.notifyRecipient(ctx, member.MemberID, sender, msg, group.Name)
	}
	uc.directory.PushTo(ctx, memberIDs...)
	return msg, nil
}

// GetMessages returns a page of an individual conversation's history,
// newest first.
func (uc *MessageUseCase) GetMessages(ctx context.Context, callerID, conversationID string, limit, offset int) ([]*entity.Message, bool, error) {
	conv, err := uc.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, false, errors.NotFound("Conversation", err)
	}
	if callerID != conv.CustomerID && callerID != conv.AdminID {
		return nil, false, errors.Forbidden("Not a participant in this conversation", nil)
	}
	return uc.listMessages(ctx, conv.ID, limit, offset)
}

// GetGroupMessages returns a page of a group's history for a member.
func (uc *MessageUseCase) GetGroupMessages(ctx context.Context, callerID, groupID string, limit, offset int) ([]*entity.Message, bool, error) {
	if _, err := uc.groupRepo.GetMember(ctx, groupID, callerID); err != nil {
		return nil, false, errors.Forbidden("Not a member of this group", err)
	}
	conv, err := uc.convRepo.GetByGroupID(ctx, groupID)
	if err != nil {
		return nil, false, errors.NotFound("Group conversation", err)
	}
	return uc.listMessages(ctx, conv.ID, limit, offset)
}

// DeleteMessage removes one of the caller's own messages.
func (uc *MessageUseCase) DeleteMessage(ctx context.Context, callerID, messageID string) error {
	msg, err := uc.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return errors.NotFound("Message", err)
	}
	if msg.SenderID != callerID {
		return errors.Forbidden("Only the sender can delete a message", nil)
	}
	if err := uc.messageRepo.Delete(ctx, messageID); err != nil {
		log.Printf("DeleteMessage Error: %v", err)
		return errors.StoreUnavailable("Failed to delete message", err)
	}
	uc.emitDeleted(ctx, msg)
	return nil
}

// DeleteGroupMessage removes any message in a group the caller administers.
func (uc *MessageUseCase) DeleteGroupMessage(ctx context.Context, callerID, groupID, messageID string) error {
	member, err := uc.groupRepo.GetMember(ctx, groupID, callerID)
	if err != nil || !member.IsGroupAdmin {
		return errors.Forbidden("Only a group admin can delete group messages", err)
	}
	msg, err := uc.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return errors.NotFound("Message", err)
	}
	if msg.GroupID != groupID {
		return errors.NotFound("Message", nil)
	}
	if err := uc.messageRepo.Delete(ctx, messageID); err != nil {
		log.Printf("DeleteGroupMessage Error: %v", err)
		return errors.StoreUnavailable("Failed to delete message", err)
	}
	uc.emitDeleted(ctx, msg)
	return nil
}

// Typing relays a typing indicator to the individual conversation's peer.
func (uc *MessageUseCase) Typing(ctx context.Context, senderID, conversationID string, started bool) error {
	conv, err := uc.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return errors.NotFound("Conversation", err)
	}
	peer := conv.OtherParty(senderID)
	if peer == "" {
		return errors.Forbidden("Not a participant in this conversation", nil)
	}
	name := typingEvent(started)
	if frame := event(name, map[string]interface{}{
		"conversation_id": conversationID,
		"user_id":         senderID,
	}); frame != nil {
		uc.broadcaster.SendToUser(peer, frame)
	}
	return nil
}

// GroupTyping relays a typing indicator to all group members except sender.
func (uc *MessageUseCase) GroupTyping(ctx context.Context, senderID, groupID string, started bool) error {
	group, err := uc.groupRepo.GetByID(ctx, groupID)
	if err != nil {
		return errors.NotFound("Group", err)
	}
	if !group.IsActive {
		return errors.NotFound("Group", nil)
	}
	if _, err := uc.groupRepo.GetMember(ctx, groupID, senderID); err != nil {
		return errors.Forbidden("Not a member of this group", err)
	}
	members, err := uc.groupRepo.ListMembers(ctx, groupID)
	if err != nil {
		return errors.StoreUnavailable("Failed to list group members", err)
	}
	name := "group_" + typingEvent(started)
	frame := event(name, map[string]interface{}{
		"group_id": groupID,
		"user_id":  senderID,
	})
	if frame == nil {
		return nil
	}
	for _, member := range members {
		if member.MemberID != senderID {
			uc.broadcaster.SendToUser(member.MemberID, frame)
		}
	}
	return nil
}

func typingEvent(started bool) string {
	if started {
		return "typing_start"
	}
	return "typing_stop"
}

func (uc *MessageUseCase) listMessages(ctx context.Context, conversationID string, limit, offset int) ([]*entity.Message, bool, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	msgs, hasMore, err := uc.messageRepo.ListByConversation(ctx, conversationID, limit, offset)
	if err != nil {
		log.Printf("GetMessages Error: %v", err)
		return nil, false, errors.StoreUnavailable("Failed to load messages", err)
	}
	return msgs, hasMore, nil
}

func (uc *MessageUseCase) buildMessage(sender *entity.User, conversationID, groupID string, input MessageInput) (*entity.Message, error) {
	msg := &entity.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		GroupID:        groupID,
		SenderID:       sender.ID,
		SenderName:     sender.DisplayName(),
		SenderRole:     sender.Role,
		Type:           input.Type,
		Delivered:      true,
		CreatedAt:      time.Now(),
	}
	switch input.Type {
	case entity.MessageTypeText:
		if input.Text == "" {
			return nil, errors.Validation("Text message requires text", nil)
		}
		msg.Text = input.Text
	case entity.MessageTypeImage, entity.MessageTypeAudio, entity.MessageTypeVideo, entity.MessageTypeDocument:
		if input.File == nil || input.File.URL == "" {
			return nil, errors.Validation("File message requires a file reference", nil)
		}
		msg.File = input.File
	case entity.MessageTypeLocation:
		if input.Location == nil {
			return nil, errors.Validation("Location message requires coordinates", nil)
		}
		msg.Location = input.Location
	case entity.MessageTypeLink:
		if input.Link == nil || input.Link.URL == "" {
			return nil, errors.Validation("Link message requires a URL", nil)
		}
		msg.Link = input.Link
	default:
		return nil, errors.Validation("Unknown message type", nil)
	}
	return msg, nil
}

func (uc *MessageUseCase) applyIndividualUnread(ctx context.Context, convID string, sender *entity.User, recipientID string) {
	if err := uc.convRepo.IncrementUnread(ctx, convID, recipientID, 1); err != nil {
		log.Printf("SendMessage Error: %v", err)
	}
	if sender.Role == uc.policy.IndividualResetRole {
		if err := uc.convRepo.ResetUnread(ctx, convID, sender.ID); err != nil {
			log.Printf("SendMessage Error: %v", err)
		}
	}
}

func (uc *MessageUseCase) notifyRecipient(ctx context.Context, recipientID string, sender *entity.User, msg *entity.Message, groupName string) {
	recipient, err := uc.userRepo.GetByID(ctx, recipientID)
	if err != nil {
		log.Printf("Notify Error: %v", err)
		return
	}
	var notification *service.Notification
	if groupName != "" {
		notification = service.GroupMessageNotification(groupName, sender, msg)
	} else {
		notification = service.MessageNotification(uc.brandTitle, sender, msg)
	}
	if _, err := uc.dispatcher.Dispatch(ctx, recipient, notification); err != nil {
		log.Printf("Notify Error: %v", err)
	}
}

func (uc *MessageUseCase) emitDeleted(ctx context.Context, msg *entity.Message) {
	frame := event("message_deleted", map[string]interface{}{
		"message_id":      msg.ID,
		"conversation_id": msg.ConversationID,
		"group_id":        msg.GroupID,
	})
	if frame == nil {
		return
	}
	if msg.GroupID != "" {
		members, err := uc.groupRepo.ListMembers(ctx, msg.GroupID)
		if err != nil {
			return
		}
		for _, member := range members {
			uc.broadcaster.SendToUser(member.MemberID, frame)
		}
		return
	}
	conv, err := uc.convRepo.GetByID(ctx, msg.ConversationID)
	if err != nil {
		return
	}
	uc.broadcaster.SendToUsers([]string{conv.CustomerID, conv.AdminID}, frame)
}
