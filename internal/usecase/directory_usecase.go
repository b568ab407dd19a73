package usecase

import (
	"context"
	"log"
	"sort"
	"time"

	"fleetchat/internal/domain/entity"
	"fleetchat/internal/domain/repository"
	"fleetchat/internal/infrastructure/presence"
	"fleetchat/pkg/errors"
)

// ConversationView is a directory row: the conversation plus fields computed
// for the viewing user.
type ConversationView struct {
	*entity.Conversation
	Unread     int  `json:"unread"`
	HasUnread  bool `json:"has_unread"`
	PeerOnline bool `json:"peer_online"`
}

type DirectoryPage struct {
	Items   []*ConversationView `json:"items"`
	Total   int                 `json:"total"`
	HasMore bool                `json:"has_more"`
}

// DirectoryUseCase computes ordered conversation lists and owns the read
// markers and the block/delete operations on individual conversations.
type DirectoryUseCase struct {
	userRepo    repository.UserRepository
	convRepo    repository.ConversationRepository
	groupRepo   repository.GroupRepository
	messageRepo repository.MessageRepository
	registry    *presence.Registry
	broadcaster Broadcaster

	// Pagination applies to admins only; everyone else gets their whole
	// (small) directory as a single page, clamped to memberPageSize.
	adminPageSize  int
	memberPageSize int
}

func NewDirectoryUseCase(
	userRepo repository.UserRepository,
	convRepo repository.ConversationRepository,
	groupRepo repository.GroupRepository,
	messageRepo repository.MessageRepository,
	registry *presence.Registry,
	broadcaster Broadcaster,
	adminPageSize int,
	memberPageSize int,
) *DirectoryUseCase {
	return &DirectoryUseCase{
		userRepo:       userRepo,
		convRepo:       convRepo,
		groupRepo:      groupRepo,
		messageRepo:    messageRepo,
		registry:       registry,
		broadcaster:    broadcaster,
		adminPageSize:  adminPageSize,
		memberPageSize: memberPageSize,
	}
}

// ListFor returns userID's conversation directory. Rows with unread messages
// come first; within each band rows sort by last activity, newest first.
func (uc *DirectoryUseCase) ListFor(ctx context.Context, userID string, page, pageSize int) (*DirectoryPage, error) {
	user, err := uc.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	convs, err := uc.convRepo.ListFor(ctx, userID)
	if err != nil {
		log.Printf("ListConversations Error: %v", err)
		return nil, errors.StoreUnavailable("Failed to list conversations", err)
	}

	memberships, err := uc.groupRepo.ListGroupsFor(ctx, userID)
	if err != nil {
		log.Printf("ListConversations Error: %v", err)
		return nil, errors.StoreUnavailable("Failed to list group memberships", err)
	}
	seen := make(map[string]bool, len(convs))
	for _, conv := range convs {
		seen[conv.ID] = true
	}
	for _, membership := range memberships {
		conv, err := uc.convRepo.GetByGroupID(ctx, membership.GroupID)
		if err != nil {
			if errors.Is(err, "NOT_FOUND") {
				continue
			}
			return nil, errors.StoreUnavailable("Failed to load group conversation", err)
		}
		if !seen[conv.ID] {
			convs = append(convs, conv)
			seen[conv.ID] = true
		}
	}

	views := make([]*ConversationView, 0, len(convs))
	for _, conv := range convs {
		unread := conv.UnreadFor(userID)
		views = append(views, &ConversationView{
			Conversation: conv,
			Unread:       unread,
			HasUnread:    unread > 0,
			PeerOnline:   uc.registry.IsOnline(conv.OtherParty(userID)),
		})
	}

	sort.SliceStable(views, func(i, j int) bool {
		if views[i].HasUnread != views[j].HasUnread {
			return views[i].HasUnread
		}
		return views[i].LastMessageAt.After(views[j].LastMessageAt)
	})

	total := len(views)
	if user.Role != entity.RoleAdmin {
		items := views
		if uc.memberPageSize > 0 && len(items) > uc.memberPageSize {
			items = items[:uc.memberPageSize]
		}
		return &DirectoryPage{Items: items, Total: total, HasMore: len(items) < total}, nil
	}

	if pageSize <= 0 {
		pageSize = uc.adminPageSize
	}
	if page <= 0 {
		page = 1
	}
	start := (page - 1) * pageSize
	if start >= total {
		return &DirectoryPage{Items: []*ConversationView{}, Total: total, HasMore: false}, nil
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return &DirectoryPage{Items: views[start:end], Total: total, HasMore: end < total}, nil
}

// PushTo recomputes and emits a conversations_update to each listed user's
// live connections. Errors are logged; directory pushes never fail callers.
func (uc *DirectoryUseCase) PushTo(ctx context.Context, userIDs ...string) {
	for _, userID := range userIDs {
		if userID == "" || !uc.registry.IsOnline(userID) {
			continue
		}
		page, err := uc.ListFor(ctx, userID, 1, 0)
		if err != nil {
			log.Printf("PushDirectory Error for %s: %v", userID, err)
			continue
		}
		if frame := event("conversations_update", map[string]interface{}{
			"conversations": page.Items,
			"total":         page.Total,
			"has_more":      page.HasMore,
		}); frame != nil {
			uc.broadcaster.SendToUser(userID, frame)
		}
	}
}

// MarkRead clears userID's unread state on a conversation. Idempotent.
func (uc *DirectoryUseCase) MarkRead(ctx context.Context, userID, conversationID string) error {
	conv, err := uc.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return err
	}

	marked, err := uc.messageRepo.MarkRead(ctx, conversationID, userID)
	if err != nil {
		log.Printf("MarkRead Error: %v", err)
		return errors.StoreUnavailable("Failed to mark messages read", err)
	}

	// Field-level counter writes; the repository floors the group aggregate
	// at zero, so concurrent readers cannot drive it negative.
	if conv.Type == entity.ConversationTypeGroup {
		if marked == 0 {
			return nil
		}
		if err := uc.convRepo.IncrementGroupUnread(ctx, conversationID, -marked); err != nil {
			log.Printf("MarkRead Error: %v", err)
			return errors.StoreUnavailable("Failed to update conversation", err)
		}
		return nil
	}
	if err := uc.convRepo.ResetUnread(ctx, conversationID, userID); err != nil {
		log.Printf("MarkRead Error: %v", err)
		return errors.StoreUnavailable("Failed to update conversation", err)
	}
	return nil
}

// MarkReadByGroup resolves a group's conversation and marks it read.
func (uc *DirectoryUseCase) MarkReadByGroup(ctx context.Context, userID, groupID string) error {
	if _, err := uc.groupRepo.GetMember(ctx, groupID, userID); err != nil {
		return errors.Forbidden("Not a member of this group", err)
	}
	conv, err := uc.convRepo.GetByGroupID(ctx, groupID)
	if err != nil {
		return err
	}
	return uc.MarkRead(ctx, userID, conv.ID)
}

// Block stops further sends in an individual conversation until unblocked.
func (uc *DirectoryUseCase) Block(ctx context.Context, callerID, conversationID string) error {
	conv, err := uc.participantConversation(ctx, callerID, conversationID)
	if err != nil {
		return err
	}
	if err := uc.convRepo.SetBlocked(ctx, conversationID, true, callerID, time.Now()); err != nil {
		return errors.StoreUnavailable("Failed to block conversation", err)
	}
	uc.notifyPeer(conv, callerID, "conversation_blocked")
	return nil
}

// Unblock lifts a block. Only the user who placed it may lift it.
func (uc *DirectoryUseCase) Unblock(ctx context.Context, callerID, conversationID string) error {
	conv, err := uc.participantConversation(ctx, callerID, conversationID)
	if err != nil {
		return err
	}
	if conv.IsBlocked && conv.BlockedBy != callerID {
		return errors.Forbidden("Only the blocking user can unblock this conversation", nil)
	}
	if err := uc.convRepo.SetBlocked(ctx, conversationID, false, "", time.Time{}); err != nil {
		return errors.StoreUnavailable("Failed to unblock conversation", err)
	}
	uc.notifyPeer(conv, callerID, "conversation_unblocked")
	return nil
}

// DeleteConversation removes an individual conversation and its messages.
func (uc *DirectoryUseCase) DeleteConversation(ctx context.Context, callerID, conversationID string) error {
	conv, err := uc.participantConversation(ctx, callerID, conversationID)
	if err != nil {
		return err
	}
	if err := uc.messageRepo.DeleteByConversation(ctx, conversationID); err != nil {
		log.Printf("DeleteConversation Error: %v", err)
		return errors.StoreUnavailable("Failed to delete messages", err)
	}
	if err := uc.convRepo.Delete(ctx, conversationID); err != nil {
		log.Printf("DeleteConversation Error: %v", err)
		return errors.StoreUnavailable("Failed to delete conversation", err)
	}
	uc.notifyPeer(conv, callerID, "conversation_deleted")
	return nil
}

func (uc *DirectoryUseCase) participantConversation(ctx context.Context, callerID, conversationID string) (*entity.Conversation, error) {
	conv, err := uc.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.Type != entity.ConversationTypeIndividual {
		return nil, errors.Validation("Operation applies to individual conversations only", nil)
	}
	if callerID != conv.CustomerID && callerID != conv.AdminID {
		return nil, errors.Forbidden("Not a participant in this conversation", nil)
	}
	return conv, nil
}

func (uc *DirectoryUseCase) notifyPeer(conv *entity.Conversation, callerID, eventName string) {
	peer := conv.OtherParty(callerID)
	if peer == "" {
		return
	}
	if frame := event(eventName, map[string]interface{}{
		"conversation_id": conv.ID,
		"by":              callerID,
	}); frame != nil {
		uc.broadcaster.SendToUser(peer, frame)
	}
}
