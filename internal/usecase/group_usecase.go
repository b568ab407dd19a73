package usecase

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"fleetchat/internal/domain/entity"
	"fleetchat/internal/domain/repository"
	"fleetchat/internal/domain/service"
	"fleetchat/pkg/errors"
)

// GroupUseCase owns the group lifecycle. Creation requires the admin role;
// every mutation past creation additionally requires the caller to be the
// group's creator.
type GroupUseCase struct {
	userRepo    repository.UserRepository
	convRepo    repository.ConversationRepository
	groupRepo   repository.GroupRepository
	messageRepo repository.MessageRepository
	broadcaster Broadcaster
	dispatcher  service.NotificationDispatcher
	directory   *DirectoryUseCase
}

func NewGroupUseCase(
	userRepo repository.UserRepository,
	convRepo repository.ConversationRepository,
	groupRepo repository.GroupRepository,
	messageRepo repository.MessageRepository,
	broadcaster Broadcaster,
	dispatcher service.NotificationDispatcher,
	directory *DirectoryUseCase,
) *GroupUseCase {
	return &GroupUseCase{
		userRepo:    userRepo,
		convRepo:    convRepo,
		groupRepo:   groupRepo,
		messageRepo: messageRepo,
		broadcaster: broadcaster,
		dispatcher:  dispatcher,
		directory:   directory,
	}
}

type CreateGroupInput struct {
	Name        string   `json:"name" validate:"required"`
	Description string   `json:"description"`
	MemberIDs   []string `json:"member_ids"`
}

// Create makes a new group with the caller as its first, admin member.
func (uc *GroupUseCase) Create(ctx context.Context, callerID string, input CreateGroupInput) (*entity.Group, error) {
	caller, err := uc.userRepo.GetByID(ctx, callerID)
	if err != nil {
		return nil, errors.NotFound("User", err)
	}
	if caller.Role != entity.RoleAdmin {
		return nil, errors.Forbidden("Only admins can create groups", nil)
	}
	if input.Name == "" {
		return nil, errors.Validation("Group name is required", nil)
	}

	memberIDs := dedupe(input.MemberIDs, callerID)
	now := time.Now()
	group := &entity.Group{
		ID:          uuid.New().String(),
		Name:        input.Name,
		Description: input.Description,
		CreatedBy:   callerID,
		MemberCount: 1 + len(memberIDs),
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := uc.groupRepo.Create(ctx, group); err != nil {
		log.Printf("CreateGroup Error: %v", err)
		return nil, errors.StoreUnavailable("Failed to create group", err)
	}

	if err := uc.groupRepo.AddMember(ctx, &entity.GroupMember{
		ID:           uuid.New().String(),
		GroupID:      group.ID,
		MemberID:     callerID,
		MemberName:   caller.DisplayName(),
		MemberType:   entity.RoleAdmin,
		IsGroupAdmin: true,
		AddedBy:      callerID,
		JoinedAt:     now,
	}); err != nil {
		log.Printf("CreateGroup Error: %v", err)
		return nil, errors.StoreUnavailable("Failed to add group creator", err)
	}
	added, err := uc.addMemberRows(ctx, group, memberIDs, callerID)
	if err != nil {
		return nil, err
	}
	group.MemberCount = 1 + added
	if err := uc.groupRepo.Update(ctx, group); err != nil {
		log.Printf("CreateGroup Error: %v", err)
	}

	conv := &entity.Conversation{
		ID:            uuid.New().String(),
		Type:          entity.ConversationTypeGroup,
		GroupID:       group.ID,
		GroupName:     group.Name,
		MemberCount:   group.MemberCount,
		LastMessage:   "Group created",
		LastMessageAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := uc.convRepo.Create(ctx, conv); err != nil {
		log.Printf("CreateGroup Error: %v", err)
		return nil, errors.StoreUnavailable("Failed to create group conversation", err)
	}

	uc.emitToMembers(ctx, group.ID, "group_created", map[string]interface{}{
		"group": group,
	})
	uc.notifyMembers(ctx, group, memberIDs, "You were added to "+group.Name)
	uc.pushDirectories(ctx, group.ID)
	return group, nil
}

// AddMembers adds the net-new ids to the group. Present ids are skipped.
func (uc *GroupUseCase) AddMembers(ctx context.Context, callerID, groupID string, memberIDs []string) (int, error) {
	group, err := uc.ownedGroup(ctx, callerID, groupID)
	if err != nil {
		return 0, err
	}

	added, err := uc.addMemberRows(ctx, group, dedupe(memberIDs, callerID), callerID)
	if err != nil {
		return 0, err
	}
	if added == 0 {
		return 0, nil
	}

	if err := uc.groupRepo.IncrementMemberCount(ctx, group.ID, added); err != nil {
		log.Printf("AddGroupMembers Error: %v", err)
	}
	uc.syncConversationMeta(ctx, group.ID)

	uc.emitToMembers(ctx, group.ID, "group_members_added", map[string]interface{}{
		"group_id":   group.ID,
		"member_ids": memberIDs,
		"added":      added,
	})
	uc.notifyMembers(ctx, group, memberIDs, "You were added to "+group.Name)
	uc.pushDirectories(ctx, group.ID)
	return added, nil
}

// RemoveMember removes memberID from the group. The creator cannot remove
// themself; they delete the group instead.
func (uc *GroupUseCase) RemoveMember(ctx context.Context, callerID, groupID, memberID string) error {
	if _, err := uc.ownedGroup(ctx, callerID, groupID); err != nil {
		return err
	}
	if memberID == callerID {
		return errors.Forbidden("Admin cannot remove themself from the group", nil)
	}
	if _, err := uc.groupRepo.GetMember(ctx, groupID, memberID); err != nil {
		return errors.NotFound("Group member", err)
	}
	if err := uc.groupRepo.RemoveMember(ctx, groupID, memberID); err != nil {
		log.Printf("RemoveGroupMember Error: %v", err)
		return errors.StoreUnavailable("Failed to remove group member", err)
	}

	if err := uc.groupRepo.IncrementMemberCount(ctx, groupID, -1); err != nil {
		log.Printf("RemoveGroupMember Error: %v", err)
	}
	uc.syncConversationMeta(ctx, groupID)

	payload := map[string]interface{}{"group_id": groupID, "member_id": memberID}
	uc.emitToMembers(ctx, groupID, "member_removed", payload)
	if frame := event("member_removed", payload); frame != nil {
		uc.broadcaster.SendToUser(memberID, frame)
	}
	uc.pushDirectories(ctx, groupID)
	uc.directory.PushTo(ctx, memberID)
	return nil
}

// Leave removes the caller from the group. Group admins must delete the
// group instead of leaving it.
func (uc *GroupUseCase) Leave(ctx context.Context, callerID, groupID string) error {
	if _, err := uc.groupRepo.GetByID(ctx, groupID); err != nil {
		return errors.NotFound("Group", err)
	}
	member, err := uc.groupRepo.GetMember(ctx, groupID, callerID)
	if err != nil {
		return errors.NotFound("Group member", err)
	}
	if member.IsGroupAdmin {
		return errors.Forbidden("Admin cannot leave group. Please delete the group instead.", nil)
	}
	if err := uc.groupRepo.RemoveMember(ctx, groupID, callerID); err != nil {
		log.Printf("LeaveGroup Error: %v", err)
		return errors.StoreUnavailable("Failed to leave group", err)
	}

	if err := uc.groupRepo.IncrementMemberCount(ctx, groupID, -1); err != nil {
		log.Printf("LeaveGroup Error: %v", err)
	}
	uc.syncConversationMeta(ctx, groupID)

	uc.emitToMembers(ctx, groupID, "member_removed", map[string]interface{}{
		"group_id":  groupID,
		"member_id": callerID,
		"left":      true,
	})
	uc.pushDirectories(ctx, groupID)
	uc.directory.PushTo(ctx, callerID)
	return nil
}

// Rename updates group name/description and the directory display name.
func (uc *GroupUseCase) Rename(ctx context.Context, callerID, groupID, name, description string) error {
	group, err := uc.ownedGroup(ctx, callerID, groupID)
	if err != nil {
		return err
	}
	if name == "" {
		return errors.Validation("Group name is required", nil)
	}
	if description == "" {
		description = group.Description
	}
	if err := uc.groupRepo.SetInfo(ctx, groupID, name, description); err != nil {
		log.Printf("RenameGroup Error: %v", err)
		return errors.StoreUnavailable("Failed to rename group", err)
	}
	uc.syncConversationMeta(ctx, groupID)

	uc.emitToMembers(ctx, groupID, "group_renamed", map[string]interface{}{
		"group_id": groupID,
		"name":     name,
	})
	uc.pushDirectories(ctx, groupID)
	return nil
}

// Delete soft-deletes the group then cascades: membership rows, the group
// conversation, and every group message go with it.
func (uc *GroupUseCase) Delete(ctx context.Context, callerID, groupID string) error {
	group, err := uc.ownedGroup(ctx, callerID, groupID)
	if err != nil {
		return err
	}
	members, err := uc.groupRepo.ListMembers(ctx, groupID)
	if err != nil {
		log.Printf("DeleteGroup Error: %v", err)
		return errors.StoreUnavailable("Failed to list group members", err)
	}

	// Tombstone first so concurrent sends fail fast while the cascade runs.
	if err := uc.groupRepo.Deactivate(ctx, groupID); err != nil {
		log.Printf("DeleteGroup Error: %v", err)
	}

	conv, convErr := uc.convRepo.GetByGroupID(ctx, groupID)
	if convErr == nil {
		if err := uc.messageRepo.DeleteByConversation(ctx, conv.ID); err != nil {
			log.Printf("DeleteGroup Error: %v", err)
			return errors.StoreUnavailable("Failed to delete group messages", err)
		}
		if err := uc.convRepo.Delete(ctx, conv.ID); err != nil {
			log.Printf("DeleteGroup Error: %v", err)
			return errors.StoreUnavailable("Failed to delete group conversation", err)
		}
	}
	if err := uc.groupRepo.RemoveAllMembers(ctx, groupID); err != nil {
		log.Printf("DeleteGroup Error: %v", err)
		return errors.StoreUnavailable("Failed to delete group members", err)
	}
	if err := uc.groupRepo.Delete(ctx, groupID); err != nil {
		log.Printf("DeleteGroup Error: %v", err)
		return errors.StoreUnavailable("Failed to delete group", err)
	}

	frame := event("group_deleted", map[string]interface{}{
		"group_id": groupID,
		"name":     group.Name,
	})
	formerIDs := make([]string, 0, len(members))
	for _, member := range members {
		formerIDs = append(formerIDs, member.MemberID)
		if frame != nil {
			uc.broadcaster.SendToUser(member.MemberID, frame)
		}
	}
	uc.directory.PushTo(ctx, formerIDs...)
	return nil
}

// Members returns the group roster. Any member may read it.
func (uc *GroupUseCase) Members(ctx context.Context, callerID, groupID string) ([]*entity.GroupMember, error) {
	if _, err := uc.groupRepo.GetMember(ctx, groupID, callerID); err != nil {
		return nil, errors.Forbidden("Not a member of this group", err)
	}
	members, err := uc.groupRepo.ListMembers(ctx, groupID)
	if err != nil {
		log.Printf("ListGroupMembers Error: %v", err)
		return nil, errors.StoreUnavailable("Failed to list group members", err)
	}
	return members, nil
}

// dedupe drops repeated ids and the excluded id while keeping order.
func dedupe(ids []string, exclude string) []string {
	seen := map[string]bool{exclude: true, "": true}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func (uc *GroupUseCase) ownedGroup(ctx context.Context, callerID, groupID string) (*entity.Group, error) {
	group, err := uc.groupRepo.GetByID(ctx, groupID)
	if err != nil {
		return nil, errors.NotFound("Group", err)
	}
	// Deactivated groups are terminal; no mutation revives them.
	if !group.IsActive {
		return nil, errors.NotFound("Group", nil)
	}
	if group.CreatedBy != callerID {
		return nil, errors.Forbidden("Only the group creator can modify this group", nil)
	}
	return group, nil
}

// addMemberRows inserts membership rows for ids not already present and
// returns the net new count.
func (uc *GroupUseCase) addMemberRows(ctx context.Context, group *entity.Group, memberIDs []string, addedBy string) (int, error) {
	added := 0
	for _, memberID := range memberIDs {
		if _, err := uc.groupRepo.GetMember(ctx, group.ID, memberID); err == nil {
			continue
		}
		user, err := uc.userRepo.GetByID(ctx, memberID)
		if err != nil {
			log.Printf("AddGroupMembers Error: member %s not found", memberID)
			continue
		}
		if err := uc.groupRepo.AddMember(ctx, &entity.GroupMember{
			ID:         uuid.New().String(),
			GroupID:    group.ID,
			MemberID:   memberID,
			MemberName: user.DisplayName(),
			MemberType: user.Role,
			AddedBy:    addedBy,
			JoinedAt:   time.Now(),
		}); err != nil {
			log.Printf("AddGroupMembers Error: %v", err)
			return added, errors.StoreUnavailable("Failed to add group member", err)
		}
		added++
	}
	return added, nil
}

// syncConversationMeta re-reads the group so the directory row reflects the
// count after any concurrent membership churn.
func (uc *GroupUseCase) syncConversationMeta(ctx context.Context, groupID string) {
	group, err := uc.groupRepo.GetByID(ctx, groupID)
	if err != nil {
		return
	}
	conv, err := uc.convRepo.GetByGroupID(ctx, groupID)
	if err != nil {
		return
	}
	if err := uc.convRepo.SetGroupMeta(ctx, conv.ID, group.Name, group.MemberCount); err != nil {
		log.Printf("SyncGroupConversation Error: %v", err)
	}
}

func (uc *GroupUseCase) emitToMembers(ctx context.Context, groupID, eventName string, payload map[string]interface{}) {
	members, err := uc.groupRepo.ListMembers(ctx, groupID)
	if err != nil {
		return
	}
	frame := event(eventName, payload)
	if frame == nil {
		return
	}
	for _, member := range members {
		uc.broadcaster.SendToUser(member.MemberID, frame)
	}
}

func (uc *GroupUseCase) notifyMembers(ctx context.Context, group *entity.Group, memberIDs []string, body string) {
	for _, memberID := range memberIDs {
		recipient, err := uc.userRepo.GetByID(ctx, memberID)
		if err != nil {
			continue
		}
		if _, err := uc.dispatcher.Dispatch(ctx, recipient, &service.Notification{
			Title: "💬 " + group.Name,
			Body:  body,
			Data:  map[string]string{"type": "group_update", "groupId": group.ID},
		}); err != nil {
			log.Printf("NotifyGroupMembers Error: %v", err)
		}
	}
}

func (uc *GroupUseCase) pushDirectories(ctx context.Context, groupID string) {
	members, err := uc.groupRepo.ListMembers(ctx, groupID)
	if err != nil {
		return
	}
	ids := make([]string, 0, len(members))
	for _, member := range members {
		ids = append(ids, member.MemberID)
	}
	uc.directory.PushTo(ctx, ids...)
}
