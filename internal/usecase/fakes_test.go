package usecase

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"fleetchat/internal/domain/entity"
	"fleetchat/internal/domain/service"
	"fleetchat/internal/infrastructure/presence"
	"fleetchat/pkg/errors"
)

// In-memory repositories backing the usecase tests.

type memUserRepo struct {
	mu    sync.Mutex
	users map[string]*entity.User
}

func newMemUserRepo(users ...*entity.User) *memUserRepo {
	r := &memUserRepo{users: make(map[string]*entity.User)}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *memUserRepo) Create(ctx context.Context, user *entity.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = user
	return nil
}

func (r *memUserRepo) GetByID(ctx context.Context, id string) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, errors.NotFound("User", nil)
	}
	return user, nil
}

func (r *memUserRepo) GetByUsername(ctx context.Context, username string) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Username == username {
			return user, nil
		}
	}
	return nil, errors.NotFound("User", nil)
}

func (r *memUserRepo) GetByPhone(ctx context.Context, phone string) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Phone == phone {
			return user, nil
		}
	}
	return nil, errors.NotFound("User", nil)
}

func (r *memUserRepo) Update(ctx context.Context, user *entity.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = user
	return nil
}

func (r *memUserRepo) SetPresence(ctx context.Context, id string, online bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user, ok := r.users[id]; ok {
		user.IsOnline = online
		if !online {
			user.LastSeen = time.Now()
		}
	}
	return nil
}

func (r *memUserRepo) SetPushToken(ctx context.Context, id, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user, ok := r.users[id]; ok {
		user.PushToken = token
		user.PushTokenInvalidatedAt = time.Time{}
	}
	return nil
}

func (r *memUserRepo) ClearPushToken(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user, ok := r.users[id]; ok {
		user.PushToken = ""
		user.PushTokenInvalidatedAt = time.Now()
	}
	return nil
}

func (r *memUserRepo) ListByRole(ctx context.Context, role string) ([]*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.User
	for _, user := range r.users {
		if user.Role == role {
			out = append(out, user)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memConvRepo struct {
	mu    sync.Mutex
	convs map[string]*entity.Conversation
}

func newMemConvRepo(convs ...*entity.Conversation) *memConvRepo {
	r := &memConvRepo{convs: make(map[string]*entity.Conversation)}
	for _, c := range convs {
		r.convs[c.ID] = c
	}
	return r
}

func (r *memConvRepo) Create(ctx context.Context, conv *entity.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.convs[conv.ID] = conv
	return nil
}

// cloneConv mimics a store decode: reads hand out copies, so a held
// reference never observes later writes.
func cloneConv(c *entity.Conversation) *entity.Conversation {
	out := *c
	if c.UnreadCount != nil {
		out.UnreadCount = make(map[string]int, len(c.UnreadCount))
		for k, v := range c.UnreadCount {
			out.UnreadCount[k] = v
		}
	}
	return &out
}

func (r *memConvRepo) GetByID(ctx context.Context, id string) (*entity.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.convs[id]
	if !ok {
		return nil, errors.NotFound("Conversation", nil)
	}
	return cloneConv(conv), nil
}

func (r *memConvRepo) GetByPair(ctx context.Context, customerID, adminID string) (*entity.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, conv := range r.convs {
		if conv.Type == entity.ConversationTypeIndividual && conv.CustomerID == customerID && conv.AdminID == adminID {
			return cloneConv(conv), nil
		}
	}
	return nil, errors.NotFound("Conversation", nil)
}

func (r *memConvRepo) GetByGroupID(ctx context.Context, groupID string) (*entity.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, conv := range r.convs {
		if conv.GroupID == groupID {
			return cloneConv(conv), nil
		}
	}
	return nil, errors.NotFound("Conversation", nil)
}

func (r *memConvRepo) SetBlocked(ctx context.Context, id string, blocked bool, by string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.convs[id]
	if !ok {
		return errors.NotFound("Conversation", nil)
	}
	conv.IsBlocked = blocked
	conv.BlockedBy = by
	conv.BlockedAt = at
	conv.UpdatedAt = time.Now()
	return nil
}

func (r *memConvRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.convs, id)
	return nil
}

func (r *memConvRepo) ListFor(ctx context.Context, userID string) ([]*entity.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Conversation
	for _, conv := range r.convs {
		if conv.Type == entity.ConversationTypeIndividual && (conv.CustomerID == userID || conv.AdminID == userID) {
			out = append(out, cloneConv(conv))
		}
	}
	return out, nil
}

func (r *memConvRepo) IncrementUnread(ctx context.Context, id, viewerID string, delta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.convs[id]
	if !ok {
		return errors.NotFound("Conversation", nil)
	}
	if conv.UnreadCount == nil {
		conv.UnreadCount = make(map[string]int)
	}
	conv.UnreadCount[viewerID] += delta
	conv.UpdatedAt = time.Now()
	return nil
}

func (r *memConvRepo) ResetUnread(ctx context.Context, id, viewerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.convs[id]
	if !ok {
		return errors.NotFound("Conversation", nil)
	}
	if conv.UnreadCount == nil {
		conv.UnreadCount = make(map[string]int)
	}
	conv.UnreadCount[viewerID] = 0
	conv.UpdatedAt = time.Now()
	return nil
}

func (r *memConvRepo) IncrementGroupUnread(ctx context.Context, id string, delta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.convs[id]
	if !ok {
		return errors.NotFound("Conversation", nil)
	}
	conv.GroupUnread += delta
	if conv.GroupUnread < 0 {
		conv.GroupUnread = 0
	}
	conv.UpdatedAt = time.Now()
	return nil
}

func (r *memConvRepo) SetLastMessage(ctx context.Context, id, preview string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.convs[id]
	if !ok {
		return errors.NotFound("Conversation", nil)
	}
	conv.LastMessage = preview
	conv.LastMessageAt = at
	conv.UpdatedAt = at
	return nil
}

func (r *memConvRepo) SetGroupMeta(ctx context.Context, id, groupName string, memberCount int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.convs[id]
	if !ok {
		return errors.NotFound("Conversation", nil)
	}
	conv.GroupName = groupName
	conv.MemberCount = memberCount
	conv.UpdatedAt = time.Now()
	return nil
}

func (r *memConvRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.convs)
}

type memGroupRepo struct {
	mu      sync.Mutex
	groups  map[string]*entity.Group
	members map[string][]*entity.GroupMember
}

func newMemGroupRepo() *memGroupRepo {
	return &memGroupRepo{
		groups:  make(map[string]*entity.Group),
		members: make(map[string][]*entity.GroupMember),
	}
}

func (r *memGroupRepo) Create(ctx context.Context, group *entity.Group) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups[group.ID] = group
	return nil
}

func (r *memGroupRepo) GetByID(ctx context.Context, id string) (*entity.Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	group, ok := r.groups[id]
	if !ok {
		return nil, errors.NotFound("Group", nil)
	}
	clone := *group
	return &clone, nil
}

func (r *memGroupRepo) Update(ctx context.Context, group *entity.Group) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups[group.ID] = group
	return nil
}

func (r *memGroupRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.groups, id)
	return nil
}

func (r *memGroupRepo) IncrementMemberCount(ctx context.Context, id string, delta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	group, ok := r.groups[id]
	if !ok {
		return errors.NotFound("Group", nil)
	}
	group.MemberCount += delta
	group.UpdatedAt = time.Now()
	return nil
}

func (r *memGroupRepo) SetInfo(ctx context.Context, id, name, description string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	group, ok := r.groups[id]
	if !ok {
		return errors.NotFound("Group", nil)
	}
	group.Name = name
	group.Description = description
	group.UpdatedAt = time.Now()
	return nil
}

func (r *memGroupRepo) Deactivate(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	group, ok := r.groups[id]
	if !ok {
		return errors.NotFound("Group", nil)
	}
	group.IsActive = false
	group.UpdatedAt = time.Now()
	return nil
}

func (r *memGroupRepo) ListByCreator(ctx context.Context, creatorID string) ([]*entity.Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Group
	for _, group := range r.groups {
		if group.CreatedBy == creatorID {
			out = append(out, group)
		}
	}
	return out, nil
}

func (r *memGroupRepo) AddMember(ctx context.Context, member *entity.GroupMember) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[member.GroupID] = append(r.members[member.GroupID], member)
	return nil
}

func (r *memGroupRepo) GetMember(ctx context.Context, groupID, memberID string) (*entity.GroupMember, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, member := range r.members[groupID] {
		if member.MemberID == memberID {
			return member, nil
		}
	}
	return nil, errors.NotFound("Group member", nil)
}

func (r *memGroupRepo) RemoveMember(ctx context.Context, groupID, memberID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	members := r.members[groupID]
	for i, member := range members {
		if member.MemberID == memberID {
			r.members[groupID] = append(members[:i], members[i+1:]...)
			return nil
		}
	}
	return errors.NotFound("Group member", nil)
}

func (r *memGroupRepo) ListMembers(ctx context.Context, groupID string) ([]*entity.GroupMember, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*entity.GroupMember(nil), r.members[groupID]...), nil
}

func (r *memGroupRepo) ListGroupsFor(ctx context.Context, memberID string) ([]*entity.GroupMember, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.GroupMember
	for _, members := range r.members {
		for _, member := range members {
			if member.MemberID == memberID {
				out = append(out, member)
			}
		}
	}
	return out, nil
}

func (r *memGroupRepo) RemoveAllMembers(ctx context.Context, groupID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members, groupID)
	return nil
}

type memMessageRepo struct {
	mu   sync.Mutex
	msgs []*entity.Message
	// createErr, when set, fails the next Create.
	createErr error
}

func newMemMessageRepo() *memMessageRepo { return &memMessageRepo{} }

func (r *memMessageRepo) Create(ctx context.Context, msg *entity.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *memMessageRepo) GetByID(ctx context.Context, id string) (*entity.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range r.msgs {
		if msg.ID == id {
			return msg, nil
		}
	}
	return nil, errors.NotFound("Message", nil)
}

func (r *memMessageRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, msg := range r.msgs {
		if msg.ID == id {
			r.msgs = append(r.msgs[:i], r.msgs[i+1:]...)
			return nil
		}
	}
	return errors.NotFound("Message", nil)
}

func (r *memMessageRepo) DeleteByConversation(ctx context.Context, conversationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.msgs[:0]
	for _, msg := range r.msgs {
		if msg.ConversationID != conversationID {
			kept = append(kept, msg)
		}
	}
	r.msgs = kept
	return nil
}

func (r *memMessageRepo) ListByConversation(ctx context.Context, conversationID string, limit, offset int) ([]*entity.Message, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []*entity.Message
	for _, msg := range r.msgs {
		if msg.ConversationID == conversationID {
			all = append(all, msg)
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if offset >= len(all) {
		return nil, false, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], end < len(all), nil
}

func (r *memMessageRepo) MarkRead(ctx context.Context, conversationID, readerID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	marked := 0
	for _, msg := range r.msgs {
		if msg.ConversationID != conversationID || msg.SenderID == readerID {
			continue
		}
		already := false
		for _, receipt := range msg.ReadBy {
			if receipt.UserID == readerID {
				already = true
				break
			}
		}
		if already {
			continue
		}
		msg.Read = true
		msg.ReadBy = append(msg.ReadBy, entity.ReadReceipt{UserID: readerID, ReadAt: time.Now()})
		marked++
	}
	return marked, nil
}

func (r *memMessageRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

// fakeBroadcaster records every emit.

type fakeBroadcaster struct {
	mu         sync.Mutex
	toConn     map[string][][]byte
	toUser     map[string][][]byte
	broadcasts [][]byte
}

func newFakeBroadcaster() *fakeBroadcaster {
	return &fakeBroadcaster{
		toConn: make(map[string][][]byte),
		toUser: make(map[string][][]byte),
	}
}

func (b *fakeBroadcaster) SendToConn(connID string, message []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.toConn[connID] = append(b.toConn[connID], message)
}

func (b *fakeBroadcaster) SendToUser(userID string, message []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.toUser[userID] = append(b.toUser[userID], message)
}

func (b *fakeBroadcaster) SendToUsers(userIDs []string, message []byte) {
	for _, userID := range userIDs {
		b.SendToUser(userID, message)
	}
}

func (b *fakeBroadcaster) Broadcast(message []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.broadcasts = append(b.broadcasts, message)
}

// eventsFor decodes the frames sent to userID and returns their type names.
func (b *fakeBroadcaster) eventsFor(userID string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, frame := range b.toUser[userID] {
		var payload map[string]interface{}
		if json.Unmarshal(frame, &payload) == nil {
			if name, ok := payload["type"].(string); ok {
				out = append(out, name)
			}
		}
	}
	return out
}

// fakeDispatcher records notifications and returns a fixed result.

type dispatched struct {
	recipientID  string
	notification *service.Notification
}

type fakeDispatcher struct {
	mu     sync.Mutex
	calls  []dispatched
	result service.NotificationResult
	err    error
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{result: service.NotificationSent}
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, recipient *entity.User, notification *service.Notification) (service.NotificationResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, dispatched{recipientID: recipient.ID, notification: notification})
	return d.result, d.err
}

func (d *fakeDispatcher) callsFor(recipientID string) []dispatched {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []dispatched
	for _, call := range d.calls {
		if call.recipientID == recipientID {
			out = append(out, call)
		}
	}
	return out
}

// testEnv wires every usecase over the in-memory fakes.

type testEnv struct {
	users       *memUserRepo
	convs       *memConvRepo
	groups      *memGroupRepo
	messages    *memMessageRepo
	registry    *presence.Registry
	broadcaster *fakeBroadcaster
	dispatcher  *fakeDispatcher
	directory   *DirectoryUseCase
	lifecycle   *LifecycleUseCase
	messagesUC  *MessageUseCase
	groupsUC    *GroupUseCase
}

func newTestEnv(users ...*entity.User) *testEnv {
	env := &testEnv{
		users:       newMemUserRepo(users...),
		convs:       newMemConvRepo(),
		groups:      newMemGroupRepo(),
		messages:    newMemMessageRepo(),
		registry:    presence.NewRegistry(),
		broadcaster: newFakeBroadcaster(),
		dispatcher:  newFakeDispatcher(),
	}
	env.directory = NewDirectoryUseCase(env.users, env.convs, env.groups, env.messages, env.registry, env.broadcaster, 20, 50)
	env.lifecycle = NewLifecycleUseCase(env.users, env.convs, env.registry, env.broadcaster, env.dispatcher, env.directory)
	env.messagesUC = NewMessageUseCase(env.users, env.convs, env.groups, env.messages, env.registry, env.broadcaster, env.dispatcher, env.directory, DefaultUnreadPolicy(), "FleetChat Support")
	env.groupsUC = NewGroupUseCase(env.users, env.convs, env.groups, env.messages, env.broadcaster, env.dispatcher, env.directory)
	return env
}
