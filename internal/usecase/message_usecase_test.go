package usecase

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetchat/internal/domain/entity"
	"fleetchat/pkg/errors"
)

func textInput(text string) MessageInput {
	return MessageInput{Type: entity.MessageTypeText, Text: text}
}

func seedConversation(env *testEnv) *entity.Conversation {
	conv := &entity.Conversation{
		ID:          "conv-1",
		Type:        entity.ConversationTypeIndividual,
		CustomerID:  "c1",
		AdminID:     "admin-1",
		UnreadCount: map[string]int{},
	}
	env.convs.Create(context.Background(), conv)
	return conv
}

func TestSendToConversationPersistsAndFansOut(t *testing.T) {
	env := newTestEnv(adminUser(), customerUser("c1", "0800"))
	seedConversation(env)

	msg, err := env.messagesUC.SendToConversation(context.Background(), "c1", "conv-1", textInput("Hi"))
	require.NoError(t, err)
	assert.Equal(t, 1, env.messages.count())
	assert.True(t, msg.Delivered)

	assert.Contains(t, env.broadcaster.eventsFor("c1"), "new_message")
	assert.Contains(t, env.broadcaster.eventsFor("admin-1"), "new_message")

	// Push fires for the non-sender regardless of presence.
	calls := env.dispatcher.callsFor("admin-1")
	require.Len(t, calls, 1)
	assert.Equal(t, "Hi", calls[0].notification.Body)
	assert.Empty(t, env.dispatcher.callsFor("c1"))
}

func TestSendPersistFailureAbortsPropagation(t *testing.T) {
	env := newTestEnv(adminUser(), customerUser("c1", "0800"))
	seedConversation(env)
	env.messages.createErr = errors.StoreUnavailable("store down", nil)

	_, err := env.messagesUC.SendToConversation(context.Background(), "c1", "conv-1", textInput("Hi"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, "STORE_UNAVAILABLE"))

	assert.Empty(t, env.broadcaster.eventsFor("admin-1"))
	assert.Empty(t, env.dispatcher.calls)
	conv, _ := env.convs.GetByID(context.Background(), "conv-1")
	assert.Empty(t, conv.LastMessage)
}

func TestSendToUnknownConversation(t *testing.T) {
	env := newTestEnv(adminUser(), customerUser("c1", "0800"))

	_, err := env.messagesUC.SendToConversation(context.Background(), "c1", "ghost", textInput("Hi"))
	assert.True(t, errors.Is(err, "NOT_FOUND"))
}

func TestSendToBlockedConversation(t *testing.T) {
	env := newTestEnv(adminUser(), customerUser("c1", "0800"))
	conv := seedConversation(env)
	conv.IsBlocked = true
	conv.BlockedBy = "admin-1"

	_, err := env.messagesUC.SendToConversation(context.Background(), "c1", "conv-1", textInput("Hi"))
	assert.True(t, errors.Is(err, "FORBIDDEN"))
}

func TestSendByNonParticipant(t *testing.T) {
	env := newTestEnv(adminUser(), customerUser("c1", "0800"), customerUser("c2", "0801"))
	seedConversation(env)

	_, err := env.messagesUC.SendToConversation(context.Background(), "c2", "conv-1", textInput("Hi"))
	assert.True(t, errors.Is(err, "FORBIDDEN"))
}

func TestUnreadPolicyIndividual(t *testing.T) {
	env := newTestEnv(adminUser(), customerUser("c1", "0800"))
	seedConversation(env)

	// Admin sends: the customer's counter moves, the admin's does not reset.
	_, err := env.messagesUC.SendToConversation(context.Background(), "admin-1", "conv-1", textInput("Hello"))
	require.NoError(t, err)
	conv, _ := env.convs.GetByID(context.Background(), "conv-1")
	assert.Equal(t, 1, conv.UnreadFor("c1"))
	assert.Equal(t, 0, conv.UnreadFor("admin-1"))

	// Customer replies: admin's counter moves, customer's own counter resets.
	_, err = env.messagesUC.SendToConversation(context.Background(), "c1", "conv-1", textInput("Hi back"))
	require.NoError(t, err)
	conv, _ = env.convs.GetByID(context.Background(), "conv-1")
	assert.Equal(t, 1, conv.UnreadFor("admin-1"))
	assert.Equal(t, 0, conv.UnreadFor("c1"))
}

func TestExchangeScenarioOrdering(t *testing.T) {
	env := newTestEnv(adminUser(), customerUser("c1", "0800"), customerUser("c2", "0801"))
	seedConversation(env)
	// A second, fully-read conversation with recent activity.
	env.convs.Create(context.Background(), &entity.Conversation{
		ID: "conv-2", Type: entity.ConversationTypeIndividual, CustomerID: "c2", AdminID: "admin-1",
		UnreadCount: map[string]int{}, LastMessageAt: time.Now().Add(time.Hour),
	})

	_, err := env.messagesUC.SendToConversation(context.Background(), "c1", "conv-1", textInput("Hi"))
	require.NoError(t, err)
	_, err = env.messagesUC.SendToConversation(context.Background(), "admin-1", "conv-1", textInput("Hello"))
	require.NoError(t, err)

	conv, _ := env.convs.GetByID(context.Background(), "conv-1")
	assert.Equal(t, "Hello", conv.LastMessage)
	assert.Equal(t, 1, conv.UnreadFor("admin-1"))

	page, err := env.directory.ListFor(context.Background(), "admin-1", 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "conv-1", page.Items[0].ID)
	assert.Equal(t, "conv-2", page.Items[1].ID)
}

func TestPreviewTruncation(t *testing.T) {
	env := newTestEnv(adminUser(), customerUser("c1", "0800"))
	seedConversation(env)

	long := strings.Repeat("x", 80)
	_, err := env.messagesUC.SendToConversation(context.Background(), "c1", "conv-1", textInput(long))
	require.NoError(t, err)

	conv, _ := env.convs.GetByID(context.Background(), "conv-1")
	assert.Equal(t, strings.Repeat("x", 50)+"...", conv.LastMessage)
}

func TestNonTextPreviewAndValidation(t *testing.T) {
	env := newTestEnv(adminUser(), customerUser("c1", "0800"))
	seedConversation(env)

	_, err := env.messagesUC.SendToConversation(context.Background(), "c1", "conv-1", MessageInput{
		Type: entity.MessageTypeImage, File: &entity.FileAttachment{URL: "https://cdn/x.jpg"},
	})
	require.NoError(t, err)
	conv, _ := env.convs.GetByID(context.Background(), "conv-1")
	assert.Equal(t, "📷 Image", conv.LastMessage)

	_, err = env.messagesUC.SendToConversation(context.Background(), "c1", "conv-1", MessageInput{Type: entity.MessageTypeImage})
	assert.True(t, errors.Is(err, "VALIDATION_FAILED"))

	_, err = env.messagesUC.SendToConversation(context.Background(), "c1", "conv-1", MessageInput{Type: "carrier-pigeon"})
	assert.True(t, errors.Is(err, "VALIDATION_FAILED"))
}

func seedGroup(env *testEnv, memberIDs ...string) {
	env.groups.Create(context.Background(), &entity.Group{ID: "g1", Name: "North fleet", CreatedBy: "admin-1", IsActive: true})
	env.groups.AddMember(context.Background(), &entity.GroupMember{GroupID: "g1", MemberID: "admin-1", MemberType: entity.RoleAdmin, IsGroupAdmin: true})
	for _, id := range memberIDs {
		env.groups.AddMember(context.Background(), &entity.GroupMember{GroupID: "g1", MemberID: id, MemberType: entity.RoleDriver})
	}
	env.convs.Create(context.Background(), &entity.Conversation{
		ID: "conv-g1", Type: entity.ConversationTypeGroup, GroupID: "g1", GroupName: "North fleet",
	})
}

func TestSendToGroup(t *testing.T) {
	d1 := &entity.User{ID: "d1", Name: "Driver One", Role: entity.RoleDriver}
	d2 := &entity.User{ID: "d2", Name: "Driver Two", Role: entity.RoleDriver}
	env := newTestEnv(adminUser(), d1, d2)
	seedGroup(env, "d1", "d2")

	msg, err := env.messagesUC.SendToGroup(context.Background(), "d1", "g1", textInput("On my way"))
	require.NoError(t, err)
	assert.Equal(t, "g1", msg.GroupID)

	conv, _ := env.convs.GetByID(context.Background(), "conv-g1")
	assert.Equal(t, 2, conv.GroupUnread)
	assert.Equal(t, "Driver One: On my way", conv.LastMessage)

	for _, id := range []string{"admin-1", "d1", "d2"} {
		assert.Contains(t, env.broadcaster.eventsFor(id), "new_group_message")
	}
	assert.Len(t, env.dispatcher.callsFor("admin-1"), 1)
	assert.Len(t, env.dispatcher.callsFor("d2"), 1)
	assert.Empty(t, env.dispatcher.callsFor("d1"))
	assert.Equal(t, "💬 North fleet", env.dispatcher.callsFor("d2")[0].notification.Title)
}

func TestConcurrentSendsAccumulateUnread(t *testing.T) {
	env := newTestEnv(adminUser(), customerUser("c1", "0800"))
	seedConversation(env)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.messagesUC.SendToConversation(context.Background(), "admin-1", "conv-1", textInput("ping"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, env.messages.count())
	conv, _ := env.convs.GetByID(context.Background(), "conv-1")
	assert.Equal(t, 5, conv.UnreadFor("c1"))
}

func TestSendToDeactivatedGroup(t *testing.T) {
	d1 := &entity.User{ID: "d1", Name: "Driver One", Role: entity.RoleDriver}
	env := newTestEnv(adminUser(), d1)
	env.groups.Create(context.Background(), &entity.Group{ID: "g1", Name: "North fleet", CreatedBy: "admin-1", IsActive: false})
	env.groups.AddMember(context.Background(), &entity.GroupMember{GroupID: "g1", MemberID: "admin-1", IsGroupAdmin: true})
	env.groups.AddMember(context.Background(), &entity.GroupMember{GroupID: "g1", MemberID: "d1"})
	env.convs.Create(context.Background(), &entity.Conversation{
		ID: "conv-g1", Type: entity.ConversationTypeGroup, GroupID: "g1",
	})

	_, err := env.messagesUC.SendToGroup(context.Background(), "d1", "g1", textInput("anyone?"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, "NOT_FOUND"))
	assert.Equal(t, 0, env.messages.count())
	assert.Empty(t, env.broadcaster.eventsFor("admin-1"))

	err = env.messagesUC.GroupTyping(context.Background(), "d1", "g1", true)
	assert.True(t, errors.Is(err, "NOT_FOUND"))
}

func TestSendToGroupNonMember(t *testing.T) {
	env := newTestEnv(adminUser(), customerUser("c1", "0800"))
	seedGroup(env)

	_, err := env.messagesUC.SendToGroup(context.Background(), "c1", "g1", textInput("let me in"))
	assert.True(t, errors.Is(err, "FORBIDDEN"))
}

func TestGetMessagesPagination(t *testing.T) {
	env := newTestEnv(adminUser(), customerUser("c1", "0800"))
	seedConversation(env)
	base := time.Now()
	for i := 0; i < 5; i++ {
		env.messages.Create(context.Background(), &entity.Message{
			ID: "m" + string(rune('1'+i)), ConversationID: "conv-1", SenderID: "c1",
			Type: entity.MessageTypeText, Text: "msg", CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
	}

	msgs, hasMore, err := env.messagesUC.GetMessages(context.Background(), "admin-1", "conv-1", 2, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
	assert.True(t, hasMore)
	assert.Equal(t, "m5", msgs[0].ID) // newest first

	_, _, err = env.messagesUC.GetMessages(context.Background(), "stranger", "conv-1", 2, 0)
	assert.True(t, errors.Is(err, "FORBIDDEN"))
}

func TestDeleteMessageSenderOnly(t *testing.T) {
	env := newTestEnv(adminUser(), customerUser("c1", "0800"))
	seedConversation(env)
	env.messages.Create(context.Background(), &entity.Message{ID: "m1", ConversationID: "conv-1", SenderID: "c1", Type: entity.MessageTypeText, Text: "oops"})

	err := env.messagesUC.DeleteMessage(context.Background(), "admin-1", "m1")
	assert.True(t, errors.Is(err, "FORBIDDEN"))

	require.NoError(t, env.messagesUC.DeleteMessage(context.Background(), "c1", "m1"))
	assert.Equal(t, 0, env.messages.count())
}

func TestDeleteGroupMessageAdminOnly(t *testing.T) {
	d1 := &entity.User{ID: "d1", Role: entity.RoleDriver}
	env := newTestEnv(adminUser(), d1)
	seedGroup(env, "d1")
	env.messages.Create(context.Background(), &entity.Message{ID: "m1", ConversationID: "conv-g1", GroupID: "g1", SenderID: "d1", Type: entity.MessageTypeText, Text: "spam"})

	err := env.messagesUC.DeleteGroupMessage(context.Background(), "d1", "g1", "m1")
	assert.True(t, errors.Is(err, "FORBIDDEN"))

	require.NoError(t, env.messagesUC.DeleteGroupMessage(context.Background(), "admin-1", "g1", "m1"))
	assert.Equal(t, 0, env.messages.count())
}

func TestTypingRelay(t *testing.T) {
	env := newTestEnv(adminUser(), customerUser("c1", "0800"))
	seedConversation(env)

	require.NoError(t, env.messagesUC.Typing(context.Background(), "c1", "conv-1", true))
	assert.Contains(t, env.broadcaster.eventsFor("admin-1"), "typing_start")
	assert.Empty(t, env.broadcaster.eventsFor("c1"))

	require.NoError(t, env.messagesUC.Typing(context.Background(), "c1", "conv-1", false))
	assert.Contains(t, env.broadcaster.eventsFor("admin-1"), "typing_stop")
}

func TestGroupTypingRelay(t *testing.T) {
	d1 := &entity.User{ID: "d1", Role: entity.RoleDriver}
	d2 := &entity.User{ID: "d2", Role: entity.RoleDriver}
	env := newTestEnv(adminUser(), d1, d2)
	seedGroup(env, "d1", "d2")

	require.NoError(t, env.messagesUC.GroupTyping(context.Background(), "d1", "g1", true))
	assert.Contains(t, env.broadcaster.eventsFor("d2"), "group_typing_start")
	assert.Contains(t, env.broadcaster.eventsFor("admin-1"), "group_typing_start")
	assert.Empty(t, env.broadcaster.eventsFor("d1"))
}
