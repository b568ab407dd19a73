package handler

import (
	"context"
	"encoding/json"
	"log"

	"fleetchat/internal/domain/entity"
	"fleetchat/internal/infrastructure/ratelimit"
	ws "fleetchat/internal/infrastructure/websocket"
	"fleetchat/internal/usecase"
	"fleetchat/pkg/errors"
)

// WSEventHandler dispatches inbound socket frames to the usecases. It is
// registered on the websocket manager at startup.
type WSEventHandler struct {
	lifecycle *usecase.LifecycleUseCase
	messages  *usecase.MessageUseCase
	directory *usecase.DirectoryUseCase
	groups    *usecase.GroupUseCase
	limiter   *ratelimit.RateLimiter
}

func NewWSEventHandler(
	lifecycle *usecase.LifecycleUseCase,
	messages *usecase.MessageUseCase,
	directory *usecase.DirectoryUseCase,
	groups *usecase.GroupUseCase,
	limiter *ratelimit.RateLimiter,
) *WSEventHandler {
	return &WSEventHandler{
		lifecycle: lifecycle,
		messages:  messages,
		directory: directory,
		groups:    groups,
		limiter:   limiter,
	}
}

func (h *WSEventHandler) HandleDisconnect(ctx context.Context, client *ws.Client) {
	h.lifecycle.Disconnect(ctx, client.ConnID)
}

func (h *WSEventHandler) HandleEvent(ctx context.Context, client *ws.Client, eventName string, payload json.RawMessage) {
	switch eventName {
	case "verify_identity":
		h.handleVerify(ctx, client, payload)
		return
	case "register":
		h.handleRegister(ctx, client, payload)
		return
	}

	// Everything past this point needs a verified identity.
	if client.UserID == "" {
		h.sendError(client, "verification_error", errors.Unauthorized("Socket is not verified", nil))
		return
	}

	switch eventName {
	case "send_message":
		h.handleSendMessage(ctx, client, payload)
	case "send_group_message":
		h.handleSendGroupMessage(ctx, client, payload)
	case "get_conversations":
		h.handleGetConversations(ctx, client, payload)
	case "get_messages":
		h.handleGetMessages(ctx, client, payload)
	case "get_group_messages":
		h.handleGetGroupMessages(ctx, client, payload)
	case "get_group_members":
		h.handleGetGroupMembers(ctx, client, payload)
	case "mark_as_read":
		h.handleMarkAsRead(ctx, client, payload)
	case "create_group":
		h.handleCreateGroup(ctx, client, payload)
	case "add_members":
		h.handleAddMembers(ctx, client, payload)
	case "remove_member":
		h.handleRemoveMember(ctx, client, payload)
	case "leave_group":
		h.handleLeaveGroup(ctx, client, payload)
	case "delete_group":
		h.handleDeleteGroup(ctx, client, payload)
	case "rename_group":
		h.handleRenameGroup(ctx, client, payload)
	case "typing_start", "typing_stop":
		h.handleTyping(ctx, client, payload, eventName == "typing_start")
	case "group_typing_start", "group_typing_stop":
		h.handleGroupTyping(ctx, client, payload, eventName == "group_typing_start")
	case "block_conversation":
		h.handleConversationAction(ctx, client, payload, h.directory.Block)
	case "unblock_conversation":
		h.handleConversationAction(ctx, client, payload, h.directory.Unblock)
	case "delete_conversation":
		h.handleConversationAction(ctx, client, payload, h.directory.DeleteConversation)
	case "delete_message":
		h.handleDeleteMessage(ctx, client, payload)
	case "delete_group_message":
		h.handleDeleteGroupMessage(ctx, client, payload)
	case "refresh_push_token":
		h.handleRefreshPushToken(ctx, client, payload)
	default:
		log.Printf("Unknown event %q from %s", eventName, client.ConnID)
		h.sendError(client, "event_error", errors.Validation("Unknown event", nil))
	}
}

type verifyPayload struct {
	UserID   string `json:"user_id"`
	Phone    string `json:"phone"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *WSEventHandler) handleVerify(ctx context.Context, client *ws.Client, payload json.RawMessage) {
	var req verifyPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		h.sendError(client, "verification_error", errors.Validation("Malformed payload", err))
		return
	}

	var (
		user *entity.User
		page *usecase.DirectoryPage
		err  error
	)
	if req.Username != "" {
		user, page, err = h.lifecycle.VerifyAdmin(ctx, client.ConnID, req.Username, req.Password)
	} else {
		user, page, err = h.lifecycle.VerifyCustomer(ctx, client.ConnID, req.UserID, req.Phone)
	}
	if err != nil {
		h.sendError(client, "verification_error", err)
		return
	}
	client.UserID = user.ID
	h.send(client, "verified", map[string]interface{}{
		"user":          user,
		"conversations": page.Items,
	})
}

func (h *WSEventHandler) handleRegister(ctx context.Context, client *ws.Client, payload json.RawMessage) {
	var req usecase.RegisterInput
	if err := json.Unmarshal(payload, &req); err != nil {
		h.sendError(client, "verification_error", errors.Validation("Malformed payload", err))
		return
	}
	user, page, err := h.lifecycle.Register(ctx, client.ConnID, req)
	if err != nil {
		h.sendError(client, "verification_error", err)
		return
	}
	client.UserID = user.ID
	h.send(client, "verified", map[string]interface{}{
		"user":          user,
		"conversations": page.Items,
	})
}

type sendMessagePayload struct {
	ConversationID string `json:"conversation_id"`
	GroupID        string `json:"group_id"`
	usecase.MessageInput
}

func (h *WSEventHandler) handleSendMessage(ctx context.Context, client *ws.Client, payload json.RawMessage) {
	if !h.allow(client, "send_message", "message_error") {
		return
	}
	var req sendMessagePayload
	if err := json.Unmarshal(payload, &req); err != nil {
		h.sendError(client, "message_error", errors.Validation("Malformed payload", err))
		return
	}
	msg, err := h.messages.SendToConversation(ctx, client.UserID, req.ConversationID, req.MessageInput)
	if err != nil {
		h.sendError(client, "message_error", err)
		return
	}
	h.send(client, "message_sent", map[string]interface{}{"message": msg})
}

func (h *WSEventHandler) handleSendGroupMessage(ctx context.Context, client *ws.Client, payload json.RawMessage) {
	if !h.allow(client, "send_message", "message_error") {
		return
	}
	var req sendMessagePayload
	if err := json.Unmarshal(payload, &req); err != nil {
		h.sendError(client, "message_error", errors.Validation("Malformed payload", err))
		return
	}
	msg, err := h.messages.SendToGroup(ctx, client.UserID, req.GroupID, req.MessageInput)
	if err != nil {
		h.sendError(client, "message_error", err)
		return
	}
	h.send(client, "message_sent", map[string]interface{}{"message": msg})
}

type pagePayload struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

func (h *WSEventHandler) handleGetConversations(ctx context.Context, client *ws.Client, payload json.RawMessage) {
	var req pagePayload
	json.Unmarshal(payload, &req)
	page, err := h.directory.ListFor(ctx, client.UserID, req.Page, req.PageSize)
	if err != nil {
		h.sendError(client, "conversation_error", err)
		return
	}
	h.send(client, "conversations_update", map[string]interface{}{
		"conversations": page.Items,
		"total":         page.Total,
		"has_more":      page.HasMore,
	})
}

type historyPayload struct {
	ConversationID string `json:"conversation_id"`
	GroupID        string `json:"group_id"`
	Limit          int    `json:"limit"`
	Offset         int    `json:"offset"`
}

func (h *WSEventHandler) handleGetMessages(ctx context.Context, client *ws.Client, payload json.RawMessage) {
	var req historyPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		h.sendError(client, "message_error", errors.Validation("Malformed payload", err))
		return
	}
	msgs, hasMore, err := h.messages.GetMessages(ctx, client.UserID, req.ConversationID, req.Limit, req.Offset)
	if err != nil {
		h.sendError(client, "message_error", err)
		return
	}
	h.send(client, "messages", map[string]interface{}{
		"conversation_id": req.ConversationID,
		"messages":        msgs,
		"has_more":        hasMore,
	})
}

func (h *WSEventHandler) handleGetGroupMessages(ctx context.Context, client *ws.Client, payload json.RawMessage) {
	var req historyPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		h.sendError(client, "message_error", errors.Validation("Malformed payload", err))
		return
	}
	msgs, hasMore, err := h.messages.GetGroupMessages(ctx, client.UserID, req.GroupID, req.Limit, req.Offset)
	if err != nil {
		h.sendError(client, "message_error", err)
		return
	}
	h.send(client, "messages", map[string]interface{}{
		"group_id": req.GroupID,
		"messages": msgs,
		"has_more": hasMore,
	})
}

func (h *WSEventHandler) handleGetGroupMembers(ctx context.Context, client *ws.Client, payload json.RawMessage) {
	var req groupPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		h.sendError(client, "group_error", errors.Validation("Malformed payload", err))
		return
	}
	members, err := h.groups.Members(ctx, client.UserID, req.GroupID)
	if err != nil {
		h.sendError(client, "group_error", err)
		return
	}
	h.send(client, "group_members", map[string]interface{}{
		"group_id": req.GroupID,
		"members":  members,
	})
}

type conversationPayload struct {
	ConversationID string `json:"conversation_id"`
	GroupID        string `json:"group_id"`
}

func (h *WSEventHandler) handleMarkAsRead(ctx context.Context, client *ws.Client, payload json.RawMessage) {
	var req conversationPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		h.sendError(client, "conversation_error", errors.Validation("Malformed payload", err))
		return
	}
	var err error
	if req.GroupID != "" {
		err = h.directory.MarkReadByGroup(ctx, client.UserID, req.GroupID)
	} else {
		err = h.directory.MarkRead(ctx, client.UserID, req.ConversationID)
	}
	if err != nil {
		h.sendError(client, "conversation_error", err)
		return
	}
	h.directory.PushTo(ctx, client.UserID)
}

func (h *WSEventHandler) handleConversationAction(ctx context.Context, client *ws.Client, payload json.RawMessage, action func(context.Context, string, string) error) {
	var req conversationPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		h.sendError(client, "conversation_error", errors.Validation("Malformed payload", err))
		return
	}
	if err := action(ctx, client.UserID, req.ConversationID); err != nil {
		h.sendError(client, "conversation_error", err)
		return
	}
	h.directory.PushTo(ctx, client.UserID)
}

func (h *WSEventHandler) handleCreateGroup(ctx context.Context, client *ws.Client, payload json.RawMessage) {
	if !h.allow(client, "create_group", "group_error") {
		return
	}
	var req usecase.CreateGroupInput
	if err := json.Unmarshal(payload, &req); err != nil {
		h.sendError(client, "group_error", errors.Validation("Malformed payload", err))
		return
	}
	group, err := h.groups.Create(ctx, client.UserID, req)
	if err != nil {
		h.sendError(client, "group_error", err)
		return
	}
	h.send(client, "group_created", map[string]interface{}{"group": group})
}

type groupMembersPayload struct {
	GroupID   string   `json:"group_id"`
	MemberIDs []string `json:"member_ids"`
	MemberID  string   `json:"member_id"`
}

func (h *WSEventHandler) handleAddMembers(ctx context.Context, client *ws.Client, payload json.RawMessage) {
	var req groupMembersPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		h.sendError(client, "group_error", errors.Validation("Malformed payload", err))
		return
	}
	if _, err := h.groups.AddMembers(ctx, client.UserID, req.GroupID, req.MemberIDs); err != nil {
		h.sendError(client, "group_error", err)
	}
}

func (h *WSEventHandler) handleRemoveMember(ctx context.Context, client *ws.Client, payload json.RawMessage) {
	var req groupMembersPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		h.sendError(client, "group_error", errors.Validation("Malformed payload", err))
		return
	}
	if err := h.groups.RemoveMember(ctx, client.UserID, req.GroupID, req.MemberID); err != nil {
		h.sendError(client, "group_error", err)
	}
}

type groupPayload struct {
	GroupID     string `json:"group_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *WSEventHandler) handleLeaveGroup(ctx context.Context, client *ws.Client, payload json.RawMessage) {
	var req groupPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		h.sendError(client, "group_error", errors.Validation("Malformed payload", err))
		return
	}
	if err := h.groups.Leave(ctx, client.UserID, req.GroupID); err != nil {
		h.sendError(client, "group_error", err)
	}
}

func (h *WSEventHandler) handleDeleteGroup(ctx context.Context, client *ws.Client, payload json.RawMessage) {
	var req groupPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		h.sendError(client, "group_error", errors.Validation("Malformed payload", err))
		return
	}
	if err := h.groups.Delete(ctx, client.UserID, req.GroupID); err != nil {
		h.sendError(client, "group_error", err)
	}
}

func (h *WSEventHandler) handleRenameGroup(ctx context.Context, client *ws.Client, payload json.RawMessage) {
	var req groupPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		h.sendError(client, "group_error", errors.Validation("Malformed payload", err))
		return
	}
	if err := h.groups.Rename(ctx, client.UserID, req.GroupID, req.Name, req.Description); err != nil {
		h.sendError(client, "group_error", err)
	}
}

func (h *WSEventHandler) handleTyping(ctx context.Context, client *ws.Client, payload json.RawMessage, started bool) {
	if !h.allow(client, "typing", "message_error") {
		return
	}
	var req conversationPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return
	}
	if err := h.messages.Typing(ctx, client.UserID, req.ConversationID, started); err != nil {
		log.Printf("Typing relay error: %v", err)
	}
}

func (h *WSEventHandler) handleGroupTyping(ctx context.Context, client *ws.Client, payload json.RawMessage, started bool) {
	if !h.allow(client, "typing", "message_error") {
		return
	}
	var req groupPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return
	}
	if err := h.messages.GroupTyping(ctx, client.UserID, req.GroupID, started); err != nil {
		log.Printf("Typing relay error: %v", err)
	}
}

type deleteMessagePayload struct {
	MessageID string `json:"message_id"`
	GroupID   string `json:"group_id"`
}

func (h *WSEventHandler) handleDeleteMessage(ctx context.Context, client *ws.Client, payload json.RawMessage) {
	var req deleteMessagePayload
	if err := json.Unmarshal(payload, &req); err != nil {
		h.sendError(client, "message_error", errors.Validation("Malformed payload", err))
		return
	}
	if err := h.messages.DeleteMessage(ctx, client.UserID, req.MessageID); err != nil {
		h.sendError(client, "message_error", err)
	}
}

func (h *WSEventHandler) handleDeleteGroupMessage(ctx context.Context, client *ws.Client, payload json.RawMessage) {
	var req deleteMessagePayload
	if err := json.Unmarshal(payload, &req); err != nil {
		h.sendError(client, "message_error", errors.Validation("Malformed payload", err))
		return
	}
	if err := h.messages.DeleteGroupMessage(ctx, client.UserID, req.GroupID, req.MessageID); err != nil {
		h.sendError(client, "message_error", err)
	}
}

type pushTokenPayload struct {
	Token string `json:"token"`
}

func (h *WSEventHandler) handleRefreshPushToken(ctx context.Context, client *ws.Client, payload json.RawMessage) {
	var req pushTokenPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		h.sendError(client, "token_error", errors.Validation("Malformed payload", err))
		return
	}
	if err := h.lifecycle.RefreshPushToken(ctx, client.UserID, req.Token); err != nil {
		h.sendError(client, "token_error", err)
		return
	}
	h.send(client, "push_token_updated", map[string]interface{}{})
}

func (h *WSEventHandler) allow(client *ws.Client, action, errorEvent string) bool {
	allowed, _ := h.limiter.Allow(client.UserID, action)
	if !allowed {
		h.sendError(client, errorEvent, errors.Forbidden("Rate limit exceeded", nil))
	}
	return allowed
}

func (h *WSEventHandler) send(client *ws.Client, eventName string, fields map[string]interface{}) {
	payload := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		payload[k] = v
	}
	payload["type"] = eventName
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Event marshal error (%s): %v", eventName, err)
		return
	}
	select {
	case client.Send <- data:
	default:
		log.Printf("Dropping %s frame for %s: send buffer full", eventName, client.ConnID)
	}
}

func (h *WSEventHandler) sendError(client *ws.Client, eventName string, err error) {
	message := "Internal error"
	if appErr, ok := err.(*errors.AppError); ok {
		message = appErr.Message
	}
	h.send(client, eventName, map[string]interface{}{"message": message})
}
