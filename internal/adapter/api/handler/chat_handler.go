package handler

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"fleetchat/internal/usecase"
	"fleetchat/pkg/response"
	"fleetchat/pkg/utils"
)

type ChatHandler struct {
	messages  *usecase.MessageUseCase
	directory *usecase.DirectoryUseCase
	lifecycle *usecase.LifecycleUseCase
}

func NewChatHandler(messages *usecase.MessageUseCase, directory *usecase.DirectoryUseCase, lifecycle *usecase.LifecycleUseCase) *ChatHandler {
	return &ChatHandler{
		messages:  messages,
		directory: directory,
		lifecycle: lifecycle,
	}
}

type sendMessageRequest struct {
	usecase.MessageInput
}

// GetConversations returns the caller's conversation directory.
func (h *ChatHandler) GetConversations(c echo.Context) error {
	userID := c.Get("uid").(string)
	pagination := utils.GetPaginationParams(c)

	page, err := h.directory.ListFor(c.Request().Context(), userID, pagination.Page, pagination.PageSize)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Paginated(c, page.Items, int64(page.Total), pagination.Page, pagination.PageSize)
}

// GetMessages returns a history page for one conversation.
func (h *ChatHandler) GetMessages(c echo.Context) error {
	userID := c.Get("uid").(string)
	conversationID := c.Param("id")
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))

	msgs, hasMore, err := h.messages.GetMessages(c.Request().Context(), userID, conversationID, limit, offset)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, map[string]interface{}{
		"messages": msgs,
		"has_more": hasMore,
	})
}

// SendMessage posts a message into a conversation over REST.
func (h *ChatHandler) SendMessage(c echo.Context) error {
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(string)
	msg, err := h.messages.SendToConversation(c.Request().Context(), userID, c.Param("id"), req.MessageInput)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Created(c, msg)
}

// MarkAsRead clears the caller's unread state on a conversation.
func (h *ChatHandler) MarkAsRead(c echo.Context) error {
	userID := c.Get("uid").(string)
	if err := h.directory.MarkRead(c.Request().Context(), userID, c.Param("id")); err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, map[string]string{"status": "read"})
}

func (h *ChatHandler) BlockConversation(c echo.Context) error {
	userID := c.Get("uid").(string)
	if err := h.directory.Block(c.Request().Context(), userID, c.Param("id")); err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, map[string]string{"status": "blocked"})
}

func (h *ChatHandler) UnblockConversation(c echo.Context) error {
	userID := c.Get("uid").(string)
	if err := h.directory.Unblock(c.Request().Context(), userID, c.Param("id")); err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, map[string]string{"status": "unblocked"})
}

func (h *ChatHandler) DeleteConversation(c echo.Context) error {
	userID := c.Get("uid").(string)
	if err := h.directory.DeleteConversation(c.Request().Context(), userID, c.Param("id")); err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, map[string]string{"status": "deleted"})
}

type refreshTokenRequest struct {
	Token string `json:"token" validate:"required"`
}

// RefreshPushToken stores a new device token for the caller.
func (h *ChatHandler) RefreshPushToken(c echo.Context) error {
	var req refreshTokenRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(string)
	if err := h.lifecycle.RefreshPushToken(c.Request().Context(), userID, req.Token); err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, map[string]string{"status": "updated"})
}
