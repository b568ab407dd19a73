package handler

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"fleetchat/internal/usecase"
	"fleetchat/pkg/response"
)

type GroupHandler struct {
	groups   *usecase.GroupUseCase
	messages *usecase.MessageUseCase
}

func NewGroupHandler(groups *usecase.GroupUseCase, messages *usecase.MessageUseCase) *GroupHandler {
	return &GroupHandler{
		groups:   groups,
		messages: messages,
	}
}

func (h *GroupHandler) CreateGroup(c echo.Context) error {
	var req usecase.CreateGroupInput
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(string)
	group, err := h.groups.Create(c.Request().Context(), userID, req)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Created(c, group)
}

type addMembersRequest struct {
	MemberIDs []string `json:"member_ids" validate:"required,min=1"`
}

func (h *GroupHandler) AddMembers(c echo.Context) error {
	var req addMembersRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(string)
	added, err := h.groups.AddMembers(c.Request().Context(), userID, c.Param("id"), req.MemberIDs)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, map[string]int{"added": added})
}

func (h *GroupHandler) RemoveMember(c echo.Context) error {
	userID := c.Get("uid").(string)
	if err := h.groups.RemoveMember(c.Request().Context(), userID, c.Param("id"), c.Param("memberId")); err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, map[string]string{"status": "removed"})
}

func (h *GroupHandler) LeaveGroup(c echo.Context) error {
	userID := c.Get("uid").(string)
	if err := h.groups.Leave(c.Request().Context(), userID, c.Param("id")); err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, map[string]string{"status": "left"})
}

type renameGroupRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

func (h *GroupHandler) RenameGroup(c echo.Context) error {
	var req renameGroupRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(string)
	if err := h.groups.Rename(c.Request().Context(), userID, c.Param("id"), req.Name, req.Description); err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, map[string]string{"status": "renamed"})
}

func (h *GroupHandler) DeleteGroup(c echo.Context) error {
	userID := c.Get("uid").(string)
	if err := h.groups.Delete(c.Request().Context(), userID, c.Param("id")); err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, map[string]string{"status": "deleted"})
}

// GetMembers returns the group roster for a member.
func (h *GroupHandler) GetMembers(c echo.Context) error {
	userID := c.Get("uid").(string)
	members, err := h.groups.Members(c.Request().Context(), userID, c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, map[string]interface{}{"members": members})
}

// GetGroupMessages returns a history page for a group's conversation.
func (h *GroupHandler) GetGroupMessages(c echo.Context) error {
	userID := c.Get("uid").(string)
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))

	msgs, hasMore, err := h.messages.GetGroupMessages(c.Request().Context(), userID, c.Param("id"), limit, offset)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, map[string]interface{}{
		"messages": msgs,
		"has_more": hasMore,
	})
}

// SendGroupMessage posts a message into a group over REST.
func (h *GroupHandler) SendGroupMessage(c echo.Context) error {
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(string)
	msg, err := h.messages.SendToGroup(c.Request().Context(), userID, c.Param("id"), req.MessageInput)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Created(c, msg)
}
