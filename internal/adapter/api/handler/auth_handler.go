package handler

import (
	"time"

	"github.com/labstack/echo/v4"

	"fleetchat/internal/domain/entity"
	"fleetchat/internal/domain/repository"
	"fleetchat/pkg/errors"
	"fleetchat/pkg/response"
	"fleetchat/pkg/utils"
)

// AuthHandler issues bearer tokens for the REST surface. Socket clients
// verify over the socket instead.
type AuthHandler struct {
	userRepo  repository.UserRepository
	jwtSecret string
	jwtExpiry time.Duration
}

func NewAuthHandler(userRepo repository.UserRepository, jwtSecret string, jwtExpiry time.Duration) *AuthHandler {
	return &AuthHandler{
		userRepo:  userRepo,
		jwtSecret: jwtSecret,
		jwtExpiry: jwtExpiry,
	}
}

type adminLoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type customerLoginRequest struct {
	UserID string `json:"user_id" validate:"required"`
	Phone  string `json:"phone" validate:"required"`
}

func (h *AuthHandler) AdminLogin(c echo.Context) error {
	var req adminLoginRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	user, err := h.userRepo.GetByUsername(c.Request().Context(), req.Username)
	if err != nil || user.Role != entity.RoleAdmin || user.Password != req.Password {
		return response.Error(c, errors.Unauthorized("Invalid credentials", nil))
	}

	return h.issueToken(c, user)
}

func (h *AuthHandler) CustomerLogin(c echo.Context) error {
	var req customerLoginRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	user, err := h.userRepo.GetByID(c.Request().Context(), req.UserID)
	if err != nil || user.Phone != req.Phone {
		return response.Error(c, errors.Unauthorized("Invalid credentials", nil))
	}

	return h.issueToken(c, user)
}

func (h *AuthHandler) issueToken(c echo.Context, user *entity.User) error {
	token, err := utils.GenerateToken(h.jwtSecret, user.ID, user.Role, h.jwtExpiry)
	if err != nil {
		return response.Error(c, errors.Internal("Failed to issue token", err))
	}
	return response.Success(c, map[string]interface{}{
		"token": token,
		"user":  user,
	})
}
