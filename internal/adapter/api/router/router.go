package router

import (
	"github.com/labstack/echo/v4"

	"fleetchat/internal/adapter/api/handler"
	"fleetchat/internal/adapter/api/middleware"
)

type Handlers struct {
	Health    *handler.HealthHandler
	Auth      *handler.AuthHandler
	Chat      *handler.ChatHandler
	Group     *handler.GroupHandler
	WebSocket *handler.WebSocketHandler
}

func Setup(e *echo.Echo, h Handlers, authMiddleware *middleware.AuthMiddleware, adminMiddleware *middleware.AdminMiddleware, rateLimitMiddleware *middleware.RateLimitMiddleware) {
	SetupHealthRouter(e, h.Health)
	SetupAuthRouter(e, h.Auth)
	SetupChatRouter(e, h.Chat, authMiddleware, rateLimitMiddleware)
	SetupGroupRouter(e, h.Group, authMiddleware, adminMiddleware, rateLimitMiddleware)
	SetupWebSocketRouter(e, h.WebSocket)
}
