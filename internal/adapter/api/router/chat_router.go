package router

import (
	"github.com/labstack/echo/v4"

	"fleetchat/internal/adapter/api/handler"
	"fleetchat/internal/adapter/api/middleware"
)

// SetupChatRouter wires the conversation endpoints used by the admin
// dashboard and the mobile apps.
func SetupChatRouter(e *echo.Echo, chatHandler *handler.ChatHandler, authMiddleware *middleware.AuthMiddleware, rateLimitMiddleware *middleware.RateLimitMiddleware) {
	chatGroup := e.Group("/v1/conversations")
	chatGroup.Use(authMiddleware.Authenticate)

	chatGroup.GET("", chatHandler.GetConversations)
	chatGroup.GET("/:id/messages", chatHandler.GetMessages)
	chatGroup.POST("/:id/messages", chatHandler.SendMessage, rateLimitMiddleware.Limit("send_message"))
	chatGroup.PUT("/:id/read", chatHandler.MarkAsRead)
	chatGroup.PUT("/:id/block", chatHandler.BlockConversation)
	chatGroup.PUT("/:id/unblock", chatHandler.UnblockConversation)
	chatGroup.DELETE("/:id", chatHandler.DeleteConversation)

	tokenGroup := e.Group("/v1/push-token")
	tokenGroup.Use(authMiddleware.Authenticate)
	tokenGroup.PUT("", chatHandler.RefreshPushToken)
}
