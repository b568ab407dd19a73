package router

import (
	"github.com/labstack/echo/v4"

	"fleetchat/internal/adapter/api/handler"
	"fleetchat/internal/adapter/api/middleware"
)

// SetupGroupRouter wires the group endpoints. Mutations are admin-only;
// member-facing reads and leave only need authentication.
func SetupGroupRouter(e *echo.Echo, groupHandler *handler.GroupHandler, authMiddleware *middleware.AuthMiddleware, adminMiddleware *middleware.AdminMiddleware, rateLimitMiddleware *middleware.RateLimitMiddleware) {
	memberGroup := e.Group("/v1/groups")
	memberGroup.Use(authMiddleware.Authenticate)
	memberGroup.GET("/:id/messages", groupHandler.GetGroupMessages)
	memberGroup.GET("/:id/members", groupHandler.GetMembers)
	memberGroup.POST("/:id/messages", groupHandler.SendGroupMessage, rateLimitMiddleware.Limit("send_message"))
	memberGroup.POST("/:id/leave", groupHandler.LeaveGroup)

	adminGroup := e.Group("/v1/admin/groups")
	adminGroup.Use(authMiddleware.Authenticate)
	adminGroup.Use(adminMiddleware.AdminOnly)
	adminGroup.POST("", groupHandler.CreateGroup, rateLimitMiddleware.Limit("create_group"))
	adminGroup.POST("/:id/members", groupHandler.AddMembers)
	adminGroup.DELETE("/:id/members/:memberId", groupHandler.RemoveMember)
	adminGroup.PUT("/:id", groupHandler.RenameGroup)
	adminGroup.DELETE("/:id", groupHandler.DeleteGroup)
}
