package router

import (
	"github.com/labstack/echo/v4"

	"fleetchat/internal/adapter/api/handler"
)

func SetupAuthRouter(e *echo.Echo, authHandler *handler.AuthHandler) {
	authGroup := e.Group("/v1/auth")
	authGroup.POST("/admin/login", authHandler.AdminLogin)
	authGroup.POST("/login", authHandler.CustomerLogin)
}
