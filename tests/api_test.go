package tests

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"fleetchat/internal/adapter/api/handler"
	"fleetchat/internal/adapter/api/middleware"
	"fleetchat/pkg/utils"
)

func TestHealthCheck(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	healthHandler := handler.NewHealthHandler(nil)

	if assert.NoError(t, healthHandler.CheckHealth(c)) {
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "running")
	}
}

func TestAuthMiddlewareRejectsMissingHeader(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/conversations", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	m := middleware.NewAuthMiddleware("test-secret")
	next := func(c echo.Context) error { return c.NoContent(http.StatusOK) }

	err := m.Authenticate(next)(c)
	httpErr, ok := err.(*echo.HTTPError)
	assert.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
}

func TestAuthMiddlewareAcceptsValidToken(t *testing.T) {
	secret := "test-secret"
	token, err := utils.GenerateToken(secret, "user-1", "admin", time.Hour)
	assert.NoError(t, err)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/conversations", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	m := middleware.NewAuthMiddleware(secret)
	next := func(c echo.Context) error { return c.NoContent(http.StatusOK) }

	if assert.NoError(t, m.Authenticate(next)(c)) {
		assert.Equal(t, "user-1", c.Get("uid"))
		assert.Equal(t, "admin", c.Get("role"))
	}
}

func TestAuthMiddlewareRejectsWrongSecret(t *testing.T) {
	token, err := utils.GenerateToken("other-secret", "user-1", "customer", time.Hour)
	assert.NoError(t, err)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/conversations", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	m := middleware.NewAuthMiddleware("test-secret")
	next := func(c echo.Context) error { return c.NoContent(http.StatusOK) }

	err = m.Authenticate(next)(c)
	httpErr, ok := err.(*echo.HTTPError)
	assert.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
}
