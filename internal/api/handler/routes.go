package handler

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes は /api/v1 配下のルートを登録する
func RegisterRoutes(e *echo.Echo, health *HealthHandler, users *UserHandler) *echo.Group {
	v1 := e.Group("/api/v1")
	v1.GET("/health", health.Check)

	v1.POST("/users", users.Create)
	v1.GET("/users", users.List)
	v1.GET("/users/:id", users.GetByID)
	v1.PATCH("/users/:id", users.Rename)
	v1.DELETE("/users/:id", users.Delete)
	v1.GET("/users/:id/audits", users.Audits)
	return v1
}
