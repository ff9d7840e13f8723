package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/go-dbcontext/pkg/dbcontext"
)

const dbContextKey = "dbcontext"

// DatabaseContext はリクエストごとに新しい実行コンテキストを作成する
// ID には X-Request-ID を使う
func DatabaseContext() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			requestID := c.Response().Header().Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = c.Request().Header.Get(echo.HeaderXRequestID)
			}
			c.Set(dbContextKey, dbcontext.NewContextWithID(requestID))
			return next(c)
		}
	}
}

// DBContext はリクエストの実行コンテキストを返す
// ミドルウェアが設定されていない場合は新しいコンテキストを作成して保存する
func DBContext(c echo.Context) *dbcontext.Context {
	if dc, ok := c.Get(dbContextKey).(*dbcontext.Context); ok && dc != nil {
		return dc
	}
	dc := dbcontext.NewContext()
	c.Set(dbContextKey, dc)
	return dc
}
