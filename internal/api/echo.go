package api

import "github.com/labstack/echo/v4"

// NewEcho はバリデーターとエラーハンドラーを設定した Echo を作成する
// ミドルウェアとルーティングは呼び出し側で追加する
func NewEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = NewValidator()
	e.HTTPErrorHandler = CustomHTTPErrorHandler
	return e
}
