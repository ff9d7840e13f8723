package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-dbcontext/internal/domain/user"
	"github.com/sanosuguru/go-dbcontext/internal/pkg/logger"
)

// ErrorResponse はエラーレスポンスの統一フォーマット
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// statusFor はドメインエラーを HTTP ステータスに変換する
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, user.ErrUserNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, user.ErrEmailAlreadyExists):
		return http.StatusConflict, err.Error()
	case errors.Is(err, user.ErrFirstNameRequired),
		errors.Is(err, user.ErrLastNameRequired),
		errors.Is(err, user.ErrInvalidEmail),
		errors.Is(err, user.ErrNothingToRename):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "処理がタイムアウトしました"
	}
	return http.StatusInternalServerError, "内部サーバーエラー"
}

// CustomHTTPErrorHandler はカスタムエラーハンドラー
func CustomHTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var (
		code    int
		message string
		details string
	)

	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			message = m
		} else {
			message = http.StatusText(code)
		}
		if he.Internal != nil {
			details = he.Internal.Error()
		}
	} else {
		code, message = statusFor(err)
	}

	// エラーログを出力（5xx エラーの場合）
	if code >= 500 {
		logger.Error("サーバーエラー",
			zap.Int("status", code),
			zap.String("path", c.Request().URL.Path),
			zap.Error(err),
		)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, ErrorResponse{Error: message, Code: code, Details: details})
	}
	if err != nil {
		logger.Error("エラーレスポンス送信失敗", zap.Error(err))
	}
}
