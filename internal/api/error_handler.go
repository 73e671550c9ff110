package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-event-capacity-booking/internal/application"
	"github.com/sanosuguru/go-event-capacity-booking/internal/pkg/logger"
)

// ErrorResponse はエラーレスポンスの統一フォーマット
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code,omitempty"`
	Kind  string `json:"kind,omitempty"`
}

var kindStatus = map[application.ErrorKind]int{
	application.KindNotFound:             http.StatusNotFound,
	application.KindValidation:           http.StatusBadRequest,
	application.KindInvalidCapacity:      http.StatusBadRequest,
	application.KindInsufficientCapacity: http.StatusConflict,
	application.KindDuplicateVisitor:     http.StatusConflict,
	application.KindInvalidTransition:    http.StatusConflict,
	application.KindClosed:               http.StatusConflict,
	application.KindConflict:             http.StatusConflict,
	application.KindInvariantViolation:   http.StatusInternalServerError,
	application.KindInternal:             http.StatusInternalServerError,
}

// StatusFor はアプリケーションエラーをHTTPステータスと分類に変換する
func StatusFor(err error) (int, application.ErrorKind) {
	kind := application.KindOf(err)
	if code, ok := kindStatus[kind]; ok {
		return code, kind
	}
	return http.StatusInternalServerError, application.KindInternal
}

// NewHTTPError はアプリケーションエラーを echo.HTTPError に包む
// 内部エラーの詳細はレスポンスに含めない
func NewHTTPError(err error) *echo.HTTPError {
	code, kind := StatusFor(err)
	message := err.Error()
	if kind == application.KindInternal || kind == application.KindInvariantViolation {
		message = "内部サーバーエラー"
	}
	return echo.NewHTTPError(code, message).SetInternal(err)
}

// CustomHTTPErrorHandler はカスタムエラーハンドラー
func CustomHTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var (
		code    = http.StatusInternalServerError
		message = "内部サーバーエラー"
		kind    application.ErrorKind
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
			_, kind = StatusFor(he.Internal)
		}
	} else {
		code, kind = StatusFor(err)
		if code < 500 {
			message = err.Error()
		}
	}

	if code >= 500 {
		logger.Error("サーバーエラー",
			zap.Int("status", code),
			zap.String("path", c.Request().URL.Path),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
	}

	if err := c.JSON(code, ErrorResponse{
		Error: message,
		Code:  code,
		Kind:  string(kind),
	}); err != nil {
		logger.Error("エラーレスポンス送信失敗", zap.Error(err))
	}
}
