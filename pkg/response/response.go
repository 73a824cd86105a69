package response

import (
	"context"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"
	"go.uber.org/zap"

	"Attendly/pkg/errors"
	"Attendly/pkg/logger"
)

// ErrorResponse 统一的错误响应格式
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Details map[string]interface{} `json:"details,omitempty"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
}

// SuccessResponse 统一的成功响应格式
type SuccessResponse struct {
	Data interface{}            `json:"data"`
	Meta map[string]interface{} `json:"meta,omitempty"`
}

// HTTPStatus 把业务错误映射为 HTTP 状态码
// not_configured 表示“该活动暂不支持签到”，不是服务端故障
func HTTPStatus(err error) int {
	def, ok := errors.As(err)
	if !ok {
		return http.StatusInternalServerError
	}

	if def.Code == errors.RegistrationNotFound.Code {
		return http.StatusNotFound
	}
	if def.Code == errors.TooManyRequests.Code {
		return http.StatusTooManyRequests
	}

	switch def.Kind {
	case errors.KindValidation, errors.KindInvalidToken:
		return http.StatusBadRequest // 400
	case errors.KindExpiredToken:
		return http.StatusGone // 410
	case errors.KindNotConfigured, errors.KindCapacity, errors.KindConflict:
		return http.StatusConflict // 409
	case errors.KindUnauthorized:
		return http.StatusUnauthorized // 401
	default:
		return http.StatusInternalServerError // 500
	}
}

func describe(err error) (string, string) {
	if def, ok := errors.As(err); ok {
		// 包装过的错误带有细节，直接返回完整信息
		return def.Code, err.Error()
	}
	return "INTERNAL_ERROR", "Internal server error"
}

// Error 返回错误响应
func Error(ctx context.Context, c *app.RequestContext, err error) {
	ErrorWithDetails(ctx, c, err, nil)
}

func ErrorWithDetails(ctx context.Context, c *app.RequestContext, err error, details map[string]interface{}) {
	statusCode := HTTPStatus(err)
	code, message := describe(err)

	if statusCode >= http.StatusInternalServerError {
		logger.Logger.Error("Request failed",
			zap.String("path", string(c.Path())),
			zap.String("method", string(c.Method())),
			zap.Error(err),
		)
	}

	c.JSON(statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

func Success(ctx context.Context, c *app.RequestContext, data interface{}) {
	c.JSON(http.StatusOK, SuccessResponse{
		Data: data,
	})
}

func SuccessWithMeta(ctx context.Context, c *app.RequestContext, data interface{}, meta map[string]interface{}) {
	c.JSON(http.StatusOK, SuccessResponse{
		Data: data,
		Meta: meta,
	})
}

func Created(ctx context.Context, c *app.RequestContext, data interface{}) {
	c.JSON(http.StatusCreated, SuccessResponse{
		Data: data,
	})
}

func BindError(ctx context.Context, c *app.RequestContext, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error: ErrorDetail{
			Code:    errors.InvalidRequest.Code,
			Message: err.Error(),
		},
	})
}
