package handler

import (
	"context"
	"strconv"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/go-playground/validator/v10"

	"Attendly/internal/middleware"
	"Attendly/pkg/errors"
	"Attendly/pkg/response"
)

var validate = validator.New()

// bindAndValidate 绑定请求体并校验，失败时已写出响应
func bindAndValidate(ctx context.Context, c *app.RequestContext, req interface{}) bool {
	if err := c.Bind(req); err != nil {
		response.BindError(ctx, c, err)
		return false
	}
	if err := validate.Struct(req); err != nil {
		response.BindError(ctx, c, err)
		return false
	}
	return true
}

// pathID 解析路径中的正整数 ID
func pathID(ctx context.Context, c *app.RequestContext, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.Error(ctx, c, errors.Wrap(errors.InvalidRequest, "invalid %s %q", name, c.Param(name)))
		return 0, false
	}
	return id, true
}

func operatorID(ctx context.Context, c *app.RequestContext) (string, bool) {
	operator, ok := middleware.GetOperatorID(ctx, c)
	if !ok {
		response.Error(ctx, c, errors.Unauthorized)
		return "", false
	}
	return operator, true
}
