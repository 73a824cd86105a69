package middleware

import (
	"context"
	"fmt"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/hertz-contrib/jwt"

	"Attendly/pkg/errors"
	"Attendly/pkg/response"
	"Attendly/pkg/token"
)

const (
	IdentityKey = token.IdentityKey
)

var (
	authMiddleware *jwt.HertzJWTMiddleware
)

func initAuthMiddleware() error {
	// 使用 token 包中共享的生成器
	sharedGenerator := token.GetGenerator()
	if sharedGenerator == nil {
		return fmt.Errorf("token generator not initialized, call token.Init() first")
	}

	authMiddleware = &jwt.HertzJWTMiddleware{
		Realm:       "Attendly API",
		Key:         sharedGenerator.Key,
		Timeout:     sharedGenerator.Timeout,
		MaxRefresh:  sharedGenerator.MaxRefresh,
		IdentityKey: sharedGenerator.IdentityKey,
		TimeFunc:    sharedGenerator.TimeFunc,

		IdentityHandler: func(ctx context.Context, c *app.RequestContext) interface{} {
			claims := jwt.ExtractClaims(ctx, c)
			operator, ok := claims[IdentityKey].(string)
			if !ok || operator == "" {
				return nil
			}
			return operator
		},

		// 令牌有效但没有操作员身份时拒绝
		Authorizator: func(data interface{}, ctx context.Context, c *app.RequestContext) bool {
			operator, ok := data.(string)
			return ok && operator != ""
		},

		Unauthorized: func(ctx context.Context, c *app.RequestContext, code int, message string) {
			response.Error(ctx, c, errors.Wrap(errors.Unauthorized, "%s", message))
		},

		TokenLookup:   "header: Authorization, query: token",
		TokenHeadName: "Bearer",
	}

	return nil
}

func AuthMiddleware() app.HandlerFunc {
	if authMiddleware == nil {
		panic("AuthMiddleware not initialized, call Init() first")
	}
	return authMiddleware.MiddlewareFunc()
}

// GetOperatorID 当前操作员（志愿者或签到设备），写入签到记录的 marked_by
func GetOperatorID(ctx context.Context, c *app.RequestContext) (string, bool) {
	operator, exists := c.Get(IdentityKey)
	if !exists {
		return "", false
	}

	id, ok := operator.(string)
	if !ok || id == "" {
		return "", false
	}

	return id, true
}
