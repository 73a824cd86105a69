package middleware

import (
	"context"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"Attendly/config"
)

// CORSMiddleware 签到页面可能与 API 不同源
func CORSMiddleware() app.HandlerFunc {
	return newCORS(config.Cfg.CORSAllowOrigins)
}

func newCORS(allowed []string) app.HandlerFunc {
	allowSet := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o = strings.TrimSpace(o); o != "" {
			allowSet[strings.ToLower(o)] = struct{}{}
		}
	}

	return func(ctx context.Context, c *app.RequestContext) {
		origin := string(c.Request.Header.Get("Origin"))

		switch {
		case origin == "" && len(allowSet) == 0:
			c.Header("Access-Control-Allow-Origin", "*")
		case origin != "" && originAllowed(allowSet, origin):
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Request-ID")
		c.Header("Access-Control-Expose-Headers", "Content-Length, X-RateLimit-Limit, X-RateLimit-Remaining, X-RateLimit-Reset")
		c.Header("Access-Control-Max-Age", "86400")

		// 处理 OPTIONS 预检请求
		if string(c.Method()) == consts.MethodOptions {
			c.AbortWithStatus(consts.StatusNoContent)
			return
		}

		c.Next(ctx)
	}
}

func originAllowed(allowSet map[string]struct{}, origin string) bool {
	if len(allowSet) == 0 {
		return true
	}
	_, ok := allowSet[strings.ToLower(origin)]
	return ok
}
