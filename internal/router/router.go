package router

import (
	"github.com/cloudwego/hertz/pkg/app/server"

	"Attendly/internal/handler"
	"Attendly/internal/middleware"
)

func Register(h *server.Hertz) {

	h.Use(middleware.RecoverMiddleware())
	h.Use(middleware.CORSMiddleware())
	h.Use(middleware.MetricsMiddleware())

	// 所有接口都需要操作员令牌
	v1 := h.Group("/v1", middleware.AuthMiddleware())

	// 活动维度：策略、签到、统计
	events := v1.Group("/events/:event_id")
	{
		events.GET("/strategy", handler.GetStrategy)
		events.PUT("/strategy", handler.ConfigureStrategy)
		events.POST("/marks", handler.CreateMark)
		events.POST("/marks/bulk", handler.BulkMark)
		events.GET("/stats", handler.GetOverallStats)
		events.GET("/units/:unit_key/stats", handler.GetUnitStats)
	}

	// 报名维度：进度、流水、二维码
	registrations := v1.Group("/registrations/:registration_id")
	{
		registrations.GET("/progress", handler.GetProgress)
		registrations.GET("/marks", handler.ListMarks)
		registrations.POST("/identity-token", handler.IssueIdentityToken)
	}

	// 扫码接口按操作员限流
	identity := v1.Group("/identity", middleware.ScanRateLimitMiddleware())
	{
		identity.POST("/resolve", handler.ResolveIdentity)
		identity.POST("/mark", handler.MarkRoster)
	}
}
