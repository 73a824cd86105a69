package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"Attendly/internal/service"
	"Attendly/pkg/response"
)

// GetUnitStats 单元统计
// GET /v1/events/:event_id/units/:unit_key/stats
func GetUnitStats(ctx context.Context, c *app.RequestContext) {
	eventID, ok := pathID(ctx, c, "event_id")
	if !ok {
		return
	}

	stats, err := service.Analytics().UnitStats(ctx, eventID, c.Param("unit_key"))
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, stats)
}

// GetOverallStats 活动统计
// GET /v1/events/:event_id/stats
func GetOverallStats(ctx context.Context, c *app.RequestContext) {
	eventID, ok := pathID(ctx, c, "event_id")
	if !ok {
		return
	}

	stats, err := service.Analytics().OverallStats(ctx, eventID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, stats)
}
