package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"Attendly/internal/model"
	"Attendly/internal/model/dto"
	"Attendly/internal/service"
	"Attendly/pkg/response"
)

// GetStrategy 查询活动签到策略
// GET /v1/events/:event_id/strategy
func GetStrategy(ctx context.Context, c *app.RequestContext) {
	eventID, ok := pathID(ctx, c, "event_id")
	if !ok {
		return
	}

	cfg, err := service.Strategy().Resolve(ctx, eventID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, cfg)
}

// ConfigureStrategy 配置活动签到策略，开始签到后不可修改
// PUT /v1/events/:event_id/strategy
func ConfigureStrategy(ctx context.Context, c *app.RequestContext) {
	eventID, ok := pathID(ctx, c, "event_id")
	if !ok {
		return
	}

	var req dto.ConfigureStrategyRequest
	if !bindAndValidate(ctx, c, &req) {
		return
	}

	cfg := &model.StrategyConfig{
		EventID:      eventID,
		StrategyType: model.StrategyType(req.StrategyType),
		Criteria:     model.Criteria{MinimumPercentage: req.MinimumPercentage},
	}
	for _, u := range req.Units {
		cfg.Units = append(cfg.Units, model.Unit{Key: u.Key, Label: u.Label, StartsAt: u.StartsAt, EndsAt: u.EndsAt})
	}
	for _, st := range req.AttendedStatuses {
		cfg.Criteria.AttendedStatuses = append(cfg.Criteria.AttendedStatuses, model.MarkStatus(st))
	}

	saved, err := service.Strategy().Configure(ctx, eventID, cfg)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, saved)
}
