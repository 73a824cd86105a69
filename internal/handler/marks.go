package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"Attendly/internal/model"
	"Attendly/internal/model/dto"
	"Attendly/internal/service"
	"Attendly/pkg/response"
)

// CreateMark 单条签到
// POST /v1/events/:event_id/marks
func CreateMark(ctx context.Context, c *app.RequestContext) {
	operator, ok := operatorID(ctx, c)
	if !ok {
		return
	}
	eventID, ok := pathID(ctx, c, "event_id")
	if !ok {
		return
	}

	var req dto.MarkRequest
	if !bindAndValidate(ctx, c, &req) {
		return
	}

	result, err := service.Marking().Mark(ctx, service.MarkCommand{
		MarkedAt:           req.MarkedAt,
		EventID:            eventID,
		RegistrationID:     req.RegistrationID,
		UnitKey:            req.UnitKey,
		Status:             model.MarkStatus(req.Status),
		VerificationMethod: model.VerificationMethod(req.VerificationMethod),
		MarkedBy:           operator,
		Notes:              req.Notes,
	})
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Created(ctx, c, result)
}

// BulkMark 批量签到；逐项成功或失败，整体总是 200
// POST /v1/events/:event_id/marks/bulk
func BulkMark(ctx context.Context, c *app.RequestContext) {
	operator, ok := operatorID(ctx, c)
	if !ok {
		return
	}
	eventID, ok := pathID(ctx, c, "event_id")
	if !ok {
		return
	}

	var req dto.BulkMarkRequest
	if !bindAndValidate(ctx, c, &req) {
		return
	}

	result, err := service.Marking().BulkMark(ctx, service.BulkMarkCommand{
		MarkedAt:           req.MarkedAt,
		EventID:            eventID,
		RegistrationIDs:    req.RegistrationIDs,
		UnitKey:            req.UnitKey,
		Status:             model.MarkStatus(req.Status),
		VerificationMethod: model.VerificationMethod(req.VerificationMethod),
		MarkedBy:           operator,
		Notes:              req.Notes,
	})
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.SuccessWithMeta(ctx, c, result, map[string]interface{}{
		"successful": len(result.Successful),
		"failed":     len(result.Failed),
	})
}

// GetProgress 报名的出勤进度
// GET /v1/registrations/:registration_id/progress
func GetProgress(ctx context.Context, c *app.RequestContext) {
	registrationID, ok := pathID(ctx, c, "registration_id")
	if !ok {
		return
	}

	snapshot, err := service.Criteria().Evaluate(ctx, registrationID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, snapshot)
}

// ListMarks 签到流水
// GET /v1/registrations/:registration_id/marks?unit_key=
func ListMarks(ctx context.Context, c *app.RequestContext) {
	registrationID, ok := pathID(ctx, c, "registration_id")
	if !ok {
		return
	}

	var query dto.MarkHistoryQuery
	if !bindAndValidate(ctx, c, &query) {
		return
	}

	marks, err := service.Marking().History(ctx, registrationID, query.UnitKey)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.SuccessWithMeta(ctx, c, marks, map[string]interface{}{"count": len(marks)})
}
