package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"Attendly/internal/model"
	"Attendly/internal/model/dto"
	"Attendly/internal/service"
	"Attendly/pkg/response"
)

// ResolveIdentity 扫码解析身份与团队名单，可以反复调用
// POST /v1/identity/resolve
func ResolveIdentity(ctx context.Context, c *app.RequestContext) {
	var req dto.ResolveIdentityRequest
	if !bindAndValidate(ctx, c, &req) {
		return
	}

	res, err := service.Identity().Resolve(ctx, req.Token, req.UnitKey)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, res)
}

// MarkRoster 扫码后为名单中的成员签到
// POST /v1/identity/mark
func MarkRoster(ctx context.Context, c *app.RequestContext) {
	operator, ok := operatorID(ctx, c)
	if !ok {
		return
	}

	var req dto.RosterMarkRequest
	if !bindAndValidate(ctx, c, &req) {
		return
	}

	result, err := service.Identity().MarkRoster(ctx, service.RosterMarkCommand{
		MarkedAt:           req.MarkedAt,
		Token:              req.Token,
		UnitKey:            req.UnitKey,
		MemberIDs:          req.MemberIDs,
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

// IssueIdentityToken 为报名签发二维码载荷
// POST /v1/registrations/:registration_id/identity-token
func IssueIdentityToken(ctx context.Context, c *app.RequestContext) {
	registrationID, ok := pathID(ctx, c, "registration_id")
	if !ok {
		return
	}

	issued, err := service.Identity().Issue(ctx, registrationID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Created(ctx, c, issued)
}
