package dto

import "time"

// ========== 签到策略 ==========

// UnitInput 单元配置
type UnitInput struct {
	StartsAt *time.Time `json:"starts_at,omitempty"`
	EndsAt   *time.Time `json:"ends_at,omitempty"`
	Key      string     `json:"key" validate:"required,max=64"`
	Label    string     `json:"label" validate:"max=128"`
}

// ConfigureStrategyRequest 配置活动签到策略
// PUT /v1/events/:event_id/strategy
type ConfigureStrategyRequest struct {
	StrategyType      string      `json:"strategy_type" validate:"required,oneof=single_mark session_based day_based"`
	Units             []UnitInput `json:"units" validate:"dive"`
	MinimumPercentage int         `json:"minimum_percentage" validate:"min=0,max=100"`
	AttendedStatuses  []string    `json:"attended_statuses" validate:"omitempty,dive,oneof=present absent excused"`
}

// ========== 签到 ==========

// MarkRequest 单条签到
// POST /v1/events/:event_id/marks
type MarkRequest struct {
	MarkedAt           *time.Time `json:"marked_at,omitempty"`
	RegistrationID     int64      `json:"registration_id" validate:"required,gt=0"`
	UnitKey            string     `json:"unit_key" validate:"max=64"`
	Status             string     `json:"status" validate:"required"`
	VerificationMethod string     `json:"verification_method" validate:"required"`
	Notes              string     `json:"notes" validate:"max=1024"`
}

// BulkMarkRequest 批量签到，同一单元、同一状态
// POST /v1/events/:event_id/marks/bulk
type BulkMarkRequest struct {
	MarkedAt           *time.Time `json:"marked_at,omitempty"`
	RegistrationIDs    []int64    `json:"registration_ids" validate:"dive,gt=0"`
	UnitKey            string     `json:"unit_key" validate:"max=64"`
	Status             string     `json:"status" validate:"required"`
	VerificationMethod string     `json:"verification_method" validate:"required"`
	Notes              string     `json:"notes" validate:"max=1024"`
}

// MarkHistoryQuery 签到流水查询
// GET /v1/registrations/:registration_id/marks
type MarkHistoryQuery struct {
	UnitKey string `query:"unit_key" validate:"max=64"`
}

// ========== 扫码 ==========

// ResolveIdentityRequest 扫码解析
// POST /v1/identity/resolve
type ResolveIdentityRequest struct {
	Token   string `json:"token" validate:"required"`
	UnitKey string `json:"unit_key" validate:"max=64"`
}

// RosterMarkRequest 扫码后为名单中的成员签到
// POST /v1/identity/mark
type RosterMarkRequest struct {
	MarkedAt           *time.Time `json:"marked_at,omitempty"`
	Token              string     `json:"token" validate:"required"`
	UnitKey            string     `json:"unit_key" validate:"max=64"`
	MemberIDs          []int64    `json:"member_ids" validate:"dive,gt=0"`
	Status             string     `json:"status" validate:"required"`
	VerificationMethod string     `json:"verification_method"`
	Notes              string     `json:"notes" validate:"max=1024"`
}
