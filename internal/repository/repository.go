package repository

import (
	"context"
	"time"

	"Attendly/internal/model"
)

// ========== 签到流水 ==========

// Ledger 只追加的签到流水。没有修改、删除接口，更正通过追加新记录完成
type Ledger interface {
	// Append 写入一条记录并回填写入序号（mark.ID）
	Append(ctx context.Context, mark *model.AttendanceMark) error

	// Read 按时间顺序返回某报名在某单元上的全部记录
	// SELECT * FROM attendance_marks
	// WHERE registration_id = @reg AND unit_key = @unit
	// ORDER BY marked_at ASC, id ASC
	Read(ctx context.Context, registrationID int64, unitKey string) ([]model.AttendanceMark, error)

	// Latest 返回生效的那条记录，没有记录返回 nil
	// SELECT * FROM attendance_marks
	// WHERE registration_id = @reg AND unit_key = @unit
	// ORDER BY marked_at DESC, id DESC
	// LIMIT 1
	Latest(ctx context.Context, registrationID int64, unitKey string) (*model.AttendanceMark, error)

	// LatestForRegistration 某报名在各单元上的最新记录
	LatestForRegistration(ctx context.Context, registrationID int64) (model.LatestByUnit, error)

	// LatestForEvent 整个活动的最新记录，统计使用
	LatestForEvent(ctx context.Context, eventID int64) (model.LatestByRegistration, error)

	// HasMarks 活动是否已有签到记录
	HasMarks(ctx context.Context, eventID int64) (bool, error)
}

// ========== 签到策略 ==========

// StrategyStore 每个活动一条策略记录
type StrategyStore interface {
	// Get 不存在时返回 (nil, nil)
	Get(ctx context.Context, eventID int64) (*model.StrategyConfig, error)

	// Save 新建或覆盖策略；已锁定的策略返回 STRATEGY_LOCKED
	Save(ctx context.Context, cfg *model.StrategyConfig) error

	// Lock 首次签到时锁定策略，返回本次调用是否真正加锁
	Lock(ctx context.Context, eventID int64, at time.Time) (bool, error)
}

// ========== 报名（外部只读） ==========

// RegistrationDirectory 外部报名服务的只读视图
type RegistrationDirectory interface {
	// Get 不存在时返回 REGISTRATION_NOT_FOUND
	Get(ctx context.Context, registrationID int64) (*model.Registration, error)

	// ListByEvent 活动下的有效报名，按 ID 排序
	ListByEvent(ctx context.Context, eventID int64) ([]model.Registration, error)

	// ListTeam 同一团队的有效成员，按 ID 排序
	ListTeam(ctx context.Context, teamRegistrationID int64) ([]model.Registration, error)
}
