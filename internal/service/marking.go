package service

import (
	"context"
	stderrors "errors"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"Attendly/internal/model"
	"Attendly/internal/repository"
	"Attendly/pkg/errors"
	"Attendly/pkg/logger"
	"Attendly/pkg/metrics"
	"Attendly/pkg/snowflake"
)

// MarkCommand 单条签到
type MarkCommand struct {
	MarkedAt           *time.Time
	EventID            int64
	RegistrationID     int64
	UnitKey            string
	Status             model.MarkStatus
	VerificationMethod model.VerificationMethod
	MarkedBy           string
	Notes              string
}

// BulkMarkCommand 批量签到，同一单元、同一状态
type BulkMarkCommand struct {
	MarkedAt           *time.Time
	EventID            int64
	RegistrationIDs    []int64
	UnitKey            string
	Status             model.MarkStatus
	VerificationMethod model.VerificationMethod
	MarkedBy           string
	Notes              string
}

func (c *BulkMarkCommand) item(registrationID int64) MarkCommand {
	return MarkCommand{
		MarkedAt:           c.MarkedAt,
		EventID:            c.EventID,
		RegistrationID:     registrationID,
		UnitKey:            c.UnitKey,
		Status:             c.Status,
		VerificationMethod: c.VerificationMethod,
		MarkedBy:           c.MarkedBy,
		Notes:              c.Notes,
	}
}

// MarkingConfig MarkingService 的依赖与参数
type MarkingConfig struct {
	Strategies    *StrategyService
	Criteria      *CriteriaService
	Ledger        repository.Ledger
	Registrations repository.RegistrationDirectory
	Publisher     MarkPublisher
	Concurrency   int
	MaxItems      int
	ClockSkew     time.Duration
}

// MarkingService 签到写入的唯一入口
type MarkingService struct {
	strategies    *StrategyService
	criteria      *CriteriaService
	ledger        repository.Ledger
	registrations repository.RegistrationDirectory
	publisher     MarkPublisher
	concurrency   int
	maxItems      int
	clockSkew     time.Duration
	now           func() time.Time
	nextID        func() (int64, error)
}

func NewMarkingService(c MarkingConfig) *MarkingService {
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.MaxItems <= 0 {
		c.MaxItems = 500
	}
	return &MarkingService{
		strategies:    c.Strategies,
		criteria:      c.Criteria,
		ledger:        c.Ledger,
		registrations: c.Registrations,
		publisher:     c.Publisher,
		concurrency:   c.Concurrency,
		maxItems:      c.MaxItems,
		clockSkew:     c.ClockSkew,
		now:           time.Now,
		nextID:        snowflake.NextID,
	}
}

// Mark 单条签到，校验失败直接返回错误
// 重复签到会追加新记录，但推导出的状态不变
func (s *MarkingService) Mark(ctx context.Context, cmd MarkCommand) (*model.MarkResult, error) {
	cfg, err := s.strategies.Resolve(ctx, cmd.EventID)
	if err != nil {
		return nil, err
	}

	mark, cfg, err := s.record(ctx, cfg, cmd)
	if err != nil {
		return nil, err
	}

	result := &model.MarkResult{Mark: *mark}
	progress, err := s.criteria.evaluate(ctx, cfg, mark.RegistrationID)
	if err != nil {
		// 流水已写入，进度可以稍后再查
		logger.Logger.Warn("Failed to evaluate progress after mark",
			zap.Int64("registration_id", mark.RegistrationID),
			zap.Error(err),
		)
		return result, nil
	}
	result.Progress = progress
	return result, nil
}

// BulkMark 非事务批量签到：逐项校验、逐项写入，失败项作为数据返回
// 结果顺序与请求一致；重复的 ID 视为重复签到
func (s *MarkingService) BulkMark(ctx context.Context, cmd BulkMarkCommand) (*model.BulkMarkResult, error) {
	if err := s.checkBatch(cmd.EventID, len(cmd.RegistrationIDs)); err != nil {
		return nil, err
	}

	// 活动未配置时每一项都会失败，整体拒绝
	cfg, err := s.strategies.Resolve(ctx, cmd.EventID)
	if err != nil {
		return nil, err
	}

	errs := s.markEach(ctx, cfg, &cmd)
	return s.collect(ctx, &cmd, errs), nil
}

// markEach 有界并发逐项写入，返回与 RegistrationIDs 下标对齐的错误
func (s *MarkingService) markEach(ctx context.Context, cfg *model.StrategyConfig, cmd *BulkMarkCommand) []error {
	// 同一批次共用一个时间戳，重复项按写入顺序决胜
	if cmd.MarkedAt == nil {
		now := s.now().UTC()
		cmd.MarkedAt = &now
	}

	errs := make([]error, len(cmd.RegistrationIDs))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, id := range cmd.RegistrationIDs {
		if ctx.Err() != nil {
			errs[i] = errors.Wrap(errors.MarkCancelled, "registration %d", id)
			continue
		}
		i, id := i, id
		g.Go(func() error {
			if ctx.Err() != nil {
				errs[i] = errors.Wrap(errors.MarkCancelled, "registration %d", id)
				return nil
			}
			_, _, errs[i] = s.record(ctx, cfg, cmd.item(id))
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

func (s *MarkingService) collect(ctx context.Context, cmd *BulkMarkCommand, errs []error) *model.BulkMarkResult {
	result := &model.BulkMarkResult{
		Successful: make([]int64, 0, len(cmd.RegistrationIDs)),
		Failed:     make([]model.BulkFailure, 0),
	}
	for i, id := range cmd.RegistrationIDs {
		if errs[i] == nil {
			result.Successful = append(result.Successful, id)
			continue
		}
		result.Failed = append(result.Failed, failureOf(id, errs[i]))
	}

	metrics.GetMetrics().RecordBulkMark(ctx, len(result.Successful), len(result.Failed))
	logger.Logger.Info("Bulk mark finished",
		zap.Int64("event_id", cmd.EventID),
		zap.String("unit_key", cmd.UnitKey),
		zap.Int("successful", len(result.Successful)),
		zap.Int("failed", len(result.Failed)),
	)
	return result
}

func (s *MarkingService) checkBatch(eventID int64, n int) error {
	if n == 0 {
		return errors.Wrap(errors.BulkEmpty, "event %d", eventID)
	}
	if n > s.maxItems {
		return errors.Wrap(errors.BulkTooLarge, "%d items, limit %d", n, s.maxItems)
	}
	return nil
}

// failureOf 业务错误原样透传（包括外部报名服务的容量错误），其他错误不暴露细节
func failureOf(registrationID int64, err error) model.BulkFailure {
	if def, ok := errors.As(err); ok {
		return model.BulkFailure{RegistrationID: registrationID, Code: def.Code, Reason: err.Error()}
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return model.BulkFailure{RegistrationID: registrationID, Code: errors.MarkCancelled.Code, Reason: errors.MarkCancelled.Message}
	}

	logger.Logger.Error("Bulk mark item failed",
		zap.Int64("registration_id", registrationID),
		zap.Error(err),
	)
	return model.BulkFailure{RegistrationID: registrationID, Code: "INTERNAL_ERROR", Reason: "Internal server error"}
}

// record 校验并写入一条记录，返回写入的记录与锁定后的策略
func (s *MarkingService) record(ctx context.Context, cfg *model.StrategyConfig, cmd MarkCommand) (*model.AttendanceMark, *model.StrategyConfig, error) {
	if !cmd.Status.Valid() {
		return nil, nil, errors.Wrap(errors.InvalidMarkStatus, "got %q", cmd.Status)
	}
	if !cmd.VerificationMethod.Valid() {
		return nil, nil, errors.Wrap(errors.InvalidVerificationMethod, "got %q", cmd.VerificationMethod)
	}
	if cmd.MarkedBy == "" {
		return nil, nil, errors.Wrap(errors.InvalidRequest, "marked_by is required")
	}
	markedAt, err := s.markedAt(cmd.MarkedAt)
	if err != nil {
		return nil, nil, err
	}

	reg, err := s.registrations.Get(ctx, cmd.RegistrationID)
	if err != nil {
		return nil, nil, err
	}
	if reg.EventID != cmd.EventID {
		return nil, nil, errors.Wrap(errors.RegistrationNotInEvent, "registration %d, event %d", reg.ID, cmd.EventID)
	}
	if !reg.IsActive() {
		return nil, nil, errors.Wrap(errors.RegistrationInactive, "registration %d", reg.ID)
	}
	if err := cfg.CheckUnitKey(cmd.UnitKey); err != nil {
		return nil, nil, err
	}

	cfg, err = s.strategies.lockForMarking(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.CheckUnitKey(cmd.UnitKey); err != nil {
		return nil, nil, err
	}

	publicID, err := s.nextID()
	if err != nil {
		return nil, nil, err
	}

	mark := &model.AttendanceMark{
		PublicID:           publicID,
		EventID:            cmd.EventID,
		RegistrationID:     reg.ID,
		UnitKey:            cmd.UnitKey,
		Status:             cmd.Status,
		VerificationMethod: cmd.VerificationMethod,
		MarkedBy:           cmd.MarkedBy,
		MarkedAt:           markedAt,
		Notes:              cmd.Notes,
	}

	start := time.Now()
	if err := s.ledger.Append(ctx, mark); err != nil {
		return nil, nil, err
	}
	metrics.GetMetrics().RecordMarkAppended(ctx, string(mark.Status), string(mark.VerificationMethod), time.Since(start).Seconds())

	s.publish(ctx, mark)
	return mark, cfg, nil
}

// markedAt 离线设备可以带上本地时间，但不能超前服务器太多
func (s *MarkingService) markedAt(supplied *time.Time) (time.Time, error) {
	now := s.now().UTC()
	if supplied == nil || supplied.IsZero() {
		return now, nil
	}
	if supplied.After(now.Add(s.clockSkew)) {
		return time.Time{}, errors.Wrap(errors.MarkedAtInFuture, "%s is after server time %s", supplied.UTC().Format(time.RFC3339), now.Format(time.RFC3339))
	}
	return supplied.UTC(), nil
}

func (s *MarkingService) publish(ctx context.Context, mark *model.AttendanceMark) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.PublishMarkRecorded(ctx, mark)
	metrics.GetMetrics().RecordMarkEventPublish(ctx, err == nil)
	if err != nil {
		logger.Logger.Warn("Failed to publish mark recorded event",
			zap.Int64("mark_id", mark.PublicID),
			zap.Int64("registration_id", mark.RegistrationID),
			zap.Error(err),
		)
	}
}

// History 签到流水（审计用）；多单元策略不传 unit_key 时返回全部单元
func (s *MarkingService) History(ctx context.Context, registrationID int64, unitKey string) ([]model.AttendanceMark, error) {
	reg, err := s.registrations.Get(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	cfg, err := s.strategies.Resolve(ctx, reg.EventID)
	if err != nil {
		return nil, err
	}

	if unitKey != "" || !cfg.StrategyType.MultiUnit() {
		if err := cfg.CheckUnitKey(unitKey); err != nil {
			return nil, err
		}
		return s.ledger.Read(ctx, reg.ID, unitKey)
	}

	var all []model.AttendanceMark
	for _, key := range cfg.UnitKeys() {
		marks, err := s.ledger.Read(ctx, reg.ID, key)
		if err != nil {
			return nil, err
		}
		all = append(all, marks...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[j].Supersedes(&all[i])
	})
	return all, nil
}
