package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"Attendly/internal/model"
	"Attendly/pkg/errors"
	"Attendly/pkg/logger"
	"Attendly/pkg/snowflake"
	"Attendly/storage/mq"
)

// Evaluator 由 service.CriteriaService 实现
type Evaluator interface {
	Evaluate(ctx context.Context, registrationID int64) (*model.ProgressSnapshot, error)
}

// Guard 消费幂等，由 cache.MessageGuard 实现
type Guard interface {
	TryMarkMessageProcessing(ctx context.Context, messageID string, ttl time.Duration) (bool, error)
	UnmarkMessageProcessing(ctx context.Context, messageID string) error
	MarkMessageProcessed(ctx context.Context, messageID string, ttl time.Duration) error
	TryMarkCriteriaMet(ctx context.Context, eventID, registrationID int64) (bool, error)
	UnmarkCriteriaMet(ctx context.Context, eventID, registrationID int64) error
}

// CriteriaWatcher 消费 attendance.mark.recorded，报名首次达标时发布 attendance.criteria.met
type CriteriaWatcher struct {
	evaluator Evaluator
	guard     Guard
	publish   PublishFunc
	exchange  string
	now       func() time.Time
}

func NewCriteriaWatcher(evaluator Evaluator, guard Guard, exchange string) *CriteriaWatcher {
	return &CriteriaWatcher{
		evaluator: evaluator,
		guard:     guard,
		publish:   mq.PublishMessage,
		exchange:  exchange,
		now:       time.Now,
	}
}

// Handle 处理一条签到消息；返回 SkipMessageError 表示重复投递
func (w *CriteriaWatcher) Handle(ctx context.Context, body []byte) error {
	var msg model.MarkRecordedMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		// 无法解析的消息重投也没用
		logger.Logger.Error("Dropping malformed mark recorded message", zap.Error(err))
		return &errors.SkipMessageError{Reason: fmt.Sprintf("malformed message: %v", err)}
	}

	// 【幂等性检查】使用 SETNX 原子性地检查并标记消息正在处理
	claimed, err := w.guard.TryMarkMessageProcessing(ctx, msg.MessageID, 24*time.Hour)
	if err != nil {
		logger.Logger.Warn("Failed to check message processed status",
			zap.String("message_id", msg.MessageID),
			zap.Error(err),
		)
	} else if !claimed {
		logger.Logger.Info("Message already processed or being processed, skipping",
			zap.String("message_id", msg.MessageID),
		)
		return &errors.SkipMessageError{Reason: fmt.Sprintf("Message %s already processed", msg.MessageID)}
	}

	if err := w.process(ctx, &msg); err != nil {
		if !errors.IsNotConfigured(err) && !errors.IsValidation(err) {
			// 处理失败，取消标记，允许重试
			_ = w.guard.UnmarkMessageProcessing(ctx, msg.MessageID)
			return err
		}
		// 策略被移除或报名已取消，重试也不会成功
		logger.Logger.Warn("Skipping criteria evaluation",
			zap.String("message_id", msg.MessageID),
			zap.Int64("registration_id", msg.RegistrationID),
			zap.Error(err),
		)
	}

	if err := w.guard.MarkMessageProcessed(ctx, msg.MessageID, 48*time.Hour); err != nil {
		logger.Logger.Warn("Failed to mark message as processed",
			zap.String("message_id", msg.MessageID),
			zap.Error(err),
		)
	}
	return nil
}

func (w *CriteriaWatcher) process(ctx context.Context, msg *model.MarkRecordedMessage) error {
	if msg.MarkID != 0 {
		logger.Logger.Debug("Evaluating criteria after mark",
			zap.Int64("mark_id", msg.MarkID),
			zap.Int64("registration_id", msg.RegistrationID),
			zap.Duration("delivery_lag", w.now().Sub(snowflake.Time(msg.MarkID))),
		)
	}

	snap, err := w.evaluator.Evaluate(ctx, msg.RegistrationID)
	if err != nil {
		return err
	}
	if !snap.MeetsCriteria {
		return nil
	}

	first, err := w.guard.TryMarkCriteriaMet(ctx, snap.EventID, snap.RegistrationID)
	if err != nil {
		return err
	}
	if !first {
		return nil
	}

	if err := publishCriteriaMet(ctx, w.publish, w.exchange, snap, w.now()); err != nil {
		_ = w.guard.UnmarkCriteriaMet(ctx, snap.EventID, snap.RegistrationID)
		return err
	}
	return nil
}

// Start 阻塞消费直到 ctx 取消
func (w *CriteriaWatcher) Start(ctx context.Context) error {
	return mq.Consume(ctx, mq.ConsumeOptions{
		Queue:         mq.QueueCriteriaWatcher,
		ConsumerTag:   "criteria_watcher_consumer",
		PrefetchCount: 20,
		Handler:       w.Handle,
	})
}

// Consumer 一个具名的阻塞消费者
type Consumer struct {
	Name  string
	Start func(context.Context) error
}

// StartAllConsumers 并发启动消费者，全部退出后返回
func StartAllConsumers(ctx context.Context, consumers ...Consumer) {
	var wg sync.WaitGroup

	for _, c := range consumers {
		wg.Add(1)
		go func(c Consumer) {
			defer wg.Done()

			logger.Logger.Info("Starting consumer",
				zap.String("consumer_name", c.Name),
			)

			if err := c.Start(ctx); err != nil {
				logger.Logger.Error("Consumer exited with error",
					zap.String("consumer_name", c.Name),
					zap.Error(err),
				)
			}
		}(c)
	}

	wg.Wait()

	logger.Logger.Info("All consumers stopped")
}
