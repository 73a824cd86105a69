package mq

import (
	"context"
	stderrors "errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"Attendly/pkg/errors"
	"Attendly/pkg/logger"
	mqotel "Attendly/pkg/mq"
)

type MessageHandler func(ctx context.Context, body []byte) error

type ConsumeOptions struct {
	Queue         string
	ConsumerTag   string
	PrefetchCount int
	Handler       MessageHandler
}

// Consume 阻塞消费直到 ctx 取消或 channel 关闭
// 处理失败 nack 重投；重复消息（SkipMessageError）直接 ack
func Consume(ctx context.Context, opts ConsumeOptions) error {
	if conn == nil {
		return fmt.Errorf("RabbitMQ connection is nil")
	}

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if opts.PrefetchCount > 0 {
		if err := ch.Qos(opts.PrefetchCount, 0, false); err != nil {
			return fmt.Errorf("failed to set QoS: %w", err)
		}
	}

	msgs, err := ch.ConsumeWithContext(ctx,
		opts.Queue,
		opts.ConsumerTag,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	logger.Logger.Info("Started consuming messages",
		zap.String("queue", opts.Queue),
		zap.String("consumer_tag", opts.ConsumerTag),
		zap.Int("prefetch_count", opts.PrefetchCount),
	)

	for msg := range msgs {
		handle(ctx, opts, msg)
	}
	return ctx.Err()
}

func handle(ctx context.Context, opts ConsumeOptions, msg amqp.Delivery) {
	msgCtx, span := mqotel.StartConsumeSpan(ctx, opts.Queue, msg)
	err := opts.Handler(msgCtx, msg.Body)

	var skip *errors.SkipMessageError
	switch {
	case err == nil:
		mqotel.EndSpan(span, nil)
		_ = msg.Ack(false)
	case stderrors.As(err, &skip):
		mqotel.EndSpan(span, nil)
		logger.Logger.Info("Skipping message",
			zap.String("queue", opts.Queue),
			zap.String("message_id", msg.MessageId),
			zap.String("reason", skip.Reason),
		)
		_ = msg.Ack(false)
	default:
		mqotel.EndSpan(span, err)
		logger.Logger.Error("Failed to process message",
			zap.String("queue", opts.Queue),
			zap.String("consumer_tag", opts.ConsumerTag),
			zap.String("message_id", msg.MessageId),
			zap.Error(err),
		)
		// 已经重投过一次的消息不再重投，避免毒消息无限循环
		_ = msg.Nack(false, !msg.Redelivered)
	}
}
