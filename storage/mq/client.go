package mq

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"Attendly/config"
	"Attendly/pkg/logger"
)

// 路由键与队列
const (
	RoutingMarkRecorded = "attendance.mark.recorded"
	RoutingCriteriaMet  = "attendance.criteria.met"

	QueueCriteriaWatcher = "attendance.criteria.watcher"
	QueueCriteriaMet     = "attendance.criteria.met"
)

var (
	conn     *amqp.Connection
	connOnce sync.Once
	connErr  error
)

func Init() error {
	connOnce.Do(func() {
		conn, connErr = amqp.Dial(config.Cfg.GetRabbitMQURL())
		if connErr != nil {
			connErr = fmt.Errorf("failed to dial rabbitmq: %w", connErr)
			return
		}
		connErr = declareTopology()
	})
	return connErr
}

func Connection() *amqp.Connection {
	return conn
}

// declareTopology 一个 topic 交换机，两条队列：worker 消费签到事件，下游消费达标事件
func declareTopology() error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	exchange := config.Cfg.MarkEventsExchange
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	bindings := map[string]string{
		QueueCriteriaWatcher: RoutingMarkRecorded,
		QueueCriteriaMet:     RoutingCriteriaMet,
	}
	for queue, key := range bindings {
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", queue, err)
		}
		if err := ch.QueueBind(queue, key, exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %s: %w", queue, err)
		}
	}

	logger.Logger.Info("RabbitMQ topology declared", zap.String("exchange", exchange))
	return nil
}

func Close(ctx context.Context) error {
	pubMutex.Lock()
	if publisherCh != nil {
		_ = publisherCh.Close()
		publisherCh = nil
	}
	pubMutex.Unlock()

	if conn == nil || conn.IsClosed() {
		return nil
	}
	return conn.Close()
}
