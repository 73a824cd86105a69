package storage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"Attendly/config"
	"Attendly/pkg/logger"
	"Attendly/storage/database"
	"Attendly/storage/mq"
	"Attendly/storage/redis"
)

// Close 优雅关闭所有存储连接，顺序 MQ -> Redis -> Database：
// 先停止收发签到事件，再断开缓存与锁，最后关闭流水所在的数据库
func Close() {
	if config.Cfg.IsMemoryBackend() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	logger.Logger.Info("Closing storage connections...")

	closers := []struct {
		name  string
		close func(context.Context) error
	}{
		{"message queue", mq.Close},
		{"redis", redis.Close},
		{"database", database.Close},
	}
	for _, c := range closers {
		if err := c.close(ctx); err != nil {
			logger.Logger.Error("Failed to close storage connection", zap.String("component", c.name), zap.Error(err))
			continue
		}
		logger.Logger.Info("Storage connection closed", zap.String("component", c.name))
	}

	logger.Logger.Info("All storage connections closed")
}
