package storage

import (
	"Attendly/config"
	"Attendly/storage/database"
	"Attendly/storage/mq"
	"Attendly/storage/redis"
)

// 统一 init storage 层；memory 模式不连接任何外部依赖
func Init() error {
	if config.Cfg.IsMemoryBackend() {
		return nil
	}

	if err := database.Init(); err != nil {
		return err
	}

	if err := redis.Init(); err != nil {
		return err
	}

	return mq.Init()
}
