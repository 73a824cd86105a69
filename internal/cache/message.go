package cache

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	messageProcessedPrefix = "message:processed"
	criteriaMetPrefix      = "criteria:met"

	processedTTL   = 48 * time.Hour
	criteriaMetTTL = 90 * 24 * time.Hour
)

// MessageGuard 消费端的幂等标记
type MessageGuard struct {
	client    goredis.Cmdable
	keyPrefix string
}

func NewMessageGuard(client goredis.Cmdable, keyPrefix string) *MessageGuard {
	return &MessageGuard{client: client, keyPrefix: keyPrefix}
}

func (g *MessageGuard) key(parts ...string) string {
	if g.keyPrefix == "" {
		return strings.Join(parts, ":")
	}
	return g.keyPrefix + ":" + strings.Join(parts, ":")
}

// TryMarkMessageProcessing 尝试原子性地标记消息正在处理（使用 SETNX）
// 返回 true 表示成功标记（首次处理），false 表示已被标记（重复消息或正在处理）
func (g *MessageGuard) TryMarkMessageProcessing(ctx context.Context, messageID string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = processedTTL
	}
	result, err := g.client.SetNX(ctx, g.key(messageProcessedPrefix, messageID), "processing", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark message as processing: %w", err)
	}
	return result, nil
}

// UnmarkMessageProcessing 处理失败时清除标记，允许重投后重试
func (g *MessageGuard) UnmarkMessageProcessing(ctx context.Context, messageID string) error {
	return g.client.Del(ctx, g.key(messageProcessedPrefix, messageID)).Err()
}

// MarkMessageProcessed 处理成功，延长 TTL
func (g *MessageGuard) MarkMessageProcessed(ctx context.Context, messageID string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = processedTTL
	}
	return g.client.Set(ctx, g.key(messageProcessedPrefix, messageID), "completed", ttl).Err()
}

func criteriaKey(eventID, registrationID int64) []string {
	return []string{criteriaMetPrefix, strconv.FormatInt(eventID, 10), strconv.FormatInt(registrationID, 10)}
}

// TryMarkCriteriaMet 每个报名只发一次"达标"事件
func (g *MessageGuard) TryMarkCriteriaMet(ctx context.Context, eventID, registrationID int64) (bool, error) {
	result, err := g.client.SetNX(ctx, g.key(criteriaKey(eventID, registrationID)...), "1", criteriaMetTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark criteria met: %w", err)
	}
	return result, nil
}

// UnmarkCriteriaMet 发布失败时回滚
func (g *MessageGuard) UnmarkCriteriaMet(ctx context.Context, eventID, registrationID int64) error {
	return g.client.Del(ctx, g.key(criteriaKey(eventID, registrationID)...)).Err()
}
