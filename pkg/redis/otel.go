package redis

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// TracingHook Redis 追踪 Hook
type TracingHook struct {
	tracer          trace.Tracer
	attrs           []attribute.KeyValue
	commandsTotal   metric.Int64Counter
	commandDuration metric.Float64Histogram
	cacheHits       metric.Int64Counter
	cacheMisses     metric.Int64Counter
}

// NewTracingHook 创建追踪 Hook
func NewTracingHook(serviceName string, db int) *TracingHook {
	meter := otel.Meter(serviceName + ".redis")
	th := &TracingHook{
		tracer: otel.Tracer(serviceName + ".redis"),
		attrs: []attribute.KeyValue{
			semconv.DBSystemRedis,
			semconv.DBRedisDBIndex(db),
		},
	}
	th.commandsTotal, _ = meter.Int64Counter("redis.commands.total",
		metric.WithDescription("Total number of Redis commands"),
		metric.WithUnit("{command}"),
	)
	th.commandDuration, _ = meter.Float64Histogram("redis.command.duration",
		metric.WithDescription("Redis command duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5),
	)
	th.cacheHits, _ = meter.Int64Counter("redis.cache.hits", metric.WithUnit("{hit}"))
	th.cacheMisses, _ = meter.Int64Counter("redis.cache.misses", metric.WithUnit("{miss}"))
	return th
}

// DialHook 实现 redis.Hook 接口
func (th *TracingHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

// ProcessHook 实现 redis.Hook 接口
func (th *TracingHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		ctx, span := th.tracer.Start(ctx, "redis."+cmd.Name(),
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(th.attrs...),
		)
		defer span.End()

		span.SetAttributes(semconv.DBOperation(cmd.Name()))
		if keys := extractKeys(cmd.Args()); len(keys) > 0 {
			span.SetAttributes(attribute.StringSlice("redis.keys", keys))
		}

		start := time.Now()
		err := next(ctx, cmd)

		status := "success"
		switch {
		case err == nil:
			span.SetStatus(codes.Ok, "")
		case stderrors.Is(err, redis.Nil):
			status = "not_found"
			span.SetStatus(codes.Ok, "Key not found")
		default:
			status = "error"
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
		}

		attrs := metric.WithAttributes(
			attribute.String("redis.command", cmd.Name()),
			attribute.String("redis.status", status),
		)
		if th.commandsTotal != nil {
			th.commandsTotal.Add(ctx, 1, attrs)
		}
		if th.commandDuration != nil {
			th.commandDuration.Record(ctx, time.Since(start).Seconds(), attrs)
		}

		if cmd.Name() == "get" && th.cacheHits != nil && th.cacheMisses != nil {
			if status == "not_found" {
				th.cacheMisses.Add(ctx, 1)
			} else if status == "success" {
				th.cacheHits.Add(ctx, 1)
			}
		}

		return err
	}
}

// ProcessPipelineHook 实现 redis.Hook 接口
func (th *TracingHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		ctx, span := th.tracer.Start(ctx, "redis.pipeline",
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(th.attrs...),
		)
		defer span.End()

		names := make([]string, 0, len(cmds))
		for _, cmd := range cmds {
			names = append(names, cmd.Name())
		}
		span.SetAttributes(
			attribute.Int("redis.pipeline.count", len(cmds)),
			attribute.String("redis.pipeline.commands", strings.Join(names, ";")),
		)

		err := next(ctx, cmds)
		if err != nil && !stderrors.Is(err, redis.Nil) {
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
		}
		return err
	}
}

// extractKeys 只记录前几个键名，不记录值
func extractKeys(args []interface{}) []string {
	if len(args) < 2 {
		return nil
	}
	keys := make([]string, 0, 1)
	if key, ok := args[1].(string); ok {
		keys = append(keys, sanitizeKey(key))
	}
	return keys
}

// sanitizeKey 清理键名，移除敏感信息
func sanitizeKey(key string) string {
	if strings.Contains(key, "token") || strings.Contains(key, "secret") {
		if i := strings.Index(key, ":"); i > 0 {
			return key[:i] + ":***"
		}
		return "***"
	}
	if len(key) > 100 {
		return key[:100] + "..."
	}
	return key
}

// InstrumentClient 为 Redis 客户端添加 OpenTelemetry 支持
func InstrumentClient(client *redis.Client, serviceName string, db int) {
	client.AddHook(NewTracingHook(serviceName, db))
}
