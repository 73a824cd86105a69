package middleware

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/config"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

type httpMetrics struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
	respSize metric.Int64Histogram
	active   metric.Int64UpDownCounter
}

var (
	serverMetrics     *httpMetrics
	serverMetricsOnce sync.Once
)

// toValidUTF8 统一清洗用户可控字符串，防止非法 UTF-8 触发指标/trace 序列化失败
func toValidUTF8(val string) string {
	return strings.ToValidUTF8(val, "")
}

func newHTTPMetrics(meter metric.Meter) (*httpMetrics, error) {
	m := &httpMetrics{}
	var err error

	if m.requests, err = meter.Int64Counter(
		"http.server.requests.total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}

	if m.duration, err = meter.Float64Histogram(
		"http.server.duration",
		metric.WithDescription("HTTP request duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0),
	); err != nil {
		return nil, err
	}

	if m.respSize, err = meter.Int64Histogram(
		"http.server.response.size",
		metric.WithDescription("HTTP response size"),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}

	if m.active, err = meter.Int64UpDownCounter(
		"http.server.active_requests",
		metric.WithDescription("Number of active HTTP requests"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

var serverMetricsErr error

// initHTTPMetrics 创建失败时中间件退化为直接放行
func initHTTPMetrics() error {
	serverMetricsOnce.Do(func() {
		serverMetrics, serverMetricsErr = newHTTPMetrics(otel.Meter("attendly-http"))
	})
	return serverMetricsErr
}

// MetricsMiddleware HTTP 指标；span 由 hertztracing 负责，这里只补充操作员属性
func MetricsMiddleware() app.HandlerFunc {
	_ = initHTTPMetrics()
	m := serverMetrics

	return func(ctx context.Context, c *app.RequestContext) {
		if m == nil {
			c.Next(ctx)
			return
		}

		start := time.Now()
		m.active.Add(ctx, 1)
		defer m.active.Add(ctx, -1)

		c.Next(ctx)

		// 路由模板而不是实际路径，避免 ID 撑爆标签
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		labels := metric.WithAttributes(
			semconv.HTTPMethod(toValidUTF8(string(c.Method()))),
			semconv.HTTPRoute(route),
			semconv.HTTPStatusCode(c.Response.StatusCode()),
		)

		m.requests.Add(ctx, 1, labels)
		m.duration.Record(ctx, time.Since(start).Seconds(), labels)
		if size := int64(len(c.Response.Body())); size > 0 {
			m.respSize.Record(ctx, size, labels)
		}

		if operator, ok := GetOperatorID(ctx, c); ok {
			trace.SpanFromContext(ctx).SetAttributes(attribute.String("enduser.id", toValidUTF8(operator)))
		}
	}
}

// NewServerTracerConfig 创建 Hertz Server 的追踪配置
// 返回用于初始化 Hertz server 的配置选项和追踪中间件
func NewServerTracerConfig(opts ...hertztracing.Option) (config.Option, app.HandlerFunc) {
	tracer, cfg := hertztracing.NewServerTracer(opts...)
	return tracer, hertztracing.ServerMiddleware(cfg)
}
