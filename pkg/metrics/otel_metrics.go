package metrics

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics 签到引擎的指标集合
type OTelMetrics struct {
	MarksAppendedTotal     metric.Int64Counter
	MarkAppendDuration     metric.Float64Histogram
	BulkMarkItemsTotal     metric.Int64Counter
	BulkMarkSize           metric.Int64Histogram
	IdentityResolveTotal   metric.Int64Counter
	EvaluationDuration     metric.Float64Histogram
	MarkEventsPublishTotal metric.Int64Counter
}

var (
	// 全局指标实例
	metrics *OTelMetrics
	once    sync.Once
	initErr error
)

// InitMetrics 初始化指标。全局 meter 是代理实现，SetMeterProvider 之前创建的指标也会生效
func InitMetrics() error {
	once.Do(func() {
		metrics, initErr = newOTelMetrics(otel.Meter("attendly"))
	})
	return initErr
}

func newOTelMetrics(meter metric.Meter) (*OTelMetrics, error) {
	m := &OTelMetrics{}
	var err error

	m.MarksAppendedTotal, err = meter.Int64Counter(
		"attendance_marks_appended_total",
		metric.WithDescription("Total number of attendance marks appended to the ledger"),
		metric.WithUnit("{mark}"),
	)
	if err != nil {
		return nil, err
	}

	m.MarkAppendDuration, err = meter.Float64Histogram(
		"attendance_mark_append_duration_seconds",
		metric.WithDescription("Time spent validating and appending a single mark"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.BulkMarkItemsTotal, err = meter.Int64Counter(
		"attendance_bulk_mark_items_total",
		metric.WithDescription("Bulk mark items by outcome"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		return nil, err
	}

	m.BulkMarkSize, err = meter.Int64Histogram(
		"attendance_bulk_mark_size",
		metric.WithDescription("Number of registrations per bulk mark request"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		return nil, err
	}

	m.IdentityResolveTotal, err = meter.Int64Counter(
		"attendance_identity_resolve_total",
		metric.WithDescription("Identity token resolutions by outcome"),
		metric.WithUnit("{scan}"),
	)
	if err != nil {
		return nil, err
	}

	m.EvaluationDuration, err = meter.Float64Histogram(
		"attendance_evaluation_duration_seconds",
		metric.WithDescription("Time spent computing progress snapshots"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.MarkEventsPublishTotal, err = meter.Int64Counter(
		"attendance_mark_events_publish_total",
		metric.WithDescription("Mark events handed to the message queue by outcome"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// GetMetrics 获取全局指标实例，初始化失败时返回 nil，调用方的 Record 方法都是 nil 安全的
func GetMetrics() *OTelMetrics {
	_ = InitMetrics()
	return metrics
}

// RecordMarkAppended 记录一次成功写入
func (m *OTelMetrics) RecordMarkAppended(ctx context.Context, status, method string, duration float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("status", status),
		attribute.String("verification_method", method),
	)
	m.MarksAppendedTotal.Add(ctx, 1, attrs)
	m.MarkAppendDuration.Record(ctx, duration, attrs)
}

// RecordBulkMark 记录批量签到的结果分布
func (m *OTelMetrics) RecordBulkMark(ctx context.Context, successful, failed int) {
	if m == nil {
		return
	}
	m.BulkMarkSize.Record(ctx, int64(successful+failed))
	m.BulkMarkItemsTotal.Add(ctx, int64(successful), metric.WithAttributes(attribute.String("outcome", "successful")))
	m.BulkMarkItemsTotal.Add(ctx, int64(failed), metric.WithAttributes(attribute.String("outcome", "failed")))
}

// RecordIdentityResolve 记录扫码解析结果，outcome 为 ok 或错误码
func (m *OTelMetrics) RecordIdentityResolve(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.IdentityResolveTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *OTelMetrics) RecordEvaluation(ctx context.Context, strategyType string, duration float64) {
	if m == nil {
		return
	}
	m.EvaluationDuration.Record(ctx, duration, metric.WithAttributes(attribute.String("strategy_type", strategyType)))
}

func (m *OTelMetrics) RecordMarkEventPublish(ctx context.Context, ok bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failed"
	}
	m.MarkEventsPublishTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
