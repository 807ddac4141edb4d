package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 台账相关 Prometheus 指标
type Metrics struct {
	registry prometheus.Gatherer

	// EntriesRecorded 已写入的流水条数，标签 kind/operation
	EntriesRecorded *prometheus.CounterVec
	// StockRejections 因库存不足被拒绝的出库，标签 kind
	StockRejections *prometheus.CounterVec
	// WriteRetries 临时性存储错误导致的重试，标签 operation
	WriteRetries *prometheus.CounterVec
	// LineageCycles 检测到的谱系异常
	LineageCycles prometheus.Counter
	// TraceDuration 溯源重建耗时
	TraceDuration prometheus.Histogram
	// RollupDuration 汇总查询耗时，标签 level/metric
	RollupDuration *prometheus.HistogramVec
	// AuditIssues 完整性巡检发现的问题数，标签 issue
	AuditIssues *prometheus.GaugeVec
}

// New 创建并注册指标；registry 为空时使用独立注册表
func New(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		EntriesRecorded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coopledger_entries_recorded_total",
				Help: "Total number of ledger entries appended",
			},
			[]string{"kind", "operation"},
		),
		StockRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coopledger_insufficient_stock_total",
				Help: "Total number of outflows rejected for insufficient stock",
			},
			[]string{"kind"},
		),
		WriteRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coopledger_write_retries_total",
				Help: "Total number of ledger write retries after transient store errors",
			},
			[]string{"operation"},
		),
		LineageCycles: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "coopledger_lineage_cycles_total",
				Help: "Total number of lineage traversals aborted by cycle or depth guard",
			},
		),
		TraceDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "coopledger_trace_duration_seconds",
				Help:    "Time taken to reconstruct a traceability report",
				Buckets: prometheus.DefBuckets,
			},
		),
		RollupDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coopledger_rollup_duration_seconds",
				Help:    "Time taken to compute a rollup",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"level", "metric"},
		),
		AuditIssues: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "coopledger_audit_issues",
				Help: "Issues found by the last ledger integrity audit",
			},
			[]string{"issue"},
		),
	}
}

// Handler 返回 /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveEntry 记录流水写入
func (m *Metrics) ObserveEntry(kind, operation string) {
	if m == nil {
		return
	}
	m.EntriesRecorded.WithLabelValues(kind, operation).Inc()
}

// ObserveStockRejection 记录库存不足拒绝
func (m *Metrics) ObserveStockRejection(kind string) {
	if m == nil {
		return
	}
	m.StockRejections.WithLabelValues(kind).Inc()
}

// ObserveRetry 记录写入重试
func (m *Metrics) ObserveRetry(operation string) {
	if m == nil {
		return
	}
	m.WriteRetries.WithLabelValues(operation).Inc()
}

// ObserveLineageCycle 记录谱系异常
func (m *Metrics) ObserveLineageCycle() {
	if m == nil {
		return
	}
	m.LineageCycles.Inc()
}

// ObserveTrace 记录溯源耗时
func (m *Metrics) ObserveTrace(startedAt time.Time) {
	if m == nil {
		return
	}
	m.TraceDuration.Observe(time.Since(startedAt).Seconds())
}

// ObserveRollup 记录汇总耗时
func (m *Metrics) ObserveRollup(level, metric string, startedAt time.Time) {
	if m == nil {
		return
	}
	m.RollupDuration.WithLabelValues(level, metric).Observe(time.Since(startedAt).Seconds())
}

// SetAuditIssues 更新巡检问题计数
func (m *Metrics) SetAuditIssues(counts map[string]int) {
	if m == nil {
		return
	}
	m.AuditIssues.Reset()
	for issue, count := range counts {
		m.AuditIssues.WithLabelValues(issue).Set(float64(count))
	}
}
