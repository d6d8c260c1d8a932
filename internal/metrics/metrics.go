package metrics

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"speedtest/internal/eventbus"
	"speedtest/internal/model"
)

// 探针方向
const (
	DirectionUpload   = "upload"
	DirectionDownload = "download"
)

// Metrics 服务监控指标，方法对 nil 接收者安全
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	ResultsSubmitted *prometheus.CounterVec
	ResultsRejected  *prometheus.CounterVec
	ResultsCleared   prometheus.Counter
	ResultsStored    prometheus.Gauge
	ProbeBytes       *prometheus.CounterVec

	storedMu sync.Mutex
	stored   StoredCounter
}

// StoredCounter 当前存储的结果数量来源
type StoredCounter interface {
	Count(ctx context.Context) (int64, error)
}

// New 创建指标并注册到独立的 Registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		ResultsSubmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "speedtest_results_submitted_total",
				Help: "Total number of stored speed test results",
			},
			[]string{"test_type"},
		),
		ResultsRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "speedtest_results_rejected_total",
				Help: "Total number of rejected result submissions by field",
			},
			[]string{"field"},
		),
		ResultsCleared: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "speedtest_results_cleared_total",
				Help: "Total number of clear-all operations",
			},
		),
		ResultsStored: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "speedtest_results_stored",
				Help: "Number of results currently stored",
			},
		),
		ProbeBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "speedtest_probe_bytes_total",
				Help: "Bytes moved by the transfer probe",
			},
			[]string{"direction"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RequestsTotal,
		m.RequestDuration,
		m.ResultsSubmitted,
		m.ResultsRejected,
		m.ResultsCleared,
		m.ResultsStored,
		m.ProbeBytes,
	)
	return m
}

// Handler 返回 /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware 记录请求数量和耗时，路径使用路由模板
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.RequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
		m.RequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

// ObserveRejected 记录一次被拒绝的提交
func (m *Metrics) ObserveRejected(field string) {
	if m == nil {
		return
	}
	m.ResultsRejected.WithLabelValues(field).Inc()
}

// AddProbeBytes 累加探针传输字节数
func (m *Metrics) AddProbeBytes(direction string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.ProbeBytes.WithLabelValues(direction).Add(float64(n))
}

// TrackStored 结果事件发生后从 counter 重新读取存储数量
func (m *Metrics) TrackStored(counter StoredCounter) {
	if m == nil {
		return
	}
	m.storedMu.Lock()
	m.stored = counter
	m.storedMu.Unlock()
}

// RefreshStored 读取存储数量并更新 gauge
//
// 读取和设置在同一把锁内完成，最后一次设置总是来自最后一次读取。
func (m *Metrics) RefreshStored(ctx context.Context, counter StoredCounter) error {
	if m == nil || counter == nil {
		return nil
	}
	m.storedMu.Lock()
	defer m.storedMu.Unlock()

	total, err := counter.Count(ctx)
	if err != nil {
		return err
	}
	m.ResultsStored.Set(float64(total))
	return nil
}

// HandleEvent 根据结果事件更新指标
func (m *Metrics) HandleEvent(event eventbus.Event) error {
	if m == nil {
		return nil
	}
	switch event.GetType() {
	case eventbus.EventResultCreated:
		testType, _ := event.GetData()["testType"].(string)
		m.ResultsSubmitted.WithLabelValues(testTypeLabel(testType)).Inc()
	case eventbus.EventResultsCleared:
		m.ResultsCleared.Inc()
	default:
		return nil
	}

	m.storedMu.Lock()
	counter := m.stored
	m.storedMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.RefreshStored(ctx, counter)
}

// testTypeLabel 限制标签取值，testType 由客户端提交
func testTypeLabel(testType string) string {
	switch testType {
	case model.DefaultTestType, "manual":
		return testType
	default:
		return "other"
	}
}
