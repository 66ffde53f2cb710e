package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控指标
//
// 所有 Record/Update 方法对 nil 接收者安全，测试中可直接传 nil。
type Metrics struct {
	registry *prometheus.Registry

	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// 信件指标
	LettersPlaced       *prometheus.CounterVec
	LettersDeleted      prometheus.Counter
	PlacementRejections prometheus.Counter
	LettersActive       prometheus.Gauge
	LettersArchived     prometheus.Gauge

	// 阅读与收藏
	UnlockAttempts *prometheus.CounterVec
	ReceiptsStored prometheus.Counter
	AwardsGranted  *prometheus.CounterVec
	Deposits       *prometheus.CounterVec

	// 用户与连接
	UsersRegistered prometheus.Counter
	UsersTotal      prometheus.Gauge
	WSConnections   prometheus.Gauge

	// 后端资源
	DatabaseConnections prometheus.Gauge
	MailsSent           *prometheus.CounterVec

	// 错误与限流
	ErrorsTotal     *prometheus.CounterVec
	PanicsTotal     prometheus.Counter
	RateLimitBlocks *prometheus.CounterVec
}

// NewMetrics 创建监控指标，使用独立的注册表
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "okitegami_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "okitegami_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		HTTPResponseSize: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "okitegami_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "endpoint"},
		),

		LettersPlaced: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "okitegami_letters_placed_total",
				Help: "Total number of letters placed, by category",
			},
			[]string{"category"},
		),
		LettersDeleted: f.NewCounter(
			prometheus.CounterOpts{
				Name: "okitegami_letters_deleted_total",
				Help: "Total number of letters deleted (replies included)",
			},
		),
		PlacementRejections: f.NewCounter(
			prometheus.CounterOpts{
				Name: "okitegami_placement_rejections_total",
				Help: "Placements rejected for being too close to an active letter",
			},
		),
		LettersActive: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "okitegami_letters_active",
				Help: "Number of letters currently on the map",
			},
		),
		LettersArchived: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "okitegami_letters_archived",
				Help: "Number of expired user letters",
			},
		),

		UnlockAttempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "okitegami_unlock_attempts_total",
				Help: "Secret unlock attempts, by result",
			},
			[]string{"result"},
		),
		ReceiptsStored: f.NewCounter(
			prometheus.CounterOpts{
				Name: "okitegami_receipts_stored_total",
				Help: "Read receipts newly stored",
			},
		),
		AwardsGranted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "okitegami_awards_granted_total",
				Help: "Collectible awards granted, by trigger",
			},
			[]string{"trigger"},
		),
		Deposits: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "okitegami_postbox_deposits_total",
				Help: "PostBox deposit attempts, by result",
			},
			[]string{"result"},
		),

		UsersRegistered: f.NewCounter(
			prometheus.CounterOpts{
				Name: "okitegami_users_registered_total",
				Help: "Total number of users registered",
			},
		),
		UsersTotal: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "okitegami_users",
				Help: "Number of registered users",
			},
		),
		WSConnections: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "okitegami_websocket_connections",
				Help: "Number of open live feed connections",
			},
		),

		DatabaseConnections: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "okitegami_database_connections",
				Help: "Number of acquired database connections",
			},
		),
		MailsSent: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "okitegami_mails_sent_total",
				Help: "Welcome mails sent, by result",
			},
			[]string{"result"},
		),

		ErrorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "okitegami_errors_total",
				Help: "Total number of errors",
			},
			[]string{"type", "component"},
		),
		PanicsTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "okitegami_panics_total",
				Help: "Total number of recovered panics",
			},
		),
		RateLimitBlocks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "okitegami_rate_limit_blocks_total",
				Help: "Requests rejected by the rate limiter",
			},
			[]string{"scope"},
		),
	}
}

// Registry 返回指标注册表
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest 记录 HTTP 请求指标
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration, responseSize int64) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	if responseSize >= 0 {
		m.HTTPResponseSize.WithLabelValues(method, endpoint).Observe(float64(responseSize))
	}
}

// RecordLetterPlaced 记录信件放置
func (m *Metrics) RecordLetterPlaced(category string) {
	if m == nil {
		return
	}
	m.LettersPlaced.WithLabelValues(category).Inc()
}

// RecordLettersDeleted 记录删除的信件数
func (m *Metrics) RecordLettersDeleted(n int) {
	if m == nil {
		return
	}
	m.LettersDeleted.Add(float64(n))
}

// RecordPlacementRejected 记录间距检查拒绝
func (m *Metrics) RecordPlacementRejected() {
	if m == nil {
		return
	}
	m.PlacementRejections.Inc()
}

// RecordUnlockAttempt 记录解锁尝试，result 为 success 或 mismatch
func (m *Metrics) RecordUnlockAttempt(result string) {
	if m == nil {
		return
	}
	m.UnlockAttempts.WithLabelValues(result).Inc()
}

// RecordReceipt 记录新增的已读记录
func (m *Metrics) RecordReceipt() {
	if m == nil {
		return
	}
	m.ReceiptsStored.Inc()
}

// RecordAward 记录收藏品发放
func (m *Metrics) RecordAward(trigger string) {
	if m == nil {
		return
	}
	m.AwardsGranted.WithLabelValues(trigger).Inc()
}

// RecordDeposit 记录回信投递结果
func (m *Metrics) RecordDeposit(result string) {
	if m == nil {
		return
	}
	m.Deposits.WithLabelValues(result).Inc()
}

// RecordUserRegistered 记录用户注册
func (m *Metrics) RecordUserRegistered() {
	if m == nil {
		return
	}
	m.UsersRegistered.Inc()
}

// RecordMailSent 记录邮件发送结果
func (m *Metrics) RecordMailSent(result string) {
	if m == nil {
		return
	}
	m.MailsSent.WithLabelValues(result).Inc()
}

// RecordError 记录错误
func (m *Metrics) RecordError(errorType, component string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordPanic 记录 panic
func (m *Metrics) RecordPanic() {
	if m == nil {
		return
	}
	m.PanicsTotal.Inc()
}

// RecordRateLimitBlock 记录限流阻止
func (m *Metrics) RecordRateLimitBlock(scope string) {
	if m == nil {
		return
	}
	m.RateLimitBlocks.WithLabelValues(scope).Inc()
}

// UpdateLetterCounts 更新地图上与已归档的信件数
func (m *Metrics) UpdateLetterCounts(active, archived int) {
	if m == nil {
		return
	}
	m.LettersActive.Set(float64(active))
	m.LettersArchived.Set(float64(archived))
}

// UpdateUsersTotal 更新用户总数
func (m *Metrics) UpdateUsersTotal(count int) {
	if m == nil {
		return
	}
	m.UsersTotal.Set(float64(count))
}

// UpdateWSConnections 更新 WebSocket 连接数
func (m *Metrics) UpdateWSConnections(count int) {
	if m == nil {
		return
	}
	m.WSConnections.Set(float64(count))
}

// UpdateDatabaseConnections 更新数据库连接数
func (m *Metrics) UpdateDatabaseConnections(count int) {
	if m == nil {
		return
	}
	m.DatabaseConnections.Set(float64(count))
}

// HTTPHandler 返回 Prometheus HTTP 处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
