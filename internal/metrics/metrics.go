// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層、ミドルウェア、リポジトリ、ワーカーから利用する。
type MetricsCollector interface {
	RecordCustomerResolved(created bool)
	RecordVisitRecorded()
	RecordAdminLogin(success bool)
	RecordRateLimited(limit string)
	RecordHTTPStatus(statusCode int)
	ObserveStoreLatency(operation string, duration time.Duration)
	RecordSessionsPurged(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	customersResolved *prometheus.CounterVec
	visitsRecorded    prometheus.Counter
	adminLogins       *prometheus.CounterVec
	rateLimited       *prometheus.CounterVec
	httpStatus        *prometheus.CounterVec
	storeLatency      *prometheus.HistogramVec
	sessionsPurged    prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		customersResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loyalty_customers_resolved_total",
			Help: "電話番号による顧客名寄せの件数（created: 新規登録, existing: 既存顧客）",
		}, []string{"result"}),
		visitsRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loyalty_visits_recorded_total",
			Help: "来店回数を加算したチェックインの合計数",
		}),
		adminLogins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loyalty_admin_logins_total",
			Help: "管理者ログイン試行の結果別件数",
		}, []string{"result"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loyalty_rate_limited_total",
			Help: "レート制限で拒否したリクエスト数",
		}, []string{"limit"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loyalty_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		storeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "loyalty_store_latency_seconds",
			Help:    "ストア操作のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		sessionsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loyalty_sessions_purged_total",
			Help: "クリーンアップで削除した期限切れセッションの合計数",
		}),
	}

	reg.MustRegister(
		c.customersResolved,
		c.visitsRecorded,
		c.adminLogins,
		c.rateLimited,
		c.httpStatus,
		c.storeLatency,
		c.sessionsPurged,
	)

	return c
}

// RecordCustomerResolved は顧客の名寄せ結果を記録する。
func (c *Collector) RecordCustomerResolved(created bool) {
	result := "existing"
	if created {
		result = "created"
	}
	c.customersResolved.WithLabelValues(result).Inc()
}

// RecordVisitRecorded は来店回数の加算を記録する。
func (c *Collector) RecordVisitRecorded() {
	c.visitsRecorded.Inc()
}

// RecordAdminLogin は管理者ログインの結果を記録する。
func (c *Collector) RecordAdminLogin(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	c.adminLogins.WithLabelValues(result).Inc()
}

// RecordRateLimited はレート制限による拒否を記録する。
func (c *Collector) RecordRateLimited(limit string) {
	c.rateLimited.WithLabelValues(limit).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// ObserveStoreLatency はストア操作のレイテンシを記録する。
func (c *Collector) ObserveStoreLatency(operation string, duration time.Duration) {
	c.storeLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordSessionsPurged は削除したセッション数を記録する。
func (c *Collector) RecordSessionsPurged(count int64) {
	c.sessionsPurged.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
