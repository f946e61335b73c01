// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 認証フロー
const (
	FlowSignup  = "signup"
	FlowLogin   = "login"
	FlowConfirm = "confirm"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層とミドルウェアから利用する。
type MetricsCollector interface {
	// RecordAuthOutcome は認証フローの結果を記録する。outcomeは成功時"success"、失敗時はエラーコード。
	RecordAuthOutcome(flow, outcome string)
	// RecordProviderCall は外部IdP呼び出しの結果とレイテンシを記録する。
	RecordProviderCall(endpoint string, success bool, duration time.Duration)
	// RecordConfirmationDispatch は確認メール配送の成否を記録する。
	RecordConfirmationDispatch(success bool)
	// RecordResourceMutation はリソースの作成・更新・削除を記録する。
	RecordResourceMutation(op string)
	// RecordHTTPStatus はHTTPレスポンスのステータスコードを記録する。
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	authOutcome       *prometheus.CounterVec
	providerCalls     *prometheus.CounterVec
	providerLatency   *prometheus.HistogramVec
	confirmDispatch   *prometheus.CounterVec
	resourceMutations *prometheus.CounterVec
	httpStatus        *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authOutcome: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "appkit_auth_outcome_total",
			Help: "認証フロー（signup/login/confirm）の結果別の合計数",
		}, []string{"flow", "outcome"}),
		providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "appkit_provider_requests_total",
			Help: "外部IdP呼び出しの結果別の合計数",
		}, []string{"endpoint", "result"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "appkit_provider_request_duration_seconds",
			Help:    "外部IdP呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		confirmDispatch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "appkit_confirmation_dispatch_total",
			Help: "確認メール配送の結果別の合計数",
		}, []string{"result"}),
		resourceMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "appkit_resource_mutations_total",
			Help: "リソースの変更操作の合計数",
		}, []string{"op"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "appkit_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.authOutcome,
		c.providerCalls,
		c.providerLatency,
		c.confirmDispatch,
		c.resourceMutations,
		c.httpStatus,
	)

	return c
}

// RecordAuthOutcome は認証フローの結果を記録する。
func (c *Collector) RecordAuthOutcome(flow, outcome string) {
	c.authOutcome.WithLabelValues(flow, outcome).Inc()
}

// RecordProviderCall は外部IdP呼び出しを記録する。
func (c *Collector) RecordProviderCall(endpoint string, success bool, duration time.Duration) {
	c.providerCalls.WithLabelValues(endpoint, result(success)).Inc()
	c.providerLatency.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordConfirmationDispatch は確認メール配送を記録する。
func (c *Collector) RecordConfirmationDispatch(success bool) {
	c.confirmDispatch.WithLabelValues(result(success)).Inc()
}

// RecordResourceMutation はリソースの変更操作を記録する。
func (c *Collector) RecordResourceMutation(op string) {
	c.resourceMutations.WithLabelValues(op).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var _ MetricsCollector = (*Collector)(nil)
