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
// 認証サービス・キャッシュ・ワーカーから利用する。
type MetricsCollector interface {
	RecordEnrichment(outcome string)
	RecordCacheLookup(hit bool)
	RecordResourceFetch(resource string, ok bool)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
	RecordTrialsExpired(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	enrichment     *prometheus.CounterVec
	cacheLookup    *prometheus.CounterVec
	resourceFetch  *prometheus.CounterVec
	httpStatus     *prometheus.CounterVec
	requestLatency prometheus.Histogram
	trialsExpired  prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		enrichment: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tarjetas_enrichment_total",
			Help: "セッションエンリッチメント結果別の合計数",
		}, []string{"outcome"}),
		cacheLookup: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tarjetas_cache_lookup_total",
			Help: "ユーザーデータキャッシュのヒット・ミス合計数",
		}, []string{"result"}),
		resourceFetch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tarjetas_resource_fetch_total",
			Help: "リソース種別・結果別のフェッチ合計数",
		}, []string{"resource", "result"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tarjetas_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tarjetas_request_latency_seconds",
			Help:    "APIリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		trialsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tarjetas_trials_expired_total",
			Help: "失効処理されたトライアルアカウントの合計数",
		}),
	}

	reg.MustRegister(
		c.enrichment,
		c.cacheLookup,
		c.resourceFetch,
		c.httpStatus,
		c.requestLatency,
		c.trialsExpired,
	)

	return c
}

// RecordEnrichment はエンリッチメント結果を記録する。
func (c *Collector) RecordEnrichment(outcome string) {
	c.enrichment.WithLabelValues(outcome).Inc()
}

// RecordCacheLookup はキャッシュのヒット・ミスを記録する。
func (c *Collector) RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheLookup.WithLabelValues(result).Inc()
}

// RecordResourceFetch はリソースフェッチの結果を記録する。
func (c *Collector) RecordResourceFetch(resource string, ok bool) {
	result := "failure"
	if ok {
		result = "success"
	}
	c.resourceFetch.WithLabelValues(resource, result).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はAPIリクエストのレイテンシを記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// RecordTrialsExpired は失効処理されたトライアル数を記録する。
func (c *Collector) RecordTrialsExpired(count int) {
	c.trialsExpired.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
