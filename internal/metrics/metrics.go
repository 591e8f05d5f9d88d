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
// サービス層とワーカーから利用する。
type MetricsCollector interface {
	RecordSaleImported()
	RecordSaleSkipped(reason string)
	RecordGrantCreated(originType string)
	RecordMintSuccess()
	RecordMintFailure()
	RecordQrIssued()
	RecordQrRedeemed(result string)
	RecordHTTPStatus(statusCode int)
	RecordBackfillLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	salesImported   prometheus.Counter
	salesSkipped    *prometheus.CounterVec
	grantsCreated   *prometheus.CounterVec
	mintSuccess     prometheus.Counter
	mintFail        prometheus.Counter
	qrIssued        prometheus.Counter
	qrRedeemed      *prometheus.CounterVec
	httpStatus      *prometheus.CounterVec
	backfillLatency prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		salesImported: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "encore_sales_imported_total",
			Help: "取り込みに成功した売上イベントの合計数",
		}),
		salesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "encore_sales_skipped_total",
			Help: "スキップされた売上イベントの理由別合計数",
		}, []string{"reason"}),
		grantsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "encore_grants_created_total",
			Help: "作成されたNFTグラントの起源種別ごとの合計数",
		}, []string{"origin_type"}),
		mintSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "encore_mint_success_total",
			Help: "ミント成功の合計数",
		}),
		mintFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "encore_mint_fail_total",
			Help: "ミント失敗の合計数",
		}),
		qrIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "encore_qr_issued_total",
			Help: "発行されたQRトークンの合計数",
		}),
		qrRedeemed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "encore_qr_redeemed_total",
			Help: "QRトークン照合の結果別合計数",
		}, []string{"result"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "encore_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		backfillLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "encore_backfill_latency_seconds",
			Help:    "売上バックフィル1サイクルのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.salesImported,
		c.salesSkipped,
		c.grantsCreated,
		c.mintSuccess,
		c.mintFail,
		c.qrIssued,
		c.qrRedeemed,
		c.httpStatus,
		c.backfillLatency,
	)

	return c
}

// RecordSaleImported は売上イベントの取り込み成功を記録する。
func (c *Collector) RecordSaleImported() {
	c.salesImported.Inc()
}

// RecordSaleSkipped は売上イベントのスキップを理由付きで記録する。
func (c *Collector) RecordSaleSkipped(reason string) {
	c.salesSkipped.WithLabelValues(reason).Inc()
}

// RecordGrantCreated はグラント作成を起源種別付きで記録する。
func (c *Collector) RecordGrantCreated(originType string) {
	c.grantsCreated.WithLabelValues(originType).Inc()
}

// RecordMintSuccess はミント成功を記録する。
func (c *Collector) RecordMintSuccess() {
	c.mintSuccess.Inc()
}

// RecordMintFailure はミント失敗を記録する。
func (c *Collector) RecordMintFailure() {
	c.mintFail.Inc()
}

// RecordQrIssued はQRトークン発行を記録する。
func (c *Collector) RecordQrIssued() {
	c.qrIssued.Inc()
}

// RecordQrRedeemed はQRトークン照合の結果を記録する。
func (c *Collector) RecordQrRedeemed(result string) {
	c.qrRedeemed.WithLabelValues(result).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordBackfillLatency はバックフィル1サイクルのレイテンシを記録する。
func (c *Collector) RecordBackfillLatency(duration time.Duration) {
	c.backfillLatency.Observe(duration.Seconds())
}

// NopCollector は何も記録しないMetricsCollector実装。テストで使用する。
type NopCollector struct{}

func (NopCollector) RecordSaleImported()                     {}
func (NopCollector) RecordSaleSkipped(reason string)         {}
func (NopCollector) RecordGrantCreated(originType string)    {}
func (NopCollector) RecordMintSuccess()                      {}
func (NopCollector) RecordMintFailure()                      {}
func (NopCollector) RecordQrIssued()                         {}
func (NopCollector) RecordQrRedeemed(result string)          {}
func (NopCollector) RecordHTTPStatus(statusCode int)         {}
func (NopCollector) RecordBackfillLatency(d time.Duration)   {}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
var _ MetricsCollector = NopCollector{}

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
