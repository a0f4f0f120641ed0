// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 共有モード。pushはユーザーによる共有、pullは詳細画面の閲覧。
const (
	ModePush = "push"
	ModePull = "pull"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層とHTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordShare(mode string)
	RecordShareFailure(mode string)
	RecordShareLatency(duration time.Duration)
	RecordAssignment()
	RecordRevocations(count int64)
	RecordSettingsRejected()
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	shares           *prometheus.CounterVec
	shareFailures    *prometheus.CounterVec
	shareLatency     prometheus.Histogram
	assignments      prometheus.Counter
	revocations      prometheus.Counter
	settingsRejected prometheus.Counter
	httpStatus       *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		shares: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moodshare_shares_total",
			Help: "セラピストへのデータ共有成功の合計数",
		}, []string{"mode"}),
		shareFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moodshare_share_failures_total",
			Help: "データ共有失敗の合計数",
		}, []string{"mode"}),
		shareLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "moodshare_share_latency_seconds",
			Help:    "データ共有のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		assignments: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "moodshare_assignments_total",
			Help: "セラピスト割り当ての合計数",
		}),
		revocations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "moodshare_revocations_total",
			Help: "取り消された共有レコードの合計数",
		}),
		settingsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "moodshare_settings_rejected_total",
			Help: "不正なアクセス設定として拒否された更新の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moodshare_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.shares,
		c.shareFailures,
		c.shareLatency,
		c.assignments,
		c.revocations,
		c.settingsRejected,
		c.httpStatus,
	)

	return c
}

// RecordShare は共有成功を記録する。
func (c *Collector) RecordShare(mode string) {
	c.shares.WithLabelValues(mode).Inc()
}

// RecordShareFailure は共有失敗を記録する。
func (c *Collector) RecordShareFailure(mode string) {
	c.shareFailures.WithLabelValues(mode).Inc()
}

// RecordShareLatency は共有処理のレイテンシを記録する。
func (c *Collector) RecordShareLatency(duration time.Duration) {
	c.shareLatency.Observe(duration.Seconds())
}

// RecordAssignment はセラピスト割り当てを記録する。
func (c *Collector) RecordAssignment() {
	c.assignments.Inc()
}

// RecordRevocations は取り消した共有レコード数を記録する。
func (c *Collector) RecordRevocations(count int64) {
	if count > 0 {
		c.revocations.Add(float64(count))
	}
}

// RecordSettingsRejected はアクセス設定の拒否を記録する。
func (c *Collector) RecordSettingsRejected() {
	c.settingsRejected.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Nop は何も記録しないMetricsCollectorを返す。
func Nop() MetricsCollector {
	return nopCollector{}
}

type nopCollector struct{}

func (nopCollector) RecordShare(string)               {}
func (nopCollector) RecordShareFailure(string)        {}
func (nopCollector) RecordShareLatency(time.Duration) {}
func (nopCollector) RecordAssignment()                {}
func (nopCollector) RecordRevocations(int64)          {}
func (nopCollector) RecordSettingsRejected()          {}
func (nopCollector) RecordHTTPStatus(int)             {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = nopCollector{}
)
