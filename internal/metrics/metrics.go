// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// サインイン結果のラベル値。
const (
	SignInSuccess            = "success"
	SignInInvalidCredentials = "invalid_credentials"
	SignInError              = "error"
)

// ドキュメント操作のラベル値。
const (
	OpUpdate = "update"
	OpDelete = "delete"

	ResultOK       = "ok"
	ResultNotFound = "not_found"
	ResultInvalid  = "invalid"
	ResultError    = "error"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層、ライブクエリハブ、ワーカーから利用する。
type MetricsCollector interface {
	RecordSignIn(result string)
	RecordMutation(op, result string)
	LiveSubscriptionOpened()
	LiveSubscriptionClosed()
	RecordSnapshot(records int, latency time.Duration)
	RecordHTTPStatus(statusCode int)
	RecordSessionsCleaned(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	signIns           *prometheus.CounterVec
	mutations         *prometheus.CounterVec
	liveSubscriptions prometheus.Gauge
	snapshots         prometheus.Counter
	snapshotRecords   prometheus.Histogram
	snapshotLatency   prometheus.Histogram
	httpStatus        *prometheus.CounterVec
	sessionsCleaned   prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		signIns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "msgbox_sign_in_total",
			Help: "結果別のサインイン試行数",
		}, []string{"result"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "msgbox_message_mutations_total",
			Help: "操作・結果別のメッセージ更新/削除数",
		}, []string{"op", "result"}),
		liveSubscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "msgbox_live_subscriptions",
			Help: "接続中のライブクエリ購読数",
		}),
		snapshots: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "msgbox_snapshots_total",
			Help: "読み込んだスナップショットの合計数",
		}),
		snapshotRecords: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "msgbox_snapshot_records",
			Help:    "スナップショットあたりのメッセージ数",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
		snapshotLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "msgbox_snapshot_latency_seconds",
			Help:    "スナップショット読み込みのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "msgbox_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		sessionsCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "msgbox_sessions_cleaned_total",
			Help: "削除した期限切れセッションの合計数",
		}),
	}

	reg.MustRegister(
		c.signIns,
		c.mutations,
		c.liveSubscriptions,
		c.snapshots,
		c.snapshotRecords,
		c.snapshotLatency,
		c.httpStatus,
		c.sessionsCleaned,
	)

	return c
}

// RecordSignIn はサインイン結果を記録する。
func (c *Collector) RecordSignIn(result string) {
	c.signIns.WithLabelValues(result).Inc()
}

// RecordMutation はメッセージの更新/削除の結果を記録する。
func (c *Collector) RecordMutation(op, result string) {
	c.mutations.WithLabelValues(op, result).Inc()
}

// LiveSubscriptionOpened は購読開始を記録する。
func (c *Collector) LiveSubscriptionOpened() {
	c.liveSubscriptions.Inc()
}

// LiveSubscriptionClosed は購読終了を記録する。
func (c *Collector) LiveSubscriptionClosed() {
	c.liveSubscriptions.Dec()
}

// RecordSnapshot はスナップショットの件数と読み込み時間を記録する。
func (c *Collector) RecordSnapshot(records int, latency time.Duration) {
	c.snapshots.Inc()
	c.snapshotRecords.Observe(float64(records))
	c.snapshotLatency.Observe(latency.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordSessionsCleaned は削除したセッション数を記録する。
func (c *Collector) RecordSessionsCleaned(count int64) {
	c.sessionsCleaned.Add(float64(count))
}

// Nop は何も記録しないMetricsCollector。
type Nop struct{}

func (Nop) RecordSignIn(string)               {}
func (Nop) RecordMutation(string, string)     {}
func (Nop) LiveSubscriptionOpened()           {}
func (Nop) LiveSubscriptionClosed()           {}
func (Nop) RecordSnapshot(int, time.Duration) {}
func (Nop) RecordHTTPStatus(int)              {}
func (Nop) RecordSessionsCleaned(int64)       {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
