// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// タスク操作の種別ラベル。
const (
	TaskOpCreate = "create"
	TaskOpUpdate = "update"
	TaskOpDelete = "delete"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ミドルウェア、サービス層、ワーカーから利用する。
type MetricsCollector interface {
	RecordHTTPRequest(method, route string, statusCode int, duration time.Duration)
	RecordTaskOperation(op string)
	RecordDocumentsStored(count int)
	RecordUploadRejected(reason string)
	RecordOrphansRemoved(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpRequests    *prometheus.CounterVec
	httpLatency     *prometheus.HistogramVec
	taskOperations  *prometheus.CounterVec
	documentsStored prometheus.Counter
	uploadsRejected *prometheus.CounterVec
	orphansRemoved  prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskhub_http_requests_total",
			Help: "Total HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status_code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "taskhub_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		taskOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskhub_task_operations_total",
			Help: "Total successful task operations.",
		}, []string{"op"}),
		documentsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskhub_documents_stored_total",
			Help: "Total PDF documents stored.",
		}),
		uploadsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskhub_uploads_rejected_total",
			Help: "Total uploads rejected by validation.",
		}, []string{"reason"}),
		orphansRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskhub_orphan_documents_removed_total",
			Help: "Total unreferenced documents removed by cleanup.",
		}),
	}

	reg.MustRegister(
		c.httpRequests,
		c.httpLatency,
		c.taskOperations,
		c.documentsStored,
		c.uploadsRejected,
		c.orphansRemoved,
	)

	return c
}

// RecordHTTPRequest はHTTPリクエスト1件の結果と処理時間を記録する。
// routeにはパスパラメータを含まないルートパターンを渡す。
func (c *Collector) RecordHTTPRequest(method, route string, statusCode int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	c.httpLatency.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordTaskOperation はタスク操作の成功を記録する。
func (c *Collector) RecordTaskOperation(op string) {
	c.taskOperations.WithLabelValues(op).Inc()
}

// RecordDocumentsStored は保存した書類数を記録する。
func (c *Collector) RecordDocumentsStored(count int) {
	c.documentsStored.Add(float64(count))
}

// RecordUploadRejected はアップロード拒否を理由別に記録する。
func (c *Collector) RecordUploadRejected(reason string) {
	c.uploadsRejected.WithLabelValues(reason).Inc()
}

// RecordOrphansRemoved はクリーンアップで削除したファイル数を記録する。
func (c *Collector) RecordOrphansRemoved(count int) {
	c.orphansRemoved.Add(float64(count))
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type Nop struct{}

func (Nop) RecordHTTPRequest(string, string, int, time.Duration) {}
func (Nop) RecordTaskOperation(string) {}
func (Nop) RecordDocumentsStored(int) {}
func (Nop) RecordUploadRejected(string) {}
func (Nop) RecordOrphansRemoved(int) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
