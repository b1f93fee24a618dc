package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetricFamily はGatherの結果から指定名のメトリクスファミリーを探す。
func findMetricFamily(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("metric %s not found", name)
	return nil
}

// labelValue はメトリクスから指定ラベルの値を返す。
func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordHTTPRequest_CountsAndObserves はリクエスト数と処理時間が記録されることを検証する。
func TestRecordHTTPRequest_CountsAndObserves(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPRequest("GET", "/api/tasks", 200, 15*time.Millisecond)
	c.RecordHTTPRequest("GET", "/api/tasks", 200, 25*time.Millisecond)
	c.RecordHTTPRequest("GET", "/api/tasks", 401, time.Millisecond)

	mf := findMetricFamily(t, reg, "taskhub_http_requests_total")
	counts := map[string]float64{}
	for _, m := range mf.GetMetric() {
		if labelValue(m, "route") != "/api/tasks" {
			t.Errorf("route label = %q", labelValue(m, "route"))
		}
		counts[labelValue(m, "status_code")] = m.GetCounter().GetValue()
	}
	if counts["200"] != 2 || counts["401"] != 1 {
		t.Errorf("counts = %v, want 200:2 401:1", counts)
	}

	latency := findMetricFamily(t, reg, "taskhub_http_request_duration_seconds")
	if got := latency.GetMetric()[0].GetHistogram().GetSampleCount(); got != 3 {
		t.Errorf("latency sample count = %d, want 3", got)
	}
}

// TestRecordTaskOperation_LabelsByOp は操作種別ごとに集計されることを検証する。
func TestRecordTaskOperation_LabelsByOp(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordTaskOperation(TaskOpCreate)
	c.RecordTaskOperation(TaskOpCreate)
	c.RecordTaskOperation(TaskOpDelete)

	mf := findMetricFamily(t, reg, "taskhub_task_operations_total")
	got := map[string]float64{}
	for _, m := range mf.GetMetric() {
		got[labelValue(m, "op")] = m.GetCounter().GetValue()
	}
	if got[TaskOpCreate] != 2 || got[TaskOpDelete] != 1 {
		t.Errorf("task operations = %v", got)
	}
}

// TestDocumentCounters は書類関連カウンタが増加することを検証する。
func TestDocumentCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordDocumentsStored(3)
	c.RecordUploadRejected("type")
	c.RecordOrphansRemoved(2)

	if v := findMetricFamily(t, reg, "taskhub_documents_stored_total").GetMetric()[0].GetCounter().GetValue(); v != 3 {
		t.Errorf("documents_stored_total = %v, want 3", v)
	}
	rejected := findMetricFamily(t, reg, "taskhub_uploads_rejected_total").GetMetric()[0]
	if labelValue(rejected, "reason") != "type" || rejected.GetCounter().GetValue() != 1 {
		t.Errorf("uploads_rejected_total = %v", rejected)
	}
	if v := findMetricFamily(t, reg, "taskhub_orphan_documents_removed_total").GetMetric()[0].GetCounter().GetValue(); v != 2 {
		t.Errorf("orphan_documents_removed_total = %v, want 2", v)
	}
}

// TestCollector_ImplementsMetricsCollectorInterface はインターフェース準拠を検証する。
func TestCollector_ImplementsMetricsCollectorInterface(t *testing.T) {
	var _ MetricsCollector = (*Collector)(nil)
	var _ MetricsCollector = Nop{}
}

// TestMultipleCollectors_IndependentRegistries は別レジストリに独立して登録できることを検証する。
func TestMultipleCollectors_IndependentRegistries(t *testing.T) {
	reg1 := prometheus.NewRegistry()
	reg2 := prometheus.NewRegistry()

	c1 := NewCollector(reg1)
	_ = NewCollector(reg2)

	c1.RecordTaskOperation(TaskOpUpdate)

	families, err := reg2.Gather()
	if err != nil {
		t.Fatalf("failed to gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == "taskhub_task_operations_total" && len(mf.GetMetric()) != 0 {
			t.Error("reg2 should not observe operations recorded on reg1")
		}
	}
}
