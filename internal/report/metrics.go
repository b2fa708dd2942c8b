package report

import (
	"fmt"
	"os"
	"path/filepath"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/newsreaper/newsreaper/internal/pipeline"
)

// WriteMetrics renders run counters in Prometheus text exposition format at
// path, for a node-exporter textfile collector to pick up. The file is
// written to a temp sibling and renamed so the collector never reads a
// partial exposition.
func WriteMetrics(path string, summary *pipeline.Summary) error {
	families := []*dto.MetricFamily{
		gauge("newsreaper_run_items_total",
			"Items in the ranking processed by the last run.",
			float64(summary.ItemsTotal)),
		gauge("newsreaper_run_items_succeeded",
			"Items that reached a terminal state in the last run.",
			float64(summary.Succeeded)),
		gauge("newsreaper_run_items_failed",
			"Items that failed fetch or a stage in the last run.",
			float64(summary.Failed)),
		gauge("newsreaper_run_items_flagged",
			"Items the ambiguity detector flagged in the last run.",
			float64(summary.Flagged)),
		gauge("newsreaper_run_items_auto_cleared",
			"Items auto-cleared by the override gate in the last run.",
			float64(summary.AutoCleared)),
		gauge("newsreaper_run_items_pending_override",
			"Items awaiting an operator decision after the last run.",
			float64(summary.PendingOverride)),
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".metrics-*")
	if err != nil {
		return fmt.Errorf("report: create temp metrics file: %w", err)
	}
	defer os.Remove(tmp.Name())

	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(tmp, mf); err != nil {
			tmp.Close()
			return fmt.Errorf("report: encode %s: %w", mf.GetName(), err)
		}
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("report: close temp metrics file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("report: publish metrics file: %w", err)
	}
	return nil
}

func gauge(name, help string, value float64) *dto.MetricFamily {
	typ := dto.MetricType_GAUGE
	return &dto.MetricFamily{
		Name: &name,
		Help: &help,
		Type: &typ,
		Metric: []*dto.Metric{
			{Gauge: &dto.Gauge{Value: &value}},
		},
	}
}
