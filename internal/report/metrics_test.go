package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/newsreaper/newsreaper/internal/pipeline"
)

func TestWriteMetrics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "newsreaper.prom")
	summary := &pipeline.Summary{
		RunID:           "run-1",
		ItemsTotal:      5,
		Succeeded:       4,
		Failed:          1,
		Flagged:         2,
		AutoCleared:     3,
		PendingOverride: 1,
	}

	if err := WriteMetrics(path, summary); err != nil {
		t.Fatalf("WriteMetrics: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read metrics file: %v", err)
	}
	out := string(data)

	wantLines := []string{
		"# TYPE newsreaper_run_items_total gauge",
		"newsreaper_run_items_total 5",
		"newsreaper_run_items_failed 1",
		"newsreaper_run_items_flagged 2",
		"newsreaper_run_items_pending_override 1",
	}
	for _, line := range wantLines {
		if !strings.Contains(out, line) {
			t.Errorf("metrics output missing %q\n%s", line, out)
		}
	}

	// No leftover temp file.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".metrics-") {
			t.Errorf("temp file %s left behind", e.Name())
		}
	}
}

func TestWriteMetrics_BadDirectory(t *testing.T) {
	err := WriteMetrics("/nonexistent-dir/metrics.prom", &pipeline.Summary{})
	if err == nil {
		t.Fatal("expected error for unwritable directory")
	}
}
