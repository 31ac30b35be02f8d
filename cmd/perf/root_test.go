package perf

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ValentinKolb/urcu/lib/common"
)

func testConfig() *common.Config {
	return &common.Config{
		Flavor:           "memb",
		ReclaimerWorker:  true,
		TableInitialSize: 16,
		TableMinSize:     1,
		TableMaxSize:     1 << 10,
		TableAutoResize:  true,
		LogLevel:         "info",
	}
}

func TestShouldSkip(t *testing.T) {
	perfSkip = []string{"synchronize", "call-rcu"}
	defer func() { perfSkip = nil }()

	if !shouldSkip("synchronize") || !shouldSkip("call-rcu") {
		t.Error("listed benchmarks not skipped")
	}
	if shouldSkip("read-lock") {
		t.Error("unlisted benchmark skipped")
	}
}

func TestSuiteRunsAndExportsMetrics(t *testing.T) {
	perfKeySpread = 32
	perfNumThreads = 1
	// only run the cheap benchmarks
	perfSkip = []string{"synchronize", "call-rcu", "list-replace", "lfht-add-remove", "lfht-add-replace",
		"wfcq-enqueue", "lfq-enqueue-dequeue", "wfstack-push-pop", "lfstack-push-pop", "list-traverse"}
	defer func() { perfSkip = nil }()

	s, err := newSuite(testConfig())
	if err != nil {
		t.Fatalf("newSuite failed: %v", err)
	}
	if s.list.Len() != 32 || s.table.Count() != 32 {
		t.Fatalf("unexpected prefill: list %d, table %d", s.list.Len(), s.table.Count())
	}

	results := s.runAll()
	if results["read-lock"].NsPerOp() == 0 {
		t.Error("read-lock benchmark did not run")
	}
	if results["synchronize"].NsPerOp() != 0 {
		t.Error("skipped benchmark reported a result")
	}

	sets := s.metricSets()
	s.close()

	dir := t.TempDir()
	path := filepath.Join(dir, "metrics.prom")
	if err := writeMetrics(path, sets); err != nil {
		t.Fatalf("writeMetrics failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`urcu_grace_periods_total{domain="perf"}`, `urcu_lfht_nodes{table="perf"} 32`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}

	csvPath := filepath.Join(dir, "results.csv")
	if err := writeResultsToCSV(csvPath, results, testConfig()); err != nil {
		t.Fatalf("writeResultsToCSV failed: %v", err)
	}
	f, err := os.Open(csvPath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV: %v", err)
	}
	if len(rows) != len(results)+1 {
		t.Errorf("expected %d rows, got %d", len(results)+1, len(rows))
	}
}
