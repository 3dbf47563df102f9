package reports

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	fsblob "cytocore/internal/infra/blob/fs"
	memblob "cytocore/internal/infra/blob/memory"
	"cytocore/pkg/assay"
)

type stubRuns struct {
	mu   sync.Mutex
	runs map[string]assay.AnalysisRun
}

func newStubRuns(runs ...assay.AnalysisRun) *stubRuns {
	s := &stubRuns{runs: make(map[string]assay.AnalysisRun)}
	for _, run := range runs {
		s.runs[run.ID] = run
	}
	return s
}

func (s *stubRuns) GetAnalysisRun(id string) (assay.AnalysisRun, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	return run, ok
}

func (s *stubRuns) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runs, id)
}

func waitForExport(t *testing.T, w *Worker, id string, status ExportStatus) ExportRecord {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		record, ok := w.GetExport(id)
		if ok && record.Status == status {
			return record
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("export %s never reached status %s", id, status)
	return ExportRecord{}
}

func TestEnqueueExportValidatesRun(t *testing.T) {
	w := NewWorker(newStubRuns(), nil, nil)
	if _, err := w.EnqueueExport(context.Background(), ExportInput{RunID: "missing"}); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected missing-run error, got %v", err)
	}

	unconfigured := NewWorker(nil, nil, nil)
	if _, err := unconfigured.EnqueueExport(context.Background(), ExportInput{RunID: "run-1"}); err == nil {
		t.Fatalf("expected error without a run source")
	}
}

func TestEnqueueExportDefaultsAndDeduplicatesFormats(t *testing.T) {
	w := NewWorker(newStubRuns(reportRun()), nil, nil)

	record, err := w.EnqueueExport(context.Background(), ExportInput{RunID: "run-1"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if len(record.Formats) != 2 || record.Formats[0] != FormatJSON || record.Formats[1] != FormatCSV {
		t.Fatalf("unexpected default formats: %v", record.Formats)
	}
	if record.Status != ExportStatusQueued {
		t.Fatalf("expected queued status, got %s", record.Status)
	}
	if record.ID == "" || record.DatasetID != "ds-1" || record.DatasetName != "CD19_donor3" {
		t.Fatalf("unexpected record identity: %+v", record)
	}

	record, err = w.EnqueueExport(context.Background(), ExportInput{
		RunID:   "run-1",
		Formats: []Format{FormatCSV, FormatCSV, FormatHTML},
	})
	if err != nil {
		t.Fatalf("enqueue with explicit formats: %v", err)
	}
	if len(record.Formats) != 2 || record.Formats[0] != FormatCSV || record.Formats[1] != FormatHTML {
		t.Fatalf("expected deduplicated formats, got %v", record.Formats)
	}

	if _, err := w.EnqueueExport(context.Background(), ExportInput{RunID: "run-1", Formats: []Format{"pdf"}}); err == nil {
		t.Fatalf("expected unsupported format error")
	}
}

func TestWorkerExportLifecycle(t *testing.T) {
	store := memblob.New()
	audit := &MemoryAuditLog{}
	w := NewWorker(newStubRuns(reportRun()), store, audit)
	w.Start()
	defer func() {
		if err := w.Stop(context.Background()); err != nil {
			t.Fatalf("stop: %v", err)
		}
	}()

	queued, err := w.EnqueueExport(context.Background(), ExportInput{
		RunID:       "run-1",
		Formats:     []Format{FormatJSON, FormatCSV, FormatHTML},
		RequestedBy: "qa@lab",
		Reason:      "release batch 7",
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	record := waitForExport(t, w, queued.ID, ExportStatusSucceeded)
	if record.Error != "" {
		t.Fatalf("unexpected error on success: %q", record.Error)
	}
	if record.CompletedAt == nil {
		t.Fatalf("completed export should carry a completion time")
	}
	if len(record.Artifacts) != 3 {
		t.Fatalf("expected 3 artifacts, got %d", len(record.Artifacts))
	}
	for i, format := range []Format{FormatJSON, FormatCSV, FormatHTML} {
		artifact := record.Artifacts[i]
		wantKey := "exports/" + queued.ID + "/report." + string(format)
		if artifact.Key != wantKey {
			t.Fatalf("artifact %d key %q want %q", i, artifact.Key, wantKey)
		}
		if artifact.Format != format || artifact.ContentType != format.ContentType() {
			t.Fatalf("artifact %d format mismatch: %+v", i, artifact)
		}
		if artifact.SizeBytes <= 0 {
			t.Fatalf("artifact %d has no size", i)
		}
		info, err := store.Head(context.Background(), artifact.Key)
		if err != nil {
			t.Fatalf("archived artifact missing from store: %v", err)
		}
		if info.Metadata["run_id"] != "run-1" || info.Metadata["format"] != string(format) {
			t.Fatalf("unexpected artifact metadata: %v", info.Metadata)
		}
	}

	entries := audit.Entries()
	if len(entries) != 3 {
		t.Fatalf("expected 3 audit entries, got %d", len(entries))
	}
	wantStatuses := []ExportStatus{ExportStatusQueued, ExportStatusRunning, ExportStatusSucceeded}
	for i, entry := range entries {
		if entry.Status != wantStatuses[i] {
			t.Fatalf("audit entry %d status %s want %s", i, entry.Status, wantStatuses[i])
		}
		if entry.Action != exportAuditAction || entry.RunID != "run-1" || entry.Actor != "qa@lab" {
			t.Fatalf("unexpected audit entry: %+v", entry)
		}
	}
}

func TestWorkerResolvesArtifactURLs(t *testing.T) {
	store, err := fsblob.New(t.TempDir())
	if err != nil {
		t.Fatalf("fs store: %v", err)
	}
	w := NewWorker(newStubRuns(reportRun()), store, nil)
	w.Start()
	defer func() { _ = w.Stop(context.Background()) }()

	queued, err := w.EnqueueExport(context.Background(), ExportInput{RunID: "run-1", Formats: []Format{FormatJSON}})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	record := waitForExport(t, w, queued.ID, ExportStatusSucceeded)
	url := record.Artifacts[0].URL
	if !strings.HasPrefix(url, "http://blob.local/exports/") {
		t.Fatalf("unexpected artifact url %q", url)
	}
}

func TestWorkerFailsWhenRunDisappears(t *testing.T) {
	runs := newStubRuns(reportRun())
	w := NewWorker(runs, memblob.New(), nil)

	queued, err := w.EnqueueExport(context.Background(), ExportInput{RunID: "run-1"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	runs.remove("run-1")
	w.Start()
	defer func() { _ = w.Stop(context.Background()) }()

	record := waitForExport(t, w, queued.ID, ExportStatusFailed)
	if !strings.Contains(record.Error, "disappeared") {
		t.Fatalf("unexpected failure reason %q", record.Error)
	}
	if record.CompletedAt == nil {
		t.Fatalf("failed export should carry a completion time")
	}
}

func TestEnqueueExportQueueFull(t *testing.T) {
	w := NewWorker(newStubRuns(reportRun()), nil, nil)
	for i := 0; i < cap(w.queue); i++ {
		if _, err := w.EnqueueExport(context.Background(), ExportInput{RunID: "run-1"}); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	if _, err := w.EnqueueExport(context.Background(), ExportInput{RunID: "run-1"}); err == nil || !strings.Contains(err.Error(), "queue full") {
		t.Fatalf("expected queue-full error, got %v", err)
	}
}

func TestGetExportReturnsIsolatedSnapshot(t *testing.T) {
	w := NewWorker(newStubRuns(reportRun()), nil, nil)
	queued, err := w.EnqueueExport(context.Background(), ExportInput{RunID: "run-1"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	record, ok := w.GetExport(queued.ID)
	if !ok {
		t.Fatalf("expected export record")
	}
	record.Formats[0] = Format("mutated")
	record.Status = ExportStatusFailed

	fresh, ok := w.GetExport(queued.ID)
	if !ok {
		t.Fatalf("expected export record on re-read")
	}
	if fresh.Formats[0] != FormatJSON || fresh.Status != ExportStatusQueued {
		t.Fatalf("snapshot mutation leaked into worker state: %+v", fresh)
	}

	if _, ok := w.GetExport("nope"); ok {
		t.Fatalf("unknown export id should miss")
	}
}
