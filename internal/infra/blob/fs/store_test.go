package fs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cytocore/internal/infra/blob/core"
)

func newTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store
}

func TestStore_PutGetHeadListDelete(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	body := []byte(`{"dataset_id":"ds-1","status":"Pass"}`)
	info, err := store.Put(ctx, "runs/run-7/report.json", bytes.NewReader(body), core.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"run_id": "run-7", "format": "json"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "runs/run-7/report.json" || info.Size != int64(len(body)) {
		t.Fatalf("unexpected info %+v", info)
	}
	if info.ETag == "" || info.URL == "" {
		t.Fatalf("expected etag and url, got %+v", info)
	}
	if _, err := store.Put(ctx, "runs/run-7/report.json", bytes.NewReader([]byte("x")), core.PutOptions{}); err == nil {
		t.Fatalf("expected duplicate put failure")
	}
	h, err := store.Head(ctx, "runs/run-7/report.json")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if h.Metadata["run_id"] != "run-7" {
		t.Fatalf("head lost metadata: %+v", h)
	}
	g, rc, err := store.Get(ctx, "runs/run-7/report.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got, _ := io.ReadAll(rc)
	if err := rc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !bytes.Equal(got, body) || g.ETag != h.ETag {
		t.Fatalf("get returned wrong artifact")
	}
	list, err := store.List(ctx, "runs/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Key != "runs/run-7/report.json" {
		t.Fatalf("unexpected list %+v", list)
	}
	ok, err := store.Delete(ctx, "runs/run-7/report.json")
	if err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	ok, err = store.Delete(ctx, "runs/run-7/report.json")
	if err != nil || ok {
		t.Fatalf("second delete should report false")
	}
}

func TestStore_RejectsEscapingKeys(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	for _, key := range []string{"", "  ", "../escape.txt", "/abs.txt", "a/../../b"} {
		if _, err := store.Put(ctx, key, bytes.NewReader([]byte("x")), core.PutOptions{}); err == nil {
			t.Fatalf("expected rejection for key %q", key)
		}
	}
}

func TestStore_SidecarPersistence(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	if _, err := store.Put(ctx, "runs/run-2/report.csv", bytes.NewReader([]byte("sample,role\n")), core.PutOptions{ContentType: "text/csv", Metadata: map[string]string{"format": "csv"}}); err != nil {
		t.Fatalf("put: %v", err)
	}
	dataPath, metaPath, err := store.pathFor("runs/run-2/report.csv")
	if err != nil {
		t.Fatalf("pathFor: %v", err)
	}
	if _, err := os.Stat(dataPath); err != nil {
		t.Fatalf("expected data file: %v", err)
	}
	raw, err := os.ReadFile(metaPath)
	if err != nil {
		t.Fatalf("read sidecar: %v", err)
	}
	if !bytes.Contains(raw, []byte("text/csv")) {
		t.Fatalf("sidecar missing content type: %s", raw)
	}
	if filepath.Ext(metaPath) != ".meta" {
		t.Fatalf("sidecar extension mismatch: %s", metaPath)
	}
}

type errorReader struct{}

func (errorReader) Read([]byte) (int, error) { return 0, errors.New("boom") }

func TestStore_PutReaderFailureLeavesNothing(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	if _, err := store.Put(ctx, "runs/bad.json", errorReader{}, core.PutOptions{}); err == nil {
		t.Fatalf("expected copy error")
	}
	if _, err := store.Head(ctx, "runs/bad.json"); err == nil {
		t.Fatalf("failed put should not leave an artifact")
	}
	list, err := store.List(ctx, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty store, got %+v", list)
	}
}

func TestStore_PresignIsGetOnly(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	if _, err := store.Put(ctx, "runs/run-3/report.html", bytes.NewReader([]byte("<html></html>")), core.PutOptions{ContentType: "text/html"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	url, err := store.PresignURL(ctx, "runs/run-3/report.html", core.SignedURLOptions{})
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	if !strings.Contains(url, "blob.local") {
		t.Fatalf("unexpected presign url %s", url)
	}
	if _, err := store.PresignURL(ctx, "runs/run-3/report.html", core.SignedURLOptions{Method: "PUT"}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestStore_ListNestedKeysSorted(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	for _, key := range []string{"runs/b/report.json", "runs/a/report.json", "exports/job.json"} {
		if _, err := store.Put(ctx, key, bytes.NewReader([]byte("{}")), core.PutOptions{ContentType: "application/json"}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	list, err := store.List(ctx, "runs/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Key != "runs/a/report.json" || list[1].Key != "runs/b/report.json" {
		t.Fatalf("unexpected list order %+v", list)
	}
	all, err := store.List(ctx, "")
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 || all[0].Key != "exports/job.json" {
		t.Fatalf("unexpected full list %+v", all)
	}
}

func TestNew_DefaultRoot(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	defer func() { _ = os.Chdir(cwd) }()
	store, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if store.root != "./artifacts" {
		t.Fatalf("unexpected default root %s", store.root)
	}
	if _, err := os.Stat(filepath.Join(dir, "artifacts")); err != nil {
		t.Fatalf("default root not created: %v", err)
	}
}
