package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestApp(t *testing.T) *app {
	t.Helper()
	t.Setenv("CYTOCORE_STORAGE_DRIVER", "memory")
	t.Setenv("CYTOCORE_BLOB_DRIVER", "memory")
	app, err := newApp(context.Background(), discardLogger())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	t.Cleanup(app.close)
	return app
}

func getBody(t *testing.T, ts *httptest.Server, path string) (*http.Response, string) {
	t.Helper()
	resp, err := ts.Client().Get(ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read %s body: %v", path, err)
	}
	return resp, string(body)
}

func TestAppServesHealthAndDiagnostics(t *testing.T) {
	app := newTestApp(t)
	ts := httptest.NewServer(app.mux)
	defer ts.Close()

	resp, body := getBody(t, ts, "/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Type"); got != "application/json" {
		t.Fatalf("healthz content type = %q", got)
	}
	if !strings.Contains(body, `"ok"`) {
		t.Fatalf("healthz body = %q", body)
	}

	resp, body = getBody(t, ts, "/metrics")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d", resp.StatusCode)
	}
	if !strings.Contains(body, "go_goroutines") {
		t.Fatalf("metrics scrape missing runtime collectors:\n%s", body)
	}

	resp, body = getBody(t, ts, "/debug/vars")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("debug/vars status = %d", resp.StatusCode)
	}
	var vars map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &vars); err != nil {
		t.Fatalf("debug/vars is not JSON: %v", err)
	}
	if _, ok := vars["memstats"]; !ok {
		t.Fatalf("debug/vars missing memstats: %s", body)
	}
}

func TestAppRoutesAPIAndCountsOperations(t *testing.T) {
	app := newTestApp(t)
	ts := httptest.NewServer(app.mux)
	defer ts.Close()

	resp, body := getBody(t, ts, "/api/v1/datasets")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list datasets status = %d, body %s", resp.StatusCode, body)
	}
	if !strings.Contains(body, `"datasets"`) {
		t.Fatalf("list datasets body = %s", body)
	}

	payload := map[string]any{
		"name":     "CD19_donor5",
		"filename": "CD19_donor5.csv",
		"plate_csv": "time,A1,A2\n" +
			"0,0.10,0.11\n" +
			"4,0.80,0.82\n" +
			"8,0.40,0.41\n",
		"layout_csv": "sample,role,wells\nCAR-T 1:1,treatment,A1;A2\n",
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal register payload: %v", err)
	}
	postResp, err := ts.Client().Post(ts.URL+"/api/v1/datasets", "application/json", strings.NewReader(string(buf)))
	if err != nil {
		t.Fatalf("POST datasets: %v", err)
	}
	postBody, _ := io.ReadAll(postResp.Body)
	postResp.Body.Close()
	if postResp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d, body %s", postResp.StatusCode, postBody)
	}

	_, metrics := getBody(t, ts, "/metrics")
	want := `cytocore_service_operations_total{operation="register_dataset",outcome="success"} 1`
	if !strings.Contains(metrics, want) {
		t.Fatalf("metrics missing %q:\n%s", want, metrics)
	}
}

func TestAppMetricsDriverSelection(t *testing.T) {
	t.Run("expvar", func(t *testing.T) {
		t.Setenv("CYTOCORE_STORAGE_DRIVER", "memory")
		t.Setenv("CYTOCORE_BLOB_DRIVER", "memory")
		t.Setenv("CYTOCORE_METRICS_DRIVER", "expvar")
		app, err := newApp(context.Background(), discardLogger())
		if err != nil {
			t.Fatalf("newApp: %v", err)
		}
		t.Cleanup(app.close)
		ts := httptest.NewServer(app.mux)
		defer ts.Close()

		resp, _ := getBody(t, ts, "/metrics")
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("metrics status = %d, want 404 without the prometheus driver", resp.StatusCode)
		}
		resp, body := getBody(t, ts, "/debug/vars")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("debug/vars status = %d", resp.StatusCode)
		}
		if !strings.Contains(body, "assay_service_metrics_") {
			t.Fatalf("debug/vars missing expvar recorder:\n%s", body)
		}
	})

	t.Run("none", func(t *testing.T) {
		t.Setenv("CYTOCORE_STORAGE_DRIVER", "memory")
		t.Setenv("CYTOCORE_BLOB_DRIVER", "memory")
		t.Setenv("CYTOCORE_METRICS_DRIVER", "none")
		app, err := newApp(context.Background(), discardLogger())
		if err != nil {
			t.Fatalf("newApp: %v", err)
		}
		t.Cleanup(app.close)
		ts := httptest.NewServer(app.mux)
		defer ts.Close()

		resp, _ := getBody(t, ts, "/metrics")
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("metrics status = %d, want 404 with metrics disabled", resp.StatusCode)
		}
	})

	t.Run("unknown", func(t *testing.T) {
		t.Setenv("CYTOCORE_STORAGE_DRIVER", "memory")
		t.Setenv("CYTOCORE_BLOB_DRIVER", "memory")
		t.Setenv("CYTOCORE_METRICS_DRIVER", "graphite")
		if _, err := newApp(context.Background(), discardLogger()); err == nil || !strings.Contains(err.Error(), "unknown metrics driver") {
			t.Fatalf("newApp error = %v", err)
		}
	})
}

func TestRunShutsDownOnContextCancel(t *testing.T) {
	t.Setenv("CYTOCORE_STORAGE_DRIVER", "memory")
	t.Setenv("CYTOCORE_BLOB_DRIVER", "memory")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, discardLogger(), []string{"-addr", "127.0.0.1:0"})
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned %v after cancel", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not exit after context cancel")
	}
}

func TestRunRejectsUnknownFlag(t *testing.T) {
	err := run(context.Background(), discardLogger(), []string{"-nope"})
	if err == nil {
		t.Fatal("expected flag parse error")
	}
}
