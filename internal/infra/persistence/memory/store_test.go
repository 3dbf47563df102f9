package memory

import (
	"context"
	"cytocore/pkg/assay"
	"fmt"
	"testing"
	"time"
)

func TestStoreRunInTransactionAndSnapshots(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	_, err := store.RunInTransaction(ctx, func(tx assay.Transaction) error {
		if _, ok := tx.FindDataset("missing"); ok {
			t.Fatalf("expected missing dataset lookup")
		}
		created, err := tx.CreateDataset(assay.Dataset{Name: "plate-7", Config: assay.AssayConfig{Type: assay.AssayCD19}})
		if err != nil {
			return err
		}
		if created.ID == "" {
			t.Fatalf("expected generated ID")
		}
		view := tx.Snapshot()
		if len(view.ListDatasets()) != 1 {
			t.Fatalf("snapshot mismatch")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("run transaction: %v", err)
	}
	if len(store.ListDatasets()) != 1 {
		t.Fatalf("expected persisted dataset")
	}
	snapshot := store.ExportState()
	store.ImportState(Snapshot{})
	if len(store.ListDatasets()) != 0 {
		t.Fatalf("expected cleared state")
	}
	store.ImportState(snapshot)
	if len(store.ListDatasets()) != 1 {
		t.Fatalf("expected restored state")
	}
	if store.RulesEngine() == nil {
		t.Fatalf("expected rules engine")
	}
	if store.NowFunc() == nil {
		t.Fatalf("expected now func")
	}
}

func TestStoreRuleViolation(t *testing.T) {
	store := NewStore(assay.NewRulesEngine())
	store.RulesEngine().Register(blockingRule{})
	_, err := store.RunInTransaction(context.Background(), func(tx assay.Transaction) error {
		_, e := tx.CreateDataset(assay.Dataset{Name: "blocked"})
		return e
	})
	if err == nil {
		t.Fatalf("expected rule violation error")
	}
}

type blockingRule struct{}

func (blockingRule) Name() string { return "block" }

func (blockingRule) Evaluate(ctx context.Context, view assay.RuleView, changes []assay.Change) (assay.Result, error) {
	res := assay.Result{}
	res.Merge(assay.Result{Violations: []assay.Violation{{Rule: "block", Severity: assay.SeverityBlock}}})
	return res, nil
}

func TestUpdateDatasetErrors(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	_, err := store.RunInTransaction(ctx, func(tx assay.Transaction) error {
		if _, err := tx.UpdateDataset("missing", func(*assay.Dataset) error { return nil }); err == nil {
			t.Fatalf("expected missing dataset error")
		}
		d, err := tx.CreateDataset(assay.Dataset{Name: "plate"})
		if err != nil {
			return err
		}
		_, err = tx.UpdateDataset(d.ID, func(ds *assay.Dataset) error { return fmt.Errorf("boom") })
		if err == nil {
			t.Fatalf("expected mutator error")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
}

func TestSetNowFuncControlsTimestamps(t *testing.T) {
	store := NewStore(nil)
	frozen := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store.SetNowFunc(func() time.Time { return frozen })
	var created assay.Dataset
	_, err := store.RunInTransaction(context.Background(), func(tx assay.Transaction) error {
		var e error
		created, e = tx.CreateDataset(assay.Dataset{Name: "frozen"})
		return e
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
	if !created.CreatedAt.Equal(frozen) || !created.UpdatedAt.Equal(frozen) {
		t.Fatalf("expected frozen timestamps, got %v / %v", created.CreatedAt, created.UpdatedAt)
	}
	store.SetNowFunc(nil)
	if store.NowFunc() == nil {
		t.Fatalf("nil override must keep the previous provider")
	}
}
