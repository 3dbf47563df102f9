package core

import (
	"context"
	"errors"
	"strings"
	"testing"

	memory "cytocore/internal/infra/persistence/memory"
	"cytocore/pkg/assay"
)

func TestRunLinkageAcceptsLinkedRun(t *testing.T) {
	store := memory.NewStore(NewRulesEngine())
	_, err := store.RunInTransaction(context.Background(), func(tx assay.Transaction) error {
		dataset, err := tx.CreateDataset(fixtureDataset("linked"))
		if err != nil {
			return err
		}
		_, err = tx.CreateAnalysisRun(assay.AnalysisRun{
			DatasetID:   dataset.ID,
			DatasetName: dataset.Name,
			Result:      assay.Analyze(dataset),
		})
		return err
	})
	if err != nil {
		t.Fatalf("seed linked run: %v", err)
	}

	res := evaluateAgainstStore(t, store, NewRunLinkageRule())
	if len(res.Violations) != 0 {
		t.Fatalf("unexpected violations: %+v", res.Violations)
	}
}

func TestRunLinkageFlagsOrphanedRun(t *testing.T) {
	store := memory.NewStore(NewRulesEngine())
	_, err := store.RunInTransaction(context.Background(), func(tx assay.Transaction) error {
		_, err := tx.CreateAnalysisRun(assay.AnalysisRun{DatasetID: "ghost", DatasetName: "ghost"})
		return err
	})
	if err != nil {
		t.Fatalf("seed orphan run: %v", err)
	}

	res := evaluateAgainstStore(t, store, NewRunLinkageRule())
	if !res.HasBlocking() {
		t.Fatalf("expected blocking violation, got %+v", res.Violations)
	}
	if !strings.Contains(res.Violations[0].Message, "references missing dataset ghost") {
		t.Fatalf("unexpected message: %s", res.Violations[0].Message)
	}
	if res.Violations[0].Entity != assay.EntityAnalysisRun {
		t.Fatalf("expected run entity, got %s", res.Violations[0].Entity)
	}
}

func TestDefaultRulesEngineBlocksOrphanedRunCreation(t *testing.T) {
	store := memory.NewStore(NewDefaultRulesEngine())
	_, err := store.RunInTransaction(context.Background(), func(tx assay.Transaction) error {
		_, err := tx.CreateAnalysisRun(assay.AnalysisRun{DatasetID: "ghost", DatasetName: "ghost"})
		return err
	})
	if err == nil {
		t.Fatalf("expected orphaned run creation to be blocked")
	}
	var rve assay.RuleViolationError
	if !errors.As(err, &rve) {
		t.Fatalf("expected rule violation error, got %T: %v", err, err)
	}
	if len(store.ListAnalysisRuns()) != 0 {
		t.Fatalf("expected rollback of orphaned run")
	}
}
