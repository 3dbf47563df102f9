package core

import (
	"context"
	"cytocore/pkg/assay"
	"fmt"
)

// NewRunLinkageRule returns the in-transaction rule enforcing that every
// stored analysis run points at an existing dataset.
func NewRunLinkageRule() assay.Rule {
	return runLinkageRule{}
}

type runLinkageRule struct{}

func (runLinkageRule) Name() string { return "run_linkage" }

func (runLinkageRule) Evaluate(_ context.Context, view assay.RuleView, _ []assay.Change) (assay.Result, error) {
	res := assay.Result{}
	for _, run := range view.ListAnalysisRuns() {
		if _, ok := view.FindDataset(run.DatasetID); !ok {
			res.Violations = append(res.Violations, assay.Violation{
				Rule:     "run_linkage",
				Severity: assay.SeverityBlock,
				Message:  fmt.Sprintf("analysis run %s references missing dataset %s", run.ID, run.DatasetID),
				Entity:   assay.EntityAnalysisRun,
				EntityID: run.ID,
			})
		}
	}
	return res, nil
}
