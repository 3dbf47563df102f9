package core

import (
	"context"
	"cytocore/pkg/assay"
	"fmt"
)

// NewSeriesIntegrityRule returns the default in-transaction rule validating
// the shape of stored well series.
func NewSeriesIntegrityRule() assay.Rule {
	return seriesIntegrityRule{}
}

type seriesIntegrityRule struct{}

func (seriesIntegrityRule) Name() string { return "series_integrity" }

func (seriesIntegrityRule) Evaluate(_ context.Context, view assay.RuleView, _ []assay.Change) (assay.Result, error) {
	res := assay.Result{}
	for _, dataset := range view.ListDatasets() {
		seen := make(map[string]struct{}, len(dataset.Series))
		for _, series := range dataset.Series {
			if series.WellID == "" {
				res.Violations = append(res.Violations, seriesViolation(dataset.ID,
					fmt.Sprintf("dataset %s contains a series with no well id", dataset.ID)))
				continue
			}
			if _, dup := seen[series.WellID]; dup {
				res.Violations = append(res.Violations, seriesViolation(dataset.ID,
					fmt.Sprintf("dataset %s repeats series for well %s", dataset.ID, series.WellID)))
				continue
			}
			seen[series.WellID] = struct{}{}
			for i := 1; i < len(series.Points); i++ {
				if series.Points[i].Time < series.Points[i-1].Time {
					res.Violations = append(res.Violations, seriesViolation(dataset.ID,
						fmt.Sprintf("well %s in dataset %s has a decreasing time axis at sweep %d", series.WellID, dataset.ID, i)))
					break
				}
			}
		}
	}
	return res, nil
}

func seriesViolation(datasetID, message string) assay.Violation {
	return assay.Violation{
		Rule:     "series_integrity",
		Severity: assay.SeverityBlock,
		Message:  message,
		Entity:   assay.EntityDataset,
		EntityID: datasetID,
	}
}
