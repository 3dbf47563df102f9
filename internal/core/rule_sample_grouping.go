package core

import (
	"context"
	"cytocore/pkg/assay"
	"fmt"
)

// NewSampleGroupingRule returns the in-transaction rule validating sample
// grouping. Structural defects block the commit; questionable well references
// are recorded as warnings so ingestion quirks stay visible without stopping
// registration.
func NewSampleGroupingRule() assay.Rule {
	return sampleGroupingRule{}
}

type sampleGroupingRule struct{}

func (sampleGroupingRule) Name() string { return "sample_grouping" }

func (sampleGroupingRule) Evaluate(_ context.Context, view assay.RuleView, _ []assay.Change) (assay.Result, error) {
	res := assay.Result{}
	for _, dataset := range view.ListDatasets() {
		names := make(map[string]struct{}, len(dataset.Samples))
		claimed := make(map[string]string)
		for _, sample := range dataset.Samples {
			if sample.Name == "" {
				res.Violations = append(res.Violations, groupingViolation(dataset.ID, assay.SeverityBlock,
					fmt.Sprintf("dataset %s contains a sample group with no name", dataset.ID)))
				continue
			}
			if _, dup := names[sample.Name]; dup {
				res.Violations = append(res.Violations, groupingViolation(dataset.ID, assay.SeverityBlock,
					fmt.Sprintf("dataset %s declares sample %q twice", dataset.ID, sample.Name)))
				continue
			}
			names[sample.Name] = struct{}{}
			if len(sample.Wells) == 0 {
				res.Violations = append(res.Violations, groupingViolation(dataset.ID, assay.SeverityBlock,
					fmt.Sprintf("sample %q in dataset %s references no wells", sample.Name, dataset.ID)))
				continue
			}
			for _, well := range sample.Wells {
				if _, ok := dataset.FindSeries(well); !ok {
					res.Violations = append(res.Violations, groupingViolation(dataset.ID, assay.SeverityWarn,
						fmt.Sprintf("sample %q in dataset %s references well %s with no recorded series", sample.Name, dataset.ID, well)))
				}
				if prev, ok := claimed[well]; ok && prev != sample.Name {
					res.Violations = append(res.Violations, groupingViolation(dataset.ID, assay.SeverityWarn,
						fmt.Sprintf("well %s in dataset %s is claimed by samples %q and %q", well, dataset.ID, prev, sample.Name)))
					continue
				}
				claimed[well] = sample.Name
			}
		}
	}
	return res, nil
}

func groupingViolation(datasetID string, severity assay.Severity, message string) assay.Violation {
	return assay.Violation{
		Rule:     "sample_grouping",
		Severity: severity,
		Message:  message,
		Entity:   assay.EntityDataset,
		EntityID: datasetID,
	}
}
