package assay

import (
	"fmt"
	"strings"
)

// Analyze runs one full evaluation over a dataset snapshot and returns the
// derived results. The computation is pure and synchronous: identical
// inputs produce identical output, and nothing in the dataset is mutated.
// Ordinary malformed assay data (absent values, unknown well references,
// unsupported assay types) degrades to warnings and advisory flags, never
// to an error.
func Analyze(ds Dataset) RunResult {
	result := RunResult{
		Status:    StatusPending,
		AssayType: ds.Config.Type,
	}
	if ds.Effector.Defined() {
		hours := *ds.Effector.Hours
		result.EffectorHours = &hours
	}
	if ds.Effector.Note != "" {
		result.Warnings = append(result.Warnings, ds.Effector.Note)
	}
	if !hasUsableData(ds) {
		return result
	}
	if _, supported := ds.Config.Type.RiseThreshold(); !supported {
		result.Warnings = append(result.Warnings, "assay type unknown: kill classification not computable")
	}

	for _, group := range ds.Samples {
		if group.Role == RoleCell || group.Role == RoleNegativeControl || IsMediumOnlyName(group.Name) {
			continue
		}
		var groupResults []WellResult
		for _, wellID := range group.Wells {
			series, ok := ds.FindSeries(wellID)
			if !ok {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("well %s of sample %q not found in series table", wellID, group.Name))
				continue
			}
			wellResult, ok := ClassifyWell(ds.Config, series.WindowFrom(ds.Effector))
			if !ok {
				continue
			}
			wellResult.SampleName = group.Name
			groupResults = append(groupResults, wellResult)
		}
		result.Wells = append(result.Wells, groupResults...)
		result.Samples = append(result.Samples, AggregateSample(group, groupResults))
	}

	nc, ncWarnings := EvaluateNegativeControl(ds)
	result.NegativeControl = nc
	result.Warnings = append(result.Warnings, ncWarnings...)

	pcName, pcWarnings := selectPositiveControl(ds, result.Samples)
	result.Warnings = append(result.Warnings, pcWarnings...)
	var pc *SampleStatistics
	for i := range result.Samples {
		if result.Samples[i].SampleName == pcName {
			pc = &result.Samples[i]
			break
		}
	}
	if pc != nil {
		result.PositiveControl = pc.SampleName
	}

	result.Status, result.Checklist = DetermineStatus(true, nc, pc)
	return result
}

// hasUsableData reports whether the dataset carries anything the engine can
// evaluate: at least one series with a defined value and a sample grouping.
// Anything less keeps the run Pending.
func hasUsableData(ds Dataset) bool {
	if len(ds.Samples) == 0 {
		return false
	}
	for _, s := range ds.Series {
		if s.HasDefinedValue() {
			return true
		}
	}
	return false
}

// selectPositiveControl resolves the positive control sample for the run.
// An explicit operator selection wins; otherwise a single group tagged
// RolePositiveControl is taken; otherwise the marker convention applies:
// exactly one analyzable sample name containing the configured marker
// substring, case-insensitive. Anything ambiguous stays unselected.
func selectPositiveControl(ds Dataset, stats []SampleStatistics) (string, []string) {
	known := func(name string) bool {
		for _, s := range stats {
			if s.SampleName == name {
				return true
			}
		}
		return false
	}

	if ds.PositiveControl != "" {
		if known(ds.PositiveControl) {
			return ds.PositiveControl, nil
		}
		return "", []string{fmt.Sprintf("selected positive control %q not found among analyzable samples", ds.PositiveControl)}
	}

	var tagged []string
	for _, group := range ds.Samples {
		if group.Role == RolePositiveControl && known(group.Name) {
			tagged = append(tagged, group.Name)
		}
	}
	if len(tagged) == 1 {
		return tagged[0], nil
	}
	if len(tagged) > 1 {
		return "", []string{"multiple samples tagged as positive control: explicit selection required"}
	}

	marker := strings.ToUpper(ds.Config.Marker())
	var matches []string
	for _, s := range stats {
		if strings.Contains(strings.ToUpper(s.SampleName), marker) {
			matches = append(matches, s.SampleName)
		}
	}
	if len(matches) == 1 {
		return matches[0], nil
	}
	if len(matches) > 1 {
		return "", []string{fmt.Sprintf("multiple sample names contain marker %q: explicit selection required", ds.Config.Marker())}
	}
	return "", nil
}
