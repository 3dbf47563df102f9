package assay

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var mediumOnlyWord = regexp.MustCompile(`(?i)\bonly\b`)

// IsMediumOnlyName reports whether a sample name denotes a medium or
// media-only group: it starts with "MED" or "CMM", or contains the
// standalone word "only", case-insensitive.
func IsMediumOnlyName(name string) bool {
	trimmed := strings.TrimSpace(name)
	upper := strings.ToUpper(trimmed)
	if strings.HasPrefix(upper, "MED") || strings.HasPrefix(upper, "CMM") {
		return true
	}
	return mediumOnlyWord.MatchString(trimmed)
}

// EvaluateNegativeControl runs the recovery check over the dataset's first
// usable medium group. Every replicate well is windowed by the effector
// reference, the wells are averaged per time point (at least one defined
// value required per point), and the criterion passes when the final
// averaged value stays strictly above half of the averaged maximum. Medium
// groups without a single usable well are skipped with a warning. A dataset
// with no medium group at all fails the criterion outright.
func EvaluateNegativeControl(ds Dataset) (NegativeControlResult, []string) {
	var warnings []string
	for _, group := range ds.Samples {
		if group.Role != RoleNegativeControl && !IsMediumOnlyName(group.Name) {
			continue
		}
		avg := averageReplicates(ds, group)
		if len(avg) == 0 {
			warnings = append(warnings, fmt.Sprintf("negative control %q has no usable well data", group.Name))
			continue
		}
		maxAvg := avg[0].value
		for _, p := range avg[1:] {
			if p.value > maxAvg {
				maxAvg = p.value
			}
		}
		last := avg[len(avg)-1].value
		return NegativeControlResult{
			Found:       true,
			SampleName:  group.Name,
			MaxAverage:  maxAvg,
			LastAverage: last,
			Passed:      last > maxAvg/2,
		}, warnings
	}
	return NegativeControlResult{}, warnings
}

type averagedPoint struct {
	time  float64
	value float64
}

// averageReplicates builds the row-wise mean of a group's windowed well
// series. Points where every replicate is absent are dropped. Unknown well
// identifiers are ignored here; the engine reports them separately.
func averageReplicates(ds Dataset, group SampleGroup) []averagedPoint {
	sums := make(map[float64]float64)
	counts := make(map[float64]int)
	for _, wellID := range group.Wells {
		series, ok := ds.FindSeries(wellID)
		if !ok {
			continue
		}
		windowed := series.WindowFrom(ds.Effector)
		for _, p := range windowed.Points {
			if p.Value == nil {
				continue
			}
			sums[p.Time] += *p.Value
			counts[p.Time]++
		}
	}
	if len(counts) == 0 {
		return nil
	}
	times := make([]float64, 0, len(counts))
	for t := range counts {
		times = append(times, t)
	}
	sort.Float64s(times)
	avg := make([]averagedPoint, 0, len(times))
	for _, t := range times {
		avg = append(avg, averagedPoint{time: t, value: sums[t] / float64(counts[t])})
	}
	return avg
}
