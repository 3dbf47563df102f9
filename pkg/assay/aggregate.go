package assay

import (
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// Kill summary strings reported per sample.
const (
	KillSummaryAllYes = "All Yes"
	KillSummaryAllNo  = "All No"
	KillSummaryNoData = "No kill data"
)

// AggregateSample folds the replicate well results of one sample group into
// its statistics and validity verdict. The replicate count comes from the
// grouping ground truth, not from how many wells produced a computable
// result. Mean and standard deviation cover only killed replicates with a
// defined half-killing time; fewer than two such values leave the standard
// deviation absent.
func AggregateSample(group SampleGroup, results []WellResult) SampleStatistics {
	stats := SampleStatistics{
		SampleName:        group.Name,
		Role:              group.Role,
		ReplicateCount:    len(group.Wells),
		ResultCount:       len(results),
		LowReplicateCount: len(group.Wells) < MinReplicateCount,
	}

	killed := 0
	var killingHours []float64
	for _, r := range results {
		if r.Killed {
			killed++
			if r.HalfKillingTime != nil {
				killingHours = append(killingHours, *r.HalfKillingTime)
			}
		}
		if r.Recovered {
			stats.Recovered = true
		}
		if r.BelowRiseThreshold {
			stats.ThresholdViolations = append(stats.ThresholdViolations, r.WellID)
		}
	}
	stats.KillSummary = killSummary(killed, len(results))

	if len(killingHours) > 0 {
		mean, stddev := stat.MeanStdDev(killingHours, nil)
		stats.MeanKillingHours = &mean
		if len(killingHours) >= 2 {
			stats.StdDevKillingHours = &stddev
		}
		cv := cvPercent(mean, stats.StdDevKillingHours)
		stats.CVPercent = &cv
	}

	stats.Valid = stats.KillSummary == KillSummaryAllYes &&
		stats.CVPercent != nil && *stats.CVPercent <= MaxValidCVPercent &&
		stats.MeanKillingHours != nil && *stats.MeanKillingHours <= MaxValidMeanKillingHours &&
		!stats.Recovered
	return stats
}

// killSummary renders the per-well killed statuses actually recorded. Wells
// whose series produced no result contribute nothing.
func killSummary(killed, total int) string {
	switch {
	case total == 0:
		return KillSummaryNoData
	case killed == total:
		return KillSummaryAllYes
	case killed == 0:
		return KillSummaryAllNo
	default:
		return fmt.Sprintf("%d Yes, %d No", killed, total-killed)
	}
}

// cvPercent normalizes the coefficient of variation: 0 whenever the
// standard deviation is 0 or absent, independent of the mean.
func cvPercent(mean float64, stddev *float64) float64 {
	if stddev == nil || *stddev == 0 || mean == 0 {
		return 0
	}
	return *stddev / mean * 100
}
