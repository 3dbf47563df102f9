package assay

// ClassifyWell evaluates one windowed series against the assay's threshold
// preset and returns its kill classification. ok is false when the assay
// type has no supported calculation or the series carries no defined value;
// no result is produced in either case.
//
// The maximum is searched over the entire windowed series. The rise
// threshold only sets an advisory flag on the result; it never restricts
// the search space or blocks the computation.
func ClassifyWell(cfg AssayConfig, s WellSeries) (WellResult, bool) {
	threshold, supported := cfg.Type.RiseThreshold()
	if !supported {
		return WellResult{}, false
	}
	peak, ok := s.Peak()
	if !ok {
		return WellResult{}, false
	}
	result := WellResult{
		WellID:             s.WellID,
		MaxValue:           peak.Value,
		TimeAtMax:          peak.Time,
		HalfKillingTarget:  peak.Value / 2,
		BelowRiseThreshold: peak.Value < threshold,
	}
	crossing, ok := s.HalfCrossing(peak)
	if ok && crossing.Crossed {
		result.Killed = true
		t := crossing.Time
		result.TimeAtHalfTarget = &t
		elapsed := crossing.Time - peak.Time
		result.HalfKillingTime = &elapsed
		result.Recovered = recoveredAtEnd(s, peak, crossing.Target)
	}
	return result, true
}

// recoveredAtEnd reports whether a series that dropped strictly below the
// half-max target climbed back strictly above it at the final recorded
// point. The check runs against the well's own target, never an aggregate.
func recoveredAtEnd(s WellSeries, peak Peak, target float64) bool {
	tail := s.Points[peak.Index+1:]
	if len(tail) == 0 {
		return false
	}
	last := tail[len(tail)-1]
	return last.Value != nil && *last.Value > target
}
