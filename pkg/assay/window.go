package assay

import "math"

// WindowFrom cuts the series at the sampled time closest to the effector
// reference and returns the suffix from that point on, cut point included.
// Instrument timestamps rarely land exactly on the reference, so the
// series' own closest sample is used as the cut line; ties resolve to the
// earlier sample. An absent reference, an empty series, or a series with no
// defined values is returned unchanged.
func (s WellSeries) WindowFrom(ref EffectorReference) WellSeries {
	if !ref.Defined() || len(s.Points) == 0 || !s.HasDefinedValue() {
		return s
	}
	cut := 0
	best := math.Abs(s.Points[0].Time - *ref.Hours)
	for i := 1; i < len(s.Points); i++ {
		d := math.Abs(s.Points[i].Time - *ref.Hours)
		if d < best {
			best = d
			cut = i
		}
	}
	return WellSeries{WellID: s.WellID, Points: s.Points[cut:]}
}
