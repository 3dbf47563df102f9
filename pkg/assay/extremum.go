package assay

import "math"

// Peak locates a series' maximum defined value.
type Peak struct {
	Index int
	Time  float64
	Value float64
}

// Peak returns the maximum of the series' defined values, with ties broken
// by the earliest sample. ok is false when no point carries a value.
func (s WellSeries) Peak() (Peak, bool) {
	found := false
	var peak Peak
	for i, p := range s.Points {
		if p.Value == nil {
			continue
		}
		if !found || *p.Value > peak.Value {
			peak = Peak{Index: i, Time: p.Time, Value: *p.Value}
			found = true
		}
	}
	return peak, found
}

// Crossing is the outcome of the half-target search after a peak. The point
// recorded is the one closest in absolute difference to Target among the
// samples strictly after the peak; Crossed reports whether the series truly
// dropped strictly below Target at least once in that tail. A closest point
// exists even for curves that never drop, so the two must not be conflated.
type Crossing struct {
	Target  float64 `json:"target"`
	Index   int     `json:"index"`
	Time    float64 `json:"time"`
	Value   float64 `json:"value"`
	Crossed bool    `json:"crossed"`
}

// HalfCrossing searches the tail strictly after the peak for the point
// closest to half the peak value, ties broken by the earliest sample. ok is
// false when the peak has no defined successor to evaluate.
func (s WellSeries) HalfCrossing(peak Peak) (Crossing, bool) {
	target := peak.Value / 2
	crossing := Crossing{Target: target}
	found := false
	best := 0.0
	for i := peak.Index + 1; i < len(s.Points); i++ {
		p := s.Points[i]
		if p.Value == nil {
			continue
		}
		if *p.Value < target {
			crossing.Crossed = true
		}
		d := math.Abs(*p.Value - target)
		if !found || d < best {
			best = d
			crossing.Index = i
			crossing.Time = p.Time
			crossing.Value = *p.Value
			found = true
		}
	}
	return crossing, found
}
