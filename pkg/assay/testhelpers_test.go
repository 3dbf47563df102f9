package assay

func floatPtr(v float64) *float64 {
	return &v
}

// hourlySeries builds a series sampled at t=0,1,2,... hours. A nil entry
// marks an absent measurement.
func hourlySeries(wellID string, values ...*float64) WellSeries {
	points := make([]SeriesPoint, len(values))
	for i, v := range values {
		points[i] = SeriesPoint{Time: float64(i), Value: v}
	}
	return WellSeries{WellID: wellID, Points: points}
}

func definedSeries(wellID string, values ...float64) WellSeries {
	points := make([]SeriesPoint, len(values))
	for i := range values {
		points[i] = SeriesPoint{Time: float64(i), Value: &values[i]}
	}
	return WellSeries{WellID: wellID, Points: points}
}
