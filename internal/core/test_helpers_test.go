package core

import "cytocore/pkg/assay"

func floatPtr(v float64) *float64 { return &v }

func definedSeries(wellID string, values ...float64) assay.WellSeries {
	points := make([]assay.SeriesPoint, len(values))
	for i, v := range values {
		points[i] = assay.SeriesPoint{Time: float64(i), Value: floatPtr(v)}
	}
	return assay.WellSeries{WellID: wellID, Points: points}
}

// fixtureDataset builds a structurally valid dataset whose analysis passes
// every acceptance criterion: three killed positive-control replicates, a
// mixed treatment pair, and a recovering medium control.
func fixtureDataset(name string) assay.Dataset {
	return assay.Dataset{
		Name:   name,
		Config: assay.AssayConfig{Type: assay.AssayCD19},
		Series: []assay.WellSeries{
			definedSeries("T1", 0.1, 0.3, 0.9, 0.95, 0.9, 0.5, 0.3, 0.6),
			definedSeries("T2", 0.1, 0.2, 0.85, 0.8, 0.7, 0.6, 0.55, 0.5),
			definedSeries("P1", 0.1, 0.5, 0.9, 1.0, 0.7, 0.45, 0.3, 0.2),
			definedSeries("P2", 0.2, 0.6, 1.2, 1.1, 0.8, 0.5, 0.4, 0.3),
			definedSeries("P3", 0.1, 0.4, 1.0, 0.9, 0.6, 0.35, 0.3, 0.25),
			definedSeries("D1", 0.8, 0.9, 1.0, 0.9, 0.8, 0.85, 0.9, 0.95),
			definedSeries("D2", 0.8, 1.0, 1.0, 0.9, 0.7, 0.75, 0.9, 0.85),
		},
		Samples: []assay.SampleGroup{
			{Name: "Donor A", Role: assay.RoleTreatment, Wells: []string{"T1", "T2"}},
			{Name: "CAR-42", Role: assay.RoleTreatment, Wells: []string{"P1", "P2", "P3"}},
			{Name: "MED only", Role: assay.RoleNegativeControl, Wells: []string{"D1", "D2"}},
		},
	}
}
