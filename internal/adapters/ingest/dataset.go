package ingest

import (
	"fmt"
	"path/filepath"
	"strings"

	"cytocore/pkg/assay"
)

// DatasetInput bundles the raw upload pieces one dataset is built from.
// PlateCSV is required; everything else is optional.
type DatasetInput struct {
	Name            string
	Filename        string
	PlateCSV        string
	LayoutCSV       string
	Audit           []AuditEvent
	AssayOverride   string
	PositiveControl string
	Marker          string
}

// BuildDataset applies the ingestion adapters in order: plate table, layout,
// assay type, effector reference. The result is ready for registration; all
// structural validation past parsing belongs to the rules engine.
func BuildDataset(input DatasetInput) (assay.Dataset, error) {
	if strings.TrimSpace(input.PlateCSV) == "" {
		return assay.Dataset{}, fmt.Errorf("plate table required")
	}
	series, err := ReadPlateTable(strings.NewReader(input.PlateCSV))
	if err != nil {
		return assay.Dataset{}, err
	}

	var samples []assay.SampleGroup
	if strings.TrimSpace(input.LayoutCSV) != "" {
		samples, err = ReadLayout(strings.NewReader(input.LayoutCSV))
		if err != nil {
			return assay.Dataset{}, err
		}
	}

	assayType := DetectAssayType(input.Filename)
	if strings.TrimSpace(input.AssayOverride) != "" {
		assayType, err = ParseAssayType(input.AssayOverride)
		if err != nil {
			return assay.Dataset{}, err
		}
	}

	var effector assay.EffectorReference
	if len(input.Audit) > 0 {
		effector = ResolveEffector(input.Audit)
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		name = datasetNameFrom(input.Filename)
	}
	if name == "" {
		return assay.Dataset{}, fmt.Errorf("dataset name required")
	}

	return assay.Dataset{
		Name: name,
		Config: assay.AssayConfig{
			Type:                  assayType,
			PositiveControlMarker: strings.TrimSpace(input.Marker),
		},
		Effector:        effector,
		Series:          series,
		Samples:         samples,
		PositiveControl: strings.TrimSpace(input.PositiveControl),
	}, nil
}

func datasetNameFrom(filename string) string {
	base := filepath.Base(strings.TrimSpace(filename))
	if base == "." || base == "/" {
		return ""
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}
