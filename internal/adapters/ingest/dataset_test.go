package ingest

import (
	"strings"
	"testing"

	"cytocore/pkg/assay"
)

const testPlate = "time,A1,A2\n0,0.1,0.2\n24,0.9,1.0\n"
const testLayout = "sample,role,wells\nDonor A,treatment,\"A1,A2\"\n"

func TestBuildDataset(t *testing.T) {
	dataset, err := BuildDataset(DatasetInput{
		Name:      "Donor A plate",
		Filename:  "CD19_donorA.csv",
		PlateCSV:  testPlate,
		LayoutCSV: testLayout,
		Audit: []AuditEvent{
			{Hours: 0, Message: "plate seeded"},
			{Hours: 20, Message: "effector added"},
		},
		PositiveControl: "Donor A",
		Marker:          "CAR",
	})
	if err != nil {
		t.Fatalf("BuildDataset: %v", err)
	}
	if dataset.Name != "Donor A plate" {
		t.Fatalf("unexpected name %q", dataset.Name)
	}
	if dataset.Config.Type != assay.AssayCD19 {
		t.Fatalf("expected cd19 from filename, got %s", dataset.Config.Type)
	}
	if len(dataset.Series) != 2 || len(dataset.Samples) != 1 {
		t.Fatalf("unexpected shape: %d series, %d samples", len(dataset.Series), len(dataset.Samples))
	}
	if !dataset.Effector.Defined() || *dataset.Effector.Hours != 20 {
		t.Fatalf("effector not resolved: %+v", dataset.Effector)
	}
	if dataset.PositiveControl != "Donor A" || dataset.Config.PositiveControlMarker != "CAR" {
		t.Fatalf("selection fields lost: %+v", dataset)
	}
}

func TestBuildDatasetNameFromFilename(t *testing.T) {
	dataset, err := BuildDataset(DatasetInput{
		Filename: "/exports/BCMA_run7.csv",
		PlateCSV: testPlate,
	})
	if err != nil {
		t.Fatalf("BuildDataset: %v", err)
	}
	if dataset.Name != "BCMA_run7" {
		t.Fatalf("expected name from filename, got %q", dataset.Name)
	}
	if dataset.Config.Type != assay.AssayBCMA {
		t.Fatalf("expected bcma, got %s", dataset.Config.Type)
	}
}

func TestBuildDatasetOverrideBeatsFilename(t *testing.T) {
	dataset, err := BuildDataset(DatasetInput{
		Name:          "plate",
		Filename:      "CD19_plate.csv",
		PlateCSV:      testPlate,
		AssayOverride: "bcma",
	})
	if err != nil {
		t.Fatalf("BuildDataset: %v", err)
	}
	if dataset.Config.Type != assay.AssayBCMA {
		t.Fatalf("override lost: %s", dataset.Config.Type)
	}
}

func TestBuildDatasetRequiresPlate(t *testing.T) {
	if _, err := BuildDataset(DatasetInput{Name: "plate"}); err == nil {
		t.Fatalf("expected error without plate table")
	}
}

func TestBuildDatasetRequiresName(t *testing.T) {
	if _, err := BuildDataset(DatasetInput{PlateCSV: testPlate}); err == nil {
		t.Fatalf("expected error without name and filename")
	}
}

func TestBuildDatasetNoAuditMeansAbsentEffector(t *testing.T) {
	dataset, err := BuildDataset(DatasetInput{Name: "plate", PlateCSV: testPlate})
	if err != nil {
		t.Fatalf("BuildDataset: %v", err)
	}
	if dataset.Effector.Defined() || dataset.Effector.Note != "" {
		t.Fatalf("expected silent absent effector: %+v", dataset.Effector)
	}
}

func TestBuildDatasetPropagatesParseErrors(t *testing.T) {
	if _, err := BuildDataset(DatasetInput{Name: "plate", PlateCSV: "time,A1\nabc,0.1\n"}); err == nil {
		t.Fatalf("expected plate parse error")
	}
	if _, err := BuildDataset(DatasetInput{Name: "plate", PlateCSV: testPlate, LayoutCSV: "sample,role,wells\nX,mystery,A1\n"}); err == nil {
		t.Fatalf("expected layout role error")
	}
	if _, err := BuildDataset(DatasetInput{Name: "plate", PlateCSV: testPlate, AssayOverride: "her2"}); err == nil {
		t.Fatalf("expected assay override error")
	}
}

func TestBuildDatasetUnresolvedAuditKeepsNote(t *testing.T) {
	dataset, err := BuildDataset(DatasetInput{
		Name:     "plate",
		PlateCSV: testPlate,
		Audit:    []AuditEvent{{Hours: 4, Message: "media change"}},
	})
	if err != nil {
		t.Fatalf("BuildDataset: %v", err)
	}
	if dataset.Effector.Defined() {
		t.Fatalf("unresolvable log must stay absent: %+v", dataset.Effector)
	}
	if !strings.Contains(dataset.Effector.Note, "no effector addition") {
		t.Fatalf("expected advisory note, got %q", dataset.Effector.Note)
	}
}
