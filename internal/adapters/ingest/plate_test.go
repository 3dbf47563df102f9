package ingest

import (
	"strings"
	"testing"
)

func TestReadPlateTable(t *testing.T) {
	input := strings.Join([]string{
		"time,A1,A2",
		"0,0.1,0.2",
		"1.5,0.4,0.5",
		"3, 0.9,1.1",
	}, "\n")
	series, err := ReadPlateTable(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadPlateTable: %v", err)
	}
	if len(series) != 2 {
		t.Fatalf("expected 2 series, got %d", len(series))
	}
	if series[0].WellID != "A1" || series[1].WellID != "A2" {
		t.Fatalf("unexpected well ids %s %s", series[0].WellID, series[1].WellID)
	}
	wantTimes := []float64{0, 1.5, 3}
	for _, s := range series {
		if len(s.Points) != 3 {
			t.Fatalf("well %s: expected 3 points, got %d", s.WellID, len(s.Points))
		}
		for i, p := range s.Points {
			if p.Time != wantTimes[i] {
				t.Fatalf("well %s point %d: time %v, want %v", s.WellID, i, p.Time, wantTimes[i])
			}
			if p.Value == nil {
				t.Fatalf("well %s point %d: unexpected absent value", s.WellID, i)
			}
		}
	}
	if *series[0].Points[2].Value != 0.9 || *series[1].Points[2].Value != 1.1 {
		t.Fatalf("unexpected values %v %v", *series[0].Points[2].Value, *series[1].Points[2].Value)
	}
}

func TestReadPlateTableAbsentCells(t *testing.T) {
	input := strings.Join([]string{
		"time,A1,A2",
		"0,,0.2",
		"1,n/a,NaN",
		"2,0.5,Inf",
	}, "\n")
	series, err := ReadPlateTable(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadPlateTable: %v", err)
	}
	a1, a2 := series[0], series[1]
	if a1.Points[0].Value != nil || a1.Points[1].Value != nil {
		t.Fatalf("blank and non-numeric cells must be absent: %+v", a1.Points)
	}
	if a1.Points[2].Value == nil || *a1.Points[2].Value != 0.5 {
		t.Fatalf("numeric cell lost: %+v", a1.Points[2])
	}
	if a2.Points[1].Value != nil || a2.Points[2].Value != nil {
		t.Fatalf("NaN and Inf must be absent: %+v", a2.Points)
	}
}

func TestReadPlateTableSkipsBlankColumns(t *testing.T) {
	input := strings.Join([]string{
		"time,A1,,A3",
		"0,0.1,junk,0.3",
	}, "\n")
	series, err := ReadPlateTable(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadPlateTable: %v", err)
	}
	if len(series) != 2 || series[0].WellID != "A1" || series[1].WellID != "A3" {
		t.Fatalf("blank column not skipped: %+v", series)
	}
}

func TestReadPlateTableToleratesShortRows(t *testing.T) {
	input := strings.Join([]string{
		"time,A1,A2",
		"0,0.1,0.2",
		"1,0.3",
	}, "\n")
	series, err := ReadPlateTable(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadPlateTable: %v", err)
	}
	a2 := series[1]
	if len(a2.Points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(a2.Points))
	}
	if a2.Points[1].Value != nil {
		t.Fatalf("missing trailing cell must be absent: %+v", a2.Points[1])
	}
}

func TestReadPlateTableRejectsBadTime(t *testing.T) {
	input := "time,A1\n0,0.1\nsoon,0.2\n"
	if _, err := ReadPlateTable(strings.NewReader(input)); err == nil {
		t.Fatalf("expected time parse error")
	} else if !strings.Contains(err.Error(), "row 3") {
		t.Fatalf("error should name the row: %v", err)
	}
}

func TestReadPlateTableEmptyInput(t *testing.T) {
	if _, err := ReadPlateTable(strings.NewReader("")); err == nil {
		t.Fatalf("expected error for empty table")
	}
}

func TestReadPlateTableHeaderOnly(t *testing.T) {
	series, err := ReadPlateTable(strings.NewReader("time,A1,A2\n"))
	if err != nil {
		t.Fatalf("ReadPlateTable: %v", err)
	}
	if len(series) != 2 || len(series[0].Points) != 0 {
		t.Fatalf("header-only table should yield empty series: %+v", series)
	}
}
