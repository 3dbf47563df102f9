// Package ingest turns instrument exports, plate layouts, and audit logs
// into the datasets the analysis service stores. The engine itself never
// touches text formats; everything file-shaped stops here.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"cytocore/pkg/assay"
)

// ReadPlateTable parses the instrument's sweep table: a header row with a
// time column followed by one column per well, then one row per sweep. Cell
// values that are blank, non-numeric, NaN, or infinite become absent points.
// Columns with a blank header are skipped. Rows may omit trailing cells.
func ReadPlateTable(r io.Reader) ([]assay.WellSeries, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("plate table is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("plate table header: %w", err)
	}
	if len(header) < 1 {
		return nil, fmt.Errorf("plate table header has no columns")
	}

	type column struct {
		index  int
		wellID string
	}
	columns := make([]column, 0, len(header)-1)
	for i := 1; i < len(header); i++ {
		wellID := strings.TrimSpace(header[i])
		if wellID == "" {
			continue
		}
		columns = append(columns, column{index: i, wellID: wellID})
	}

	points := make(map[int][]assay.SeriesPoint, len(columns))
	row := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("plate table row %d: %w", row+1, err)
		}
		row++
		if len(record) == 0 {
			continue
		}
		t, err := parseTime(record[0], row)
		if err != nil {
			return nil, err
		}
		for _, col := range columns {
			cell := ""
			if col.index < len(record) {
				cell = record[col.index]
			}
			points[col.index] = append(points[col.index], assay.SeriesPoint{Time: t, Value: parseCell(cell)})
		}
	}

	series := make([]assay.WellSeries, 0, len(columns))
	for _, col := range columns {
		series = append(series, assay.WellSeries{WellID: col.wellID, Points: points[col.index]})
	}
	return series, nil
}

// parseTime rejects non-numeric axis values; the time axis is never guessed.
func parseTime(cell string, row int) (float64, error) {
	trimmed := strings.TrimSpace(cell)
	v, err := strconv.ParseFloat(trimmed, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("plate table row %d: time %q is not numeric", row, cell)
	}
	return v, nil
}

func parseCell(cell string) *float64 {
	trimmed := strings.TrimSpace(cell)
	if trimmed == "" {
		return nil
	}
	v, err := strconv.ParseFloat(trimmed, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
