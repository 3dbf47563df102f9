package ingest

import (
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"

	"cytocore/pkg/assay"
)

// layoutRow is one plate-layout line: a sample name, an optional role tag,
// and the replicate wells separated by commas or semicolons.
type layoutRow struct {
	Sample string `csv:"sample"`
	Role   string `csv:"role"`
	Wells  string `csv:"wells"`
}

// ReadLayout parses the sample layout CSV. Rows that are entirely blank are
// dropped; well lists are de-duplicated with order preserved. When the role
// column is empty the role is inferred from the sample name.
func ReadLayout(r io.Reader) ([]assay.SampleGroup, error) {
	var rows []*layoutRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("layout: %w", err)
	}
	groups := make([]assay.SampleGroup, 0, len(rows))
	for i, row := range rows {
		name := strings.TrimSpace(row.Sample)
		wells := splitWells(row.Wells)
		if name == "" && len(wells) == 0 {
			continue
		}
		role, err := resolveRole(row.Role, name)
		if err != nil {
			return nil, fmt.Errorf("layout row %d: %w", i+2, err)
		}
		groups = append(groups, assay.SampleGroup{Name: name, Role: role, Wells: wells})
	}
	return groups, nil
}

// splitWells accepts comma or semicolon separated well IDs.
func splitWells(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ';' })
	wells := make([]string, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		well := strings.TrimSpace(field)
		if well == "" {
			continue
		}
		if _, duplicate := seen[well]; duplicate {
			continue
		}
		seen[well] = struct{}{}
		wells = append(wells, well)
	}
	return wells
}

func resolveRole(tag, name string) (assay.SampleRole, error) {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "treatment":
		return assay.RoleTreatment, nil
	case "cell", "cells", "target":
		return assay.RoleCell, nil
	case "negative_control", "negative control", "medium", "media":
		return assay.RoleNegativeControl, nil
	case "positive_control", "positive control":
		return assay.RolePositiveControl, nil
	case "":
		return inferRole(name), nil
	default:
		return "", fmt.Errorf("unknown role tag %q", tag)
	}
}

// inferRole classifies untagged samples by name. Medium and media-only
// groups become negative controls; bare target-cell groups become cell
// controls; everything else is a treatment.
func inferRole(name string) assay.SampleRole {
	if assay.IsMediumOnlyName(name) {
		return assay.RoleNegativeControl
	}
	lower := strings.ToLower(strings.TrimSpace(name))
	if lower == "cell" || lower == "cells" ||
		strings.Contains(lower, "tumor alone") || strings.Contains(lower, "target only") {
		return assay.RoleCell
	}
	return assay.RoleTreatment
}
