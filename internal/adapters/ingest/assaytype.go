package ingest

import (
	"fmt"
	"path/filepath"
	"strings"

	"cytocore/pkg/assay"
)

// DetectAssayType resolves the assay type from an export filename. The base
// name is matched case-insensitively for "cd19" and "bcma"; when both or
// neither appear the type stays Unknown rather than being guessed.
func DetectAssayType(filename string) assay.AssayType {
	base := strings.ToLower(filepath.Base(filename))
	hasCD19 := strings.Contains(base, "cd19")
	hasBCMA := strings.Contains(base, "bcma")
	switch {
	case hasCD19 && !hasBCMA:
		return assay.AssayCD19
	case hasBCMA && !hasCD19:
		return assay.AssayBCMA
	default:
		return assay.AssayUnknown
	}
}

// ParseAssayType maps an explicit operator override to an assay type. The
// empty string means no override.
func ParseAssayType(value string) (assay.AssayType, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case string(assay.AssayCD19):
		return assay.AssayCD19, nil
	case string(assay.AssayBCMA):
		return assay.AssayBCMA, nil
	case string(assay.AssayUnknown):
		return assay.AssayUnknown, nil
	default:
		return assay.AssayUnknown, fmt.Errorf("unknown assay type %q", value)
	}
}
