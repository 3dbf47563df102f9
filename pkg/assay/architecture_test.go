package assay_test

import (
	"testing"

	"cytocore/testutil"
)

// TestAssayPackageImportsNoInternals enforces that the public analysis
// library never reaches into internal packages. External callers embed this
// package without pulling in the service, storage or HTTP layers.
func TestAssayPackageImportsNoInternals(t *testing.T) {
	forbidden := testutil.ModuleInternalForbidden("cytocore")
	testutil.AssertNoDirectImports(t, ".", forbidden, "pkg/assay is the public API surface")
	testutil.AssertNoTransitiveDependency(t, ".", forbidden, "pkg/assay is the public API surface")
}
