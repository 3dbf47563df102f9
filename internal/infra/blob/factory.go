// Package blob selects the artifact store backend for a process.
package blob

import (
	"context"
	"fmt"
	"os"

	"cytocore/internal/infra/blob/core"
	"cytocore/internal/infra/blob/fs"
	"cytocore/internal/infra/blob/memory"
	"cytocore/internal/infra/blob/s3"
)

// Open picks a core.Store implementation from environment variables.
//
//	CYTOCORE_BLOB_DRIVER: fs|s3|memory (default fs)
//	CYTOCORE_BLOB_FS_ROOT: directory root when driver=fs (default ./artifacts)
//	(s3 variables are documented in the s3 package)
func Open(ctx context.Context) (core.Store, error) {
	driver := os.Getenv("CYTOCORE_BLOB_DRIVER")
	if driver == "" {
		driver = string(core.DriverFilesystem)
	}
	switch core.Driver(driver) {
	case core.DriverFilesystem:
		st, err := fs.New(os.Getenv("CYTOCORE_BLOB_FS_ROOT"))
		if err != nil {
			return nil, err
		}
		return st, nil
	case core.DriverS3:
		st, err := s3.OpenFromEnv(ctx)
		if err != nil {
			return nil, err
		}
		return st, nil
	case core.DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}
