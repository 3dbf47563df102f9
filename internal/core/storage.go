package core

import (
	"cytocore/internal/infra/persistence/memory"
	"cytocore/internal/infra/persistence/postgres"
	"cytocore/internal/infra/persistence/sqlite"
	"cytocore/pkg/assay"
	"fmt"
	"os"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// OpenPersistentStore selects a backend using environment variables.
// Defaults to sqlite when unset.
//
//	CYTOCORE_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	CYTOCORE_SQLITE_PATH: path to sqlite file (default ./cytocore.db)
//	CYTOCORE_POSTGRES_DSN: postgres DSN when driver=postgres
func OpenPersistentStore(engine *assay.RulesEngine) (assay.PersistentStore, error) {
	driver := os.Getenv("CYTOCORE_STORAGE_DRIVER")
	if driver == "" {
		driver = string(StorageSQLite)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(engine), nil
	case StorageSQLite:
		path := os.Getenv("CYTOCORE_SQLITE_PATH")
		st, err := sqlite.NewStore(path, engine)
		if err != nil {
			return nil, err
		}
		return st, nil
	case StoragePostgres:
		dsn := os.Getenv("CYTOCORE_POSTGRES_DSN")
		st, err := postgres.NewStore(dsn, engine)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}

func newMemoryStore(engine *assay.RulesEngine) assay.PersistentStore {
	return memory.NewStore(engine)
}
