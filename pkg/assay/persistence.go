package assay

import "context"

// Transaction exposes the record operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateDataset(Dataset) (Dataset, error)
	UpdateDataset(id string, mutator func(*Dataset) error) (Dataset, error)
	DeleteDataset(id string) error
	CreateAnalysisRun(AnalysisRun) (AnalysisRun, error)
	DeleteAnalysisRun(id string) error
	FindDataset(id string) (Dataset, bool)
}

// TransactionView provides read-only access to snapshot data for rules.
type TransactionView interface {
	ListDatasets() []Dataset
	ListAnalysisRuns() []AnalysisRun
	FindDataset(id string) (Dataset, bool)
	FindAnalysisRun(id string) (AnalysisRun, bool)
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetDataset(id string) (Dataset, bool)
	ListDatasets() []Dataset
	GetAnalysisRun(id string) (AnalysisRun, bool)
	ListAnalysisRuns() []AnalysisRun
}
