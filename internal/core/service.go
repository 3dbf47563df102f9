// Package core wires the assay entities, kinetic analysis engine, and rule
// evaluation into the transactional service consumed by adapters and command
// binaries. It also selects the persistent storage backend.
package core

import (
	"context"
	"cytocore/pkg/assay"
	"fmt"
	"sort"
	"time"
)

// Operation identifiers recorded in logs, metrics, traces, and audit entries.
const (
	opRegisterDataset    = "register_dataset"
	opUpdateDataset      = "update_dataset"
	opDeleteDataset      = "delete_dataset"
	opSetPositiveControl = "set_positive_control"
	opAnalyzeDataset     = "analyze_dataset"
	opDeleteAnalysisRun  = "delete_analysis_run"
)

// Service exposes higher-level transactional operations over datasets and
// their derived analysis runs.
type Service struct {
	store   assay.PersistentStore
	engine  *assay.RulesEngine
	clock   Clock
	now     func() time.Time
	logger  Logger
	audit   AuditRecorder
	metrics MetricsRecorder
	tracer  Tracer
}

// NewService constructs a service backed by the supplied store.
func NewService(store assay.PersistentStore, opts ...ServiceOption) *Service {
	options := defaultServiceOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	return &Service{
		store:   store,
		engine:  options.engine,
		clock:   options.clock,
		now:     options.clock.Now,
		logger:  options.logger,
		audit:   options.audit,
		metrics: options.metrics,
		tracer:  options.tracer,
	}
}

// NewInMemoryService creates a service over a fresh in-memory store. A nil
// engine selects the built-in policy set.
func NewInMemoryService(engine *assay.RulesEngine, opts ...ServiceOption) *Service {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	store := newMemoryStore(engine)
	return NewService(store, append(opts, WithRulesEngine(engine))...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() assay.PersistentStore {
	return s.store
}

// RulesEngine returns the engine the service was configured with, or nil when
// the store was opened externally without sharing one.
func (s *Service) RulesEngine() *assay.RulesEngine {
	return s.engine
}

// RegisterDataset persists a new dataset snapshot.
func (s *Service) RegisterDataset(ctx context.Context, dataset assay.Dataset) (assay.Dataset, assay.Result, error) {
	var created assay.Dataset
	res, err := s.run(ctx, opRegisterDataset, func() string { return created.ID }, func(tx assay.Transaction) error {
		var err error
		created, err = tx.CreateDataset(dataset)
		return err
	})
	return created, res, err
}

// UpdateDataset mutates a dataset using the provided mutator.
func (s *Service) UpdateDataset(ctx context.Context, id string, mutator func(*assay.Dataset) error) (assay.Dataset, assay.Result, error) {
	var updated assay.Dataset
	res, err := s.run(ctx, opUpdateDataset, func() string { return updated.ID }, func(tx assay.Transaction) error {
		var err error
		updated, err = tx.UpdateDataset(id, mutator)
		return err
	})
	return updated, res, err
}

// DeleteDataset removes a dataset record. Datasets still referenced by
// analysis runs cannot be deleted.
func (s *Service) DeleteDataset(ctx context.Context, id string) (assay.Result, error) {
	res, err := s.run(ctx, opDeleteDataset, func() string { return id }, func(tx assay.Transaction) error {
		return tx.DeleteDataset(id)
	})
	return res, err
}

// SetPositiveControl records an explicit positive-control choice after
// validating that the named sample exists on the dataset.
func (s *Service) SetPositiveControl(ctx context.Context, datasetID, sampleName string) (assay.Dataset, assay.Result, error) {
	var updated assay.Dataset
	res, err := s.run(ctx, opSetPositiveControl, func() string { return updated.ID }, func(tx assay.Transaction) error {
		dataset, ok := tx.FindDataset(datasetID)
		if !ok {
			return ErrNotFound{Entity: assay.EntityDataset, ID: datasetID}
		}
		if sampleName != "" && !hasSample(dataset, sampleName) {
			return fmt.Errorf("sample %q is not part of dataset %s", sampleName, datasetID)
		}
		var err error
		updated, err = tx.UpdateDataset(datasetID, func(d *assay.Dataset) error {
			d.PositiveControl = sampleName
			return nil
		})
		return err
	})
	return updated, res, err
}

// Analyze evaluates a dataset and stores the outcome as a new analysis run.
// The dataset itself is never mutated; repeating the call yields a fresh run
// with an identical result payload.
func (s *Service) Analyze(ctx context.Context, datasetID string) (assay.AnalysisRun, assay.Result, error) {
	var created assay.AnalysisRun
	res, err := s.run(ctx, opAnalyzeDataset, func() string { return created.ID }, func(tx assay.Transaction) error {
		dataset, ok := tx.FindDataset(datasetID)
		if !ok {
			return ErrNotFound{Entity: assay.EntityDataset, ID: datasetID}
		}
		var err error
		created, err = tx.CreateAnalysisRun(assay.AnalysisRun{
			DatasetID:   dataset.ID,
			DatasetName: dataset.Name,
			Result:      assay.Analyze(dataset),
		})
		return err
	})
	return created, res, err
}

// DeleteAnalysisRun removes a stored run record.
func (s *Service) DeleteAnalysisRun(ctx context.Context, id string) (assay.Result, error) {
	res, err := s.run(ctx, opDeleteAnalysisRun, func() string { return id }, func(tx assay.Transaction) error {
		return tx.DeleteAnalysisRun(id)
	})
	return res, err
}

// GetDataset fetches one dataset by id.
func (s *Service) GetDataset(id string) (assay.Dataset, bool) {
	return s.store.GetDataset(id)
}

// ListDatasets returns all datasets ordered by creation time, then id.
func (s *Service) ListDatasets() []assay.Dataset {
	datasets := s.store.ListDatasets()
	SortDatasets(datasets)
	return datasets
}

// GetAnalysisRun fetches one stored run by id.
func (s *Service) GetAnalysisRun(id string) (assay.AnalysisRun, bool) {
	return s.store.GetAnalysisRun(id)
}

// ListAnalysisRuns returns all stored runs ordered by creation time, then id.
func (s *Service) ListAnalysisRuns() []assay.AnalysisRun {
	runs := s.store.ListAnalysisRuns()
	SortAnalysisRuns(runs)
	return runs
}

// LatestRunForDataset returns the most recently created run for a dataset.
func (s *Service) LatestRunForDataset(datasetID string) (assay.AnalysisRun, bool) {
	var latest assay.AnalysisRun
	found := false
	for _, run := range s.store.ListAnalysisRuns() {
		if run.DatasetID != datasetID {
			continue
		}
		if !found || run.CreatedAt.After(latest.CreatedAt) ||
			(run.CreatedAt.Equal(latest.CreatedAt) && run.ID > latest.ID) {
			latest = run
			found = true
		}
	}
	return latest, found
}

// SortDatasets orders datasets by creation time, breaking ties by id.
func SortDatasets(datasets []assay.Dataset) {
	sort.Slice(datasets, func(i, j int) bool {
		if !datasets[i].CreatedAt.Equal(datasets[j].CreatedAt) {
			return datasets[i].CreatedAt.Before(datasets[j].CreatedAt)
		}
		return datasets[i].ID < datasets[j].ID
	})
}

// SortAnalysisRuns orders runs by creation time, breaking ties by id.
func SortAnalysisRuns(runs []assay.AnalysisRun) {
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].CreatedAt.Before(runs[j].CreatedAt)
		}
		return runs[i].ID < runs[j].ID
	})
}

// run executes fn within a storage transaction and records the outcome on
// every configured observability sink. entityID is consulted only after a
// successful commit.
func (s *Service) run(ctx context.Context, operation string, entityID func() string, fn func(assay.Transaction) error) (assay.Result, error) {
	started := s.clock.Now()
	ctx, span := s.tracer.Start(ctx, operation)
	res, err := s.store.RunInTransaction(ctx, fn)
	duration := s.clock.Now().Sub(started)
	span.End(err)
	s.metrics.Observe(ctx, operation, err == nil, duration)
	if err != nil {
		s.logger.Error("operation failed", "operation", operation, "error", err)
		s.recordAuditError(ctx, operation, err, duration)
		return res, err
	}
	s.logger.Debug("operation committed", "operation", operation, "duration_ms", float64(duration)/float64(time.Millisecond))
	id := ""
	if entityID != nil {
		id = entityID()
	}
	s.recordAuditSuccess(ctx, operation, id, duration)
	return res, err
}

func hasSample(dataset assay.Dataset, name string) bool {
	for _, sample := range dataset.Samples {
		if sample.Name == name {
			return true
		}
	}
	return false
}

// ErrNotFound is returned when reference validation fails within
// transactional helpers.
type ErrNotFound struct {
	Entity assay.EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}
