// Package memory provides an in-memory implementation of the assay
// persistence store used for tests and ephemeral environments.
package memory

import (
	"context"
	"crypto/rand"
	"cytocore/pkg/assay"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// Compile-time contract assertion ensuring memory.Store adheres to the assay persistence interfaces.
var _ assay.PersistentStore = (*Store)(nil)

type (
	// Dataset aliases assay.Dataset for in-memory persistence operations.
	Dataset = assay.Dataset
	// AnalysisRun aliases assay.AnalysisRun.
	AnalysisRun = assay.AnalysisRun
	// Change aliases assay.Change captured in transactions.
	Change = assay.Change
	// Result aliases assay.Result summarizing rule evaluation.
	Result = assay.Result
	// RulesEngine aliases assay.RulesEngine used to evaluate rules.
	RulesEngine = assay.RulesEngine
	// Transaction aliases assay.Transaction representing a mutable unit of work.
	Transaction = assay.Transaction
	// TransactionView aliases assay.TransactionView providing read-only state.
	TransactionView = assay.TransactionView
	// PersistentStore aliases assay.PersistentStore abstraction.
	PersistentStore = assay.PersistentStore
)

type memoryState struct {
	datasets map[string]Dataset
	runs     map[string]AnalysisRun
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Datasets map[string]Dataset     `json:"datasets"`
	Runs     map[string]AnalysisRun `json:"runs"`
}

func newMemoryState() memoryState {
	return memoryState{
		datasets: make(map[string]Dataset),
		runs:     make(map[string]AnalysisRun),
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Datasets: make(map[string]Dataset, len(state.datasets)),
		Runs:     make(map[string]AnalysisRun, len(state.runs)),
	}
	for k, v := range state.datasets {
		s.Datasets[k] = cloneDataset(v)
	}
	for k, v := range state.runs {
		s.Runs[k] = cloneAnalysisRun(v)
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Datasets {
		state.datasets[k] = cloneDataset(v)
	}
	for k, v := range s.Runs {
		state.runs[k] = cloneAnalysisRun(v)
	}
	return state
}

// migrateSnapshot normalizes snapshots loaded from external storage: nil maps
// become empty, and analysis runs whose dataset no longer exists are dropped.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Datasets == nil {
		snapshot.Datasets = map[string]Dataset{}
	}
	if snapshot.Runs == nil {
		snapshot.Runs = map[string]AnalysisRun{}
	}
	for id, run := range snapshot.Runs {
		if _, ok := snapshot.Datasets[run.DatasetID]; !ok {
			delete(snapshot.Runs, id)
		}
	}
	return snapshot
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.datasets {
		cloned.datasets[k] = cloneDataset(v)
	}
	for k, v := range s.runs {
		cloned.runs[k] = cloneAnalysisRun(v)
	}
	return cloned
}

func cloneFloatPtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}

func cloneSeries(s assay.WellSeries) assay.WellSeries {
	cp := s
	cp.Points = append([]assay.SeriesPoint(nil), s.Points...)
	for i := range cp.Points {
		cp.Points[i].Value = cloneFloatPtr(cp.Points[i].Value)
	}
	return cp
}

func cloneDataset(d Dataset) Dataset {
	cp := d
	cp.Effector.Hours = cloneFloatPtr(d.Effector.Hours)
	if len(d.Series) != 0 {
		cp.Series = make([]assay.WellSeries, len(d.Series))
		for i, series := range d.Series {
			cp.Series[i] = cloneSeries(series)
		}
	}
	if len(d.Samples) != 0 {
		cp.Samples = make([]assay.SampleGroup, len(d.Samples))
		for i, group := range d.Samples {
			cg := group
			cg.Wells = append([]string(nil), group.Wells...)
			cp.Samples[i] = cg
		}
	}
	cp.Warnings = append([]string(nil), d.Warnings...)
	return cp
}

func cloneWellResult(w assay.WellResult) assay.WellResult {
	cp := w
	cp.TimeAtHalfTarget = cloneFloatPtr(w.TimeAtHalfTarget)
	cp.HalfKillingTime = cloneFloatPtr(w.HalfKillingTime)
	return cp
}

func cloneSampleStatistics(s assay.SampleStatistics) assay.SampleStatistics {
	cp := s
	cp.MeanKillingHours = cloneFloatPtr(s.MeanKillingHours)
	cp.StdDevKillingHours = cloneFloatPtr(s.StdDevKillingHours)
	cp.CVPercent = cloneFloatPtr(s.CVPercent)
	cp.ThresholdViolations = append([]string(nil), s.ThresholdViolations...)
	return cp
}

func cloneRunResult(r assay.RunResult) assay.RunResult {
	cp := r
	cp.EffectorHours = cloneFloatPtr(r.EffectorHours)
	cp.Wells = append([]assay.WellResult(nil), r.Wells...)
	for i := range cp.Wells {
		cp.Wells[i] = cloneWellResult(cp.Wells[i])
	}
	cp.Samples = append([]assay.SampleStatistics(nil), r.Samples...)
	for i := range cp.Samples {
		cp.Samples[i] = cloneSampleStatistics(cp.Samples[i])
	}
	cp.Checklist = append([]assay.ChecklistItem(nil), r.Checklist...)
	cp.Warnings = append([]string(nil), r.Warnings...)
	return cp
}

func cloneAnalysisRun(r AnalysisRun) AnalysisRun {
	cp := r
	cp.Result = cloneRunResult(r.Result)
	return cp
}

// Store provides an in-memory transactional store for assay records.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = assay.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
}

// RulesEngine exposes the currently configured engine for integration points.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// SetNowFunc overrides the time provider, primarily for deterministic tests.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.nowFn = fn
	}
}

type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// ListDatasets returns all datasets within the transaction snapshot.
func (v transactionView) ListDatasets() []Dataset {
	out := make([]Dataset, 0, len(v.state.datasets))
	for _, d := range v.state.datasets {
		out = append(out, cloneDataset(d))
	}
	return out
}

// ListAnalysisRuns returns all analysis runs within the snapshot.
func (v transactionView) ListAnalysisRuns() []AnalysisRun {
	out := make([]AnalysisRun, 0, len(v.state.runs))
	for _, r := range v.state.runs {
		out = append(out, cloneAnalysisRun(r))
	}
	return out
}

// FindDataset retrieves a dataset by ID from the snapshot.
func (v transactionView) FindDataset(id string) (Dataset, bool) {
	d, ok := v.state.datasets[id]
	if !ok {
		return Dataset{}, false
	}
	return cloneDataset(d), true
}

// FindAnalysisRun retrieves an analysis run by ID from the snapshot.
func (v transactionView) FindAnalysisRun(id string) (AnalysisRun, bool) {
	r, ok := v.state.runs[id]
	if !ok {
		return AnalysisRun{}, false
	}
	return cloneAnalysisRun(r), true
}

// RunInTransaction executes fn within a transactional copy of the store state.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, assay.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := newTransactionView(&snapshot)
	return fn(view)
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// FindDataset exposes dataset lookup within the transaction scope.
func (tx *transaction) FindDataset(id string) (Dataset, bool) {
	d, ok := tx.state.datasets[id]
	if !ok {
		return Dataset{}, false
	}
	return cloneDataset(d), true
}

// CreateDataset stores a new dataset within the transaction.
func (tx *transaction) CreateDataset(d Dataset) (Dataset, error) {
	if d.ID == "" {
		d.ID = tx.store.newID()
	}
	if _, exists := tx.state.datasets[d.ID]; exists {
		return Dataset{}, fmt.Errorf("dataset %q already exists", d.ID)
	}
	d.CreatedAt = tx.now
	d.UpdatedAt = tx.now
	tx.state.datasets[d.ID] = cloneDataset(d)
	tx.recordChange(Change{Entity: assay.EntityDataset, Action: assay.ActionCreate, After: cloneDataset(d)})
	return cloneDataset(d), nil
}

// UpdateDataset mutates a dataset using the provided mutator function.
func (tx *transaction) UpdateDataset(id string, mutator func(*Dataset) error) (Dataset, error) {
	current, ok := tx.state.datasets[id]
	if !ok {
		return Dataset{}, fmt.Errorf("dataset %q not found", id)
	}
	before := cloneDataset(current)
	if err := mutator(&current); err != nil {
		return Dataset{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.datasets[id] = cloneDataset(current)
	tx.recordChange(Change{Entity: assay.EntityDataset, Action: assay.ActionUpdate, Before: before, After: cloneDataset(current)})
	return cloneDataset(current), nil
}

// DeleteDataset removes a dataset from the transaction state.
func (tx *transaction) DeleteDataset(id string) error {
	current, ok := tx.state.datasets[id]
	if !ok {
		return fmt.Errorf("dataset %q not found", id)
	}
	for _, run := range tx.state.runs {
		if run.DatasetID == id {
			return fmt.Errorf("dataset %q still referenced by analysis run %q", id, run.ID)
		}
	}
	delete(tx.state.datasets, id)
	tx.recordChange(Change{Entity: assay.EntityDataset, Action: assay.ActionDelete, Before: cloneDataset(current)})
	return nil
}

// CreateAnalysisRun stores a new analysis run within the transaction.
func (tx *transaction) CreateAnalysisRun(r AnalysisRun) (AnalysisRun, error) {
	if r.ID == "" {
		r.ID = tx.store.newID()
	}
	if _, exists := tx.state.runs[r.ID]; exists {
		return AnalysisRun{}, fmt.Errorf("analysis run %q already exists", r.ID)
	}
	r.CreatedAt = tx.now
	r.UpdatedAt = tx.now
	tx.state.runs[r.ID] = cloneAnalysisRun(r)
	tx.recordChange(Change{Entity: assay.EntityAnalysisRun, Action: assay.ActionCreate, After: cloneAnalysisRun(r)})
	return cloneAnalysisRun(r), nil
}

// DeleteAnalysisRun removes an analysis run from the transaction state.
func (tx *transaction) DeleteAnalysisRun(id string) error {
	current, ok := tx.state.runs[id]
	if !ok {
		return fmt.Errorf("analysis run %q not found", id)
	}
	delete(tx.state.runs, id)
	tx.recordChange(Change{Entity: assay.EntityAnalysisRun, Action: assay.ActionDelete, Before: cloneAnalysisRun(current)})
	return nil
}

// GetDataset retrieves a dataset by ID from committed state.
func (s *Store) GetDataset(id string) (Dataset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.state.datasets[id]
	if !ok {
		return Dataset{}, false
	}
	return cloneDataset(d), true
}

// ListDatasets returns all datasets from committed state.
func (s *Store) ListDatasets() []Dataset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Dataset, 0, len(s.state.datasets))
	for _, d := range s.state.datasets {
		out = append(out, cloneDataset(d))
	}
	return out
}

// GetAnalysisRun retrieves an analysis run by ID from committed state.
func (s *Store) GetAnalysisRun(id string) (AnalysisRun, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.state.runs[id]
	if !ok {
		return AnalysisRun{}, false
	}
	return cloneAnalysisRun(r), true
}

// ListAnalysisRuns returns all analysis runs from committed state.
func (s *Store) ListAnalysisRuns() []AnalysisRun {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]AnalysisRun, 0, len(s.state.runs))
	for _, r := range s.state.runs {
		out = append(out, cloneAnalysisRun(r))
	}
	return out
}
