package reports

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	blobcore "cytocore/internal/infra/blob/core"
	"cytocore/pkg/assay"
)

// ExportStatus describes the lifecycle stage of an export request.
type ExportStatus string

const (
	ExportStatusQueued    ExportStatus = "queued"
	ExportStatusRunning   ExportStatus = "running"
	ExportStatusSucceeded ExportStatus = "succeeded"
	ExportStatusFailed    ExportStatus = "failed"
)

// ExportArtifact captures one stored report artifact.
type ExportArtifact struct {
	Key         string    `json:"key"`
	Format      Format    `json:"format"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	URL         string    `json:"url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ExportRecord tracks an export request and its resulting artifacts.
type ExportRecord struct {
	ID          string           `json:"id"`
	RunID       string           `json:"run_id"`
	DatasetID   string           `json:"dataset_id"`
	DatasetName string           `json:"dataset_name"`
	Formats     []Format         `json:"formats"`
	Status      ExportStatus     `json:"status"`
	Error       string           `json:"error,omitempty"`
	Artifacts   []ExportArtifact `json:"artifacts,omitempty"`
	RequestedBy string           `json:"requested_by,omitempty"`
	Reason      string           `json:"reason,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// ExportInput is an enqueue request for the worker.
type ExportInput struct {
	RunID       string
	Formats     []Format
	RequestedBy string
	Reason      string
}

// ExportScheduler queues report export requests and exposes their status.
type ExportScheduler interface {
	EnqueueExport(ctx context.Context, input ExportInput) (ExportRecord, error)
	GetExport(id string) (ExportRecord, bool)
}

// RunSource resolves stored analysis runs for export.
type RunSource interface {
	GetAnalysisRun(id string) (assay.AnalysisRun, bool)
}

// AuditLogger records export lifecycle entries.
type AuditLogger interface {
	Record(ctx context.Context, entry AuditEntry)
}

// AuditEntry is one export audit-trail record.
type AuditEntry struct {
	ID         string       `json:"id"`
	Action     string       `json:"action"`
	Actor      string       `json:"actor,omitempty"`
	RunID      string       `json:"run_id"`
	Status     ExportStatus `json:"status"`
	Note       string       `json:"note,omitempty"`
	OccurredAt time.Time    `json:"occurred_at"`
}

const exportAuditAction = "report_export"

// Worker renders and archives report exports asynchronously.
type Worker struct {
	runs  RunSource
	store blobcore.Store
	audit AuditLogger

	queue chan exportTask
	mu    sync.RWMutex
	jobs  map[string]*ExportRecord

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type exportTask struct {
	id    string
	runID string
}

// NewWorker constructs an export worker. A nil store keeps artifacts
// in-record only; a nil audit logger disables the trail.
func NewWorker(runs RunSource, store blobcore.Store, audit AuditLogger) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		runs:   runs,
		store:  store,
		audit:  audit,
		queue:  make(chan exportTask, 32),
		jobs:   make(map[string]*ExportRecord),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins processing export requests.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the worker to halt and waits for in-flight work.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case task := <-w.queue:
			w.process(task)
		}
	}
}

// EnqueueExport validates the request and schedules the job. The returned
// record is the queued snapshot.
func (w *Worker) EnqueueExport(ctx context.Context, input ExportInput) (ExportRecord, error) {
	if w.runs == nil {
		return ExportRecord{}, fmt.Errorf("run source not configured")
	}
	run, ok := w.runs.GetAnalysisRun(input.RunID)
	if !ok {
		return ExportRecord{}, fmt.Errorf("analysis run %s not found", input.RunID)
	}

	formats := input.Formats
	if len(formats) == 0 {
		formats = []Format{FormatJSON, FormatCSV}
	}
	uniq := make([]Format, 0, len(formats))
	seen := make(map[Format]struct{}, len(formats))
	for _, format := range formats {
		if _, err := ParseFormat(string(format)); err != nil {
			return ExportRecord{}, err
		}
		if _, duplicate := seen[format]; duplicate {
			continue
		}
		seen[format] = struct{}{}
		uniq = append(uniq, format)
	}

	id := newID()
	now := time.Now().UTC()
	record := ExportRecord{
		ID:          id,
		RunID:       run.ID,
		DatasetID:   run.DatasetID,
		DatasetName: run.DatasetName,
		Formats:     uniq,
		Status:      ExportStatusQueued,
		RequestedBy: input.RequestedBy,
		Reason:      input.Reason,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	w.mu.Lock()
	w.jobs[id] = &record
	queued := record.copy()
	w.mu.Unlock()

	w.recordAudit(ctx, id, ExportStatusQueued, "")

	select {
	case w.queue <- exportTask{id: id, runID: run.ID}:
	default:
		w.fail(id, "export queue full")
		return ExportRecord{}, fmt.Errorf("export queue full")
	}
	return queued, nil
}

// GetExport returns a snapshot of the export record.
func (w *Worker) GetExport(id string) (ExportRecord, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	record, ok := w.jobs[id]
	if !ok {
		return ExportRecord{}, false
	}
	return record.copy(), true
}

func (w *Worker) process(task exportTask) {
	w.mu.RLock()
	record, ok := w.jobs[task.id]
	var formats []Format
	if ok {
		formats = append([]Format(nil), record.Formats...)
	}
	w.mu.RUnlock()
	if !ok {
		return
	}

	run, found := w.runs.GetAnalysisRun(task.runID)
	if !found {
		w.fail(task.id, fmt.Sprintf("analysis run %s disappeared before export", task.runID))
		return
	}

	w.updateStatus(task.id, ExportStatusRunning, "")

	artifacts := make([]ExportArtifact, 0, len(formats))
	for _, format := range formats {
		payload, err := RenderRun(run, format)
		if err != nil {
			w.fail(task.id, err.Error())
			return
		}
		artifact := ExportArtifact{
			Key:         fmt.Sprintf("exports/%s/report.%s", task.id, format),
			Format:      format,
			ContentType: format.ContentType(),
			SizeBytes:   int64(len(payload)),
			CreatedAt:   time.Now().UTC(),
		}
		if w.store != nil {
			stored, err := w.archive(artifact, run, payload)
			if err != nil {
				w.fail(task.id, fmt.Sprintf("archive artifact: %v", err))
				return
			}
			artifact = stored
		}
		artifacts = append(artifacts, artifact)
	}
	w.complete(task.id, artifacts)
}

// archive persists one rendered payload and resolves its download URL,
// preferring a presigned link over the driver's derived URL.
func (w *Worker) archive(artifact ExportArtifact, run assay.AnalysisRun, payload []byte) (ExportArtifact, error) {
	info, err := w.store.Put(w.ctx, artifact.Key, bytes.NewReader(payload), blobcore.PutOptions{
		ContentType: artifact.ContentType,
		Metadata: map[string]string{
			"run_id":     run.ID,
			"dataset_id": run.DatasetID,
			"format":     string(artifact.Format),
		},
	})
	if err != nil {
		return ExportArtifact{}, err
	}
	artifact.SizeBytes = info.Size
	if !info.LastModified.IsZero() {
		artifact.CreatedAt = info.LastModified
	}
	url, err := w.store.PresignURL(w.ctx, artifact.Key, blobcore.SignedURLOptions{})
	switch {
	case err == nil:
		artifact.URL = url
	case errors.Is(err, blobcore.ErrUnsupported):
		artifact.URL = info.URL
	default:
		return ExportArtifact{}, err
	}
	return artifact, nil
}

func (w *Worker) updateStatus(id string, status ExportStatus, message string) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = status
		record.Error = message
		record.UpdatedAt = now
	}
	w.mu.Unlock()
	w.recordAudit(w.ctx, id, status, message)
}

func (w *Worker) complete(id string, artifacts []ExportArtifact) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = ExportStatusSucceeded
		record.Error = ""
		record.Artifacts = artifacts
		record.UpdatedAt = now
		record.CompletedAt = &now
	}
	w.mu.Unlock()
	w.recordAudit(w.ctx, id, ExportStatusSucceeded, "")
}

func (w *Worker) fail(id, reason string) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = ExportStatusFailed
		record.Error = reason
		record.UpdatedAt = now
		record.CompletedAt = &now
	}
	w.mu.Unlock()
	w.recordAudit(w.ctx, id, ExportStatusFailed, reason)
}

func (w *Worker) recordAudit(ctx context.Context, id string, status ExportStatus, note string) {
	if w.audit == nil {
		return
	}
	w.mu.RLock()
	actor, runID := "", ""
	if record, ok := w.jobs[id]; ok {
		actor = record.RequestedBy
		runID = record.RunID
	}
	w.mu.RUnlock()
	w.audit.Record(ctx, AuditEntry{
		ID:         newID(),
		Action:     exportAuditAction,
		Actor:      actor,
		RunID:      runID,
		Status:     status,
		Note:       note,
		OccurredAt: time.Now().UTC(),
	})
}

func (r ExportRecord) copy() ExportRecord {
	dup := r
	dup.Formats = append([]Format(nil), r.Formats...)
	if len(r.Artifacts) > 0 {
		dup.Artifacts = append([]ExportArtifact(nil), r.Artifacts...)
	}
	return dup
}

func newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return fmt.Sprintf("%x", b[:])
}

// MemoryAuditLog captures audit entries in memory for assertions.
type MemoryAuditLog struct {
	mu      sync.Mutex
	entries []AuditEntry
}

// Record stores an audit entry.
func (l *MemoryAuditLog) Record(_ context.Context, entry AuditEntry) {
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()
}

// Entries returns a copy of the recorded entries.
func (l *MemoryAuditLog) Entries() []AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]AuditEntry, len(l.entries))
	copy(out, l.entries)
	return out
}
