package core

import (
	"context"
	"cytocore/pkg/assay"
	"time"
)

// AuditStatus classifies the outcome captured by an audit entry.
type AuditStatus string

// Audit entry statuses.
const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry describes one completed service operation.
type AuditEntry struct {
	Operation string
	Entity    assay.EntityType
	Action    assay.Action
	EntityID  string
	Status    AuditStatus
	Error     string
	Duration  time.Duration
	Timestamp time.Time
}

// AuditRecorder receives audit entries emitted after service operations.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

// MetricsRecorder aggregates operation timings and outcome counters.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Tracer opens spans around service operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan terminates a span opened by a Tracer.
type TraceSpan interface {
	End(err error)
}

// auditSpecs maps operation identifiers to the entity and action recorded on
// their audit entries. Operations missing from the map are not audited.
var auditSpecs = map[string]struct {
	entity assay.EntityType
	action assay.Action
}{
	opRegisterDataset:    {entity: assay.EntityDataset, action: assay.ActionCreate},
	opUpdateDataset:      {entity: assay.EntityDataset, action: assay.ActionUpdate},
	opSetPositiveControl: {entity: assay.EntityDataset, action: assay.ActionUpdate},
	opDeleteDataset:      {entity: assay.EntityDataset, action: assay.ActionDelete},
	opAnalyzeDataset:     {entity: assay.EntityAnalysisRun, action: assay.ActionCreate},
	opDeleteAnalysisRun:  {entity: assay.EntityAnalysisRun, action: assay.ActionDelete},
}

func (s *Service) recordAuditSuccess(ctx context.Context, operation, entityID string, duration time.Duration) {
	spec, ok := auditSpecs[operation]
	if !ok {
		return
	}
	s.audit.Record(ctx, AuditEntry{
		Operation: operation,
		Entity:    spec.entity,
		Action:    spec.action,
		EntityID:  entityID,
		Status:    AuditStatusSuccess,
		Duration:  duration,
		Timestamp: s.now(),
	})
}

func (s *Service) recordAuditError(ctx context.Context, operation string, err error, duration time.Duration) {
	spec, ok := auditSpecs[operation]
	if !ok {
		return
	}
	entry := AuditEntry{
		Operation: operation,
		Entity:    spec.entity,
		Action:    spec.action,
		Status:    AuditStatusError,
		Duration:  duration,
		Timestamp: s.now(),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	s.audit.Record(ctx, entry)
}

type noopAuditRecorder struct{}

func (noopAuditRecorder) Record(context.Context, AuditEntry) {}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}
