// Package assay defines the core entities, kinetic analysis primitives, and
// rule evaluation contracts used by cytocore.
package assay

import "time"

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityDataset identifies a registered dataset snapshot.
	EntityDataset EntityType = "dataset"
	// EntityAnalysisRun identifies a derived analysis run record.
	EntityAnalysisRun EntityType = "analysis_run"
)

// AssayType selects the threshold preset applied during kill classification.
type AssayType string

// Supported assay types. Unknown is a legitimate value: it disables kill
// classification rather than falling back to a default threshold.
const (
	AssayCD19    AssayType = "cd19"
	AssayBCMA    AssayType = "bcma"
	AssayUnknown AssayType = "unknown"
)

// Rise thresholds are the minimum peak cell index required for a reliable
// kill calculation per assay type.
const (
	riseThresholdCD19 = 0.8
	riseThresholdBCMA = 0.4
)

// RiseThreshold returns the assay type's rise threshold. ok is false when the
// type has no supported calculation.
func (t AssayType) RiseThreshold() (float64, bool) {
	switch t {
	case AssayCD19:
		return riseThresholdCD19, true
	case AssayBCMA:
		return riseThresholdBCMA, true
	default:
		return 0, false
	}
}

// SampleRole tags how a sample group participates in validation. Roles are
// decided once at ingestion; the engine never re-derives them from loose
// grouping shapes.
type SampleRole string

// Canonical sample roles.
const (
	RoleTreatment       SampleRole = "treatment"
	RoleCell            SampleRole = "cell"
	RoleNegativeControl SampleRole = "negative_control"
	RolePositiveControl SampleRole = "positive_control"
)

// AssayStatus is the overall verdict for one analysis run.
type AssayStatus string

// Assay status values. Pending means the run lacks data or an operator
// decision; Fail is permanent within a single evaluation.
const (
	StatusPending AssayStatus = "Pending"
	StatusPass    AssayStatus = "Pass"
	StatusFail    AssayStatus = "Fail"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Sample validity gates applied by the aggregator and status machine.
const (
	// MaxValidCVPercent is the highest replicate CV% a valid sample may show.
	MaxValidCVPercent = 30.0
	// MaxValidMeanKillingHours is the highest mean half-killing time, in
	// hours, a valid sample may show.
	MaxValidMeanKillingHours = 12.0
	// MinReplicateCount is the replicate count below which a low-replicate
	// advisory is attached.
	MinReplicateCount = 3
)

// DefaultPositiveControlMarker is the substring used to auto-select a
// positive control when exactly one sample name contains it.
const DefaultPositiveControlMarker = "CAR"

// Base contains common fields for all stored records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SeriesPoint is one instrument sweep for one well. A nil value marks an
// absent measurement (blank or non-numeric source cell); absent values stay
// absent through the pipeline and are never coerced to zero.
type SeriesPoint struct {
	Time  float64  `json:"time"`
	Value *float64 `json:"value,omitempty"`
}

// WellSeries is the ordered cell-index trace of one physical well. Times are
// strictly non-decreasing. The series is immutable once constructed from
// source data.
type WellSeries struct {
	WellID string        `json:"well_id"`
	Points []SeriesPoint `json:"points"`
}

// HasDefinedValue reports whether at least one point carries a measurement.
func (s WellSeries) HasDefinedValue() bool {
	for _, p := range s.Points {
		if p.Value != nil {
			return true
		}
	}
	return false
}

// SampleGroup names an ordered, de-duplicated set of replicate wells with a
// role tag. Insertion order is preserved for display and is irrelevant to
// computation.
type SampleGroup struct {
	Name  string     `json:"name"`
	Role  SampleRole `json:"role"`
	Wells []string   `json:"wells"`
}

// AssayConfig carries the externally resolved assay type and control
// selection settings for one dataset.
type AssayConfig struct {
	Type AssayType `json:"type"`
	// PositiveControlMarker overrides DefaultPositiveControlMarker when set.
	PositiveControlMarker string `json:"positive_control_marker,omitempty"`
}

// Marker returns the positive-control marker substring in effect.
func (c AssayConfig) Marker() string {
	if c.PositiveControlMarker != "" {
		return c.PositiveControlMarker
	}
	return DefaultPositiveControlMarker
}

// EffectorReference marks when effector cells were introduced, in hours on
// the dataset's time axis. Absence is an explicit state meaning no window
// correction is applied; it is never substituted by zero.
type EffectorReference struct {
	Hours *float64 `json:"hours,omitempty"`
	// Note carries the advisory produced while resolving the reference,
	// e.g. when the source log was ambiguous.
	Note string `json:"note,omitempty"`
}

// Defined reports whether a reference time was resolved.
func (r EffectorReference) Defined() bool { return r.Hours != nil }

// Dataset is one uploaded snapshot of series plus grouping. It is the
// read-only input of every analysis run; derived results never mutate it.
type Dataset struct {
	Base
	Name            string            `json:"name"`
	Config          AssayConfig       `json:"config"`
	Effector        EffectorReference `json:"effector"`
	Series          []WellSeries      `json:"series"`
	Samples         []SampleGroup     `json:"samples"`
	PositiveControl string            `json:"positive_control,omitempty"`
	Warnings        []string          `json:"warnings,omitempty"`
}

// FindSeries returns the series recorded for a well identifier.
func (d Dataset) FindSeries(wellID string) (WellSeries, bool) {
	for _, s := range d.Series {
		if s.WellID == wellID {
			return s, true
		}
	}
	return WellSeries{}, false
}

// WellResult is the kill classification for one well.
type WellResult struct {
	WellID            string   `json:"well_id"`
	SampleName        string   `json:"sample_name"`
	Killed            bool     `json:"killed"`
	MaxValue          float64  `json:"max_value"`
	TimeAtMax         float64  `json:"time_at_max"`
	HalfKillingTarget float64  `json:"half_killing_target"`
	TimeAtHalfTarget  *float64 `json:"time_at_half_target,omitempty"`
	HalfKillingTime   *float64 `json:"half_killing_time,omitempty"`
	// BelowRiseThreshold flags a peak under the assay's rise threshold. It is
	// advisory: the classification above still stands.
	BelowRiseThreshold bool `json:"below_rise_threshold,omitempty"`
	// Recovered flags a well that dropped below half of its own maximum and
	// climbed back above it at the final recorded point.
	Recovered bool `json:"recovered,omitempty"`
}

// SampleStatistics aggregates the replicate results of one sample group.
type SampleStatistics struct {
	SampleName     string     `json:"sample_name"`
	Role           SampleRole `json:"role"`
	ReplicateCount int        `json:"replicate_count"`
	ResultCount    int        `json:"result_count"`
	KillSummary    string     `json:"kill_summary"`
	// MeanKillingHours and StdDevKillingHours cover only killed replicates
	// with a defined half-killing time. StdDev needs at least two values.
	MeanKillingHours   *float64 `json:"mean_killing_hours,omitempty"`
	StdDevKillingHours *float64 `json:"stddev_killing_hours,omitempty"`
	// CVPercent is 0 when the standard deviation is 0 or absent.
	CVPercent           *float64 `json:"cv_percent,omitempty"`
	LowReplicateCount   bool     `json:"low_replicate_count,omitempty"`
	Recovered           bool     `json:"recovered,omitempty"`
	ThresholdViolations []string `json:"threshold_violations,omitempty"`
	Valid               bool     `json:"valid"`
}

// NegativeControlResult is the outcome of the medium-group recovery check.
type NegativeControlResult struct {
	Found       bool    `json:"found"`
	SampleName  string  `json:"sample_name,omitempty"`
	MaxAverage  float64 `json:"max_average,omitempty"`
	LastAverage float64 `json:"last_average,omitempty"`
	Passed      bool    `json:"passed"`
}

// CriterionOutcome is the display outcome of one checklist entry.
type CriterionOutcome string

// Checklist outcomes. Pending marks criteria that could not be evaluated
// with the data at hand.
const (
	OutcomePass    CriterionOutcome = "Pass"
	OutcomeFail    CriterionOutcome = "Fail"
	OutcomePending CriterionOutcome = "Pending"
)

// ChecklistItem is one displayed pass/fail criterion of the run verdict.
type ChecklistItem struct {
	Criterion string           `json:"criterion"`
	Outcome   CriterionOutcome `json:"outcome"`
	Detail    string           `json:"detail,omitempty"`
}

// RunResult is the complete derived output of one analysis run. It is owned
// by the caller and recomputed in full on every run.
type RunResult struct {
	Status          AssayStatus           `json:"status"`
	AssayType       AssayType             `json:"assay_type"`
	EffectorHours   *float64              `json:"effector_hours,omitempty"`
	PositiveControl string                `json:"positive_control,omitempty"`
	Wells           []WellResult          `json:"wells"`
	Samples         []SampleStatistics    `json:"samples"`
	NegativeControl NegativeControlResult `json:"negative_control"`
	Checklist       []ChecklistItem       `json:"checklist"`
	Warnings        []string              `json:"warnings,omitempty"`
}

// AnalysisRun is a stored, immutable record of one engine evaluation.
type AnalysisRun struct {
	Base
	DatasetID   string    `json:"dataset_id"`
	DatasetName string    `json:"dataset_name"`
	Result      RunResult `json:"result"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action enumerates mutation kinds recorded on a transaction.
type Action string

// Supported transaction actions.
const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
