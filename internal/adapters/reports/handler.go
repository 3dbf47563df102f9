package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cytocore/internal/adapters/ingest"
	"cytocore/internal/core"
	"cytocore/pkg/assay"
)

// Service is the slice of the assay service the HTTP layer depends on.
type Service interface {
	RegisterDataset(ctx context.Context, dataset assay.Dataset) (assay.Dataset, assay.Result, error)
	ListDatasets() []assay.Dataset
	GetDataset(id string) (assay.Dataset, bool)
	SetPositiveControl(ctx context.Context, datasetID, sampleName string) (assay.Dataset, assay.Result, error)
	Analyze(ctx context.Context, datasetID string) (assay.AnalysisRun, assay.Result, error)
	ListAnalysisRuns() []assay.AnalysisRun
	GetAnalysisRun(id string) (assay.AnalysisRun, bool)
}

// Handler serves the dataset, run, and export API.
type Handler struct {
	Service Service
	Exports ExportScheduler
}

// NewHandler constructs an API handler around the assay service.
func NewHandler(service Service) *Handler {
	return &Handler{Service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		writeError(w, http.StatusInternalServerError, "assay service not configured")
		return
	}
	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case path == "/api/v1/datasets":
		h.handleDatasets(w, r)
	case strings.HasPrefix(path, "/api/v1/datasets/"):
		h.handleDataset(w, r, strings.TrimPrefix(path, "/api/v1/datasets/"))
	case path == "/api/v1/runs":
		h.handleListRuns(w, r)
	case strings.HasPrefix(path, "/api/v1/runs/"):
		h.handleRun(w, r, strings.TrimPrefix(path, "/api/v1/runs/"))
	case path == "/api/v1/exports" || strings.HasPrefix(path, "/api/v1/exports/"):
		if h.Exports == nil {
			http.NotFound(w, r)
			return
		}
		h.handleExports(w, r, path)
	default:
		http.NotFound(w, r)
	}
}

// registerRequest carries the raw upload pieces; the ingestion adapters run
// server-side so clients never pre-digest instrument output.
type registerRequest struct {
	Name            string              `json:"name"`
	Filename        string              `json:"filename"`
	PlateCSV        string              `json:"plate_csv"`
	LayoutCSV       string              `json:"layout_csv,omitempty"`
	Audit           []ingest.AuditEvent `json:"audit,omitempty"`
	Assay           string              `json:"assay,omitempty"`
	PositiveControl string              `json:"positive_control,omitempty"`
	Marker          string              `json:"marker,omitempty"`
}

func (h *Handler) handleDatasets(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"datasets": h.Service.ListDatasets()})
	case http.MethodPost:
		var req registerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid register request payload")
			return
		}
		dataset, err := ingest.BuildDataset(ingest.DatasetInput{
			Name:            req.Name,
			Filename:        req.Filename,
			PlateCSV:        req.PlateCSV,
			LayoutCSV:       req.LayoutCSV,
			Audit:           req.Audit,
			AssayOverride:   req.Assay,
			PositiveControl: req.PositiveControl,
			Marker:          req.Marker,
		})
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		stored, result, err := h.Service.RegisterDataset(r.Context(), dataset)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"dataset": stored, "violations": result.Violations})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) handleDataset(w http.ResponseWriter, r *http.Request, remainder string) {
	segments := strings.Split(remainder, "/")
	id := segments[0]
	if id == "" {
		http.NotFound(w, r)
		return
	}
	if len(segments) == 1 {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		dataset, ok := h.Service.GetDataset(id)
		if !ok {
			writeError(w, http.StatusNotFound, fmt.Sprintf("dataset %s not found", id))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"dataset": dataset})
		return
	}
	if len(segments) != 2 {
		http.NotFound(w, r)
		return
	}
	switch segments[1] {
	case "analyze":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		run, result, err := h.Service.Analyze(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"run": run, "violations": result.Violations})
	case "positive-control":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		var req struct {
			Sample string `json:"sample"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err.Error() != emptyBodySentinel {
			writeError(w, http.StatusBadRequest, "invalid positive-control request payload")
			return
		}
		dataset, _, err := h.Service.SetPositiveControl(r.Context(), id, req.Sample)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"dataset": dataset})
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": h.Service.ListAnalysisRuns()})
}

func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request, remainder string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	segments := strings.Split(remainder, "/")
	id := segments[0]
	if id == "" {
		http.NotFound(w, r)
		return
	}
	run, ok := h.Service.GetAnalysisRun(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("analysis run %s not found", id))
		return
	}
	if len(segments) == 1 {
		writeJSON(w, http.StatusOK, map[string]any{"run": run})
		return
	}
	if len(segments) != 2 || segments[1] != "report" {
		http.NotFound(w, r)
		return
	}
	format, err := negotiateFormat(r)
	if err != nil {
		writeError(w, http.StatusNotAcceptable, err.Error())
		return
	}
	payload, err := RenderRun(run, format)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	if format == FormatCSV {
		filename := fmt.Sprintf("run-%s-%s.csv", run.ID, time.Now().UTC().Format("20060102T150405Z"))
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

type exportRequest struct {
	RunID       string   `json:"run_id"`
	Formats     []string `json:"formats,omitempty"`
	RequestedBy string   `json:"requested_by,omitempty"`
	Reason      string   `json:"reason,omitempty"`
}

func (h *Handler) handleExports(w http.ResponseWriter, r *http.Request, path string) {
	if path == "/api/v1/exports" {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		var req exportRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid export request payload")
			return
		}
		formats := make([]Format, 0, len(req.Formats))
		for _, raw := range req.Formats {
			format, err := ParseFormat(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			formats = append(formats, format)
		}
		record, err := h.Exports.EnqueueExport(r.Context(), ExportInput{
			RunID:       req.RunID,
			Formats:     formats,
			RequestedBy: req.RequestedBy,
			Reason:      req.Reason,
		})
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"export": record})
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.TrimPrefix(path, "/api/v1/exports/")
	if id == "" {
		http.NotFound(w, r)
		return
	}
	record, ok := h.Exports.GetExport(id)
	if !ok {
		writeError(w, http.StatusNotFound, "export not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"export": record})
}

const emptyBodySentinel = "EOF"

// negotiateFormat resolves the report format from the query parameter,
// falling back to the Accept header and finally JSON.
func negotiateFormat(r *http.Request) (Format, error) {
	if wanted := r.URL.Query().Get("format"); wanted != "" {
		return ParseFormat(wanted)
	}
	accept := r.Header.Get("Accept")
	switch {
	case strings.Contains(accept, "text/csv"):
		return FormatCSV, nil
	case strings.Contains(accept, "text/html"):
		return FormatHTML, nil
	default:
		return FormatJSON, nil
	}
}

// writeServiceError maps service failures onto API status codes: missing
// entities are 404, rule rejections 422, anything else 400.
func writeServiceError(w http.ResponseWriter, err error) {
	var notFound core.ErrNotFound
	if errors.As(err, &notFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	var ruleErr assay.RuleViolationError
	if errors.As(err, &ruleErr) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":      ruleErr.Error(),
			"violations": ruleErr.Result.Violations,
		})
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
