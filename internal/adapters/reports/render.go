// Package reports renders analysis runs into shareable report artifacts and
// serves the HTTP API around datasets, runs, and exports.
package reports

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"cytocore/pkg/assay"
)

// Format names a report output format.
type Format string

// Supported report formats.
const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatHTML Format = "html"
)

// ParseFormat resolves a requested format string.
func ParseFormat(value string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(value))) {
	case FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	case FormatHTML:
		return FormatHTML, nil
	default:
		return "", fmt.Errorf("unsupported report format %q", value)
	}
}

// ContentType returns the MIME type served for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatHTML:
		return "text/html; charset=utf-8"
	default:
		return "application/json"
	}
}

// RenderRun materializes one analysis run in the requested format.
func RenderRun(run assay.AnalysisRun, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return json.MarshalIndent(run, "", "  ")
	case FormatCSV:
		return renderCSV(run)
	case FormatHTML:
		return renderHTML(run), nil
	default:
		return nil, fmt.Errorf("unsupported report format %q", format)
	}
}

var csvHeader = []string{
	"sample", "role", "replicates", "results", "kill_summary",
	"mean_killing_hours", "stddev_killing_hours", "cv_percent", "valid", "flags",
}

// renderCSV writes one row per sample group with its replicate statistics.
func renderCSV(run assay.AnalysisRun) ([]byte, error) {
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, sample := range run.Result.Samples {
		record := []string{
			sample.SampleName,
			string(sample.Role),
			fmt.Sprintf("%d", sample.ReplicateCount),
			fmt.Sprintf("%d", sample.ResultCount),
			sample.KillSummary,
			formatOptionalValue(sample.MeanKillingHours),
			formatOptionalValue(sample.StdDevKillingHours),
			formatOptionalValue(sample.CVPercent),
			fmt.Sprintf("%t", sample.Valid),
			strings.Join(sampleFlags(sample), "; "),
		}
		if err := writer.Write(record); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatOptionalValue(v *float64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%g", *v)
}

// sampleFlags collects the advisory markers shown in the flags column.
func sampleFlags(sample assay.SampleStatistics) []string {
	flags := append([]string(nil), sample.ThresholdViolations...)
	if sample.LowReplicateCount {
		flags = append(flags, "low replicate count")
	}
	if sample.Recovered {
		flags = append(flags, "recovered")
	}
	return flags
}

// renderHTML builds the display report: verdict, checklist, sample table,
// and run warnings.
func renderHTML(run assay.AnalysisRun) []byte {
	b := &strings.Builder{}
	b.WriteString("<!DOCTYPE html><html><head><meta charset=\"utf-8\"><title>")
	b.WriteString(html.EscapeString(fmt.Sprintf("Assay report %s", run.DatasetName)))
	b.WriteString("</title></head><body>")
	fmt.Fprintf(b, "<h1>%s</h1>", html.EscapeString(run.DatasetName))
	fmt.Fprintf(b, "<p>Run %s, dataset %s</p>", html.EscapeString(run.ID), html.EscapeString(run.DatasetID))
	fmt.Fprintf(b, "<p>Status: <strong>%s</strong>, assay type: %s</p>", run.Result.Status, run.Result.AssayType)
	if run.Result.PositiveControl != "" {
		fmt.Fprintf(b, "<p>Positive control: %s</p>", html.EscapeString(run.Result.PositiveControl))
	}

	b.WriteString("<h2>Checklist</h2><table><thead><tr><th>Criterion</th><th>Outcome</th><th>Detail</th></tr></thead><tbody>")
	for _, item := range run.Result.Checklist {
		b.WriteString("<tr>")
		writeCell(b, item.Criterion)
		writeCell(b, string(item.Outcome))
		writeCell(b, item.Detail)
		b.WriteString("</tr>")
	}
	b.WriteString("</tbody></table>")

	b.WriteString("<h2>Samples</h2><table><thead><tr>")
	for _, column := range csvHeader {
		fmt.Fprintf(b, "<th>%s</th>", column)
	}
	b.WriteString("</tr></thead><tbody>")
	for _, sample := range run.Result.Samples {
		b.WriteString("<tr>")
		writeCell(b, sample.SampleName)
		writeCell(b, string(sample.Role))
		writeCell(b, fmt.Sprintf("%d", sample.ReplicateCount))
		writeCell(b, fmt.Sprintf("%d", sample.ResultCount))
		writeCell(b, sample.KillSummary)
		writeCell(b, formatOptionalValue(sample.MeanKillingHours))
		writeCell(b, formatOptionalValue(sample.StdDevKillingHours))
		writeCell(b, formatOptionalValue(sample.CVPercent))
		writeCell(b, fmt.Sprintf("%t", sample.Valid))
		writeCell(b, strings.Join(sampleFlags(sample), "; "))
		b.WriteString("</tr>")
	}
	b.WriteString("</tbody></table>")

	if len(run.Result.Warnings) > 0 {
		b.WriteString("<h2>Warnings</h2><ul>")
		for _, warning := range run.Result.Warnings {
			fmt.Fprintf(b, "<li>%s</li>", html.EscapeString(warning))
		}
		b.WriteString("</ul>")
	}
	b.WriteString("</body></html>")
	return []byte(b.String())
}

func writeCell(b *strings.Builder, value string) {
	b.WriteString("<td>")
	b.WriteString(html.EscapeString(value))
	b.WriteString("</td>")
}
