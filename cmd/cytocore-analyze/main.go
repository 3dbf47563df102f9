// Command cytocore-analyze runs one impedance assay analysis from local CSV
// files and prints the resulting report.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gocarina/gocsv"

	"cytocore/internal/adapters/ingest"
	"cytocore/internal/adapters/reports"
	"cytocore/internal/core"
	"cytocore/pkg/assay"
)

var exitFunc = os.Exit

func main() {
	exitFunc(cli(os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	platePath       string
	layoutPath      string
	auditPath       string
	name            string
	assay           string
	positiveControl string
	marker          string
	format          string
	outPath         string
	strict          bool
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("cytocore-analyze", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var opts options
	fs.StringVar(&opts.platePath, "plate", "", "path to the instrument plate export CSV (required)")
	fs.StringVar(&opts.layoutPath, "layout", "", "path to the sample layout CSV")
	fs.StringVar(&opts.auditPath, "audit", "", "path to the audit log CSV with hours,message columns")
	fs.StringVar(&opts.name, "name", "", "dataset name, defaults to the plate file name")
	fs.StringVar(&opts.assay, "assay", "", "assay type override: cd19, bcma or unknown")
	fs.StringVar(&opts.positiveControl, "positive-control", "", "sample name to select as positive control")
	fs.StringVar(&opts.marker, "marker", "", "positive-control marker substring override")
	fs.StringVar(&opts.format, "format", "json", "report format: json, csv or html")
	fs.StringVar(&opts.outPath, "out", "", "write the report to this file instead of stdout")
	fs.BoolVar(&opts.strict, "strict", false, "exit with code 3 when the verdict is Fail")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	code, err := run(opts, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "analysis failed: %v\n", err)
		return 1
	}
	return code
}

func run(opts options, stdout, stderr io.Writer) (int, error) {
	if opts.platePath == "" {
		return 0, errors.New("-plate is required")
	}
	format, err := reports.ParseFormat(opts.format)
	if err != nil {
		return 0, err
	}

	plate, err := os.ReadFile(opts.platePath)
	if err != nil {
		return 0, fmt.Errorf("read plate export: %w", err)
	}
	var layout []byte
	if opts.layoutPath != "" {
		if layout, err = os.ReadFile(opts.layoutPath); err != nil {
			return 0, fmt.Errorf("read layout: %w", err)
		}
	}
	var audit []ingest.AuditEvent
	if opts.auditPath != "" {
		if audit, err = readAuditLog(opts.auditPath); err != nil {
			return 0, err
		}
	}

	dataset, err := ingest.BuildDataset(ingest.DatasetInput{
		Name:            opts.name,
		Filename:        filepath.Base(opts.platePath),
		PlateCSV:        string(plate),
		LayoutCSV:       string(layout),
		Audit:           audit,
		AssayOverride:   opts.assay,
		PositiveControl: opts.positiveControl,
		Marker:          opts.marker,
	})
	if err != nil {
		return 0, err
	}

	ctx := context.Background()
	svc := core.NewInMemoryService(nil)
	stored, registered, err := svc.RegisterDataset(ctx, dataset)
	if err != nil {
		return 0, describeRuleError(err)
	}
	printAdvisories(stderr, registered)

	run, analyzed, err := svc.Analyze(ctx, stored.ID)
	if err != nil {
		return 0, describeRuleError(err)
	}
	printAdvisories(stderr, analyzed)

	payload, err := reports.RenderRun(run, format)
	if err != nil {
		return 0, err
	}
	if opts.outPath != "" {
		if err := os.WriteFile(opts.outPath, payload, 0o644); err != nil {
			return 0, fmt.Errorf("write report: %w", err)
		}
	} else {
		if _, err := stdout.Write(payload); err != nil {
			return 0, err
		}
		if len(payload) > 0 && payload[len(payload)-1] != '\n' {
			fmt.Fprintln(stdout)
		}
	}

	if opts.strict && run.Result.Status == assay.StatusFail {
		return 3, nil
	}
	return 0, nil
}

func readAuditLog(path string) ([]ingest.AuditEvent, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}
	var rows []*ingest.AuditEvent
	if err := gocsv.UnmarshalBytes(raw, &rows); err != nil {
		return nil, fmt.Errorf("audit log: %w", err)
	}
	events := make([]ingest.AuditEvent, 0, len(rows))
	for _, row := range rows {
		if row != nil {
			events = append(events, *row)
		}
	}
	return events, nil
}

// describeRuleError expands blocked transactions into a readable message
// listing each violation.
func describeRuleError(err error) error {
	var rve assay.RuleViolationError
	if !errors.As(err, &rve) {
		return err
	}
	messages := make([]string, 0, len(rve.Result.Violations))
	for _, violation := range rve.Result.Violations {
		messages = append(messages, violation.Message)
	}
	return fmt.Errorf("%s: %s", err, strings.Join(messages, "; "))
}

func printAdvisories(stderr io.Writer, result assay.Result) {
	for _, violation := range result.Violations {
		if violation.Severity != assay.SeverityBlock {
			fmt.Fprintf(stderr, "warning: %s\n", violation.Message)
		}
	}
}
