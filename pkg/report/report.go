// pkg/report/report.go
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/elijahcraig45/hanks-tank-data/pkg/resolve"
	"github.com/elijahcraig45/hanks-tank-data/pkg/sync"
	"github.com/elijahcraig45/hanks-tank-data/pkg/validate"
)

// Summary counts validation results by severity
type Summary struct {
	Passed   int `json:"passed"`
	Warnings int `json:"warnings"`
	Critical int `json:"critical"`
}

// Report is the machine-readable artifact of one reconciliation run.
// Top-level field names are the stable contract consumed by schedulers
// and dashboards.
type Report struct {
	ID            string                 `json:"id"`
	Timestamp     string                 `json:"timestamp"`
	OverallStatus string                 `json:"overall_status"`
	Summary       Summary                `json:"summary"`
	Results       []validate.Result      `json:"results"`
	Dedup         *resolve.ExecuteResult `json:"dedup,omitempty"`
	DedupPlan     *resolve.DuplicatePlan `json:"dedup_plan,omitempty"`
	Sync          []*sync.Result         `json:"sync,omitempty"`
}

// ExitCode maps the report's overall status to the process exit code:
// 0 clean, 1 critical, 2 warnings only.
func (r *Report) ExitCode() int {
	switch r.OverallStatus {
	case validate.SeverityCritical.String():
		return 1
	case validate.SeverityWarning.String():
		return 2
	default:
		return 0
	}
}

// Generator builds and writes reconciliation reports. The clock and id
// source are injectable so artifact content is reproducible in tests.
type Generator struct {
	dir    string
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

// NewGenerator creates a report generator writing into dir
func NewGenerator(dir string, logger *zap.Logger) *Generator {
	return &Generator{
		dir:    dir,
		logger: logger.Named("report"),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// WithClock overrides the generator's clock
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// WithIDSource overrides the generator's report id source
func (g *Generator) WithIDSource(newID func() string) *Generator {
	g.newID = newID
	return g
}

// Build assembles a report from the run's outcomes. The overall status
// is the worst validation severity observed.
func (g *Generator) Build(results []validate.Result, dedup *resolve.ExecuteResult, plan *resolve.DuplicatePlan, syncResults []*sync.Result) *Report {
	summary := Summary{}
	for _, r := range results {
		switch r.Severity {
		case validate.SeverityCritical:
			summary.Critical++
		case validate.SeverityWarning:
			summary.Warnings++
		default:
			summary.Passed++
		}
	}

	return &Report{
		ID:            g.newID(),
		Timestamp:     g.now().UTC().Format(time.RFC3339),
		OverallStatus: validate.WorstSeverity(results).String(),
		Summary:       summary,
		Results:       results,
		Dedup:         dedup,
		DedupPlan:     plan,
		Sync:          syncResults,
	}
}

// Write persists a report as a timestamped JSON file and returns its
// path
func (g *Generator) Write(report *Report) (string, error) {
	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	ts, err := time.Parse(time.RFC3339, report.Timestamp)
	if err != nil {
		ts = g.now().UTC()
	}
	path := filepath.Join(g.dir,
		fmt.Sprintf("reconciliation_report_%s.json", ts.Format("20060102_150405")))

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write report file: %w", err)
	}

	g.logger.Info("Wrote reconciliation report",
		zap.String("path", path),
		zap.String("status", report.OverallStatus),
		zap.Int("checks", len(report.Results)))

	return path, nil
}

// Render marshals a report without writing it, used for stdout output
// in dry runs
func Render(report *Report) (string, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}
	return string(data), nil
}
