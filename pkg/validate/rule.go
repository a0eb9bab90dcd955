// pkg/validate/rule.go
package validate

import (
	"encoding/json"
	"fmt"
)

// Severity classifies a validation outcome. Severities order PASS <
// WARNING < CRITICAL so the worst result of a run decides the overall
// status.
type Severity int

const (
	// SeverityPass means the check found nothing wrong
	SeverityPass Severity = iota
	// SeverityWarning means the check found issues worth review that do
	// not block downstream consumers
	SeverityWarning
	// SeverityCritical means the check found issues that make the data
	// unsafe to consume
	SeverityCritical
)

// String returns the report spelling of a severity
func (s Severity) String() string {
	switch s {
	case SeverityPass:
		return "PASS"
	case SeverityWarning:
		return "WARNING"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// MarshalJSON emits the severity under its report spelling
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON parses the report spelling of a severity
func (s *Severity) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "PASS":
		*s = SeverityPass
	case "WARNING":
		*s = SeverityWarning
	case "CRITICAL":
		*s = SeverityCritical
	default:
		return fmt.Errorf("unknown severity %q", name)
	}
	return nil
}

// RuleKind identifies one of the closed set of check families the
// engine knows how to run.
type RuleKind string

const (
	RuleCompleteness RuleKind = "completeness"
	RuleUniqueness   RuleKind = "uniqueness"
	RuleRange        RuleKind = "range"
	RuleFreshness    RuleKind = "freshness"
	RuleSchema       RuleKind = "schema"
)

// Result is the outcome of one rule against one table partition.
// The json keys severity, message, actualValue, and timestamp are the
// artifact contract consumed by schedulers; actualValue carries the
// measured quantity (bad rows for counting rules, age in days for
// freshness).
type Result struct {
	Rule        RuleKind `json:"rule"`
	Table       string   `json:"table"`
	Partition   string   `json:"partition"`
	Field       string   `json:"field,omitempty"`
	Severity    Severity `json:"severity"`
	Message     string   `json:"message"`
	ActualValue int64    `json:"actualValue"`
	TotalRows   int64    `json:"totalRows"`
	Timestamp   string   `json:"timestamp"`
}

// WorstSeverity returns the highest severity among results
func WorstSeverity(results []Result) Severity {
	worst := SeverityPass
	for _, r := range results {
		if r.Severity > worst {
			worst = r.Severity
		}
	}
	return worst
}

// ExitCode maps an overall severity to the process exit code consumed
// by schedulers: 0 clean, 1 critical, 2 warnings only.
func ExitCode(s Severity) int {
	switch s {
	case SeverityCritical:
		return 1
	case SeverityWarning:
		return 2
	default:
		return 0
	}
}
