// pkg/resolve/policy.go
package resolve

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/elijahcraig45/hanks-tank-data/pkg/model"
)

// StatusClass ranks a lifecycle status by how authoritative a record
// carrying it is. Lower is more authoritative.
type StatusClass int

const (
	// ClassTerminal marks statuses of finished events; their records are
	// the system of record
	ClassTerminal StatusClass = 1
	// ClassLive marks statuses of events still in progress, and any
	// status the policy has never seen
	ClassLive StatusClass = 2
	// ClassPlaceholder marks statuses of scheduled or provisional events
	ClassPlaceholder StatusClass = 3
)

// CompletenessScorer rates how much usable information a record
// carries. Higher scores win the second tie-break.
type CompletenessScorer func(rec *model.EventRecord) int

// NumericOutcomeScorer counts the populated numeric outcome fields.
// It is the default scorer.
func NumericOutcomeScorer(rec *model.EventRecord) int {
	score := 0
	for _, field := range rec.OutcomeFields() {
		if field != nil {
			score++
		}
	}
	return score
}

// AuthorityPolicy decides which of several records for the same natural
// key is authoritative. Status classes come from operator configuration
// so new lifecycle codes never require a rebuild.
type AuthorityPolicy struct {
	classes map[string]StatusClass
	scorer  CompletenessScorer
}

// statusClassFile is the YAML shape of the status class configuration
type statusClassFile struct {
	Terminal    []string `yaml:"terminal"`
	Placeholder []string `yaml:"placeholder"`
}

// DefaultPolicy returns the built-in status classification
func DefaultPolicy() *AuthorityPolicy {
	return newPolicy(
		[]string{"F", "FR", "FO"},
		[]string{"DR", "DI", "DS"},
	)
}

// LoadPolicy reads the status class configuration from a YAML file
func LoadPolicy(path string) (*AuthorityPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read status class file: %w", err)
	}

	var file statusClassFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse status class file %s: %w", path, err)
	}

	if len(file.Terminal) == 0 {
		return nil, fmt.Errorf("status class file %s declares no terminal statuses", path)
	}

	return newPolicy(file.Terminal, file.Placeholder), nil
}

func newPolicy(terminal, placeholder []string) *AuthorityPolicy {
	classes := make(map[string]StatusClass, len(terminal)+len(placeholder))
	for _, code := range terminal {
		classes[code] = ClassTerminal
	}
	for _, code := range placeholder {
		classes[code] = ClassPlaceholder
	}
	return &AuthorityPolicy{
		classes: classes,
		scorer:  NumericOutcomeScorer,
	}
}

// WithScorer replaces the completeness scorer
func (p *AuthorityPolicy) WithScorer(scorer CompletenessScorer) *AuthorityPolicy {
	p.scorer = scorer
	return p
}

// Class returns the rank of a status code. Unknown codes classify as
// live rather than failing, so novel codes degrade gracefully.
func (p *AuthorityPolicy) Class(statusCode string) StatusClass {
	if class, ok := p.classes[statusCode]; ok {
		return class
	}
	return ClassLive
}

// Score returns the completeness score of a record
func (p *AuthorityPolicy) Score(rec *model.EventRecord) int {
	return p.scorer(rec)
}

// Outranks reports whether record a is strictly more authoritative than
// record b. The ordering is total and deterministic: status class, then
// latest effective date, then completeness score, then lowest ingestion
// id. Two distinct physical rows never compare equal.
func (p *AuthorityPolicy) Outranks(a, b *model.EventRecord) bool {
	classA, classB := p.Class(a.StatusCode), p.Class(b.StatusCode)
	if classA != classB {
		return classA < classB
	}

	dateA, dateB := a.EffectiveDate(), b.EffectiveDate()
	if !dateA.Equal(dateB) {
		return dateA.After(dateB)
	}

	scoreA, scoreB := p.Score(a), p.Score(b)
	if scoreA != scoreB {
		return scoreA > scoreB
	}

	return a.IngestID < b.IngestID
}
