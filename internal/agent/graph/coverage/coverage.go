// Package coverage tracks which diagnostic topics the interview has touched.
//
// Detection is a bag-of-keywords heuristic over the questions asked so far,
// not a classifier. A question mentioning "time" in passing counts as timing
// coverage; that approximation is accepted.
package coverage

import (
	_ "embed"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

type Topic string

const (
	Timing             Topic = "timing"
	Severity           Topic = "severity"
	Quality            Topic = "quality"
	Triggers           Topic = "triggers"
	AssociatedSymptoms Topic = "associated_symptoms"
	Context            Topic = "context"
	History            Topic = "history"
)

//go:embed topics.yaml
var defaultTable []byte

// TopicSpec is one row of the keyword table.
type TopicSpec struct {
	Name     Topic    `yaml:"name"`
	Keywords []string `yaml:"keywords"`
	Fallback string   `yaml:"fallback"`
}

// Table is the keyword configuration. Topic order is priority order.
type Table struct {
	Topics   []TopicSpec `yaml:"topics"`
	CatchAll string      `yaml:"catch_all"`
}

// Report is the result of one analysis.
type Report struct {
	Covered []Topic
	Missing []Topic
}

func (r Report) IsCovered(t Topic) bool {
	return slices.Contains(r.Covered, t)
}

// DefaultTable returns the embedded keyword table.
func DefaultTable() *Table {
	t, err := ParseTable(defaultTable)
	if err != nil {
		panic(fmt.Sprintf("embedded topics.yaml: %v", err))
	}
	return t
}

// LoadTable reads a keyword table from path, or the embedded one when path is empty.
func LoadTable(path string) (*Table, error) {
	if path == "" {
		return DefaultTable(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topics file: %w", err)
	}
	return ParseTable(b)
}

func ParseTable(b []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(b, &t); err != nil {
		return nil, fmt.Errorf("parse topics: %w", err)
	}
	if len(t.Topics) == 0 {
		return nil, fmt.Errorf("parse topics: no topics defined")
	}
	seen := make(map[Topic]bool, len(t.Topics))
	for i := range t.Topics {
		entry := &t.Topics[i]
		if entry.Name == "" || len(entry.Keywords) == 0 {
			return nil, fmt.Errorf("parse topics: entry %d needs a name and keywords", i)
		}
		if seen[entry.Name] {
			return nil, fmt.Errorf("parse topics: duplicate topic %q", entry.Name)
		}
		seen[entry.Name] = true
		for j, kw := range entry.Keywords {
			entry.Keywords[j] = strings.ToLower(kw)
		}
	}
	return &t, nil
}

// Analyze reports covered topics and the missing ones in priority order.
// When historyFirst is set, a missing history topic is moved to the front.
func (t *Table) Analyze(questions []string, historyFirst bool) Report {
	text := strings.ToLower(strings.Join(questions, " "))
	var r Report
	for _, entry := range t.Topics {
		if containsAny(text, entry.Keywords) {
			r.Covered = append(r.Covered, entry.Name)
		} else {
			r.Missing = append(r.Missing, entry.Name)
		}
	}
	if historyFirst {
		if i := slices.Index(r.Missing, History); i > 0 {
			r.Missing = slices.Insert(slices.Delete(r.Missing, i, i+1), 0, History)
		}
	}
	return r
}

// Fallback returns the canned question for a topic.
func (t *Table) Fallback(topic Topic) string {
	for _, entry := range t.Topics {
		if entry.Name == topic && entry.Fallback != "" {
			return entry.Fallback
		}
	}
	return t.CatchAllQuestion()
}

func (t *Table) CatchAllQuestion() string {
	if t.CatchAll != "" {
		return t.CatchAll
	}
	return "Is there anything else I should know?"
}

// Known reports whether the table defines a topic.
func (t *Table) Known(topic Topic) bool {
	for _, entry := range t.Topics {
		if entry.Name == topic {
			return true
		}
	}
	return false
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
