package parsers

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/triage-assist/server/internal/agent/model"
)

const DefaultDisclaimer = "This is for educational/research purposes only. Not a substitute for professional medical advice. " +
	"Patient should consult healthcare provider for proper evaluation."

// DefaultUrgency is used when the model gives no usable urgency.
const DefaultUrgency = 3

var urgencyLabels = map[int]string{
	1: "Emergency",
	2: "High",
	3: "Moderate",
	4: "Low",
	5: "Routine",
}

var urgencyWords = map[string]int{
	"emergency":        1,
	"critical":         1,
	"immediate":        1,
	"life-threatening": 1,
	"high":             2,
	"urgent":           2,
	"very high":        2,
	"moderate":         3,
	"medium":           3,
	"low":              4,
	"minor":            4,
	"routine":          5,
	"non-urgent":       5,
	"nonurgent":        5,
}

// Normalized is the outcome of NormalizeDiagnosis. Structured is nil when
// the input was not a JSON object; Raw then carries the input unchanged.
type Normalized struct {
	Structured *model.DifferentialDiagnosis
	Raw        string
	Canonical  string
}

// Result converts to the persisted diagnosis form.
func (n Normalized) Result() *model.DiagnosisResult {
	if n.Structured != nil {
		return &model.DiagnosisResult{Structured: n.Structured}
	}
	return &model.DiagnosisResult{RawText: n.Raw}
}

// NormalizeDiagnosis coerces model output into the canonical diagnosis
// schema. Malformed JSON is not an error; it degrades to raw text.
func NormalizeDiagnosis(text string) Normalized {
	body := stripCodeFence(text)
	if !gjson.Valid(body) {
		return Normalized{Raw: text}
	}
	root := gjson.Parse(body)
	if !root.IsObject() {
		return Normalized{Raw: text}
	}

	dd := &model.DifferentialDiagnosis{
		Differential:    normalizeDifferential(lookup(root, fieldDifferential)),
		ClinicalSummary: lookup(root, fieldSummary).String(),
		Disclaimer:      lookup(root, fieldDisclaimer).String(),
	}
	dd.UrgencyLevel = UrgencyLevel(lookup(root, fieldUrgency))
	dd.UrgencyLabel = UrgencyLabel(dd.UrgencyLevel)
	if strings.TrimSpace(dd.Disclaimer) == "" {
		dd.Disclaimer = DefaultDisclaimer
	}

	canonical, err := json.Marshal(dd)
	if err != nil {
		return Normalized{Raw: text}
	}
	return Normalized{Structured: dd, Raw: text, Canonical: string(canonical)}
}

// lookup returns the first present alias of field.
func lookup(obj gjson.Result, field string) gjson.Result {
	for _, key := range aliases[field] {
		if v := obj.Get(key); v.Exists() && v.Type != gjson.Null {
			return v
		}
	}
	return gjson.Result{}
}

type rankedEntry struct {
	cond     model.RankedCondition
	position int
	hasRank  bool
}

func normalizeDifferential(list gjson.Result) []model.RankedCondition {
	if !list.IsArray() {
		return []model.RankedCondition{}
	}
	var entries []rankedEntry
	list.ForEach(func(_, item gjson.Result) bool {
		e := rankedEntry{position: len(entries) + 1}
		if item.IsObject() {
			e.cond = model.RankedCondition{
				Name:               lookup(item, fieldName).String(),
				ProbabilityPercent: ProbabilityPercent(lookup(item, fieldProbability)),
				Reasoning:          lookup(item, fieldReasoning).String(),
				KeyFeatures:        stringList(lookup(item, fieldKeyFeatures)),
				NextSteps:          stringList(lookup(item, fieldNextSteps)),
			}
			e.cond.Rank, e.hasRank = intValue(lookup(item, fieldRank))
		} else {
			e.cond = model.RankedCondition{Name: item.String(), KeyFeatures: []string{}, NextSteps: []string{}}
		}
		entries = append(entries, e)
		return true
	})

	// provided integer ranks order the list; entries without one keep output position
	sort.SliceStable(entries, func(i, j int) bool {
		return sortKey(entries[i]) < sortKey(entries[j])
	})
	out := make([]model.RankedCondition, len(entries))
	for i, e := range entries {
		e.cond.Rank = i + 1
		out[i] = e.cond
	}
	return out
}

func sortKey(e rankedEntry) int {
	if e.hasRank && e.cond.Rank > 0 {
		return e.cond.Rank
	}
	return e.position
}

// intValue accepts integral numbers and integer strings.
func intValue(v gjson.Result) (int, bool) {
	switch v.Type {
	case gjson.Number:
		if v.Num == math.Trunc(v.Num) {
			return int(v.Num), true
		}
	case gjson.String:
		if n, err := strconv.Atoi(strings.TrimSpace(v.Str)); err == nil {
			return n, true
		}
	}
	return 0, false
}

// ProbabilityPercent coerces a probability to an integer percent in [0, 100].
// Numbers up to 1 are ratios; "45%" and "1/3" forms are understood; anything
// else is 0.
func ProbabilityPercent(v gjson.Result) int {
	switch v.Type {
	case gjson.Number:
		return percentFromNumber(v.Num)
	case gjson.String:
		return percentFromString(v.Str)
	}
	return 0
}

func percentFromNumber(f float64) int {
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return 0
	}
	if f <= 1 {
		f *= 100
	}
	return clampPercent(f)
}

func percentFromString(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if strings.HasSuffix(s, "%") {
		f, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(s, "%")), 64)
		if err != nil || f <= 0 {
			return 0
		}
		return clampPercent(f)
	}
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, err1 := strconv.ParseFloat(strings.TrimSpace(num), 64)
		d, err2 := strconv.ParseFloat(strings.TrimSpace(den), 64)
		if err1 != nil || err2 != nil || d == 0 {
			return 0
		}
		return percentFromNumber(n / d)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return percentFromNumber(f)
}

func clampPercent(f float64) int {
	n := int(math.Round(f))
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}

// UrgencyLevel maps an integral 1-5 (number or numeric string) or a known
// urgency word to a level. Anything else, fractions included, yields
// DefaultUrgency.
func UrgencyLevel(v gjson.Result) int {
	if n, ok := intValue(v); ok {
		if n >= 1 && n <= 5 {
			return n
		}
		return DefaultUrgency
	}
	if v.Type == gjson.String {
		if lvl, ok := urgencyWords[strings.ToLower(strings.TrimSpace(v.Str))]; ok {
			return lvl
		}
	}
	return DefaultUrgency
}

// UrgencyLabel returns the display label for a level.
func UrgencyLabel(level int) string {
	if l, ok := urgencyLabels[level]; ok {
		return l
	}
	return urgencyLabels[DefaultUrgency]
}

func stringList(v gjson.Result) []string {
	out := []string{}
	switch {
	case v.IsArray():
		v.ForEach(func(_, item gjson.Result) bool {
			if s := strings.TrimSpace(item.String()); s != "" {
				out = append(out, s)
			}
			return true
		})
	case v.Type == gjson.String:
		if s := strings.TrimSpace(v.Str); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// stripCodeFence removes a surrounding markdown code fence such as ```json.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
