package model

import (
	"encoding/json"
)

// RankedCondition is one entry of a differential diagnosis.
type RankedCondition struct {
	Rank               int      `json:"rank"`
	Name               string   `json:"diagnosis"`
	ProbabilityPercent int      `json:"probability_percent"`
	Reasoning          string   `json:"reasoning"`
	KeyFeatures        []string `json:"key_features"`
	NextSteps          []string `json:"next_steps"`
}

// DifferentialDiagnosis is the canonical diagnosis report.
type DifferentialDiagnosis struct {
	Differential    []RankedCondition `json:"differential_diagnosis"`
	ClinicalSummary string            `json:"clinical_summary"`
	UrgencyLevel    int               `json:"urgency_level"`
	UrgencyLabel    string            `json:"urgency_level_text"`
	Disclaimer      string            `json:"disclaimer"`
}

// DiagnosisResult holds either a canonical diagnosis or, when the model
// output was not valid JSON, the raw text.
type DiagnosisResult struct {
	Structured *DifferentialDiagnosis
	RawText    string
}

type rawDiagnosis struct {
	RawText string `json:"raw_text"`
}

// MarshalJSON writes the structured report, or {"raw_text": ...}.
func (d DiagnosisResult) MarshalJSON() ([]byte, error) {
	if d.Structured != nil {
		return json.Marshal(d.Structured)
	}
	return json.Marshal(rawDiagnosis{RawText: d.RawText})
}

func (d *DiagnosisResult) UnmarshalJSON(b []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	if raw, ok := fields["raw_text"]; ok && len(fields) == 1 {
		d.Structured = nil
		return json.Unmarshal(raw, &d.RawText)
	}
	var dd DifferentialDiagnosis
	if err := json.Unmarshal(b, &dd); err != nil {
		return err
	}
	d.Structured = &dd
	d.RawText = ""
	return nil
}

// Text returns the canonical JSON text of a structured diagnosis or the raw text.
func (d *DiagnosisResult) Text() string {
	if d == nil {
		return ""
	}
	if d.Structured == nil {
		return d.RawText
	}
	b, err := json.Marshal(d.Structured)
	if err != nil {
		return d.RawText
	}
	return string(b)
}
