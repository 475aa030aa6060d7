package parsers

// Field names the diagnosis model has been seen to use. Every lookup in the
// normalizer goes through this table, first match wins.
const (
	fieldDifferential = "differential"
	fieldSummary      = "summary"
	fieldUrgency      = "urgency"
	fieldDisclaimer   = "disclaimer"

	fieldRank        = "rank"
	fieldName        = "name"
	fieldProbability = "probability"
	fieldReasoning   = "reasoning"
	fieldKeyFeatures = "key_features"
	fieldNextSteps   = "next_steps"
)

var aliases = map[string][]string{
	fieldDifferential: {"differential_diagnosis", "differentialDiagnosis", "differential", "diagnoses", "conditions"},
	fieldSummary:      {"clinical_summary", "clinicalSummary", "summary", "assessment"},
	fieldUrgency:      {"urgency_level", "urgencyLevel", "urgency", "urgency_level_text"},
	fieldDisclaimer:   {"disclaimer"},

	fieldRank:        {"rank", "position"},
	fieldName:        {"diagnosis", "name", "condition", "title"},
	fieldProbability: {"probability_percent", "probabilityPercent", "probability", "likelihood", "percent"},
	fieldReasoning:   {"reasoning", "rationale", "explanation"},
	fieldKeyFeatures: {"key_features", "keyFeatures", "features", "supporting_features"},
	fieldNextSteps:   {"next_steps", "nextSteps", "recommendations", "recommended_next_steps"},
}
