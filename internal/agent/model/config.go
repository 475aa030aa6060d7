package model

import "time"

// ================ Config ================
type SessionConfig struct {
	Store   string        `envconfig:"SESSION_STORE" default:"redis"`
	TTL     time.Duration `envconfig:"SESSION_TTL" default:"24h"`
	LockTTL time.Duration `envconfig:"SESSION_LOCK_TTL" default:"2m"`
}

// InterviewConfig carries the interview policy thresholds.
type InterviewConfig struct {
	MaxQuestions        int    `envconfig:"INTERVIEW_MAX_QUESTIONS" default:"8"`
	MinQuestions        int    `envconfig:"INTERVIEW_MIN_QUESTIONS" default:"3"`
	RequireConfirmation bool   `envconfig:"INTERVIEW_REQUIRE_CONFIRMATION" default:"false"`
	MaxHistoryLookups   int    `envconfig:"INTERVIEW_MAX_HISTORY_LOOKUPS" default:"5"`
	RequiredTopics      string `envconfig:"INTERVIEW_REQUIRED_TOPICS" default:"timing,severity,quality,triggers"`
	TopicsFile          string `envconfig:"INTERVIEW_TOPICS_FILE"`
}

type LLMConfig struct {
	Provider      string        `envconfig:"LLM_PROVIDER" default:"gemini"`
	GeminiAPIKey  string        `envconfig:"GEMINI_API_KEY"`
	GeminiBaseURL string        `envconfig:"GEMINI_BASE_URL"`
	OpenAIAPIKey  string        `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL string        `envconfig:"OPENAI_BASE_URL"`
	Timeout       time.Duration `envconfig:"MODEL_TIMEOUT" default:"60s"`
	MaxAttempts   int           `envconfig:"MODEL_MAX_ATTEMPTS" default:"2"`
}

type InterviewModelConfig struct {
	Model       string  `envconfig:"INTERVIEW_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"INTERVIEW_MAX_TOKENS" default:"2000"`
	Temperature float32 `envconfig:"INTERVIEW_TEMPERATURE" default:"0"`
}

type DiagnosisModelConfig struct {
	Model       string  `envconfig:"DIAGNOSIS_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"DIAGNOSIS_MAX_TOKENS" default:"4000"`
	Temperature float32 `envconfig:"DIAGNOSIS_TEMPERATURE" default:"0.3"`
}

type SinkConfig struct {
	Driver  string        `envconfig:"SINK_DRIVER" default:"none"`
	DSN     string        `envconfig:"SINK_DSN"`
	Timeout time.Duration `envconfig:"SINK_TIMEOUT" default:"10s"`
}
