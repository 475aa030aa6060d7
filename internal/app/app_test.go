package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triage-assist/server/internal/agent/model"
	"github.com/triage-assist/server/internal/core"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("SESSION_STORE", "memory")
	t.Setenv("INTERVIEW_MAX_QUESTIONS", "6")
	t.Setenv("REDIS_URL", "redis://cache:6379/1")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, core.Development, cfg.Env())
	assert.Equal(t, "memory", cfg.Session.Store)
	assert.Equal(t, 24*time.Hour, cfg.Session.TTL)
	assert.Equal(t, 6, cfg.Interview.MaxQuestions)
	assert.Equal(t, 3, cfg.Interview.MinQuestions)
	assert.False(t, cfg.Interview.RequireConfirmation)
	assert.Equal(t, 5, cfg.Interview.MaxHistoryLookups)
	assert.Equal(t, "redis://cache:6379/1", cfg.Redis.URL)
	assert.Equal(t, "none", cfg.Sink.Driver)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
}

func demoConfig(t *testing.T) Config {
	t.Helper()
	cfg, err := LoadConfig()
	require.NoError(t, err)
	cfg.Session.Store = StoreMemory
	cfg.LLM.Provider = ProviderDemo
	return cfg
}

func TestBuildOfflineStack(t *testing.T) {
	cfg := demoConfig(t)
	cfg.Sink = model.SinkConfig{
		Driver:  "sqlite",
		DSN:     filepath.Join(t.TempDir(), "triage.db"),
		Timeout: 5 * time.Second,
	}

	svc, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, svc.Records)

	ctx := context.Background()
	res, err := svc.Machine.Start(ctx, "cli-1", []string{"sore throat"}, nil)
	require.NoError(t, err)
	for res.Type == model.TurnQuestion {
		res, err = svc.Machine.Resume(ctx, "cli-1", "Today", res.Query)
		require.NoError(t, err)
	}
	require.Equal(t, model.TurnDiagnosis, res.Type)

	svc.Machine.Wait()
	recs, err := svc.Records.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "cli-1", recs[0].SessionID)
	assert.Equal(t, "sore throat", recs[0].Symptoms)

	require.NoError(t, svc.Close())
}

func TestBuildWithoutSink(t *testing.T) {
	svc, err := Build(context.Background(), demoConfig(t))
	require.NoError(t, err)
	assert.Nil(t, svc.Records)
	assert.NoError(t, svc.Close())
}

func TestBuildRejectsBadConfig(t *testing.T) {
	tests := map[string]func(*Config){
		"store":    func(c *Config) { c.Session.Store = "etcd" },
		"provider": func(c *Config) { c.LLM.Provider = "llama" },
		"gemini key": func(c *Config) {
			c.LLM.Provider = ProviderGemini
			c.LLM.GeminiAPIKey = ""
		},
		"openai key": func(c *Config) {
			c.LLM.Provider = ProviderOpenAI
			c.LLM.OpenAIAPIKey = ""
		},
		"policy": func(c *Config) {
			c.Interview.MinQuestions = 9
			c.Interview.MaxQuestions = 4
		},
		"topics file": func(c *Config) { c.Interview.TopicsFile = "/does/not/exist.yaml" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := demoConfig(t)
			mutate(&cfg)
			_, err := Build(context.Background(), cfg)
			assert.Error(t, err)
		})
	}
}
