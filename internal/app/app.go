// Package app wires the interview machine from environment configuration.
// It is shared by the HTTP server and the CLI driver.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/triage-assist/server/internal/agent/graph"
	"github.com/triage-assist/server/internal/agent/graph/coverage"
	"github.com/triage-assist/server/internal/agent/graph/gateway"
	"github.com/triage-assist/server/internal/agent/graph/policy"
	"github.com/triage-assist/server/internal/agent/model"
	"github.com/triage-assist/server/internal/agent/repo"
	"github.com/triage-assist/server/internal/agent/sink"
	"github.com/triage-assist/server/internal/core"
	"github.com/triage-assist/server/internal/metrics"
	logx "github.com/triage-assist/server/pkg/logger"
	pkgredis "github.com/triage-assist/server/pkg/redis"
)

const (
	StoreRedis  = "redis"
	StoreMemory = "memory"

	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderDemo   = "demo"
)

// Config defines all configurable parameters of the service, sourced from
// environment variables (loaded from .env for local runs).
type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL"`
	Port        string `envconfig:"PORT" default:"8080"`

	// Infrastructure
	Redis   pkgredis.Config
	Session model.SessionConfig
	Sink    model.SinkConfig

	// LLM provider
	LLM model.LLMConfig

	// Interview configs
	Interview      model.InterviewConfig
	InterviewModel model.InterviewModelConfig
	DiagnosisModel model.DiagnosisModelConfig
}

// LoadConfig reads .env when present and binds the environment.
func LoadConfig() (Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		logx.Debug().Err(err).Msg("No .env file loaded")
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to process environment config: %w", err)
	}
	return cfg, nil
}

func (c Config) Env() core.Environment {
	return core.ParseEnvironment(c.Environment)
}

func (c Config) LoggerOpts() logx.LoggerOpts {
	return logx.LoggerOpts{Environment: c.Env(), Level: c.LogLevel}
}

// Services is the running interview stack.
type Services struct {
	Machine *graph.Machine
	// Records is nil when no sink is configured.
	Records model.RecordLister
	Metrics *metrics.Recorder

	closers []func() error
}

// Build assembles store, policy, gateways, sink and machine. Close must be
// called to release them.
func Build(ctx context.Context, cfg Config) (_ *Services, err error) {
	svc := &Services{Metrics: metrics.NewRecorder()}
	defer func() {
		if err != nil {
			svc.Close()
		}
	}()

	sessions, err := svc.sessionStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	table, err := coverage.LoadTable(cfg.Interview.TopicsFile)
	if err != nil {
		return nil, err
	}
	pol, err := policy.New(policy.FromModelConfig(cfg.Interview), table)
	if err != nil {
		return nil, fmt.Errorf("invalid interview policy: %w", err)
	}

	interview, diagnosis, err := svc.gateways(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var triageSink model.TriageSink
	if driver := strings.ToLower(strings.TrimSpace(cfg.Sink.Driver)); driver != "" && driver != sink.DriverNone {
		lazy := sink.NewLazy(cfg.Sink)
		svc.closers = append(svc.closers, lazy.Close)
		triageSink = lazy
		svc.Records = lazy
	}

	svc.Machine, err = graph.NewMachine(ctx, graph.Config{
		Interview:   interview,
		Diagnosis:   diagnosis,
		Policy:      pol,
		Sessions:    sessions,
		Sink:        triageSink,
		SinkTimeout: cfg.Sink.Timeout,
		Recorder:    svc.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build interview machine: %w", err)
	}

	logx.Info().
		Str("session_store", cfg.Session.Store).
		Str("llm_provider", cfg.LLM.Provider).
		Str("sink_driver", cfg.Sink.Driver).
		Int("max_questions", pol.Config().MaxQuestions).
		Int("min_questions", pol.Config().MinQuestions).
		Bool("require_confirmation", pol.RequireConfirmation()).
		Msg("Interview stack ready")
	return svc, nil
}

func (s *Services) sessionStore(ctx context.Context, cfg Config) (model.SessionRepository, error) {
	switch strings.ToLower(cfg.Session.Store) {
	case StoreMemory:
		return repo.NewMemorySessionRepository(), nil
	case StoreRedis, "":
		rdb, err := cfg.Redis.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to initialise Redis client: %w", err)
		}
		s.closers = append(s.closers, rdb.Close)
		logx.Info().Msg("Connected to Redis successfully")
		return repo.NewRedisSessionRepository(rdb, cfg.Session.TTL, cfg.Session.LockTTL), nil
	}
	return nil, fmt.Errorf("unsupported session store %q", cfg.Session.Store)
}

func (s *Services) gateways(ctx context.Context, cfg Config) (interview, diagnosis gateway.Gateway, err error) {
	retry := gateway.RetryFromLLMConfig(cfg.LLM)

	switch strings.ToLower(cfg.LLM.Provider) {
	case ProviderGemini, "":
		cm, err := gateway.NewGeminiModels(ctx, gateway.GeminiConfig{
			APIKey:    cfg.LLM.GeminiAPIKey,
			BaseURL:   cfg.LLM.GeminiBaseURL,
			Interview: &cfg.InterviewModel,
			Diagnosis: &cfg.DiagnosisModel,
		})
		if err != nil {
			return nil, nil, err
		}
		interview, diagnosis = cm.Gateways(gateway.WithRetry(retry), gateway.WithRecorder(s.Metrics))
		return interview, diagnosis, nil

	case ProviderOpenAI:
		iv, err := gateway.NewOpenAIGateway(gateway.OpenAIConfig{
			APIKey:      cfg.LLM.OpenAIAPIKey,
			BaseURL:     cfg.LLM.OpenAIBaseURL,
			Model:       cfg.InterviewModel.Model,
			MaxTokens:   cfg.InterviewModel.MaxTokens,
			Temperature: cfg.InterviewModel.Temperature,
		}, retry, s.Metrics)
		if err != nil {
			return nil, nil, err
		}
		dx, err := gateway.NewOpenAIGateway(gateway.OpenAIConfig{
			APIKey:      cfg.LLM.OpenAIAPIKey,
			BaseURL:     cfg.LLM.OpenAIBaseURL,
			Model:       cfg.DiagnosisModel.Model,
			MaxTokens:   cfg.DiagnosisModel.MaxTokens,
			Temperature: cfg.DiagnosisModel.Temperature,
		}, retry, s.Metrics)
		if err != nil {
			return nil, nil, err
		}
		return iv, dx, nil

	case ProviderDemo:
		logx.Warn().Msg("Using the offline demo model; no LLM provider is consulted")
		demo := gateway.DemoModel()
		opts := []gateway.Option{gateway.WithProvider("Demo"), gateway.WithRecorder(s.Metrics)}
		return gateway.NewEinoGateway(demo, "demo", opts...), gateway.NewEinoGateway(demo, "demo", opts...), nil
	}
	return nil, nil, fmt.Errorf("unsupported llm provider %q", cfg.LLM.Provider)
}

// Close waits for pending sink writes, then releases the store and sink.
func (s *Services) Close() error {
	if s == nil {
		return nil
	}
	if s.Machine != nil {
		s.Machine.Wait()
	}
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
