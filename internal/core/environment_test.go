package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseEnvironment(t *testing.T) {
	tests := map[string]Environment{
		"production":  Production,
		" PROD ":      Production,
		"staging":     Staging,
		"stage":       Staging,
		"test":        Testing,
		"":            Development,
		"unknown-env": Development,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseEnvironment(in), "input %q", in)
	}
}

func TestEnvironmentLogging(t *testing.T) {
	assert.True(t, Production.IsProduction())
	assert.False(t, Staging.IsProduction())

	assert.True(t, Staging.StructuredLogs())
	assert.False(t, Development.StructuredLogs())

	assert.Equal(t, "info", Production.DefaultLogLevel())
	assert.Equal(t, "warn", Testing.DefaultLogLevel())
	assert.Equal(t, "debug", Staging.DefaultLogLevel())
}
