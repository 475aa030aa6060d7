package core

import "strings"

// Environment is the deployment stage read from ENVIRONMENT.
type Environment string

const (
	Development Environment = "development"
	Testing     Environment = "testing"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

func (e Environment) String() string {
	return string(e)
}

func (e Environment) IsProduction() bool {
	return e == Production
}

// StructuredLogs reports whether logs should be emitted as JSON rather than
// through the console writer.
func (e Environment) StructuredLogs() bool {
	return e == Production || e == Staging
}

// DefaultLogLevel is used when LOG_LEVEL is unset.
func (e Environment) DefaultLogLevel() string {
	switch e {
	case Production:
		return "info"
	case Testing:
		return "warn"
	}
	return "debug"
}

// ParseEnvironment accepts the usual short forms. Anything unrecognised is
// treated as development.
func ParseEnvironment(v string) Environment {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "production", "prod":
		return Production
	case "staging", "stage":
		return Staging
	case "testing", "test":
		return Testing
	}
	return Development
}
