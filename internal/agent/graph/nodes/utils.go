package nodes

import (
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/triage-assist/server/internal/agent/model"
)

const DefaultMaxHistoryLookups = 5

// normalizeMaxLookups returns a sane default when the provided value is invalid.
func normalizeMaxLookups(n int) int {
	if n <= 0 {
		return DefaultMaxHistoryLookups
	}
	return n
}

// incrementLookupAndCheck increments the lookup count and reports whether
// it now exceeds the per-turn limit.
func incrementLookupAndCheck(state *model.AppState, max int) bool {
	state.LookupCount++
	return state.LookupCount > normalizeMaxLookups(max)
}

// ensureToolCallIDs fills missing tool_call ids; some providers omit them.
func ensureToolCallIDs(state *model.AppState, msg *schema.Message) {
	for i := range msg.ToolCalls {
		if strings.TrimSpace(msg.ToolCalls[i].ID) == "" {
			state.ToolCallIDSeq++
			msg.ToolCalls[i].ID = fmt.Sprintf("call_%d", state.ToolCallIDSeq)
		}
	}
}

// countToolResults counts tool messages already persisted for the session.
// Every synthesized id produced one of them, so the count seeds the sequence.
func countToolResults(transcript []*schema.Message) int {
	n := 0
	for _, m := range transcript {
		if m != nil && m.Role == schema.Tool {
			n++
		}
	}
	return n
}
