package model

import (
	"github.com/cloudwego/eino/schema"
)

// AppState stores per-invocation state for the interview graph.
// Concurrency model:
//   - This struct is registered as Graph Local State via compose.WithGenLocalState.
//   - All reads/writes happen only inside Eino state handlers:
//     WithStatePreHandler, WithStatePostHandler, or compose.ProcessState.
//   - A fresh AppState is created for every external turn, so lookup
//     counters never carry over between turns.
type AppState struct {
	SessionID string
	// PendingLookup is the assistant message carrying a history query the
	// agent node routed to history_lookup; consumed by that node.
	PendingLookup *schema.Message
	LookupCount   int
	ToolCallIDSeq int // seeded from the transcript; synthesizes tool_call_id when the provider omits it
}
