package observers

import (
	einocb "github.com/cloudwego/eino/callbacks"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"

	logx "github.com/triage-assist/server/pkg/logger"
)

// NewAllCallbacks aggregates the tool, model and prompt observers for one
// turn. Every line they log carries the session id.
func NewAllCallbacks(sessionID string) einocb.Handler {
	l := logx.With("observer").With().Str("session_id", sessionID).Logger()
	return callbackHelper.NewHandlerHelper().
		Tool(newToolHandler(&l)).
		ChatModel(newModelHandler(&l)).
		Prompt(newPromptHandler(&l)).
		Handler()
}
