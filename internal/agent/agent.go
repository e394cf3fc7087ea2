// Package agent declares the contract CianaParrot's LLM-driven tool-using
// agent must satisfy. The agent's own implementation (model selection,
// provider calls, tool-execution loop) is an external collaborator: this
// package only fixes the shape the Router, Scheduler, and Bridge Session
// Manager invoke it through, grounded on the same role/content/tool-call
// message shape the rest of the ecosystem's chat providers use.
package agent

import (
	"context"

	"github.com/cianaparrot/cianaparrot/internal/model"
)

// Request is one turn handed to the agent.
type Request struct {
	ThreadID string // stable conversation identity, e.g. "telegram_42"
	Text     string // the framed, prefixed message text

	ImageBase64   string
	ImageMimeType string

	// ModelTier optionally overrides the agent's default model selection
	// for this run only (set by scheduled tasks via ctxutil.WithModelTier).
	ModelTier string
}

// Agent runs one turn to completion and returns the ordered events it
// produced. A non-nil error means the agent could not produce a response at
// all (transport failure, provider error); partial Events may still be
// populated for logging.
type Agent interface {
	Run(ctx context.Context, req Request) ([]model.Event, error)
}
