// Package agenttest provides a scriptable agent.Agent test double used by
// the Router, Scheduler, and Bridge Session Manager test suites.
package agenttest

import (
	"context"
	"sync"

	"github.com/cianaparrot/cianaparrot/internal/agent"
	"github.com/cianaparrot/cianaparrot/internal/model"
)

// Stub is an agent.Agent that returns a pre-programmed response (or error)
// and records every request it was asked to run.
type Stub struct {
	mu       sync.Mutex
	Events   []model.Event
	Err      error
	Requests []agent.Request
}

// NewTextStub returns a Stub whose Run always returns a single text event.
func NewTextStub(text string) *Stub {
	return &Stub{Events: []model.Event{model.TextEvent(text)}}
}

// Run implements agent.Agent.
func (s *Stub) Run(ctx context.Context, req agent.Request) ([]model.Event, error) {
	s.mu.Lock()
	s.Requests = append(s.Requests, req)
	s.mu.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}
	return s.Events, nil
}

// Calls returns the number of times Run was invoked.
func (s *Stub) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Requests)
}

// LastRequest returns the most recent request, or the zero value if none.
func (s *Stub) LastRequest() agent.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Requests) == 0 {
		return agent.Request{}
	}
	return s.Requests[len(s.Requests)-1]
}
