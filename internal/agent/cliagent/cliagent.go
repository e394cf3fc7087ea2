// Package cliagent adapts an external streaming-NDJSON CLI to the
// agent.Agent contract: one-shot invocation per turn, stdout parsed the
// same way the Bridge Session Manager parses its bridged CLI's output.
// The agent's own reasoning/tool-use loop lives entirely in that external
// process; this package only shells out to it and decodes its output.
package cliagent

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/cianaparrot/cianaparrot/internal/agent"
	"github.com/cianaparrot/cianaparrot/internal/ctxutil"
	"github.com/cianaparrot/cianaparrot/internal/model"
	"github.com/cianaparrot/cianaparrot/internal/ndjson"
)

// Agent invokes a local CLI binary once per turn.
type Agent struct {
	cliPath        string
	defaultTimeout time.Duration
}

// New returns an Agent that invokes cliPath. defaultTimeout bounds a run
// when the caller's context carries no deadline of its own.
func New(cliPath string, defaultTimeout time.Duration) *Agent {
	if defaultTimeout <= 0 {
		defaultTimeout = 120 * time.Second
	}
	return &Agent{cliPath: cliPath, defaultTimeout: defaultTimeout}
}

// Run implements agent.Agent.
func (a *Agent) Run(ctx context.Context, req agent.Request) ([]model.Event, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.defaultTimeout)
		defer cancel()
	}

	argv := []string{a.cliPath, "-p", req.Text, "--output-format", "stream-json"}
	if tier := req.ModelTier; tier != "" {
		argv = append(argv, "--model", tier)
	} else if tier := ctxutil.ModelTier(ctx); tier != "" {
		argv = append(argv, "--model", tier)
	}
	if req.ImageBase64 != "" {
		argv = append(argv, "--image-base64", req.ImageBase64, "--image-mime-type", req.ImageMimeType)
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("cliagent: run failed: %w (stderr: %s)", err, stderr.String())
	}

	return ndjson.ParseEvents(bytes.NewReader(stdout.Bytes()))
}
