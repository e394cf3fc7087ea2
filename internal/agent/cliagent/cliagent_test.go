package cliagent

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/cianaparrot/cianaparrot/internal/agent"
)

func TestRunParsesCLIOutput(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake CLI script is POSIX-only")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-agent.sh")
	script := "#!/bin/sh\necho '{\"type\":\"assistant\",\"message\":{\"role\":\"assistant\",\"content\":[{\"type\":\"text\",\"text\":\"hi from agent\"}]}}'\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake agent: %v", err)
	}

	a := New(path, 5*time.Second)
	events, err := a.Run(context.Background(), agent.Request{ThreadID: "t1", Text: "hello"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(events) != 1 || events[0].Content != "hi from agent" {
		t.Fatalf("unexpected events: %+v", events)
	}
}
