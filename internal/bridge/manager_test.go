package bridge

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/cianaparrot/cianaparrot/internal/config"
	"github.com/cianaparrot/cianaparrot/internal/model"
	"github.com/cianaparrot/cianaparrot/internal/userstate"
)

func newTestManager(t *testing.T, sessionDir string) *Manager {
	t.Helper()
	states, err := userstate.New(filepath.Join(t.TempDir(), "user_state.json"))
	if err != nil {
		t.Fatalf("userstate: %v", err)
	}
	cfg := config.BridgeManagerConfig{
		CLIPath:    fakeCLIPath(t, ""),
		SessionDir: sessionDir,
	}
	return New(cfg, states, nil, nil)
}

// fakeCLIPath returns a tiny shell script standing in for the external
// NDJSON-emitting CLI, so tests never depend on a real bridged tool being
// installed. When writeSessionFile is non-empty, the script also creates
// that file, emulating the CLI writing a fresh session transcript as a
// side effect of the invocation.
func fakeCLIPath(t *testing.T, writeSessionFile string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake CLI script is POSIX-only")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-cli.sh")
	touch := ""
	if writeSessionFile != "" {
		touch = "touch '" + writeSessionFile + "'\n"
	}
	script := "#!/bin/sh\n" + touch +
		"echo '{\"type\":\"assistant\",\"session_id\":\"sess-123\",\"message\":{\"role\":\"assistant\",\"content\":[{\"type\":\"text\",\"text\":\"hello back\"}]}}'\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake cli: %v", err)
	}
	return path
}

func TestEnterThenSendMessageRequiresBridgeMode(t *testing.T) {
	m := newTestManager(t, t.TempDir())
	_, err := m.SendMessage(context.Background(), "u1", "hi")
	if err == nil {
		t.Fatalf("expected error when user is not in bridge mode")
	}
}

func TestEnterSetsModeAndResetsSession(t *testing.T) {
	m := newTestManager(t, t.TempDir())
	if err := m.Enter("u1", "proj", "/tmp/proj", "stale-sess"); err != nil {
		t.Fatalf("enter: %v", err)
	}
	if err := m.Enter("u1", "proj", "/tmp/proj", ""); err != nil {
		t.Fatalf("enter: %v", err)
	}
	if !m.IsBridgeMode("u1") {
		t.Fatalf("expected bridge mode after Enter")
	}
	if got := m.states.Get("u1"); got.ActiveSessionID != "" {
		t.Fatalf("expected Enter without a session id to reset it, got %q", got.ActiveSessionID)
	}
}

func TestEnterWithSessionIDResumesThatSession(t *testing.T) {
	states, err := userstate.New(filepath.Join(t.TempDir(), "user_state.json"))
	if err != nil {
		t.Fatalf("userstate: %v", err)
	}
	cfg := config.BridgeManagerConfig{CLIPath: fakeCLIPath(t, ""), SessionDir: t.TempDir()}
	m := New(cfg, states, nil, nil)

	if err := m.Enter("u1", "proj", "/tmp/proj", "sess-resumed"); err != nil {
		t.Fatalf("enter: %v", err)
	}
	got := states.Get("u1")
	if got == nil || got.ActiveSessionID != "sess-resumed" {
		t.Fatalf("expected ActiveSessionID to be set from Enter's session_id, got %+v", got)
	}
}

func TestExitReturnsToNormalMode(t *testing.T) {
	m := newTestManager(t, t.TempDir())
	_ = m.Enter("u1", "proj", "/tmp/proj", "")
	if err := m.Exit("u1"); err != nil {
		t.Fatalf("exit: %v", err)
	}
	if m.IsBridgeMode("u1") {
		t.Fatalf("expected normal mode after Exit")
	}
}

func TestDetectNewSessionRequiresExactlyOneNewStem(t *testing.T) {
	before := map[string]struct{}{"a": {}}
	after := map[string]struct{}{"a": {}, "b": {}}
	id, ok := detectNewSession(before, after)
	if !ok || id != "b" {
		t.Fatalf("expected to detect b as new session, got %q ok=%v", id, ok)
	}

	after2 := map[string]struct{}{"a": {}, "b": {}, "c": {}}
	_, ok = detectNewSession(before, after2)
	if ok {
		t.Fatalf("expected ambiguous double-new-file diff to be discarded")
	}

	_, ok = detectNewSession(before, before)
	if ok {
		t.Fatalf("expected no new session when nothing changed")
	}
}

func TestBuildArgvIncludesResumeOnlyWhenSessionKnown(t *testing.T) {
	cfg := config.BridgeManagerConfig{CLIPath: "cli", PermissionMode: "acceptEdits"}

	fresh := &model.UserSession{Mode: model.ModeBridge}
	argv := buildArgv(cfg, fresh, "hello")
	for _, a := range argv {
		if a == "--resume" {
			t.Fatalf("did not expect --resume for a fresh session: %v", argv)
		}
	}

	resumed := &model.UserSession{Mode: model.ModeBridge, ActiveSessionID: "sess-1"}
	argv = buildArgv(cfg, resumed, "hello")
	found := false
	for i, a := range argv {
		if a == "--resume" && i+1 < len(argv) && argv[i+1] == "sess-1" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected --resume sess-1 in argv: %v", argv)
	}
}

func TestSendMessageParsesResponseAndDetectsNewSession(t *testing.T) {
	sessionDir := t.TempDir()
	states, err := userstate.New(filepath.Join(t.TempDir(), "user_state.json"))
	if err != nil {
		t.Fatalf("userstate: %v", err)
	}
	cfg := config.BridgeManagerConfig{
		CLIPath:    fakeCLIPath(t, filepath.Join(sessionDir, "sess-123.jsonl")),
		SessionDir: sessionDir,
	}
	m := New(cfg, states, nil, nil)

	if err := m.Enter("u1", "proj", t.TempDir(), ""); err != nil {
		t.Fatalf("enter: %v", err)
	}

	events, err := m.SendMessage(context.Background(), "u1", "hi")
	if err != nil {
		t.Fatalf("send message: %v", err)
	}
	if len(events) != 1 || events[0].Content != "hello back" {
		t.Fatalf("unexpected events: %+v", events)
	}

	got := states.Get("u1")
	if got == nil || got.ActiveSessionID != "sess-123" {
		t.Fatalf("expected new session id sess-123 to be persisted, got %+v", got)
	}
}
