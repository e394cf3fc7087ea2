// Package bridge implements the Stateful Bridge Session Manager: per-user
// sessions over an external streaming-NDJSON CLI, fronted by the Task-local
// UserSession record in userstate.Store. Each user message is a one-shot
// invocation of the external CLI (locally, or relayed through a Host
// Gateway bridge); a fresh session is detected by diffing the CLI's session
// directory before and after the call, since a one-shot process never
// reports its own session id up front the way a long-running one would.
package bridge

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/cianaparrot/cianaparrot/internal/config"
	"github.com/cianaparrot/cianaparrot/internal/gatewayclient"
	"github.com/cianaparrot/cianaparrot/internal/model"
	"github.com/cianaparrot/cianaparrot/internal/userstate"
)

// Manager is the Bridge Session Manager.
type Manager struct {
	cfg    config.BridgeManagerConfig
	states *userstate.Store
	gw     *gatewayclient.Client // nil => exec the CLI on this host directly
	locks  *userLocks
	log    *slog.Logger
}

// New constructs a Manager. gw may be nil, meaning the CLI runs as a local
// subprocess rather than being relayed through a Host Gateway bridge.
func New(cfg config.BridgeManagerConfig, states *userstate.Store, gw *gatewayclient.Client, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	if err := ensureSessionDir(cfg.SessionDir); err != nil {
		log.Warn("bridge: could not pre-create session directory", "error", err)
	}
	return &Manager{cfg: cfg, states: states, gw: gw, locks: newUserLocks(), log: log}
}

// IsBridgeMode reports whether userID currently has an active bridge
// session, so the Router can decide whether to intercept a message.
func (m *Manager) IsBridgeMode(userID string) bool {
	return m.states.Get(userID).IsBridge()
}

// Enter switches userID into bridge mode against project/projectPath.
// sessionID is optional: empty starts a brand-new underlying session (no
// prior session id to resume), while a non-empty value resumes that
// specific session on the next SendMessage.
func (m *Manager) Enter(userID, project, projectPath, sessionID string) error {
	lock := m.locks.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()

	return m.states.Mutate(userID, func(s *model.UserSession) {
		s.Mode = model.ModeBridge
		s.ActiveProject = project
		s.ActiveProjectPath = projectPath
		s.ActiveSessionID = sessionID
	})
}

// Exit returns userID to normal mode by removing the user's record. The
// underlying CLI session id, model and effort are dropped; a later Enter
// starts from a clean record.
func (m *Manager) Exit(userID string) error {
	lock := m.locks.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()

	return m.states.Delete(userID)
}

// SetModel updates the model tier used for userID's subsequent bridge
// invocations.
func (m *Manager) SetModel(userID, modelName string) error {
	lock := m.locks.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()
	return m.states.Mutate(userID, func(s *model.UserSession) { s.ActiveModel = modelName })
}

// SetEffort updates the reasoning-effort tier used for userID's subsequent
// bridge invocations.
func (m *Manager) SetEffort(userID, effort string) error {
	lock := m.locks.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()
	return m.states.Mutate(userID, func(s *model.UserSession) { s.ActiveEffort = effort })
}

// SendMessage serializes one message through userID's bridge session:
// builds the CLI argv, runs it (locally or via the gateway), parses its
// NDJSON stdout into events, and persists any newly detected session id.
func (m *Manager) SendMessage(ctx context.Context, userID, text string) ([]model.Event, error) {
	lock := m.locks.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()

	session := m.states.Get(userID)
	if !session.IsBridge() {
		return nil, fmt.Errorf("bridge: user %s is not in bridge mode", userID)
	}

	argv := buildArgv(m.cfg, session, text)

	before, err := snapshotStems(m.cfg.SessionDir)
	if err != nil {
		m.log.Warn("bridge: session directory snapshot failed", "error", err)
	}

	stdout, stderr, err := m.invoke(ctx, argv, session.ActiveProjectPath)
	if err != nil {
		return nil, fmt.Errorf("bridge: invoke failed: %w (stderr: %s)", err, stderr)
	}

	events, err := parseNDJSON(bytes.NewReader(stdout))
	if err != nil {
		m.log.Warn("bridge: ndjson parse error", "error", err)
	}

	after, snapErr := snapshotStems(m.cfg.SessionDir)
	if snapErr == nil && before != nil {
		if newID, ok := detectNewSession(before, after); ok {
			if err := m.states.Mutate(userID, func(s *model.UserSession) {
				s.ActiveSessionID = newID
			}); err != nil {
				m.log.Warn("bridge: persist new session id failed", "error", err)
			}
		}
	}

	return events, nil
}

// invoke runs argv either as a local subprocess or relayed through the
// Host Gateway, returning separate stdout/stderr buffers.
func (m *Manager) invoke(ctx context.Context, argv []string, cwd string) (stdout, stderr []byte, err error) {
	timeout := time.Duration(m.cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	if m.gw != nil {
		result := m.gw.Execute(ctx, argv, cwd, timeout)
		if result.Error != "" {
			return nil, []byte(result.Stderr), fmt.Errorf("%s", result.Error)
		}
		if result.ReturnCode != 0 {
			return []byte(result.Stdout), []byte(result.Stderr), fmt.Errorf("exit code %d", result.ReturnCode)
		}
		return []byte(result.Stdout), []byte(result.Stderr), nil
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	if cwd != "" {
		cmd.Dir = cwd
	}
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	runErr := cmd.Run()
	return outBuf.Bytes(), errBuf.Bytes(), runErr
}

// buildArgv constructs the external CLI's argv for one invocation: a
// one-shot prompt, streaming NDJSON output, and a resume flag only once a
// prior session id is known.
func buildArgv(cfg config.BridgeManagerConfig, session *model.UserSession, text string) []string {
	argv := []string{cfg.CLIPath, "-p", text, "--output-format", "stream-json"}
	if session.ActiveModel != "" {
		argv = append(argv, "--model", session.ActiveModel)
	}
	if session.ActiveEffort != "" {
		argv = append(argv, "--effort", session.ActiveEffort)
	}
	if cfg.PermissionMode != "" {
		argv = append(argv, "--permission-mode", cfg.PermissionMode)
	}
	if session.ActiveSessionID != "" {
		argv = append(argv, "--resume", session.ActiveSessionID)
	}
	return argv
}

// snapshotStems lists the file-name stems (basename without extension)
// present directly under dir. A missing directory snapshots as empty
// rather than erroring, since the very first invocation may create it.
func snapshotStems(dir string) (map[string]struct{}, error) {
	if dir == "" {
		return map[string]struct{}{}, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]struct{}{}, nil
		}
		return nil, err
	}
	stems := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		stems[name[:len(name)-len(filepath.Ext(name))]] = struct{}{}
	}
	return stems, nil
}

// detectNewSession implements the adopted reading of the "two concurrent
// one-shot invocations writing simultaneously" Open Question: a new session
// is only recognized when the diff yields exactly one new stem. Zero new
// stems means the invocation resumed an existing session (or wrote
// nothing); more than one new stem means a concurrent invocation raced this
// one and neither can be safely attributed, so both are discarded and
// ActiveSessionID is left unset, relying on the next message's invocation
// to retry cleanly.
func detectNewSession(before, after map[string]struct{}) (string, bool) {
	var fresh []string
	for stem := range after {
		if _, existed := before[stem]; !existed {
			fresh = append(fresh, stem)
		}
	}
	if len(fresh) == 1 {
		return fresh[0], true
	}
	return "", false
}

// ensureSessionDir creates the CLI's session directory up front so the
// first snapshot is never "directory does not exist yet".
func ensureSessionDir(dir string) error {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("bridge: create session dir %s: %w", dir, err)
	}
	return nil
}
