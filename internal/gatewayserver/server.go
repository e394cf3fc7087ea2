// Package gatewayserver implements the Host Gateway: an authenticated HTTP
// command executor that lets Bridge Session Manager tool calls reach the
// host's filesystem and processes through a named, allowlisted bridge
// instead of an unconstrained shell.
package gatewayserver

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/cianaparrot/cianaparrot/internal/config"
	"github.com/cianaparrot/cianaparrot/internal/model"
)

// maxRequestBody caps the execute request body, per §4.2 step 2.
const maxRequestBody = 1 << 20 // 1,048,576 bytes

// minTimeoutSeconds / maxTimeoutSeconds clamp the requested timeout, per
// §4.2 step 7.
const (
	minTimeoutSeconds = 1.0
	maxTimeoutSeconds = 600.0
)

// recursionEnvVars are stripped from the spawned process's environment so a
// bridged CLI invoked through the gateway cannot detect and re-enter its own
// parent session.
var recursionEnvVars = []string{"CIANAPARROT_BRIDGE_SESSION", "CIANAPARROT_BRIDGE_DEPTH"}

// Server is the Host Gateway HTTP server.
type Server struct {
	addr    string
	token   string
	bridges map[string]*model.BridgeDefinition
	names   []string

	defaultTimeout float64
	limiter        *rate.Limiter

	log *slog.Logger

	httpServer *http.Server
}

// New constructs a Server from a GatewayConfig. A non-nil error means the
// token is empty or a bridge's allowed_cwd could not be resolved; the caller
// should abort startup rather than run with a partially-validated allowlist.
func New(cfg config.GatewayConfig, log *slog.Logger) (*Server, error) {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Token == "" {
		return nil, errors.New("gatewayserver: token must not be empty")
	}

	bridges, err := resolveBridges(cfg.Bridges)
	if err != nil {
		return nil, err
	}

	rps := cfg.RateLimitRPS
	if rps <= 0 {
		rps = 5
	}
	burst := int(rps * 2)
	if burst < 1 {
		burst = 1
	}

	return &Server{
		addr:           cfg.ListenAddr,
		token:          cfg.Token,
		bridges:        bridges,
		names:          bridgeNames(bridges),
		defaultTimeout: cfg.DefaultTimeout,
		limiter:        rate.NewLimiter(rate.Limit(rps), burst),
		log:            log,
	}, nil
}

// BuildMux registers the gateway's two endpoints.
func (s *Server) BuildMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/execute", s.handleExecute)
	return mux
}

// Run starts serving and blocks until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: s.BuildMux(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("gateway server listening", "addr", s.addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"bridges": s.names,
	})
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	// Step 1: authenticate via constant-time bearer compare.
	if !s.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	// Backpressure: block briefly rather than answer with a new status
	// code not in the wire contract.
	waitCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := s.limiter.Wait(waitCtx); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "rate limiter unavailable"})
		return
	}

	// Step 2: body size.
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "request body too large"})
		return
	}

	// Step 3: JSON parse.
	var req model.GatewayRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	// Step 4: bridge lookup.
	bridge, ok := s.bridges[req.Bridge]
	if !ok {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": fmt.Sprintf("unknown bridge %q", req.Bridge)})
		return
	}

	// Step 5: argv[0] basename allowlist.
	if len(req.Argv) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "cmd must not be empty"})
		return
	}
	base := filepath.Base(req.Argv[0])
	if _, allowed := bridge.AllowedCommands[base]; !allowed {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": fmt.Sprintf("command %q not allowed for bridge %q", base, req.Bridge)})
		return
	}

	// Step 6: cwd validation.
	dir, status, errMsg := s.resolveCwd(bridge, req.Cwd)
	if errMsg != "" {
		writeJSON(w, status, map[string]string{"error": errMsg})
		return
	}

	// Step 7: timeout clamp.
	timeout := s.clampTimeout(req.Timeout)

	result := s.execute(r.Context(), req.Argv, dir, timeout)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) authorized(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return false
	}
	supplied := strings.TrimPrefix(auth, prefix)
	return subtle.ConstantTimeCompare([]byte(supplied), []byte(s.token)) == 1
}

// resolveCwd implements §4.2 step 6, including the adopted reading of the
// empty-allowlist Open Question: an omitted cwd runs with no restriction
// (the process default working directory), but a supplied cwd against a
// bridge with an empty allowed_cwd list is always rejected rather than
// silently permitted.
func (s *Server) resolveCwd(bridge *model.BridgeDefinition, cwd string) (dir string, status int, errMsg string) {
	if cwd == "" {
		return "", 0, ""
	}
	if len(bridge.AllowedCwd) == 0 {
		return "", http.StatusForbidden, "bridge has no allowed working directories"
	}
	real, err := realPath(cwd)
	if err != nil {
		return "", http.StatusForbidden, "cwd could not be resolved"
	}
	info, err := os.Stat(real)
	if err != nil || !info.IsDir() {
		return "", http.StatusForbidden, "cwd does not exist"
	}
	for _, prefix := range bridge.AllowedCwd {
		if isDescendant(real, prefix) {
			return real, 0, ""
		}
	}
	return "", http.StatusForbidden, "cwd is outside the bridge's allowed directories"
}

// clampTimeout resolves the requested timeout to a wall-clock bound, or to
// 0 meaning "no limit" per §4.2 step 7: a requested timeout of 0 (or a
// configured default of 0, when the client supplied none) is unlimited,
// not substituted with the 600s ceiling. Any positive value is clamped
// into [minTimeoutSeconds, maxTimeoutSeconds].
func (s *Server) clampTimeout(requested float64) time.Duration {
	t := requested
	if t <= 0 {
		t = s.defaultTimeout
	}
	if t <= 0 {
		return 0
	}
	if t < minTimeoutSeconds {
		t = minTimeoutSeconds
	}
	if t > maxTimeoutSeconds {
		t = maxTimeoutSeconds
	}
	return time.Duration(t * float64(time.Second))
}

// execute runs argv with shell interpretation disabled, bounded captured
// output, and a hard wall-clock timeout, per §4.2's execution state machine.
func (s *Server) execute(ctx context.Context, argv []string, dir string, timeout time.Duration) model.GatewayResult {
	execCtx := ctx
	cancel := func() {}
	if timeout > 0 {
		execCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	cmd := exec.CommandContext(execCtx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Env = sanitizedEnv(os.Environ())

	stdout := newBoundedWriter(maxCapturedOutput)
	stderr := newBoundedWriter(maxCapturedOutput)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	switch {
	case err == nil:
		return model.GatewayResult{Stdout: stdout.String(), Stderr: stderr.String(), ReturnCode: 0}
	case errors.Is(execCtx.Err(), context.DeadlineExceeded):
		return model.GatewayResult{
			Stdout:     stdout.String(),
			Stderr:     stderr.String(),
			ReturnCode: model.ReturnCodeTimeout,
			Error:      "command timed out",
		}
	case errors.Is(err, exec.ErrNotFound):
		return model.GatewayResult{ReturnCode: model.ReturnCodeNotFound, Error: "command not found"}
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return model.GatewayResult{
				Stdout:     stdout.String(),
				Stderr:     stderr.String(),
				ReturnCode: exitErr.ExitCode(),
			}
		}
		s.log.Error("gateway execute failed", "error", err)
		return model.GatewayResult{ReturnCode: -2, Error: err.Error()}
	}
}

// sanitizedEnv strips recursion-flag variables from the inherited
// environment before handing it to a spawned bridge command.
func sanitizedEnv(env []string) []string {
	out := make([]string, 0, len(env))
	for _, kv := range env {
		skip := false
		for _, name := range recursionEnvVars {
			if strings.HasPrefix(kv, name+"=") {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, kv)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
