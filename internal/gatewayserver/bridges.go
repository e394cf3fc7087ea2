package gatewayserver

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/cianaparrot/cianaparrot/internal/config"
	"github.com/cianaparrot/cianaparrot/internal/model"
)

// resolveBridges turns the configuration-sourced bridge map into runtime
// BridgeDefinitions, resolving every allowed-cwd prefix to its real
// (symlink-following) path once at load time, per §4.2 step 6.
func resolveBridges(cfgBridges map[string]config.BridgeConfig) (map[string]*model.BridgeDefinition, error) {
	out := make(map[string]*model.BridgeDefinition, len(cfgBridges))
	for name, bc := range cfgBridges {
		def := &model.BridgeDefinition{
			Name:            name,
			AllowedCommands: make(map[string]struct{}, len(bc.AllowedCommands)),
		}
		for _, cmd := range bc.AllowedCommands {
			def.AllowedCommands[cmd] = struct{}{}
		}
		for _, prefix := range bc.AllowedCwd {
			real, err := realPath(prefix)
			if err != nil {
				return nil, fmt.Errorf("bridge %q: resolve allowed_cwd %q: %w", name, prefix, err)
			}
			def.AllowedCwd = append(def.AllowedCwd, real)
		}
		out[name] = def
	}
	return out, nil
}

// bridgeNames returns the configured bridge names sorted for stable health
// responses.
func bridgeNames(bridges map[string]*model.BridgeDefinition) []string {
	names := make([]string, 0, len(bridges))
	for name := range bridges {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// realPath resolves p to an absolute, symlink-free path. A path that does
// not exist yet is returned as its cleaned absolute form without symlink
// resolution, so a not-yet-created cwd prefix can still be configured ahead
// of time.
func realPath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		// Fall back to the cleaned absolute path when the target doesn't
		// exist yet (EvalSymlinks requires the path to exist); a later
		// existence check against an actual request cwd will still apply.
		return filepath.Clean(abs), nil
	}
	return resolved, nil
}

// isDescendant reports whether path is equal to, or nested under, prefix.
func isDescendant(path, prefix string) bool {
	if path == prefix {
		return true
	}
	rel, err := filepath.Rel(prefix, path)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return len(rel) > 0 && rel[0] != '.' && !filepath.IsAbs(rel)
}
