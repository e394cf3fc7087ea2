package router

import (
	"fmt"
	"strings"

	"github.com/cianaparrot/cianaparrot/internal/model"
)

// handleBridgeCommand recognizes the bridge mode-intercept commands and
// drives them directly against r.bridge. handled is false for any message
// that isn't one of these commands, in which case the caller continues the
// normal pipeline.
//
// Syntax: "/bridge enter <project> <project_path> [session_id]",
// "/bridge exit", "/bridge model <name>", "/bridge effort <level>".
func (r *Router) handleBridgeCommand(msg model.IncomingMessage) (handled bool, reply string) {
	fields := strings.Fields(msg.Text)
	if len(fields) == 0 || fields[0] != "/bridge" {
		return false, ""
	}
	if len(fields) < 2 {
		return true, "usage: /bridge <enter|exit|model|effort> ..."
	}

	switch fields[1] {
	case "enter":
		if len(fields) < 4 {
			return true, "usage: /bridge enter <project> <project_path> [session_id]"
		}
		sessionID := ""
		if len(fields) >= 5 {
			sessionID = fields[4]
		}
		if err := r.bridge.Enter(msg.UserID, fields[2], fields[3], sessionID); err != nil {
			return true, fmt.Sprintf("bridge enter failed: %v", err)
		}
		return true, fmt.Sprintf("entered bridge mode for project %q", fields[2])

	case "exit":
		if err := r.bridge.Exit(msg.UserID); err != nil {
			return true, fmt.Sprintf("bridge exit failed: %v", err)
		}
		return true, "exited bridge mode"

	case "model":
		if len(fields) < 3 {
			return true, "usage: /bridge model <name>"
		}
		if err := r.bridge.SetModel(msg.UserID, fields[2]); err != nil {
			return true, fmt.Sprintf("set model failed: %v", err)
		}
		return true, fmt.Sprintf("model set to %q", fields[2])

	case "effort":
		if len(fields) < 3 {
			return true, "usage: /bridge effort <level>"
		}
		if err := r.bridge.SetEffort(msg.UserID, fields[2]); err != nil {
			return true, fmt.Sprintf("set effort failed: %v", err)
		}
		return true, fmt.Sprintf("effort set to %q", fields[2])

	default:
		return true, fmt.Sprintf("unknown bridge command %q", fields[1])
	}
}
