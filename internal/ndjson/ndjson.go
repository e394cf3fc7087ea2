// Package ndjson parses the newline-delimited stream-json event format
// shared by the bridged CLI and the runtime's own external agent process:
// one JSON object per line, tagged by "type", carrying assistant/user
// content blocks (text, thinking, tool_use, tool_result).
package ndjson

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/cianaparrot/cianaparrot/internal/model"
)

type streamEvent struct {
	Type      string          `json:"type"`
	Subtype   string          `json:"subtype,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	Message   json.RawMessage `json:"message,omitempty"`
	Result    string          `json:"result,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

type contentMessage struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	Thinking  string          `json:"thinking,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
}

// ParseEvents reads newline-delimited stream-json lines from r and returns
// the ordered model.Events they describe. "result"-type lines are
// discarded; tool_result blocks are paired to their tool_use by
// ToolCallID so a ToolCall event's ToolResult is filled in once the result
// line arrives, without disturbing event order.
func ParseEvents(r io.Reader) ([]model.Event, error) {
	var events []model.Event
	byToolID := make(map[string]int)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var ev streamEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			slog.Default().Warn("ndjson: skipping malformed line", "error", err)
			continue
		}

		switch ev.Type {
		case "result":
			continue
		case "assistant", "user":
			if len(ev.Message) == 0 {
				continue
			}
			var msg contentMessage
			if err := json.Unmarshal(ev.Message, &msg); err != nil {
				slog.Default().Warn("ndjson: skipping malformed message field", "error", err)
				continue
			}
			for _, block := range msg.Content {
				switch block.Type {
				case "text":
					events = append(events, model.TextEvent(block.Text))
				case "thinking":
					events = append(events, model.ThinkingEvent(block.Thinking))
				case "tool_use":
					events = append(events, model.Event{
						Kind:       model.EventToolCall,
						ToolCallID: block.ID,
						ToolName:   block.Name,
						ToolInput:  string(block.Input),
					})
					byToolID[block.ID] = len(events) - 1
				case "tool_result":
					if idx, ok := byToolID[block.ToolUseID]; ok {
						events[idx].ToolResult = block.Content
					}
				}
			}
		default:
			continue
		}
	}
	if err := scanner.Err(); err != nil {
		return events, fmt.Errorf("ndjson: read: %w", err)
	}
	return events, nil
}

// LastSessionID scans NDJSON output for the most recently reported
// session_id.
func LastSessionID(r io.Reader) string {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var last string
	for scanner.Scan() {
		var ev streamEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			continue
		}
		if ev.SessionID != "" {
			last = ev.SessionID
		}
	}
	return last
}
