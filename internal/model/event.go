package model

// EventKind tags the variant carried by an Event.
type EventKind string

const (
	EventText     EventKind = "text"
	EventThinking EventKind = "thinking"
	EventToolCall EventKind = "tool_call"
)

// Event is a tagged variant produced by parsing either the agent's structured
// response or the streaming NDJSON output of a bridged CLI. Ordering as
// produced is the ordering consumers must render.
type Event struct {
	Kind EventKind

	// Text / Thinking arm.
	Content string

	// ToolCall arm.
	ToolCallID string
	ToolName   string
	ToolInput  string // opaque input summary
	ToolResult string // filled in once the paired result arrives
}

// TextEvent constructs a text event.
func TextEvent(content string) Event { return Event{Kind: EventText, Content: content} }

// ThinkingEvent constructs a thinking event.
func ThinkingEvent(content string) Event { return Event{Kind: EventThinking, Content: content} }

// FinalText returns the content of the last TextEvent in the slice, or "".
func FinalText(events []Event) string {
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Kind == EventText {
			return events[i].Content
		}
	}
	return ""
}
