package ndjson

import (
	"strings"
	"testing"

	"github.com/cianaparrot/cianaparrot/internal/model"
)

func TestParseEventsOrdersAndPairsToolResult(t *testing.T) {
	input := strings.Join([]string{
		`{"type":"system","subtype":"init","session_id":"s1"}`,
		`{"type":"assistant","message":{"role":"assistant","content":[{"type":"tool_use","id":"c1","name":"lookup","input":{}}]}}`,
		`{"type":"user","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"c1","content":"42"}]}}`,
		`{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"the answer is 42"}]}}`,
		`{"type":"result","result":"the answer is 42"}`,
	}, "\n")

	events, err := ParseEvents(strings.NewReader(input))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d: %+v", len(events), events)
	}
	if events[0].Kind != model.EventToolCall || events[0].ToolResult != "42" {
		t.Fatalf("expected paired tool call, got %+v", events[0])
	}
	if events[1].Kind != model.EventText || events[1].Content != "the answer is 42" {
		t.Fatalf("expected final text, got %+v", events[1])
	}
}

func TestParseEventsSkipsMalformedLinesAndContinues(t *testing.T) {
	input := strings.Join([]string{
		`{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"before"}]}}`,
		`not even json`,
		`{"type":"assistant","message": not valid json either}`,
		`{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"after"}]}}`,
	}, "\n")

	events, err := ParseEvents(strings.NewReader(input))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 surviving events despite malformed lines, got %d: %+v", len(events), events)
	}
	if events[0].Content != "before" || events[1].Content != "after" {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestLastSessionIDPicksMostRecent(t *testing.T) {
	input := strings.Join([]string{
		`{"type":"system","session_id":"s1"}`,
		`{"type":"assistant","session_id":"s2","message":{"role":"assistant","content":[]}}`,
	}, "\n")
	if got := LastSessionID(strings.NewReader(input)); got != "s2" {
		t.Fatalf("expected s2, got %q", got)
	}
}
