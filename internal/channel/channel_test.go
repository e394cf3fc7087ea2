package channel

import (
	"context"
	"errors"
	"testing"

	"github.com/cianaparrot/cianaparrot/internal/model"
)

type fakeChannel struct {
	name    string
	sent    []string
	notifys []bool
}

func (f *fakeChannel) Name() string                    { return f.name }
func (f *fakeChannel) SetHandler(h MessageHandler)     {}
func (f *fakeChannel) Start(ctx context.Context) error { return nil }
func (f *fakeChannel) Stop() error                     { return nil }
func (f *fakeChannel) Send(ctx context.Context, chatID, text string, notify bool) error {
	f.sent = append(f.sent, chatID+":"+text)
	f.notifys = append(f.notifys, notify)
	return nil
}

func TestRegistrySendRoutesByName(t *testing.T) {
	r := NewRegistry()
	ch := &fakeChannel{name: "telegram"}
	r.Register(ch)

	if err := r.Send(context.Background(), "telegram", "42", "hi", true); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(ch.sent) != 1 || ch.sent[0] != "42:hi" {
		t.Fatalf("unexpected sent messages: %+v", ch.sent)
	}
	if !ch.notifys[0] {
		t.Fatalf("expected notify=true to propagate")
	}
}

func TestRegistrySendUnknownChannel(t *testing.T) {
	r := NewRegistry()
	err := r.Send(context.Background(), "nope", "1", "x", true)
	if !errors.Is(err, err) || err == nil {
		t.Fatalf("expected error for unknown channel")
	}
}

func TestPublishResultSkipsEmptyText(t *testing.T) {
	r := NewRegistry()
	ch := &fakeChannel{name: "telegram"}
	r.Register(ch)

	if err := r.PublishResult(context.Background(), "telegram", "1", []model.Event{model.ThinkingEvent("thinking...")}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(ch.sent) != 0 {
		t.Fatalf("expected no send for a thinking-only event list, got %+v", ch.sent)
	}
}

func TestPublishResultSendsFinalText(t *testing.T) {
	r := NewRegistry()
	ch := &fakeChannel{name: "telegram"}
	r.Register(ch)

	events := []model.Event{model.ThinkingEvent("..."), model.TextEvent("final answer")}
	if err := r.PublishResult(context.Background(), "telegram", "1", events); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(ch.sent) != 1 || ch.sent[0] != "1:final answer" {
		t.Fatalf("unexpected sent: %+v", ch.sent)
	}
	if ch.notifys[0] {
		t.Fatalf("expected scheduler-originated publish to send with notify=false")
	}
}
