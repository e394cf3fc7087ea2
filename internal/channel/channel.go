// Package channel declares the contract a chat surface (Telegram, or any
// future adapter) must satisfy to be driven by the Message Router, and a
// small registry for dispatching outbound sends and scheduler results by
// channel name.
package channel

import (
	"context"
	"fmt"
	"sync"

	"github.com/cianaparrot/cianaparrot/internal/model"
)

// MessageHandler receives every IncomingMessage a Channel produces.
type MessageHandler func(ctx context.Context, msg model.IncomingMessage)

// Channel is an inbound/outbound chat surface. Start must not block;
// delivery happens by invoking the handler registered via SetHandler. notify
// controls whether the send should alert the recipient (true for a normal
// conversational reply) or deliver quietly (false for a scheduler result).
type Channel interface {
	Name() string
	SetHandler(h MessageHandler)
	Start(ctx context.Context) error
	Stop() error
	Send(ctx context.Context, chatID, text string, notify bool) error
}

// Registry dispatches outbound sends to the right Channel by name, and
// implements scheduler.Publisher by rendering an event slice down to text.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]Channel
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{channels: make(map[string]Channel)}
}

// Register adds a channel, keyed by its own Name().
func (r *Registry) Register(ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[ch.Name()] = ch
}

// Get returns the channel registered under name, if any.
func (r *Registry) Get(name string) (Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[name]
	return ch, ok
}

// StartAll starts every registered channel, returning the first error (if
// any) after attempting to start them all.
func (r *Registry) StartAll(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var firstErr error
	for name, ch := range r.channels {
		if err := ch.Start(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("channel %s: %w", name, err)
		}
	}
	return firstErr
}

// StopAll stops every registered channel.
func (r *Registry) StopAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ch := range r.channels {
		_ = ch.Stop()
	}
}

// Send routes an outbound message to the named channel.
func (r *Registry) Send(ctx context.Context, channelName, chatID, text string, notify bool) error {
	ch, ok := r.Get(channelName)
	if !ok {
		return fmt.Errorf("channel: unknown channel %q", channelName)
	}
	return ch.Send(ctx, chatID, text, notify)
}

// PublishResult implements scheduler.Publisher: it renders the final text
// of an agent run and sends it to the task's originating chat. Scheduler
// results always deliver quietly, per §4.3.
func (r *Registry) PublishResult(ctx context.Context, channelName, chatID string, events []model.Event) error {
	text := model.FinalText(events)
	if text == "" {
		return nil
	}
	return r.Send(ctx, channelName, chatID, text, false)
}
