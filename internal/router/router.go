// Package router implements the Message Router: the single pipeline every
// IncomingMessage passes through on its way to either the agent or an
// active bridge session, and through which every reply is logged and sent
// back out.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cianaparrot/cianaparrot/internal/agent"
	"github.com/cianaparrot/cianaparrot/internal/config"
	"github.com/cianaparrot/cianaparrot/internal/counters"
	"github.com/cianaparrot/cianaparrot/internal/ctxutil"
	"github.com/cianaparrot/cianaparrot/internal/model"
	"github.com/cianaparrot/cianaparrot/internal/turnlog"
)

// Sender delivers a reply back to the chat it came from. notify controls
// whether the underlying channel should alert the recipient (a normal
// conversational reply) or deliver quietly (a scheduler-originated result).
type Sender interface {
	Send(ctx context.Context, channel, chatID, text string, notify bool) error
}

// BridgeGate lets the Router detect and delegate to an active bridge
// session, and drive its mode-intercept commands (enter/exit/set_model/
// set_effort), without importing the bridge package directly (avoiding a
// dependency cycle risk and keeping the Router's contract narrow).
type BridgeGate interface {
	IsBridgeMode(userID string) bool
	SendMessage(ctx context.Context, userID, text string) ([]model.Event, error)
	Enter(userID, project, projectPath, sessionID string) error
	Exit(userID string) error
	SetModel(userID, modelName string) error
	SetEffort(userID, effort string) error
}

// Router is the Message Router.
type Router struct {
	cfg      config.RouterConfig
	counters *counters.Store
	turns    *turnlog.Log
	bridge   BridgeGate // nil => bridge delegation disabled
	agent    agent.Agent
	sender   Sender
	log      *slog.Logger

	now func() time.Time
}

// New constructs a Router. bridge may be nil if the Bridge Session Manager
// is not wired in.
func New(cfg config.RouterConfig, counterStore *counters.Store, turns *turnlog.Log, bridge BridgeGate, ag agent.Agent, sender Sender, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		cfg:      cfg,
		counters: counterStore,
		turns:    turns,
		bridge:   bridge,
		agent:    ag,
		sender:   sender,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// HandleMessage runs msg through the full 12-step pipeline. A nil error
// with no send performed means the message was legitimately dropped
// (unauthorized, a session reset, untriggered, empty after trigger-stripping,
// or answered with no final text) — not a failure.
func (r *Router) HandleMessage(ctx context.Context, msg model.IncomingMessage) error {
	// 1. Authorization.
	if !r.authorized(msg) {
		r.log.Debug("router: message rejected by allowlist", "channel", msg.Channel, "user_id", msg.UserID)
		return nil
	}

	// 1.5. Bridge mode-intercept commands (enter/exit/set_model/set_effort).
	// These are handled directly by the Router so any channel adapter gets
	// them for free, without the agent or a bridge session in the loop.
	if r.bridge != nil {
		if handled, reply := r.handleBridgeCommand(msg); handled {
			if reply != "" && r.sender != nil {
				return r.sender.Send(ctx, msg.Channel, msg.ChatID, reply, true)
			}
			return nil
		}
	}

	key := counters.Key(msg.Channel, msg.ChatID)

	// 2. Session reset: bump the counter and stop, producing no response.
	if msg.ResetSession {
		if _, err := r.counters.Increment(key); err != nil {
			return fmt.Errorf("router: increment reset counter: %w", err)
		}
		return nil
	}

	// 3. Trigger gate (group chats only require the trigger prefix).
	text := msg.Text
	if !msg.IsPrivate {
		prefix := r.cfg.TriggerPrefix
		if prefix != "" {
			if !strings.HasPrefix(text, prefix) {
				return nil
			}
			text = strings.TrimPrefix(text, prefix)
		}
	}
	text = strings.TrimSpace(text)

	// 4. Empty gate.
	if text == "" && msg.ImageBase64 == "" {
		return nil
	}

	// 5. Thread identity.
	threadID := r.threadID(msg.Channel, msg.ChatID, key)

	// 6. Context propagation.
	runCtx := ctxutil.WithChatID(ctx, msg.Channel, msg.ChatID)
	runCtx = ctxutil.WithThreadID(runCtx, threadID)

	// 7. Framing.
	framed := fmt.Sprintf("[%s] [%s]: %s", r.now().Format(time.RFC3339), msg.UserName, text)

	// 8. Persist user turn.
	if err := r.turns.Append(threadID, model.TurnRecord{
		Role: model.RoleUser, Content: framed, Timestamp: r.now(), Channel: msg.Channel, UserID: msg.UserID,
	}); err != nil {
		r.log.Warn("router: persist user turn failed", "error", err)
	}

	// 9. Invoke agent (or delegate to an active bridge session).
	events, err := r.invoke(runCtx, msg, threadID, framed)
	if err != nil {
		return fmt.Errorf("router: invoke failed: %w", err)
	}

	// 10. Extract response.
	reply := model.FinalText(events)

	// 11. Persist assistant turn.
	if reply != "" {
		if err := r.turns.Append(threadID, model.TurnRecord{
			Role: model.RoleAssistant, Content: reply, Timestamp: r.now(), Channel: msg.Channel,
		}); err != nil {
			r.log.Warn("router: persist assistant turn failed", "error", err)
		}
	}

	// 12. Return / send.
	if reply == "" || r.sender == nil {
		return nil
	}
	return r.sender.Send(ctx, msg.Channel, msg.ChatID, reply, true)
}

func (r *Router) invoke(ctx context.Context, msg model.IncomingMessage, threadID, framed string) ([]model.Event, error) {
	if r.bridge != nil && r.bridge.IsBridgeMode(msg.UserID) {
		return r.bridge.SendMessage(ctx, msg.UserID, framed)
	}
	return r.agent.Run(ctx, agent.Request{
		ThreadID:      threadID,
		Text:          framed,
		ImageBase64:   msg.ImageBase64,
		ImageMimeType: msg.ImageMimeType,
	})
}

func (r *Router) authorized(msg model.IncomingMessage) bool {
	allowed, ok := r.cfg.Allowlists[msg.Channel]
	if !ok || len(allowed) == 0 {
		return true
	}
	for _, id := range allowed {
		if id == msg.UserID {
			return true
		}
	}
	return false
}

// threadID builds "<channel>_<chat_id>[_sN]": the reset-suffix is included
// only once the counter has been bumped past zero, so early conversations
// keep the plain, suffix-free identity.
func (r *Router) threadID(channel, chatID, key string) string {
	base := channel + "_" + chatID
	n := r.counters.Get(key)
	if n == 0 {
		return base
	}
	return fmt.Sprintf("%s_s%d", base, n)
}
