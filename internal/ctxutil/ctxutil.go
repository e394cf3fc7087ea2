// Package ctxutil carries task-local values through an agent invocation
// using context.Context instead of package-level mutable state, so
// concurrent runs (one per chat, one per scheduled task) never cross-talk.
package ctxutil

import "context"

type chatKey struct{}
type modelTierKey struct{}
type threadKey struct{}

// WithChatID binds the originating (channel, chat_id) pair into ctx so a
// tool invoked mid-run (e.g. schedule_task) can learn where its caller came
// from without threading it through every function signature.
func WithChatID(ctx context.Context, channel, chatID string) context.Context {
	ctx = context.WithValue(ctx, chatKey{}, [2]string{channel, chatID})
	return ctx
}

// ChatID returns the bound (channel, chat_id), or ("", "", false) if none
// was bound.
func ChatID(ctx context.Context) (channel, chatID string, ok bool) {
	v, ok := ctx.Value(chatKey{}).([2]string)
	if !ok {
		return "", "", false
	}
	return v[0], v[1], true
}

// WithThreadID binds the thread-id a turn belongs to.
func WithThreadID(ctx context.Context, threadID string) context.Context {
	return context.WithValue(ctx, threadKey{}, threadID)
}

// ThreadID returns the bound thread-id, or "" if none was bound.
func ThreadID(ctx context.Context) string {
	v, _ := ctx.Value(threadKey{}).(string)
	return v
}

// WithModelTier binds a scheduled task's model tier override so the agent
// (or a bridge tool) can pick it up for the duration of one run only.
func WithModelTier(ctx context.Context, tier string) context.Context {
	if tier == "" {
		return ctx
	}
	return context.WithValue(ctx, modelTierKey{}, tier)
}

// ModelTier returns the bound model tier, or "" if none was bound.
func ModelTier(ctx context.Context) string {
	v, _ := ctx.Value(modelTierKey{}).(string)
	return v
}
