// Package scheduler runs ScheduledTasks at their due times: cron
// expressions, fixed intervals, and one-shot timestamps. Due-detection and
// task mutation share the Task Store's single lock, so a schedule/cancel
// tool call can never race a due-check; actual task execution runs outside
// that lock so a slow agent run never blocks the next poll tick.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/cianaparrot/cianaparrot/internal/agent"
	"github.com/cianaparrot/cianaparrot/internal/ctxutil"
	"github.com/cianaparrot/cianaparrot/internal/model"
	"github.com/cianaparrot/cianaparrot/internal/taskstore"
)

// Publisher delivers a task's agent-produced events back to the chat that
// scheduled it.
type Publisher interface {
	PublishResult(ctx context.Context, channel, chatID string, events []model.Event) error
}

// Scheduler polls the Task Store on a fixed interval and fans out due
// tasks to the agent.
type Scheduler struct {
	store    *taskstore.Store
	agent    agent.Agent
	pub      Publisher
	interval time.Duration
	log      *slog.Logger

	cron gronx.Gronx

	wg     sync.WaitGroup
	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a Scheduler. interval must be positive.
func New(store *taskstore.Store, ag agent.Agent, pub Publisher, interval time.Duration, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Scheduler{
		store:    store,
		agent:    ag,
		pub:      pub,
		interval: interval,
		log:      log,
		cron:     gronx.New(),
	}
}

// Start begins polling in a background goroutine. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

// Stop cancels polling and waits for any in-flight task runs to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}
	s.wg.Wait()
}

// tick implements the critical-section/outside-lock split: due tasks are
// identified and marked under the store's lock, then actually run without
// holding it.
func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now().UTC()

	s.store.Lock()
	tasks, err := s.store.LoadLocked()
	if err != nil {
		s.store.Unlock()
		s.log.Error("scheduler: load tasks", "error", err)
		return
	}

	var due []*model.ScheduledTask
	nowStr := now.Format(time.RFC3339)
	for _, t := range tasks {
		if !t.Active {
			continue
		}
		if !isDue(s.cron, t, now) {
			continue
		}
		due = append(due, cloneTask(t))
		if t.Type == model.TaskOnce {
			t.Active = false
		}
		t.LastRun = strPtr(nowStr)
	}

	if len(due) > 0 {
		if err := s.store.ReplaceLocked(tasks); err != nil {
			s.store.Unlock()
			s.log.Error("scheduler: persist due-marking", "error", err)
			return
		}
	}
	s.store.Unlock()

	for _, t := range due {
		t := t
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.run(ctx, t)
		}()
	}
}

func (s *Scheduler) run(ctx context.Context, t *model.ScheduledTask) {
	threadID := "scheduler_" + t.ID
	runCtx := ctxutil.WithChatID(ctx, t.Channel, t.ChatID)
	runCtx = ctxutil.WithThreadID(runCtx, threadID)
	runCtx = ctxutil.WithModelTier(runCtx, t.ModelTier)

	events, err := s.agent.Run(runCtx, agent.Request{ThreadID: threadID, Text: t.Prompt, ModelTier: t.ModelTier})
	if err != nil {
		s.log.Error("scheduler: task run failed", "task_id", t.ID, "error", err)
		return
	}

	if s.pub == nil {
		return
	}
	if err := s.pub.PublishResult(ctx, t.Channel, t.ChatID, events); err != nil {
		s.log.Error("scheduler: publish result failed", "task_id", t.ID, "error", err)
	}
}

// isDue implements per-type due-detection.
//
// cron: due when the expression matches the current minute and the task has
// not already fired during this same minute.
//
// interval: Value is a bare positive-integer count of seconds; due when now
// has advanced at least that far past the last firing (or creation, if
// never fired).
//
// once: Value is an RFC3339 timestamp; due exactly once, the first tick at
// or after that instant, including a timestamp already in the past at
// creation time (it fires on the very next poll).
func isDue(cron gronx.Gronx, t *model.ScheduledTask, now time.Time) bool {
	switch t.Type {
	case model.TaskCron:
		due, err := cron.IsDue(t.Value, now)
		if err != nil {
			return false
		}
		if !due {
			return false
		}
		if t.LastRun == nil {
			return true
		}
		last, err := time.Parse(time.RFC3339, *t.LastRun)
		if err != nil {
			return true
		}
		return !sameMinute(last, now)

	case model.TaskInterval:
		seconds, err := strconv.Atoi(t.Value)
		if err != nil || seconds <= 0 {
			return false
		}
		interval := time.Duration(seconds) * time.Second
		anchor := parseTime(t.CreatedAt)
		if t.LastRun != nil {
			anchor = parseTime(*t.LastRun)
		}
		return !anchor.IsZero() && now.Sub(anchor) >= interval

	case model.TaskOnce:
		if t.LastRun != nil {
			return false
		}
		due := parseTime(t.Value)
		return !due.IsZero() && !now.Before(due)

	default:
		return false
	}
}

func sameMinute(a, b time.Time) bool {
	return a.Truncate(time.Minute).Equal(b.Truncate(time.Minute))
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func strPtr(s string) *string { return &s }

func cloneTask(t *model.ScheduledTask) *model.ScheduledTask {
	cp := *t
	if t.LastRun != nil {
		v := *t.LastRun
		cp.LastRun = &v
	}
	return &cp
}

// ErrUnknownTaskType names an unrecognized task type. Nothing in this
// package returns it; isDue reports such a task as not due.
var ErrUnknownTaskType = fmt.Errorf("scheduler: unknown task type")
