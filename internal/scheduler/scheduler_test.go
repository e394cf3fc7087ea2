package scheduler

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cianaparrot/cianaparrot/internal/agent/agenttest"
	"github.com/cianaparrot/cianaparrot/internal/model"
	"github.com/cianaparrot/cianaparrot/internal/taskstore"
)

type recordingPublisher struct {
	mu    sync.Mutex
	calls int
}

func (p *recordingPublisher) PublishResult(ctx context.Context, channel, chatID string, events []model.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func TestIntervalTaskFiresOnceThenWaits(t *testing.T) {
	store := taskstore.New(filepath.Join(t.TempDir(), "tasks.json"))
	past := time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
	_, err := store.Append(&model.ScheduledTask{
		Prompt:    "ping",
		Type:      model.TaskInterval,
		Value:     "3600",
		Channel:   "telegram",
		ChatID:    "1",
		CreatedAt: past,
		Active:    true,
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	stub := agenttest.NewTextStub("pong")
	pub := &recordingPublisher{}
	s := New(store, stub, pub, time.Hour, nil)

	s.tick(context.Background())
	s.wg.Wait()

	if stub.Calls() != 1 {
		t.Fatalf("expected 1 agent call, got %d", stub.Calls())
	}
	if pub.count() != 1 {
		t.Fatalf("expected 1 publish, got %d", pub.count())
	}

	// Second tick immediately after: last_run was just set, so the task
	// must not fire again.
	s.tick(context.Background())
	s.wg.Wait()
	if stub.Calls() != 1 {
		t.Fatalf("expected task to stay quiet until the interval elapses, got %d calls", stub.Calls())
	}
}

func TestOnceTaskFiresExactlyOnceEvenWhenAlreadyPastDue(t *testing.T) {
	store := taskstore.New(filepath.Join(t.TempDir(), "tasks.json"))
	due := time.Now().UTC().Add(-time.Minute).Format(time.RFC3339)
	id, err := store.Append(&model.ScheduledTask{
		Prompt:  "one shot",
		Type:    model.TaskOnce,
		Value:   due,
		Channel: "telegram",
		ChatID:  "1",
		Active:  true,
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	stub := agenttest.NewTextStub("done")
	s := New(store, stub, nil, time.Hour, nil)

	s.tick(context.Background())
	s.wg.Wait()
	if stub.Calls() != 1 {
		t.Fatalf("expected already-past-due once task to fire on first tick, got %d calls", stub.Calls())
	}

	tasks, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	for _, task := range tasks {
		if task.ID == id && task.Active {
			t.Fatalf("expected once task to be deactivated after firing")
		}
	}

	s.tick(context.Background())
	s.wg.Wait()
	if stub.Calls() != 1 {
		t.Fatalf("expected once task to never fire again, got %d calls", stub.Calls())
	}
}

func TestInactiveTaskNeverFires(t *testing.T) {
	store := taskstore.New(filepath.Join(t.TempDir(), "tasks.json"))
	_, err := store.Append(&model.ScheduledTask{
		Prompt:  "never",
		Type:    model.TaskInterval,
		Value:   "1",
		Channel: "telegram",
		ChatID:  "1",
		Active:  false,
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	stub := agenttest.NewTextStub("x")
	s := New(store, stub, nil, time.Hour, nil)
	s.tick(context.Background())
	s.wg.Wait()
	if stub.Calls() != 0 {
		t.Fatalf("expected inactive task to never run, got %d calls", stub.Calls())
	}
}
