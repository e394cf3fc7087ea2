package tools

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/cianaparrot/cianaparrot/internal/ctxutil"
	"github.com/cianaparrot/cianaparrot/internal/taskstore"
)

func boundCtx() context.Context {
	return ctxutil.WithChatID(context.Background(), "telegram", "100")
}

func TestScheduleTaskRequiresBoundChat(t *testing.T) {
	store := taskstore.New(filepath.Join(t.TempDir(), "tasks.json"))
	tool := NewScheduleTaskTool(store)

	args, _ := json.Marshal(scheduleTaskArgs{Prompt: "p", Type: "once", Value: "2026-01-01T00:00:00Z"})
	result, err := tool.Execute(context.Background(), args)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Error == "" {
		t.Fatalf("expected error when no chat is bound")
	}
}

func TestScheduleThenListThenCancel(t *testing.T) {
	store := taskstore.New(filepath.Join(t.TempDir(), "tasks.json"))
	schedule := NewScheduleTaskTool(store)
	list := NewListTasksTool(store)
	cancel := NewCancelTaskTool(store)

	ctx := boundCtx()
	args, _ := json.Marshal(scheduleTaskArgs{Prompt: "ping me", Type: "interval", Value: "3600"})
	result, err := schedule.Execute(ctx, args)
	if err != nil || result.Error != "" {
		t.Fatalf("schedule: %v %+v", err, result)
	}

	listResult, err := list.Execute(ctx, nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var tasks []map[string]any
	if err := json.Unmarshal([]byte(listResult.Output), &tasks); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
	id, _ := tasks[0]["id"].(string)
	if id == "" {
		t.Fatalf("expected task to have an id")
	}

	cancelArgs, _ := json.Marshal(cancelTaskArgs{ID: id})
	cancelResult, err := cancel.Execute(ctx, cancelArgs)
	if err != nil || cancelResult.Error != "" {
		t.Fatalf("cancel: %v %+v", err, cancelResult)
	}

	listResult2, _ := list.Execute(ctx, nil)
	var afterCancel []map[string]any
	json.Unmarshal([]byte(listResult2.Output), &afterCancel)
	if len(afterCancel) != 0 {
		t.Fatalf("expected cancelled task to drop out of list_tasks, got %d", len(afterCancel))
	}
	stored, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("cancelled task should still be stored (not deleted), got %d", len(stored))
	}
	if stored[0].Active {
		t.Fatalf("expected cancelled task to have active=false")
	}
}

func TestListTasksOnlyReturnsOwnChat(t *testing.T) {
	store := taskstore.New(filepath.Join(t.TempDir(), "tasks.json"))
	schedule := NewScheduleTaskTool(store)
	list := NewListTasksTool(store)

	ctxA := ctxutil.WithChatID(context.Background(), "telegram", "100")
	ctxB := ctxutil.WithChatID(context.Background(), "telegram", "200")

	args, _ := json.Marshal(scheduleTaskArgs{Prompt: "a", Type: "once", Value: "2026-01-01T00:00:00Z"})
	if _, err := schedule.Execute(ctxA, args); err != nil {
		t.Fatalf("schedule a: %v", err)
	}

	result, err := list.Execute(ctxB, nil)
	if err != nil {
		t.Fatalf("list b: %v", err)
	}
	var tasks []map[string]any
	json.Unmarshal([]byte(result.Output), &tasks)
	if len(tasks) != 0 {
		t.Fatalf("expected chat B to see no tasks belonging to chat A, got %d", len(tasks))
	}
}

func TestCancelTaskRejectsOtherChatsTask(t *testing.T) {
	store := taskstore.New(filepath.Join(t.TempDir(), "tasks.json"))
	schedule := NewScheduleTaskTool(store)
	cancel := NewCancelTaskTool(store)

	ctxA := ctxutil.WithChatID(context.Background(), "telegram", "100")
	ctxB := ctxutil.WithChatID(context.Background(), "telegram", "200")

	args, _ := json.Marshal(scheduleTaskArgs{Prompt: "a", Type: "once", Value: "2026-01-01T00:00:00Z"})
	schedule.Execute(ctxA, args)

	tasks, _ := store.Load()
	id := tasks[0].ID

	cancelArgs, _ := json.Marshal(cancelTaskArgs{ID: id})
	result, err := cancel.Execute(ctxB, cancelArgs)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if result.Error == "" {
		t.Fatalf("expected cross-chat cancellation to be rejected")
	}
}
