package taskstore

import (
	"path/filepath"
	"testing"

	"github.com/cianaparrot/cianaparrot/internal/model"
)

func TestAppendAssignsUniqueIDs(t *testing.T) {
	dir := t.TempDir()
	s := New(filepath.Join(dir, "tasks.json"))

	id1, err := s.Append(&model.ScheduledTask{Prompt: "p1", Type: model.TaskOnce, Active: true})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	id2, err := s.Append(&model.ScheduledTask{Prompt: "p1", Type: model.TaskOnce, Active: true})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if id1 == id2 {
		t.Fatalf("expected distinct ids, got %q twice", id1)
	}
	if len(id1) != 8 || len(id2) != 8 {
		t.Fatalf("expected 8-char ids, got %q %q", id1, id2)
	}

	tasks, err := s.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	dir := t.TempDir()
	s := New(filepath.Join(dir, "missing.json"))

	tasks, err := s.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("expected empty list, got %d", len(tasks))
	}
}

func TestMutateByIDCancelFlipsActive(t *testing.T) {
	dir := t.TempDir()
	s := New(filepath.Join(dir, "tasks.json"))

	id, err := s.Append(&model.ScheduledTask{Prompt: "p", Type: model.TaskCron, Value: "* * * * *", Active: true})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	found, err := s.MutateByID(id, func(task *model.ScheduledTask) bool {
		if !task.Active {
			return false
		}
		task.Active = false
		return true
	})
	if err != nil {
		t.Fatalf("mutate: %v", err)
	}
	if !found {
		t.Fatalf("expected task %q to be found", id)
	}

	tasks, _ := s.Load()
	if tasks[0].Active {
		t.Fatalf("expected task to be deactivated")
	}
}

func TestMutateByIDUnknownIDNotFound(t *testing.T) {
	dir := t.TempDir()
	s := New(filepath.Join(dir, "tasks.json"))

	found, err := s.MutateByID("deadbeef", func(*model.ScheduledTask) bool { return true })
	if err != nil {
		t.Fatalf("mutate: %v", err)
	}
	if found {
		t.Fatalf("expected not found")
	}
}
