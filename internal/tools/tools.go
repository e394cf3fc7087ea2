// Package tools implements the tool surface the external agent invokes:
// schedule_task/list_tasks/cancel_task against the Task Store, and
// host_execute against a Host Gateway. Each constructor follows the
// teacher's factory-function pattern (one constructor per tool, closing
// over just the dependency it needs) instead of a single god-object
// handling every tool name.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cianaparrot/cianaparrot/internal/ctxutil"
	"github.com/cianaparrot/cianaparrot/internal/gatewayclient"
	"github.com/cianaparrot/cianaparrot/internal/model"
	"github.com/cianaparrot/cianaparrot/internal/taskstore"
)

// Result is the uniform envelope every tool returns.
type Result struct {
	Output string `json:"output"`
	Error  string `json:"error,omitempty"`
}

// Tool is one agent-invocable function.
type Tool interface {
	Name() string
	Execute(ctx context.Context, argsJSON json.RawMessage) (Result, error)
}

// scheduleTaskArgs is the schedule_task tool's argument shape.
type scheduleTaskArgs struct {
	Prompt    string `json:"prompt"`
	Type      string `json:"type"` // "cron" | "interval" | "once"
	Value     string `json:"value"`
	ModelTier string `json:"model_tier,omitempty"`
}

type scheduleTaskTool struct {
	store *taskstore.Store
}

// NewScheduleTaskTool returns the schedule_task tool. It reads the
// originating (channel, chat_id) from ctx (bound by the Router or
// Scheduler via ctxutil.WithChatID) rather than from its arguments, so the
// agent cannot schedule a task into an arbitrary chat it doesn't own.
func NewScheduleTaskTool(store *taskstore.Store) Tool {
	return &scheduleTaskTool{store: store}
}

func (t *scheduleTaskTool) Name() string { return "schedule_task" }

func (t *scheduleTaskTool) Execute(ctx context.Context, argsJSON json.RawMessage) (Result, error) {
	var args scheduleTaskArgs
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		return Result{Error: fmt.Sprintf("invalid arguments: %v", err)}, nil
	}

	taskType := model.TaskType(args.Type)
	switch taskType {
	case model.TaskCron, model.TaskInterval, model.TaskOnce:
	default:
		return Result{Error: fmt.Sprintf("unknown task type %q", args.Type)}, nil
	}

	channel, chatID, ok := ctxutil.ChatID(ctx)
	if !ok {
		return Result{Error: "schedule_task: no originating chat bound to this run"}, nil
	}

	task := &model.ScheduledTask{
		Prompt:    args.Prompt,
		Type:      taskType,
		Value:     args.Value,
		Channel:   channel,
		ChatID:    chatID,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Active:    true,
		ModelTier: args.ModelTier,
	}

	id, err := t.store.Append(task)
	if err != nil {
		return Result{}, fmt.Errorf("schedule_task: %w", err)
	}
	return Result{Output: fmt.Sprintf("scheduled task %s", id)}, nil
}

// listTasksTool lists the active tasks belonging to the calling chat only.
type listTasksTool struct {
	store *taskstore.Store
}

// NewListTasksTool returns the list_tasks tool.
func NewListTasksTool(store *taskstore.Store) Tool {
	return &listTasksTool{store: store}
}

func (t *listTasksTool) Name() string { return "list_tasks" }

func (t *listTasksTool) Execute(ctx context.Context, _ json.RawMessage) (Result, error) {
	channel, chatID, ok := ctxutil.ChatID(ctx)
	if !ok {
		return Result{Error: "list_tasks: no originating chat bound to this run"}, nil
	}

	tasks, err := t.store.Load()
	if err != nil {
		return Result{}, fmt.Errorf("list_tasks: %w", err)
	}

	var mine []*model.ScheduledTask
	for _, task := range tasks {
		if task.Active && task.Channel == channel && task.ChatID == chatID {
			mine = append(mine, task)
		}
	}

	out, err := json.Marshal(mine)
	if err != nil {
		return Result{}, fmt.Errorf("list_tasks: marshal: %w", err)
	}
	return Result{Output: string(out)}, nil
}

// cancelTaskArgs is the cancel_task tool's argument shape.
type cancelTaskArgs struct {
	ID string `json:"id"`
}

type cancelTaskTool struct {
	store *taskstore.Store
}

// NewCancelTaskTool returns the cancel_task tool. Cancellation flips
// active=false; the task record is never deleted.
func NewCancelTaskTool(store *taskstore.Store) Tool {
	return &cancelTaskTool{store: store}
}

func (t *cancelTaskTool) Name() string { return "cancel_task" }

func (t *cancelTaskTool) Execute(ctx context.Context, argsJSON json.RawMessage) (Result, error) {
	var args cancelTaskArgs
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		return Result{Error: fmt.Sprintf("invalid arguments: %v", err)}, nil
	}

	channel, chatID, ok := ctxutil.ChatID(ctx)
	if !ok {
		return Result{Error: "cancel_task: no originating chat bound to this run"}, nil
	}

	var unauthorized bool
	found, err := t.store.MutateByID(args.ID, func(task *model.ScheduledTask) bool {
		if task.Channel != channel || task.ChatID != chatID {
			unauthorized = true
			return false
		}
		if !task.Active {
			return false
		}
		task.Active = false
		return true
	})
	if err != nil {
		return Result{}, fmt.Errorf("cancel_task: %w", err)
	}
	if unauthorized || !found {
		return Result{Error: fmt.Sprintf("no such task %q for this chat", args.ID)}, nil
	}
	return Result{Output: fmt.Sprintf("cancelled task %s", args.ID)}, nil
}

// hostExecuteArgs is the host_execute tool's argument shape.
type hostExecuteArgs struct {
	Cmd     []string `json:"cmd"`
	Cwd     string   `json:"cwd,omitempty"`
	Timeout float64  `json:"timeout,omitempty"`
}

type hostExecuteTool struct {
	client *gatewayclient.Client
}

// NewHostExecuteTool returns the host_execute tool, relaying argv through a
// Host Gateway Server bridge rather than running a shell directly.
func NewHostExecuteTool(client *gatewayclient.Client) Tool {
	return &hostExecuteTool{client: client}
}

func (t *hostExecuteTool) Name() string { return "host_execute" }

func (t *hostExecuteTool) Execute(ctx context.Context, argsJSON json.RawMessage) (Result, error) {
	var args hostExecuteArgs
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		return Result{Error: fmt.Sprintf("invalid arguments: %v", err)}, nil
	}
	if len(args.Cmd) == 0 {
		return Result{Error: "cmd must not be empty"}, nil
	}

	timeout := time.Duration(args.Timeout * float64(time.Second))
	result := t.client.Execute(ctx, args.Cmd, args.Cwd, timeout)
	if result.Error != "" {
		return Result{Error: result.Error}, nil
	}

	out, err := json.Marshal(result)
	if err != nil {
		return Result{}, fmt.Errorf("host_execute: marshal: %w", err)
	}
	return Result{Output: string(out)}, nil
}
