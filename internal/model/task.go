package model

// TaskType enumerates the scheduling semantics a ScheduledTask can have.
type TaskType string

const (
	TaskCron     TaskType = "cron"
	TaskInterval TaskType = "interval"
	TaskOnce     TaskType = "once"
)

// ScheduledTask is a durable record owned by the Task Store and mutated only
// by the Scheduler (last_run / active) and the schedule/cancel tools.
// Tasks are never deleted: cancellation flips active=false to preserve audit.
type ScheduledTask struct {
	ID         string   `json:"id"`
	Prompt     string   `json:"prompt"`
	Type       TaskType `json:"type"`
	Value      string   `json:"value"`
	Channel    string   `json:"channel"`
	ChatID     string   `json:"chat_id"`
	CreatedAt  string   `json:"created_at"` // UTC ISO 8601
	LastRun    *string  `json:"last_run"`   // UTC ISO 8601 or null
	Active     bool     `json:"active"`
	ModelTier  string   `json:"model_tier,omitempty"`
}
