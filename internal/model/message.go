// Package model holds the wire- and disk-level data types shared by the
// router, scheduler, gateway, and bridge subsystems.
package model

import "time"

// IncomingMessage is produced by a channel adapter and handed to the Router.
// It is immutable once constructed.
type IncomingMessage struct {
	Channel        string `json:"channel"`
	ChatID         string `json:"chat_id"`
	UserID         string `json:"user_id"`
	UserName       string `json:"user_name"`
	Text           string `json:"text"`
	IsPrivate      bool   `json:"is_private"`
	MessageID      string `json:"message_id,omitempty"`
	ImageBase64    string `json:"image_base64,omitempty"`
	ImageMimeType  string `json:"image_mime_type,omitempty"`
	ResetSession   bool   `json:"reset_session,omitempty"`
}

// TurnRecord is one append-only line in a thread's turn log.
type TurnRecord struct {
	Role      string    `json:"role"` // "user" | "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Channel   string    `json:"channel"`
	UserID    string    `json:"user_id,omitempty"` // empty/absent for assistant turns
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)
