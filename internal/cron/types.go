package cron

import (
	"time"

	"github.com/google/uuid"
)

// Schedule describes when a job runs. Kind is "cron" (6-field expression
// with seconds), "every" (fixed interval), or "at" (one-shot).
type Schedule struct {
	Kind    string `json:"kind"`
	Expr    string `json:"expr,omitempty"`
	EveryMs int64  `json:"everyMs,omitempty"`
	AtMs    int64  `json:"atMs,omitempty"`
}

// Payload names the analytics task a job runs. Sweep jobs recompute pod
// analytics; digest jobs additionally deliver a summary to a chat.
type Payload struct {
	Task    string `json:"task"` // "sweep" or "digest"
	PodID   string `json:"podId,omitempty"`
	Channel string `json:"channel,omitempty"`
	ChatID  string `json:"chatId,omitempty"`
}

type State struct {
	LastRunAtMs int64  `json:"lastRunAtMs,omitempty"`
	LastStatus  string `json:"lastStatus,omitempty"`
	LastError   string `json:"lastError,omitempty"`
}

type Job struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Enabled   bool     `json:"enabled"`
	Schedule  Schedule `json:"schedule"`
	Payload   Payload  `json:"payload"`
	State     State    `json:"state"`
	CreatedAt int64    `json:"createdAtMs"`
}

func NewJob(name string, schedule Schedule, payload Payload) Job {
	return Job{
		ID:        uuid.NewString(),
		Name:      name,
		Enabled:   true,
		Schedule:  schedule,
		Payload:   payload,
		CreatedAt: time.Now().UnixMilli(),
	}
}
