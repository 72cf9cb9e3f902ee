// Copyright 2025 James Ross
package store

import "time"

// Job status enum. Fixed set; the schema CHECK constraint mirrors this.
const (
	JobPending    = "pending"
	JobClaimed    = "claimed"
	JobProcessing = "processing"
	JobSucceeded  = "succeeded"
	JobFailed     = "failed"
)

// Bot status enum.
const (
	BotIdle = "idle"
	BotBusy = "busy"
	BotDown = "down"
)

// Bot health enum.
const (
	HealthNormal           = "normal"
	HealthPotentiallyStuck = "potentially_stuck"
	HealthUnhealthy        = "unhealthy"
)

// Result status enum.
const (
	ResultSucceeded = "succeeded"
	ResultFailed    = "failed"
)

// statusPriority orders statuses for the List query-level contract:
// pending < claimed < processing < succeeded < failed, then created_at DESC.
var statusPriority = map[string]int{
	JobPending:    0,
	JobClaimed:    1,
	JobProcessing: 2,
	JobSucceeded:  3,
	JobFailed:     4,
}

// Job mirrors the jobs table.
type Job struct {
	ID         string
	A          float64
	B          float64
	Operation  string
	Status     string
	ClaimedBy  *string
	ClaimedAt  *time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
	CreatedAt  time.Time
	Attempts   int
	Error      *string
	Version    int
}

// Bot mirrors the bots table.
type Bot struct {
	ID                string
	Status            string
	CurrentJobID      *string
	LastHeartbeatAt   time.Time
	CreatedAt         time.Time
	DeletedAt         *time.Time
	AssignedOperation *string
	HealthStatus      string
	StuckJobID        *string
	HealthCheckedAt   *time.Time
}

// ComputedStatus derives the bot's externally visible status: deleted
// takes priority, then a heartbeat-age-based "down", then the stored
// status.
func (b *Bot) ComputedStatus(downThreshold time.Duration, now time.Time) string {
	if b.DeletedAt != nil {
		return "deleted"
	}
	if now.Sub(b.LastHeartbeatAt) > downThreshold {
		return BotDown
	}
	return b.Status
}

// Result mirrors the results table, written exactly once per terminal Job transition.
type Result struct {
	ID          string
	JobID       string
	A           float64
	B           float64
	Operation   string
	Result      *float64
	ProcessedBy string
	ProcessedAt time.Time
	DurationMs  int64
	Status      string
	Error       *string
}

// ListFilter drives Job listing (ListJobs). Status == "" means no filter.
type ListFilter struct {
	Status string
	Limit  int
	Offset int
}
