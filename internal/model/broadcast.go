package model

import (
	"time"
)

// SendMode selects which message variants each recipient receives.
type SendMode string

const (
	SendAll           SendMode = "all"
	SendRandomOne     SendMode = "randomOne"
	SendRandomMessage SendMode = "randomMessage"
)

// JobStatus is the lifecycle status of a broadcast job.
type JobStatus string

const (
	JobDraft     JobStatus = "draft"
	JobScheduled JobStatus = "scheduled"
	JobRunning   JobStatus = "running"
	JobPaused    JobStatus = "paused"
	JobCompleted JobStatus = "completed"
	JobCanceled  JobStatus = "canceled"
)

// Interval is an inclusive range of whole seconds.
type Interval struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// BroadcastStep is one planned send. Delay is waited before sending.
type BroadcastStep struct {
	RecipientID string        `json:"recipient_id"`
	Variant     int           `json:"variant"`
	Delay       time.Duration `json:"delay"`
}

// BroadcastJob is a bulk-send campaign with its own pacing and a resumable
// cursor into its planned steps.
type BroadcastJob struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Recipients      []string        `json:"recipients"`
	Variants        []string        `json:"variants"`
	Mode            SendMode        `json:"mode"`
	MsgInterval     Interval        `json:"msg_interval"`
	ContactInterval Interval        `json:"contact_interval"`
	Seed            int64           `json:"seed"`
	ScheduledAt     *time.Time      `json:"scheduled_at,omitempty"`
	Steps           []BroadcastStep `json:"steps,omitempty"`
	Cursor          int             `json:"cursor"`
	Sent            int             `json:"sent"`
	Status          JobStatus       `json:"status"`
	LastError       string          `json:"last_error,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Clone returns a deep copy of the job.
func (j *BroadcastJob) Clone() BroadcastJob {
	out := *j
	out.Recipients = append([]string(nil), j.Recipients...)
	out.Variants = append([]string(nil), j.Variants...)
	out.Steps = append([]BroadcastStep(nil), j.Steps...)
	if j.ScheduledAt != nil {
		at := *j.ScheduledAt
		out.ScheduledAt = &at
	}
	return out
}

// CreateBroadcastRequest is the request to create a broadcast job.
type CreateBroadcastRequest struct {
	Name            string   `json:"name"`
	Recipients      []string `json:"recipients"`
	Variants        []string `json:"variants"`
	Mode            SendMode `json:"mode"`
	MsgInterval     Interval `json:"msg_interval"`
	ContactInterval Interval `json:"contact_interval"`
	Seed            *int64   `json:"seed,omitempty"`
	// Filter selects recipients from the store when Recipients is empty.
	Filter *FilterCriteria `json:"filter,omitempty"`
}

// SendTime is a suggested start time for a campaign.
type SendTime struct {
	Date  string    `json:"date"`
	Time  string    `json:"time"`
	At    time.Time `json:"at"`
	Score float64   `json:"score"`
}
