package main

import (
	"encoding/json"
	"time"
)

type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Slide is one unit of the presentation. Markdown and narration script
// are both optional; a slide may carry either, both, or neither.
type Slide struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Markdown        string `json:"markdown,omitempty"`
	NarrationScript string `json:"narrationScript,omitempty"`
}

type JobPayload struct {
	Slides []Slide `json:"slides"`
}

// JobRecord holds everything known about a single generation job.
type JobRecord struct {
	JobID     string     `json:"jobId"`
	Payload   JobPayload `json:"payload"`
	Status    JobStatus  `json:"status"`
	Progress  int        `json:"progress"`
	Message   string     `json:"message,omitempty"`
	VideoURL  string     `json:"videoUrl,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// StatusUpdate is the partial record merged into a JobRecord by an
// update call. Progress is a pointer so "not provided" can be told
// apart from an explicit zero.
type StatusUpdate struct {
	Status   JobStatus `json:"status,omitempty"`
	Progress *int      `json:"progress,omitempty"`
	Message  string    `json:"message,omitempty"`
	VideoURL string    `json:"videoUrl,omitempty"`
}

// wsEnvelope is the frame exchanged with live subscribers.
type wsEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type wsJoinPayload struct {
	JobID string `json:"jobId"`
}

// eventTypeFor maps a job status to the event name subscribers see.
func eventTypeFor(status JobStatus) string {
	switch status {
	case StatusCompleted:
		return "job:completed"
	case StatusFailed:
		return "job:failed"
	default:
		return "job:progress"
	}
}
