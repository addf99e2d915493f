package models

import (
	"time"
)

// Event Bus models
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"` // post.published, post.expired, sweep.requested
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}

const (
	EventPostPublished  = "post.published"
	EventPostExpired    = "post.expired"
	EventSweepRequested = "sweep.requested"
)

// PublishResponse is returned to API clients that ask for JSON instead of text.
type PublishResponse struct {
	Key      string `json:"key"`
	RawID    string `json:"postid"`
	Identity string `json:"username"`
	Topic    string `json:"topic"`
	Mode     string `json:"mode"`
}

type SubmissionView struct {
	Topic        string    `json:"topic"`
	Key          string    `json:"key"`
	RawID        string    `json:"postid"`
	Mode         string    `json:"mode"`
	Identity     string    `json:"username,omitempty"`
	LastModified time.Time `json:"last_modified"`
}
