package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Job is one analysis submitted from this machine, with the last status the
// client observed for it.
type Job struct {
	ID          string
	ServiceURL  string
	ProductIdea string
	Tier        string
	Email       string
	Status      string // "queued", "processing", "complete", "failed", or a local state
	Progress    *float64
	LastError   string
	SubmittedAt time.Time
	UpdatedAt   time.Time
}

// StatusUpdate carries the fields refreshed after a poll or load.
type StatusUpdate struct {
	Status    string
	Progress  *float64
	LastError string
}
