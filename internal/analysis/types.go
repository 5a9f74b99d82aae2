package analysis

import (
	"bytes"
	"encoding/json"
)

// Status is the server-reported lifecycle state of an analysis job.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transitions are expected.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// Tier selects the analysis depth requested at submission.
type Tier string

const (
	TierPrelaunch  Tier = "prelaunch"
	TierPostlaunch Tier = "postlaunch"
)

// SubmitRequest is the JSON body for POST /analyze.
type SubmitRequest struct {
	ProductIdea string `json:"product_idea"`
	Tier        Tier   `json:"tier"`
	Email       string `json:"email"`
}

// SubmitResponse is the JSON returned by POST /analyze.
type SubmitResponse struct {
	Success bool   `json:"success"`
	JobID   string `json:"job_id"`
}

// Snapshot is the point-in-time state of one job as returned by
// GET /results/{jobId}. Fields the service has not populated yet are absent.
type Snapshot struct {
	Success bool     `json:"success"`
	Data    *JobData `json:"data,omitempty"`
}

// JobData is the job record inside a Snapshot.
type JobData struct {
	Status        Status          `json:"status,omitempty"`
	Progress      *float64        `json:"progress,omitempty"`
	Error         string          `json:"error,omitempty"`
	Analysis      json.RawMessage `json:"analysis,omitempty"`
	ProductIdea   string          `json:"product_idea,omitempty"`
	RawMarketData json.RawMessage `json:"raw_market_data,omitempty"`
}

// Status returns the reported status, or "" when absent.
func (s *Snapshot) Status() Status {
	if s == nil || s.Data == nil {
		return ""
	}
	return s.Data.Status
}

// Progress returns the reported progress percentage and whether it was set.
func (s *Snapshot) Progress() (float64, bool) {
	if s == nil || s.Data == nil || s.Data.Progress == nil {
		return 0, false
	}
	return *s.Data.Progress, true
}

// ErrorMessage returns the service-provided failure text, if any.
func (s *Snapshot) ErrorMessage() string {
	if s == nil || s.Data == nil {
		return ""
	}
	return s.Data.Error
}

// HasAnalysis reports whether the result payload is present.
func (s *Snapshot) HasAnalysis() bool {
	if s == nil || s.Data == nil {
		return false
	}
	a := bytes.TrimSpace(s.Data.Analysis)
	return len(a) > 0 && !bytes.Equal(a, []byte("null"))
}

// Ready reports whether the snapshot is complete and carries its payload.
func (s *Snapshot) Ready() bool {
	return s != nil && s.Success && s.Status() == StatusComplete && s.HasAnalysis()
}
