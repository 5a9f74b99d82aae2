package simulate

import (
	"bytes"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/waypoint/internal/analysis"
	"github.com/kalambet/waypoint/internal/clock"
	"github.com/kalambet/waypoint/internal/report"
)

// ErrNotFound is returned for an unknown job id.
var ErrNotFound = errors.New("job not found")

// Job is one simulated analysis.
type Job struct {
	ID          string
	Request     analysis.SubmitRequest
	Status      analysis.Status
	Progress    float64
	Error       string
	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
	Analysis    json.RawMessage
	Reads       int
}

// Store keeps simulated jobs in memory.
type Store struct {
	mu       sync.Mutex
	clock    clock.Clock
	scenario Scenario
	jobs     map[string]*Job
}

// NewStore creates an empty Store. A nil clock uses the real clock.
func NewStore(sc Scenario, clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.Real()
	}
	return &Store{clock: clk, scenario: sc, jobs: make(map[string]*Job)}
}

// Scenario returns the timings jobs follow.
func (s *Store) Scenario() Scenario { return s.scenario }

// Create queues a new job for req.
func (s *Store) Create(req analysis.SubmitRequest) Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	j := &Job{
		ID:        uuid.NewString(),
		Request:   req,
		Status:    analysis.StatusQueued,
		CreatedAt: s.clock.Now(),
	}
	s.jobs[j.ID] = j
	return *j
}

// Get returns a copy of the job.
func (s *Store) Get(id string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return *j, nil
}

// List returns all jobs, oldest first.
func (s *Store) List() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, *j)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out
}

// Read answers GET /results/{id} as the remote service would, counting the
// read. Reads inside the scenario's reject window answer success=false, and
// a completed job omits its payload until the payload lag has passed.
func (s *Store) Read(id string) (*analysis.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	j.Reads++
	if j.Reads <= s.scenario.RejectReads {
		return &analysis.Snapshot{Success: false}, nil
	}

	p := j.Progress
	data := &analysis.JobData{
		Status:      j.Status,
		Progress:    &p,
		Error:       j.Error,
		ProductIdea: j.Request.ProductIdea,
	}
	if j.Status == analysis.StatusComplete && !s.clock.Now().Before(j.CompletedAt.Add(s.scenario.PayloadLag)) {
		data.Analysis = j.Analysis
	}
	return &analysis.Snapshot{Success: true, Data: data}, nil
}

// Advance moves every unfinished job forward to now and reports how many
// jobs changed status.
func (s *Store) Advance(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := 0
	for _, j := range s.jobs {
		if s.step(j, now) {
			changed++
		}
	}
	return changed
}

func (s *Store) step(j *Job, now time.Time) bool {
	sc := s.scenario
	before := j.Status

	if j.Status == analysis.StatusQueued && !now.Before(j.CreatedAt.Add(sc.QueuedFor)) {
		j.Status = analysis.StatusProcessing
		j.StartedAt = j.CreatedAt.Add(sc.QueuedFor)
		j.Progress = 10
	}

	if j.Status == analysis.StatusProcessing {
		elapsed := now.Sub(j.StartedAt)
		if elapsed >= sc.ProcessingFor {
			j.CompletedAt = j.StartedAt.Add(sc.ProcessingFor)
			if sc.Fail {
				j.Status = analysis.StatusFailed
				j.Error = sc.Error
			} else {
				j.Status = analysis.StatusComplete
				j.Progress = 100
				j.Analysis = encodeSections(sc.analysisFor(j.Request.ProductIdea))
			}
		} else {
			// Linear from 10 to 95 while running.
			j.Progress = 10 + 85*float64(elapsed)/float64(sc.ProcessingFor)
		}
	}

	return j.Status != before
}

// encodeSections writes sections as a JSON object, keeping their order.
func encodeSections(sections []report.Section) json.RawMessage {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, sec := range sections {
		if i > 0 {
			b.WriteByte(',')
		}
		k, _ := json.Marshal(sec.Key)
		v, _ := json.Marshal(sec.Body)
		b.Write(k)
		b.WriteByte(':')
		b.Write(v)
	}
	b.WriteByte('}')
	return b.Bytes()
}
