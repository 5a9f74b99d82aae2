// Package simulate is an in-memory stand-in for the remote analysis service,
// used by `waypoint devserver` to exercise the client against realistic job
// timings, including a payload that becomes readable after completion.
package simulate

import (
	"fmt"
	"sort"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/kalambet/waypoint/internal/report"
)

// Scenario controls how simulated jobs progress.
type Scenario struct {
	// QueuedFor is how long a new job stays queued.
	QueuedFor time.Duration `toml:"queued_for"`
	// ProcessingFor is how long a job runs before completing.
	ProcessingFor time.Duration `toml:"processing_for"`
	// PayloadLag delays the analysis payload after the job reports complete.
	PayloadLag time.Duration `toml:"payload_lag"`
	// RejectReads makes the first N reads of each job answer success=false.
	RejectReads int `toml:"reject_reads"`
	// Fail ends every job as failed with Error.
	Fail  bool   `toml:"fail"`
	Error string `toml:"error"`
	// Sections overrides the generated analysis text per section key.
	Sections map[string]string `toml:"sections"`
}

// DefaultScenario is a short, successful run with a small payload lag.
func DefaultScenario() Scenario {
	return Scenario{
		QueuedFor:     3 * time.Second,
		ProcessingFor: 20 * time.Second,
		PayloadLag:    2 * time.Second,
	}
}

// LoadScenario reads a TOML scenario file. Keys missing from the file keep
// their DefaultScenario values.
func LoadScenario(path string) (Scenario, error) {
	sc := DefaultScenario()
	md, err := toml.DecodeFile(path, &sc)
	if err != nil {
		return Scenario{}, fmt.Errorf("decoding scenario %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Scenario{}, fmt.Errorf("scenario %s: unknown keys %v", path, undecoded)
	}
	if err := sc.Validate(); err != nil {
		return Scenario{}, fmt.Errorf("scenario %s: %w", path, err)
	}
	return sc, nil
}

// Validate rejects negative timings.
func (sc Scenario) Validate() error {
	if sc.QueuedFor < 0 || sc.ProcessingFor < 0 || sc.PayloadLag < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	if sc.RejectReads < 0 {
		return fmt.Errorf("reject_reads must not be negative")
	}
	return nil
}

// analysisFor builds the result payload for a product idea. Known sections
// come first in display order, extra scenario sections follow sorted by key.
func (sc Scenario) analysisFor(productIdea string) []report.Section {
	out := make([]report.Section, 0, len(report.Keys))
	for _, key := range report.Keys {
		body, ok := sc.Sections[key]
		if !ok {
			body = fmt.Sprintf("Simulated %s for %q.", report.Section{Key: key}.Label(), productIdea)
		}
		out = append(out, report.Section{Key: key, Body: body})
	}

	var extra []string
	for key := range sc.Sections {
		if _, known := labelIndex[key]; !known {
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	for _, key := range extra {
		out = append(out, report.Section{Key: key, Body: sc.Sections[key]})
	}
	return out
}

var labelIndex = func() map[string]int {
	m := make(map[string]int, len(report.Keys))
	for i, k := range report.Keys {
		m[k] = i
	}
	return m
}()
