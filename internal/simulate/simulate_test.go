package simulate

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/waypoint/internal/analysis"
	"github.com/kalambet/waypoint/internal/clock"
	"github.com/kalambet/waypoint/internal/report"
)

var start = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

func request() analysis.SubmitRequest {
	return analysis.SubmitRequest{ProductIdea: "A budgeting app for freelancers", Tier: analysis.TierPrelaunch, Email: "a@b.co"}
}

func TestStore_Lifecycle(t *testing.T) {
	clk := clock.NewFake(start)
	s := NewStore(DefaultScenario(), clk)
	job := s.Create(request())

	snap, err := s.Read(job.ID)
	require.NoError(t, err)
	assert.Equal(t, analysis.StatusQueued, snap.Status())

	clk.Advance(3 * time.Second)
	assert.Equal(t, 1, s.Advance(clk.Now()))
	snap, _ = s.Read(job.ID)
	assert.Equal(t, analysis.StatusProcessing, snap.Status())

	clk.Advance(10 * time.Second)
	assert.Equal(t, 0, s.Advance(clk.Now()))
	snap, _ = s.Read(job.ID)
	p, ok := snap.Progress()
	require.True(t, ok)
	assert.InDelta(t, 52.5, p, 0.01)

	clk.Advance(10 * time.Second)
	s.Advance(clk.Now())
	snap, _ = s.Read(job.ID)
	assert.Equal(t, analysis.StatusComplete, snap.Status())
	assert.False(t, snap.HasAnalysis(), "payload must lag completion")

	clk.Advance(2 * time.Second)
	snap, _ = s.Read(job.ID)
	assert.True(t, snap.Ready())

	sections, err := report.Sections(snap.Data.Analysis)
	require.NoError(t, err)
	require.Len(t, sections, len(report.Keys))
	assert.Equal(t, "overview", sections[0].Key)
	assert.Equal(t, "risks_and_unknowns", sections[len(sections)-1].Key)

	got, _ := s.Get(job.ID)
	assert.Equal(t, 5, got.Reads)
}

func TestStore_Failure(t *testing.T) {
	clk := clock.NewFake(start)
	s := NewStore(Scenario{Fail: true, Error: "quota exceeded"}, clk)
	job := s.Create(request())

	s.Advance(clk.Now())
	snap, err := s.Read(job.ID)
	require.NoError(t, err)
	assert.Equal(t, analysis.StatusFailed, snap.Status())
	assert.Equal(t, "quota exceeded", snap.ErrorMessage())
	assert.False(t, snap.HasAnalysis())
}

func TestStore_RejectReads(t *testing.T) {
	s := NewStore(Scenario{RejectReads: 2}, clock.NewFake(start))
	job := s.Create(request())

	for i := 0; i < 2; i++ {
		snap, err := s.Read(job.ID)
		require.NoError(t, err)
		assert.False(t, snap.Success)
	}
	snap, _ := s.Read(job.ID)
	assert.True(t, snap.Success)
}

func TestStore_Unknown(t *testing.T) {
	s := NewStore(DefaultScenario(), clock.NewFake(start))
	_, err := s.Read("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ListOldestFirst(t *testing.T) {
	clk := clock.NewFake(start)
	s := NewStore(DefaultScenario(), clk)
	first := s.Create(request())
	clk.Advance(time.Second)
	second := s.Create(request())

	jobs := s.List()
	require.Len(t, jobs, 2)
	assert.Equal(t, first.ID, jobs[0].ID)
	assert.Equal(t, second.ID, jobs[1].ID)
}

func TestWorker_RunAdvancesJobs(t *testing.T) {
	clk := clock.NewFake(start)
	s := NewStore(Scenario{QueuedFor: time.Second, ProcessingFor: 2 * time.Second}, clk)
	job := s.Create(request())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		NewWorker(s, clk, time.Second).Run(ctx)
	}()

	for i := 0; i < 3; i++ {
		clk.BlockUntil(1)
		clk.Advance(time.Second)
	}
	clk.BlockUntil(1)

	got, err := s.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, analysis.StatusComplete, got.Status)

	cancel()
	<-done
	assert.Equal(t, 0, clk.Pending())
}

func TestLoadScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lag.toml")
	content := `
processing_for = "5s"
payload_lag = "8s"
reject_reads = 1

[sections]
overview = "Custom overview."
appendix = "Extra."
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	sc, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, sc.QueuedFor, "default kept")
	assert.Equal(t, 5*time.Second, sc.ProcessingFor)
	assert.Equal(t, 8*time.Second, sc.PayloadLag)
	assert.Equal(t, 1, sc.RejectReads)

	sections := sc.analysisFor("idea")
	require.Len(t, sections, len(report.Keys)+1)
	assert.Equal(t, "Custom overview.", sections[0].Body)
	assert.Equal(t, "appendix", sections[len(sections)-1].Key)
}

func TestLoadScenario_Rejects(t *testing.T) {
	dir := t.TempDir()

	unknown := filepath.Join(dir, "unknown.toml")
	require.NoError(t, os.WriteFile(unknown, []byte(`speed = "fast"`), 0o644))
	_, err := LoadScenario(unknown)
	assert.Error(t, err)

	negative := filepath.Join(dir, "negative.toml")
	require.NoError(t, os.WriteFile(negative, []byte(`payload_lag = "-1s"`), 0o644))
	_, err = LoadScenario(negative)
	assert.Error(t, err)
}
