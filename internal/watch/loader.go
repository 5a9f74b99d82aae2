package watch

import (
	"context"
	"log/slog"
	"time"

	"github.com/kalambet/waypoint/internal/analysis"
	"github.com/kalambet/waypoint/internal/clock"
)

// Category classifies one load attempt.
type Category int

const (
	CategoryServiceRejected Category = iota + 1
	CategoryStillProcessing
	CategoryOtherNonComplete
	CategoryComplete
	CategoryTransportError
)

func (c Category) String() string {
	switch c {
	case CategoryServiceRejected:
		return "service_rejected"
	case CategoryStillProcessing:
		return "still_processing"
	case CategoryOtherNonComplete:
		return "other_non_complete"
	case CategoryComplete:
		return "complete"
	case CategoryTransportError:
		return "transport_error"
	default:
		return "unknown"
	}
}

// Classify maps one fetch result to exactly one Category. A complete status
// whose payload is still absent counts as other_non_complete.
func Classify(snap *analysis.Snapshot, err error) Category {
	switch {
	case err != nil:
		return CategoryTransportError
	case snap == nil || !snap.Success:
		return CategoryServiceRejected
	case snap.Status() == analysis.StatusProcessing:
		return CategoryStillProcessing
	case snap.Status() == analysis.StatusComplete && snap.HasAnalysis():
		return CategoryComplete
	default:
		return CategoryOtherNonComplete
	}
}

// Attempt describes one load attempt for progress reporting.
type Attempt struct {
	JobID       string
	Number      int
	MaxAttempts int
	Category    Category
	Status      analysis.Status
	Err         error
}

// Retrying reports whether another attempt will follow.
func (a Attempt) Retrying() bool {
	return a.Category != CategoryComplete && a.Number < a.MaxAttempts
}

// AttemptFunc is called after every load attempt.
type AttemptFunc func(Attempt)

// LoaderConfig bounds the load retry loop.
type LoaderConfig struct {
	MaxAttempts int
	RetryDelay  time.Duration
}

// DefaultLoaderConfig returns the stock retry budget.
func DefaultLoaderConfig() LoaderConfig {
	return LoaderConfig{MaxAttempts: 10, RetryDelay: 2 * time.Second}
}

// Loader fetches the results of a job that is expected to be finished,
// retrying at a constant interval until the payload is there.
type Loader struct {
	fetcher Fetcher
	clock   clock.Clock
	cfg     LoaderConfig
	logger  *slog.Logger
}

// NewLoader creates a Loader. A nil clock uses the real clock and a nil logger
// uses slog.Default().
func NewLoader(fetcher Fetcher, cfg LoaderConfig, clk clock.Clock, logger *slog.Logger) *Loader {
	d := DefaultLoaderConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = d.MaxAttempts
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = d.RetryDelay
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{fetcher: fetcher, clock: clk, cfg: cfg, logger: logger}
}

// Load returns the job's snapshot once it is complete with a payload. It
// makes at most MaxAttempts fetches; when they are spent it returns a
// *LoadError for the last attempt's category. onAttempt may be nil and is
// never called after ctx is done.
func (l *Loader) Load(ctx context.Context, jobID string, onAttempt AttemptFunc) (*analysis.Snapshot, error) {
	var last Attempt
	for n := 1; n <= l.cfg.MaxAttempts; n++ {
		snap, err := l.fetcher.Results(ctx, jobID)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		last = Attempt{
			JobID:       jobID,
			Number:      n,
			MaxAttempts: l.cfg.MaxAttempts,
			Category:    Classify(snap, err),
			Status:      snap.Status(),
			Err:         err,
		}
		if onAttempt != nil {
			onAttempt(last)
		}

		if last.Category == CategoryComplete {
			l.logger.Info("results loaded", "job_id", jobID, "attempt", n)
			return snap, nil
		}

		l.logger.Debug("results not ready",
			"job_id", jobID,
			"attempt", n,
			"max_attempts", l.cfg.MaxAttempts,
			"category", last.Category.String(),
			"error", err,
		)

		if n < l.cfg.MaxAttempts {
			if err := clock.Sleep(ctx, l.clock, l.cfg.RetryDelay); err != nil {
				return nil, err
			}
		}
	}

	loadErr := &LoadError{
		JobID:    jobID,
		Category: last.Category,
		Attempts: last.Number,
		Status:   string(last.Status),
		Err:      last.Err,
	}
	l.logger.Warn("results unavailable", "job_id", jobID, "attempts", last.Number, "error", loadErr.Error())
	return nil, loadErr
}
