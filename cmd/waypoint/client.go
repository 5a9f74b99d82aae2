package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/kalambet/waypoint/internal/analysis"
	"github.com/kalambet/waypoint/internal/config"
	"github.com/kalambet/waypoint/internal/storage"
	"github.com/kalambet/waypoint/internal/watch"
)

// app bundles what the commands share: config, the service client and the
// local job ledger.
type app struct {
	cfg    config.Config
	client *analysis.Client
	ledger *storage.Store // nil if the ledger could not be opened
	logger *slog.Logger
}

var loadConfig = config.Load

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	logger := setupLogging(cfg.Log.Level)

	a := &app{
		cfg:    cfg,
		client: analysis.New(cfg.Service.BaseURL, cfg.Service.Token, cfg.Service.Timeout),
		logger: logger,
	}

	ledger, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		printWarning("job ledger unavailable: %v", err)
	} else {
		a.ledger = ledger
	}
	return a, nil
}

func setupLogging(level string) *slog.Logger {
	logLevel := slog.LevelInfo
	if strings.EqualFold(level, "debug") {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
	return logger
}

func (a *app) close() {
	if a.ledger == nil {
		return
	}
	if err := a.ledger.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: closing ledger: %v\n", err)
	}
}

func (a *app) controller() *watch.Controller {
	return watch.NewController(a.client, watch.VerifyConfig{
		PollInterval: a.cfg.Poll.Interval,
		SettleDelay:  a.cfg.Verify.SettleDelay,
		RetryDelay:   a.cfg.Verify.RetryDelay,
		MaxAttempts:  a.cfg.Verify.MaxAttempts,
	}, nil, a.logger)
}

func (a *app) loader() *watch.Loader {
	return watch.NewLoader(a.client, watch.LoaderConfig{
		MaxAttempts: a.cfg.Loader.MaxAttempts,
		RetryDelay:  a.cfg.Loader.RetryDelay,
	}, nil, a.logger)
}

// recordSubmission adds a freshly submitted job to the ledger.
func (a *app) recordSubmission(jobID string, req analysis.SubmitRequest) {
	if a.ledger == nil {
		return
	}
	err := a.ledger.SaveJob(storage.Job{
		ID:          jobID,
		ServiceURL:  a.client.BaseURL(),
		ProductIdea: req.ProductIdea,
		Tier:        string(req.Tier),
		Email:       req.Email,
	})
	if err != nil {
		printWarning("could not record job %s: %v", jobID, err)
	}
}

// recordStatus stores the last known state of a job. Jobs submitted from
// elsewhere are not in the ledger and are skipped.
func (a *app) recordStatus(jobID string, u storage.StatusUpdate) {
	if a.ledger == nil {
		return
	}
	if err := a.ledger.UpdateJobStatus(jobID, u); err != nil && !errors.Is(err, storage.ErrNotFound) {
		a.logger.Warn("updating job ledger", "job_id", jobID, "error", err)
	}
}

func (a *app) recordSnapshot(jobID string, snap *analysis.Snapshot) {
	if !snap.Success || snap.Status() == "" {
		return
	}
	u := storage.StatusUpdate{Status: string(snap.Status()), LastError: snap.ErrorMessage()}
	if p, ok := snap.Progress(); ok {
		u.Progress = &p
	}
	a.recordStatus(jobID, u)
}

// loadResults runs the bounded-retry loader, reporting retries as it goes.
func (a *app) loadResults(ctx context.Context, jobID string) (*analysis.Snapshot, error) {
	snap, err := a.loader().Load(ctx, jobID, func(at watch.Attempt) {
		if at.Retrying() {
			printStep("Results not ready (%s), retrying (%d/%d)", at.Category, at.Number, at.MaxAttempts)
		}
	})
	if err != nil {
		var le *watch.LoadError
		if errors.As(err, &le) {
			a.recordStatus(jobID, storage.StatusUpdate{Status: le.Status, LastError: le.Error()})
		}
		return nil, err
	}
	a.recordSnapshot(jobID, snap)
	return snap, nil
}
