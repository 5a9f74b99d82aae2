package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/waypoint/internal/analysis"
	"github.com/kalambet/waypoint/internal/config"
	"github.com/kalambet/waypoint/internal/idea"
	"github.com/kalambet/waypoint/internal/report"
	"github.com/kalambet/waypoint/internal/storage"
	"github.com/kalambet/waypoint/internal/watch"
)

// --- analyze ---

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Submit a product idea and follow it to the report",
	Long: `Submit a product idea for market analysis.

The idea comes from --idea, a text or PDF file (--file), or a landing page
(--url). Unless --no-watch is given, the job is watched until the report is
ready and then printed.

Examples:
  waypoint analyze --idea "A subscription box for rare houseplants" --email me@example.com
  waypoint analyze --file ./pitch.pdf --tier postlaunch --email me@example.com
  waypoint analyze --url https://example.com --email me@example.com --no-watch`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text, _ := cmd.Flags().GetString("idea")
		file, _ := cmd.Flags().GetString("file")
		pageURL, _ := cmd.Flags().GetString("url")
		tier, _ := cmd.Flags().GetString("tier")
		email, _ := cmd.Flags().GetString("email")
		noWatch, _ := cmd.Flags().GetBool("no-watch")

		if text == "" && file == "" && pageURL == "" {
			return fmt.Errorf("one of --idea, --file, or --url is required")
		}

		ctx := cmd.Context()
		productIdea, err := readIdea(ctx, text, file, pageURL)
		if err != nil {
			return err
		}

		req, err := idea.ValidateForm(idea.Form{ProductIdea: productIdea, Tier: tier, Email: email})
		if err != nil {
			var ve *idea.ValidationError
			if errors.As(err, &ve) {
				for _, fe := range ve.Fields {
					printError("%s: %s", fe.Field, fe.Message)
				}
			}
			return err
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		printStep("Submitting analysis to %s", a.client.BaseURL())
		jobID, err := a.client.Submit(ctx, req)
		if err != nil {
			return err
		}
		a.recordSubmission(jobID, req)
		printSuccess("Analysis started: %s", jobID)

		if noWatch {
			fmt.Fprintln(cmd.OutOrStdout(), jobID)
			printStep("Follow it with: waypoint watch %s", jobID)
			return nil
		}
		return followJob(ctx, cmd.OutOrStdout(), a, jobID)
	},
}

func init() {
	analyzeCmd.Flags().String("idea", "", "product idea text")
	analyzeCmd.Flags().String("file", "", "read the product idea from a text or PDF file")
	analyzeCmd.Flags().String("url", "", "read the product idea from a landing page")
	analyzeCmd.Flags().String("tier", string(analysis.TierPrelaunch), "analysis tier: prelaunch or postlaunch")
	analyzeCmd.Flags().String("email", "", "email address for the report")
	analyzeCmd.Flags().Bool("no-watch", false, "print the job id and exit without watching")
}

func readIdea(ctx context.Context, text, file, pageURL string) (string, error) {
	switch {
	case text != "":
		return text, nil
	case file != "":
		return idea.FromFile(file)
	default:
		return idea.FromURL(ctx, &http.Client{Timeout: 15 * time.Second}, pageURL)
	}
}

// --- watch ---

var watchCmd = &cobra.Command{
	Use:   "watch <job-id>",
	Short: "Watch a submitted job until its report is ready",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		return followJob(cmd.Context(), cmd.OutOrStdout(), a, args[0])
	},
}

// followJob watches jobID through verification, then loads and prints the
// report.
func followJob(ctx context.Context, out io.Writer, a *app, jobID string) error {
	tr := a.controller().Watch(ctx, jobID, progressPrinter(a, jobID))
	final, err := tr.Wait(ctx)
	if err != nil {
		tr.Cancel()
		return err
	}

	switch final.State {
	case watch.StateCommitted:
		printSuccess("Results verified")
	case watch.StateCommittedUnverified:
		printWarning("Results not confirmed after %d checks, loading anyway", final.Attempt)
	case watch.StateFailed:
		a.recordStatus(jobID, storage.StatusUpdate{Status: string(analysis.StatusFailed), LastError: final.Err.Error()})
		printError("%v", final.Err)
		printStep("Submit the idea again with: waypoint analyze")
		return final.Err
	default:
		if err := ctx.Err(); err != nil {
			return err
		}
		return fmt.Errorf("watching %s stopped in state %s", jobID, final.State)
	}

	snap, err := a.loadResults(ctx, jobID)
	if err != nil {
		return err
	}
	return writeReport(out, "text", jobID, snap)
}

// progressPrinter reports controller updates, printing a progress line only
// when the stage or rounded percentage changes.
func progressPrinter(a *app, jobID string) watch.StateObserver {
	var lastLine string
	return watch.StateObserverFunc(func(u watch.Update) {
		switch u.State {
		case watch.StateWatching:
			if u.Snapshot == nil {
				return
			}
			a.recordSnapshot(jobID, u.Snapshot)
			line := progressLine(u.Snapshot)
			if line != "" && line != lastLine {
				printStep("%s", line)
				lastLine = line
			}
		case watch.StateCompletionSignaled:
			printSuccess("%s", watch.CompletionLabel)
		case watch.StateVerifying:
			printStep("Confirming results are readable (%d/%d)", u.Attempt, u.MaxAttempts)
		}
	})
}

func progressLine(snap *analysis.Snapshot) string {
	if snap.Status() == analysis.StatusQueued {
		return "Queued"
	}
	p, ok := snap.Progress()
	if !ok {
		return ""
	}
	eta := watch.EstimatedMinutesRemaining(p)
	if eta == 0 {
		return fmt.Sprintf("%3.0f%% %s", p, watch.StageFor(p))
	}
	return fmt.Sprintf("%3.0f%% %s (about %d min left)", p, watch.StageFor(p), eta)
}

// --- results ---

var resultsCmd = &cobra.Command{
	Use:   "results <job-id>",
	Short: "Print the report of a finished job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		if !validFormat(format) {
			return fmt.Errorf("unsupported format %q (want text, json, or yaml)", format)
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		snap, err := a.loadResults(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return writeReport(cmd.OutOrStdout(), format, args[0], snap)
	},
}

func init() {
	resultsCmd.Flags().String("format", "text", "output format: text, json, or yaml")
}

func validFormat(format string) bool {
	return format == "text" || format == "json" || format == "yaml"
}

type reportSection struct {
	Key   string `json:"key" yaml:"key"`
	Label string `json:"label" yaml:"label"`
	Body  string `json:"body" yaml:"body"`
}

type reportDoc struct {
	JobID       string          `json:"job_id" yaml:"job_id"`
	ProductIdea string          `json:"product_idea" yaml:"product_idea"`
	Sections    []reportSection `json:"sections" yaml:"sections"`
}

func writeReport(w io.Writer, format, jobID string, snap *analysis.Snapshot) error {
	if format == "text" {
		text, err := report.Text(snap.Data.ProductIdea, snap.Data.Analysis)
		if err != nil {
			return fmt.Errorf("rendering report: %w", err)
		}
		_, err = w.Write(text)
		return err
	}

	sections, err := report.Sections(snap.Data.Analysis)
	if err != nil {
		return fmt.Errorf("rendering report: %w", err)
	}
	doc := reportDoc{JobID: jobID, ProductIdea: snap.Data.ProductIdea}
	for _, s := range sections {
		doc.Sections = append(doc.Sections, reportSection{Key: s.Key, Label: s.Label(), Body: s.Body})
	}

	switch format {
	case "json":
		return writeJSON(w, doc)
	case "yaml":
		return writeYAML(w, doc)
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status <job-id>...",
	Short: "Read the current status of one or more jobs",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		rows := checkJobs(cmd.Context(), a, args)
		out := cmd.OutOrStdout()
		for _, r := range rows {
			fmt.Fprintf(out, "%s  %s\n", colorize(colorCyan, r.jobID), r.line)
		}
		return nil
	},
}

type statusRow struct {
	jobID string
	line  string
}

// checkJobs reads every job once, concurrently. A failed read becomes that
// job's row rather than failing the whole command.
func checkJobs(ctx context.Context, a *app, ids []string) []statusRow {
	rows := make([]statusRow, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, id := range ids {
		g.Go(func() error {
			rows[i] = statusRow{jobID: id, line: describeJob(gctx, a, id)}
			return nil
		})
	}
	_ = g.Wait()
	return rows
}

func describeJob(ctx context.Context, a *app, jobID string) string {
	snap, err := a.client.Results(ctx, jobID)
	if err != nil {
		return colorize(colorRed, err.Error())
	}
	if !snap.Success {
		return colorize(colorYellow, "not found")
	}
	a.recordSnapshot(jobID, snap)

	switch snap.Status() {
	case analysis.StatusFailed:
		msg := snap.ErrorMessage()
		if msg == "" {
			msg = "no reason given"
		}
		return colorize(colorRed, "failed: "+msg)
	case analysis.StatusComplete:
		if snap.HasAnalysis() {
			return colorize(colorGreen, "complete")
		}
		return colorize(colorGreen, "complete (report not readable yet)")
	case "":
		return "unknown"
	}
	if line := progressLine(snap); line != "" {
		return string(snap.Status()) + "  " + line
	}
	return string(snap.Status())
}

// --- export ---

var exportCmd = &cobra.Command{
	Use:   "export <job-id>",
	Short: "Save the report of a finished job as a text or Excel file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jobID := args[0]
		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")
		if format != "txt" && format != "xlsx" {
			return fmt.Errorf("unsupported format %q (want txt or xlsx)", format)
		}
		if output == "" {
			output = report.Filename(jobID, format)
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		snap, err := a.loadResults(cmd.Context(), jobID)
		if err != nil {
			return err
		}

		var data []byte
		if format == "xlsx" {
			data, err = report.XLSX(jobID, snap.Data.ProductIdea, snap.Data.Analysis)
		} else {
			data, err = report.Text(snap.Data.ProductIdea, snap.Data.Analysis)
		}
		if err != nil {
			return fmt.Errorf("rendering report: %w", err)
		}

		if err := os.WriteFile(output, data, 0o644); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
		printSuccess("Report saved to %s", output)
		return nil
	},
}

func init() {
	exportCmd.Flags().String("format", "txt", "file format: txt or xlsx")
	exportCmd.Flags().String("output", "", "output path (default: waypoint-analysis-<job-id>.<format>)")
}

// --- health ---

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the analysis service is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		if !a.client.Health(cmd.Context()) {
			printStatus("Service", "unreachable at %s", a.client.BaseURL())
			return fmt.Errorf("analysis service at %s is not reachable", a.client.BaseURL())
		}
		printStatus("Service", "reachable at %s", a.client.BaseURL())
		return nil
	},
}

// --- jobs ---

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage jobs submitted from this machine",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()
		if a.ledger == nil {
			return fmt.Errorf("job ledger unavailable")
		}

		jobs, err := a.ledger.ListJobs(limit)
		if err != nil {
			return fmt.Errorf("listing jobs: %w", err)
		}
		out := cmd.OutOrStdout()
		if len(jobs) == 0 {
			fmt.Fprintln(out, "No jobs found.")
			return nil
		}

		for _, j := range jobs {
			status := j.Status
			if j.Progress != nil && j.Status == string(analysis.StatusProcessing) {
				status = fmt.Sprintf("%s %.0f%%", status, *j.Progress)
			}
			fmt.Fprintf(out, "%s  %-16s  %-14s  %s\n",
				colorize(colorCyan, j.ID),
				status,
				humanize.Time(j.UpdatedAt),
				truncate(j.ProductIdea, 60),
			)
		}
		return nil
	},
}

var jobsForgetCmd = &cobra.Command{
	Use:   "forget <job-id>",
	Short: "Remove a job from the local list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()
		if a.ledger == nil {
			return fmt.Errorf("job ledger unavailable")
		}

		if err := a.ledger.DeleteJob(args[0]); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("job %s is not in the local list", args[0])
			}
			return err
		}
		printSuccess("Forgot job %s", args[0])
		return nil
	},
}

func init() {
	jobsListCmd.Flags().Int("limit", 20, "maximum number of jobs to list")
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsForgetCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(out, "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
