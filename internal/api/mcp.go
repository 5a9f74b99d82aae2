package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/waypoint/internal/analysis"
	"github.com/kalambet/waypoint/internal/idea"
	"github.com/kalambet/waypoint/internal/report"
	"github.com/kalambet/waypoint/internal/storage"
	"github.com/kalambet/waypoint/internal/watch"
)

// AnalysisService is the remote service as seen by the MCP tools.
// *analysis.Client satisfies it.
type AnalysisService interface {
	Submit(ctx context.Context, req analysis.SubmitRequest) (string, error)
	Results(ctx context.Context, jobID string) (*analysis.Snapshot, error)
	BaseURL() string
}

// ResultLoader loads the results of a finished job. *watch.Loader satisfies it.
type ResultLoader interface {
	Load(ctx context.Context, jobID string, onAttempt watch.AttemptFunc) (*analysis.Snapshot, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Service AnalysisService
	Loader  ResultLoader
	Ledger  *storage.Store // optional; if nil, jobs are not recorded and list_jobs fails
}

// NewMCPServer creates an MCP server with all waypoint tools registered.
func NewMCPServer(deps MCPDeps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"waypoint",
		version,
		server.WithToolCapabilities(true),
		server.WithInstructions("waypoint: submit product ideas for market analysis and fetch the resulting reports."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("submit_analysis",
			mcp.WithDescription("Submit a product idea for market analysis. Returns the job id to check later."),
			mcp.WithString("product_idea", mcp.Description("Description of the product, at least 10 characters"), mcp.Required()),
			mcp.WithString("email", mcp.Description("Email address the report is associated with"), mcp.Required()),
			mcp.WithString("tier", mcp.Description("prelaunch (default) or postlaunch")),
		),
		mcpSubmitAnalysis(deps),
	)

	s.AddTool(
		mcp.NewTool("check_job",
			mcp.WithDescription("Read the current status and progress of an analysis job once."),
			mcp.WithString("job_id", mcp.Description("Job id returned by submit_analysis"), mcp.Required()),
		),
		mcpCheckJob(deps),
	)

	s.AddTool(
		mcp.NewTool("get_results",
			mcp.WithDescription("Load the report of a completed analysis job, retrying briefly while the payload becomes readable."),
			mcp.WithString("job_id", mcp.Description("Job id returned by submit_analysis"), mcp.Required()),
			mcp.WithString("format", mcp.Description("text (default) or json")),
		),
		mcpGetResults(deps),
	)

	s.AddTool(
		mcp.NewTool("list_jobs",
			mcp.WithDescription("List analysis jobs submitted from this machine, most recent first."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of jobs (default 10)")),
		),
		mcpListJobs(deps),
	)

	return s
}

func mcpSubmitAnalysis(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		productIdea, err := req.RequireString("product_idea")
		if err != nil {
			return mcpError("product_idea is required"), nil
		}
		email, err := req.RequireString("email")
		if err != nil {
			return mcpError("email is required"), nil
		}

		submit, err := idea.ValidateForm(idea.Form{
			ProductIdea: productIdea,
			Email:       email,
			Tier:        req.GetString("tier", ""),
		})
		if err != nil {
			return mcpError(err.Error()), nil
		}

		jobID, err := deps.Service.Submit(ctx, submit)
		if err != nil {
			return mcpError(fmt.Sprintf("submit failed: %v", err)), nil
		}

		if deps.Ledger != nil {
			rec := storage.Job{
				ID:          jobID,
				ServiceURL:  deps.Service.BaseURL(),
				ProductIdea: submit.ProductIdea,
				Tier:        string(submit.Tier),
				Email:       submit.Email,
			}
			if err := deps.Ledger.SaveJob(rec); err != nil {
				return mcpText(fmt.Sprintf("Submitted job %s (not recorded locally: %v)", jobID, err)), nil
			}
		}

		return mcpText(fmt.Sprintf("Submitted job %s", jobID)), nil
	}
}

type jobStatus struct {
	JobID      string   `json:"job_id"`
	Found      bool     `json:"found"`
	Status     string   `json:"status,omitempty"`
	Progress   *float64 `json:"progress,omitempty"`
	Stage      string   `json:"stage,omitempty"`
	ETAMinutes *int     `json:"eta_minutes,omitempty"`
	Ready      bool     `json:"ready"`
	Error      string   `json:"error,omitempty"`
}

func mcpCheckJob(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jobID, err := req.RequireString("job_id")
		if err != nil {
			return mcpError("job_id is required"), nil
		}

		snap, err := deps.Service.Results(ctx, jobID)
		if err != nil {
			return mcpError(fmt.Sprintf("status check failed: %v", err)), nil
		}

		out := jobStatus{
			JobID:  jobID,
			Found:  snap.Success,
			Status: string(snap.Status()),
			Ready:  snap.Ready(),
			Error:  snap.ErrorMessage(),
		}
		if p, ok := snap.Progress(); ok {
			eta := watch.EstimatedMinutesRemaining(p)
			out.Progress = &p
			out.Stage = watch.StageFor(p)
			out.ETAMinutes = &eta
		}
		recordStatus(deps, jobID, snap)

		b, err := json.Marshal(out)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal status: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpGetResults(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jobID, err := req.RequireString("job_id")
		if err != nil {
			return mcpError("job_id is required"), nil
		}
		format := req.GetString("format", "text")
		if format != "text" && format != "json" {
			return mcpError(fmt.Sprintf("unsupported format %q", format)), nil
		}

		snap, err := deps.Loader.Load(ctx, jobID, nil)
		if err != nil {
			var le *watch.LoadError
			if errors.As(err, &le) && deps.Ledger != nil {
				_ = deps.Ledger.UpdateJobStatus(jobID, storage.StatusUpdate{Status: le.Status, LastError: le.Error()})
			}
			return mcpError(err.Error()), nil
		}
		recordStatus(deps, jobID, snap)

		productIdea := snap.Data.ProductIdea
		if format == "json" {
			sections, err := report.Sections(snap.Data.Analysis)
			if err != nil {
				return mcpError(fmt.Sprintf("invalid analysis payload: %v", err)), nil
			}
			type section struct {
				Key   string `json:"key"`
				Label string `json:"label"`
				Body  string `json:"body"`
			}
			out := struct {
				JobID       string    `json:"job_id"`
				ProductIdea string    `json:"product_idea"`
				Sections    []section `json:"sections"`
			}{JobID: jobID, ProductIdea: productIdea}
			for _, s := range sections {
				out.Sections = append(out.Sections, section{Key: s.Key, Label: s.Label(), Body: s.Body})
			}
			b, err := json.Marshal(out)
			if err != nil {
				return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
			}
			return mcpText(string(b)), nil
		}

		text, err := report.Text(productIdea, snap.Data.Analysis)
		if err != nil {
			return mcpError(fmt.Sprintf("invalid analysis payload: %v", err)), nil
		}
		return mcpText(string(text)), nil
	}
}

func mcpListJobs(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Ledger == nil {
			return mcpError("local job ledger not available"), nil
		}

		limit := req.GetInt("limit", 10)
		if limit <= 0 {
			limit = 10
		}
		if limit > 100 {
			limit = 100
		}

		jobs, err := deps.Ledger.ListJobs(limit)
		if err != nil {
			return mcpError(fmt.Sprintf("listing jobs failed: %v", err)), nil
		}

		type jobSummary struct {
			JobID       string   `json:"job_id"`
			ProductIdea string   `json:"product_idea"`
			Status      string   `json:"status"`
			Progress    *float64 `json:"progress,omitempty"`
			SubmittedAt string   `json:"submitted_at"`
			UpdatedAt   string   `json:"updated_at"`
		}

		summaries := make([]jobSummary, len(jobs))
		for i, j := range jobs {
			productIdea := j.ProductIdea
			if utf8.RuneCountInString(productIdea) > 200 {
				runes := []rune(productIdea)
				productIdea = string(runes[:200]) + "..."
			}
			summaries[i] = jobSummary{
				JobID:       j.ID,
				ProductIdea: productIdea,
				Status:      j.Status,
				Progress:    j.Progress,
				SubmittedAt: j.SubmittedAt.Format(time.RFC3339),
				UpdatedAt:   j.UpdatedAt.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal jobs: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

// recordStatus mirrors a fresh snapshot into the ledger, ignoring jobs that
// were not submitted from this machine.
func recordStatus(deps MCPDeps, jobID string, snap *analysis.Snapshot) {
	if deps.Ledger == nil || !snap.Success || snap.Status() == "" {
		return
	}
	u := storage.StatusUpdate{Status: string(snap.Status()), LastError: snap.ErrorMessage()}
	if p, ok := snap.Progress(); ok {
		u.Progress = &p
	}
	_ = deps.Ledger.UpdateJobStatus(jobID, u)
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
