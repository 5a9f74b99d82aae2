package api

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/waypoint/internal/analysis"
	"github.com/kalambet/waypoint/internal/storage"
	"github.com/kalambet/waypoint/internal/watch"
)

// --- mocks ---

type mockService struct {
	jobID     string
	submitErr error
	submitted []analysis.SubmitRequest
	snap      *analysis.Snapshot
	resultErr error
}

func (m *mockService) Submit(_ context.Context, req analysis.SubmitRequest) (string, error) {
	m.submitted = append(m.submitted, req)
	return m.jobID, m.submitErr
}

func (m *mockService) Results(_ context.Context, _ string) (*analysis.Snapshot, error) {
	return m.snap, m.resultErr
}

func (m *mockService) BaseURL() string { return "http://analysis.test" }

type mockLoader struct {
	snap *analysis.Snapshot
	err  error
}

func (m *mockLoader) Load(_ context.Context, _ string, _ watch.AttemptFunc) (*analysis.Snapshot, error) {
	return m.snap, m.err
}

// --- helpers ---

func newTestMCPDeps(t *testing.T) (MCPDeps, *mockService, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	svc := &mockService{jobID: "job-42"}
	return MCPDeps{
		Service: svc,
		Loader:  &mockLoader{},
		Ledger:  store,
	}, svc, store
}

func completeSnapshot() *analysis.Snapshot {
	p := 100.0
	return &analysis.Snapshot{Success: true, Data: &analysis.JobData{
		Status:      analysis.StatusComplete,
		Progress:    &p,
		ProductIdea: "A subscription box for rare houseplants",
		Analysis:    json.RawMessage(`{"overview":"Niche but loyal.","pricing_strategy":"Premium tier."}`),
	}}
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// --- tests ---

func TestMCPTool_SubmitAnalysis(t *testing.T) {
	deps, svc, store := newTestMCPDeps(t)
	handler := mcpSubmitAnalysis(deps)

	req := makeCallToolRequest("submit_analysis", map[string]interface{}{
		"product_idea": "  A subscription box for rare houseplants  ",
		"email":        "founder@example.com",
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	if text := toolText(t, result); !strings.Contains(text, "job-42") {
		t.Fatalf("expected job id in response, got: %s", text)
	}

	if len(svc.submitted) != 1 {
		t.Fatalf("expected 1 submission, got %d", len(svc.submitted))
	}
	if svc.submitted[0].Tier != analysis.TierPrelaunch {
		t.Errorf("Tier = %q, want prelaunch default", svc.submitted[0].Tier)
	}

	job, err := store.GetJob("job-42")
	if err != nil {
		t.Fatalf("job not recorded: %v", err)
	}
	if job.ServiceURL != "http://analysis.test" {
		t.Errorf("ServiceURL = %q", job.ServiceURL)
	}
	if job.Status != "queued" {
		t.Errorf("Status = %q, want queued", job.Status)
	}
}

func TestMCPTool_SubmitAnalysis_Invalid(t *testing.T) {
	deps, svc, _ := newTestMCPDeps(t)
	handler := mcpSubmitAnalysis(deps)

	req := makeCallToolRequest("submit_analysis", map[string]interface{}{
		"product_idea": "short",
		"email":        "not-an-email",
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result for invalid form")
	}
	if len(svc.submitted) != 0 {
		t.Errorf("invalid form was submitted")
	}
}

func TestMCPTool_SubmitAnalysis_ServiceError(t *testing.T) {
	deps, svc, _ := newTestMCPDeps(t)
	svc.submitErr = &analysis.ServiceError{StatusCode: 503, Message: "Service busy"}
	handler := mcpSubmitAnalysis(deps)

	req := makeCallToolRequest("submit_analysis", map[string]interface{}{
		"product_idea": "A subscription box for rare houseplants",
		"email":        "founder@example.com",
	})

	result, _ := handler(context.Background(), req)
	if !result.IsError {
		t.Fatal("expected error result")
	}
	if text := toolText(t, result); !strings.Contains(text, "Service busy (HTTP 503)") {
		t.Errorf("unexpected message: %s", text)
	}
}

func TestMCPTool_CheckJob(t *testing.T) {
	deps, svc, store := newTestMCPDeps(t)
	if err := store.SaveJob(storage.Job{ID: "job-42", ProductIdea: "idea"}); err != nil {
		t.Fatalf("SaveJob: %v", err)
	}
	p := 50.0
	svc.snap = &analysis.Snapshot{Success: true, Data: &analysis.JobData{Status: analysis.StatusProcessing, Progress: &p}}
	handler := mcpCheckJob(deps)

	result, err := handler(context.Background(), makeCallToolRequest("check_job", map[string]interface{}{"job_id": "job-42"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var got jobStatus
	if err := json.Unmarshal([]byte(toolText(t, result)), &got); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if got.Status != "processing" || !got.Found || got.Ready {
		t.Errorf("got %+v", got)
	}
	if got.Stage != "Analyzing market signals..." {
		t.Errorf("Stage = %q, want %q", got.Stage, "Analyzing market signals...")
	}
	if got.ETAMinutes == nil || *got.ETAMinutes != 25 {
		t.Errorf("ETAMinutes = %v, want 25", got.ETAMinutes)
	}

	job, _ := store.GetJob("job-42")
	if job.Status != "processing" || job.Progress == nil || *job.Progress != 50 {
		t.Errorf("ledger not updated: %+v", job)
	}
}

func TestMCPTool_CheckJob_Rejected(t *testing.T) {
	deps, svc, _ := newTestMCPDeps(t)
	svc.snap = &analysis.Snapshot{Success: false}
	handler := mcpCheckJob(deps)

	result, _ := handler(context.Background(), makeCallToolRequest("check_job", map[string]interface{}{"job_id": "nope"}))
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	var got jobStatus
	json.Unmarshal([]byte(toolText(t, result)), &got)
	if got.Found {
		t.Errorf("Found = true for rejected read")
	}
}

func TestMCPTool_CheckJob_MissingID(t *testing.T) {
	deps, _, _ := newTestMCPDeps(t)
	result, _ := mcpCheckJob(deps)(context.Background(), makeCallToolRequest("check_job", map[string]interface{}{}))
	if !result.IsError {
		t.Fatal("expected error for missing job_id")
	}
}

func TestMCPTool_GetResults_Text(t *testing.T) {
	deps, _, _ := newTestMCPDeps(t)
	deps.Loader = &mockLoader{snap: completeSnapshot()}

	result, err := mcpGetResults(deps)(context.Background(), makeCallToolRequest("get_results", map[string]interface{}{"job_id": "job-42"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	text := toolText(t, result)
	for _, want := range []string{"A subscription box for rare houseplants", "OVERVIEW", "Niche but loyal.", "PRICING STRATEGY"} {
		if !strings.Contains(text, want) {
			t.Errorf("text missing %q:\n%s", want, text)
		}
	}
}

func TestMCPTool_GetResults_JSON(t *testing.T) {
	deps, _, _ := newTestMCPDeps(t)
	deps.Loader = &mockLoader{snap: completeSnapshot()}

	result, _ := mcpGetResults(deps)(context.Background(), makeCallToolRequest("get_results", map[string]interface{}{
		"job_id": "job-42",
		"format": "json",
	}))
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var got struct {
		Sections []struct {
			Key  string `json:"key"`
			Body string `json:"body"`
		} `json:"sections"`
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &got); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(got.Sections) != 2 || got.Sections[0].Key != "overview" || got.Sections[1].Key != "pricing_strategy" {
		t.Errorf("sections = %+v", got.Sections)
	}
}

func TestMCPTool_GetResults_LoadError(t *testing.T) {
	deps, _, store := newTestMCPDeps(t)
	if err := store.SaveJob(storage.Job{ID: "job-42", ProductIdea: "idea", Status: "processing"}); err != nil {
		t.Fatalf("SaveJob: %v", err)
	}
	deps.Loader = &mockLoader{err: &watch.LoadError{JobID: "job-42", Category: watch.CategoryServiceRejected, Attempts: 10}}

	result, _ := mcpGetResults(deps)(context.Background(), makeCallToolRequest("get_results", map[string]interface{}{"job_id": "job-42"}))
	if !result.IsError {
		t.Fatal("expected error result")
	}
	if text := toolText(t, result); text != "Analysis not found after multiple attempts" {
		t.Errorf("unexpected message: %s", text)
	}

	job, _ := store.GetJob("job-42")
	if job.Status != "processing" {
		t.Errorf("Status = %q, want processing kept", job.Status)
	}
	if job.LastError != "Analysis not found after multiple attempts" {
		t.Errorf("LastError = %q", job.LastError)
	}
}

func TestMCPTool_GetResults_BadFormat(t *testing.T) {
	deps, _, _ := newTestMCPDeps(t)
	result, _ := mcpGetResults(deps)(context.Background(), makeCallToolRequest("get_results", map[string]interface{}{
		"job_id": "job-42",
		"format": "pdf",
	}))
	if !result.IsError {
		t.Fatal("expected error for unsupported format")
	}
}

func TestMCPTool_ListJobs(t *testing.T) {
	deps, _, store := newTestMCPDeps(t)
	for _, id := range []string{"a", "b", "c"} {
		if err := store.SaveJob(storage.Job{ID: id, ProductIdea: strings.Repeat("x", 300)}); err != nil {
			t.Fatalf("SaveJob: %v", err)
		}
	}

	result, err := mcpListJobs(deps)(context.Background(), makeCallToolRequest("list_jobs", map[string]interface{}{"limit": 2}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var jobs []struct {
		JobID       string `json:"job_id"`
		ProductIdea string `json:"product_idea"`
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &jobs); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if len(jobs[0].ProductIdea) != 203 {
		t.Errorf("product idea not truncated: %d chars", len(jobs[0].ProductIdea))
	}
}

func TestMCPTool_ListJobs_NoLedger(t *testing.T) {
	deps, _, _ := newTestMCPDeps(t)
	deps.Ledger = nil
	result, _ := mcpListJobs(deps)(context.Background(), makeCallToolRequest("list_jobs", nil))
	if !result.IsError {
		t.Fatal("expected error without a ledger")
	}
}

func TestNewMCPServer(t *testing.T) {
	deps, _, _ := newTestMCPDeps(t)
	if s := NewMCPServer(deps, "test"); s == nil {
		t.Fatal("NewMCPServer returned nil")
	}
}
