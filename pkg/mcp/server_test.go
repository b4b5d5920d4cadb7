package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/pario-ai/llmgate/pkg/models"
)

// fakeTracker implements tracker.Tracker for testing.
type fakeTracker struct {
	summaries []models.AttemptSummary
	records   []models.AttemptRecord

	lastUser  string
	lastLimit int
	lastSince time.Time
}

func (f *fakeTracker) Record(_ context.Context, _ models.AttemptRecord) error { return nil }
func (f *fakeTracker) Recent(_ context.Context, username string, limit int) ([]models.AttemptRecord, error) {
	f.lastUser, f.lastLimit = username, limit
	return f.records, nil
}
func (f *fakeTracker) QueryByUser(_ context.Context, username string, since time.Time) ([]models.AttemptRecord, error) {
	f.lastUser, f.lastSince = username, since
	return f.records, nil
}
func (f *fakeTracker) Summary(_ context.Context, username string) ([]models.AttemptSummary, error) {
	f.lastUser = username
	return f.summaries, nil
}
func (f *fakeTracker) Cleanup(_ context.Context, _ time.Time) (int64, error) { return 0, nil }
func (f *fakeTracker) Close() error                                       { return nil }

func sendAndReceive(t *testing.T, srv *Server, req Request) Response {
	t.Helper()
	line, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	line = append(line, '\n')

	var out bytes.Buffer
	if err := srv.Run(context.Background(), bytes.NewReader(line), &out); err != nil {
		t.Fatal(err)
	}

	var resp Response
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v\nraw: %s", err, out.String())
	}
	return resp
}

func callTool(t *testing.T, srv *Server, name, args string) ToolCallResult {
	t.Helper()
	params, _ := json.Marshal(ToolCallParams{Name: name, Arguments: json.RawMessage(args)})
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`7`),
		Method:  "tools/call",
		Params:  params,
	})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}
	data, _ := json.Marshal(resp.Result)
	var result ToolCallResult
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatal(err)
	}
	return result
}

func TestInitialize(t *testing.T) {
	srv := New(&fakeTracker{}, "test", nil)
	resp := sendAndReceive(t, srv, Request{JSONRPC: "2.0", ID: json.RawMessage(`1`), Method: "initialize"})

	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}
	data, _ := json.Marshal(resp.Result)
	var result InitializeResult
	_ = json.Unmarshal(data, &result)

	if result.ProtocolVersion != "2024-11-05" {
		t.Errorf("protocol version = %s, want 2024-11-05", result.ProtocolVersion)
	}
	if result.ServerInfo.Name != "llmgate" || result.ServerInfo.Version != "test" {
		t.Errorf("unexpected server info: %+v", result.ServerInfo)
	}
}

func TestToolsList(t *testing.T) {
	srv := New(&fakeTracker{}, "test", nil)
	resp := sendAndReceive(t, srv, Request{JSONRPC: "2.0", ID: json.RawMessage(`2`), Method: "tools/list"})

	data, _ := json.Marshal(resp.Result)
	var result ToolsListResult
	_ = json.Unmarshal(data, &result)

	if len(result.Tools) != len(toolHandlers) {
		t.Errorf("got %d tools, want %d", len(result.Tools), len(toolHandlers))
	}
	for _, tool := range result.Tools {
		if _, ok := toolHandlers[tool.Name]; !ok {
			t.Errorf("tool %s has no handler", tool.Name)
		}
	}
}

func TestNotificationHasNoResponse(t *testing.T) {
	srv := New(&fakeTracker{}, "test", nil)
	var out bytes.Buffer
	in := strings.NewReader(`{"jsonrpc":"2.0","method":"notifications/initialized"}` + "\n")
	if err := srv.Run(context.Background(), in, &out); err != nil {
		t.Fatal(err)
	}
	if out.Len() != 0 {
		t.Errorf("expected no output, got %s", out.String())
	}
}

func TestParseAndMethodErrors(t *testing.T) {
	srv := New(&fakeTracker{}, "test", nil)

	var out bytes.Buffer
	if err := srv.Run(context.Background(), strings.NewReader("{oops\n"), &out); err != nil {
		t.Fatal(err)
	}
	var resp Response
	_ = json.Unmarshal(out.Bytes(), &resp)
	if resp.Error == nil || resp.Error.Code != CodeParseError {
		t.Errorf("expected parse error, got %+v", resp)
	}

	resp = sendAndReceive(t, srv, Request{JSONRPC: "2.0", ID: json.RawMessage(`3`), Method: "resources/list"})
	if resp.Error == nil || resp.Error.Code != CodeMethodNotFound {
		t.Errorf("expected method not found, got %+v", resp)
	}
}

func TestSummaryTool(t *testing.T) {
	ft := &fakeTracker{summaries: []models.AttemptSummary{
		{Username: "demo", RequestCount: 4, Successful: 3, Failed: 1, CacheHits: 2, AverageLatencyMs: 120.5},
	}}
	srv := New(ft, "test", nil)

	result := callTool(t, srv, "llmgate_history_summary", `{"username":"demo"}`)
	if result.IsError {
		t.Fatalf("unexpected tool error: %+v", result)
	}
	text := result.Content[0].Text
	if !strings.Contains(text, "demo") || !strings.Contains(text, "120.50") {
		t.Errorf("unexpected summary text:\n%s", text)
	}
	if ft.lastUser != "demo" {
		t.Errorf("username filter not passed through: %q", ft.lastUser)
	}
}

func TestRecentToolDefaultsLimit(t *testing.T) {
	ft := &fakeTracker{records: []models.AttemptRecord{
		{Username: "demo", Outcome: models.OutcomeCacheHit, CreatedAt: time.Now()},
	}}
	srv := New(ft, "test", nil)

	result := callTool(t, srv, "llmgate_recent_attempts", `{}`)
	if !strings.Contains(result.Content[0].Text, "cache_hit") {
		t.Errorf("unexpected attempts text:\n%s", result.Content[0].Text)
	}
	if ft.lastLimit != 20 {
		t.Errorf("expected default limit 20, got %d", ft.lastLimit)
	}
}

func TestUserAttemptsTool(t *testing.T) {
	ft := &fakeTracker{}
	srv := New(ft, "test", nil)

	if result := callTool(t, srv, "llmgate_user_attempts", `{}`); !result.IsError {
		t.Error("expected error without username")
	}
	if result := callTool(t, srv, "llmgate_user_attempts", `{"username":"demo","since":"yesterday"}`); !result.IsError {
		t.Error("expected error for bad date")
	}

	result := callTool(t, srv, "llmgate_user_attempts", `{"username":"demo","since":"2024-03-01"}`)
	if result.IsError {
		t.Fatalf("unexpected error: %+v", result)
	}
	if result.Content[0].Text != "No attempts found." {
		t.Errorf("unexpected text: %s", result.Content[0].Text)
	}
	if want := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC); !ft.lastSince.Equal(want) {
		t.Errorf("since = %v, want %v", ft.lastSince, want)
	}
}

func TestUnknownTool(t *testing.T) {
	srv := New(&fakeTracker{}, "test", nil)
	if result := callTool(t, srv, "nope", `{}`); !result.IsError {
		t.Error("expected error result for unknown tool")
	}
}
