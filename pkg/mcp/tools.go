package mcp

import (
	"context"
	"encoding/json"
	"time"
)

type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

var toolHandlers = map[string]toolHandler{
	"llmgate_history_summary": handleSummary,
	"llmgate_recent_attempts": handleRecent,
	"llmgate_user_attempts":   handleUserAttempts,
}

var usernameProperty = map[string]any{
	"type":        "string",
	"description": "Filter by username (optional, omit for all users)",
}

var toolDefinitions = []ToolDefinition{
	{
		Name:        "llmgate_history_summary",
		Description: "Per-user inference totals: requests, successes, failures, cache hits and mean latency.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"username": usernameProperty},
		},
	},
	{
		Name:        "llmgate_recent_attempts",
		Description: "Most recent inference attempts, newest first.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"username": usernameProperty,
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum attempts to return (default 20)",
				},
			},
		},
	},
	{
		Name:        "llmgate_user_attempts",
		Description: "All inference attempts for one user since a date.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"username"},
			"properties": map[string]any{
				"username": map[string]any{
					"type":        "string",
					"description": "The user to inspect",
				},
				"since": map[string]any{
					"type":        "string",
					"description": "Start date in YYYY-MM-DD format (optional, defaults to 24 hours ago)",
				},
			},
		},
	},
}

type historyArgs struct {
	Username string `json:"username"`
	Limit    int    `json:"limit"`
	Since    string `json:"since"`
}

func parseArgs(raw json.RawMessage) historyArgs {
	var args historyArgs
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &args)
	}
	return args
}

func textResult(text string) ToolCallResult {
	return ToolCallResult{Content: []ContentBlock{{Type: "text", Text: text}}}
}

func errorResult(text string) ToolCallResult {
	return ToolCallResult{Content: []ContentBlock{{Type: "text", Text: text}}, IsError: true}
}

func handleSummary(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	args := parseArgs(raw)
	rows, err := s.tracker.Summary(ctx, args.Username)
	if err != nil {
		return errorResult("Error fetching summary: " + err.Error())
	}
	return textResult(formatSummary(rows))
}

func handleRecent(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	args := parseArgs(raw)
	if args.Limit <= 0 {
		args.Limit = 20
	}
	recs, err := s.tracker.Recent(ctx, args.Username, args.Limit)
	if err != nil {
		return errorResult("Error fetching attempts: " + err.Error())
	}
	return textResult(formatAttempts(recs))
}

func handleUserAttempts(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	args := parseArgs(raw)
	if args.Username == "" {
		return errorResult("username is required")
	}

	since := time.Now().UTC().Add(-24 * time.Hour)
	if args.Since != "" {
		t, err := time.Parse("2006-01-02", args.Since)
		if err != nil {
			return errorResult("Invalid since date (use YYYY-MM-DD): " + err.Error())
		}
		since = t
	}

	recs, err := s.tracker.QueryByUser(ctx, args.Username, since)
	if err != nil {
		return errorResult("Error fetching attempts: " + err.Error())
	}
	return textResult(formatAttempts(recs))
}
