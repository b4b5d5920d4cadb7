package mcp

import (
	"fmt"
	"strings"

	"github.com/pario-ai/llmgate/pkg/models"
)

func formatSummary(rows []models.AttemptSummary) string {
	if len(rows) == 0 {
		return "No attempts recorded."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %8s %8s %8s %10s %12s\n",
		"User", "Requests", "Success", "Failed", "Cache Hits", "Avg ms")
	b.WriteString(strings.Repeat("-", 71) + "\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "%-20s %8d %8d %8d %10d %12.2f\n",
			r.Username, r.RequestCount, r.Successful, r.Failed, r.CacheHits, r.AverageLatencyMs)
	}
	return b.String()
}

func formatAttempts(recs []models.AttemptRecord) string {
	if len(recs) == 0 {
		return "No attempts found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-16s %-10s %7s %9s %10s\n",
		"Time", "User", "Outcome", "Prompt", "Response", "Latency ms")
	b.WriteString(strings.Repeat("-", 77) + "\n")
	for _, r := range recs {
		fmt.Fprintf(&b, "%-20s %-16s %-10s %7d %9d %10.2f\n",
			r.CreatedAt.Format("2006-01-02 15:04:05"), r.Username, r.Outcome,
			r.PromptLength, r.ResponseLength, r.LatencyMs)
	}
	return b.String()
}
