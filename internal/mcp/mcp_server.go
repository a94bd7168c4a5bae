// Package mcp provides the Model Context Protocol (MCP) server implementation.
package mcp

import (
	"context"

	"github.com/huangsam/epss/core"
	"github.com/huangsam/epss/internal/contract"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// queryOptions are the filter arguments shared by the tools returning rows.
func queryOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("cves", mcp.Description("Comma-separated CVE identifiers to keep (e.g., 'CVE-2024-3400,CVE-2023-4966').")),
		mcp.WithNumber("min_epss", mcp.Description("Inclusive lower bound on the EPSS score (0-1).")),
		mcp.WithNumber("max_epss", mcp.Description("Inclusive upper bound on the EPSS score (0-1).")),
		mcp.WithNumber("min_percentile", mcp.Description("Inclusive lower bound on the percentile (0-1).")),
		mcp.WithNumber("max_percentile", mcp.Description("Inclusive upper bound on the percentile (0-1).")),
	}
}

// NewMCPServer initializes and configures the EPSS MCP server without starting it.
// This is exposed for unit testing.
func NewMCPServer(baseCfg *contract.Config, engine *core.Engine) *server.MCPServer {
	s := server.NewMCPServer(
		"EPSS Changelog Server",
		"1.0.0",
		server.WithLogging(),
	)

	h := &toolHandler{
		baseCfg: baseCfg,
		engine:  engine,
	}

	// --- 1. Tool: get_changelog ---
	s.AddTool(mcp.NewTool("get_changelog", append([]mcp.ToolOption{
		mcp.WithDescription("List EPSS score changes between consecutive published dates in a window."),
		mcp.WithString("min_date", mcp.Description("First date of the window (YYYY-MM-DD). Defaults to the start of the model era.")),
		mcp.WithString("max_date", mcp.Description("Last date of the window (YYYY-MM-DD). Defaults to the latest published date.")),
	}, queryOptions()...)...), h.handleGetChangelog)

	// --- 2. Tool: diff_dates ---
	s.AddTool(mcp.NewTool("diff_dates", append([]mcp.ToolOption{
		mcp.WithDescription("Compare the EPSS snapshots of two dates directly."),
		mcp.WithString("older", mcp.Description("The earlier date (YYYY-MM-DD)."), mcp.Required()),
		mcp.WithString("newer", mcp.Description("The later date (YYYY-MM-DD)."), mcp.Required()),
	}, queryOptions()...)...), h.handleDiffDates)

	// --- 3. Tool: get_score_range ---
	s.AddTool(mcp.NewTool("get_score_range",
		mcp.WithDescription("Report the lowest and highest EPSS score and percentile of one CVE over a window."),
		mcp.WithString("cve", mcp.Description("The CVE identifier."), mcp.Required()),
		mcp.WithString("min_date", mcp.Description("First date of the window (YYYY-MM-DD).")),
		mcp.WithString("max_date", mcp.Description("Last date of the window (YYYY-MM-DD).")),
	), h.handleGetScoreRange)

	// --- 4. Tool: get_scores ---
	s.AddTool(mcp.NewTool("get_scores", append([]mcp.ToolOption{
		mcp.WithDescription("Return the EPSS scores published on a date."),
		mcp.WithString("date", mcp.Description("Publication date (YYYY-MM-DD). Defaults to the latest published date.")),
		mcp.WithNumber("limit", mcp.Description("Limit the number of results returned.")),
	}, queryOptions()...)...), h.handleGetScores)

	// --- 5. Tool: get_date_range ---
	s.AddTool(mcp.NewTool("get_date_range",
		mcp.WithDescription("Return the first and latest dates with published scores for the configured model version."),
	), h.handleGetDateRange)

	return s
}

// StartMCPServer starts the EPSS MCP server.
func StartMCPServer(_ context.Context, baseCfg *contract.Config, engine *core.Engine) error {
	s := NewMCPServer(baseCfg, engine)
	return server.ServeStdio(s)
}
