package mcp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/huangsam/epss/core"
	"github.com/huangsam/epss/internal/contract"
	"github.com/huangsam/epss/internal/outwriter"
	"github.com/huangsam/epss/schema"
	"github.com/mark3labs/mcp-go/mcp"
)

// toolHandler holds common dependencies for MCP tool handlers.
type toolHandler struct {
	baseCfg *contract.Config
	engine  *core.Engine
}

// rangeConfig clones the base config and applies the date and query arguments of request.
func (h *toolHandler) rangeConfig(request mcp.CallToolRequest) (*contract.Config, error) {
	input := &contract.ConfigRawInput{
		Date:    request.GetString("date", ""),
		MinDate: request.GetString("min_date", ""),
		MaxDate: request.GetString("max_date", ""),
		CVEs:    request.GetString("cves", request.GetString("cve", "")),
	}

	args := request.GetArguments()
	bounds := map[string]*string{
		"min_epss":       &input.MinEPSS,
		"max_epss":       &input.MaxEPSS,
		"min_percentile": &input.MinPercentile,
		"max_percentile": &input.MaxPercentile,
	}
	for key, dst := range bounds {
		if v, ok := args[key].(float64); ok {
			*dst = strconv.FormatFloat(v, 'f', -1, 64)
		}
	}

	cfg := h.baseCfg.Clone()
	if err := contract.RevalidateRange(cfg, input); err != nil {
		return nil, err
	}
	return cfg, nil
}

// render writes a result as JSON through the output writer.
func render(cfg *contract.Config, write func(io.Writer, *contract.Config) error) (*mcp.CallToolResult, error) {
	cfg.Output = schema.JSONOut
	var buf bytes.Buffer
	if err := write(&buf, cfg); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to render result: %v", err)), nil
	}
	return mcp.NewToolResultText(buf.String()), nil
}

func (h *toolHandler) handleGetChangelog(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cfg, err := h.rangeConfig(request)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid changelog parameters: %v", err)), nil
	}

	records, err := h.engine.Changelogs.BuildRange(ctx, cfg.MinDate, cfg.MaxDate, core.BuildOptions{Query: &cfg.Query})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("changelog failed: %v", err)), nil
	}

	return render(cfg, func(w io.Writer, cfg *contract.Config) error {
		return outwriter.WriteChangeRecords(w, records, cfg, 0)
	})
}

func (h *toolHandler) handleDiffDates(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	older, err := schema.ParseDate(request.GetString("older", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid older date: %v", err)), nil
	}
	newer, err := schema.ParseDate(request.GetString("newer", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid newer date: %v", err)), nil
	}
	cfg, err := h.rangeConfig(request)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid diff parameters: %v", err)), nil
	}

	records, err := h.engine.DiffDates(ctx, older, newer, cfg.Query)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("diff failed: %v", err)), nil
	}

	return render(cfg, func(w io.Writer, cfg *contract.Config) error {
		return outwriter.WriteChangeRecords(w, records, cfg, 0)
	})
}

func (h *toolHandler) handleGetScoreRange(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cve := request.GetString("cve", "")
	if cve == "" {
		return mcp.NewToolResultError("cve is required"), nil
	}
	cfg, err := h.rangeConfig(request)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid score range parameters: %v", err)), nil
	}

	r, err := h.engine.Ranges.Summarize(ctx, cve, cfg.MinDate, cfg.MaxDate)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("score range failed: %v", err)), nil
	}

	return render(cfg, func(w io.Writer, cfg *contract.Config) error {
		return outwriter.WriteScoreRanges(w, []schema.ScoreRange{r}, cfg, 0)
	})
}

func (h *toolHandler) handleGetScores(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cfg, err := h.rangeConfig(request)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid scores parameters: %v", err)), nil
	}

	scores, err := h.engine.Scores(ctx, cfg.MinDate, cfg.Query)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("scores failed: %v", err)), nil
	}
	if l := request.GetInt("limit", 0); l > 0 && l < len(scores) {
		scores = scores[:l]
	}

	return render(cfg, func(w io.Writer, cfg *contract.Config) error {
		return outwriter.WriteScoreRows(w, scores, cfg, 0)
	})
}

func (h *toolHandler) handleGetDateRange(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	lo, hi, err := h.engine.DateRange(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("date range failed: %v", err)), nil
	}

	return render(h.baseCfg.Clone(), func(w io.Writer, cfg *contract.Config) error {
		return outwriter.WriteDateRangeResult(w, lo, hi, cfg)
	})
}
