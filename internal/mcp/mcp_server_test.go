package mcp_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/huangsam/epss/core"
	"github.com/huangsam/epss/internal/contract"
	"github.com/huangsam/epss/internal/iocache"
	mcp_internal "github.com/huangsam/epss/internal/mcp"
	"github.com/huangsam/epss/schema"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *server.MCPServer {
	t.Helper()
	baseCfg := &contract.Config{
		FileFormat:   schema.ParquetFormat,
		ModelVersion: schema.ModelV3,
		Workers:      2,
		Precision:    5,
	}

	d2 := schema.MustParseDate("2024-01-02")
	d3 := schema.MustParseDate("2024-01-03")
	src := &contract.MockScoreSource{}
	src.On("LatestDate", mock.Anything).Return(d3, nil)
	src.On("Fetch", mock.Anything, d2).Return([]schema.Score{
		{CVE: "CVE-2024-0001", EPSS: 0.10, Percentile: 0.50},
		{CVE: "CVE-2024-0002", EPSS: 0.20, Percentile: 0.60},
	}, nil)
	src.On("Fetch", mock.Anything, d3).Return([]schema.Score{
		{CVE: "CVE-2024-0001", EPSS: 0.15, Percentile: 0.55},
		{CVE: "CVE-2024-0002", EPSS: 0.20, Percentile: 0.60},
	}, nil)
	src.On("Fetch", mock.Anything, mock.Anything).Return(nil, &schema.NotAvailableError{})

	mgr := &iocache.MockCacheManager{}
	mgr.On("GetStore").Return(iocache.NewMemoryStore())

	engine, err := core.NewEngine(baseCfg, mgr, src, nil)
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	return mcp_internal.NewMCPServer(baseCfg, engine)
}

func callTool(t *testing.T, s *server.MCPServer, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	tool := s.GetTool(name)
	require.NotNil(t, tool, "Tool %s should exist", name)

	res, err := tool.Handler(context.Background(), mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: name, Arguments: args},
	})
	require.NoError(t, err, "The MCP handler should not return a raw error for tool logic failures")
	require.NotNil(t, res)
	return res
}

func resultText(res *mcp.CallToolResult) string {
	return res.Content[0].(mcp.TextContent).Text
}

func TestMCPServerHandlers_ValidationErrors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name    string
		tool    string
		args    map[string]any
		message string
	}{
		{
			name:    "get_score_range missing cve",
			tool:    "get_score_range",
			args:    map[string]any{"cve": ""},
			message: "cve is required",
		},
		{
			name:    "get_changelog invalid min_date",
			tool:    "get_changelog",
			args:    map[string]any{"min_date": "yesterday"},
			message: "invalid --min-date",
		},
		{
			name:    "get_changelog inverted epss bounds",
			tool:    "get_changelog",
			args:    map[string]any{"min_epss": 0.9, "max_epss": 0.1},
			message: "cannot be greater than",
		},
		{
			name:    "get_scores out of range percentile",
			tool:    "get_scores",
			args:    map[string]any{"min_percentile": 1.5},
			message: "must be between 0.0 and 1.0",
		},
		{
			name:    "diff_dates invalid older",
			tool:    "diff_dates",
			args:    map[string]any{"older": "2024/01/02", "newer": "2024-01-03"},
			message: "invalid older date",
		},
		{
			name:    "diff_dates inverted",
			tool:    "diff_dates",
			args:    map[string]any{"older": "2024-01-03", "newer": "2024-01-02"},
			message: "min date is after max date",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := callTool(t, s, tt.tool, tt.args)
			assert.True(t, res.IsError, "The response should indicate an error state")
			assert.Contains(t, resultText(res), tt.message)
		})
	}
}

func TestMCPServerHandlers_Results(t *testing.T) {
	s := newTestServer(t)

	t.Run("get_date_range", func(t *testing.T) {
		res := callTool(t, s, "get_date_range", nil)
		require.False(t, res.IsError, resultText(res))

		var row map[string]string
		require.NoError(t, json.Unmarshal([]byte(resultText(res)), &row))
		assert.Equal(t, "2023-03-07", row["min_date"])
		assert.Equal(t, "2024-01-03", row["max_date"])
	})

	t.Run("get_scores latest filtered", func(t *testing.T) {
		res := callTool(t, s, "get_scores", map[string]any{"cves": "cve-2024-0001"})
		require.False(t, res.IsError, resultText(res))

		var rows []map[string]any
		require.NoError(t, json.Unmarshal([]byte(resultText(res)), &rows))
		require.Len(t, rows, 1)
		assert.Equal(t, 0.15, rows[0]["epss"])
	})

	t.Run("diff_dates", func(t *testing.T) {
		res := callTool(t, s, "diff_dates", map[string]any{"older": "2024-01-02", "newer": "2024-01-03"})
		require.False(t, res.IsError, resultText(res))

		var rows []map[string]any
		require.NoError(t, json.Unmarshal([]byte(resultText(res)), &rows))
		require.Len(t, rows, 1)
		assert.Equal(t, "CVE-2024-0001", rows[0]["cve"])
		assert.Equal(t, 50.0, rows[0]["epss_delta_pct"])
	})

	t.Run("get_changelog", func(t *testing.T) {
		res := callTool(t, s, "get_changelog", map[string]any{"min_date": "2024-01-02", "max_date": "2024-01-03"})
		require.False(t, res.IsError, resultText(res))
		assert.Contains(t, resultText(res), `"old_date": "2024-01-02"`)
	})

	t.Run("get_score_range", func(t *testing.T) {
		res := callTool(t, s, "get_score_range", map[string]any{"cve": "CVE-2024-0001", "min_date": "2024-01-02"})
		require.False(t, res.IsError, resultText(res))

		var rows []map[string]any
		require.NoError(t, json.Unmarshal([]byte(resultText(res)), &rows))
		require.Len(t, rows, 1)
		assert.Equal(t, 0.1, rows[0]["min_epss"])
		assert.Equal(t, 0.15, rows[0]["max_epss"])
	})

	t.Run("get_score_range unknown cve", func(t *testing.T) {
		res := callTool(t, s, "get_score_range", map[string]any{"cve": "CVE-1999-0001", "min_date": "2024-01-02"})
		assert.True(t, res.IsError)
		assert.Contains(t, resultText(res), "not found")
	})
}
