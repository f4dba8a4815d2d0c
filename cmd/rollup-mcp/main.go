// rollup-mcp exposes the consolidation engine over MCP stdio: status,
// one-shot cycle runs, and edge repair for a given period range.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/vthunder/rollup/internal/config"
	"github.com/vthunder/rollup/internal/graph"
	"github.com/vthunder/rollup/internal/period"
	"github.com/vthunder/rollup/internal/service"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("ROLLUP_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	store, err := graph.Open(cfg.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open graph database: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	svc := service.New(store, cfg)
	h := &handlers{store: store, svc: svc, cfg: cfg}

	s := server.NewMCPServer(
		"rollup-mcp",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s.AddTool(statusTool(), h.handleStatus)
	s.AddTool(runOnceTool(), h.handleRunOnce)
	s.AddTool(repairTool(), h.handleRepair)

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}

type handlers struct {
	store *graph.Store
	svc   *service.Service
	cfg   config.Config
}

func statusTool() mcp.Tool {
	return mcp.NewTool("consolidation_status",
		mcp.WithDescription("Report graph database stats: node, edge, and record counts plus service state."),
	)
}

func (h *handlers) handleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := h.store.Stats()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read stats: %v", err)), nil
	}
	out := map[string]any{
		"status": h.svc.Status(),
		"stats":  stats,
		"config": map[string]any{
			"db_path":             h.cfg.DBPath,
			"period_hours":        h.cfg.PeriodHours,
			"raw_retention_hours": h.cfg.RawRetentionHours,
		},
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode status: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func runOnceTool() mcp.Tool {
	return mcp.NewTool("consolidation_run_once",
		mcp.WithDescription("Run a single consolidation cycle: discover unconsolidated periods outside the retention window, create summaries, wire edges, clean up orphans."),
	)
}

func (h *handlers) handleRunOnce(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := h.svc.RunCycle()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("cycle failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf(
		"Cycle complete: %d periods processed, %d summaries created, %d edges created, %d orphaned edges removed",
		res.PeriodsProcessed, res.SummariesCreated, res.EdgesCreated, res.OrphansRemoved,
	)), nil
}

func repairTool() mcp.Tool {
	return mcp.NewTool("consolidation_repair",
		mcp.WithDescription("Re-run edge wiring for already-consolidated periods in a time range. Never creates summaries; only restores missing edges. Idempotent."),
		mcp.WithString("start",
			mcp.Required(),
			mcp.Description("Start of range, RFC3339 (e.g. 2026-08-30T00:00:00Z)"),
		),
		mcp.WithString("end",
			mcp.Description("End of range, RFC3339. Default: now"),
		),
	)
}

func (h *handlers) handleRepair(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := req.Params.Arguments.(map[string]any)
	startStr, _ := args["start"].(string)
	endStr, _ := args["end"].(string)

	start, err := time.Parse(time.RFC3339, startStr)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid start: %v", err)), nil
	}
	end := time.Now().UTC()
	if endStr != "" {
		end, err = time.Parse(time.RFC3339, endStr)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid end: %v", err)), nil
		}
	}

	periods := period.NewManager(h.cfg.PeriodWidth())
	mgr := h.svc.EdgeManager()

	total := 0
	count := 0
	cursor, _ := periods.Boundaries(start)
	for cursor.Before(end) {
		p := periods.At(cursor)
		created, err := mgr.EnsureSummaryEdges(p.Start, p.End)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("repair failed for period %s: %v", p.Label, err)), nil
		}
		total += created
		count++
		cursor = p.End
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"Repair complete: %d edges created across %d periods", total, count,
	)), nil
}
