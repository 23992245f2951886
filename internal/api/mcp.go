package api

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Inspector InspectService
	Env       string
}

// NewMCPServer exposes the reporting boundary as MCP tools, so agents can
// drive inspections over stdio with the same semantics as the HTTP API.
func NewMCPServer(deps MCPDeps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"storecheck",
		version,
		server.WithToolCapabilities(true),
		server.WithInstructions("storecheck — cross-store consistency inspector. Read-only: tools report drift between the relational, cache, and vector stores, they never modify data."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("inspect_record",
			mcp.WithDescription("Inspect one record across every configured store and return per-store snapshots plus the consistency report."),
			mcp.WithString("id", mcp.Description("Record id shared across stores"), mcp.Required()),
		),
		mcpInspect(deps),
	)

	s.AddTool(
		mcp.NewTool("diff_record",
			mcp.WithDescription("Return only the consistency report for a record (no raw payloads)."),
			mcp.WithString("id", mcp.Description("Record id shared across stores"), mcp.Required()),
		),
		mcpDiff(deps),
	)

	s.AddTool(
		mcp.NewTool("batch_inspect",
			mcp.WithDescription("Inspect several records; each id is isolated, one failing id does not affect the others."),
			mcp.WithString("ids", mcp.Description("Comma-separated record ids"), mcp.Required()),
		),
		mcpBatch(deps),
	)

	s.AddTool(
		mcp.NewTool("store_health",
			mcp.WithDescription("Probe every configured store provider and report per-provider status."),
		),
		mcpHealth(deps),
	)

	return s
}

func mcpInspect(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		return mcpJSON(deps.Inspector.Inspect(ctx, id))
	}
}

func mcpDiff(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		return mcpJSON(deps.Inspector.Diff(ctx, id))
	}
}

func mcpBatch(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := req.RequireString("ids")
		if err != nil {
			return mcpError("ids is required"), nil
		}
		var ids []string
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			return mcpError("ids contained no record ids"), nil
		}
		if len(ids) > maxBatchIDs {
			return mcpError("too many ids"), nil
		}
		return mcpJSON(deps.Inspector.Batch(ctx, ids))
	}
}

func mcpHealth(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcpJSON(deps.Inspector.Health(ctx))
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcpError("encoding result: " + err.Error()), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

func mcpError(msg string) *mcp.CallToolResult {
	return mcp.NewToolResultError(msg)
}
