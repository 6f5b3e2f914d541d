package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/churchdesk/internal/forms"
	"github.com/kalambet/churchdesk/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Schemas   storage.SchemaStore
	Responses storage.ResponseStore
	Version   string
}

// NewMCPServer creates a read-only MCP server over the form and response stores.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	if deps.Version == "" {
		deps.Version = "dev"
	}
	s := server.NewMCPServer(
		"churchdesk",
		deps.Version,
		server.WithToolCapabilities(true),
		server.WithInstructions("churchdesk: church registration forms and their submitted responses."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_forms",
			mcp.WithDescription("List all published forms with their response counts."),
		),
		mcpListForms(deps),
	)

	s.AddTool(
		mcp.NewTool("get_form",
			mcp.WithDescription("Return one form definition including its fields."),
			mcp.WithString("form_id", mcp.Description("Form id"), mcp.Required()),
		),
		mcpGetForm(deps),
	)

	s.AddTool(
		mcp.NewTool("list_responses",
			mcp.WithDescription("List submitted responses of a form, newest first."),
			mcp.WithString("form_id", mcp.Description("Form id"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of responses (default 50)")),
		),
		mcpListResponses(deps),
	)

	s.AddTool(
		mcp.NewTool("export_responses",
			mcp.WithDescription("Export a form's responses as a delimited table."),
			mcp.WithString("form_id", mcp.Description("Form id"), mcp.Required()),
			mcp.WithString("format", mcp.Description("csv (default) or tsv")),
		),
		mcpExportResponses(deps),
	)

	return s
}

func mcpListForms(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		schemas, err := deps.Schemas.ListSchemas(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list forms: %v", err)), nil
		}
		counts, err := deps.Responses.CountByForm(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to count responses: %v", err)), nil
		}

		type formResult struct {
			ID        string `json:"id"`
			Title     string `json:"titulo"`
			Active    bool   `json:"ativo"`
			CreatedAt string `json:"criado_em"`
			Responses int    `json:"respostas"`
		}
		results := make([]formResult, len(schemas))
		for i, s := range schemas {
			results[i] = formResult{
				ID:        s.ID,
				Title:     s.Title,
				Active:    s.Active,
				CreatedAt: s.CreatedAt.String(),
				Responses: counts[s.ID],
			}
		}
		return mcpJSON(results)
	}
}

func mcpGetForm(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("form_id")
		if err != nil {
			return mcpError("form_id is required"), nil
		}
		s, err := deps.Schemas.GetSchema(ctx, id)
		if errors.Is(err, forms.ErrNotFound) {
			return mcpError(fmt.Sprintf("form %s not found", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to load form: %v", err)), nil
		}
		return mcpJSON(s)
	}
}

func mcpListResponses(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("form_id")
		if err != nil {
			return mcpError("form_id is required"), nil
		}
		limit := req.GetInt("limit", 50)
		if limit <= 0 {
			limit = 50
		}

		rs, err := forms.CollectResponses(deps.Responses.Responses(ctx, id))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list responses: %v", err)), nil
		}
		if len(rs) == 0 {
			return mcpText("[]"), nil
		}
		forms.SortNewestFirst(rs)
		if len(rs) > limit {
			rs = rs[:limit]
		}
		return mcpJSON(rs)
	}
}

func mcpExportResponses(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("form_id")
		if err != nil {
			return mcpError("form_id is required"), nil
		}
		format := req.GetString("format", forms.FormatCSV)

		var schema *forms.Schema
		if s, err := deps.Schemas.GetSchema(ctx, id); err == nil {
			schema = &s
		}
		rs, err := forms.CollectResponses(deps.Responses.Responses(ctx, id))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list responses: %v", err)), nil
		}

		var buf bytes.Buffer
		if err := forms.WriteTable(&buf, forms.Flatten(schema, rs), format); err != nil {
			return mcpError(fmt.Sprintf("export failed: %v", err)), nil
		}
		return mcpText(buf.String()), nil
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
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
