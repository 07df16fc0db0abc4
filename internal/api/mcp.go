package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"docqa/internal/query"
	"docqa/internal/retrieval"
)

// DocSearcher runs multi-search retrieval without answer generation.
type DocSearcher interface {
	Retrieve(ctx context.Context, subQueries []string, comprehensive bool) ([]retrieval.AggregatedHit, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Runner   AnswerRunner
	Searcher DocSearcher
}

// NewMCPServer creates an MCP server exposing the documentation index as
// tools: ask_docs runs the full question-answering workflow, search_docs
// returns raw retrieval hits.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"docqa",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("docqa answers questions over a local documentation index."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask_docs",
			mcp.WithDescription("Answer a question using the indexed documentation. Returns the answer with source citations."),
			mcp.WithString("question", mcp.Description("The question to answer"), mcp.Required()),
		),
		mcpAskDocs(deps),
	)

	s.AddTool(
		mcp.NewTool("search_docs",
			mcp.WithDescription("Semantically search the documentation index and return matching chunks without generating an answer."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 5)")),
		),
		mcpSearchDocs(deps),
	)

	return s
}

func mcpAskDocs(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}

		result := deps.Runner.Run(ctx, question)
		if result.Err != "" {
			return mcpError(result.Err), nil
		}

		b, err := json.Marshal(result)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSearchDocs(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		q, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", 5)
		if limit <= 0 {
			limit = 5
		}
		if limit > 50 {
			limit = 50
		}

		plan := query.Decompose(q)
		hits, err := deps.Searcher.Retrieve(ctx, plan.Decomposed, plan.IsComprehensive)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if len(hits) > limit {
			hits = hits[:limit]
		}

		type hitResult struct {
			DocID   string  `json:"doc_id"`
			Section string  `json:"section,omitempty"`
			Kind    string  `json:"kind"`
			Text    string  `json:"text"`
			Score   float64 `json:"score"`
		}

		results := make([]hitResult, len(hits))
		for i, h := range hits {
			results[i] = hitResult{
				DocID:   h.Meta.DocID,
				Section: h.Meta.SectionPathStr,
				Kind:    h.Meta.Kind,
				Text:    h.Text,
				Score:   h.CombinedScore,
			}
		}

		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
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
