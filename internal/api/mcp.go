package api

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/docent-ai/docent/internal/citation"
	"github.com/docent-ai/docent/internal/index"
	"github.com/docent-ai/docent/internal/session"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Sessions *session.Manager
	Agent    Asker
	Index    index.Index
}

// NewMCPServer creates an MCP server exposing the question-answering
// agent and corpus statistics as tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"docent",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("docent — grounded question answering over an indexed document corpus, with source citations."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask",
			mcp.WithDescription("Answer a question from the indexed corpus, citing the supporting passages. Pass session_id to keep follow-up questions in the same conversation."),
			mcp.WithString("question", mcp.Description("The question to answer"), mcp.Required()),
			mcp.WithString("session_id", mcp.Description("Session to continue; omit to start a new one")),
		),
		mcpAsk(deps),
	)

	s.AddTool(
		mcp.NewTool("corpus_stats",
			mcp.WithDescription("Report how many documents and chunks are indexed."),
		),
		mcpCorpusStats(deps),
	)

	return s
}

func mcpAsk(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}

		var sess *session.Session
		if id := req.GetString("session_id", ""); id != "" {
			sess, err = deps.Sessions.Get(id)
			if err != nil {
				return mcpError(fmt.Sprintf("unknown session %s", id)), nil
			}
		} else {
			sess = deps.Sessions.Start()
		}

		res, err := deps.Agent.Answer(ctx, sess, question)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to answer: %v", err)), nil
		}

		var b strings.Builder
		b.WriteString(res.Answer)
		if refs := formatRefs(res.Fragments); refs != "" {
			b.WriteString("\n\nSources:\n")
			b.WriteString(refs)
		}
		fmt.Fprintf(&b, "\n\nsession_id: %s", sess.ID)
		return mcpText(b.String()), nil
	}
}

// formatRefs lists each distinct reference once, in order of first
// appearance, as "[n] quote".
func formatRefs(fragments []citation.Fragment) string {
	seen := make(map[int]bool)
	var b strings.Builder
	for _, f := range fragments {
		for _, c := range f.Citations {
			if seen[c.Ref] {
				continue
			}
			seen[c.Ref] = true
			fmt.Fprintf(&b, "[%d] %s\n", c.Ref, c.Quote)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func mcpCorpusStats(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		docs, err := deps.Index.CountDocuments(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("index unavailable: %v", err)), nil
		}
		chunks, err := deps.Index.CountChunks(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("index unavailable: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("%d documents, %d chunks indexed", docs, chunks)), nil
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
