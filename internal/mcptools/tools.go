// Package mcptools exposes the question-answering session as MCP tools over stdio.
package mcptools

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"ragchat/internal/domain"
	"ragchat/internal/service"
)

// Session is the part of the service the tools drive.
type Session interface {
	Ask(ctx context.Context, query string) (*service.Answer, error)
	Ingest(ctx context.Context, folder string) (*service.IngestReport, error)
	Clear(ctx context.Context) error
}

// Handlers implements the tool callbacks.
type Handlers struct {
	session Session
	log     *slog.Logger
}

// NewServer creates an MCP server with ingest_folder, ask and clear registered.
func NewServer(session Session, version string, logger *slog.Logger) (*mcpserver.MCPServer, *Handlers) {
	if logger == nil {
		logger = slog.Default()
	}
	s := mcpserver.NewMCPServer("ragchat", version, mcpserver.WithToolCapabilities(false))
	h := &Handlers{session: session, log: logger}

	s.AddTool(mcp.NewTool("ingest_folder",
		mcp.WithDescription("Load every .pdf and .txt file directly inside a folder and replace the searchable index with them."),
		mcp.WithString("folder", mcp.Required(), mcp.Description("Path of the folder to ingest")),
	), h.IngestFolder)

	s.AddTool(mcp.NewTool("ask",
		mcp.WithDescription("Answer a question from the ingested documents, citing the chunks used."),
		mcp.WithString("query", mcp.Required(), mcp.Description("The question to answer")),
	), h.Ask)

	s.AddTool(mcp.NewTool("clear",
		mcp.WithDescription("Drop the ingested documents."),
	), h.Clear)

	return s, h
}

// Serve runs the MCP server over in/out until ctx is done or in is closed.
func Serve(ctx context.Context, s *mcpserver.MCPServer, in io.Reader, out io.Writer) error {
	return mcpserver.NewStdioServer(s).Listen(ctx, in, out)
}

func (h *Handlers) IngestFolder(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	folder, err := request.RequireString("folder")
	if err != nil {
		return mcp.NewToolResultError("folder argument is required and must be a string"), nil
	}
	report, err := h.session.Ingest(ctx, folder)
	if err != nil {
		return h.failure("ingest_folder", err), nil
	}
	text := fmt.Sprintf("Ingested %s: %d documents, %d chunks, %d skipped.",
		report.Folder, report.Documents, report.Chunks, len(report.Skipped))
	if len(report.Skipped) > 0 {
		text += "\nSkipped: " + strings.Join(report.Skipped, ", ")
	}
	if report.Summary != "" {
		text += "\nSummary: " + report.Summary
	}
	return mcp.NewToolResultText(text), nil
}

func (h *Handlers) Ask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query argument is required and must be a string"), nil
	}
	ans, err := h.session.Ask(ctx, query)
	if err != nil {
		return h.failure("ask", err), nil
	}
	var b strings.Builder
	b.WriteString(ans.Text)
	if len(ans.Sources) > 0 {
		b.WriteString("\n\nSources:")
		for _, r := range ans.Sources {
			fmt.Fprintf(&b, "\n- %s (chunk %d, score %.3f)", r.Chunk.Source, r.Chunk.Index, r.Score)
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (h *Handlers) Clear(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := h.session.Clear(ctx); err != nil {
		return h.failure("clear", err), nil
	}
	return mcp.NewToolResultText("Cleared."), nil
}

func (h *Handlers) failure(tool string, err error) *mcp.CallToolResult {
	kind := domain.KindOf(err)
	h.log.Warn("Tool failed", slog.String("tool", tool), slog.String("kind", string(kind)), slog.Any("error", err))
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", kind, err))
}
