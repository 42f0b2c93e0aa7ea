// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes note tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/samber/lo"

	"github.com/starford/notes/internal/apperr"
	"github.com/starford/notes/internal/codec"
	"github.com/starford/notes/internal/models"
	"github.com/starford/notes/internal/notestore"
	"github.com/starford/notes/internal/search"
)

const noteFormatURI = "notes://note-format"

// Server wraps the MCP server with note tools.
type Server struct {
	mcp       *server.MCPServer
	store     *notestore.Store
	renderer  search.InlineRenderer
	highlight []search.HighlightOption
}

type searchHit struct {
	ID         string    `json:"id"`
	Header     string    `json:"header"`
	Markup     string    `json:"markup"`
	HeaderHTML string    `json:"header_html,omitempty"`
	Date       time.Time `json:"date"`
}

// New creates a new MCP server with all note tools registered.
// renderer may be nil.
func New(store *notestore.Store, renderer search.InlineRenderer, opts ...search.HighlightOption) *Server {
	s := &Server{store: store, renderer: renderer, highlight: opts}

	s.mcp = server.NewMCPServer(
		"Notes",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Case-insensitive substring search over note text. "+
			"Returns matching notes newest first with the query highlighted in each header."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Literal text to look for (empty lists everything)")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read the full text of a note."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note ID")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("put_note",
		mcp.WithDescription("Create a note, or update an existing one. Omitted fields keep their value. "+
			"Read the format first via get_note_format or the "+noteFormatURI+" resource."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note ID; a new ID creates a note")),
		mcp.WithString("text", mcp.Description("Markdown text; the first non-blank line is the header")),
		mcp.WithString("date", mcp.Description("ISO-8601 date or date-time")),
	), s.putNote)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List every note as 'id<TAB>date<TAB>header', newest first."),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("get_note_format",
		mcp.WithDescription("Returns the note format, header and highlighting rules."),
	), s.getNoteFormat)

	s.mcp.AddResource(
		mcp.NewResource(noteFormatURI, "Note Format",
			mcp.WithResourceDescription("How notes are structured, listed and highlighted."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNoteFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	all, err := s.store.GetAll(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	hits := lo.Map(search.Results(all, query, s.renderer, s.highlight...), func(r search.Result, _ int) searchHit {
		return searchHit{ID: r.Note.ID, Header: r.Header, Markup: r.Markup, HeaderHTML: r.HeaderHTML, Date: r.Note.Date}
	})
	out, _ := json.MarshalIndent(hits, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(n.Text), nil
}

func (s *Server) putNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var patch models.Patch
	args := req.GetArguments()
	if v, ok := args["text"].(string); ok {
		patch.Text = &v
	}
	if v, ok := args["date"].(string); ok {
		d, err := codec.ParseDate(v)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid date %q: %v", v, err)), nil
		}
		patch.Date = &d
	}

	n, err := s.store.Put(ctx, id, patch)
	if err != nil {
		if errors.Is(err, apperr.ErrPersistence) {
			return mcp.NewToolResultError(fmt.Sprintf("saved in memory but not persisted: %s: %v", n.ID, err)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("saved: %s (%s)", n.ID, codec.FormatDate(n.Date))), nil
}

func (s *Server) listNotes(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	all, err := s.store.GetAll(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if all.Len() == 0 {
		return mcp.NewToolResultText("no notes"), nil
	}
	lines := lo.Map(search.FilterAndOrder(all, ""), func(n models.Note, _ int) string {
		return n.ID + "\t" + codec.FormatDate(n.Date) + "\t" + search.Header(n.Text)
	})
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) getNoteFormat(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(NoteFormat), nil
}

func (s *Server) readNoteFormatResource(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      noteFormatURI,
			MIMEType: "text/markdown",
			Text:     NoteFormat,
		},
	}, nil
}
