// Package mcpserver exposes the canvas focus workflow as MCP (Model Context
// Protocol) tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/canvasfocus/internal/apperr"
	"github.com/starford/canvasfocus/internal/canvas"
	"github.com/starford/canvasfocus/internal/focus"
	"github.com/starford/canvasfocus/internal/noteservice"
	"github.com/starford/canvasfocus/internal/promote"
	"github.com/starford/canvasfocus/internal/prompt"
)

const guideURI = "canvasfocus://guide"

// Focus is the part of the controller the tools drive.
type Focus interface {
	State() (focus.State, error)
	Toggle() (bool, error)
	Promote(ctx context.Context, ask prompt.Prompter) (promote.Result, error)
	Canvas() (*canvas.File, error)
	ActivatePath(path string) error
	PollSelection() error
}

var _ Focus = (*focus.Controller)(nil)

// Server wraps the MCP server with the focus tools.
type Server struct {
	mcp   *server.MCPServer
	notes *noteservice.Service
	focus Focus
}

// New creates a new MCP server with all tools registered.
func New(notes *noteservice.Service, f Focus) *Server {
	s := &Server{notes: notes, focus: f}

	s.mcp = server.NewMCPServer(
		"canvasfocus",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("get_focus_state",
		mcp.WithDescription("Report the active canvas, the focused node, the open surface and the sync counters."),
	), s.getFocusState)

	s.mcp.AddTool(mcp.NewTool("activate_canvas",
		mcp.WithDescription("Make a .canvas file the active canvas. Selections are tracked on this canvas only."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Vault-relative path ending in .canvas")),
	), s.activateCanvas)

	s.mcp.AddTool(mcp.NewTool("select_nodes",
		mcp.WithDescription("Replace the selection on the active canvas. A single selected node is shown on the focus surface."),
		mcp.WithString("ids", mcp.Required(), mcp.Description("Comma-separated node ids; empty clears the selection")),
	), s.selectNodes)

	s.mcp.AddTool(mcp.NewTool("set_node_text",
		mcp.WithDescription("Replace the text of a text node on the active canvas."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Node id")),
		mcp.WithString("text", mcp.Required(), mcp.Description("New Markdown text")),
	), s.setNodeText)

	s.mcp.AddTool(mcp.NewTool("promote_node",
		mcp.WithDescription("Turn the focused text node into a permanent note and replace it on the canvas with a file node. "+
			"The note is named after the first heading; name is used when there is no heading or the name is taken."),
		mcp.WithString("name", mcp.Description("Note name to use when one has to be asked for")),
	), s.promoteNode)

	s.mcp.AddTool(mcp.NewTool("toggle_focus",
		mcp.WithDescription("Switch the focus behavior on or off and report the new state."),
	), s.toggleFocus)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read the full content of a Markdown note."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the note (e.g. folder/note.md)")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Full-text search through notes content and titles."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchNotes)

	s.mcp.AddResource(
		mcp.NewResource(guideURI, "Canvas focus guide",
			mcp.WithResourceDescription("How selections, scratch documents and promotion interact."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readGuide,
	)

	return s
}

// ServeStdio serves MCP on stdin/stdout until ctx ends or stdin closes.
func (s *Server) ServeStdio(ctx context.Context) error {
	err := server.NewStdioServer(s.mcp).Listen(ctx, os.Stdin, os.Stdout)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) getFocusState(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := s.focus.State()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(st), nil
}

func (s *Server) activateCanvas(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !strings.HasSuffix(path, ".canvas") {
		return mcp.NewToolResultError("path must end in .canvas"), nil
	}
	if err := s.focus.ActivatePath(path); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.getFocusState(ctx, req)
}

// activeCanvas returns the active canvas or a tool error result.
func (s *Server) activeCanvas() (*canvas.File, *mcp.CallToolResult) {
	f, err := s.focus.Canvas()
	if err != nil {
		return nil, mcp.NewToolResultError(err.Error())
	}
	if f == nil {
		return nil, mcp.NewToolResultError("no active canvas; call activate_canvas first")
	}
	return f, nil
}

func (s *Server) selectNodes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw := req.GetString("ids", "")
	f, res := s.activeCanvas()
	if res != nil {
		return res, nil
	}
	var ids []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if err := f.SetSelection(ids); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.focus.PollSelection(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.getFocusState(ctx, req)
}

func (s *Server) setNodeText(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text := req.GetString("text", "")
	f, res := s.activeCanvas()
	if res != nil {
		return res, nil
	}
	if err := f.SetNodeText(id, text); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	f.RequestSave()
	return mcp.NewToolResultText(fmt.Sprintf("updated: %s", id)), nil
}

func (s *Server) promoteNode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var answers []string
	if name := strings.TrimSpace(req.GetString("name", "")); name != "" {
		answers = append(answers, name)
	}
	res, err := s.focus.Promote(ctx, prompt.NewStatic(answers...))
	switch {
	case err == nil:
		return jsonResult(res), nil
	case errors.Is(err, apperr.ErrCancelled):
		return mcp.NewToolResultError("a name is needed: call promote_node again with name set"), nil
	default:
		return mcp.NewToolResultError(err.Error()), nil
	}
}

func (s *Server) toggleFocus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	on, err := s.focus.Toggle()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if on {
		return mcp.NewToolResultText("focus enabled"), nil
	}
	return mcp.NewToolResultText("focus disabled"), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.notes.GetNote(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}
	return mcp.NewToolResultText(note.Content), nil
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.notes.Search(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results), nil
}

func (s *Server) readGuide(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      guideURI,
			MIMEType: "text/markdown",
			Text:     Guide,
		},
	}, nil
}
