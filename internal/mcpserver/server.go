// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Onyx tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/onyx/internal/duedate"
	"github.com/starford/onyx/internal/models"
	"github.com/starford/onyx/internal/parser"
	"github.com/starford/onyx/internal/state"
	"github.com/starford/onyx/internal/syncer"
)

// Resource URIs.
const (
	URIState = "onyx://state"
	URIGuide = "onyx://guide"
)

// Server wraps the MCP server with Onyx tools.
type Server struct {
	mcp  *server.MCPServer
	orch *syncer.Orchestrator
	due  *duedate.Parser
}

// New creates a new MCP server with all Onyx tools registered.
func New(orch *syncer.Orchestrator, due *duedate.Parser, version string) *Server {
	s := &Server{orch: orch, due: due}

	s.mcp = server.NewMCPServer(
		"Onyx",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("get_overview",
		mcp.WithDescription("Summary of today's habits, open tasks, reminders and area progress."),
	), s.getOverview)

	s.mcp.AddTool(mcp.NewTool("list_tasks",
		mcp.WithDescription("List tasks of one type as JSON."),
		mcp.WithString("type", mcp.Required(), mcp.Description("Task type"),
			mcp.Enum("daily", "short_term", "long_term", "life_area", "reminder")),
	), s.listTasks)

	s.mcp.AddTool(mcp.NewTool("add_task",
		mcp.WithDescription("Create a task. Read the onyx://guide resource for task types."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Task title")),
		mcp.WithString("type", mcp.Required(), mcp.Description("Task type"),
			mcp.Enum("daily", "short_term", "long_term", "life_area", "reminder")),
		mcp.WithString("due", mcp.Description("Due date, ISO or natural language (e.g. tomorrow at 5pm)")),
		mcp.WithString("priority", mcp.Description("Priority"), mcp.Enum("High", "Medium", "Low")),
		mcp.WithString("areaId", mcp.Description("Life area id for life_area tasks")),
	), s.addTask)

	s.mcp.AddTool(mcp.NewTool("toggle_task",
		mcp.WithDescription("Flip the completion of a task."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Task id")),
	), s.toggleTask)

	s.mcp.AddTool(mcp.NewTool("delete_task",
		mcp.WithDescription("Delete a task."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Task id")),
	), s.deleteTask)

	s.mcp.AddTool(mcp.NewTool("add_note",
		mcp.WithDescription("Create a Markdown note. The title is derived from the content when omitted."),
		mcp.WithString("content", mcp.Required(), mcp.Description("Markdown content")),
		mcp.WithString("title", mcp.Description("Optional title")),
	), s.addNote)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List notes, most recent first, as id and title lines."),
		mcp.WithNumber("limit", mcp.Description("Maximum number of notes (default 20)")),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("get_day",
		mcp.WithDescription("Tasks and calendar events on one date."),
		mcp.WithString("date", mcp.Required(), mcp.Description("Date as YYYY-MM-DD")),
	), s.getDay)

	s.mcp.AddTool(mcp.NewTool("get_guide",
		mcp.WithDescription("Returns the Onyx data guide. Call this before creating entities."),
	), s.getGuide)

	s.mcp.AddResource(
		mcp.NewResource(URIState, "Onyx State",
			mcp.WithResourceDescription("The complete state document as JSON."),
			mcp.WithMIMEType("application/json"),
		),
		s.readStateResource,
	)
	s.mcp.AddResource(
		mcp.NewResource(URIGuide, "Onyx Data Guide",
			mcp.WithResourceDescription("Task types, date formats and entity relations."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readGuideResource,
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

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) getOverview(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := s.orch.Snapshot(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(state.Summarize(st, s.orch.Today())), nil
}

func (s *Server) listTasks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	typ, err := req.RequireString("type")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !models.TaskType(typ).Valid() {
		return mcp.NewToolResultError(fmt.Sprintf("unknown task type: %s", typ)), nil
	}
	st, err := s.orch.Snapshot(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tasks := state.TasksOfType(st, models.TaskType(typ))
	if tasks == nil {
		tasks = []models.Task{}
	}
	return jsonResult(tasks), nil
}

func (s *Server) addTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	typ, err := req.RequireString("type")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	draft := models.Task{
		Title:    title,
		Type:     models.TaskType(typ),
		Priority: models.Priority(req.GetString("priority", "")),
		AreaID:   req.GetString("areaId", ""),
	}
	if due := req.GetString("due", ""); due != "" {
		d, err := s.due.Parse(due, s.orch.Now())
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		draft.DueDate, draft.DueTime = d.Date, d.Time
	}
	task, err := s.orch.AddTask(ctx, draft)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created task %s", task.ID)), nil
}

func (s *Server) toggleTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.orch.ToggleTask(ctx, id); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("toggled task %s", id)), nil
}

func (s *Server) deleteTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.orch.DeleteTask(ctx, id); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted task %s", id)), nil
}

func (s *Server) addNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	draft := parser.Parse([]byte(content)).Note()
	if title := req.GetString("title", ""); title != "" {
		draft = models.Note{Title: title, Content: content}
	}
	n, err := s.orch.AddNote(ctx, draft)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created note %s: %s", n.ID, n.Title)), nil
}

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := int(req.GetFloat("limit", 20))
	st, err := s.orch.Snapshot(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	notes := state.RecentNotes(st, limit)
	if len(notes) == 0 {
		return mcp.NewToolResultText("no notes"), nil
	}
	lines := make([]string, 0, len(notes))
	for _, n := range notes {
		lines = append(lines, n.ID+"\t"+n.Title)
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) getDay(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	date, err := req.RequireString("date")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !state.ValidDate(date) {
		return mcp.NewToolResultError("date must be YYYY-MM-DD"), nil
	}
	st, err := s.orch.Snapshot(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{
		"date":   date,
		"tasks":  state.CalendarTasks(st, date),
		"events": state.EventsOn(st, date),
	}), nil
}

func (s *Server) getGuide(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(DataGuide), nil
}

func (s *Server) readStateResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	st, err := s.orch.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(st)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      URIState,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) readGuideResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      URIGuide,
			MIMEType: "text/markdown",
			Text:     DataGuide,
		},
	}, nil
}
