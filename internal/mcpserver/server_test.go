package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/onyx/internal/duedate"
	"github.com/starford/onyx/internal/localcache"
	"github.com/starford/onyx/internal/models"
	"github.com/starford/onyx/internal/syncer"
	"github.com/starford/onyx/internal/testutil"
)

func testServer(t *testing.T) (*Server, *syncer.Orchestrator) {
	t.Helper()
	logger := testutil.Logger(t)

	store, err := localcache.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	clock := testutil.NewClock(time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC))
	orch, err := syncer.New(syncer.Options{Cache: localcache.New(store, logger), Logger: logger, Now: clock.Now})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(orch.Close)
	if err := orch.SetUser(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	return New(orch, duedate.New(nil), "test"), orch
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper, so handlers are called
	// directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "get_overview":
		result, err = srv.getOverview(ctx, req)
	case "list_tasks":
		result, err = srv.listTasks(ctx, req)
	case "add_task":
		result, err = srv.addTask(ctx, req)
	case "toggle_task":
		result, err = srv.toggleTask(ctx, req)
	case "delete_task":
		result, err = srv.deleteTask(ctx, req)
	case "add_note":
		result, err = srv.addNote(ctx, req)
	case "list_notes":
		result, err = srv.listNotes(ctx, req)
	case "get_day":
		result, err = srv.getDay(ctx, req)
	case "get_guide":
		result, err = srv.getGuide(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestAddAndListTasks(t *testing.T) {
	srv, orch := testServer(t)

	r := callTool(t, srv, "add_task", map[string]interface{}{
		"title": "Call bank",
		"type":  "reminder",
		"due":   "tomorrow at 5pm",
	})
	if r.IsError || !strings.HasPrefix(resultText(r), "created task ") {
		t.Fatalf("add_task = %q", resultText(r))
	}

	s, _ := orch.Snapshot(context.Background())
	if len(s.Tasks) != 1 || s.Tasks[0].DueDate != "2024-05-03" || s.Tasks[0].DueTime != "17:00" {
		t.Fatalf("unexpected tasks %+v", s.Tasks)
	}

	r = callTool(t, srv, "list_tasks", map[string]interface{}{"type": "reminder"})
	var tasks []models.Task
	if err := json.Unmarshal([]byte(resultText(r)), &tasks); err != nil {
		t.Fatalf("list_tasks output: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Title != "Call bank" {
		t.Fatalf("listed %+v", tasks)
	}

	r = callTool(t, srv, "list_tasks", map[string]interface{}{"type": "daily"})
	if resultText(r) != "[]" {
		t.Errorf("empty list = %q", resultText(r))
	}
}

func TestAddTaskErrors(t *testing.T) {
	srv, _ := testServer(t)

	if r := callTool(t, srv, "add_task", map[string]interface{}{"title": "x"}); !r.IsError {
		t.Error("expected error for missing type")
	}
	if r := callTool(t, srv, "add_task", map[string]interface{}{"title": "x", "type": "weekly"}); !r.IsError {
		t.Error("expected error for unknown type")
	}
	if r := callTool(t, srv, "add_task", map[string]interface{}{"title": "x", "type": "daily", "due": "qwerty"}); !r.IsError {
		t.Error("expected error for unparseable due date")
	}
	if r := callTool(t, srv, "list_tasks", map[string]interface{}{"type": "weekly"}); !r.IsError {
		t.Error("expected error listing unknown type")
	}
}

func TestToggleAndDeleteTask(t *testing.T) {
	srv, orch := testServer(t)
	task, err := orch.AddTask(context.Background(), models.Task{Title: "Read", Type: models.TaskDaily})
	if err != nil {
		t.Fatal(err)
	}

	if r := callTool(t, srv, "toggle_task", map[string]interface{}{"id": task.ID}); r.IsError {
		t.Fatalf("toggle_task = %q", resultText(r))
	}
	s, _ := orch.Snapshot(context.Background())
	if !s.Tasks[0].Completed {
		t.Fatal("task not toggled")
	}

	if r := callTool(t, srv, "delete_task", map[string]interface{}{"id": task.ID}); r.IsError {
		t.Fatalf("delete_task = %q", resultText(r))
	}
	if r := callTool(t, srv, "delete_task", map[string]interface{}{"id": task.ID}); !r.IsError {
		t.Fatal("expected error deleting a missing task")
	}
}

func TestNotes(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "add_note", map[string]interface{}{"content": "# Ideas\n- garden\n"})
	if !strings.HasSuffix(resultText(r), ": Ideas") {
		t.Fatalf("add_note = %q", resultText(r))
	}
	callTool(t, srv, "add_note", map[string]interface{}{"content": "body", "title": "Explicit"})

	r = callTool(t, srv, "list_notes", map[string]interface{}{})
	text := resultText(r)
	if !strings.Contains(text, "\tIdeas") || !strings.Contains(text, "\tExplicit") {
		t.Fatalf("list_notes = %q", text)
	}
	r = callTool(t, srv, "list_notes", map[string]interface{}{"limit": float64(1)})
	if strings.Count(resultText(r), "\n") != 0 {
		t.Fatalf("limit ignored: %q", resultText(r))
	}
}

func TestOverviewAndDay(t *testing.T) {
	srv, orch := testServer(t)
	ctx := context.Background()
	_, _ = orch.AddTask(ctx, models.Task{Title: "Stretch", Type: models.TaskDaily})
	_, _ = orch.AddEvent(ctx, models.CalendarEvent{Title: "Dentist", Date: "2024-05-02", Time: "09:00"})

	r := callTool(t, srv, "get_overview", map[string]interface{}{})
	if !strings.Contains(resultText(r), `"dailyTotal": 1`) {
		t.Fatalf("overview = %q", resultText(r))
	}

	r = callTool(t, srv, "get_day", map[string]interface{}{"date": "2024-05-02"})
	if !strings.Contains(resultText(r), "Dentist") {
		t.Fatalf("get_day = %q", resultText(r))
	}
	if r := callTool(t, srv, "get_day", map[string]interface{}{"date": "May 2"}); !r.IsError {
		t.Fatal("expected error for bad date")
	}
}

func TestResources(t *testing.T) {
	srv, orch := testServer(t)
	_, _ = orch.AddNote(context.Background(), models.Note{Title: "n"})

	contents, err := srv.readStateResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok || tc.URI != URIState {
		t.Fatalf("unexpected contents %+v", contents)
	}
	var s models.AppState
	if err := json.Unmarshal([]byte(tc.Text), &s); err != nil || len(s.Notes) != 1 {
		t.Fatalf("state resource = %q (%v)", tc.Text, err)
	}

	if r := callTool(t, srv, "get_guide", nil); !strings.Contains(resultText(r), "# Onyx Data Guide") {
		t.Fatal("guide missing")
	}
}
