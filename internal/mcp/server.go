package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"contextualize/internal/concepts"
	"contextualize/internal/launcher"
	"contextualize/internal/monitor"
	"contextualize/internal/tasks"
)

// Deps holds everything the server's tools operate on. The launcher
// must write agent output somewhere other than stdout, which carries
// the MCP transport.
type Deps struct {
	Store    *tasks.FileStore
	Concepts *concepts.Graph
	Launcher *launcher.Launcher
	Monitor  *monitor.Monitor
}

// NewServer creates an MCP server exposing the task and concept tools.
func NewServer(deps Deps) *mcpsdk.Server {
	server := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    "contextualize",
		Version: "0.1.0",
	}, nil)

	server.AddTool(&mcpsdk.Tool{
		Name:        "launch_task",
		Description: "Launch a new managed task with isolated context",
		InputSchema: objectSchema(map[string]any{
			"description":       stringProp("Clear description of the task"),
			"concepts":          stringListProp("Concepts to load for this task"),
			"context_from_main": stringProp("Additional context from main session"),
			"parent_id":         stringProp("Parent task ID if derived"),
			"background":        boolProp("Run the agent detached instead of waiting"),
		}, "description"),
	}, handleLaunch(deps))

	server.AddTool(&mcpsdk.Tool{
		Name:        "fork_task",
		Description: "Fork from an existing task with its context",
		InputSchema: objectSchema(map[string]any{
			"parent_id":           stringProp("Task ID to fork from, prefixes accepted"),
			"description":         stringProp("Description for the new fork"),
			"additional_concepts": stringListProp("Additional concepts to add"),
			"background":          boolProp("Run the agent detached instead of waiting"),
		}, "parent_id", "description"),
	}, handleFork(deps))

	server.AddTool(&mcpsdk.Tool{
		Name:        "complete_task",
		Description: "Mark a task as complete with a summary",
		InputSchema: objectSchema(map[string]any{
			"task_id":         stringProp("Task to complete, prefixes accepted"),
			"summary":         stringProp("Summary of what was accomplished"),
			"context_learned": stringListProp("New context discovered during the task"),
			"artifacts":       stringListProp("Files or artifacts created"),
		}, "task_id", "summary"),
	}, handleComplete(deps))

	server.AddTool(&mcpsdk.Tool{
		Name:        "check_task",
		Description: "Check the status and liveness of a task",
		InputSchema: objectSchema(map[string]any{
			"task_id": stringProp("Task to check, prefixes accepted"),
		}, "task_id"),
	}, handleCheck(deps))

	server.AddTool(&mcpsdk.Tool{
		Name:        "list_tasks",
		Description: "List tasks, optionally filtered by status",
		InputSchema: objectSchema(map[string]any{
			"status": stringProp("Only show tasks with this status"),
			"limit":  intProp("Maximum number of tasks to show", 10),
		}),
	}, handleList(deps))

	server.AddTool(&mcpsdk.Tool{
		Name:        "view_dag",
		Description: "View the task derivation tree",
		InputSchema: objectSchema(map[string]any{
			"task_id": stringProp("Root the tree at this task (default: all roots)"),
		}),
	}, handleDAG(deps))

	server.AddTool(&mcpsdk.Tool{
		Name:        "list_concepts",
		Description: "List available concepts",
		InputSchema: objectSchema(map[string]any{}),
	}, handleListConcepts(deps))

	server.AddTool(&mcpsdk.Tool{
		Name:        "load_concepts",
		Description: "Load concept content including referenced concepts",
		InputSchema: objectSchema(map[string]any{
			"concepts": stringListProp("Concept names to load"),
		}, "concepts"),
	}, handleLoadConcepts(deps))

	return server
}

type handler = mcpsdk.ToolHandler

func textResult(text string) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: text}},
	}
}

func errorResult(err error) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		IsError: true,
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: err.Error()}},
	}
}

func decodeArgs(req *mcpsdk.CallToolRequest, out any) error {
	if len(req.Params.Arguments) == 0 {
		return nil
	}
	if err := json.Unmarshal(req.Params.Arguments, out); err != nil {
		return fmt.Errorf("parse arguments: %w", err)
	}
	return nil
}

func handleLaunch(deps Deps) handler {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		var in struct {
			Description string   `json:"description"`
			Concepts    []string `json:"concepts"`
			Context     string   `json:"context_from_main"`
			ParentID    string   `json:"parent_id"`
			Background  bool     `json:"background"`
		}
		if err := decodeArgs(req, &in); err != nil {
			return errorResult(err), nil
		}

		task, err := deps.Launcher.Launch(ctx, launcher.Options{
			Description: in.Description,
			Concepts:    in.Concepts,
			Context:     in.Context,
			ParentID:    in.ParentID,
			Background:  in.Background,
		})
		if err != nil {
			slog.Debug("launch_task failed", "error", err)
			return errorResult(err), nil
		}
		return textResult(launchSummary(deps, task)), nil
	}
}

func launchSummary(deps Deps, task *tasks.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task %s launched\n", task.ShortID())
	fmt.Fprintf(&b, "Description: %s\n", task.Description)
	fmt.Fprintf(&b, "Concepts: %s\n", strings.Join(task.Concepts, ", "))
	fmt.Fprintf(&b, "Session: %s\n", task.SessionID)
	fmt.Fprintf(&b, "Status: %s\n", task.Status)
	if task.PID != 0 {
		fmt.Fprintf(&b, "PID: %d\n", task.PID)
	}

	if out, err := deps.Store.ReadOutput(task.ID); err == nil && out != "" {
		if len(out) > 500 {
			out = out[:500] + "..."
		}
		fmt.Fprintf(&b, "\nOutput:\n%s\n", out)
	}
	return b.String()
}

func handleFork(deps Deps) handler {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		var in struct {
			ParentID           string   `json:"parent_id"`
			Description        string   `json:"description"`
			AdditionalConcepts []string `json:"additional_concepts"`
			Background         bool     `json:"background"`
		}
		if err := decodeArgs(req, &in); err != nil {
			return errorResult(err), nil
		}

		parent, err := deps.Store.Get(in.ParentID)
		if err != nil {
			return errorResult(err), nil
		}

		child := tasks.DeriveFork(parent, in.Description)
		conceptSet := append(child.Concepts, in.AdditionalConcepts...)

		task, err := deps.Launcher.Launch(ctx, launcher.Options{
			Description:    child.Description,
			Concepts:       dedupe(conceptSet),
			Context:        child.Context,
			ParentID:       child.ParentID,
			ReportTemplate: child.ReportTemplate,
			Background:     in.Background,
		})
		if err != nil {
			return errorResult(err), nil
		}
		return textResult(launchSummary(deps, task)), nil
	}
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	var out []string
	for _, n := range names {
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

func handleComplete(deps Deps) handler {
	return func(_ context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		var in struct {
			TaskID         string   `json:"task_id"`
			Summary        string   `json:"summary"`
			ContextLearned []string `json:"context_learned"`
			Artifacts      []string `json:"artifacts"`
		}
		if err := decodeArgs(req, &in); err != nil {
			return errorResult(err), nil
		}

		task, err := deps.Store.Transition(in.TaskID, tasks.StatusCompleted)
		if err != nil {
			return errorResult(err), nil
		}

		var b strings.Builder
		fmt.Fprintf(&b, "# Task Summary\n\n%s\n", in.Summary)
		if len(in.ContextLearned) > 0 {
			b.WriteString("\n## Context Learned\n")
			for _, c := range in.ContextLearned {
				fmt.Fprintf(&b, "- %s\n", c)
			}
		}
		if len(in.Artifacts) > 0 {
			b.WriteString("\n## Artifacts\n")
			for _, a := range in.Artifacts {
				fmt.Fprintf(&b, "- %s\n", a)
			}
		}
		if err := deps.Store.WriteReport(task.ID, b.String()); err != nil {
			return errorResult(err), nil
		}

		return textResult(fmt.Sprintf("Task %s completed\nSummary: %s\n", task.ShortID(), in.Summary)), nil
	}
}

func handleCheck(deps Deps) handler {
	return func(_ context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		var in struct {
			TaskID string `json:"task_id"`
		}
		if err := decodeArgs(req, &in); err != nil {
			return errorResult(err), nil
		}

		check, err := deps.Monitor.Reconcile(in.TaskID)
		if err != nil {
			return errorResult(err), nil
		}

		t := check.Task
		var b strings.Builder
		fmt.Fprintf(&b, "Task %s: %s\n", t.ShortID(), t.Status)
		fmt.Fprintf(&b, "Description: %s\n", t.Description)
		fmt.Fprintf(&b, "Running: %v\n", check.Running)
		if t.PID != 0 {
			fmt.Fprintf(&b, "PID: %d\n", t.PID)
		}
		if code, ok, _ := deps.Store.ReadExitCode(t.ID); ok {
			fmt.Fprintf(&b, "Exit code: %d\n", code)
		}
		return textResult(b.String()), nil
	}
}

func handleList(deps Deps) handler {
	return func(_ context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		var in struct {
			Status string `json:"status"`
			Limit  int    `json:"limit"`
		}
		if err := decodeArgs(req, &in); err != nil {
			return errorResult(err), nil
		}
		if in.Limit <= 0 {
			in.Limit = 10
		}

		list, err := deps.Store.List(tasks.ListFilter{
			Status: tasks.Status(in.Status),
			Limit:  in.Limit,
		})
		if err != nil {
			return errorResult(err), nil
		}

		if len(list) == 0 {
			return textResult("No tasks found\n"), nil
		}
		var b strings.Builder
		for _, t := range list {
			fmt.Fprintf(&b, "%s  %-10s %s\n", t.ShortID(), t.Status, t.Description)
		}
		return textResult(b.String()), nil
	}
}

func handleDAG(deps Deps) handler {
	return func(_ context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		var in struct {
			TaskID string `json:"task_id"`
		}
		if err := decodeArgs(req, &in); err != nil {
			return errorResult(err), nil
		}

		roots, err := deps.Store.Tree(in.TaskID)
		if err != nil {
			return errorResult(err), nil
		}
		if len(roots) == 0 {
			return textResult("No tasks recorded\n"), nil
		}

		var b strings.Builder
		b.WriteString("Task DAG:\n")
		for _, root := range roots {
			writeTree(&b, root, 0)
		}
		return textResult(b.String()), nil
	}
}

func writeTree(b *strings.Builder, node *tasks.TreeNode, depth int) {
	meta := node.Task.Status.Meta()
	fmt.Fprintf(b, "%s%s %s %s\n",
		strings.Repeat("  ", depth), meta.Icon, node.Task.ShortID(), node.Task.Description)
	for _, child := range node.Children {
		writeTree(b, child, depth+1)
	}
}

func handleListConcepts(deps Deps) handler {
	return func(_ context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		list, err := deps.Concepts.List()
		if err != nil {
			return errorResult(err), nil
		}

		names := make([]string, 0, len(list))
		for _, c := range list {
			names = append(names, c.Name)
		}
		sort.Strings(names)

		var b strings.Builder
		b.WriteString("Available concepts:\n")
		for _, n := range names {
			fmt.Fprintf(&b, "  - %s\n", n)
		}
		return textResult(b.String()), nil
	}
}

func handleLoadConcepts(deps Deps) handler {
	return func(_ context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		var in struct {
			Concepts []string `json:"concepts"`
		}
		if err := decodeArgs(req, &in); err != nil {
			return errorResult(err), nil
		}

		content, err := deps.Concepts.LoadWithDependencies(in.Concepts)
		if err != nil {
			return errorResult(err), nil
		}
		if content == "" {
			return textResult("No matching concepts\n"), nil
		}
		return textResult(content), nil
	}
}
