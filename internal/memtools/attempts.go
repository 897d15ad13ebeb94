package memtools

import (
	"context"
	"fmt"
	"strings"

	"github.com/HendryAvila/flowstate/internal/memory"
	"github.com/mark3labs/mcp-go/mcp"
)

// AttemptLogTool handles the flowstate_attempt_log MCP tool.
type AttemptLogTool struct {
	store *memory.Store
}

// NewAttemptLogTool creates an AttemptLogTool.
func NewAttemptLogTool(store *memory.Store) *AttemptLogTool {
	return &AttemptLogTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_attempt_log.
func (t *AttemptLogTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"attempt_log",
		mcp.WithDescription(
			"Record an approach you are trying for a problem. Pass parent_attempt_id when it builds on an earlier attempt, "+
				"so the attempt tree shows which ideas grew from which.",
		),
		mcp.WithNumber("problem_id", mcp.Required(), mcp.Description("Problem id")),
		mcp.WithString("description", mcp.Required(), mcp.Description("What you are trying")),
		mcp.WithNumber("parent_attempt_id", mcp.Description("Attempt this one refines")),
	)
}

// Handle processes the flowstate_attempt_log tool call.
func (t *AttemptLogTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	problemID, res := idArg(req, "problem_id")
	if res != nil {
		return res, nil
	}
	a, err := t.store.LogAttempt(ctx, problemID, req.GetString("description", ""), optIDArg(req, "parent_attempt_id"))
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(a), nil
}

// ─── AttemptOutcomeTool ─────────────────────────────────────────────────────

// AttemptOutcomeTool handles the flowstate_attempt_outcome MCP tool.
type AttemptOutcomeTool struct {
	store *memory.Store
}

// NewAttemptOutcomeTool creates an AttemptOutcomeTool.
func NewAttemptOutcomeTool(store *memory.Store) *AttemptOutcomeTool {
	return &AttemptOutcomeTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_attempt_outcome.
func (t *AttemptOutcomeTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"attempt_outcome",
		mcp.WithDescription("Record how an attempt went. Failures are worth recording: they stop the next session repeating them."),
		mcp.WithNumber("attempt_id", mcp.Required(), mcp.Description("Attempt id")),
		mcp.WithString("outcome", mcp.Required(), mcp.Description(enumDesc("Outcome", memory.Outcomes))),
		mcp.WithString("confidence", mcp.Description(enumDesc("How sure the outcome is (omit to keep the current value)", memory.Confidences))),
		mcp.WithString("notes", mcp.Description("What happened")),
	)
}

// Handle processes the flowstate_attempt_outcome tool call.
func (t *AttemptOutcomeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	attemptID, res := idArg(req, "attempt_id")
	if res != nil {
		return res, nil
	}
	a, err := t.store.MarkOutcome(ctx, attemptID,
		req.GetString("outcome", ""),
		req.GetString("confidence", ""),
		optStringArg(req, "notes"),
	)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(a), nil
}

// ─── ProblemSolveTool ───────────────────────────────────────────────────────

// ProblemSolveTool handles the flowstate_problem_solve MCP tool.
type ProblemSolveTool struct {
	store *memory.Store
}

// NewProblemSolveTool creates a ProblemSolveTool.
func NewProblemSolveTool(store *memory.Store) *ProblemSolveTool {
	return &ProblemSolveTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_problem_solve.
func (t *ProblemSolveTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"problem_solve",
		mcp.WithDescription(
			"Mark a problem solved and record the solution. A problem has one solution; "+
				"pass update=true to rewrite it instead of failing with a conflict.",
		),
		mcp.WithNumber("problem_id", mcp.Required(), mcp.Description("Problem id")),
		mcp.WithString("summary", mcp.Required(), mcp.Description("What fixed it")),
		mcp.WithNumber("winning_attempt_id", mcp.Description("The attempt that worked")),
		mcp.WithString("key_insight", mcp.Description("The one thing to remember")),
		mcp.WithString("code_snippet", mcp.Description("Relevant code")),
		mcp.WithBoolean("update", mcp.Description("Replace an existing solution")),
	)
}

// Handle processes the flowstate_problem_solve tool call.
func (t *ProblemSolveTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	problemID, res := idArg(req, "problem_id")
	if res != nil {
		return res, nil
	}
	sol, err := t.store.MarkSolved(ctx, memory.MarkSolvedParams{
		ProblemID:        problemID,
		WinningAttemptID: optIDArg(req, "winning_attempt_id"),
		Summary:          req.GetString("summary", ""),
		KeyInsight:       req.GetString("key_insight", ""),
		CodeSnippet:      req.GetString("code_snippet", ""),
		Update:           boolArg(req, "update", false),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(sol), nil
}

// ─── ProblemTreeTool ────────────────────────────────────────────────────────

// ProblemTreeTool handles the flowstate_problem_tree MCP tool.
type ProblemTreeTool struct {
	store *memory.Store
}

// NewProblemTreeTool creates a ProblemTreeTool.
func NewProblemTreeTool(store *memory.Store) *ProblemTreeTool {
	return &ProblemTreeTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_problem_tree.
func (t *ProblemTreeTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"problem_tree",
		mcp.WithDescription("Show every attempt made on a problem as a tree, with the solution if there is one."),
		mcp.WithNumber("problem_id", mcp.Required(), mcp.Description("Problem id")),
		mcp.WithString("format", mcp.Description("text (default) or json")),
	)
}

// Handle processes the flowstate_problem_tree tool call.
func (t *ProblemTreeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	problemID, res := idArg(req, "problem_id")
	if res != nil {
		return res, nil
	}
	tree, err := t.store.Tree(ctx, problemID)
	if err != nil {
		return errorResult(err), nil
	}
	if req.GetString("format", "text") == "json" {
		return jsonResult(tree), nil
	}
	return mcp.NewToolResultText(renderTree(tree)), nil
}

// renderTree draws the attempt forest with box-drawing connectors.
func renderTree(tree *memory.AttemptTree) string {
	byID := make(map[int64]memory.Attempt, len(tree.Attempts))
	for _, a := range tree.Attempts {
		byID[a.ID] = a
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Problem #%d: %s [%s]\n", tree.Problem.ID, tree.Problem.Title, tree.Problem.Status)
	if len(tree.Attempts) == 0 {
		b.WriteString("  (no attempts yet)\n")
	}

	var walk func(ids []int64, indent string)
	walk = func(ids []int64, indent string) {
		for i, id := range ids {
			a := byID[id]
			branch, next := "├── ", "│   "
			if i == len(ids)-1 {
				branch, next = "└── ", "    "
			}
			fmt.Fprintf(&b, "%s%s#%d %s (%s, %s)\n", indent, branch, a.ID, memory.Truncate(a.Description, 80), a.Outcome, a.Confidence)
			walk(tree.Children[id], indent+next)
		}
	}
	walk(tree.Roots, "")

	if tree.Solution != nil {
		fmt.Fprintf(&b, "\nSolution: %s\n", tree.Solution.Summary)
		if tree.Solution.KeyInsight != "" {
			fmt.Fprintf(&b, "Key insight: %s\n", tree.Solution.KeyInsight)
		}
	}
	return b.String()
}

// ─── AttemptDeleteTool ──────────────────────────────────────────────────────

// AttemptDeleteTool handles the flowstate_attempt_delete MCP tool.
type AttemptDeleteTool struct {
	store *memory.Store
}

// NewAttemptDeleteTool creates an AttemptDeleteTool.
func NewAttemptDeleteTool(store *memory.Store) *AttemptDeleteTool {
	return &AttemptDeleteTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_attempt_delete.
func (t *AttemptDeleteTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"attempt_delete",
		mcp.WithDescription("Delete an attempt. Its child attempts become roots; a solution it won keeps its summary without a winner."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Attempt id")),
	)
}

// Handle processes the flowstate_attempt_delete tool call.
func (t *AttemptDeleteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, res := idArg(req, "id")
	if res != nil {
		return res, nil
	}
	if err := t.store.DeleteAttempt(ctx, id); err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Attempt #%d deleted", id)), nil
}

// ─── SolutionDeleteTool ─────────────────────────────────────────────────────

// SolutionDeleteTool handles the flowstate_solution_delete MCP tool.
type SolutionDeleteTool struct {
	store *memory.Store
}

// NewSolutionDeleteTool creates a SolutionDeleteTool.
func NewSolutionDeleteTool(store *memory.Store) *SolutionDeleteTool {
	return &SolutionDeleteTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_solution_delete.
func (t *SolutionDeleteTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"solution_delete",
		mcp.WithDescription("Delete the solution of a problem so it can be solved again. The problem keeps its status; reopen it with flowstate_problem_update."),
		mcp.WithNumber("problem_id", mcp.Required(), mcp.Description("Problem whose solution to delete")),
	)
}

// Handle processes the flowstate_solution_delete tool call.
func (t *SolutionDeleteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	problemID, res := idArg(req, "problem_id")
	if res != nil {
		return res, nil
	}
	if err := t.store.DeleteSolution(ctx, problemID); err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Solution of problem #%d deleted", problemID)), nil
}
