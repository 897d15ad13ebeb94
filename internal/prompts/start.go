// Package prompts implements the FlowState MCP prompts.
//
// MCP prompts are user-triggered workflows (like slash commands) that
// instruct the AI to run a sequence of tools. Tools are called by the AI;
// prompts are started by the user.
package prompts

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// StartPrompt handles the flowstate-start MCP prompt.
// It loads the lean project context and a session briefing.
type StartPrompt struct{}

// NewStartPrompt creates a StartPrompt.
func NewStartPrompt() *StartPrompt {
	return &StartPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *StartPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("flowstate-start",
		mcp.WithPromptDescription(
			"Pick up where you left off on a project: loads a compact context "+
				"and a briefing with the last snapshot, proven skills and recommended tools.",
		),
		mcp.WithArgument("project",
			mcp.ArgumentDescription("Project name"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("task_type",
			mcp.ArgumentDescription("Kind of work planned, e.g. debugging or refactor. Narrows the briefing."),
		),
	)
}

// Handle processes the flowstate-start prompt request.
func (p *StartPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	project := argOr(req, "project", "")
	if project == "" {
		return nil, fmt.Errorf("flowstate-start: project argument is required")
	}
	taskType := argOr(req, "task_type", "")

	briefing := fmt.Sprintf("`flowstate_session_initialize` with project='%s'", project)
	if taskType != "" {
		briefing = fmt.Sprintf("`flowstate_session_initialize` with project='%s' and task_type='%s'", project, taskType)
	}

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Resume work on %s", project),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(fmt.Sprintf(
					"I'm resuming work on the project '%s'.\n\n"+
						"Please:\n"+
						"1. Run `flowstate_context` with project='%s' (detail=lean)\n"+
						"2. Run %s\n"+
						"3. Run `flowstate_session_start` with project='%s'\n"+
						"4. Summarize in a few lines: where we stopped, what is blocking, and what to do first\n\n"+
						"Only ask for the full context (detail=full) if the lean view is not enough.",
					project, project, briefing, project,
				)),
			},
		},
	}, nil
}

// argOr returns a prompt argument or def when it is missing or empty.
func argOr(req mcp.GetPromptRequest, name, def string) string {
	if args := req.Params.Arguments; args != nil {
		if v, ok := args[name]; ok && v != "" {
			return v
		}
	}
	return def
}
