package prompts

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// WrapUpPrompt handles the flowstate-wrapup MCP prompt.
// It closes a session so the next one can resume from a snapshot.
type WrapUpPrompt struct{}

// NewWrapUpPrompt creates a WrapUpPrompt.
func NewWrapUpPrompt() *WrapUpPrompt {
	return &WrapUpPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *WrapUpPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("flowstate-wrapup",
		mcp.WithPromptDescription(
			"Close the current working session: record what changed, "+
				"save a snapshot for next time and promote knowledge that has proven itself.",
		),
		mcp.WithArgument("project",
			mcp.ArgumentDescription("Project name"),
			mcp.RequiredArgument(),
		),
	)
}

// Handle processes the flowstate-wrapup prompt request.
func (p *WrapUpPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	project := argOr(req, "project", "")
	if project == "" {
		return nil, fmt.Errorf("flowstate-wrapup: project argument is required")
	}

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Wrap up the session on %s", project),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(fmt.Sprintf(
					"We're done for now on '%s'. Before we stop:\n\n"+
						"1. Log any change, problem or learning from this session that is not recorded yet "+
						"(`flowstate_change_log`, `flowstate_problem_log`, `flowstate_learning_log`)\n"+
						"2. Run `flowstate_state_latest` with project='%s', then `flowstate_session_finalize` "+
						"with that snapshot as state_id, a one-line focus, the key facts we established and the pending decisions\n"+
						"3. Run `flowstate_session_end` with a short summary\n"+
						"4. Tell me what was promoted, if anything, and what the next session should start with",
					project, project,
				)),
			},
		},
	}, nil
}
