package prompts

import (
	"context"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

func promptReq(args map[string]string) mcp.GetPromptRequest {
	var req mcp.GetPromptRequest
	req.Params.Arguments = args
	return req
}

func promptText(t *testing.T, res *mcp.GetPromptResult) string {
	t.Helper()
	if len(res.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(res.Messages))
	}
	tc, ok := res.Messages[0].Content.(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", res.Messages[0].Content)
	}
	return tc.Text
}

func TestStartPrompt_LeanThenInitialize(t *testing.T) {
	p := NewStartPrompt()
	if p.Definition().Name != "flowstate-start" {
		t.Errorf("unexpected name %q", p.Definition().Name)
	}

	res, err := p.Handle(context.Background(), promptReq(map[string]string{"project": "api", "task_type": "debugging"}))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	text := promptText(t, res)

	ctxAt := strings.Index(text, "flowstate_context")
	initAt := strings.Index(text, "flowstate_session_initialize")
	if ctxAt < 0 || initAt < 0 || ctxAt > initAt {
		t.Errorf("expected context before initialize:\n%s", text)
	}
	if !strings.Contains(text, "task_type='debugging'") {
		t.Errorf("task type not forwarded:\n%s", text)
	}
}

func TestStartPrompt_WithoutTaskType(t *testing.T) {
	res, err := NewStartPrompt().Handle(context.Background(), promptReq(map[string]string{"project": "api"}))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if strings.Contains(promptText(t, res), "task_type") {
		t.Error("task_type should be omitted when not given")
	}
}

func TestPrompts_RequireProject(t *testing.T) {
	if _, err := NewStartPrompt().Handle(context.Background(), promptReq(nil)); err == nil {
		t.Error("start: expected error without project")
	}
	if _, err := NewWrapUpPrompt().Handle(context.Background(), promptReq(map[string]string{"project": ""})); err == nil {
		t.Error("wrapup: expected error for empty project")
	}
}

func TestWrapUpPrompt_FinalizesAndEnds(t *testing.T) {
	res, err := NewWrapUpPrompt().Handle(context.Background(), promptReq(map[string]string{"project": "api"}))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	text := promptText(t, res)
	for _, want := range []string{"flowstate_session_finalize", "flowstate_session_end", "'api'"} {
		if !strings.Contains(text, want) {
			t.Errorf("wrapup prompt missing %q", want)
		}
	}
}
