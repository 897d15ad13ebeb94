package resources

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/HendryAvila/flowstate/internal/memory"
	"github.com/mark3labs/mcp-go/mcp"
)

func newTestStore(t *testing.T) *memory.Store {
	t.Helper()
	cfg := memory.DefaultConfig()
	cfg.DataDir = t.TempDir()
	s, err := memory.New(cfg)
	if err != nil {
		t.Fatalf("memory.New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func readReq(uri string) mcp.ReadResourceRequest {
	req := mcp.ReadResourceRequest{}
	req.Params.URI = uri
	return req
}

func text(t *testing.T, contents []mcp.ResourceContents) mcp.TextResourceContents {
	t.Helper()
	if len(contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	return tc
}

func TestHandleProjects(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.CreateProject(ctx, "flowstate", "memory engine"); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	h := NewHandler(s)

	contents, err := h.HandleProjects(ctx, readReq(projectsURI))
	if err != nil {
		t.Fatalf("HandleProjects: %v", err)
	}
	tc := text(t, contents)
	if tc.MIMEType != "application/json" {
		t.Errorf("MIMEType = %q", tc.MIMEType)
	}

	var projects []memory.Project
	if err := json.Unmarshal([]byte(tc.Text), &projects); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(projects) != 1 || projects[0].Name != "flowstate" {
		t.Errorf("unexpected projects: %+v", projects)
	}
}

func TestHandleProjectContext(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.CreateProject(ctx, "my app", ""); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	h := NewHandler(s)

	contents, err := h.HandleProjectContext(ctx, readReq("flowstate://projects/my%20app/context"))
	if err != nil {
		t.Fatalf("HandleProjectContext: %v", err)
	}
	tc := text(t, contents)
	var lean memory.LeanContext
	if err := json.Unmarshal([]byte(tc.Text), &lean); err != nil {
		t.Fatalf("unmarshal: %v (text %q)", err, tc.Text)
	}
	if lean.Project.Name != "my app" {
		t.Errorf("project = %q, want %q", lean.Project.Name, "my app")
	}
}

func TestHandleProjectContext_UnknownProject(t *testing.T) {
	h := NewHandler(newTestStore(t))

	contents, err := h.HandleProjectContext(context.Background(), readReq("flowstate://projects/ghost/context"))
	if err != nil {
		t.Fatalf("HandleProjectContext: %v", err)
	}
	tc := text(t, contents)
	if !strings.HasPrefix(tc.Text, "Error: not found:") {
		t.Errorf("expected not-found error text, got %q", tc.Text)
	}
}

func TestProjectFromURI(t *testing.T) {
	tests := []struct {
		uri     string
		want    string
		wantErr bool
	}{
		{"flowstate://projects/api/context", "api", false},
		{"flowstate://projects/a%2Fb/context", "a/b", false},
		{"flowstate://projects//context", "", true},
		{"flowstate://projects/api", "", true},
		{"other://project/status", "", true},
	}
	for _, tt := range tests {
		got, err := projectFromURI(tt.uri)
		if (err != nil) != tt.wantErr {
			t.Errorf("projectFromURI(%q) err = %v, wantErr %v", tt.uri, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("projectFromURI(%q) = %q, want %q", tt.uri, got, tt.want)
		}
	}
}
