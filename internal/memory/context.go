package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Lean rendering limits.
const (
	leanMaxBlockers    = 3
	leanMaxTodos       = 3
	leanBlockerTitle   = 60
	leanTodoTitle      = 50
	leanRecentFocusLen = 80
)

// AttachmentSource is the external attachment store. FlowState never reads
// attachment bytes; it only surfaces metadata and indexed locations.
type AttachmentSource interface {
	Attachments(ctx context.Context, projectID int64) ([]Attachment, error)
}

// Attachment is file metadata supplied by an AttachmentSource.
type Attachment struct {
	ID               string            `json:"id"`
	Filename         string            `json:"filename"`
	MimeType         string            `json:"mime_type,omitempty"`
	SizeBytes        int64             `json:"size_bytes,omitempty"`
	ContentLocations []ContentLocation `json:"content_locations,omitempty"`
}

// ContentLocation points into an attachment's indexed content.
type ContentLocation struct {
	Label   string `json:"label"`
	Offset  int64  `json:"offset"`
	Snippet string `json:"snippet,omitempty"`
}

// Context is the full working context of a project.
type Context struct {
	Project         Project      `json:"project"`
	Components      []Component  `json:"components"`
	OpenProblems    []Problem    `json:"open_problems"`
	RecentChanges   []Change     `json:"recent_changes"`
	PriorityTodos   []Todo       `json:"priority_todos"`
	RecentLearnings []Learning   `json:"recent_learnings"`
	ActiveSession   *Session     `json:"active_session,omitempty"`
	Attachments     []Attachment `json:"attachments,omitempty"`
	Window          string       `json:"window"`
	Warnings        []string     `json:"warnings,omitempty"`
}

// LeanContext is the bounded session-start view of a project.
type LeanContext struct {
	Project          LeanProject `json:"project"`
	Counts           LeanCounts  `json:"counts"`
	Blocking         []LeanItem  `json:"blocking"`
	QuickTodos       []string    `json:"quick_todos"`
	RecentFocus      string      `json:"recent_focus,omitempty"`
	HasActiveSession bool        `json:"has_active_session"`
	EstimatedTokens  int         `json:"estimated_tokens"`
}

// LeanProject is the project identity carried by LeanContext.
type LeanProject struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// LeanCounts summarizes each category of the full context.
type LeanCounts struct {
	Components    int `json:"components"`
	OpenProblems  int `json:"open_problems"`
	PendingTodos  int `json:"pending_todos"`
	RecentChanges int `json:"recent_changes"`
	Learnings     int `json:"learnings"`
}

// LeanItem is a blocking problem reduced to id, short title and severity.
type LeanItem struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Severity string `json:"severity"`
}

// Assemble gathers a project's working context from one snapshot: open and
// investigating problems, changes inside window, high and critical todos
// that are still actionable, the most recent learnings, and the active
// session. A zero window uses the configured default.
func (s *Store) Assemble(ctx context.Context, projectName string, window time.Duration, includeAttachments bool) (*Context, error) {
	if window <= 0 {
		window = s.cfg.RecencyWindow
	}
	var out *Context
	err := s.withReadTx(ctx, func(tx *sql.Tx) error {
		c, err := s.gather(ctx, tx, projectName, window)
		if err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	if includeAttachments && s.attachments != nil {
		atts, err := s.attachments.Attachments(ctx, out.Project.ID)
		if err != nil {
			s.log.Warn("attachments unavailable", "project", out.Project.Name, "error", err)
			out.Warnings = append(out.Warnings, "attachments unavailable: "+err.Error())
		} else {
			out.Attachments = atts
		}
	}
	return out, nil
}

func (s *Store) gather(ctx context.Context, tx *sql.Tx, projectName string, window time.Duration) (*Context, error) {
	project, err := projectByName(ctx, tx, projectName)
	if err != nil {
		return nil, err
	}
	c := &Context{Project: *project, Window: window.String()}

	if c.Components, err = listComponents(ctx, tx, project.ID); err != nil {
		return nil, err
	}
	if c.OpenProblems, err = listProblems(ctx, tx, project.ID, "open", "investigating"); err != nil {
		return nil, err
	}
	if c.RecentChanges, err = recentChanges(ctx, tx, project.ID, window, 0); err != nil {
		return nil, err
	}
	if c.PriorityTodos, err = listTodos(ctx, tx, project.ID, TodoFilter{Priorities: []string{"critical", "high"}}); err != nil {
		return nil, err
	}
	if c.RecentLearnings, err = listLearnings(ctx, tx, project.ID, "", s.cfg.RecentLearnings); err != nil {
		return nil, err
	}
	if c.ActiveSession, err = activeSession(ctx, tx, project.ID); err != nil {
		return nil, err
	}
	return c, nil
}

// AssembleLean returns the bounded rendering used at session start. Its
// size does not grow with the size of the stored text.
func (s *Store) AssembleLean(ctx context.Context, projectName string, window time.Duration) (*LeanContext, error) {
	full, err := s.Assemble(ctx, projectName, window, false)
	if err != nil {
		return nil, err
	}
	return Lean(full), nil
}

// Lean reduces a full context to its lean form.
func Lean(c *Context) *LeanContext {
	lean := &LeanContext{
		Project: LeanProject{ID: c.Project.ID, Name: c.Project.Name, Status: c.Project.Status},
		Counts: LeanCounts{
			Components:    len(c.Components),
			OpenProblems:  len(c.OpenProblems),
			PendingTodos:  len(c.PriorityTodos),
			RecentChanges: len(c.RecentChanges),
			Learnings:     len(c.RecentLearnings),
		},
		Blocking:         []LeanItem{},
		QuickTodos:       []string{},
		HasActiveSession: c.ActiveSession != nil,
	}
	for _, p := range c.OpenProblems {
		if len(lean.Blocking) == leanMaxBlockers {
			break
		}
		if p.Severity == "critical" || p.Severity == "high" {
			lean.Blocking = append(lean.Blocking, LeanItem{ID: p.ID, Title: Truncate(p.Title, leanBlockerTitle), Severity: p.Severity})
		}
	}
	for _, t := range c.PriorityTodos {
		if len(lean.QuickTodos) == leanMaxTodos {
			break
		}
		lean.QuickTodos = append(lean.QuickTodos, Truncate(t.Title, leanTodoTitle))
	}
	if len(c.RecentChanges) > 0 {
		last := c.RecentChanges[0]
		lean.RecentFocus = Truncate(last.ComponentName+": "+last.FieldName, leanRecentFocusLen)
	}
	if b, err := json.Marshal(lean); err == nil {
		lean.EstimatedTokens = EstimateTokens(string(b))
	}
	return lean
}

// ─── Rendering ───────────────────────────────────────────────────────────────

// FormatLean renders a lean context as compact markdown.
func FormatLean(l *LeanContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s (#%d, %s)\n", l.Project.Name, l.Project.ID, l.Project.Status)
	fmt.Fprintf(&b, "components: %d | open problems: %d | priority todos: %d | recent changes: %d | learnings: %d\n",
		l.Counts.Components, l.Counts.OpenProblems, l.Counts.PendingTodos, l.Counts.RecentChanges, l.Counts.Learnings)
	if len(l.Blocking) > 0 {
		b.WriteString("Blocking:\n")
		for _, item := range l.Blocking {
			fmt.Fprintf(&b, "- #%d [%s] %s\n", item.ID, item.Severity, item.Title)
		}
	}
	if len(l.QuickTodos) > 0 {
		b.WriteString("Todos:\n")
		for _, t := range l.QuickTodos {
			fmt.Fprintf(&b, "- %s\n", t)
		}
	}
	if l.RecentFocus != "" {
		fmt.Fprintf(&b, "Recent focus: %s\n", l.RecentFocus)
	}
	if l.HasActiveSession {
		b.WriteString("Session: active\n")
	}
	return b.String()
}

// FormatContext renders a full context as markdown.
func FormatContext(c *Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s (#%d, %s)\n", c.Project.Name, c.Project.ID, c.Project.Status)
	if c.Project.Description != "" {
		fmt.Fprintf(&b, "%s\n", Truncate(c.Project.Description, 300))
	}
	b.WriteString("\n")

	if c.ActiveSession != nil {
		fmt.Fprintf(&b, "### Active Session\n- #%d started %s\n\n", c.ActiveSession.ID, c.ActiveSession.StartedAt)
	}

	if len(c.Components) > 0 {
		b.WriteString("### Components\n")
		for _, comp := range c.Components {
			fmt.Fprintf(&b, "- #%d **%s** [%s]\n", comp.ID, comp.Name, comp.Status)
		}
		b.WriteString("\n")
	}

	if len(c.OpenProblems) > 0 {
		b.WriteString("### Open Problems\n")
		for _, p := range c.OpenProblems {
			fmt.Fprintf(&b, "- #%d [%s/%s] **%s** (%s)", p.ID, p.Severity, p.Status, p.Title, p.ComponentName)
			if p.Description != "" {
				fmt.Fprintf(&b, ": %s", Truncate(p.Description, 200))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(c.RecentChanges) > 0 {
		fmt.Fprintf(&b, "### Changes (last %s)\n", c.Window)
		for _, ch := range c.RecentChanges {
			fmt.Fprintf(&b, "- %s %s.%s: %s -> %s", ch.CreatedAt, ch.ComponentName, ch.FieldName,
				Truncate(ch.OldValue, 60), Truncate(ch.NewValue, 60))
			if ch.Reason != "" {
				fmt.Fprintf(&b, " (%s)", Truncate(ch.Reason, 120))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(c.PriorityTodos) > 0 {
		b.WriteString("### Priority Todos\n")
		for _, t := range c.PriorityTodos {
			fmt.Fprintf(&b, "- #%d [%s/%s] %s\n", t.ID, t.Priority, t.Status, t.Title)
		}
		b.WriteString("\n")
	}

	if len(c.RecentLearnings) > 0 {
		b.WriteString("### Recent Learnings\n")
		for _, l := range c.RecentLearnings {
			fmt.Fprintf(&b, "- [%s] %s\n", l.Category, Truncate(l.Insight, 200))
		}
		b.WriteString("\n")
	}

	if len(c.Attachments) > 0 {
		b.WriteString("### Attachments\n")
		for _, a := range c.Attachments {
			fmt.Fprintf(&b, "- %s (%d locations)\n", a.Filename, len(a.ContentLocations))
		}
		b.WriteString("\n")
	}

	for _, w := range c.Warnings {
		fmt.Fprintf(&b, "⚠️ %s\n", w)
	}
	return b.String()
}
