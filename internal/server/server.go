// Package server wires all MCP components and creates the server instance.
//
// This is the composition root: it builds the concrete store, indexes and
// retriever from configuration and injects them into the tools, prompts
// and resources. No business logic lives here, only wiring.
package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/server"

	"github.com/HendryAvila/flowstate/internal/config"
	"github.com/HendryAvila/flowstate/internal/logging"
	"github.com/HendryAvila/flowstate/internal/memory"
	"github.com/HendryAvila/flowstate/internal/memtools"
	"github.com/HendryAvila/flowstate/internal/prompts"
	"github.com/HendryAvila/flowstate/internal/resources"
	"github.com/HendryAvila/flowstate/internal/search"
	"github.com/HendryAvila/flowstate/internal/updater"
	"github.com/HendryAvila/flowstate/internal/vector"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Deps are the shared collaborators built from configuration. The CLI
// uses them directly; the MCP server registers tools on top of them.
type Deps struct {
	Config    *config.Config
	Logger    *slog.Logger
	Store     *memory.Store
	Retriever *search.Retriever

	// Vectors is nil when embedding.provider is none or the index could
	// not be opened.
	Vectors *vector.Index

	closers []io.Closer
}

// Open resolves every dependency from cfg. The caller must call Close.
//
// A vector index that fails to open is not fatal: FlowState keeps working
// on the token channel and every search reports degraded mode.
func Open(cfg *config.Config) (*Deps, error) {
	logger, logCloser, err := logging.New(logging.Options{
		File:       cfg.LogFile,
		Level:      cfg.LogLevel,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	})
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	d := &Deps{Config: cfg, Logger: logger}
	d.closers = append(d.closers, logCloser)

	opts := []memory.Option{memory.WithLogger(logger)}
	if cfg.EmbeddingProvider == config.ProviderOllama {
		ix, err := openVectors(cfg)
		if err != nil {
			logger.Warn("vector index disabled", "error", err)
		} else {
			d.Vectors = ix
			d.closers = append(d.closers, ix)
			opts = append(opts, memory.WithVectorIndexer(ix))
		}
	}

	store, err := memory.New(cfg.MemoryConfig(), opts...)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("opening memory store: %w", err)
	}
	d.Store = store
	d.closers = append(d.closers, store)

	ropts := search.Options{
		TokenWeight:   cfg.TokenWeight,
		VectorWeight:  cfg.VectorWeight,
		VectorTimeout: cfg.EmbeddingTimeout,
		Logger:        logger,
	}
	if d.Vectors != nil {
		d.Retriever = search.NewRetriever(store, d.Vectors, ropts)
	} else {
		// Untyped nil: a typed nil *vector.Index would look like a live channel.
		d.Retriever = search.NewRetriever(store, nil, ropts)
	}

	logger.Info("flowstate ready",
		"data_dir", cfg.DataDir,
		"embedding", cfg.EmbeddingProvider,
		"vectors", d.Vectors != nil,
	)
	return d, nil
}

func openVectors(cfg *config.Config) (*vector.Index, error) {
	embedder, err := vector.NewOllamaEmbedder(cfg.EmbeddingModel)
	if err != nil {
		return nil, err
	}
	ix, err := vector.Open(cfg.VectorPath(), embedder)
	if err != nil {
		return nil, err
	}
	ix.RequireDimensions(cfg.EmbeddingDimensions)
	return ix, nil
}

// Close releases every dependency in reverse order of creation. It is safe
// to call more than once.
func (d *Deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i].Close(); err != nil && d.Logger != nil {
			d.Logger.Warn("close", "error", err)
		}
	}
	d.closers = nil
}

// New creates and configures the MCP server with all tools, prompts, and
// resources registered. This is the single place where all dependencies
// are resolved.
//
// The returned cleanup function closes the store, the vector index and the
// log file and must be called on shutdown (typically via defer).
func New(configDir string) (*server.MCPServer, func(), error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, noop, fmt.Errorf("loading config: %w", err)
	}
	d, err := Open(cfg)
	if err != nil {
		return nil, noop, err
	}
	if d.Vectors != nil {
		go warnIfEmbedderDown(d)
	}
	if Version != "dev" {
		go logAvailableUpdate(d.Logger)
	}
	return NewWithDeps(d), d.Close, nil
}

// NewWithDeps builds the MCP server on already resolved dependencies.
func NewWithDeps(d *Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"flowstate",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	// --- Register tools ---
	//
	// One session key per server process: distinct processes count as
	// distinct sessions when skills and patterns are promoted.
	sessionKey := uuid.NewString()
	for _, t := range memtools.All(d.Store, d.Retriever, sessionKey) {
		s.AddTool(t.Definition(), t.Handle)
	}

	// --- Register prompts ---

	startPrompt := prompts.NewStartPrompt()
	s.AddPrompt(startPrompt.Definition(), startPrompt.Handle)

	wrapUpPrompt := prompts.NewWrapUpPrompt()
	s.AddPrompt(wrapUpPrompt.Definition(), wrapUpPrompt.Handle)

	// --- Register resources ---

	resourceHandler := resources.NewHandler(d.Store)
	s.AddResource(resourceHandler.ProjectsResource(), resourceHandler.HandleProjects)
	s.AddResourceTemplate(resourceHandler.ProjectContextTemplate(), resourceHandler.HandleProjectContext)

	d.Logger.Debug("mcp server built", "session_key", sessionKey)
	return s
}

// warnIfEmbedderDown logs once at startup when Ollama is not reachable.
// Searches still work; they report degraded mode until it comes back.
func warnIfEmbedderDown(d *Deps) {
	embedder, err := vector.NewOllamaEmbedder(d.Config.EmbeddingModel)
	if err != nil {
		return
	}
	if !embedder.Available(context.Background()) {
		d.Logger.Warn("ollama is not reachable; searches fall back to keyword matches",
			"model", embedder.Model())
	}
}

// logAvailableUpdate tells the log about a newer release. Stdout belongs to
// the protocol, so this is the only place the notice can go while serving.
func logAvailableUpdate(logger *slog.Logger) {
	r := updater.CheckVersion(context.Background(), Version)
	if r.UpdateAvailable {
		logger.Info("update available", "current", r.CurrentVersion, "latest", r.LatestVersion, "url", r.ReleaseURL)
	}
}

// noop is the cleanup returned when nothing was opened.
func noop() {}

// serverInstructions returns the system instructions that tell the AI
// how to use FlowState effectively.
func serverInstructions() string {
	return `You have access to FlowState, a persistent project memory.
It remembers projects, components, changes, problems and every attempt made
on them, todos, learnings and the skills and patterns that proved useful.
Memory survives between conversations.

## Session lifecycle
1. At the start, call flowstate_context (detail=lean) for the project, then
   flowstate_session_initialize for a briefing. Ask for detail=full only
   when the lean view is not enough.
2. Call flowstate_session_start once per working session.
3. Before the conversation ends, call flowstate_session_finalize with the
   latest snapshot, then flowstate_session_end.

## What to record (PROACTIVELY)
- flowstate_change_log after modifying a component.
- flowstate_problem_log when something breaks, flowstate_attempt_log for
  each approach, flowstate_attempt_outcome once you know how it went, and
  flowstate_problem_solve when it is fixed. Record failures too: they stop
  the next session from repeating them.
- flowstate_learning_log for gotchas, decisions and conventions.
- flowstate_todo_add for work you are deferring.
- flowstate_state_save at natural checkpoints in long sessions.

## What to look up
- flowstate_search before debugging something that looks familiar.
- flowstate_problem_tree to see what was already tried.
- flowstate_tool_recommend before choosing a tool for a task type.
- flowstate_component_history before changing a component with a past.
- flowstate_variable_list and flowstate_method_list for project settings
  and the project's standard way of doing things.

## Skills and patterns
Use flowstate_skill_learn and flowstate_pattern_record when a procedure or a
recurring approach emerges. Call *_apply when you use one and *_confirm with
the result. Knowledge that keeps working across sessions is promoted
automatically and shows up first in briefings.
Record flowstate_tool_use_record for external tool calls and correct it with
flowstate_tool_use_rate when the user overrides you. Log flowstate_metric_log
when a checkpoint or tool choice clearly worked or missed.

## Errors
Tool errors start with their kind: "not found:", "validation:" or
"conflict:". A "degraded:" note on search means only keyword matching was
available; the results are still valid.`
}
