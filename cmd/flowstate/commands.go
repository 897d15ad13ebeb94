package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/HendryAvila/flowstate/internal/config"
	"github.com/HendryAvila/flowstate/internal/memory"
	"github.com/HendryAvila/flowstate/internal/search"
	fsserver "github.com/HendryAvila/flowstate/internal/server"
)

// withDeps loads configuration, opens every dependency, runs fn and closes
// them again.
func withDeps(configDir string, fn func(d *fsserver.Deps) error) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return err
	}
	d, err := fsserver.Open(cfg)
	if err != nil {
		return err
	}
	defer d.Close()
	return fn(d)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ─── serve ──────────────────────────────────────────────────────────────────

func serveCmd(configDir func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server (stdio transport)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, cleanup, err := fsserver.New(configDir())
			if err != nil {
				return fmt.Errorf("creating server: %w", err)
			}
			defer cleanup()

			// Graceful shutdown on interrupt.
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// Stdout carries the protocol, so transport errors go to stderr.
			stdio := server.NewStdioServer(s)
			stdio.SetErrorLogger(log.New(os.Stderr, "flowstate: ", log.LstdFlags))
			err = stdio.Listen(ctx, os.Stdin, os.Stdout)
			if err != nil && ctx.Err() != nil {
				return nil
			}
			return err
		},
	}
}

// ─── context ────────────────────────────────────────────────────────────────

func contextCmd(configDir func() string) *cobra.Command {
	var (
		full   bool
		hours  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "context <project>",
		Short: "Print a project's working context",
		Long: `Print the working context of a project: blockers, priority todos and recent
activity. The lean view is the default; --full adds components, changes and
learnings.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(configDir(), func(d *fsserver.Deps) error {
				ctx := cmd.Context()
				window := time.Duration(hours) * time.Hour
				out := cmd.OutOrStdout()

				if !full {
					lean, err := d.Store.AssembleLean(ctx, args[0], window)
					if err != nil {
						return err
					}
					if asJSON {
						return writeJSON(out, lean)
					}
					_, err = fmt.Fprint(out, memory.FormatLean(lean))
					return err
				}

				c, err := d.Store.Assemble(ctx, args[0], window, false)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(out, c)
				}
				_, err = fmt.Fprint(out, memory.FormatContext(c))
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "include every section")
	cmd.Flags().IntVar(&hours, "hours", 0, "recency window in hours (default from config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

// ─── search ─────────────────────────────────────────────────────────────────

func searchCmd(configDir func() string) *cobra.Command {
	var (
		project string
		types   []string
		limit   int
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search everything FlowState remembers",
		Long: `Search projects, problems, attempts, solutions, todos, learnings and
conversations with keyword and semantic matching.

Examples:
  flowstate search "timeout"
  flowstate search "retry backoff" --project api --type problem,solution`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(configDir(), func(d *fsserver.Deps) error {
				ctx := cmd.Context()
				q := search.Query{Text: args[0], ContentTypes: types, Limit: limit}
				if project != "" {
					p, err := d.Store.GetProjectByName(ctx, project)
					if err != nil {
						return err
					}
					q.ProjectID = &p.ID
				}

				resp, err := d.Retriever.Search(ctx, q)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON {
					return writeJSON(out, resp)
				}
				printResults(out, resp)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&project, "project", "p", "", "only search this project")
	cmd.Flags().StringSliceVarP(&types, "type", "t", nil, "filter by content type")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum results")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

func printResults(w io.Writer, resp *search.Response) {
	if resp.Degraded != nil {
		fmt.Fprintf(w, "Note: %s. Showing keyword matches only.\n\n", resp.Degraded.Error())
	}
	if len(resp.Results) == 0 {
		fmt.Fprintln(w, "No matches.")
		return
	}
	for i, r := range resp.Results {
		fmt.Fprintf(w, "[%d] %s #%d - %s (score %.2f, %s)\n", i+1, r.ContentType, r.ContentID, r.Title, r.Score, r.Source)
		if r.Snippet != "" {
			fmt.Fprintf(w, "    %s\n", memory.Truncate(r.Snippet, 120))
		}
	}
}

// ─── reindex ────────────────────────────────────────────────────────────────

func reindexCmd(configDir func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the search index from every stored item",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(configDir(), func(d *fsserver.Deps) error {
				res, err := d.Store.Reindex(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reindexed %d units (%d embedded, %d skipped)\n", res.Units, res.Embedded, res.Skipped)
				return nil
			})
		},
	}
}

// ─── promote ────────────────────────────────────────────────────────────────

func promoteCmd(configDir func() string) *cobra.Command {
	var (
		minSessions int
		minRate     float64
		decayBelow  float64
	)
	cmd := &cobra.Command{
		Use:   "promote",
		Short: "Promote skills and patterns that have proven themselves",
		Long: `Promote every skill and pattern used in enough distinct sessions with a high
enough success rate. With --decay-below, unpromoted knowledge under that
confidence is removed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(configDir(), func(d *fsserver.Deps) error {
				return runPromote(cmd.Context(), cmd.OutOrStdout(), d.Store,
					memory.PromotionThresholds{MinSessions: minSessions, MinSuccessRate: minRate},
					cmd.Flags().Changed("decay-below"), decayBelow)
			})
		},
	}
	cmd.Flags().IntVar(&minSessions, "min-sessions", 0, "distinct sessions required (default from config)")
	cmd.Flags().Float64Var(&minRate, "min-success-rate", 0, "success rate required, 0..1 (default from config)")
	cmd.Flags().Float64Var(&decayBelow, "decay-below", 0, "remove unpromoted knowledge below this confidence")
	return cmd
}

func runPromote(ctx context.Context, w io.Writer, store *memory.Store, t memory.PromotionThresholds, decay bool, floor float64) error {
	promoted, err := store.PromoteSweep(ctx, t)
	if err != nil {
		return err
	}
	if promoted.Count() == 0 {
		fmt.Fprintln(w, "Nothing new to promote.")
	}
	for _, s := range promoted.Skills {
		fmt.Fprintf(w, "promoted skill #%d: %s (%.2f)\n", s.ID, s.Skill, s.Confidence)
	}
	for _, p := range promoted.Patterns {
		fmt.Fprintf(w, "promoted pattern #%d: %s (%.2f)\n", p.ID, p.PatternName, p.Confidence)
	}

	if !decay {
		return nil
	}
	decayed, err := store.DecaySweep(ctx, floor)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "decayed %d skills and %d patterns below %.2f\n", decayed.Skills, decayed.Patterns, floor)
	return nil
}
