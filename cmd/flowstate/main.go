// FlowState: persistent project memory for AI coding assistants.
//
// FlowState remembers projects, components, problems and every attempt
// made on them, and learns which skills, patterns and tools keep working
// across sessions. It is served over MCP so any assistant can use it.
//
// Usage:
//
//	flowstate serve                 # Start MCP server (stdio transport)
//	flowstate context <project>     # Print a project's working context
//	flowstate search <query>        # Hybrid search over everything stored
//	flowstate reindex               # Rebuild the search index
//	flowstate promote               # Promote proven skills and patterns
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	fsserver "github.com/HendryAvila/flowstate/internal/server"
	"github.com/HendryAvila/flowstate/internal/updater"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configDir string

	root := &cobra.Command{
		Use:   "flowstate",
		Short: "FlowState - persistent project memory over MCP",
		Long: `FlowState remembers what you built, what broke, what you tried and what
worked, so every new session starts where the last one stopped.

Add it to your AI tool's MCP config:

  {
    "mcpServers": {
      "flowstate": {
        "command": "flowstate",
        "args": ["serve"]
      }
    }
  }`,
		Version:       fsserver.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configDir, "config-dir", "", "configuration directory (default ~/.flowstate)")

	dir := func() string { return configDir }
	root.AddCommand(
		serveCmd(dir),
		contextCmd(dir),
		searchCmd(dir),
		reindexCmd(dir),
		promoteCmd(dir),
		versionCmd(),
	)
	return root
}

func versionCmd() *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the FlowState version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "flowstate v%s\n", fsserver.Version)
			if check {
				fmt.Fprintln(out, updater.CheckVersion(cmd.Context(), fsserver.Version).Notice())
			}
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "check GitHub for a newer release")
	return cmd
}
