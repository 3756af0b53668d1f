// Command server is the process entrypoint for the clinical query
// orchestration core: it wires C1-C9 together and runs the long-lived
// query-handling process described in spec.md §1. There is no HTTP
// front end here (spec.md §1 non-goals) — Orchestrator.Handle is the
// library surface a caller embeds or drives from its own transport.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "clinorch",
		Short: "Clinical query orchestration core",
		Long: `clinorch admits a clinical query, runs the safety gate (PHI scan,
emergency detection), selects and dispatches domain agents, and
synthesizes their results into one evidence-backed response.`,
	}

	root.AddCommand(buildServeCmd(), buildVersionCmd(), buildHealthcheckCmd())
	return root
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "clinorch %s (commit %s, built %s)\n", version, commit, date)
			return nil
		},
	}
}
