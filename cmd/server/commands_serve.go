package main

import (
	"github.com/spf13/cobra"
)

// buildServeCmd creates the "serve" command that starts the
// orchestration core's long-lived process: tool pool, caches, and
// clients stay warm across queries until a shutdown signal arrives.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the orchestration core",
		Long: `Start the orchestration core with all configured tool servers, the
local LLM client, and the safety/audit layers.

The process will:
1. Load configuration from the specified file.
2. Start the otel tracer provider.
3. Spawn the tool-server subprocess pool (one per category).
4. Refresh the tool registry from each category's tools/list.
5. Construct the ReAct controller, orchestrator, and audit sinks.
6. Read newline-delimited JSON queries from stdin, pass each to
   Orchestrator.Handle and write one JSON response per line, until stdin
   reaches EOF or SIGINT/SIGTERM triggers graceful shutdown.`,
		Example: `  # Start with default config
  clinorch serve --config config.yaml

  # Start with debug logging
  clinorch serve --config config.yaml --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	return cmd
}

// buildHealthcheckCmd verifies the local LLM and NER HTTP dependencies
// are reachable before a deployment starts routing traffic; separate
// from serve since it exits immediately rather than blocking.
func buildHealthcheckCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Verify the LLM and NER service dependencies are reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealthcheck(cmd.Context(), configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to YAML configuration file")
	return cmd
}
