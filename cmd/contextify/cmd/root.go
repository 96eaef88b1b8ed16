// Package cmd provides the CLI commands for contextify.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/contextify/contextify/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "contextify",
	Short: "contextify - MCP gateway and host",
	Long: `contextify is a policy-enforcing gateway that exposes a unified MCP tool
catalog over JSON-RPC 2.0.

It compiles the hosting application's HTTP endpoints into MCP tools under an
endpoint policy, aggregates remote upstream MCP servers behind namespaced
tool names, and routes tools/call invocations to whichever side owns the tool.

Quick start:
  1. Create a config file: contextify.yaml
  2. Run: contextify start

Configuration:
  Config is loaded from contextify.yaml in the current directory,
  $HOME/.contextify/, or /etc/contextify/.

  Environment variables can override config values with the CONTEXTIFY_ prefix.
  Example: CONTEXTIFY_SERVER_HTTP_ADDR=:9090

Commands:
  start       Start the gateway server
  hash-key    Generate an argon2id hash for an API key
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./contextify.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
