// Package cmd provides the CLI commands for Intent Gate.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Intent-Gate/Intentgate/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "intent-gate",
	Short: "Intent Gate - Semantic Policy Gateway for AI Agents",
	Long: `Intent Gate is a policy enforcement gateway for AI agent actions.

Agent tool calls are expressed as intent events, encoded into a shared
semantic vector space and compared against installed design boundaries.
Deny boundaries are checked first; a single match blocks the call.

Quick start:
  1. Create a config file: intent-gate.yaml
  2. Run: intent-gate start

Configuration:
  Config is loaded from intent-gate.yaml in the current directory,
  $HOME/.intent-gate/, or /etc/intent-gate/.

  Environment variables can override config values with the INTENT_GATE_ prefix.
  Example: INTENT_GATE_SERVER_HTTP_ADDR=:9090

Commands:
  start       Start the gateway
  install     Install boundaries from a file into a running gateway
  hash-key    Generate an API key and its argon2id hash
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
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./intent-gate.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
