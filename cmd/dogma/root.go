// Command dogma is the CLI front end for a versioned configuration
// store. Most subcommands are thin RPC clients that dial a running
// daemon's Unix socket; "dogma server run" runs the daemon itself.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/line/centraldogma-go/internal/config"
	"github.com/line/centraldogma-go/internal/rpc"
)

// Version is overridden by ldflags at build time.
var Version = "0.1.0-dev"

var (
	jsonOutput bool
	workspace  string
	actorFlag  string
	noDaemon   bool
)

var rootCmd = &cobra.Command{
	Use:   "dogma",
	Short: "A highly available, versioned configuration store",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Initialize(); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if workspace == "" {
			workspace = config.GetString("db")
		}
		if workspace == "" {
			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("resolve working directory: %w", err)
			}
			workspace = cwd
		}
		abs, err := filepath.Abs(workspace)
		if err != nil {
			return fmt.Errorf("resolve workspace path: %w", err)
		}
		workspace = abs
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit machine-readable JSON output")
	rootCmd.PersistentFlags().StringVar(&workspace, "workspace", "", "workspace directory holding .dogma (defaults to cwd)")
	rootCmd.PersistentFlags().StringVar(&actorFlag, "actor", "", "commit author identity (defaults to config, then git, then hostname)")
	rootCmd.PersistentFlags().BoolVar(&noDaemon, "no-daemon", false, "no effect: commands never start a daemon and fail when none is running")
}

// Execute runs the root command and exits the process with status 1
// if it fails.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// socketPath returns the Unix socket path for the resolved workspace.
func socketPath() string {
	return rpc.SocketPath(workspace)
}

// connect dials the daemon for workspace, returning a clear error
// (rather than a raw "connection refused") when none is running.
func connect() (*rpc.Client, error) {
	client, err := rpc.DialTimeout(socketPath(), Version, 500*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("no daemon running for %s (start one with 'dogma server run')", workspace)
	}
	return client, nil
}

// identity resolves the commit author for the current invocation.
func identity() string {
	return config.GetIdentity(actorFlag)
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "dogma: "+format+"\n", args...)
	os.Exit(1)
}
