package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/line/centraldogma-go/internal/command"
	"github.com/line/centraldogma-go/internal/config"
	"github.com/line/centraldogma-go/internal/logging"
	"github.com/line/centraldogma-go/internal/mirror"
	"github.com/line/centraldogma-go/internal/rpc"
	"github.com/line/centraldogma-go/internal/server"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run or query the dogma daemon",
}

var serverRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the daemon in the foreground, serving this workspace until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := os.MkdirAll(workspace+"/.dogma", 0o700); err != nil {
			return fmt.Errorf("create .dogma directory: %w", err)
		}

		log := logging.New(logging.Options{JSON: config.GetBool("json")})

		cfg := server.Config{
			WorkspacePath:       workspace,
			CacheMaxEntries:     config.GetInt("cache.max-entries"),
			CacheMaxWeightBytes: config.GetInt64("cache.max-weight-bytes"),
			MaxConnections:      config.GetInt("server.max-connections"),
			Mirror: mirror.Config{
				NumMirroringThreads:  config.GetInt("mirror.num-threads"),
				MaxNumFilesPerMirror: config.GetInt("mirror.max-files-per-mirror"),
				MaxNumBytesPerMirror: config.GetInt64("mirror.max-bytes-per-mirror"),
			},
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		node, err := server.New(ctx, cfg, Version, log)
		if err != nil {
			return fmt.Errorf("build server: %w", err)
		}

		done := make(chan error, 1)
		go func() { done <- node.Start(ctx) }()

		select {
		case <-node.WaitReady():
			log.Info("dogma server listening", "workspace", workspace, "socket", socketPath())
		case err := <-done:
			if err != nil {
				return fmt.Errorf("server failed to start: %w", err)
			}
			return nil
		}

		<-ctx.Done()
		log.Info("shutting down")
		if err := node.Stop(); err != nil {
			return fmt.Errorf("stop server: %w", err)
		}
		return <-done
	},
}

var serverStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the daemon's writable/replicating/leadership state",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := connect()
		if err != nil {
			return err
		}
		defer client.Close()

		status, err := client.Status()
		if err != nil {
			return fmt.Errorf("fetch status: %w", err)
		}
		printOrJSON(status, func() {
			fmt.Printf("version:     %s\n", status.Version)
			fmt.Printf("pid:         %d\n", status.PID)
			fmt.Printf("socket:      %s\n", status.SocketPath)
			fmt.Printf("uptime:      %s\n", time.Duration(status.UptimeSeconds*float64(time.Second)))
			fmt.Printf("writable:    %t\n", status.Writable)
			fmt.Printf("replicating: %t\n", status.Replicating)
			fmt.Printf("leader:      %t\n", status.IsLeader)
		})
		return nil
	},
}

var (
	setStatusWritable    string
	setStatusReplicating string
	setStatusScope       string
)

var serverSetStatusCmd = &cobra.Command{
	Use:   "set-status",
	Short: "Update the daemon's writable/replicating bits",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := connect()
		if err != nil {
			return err
		}
		defer client.Close()

		setArgs := rpc.SetServerStatusArgs{Scope: command.StatusScope(setStatusScope)}
		if setStatusWritable != "" {
			v := setStatusWritable == "true"
			setArgs.Writable = &v
		}
		if setStatusReplicating != "" {
			v := setStatusReplicating == "true"
			setArgs.Replicating = &v
		}

		result, err := client.SetServerStatus(setArgs)
		if err != nil {
			return fmt.Errorf("set status: %w", err)
		}
		printOrJSON(result, func() {
			if result.Modified {
				fmt.Printf("updated: writable=%t replicating=%t\n", result.Writable, result.Replicating)
			} else {
				fmt.Println("no change")
			}
		})
		return nil
	},
}

func init() {
	serverCmd.AddCommand(serverRunCmd)
	serverCmd.AddCommand(serverStatusCmd)

	serverSetStatusCmd.Flags().StringVar(&setStatusWritable, "writable", "", "true or false")
	serverSetStatusCmd.Flags().StringVar(&setStatusReplicating, "replicating", "", "true or false")
	serverSetStatusCmd.Flags().StringVar(&setStatusScope, "scope", "LOCAL", "LOCAL or ALL")
	serverCmd.AddCommand(serverSetStatusCmd)

	rootCmd.AddCommand(serverCmd)
}
