package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/line/centraldogma-go/internal/domain"
	"github.com/line/centraldogma-go/internal/rpc"
)

var (
	watchPathPrefix string
	watchJSONPath   []string
	watchTimeout    int64
)

var watchCmd = &cobra.Command{
	Use:   "watch <project>/<repository><path>",
	Short: "Block until a path or query result changes, then print the new revision",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		project, repo, path, err := splitRepoPath(args[0])
		if err != nil {
			return err
		}

		watchArgs := rpc.WatchArgs{
			Project:       project,
			Repository:    repo,
			TimeoutMillis: watchTimeout,
		}
		if len(watchJSONPath) > 0 || watchPathPrefix == "" {
			q := domain.Identity(path)
			if len(watchJSONPath) > 0 {
				q = domain.JSONPath(path, watchJSONPath...)
			}
			watchArgs.Query = &q
		} else {
			watchArgs.PathPattern = watchPathPrefix
		}

		client, err := connect()
		if err != nil {
			return err
		}
		defer client.Close()

		for {
			resp, err := client.Watch(watchArgs)
			if err != nil {
				// The daemon's error crosses the wire as a plain string
				// (see rpc.Client.execute), so a timeout is recognized by
				// substring rather than errors.Is against domain.ErrTimeout.
				if strings.Contains(err.Error(), domain.ErrTimeout.Error()) {
					continue
				}
				return fmt.Errorf("watch: %w", err)
			}
			printOrJSON(resp, func() {
				fmt.Printf("revision %s\n", resp.Revision)
			})
			watchArgs.LastKnownRevision = resp.Revision
		}
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchPathPrefix, "path-pattern", "", "watch for any commit touching this path pattern instead of the path's value")
	watchCmd.Flags().StringArrayVar(&watchJSONPath, "jsonpath", nil, "JSONPath expression(s) to watch a projected value instead of the raw entry")
	watchCmd.Flags().Int64Var(&watchTimeout, "timeout-millis", 60_000, "how long the daemon blocks per long-poll before returning a timeout")
	rootCmd.AddCommand(watchCmd)
}
