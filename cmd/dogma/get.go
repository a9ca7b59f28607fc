package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/line/centraldogma-go/internal/domain"
	"github.com/line/centraldogma-go/internal/rpc"
)

var (
	getRevision string
	getJSONPath []string
)

var getCmd = &cobra.Command{
	Use:   "get <project>/<repository><path>",
	Short: "Fetch one entry's content at a revision (defaults to HEAD)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		project, repo, path, err := splitRepoPath(args[0])
		if err != nil {
			return err
		}

		rev, err := parseRevision(getRevision)
		if err != nil {
			return err
		}

		query := domain.Identity(path)
		if len(getJSONPath) > 0 {
			query = domain.JSONPath(path, getJSONPath...)
		}

		client, err := connect()
		if err != nil {
			return err
		}
		defer client.Close()

		resp, err := client.Get(rpc.GetArgs{
			Project:    project,
			Repository: repo,
			Revision:   rev,
			Query:      query,
		})
		if err != nil {
			return fmt.Errorf("get: %w", err)
		}

		printOrJSON(resp, func() {
			fmt.Println(string(resp.Content))
		})
		return nil
	},
}

// parseRevision parses a revision argument: "" or "head" means
// domain.HeadRevision, otherwise a signed integer (negative values
// count back from head, per domain.Revision.IsRelative).
func parseRevision(s string) (domain.Revision, error) {
	if s == "" || s == "head" || s == "HEAD" {
		return domain.HeadRevision, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid revision %q: %w", s, err)
	}
	return domain.Revision(n), nil
}

func init() {
	getCmd.Flags().StringVar(&getRevision, "revision", "", "revision to read at (default HEAD)")
	getCmd.Flags().StringArrayVar(&getJSONPath, "jsonpath", nil, "JSONPath expression(s) to project the entry through")
	rootCmd.AddCommand(getCmd)
}
