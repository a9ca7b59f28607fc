package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/line/centraldogma-go/internal/domain"
	"github.com/line/centraldogma-go/internal/rpc"
)

var (
	putFile    string
	putJSON    bool
	putRemove  bool
	putRename  string
	putSummary string
)

var putCmd = &cobra.Command{
	Use:   "put <project>/<repository><path>",
	Short: "Create or update one entry, reading content from --file or stdin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		project, repo, path, err := splitRepoPath(args[0])
		if err != nil {
			return err
		}

		change := domain.Change{Path: path}
		switch {
		case putRemove:
			change.Type = domain.ChangeRemove
		case putRename != "":
			change.Type = domain.ChangeRename
			change.TargetPath = putRename
		default:
			content, err := readPutContent()
			if err != nil {
				return err
			}
			if putJSON {
				change.Type = domain.ChangeUpsertJSON
				change.JSONContent = content
			} else {
				change.Type = domain.ChangeUpsertText
				change.TextContent = string(content)
			}
		}

		summary := putSummary
		if summary == "" {
			summary = defaultSummary(change)
		}

		client, err := connect()
		if err != nil {
			return err
		}
		defer client.Close()

		commit, err := client.Push(rpc.PushArgs{
			Project:      project,
			Repository:   repo,
			BaseRevision: domain.HeadRevision,
			Author:       identity(),
			Summary:      summary,
			Changes:      []domain.Change{change},
		})
		if err != nil {
			return fmt.Errorf("push: %w", err)
		}

		printOrJSON(commit, func() {
			fmt.Printf("revision %s\n", commit.Revision)
		})
		return nil
	},
}

func readPutContent() ([]byte, error) {
	if putFile != "" {
		return os.ReadFile(putFile)
	}
	return io.ReadAll(os.Stdin)
}

func defaultSummary(c domain.Change) string {
	switch c.Type {
	case domain.ChangeRemove:
		return fmt.Sprintf("Remove %s", c.Path)
	case domain.ChangeRename:
		return fmt.Sprintf("Rename %s to %s", c.Path, c.TargetPath)
	default:
		return fmt.Sprintf("Edit %s", c.Path)
	}
}

func init() {
	putCmd.Flags().StringVar(&putFile, "file", "", "read content from this file instead of stdin")
	putCmd.Flags().BoolVar(&putJSON, "json-content", false, "treat the content as JSON (UPSERT_JSON instead of UPSERT_TEXT)")
	putCmd.Flags().BoolVar(&putRemove, "remove", false, "remove the entry instead of upserting it")
	putCmd.Flags().StringVar(&putRename, "rename-to", "", "rename the entry to this path instead of upserting it")
	putCmd.Flags().StringVar(&putSummary, "summary", "", "commit summary (defaults to a generated one)")
	rootCmd.AddCommand(putCmd)
}
