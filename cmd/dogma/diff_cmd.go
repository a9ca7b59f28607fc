package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/line/centraldogma-go/internal/domain"
	"github.com/line/centraldogma-go/internal/rpc"
)

var (
	diffFrom       string
	diffTo         string
	diffPathPrefix string
)

var diffCmd = &cobra.Command{
	Use:   "diff <project>/<repository>",
	Short: "Show the changes between two revisions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		project, repo, err := splitRepo(args[0])
		if err != nil {
			return err
		}

		from := domain.InitRevision
		if diffFrom != "" {
			from, err = parseRevision(diffFrom)
			if err != nil {
				return err
			}
		}
		to, err := parseRevision(diffTo)
		if err != nil {
			return err
		}

		client, err := connect()
		if err != nil {
			return err
		}
		defer client.Close()

		changes, err := client.Diff(rpc.DiffArgs{
			Project:     project,
			Repository:  repo,
			From:        from,
			To:          to,
			PathPattern: diffPathPrefix,
		})
		if err != nil {
			return fmt.Errorf("diff: %w", err)
		}

		printOrJSON(changes, func() {
			for _, c := range changes {
				printChange(c)
			}
		})
		return nil
	},
}

func printChange(c domain.Change) {
	switch c.Type {
	case domain.ChangeUpsertText:
		fmt.Printf("%s %s\n", c.Type, c.Path)
	case domain.ChangeUpsertJSON:
		fmt.Printf("%s %s\n", c.Type, c.Path)
	case domain.ChangeRemove:
		fmt.Printf("%s %s\n", c.Type, c.Path)
	case domain.ChangeRename:
		fmt.Printf("%s %s -> %s\n", c.Type, c.Path, c.TargetPath)
	default:
		fmt.Printf("%s %s\n", c.Type, c.Path)
	}
}

func init() {
	diffCmd.Flags().StringVar(&diffFrom, "from", "", "starting revision (default: initial commit)")
	diffCmd.Flags().StringVar(&diffTo, "to", "", "ending revision (default HEAD)")
	diffCmd.Flags().StringVar(&diffPathPrefix, "path", "", "only show changes matching this path pattern")
	rootCmd.AddCommand(diffCmd)
}
