package main

import (
	"fmt"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/line/centraldogma-go/internal/domain"
	"github.com/line/centraldogma-go/internal/rpc"
)

var (
	logFrom       string
	logTo         string
	logPathPrefix string
	logMax        int
)

var logCmd = &cobra.Command{
	Use:   "log <project>/<repository>",
	Short: "Show commit history for a repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		project, repo, err := splitRepo(args[0])
		if err != nil {
			return err
		}

		from := domain.InitRevision
		if logFrom != "" {
			from, err = parseRevision(logFrom)
			if err != nil {
				return err
			}
		}
		to, err := parseRevision(logTo)
		if err != nil {
			return err
		}

		client, err := connect()
		if err != nil {
			return err
		}
		defer client.Close()

		commits, err := client.History(rpc.HistoryArgs{
			Project:     project,
			Repository:  repo,
			From:        from,
			To:          to,
			PathPattern: logPathPrefix,
			MaxCommits:  logMax,
		})
		if err != nil {
			return fmt.Errorf("history: %w", err)
		}

		printOrJSON(commits, func() {
			for _, c := range commits {
				printCommit(c)
			}
		})
		return nil
	},
}

func printCommit(c domain.Commit) {
	ts := time.UnixMilli(c.Timestamp).UTC().Format(time.RFC3339)
	fmt.Printf("revision %s\nAuthor: %s\nDate:   %s\n\n    %s\n", c.Revision, c.Author, ts, c.Summary)
	if c.Detail != "" {
		fmt.Printf("\n%s\n", renderDetail(c))
	}
	fmt.Println()
}

// renderDetail renders a commit's detail through glamour when it's
// markdown, so "dogma log" reads the same way a markdown commit
// message would in any terminal renderer; plaintext details pass
// through untouched.
func renderDetail(c domain.Commit) string {
	if c.Markup != domain.MarkupMarkdown {
		return c.Detail
	}
	rendered, err := glamour.Render(c.Detail, "auto")
	if err != nil {
		return c.Detail
	}
	return rendered
}

func init() {
	logCmd.Flags().StringVar(&logFrom, "from", "", "starting revision (default: initial commit)")
	logCmd.Flags().StringVar(&logTo, "to", "", "ending revision (default HEAD)")
	logCmd.Flags().StringVar(&logPathPrefix, "path", "", "only show commits touching this path pattern")
	logCmd.Flags().IntVar(&logMax, "max-commits", 0, "limit the number of commits returned (0 means unlimited)")
	rootCmd.AddCommand(logCmd)
}
