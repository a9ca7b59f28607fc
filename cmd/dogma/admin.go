package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Manage projects and repositories",
}

var adminCreateProjectCmd = &cobra.Command{
	Use:   "create-project <name>",
	Args:  cobra.ExactArgs(1),
	Short: "Create a project",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := connect()
		if err != nil {
			return err
		}
		defer client.Close()
		if err := client.CreateProject(args[0]); err != nil {
			return fmt.Errorf("create project: %w", err)
		}
		fmt.Printf("created project %s\n", args[0])
		return nil
	},
}

var adminRemoveProjectCmd = &cobra.Command{
	Use:   "remove-project <name>",
	Args:  cobra.ExactArgs(1),
	Short: "Soft-remove a project",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := connect()
		if err != nil {
			return err
		}
		defer client.Close()
		if err := client.RemoveProject(args[0]); err != nil {
			return fmt.Errorf("remove project: %w", err)
		}
		fmt.Printf("removed project %s\n", args[0])
		return nil
	},
}

var adminRestoreProjectCmd = &cobra.Command{
	Use:   "restore-project <name>",
	Args:  cobra.ExactArgs(1),
	Short: "Restore a soft-removed project within its restore window",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := connect()
		if err != nil {
			return err
		}
		defer client.Close()
		if err := client.RestoreProject(args[0]); err != nil {
			return fmt.Errorf("restore project: %w", err)
		}
		fmt.Printf("restored project %s\n", args[0])
		return nil
	},
}

var adminListProjectsCmd = &cobra.Command{
	Use:   "list-projects",
	Short: "List every non-removed project",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := connect()
		if err != nil {
			return err
		}
		defer client.Close()
		projects, err := client.ListProjects()
		if err != nil {
			return fmt.Errorf("list projects: %w", err)
		}
		printOrJSON(projects, func() {
			for _, p := range projects {
				fmt.Println(p)
			}
		})
		return nil
	},
}

var adminCreateRepositoryCmd = &cobra.Command{
	Use:   "create-repository <project>/<repository>",
	Args:  cobra.ExactArgs(1),
	Short: "Create a repository within a project",
	RunE: func(cmd *cobra.Command, args []string) error {
		project, repo, err := splitRepo(args[0])
		if err != nil {
			return err
		}
		client, err := connect()
		if err != nil {
			return err
		}
		defer client.Close()
		if err := client.CreateRepository(project, repo); err != nil {
			return fmt.Errorf("create repository: %w", err)
		}
		fmt.Printf("created repository %s/%s\n", project, repo)
		return nil
	},
}

var adminRemoveRepositoryCmd = &cobra.Command{
	Use:   "remove-repository <project>/<repository>",
	Args:  cobra.ExactArgs(1),
	Short: "Soft-remove a repository",
	RunE: func(cmd *cobra.Command, args []string) error {
		project, repo, err := splitRepo(args[0])
		if err != nil {
			return err
		}
		client, err := connect()
		if err != nil {
			return err
		}
		defer client.Close()
		if err := client.RemoveRepository(project, repo); err != nil {
			return fmt.Errorf("remove repository: %w", err)
		}
		fmt.Printf("removed repository %s/%s\n", project, repo)
		return nil
	},
}

var adminRestoreRepositoryCmd = &cobra.Command{
	Use:   "restore-repository <project>/<repository>",
	Args:  cobra.ExactArgs(1),
	Short: "Restore a soft-removed repository within its restore window",
	RunE: func(cmd *cobra.Command, args []string) error {
		project, repo, err := splitRepo(args[0])
		if err != nil {
			return err
		}
		client, err := connect()
		if err != nil {
			return err
		}
		defer client.Close()
		if err := client.RestoreRepository(project, repo); err != nil {
			return fmt.Errorf("restore repository: %w", err)
		}
		fmt.Printf("restored repository %s/%s\n", project, repo)
		return nil
	},
}

var adminListRepositoriesCmd = &cobra.Command{
	Use:   "list-repositories <project>",
	Args:  cobra.ExactArgs(1),
	Short: "List every non-removed repository in a project",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := connect()
		if err != nil {
			return err
		}
		defer client.Close()
		repos, err := client.ListRepositories(args[0])
		if err != nil {
			return fmt.Errorf("list repositories: %w", err)
		}
		printOrJSON(repos, func() {
			for _, r := range repos {
				fmt.Println(r)
			}
		})
		return nil
	},
}

func init() {
	adminCmd.AddCommand(adminCreateProjectCmd)
	adminCmd.AddCommand(adminRemoveProjectCmd)
	adminCmd.AddCommand(adminRestoreProjectCmd)
	adminCmd.AddCommand(adminListProjectsCmd)
	adminCmd.AddCommand(adminCreateRepositoryCmd)
	adminCmd.AddCommand(adminRemoveRepositoryCmd)
	adminCmd.AddCommand(adminRestoreRepositoryCmd)
	adminCmd.AddCommand(adminListRepositoriesCmd)
	rootCmd.AddCommand(adminCmd)
}
