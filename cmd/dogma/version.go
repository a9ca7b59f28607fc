package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print client (and daemon, if reachable) version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := connect()
		if err != nil {
			printOrJSON(map[string]string{"client_version": Version}, func() {
				fmt.Printf("dogma client %s (no daemon running)\n", Version)
			})
			return nil
		}
		defer client.Close()

		health, err := client.Health()
		if err != nil {
			return fmt.Errorf("check daemon health: %w", err)
		}
		printOrJSON(health, func() {
			fmt.Printf("dogma client %s, daemon %s (status: %s)\n", Version, health.Version, health.Status)
		})
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
