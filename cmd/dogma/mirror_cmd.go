package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var mirrorCmd = &cobra.Command{
	Use:   "mirror",
	Short: "Inspect and trigger mirror jobs",
}

var mirrorListCmd = &cobra.Command{
	Use:   "list <project>",
	Args:  cobra.ExactArgs(1),
	Short: "List mirror specs configured for a project's meta repository",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := connect()
		if err != nil {
			return err
		}
		defer client.Close()

		specs, err := client.MirrorList(args[0])
		if err != nil {
			return fmt.Errorf("list mirrors: %w", err)
		}

		printOrJSON(specs, func() {
			for _, raw := range specs {
				var pretty map[string]interface{}
				if err := json.Unmarshal(raw, &pretty); err != nil {
					fmt.Println(string(raw))
					continue
				}
				fmt.Printf("%v\n", pretty)
			}
		})
		return nil
	},
}

var mirrorRunCmd = &cobra.Command{
	Use:   "run <project> <mirror-id>",
	Args:  cobra.ExactArgs(2),
	Short: "Run one mirror immediately, outside its schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := connect()
		if err != nil {
			return err
		}
		defer client.Close()

		if err := client.MirrorRun(args[0], args[1]); err != nil {
			return fmt.Errorf("run mirror: %w", err)
		}
		fmt.Printf("ran mirror %s\n", args[1])
		return nil
	},
}

func init() {
	mirrorCmd.AddCommand(mirrorListCmd)
	mirrorCmd.AddCommand(mirrorRunCmd)
	rootCmd.AddCommand(mirrorCmd)
}
