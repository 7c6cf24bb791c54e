package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version of the autopilot CLI.
const version = "0.1.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("autopilot v%s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
