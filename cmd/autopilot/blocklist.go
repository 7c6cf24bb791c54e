package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/entrhq/autopilot/pkg/config"
	"github.com/entrhq/autopilot/pkg/safety"
)

var blocklistCmd = &cobra.Command{
	Use:   "blocklist",
	Short: "Manage the command blocklist",
	Long: `Inspect and edit the patterns that prevent command-executing controls
from being activated. Patterns are literal substrings (case-insensitive) or
/pattern/flags regular expressions. An empty user list means the built-in
defaults apply; configured patterns replace the defaults entirely.`,
}

var blocklistListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the active blocklist",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, _, err := loadFilter()
		if err != nil {
			return err
		}
		for _, pattern := range filter.Blocklist() {
			fmt.Println(pattern)
		}
		return nil
	},
}

var blocklistAddCmd = &cobra.Command{
	Use:   "add <pattern>",
	Short: "Add a pattern to the blocklist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, _, err := loadFilter()
		if err != nil {
			return err
		}
		return filter.Add(args[0])
	},
}

var blocklistRemoveCmd = &cobra.Command{
	Use:   "remove <pattern>",
	Short: "Remove a pattern from the blocklist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, _, err := loadFilter()
		if err != nil {
			return err
		}
		return filter.Remove(args[0])
	},
}

var blocklistResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Restore the built-in default blocklist",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, _, err := loadFilter()
		if err != nil {
			return err
		}
		return filter.Reset()
	},
}

func init() {
	blocklistCmd.AddCommand(blocklistListCmd, blocklistAddCmd, blocklistRemoveCmd, blocklistResetCmd)
	rootCmd.AddCommand(blocklistCmd)
}

func loadFilter() (*safety.Filter, *config.Manager, error) {
	manager, section, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	filter := safety.NewFilter(section, func() error {
		return manager.SaveSection(config.SectionIDAutomation)
	})
	return filter, manager, nil
}
