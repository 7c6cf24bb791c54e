package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/entrhq/autopilot/pkg/config"
)

var configPath string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "autopilot",
	Short: "Headless UI automation against the assistant's debugging endpoint",
	Long: `autopilot locates the running assistant's debugging endpoint, opens a
control channel to it, and activates matching UI controls on a timed loop.

Active user input is never interrupted, and controls that would execute a
blocklisted command are never activated.

Core commands:
  run          Start the automation loop
  blocklist    Manage the command blocklist
  status       Show account usage
  version      Show version information`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: ~/.autopilot/config.json)")
}

// loadConfig builds the configuration manager and automation section shared
// by every subcommand.
func loadConfig() (*config.Manager, *config.AutomationSection, error) {
	store, err := config.NewFileStore(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open config store: %w", err)
	}

	manager := config.NewManager(store)
	section := config.NewAutomationSection()
	if err := manager.RegisterSection(section); err != nil {
		return nil, nil, fmt.Errorf("failed to register automation section: %w", err)
	}
	return manager, section, nil
}
