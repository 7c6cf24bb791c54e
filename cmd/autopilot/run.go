package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/entrhq/autopilot/pkg/automation"
	"github.com/entrhq/autopilot/pkg/config"
	"github.com/entrhq/autopilot/pkg/discovery"
	"github.com/entrhq/autopilot/pkg/logging"
	"github.com/entrhq/autopilot/pkg/quota"
	"github.com/entrhq/autopilot/pkg/safety"
)

var usageURL string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the automation loop",
	Long: `Discover the assistant's debugging endpoint and drive the automation
loop until interrupted. Discovery failures are retried on a fixed schedule;
a lost channel triggers full rediscovery.`,
	RunE: runAutomation,
}

func init() {
	runCmd.Flags().StringVar(&usageURL, "usage-url", "", "Base URL for account usage warnings (optional)")
	rootCmd.AddCommand(runCmd)
}

func runAutomation(cmd *cobra.Command, args []string) error {
	manager, section, err := loadConfig()
	if err != nil {
		return err
	}

	logger, logErr := logging.NewLogger("supervisor")
	if logErr != nil {
		fmt.Fprintf(os.Stderr, "file logging unavailable: %v\n", logErr)
	}
	defer logger.Close()

	filter := safety.NewFilter(section, func() error {
		return manager.SaveSection(config.SectionIDAutomation)
	})
	hunter := discovery.NewSystemHunter(logger)
	events := automation.NewBroadcaster()

	supervisor := automation.NewSupervisor(hunter, filter, section, events, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		cancel()
	}()

	stream, release := events.Subscribe()
	defer release()

	supervisor.Start()
	defer supervisor.Stop()

	fmt.Printf("autopilot %s - session %s\n", version, logging.SessionID())
	fmt.Println("Waiting for a verified endpoint...")

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-stream:
			if !ok {
				return nil
			}
			displayEvent(ctx, event, section)
		}
	}
}

// displayEvent renders automation events for the terminal. Events are
// display-only; nothing here feeds back into the loop.
func displayEvent(ctx context.Context, event automation.Event, section *config.AutomationSection) {
	switch event.Type {
	case automation.EventConnectionVerified:
		fmt.Printf("[%s] connected: control port %d\n",
			event.Time.Format("15:04:05"), event.Descriptor.ControlPort)
		if usageURL != "" {
			warnOnLowQuota(ctx, event.Descriptor.Token, section.WarningThresholdPercent())
		}
	case automation.EventChannelClosed:
		if event.Err != nil {
			fmt.Printf("[%s] channel lost (%v), rediscovering...\n", event.Time.Format("15:04:05"), event.Err)
		} else {
			fmt.Printf("[%s] channel closed, rediscovering...\n", event.Time.Format("15:04:05"))
		}
	case automation.EventPollResult:
		if event.Result.ClickedCount > 0 {
			fmt.Printf("[%s] activated %d element(s)\n", event.Time.Format("15:04:05"), event.Result.ClickedCount)
		}
	}
}

// warnOnLowQuota fetches usage once per connection and prints a warning for
// any bucket below the configured threshold.
func warnOnLowQuota(ctx context.Context, token string, thresholdPercent int) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	client := quota.NewClient(usageURL, token, version)
	status, err := client.Fetch(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "usage fetch failed: %v\n", err)
		return
	}
	for _, item := range status.Items {
		if item.Remaining*100 < float64(thresholdPercent) {
			fmt.Printf("warning: %s quota at %.0f%% (resets %s)\n",
				item.Name, item.Remaining*100, status.ResetsAt.Format(time.RFC1123))
		}
	}
}
