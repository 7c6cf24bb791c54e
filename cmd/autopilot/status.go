package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/entrhq/autopilot/pkg/quota"
)

var (
	statusBaseURL string
	statusToken   string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show account usage",
	Long:  `Fetch the account's usage status from the assistant's RPC surface.`,
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusBaseURL, "base-url", "", "RPC base URL (required)")
	statusCmd.Flags().StringVar(&statusToken, "token", "", "Session token (required)")
	statusCmd.MarkFlagRequired("base-url")
	statusCmd.MarkFlagRequired("token")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client := quota.NewClient(statusBaseURL, statusToken, version)
	status, err := client.Fetch(ctx)
	if err != nil {
		return err
	}

	if status.Plan != "" {
		fmt.Printf("Plan:    %s\n", status.Plan)
	}
	if status.Credits > 0 {
		fmt.Printf("Credits: %.2f\n", status.Credits)
	}
	for _, item := range status.Items {
		fmt.Printf("%-20s %5.1f%% remaining\n", item.Name, item.Remaining*100)
	}
	fmt.Printf("Resets:  %s\n", status.ResetsAt.Format(time.RFC1123))
	return nil
}
