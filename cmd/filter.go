package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"icc.tech/netem-agent/internal/command"
)

// filterCmd represents the filter command
var filterCmd = &cobra.Command{
	Use:   "filter [expression]",
	Short: "Replace the live capture filter",
	Long: `Replace the BPF filter of a running emulation.

Packets not matching the filter pass through untouched. An empty
expression matches everything.

Examples:
  netem-agent filter "udp and port 5060"
  netem-agent filter "host 192.0.2.10"
  netem-agent filter ""`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runFilterCommand(args[0])
	},
}

func runFilterCommand(expr string) {
	client := command.NewUDSClient(socketPath, 10*time.Second)
	ctx := context.Background()

	resp, err := client.UpdateFilter(ctx, expr)
	if err != nil {
		exitWithError("daemon is not running or socket is inaccessible", err)
	}
	if resp.Error != nil {
		exitWithError(fmt.Sprintf("emulation.update_filter failed: %s", resp.Error.Message), nil)
	}

	fmt.Println("Filter updated.")
}
