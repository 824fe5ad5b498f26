package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"icc.tech/netem-agent/internal/command"
)

// shutdownCmd represents the shutdown command
var shutdownCmd = &cobra.Command{
	Use:   "shutdown",
	Short: "Shut down the netem-agent daemon",
	Long: `Shut down the netem-agent daemon gracefully.

Running emulation is stopped first, discarding buffered packets, then
the daemon removes its control socket and PID file and exits.`,
	Run: func(cmd *cobra.Command, args []string) {
		runShutdownCommand()
	},
}

func runShutdownCommand() {
	client := command.NewUDSClient(socketPath, 10*time.Second)
	ctx := context.Background()

	resp, err := client.Shutdown(ctx)
	if err != nil {
		exitWithError("daemon is not running or socket is inaccessible", err)
	}
	if resp.Error != nil {
		exitWithError(fmt.Sprintf("daemon.shutdown failed: %s", resp.Error.Message), nil)
	}

	fmt.Println("Daemon shutting down.")
}
