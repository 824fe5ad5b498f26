package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"icc.tech/netem-agent/internal/command"
)

// stopCmd represents the stop command
var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop emulation on the running daemon",
	Long: `Stop packet emulation on the running daemon.

Buffered packets held by lag, throttle, bandwidth, reorder or burst
modules are discarded, not released. Intercepted traffic flows
unmodified afterwards. The daemon itself keeps running.`,
	Run: func(cmd *cobra.Command, args []string) {
		runStopCommand()
	},
}

func runStopCommand() {
	client := command.NewUDSClient(socketPath, 10*time.Second)
	ctx := context.Background()

	resp, err := client.EmulationStop(ctx)
	if err != nil {
		exitWithError("daemon is not running or socket is inaccessible", err)
	}
	if resp.Error != nil {
		exitWithError(fmt.Sprintf("emulation.stop failed: %s", resp.Error.Message), nil)
	}

	fmt.Println("Emulation stopped.")
}
