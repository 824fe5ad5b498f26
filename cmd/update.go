package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"icc.tech/netem-agent/internal/command"
)

var updateSettingsFile string

// updateCmd represents the update command
var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Replace the live settings document",
	Long: `Replace the settings document of a running emulation.

The swap is atomic between dispatch cycles. Module state is preserved:
packets buffered by lag, bandwidth or burst modules are not dropped by
an unrelated settings change.

Example:
  netem-agent update --settings degraded.yml`,
	Run: func(cmd *cobra.Command, args []string) {
		runUpdateCommand()
	},
}

func init() {
	updateCmd.Flags().StringVarP(&updateSettingsFile, "settings", "S", "",
		"settings document (YAML or JSON file)")
	updateCmd.MarkFlagRequired("settings")
}

func runUpdateCommand() {
	doc, err := loadSettingsDoc(updateSettingsFile)
	if err != nil {
		exitWithError("invalid settings file", err)
	}

	client := command.NewUDSClient(socketPath, 10*time.Second)
	ctx := context.Background()

	resp, err := client.UpdateSettings(ctx, doc)
	if err != nil {
		exitWithError("daemon is not running or socket is inaccessible", err)
	}
	if resp.Error != nil {
		exitWithError(fmt.Sprintf("emulation.update_settings failed: %s", resp.Error.Message), nil)
	}

	fmt.Println("Settings updated.")
}
