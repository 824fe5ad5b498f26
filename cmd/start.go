package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"icc.tech/netem-agent/internal/command"
	"icc.tech/netem-agent/internal/config"
)

var (
	startSettingsFile string
	startFilter       string
)

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start emulation on the running daemon",
	Long: `Start packet emulation on the running daemon.

The settings document selects which impairment modules are active and
how they behave. Absent keys keep their defaults (all modules off).

Examples:
  netem-agent start                                  # passthrough, no modules active
  netem-agent start --settings lossy.yml             # modules from file
  netem-agent start --settings lossy.yml -F "udp and port 5060"`,
	Run: func(cmd *cobra.Command, args []string) {
		runStartCommand()
	},
}

func init() {
	startCmd.Flags().StringVarP(&startSettingsFile, "settings", "S", "",
		"settings document (YAML or JSON file)")
	startCmd.Flags().StringVarP(&startFilter, "filter", "F", "",
		"BPF filter expression scoping affected traffic")
}

// loadSettingsDoc parses a local settings file and re-encodes it as JSON
// for the wire. Parsing locally surfaces validation errors before the
// daemon is touched.
func loadSettingsDoc(path string) (json.RawMessage, error) {
	if path == "" {
		return nil, nil
	}
	settings, err := config.LoadSettings(path)
	if err != nil {
		return nil, err
	}
	return json.Marshal(settings)
}

func runStartCommand() {
	doc, err := loadSettingsDoc(startSettingsFile)
	if err != nil {
		exitWithError("invalid settings file", err)
	}

	client := command.NewUDSClient(socketPath, 10*time.Second)
	ctx := context.Background()

	resp, err := client.EmulationStart(ctx, doc, startFilter)
	if err != nil {
		exitWithError("daemon is not running or socket is inaccessible", err)
	}
	if resp.Error != nil {
		exitWithError(fmt.Sprintf("emulation.start failed: %s", resp.Error.Message), nil)
	}

	fmt.Println("Emulation started.")
	if startFilter != "" {
		fmt.Printf("Filter: %s\n", startFilter)
	}
}
