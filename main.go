// Package main is the entry point for the netem-agent network condition emulator.
package main

import (
	"fmt"
	"os"

	"icc.tech/netem-agent/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
