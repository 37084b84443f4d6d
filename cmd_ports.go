package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"obd2ai/bluetooth"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports usable with the serial transport",
	RunE:  runPorts,
}

func runPorts(cmd *cobra.Command, args []string) error {
	ports, err := bluetooth.Ports()
	if err != nil {
		return fmt.Errorf("failed to list serial ports: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(ports) == 0 {
		fmt.Fprintln(out, "No serial ports found")
		return nil
	}
	for _, port := range ports {
		fmt.Fprintln(out, port)
	}
	return nil
}
