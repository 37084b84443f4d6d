package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"obd2ai/monitor"
	"obd2ai/obd"
)

var queryRaw bool

var queryCmd = &cobra.Command{
	Use:   "query <pid>",
	Short: "Read a single mode 01 PID, for example 0C",
	Long:  "Read a single mode 01 PID from the adapter.\n\nSupported PIDs:\n" + supportedPIDs(),
	Args:  cobra.ExactArgs(1),
	RunE:  runQuery,
}

func init() {
	queryCmd.Flags().BoolVar(&queryRaw, "raw", false, "also print the raw adapter reply")
}

func runQuery(cmd *cobra.Command, args []string) error {
	if _, ok := obd.Lookup(args[0]); !ok {
		return fmt.Errorf("%w: %q (supported: %s)", errUnknownPID, args[0], strings.Join(obd.GetSupportedPIDs(), ", "))
	}

	env, err := loadEnvironment()
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	session, peer, err := env.openSession(ctx)
	if err != nil {
		return err
	}
	defer session.Close()

	b := newBridge(deviceID(peer), session, monitor.New(session, monitor.NewTelemetry(), env.config.Monitor), env.prefs, nil)
	result, err := b.query(ctx, args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s (%s): %s %s\n", result.Name, result.PID, result.Value, result.Unit)
	if queryRaw {
		fmt.Fprintf(out, "raw: %q\n", result.Raw)
	}
	return nil
}

// supportedPIDs перечисляет команды каталога: PID, название, единица
func supportedPIDs() string {
	var b strings.Builder
	for _, cmd := range obd.Catalog() {
		fmt.Fprintf(&b, "  %s  %s", cmd.PID, cmd.Name)
		if cmd.Unit != "" {
			fmt.Fprintf(&b, " (%s)", cmd.Unit)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
