package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"obd2ai/prefs"
)

var logger = log.New(os.Stdout, "[OBD2AI] ", log.LstdFlags|log.Lshortfile)

var (
	configPath string
	cfgViper   = viper.New()
)

var rootCmd = &cobra.Command{
	Use:          "obd2ai",
	Short:        "ELM327 OBD-II diagnostics, live monitoring and trouble code assessment",
	SilenceUsage: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "config file (default ./config.yaml or /etc/obd2ai/config.yaml)")
	flags.String("peer", "", "ELM327 MAC address (rfcomm) or device path (device, serial)")
	flags.String("prefs", "", "preferences file (default "+prefs.DefaultPath()+")")

	cfgViper.BindPFlag("elm327.peer", flags.Lookup("peer"))
	cfgViper.BindPFlag("prefs", flags.Lookup("prefs"))

	rootCmd.AddCommand(bridgeCmd, codesCmd, liveCmd, queryCmd, portsCmd, prefsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
