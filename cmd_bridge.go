package main

import (
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"obd2ai/common"
	"obd2ai/dashboard"
	"obd2ai/monitor"
	"obd2ai/mqtt"
)

var bridgeLive bool

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Publish live telemetry to MQTT and the dashboard and serve remote commands",
	RunE:  runBridge,
}

func init() {
	bridgeCmd.Flags().BoolVar(&bridgeLive, "live", true, "start live monitoring on startup")
}

func runBridge(cmd *cobra.Command, args []string) error {
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

	device := deviceID(peer)
	telemetry := monitor.NewTelemetry()
	m := monitor.New(session, telemetry, env.config.Monitor)

	var (
		events     chan interface{}
		commands   = make(chan common.CommandMessage, 10)
		responses  = make(chan common.CommandResponse, 10)
		mqttClient *mqtt.Client
	)
	if env.config.MQTT.Enabled {
		events = make(chan interface{}, 100)
		mqttClient = mqtt.NewClient(env.config.MQTT, events, commands, responses)
		mqttClient.SetDevice(device)
		if err := mqttClient.Start(); err != nil {
			return err
		}
		defer mqttClient.Stop()
	}

	b := newBridge(device, session, m, env.prefs, events)
	if a := env.newAssessor(); a != nil {
		defer a.Close()
		b.setAssessor(a)
	}

	g, gctx := errgroup.WithContext(ctx)

	if env.config.Dashboard.Enabled {
		dash := dashboard.New(env.config.Dashboard, telemetry)
		b.addSink(dash)
		g.Go(func() error { return dash.Run(gctx) })
	}

	g.Go(func() error { return b.forward(gctx) })

	if mqttClient != nil {
		g.Go(func() error { return b.serveCommands(gctx, commands, mqttClient) })
	}

	if bridgeLive {
		if err := b.startMonitoring(gctx); err != nil {
			logger.Printf("Live monitoring not started: %v", err)
		}
	}

	logger.Println("OBD2AI bridge started. Press Ctrl+C to stop.")

	err = g.Wait()
	b.stopMonitoring()
	logger.Println("OBD2AI bridge stopped")
	return err
}

// deviceID превращает MAC-адрес или путь к устройству в сегмент MQTT-топика
func deviceID(peer string) string {
	id := strings.ReplaceAll(filepath.Base(peer), ":", "")
	if id == "" || id == "." || id == "/" {
		return "elm327"
	}
	return strings.ToLower(id)
}
