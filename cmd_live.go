package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"

	"obd2ai/common"
	"obd2ai/monitor"
)

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Print speed, engine RPM and coolant temperature until interrupted",
	RunE:  runLive,
}

// consoleSink печатает события оборотов и отчеты в терминал
type consoleSink struct {
	mu sync.Mutex
	w  io.Writer
}

func (c *consoleSink) PublishAlert(alert common.AlertMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, "!! %s (%d RPM)\n", alert.Message, alert.RPM)
}

func (c *consoleSink) SetReport(report common.ScanReport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	printReport(c.w, report)
}

func (c *consoleSink) printUpdate(u monitor.Update) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, "%-13s %s\n", u.Name+":", u.Value)
}

func runLive(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	if !env.prefs.LiveSpeedFromAdapter() {
		return errSpeedFromHost
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	session, peer, err := env.openSession(ctx)
	if err != nil {
		return err
	}
	defer session.Close()

	telemetry := monitor.NewTelemetry()
	m := monitor.New(session, telemetry, env.config.Monitor)

	console := &consoleSink{w: cmd.OutOrStdout()}
	b := newBridge(deviceID(peer), session, m, env.prefs, nil)
	b.addSink(console)

	return watch(ctx, b, console)
}

// watch печатает телеметрию, пока мониторинг не остановится
func watch(ctx context.Context, b *bridge, console *consoleSink) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	updates, unsubscribe := b.telemetry.Subscribe(32)
	defer unsubscribe()

	if err := b.startMonitoring(ctx); err != nil {
		return err
	}
	defer b.stopMonitoring()

	go b.forward(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			if u.Slot != monitor.SlotNone {
				console.printUpdate(u)
				continue
			}
			if u.Active {
				continue
			}
			if b.monitor.Tripped() {
				return fmt.Errorf("live monitoring stopped after %d consecutive adapter errors",
					b.monitor.Config().MaxConsecutiveErrors)
			}
			return nil
		}
	}
}
