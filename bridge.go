package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"obd2ai/assessment"
	"obd2ai/common"
	"obd2ai/monitor"
	"obd2ai/obd"
	"obd2ai/prefs"
)

var (
	errBusy           = errors.New("adapter is busy")
	errSpeedFromHost  = errors.New("live monitoring disabled: speed_source is this_device")
	errUnknownPID     = errors.New("unsupported PID")
	errUnknownCommand = errors.New("unknown command")
)

// diagnostics - операции сессии, которые использует мост (elm327.Session)
type diagnostics interface {
	monitor.Runner
	AllTroubleCodes(ctx context.Context) ([]string, error)
}

type assessor interface {
	AssessAll(ctx context.Context, codes []string) ([]assessment.Record, error)
}

// sink получает события оборотов и отчеты (dashboard.Server)
type sink interface {
	PublishAlert(alert common.AlertMessage)
	SetReport(report common.ScanReport)
}

// responder публикует ответы на команды (mqtt.Client)
type responder interface {
	PublishCommandResponse(correlationID, status string, result interface{}, err error)
}

// flow - операция, которая сейчас владеет сессией
type flow string

const (
	flowIdle  flow = ""
	flowLive  flow = "live monitoring"
	flowScan  flow = "trouble code scan"
	flowQuery flow = "PID query"
)

// bridge связывает сессию с монитором, оценкой кодов и внешними потребителями.
// Одновременно сессией владеет только один поток работы.
type bridge struct {
	device    string
	session   diagnostics
	monitor   *monitor.Monitor
	telemetry *monitor.Telemetry
	assessor  assessor
	prefs     prefs.Preferences
	alerts    *monitor.ShiftAlert

	events chan<- interface{} // в MQTT, может быть nil
	sinks  []sink

	flowMu        sync.Mutex
	flow          flow
	monitorCancel context.CancelFunc
	monitorDone   chan struct{}

	wg sync.WaitGroup
}

func newBridge(device string, session diagnostics, m *monitor.Monitor, p prefs.Preferences, events chan<- interface{}) *bridge {
	return &bridge{
		device:    device,
		session:   session,
		monitor:   m,
		telemetry: m.Telemetry(),
		prefs:     p,
		alerts:    monitor.NewShiftAlert(),
		events:    events,
	}
}

func (b *bridge) setAssessor(a assessor) {
	b.assessor = a
}

func (b *bridge) addSink(s sink) {
	b.sinks = append(b.sinks, s)
}

func (b *bridge) acquire(f flow) error {
	b.flowMu.Lock()
	defer b.flowMu.Unlock()
	if b.flow != flowIdle {
		return fmt.Errorf("%w: %s in progress", errBusy, b.flow)
	}
	b.flow = f
	return nil
}

func (b *bridge) release() {
	b.flowMu.Lock()
	b.flow = flowIdle
	b.flowMu.Unlock()
}

// currentFlow возвращает операцию, которая владеет сессией
func (b *bridge) currentFlow() flow {
	b.flowMu.Lock()
	defer b.flowMu.Unlock()
	return b.flow
}

// startMonitoring запускает живой мониторинг в фоне до stopMonitoring или отмены ctx
func (b *bridge) startMonitoring(ctx context.Context) error {
	if !b.prefs.LiveSpeedFromAdapter() {
		return errSpeedFromHost
	}

	b.flowMu.Lock()
	defer b.flowMu.Unlock()
	switch b.flow {
	case flowIdle:
	case flowLive:
		return monitor.ErrAlreadyRunning
	default:
		return fmt.Errorf("%w: %s in progress", errBusy, b.flow)
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	b.flow = flowLive
	b.monitorCancel = cancel
	b.monitorDone = done

	go func() {
		defer close(done)
		defer cancel()

		if err := b.monitor.Run(runCtx); err != nil {
			logger.Printf("Live monitoring failed to start: %v", err)
		}
		if b.monitor.Tripped() {
			logger.Println("Live monitoring stopped after repeated adapter errors")
		}

		b.flowMu.Lock()
		if b.monitorDone == done {
			b.flow = flowIdle
			b.monitorCancel = nil
			b.monitorDone = nil
		}
		b.flowMu.Unlock()
	}()

	return nil
}

// stopMonitoring останавливает мониторинг и ждет завершения цикла.
// Возвращает false, если мониторинг не был запущен.
func (b *bridge) stopMonitoring() bool {
	b.flowMu.Lock()
	cancel, done := b.monitorCancel, b.monitorDone
	b.flowMu.Unlock()

	if done == nil {
		return false
	}

	b.monitor.Stop()
	cancel()
	<-done
	return true
}

// scan читает коды всех трех режимов и, если настроена оценка, оценивает их
func (b *bridge) scan(ctx context.Context) (common.ScanReport, error) {
	if err := b.acquire(flowScan); err != nil {
		return common.ScanReport{}, err
	}
	codes, err := b.session.AllTroubleCodes(ctx)
	b.release()
	if err != nil {
		return common.ScanReport{}, fmt.Errorf("failed to read trouble codes: %w", err)
	}

	logger.Printf("Read %d trouble code(s): %v", len(codes), codes)

	var records []assessment.Record
	var assessErr error
	if b.assessor != nil && len(codes) > 0 {
		records, assessErr = b.assessor.AssessAll(ctx, codes)
		if assessErr != nil {
			logger.Printf("Assessment failed: %v", assessErr)
		}
	}

	report := common.NewScanReport(b.device, codes, records)
	if assessErr != nil {
		report.Error = assessErr.Error()
	}

	b.emit(report)
	for _, s := range b.sinks {
		s.SetReport(report)
	}
	return report, nil
}

// query выполняет однократный запрос PID режима 01
func (b *bridge) query(ctx context.Context, pid string) (common.QueryResult, error) {
	cmd, ok := obd.Lookup(pid)
	if !ok {
		return common.QueryResult{}, fmt.Errorf("%w: %q", errUnknownPID, pid)
	}

	if err := b.acquire(flowQuery); err != nil {
		return common.QueryResult{}, err
	}
	defer b.release()

	resp, err := b.session.RunCommand(ctx, cmd)
	if err != nil {
		return common.QueryResult{}, fmt.Errorf("failed to query %s: %w", cmd, err)
	}

	return common.QueryResult{
		PID:   cmd.PID,
		Name:  cmd.Name,
		Value: resp.Value,
		Unit:  resp.Unit,
		Raw:   resp.Raw.Raw,
	}, nil
}

// handleCommand выполняет команду, пришедшую по MQTT
func (b *bridge) handleCommand(ctx context.Context, msg common.CommandMessage) (interface{}, error) {
	switch msg.Command {
	case common.CommandStart:
		if err := b.startMonitoring(ctx); err != nil {
			return nil, err
		}
		return map[string]string{"state": monitor.Running.String()}, nil
	case common.CommandStop:
		if !b.stopMonitoring() {
			return nil, errors.New("live monitoring is not running")
		}
		return map[string]string{"state": monitor.Stopped.String()}, nil
	case common.CommandScan:
		return b.scan(ctx)
	case common.CommandQuery:
		return b.query(ctx, msg.PID)
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownCommand, msg.Command)
	}
}

// serveCommands обрабатывает входящие команды до отмены ctx.
// Каждая команда выполняется в своей горутине, сессию разделяет acquire.
func (b *bridge) serveCommands(ctx context.Context, commands <-chan common.CommandMessage, r responder) error {
	defer b.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-commands:
			if !ok {
				return nil
			}

			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				logger.Printf("Executing command: %s (correlation_id: %s)", msg.Command, msg.CorrelationID)
				result, err := b.handleCommand(ctx, msg)
				if err != nil {
					logger.Printf("Command %s failed: %v", msg.Command, err)
				}
				r.PublishCommandResponse(msg.CorrelationID, common.StatusSuccess, result, err)
			}()
		}
	}
}

// forward пересылает изменения телеметрии в MQTT и следит за оборотами
func (b *bridge) forward(ctx context.Context) error {
	updates, cancel := b.telemetry.Subscribe(32)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			b.forwardUpdate(u)
		}
	}
}

func (b *bridge) forwardUpdate(u monitor.Update) {
	if u.Slot == monitor.SlotNone {
		b.emit(common.TelemetryMessage{
			Device:    b.device,
			Metric:    "active",
			Value:     strconv.FormatBool(u.Active),
			Active:    u.Active,
			Timestamp: u.Time,
		})
		return
	}

	b.emit(common.TelemetryMessage{
		Device:    b.device,
		Metric:    u.Name,
		Value:     u.Value,
		Active:    u.Active,
		Timestamp: u.Time,
	})

	if u.Slot != monitor.SlotRPM {
		return
	}

	alert, ok := b.alerts.ObserveValue(u.Value)
	if !ok || b.prefs.MuteAlerts {
		return
	}

	logger.Printf("Shift alert: %s (%d RPM)", alert.Message, alert.RPM)
	msg := common.AlertMessage{
		Device:    b.device,
		Tier:      alert.Tier,
		RPM:       alert.RPM,
		Danger:    alert.Danger,
		Message:   alert.Message,
		Timestamp: alert.Time,
	}
	b.emit(msg)
	for _, s := range b.sinks {
		s.PublishAlert(msg)
	}
}

// emit ставит событие в очередь MQTT, не блокируя мост
func (b *bridge) emit(event interface{}) {
	if b.events == nil {
		return
	}
	select {
	case b.events <- event:
	case <-time.After(100 * time.Millisecond):
		logger.Printf("Events queue full, dropping %T", event)
	}
}
