package monitor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"obd2ai/obd"
)

var logger = log.New(os.Stdout, "[Monitor] ", log.LstdFlags|log.Lshortfile)

// ErrAlreadyRunning возвращается при повторном запуске Run
var ErrAlreadyRunning = errors.New("monitoring already running")

// Runner выполняет одну команду на адаптере (elm327.Session)
type Runner interface {
	RunCommand(ctx context.Context, cmd obd.Command) (obd.Response, error)
}

// State состояние цикла мониторинга
type State int

const (
	Stopped State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "stopped"
}

// Config конфигурация цикла мониторинга
type Config struct {
	PollInterval         time.Duration `mapstructure:"poll_interval"`
	ErrorBackoff         time.Duration `mapstructure:"error_backoff"`
	MaxConsecutiveErrors int           `mapstructure:"max_consecutive_errors"`
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() Config {
	return Config{
		PollInterval:         800 * time.Millisecond,
		ErrorBackoff:         1000 * time.Millisecond,
		MaxConsecutiveErrors: 3,
	}
}

type liveCommand struct {
	slot Slot
	cmd  obd.Command
}

// Monitor опрашивает скорость, обороты и температуру и пишет их в Telemetry
type Monitor struct {
	runner    Runner
	telemetry *Telemetry
	config    Config
	commands  []liveCommand
	breaker   *Breaker

	mu      sync.Mutex
	state   State
	tripped bool
	stop    chan struct{}
}

// New создает монитор
func New(runner Runner, telemetry *Telemetry, config Config) *Monitor {
	if config.MaxConsecutiveErrors <= 0 {
		config.MaxConsecutiveErrors = DefaultConfig().MaxConsecutiveErrors
	}
	return &Monitor{
		runner:    runner,
		telemetry: telemetry,
		config:    config,
		commands:  liveCommands(),
		breaker:   NewBreaker(config.MaxConsecutiveErrors),
	}
}

// liveCommands сопоставляет ячейки Slots командам obd.LiveCommands по порядку опроса
func liveCommands() []liveCommand {
	cmds := obd.LiveCommands()
	lcs := make([]liveCommand, 0, len(cmds))
	for i, cmd := range cmds {
		if i >= len(Slots) {
			break
		}
		lcs = append(lcs, liveCommand{slot: Slots[i], cmd: cmd})
	}
	return lcs
}

// Telemetry возвращает хранилище, в которое пишет монитор
func (m *Monitor) Telemetry() *Telemetry {
	return m.telemetry
}

func (m *Monitor) Config() Config {
	return m.config
}

// State возвращает текущее состояние
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Tripped сообщает, что последний запуск остановлен предохранителем
func (m *Monitor) Tripped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tripped
}

// Stop просит цикл остановиться. Выполняемая команда не прерывается.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stop != nil {
		close(m.stop)
		m.stop = nil
	}
}

// Run запускает цикл и блокируется до остановки.
// Ошибки команд не возвращаются: после MaxConsecutiveErrors подряд цикл завершается,
// а во все ячейки записывается ERROR.
func (m *Monitor) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.state == Running {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}
	stop := make(chan struct{})
	m.stop = stop
	m.state = Running
	m.tripped = false
	m.mu.Unlock()

	m.breaker.Reset()
	m.telemetry.setActive(true)
	logger.Println("Live monitoring started")

	defer func() {
		m.mu.Lock()
		m.state = Stopped
		if m.stop == stop {
			m.stop = nil
		}
		m.mu.Unlock()
		m.telemetry.setActive(false)
		logger.Println("Live monitoring stopped")
	}()

	// команды не прерываются отменой ctx, только ReadTimeout сессии
	cmdCtx := context.WithoutCancel(ctx)

	for {
		if done(ctx, stop) {
			return nil
		}

		if err := m.poll(cmdCtx); err != nil {
			if done(ctx, stop) {
				return nil
			}

			logger.Printf("Polling error (%d/%d): %v", m.breaker.Count()+1, m.breaker.Threshold(), err)
			if m.breaker.Fail() {
				logger.Printf("Circuit breaker tripped after %d consecutive errors", m.breaker.Count())
				m.telemetry.setAll(ErrorValue)
				m.mu.Lock()
				m.tripped = true
				m.mu.Unlock()
				return nil
			}

			if !wait(ctx, stop, m.config.ErrorBackoff) {
				return nil
			}
			continue
		}

		m.breaker.Reset()
		if !wait(ctx, stop, m.config.PollInterval) {
			return nil
		}
	}
}

// poll выполняет одну итерацию опроса; каждое значение публикуется сразу
func (m *Monitor) poll(ctx context.Context) error {
	for _, lc := range m.commands {
		resp, err := m.runner.RunCommand(ctx, lc.cmd)
		if err != nil {
			return fmt.Errorf("%s: %w", lc.cmd.Tag, err)
		}
		m.telemetry.set(lc.slot, resp.String())
	}
	return nil
}

func done(ctx context.Context, stop <-chan struct{}) bool {
	select {
	case <-ctx.Done():
		return true
	case <-stop:
		return true
	default:
		return false
	}
}

// wait возвращает false, если ожидание прервано остановкой
func wait(ctx context.Context, stop <-chan struct{}, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-stop:
		return false
	case <-timer.C:
		return true
	}
}
