package elm327

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"obd2ai/obd"
)

var logger = log.New(os.Stdout, "[ELM327-Session] ", log.LstdFlags|log.Lshortfile)

var (
	// ErrTransportUnavailable - нет открытого потока или он сломался во время обмена
	ErrTransportUnavailable = errors.New("transport unavailable")
	// ErrInitializationFailed - последовательность инициализации адаптера не завершилась
	ErrInitializationFailed = errors.New("initialization failed")
)

// InitCommands - последовательность инициализации адаптера
var InitCommands = []string{
	"ATZ",   // сброс
	"ATE0",  // эхо выключено
	"ATL0",  // переводы строк выключены
	"ATSP0", // автоматический выбор протокола
}

// Connector открывает поток к адаптеру по идентификатору устройства
type Connector interface {
	Connect(peerID string) (io.ReadWriteCloser, error)
	Disconnect() error
}

// Config конфигурация сессии
type Config struct {
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	SettleDelay        time.Duration `mapstructure:"settle_delay"`
	ResetWait          time.Duration `mapstructure:"reset_wait"`
	DrainBeforeCommand bool          `mapstructure:"drain_before_command"`
	Debug              bool          `mapstructure:"debug"`
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() Config {
	return Config{
		ReadTimeout:        5 * time.Second,
		SettleDelay:        400 * time.Millisecond,
		ResetWait:          1000 * time.Millisecond,
		DrainBeforeCommand: true,
	}
}

// Session - единственный владелец потока к адаптеру.
// Обмены "запрос-ответ" выполняются строго по одному.
type Session struct {
	connector Connector
	config    Config

	mu sync.Mutex // сериализует обмены

	connMu sync.RWMutex
	stream *stream
}

// NewSession создает сессию. connector может быть nil, если поток передается через Attach.
func NewSession(connector Connector, config Config) *Session {
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = DefaultConfig().ReadTimeout
	}
	return &Session{
		connector: connector,
		config:    config,
	}
}

// Setup открывает поток к устройству через Connector
func (s *Session) Setup(peerID string) error {
	if s.connector == nil {
		return fmt.Errorf("%w: no connector configured", ErrTransportUnavailable)
	}

	logger.Printf("Connecting to %s...", peerID)
	rwc, err := s.connector.Connect(peerID)
	if err != nil {
		return fmt.Errorf("%w: connect %s: %w", ErrTransportUnavailable, peerID, err)
	}

	s.Attach(rwc)
	logger.Printf("Connected to %s", peerID)
	return nil
}

// Attach передает сессии уже открытый поток. Предыдущий поток закрывается.
func (s *Session) Attach(rwc io.ReadWriteCloser) {
	s.connMu.Lock()
	old := s.stream
	s.stream = newStream(rwc)
	s.connMu.Unlock()

	if old != nil {
		old.close()
	}
}

// Connected сообщает, открыт ли поток
func (s *Session) Connected() bool {
	return s.current() != nil
}

func (s *Session) current() *stream {
	s.connMu.RLock()
	defer s.connMu.RUnlock()
	return s.stream
}

// Close закрывает поток. Ожидающее чтение при этом прерывается.
// Повторный вызов безопасен.
func (s *Session) Close() error {
	s.connMu.Lock()
	st := s.stream
	s.stream = nil
	s.connMu.Unlock()

	var errs []error
	if st != nil {
		if err := st.close(); err != nil {
			errs = append(errs, err)
		}
		logger.Println("Stream closed")
	}
	if s.connector != nil {
		if err := s.connector.Disconnect(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RunCommand отправляет команду, читает ответ до приглашения '>' и декодирует его
func (s *Session) RunCommand(ctx context.Context, cmd obd.Command) (obd.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.current()
	if st == nil {
		return obd.Response{}, fmt.Errorf("%w: session is not set up", ErrTransportUnavailable)
	}

	if s.config.DrainBeforeCommand {
		if stale := st.drain(); len(stale) > 0 {
			logger.Printf("Discarded %d stale bytes before %s: %q", len(stale), cmd, stale)
		}
	}

	if err := st.write(cmd.Frame()); err != nil {
		return obd.Response{}, fmt.Errorf("%w: write %s: %w", ErrTransportUnavailable, cmd, err)
	}

	text, err := st.readUntilPrompt(ctx, s.config.ReadTimeout)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return obd.Response{}, ctxErr
		}
		return obd.Response{}, fmt.Errorf("%w: read %s: %w", ErrTransportUnavailable, cmd, err)
	}

	resp := cmd.Run(obd.NewRawCapture(text))
	if s.config.Debug {
		logger.Printf("Command: %s, Raw: %q, Parsed: %s", cmd.Name, resp.Raw.Raw, resp)
	}
	return resp, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
