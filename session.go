package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avast/retry-go/v4"

	"obd2ai/assessment"
	"obd2ai/bluetooth"
	"obd2ai/elm327"
	"obd2ai/prefs"
)

// environment - конфигурация и пользовательские настройки одного запуска
type environment struct {
	config    Config
	prefs     prefs.Preferences
	prefsPath string
	prefsErr  error // файл настроек есть, но не прочитан; prefs содержит значения по умолчанию
}

func loadEnvironment() (*environment, error) {
	config, err := loadConfig(cfgViper, configPath)
	if err != nil {
		return nil, err
	}

	path := config.Prefs
	if path == "" {
		path = prefs.DefaultPath()
	}
	p, prefsErr := prefs.Load(path)
	if prefsErr != nil {
		logger.Printf("Using default preferences: %v", prefsErr)
	}

	return &environment{config: config, prefs: p, prefsPath: path, prefsErr: prefsErr}, nil
}

// connector - то, что нужно для подключения (elm327.Session)
type connector interface {
	Setup(peerID string) error
	Initialize(ctx context.Context) error
	Close() error
}

// connectAndInitialize открывает поток и выполняет инициализацию адаптера,
// повторяя попытку целиком при ошибке
func connectAndInitialize(ctx context.Context, s connector, peer string, attempts uint, delay time.Duration) error {
	return retry.Do(
		func() error {
			if err := s.Setup(peer); err != nil {
				return err
			}
			if err := s.Initialize(ctx); err != nil {
				s.Close()
				return err
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, context.Canceled)
		}),
		retry.OnRetry(func(n uint, err error) {
			logger.Printf("Connection attempt %d failed: %v", n+1, err)
		}),
	)
}

// openSession подключается к адаптеру из конфигурации и инициализирует его
func (e *environment) openSession(ctx context.Context) (*elm327.Session, string, error) {
	peer, err := e.config.peer()
	if err != nil {
		return nil, "", err
	}

	session := elm327.NewSession(bluetooth.NewAdapter(e.config.Bluetooth), e.config.Session)
	if err := connectAndInitialize(ctx, session, peer, e.config.Connect.Attempts, e.config.Connect.Delay); err != nil {
		return nil, "", fmt.Errorf("failed to connect to ELM327: %w", err)
	}

	logger.Printf("ELM327 ready on %s", peer)
	return session, peer, nil
}

// newAssessor возвращает клиента оценки или nil, если ключ не задан
func (e *environment) newAssessor() *assessment.Client {
	config := e.config.Assessment
	if key := e.prefs.APIKey(); key != "" {
		config.APIKey = key
	}
	// модель из настроек важнее config.yaml, если пользователь ее менял
	if e.prefs.AssessmentModelID != "" && e.prefs.AssessmentModelID != prefs.DefaultModelID {
		config.Model = e.prefs.AssessmentModelID
	}
	if config.APIKey == "" {
		logger.Printf("Trouble code assessment disabled: set assessment_api_key or %s", prefs.APIKeyEnv)
		return nil
	}
	return assessment.NewClient(config)
}

// signalContext отменяется по Ctrl+C или SIGTERM
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
