package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"obd2ai/assessment"
	"obd2ai/bluetooth"
	"obd2ai/dashboard"
	"obd2ai/elm327"
	"obd2ai/monitor"
	"obd2ai/mqtt"
)

// Config - конфигурация приложения (config.yaml)
type Config struct {
	Elm327 struct {
		Peer string `mapstructure:"peer"` // MAC-адрес адаптера или путь к устройству
	} `mapstructure:"elm327"`
	Connect struct {
		Attempts uint          `mapstructure:"attempts"` // Попытки подключения и инициализации
		Delay    time.Duration `mapstructure:"delay"`    // Пауза между попытками
	} `mapstructure:"connect"`
	Bluetooth  bluetooth.Config  `mapstructure:"bluetooth"`
	Session    elm327.Config     `mapstructure:"session"`
	Monitor    monitor.Config    `mapstructure:"monitor"`
	Assessment assessment.Config `mapstructure:"assessment"`
	MQTT       mqtt.Config       `mapstructure:"mqtt"`
	Dashboard  dashboard.Config  `mapstructure:"dashboard"`
	Logging    struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"logging"`
	Prefs string `mapstructure:"prefs"` // Путь к файлу пользовательских настроек
}

// DefaultConfig собирает конфигурацию по умолчанию из конфигураций пакетов
func DefaultConfig() Config {
	var config Config
	config.Connect.Attempts = 3
	config.Connect.Delay = 5 * time.Second
	config.Bluetooth = bluetooth.DefaultConfig()
	config.Session = elm327.DefaultConfig()
	config.Monitor = monitor.DefaultConfig()
	config.Assessment = assessment.DefaultConfig()
	config.MQTT = mqtt.DefaultConfig()
	config.Dashboard = dashboard.DefaultConfig()
	config.Logging.Level = "info"
	return config
}

// Ключи, которые можно задать через окружение (OBD2AI_ELM327_PEER и т.д.)
var envKeys = []string{
	"elm327.peer",
	"bluetooth.transport",
	"bluetooth.device_path",
	"mqtt.enabled",
	"mqtt.broker",
	"mqtt.username",
	"mqtt.password",
	"assessment.base_url",
	"assessment.api_key",
	"dashboard.enabled",
	"dashboard.listen_addr",
	"logging.level",
	"prefs",
}

// loadConfig читает config.yaml поверх значений по умолчанию.
// Без явного пути отсутствие файла не ошибка.
func loadConfig(v *viper.Viper, path string) (Config, error) {
	config := DefaultConfig()

	v.SetEnvPrefix("OBD2AI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return config, fmt.Errorf("error binding env for %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/obd2ai")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return config, fmt.Errorf("error reading config file: %w", err)
		}
		logger.Println("No config file found, using defaults")
	} else {
		logger.Printf("Using config file: %s", v.ConfigFileUsed())
	}

	if err := v.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if strings.EqualFold(config.Logging.Level, "debug") {
		config.Session.Debug = true
	}

	return config, nil
}

// peer возвращает идентификатор адаптера с учетом транспорта
func (c Config) peer() (string, error) {
	peer := strings.TrimSpace(c.Elm327.Peer)
	if peer == "" && c.Bluetooth.Transport == bluetooth.TransportRFCOMM {
		return "", fmt.Errorf("ELM327 peer address is not set (use --peer or elm327.peer)")
	}
	if peer == "XX:XX:XX:XX:XX:XX" {
		return "", fmt.Errorf("please set the ELM327 MAC address in config.yaml")
	}
	return peer, nil
}
