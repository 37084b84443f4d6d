package prefs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Источники скорости
const (
	SpeedSourceOBD2Device = "obd2_device"
	SpeedSourceThisDevice = "this_device"
)

// APIKeyEnv - переменная окружения с ключом, если он не сохранен в настройках
const APIKeyEnv = "OBD2AI_ASSESSMENT_API_KEY"

const DefaultModelID = "gpt-5-mini"

// Preferences - пользовательские настройки
type Preferences struct {
	SpeedSource       string `yaml:"speed_source"`
	AssessmentAPIKey  string `yaml:"assessment_api_key"`
	AssessmentModelID string `yaml:"assessment_model_id"`
	MuteAlerts        bool   `yaml:"mute_alerts"`
}

// Default возвращает настройки по умолчанию
func Default() Preferences {
	return Preferences{
		SpeedSource:       SpeedSourceOBD2Device,
		AssessmentModelID: DefaultModelID,
	}
}

// Load читает настройки из YAML-файла. Отсутствующий файл дает настройки по умолчанию.
func Load(path string) (Preferences, error) {
	p := Default()

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return p, fmt.Errorf("failed to read preferences %s: %w", path, err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, &p); err != nil {
			return Default(), fmt.Errorf("failed to parse preferences %s: %w", path, err)
		}
	}

	p.normalize()
	return p, nil
}

// Save записывает настройки в YAML-файл
func Save(path string, p Preferences) error {
	p.normalize()

	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal preferences: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	// ключ API хранится в файле, поэтому права только для владельца
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write preferences %s: %w", path, err)
	}
	return nil
}

func (p *Preferences) normalize() {
	switch p.SpeedSource {
	case SpeedSourceOBD2Device, SpeedSourceThisDevice:
	default:
		p.SpeedSource = SpeedSourceOBD2Device
	}
	if p.AssessmentModelID == "" {
		p.AssessmentModelID = DefaultModelID
	}
}

// APIKey возвращает ключ из настроек или из окружения
func (p Preferences) APIKey() string {
	if p.AssessmentAPIKey != "" {
		return p.AssessmentAPIKey
	}
	return os.Getenv(APIKeyEnv)
}

// LiveSpeedFromAdapter сообщает, что скорость и живые данные читаются с адаптера
func (p Preferences) LiveSpeedFromAdapter() bool {
	return p.SpeedSource != SpeedSourceThisDevice
}

// DefaultPath возвращает путь к файлу настроек в каталоге конфигурации пользователя
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "prefs.yaml"
	}
	return filepath.Join(dir, "obd2ai", "prefs.yaml")
}
