package common

import (
	"time"

	"obd2ai/assessment"
)

// Команды, принимаемые по MQTT
const (
	CommandStart = "start" // запустить живой мониторинг
	CommandStop  = "stop"  // остановить живой мониторинг
	CommandScan  = "scan"  // прочитать коды неисправностей
	CommandQuery = "query" // однократный запрос PID
)

// Статусы ответа на команду
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// TelemetryMessage представляет одно значение живых данных
type TelemetryMessage struct {
	Device    string    `json:"device"`    // Идентификатор адаптера
	Metric    string    `json:"metric"`    // Название ячейки (speed, rpm, coolant_temp)
	Value     string    `json:"value"`     // Значение с единицей измерения, например "50 km/h"
	Active    bool      `json:"active"`    // Идет ли мониторинг
	Timestamp time.Time `json:"timestamp"` // Время обновления
}

// AlertMessage представляет событие превышения уровня оборотов
type AlertMessage struct {
	Device    string    `json:"device"`
	Tier      int       `json:"tier"`
	RPM       int       `json:"rpm"`
	Danger    bool      `json:"danger"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ScanReport - результат чтения кодов неисправностей
type ScanReport struct {
	Device    string              `json:"device"`
	Codes     []string            `json:"codes"`             // Объединение режимов 03, 07 и 0A
	Records   []assessment.Record `json:"records,omitempty"` // Оценки, по убыванию тяжести
	Counts    assessment.Counts   `json:"counts"`
	Error     string              `json:"error,omitempty"` // Ошибка оценки, если коды прочитаны, а оценка нет
	Timestamp time.Time           `json:"timestamp"`
}

// NewScanReport собирает отчет: записи ранжируются, уровни подсчитываются
func NewScanReport(device string, codes []string, records []assessment.Record) ScanReport {
	if codes == nil {
		codes = []string{}
	}
	return ScanReport{
		Device:    device,
		Codes:     codes,
		Records:   assessment.Rank(records),
		Counts:    assessment.Count(records),
		Timestamp: time.Now(),
	}
}

// QueryResult - ответ на однократный запрос PID
type QueryResult struct {
	PID   string `json:"pid"`
	Name  string `json:"name"`
	Value string `json:"value"`
	Unit  string `json:"unit"`
	Raw   string `json:"raw"`
}

// CommandMessage представляет входящую команду
type CommandMessage struct {
	Command       string `json:"command"`        // start, stop, scan или query
	PID           string `json:"pid,omitempty"`  // PID для query, например "0C"
	CorrelationID string `json:"correlation_id"` // ID для сопоставления запроса и ответа
	Description   string `json:"description"`    // Описание команды
}

// CommandResponse представляет ответ на команду
type CommandResponse struct {
	CorrelationID string      `json:"correlation_id"`
	Status        string      `json:"status"`          // "success", "error"
	Result        interface{} `json:"result"`          // Результат выполнения команды
	Error         string      `json:"error,omitempty"` // Описание ошибки если статус "error"
	Timestamp     time.Time   `json:"timestamp"`
}
