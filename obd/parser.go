package obd

import (
	"sort"
	"strconv"
	"strings"
)

// formula вычисляет значение из байтов данных (длина уже проверена)
type formula func(data []byte) string

// pidCommand собирает команду режима 01, которая ищет заголовок "41<pid>"
// и читает size байт данных после него. При любой ошибке возвращается fallback.
func pidCommand(pid, tag, name, unit string, size int, f formula) Command {
	cmd := Command{Mode: "01", PID: pid, Tag: tag, Name: name, Unit: unit}
	header := cmd.Header()
	cmd.Decode = func(raw RawCapture) string {
		data, ok := payload(raw, header, size)
		if !ok {
			return "0"
		}
		return f(data)
	}
	return cmd
}

// payload находит заголовок в ответе и разбирает n байт данных после него.
// Возвращает false, если заголовка нет, данных не хватает или встретился не-hex символ.
func payload(raw RawCapture, header string, n int) ([]byte, bool) {
	idx := strings.Index(raw.Value, header)
	if idx == -1 {
		return nil, false
	}
	start := idx + len(header)
	if len(raw.Value) < start+n*2 {
		return nil, false
	}
	data := make([]byte, n)
	for i := range data {
		pos := start + i*2
		val, err := strconv.ParseUint(raw.Value[pos:pos+2], 16, 8)
		if err != nil {
			return nil, false
		}
		data[i] = byte(val)
	}
	return data, true
}

func itoa(v int) string { return strconv.Itoa(v) }

func ftoa(v float64) string { return strconv.FormatFloat(v, 'f', 1, 64) }

// Формулы для конкретных PID

// Скорость: A
func speedFormula(d []byte) string { return itoa(int(d[0])) }

// Обороты: ((A * 256) + B) / 4, целочисленное деление
func rpmFormula(d []byte) string { return itoa((int(d[0])*256 + int(d[1])) / 4) }

// Температура: A - 40
func temperatureFormula(d []byte) string { return itoa(int(d[0]) - 40) }

// Проценты: (A * 100) / 255
func percentFormula(d []byte) string { return ftoa(float64(d[0]) * 100 / 255) }

// Коррекция топлива: (A - 128) * 100 / 128
func fuelTrimFormula(d []byte) string { return ftoa((float64(d[0]) - 128) * 100 / 128) }

// Давление топлива: A * 3
func fuelPressureFormula(d []byte) string { return itoa(int(d[0]) * 3) }

// Прямое значение: A
func rawByteFormula(d []byte) string { return itoa(int(d[0])) }

// Двухбайтовое значение: (A * 256) + B
func wordFormula(d []byte) string { return itoa(int(d[0])*256 + int(d[1])) }

// Команды живых данных
var (
	SpeedCommand       = pidCommand("0D", "SPEED", "Vehicle Speed", "km/h", 1, speedFormula)
	RPMCommand         = pidCommand("0C", "ENGINE_RPM", "Engine RPM", "RPM", 2, rpmFormula)
	CoolantTempCommand = pidCommand("05", "COOLANT_TEMP", "Engine Coolant Temperature", "°C", 1, temperatureFormula)
)

// catalog содержит все поддерживаемые команды режима 01
var catalog = map[string]Command{
	// Двигатель и производительность
	"0C": RPMCommand,
	"0D": SpeedCommand,
	"05": CoolantTempCommand,
	"0F": pidCommand("0F", "INTAKE_TEMP", "Intake Air Temperature", "°C", 1, temperatureFormula),
	"11": pidCommand("11", "THROTTLE_POS", "Throttle Position", "%", 1, percentFormula),
	"04": pidCommand("04", "ENGINE_LOAD", "Calculated Engine Load", "%", 1, percentFormula),

	// Топливо
	"2F": pidCommand("2F", "FUEL_LEVEL", "Fuel Level Input", "%", 1, percentFormula),
	"0A": pidCommand("0A", "FUEL_PRESSURE", "Fuel Pressure", "kPa", 1, fuelPressureFormula),
	"06": pidCommand("06", "SHORT_TERM_FUEL_TRIM_1", "Short Term Fuel Trim Bank 1", "%", 1, fuelTrimFormula),
	"07": pidCommand("07", "LONG_TERM_FUEL_TRIM_1", "Long Term Fuel Trim Bank 1", "%", 1, fuelTrimFormula),

	// Давление
	"0B": pidCommand("0B", "INTAKE_PRESSURE", "Intake Manifold Pressure", "kPa", 1, rawByteFormula),
	"33": pidCommand("33", "BAROMETRIC_PRESSURE", "Barometric Pressure", "kPa", 1, rawByteFormula),

	// Диагностика
	"21": pidCommand("21", "DISTANCE_WITH_MIL", "Distance Traveled With MIL On", "km", 2, wordFormula),
}

// Lookup возвращает команду режима 01 по PID (регистр не важен)
func Lookup(pid string) (Command, bool) {
	cmd, ok := catalog[strings.ToUpper(strings.TrimSpace(pid))]
	return cmd, ok
}

// GetSupportedPIDs возвращает отсортированный список поддерживаемых PID
func GetSupportedPIDs() []string {
	pids := make([]string, 0, len(catalog))
	for pid := range catalog {
		pids = append(pids, pid)
	}
	sort.Strings(pids)
	return pids
}

// LiveCommands возвращает фиксированный набор команд живого мониторинга в порядке опроса
func LiveCommands() []Command {
	return []Command{SpeedCommand, RPMCommand, CoolantTempCommand}
}

// Catalog возвращает все команды режима 01, отсортированные по PID
func Catalog() []Command {
	pids := GetSupportedPIDs()
	cmds := make([]Command, 0, len(pids))
	for _, pid := range pids {
		cmds = append(cmds, catalog[pid])
	}
	return cmds
}
