package obd

import (
	"fmt"
	"strconv"
	"strings"
)

// Decoder превращает сырой ответ адаптера в строковое значение.
// Декодер обязан быть чистой функцией и никогда не паниковать на коротком вводе.
type Decoder func(raw RawCapture) string

// Command описывает один запрос OBD-II: режим, PID и функцию декодирования ответа.
// Новые команды добавляются созданием нового значения, а не наследованием.
type Command struct {
	Mode   string  // Режим (сервис), например "01"
	PID    string  // PID, например "0D"; пустой для режимов 03/07/0A
	Tag    string  // Короткий тег, например "SPEED"
	Name   string  // Человеко-читаемое название
	Unit   string  // Единица измерения
	Decode Decoder // Функция декодирования
}

// String возвращает команду в виде, в котором она уходит в адаптер (без \r)
func (c Command) String() string {
	return c.Mode + c.PID
}

// Frame возвращает кадр для записи в поток
func (c Command) Frame() []byte {
	return []byte(c.String() + "\r")
}

// Header возвращает ожидаемый заголовок ответа: режим + 0x40, затем PID.
// Для "010D" это "410D", для "03" это "43".
func (c Command) Header() string {
	mode, err := strconv.ParseUint(c.Mode, 16, 8)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%02X", mode+0x40) + strings.ToUpper(c.PID)
}

// Run применяет декодер команды к сырому ответу
func (c Command) Run(raw RawCapture) Response {
	value := ""
	if c.Decode != nil {
		value = c.Decode(raw)
	}
	return Response{
		Command: c,
		Value:   value,
		Unit:    c.Unit,
		Raw:     raw,
	}
}

// RawCapture содержит ответ адаптера на один запрос
type RawCapture struct {
	Raw   string // Текст ответа без приглашения '>' и служебных строк адаптера
	Value string // Raw в верхнем регистре без пробельных символов
}

// adapterNoise содержит служебные строки ELM327, которые не относятся к данным
var adapterNoise = []string{"SEARCHING...", "BUS INIT...", "BUS INIT: ...OK", "BUS INIT: OK"}

// NewRawCapture нормализует текст ответа адаптера
func NewRawCapture(text string) RawCapture {
	text = strings.ReplaceAll(text, ">", "")
	for _, noise := range adapterNoise {
		text = strings.ReplaceAll(text, noise, "")
	}
	text = strings.TrimSpace(text)

	value := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, strings.ToUpper(text))

	return RawCapture{Raw: text, Value: value}
}

// Lines возвращает непустые строки ответа
func (r RawCapture) Lines() []string {
	fields := strings.FieldsFunc(r.Raw, func(c rune) bool { return c == '\r' || c == '\n' })
	lines := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			lines = append(lines, f)
		}
	}
	return lines
}

// NoData сообщает, что адаптер ответил "NO DATA" или ничего не вернул
func (r RawCapture) NoData() bool {
	return r.Value == "" || strings.EqualFold(r.Value, "NODATA")
}

// Response - декодированное значение вместе с сырым ответом
type Response struct {
	Command Command
	Value   string
	Unit    string
	Raw     RawCapture
}

// String форматирует значение так, как оно публикуется в телеметрию
func (r Response) String() string {
	if r.Unit == "" {
		return r.Value
	}
	return r.Value + " " + r.Unit
}
