package assessment

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Severity - тяжесть неисправности, упорядочена Low < Medium < High
type Severity int

const (
	Low Severity = iota
	Medium
	High
)

// SeverityFromInt переводит 0/1/2 в Severity
func SeverityFromInt(v int) (Severity, error) {
	switch v {
	case 0:
		return Low, nil
	case 1:
		return Medium, nil
	case 2:
		return High, nil
	default:
		return Low, fmt.Errorf("invalid severity level: %d", v)
	}
}

func (s Severity) String() string {
	switch s {
	case Medium:
		return "Medium"
	case High:
		return "High"
	default:
		return "Low"
	}
}

// Record - оценка одного кода неисправности
type Record struct {
	ErrorCode        string   `json:"errorCode"`
	Severity         Severity `json:"severity"`
	Title            string   `json:"title"`
	Detail           string   `json:"detail"`
	Implications     string   `json:"implications"`
	SuggestedActions []string `json:"suggestedActions"`
}

// Fallback возвращает запись, подставляемую вместо нечитаемого ответа
func Fallback() Record {
	return Record{
		ErrorCode:        "Error",
		Severity:         Low,
		Title:            "Parsing Error",
		Detail:           "Could not parse server response.",
		Implications:     "Invalid data.",
		SuggestedActions: []string{"Try again."},
	}
}

// IsFallback сообщает, что запись получена из нечитаемого ответа
func (r Record) IsFallback() bool {
	return r.ErrorCode == "Error" && r.Title == "Parsing Error"
}

// wireRecord нужен, чтобы отличить отсутствующее поле от нулевого значения
type wireRecord struct {
	ErrorCode        *string   `json:"errorCode"`
	Severity         *int      `json:"severity"`
	Title            *string   `json:"title"`
	Detail           *string   `json:"detail"`
	Implications     *string   `json:"implications"`
	SuggestedActions *[]string `json:"suggestedActions"`
}

// ParseRecord разбирает JSON-ответ модели. Некорректный JSON, отсутствующее поле
// или неизвестная тяжесть дают Fallback(); ошибка только пишется в лог.
func ParseRecord(text string) Record {
	var w wireRecord
	if err := json.Unmarshal([]byte(stripFence(text)), &w); err != nil {
		logger.Printf("Failed to parse JSON response: %q: %v", text, err)
		return Fallback()
	}

	if w.ErrorCode == nil || w.Severity == nil || w.Title == nil || w.Detail == nil ||
		w.Implications == nil || w.SuggestedActions == nil {
		logger.Printf("Incomplete JSON response: %q", text)
		return Fallback()
	}

	severity, err := SeverityFromInt(*w.Severity)
	if err != nil {
		logger.Printf("Failed to parse JSON response: %q: %v", text, err)
		return Fallback()
	}

	return Record{
		ErrorCode:        *w.ErrorCode,
		Severity:         severity,
		Title:            *w.Title,
		Detail:           *w.Detail,
		Implications:     *w.Implications,
		SuggestedActions: *w.SuggestedActions,
	}
}

// stripFence убирает обрамление ```json ... ```, которое модели иногда добавляют
func stripFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimPrefix(text, "json")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

// Rank сортирует записи по убыванию тяжести, сохраняя порядок внутри уровня
func Rank(records []Record) []Record {
	ranked := make([]Record, len(records))
	copy(ranked, records)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Severity > ranked[j].Severity
	})
	return ranked
}

// Counts - количество записей по уровням тяжести
type Counts struct {
	Low    int `json:"low"`
	Medium int `json:"medium"`
	High   int `json:"high"`
}

// Count считает записи по уровням тяжести
func Count(records []Record) Counts {
	var c Counts
	for _, r := range records {
		switch r.Severity {
		case High:
			c.High++
		case Medium:
			c.Medium++
		default:
			c.Low++
		}
	}
	return c
}
