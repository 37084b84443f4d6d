package obd

import (
	"strconv"
	"strings"
	"unicode"
)

// Команды чтения кодов неисправностей
var (
	TroubleCodesCommand          = troubleCodeCommand("03", "TROUBLE_CODES", "Trouble Codes")
	PendingTroubleCodesCommand   = troubleCodeCommand("07", "PENDING_TROUBLE_CODES", "Pending Trouble Codes")
	PermanentTroubleCodesCommand = troubleCodeCommand("0A", "PERMANENT_TROUBLE_CODES", "Permanent Trouble Codes")
)

// troubleCodeCommand собирает команду режима 03/07/0A.
// Декодер возвращает коды через запятую, например "P0301,P0171", или пустую строку.
func troubleCodeCommand(mode, tag, name string) Command {
	cmd := Command{Mode: mode, Tag: tag, Name: name}
	header := cmd.Header()
	cmd.Decode = func(raw RawCapture) string {
		return strings.Join(ParseTroubleCodes(raw, header), ",")
	}
	return cmd
}

// ParseTroubleCodes разбирает hex-ответ на запрос кодов неисправностей.
//
// Поддерживаются форматы ELM327 без заголовков (ATH0):
//
//	43 01 33 00 00 00 00        - K-Line/J1850, по 3 кода на строку
//	43 02 03 01 01 71           - CAN, первый байт после 43 - количество кодов
//	00A / 0: 43 03 03 01 01 71 / 1: 04 20 00 ...  - CAN, многокадровый ответ
//
// Пары 0000 считаются заполнением и пропускаются.
func ParseTroubleCodes(raw RawCapture, header string) []string {
	if raw.NoData() {
		return nil
	}

	var (
		messages [][]byte
		frames   []byte
		inFrames bool
	)

	for _, line := range raw.Lines() {
		text := compact(line)

		// Многокадровый ответ CAN: "0:", "1:", ...
		if idx := strings.IndexByte(text, ':'); idx != -1 {
			body := text[idx+1:]
			if !inFrames {
				if !strings.HasPrefix(body, header) {
					continue
				}
				body = body[len(header):]
				inFrames = true
			}
			frames = append(frames, hexBytes(body)...)
			continue
		}

		// Строки длины ("00A"), "NO DATA", "ERROR" и прочее без заголовка пропускаем
		if !strings.HasPrefix(text, header) {
			continue
		}
		data := hexBytes(text[len(header):])
		if len(data)%2 == 1 {
			data = withCount(data)
		}
		messages = append(messages, data)
	}

	if inFrames && len(frames) > 0 {
		messages = append(messages, withCount(frames))
	}

	var codes []string
	for _, data := range messages {
		for i := 0; i+1 < len(data); i += 2 {
			if code := DecodeDTC(data[i], data[i+1]); code != "" {
				codes = append(codes, code)
			}
		}
	}
	return codes
}

// withCount отбрасывает байт количества кодов и обрезает данные по нему
func withCount(data []byte) []byte {
	if len(data) == 0 {
		return data
	}
	count := int(data[0])
	data = data[1:]
	if count*2 < len(data) {
		data = data[:count*2]
	}
	return data
}

// compact убирает пробелы и приводит строку к верхнему регистру
func compact(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), ""))
}

// hexBytes разбирает пары hex-цифр до первой некорректной пары
func hexBytes(s string) []byte {
	out := make([]byte, 0, len(s)/2)
	for i := 0; i+1 < len(s); i += 2 {
		v, err := strconv.ParseUint(s[i:i+2], 16, 8)
		if err != nil {
			break
		}
		out = append(out, byte(v))
	}
	return out
}

// DecodeDTC декодирует 2 байта кода неисправности (A, B) в строку вида "P0301".
// Возвращает "", если оба байта нулевые.
//
//	A7..A6 - система (P/C/B/U)
//	A5..A4 - вторая цифра (0..3)
//	A3..A0 - третья цифра
//	B7..B4 - четвертая цифра
//	B3..B0 - пятая цифра
func DecodeDTC(a, b byte) string {
	if a == 0 && b == 0 {
		return ""
	}

	const systems = "PCBU"
	const digits = "0123456789ABCDEF"

	code := []byte{
		systems[(a>>6)&0x03],
		digits[(a>>4)&0x03],
		digits[a&0x0F],
		digits[(b>>4)&0x0F],
		digits[b&0x0F],
	}
	return string(code)
}

// SplitTroubleCodes разбивает строку кодов по пробелам и запятым.
// Пустая строка и "NO DATA" дают пустой список, а не ошибку.
func SplitTroubleCodes(s string) []string {
	codes := []string{}
	if strings.TrimSpace(s) == "" || strings.EqualFold(strings.TrimSpace(s), "NO DATA") {
		return codes
	}
	for _, token := range strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	}) {
		if token = strings.TrimSpace(token); token != "" {
			codes = append(codes, token)
		}
	}
	return codes
}

// UnionTroubleCodes объединяет наборы кодов без повторов, сохраняя порядок первого появления
func UnionTroubleCodes(sets ...[]string) []string {
	seen := make(map[string]struct{})
	union := []string{}
	for _, set := range sets {
		for _, code := range set {
			if _, ok := seen[code]; ok {
				continue
			}
			seen[code] = struct{}{}
			union = append(union, code)
		}
	}
	return union
}
