package monitor

import (
	"sync"
	"time"
)

// Slot - ячейка живых данных
type Slot int

const (
	SlotNone Slot = iota // только смена флага активности
	SlotSpeed
	SlotRPM
	SlotCoolantTemp
)

// Slots перечисляет ячейки в порядке опроса
var Slots = []Slot{SlotSpeed, SlotRPM, SlotCoolantTemp}

// ErrorValue записывается во все ячейки при срабатывании предохранителя
const ErrorValue = "ERROR"

func (s Slot) String() string {
	switch s {
	case SlotSpeed:
		return "speed"
	case SlotRPM:
		return "rpm"
	case SlotCoolantTemp:
		return "coolant_temp"
	default:
		return "none"
	}
}

// Placeholder возвращает начальное значение ячейки
func (s Slot) Placeholder() string {
	switch s {
	case SlotSpeed:
		return "-- km/h"
	case SlotRPM:
		return "-- RPM"
	case SlotCoolantTemp:
		return "-- °C"
	default:
		return ""
	}
}

// Update - изменение состояния телеметрии
type Update struct {
	Slot   Slot      `json:"-"`
	Name   string    `json:"slot"`
	Value  string    `json:"value"`
	Active bool      `json:"active"`
	Time   time.Time `json:"timestamp"`
}

// Snapshot - текущие значения всех ячеек
type Snapshot struct {
	Speed       string    `json:"speed"`
	RPM         string    `json:"rpm"`
	CoolantTemp string    `json:"coolant_temp"`
	Active      bool      `json:"active"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Telemetry хранит последние значения живых данных.
// Писать может только Monitor, наблюдатели читают через Get, Snapshot и Subscribe.
type Telemetry struct {
	mu        sync.RWMutex
	values    map[Slot]string
	active    bool
	updatedAt time.Time

	subs   map[int]chan Update
	nextID int
}

// NewTelemetry создает хранилище с начальными значениями
func NewTelemetry() *Telemetry {
	t := &Telemetry{
		values: make(map[Slot]string, len(Slots)),
		subs:   make(map[int]chan Update),
	}
	for _, slot := range Slots {
		t.values[slot] = slot.Placeholder()
	}
	return t
}

// Get возвращает значение ячейки
func (t *Telemetry) Get(slot Slot) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.values[slot]
}

// Active сообщает, идет ли мониторинг
func (t *Telemetry) Active() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.active
}

func (t *Telemetry) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Snapshot{
		Speed:       t.values[SlotSpeed],
		RPM:         t.values[SlotRPM],
		CoolantTemp: t.values[SlotCoolantTemp],
		Active:      t.active,
		UpdatedAt:   t.updatedAt,
	}
}

// Subscribe возвращает канал обновлений и функцию отписки.
// Сначала в канал приходят текущие значения всех ячеек.
// Если подписчик не успевает читать, обновления для него теряются.
func (t *Telemetry) Subscribe(buffer int) (<-chan Update, func()) {
	if buffer < len(Slots) {
		buffer = len(Slots)
	}
	ch := make(chan Update, buffer)

	t.mu.Lock()
	now := time.Now()
	for _, slot := range Slots {
		ch <- Update{Slot: slot, Name: slot.String(), Value: t.values[slot], Active: t.active, Time: now}
	}
	id := t.nextID
	t.nextID++
	t.subs[id] = ch
	t.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.subs, id)
			close(ch)
			t.mu.Unlock()
		})
	}
}

func (t *Telemetry) set(slot Slot, value string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.values[slot] = value
	t.updatedAt = time.Now()
	t.publish(Update{Slot: slot, Name: slot.String(), Value: value, Active: t.active, Time: t.updatedAt})
}

func (t *Telemetry) setAll(value string) {
	for _, slot := range Slots {
		t.set(slot, value)
	}
}

func (t *Telemetry) setActive(active bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active == active {
		return
	}
	t.active = active
	t.publish(Update{Slot: SlotNone, Name: SlotNone.String(), Active: active, Time: time.Now()})
}

// publish вызывается под t.mu
func (t *Telemetry) publish(u Update) {
	for _, ch := range t.subs {
		select {
		case ch <- u:
		default:
		}
	}
}
