package monitor

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Пороги уровней оборотов: вход выше rise[i], выход ниже fall[i]
var (
	riseThresholds = []int{1000, 2000, 3000, 4500}
	fallThresholds = []int{900, 1900, 2900, 4400}
)

// Alert - событие перехода на более высокий уровень оборотов
type Alert struct {
	Tier    int       `json:"tier"`
	RPM     int       `json:"rpm"`
	Danger  bool      `json:"danger"`
	Message string    `json:"message"`
	Time    time.Time `json:"timestamp"`
}

// ShiftAlert отслеживает уровень оборотов с гистерезисом
type ShiftAlert struct {
	tier int
}

func NewShiftAlert() *ShiftAlert {
	return &ShiftAlert{}
}

// Tier возвращает текущий уровень (0..4)
func (s *ShiftAlert) Tier() int {
	return s.tier
}

// Observe учитывает новое значение оборотов. Возвращает событие, если уровень вырос.
// При росте уровень сразу становится наивысшим пройденным, при падении
// понижается, пока обороты ниже порога выхода.
func (s *ShiftAlert) Observe(rpm int) (Alert, bool) {
	target := s.tier
	for target < len(riseThresholds) && rpm > riseThresholds[target] {
		target++
	}
	if target > s.tier {
		s.tier = target
		return newAlert(target, rpm), true
	}

	for s.tier > 0 && rpm < fallThresholds[s.tier-1] {
		s.tier--
	}
	return Alert{}, false
}

// ObserveValue разбирает значение ячейки вида "1726 RPM"
func (s *ShiftAlert) ObserveValue(value string) (Alert, bool) {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return Alert{}, false
	}
	rpm, err := strconv.Atoi(fields[0])
	if err != nil {
		rpm = 0
	}
	return s.Observe(rpm)
}

func newAlert(tier, rpm int) Alert {
	alert := Alert{
		Tier:    tier,
		RPM:     rpm,
		Danger:  tier == len(riseThresholds),
		Message: fmt.Sprintf("Engine speed above %d RPM", riseThresholds[tier-1]),
		Time:    time.Now(),
	}
	if alert.Danger {
		alert.Message = fmt.Sprintf("DANGER: engine speed above %d RPM", riseThresholds[tier-1])
	}
	return alert
}
