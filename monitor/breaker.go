package monitor

import "sync"

// Breaker считает подряд идущие ошибки и размыкается на пороге
type Breaker struct {
	mu        sync.Mutex
	threshold int
	count     int
	tripped   bool
}

func NewBreaker(threshold int) *Breaker {
	if threshold < 1 {
		threshold = 1
	}
	return &Breaker{threshold: threshold}
}

// Fail регистрирует ошибку и возвращает true, если предохранитель разомкнулся
func (b *Breaker) Fail() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count++
	if b.count >= b.threshold {
		b.tripped = true
	}
	return b.tripped
}

// Reset обнуляет счетчик после успешной итерации
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count = 0
	b.tripped = false
}

func (b *Breaker) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

func (b *Breaker) Tripped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tripped
}

func (b *Breaker) Threshold() int {
	return b.threshold
}
