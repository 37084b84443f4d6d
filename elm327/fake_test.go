package elm327

import (
	"io"
	"strings"
	"sync"
	"time"
)

// fakeELM эмулирует адаптер: на каждую записанную команду отвечает
// заранее заданным текстом с приглашением '>' после задержки delay
type fakeELM struct {
	mu       sync.Mutex
	replies  map[string]string
	written  []string
	events   []string
	writeErr error
	delay    time.Duration

	queue     chan reply
	out       chan []byte
	leftover  []byte
	closed    chan struct{}
	closeOnce sync.Once
}

type reply struct {
	command string
	data    []byte
}

func newFakeELM(replies map[string]string) *fakeELM {
	f := &fakeELM{
		replies: replies,
		queue:   make(chan reply, 32),
		out:     make(chan []byte),
		closed:  make(chan struct{}),
	}
	go f.deliver()
	return f
}

func (f *fakeELM) deliver() {
	for {
		select {
		case r := <-f.queue:
			f.mu.Lock()
			delay := f.delay
			f.mu.Unlock()
			if delay > 0 {
				time.Sleep(delay)
			}
			f.record("reply " + r.command)
			select {
			case f.out <- r.data:
			case <-f.closed:
				return
			}
		case <-f.closed:
			return
		}
	}
}

func (f *fakeELM) record(event string) {
	f.mu.Lock()
	f.events = append(f.events, event)
	f.mu.Unlock()
}

// inject отдает байты, не относящиеся ни к одной команде
func (f *fakeELM) inject(data string) {
	f.queue <- reply{command: "unsolicited", data: []byte(data)}
}

func (f *fakeELM) Read(p []byte) (int, error) {
	if len(f.leftover) == 0 {
		select {
		case data := <-f.out:
			f.leftover = data
		case <-f.closed:
			return 0, io.EOF
		}
	}
	n := copy(p, f.leftover)
	f.leftover = f.leftover[n:]
	return n, nil
}

func (f *fakeELM) Write(p []byte) (int, error) {
	select {
	case <-f.closed:
		return 0, io.ErrClosedPipe
	default:
	}

	command := strings.TrimSuffix(string(p), "\r")

	f.mu.Lock()
	if f.writeErr != nil {
		err := f.writeErr
		f.mu.Unlock()
		return 0, err
	}
	f.written = append(f.written, command)
	f.events = append(f.events, "write "+command)
	text, ok := f.replies[command]
	f.mu.Unlock()

	if ok {
		f.queue <- reply{command: command, data: []byte(text + "\r\r>")}
	}
	return len(p), nil
}

func (f *fakeELM) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeELM) Written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.written...)
}

func (f *fakeELM) Events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}
