package elm327

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// prompt - символ приглашения, которым ELM327 завершает каждый ответ
const prompt = '>'

var errStreamClosed = errors.New("stream closed")

// inputResetter реализуется портами go.bug.st/serial
type inputResetter interface {
	ResetInputBuffer() error
}

// stream владеет парой чтение/запись и фоновой горутиной чтения.
// Горутина перекладывает байты в канал, поэтому сброс буфера не блокируется,
// а закрытие потока прерывает ожидающее чтение.
type stream struct {
	rwc     io.ReadWriteCloser
	chunks  chan []byte
	done    chan struct{} // закрывается, когда чтение из rwc завершилось ошибкой
	closed  chan struct{} // закрывается в close()
	err     error
	pending []byte // байты после последнего приглашения

	failOnce  sync.Once
	closeOnce sync.Once
}

func newStream(rwc io.ReadWriteCloser) *stream {
	s := &stream{
		rwc:    rwc,
		chunks: make(chan []byte, 64),
		done:   make(chan struct{}),
		closed: make(chan struct{}),
	}
	go s.pump()
	return s
}

func (s *stream) pump() {
	buf := make([]byte, 256)
	for {
		n, err := s.rwc.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case s.chunks <- chunk:
			case <-s.closed:
				s.fail(errStreamClosed)
				return
			}
		}
		if err != nil {
			s.fail(err)
			return
		}
	}
}

func (s *stream) fail(err error) {
	s.failOnce.Do(func() {
		s.err = err
		close(s.done)
	})
}

func (s *stream) write(frame []byte) error {
	select {
	case <-s.closed:
		return errStreamClosed
	case <-s.done:
		return s.err
	default:
	}
	_, err := s.rwc.Write(frame)
	return err
}

// readUntilPrompt читает ответ до символа '>' и возвращает текст без него
func (s *stream) readUntilPrompt(ctx context.Context, timeout time.Duration) (string, error) {
	var buf bytes.Buffer
	buf.Write(s.pending)
	s.pending = nil

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		if idx := bytes.IndexByte(buf.Bytes(), prompt); idx != -1 {
			data := buf.Bytes()
			s.pending = append([]byte(nil), data[idx+1:]...)
			return string(data[:idx]), nil
		}

		select {
		case chunk := <-s.chunks:
			buf.Write(chunk)
		case <-s.done:
			// забираем то, что горутина чтения успела передать до ошибки
			select {
			case chunk := <-s.chunks:
				buf.Write(chunk)
				continue
			default:
			}
			return "", s.err
		case <-s.closed:
			return "", errStreamClosed
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
			return "", fmt.Errorf("no prompt within %v, got %q", timeout, buf.String())
		}
	}
}

// drain отбрасывает все уже полученные байты и возвращает их
func (s *stream) drain() []byte {
	stale := s.pending
	s.pending = nil

	if r, ok := s.rwc.(inputResetter); ok {
		if err := r.ResetInputBuffer(); err != nil {
			logger.Printf("Failed to reset input buffer: %v", err)
		}
	}

	for {
		select {
		case chunk := <-s.chunks:
			stale = append(stale, chunk...)
		default:
			return stale
		}
	}
}

func (s *stream) close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.rwc.Close()
	})
	return err
}
