package elm327

import (
	"context"
	"fmt"
)

// Initialize выполняет последовательность ATZ, ATE0, ATL0, ATSP0.
// После каждой команды выдерживается SettleDelay, в конце ResetWait,
// затем все накопленные ответы отбрасываются.
func (s *Session) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.current()
	if st == nil {
		return fmt.Errorf("%w: %w: session is not set up", ErrInitializationFailed, ErrTransportUnavailable)
	}

	logger.Println("Initializing ELM327...")

	for i, cmd := range InitCommands {
		logger.Printf("Sending init command %d/%d: %s", i+1, len(InitCommands), cmd)

		if err := st.write([]byte(cmd + "\r")); err != nil {
			return fmt.Errorf("%w: %w: send %s: %w", ErrInitializationFailed, ErrTransportUnavailable, cmd, err)
		}

		if err := sleep(ctx, s.config.SettleDelay); err != nil {
			return fmt.Errorf("%w: %w", ErrInitializationFailed, err)
		}
	}

	if err := sleep(ctx, s.config.ResetWait); err != nil {
		return fmt.Errorf("%w: %w", ErrInitializationFailed, err)
	}

	if stale := st.drain(); len(stale) > 0 {
		logger.Printf("Initialization buffer cleared. Read: %q", stale)
	}

	logger.Println("ELM327 initialization completed")
	return nil
}
