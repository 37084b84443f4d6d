//go:build linux

package bluetooth

import (
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// dialRFCOMM открывает RFCOMM-сокет к адаптеру по MAC-адресу
func dialRFCOMM(mac string, channel uint8, timeout time.Duration) (io.ReadWriteCloser, error) {
	addr, err := bdaddr(mac)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_STREAM, unix.BTPROTO_RFCOMM)
	if err != nil {
		return nil, fmt.Errorf("failed to create rfcomm socket: %w", err)
	}

	result := make(chan error, 1)
	go func() {
		result <- unix.Connect(fd, &unix.SockaddrRFCOMM{Addr: addr, Channel: channel})
	}()

	if timeout <= 0 {
		timeout = DefaultConfig().ConnectTimeout
	}

	select {
	case err = <-result:
	case <-time.After(timeout):
		unix.Close(fd)
		return nil, fmt.Errorf("connect to %s timed out after %v", mac, timeout)
	}
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("failed to connect to %s channel %d: %w", mac, channel, err)
	}

	// неблокирующий дескриптор регистрируется в netpoller, и Close прерывает Read
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("failed to set nonblock: %w", err)
	}

	return os.NewFile(uintptr(fd), "rfcomm:"+mac), nil
}
