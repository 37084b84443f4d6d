//go:build unix

package bluetooth

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// openDevice открывает устройство, привязанное через "rfcomm bind"
func openDevice(path string) (io.ReadWriteCloser, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("device %s does not exist. Please run 'sudo rfcomm bind' first", path)
	}

	file, err := os.OpenFile(path, os.O_RDWR|unix.O_NOCTTY|os.O_SYNC, 0666)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return file, nil
}
