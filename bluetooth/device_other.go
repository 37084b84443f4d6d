//go:build !unix

package bluetooth

import (
	"fmt"
	"io"
	"os"
)

// openDevice открывает устройство по пути; управляющего терминала здесь нет
func openDevice(path string) (io.ReadWriteCloser, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("device %s does not exist", path)
	}

	file, err := os.OpenFile(path, os.O_RDWR, 0666)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return file, nil
}
