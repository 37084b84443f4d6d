//go:build !linux

package bluetooth

import (
	"errors"
	"io"
	"time"
)

func dialRFCOMM(mac string, channel uint8, timeout time.Duration) (io.ReadWriteCloser, error) {
	if _, err := bdaddr(mac); err != nil {
		return nil, err
	}
	return nil, errors.New("rfcomm transport is only supported on linux, use device or serial")
}
