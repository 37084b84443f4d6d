package bluetooth

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Transport != TransportRFCOMM {
		t.Errorf("Expected transport rfcomm, got %s", config.Transport)
	}

	if config.DevicePath != "/dev/rfcomm0" {
		t.Errorf("Expected device path /dev/rfcomm0, got %s", config.DevicePath)
	}

	if config.Channel != 1 {
		t.Errorf("Expected channel 1, got %d", config.Channel)
	}

	if config.ConnectTimeout != 10*time.Second {
		t.Errorf("Expected connect timeout 10s, got %v", config.ConnectTimeout)
	}
}

func TestNewAdapter(t *testing.T) {
	adapter := NewAdapter(DefaultConfig())

	if adapter == nil {
		t.Fatal("NewAdapter returned nil")
	}

	if adapter.IsConnected() {
		t.Error("New adapter must not be connected")
	}

	if err := adapter.Disconnect(); err != nil {
		t.Errorf("Disconnect without connection returned error: %v", err)
	}
}

func TestBdaddr(t *testing.T) {
	addr, err := bdaddr("00:1D:A5:68:98:8B")
	if err != nil {
		t.Fatalf("bdaddr failed: %v", err)
	}

	expected := [6]byte{0x8B, 0x98, 0x68, 0xA5, 0x1D, 0x00}
	if addr != expected {
		t.Errorf("Expected %X, got %X", expected, addr)
	}

	for _, invalid := range []string{"", "not-a-mac", "00:1D:A5:68:98", "00:00:00:00:fe:80:00:00"} {
		if _, err := bdaddr(invalid); err == nil {
			t.Errorf("Expected error for %q", invalid)
		}
	}
}

func TestConnectUnknownTransport(t *testing.T) {
	config := DefaultConfig()
	config.Transport = "carrier-pigeon"

	_, err := NewAdapter(config).Connect("00:1D:A5:68:98:8B")
	if err == nil || !strings.Contains(err.Error(), "unknown transport") {
		t.Errorf("Expected unknown transport error, got %v", err)
	}
}

func TestConnectRFCOMMInvalidAddress(t *testing.T) {
	_, err := NewAdapter(DefaultConfig()).Connect("garbage")
	if err == nil || !strings.Contains(err.Error(), "invalid bluetooth address") {
		t.Errorf("Expected invalid address error, got %v", err)
	}
}

func TestConnectMissingDevice(t *testing.T) {
	config := DefaultConfig()
	config.Transport = TransportDevice
	config.DevicePath = filepath.Join(t.TempDir(), "rfcomm9")

	_, err := NewAdapter(config).Connect("")
	if err == nil || !strings.Contains(err.Error(), "rfcomm bind") {
		t.Errorf("Expected hint about rfcomm bind, got %v", err)
	}
}

func TestConnectMissingSerialPort(t *testing.T) {
	config := DefaultConfig()
	config.Transport = TransportSerial

	_, err := NewAdapter(config).Connect(filepath.Join(t.TempDir(), "ttyUSB9"))
	if err == nil {
		t.Error("Expected error for missing serial port")
	}
}

func TestDeviceTransport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rfcomm0")
	if err := os.WriteFile(path, nil, 0600); err != nil {
		t.Fatalf("Failed to create device file: %v", err)
	}

	config := DefaultConfig()
	config.Transport = TransportDevice
	config.DevicePath = path
	adapter := NewAdapter(config)

	rwc, err := adapter.Connect("")
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if !adapter.IsConnected() {
		t.Error("Expected adapter to be connected")
	}

	if _, err := rwc.Write([]byte("ATZ\r")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	// сессия закрывает поток сама, затем вызывает Disconnect
	if err := rwc.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := adapter.Disconnect(); err != nil {
		t.Errorf("Disconnect after Close returned error: %v", err)
	}
	if adapter.IsConnected() {
		t.Error("Expected adapter to be disconnected")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "ATZ\r" {
		t.Errorf("Expected ATZ\\r to be written, got %q", data)
	}
}

func TestConnResetInputBufferWithoutSerial(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dev")
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	c := &conn{ReadWriteCloser: file}
	if err := c.ResetInputBuffer(); err != nil {
		t.Errorf("Expected no-op reset for plain file, got %v", err)
	}
	c.Close()
}
