package bluetooth

import (
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

var logger = log.New(os.Stdout, "[Bluetooth-Adapter] ", log.LstdFlags|log.Lshortfile)

// Поддерживаемые транспорты
const (
	TransportRFCOMM = "rfcomm" // RFCOMM-сокет к MAC-адресу адаптера
	TransportDevice = "device" // Устройство, привязанное через "rfcomm bind"
	TransportSerial = "serial" // Последовательный порт (USB ELM327 или /dev/rfcommN)
)

// Config представляет конфигурацию для Bluetooth адаптера
type Config struct {
	Transport      string        `mapstructure:"transport"`       // rfcomm, device или serial
	DevicePath     string        `mapstructure:"device_path"`     // Путь к устройству, например "/dev/rfcomm0"
	BaudRate       int           `mapstructure:"baud_rate"`       // Скорость для serial
	Channel        uint8         `mapstructure:"channel"`         // RFCOMM канал (SPP обычно 1)
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"` // Таймаут на подключение
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() Config {
	return Config{
		Transport:      TransportRFCOMM,
		DevicePath:     "/dev/rfcomm0",
		BaudRate:       38400,
		Channel:        1,
		ConnectTimeout: 10 * time.Second,
	}
}

// Adapter открывает поток байтов к ELM327 по выбранному транспорту
type Adapter struct {
	config    Config
	conn      *conn
	connMutex sync.Mutex
}

// NewAdapter создает новый Bluetooth адаптер
func NewAdapter(config Config) *Adapter {
	return &Adapter{config: config}
}

// Connect открывает поток к устройству.
// Для rfcomm peerID - MAC-адрес, для device и serial - путь (пустой означает DevicePath).
func (a *Adapter) Connect(peerID string) (io.ReadWriteCloser, error) {
	a.connMutex.Lock()
	defer a.connMutex.Unlock()

	if a.conn != nil {
		a.conn.Close()
		a.conn = nil
	}

	logger.Printf("Attempting to connect via %s to %q", a.config.Transport, peerID)

	var (
		rwc io.ReadWriteCloser
		err error
	)
	switch a.config.Transport {
	case TransportRFCOMM:
		rwc, err = dialRFCOMM(peerID, a.config.Channel, a.config.ConnectTimeout)
	case TransportDevice:
		rwc, err = openDevice(a.path(peerID))
	case TransportSerial:
		rwc, err = openSerial(a.path(peerID), a.config.BaudRate)
	default:
		err = fmt.Errorf("unknown transport %q", a.config.Transport)
	}
	if err != nil {
		return nil, err
	}

	a.conn = &conn{ReadWriteCloser: rwc}
	logger.Println("Bluetooth connection established")
	return a.conn, nil
}

// Disconnect закрывает текущее соединение
func (a *Adapter) Disconnect() error {
	a.connMutex.Lock()
	defer a.connMutex.Unlock()

	if a.conn == nil {
		return nil
	}
	err := a.conn.Close()
	a.conn = nil
	logger.Println("Bluetooth connection closed")
	return err
}

// IsConnected проверяет, подключен ли адаптер
func (a *Adapter) IsConnected() bool {
	a.connMutex.Lock()
	defer a.connMutex.Unlock()
	return a.conn != nil
}

func (a *Adapter) path(peerID string) string {
	if strings.TrimSpace(peerID) != "" {
		return peerID
	}
	return a.config.DevicePath
}

// openSerial открывает последовательный порт 8N1
func openSerial(path string, baudRate int) (io.ReadWriteCloser, error) {
	port, err := serial.Open(path, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", path, err)
	}
	return port, nil
}

// Ports возвращает список доступных последовательных портов
func Ports() ([]string, error) {
	return serial.GetPortsList()
}

// bdaddr переводит MAC-адрес в порядок байтов Bluetooth (младший байт первым)
func bdaddr(mac string) ([6]byte, error) {
	var addr [6]byte
	hw, err := net.ParseMAC(mac)
	if err != nil || len(hw) != 6 {
		return addr, fmt.Errorf("invalid bluetooth address %q", mac)
	}
	for i := 0; i < 6; i++ {
		addr[i] = hw[5-i]
	}
	return addr, nil
}

// conn делает Close идемпотентным: поток закрывает и сессия, и Disconnect
type conn struct {
	io.ReadWriteCloser
	once sync.Once
	err  error
}

func (c *conn) Close() error {
	c.once.Do(func() {
		c.err = c.ReadWriteCloser.Close()
	})
	return c.err
}

// ResetInputBuffer сбрасывает входной буфер порта, если транспорт это умеет
func (c *conn) ResetInputBuffer() error {
	if port, ok := c.ReadWriteCloser.(serial.Port); ok {
		return port.ResetInputBuffer()
	}
	return nil
}
