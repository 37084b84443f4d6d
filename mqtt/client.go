package mqtt

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	mqttLib "github.com/eclipse/paho.mqtt.golang"

	"obd2ai/common"
)

// Config представляет конфигурацию MQTT клиента
type Config struct {
	Enabled        bool          `mapstructure:"enabled"`         // Включить публикацию в MQTT
	Broker         string        `mapstructure:"broker"`          // Адрес брокера, например "tcp://localhost:1883"
	Username       string        `mapstructure:"username"`        // Имя пользователя (опционально)
	Password       string        `mapstructure:"password"`        // Пароль (опционально)
	ClientID       string        `mapstructure:"client_id"`       // ID клиента (опционально, генерируется если пустой)
	DataTopic      string        `mapstructure:"data_topic"`      // Базовый топик для телеметрии, событий и отчетов
	CommandTopic   string        `mapstructure:"command_topic"`   // Базовый топик для команд
	QoS            byte          `mapstructure:"qos"`             // Quality of Service (0, 1, 2)
	Retain         bool          `mapstructure:"retain"`          // Retained для телеметрии
	KeepAlive      int           `mapstructure:"keep_alive"`      // Интервал keep alive в секундах
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"` // Таймаут подключения
	AutoReconnect  bool          `mapstructure:"auto_reconnect"`  // Автоматическое переподключение
}

// generateClientID генерирует случайный ID клиента
func generateClientID() string {
	bytes := make([]byte, 4)
	rand.Read(bytes)
	return "obd2ai-" + hex.EncodeToString(bytes)
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() Config {
	return Config{
		Broker:         "tcp://localhost:1883",
		ClientID:       generateClientID(),
		DataTopic:      "car/telemetry",
		CommandTopic:   "car/command",
		QoS:            1,
		KeepAlive:      60,
		ConnectTimeout: 10 * time.Second,
		AutoReconnect:  true,
	}
}

// CommandMessage представляет входящую команду (используем общий тип)
type CommandMessage = common.CommandMessage

// CommandResponse представляет ответ на команду (используем общий тип)
type CommandResponse = common.CommandResponse

// Client публикует телеметрию, события оборотов и отчеты о кодах
// и передает входящие команды мосту
type Client struct {
	config     Config
	mqttClient mqttLib.Client
	events     <-chan interface{}          // Телеметрия, события и отчеты для публикации
	commands   chan<- CommandMessage       // Входящие команды для моста
	responses  chan common.CommandResponse // Ответы на команды
	stopChan   chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
	logger     *log.Logger

	deviceMu sync.RWMutex
	device   string // Идентификатор адаптера в топиках
}

// NewClient создает нового MQTT клиента
func NewClient(config Config, events <-chan interface{}, commands chan<- CommandMessage, responses chan common.CommandResponse) *Client {
	if config.ClientID == "" {
		config.ClientID = generateClientID()
	}
	return &Client{
		config:    config,
		events:    events,
		commands:  commands,
		responses: responses,
		stopChan:  make(chan struct{}),
		logger:    log.New(os.Stdout, "[MQTT-Client] ", log.LstdFlags|log.Lshortfile),
		device:    "elm327",
	}
}

// Start подключается к брокеру и запускает циклы публикации
func (c *Client) Start() error {
	c.logger.Printf("Starting MQTT client, broker: %s", c.config.Broker)

	// Создаем опции подключения
	opts := mqttLib.NewClientOptions()
	opts.AddBroker(c.config.Broker)
	opts.SetClientID(c.config.ClientID)
	opts.SetKeepAlive(time.Duration(c.config.KeepAlive) * time.Second)
	opts.SetConnectTimeout(c.config.ConnectTimeout)
	opts.SetAutoReconnect(c.config.AutoReconnect)

	// Устанавливаем аутентификацию если задана
	if c.config.Username != "" && c.config.Password != "" {
		opts.SetUsername(c.config.Username)
		opts.SetPassword(c.config.Password)
		c.logger.Println("MQTT authentication: ENABLED")
	} else {
		c.logger.Println("MQTT authentication: DISABLED (anonymous mode)")
	}

	// Обработчики событий
	opts.SetOnConnectHandler(c.onConnectHandler)
	opts.SetConnectionLostHandler(c.onConnectionLostHandler)
	opts.SetReconnectingHandler(c.onReconnectingHandler)

	c.mqttClient = mqttLib.NewClient(opts)

	if token := c.mqttClient.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	c.startLoops()
	c.logger.Println("MQTT client started successfully")
	return nil
}

// startLoops запускает публикацию один раз, переподключения ее не дублируют
func (c *Client) startLoops() {
	c.wg.Add(2)
	go c.publishEventsLoop()
	go c.publishResponsesLoop()
}

// Stop останавливает MQTT клиента
func (c *Client) Stop() error {
	c.logger.Println("Stopping MQTT client...")

	c.stopOnce.Do(func() { close(c.stopChan) })
	c.wg.Wait()

	if c.mqttClient != nil && c.mqttClient.IsConnected() {
		c.mqttClient.Disconnect(1000)
		c.logger.Println("MQTT client disconnected")
	}

	return nil
}

// onConnectHandler вызывается при каждом подключении к брокеру
func (c *Client) onConnectHandler(client mqttLib.Client) {
	c.logger.Println("Connected to MQTT broker")

	commandTopic := c.commandSubscription()
	if token := client.Subscribe(commandTopic, c.config.QoS, c.onCommandReceived); token.Wait() && token.Error() != nil {
		c.logger.Printf("Failed to subscribe to command topic %s: %v", commandTopic, token.Error())
		return
	}
	c.logger.Printf("Subscribed to command topic: %s", commandTopic)
}

// onConnectionLostHandler вызывается при потере соединения
func (c *Client) onConnectionLostHandler(client mqttLib.Client, err error) {
	c.logger.Printf("Connection lost: %v", err)
}

// onReconnectingHandler вызывается при попытке переподключения
func (c *Client) onReconnectingHandler(client mqttLib.Client, opts *mqttLib.ClientOptions) {
	c.logger.Println("Attempting to reconnect to MQTT broker...")
}

// onCommandReceived обрабатывает входящие команды
func (c *Client) onCommandReceived(client mqttLib.Client, msg mqttLib.Message) {
	c.logger.Printf("Received command on topic: %s", msg.Topic())

	if msg.Topic() != c.commandSubscription() {
		c.logger.Printf("Ignoring command for another device on %s", msg.Topic())
		return
	}

	var cmd CommandMessage
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		c.logger.Printf("Failed to unmarshal command: %v", err)
		return
	}

	if cmd.Command == "" {
		c.logger.Printf("Ignoring command without name (correlation_id: %s)", cmd.CorrelationID)
		return
	}

	c.logger.Printf("Processing command: %s (correlation_id: %s)", cmd.Command, cmd.CorrelationID)

	select {
	case c.commands <- cmd:
	case <-time.After(5 * time.Second):
		c.logger.Printf("Timeout handing command to bridge: %s", cmd.Command)
		c.PublishCommandResponse(cmd.CorrelationID, common.StatusError, nil, fmt.Errorf("bridge busy"))
	}
}

// publishEventsLoop публикует телеметрию, события и отчеты
func (c *Client) publishEventsLoop() {
	defer c.wg.Done()
	c.logger.Println("Starting events publish loop")

	for {
		select {
		case <-c.stopChan:
			c.logger.Println("Events publish loop stopped")
			return
		case event, ok := <-c.events:
			if !ok {
				c.logger.Println("Events channel closed")
				return
			}

			if err := c.publishEvent(event); err != nil {
				c.logger.Printf("Failed to publish event: %v", err)
			}
		}
	}
}

// publishResponsesLoop публикует ответы на команды
func (c *Client) publishResponsesLoop() {
	defer c.wg.Done()
	c.logger.Println("Starting responses publish loop")

	for {
		select {
		case <-c.stopChan:
			c.logger.Println("Responses publish loop stopped")
			return
		case response, ok := <-c.responses:
			if !ok {
				c.logger.Println("Command responses channel closed")
				return
			}

			if err := c.publishCommandResponse(response); err != nil {
				c.logger.Printf("Failed to publish command response: %v", err)
			}
		}
	}
}

// publishEvent выбирает топик по типу события
func (c *Client) publishEvent(event interface{}) error {
	device := c.Device()

	switch msg := event.(type) {
	case common.TelemetryMessage:
		if msg.Device == "" {
			msg.Device = device
		}
		return c.publish(c.telemetryTopic(msg.Metric), c.config.Retain, msg)
	case common.AlertMessage:
		if msg.Device == "" {
			msg.Device = device
		}
		return c.publish(c.dataTopic("alert"), false, msg)
	case common.ScanReport:
		if msg.Device == "" {
			msg.Device = device
		}
		return c.publish(c.dataTopic("dtc"), true, msg)
	default:
		return fmt.Errorf("unsupported event type: %T", event)
	}
}

// publishCommandResponse публикует ответ на команду в MQTT
func (c *Client) publishCommandResponse(response CommandResponse) error {
	return c.publish(c.responseTopic(), false, response)
}

func (c *Client) publish(topic string, retained bool, v interface{}) error {
	if c.mqttClient == nil || !c.mqttClient.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %T: %w", v, err)
	}

	token := c.mqttClient.Publish(topic, c.config.QoS, retained, payload)
	token.Wait()

	if token.Error() != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, token.Error())
	}

	c.logger.Printf("Published %d bytes to %s", len(payload), topic)
	return nil
}

// commandSubscription - топик запросов этого адаптера; ответы уходят в соседний /response
func (c *Client) commandSubscription() string {
	return fmt.Sprintf("%s/%s/request", c.config.CommandTopic, c.Device())
}

func (c *Client) telemetryTopic(metric string) string {
	return c.dataTopic(metric)
}

func (c *Client) dataTopic(leaf string) string {
	return fmt.Sprintf("%s/%s/%s", c.config.DataTopic, c.Device(), leaf)
}

func (c *Client) responseTopic() string {
	return fmt.Sprintf("%s/%s/response", c.config.CommandTopic, c.Device())
}

// SetDevice задает идентификатор адаптера для топиков. Вызывается до Start:
// подписка на команды оформляется при подключении.
func (c *Client) SetDevice(device string) {
	c.deviceMu.Lock()
	c.device = device
	c.deviceMu.Unlock()
	c.logger.Printf("Device set to: %s", device)
}

// Device возвращает идентификатор адаптера
func (c *Client) Device() string {
	c.deviceMu.RLock()
	defer c.deviceMu.RUnlock()
	return c.device
}

// IsConnected возвращает true если клиент подключен к брокеру
func (c *Client) IsConnected() bool {
	return c.mqttClient != nil && c.mqttClient.IsConnected()
}

// PublishCommandResponse ставит ответ на команду в очередь публикации
func (c *Client) PublishCommandResponse(correlationID, status string, result interface{}, err error) {
	response := CommandResponse{
		CorrelationID: correlationID,
		Status:        status,
		Result:        result,
		Timestamp:     time.Now(),
	}

	if err != nil {
		response.Status = common.StatusError
		response.Error = err.Error()
	}

	select {
	case c.responses <- response:
	case <-time.After(1 * time.Second):
		c.logger.Printf("Timeout publishing command response for correlation_id: %s", correlationID)
	}
}
