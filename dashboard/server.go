package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"obd2ai/common"
	"obd2ai/monitor"
)

var logger = log.New(os.Stdout, "[Dashboard] ", log.LstdFlags|log.Lshortfile)

// Config конфигурация веб-панели
type Config struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() Config {
	return Config{
		ListenAddr: ":8080",
	}
}

// Frame - JSON-сообщение для клиентов WebSocket
type Frame struct {
	Telemetry *monitor.Snapshot    `json:"telemetry,omitempty"`
	Alert     *common.AlertMessage `json:"alert,omitempty"`
	Report    *common.ScanReport   `json:"report,omitempty"`
	Stamp     int64                `json:"stamp"` // Unix ms
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Server раздает живые данные по WebSocket и последний отчет о кодах по HTTP
type Server struct {
	config    Config
	telemetry *monitor.Telemetry

	clients   map[*wsClient]struct{}
	clientsMu sync.RWMutex

	upgrader websocket.Upgrader

	reportMu sync.RWMutex
	report   *common.ScanReport
}

// New создает сервер панели
func New(config Config, telemetry *monitor.Telemetry) *Server {
	return &Server{
		config:    config,
		telemetry: telemetry,
		clients:   make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler возвращает маршруты панели
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/telemetry", s.handleTelemetry)
	mux.HandleFunc("/api/codes", s.handleCodes)
	return mux
}

// Run запускает HTTP-сервер и пересылку телеметрии до отмены ctx
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.config.ListenAddr,
		Handler: s.Handler(),
	}

	go s.forward(ctx)

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	logger.Printf("Listening on %s", s.config.ListenAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// forward рассылает снимок телеметрии при каждом изменении
func (s *Server) forward(ctx context.Context) {
	updates, cancel := s.telemetry.Subscribe(32)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-updates:
			if !ok {
				return
			}
			snap := s.telemetry.Snapshot()
			s.broadcast(Frame{Telemetry: &snap, Stamp: time.Now().UnixMilli()})
		}
	}
}

// PublishAlert рассылает событие оборотов
func (s *Server) PublishAlert(alert common.AlertMessage) {
	s.broadcast(Frame{Alert: &alert, Stamp: time.Now().UnixMilli()})
}

// SetReport сохраняет отчет для /api/codes и рассылает его клиентам
func (s *Server) SetReport(report common.ScanReport) {
	s.reportMu.Lock()
	s.report = &report
	s.reportMu.Unlock()

	s.broadcast(Frame{Report: &report, Stamp: time.Now().UnixMilli()})
}

// Report возвращает последний отчет
func (s *Server) Report() (common.ScanReport, bool) {
	s.reportMu.RLock()
	defer s.reportMu.RUnlock()
	if s.report == nil {
		return common.ScanReport{}, false
	}
	return *s.report, true
}

// ClientCount возвращает число подключенных клиентов
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Printf("Upgrade error: %v", err)
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, 64),
	}

	// Первый кадр: текущий снимок и последний отчет
	snap := s.telemetry.Snapshot()
	initial := Frame{Telemetry: &snap, Stamp: time.Now().UnixMilli()}
	if report, ok := s.Report(); ok {
		initial.Report = &report
	}
	if data, err := json.Marshal(initial); err == nil {
		client.send <- data
	}

	s.clientsMu.Lock()
	s.clients[client] = struct{}{}
	total := len(s.clients)
	s.clientsMu.Unlock()

	logger.Printf("Client connected (%d total)", total)

	go func() {
		defer conn.Close()
		for msg := range client.send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
	}()

	go func() {
		defer func() {
			s.clientsMu.Lock()
			delete(s.clients, client)
			total := len(s.clients)
			close(client.send)
			s.clientsMu.Unlock()
			logger.Printf("Client disconnected (%d total)", total)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.telemetry.Snapshot())
}

func (s *Server) handleCodes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	report, ok := s.Report()
	if !ok {
		http.Error(w, "no scan yet", http.StatusNotFound)
		return
	}
	writeJSON(w, report)
}

func (s *Server) broadcast(frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for client := range s.clients {
		select {
		case client.send <- data:
		default:
			// клиент не успевает, пропускаем кадр
		}
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Printf("Failed to write response: %v", err)
	}
}
