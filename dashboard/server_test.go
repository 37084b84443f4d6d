package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"obd2ai/assessment"
	"obd2ai/common"
	"obd2ai/monitor"
	"obd2ai/obd"
)

type staticRunner map[string]string

func (r staticRunner) RunCommand(ctx context.Context, cmd obd.Command) (obd.Response, error) {
	return cmd.Run(obd.NewRawCapture(r[cmd.String()])), nil
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s := New(DefaultConfig(), monitor.NewTelemetry())
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame Frame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	assert.Equal(t, ":8080", config.ListenAddr)
	assert.False(t, config.Enabled)
}

func TestTelemetryEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/telemetry")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var snap monitor.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, "-- km/h", snap.Speed)
	assert.Equal(t, "-- RPM", snap.RPM)
	assert.Equal(t, "-- °C", snap.CoolantTemp)
	assert.False(t, snap.Active)
}

func TestTelemetryEndpointMethod(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/telemetry", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestCodesEndpoint(t *testing.T) {
	s, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/codes")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	s.SetReport(common.NewScanReport("dev1", []string{"P0301", "P0420"}, []assessment.Record{
		{ErrorCode: "P0420", Severity: assessment.Low},
		{ErrorCode: "P0301", Severity: assessment.High},
	}))

	resp, err = http.Get(ts.URL + "/api/codes")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var report common.ScanReport
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	assert.Equal(t, []string{"P0301", "P0420"}, report.Codes)
	require.Len(t, report.Records, 2)
	assert.Equal(t, "P0301", report.Records[0].ErrorCode)
	assert.Equal(t, assessment.Counts{Low: 1, High: 1}, report.Counts)
}

func TestWebSocketInitialFrameAndBroadcast(t *testing.T) {
	s, ts := newTestServer(t)
	s.SetReport(common.NewScanReport("dev1", []string{"P0171"}, nil))

	conn := dial(t, ts)

	initial := readFrame(t, conn)
	require.NotNil(t, initial.Telemetry)
	assert.Equal(t, "-- RPM", initial.Telemetry.RPM)
	require.NotNil(t, initial.Report)
	assert.Equal(t, []string{"P0171"}, initial.Report.Codes)

	require.Eventually(t, func() bool { return s.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	s.PublishAlert(common.AlertMessage{Tier: 4, RPM: 4700, Danger: true, Message: "DANGER"})

	frame := readFrame(t, conn)
	require.NotNil(t, frame.Alert)
	assert.Equal(t, 4, frame.Alert.Tier)
	assert.True(t, frame.Alert.Danger)
	assert.Nil(t, frame.Telemetry)
}

func TestWebSocketForwardsTelemetry(t *testing.T) {
	telemetry := monitor.NewTelemetry()
	s := New(DefaultConfig(), telemetry)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.forward(ctx)

	conn := dial(t, ts)
	readFrame(t, conn)
	require.Eventually(t, func() bool { return s.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	m := monitor.New(staticRunner{
		"010D": "41 0D 32",
		"010C": "41 0C 1A F8",
		"0105": "41 05 7B",
	}, telemetry, monitor.Config{PollInterval: 10 * time.Millisecond, ErrorBackoff: time.Millisecond, MaxConsecutiveErrors: 3})
	go m.Run(ctx)
	defer m.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		frame := readFrame(t, conn)
		if frame.Telemetry != nil && frame.Telemetry.CoolantTemp == "83 °C" {
			assert.Equal(t, "50 km/h", frame.Telemetry.Speed)
			assert.Equal(t, "1726 RPM", frame.Telemetry.RPM)
			assert.True(t, frame.Telemetry.Active)
			return
		}
	}
	t.Fatal("Telemetry frame with coolant temperature not received")
}

func TestClientDisconnect(t *testing.T) {
	s, ts := newTestServer(t)

	conn := dial(t, ts)
	readFrame(t, conn)
	require.Eventually(t, func() bool { return s.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return s.ClientCount() == 0 }, time.Second, 5*time.Millisecond)

	// рассылка без клиентов не блокируется
	s.PublishAlert(common.AlertMessage{Tier: 1})
}
