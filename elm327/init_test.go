package elm327

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"obd2ai/obd"
)

func adapterReplies() map[string]string {
	return map[string]string{
		"ATZ":   "ELM327 v1.5",
		"ATE0":  "ATE0\rOK",
		"ATL0":  "OK",
		"ATSP0": "OK",
		"010D":  "41 0D 32",
		"03":    "43 02 03 01 01 71",
		"07":    "47 01 01 71",
		"0A":    "NO DATA",
	}
}

func TestInitialize(t *testing.T) {
	fake := newFakeELM(adapterReplies())
	config := testConfig()
	config.SettleDelay = 10 * time.Millisecond
	config.ResetWait = 20 * time.Millisecond
	session := attachedSession(t, fake, config)

	start := time.Now()
	require.NoError(t, session.Initialize(context.Background()))
	elapsed := time.Since(start)

	assert.Equal(t, []string{"ATZ", "ATE0", "ATL0", "ATSP0"}, fake.Written())
	assert.GreaterOrEqual(t, elapsed, 4*config.SettleDelay+config.ResetWait)

	// ответы на AT-команды не должны попасть в первый запрос
	resp, err := session.RunCommand(context.Background(), obd.SpeedCommand)
	require.NoError(t, err)
	assert.Equal(t, "50", resp.Value)
}

func TestInitializeWriteFailure(t *testing.T) {
	fake := newFakeELM(adapterReplies())
	fake.writeErr = errors.New("connection reset")
	session := attachedSession(t, fake, testConfig())

	err := session.Initialize(context.Background())
	assert.ErrorIs(t, err, ErrInitializationFailed)
	assert.ErrorIs(t, err, ErrTransportUnavailable)
	assert.ErrorContains(t, err, "ATZ")
}

func TestInitializeNotSetUp(t *testing.T) {
	err := NewSession(nil, testConfig()).Initialize(context.Background())
	assert.ErrorIs(t, err, ErrInitializationFailed)
	assert.ErrorIs(t, err, ErrTransportUnavailable)
}

func TestInitializeCancelled(t *testing.T) {
	fake := newFakeELM(adapterReplies())
	config := testConfig()
	config.SettleDelay = time.Second
	session := attachedSession(t, fake, config)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := session.Initialize(ctx)
	assert.ErrorIs(t, err, ErrInitializationFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, []string{"ATZ"}, fake.Written())
}

func TestTroubleCodes(t *testing.T) {
	fake := newFakeELM(adapterReplies())
	session := attachedSession(t, fake, testConfig())
	ctx := context.Background()

	current, err := session.TroubleCodes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"P0301", "P0171"}, current)

	pending, err := session.PendingTroubleCodes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"P0171"}, pending)

	permanent, err := session.PermanentTroubleCodes(ctx)
	require.NoError(t, err)
	assert.Empty(t, permanent)
	assert.NotNil(t, permanent)

	all, err := session.AllTroubleCodes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"P0301", "P0171"}, all)
}

func TestTroubleCodesTransportFailure(t *testing.T) {
	session := NewSession(nil, testConfig())

	_, err := session.AllTroubleCodes(context.Background())
	assert.ErrorIs(t, err, ErrTransportUnavailable)
}
