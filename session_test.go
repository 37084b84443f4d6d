package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"obd2ai/elm327"
	"obd2ai/prefs"
)

// MockConnector для тестирования повторных подключений
type MockConnector struct {
	mock.Mock
}

func (m *MockConnector) Setup(peerID string) error {
	args := m.Called(peerID)
	return args.Error(0)
}

func (m *MockConnector) Initialize(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockConnector) Close() error {
	args := m.Called()
	return args.Error(0)
}

const testPeer = "00:11:22:33:44:55"

func TestConnectAndInitialize(t *testing.T) {
	c := new(MockConnector)
	c.On("Setup", testPeer).Return(nil).Once()
	c.On("Initialize", mock.Anything).Return(nil).Once()

	err := connectAndInitialize(context.Background(), c, testPeer, 3, time.Millisecond)

	assert.NoError(t, err)
	c.AssertExpectations(t)
	c.AssertNotCalled(t, "Close")
}

func TestConnectAndInitializeRetriesSetup(t *testing.T) {
	c := new(MockConnector)
	c.On("Setup", testPeer).Return(elm327.ErrTransportUnavailable).Once()
	c.On("Setup", testPeer).Return(nil).Once()
	c.On("Initialize", mock.Anything).Return(nil).Once()

	err := connectAndInitialize(context.Background(), c, testPeer, 3, time.Millisecond)

	assert.NoError(t, err)
	c.AssertNumberOfCalls(t, "Setup", 2)
}

func TestConnectAndInitializeClosesOnInitFailure(t *testing.T) {
	c := new(MockConnector)
	c.On("Setup", testPeer).Return(nil)
	c.On("Initialize", mock.Anything).Return(elm327.ErrInitializationFailed)
	c.On("Close").Return(nil)

	err := connectAndInitialize(context.Background(), c, testPeer, 2, time.Millisecond)

	assert.ErrorIs(t, err, elm327.ErrInitializationFailed)
	c.AssertNumberOfCalls(t, "Setup", 2)
	c.AssertNumberOfCalls(t, "Close", 2)
}

func TestConnectAndInitializeCancelled(t *testing.T) {
	c := new(MockConnector)
	c.On("Setup", testPeer).Return(nil)
	c.On("Initialize", mock.Anything).Return(context.Canceled)
	c.On("Close").Return(nil)

	err := connectAndInitialize(context.Background(), c, testPeer, 5, time.Millisecond)

	assert.True(t, errors.Is(err, context.Canceled))
	c.AssertNumberOfCalls(t, "Initialize", 1)
}

func TestNewAssessor(t *testing.T) {
	t.Setenv(prefs.APIKeyEnv, "")

	env := &environment{config: DefaultConfig(), prefs: prefs.Default()}
	assert.Nil(t, env.newAssessor())

	env.prefs.AssessmentAPIKey = "sk-test"
	a := env.newAssessor()
	if assert.NotNil(t, a) {
		a.Close()
	}

	env.prefs.AssessmentAPIKey = ""
	env.config.Assessment.APIKey = "sk-config"
	a = env.newAssessor()
	if assert.NotNil(t, a) {
		a.Close()
	}
}
