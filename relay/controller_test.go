package relay

import (
	"context"
	"testing"
	"time"

	"github.com/lebensspur/sentinel/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrigger_ImmediateNoDelay(t *testing.T) {
	pin := NewSimulatedPin()
	c := New(pin, Config{}, logger.New("test"))

	require.NoError(t, c.Trigger(context.Background()))
	assert.True(t, pin.High())
	assert.Equal(t, Active, c.Status().State)
}

func TestTrigger_WithDelay(t *testing.T) {
	pin := NewSimulatedPin()
	c := New(pin, Config{DelaySeconds: 1}, logger.New("test"))

	require.NoError(t, c.Trigger(context.Background()))
	assert.False(t, pin.High(), "should not energize before delay elapses")
	assert.Equal(t, Delay, c.Status().State)

	time.Sleep(1200 * time.Millisecond)
	assert.True(t, pin.High())
	assert.Equal(t, Active, c.Status().State)
}

func TestTrigger_AutoOffAfterDuration(t *testing.T) {
	pin := NewSimulatedPin()
	c := New(pin, Config{DurationSeconds: 1}, logger.New("test"))

	require.NoError(t, c.Trigger(context.Background()))
	assert.True(t, pin.High())

	time.Sleep(1200 * time.Millisecond)
	assert.False(t, pin.High())
	assert.Equal(t, Idle, c.Status().State)
}

func TestTrigger_PulseMode(t *testing.T) {
	pin := NewSimulatedPin()
	c := New(pin, Config{PulseEnabled: true, PulseOnMs: 20, PulseOffMs: 20}, logger.New("test"))

	require.NoError(t, c.Trigger(context.Background()))
	assert.Equal(t, Pulsing, c.Status().State)

	time.Sleep(150 * time.Millisecond)
	require.NoError(t, c.Off(context.Background()))

	assert.GreaterOrEqual(t, c.Status().PulseCount, uint32(1))
	assert.False(t, pin.High())
}

func TestInvertedPolarity(t *testing.T) {
	pin := NewSimulatedPin()
	c := New(pin, Config{Inverted: true}, logger.New("test"))

	require.NoError(t, c.On(context.Background()))
	assert.False(t, pin.High(), "inverted config should drive the pin low when energized")
}

func TestOff_CancelsPendingDelay(t *testing.T) {
	pin := NewSimulatedPin()
	c := New(pin, Config{DelaySeconds: 5}, logger.New("test"))

	require.NoError(t, c.Trigger(context.Background()))
	require.NoError(t, c.Off(context.Background()))

	time.Sleep(200 * time.Millisecond)
	assert.False(t, pin.High())
	assert.Equal(t, Idle, c.Status().State)
}

func TestTriggerCount(t *testing.T) {
	pin := NewSimulatedPin()
	c := New(pin, Config{}, logger.New("test"))

	require.NoError(t, c.Trigger(context.Background()))
	require.NoError(t, c.Trigger(context.Background()))
	assert.Equal(t, uint32(2), c.Status().TriggerCount)
}
