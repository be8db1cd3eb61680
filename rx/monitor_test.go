package rx

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type lockedTuner struct {
	mutex    sync.Mutex
	channels []int
}

func (t *lockedTuner) SetChannel(channel int) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.channels = append(t.channels, channel)
	return nil
}

func (t *lockedTuner) Channels() []int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return append([]int{}, t.channels...)
}

func TestMonitor_StartStop(t *testing.T) {
	settings := DefaultSettings()
	settings.Channels = 3
	settings.Dwell = 20 * time.Millisecond
	settings.TickInterval = time.Millisecond
	monitor := NewMonitor(settings, nil, nil)
	tuner := new(lockedTuner)

	monitor.Start(tuner)

	stopFeeding := make(chan struct{})
	fed := make(chan struct{})
	go func() {
		defer close(fed)
		for {
			select {
			case <-stopFeeding:
				return
			default:
				monitor.Record(100, -50, mac(1), true)
				time.Sleep(100 * time.Microsecond)
			}
		}
	}()

	assert.Eventually(t, func() bool {
		return monitor.Summary().Sweeps >= 2
	}, 5*time.Second, 10*time.Millisecond)

	close(stopFeeding)
	<-fed
	monitor.Stop()

	channels := tuner.Channels()
	assert.GreaterOrEqual(t, len(channels), 7)
	for i, channel := range channels {
		assert.Equal(t, i%3+1, channel, "switch %d", i)
	}

	summary := monitor.Summary()
	assert.Len(t, summary.Channels, 3)
	assert.Greater(t, summary.GlobalActivity, 0.0)
	assert.Len(t, summary.Top, 3)
}

func TestMonitor_SummaryWithoutStart(t *testing.T) {
	monitor := NewMonitor(DefaultSettings(), nil, nil)

	summary := monitor.Summary()

	assert.Len(t, summary.Channels, DefaultChannels)
	assert.Equal(t, 1, summary.ActiveChannel)
	assert.Zero(t, summary.GlobalActivity)
}

func TestMonitor_SetTracerStopsThePreviousTracer(t *testing.T) {
	settings := DefaultSettings()
	settings.Dwell = 20 * time.Millisecond
	settings.TickInterval = time.Millisecond
	monitor := NewMonitor(settings, nil, nil)
	first := new(recordingTracer)
	second := new(recordingTracer)

	monitor.SetTracer(first)
	assert.Equal(t, 1, first.starts)
	assert.Equal(t, 0, first.stops)

	monitor.Start(nil)
	monitor.SetTracer(second)
	monitor.Stop()

	assert.Equal(t, 1, first.starts)
	assert.Equal(t, 1, first.stops)
	assert.Equal(t, 1, second.starts)
	assert.Equal(t, 1, second.stops)
}
