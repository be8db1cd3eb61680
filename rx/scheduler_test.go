package rx

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testTuner struct {
	clock    Clock
	channels []int
	times    []uint32
	fail     map[int]error
}

func (t *testTuner) SetChannel(channel int) error {
	t.channels = append(t.channels, channel)
	t.times = append(t.times, t.clock.Millis())
	if err, ok := t.fail[channel]; ok {
		return err
	}
	return nil
}

type testReporter struct {
	NullReporter
	windows  []Window
	failures []int
	sweeps   []Summary
}

func (r *testReporter) WindowFinalized(w Window) {
	r.windows = append(r.windows, w)
}

func (r *testReporter) SwitchFailed(channel int, _ error) {
	r.failures = append(r.failures, channel)
}

func (r *testReporter) SweepCompleted(s Summary) {
	r.sweeps = append(r.sweeps, s)
}

func setupScheduler(t *testing.T, settings Settings) (*Scheduler, *Aggregator, *manualClock, *testTuner, *testReporter) {
	t.Helper()
	clock := &manualClock{}
	aggregator := NewAggregator(settings.Channels, settings.DedupCapacity, settings.StrongThresholdDBM)
	tuner := &testTuner{clock: clock, fail: map[int]error{}}
	reporter := &testReporter{}
	scheduler := NewScheduler(settings, clock, aggregator, tuner, reporter)
	return scheduler, aggregator, clock, tuner, reporter
}

func runTicks(scheduler *Scheduler, clock *manualClock, duration time.Duration, beforeTick func()) {
	const step = 10 * time.Millisecond
	for elapsed := time.Duration(0); elapsed < duration; elapsed += step {
		clock.Add(step)
		if beforeTick != nil {
			beforeTick()
		}
		scheduler.Tick()
	}
}

func TestScheduler_SweepOrderAndTiming(t *testing.T) {
	settings := DefaultSettings()
	scheduler, _, clock, tuner, reporter := setupScheduler(t, settings)
	clock.Set(1000)

	scheduler.Start()
	runTicks(scheduler, clock, 2*settings.SweepDuration(), nil)

	expected := []int{1}
	for sweep := 0; sweep < 2; sweep++ {
		for ch := 2; ch <= 13; ch++ {
			expected = append(expected, ch)
		}
		expected = append(expected, 1)
	}
	assert.Equal(t, expected, tuner.channels)

	for i := 1; i < len(tuner.times); i++ {
		assert.Equal(t, uint32(260), tuner.times[i]-tuner.times[i-1], "switch %d", i)
	}
	assert.Equal(t, uint32(3380), tuner.times[13]-tuner.times[0], "one sweep")
	assert.Len(t, reporter.sweeps, 2)
	assert.Equal(t, uint64(2), scheduler.Sweeps())
	assert.Equal(t, Dwelling, scheduler.Phase())
}

func TestScheduler_NoTransitionBeforeDwellElapsed(t *testing.T) {
	scheduler, aggregator, clock, _, reporter := setupScheduler(t, DefaultSettings())
	scheduler.Start()

	clock.Add(259 * time.Millisecond)
	assert.False(t, scheduler.Tick())
	assert.Equal(t, 1, aggregator.Active())

	clock.Add(1 * time.Millisecond)
	assert.True(t, scheduler.Tick())
	assert.Equal(t, 2, aggregator.Active())
	assert.False(t, scheduler.Tick(), "at most one transition per tick")
	assert.Len(t, reporter.windows, 1)
}

func TestScheduler_ClockWraparound(t *testing.T) {
	scheduler, aggregator, clock, _, _ := setupScheduler(t, DefaultSettings())
	clock.Set(math.MaxUint32 - 100)
	scheduler.Start()

	clock.Add(259 * time.Millisecond)
	assert.False(t, scheduler.Tick())

	clock.Add(1 * time.Millisecond)
	assert.True(t, scheduler.Tick())
	assert.Equal(t, 2, aggregator.Active())
	assert.Equal(t, uint32(159), clock.Millis())
}

func TestScheduler_FirstFinalizeSeedsSmoothedScore(t *testing.T) {
	scheduler, aggregator, clock, _, reporter := setupScheduler(t, DefaultSettings())
	scheduler.Start()

	for i := 0; i < 40; i++ {
		aggregator.Record(400, -50, mac(byte(i%4)), true)
	}
	clock.Add(DefaultDwell)
	require.True(t, scheduler.Tick())

	require.Len(t, reporter.windows, 1)
	window := reporter.windows[0]
	assert.Equal(t, 1, window.Channel)
	assert.Equal(t, Metrics{Frames: 40, Bytes: 16000, StrongFrames: 40, Unique: 4}, window.Metrics)
	assert.Greater(t, window.Raw, 0.0)
	assert.Equal(t, window.Raw, window.Smoothed)

	summary := scheduler.Summary()
	assert.True(t, summary.Channels[0].HasData)
	assert.False(t, summary.Channels[1].HasData)
	assert.True(t, summary.Channels[1].Active)
	assert.Equal(t, window.Metrics, summary.Channels[0].Metrics, "raw counters are not smoothed")
}

func TestScheduler_SwitchFailureDoesNotStopTheSweep(t *testing.T) {
	settings := DefaultSettings()
	scheduler, aggregator, clock, tuner, reporter := setupScheduler(t, settings)
	tuner.fail[3] = errors.New("device busy")
	scheduler.Start()

	runTicks(scheduler, clock, 3*settings.Dwell, nil)

	assert.Equal(t, []int{1, 2, 3, 4}, tuner.channels)
	assert.Equal(t, []int{3}, reporter.failures)
	assert.Equal(t, 4, aggregator.Active())
	assert.Equal(t, uint32(260), tuner.times[3]-tuner.times[2], "the dwell timer was reset regardless")
	assert.Equal(t, uint64(1), scheduler.Summary().Channels[2].SwitchFaults)
}

func TestScheduler_OneBusyChannel(t *testing.T) {
	settings := DefaultSettings()
	scheduler, aggregator, clock, _, reporter := setupScheduler(t, settings)
	scheduler.Start()

	busyTraffic := func() {
		if aggregator.Active() != 6 {
			return
		}
		for i := 0; i < 10; i++ {
			signal := int8(-80)
			if i%5 == 0 {
				signal = -50
			}
			aggregator.Record(500, signal, mac(byte(i%5)), true)
		}
	}
	runTicks(scheduler, clock, 3*settings.SweepDuration(), busyTraffic)

	require.Len(t, reporter.sweeps, 3)
	summary := scheduler.Summary()
	busy := summary.Channels[5]
	assert.Greater(t, busy.Smoothed, 70.0)
	assert.Equal(t, busy.Smoothed, summary.GlobalActivity)
	assert.Equal(t, []Ranked{{6, busy.Smoothed}, {1, 0}, {2, 0}}, summary.Top)
	assert.True(t, summary.HasQuietest)
	assert.Equal(t, 1, summary.Quietest.Channel)
}

func TestScheduler_GlobalActivityWithoutData(t *testing.T) {
	scheduler, _, _, _, _ := setupScheduler(t, DefaultSettings())
	scheduler.Start()

	summary := scheduler.Summary()

	assert.Equal(t, 0.0, summary.GlobalActivity)
	assert.Empty(t, summary.Top)
	assert.False(t, summary.HasQuietest)
	assert.Equal(t, 1, summary.ActiveChannel)
}

func TestScheduler_PeriodicActivity(t *testing.T) {
	settings := DefaultSettings()
	settings.Channels = 2
	scheduler, aggregator, clock, _, _ := setupScheduler(t, settings)
	scheduler.Start()

	sweep := 0
	traffic := func() {
		if aggregator.Active() != 2 {
			return
		}
		// channel 2 is busy in two out of four sweeps
		if (sweep/2)%4 >= 2 {
			return
		}
		for i := 0; i < 100; i++ {
			aggregator.Record(800, -40, mac(byte(i)), true)
		}
	}
	for i := 0; i < 2*32; i++ {
		traffic()
		clock.Add(settings.Dwell)
		scheduler.Tick()
		sweep++
	}

	summary := scheduler.Summary()
	assert.InDelta(t, 4.0, summary.Channels[1].Period, 0.001)
	assert.Zero(t, summary.Channels[0].Period)
}

type recordingTracer struct {
	starts  int
	stops   int
	records [][]any
}

func (t *recordingTracer) Context() string { return TraceWindow }
func (t *recordingTracer) Start()          { t.starts++ }
func (t *recordingTracer) Stop()           { t.stops++ }

func (t *recordingTracer) Trace(context string, fields ...any) {
	if context != TraceWindow {
		return
	}
	t.records = append(t.records, fields)
}

func TestScheduler_TracesEveryWindow(t *testing.T) {
	settings := DefaultSettings()
	settings.Channels = 3
	scheduler, aggregator, clock, _, _ := setupScheduler(t, settings)
	tracer := new(recordingTracer)
	scheduler.SetTracer(tracer)
	clock.Set(1000)

	scheduler.Start()
	aggregator.Record(100, -40, mac(1), true)
	runTicks(scheduler, clock, 3*settings.Dwell, nil)

	require.Len(t, tracer.records, 3)
	for _, record := range tracer.records {
		assert.Len(t, record, len(WindowTraceColumns))
	}
	first := tracer.records[0]
	assert.Equal(t, uint32(1260), first[0])
	assert.Equal(t, 1, first[1])
	assert.Equal(t, uint32(1), first[2])
	assert.Equal(t, uint32(100), first[3])
	assert.Equal(t, 260*time.Millisecond, first[8])
}
