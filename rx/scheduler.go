package rx

import (
	"log"
	"time"

	"github.com/ftl/bandwatch/dsp"
	"github.com/ftl/bandwatch/trace"
)

// TraceWindow is the tracing context of the finalized windows, one record per window with the WindowTraceColumns.
const TraceWindow = "window"

var WindowTraceColumns = []string{"uptime_ms", "channel", "frames", "bytes", "strong_frames", "unique", "raw", "smoothed", "elapsed_ms"}

// Tuner switches the radio to a channel.
type Tuner interface {
	SetChannel(channel int) error
}

type TunerFunc func(int) error

func (f TunerFunc) SetChannel(channel int) error {
	return f(channel)
}

var NoTuner = TunerFunc(func(int) error { return nil })

type Phase int

const (
	Dwelling Phase = iota
	Finalizing
	Switching
)

func (p Phase) String() string {
	switch p {
	case Dwelling:
		return "dwelling"
	case Finalizing:
		return "finalizing"
	case Switching:
		return "switching"
	default:
		return "unknown"
	}
}

type channelState struct {
	snapshot     Metrics
	raw          float64
	smoothed     *dsp.EMA[float64]
	history      *dsp.RollingHistory[float64]
	windows      uint64
	switchFaults uint64
}

func (s *channelState) hasData() bool {
	return s.windows > 0
}

// Scheduler sweeps round-robin over all channels. It must be driven by calling Tick periodically,
// the dwell time is measured by polling the clock, the scheduler never sleeps.
type Scheduler struct {
	settings   Settings
	clock      Clock
	aggregator *Aggregator
	tuner      Tuner
	reporter   Reporter
	tracer     trace.Tracer

	phase       Phase
	dwellStart  uint32
	dwellMillis uint32
	sweeps      uint64
	channels    []channelState
	historyBuf  []float64
}

func NewScheduler(settings Settings, clock Clock, aggregator *Aggregator, tuner Tuner, reporter Reporter) *Scheduler {
	if clock == nil {
		clock = UptimeClock
	}
	if tuner == nil {
		tuner = NoTuner
	}
	if reporter == nil {
		reporter = NullReporter{}
	}
	historyLength := max(settings.HistoryLength, 1)
	result := &Scheduler{
		settings:    settings,
		clock:       clock,
		aggregator:  aggregator,
		tuner:       tuner,
		reporter:    reporter,
		tracer:      new(trace.NoTracer),
		dwellMillis: uint32(settings.Dwell.Milliseconds()),
		channels:    make([]channelState, aggregator.Channels()),
		historyBuf:  make([]float64, 0, historyLength),
	}
	for i := range result.channels {
		result.channels[i].smoothed = dsp.NewEMA(settings.Alpha)
		result.channels[i].history = dsp.NewRollingHistory[float64](historyLength)
	}
	return result
}

func (s *Scheduler) SetTracer(tracer trace.Tracer) {
	if tracer == nil {
		tracer = new(trace.NoTracer)
	}
	s.tracer = tracer
}

func (s *Scheduler) SetTuner(tuner Tuner) {
	if tuner == nil {
		tuner = NoTuner
	}
	s.tuner = tuner
}

// Start tunes the radio to the active channel and starts its dwell window.
func (s *Scheduler) Start() {
	s.phase = Switching
	s.switchTo(s.aggregator.Active())
	s.dwellStart = s.clock.Millis()
	s.phase = Dwelling
}

// Tick checks if the dwell time of the active channel has elapsed. If so, it finalizes the window,
// scores it and switches to the next channel. Tick returns true if a transition happened.
func (s *Scheduler) Tick() bool {
	now := s.clock.Millis()
	elapsed := Elapsed(now, s.dwellStart)
	if elapsed < s.dwellMillis {
		return false
	}

	s.phase = Finalizing
	channel, snapshot, next := s.aggregator.Finalize()
	window := s.finalize(channel, snapshot)
	window.Elapsed = time.Duration(elapsed) * time.Millisecond
	window.Uptime = now
	s.tracer.Trace(TraceWindow, now, window.Channel, window.Frames, window.Bytes, window.StrongFrames, window.Unique, window.Raw, window.Smoothed, window.Elapsed)
	s.reporter.WindowFinalized(window)

	s.phase = Switching
	s.switchTo(next)
	s.dwellStart = s.clock.Millis()
	s.phase = Dwelling

	if next == 1 {
		s.sweeps++
		s.reporter.SweepCompleted(s.Summary())
	}
	return true
}

func (s *Scheduler) finalize(channel int, snapshot Metrics) Window {
	state := &s.channels[channel-1]
	state.snapshot = snapshot
	state.raw = Score(snapshot, s.settings.Dwell, s.settings.Score)
	state.smoothed.Put(state.raw)
	state.history.Put(state.raw)
	state.windows++

	return Window{
		Metrics:  snapshot,
		Channel:  channel,
		Raw:      state.raw,
		Smoothed: state.smoothed.Get(),
		Dwell:    s.settings.Dwell,
	}
}

// switchTo commands the radio to the given channel. A failure is counted and reported, but not retried.
func (s *Scheduler) switchTo(channel int) {
	err := s.tuner.SetChannel(channel)
	if err != nil {
		s.channels[channel-1].switchFaults++
		log.Printf("cannot switch to channel %d: %v", channel, err)
		s.reporter.SwitchFailed(channel, err)
		return
	}
	s.reporter.ChannelSwitched(channel)
}

func (s *Scheduler) Phase() Phase {
	return s.phase
}

func (s *Scheduler) Sweeps() uint64 {
	return s.sweeps
}

// Summary provides a consistent view on all channels.
func (s *Scheduler) Summary() Summary {
	active := s.aggregator.Active()
	views := make([]ChannelView, len(s.channels))
	for i := range s.channels {
		state := &s.channels[i]
		views[i] = ChannelView{
			Metrics:      state.snapshot,
			Channel:      i + 1,
			Smoothed:     state.smoothed.Get(),
			Raw:          state.raw,
			Active:       i+1 == active,
			HasData:      state.hasData(),
			Windows:      state.windows,
			SwitchFaults: state.switchFaults,
			Period:       s.period(state),
		}
	}

	result := Summary{
		ActiveChannel:  active,
		Sweeps:         s.sweeps,
		GlobalActivity: GlobalActivity(views),
		Top:            TopChannels(views, s.settings.TopK),
		Channels:       views,
	}
	result.Quietest, result.HasQuietest = QuietestChannel(views)
	return result
}

func (s *Scheduler) period(state *channelState) float64 {
	if state.history.Len() < minPeriodicSamples {
		return 0
	}
	s.historyBuf = state.history.Values(s.historyBuf)
	period, strength := dsp.DominantPeriod(s.historyBuf)
	if strength < minPeriodicStrength {
		return 0
	}
	return period
}
