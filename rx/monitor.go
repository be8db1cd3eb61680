package rx

import (
	"time"

	"github.com/ftl/bandwatch/trace"
)

// Monitor runs the channel sweep. The frames are fed in through Record from the radio driver,
// the scheduler runs on its own goroutine, driven by a ticker.
type Monitor struct {
	settings   Settings
	aggregator *Aggregator
	scheduler  *Scheduler
	tracer     trace.Tracer

	op      chan func()
	stop    chan struct{}
	stopped chan struct{}
}

func NewMonitor(settings Settings, clock Clock, reporter Reporter) *Monitor {
	aggregator := NewAggregator(settings.Channels, settings.DedupCapacity, settings.StrongThresholdDBM)
	return &Monitor{
		settings:   settings,
		aggregator: aggregator,
		scheduler:  NewScheduler(settings, clock, aggregator, nil, reporter),
		tracer:     new(trace.NoTracer),
	}
}

// Start the sweep using the given tuner to switch the channels.
func (m *Monitor) Start(tuner Tuner) {
	if m.op != nil {
		return
	}

	m.scheduler.SetTuner(tuner)
	m.scheduler.Start()

	m.stop = make(chan struct{})
	m.stopped = make(chan struct{})
	m.op = make(chan func())

	go m.run()
}

func (m *Monitor) Stop() {
	if m.op == nil {
		return
	}

	close(m.stop)
	<-m.stopped
	close(m.op)

	m.tracer.Stop()

	m.stop = nil
	m.stopped = nil
	m.op = nil
}

func (m *Monitor) do(f func()) {
	if m.op == nil {
		f()
	} else {
		m.op <- f
	}
}

// Record the contribution of one observed frame. Safe to call from any goroutine.
func (m *Monitor) Record(length uint32, signalDBM int8, source [6]byte, valid bool) {
	m.aggregator.Record(length, signalDBM, source, valid)
}

// SetTracer stops the current tracer and starts the given one.
func (m *Monitor) SetTracer(tracer trace.Tracer) {
	if tracer == nil {
		tracer = new(trace.NoTracer)
	}
	m.do(func() {
		m.tracer.Stop()
		m.tracer = tracer
		m.scheduler.SetTracer(tracer)
		m.tracer.Start()
	})
}

// Summary provides a consistent view on all channels, taken on the monitor's goroutine.
func (m *Monitor) Summary() Summary {
	result := make(chan Summary, 1)
	m.do(func() {
		result <- m.scheduler.Summary()
	})
	return <-result
}

func (m *Monitor) Settings() Settings {
	return m.settings
}

func (m *Monitor) run() {
	defer close(m.stopped)

	tickInterval := m.settings.TickInterval
	if tickInterval <= 0 {
		tickInterval = DefaultTickInterval
	}
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case op := <-m.op:
			op()
		case <-ticker.C:
			m.scheduler.Tick()
		}
	}
}
