package rx

import (
	"fmt"
	"runtime"
	"sync/atomic"
)

// Metrics are the counters of one dwell window on one channel.
type Metrics struct {
	Frames       uint32
	Bytes        uint32
	StrongFrames uint32
	Unique       uint32
}

func (m Metrics) String() string {
	return fmt.Sprintf("%d frames, %d bytes, %d strong, %d unique", m.Frames, m.Bytes, m.StrongFrames, m.Unique)
}

// spinLimit is the number of failed attempts after which a waiting goroutine yields the processor.
const spinLimit = 64

var spinYield = runtime.Gosched

// spinLock is a mutual exclusion that never parks the calling goroutine.
// The critical sections guarded by it are only a handful of integer operations.
type spinLock struct {
	state atomic.Uint32
}

// Lock spins until the lock is free. After spinLimit attempts it yields the processor, so a holder
// that was preempted on the same processor can finish its critical section. Yielding keeps the
// goroutine runnable, it is never parked.
func (l *spinLock) Lock() {
	for spins := 0; !l.state.CompareAndSwap(0, 1); spins++ {
		if spins >= spinLimit {
			spinYield()
			spins = 0
		}
	}
}

func (l *spinLock) Unlock() {
	l.state.Store(0)
}

type accumulator struct {
	Metrics
	transmitters TransmitterSet
}

// Aggregator accumulates the frames observed on the currently active channel.
// Record may be called from any goroutine at any rate. Finalize, Active and Peek belong to the consumer side.
type Aggregator struct {
	lock            spinLock
	slots           []accumulator
	active          int
	strongThreshold int8
}

// NewAggregator returns a new Aggregator for the channels 1..channels. Channel 1 is active.
func NewAggregator(channels int, dedupCapacity int, strongThreshold int8) *Aggregator {
	if channels < 1 {
		panic(fmt.Sprintf("an aggregator needs at least one channel, got %d", channels))
	}
	result := &Aggregator{
		slots:           make([]accumulator, channels),
		active:          1,
		strongThreshold: strongThreshold,
	}
	for i := range result.slots {
		result.slots[i].transmitters = NewTransmitterSet(dedupCapacity)
	}
	return result
}

// Record the contribution of one observed frame to the active channel. Invalid frames are ignored.
// Record never blocks on a channel or mutex and never allocates.
func (a *Aggregator) Record(length uint32, signalDBM int8, source [6]byte, valid bool) {
	if !valid {
		return
	}
	hash := TransmitterHash(source)

	a.lock.Lock()
	slot := &a.slots[a.active-1]
	slot.Frames++
	slot.Bytes += length
	if signalDBM >= a.strongThreshold {
		slot.StrongFrames++
	}
	if slot.transmitters.Add(hash) {
		slot.Unique++
	}
	a.lock.Unlock()
}

// Finalize ends the dwell window of the active channel. It takes a snapshot of the accumulated metrics,
// resets the accumulator and advances the active channel to the next one in ascending order, wrapping
// from the last channel back to 1. Everything happens within one critical section, so every recorded
// frame is counted in exactly one window.
func (a *Aggregator) Finalize() (channel int, snapshot Metrics, next int) {
	a.lock.Lock()
	channel = a.active
	slot := &a.slots[channel-1]
	snapshot = slot.Metrics
	slot.Metrics = Metrics{}
	slot.transmitters.Reset()
	a.active = channel%len(a.slots) + 1
	next = a.active
	a.lock.Unlock()
	return channel, snapshot, next
}

// Active returns the channel that currently accumulates frames.
func (a *Aggregator) Active() int {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.active
}

// Peek returns the current, unfinished metrics of the given channel.
func (a *Aggregator) Peek(channel int) Metrics {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.slots[channel-1].Metrics
}

func (a *Aggregator) Channels() int {
	return len(a.slots)
}
