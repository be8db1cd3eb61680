package rx

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mac(last byte) [6]byte {
	return [6]byte{0x02, 0x00, 0x5e, 0x10, 0x00, last}
}

func TestAggregator_Record(t *testing.T) {
	a := NewAggregator(13, 4, -65)

	a.Record(100, -40, mac(1), true)
	a.Record(200, -65, mac(1), true)
	a.Record(300, -80, mac(2), true)

	assert.Equal(t, Metrics{Frames: 3, Bytes: 600, StrongFrames: 2, Unique: 2}, a.Peek(1))
	assert.Equal(t, Metrics{}, a.Peek(2))
}

func TestAggregator_InvalidFrameIsIgnored(t *testing.T) {
	a := NewAggregator(13, 4, -65)

	a.Record(10, -30, mac(1), false)

	assert.Equal(t, Metrics{}, a.Peek(1))
}

func TestAggregator_DedupSaturates(t *testing.T) {
	a := NewAggregator(1, 3, -65)

	var lastUnique uint32
	for i := 0; i < 10; i++ {
		a.Record(50, -90, mac(byte(i)), true)
		unique := a.Peek(1).Unique
		assert.GreaterOrEqual(t, unique, lastUnique)
		assert.LessOrEqual(t, unique, uint32(3))
		lastUnique = unique
	}

	assert.Equal(t, Metrics{Frames: 10, Bytes: 500, Unique: 3}, a.Peek(1))
}

func TestAggregator_FinalizeResetsAndAdvances(t *testing.T) {
	a := NewAggregator(3, 4, -65)
	a.Record(100, -40, mac(1), true)

	channel, snapshot, next := a.Finalize()

	assert.Equal(t, 1, channel)
	assert.Equal(t, Metrics{Frames: 1, Bytes: 100, StrongFrames: 1, Unique: 1}, snapshot)
	assert.Equal(t, 2, next)
	assert.Equal(t, 2, a.Active())
	assert.Equal(t, Metrics{}, a.Peek(1))

	a.Finalize()
	_, _, next = a.Finalize()
	assert.Equal(t, 1, next, "wraps around")

	a.Record(100, -40, mac(1), true)
	_, snapshot, _ = a.Finalize()
	assert.Equal(t, uint32(1), snapshot.Unique, "dedup table is reset with the window")
}

func TestAggregator_ConcurrentRecordAndFinalize(t *testing.T) {
	const (
		producers     = 4
		framesEach    = 20000
		frameLength   = 7
		channels      = 5
		finalizeCount = 200
	)
	a := NewAggregator(channels, 16, -65)

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < framesEach; i++ {
				a.Record(frameLength, -50, mac(byte(i%8)), true)
			}
		}(p)
	}

	var total Metrics
	collect := func(snapshot Metrics) {
		require.Equal(t, snapshot.Frames*frameLength, snapshot.Bytes, "torn snapshot")
		require.Equal(t, snapshot.Frames, snapshot.StrongFrames, "torn snapshot")
		total.Frames += snapshot.Frames
		total.Bytes += snapshot.Bytes
	}
	for i := 0; i < finalizeCount; i++ {
		_, snapshot, _ := a.Finalize()
		collect(snapshot)
	}
	wg.Wait()
	for i := 0; i < channels; i++ {
		_, snapshot, _ := a.Finalize()
		collect(snapshot)
	}

	assert.Equal(t, uint32(producers*framesEach), total.Frames)
	assert.Equal(t, uint32(producers*framesEach*frameLength), total.Bytes)
}

func TestTransmitterSet(t *testing.T) {
	s := NewTransmitterSet(2)

	assert.True(t, s.Add(1))
	assert.False(t, s.Add(1))
	assert.True(t, s.Add(2))
	assert.False(t, s.Add(3))
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 2, s.Cap())

	s.Reset()
	assert.Equal(t, 0, s.Len())
	assert.True(t, s.Add(3))
}

func TestTransmitterHash(t *testing.T) {
	assert.Equal(t, TransmitterHash(mac(1)), TransmitterHash(mac(1)))
	assert.NotEqual(t, TransmitterHash(mac(1)), TransmitterHash(mac(2)))
}

func TestAggregator_RecordDoesNotAllocate(t *testing.T) {
	a := NewAggregator(13, 32, -65)
	source := mac(9)

	allocs := testing.AllocsPerRun(1000, func() {
		a.Record(1500, -42, source, true)
	})

	assert.Zero(t, allocs)
}

func TestSpinLock_YieldsWhileContended(t *testing.T) {
	var yields atomic.Int32
	spinYield = func() {
		yields.Add(1)
		runtime.Gosched()
	}
	defer func() { spinYield = runtime.Gosched }()

	var l spinLock
	l.Lock()
	acquired := make(chan struct{})
	go func() {
		l.Lock()
		l.Unlock()
		close(acquired)
	}()

	assert.Eventually(t, func() bool { return yields.Load() > 0 }, time.Second, time.Millisecond)
	l.Unlock()
	<-acquired
}

func TestSpinLock_HandsOverOnSingleProcessor(t *testing.T) {
	defer runtime.GOMAXPROCS(runtime.GOMAXPROCS(1))
	const rounds = 100

	var l spinLock
	start := time.Now()
	for i := 0; i < rounds; i++ {
		l.Lock()
		acquired := make(chan struct{})
		go func() {
			l.Lock()
			l.Unlock()
			close(acquired)
		}()
		runtime.Gosched()
		l.Unlock()
		<-acquired
	}

	assert.Less(t, time.Since(start), 500*time.Millisecond)
}
