package radio

import (
	"fmt"
	"sync"
	"time"
)

// Source is a simulated transmitter group. Its traffic leaks into the neighbouring channels
// within the given width, decreasing linearly with the distance to the center channel.
type Source struct {
	Center          int
	Width           int
	FramesPerSecond int

	// If Period is set, the source is only active for the first two thirds of each period.
	Period time.Duration

	Transmitters int
}

// Simulator generates synthetic 802.11 traffic. It acts as a tuner: only the traffic of the
// tuned channel is delivered to the sink.
type Simulator struct {
	mutex   sync.Mutex
	sink    FrameSink
	sources []Source
	failing map[int]bool
	rng     uint32
	tuned   int
	elapsed time.Duration
	carry   float64

	stop chan struct{}
	done chan struct{}
}

func NewSimulator(sink FrameSink, seed uint32, sources ...Source) *Simulator {
	if seed == 0 {
		seed = 0x9e3779b9
	}
	return &Simulator{
		sink:    sink,
		sources: sources,
		failing: make(map[int]bool),
		rng:     seed,
		tuned:   1,
	}
}

// DefaultSources are three access points on the non-overlapping channels 1, 6 and 11.
func DefaultSources() []Source {
	return []Source{
		{Center: 1, Width: 2, FramesPerSecond: 120, Transmitters: 6},
		{Center: 6, Width: 2, FramesPerSecond: 450, Period: 20 * time.Second, Transmitters: 14},
		{Center: 11, Width: 2, FramesPerSecond: 60, Transmitters: 3},
	}
}

// FailOn lets every attempt to switch to the given channel fail.
func (s *Simulator) FailOn(channel int) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.failing[channel] = true
}

func (s *Simulator) SetChannel(channel int) error {
	if _, err := ChannelFrequency(channel); err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.failing[channel] {
		return fmt.Errorf("%w: simulated failure on channel %d", ErrRejected, channel)
	}
	s.tuned = channel
	s.carry = 0
	return nil
}

func (s *Simulator) Tuned() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.tuned
}

// Load returns the frame rate the simulator produces on the given channel at the current simulated time.
func (s *Simulator) Load(channel int) int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.load(channel)
}

func (s *Simulator) load(channel int) int {
	result := 0
	for _, source := range s.sources {
		result += bump(channel, source.Center, source.Width, s.amplitude(source))
	}
	return result
}

func (s *Simulator) amplitude(source Source) int {
	if source.Period <= 0 {
		return source.FramesPerSecond
	}
	if s.elapsed%source.Period < source.Period*2/3 {
		return source.FramesPerSecond
	}
	return 0
}

// Step advances the simulated time by d and delivers the frames that were transmitted on the tuned channel.
func (s *Simulator) Step(d time.Duration) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.elapsed += d
	expected := s.carry + float64(s.load(s.tuned))*d.Seconds()
	frames := int(expected)
	s.carry = expected - float64(frames)

	for i := 0; i < frames; i++ {
		s.emit()
	}
}

func (s *Simulator) emit() {
	x := s.next()
	if x&0x0f == 0 {
		// control frames without transmitter address
		s.sink.Record(14, UnknownSignal, [6]byte{}, false)
		return
	}

	source, distance := s.pickSource(x)
	transmitters := max(source.Transmitters, 1)
	var mac [6]byte
	mac[0] = 0x02
	mac[4] = byte(source.Center)
	mac[5] = byte((x >> 8) % uint32(transmitters))

	length := 60 + (x>>16)%1440
	signal := -35 - 10*distance - int((x>>4)&0x0f)
	s.sink.Record(length, int8(max(signal, -100)), mac, true)
}

// pickSource selects the source with the strongest contribution to the tuned channel.
func (s *Simulator) pickSource(x uint32) (Source, int) {
	var result Source
	best := -1
	distance := 0
	for _, source := range s.sources {
		contribution := bump(s.tuned, source.Center, source.Width, s.amplitude(source))
		if contribution > best || (contribution == best && x&0x10 != 0) {
			best = contribution
			result = source
			distance = abs(s.tuned - source.Center)
		}
	}
	return result, distance
}

// next returns the next value of the xorshift32 generator.
func (s *Simulator) next() uint32 {
	x := s.rng
	x ^= x << 13
	x ^= x >> 17
	x ^= x << 5
	s.rng = x
	return x
}

// Start the simulation in real time, delivering frames every interval.
func (s *Simulator) Start(interval time.Duration) {
	if s.stop != nil {
		return
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.Step(interval)
			}
		}
	}()
}

func (s *Simulator) Stop() {
	if s.stop == nil {
		return
	}
	close(s.stop)
	<-s.done
	s.stop = nil
	s.done = nil
}

func bump(channel, center, width, amplitude int) int {
	if width <= 0 || amplitude <= 0 {
		return 0
	}
	d := abs(channel - center)
	if d > width {
		return 0
	}
	return amplitude * (width + 1 - d) / (width + 1)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
