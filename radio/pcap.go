package radio

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

const snapLength = 65535

// PCAPReplay replays a radiotap capture file. It acts as a tuner: once a channel is set, only frames
// captured on this channel are delivered. Frames without channel information are always delivered.
type PCAPReplay struct {
	reader   *pcapgo.Reader
	closer   io.Closer
	sink     FrameSink
	decoder  *Decoder
	realtime bool

	frequency atomic.Uint32
	delivered atomic.Uint64
	skipped   atomic.Uint64

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	err      error
}

// NewPCAPReplay reads the capture from r. If realtime is true, the frames are delivered with the
// same timing as they were captured, otherwise as fast as possible.
func NewPCAPReplay(r io.Reader, sink FrameSink, realtime bool) (*PCAPReplay, error) {
	reader, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("cannot read pcap header: %w", err)
	}
	if reader.LinkType() != layers.LinkTypeIEEE80211Radio {
		return nil, fmt.Errorf("unsupported link type %v, need radiotap", reader.LinkType())
	}
	return &PCAPReplay{
		reader:   reader,
		sink:     sink,
		decoder:  NewDecoder(),
		realtime: realtime,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// OpenPCAP opens the given capture file for replay.
func OpenPCAP(filename string, sink FrameSink, realtime bool) (*PCAPReplay, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("cannot open capture file: %w", err)
	}
	result, err := NewPCAPReplay(f, sink, realtime)
	if err != nil {
		f.Close()
		return nil, err
	}
	result.closer = f
	return result, nil
}

func (p *PCAPReplay) SetChannel(channel int) error {
	frequency, err := ChannelFrequency(channel)
	if err != nil {
		return err
	}
	p.frequency.Store(uint32(frequency))
	return nil
}

// Start the replay in the background.
func (p *PCAPReplay) Start() {
	go p.run()
}

// Done is closed when the replay reached the end of the capture or was closed.
func (p *PCAPReplay) Done() <-chan struct{} {
	return p.done
}

// Err returns the error that ended the replay. It is only valid after Done was closed.
func (p *PCAPReplay) Err() error {
	return p.err
}

// Stats returns the number of delivered frames and the number of frames skipped because they
// were captured on another channel.
func (p *PCAPReplay) Stats() (delivered uint64, skipped uint64) {
	return p.delivered.Load(), p.skipped.Load()
}

func (p *PCAPReplay) Close() error {
	p.stopOnce.Do(func() {
		close(p.stop)
	})
	<-p.done
	if p.closer != nil {
		return p.closer.Close()
	}
	return nil
}

func (p *PCAPReplay) run() {
	defer close(p.done)

	var firstCapture time.Time
	var replayStart time.Time
	for {
		select {
		case <-p.stop:
			return
		default:
		}

		data, ci, err := p.reader.ReadPacketData()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			p.err = fmt.Errorf("cannot read packet: %w", err)
			return
		}

		if p.realtime {
			if firstCapture.IsZero() {
				firstCapture = ci.Timestamp
				replayStart = time.Now()
			}
			if !p.wait(replayStart.Add(ci.Timestamp.Sub(firstCapture))) {
				return
			}
		}

		p.deliver(data)
	}
}

func (p *PCAPReplay) wait(until time.Time) bool {
	delay := time.Until(until)
	if delay <= 0 {
		return true
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-p.stop:
		return false
	case <-timer.C:
		return true
	}
}

func (p *PCAPReplay) deliver(data []byte) {
	event, err := p.decoder.Decode(data)
	if err != nil {
		log.Printf("skipping broken packet: %v", err)
		return
	}
	tuned := uint16(p.frequency.Load())
	if tuned != 0 && event.Frequency != 0 && event.Frequency != tuned {
		p.skipped.Add(1)
		return
	}
	event.Deliver(p.sink)
	p.delivered.Add(1)
}

// PCAPWriter writes raw radiotap packets into a capture file.
type PCAPWriter struct {
	mutex  sync.Mutex
	writer *pcapgo.Writer
}

func NewPCAPWriter(w io.Writer) (*PCAPWriter, error) {
	writer := pcapgo.NewWriter(w)
	err := writer.WriteFileHeader(snapLength, layers.LinkTypeIEEE80211Radio)
	if err != nil {
		return nil, fmt.Errorf("cannot write pcap header: %w", err)
	}
	return &PCAPWriter{writer: writer}, nil
}

func (w *PCAPWriter) WritePacket(timestamp time.Time, data []byte) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	ci := gopacket.CaptureInfo{
		Timestamp:     timestamp,
		CaptureLength: len(data),
		Length:        len(data),
	}
	return w.writer.WritePacket(ci, data)
}
