//go:build linux

package radio

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/gopacket/pcapgo"
)

// LiveCapture captures frames from a network interface in monitor mode. The interface must deliver
// radiotap encapsulated frames.
type LiveCapture struct {
	iface   string
	handle  *pcapgo.EthernetHandle
	sink    FrameSink
	decoder *Decoder
	dump    *PCAPWriter

	closeOnce sync.Once
	closed    chan struct{}
	done      chan struct{}
}

func OpenLiveCapture(iface string, sink FrameSink) (*LiveCapture, error) {
	handle, err := pcapgo.NewEthernetHandle(iface)
	if err != nil {
		return nil, fmt.Errorf("cannot open %s for capturing: %w", iface, err)
	}
	return &LiveCapture{
		iface:   iface,
		handle:  handle,
		sink:    sink,
		decoder: NewDecoder(),
		closed:  make(chan struct{}),
		done:    make(chan struct{}),
	}, nil
}

// SetDump writes every captured packet also into the given capture file. Must be called before Start.
func (c *LiveCapture) SetDump(dump *PCAPWriter) {
	c.dump = dump
}

func (c *LiveCapture) Start() {
	go c.run()
}

func (c *LiveCapture) Done() <-chan struct{} {
	return c.done
}

func (c *LiveCapture) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.handle.Close()
	})
	<-c.done
}

func (c *LiveCapture) run() {
	defer close(c.done)

	for {
		data, ci, err := c.handle.ZeroCopyReadPacketData()
		if err != nil {
			select {
			case <-c.closed:
			default:
				log.Printf("capturing on %s stopped: %v", c.iface, err)
			}
			return
		}

		event, err := c.decoder.Decode(data)
		if err != nil {
			continue
		}
		event.Deliver(c.sink)

		if c.dump != nil {
			timestamp := ci.Timestamp
			if timestamp.IsZero() {
				timestamp = time.Now()
			}
			err := c.dump.WritePacket(timestamp, data)
			if err != nil {
				log.Printf("cannot dump packet: %v", err)
			}
		}
	}
}
