package radio

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
)

/*

Bridge line protocol, one message per line:

sniffer -> bandwatch
	F <length> <rssi dBm> <transmitter MAC>   a captured frame
	S <length>                                a frame too short to contain a transmitter address
	OK <channel>                              the channel was set
	ERR <channel> <message>                   the channel could not be set
	# <text>                                  ignored

bandwatch -> sniffer
	CH <channel>                              set the channel

*/

const (
	DefaultAckTimeout = 250 * time.Millisecond
	DefaultBaudRate   = 115200

	ackBufferSize = 4
)

var ErrRejected = errors.New("rejected")

type bridgeConn interface {
	Close() error
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
}

type bridgeLineKind int

const (
	ignoredLine bridgeLineKind = iota
	frameLine
	okLine
	errLine
)

type bridgeLine struct {
	kind    bridgeLineKind
	event   Event
	channel int
	message string
}

type bridgeAck struct {
	channel int
	err     error
}

// Bridge connects to an external sniffer that captures the frames and switches the channels.
type Bridge struct {
	name       string
	sink       FrameSink
	ackTimeout time.Duration

	acks      chan bridgeAck
	out       chan string
	close     chan struct{}
	closeOnce sync.Once
	closed    chan struct{}
	readDone  chan struct{}
}

// NewStreamBridge runs the bridge protocol over the given byte stream.
func NewStreamBridge(name string, stream io.ReadWriteCloser, sink FrameSink) *Bridge {
	return newBridge(name, newStreamConn(stream), sink)
}

// OpenSerialBridge connects to a sniffer on the given serial port.
func OpenSerialBridge(portName string, baudRate int, sink FrameSink) (*Bridge, error) {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("cannot open serial port %s: %w", portName, err)
	}
	log.Printf("connected to sniffer on %s", portName)
	return NewStreamBridge(portName, port, sink), nil
}

// DialWebsocketBridge connects to a sniffer that provides the bridge protocol through a websocket.
func DialWebsocketBridge(ctx context.Context, url string, sink FrameSink) (*Bridge, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("cannot dial sniffer websocket: %w", err)
	}
	log.Printf("connected to sniffer at %s", url)
	return newBridge(url, conn, sink), nil
}

func newBridge(name string, conn bridgeConn, sink FrameSink) *Bridge {
	result := &Bridge{
		name:       name,
		sink:       sink,
		ackTimeout: DefaultAckTimeout,

		acks:     make(chan bridgeAck, ackBufferSize),
		out:      make(chan string),
		close:    make(chan struct{}),
		closed:   make(chan struct{}),
		readDone: make(chan struct{}),
	}

	go result.readLoop(conn)
	go result.writeLoop(conn)

	return result
}

func (b *Bridge) SetAckTimeout(timeout time.Duration) {
	b.ackTimeout = timeout
}

// SetChannel commands the sniffer to switch to the given channel and waits for the acknowledgement.
func (b *Bridge) SetChannel(channel int) error {
	if _, err := ChannelFrequency(channel); err != nil {
		return err
	}
	b.drainAcks()

	select {
	case b.out <- fmt.Sprintf("CH %d", channel):
	case <-b.close:
		return ErrClosed
	}

	timer := time.NewTimer(b.ackTimeout)
	defer timer.Stop()
	for {
		select {
		case ack := <-b.acks:
			if ack.channel != channel {
				continue
			}
			return ack.err
		case <-timer.C:
			return fmt.Errorf("%w: no acknowledgement for channel %d from %s", ErrTimeout, channel, b.name)
		case <-b.close:
			return ErrClosed
		}
	}
}

func (b *Bridge) drainAcks() {
	for {
		select {
		case <-b.acks:
		default:
			return
		}
	}
}

// Done is closed when the connection to the sniffer is closed.
func (b *Bridge) Done() <-chan struct{} {
	return b.closed
}

func (b *Bridge) Close() {
	b.shutdown()
	<-b.closed
	<-b.readDone
}

func (b *Bridge) shutdown() {
	b.closeOnce.Do(func() {
		close(b.close)
	})
}

func (b *Bridge) readLoop(conn bridgeConn) {
	defer close(b.readDone)
	for {
		_, msgBytes, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-b.close:
			default:
				log.Printf("cannot read from sniffer %s: %v", b.name, err)
			}
			b.shutdown()
			return
		}

		for _, line := range strings.Split(string(msgBytes), "\n") {
			b.handleLine(line)
		}
	}
}

func (b *Bridge) handleLine(line string) {
	parsed, err := parseBridgeLine(line)
	if err != nil {
		log.Print(err)
		return
	}

	switch parsed.kind {
	case frameLine:
		parsed.event.Deliver(b.sink)
	case okLine:
		b.ack(bridgeAck{channel: parsed.channel})
	case errLine:
		b.ack(bridgeAck{channel: parsed.channel, err: fmt.Errorf("%w: channel %d: %s", ErrRejected, parsed.channel, parsed.message)})
	}
}

func (b *Bridge) ack(ack bridgeAck) {
	select {
	case b.acks <- ack:
	default:
		log.Printf("acknowledgement for channel %d dropped", ack.channel)
	}
}

func (b *Bridge) writeLoop(conn bridgeConn) {
	defer close(b.closed)
	defer conn.Close()

	for {
		select {
		case <-b.close:
			return
		case message := <-b.out:
			err := conn.WriteMessage(websocket.TextMessage, []byte(message+"\n"))
			if err != nil {
				log.Printf("cannot write to sniffer %s: %v", b.name, err)
				b.shutdown()
				return
			}
		}
	}
}

func parseBridgeLine(line string) (bridgeLine, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return bridgeLine{kind: ignoredLine}, nil
	}
	fields := strings.Fields(line)

	switch fields[0] {
	case "F":
		if len(fields) != 4 {
			return bridgeLine{}, fmt.Errorf("invalid frame line %q", line)
		}
		length, err := strconv.ParseUint(fields[1], 10, 32)
		if err != nil {
			return bridgeLine{}, fmt.Errorf("invalid frame length in %q: %w", line, err)
		}
		signal, err := strconv.ParseInt(fields[2], 10, 8)
		if err != nil {
			return bridgeLine{}, fmt.Errorf("invalid signal strength in %q: %w", line, err)
		}
		source, err := ParseMAC(fields[3])
		if err != nil {
			return bridgeLine{}, fmt.Errorf("invalid transmitter in %q: %w", line, err)
		}
		return bridgeLine{kind: frameLine, event: Event{
			Length:    uint32(length),
			SignalDBM: int8(signal),
			Source:    source,
			Valid:     true,
		}}, nil
	case "S":
		if len(fields) != 2 {
			return bridgeLine{}, fmt.Errorf("invalid short frame line %q", line)
		}
		length, err := strconv.ParseUint(fields[1], 10, 32)
		if err != nil {
			return bridgeLine{}, fmt.Errorf("invalid frame length in %q: %w", line, err)
		}
		return bridgeLine{kind: frameLine, event: Event{
			Length:    uint32(length),
			SignalDBM: UnknownSignal,
		}}, nil
	case "OK", "ERR":
		if len(fields) < 2 {
			return bridgeLine{}, fmt.Errorf("invalid acknowledgement %q", line)
		}
		channel, err := strconv.Atoi(fields[1])
		if err != nil {
			return bridgeLine{}, fmt.Errorf("invalid channel in %q: %w", line, err)
		}
		if fields[0] == "OK" {
			return bridgeLine{kind: okLine, channel: channel}, nil
		}
		return bridgeLine{kind: errLine, channel: channel, message: strings.Join(fields[2:], " ")}, nil
	default:
		return bridgeLine{}, fmt.Errorf("unknown message from sniffer: %q", line)
	}
}

// streamConn transports the bridge protocol over a plain byte stream, one message per line.
type streamConn struct {
	stream io.ReadWriteCloser
	reader *bufio.Reader
}

func newStreamConn(stream io.ReadWriteCloser) *streamConn {
	return &streamConn{
		stream: stream,
		reader: bufio.NewReader(stream),
	}
}

func (c *streamConn) ReadMessage() (int, []byte, error) {
	line, err := c.reader.ReadBytes('\n')
	if len(line) > 0 {
		return websocket.TextMessage, line, nil
	}
	return 0, nil, err
}

func (c *streamConn) WriteMessage(_ int, data []byte) error {
	_, err := c.stream.Write(data)
	return err
}

func (c *streamConn) Close() error {
	return c.stream.Close()
}
