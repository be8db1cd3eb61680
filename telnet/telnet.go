// Package telnet announces the channel activity to telnet clients, in a similar manner as a DX cluster.
package telnet

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ftl/bandwatch/rx"
)

const (
	DefaultBusyThreshold      = 70.0
	DefaultAlertSilencePeriod = 4 * time.Minute

	newConnectionDeadline     = 100 * time.Millisecond
	connectionKeepAlivePeriod = 30 * time.Second
	readBufferSize            = 1024
	messageBufferSize         = 16
)

// Server broadcasts a line per completed sweep and an alert whenever a channel gets busy.
// It implements rx.Reporter.
type Server struct {
	rx.NullReporter

	address  *net.TCPAddr
	listener *net.TCPListener
	station  string
	version  string

	connections []*Connection

	busyThreshold float64
	lastAlerts    map[int]time.Time
	silencePeriod time.Duration
	lastSweep     atomic.Value

	msg    chan []byte
	close  chan struct{}
	closed chan struct{}
}

func NewServer(address string, station string, version string) (*Server, error) {
	result := newServer(station, version)

	localAddress, err := net.ResolveTCPAddr("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve address %s: %w", address, err)
	}
	result.address = localAddress

	listener, err := net.ListenTCP("tcp", result.address)
	if err != nil {
		return nil, err
	}
	result.listener = listener

	go result.run()

	return result, nil
}

func newServer(station string, version string) *Server {
	return &Server{
		station:       station,
		version:       version,
		busyThreshold: DefaultBusyThreshold,
		lastAlerts:    make(map[int]time.Time),
		silencePeriod: DefaultAlertSilencePeriod,
		msg:           make(chan []byte, messageBufferSize),
		close:         make(chan struct{}),
		closed:        make(chan struct{}),
	}
}

func (s *Server) run() {
	defer close(s.closed)
	defer s.listener.Close()
	welcome := fmt.Sprintf("Bandwatch Version %s\n", s.version)

	removeConnections := make([]int, 0, 10)
	for {
		select {
		case <-s.close:
			for _, conn := range s.connections {
				conn.Close()
			}
			return
		case bytes := <-s.msg:
			removeConnections = removeConnections[:0]
			for i, conn := range s.connections {
				_, err := conn.Write(bytes)
				if err != nil {
					log.Printf("found closed connection %s", conn.String())
					removeConnections = append(removeConnections, i)
				}
			}
			if len(s.connections) > 0 && len(s.connections)-len(removeConnections) <= 0 {
				log.Printf("clearing connections")
				clear(s.connections)
				s.connections = s.connections[:0]
				continue
			}

			for i, index := range removeConnections {
				s.removeConnection(index - i)
			}
		default:
			err := s.listener.SetDeadline(time.Now().Add(newConnectionDeadline))
			if err != nil {
				log.Printf("setting the listener deadline failed: %v", err)
				return
			}
			conn, err := s.listener.AcceptTCP()
			if errors.Is(err, os.ErrDeadlineExceeded) {
				// ignore, nobody is calling
				continue
			} else if err != nil {
				log.Println(err)
				continue
			}

			log.Printf("new incoming connection: %v", conn.RemoteAddr())
			conn.SetKeepAlivePeriod(connectionKeepAlivePeriod)
			conn.SetKeepAlive(true)
			connection := NewConnection(conn, welcome, s.command)
			s.connections = append(s.connections, connection)
		}
	}
}

func (s *Server) removeConnection(index int) {
	if index < 0 || index >= len(s.connections) {
		return
	}
	log.Printf("removing connection %s", s.connections[index].String())
	last := len(s.connections) - 1
	if index < last {
		copy(s.connections[index:], s.connections[index+1:])
	}
	s.connections[last] = nil
	s.connections = s.connections[:last]
}

func (s *Server) Stop() {
	select {
	case <-s.closed:
		return
	default:
		close(s.close)
		<-s.closed
	}
}

func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return s.address
	}
	return s.listener.Addr()
}

// SetBusyThreshold must be called before the server receives the first sweep.
func (s *Server) SetBusyThreshold(threshold float64) {
	s.busyThreshold = threshold
}

// SetSilencePeriod must be called before the server receives the first sweep.
func (s *Server) SetSilencePeriod(silencePeriod time.Duration) {
	s.silencePeriod = silencePeriod
}

func (s *Server) SweepCompleted(summary rx.Summary) {
	s.Announce(summary, time.Now())
}

// Announce broadcasts the sweep line and the alerts for all channels that became busy.
// Messages are dropped when the connections cannot keep up.
func (s *Server) Announce(summary rx.Summary, timestamp time.Time) {
	sweep := s.formatSweepMessage(summary, timestamp)
	s.lastSweep.Store(sweep)
	s.broadcast(sweep)

	for _, channel := range summary.Channels {
		if !channel.HasData || channel.Smoothed < s.busyThreshold {
			continue
		}
		if !s.shouldAlert(channel.Channel, timestamp) {
			continue
		}
		msg := fmt.Sprintf("busy %d tx %s", channel.Unique, humanize.Bytes(uint64(channel.Bytes)))
		s.broadcast(s.formatAlertMessage(channel.Channel, channel.Smoothed, msg, timestamp))
		s.lastAlerts[channel.Channel] = timestamp
	}
}

func (s *Server) broadcast(msg string) {
	select {
	case s.msg <- []byte(msg):
	default:
		log.Printf("telnet message dropped")
	}
}

func (s *Server) shouldAlert(channel int, timestamp time.Time) bool {
	lastAlertTime, ok := s.lastAlerts[channel]
	if !ok {
		return true
	}
	return timestamp.Sub(lastAlertTime) > s.silencePeriod
}

func (s *Server) prefix() string {
	return fmt.Sprintf("BW de %s:", s.station)
}

func (s *Server) formatAlertMessage(channel int, score float64, msg string, timestamp time.Time) string {
	return fmt.Sprintf("%-16sch %2d  % 5.1f  %-31s%-4sz\n", s.prefix(), channel, score, msg, timestamp.Format("1504"))
}

func (s *Server) formatSweepMessage(summary rx.Summary, timestamp time.Time) string {
	return fmt.Sprintf("%-16ssweep %d  activity %.0f  top %s  %sz\n", s.prefix(), summary.Sweeps, summary.GlobalActivity, rx.FormatRanking(summary.Top), timestamp.Format("1504"))
}

func (s *Server) command(cmd string) string {
	switch strings.ToLower(strings.TrimSpace(cmd)) {
	case "":
		return ""
	case "status":
		sweep, ok := s.lastSweep.Load().(string)
		if !ok {
			return "no sweep yet\n"
		}
		return sweep
	case "help":
		return "commands: status, help\n"
	default:
		return fmt.Sprintf("unknown command %q\n", cmd)
	}
}

var ErrClosed = errors.New("connection already closed")

type Prompt struct {
	Question string
	Answer   func(string) (string, *Prompt)
}

type Connection struct {
	conn     io.ReadWriteCloser
	msg      chan []byte
	input    chan []byte
	commands func(string) string

	currentPrompt *Prompt
	currentAnswer string

	close  chan struct{}
	closed chan struct{}

	user string
}

func NewConnection(conn io.ReadWriteCloser, welcome string, commands func(string) string) *Connection {
	result := &Connection{
		conn:     conn,
		msg:      make(chan []byte, 1),
		input:    make(chan []byte, 1),
		commands: commands,

		currentAnswer: "",

		close:  make(chan struct{}),
		closed: make(chan struct{}),
	}

	result.writeAll([]byte(welcome))

	go result.run()
	go result.readLoop()

	return result
}

func (c *Connection) run() {
	defer close(c.closed)
	defer func() {
		err := c.conn.Close()
		if err != nil {
			log.Printf("close %s: %v", c.user, err)
		}
	}()

	commandPrompt := &Prompt{
		Question: "",
	}
	commandPrompt.Answer = func(answer string) (string, *Prompt) {
		if c.commands == nil {
			return "", commandPrompt
		}
		return c.commands(answer), commandPrompt
	}
	loginPrompt := &Prompt{
		Question: "login: ",
		Answer: func(answer string) (string, *Prompt) {
			c.user = answer
			return fmt.Sprintf("welcome %s\n", c.user), commandPrompt
		},
	}

	err := c.startPrompt(loginPrompt)
	if err != nil {
		log.Printf("%s: %v", c.user, err)
	}

	for {
		select {
		case <-c.close:
			return
		case bytes := <-c.msg:
			err := c.writeAll(bytes)
			if err != nil {
				log.Printf("%s: %v", c.user, err)
				return
			}
		case bytes, open := <-c.input:
			if !open {
				return
			}
			for i := 0; i < len(bytes); i++ {
				response, nextPrompt := c.parseAnswerByte(bytes[i])
				if response != "" {
					err := c.writeAll([]byte(response))
					if err != nil {
						log.Printf("%s: %v", c.user, err)
						return
					}
				}

				err := c.startPrompt(nextPrompt)
				if err != nil {
					log.Printf("%s: %v", c.user, err)
					continue
				}
			}
		}
	}
}

func (c *Connection) readLoop() {
	defer close(c.input)
	readBuffer := make([]byte, readBufferSize)
	for {
		n, err := c.conn.Read(readBuffer)
		if errors.Is(err, os.ErrClosed) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
			return
		} else if err != nil {
			log.Printf("%s: %v", c.user, err)
			return
		}

		if n == 0 {
			continue
		}

		bytes := make([]byte, n)
		copy(bytes, readBuffer[:n])
		select {
		case c.input <- bytes:
		case <-c.closed:
			return
		}
	}
}

func (c *Connection) writeAll(bytes []byte) error {
	buffer := bytes
	for len(buffer) > 0 {
		n, err := c.conn.Write(buffer)
		if err != nil {
			return err
		}
		buffer = buffer[n:]
	}
	return nil
}

func (c *Connection) startPrompt(prompt *Prompt) error {
	if prompt == nil {
		return nil
	}
	c.currentPrompt = prompt
	return c.writeAll([]byte(prompt.Question))
}

func (c *Connection) parseAnswerByte(answerByte byte) (string, *Prompt) {
	switch answerByte {
	case '\r':
		return "", nil
	case '\n':
		response, nextPrompt := c.currentPrompt.Answer(c.currentAnswer)
		c.currentAnswer = ""
		return response, nextPrompt
	default:
		c.currentAnswer += string(answerByte)
		return "", nil
	}
}

func (c *Connection) Close() {
	select {
	case <-c.closed:
		return
	default:
		close(c.close)
		<-c.closed
	}
}

func (c *Connection) Write(bytes []byte) (int, error) {
	select {
	case <-c.closed:
		return 0, ErrClosed
	case c.msg <- bytes:
		return len(bytes), nil
	}
}

func (c *Connection) String() string {
	return c.user
}
