package scope

import (
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ftl/bandwatch/rx"
)

// ScopeServer is scope that serves frames over a network connection to remote clients.
// It implements rx.Reporter and sends one frame per completed sweep.
type ScopeServer struct {
	rx.NullReporter

	address string
	stream  StreamID

	server     *grpcServer
	serverLock *sync.Mutex
}

// NewScopeServer creates a new scope server that listens on the given address.
func NewScopeServer(address string) *ScopeServer {
	return &ScopeServer{
		address:    address,
		stream:     StreamID(uuid.NewString()),
		server:     nil,
		serverLock: &sync.Mutex{},
	}
}

// Stream is the ID of the stream of frames provided by this server.
func (s *ScopeServer) Stream() StreamID {
	return s.stream
}

func (s *ScopeServer) Active() bool {
	s.serverLock.Lock()
	defer s.serverLock.Unlock()
	return s.server != nil
}

func (s *ScopeServer) Addr() net.Addr {
	s.serverLock.Lock()
	defer s.serverLock.Unlock()
	if s.server != nil {
		return s.server.Addr()
	}
	return nil
}

func (s *ScopeServer) Start() error {
	s.serverLock.Lock()
	defer s.serverLock.Unlock()
	if s.server != nil {
		return fmt.Errorf("scope was already started")
	}

	server, err := newGRPCServer(s.address, defaultOutBufferSize)
	if err != nil {
		return err
	}
	err = server.listen()
	if err != nil {
		return err
	}
	s.server = server

	go func() {
		err := server.serve()
		if err != nil {
			log.Printf("Scope server failed: %v", err)
		}

		s.serverLock.Lock()
		if s.server == server {
			s.server = nil
		}
		s.serverLock.Unlock()
	}()

	return nil
}

func (s *ScopeServer) Stop() {
	s.serverLock.Lock()
	server := s.server
	s.server = nil
	s.serverLock.Unlock()

	if server != nil {
		server.Stop()
	}
}

func (s *ScopeServer) ShowFrame(frame *Frame) {
	s.serverLock.Lock()
	server := s.server
	s.serverLock.Unlock()
	if server == nil {
		return
	}

	msg, err := frame.toStruct()
	if err != nil {
		log.Print(err)
		return
	}
	server.SendFrame(msg)
}

func (s *ScopeServer) SweepCompleted(summary rx.Summary) {
	s.ShowFrame(NewFrame(s.stream, time.Now(), summary))
}
