package scope

import (
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	defaultOutBufferSize = 10

	scopeServiceName  = "bandwatch.scope.Scope"
	getFramesMethod   = "GetFrames"
	getFramesFullName = "/" + scopeServiceName + "/" + getFramesMethod
)

// scopeService is the server side of the scope service. The frames are transported as google.protobuf.Struct.
type scopeService interface {
	GetFrames(request *emptypb.Empty, stream grpc.ServerStream) error
}

var scopeServiceDesc = grpc.ServiceDesc{
	ServiceName: scopeServiceName,
	HandlerType: (*scopeService)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    getFramesMethod,
			Handler:       getFramesHandler,
			ServerStreams: true,
		},
	},
	Metadata: "bandwatch/scope.proto",
}

func getFramesHandler(srv any, stream grpc.ServerStream) error {
	request := new(emptypb.Empty)
	if err := stream.RecvMsg(request); err != nil {
		return err
	}
	return srv.(scopeService).GetFrames(request, stream)
}

type grpcServer struct {
	address  *net.TCPAddr
	listener net.Listener
	server   *grpc.Server

	outBufferSize int
	in            chan *structpb.Struct
	register      chan chan *structpb.Struct
	out           []chan *structpb.Struct
	shutdown      chan struct{}
}

func newGRPCServer(address string, outBufferSize int) (*grpcServer, error) {
	result := &grpcServer{
		outBufferSize: outBufferSize,
		in:            make(chan *structpb.Struct),
		register:      make(chan chan *structpb.Struct),
		shutdown:      make(chan struct{}),
	}

	localAddress, err := net.ResolveTCPAddr("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve address %s: %w", address, err)
	}
	result.address = localAddress

	result.server = grpc.NewServer()
	result.server.RegisterService(&scopeServiceDesc, result)

	return result, nil
}

func (s *grpcServer) run() {
	for {
		select {
		case <-s.shutdown:
			for _, out := range s.out {
				close(out)
			}
			s.out = nil
			return
		case out := <-s.register:
			s.addStream(out)
		case frame := <-s.in:
			s.sendFrameToStreams(frame)
		}
	}
}

func (s *grpcServer) addStream(out chan *structpb.Struct) {
	s.out = append(s.out, out)
}

func (s *grpcServer) removeStream(i int) {
	if len(s.out) == 1 {
		s.out = nil
		return
	}
	s.out[i] = s.out[len(s.out)-1]
	s.out = s.out[:len(s.out)-1]
}

// sendFrameToStreams closes the streams that cannot keep up.
func (s *grpcServer) sendFrameToStreams(frame *structpb.Struct) {
	for i := len(s.out) - 1; i >= 0; i-- {
		select {
		case s.out[i] <- frame:
		default:
			close(s.out[i])
			s.removeStream(i)
		}
	}
}

func (s *grpcServer) getFrameStream() chan *structpb.Struct {
	result := make(chan *structpb.Struct, s.outBufferSize)
	select {
	case s.register <- result:
	case <-s.shutdown:
		close(result)
	}
	return result
}

// listen opens the listener, afterwards Addr is available.
func (s *grpcServer) listen() error {
	if s.listener != nil {
		return fmt.Errorf("server already listening")
	}

	listener, err := net.Listen("tcp", s.address.String())
	if err != nil {
		return fmt.Errorf("cannot listen on address %s: %w", s.address, err)
	}
	s.listener = listener
	return nil
}

// serve blocks until the server is stopped.
func (s *grpcServer) serve() error {
	go s.run()

	err := s.server.Serve(s.listener)
	close(s.shutdown)
	return err
}

func (s *grpcServer) Stop() {
	s.server.Stop()
}

func (s *grpcServer) Addr() net.Addr {
	if s.listener == nil {
		return s.address
	}
	return s.listener.Addr()
}

func (s *grpcServer) GetFrames(_ *emptypb.Empty, stream grpc.ServerStream) error {
	frames := s.getFrameStream()
	for {
		select {
		case frame, open := <-frames:
			if !open {
				return nil
			}
			if err := stream.SendMsg(frame); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

func (s *grpcServer) SendFrame(frame *structpb.Struct) {
	select {
	case s.in <- frame:
	case <-s.shutdown:
	}
}
