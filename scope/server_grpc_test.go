package scope

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

func startTestServer(t *testing.T, outBufferSize int) (*grpcServer, chan error) {
	t.Helper()
	server, err := newGRPCServer("localhost:", outBufferSize)
	require.NoError(t, err)
	require.NoError(t, server.listen())

	serverResult := make(chan error, 1)
	go func() {
		serverResult <- server.serve()
	}()
	return server, serverResult
}

func testFrame(t *testing.T, stream string) *structpb.Struct {
	t.Helper()
	result, err := structpb.NewStruct(map[string]any{"stream_id": stream})
	require.NoError(t, err)
	return result
}

func TestStartStopGRPCServer(t *testing.T) {
	server, serverResult := startTestServer(t, defaultOutBufferSize)

	time.Sleep(10 * time.Millisecond)
	server.Stop()
	assert.NoError(t, <-serverResult)

	server.SendFrame(testFrame(t, "after shutdown"))
}

func TestCloseUnresponsiveStreams(t *testing.T) {
	server, _ := startTestServer(t, 1)
	defer server.Stop()

	frames := server.getFrameStream()

	frame1 := testFrame(t, "frame1")
	server.SendFrame(frame1)

	frame2 := testFrame(t, "frame2")
	server.SendFrame(frame2)

	frame, open := <-frames
	assert.Same(t, frame1, frame)
	assert.True(t, open)

	frame, open = <-frames
	assert.Nil(t, frame)
	assert.False(t, open)
}

func TestSendFramesToClient(t *testing.T) {
	server, _ := startTestServer(t, 1)
	defer server.Stop()

	conn, err := grpc.NewClient(server.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	stream, err := conn.NewStream(context.Background(), &scopeServiceDesc.Streams[0], getFramesFullName)
	require.NoError(t, err)
	require.NoError(t, stream.SendMsg(&emptypb.Empty{}))
	require.NoError(t, stream.CloseSend())

	frames := make([]*structpb.Struct, 0)
	framesReceived := &sync.WaitGroup{}
	framesReceived.Add(2)
	go func() {
		for i := 0; i < 2; i++ {
			frame := new(structpb.Struct)
			err := stream.RecvMsg(frame)
			if !assert.NoError(t, err) {
				framesReceived.Done()
				continue
			}
			frames = append(frames, frame)
			framesReceived.Done()
		}
	}()
	time.Sleep(100 * time.Millisecond)

	server.SendFrame(testFrame(t, "frame1"))
	time.Sleep(10 * time.Millisecond)
	server.SendFrame(testFrame(t, "frame2"))

	framesReceived.Wait()
	require.Len(t, frames, 2)
	assert.Equal(t, "frame1", frames[0].GetFields()["stream_id"].GetStringValue())
	assert.Equal(t, "frame2", frames[1].GetFields()["stream_id"].GetStringValue())
}
