package socketcan

import (
	"io"
	"sync"
	"testing"
	"time"

	sockcan "github.com/brutella/can"
	can "github.com/kbot-tools/actuatorctl/pkg/can"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// In memory socket, frames pushed on rx are read by the bus
type fakeSocket struct {
	rx      chan sockcan.Frame
	mu      sync.Mutex
	written []sockcan.Frame
	closed  chan struct{}
	once    sync.Once
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{rx: make(chan sockcan.Frame, 8), closed: make(chan struct{})}
}

func (f *fakeSocket) Read(b []byte) (int, error)  { return 0, io.ErrUnexpectedEOF }
func (f *fakeSocket) Write(b []byte) (int, error) { return len(b), nil }

func (f *fakeSocket) ReadFrame(frame *sockcan.Frame) error {
	select {
	case <-f.closed:
		return io.ErrClosedPipe
	case *frame = <-f.rx:
		return nil
	}
}

func (f *fakeSocket) WriteFrame(frame sockcan.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, frame)
	return nil
}

func (f *fakeSocket) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func TestSendRequiresConnect(t *testing.T) {
	socket := newFakeSocket()
	bus := newBus(sockcan.NewBus(socket), "can0")
	frame := can.NewExtendedFrame(0x0011FD2D, [8]byte{1, 2})

	assert.ErrorIs(t, bus.Send(frame), can.ErrNotConnected)

	require.NoError(t, bus.Connect())
	require.NoError(t, bus.Connect())
	require.NoError(t, bus.Send(frame))
	require.NoError(t, bus.Disconnect())
	assert.ErrorIs(t, bus.Send(frame), can.ErrNotConnected)
	// Second disconnect is a no-op
	assert.NoError(t, bus.Disconnect())

	socket.mu.Lock()
	defer socket.mu.Unlock()
	require.Len(t, socket.written, 1)
	assert.Equal(t, frame.ID, socket.written[0].ID)
	assert.EqualValues(t, 8, socket.written[0].Length)
	assert.Equal(t, frame.Data, socket.written[0].Data)
}

func TestReceivedFramesReachListener(t *testing.T) {
	socket := newFakeSocket()
	bus := newBus(sockcan.NewBus(socket), "can0")
	received := make(chan can.Frame, 4)
	first := can.FrameListenerFunc(func(frame can.Frame) { received <- frame })
	require.NoError(t, bus.Subscribe(first))
	require.NoError(t, bus.Subscribe(first))
	require.NoError(t, bus.Connect())
	defer bus.Disconnect()

	socket.rx <- sockcan.Frame{ID: 0x91001FFD, Length: 8, Data: [8]byte{0x70, 0x0B}}
	select {
	case frame := <-received:
		assert.EqualValues(t, 0x91001FFD, frame.ID)
		assert.EqualValues(t, 8, frame.DLC)
		assert.Equal(t, byte(0x70), frame.Data[0])
	case <-time.After(time.Second):
		t.Fatal("frame not delivered")
	}
	// Subscribing twice must not deliver the frame twice
	assert.Empty(t, received)
}
