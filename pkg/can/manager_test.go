package can

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type loopbackBus struct {
	mu       sync.Mutex
	listener FrameListener
	filters  []Filter
	sent     []Frame
}

func (b *loopbackBus) Connect(...any) error {
	return nil
}

func (b *loopbackBus) Disconnect() error {
	return nil
}

func (b *loopbackBus) Send(frame Frame) error {
	b.mu.Lock()
	b.sent = append(b.sent, frame)
	b.mu.Unlock()
	return nil
}

func (b *loopbackBus) Subscribe(listener FrameListener) error {
	b.listener = listener
	return nil
}

func (b *loopbackBus) SetFilters(filters []Filter) error {
	b.filters = filters
	return nil
}

func TestFilterMatch(t *testing.T) {
	filter := Filter{ID: CanEffFlag | 0x1100_0B00, Mask: CanEffFlag | 0x1F00_FF00}
	// Status bits and host byte are ignored
	assert.True(t, filter.Match(CanEffFlag|0x1100_0BFD))
	assert.True(t, filter.Match(CanEffFlag|0x11A5_0B00))
	// Wrong actuator
	assert.False(t, filter.Match(CanEffFlag|0x1100_0CFD))
	// Standard frame with the same low bits
	assert.False(t, filter.Match(0x1100_0BFD))
}

func TestBusManagerDispatch(t *testing.T) {
	bus := &loopbackBus{}
	bm, err := NewBusManager(bus, nil)
	assert.Nil(t, err)
	assert.NotNil(t, bus.listener)

	received := make([]Frame, 0)
	cancel, err := bm.Subscribe(CanEffFlag|0x0200_0B00, CanEffFlag|0x1F00_FF00, FrameListenerFunc(func(frame Frame) {
		received = append(received, frame)
	}))
	assert.Nil(t, err)
	assert.Equal(t, 1, bm.Subscriptions())

	bus.listener.Handle(NewExtendedFrame(0x0280_0BFD, [8]byte{}))
	bus.listener.Handle(NewExtendedFrame(0x0280_0CFD, [8]byte{}))
	assert.Len(t, received, 1)

	cancel()
	cancel()
	assert.Equal(t, 0, bm.Subscriptions())
	bus.listener.Handle(NewExtendedFrame(0x0280_0BFD, [8]byte{}))
	assert.Len(t, received, 1)
}

func TestBusManagerKernelFilters(t *testing.T) {
	bus := &loopbackBus{}
	bm, _ := NewBusManager(bus, nil)
	assert.Nil(t, bm.EnableKernelFilters(true))
	assert.Len(t, bus.filters, 0)

	cancel, err := bm.Subscribe(CanEffFlag|0x1100_0B00, CanEffFlag|0x1F00_FF00, FrameListenerFunc(func(Frame) {}))
	assert.Nil(t, err)
	assert.Equal(t, []Filter{{ID: CanEffFlag | 0x1100_0B00, Mask: CanEffFlag | 0x1F00_FF00}}, bus.filters)
	cancel()
	assert.Len(t, bus.filters, 0)
}

func TestNewBusUnsupported(t *testing.T) {
	_, err := NewBus("does-not-exist", "can0")
	assert.ErrorIs(t, err, ErrUnsupportedInterface)
}

func TestFrameString(t *testing.T) {
	frame := NewExtendedFrame(0x1200FD0B, [8]byte{0x06, 0x70, 0, 0, 0xA0, 0x40, 0, 0})
	assert.Equal(t, "1200FD0B#06 70 00 00 A0 40 00 00", frame.String())
}
