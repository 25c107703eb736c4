package socketcan

import (
	"sync"

	sockcan "github.com/brutella/can"
	can "github.com/kbot-tools/actuatorctl/pkg/can"
	log "github.com/sirupsen/logrus"
)

// Socketcan bus backed by https://github.com/brutella/can.
// brutella/can opens a raw socket without kernel filters and does not
// report own frames, so every frame is filtered in user space by the
// bus manager. Use "socketcanv2" when kernel filtering is wanted.
// The interface is expected to be up, see pkg/iface for bring up.

func init() {
	can.RegisterInterface("socketcan", NewSocketCanBus)
}

type SocketcanBus struct {
	bus        *sockcan.Bus
	channel    string
	logger     *log.Entry
	mu         sync.Mutex
	connected  bool
	rxCallback can.FrameListener
	done       chan struct{}
}

// Start publishing received frames. Calling Connect on a connected bus
// is a no-op.
func (s *SocketcanBus) Connect(...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected {
		return nil
	}
	s.connected = true
	s.done = make(chan struct{})
	go s.receive(s.done)
	s.logger.Debug("reception started")
	return nil
}

func (s *SocketcanBus) receive(done chan struct{}) {
	defer close(done)
	err := s.bus.ConnectAndPublish()
	s.mu.Lock()
	stopped := !s.connected
	s.connected = false
	s.mu.Unlock()
	if stopped {
		s.logger.Debug("exiting CAN bus reception, closed")
		return
	}
	s.logger.Warnf("exiting CAN bus reception : %v", err)
}

// Close the socket and wait for the reception goroutine to exit
func (s *SocketcanBus) Disconnect() error {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return nil
	}
	s.connected = false
	done := s.done
	s.mu.Unlock()
	err := s.bus.Disconnect()
	<-done
	return err
}

func (s *SocketcanBus) Send(frame can.Frame) error {
	s.mu.Lock()
	connected := s.connected
	s.mu.Unlock()
	if !connected {
		return can.ErrNotConnected
	}
	return s.bus.Publish(
		sockcan.Frame{
			ID:     frame.ID,
			Length: frame.DLC,
			Flags:  frame.Flags,
			Data:   frame.Data,
		})
}

// Only one listener is kept, a new subscription replaces the previous one
func (s *SocketcanBus) Subscribe(rxCallback can.FrameListener) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rxCallback = rxCallback
	return nil
}

// brutella/can specific "Handle" implementation
func (s *SocketcanBus) Handle(frame sockcan.Frame) {
	s.mu.Lock()
	rxCallback := s.rxCallback
	s.mu.Unlock()
	if rxCallback == nil {
		return
	}
	rxCallback.Handle(can.Frame{ID: frame.ID, DLC: frame.Length, Flags: frame.Flags, Data: frame.Data})
}

// The brutella handler list is only written here, before reception starts
func newBus(bus *sockcan.Bus, channel string) *SocketcanBus {
	s := &SocketcanBus{
		bus:     bus,
		channel: channel,
		logger:  log.WithField("service", "[CAN]").WithField("channel", channel),
	}
	bus.Subscribe(s)
	return s
}

func NewSocketCanBus(name string) (can.Bus, error) {
	bus, err := sockcan.NewBusForInterfaceWithName(name)
	if err != nil {
		return nil, err
	}
	return newBus(bus, name), nil
}
