package virtual

import (
	"errors"
	"sync"
	"sync/atomic"

	can "github.com/kbot-tools/actuatorctl/pkg/can"
	log "github.com/sirupsen/logrus"
)

// Virtual CAN bus implementation, in process, primarily used for testing
// and dry runs. Every bus created with the same channel name shares
// the same broadcast domain, like interfaces wired to one physical bus.

func init() {
	can.RegisterInterface("virtual", NewVirtualCanBus)
	can.RegisterInterface("virtualcan", NewVirtualCanBus)
}

const rxQueueSize = 256

var ErrClosed = errors.New("virtual bus is not connected")

type hub struct {
	mu    sync.Mutex
	buses map[*Bus]struct{}
}

var (
	hubsMu sync.Mutex
	hubs   = make(map[string]*hub)
)

func getHub(channel string) *hub {
	hubsMu.Lock()
	defer hubsMu.Unlock()
	h, ok := hubs[channel]
	if !ok {
		h = &hub{buses: make(map[*Bus]struct{})}
		hubs[channel] = h
	}
	return h
}

func (h *hub) broadcast(from *Bus, frame can.Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for bus := range h.buses {
		if bus == from && !bus.receiveOwn.Load() {
			continue
		}
		bus.enqueue(frame)
	}
}

type Bus struct {
	logger       *log.Entry
	mu           sync.Mutex
	channel      string
	hub          *hub
	receiveOwn   atomic.Bool
	framehandler can.FrameListener
	rx           chan can.Frame
	stopChan     chan struct{}
	wg           sync.WaitGroup
	isRunning    bool
}

func NewVirtualCanBus(channel string) (can.Bus, error) {
	return &Bus{
		channel: channel,
		hub:     getHub(channel),
		logger:  log.WithField("service", "[VCAN]").WithField("channel", channel),
	}, nil
}

// "Connect" to the shared channel
func (b *Bus) Connect(...any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.isRunning {
		return nil
	}
	b.rx = make(chan can.Frame, rxQueueSize)
	b.stopChan = make(chan struct{})
	b.isRunning = true
	b.wg.Add(1)
	go b.handleReception(b.rx, b.stopChan)

	b.hub.mu.Lock()
	b.hub.buses[b] = struct{}{}
	b.hub.mu.Unlock()
	return nil
}

// "Disconnect" from the shared channel
func (b *Bus) Disconnect() error {
	b.hub.mu.Lock()
	delete(b.hub.buses, b)
	b.hub.mu.Unlock()

	b.mu.Lock()
	if !b.isRunning {
		b.mu.Unlock()
		return nil
	}
	b.isRunning = false
	close(b.stopChan)
	b.mu.Unlock()
	b.wg.Wait()
	return nil
}

// "Send" implementation of Bus interface
func (b *Bus) Send(frame can.Frame) error {
	b.mu.Lock()
	running := b.isRunning
	b.mu.Unlock()
	if !running {
		return ErrClosed
	}
	b.hub.broadcast(b, frame)
	return nil
}

// "Subscribe" implementation of Bus interface
func (b *Bus) Subscribe(framehandler can.FrameListener) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.framehandler = framehandler
	return nil
}

func (b *Bus) SetReceiveOwn(receiveOwn bool) {
	b.receiveOwn.Store(receiveOwn)
}

func (b *Bus) enqueue(frame can.Frame) {
	select {
	case b.rx <- frame:
	default:
		b.logger.Warnf("rx queue full, dropped %v", frame)
	}
}

// Handle incoming traffic
func (b *Bus) handleReception(rx <-chan can.Frame, stop <-chan struct{}) {
	defer b.wg.Done()
	for {
		select {
		case <-stop:
			return
		case frame := <-rx:
			b.mu.Lock()
			handler := b.framehandler
			b.mu.Unlock()
			if handler != nil {
				handler.Handle(frame)
			}
		}
	}
}
