package can

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// A hardware acceptance filter, same semantics as socketcan's can_filter :
// a frame is accepted when received_id & Mask == ID & Mask
type Filter struct {
	ID   uint32
	Mask uint32
}

func (f Filter) Match(id uint32) bool {
	return (id^f.ID)&f.Mask == 0
}

// Implemented by bus drivers that can offload filtering to the kernel
type FilterSetter interface {
	SetFilters(filters []Filter) error
}

type subscription struct {
	id       uint64
	filter   Filter
	listener FrameListener
}

// Bus manager is a wrapper around the CAN bus interface
// It dispatches received frames to listeners subscribed with an id/mask pair
// and keeps kernel filters (when supported) in sync with active subscriptions.
type BusManager struct {
	mu            sync.Mutex
	bus           Bus
	logger        *log.Entry
	subscriptions []subscription
	nextId        uint64
	kernelFilters bool
}

// Implements the FrameListener interface
// This handles all received CAN frames from Bus
func (bm *BusManager) Handle(frame Frame) {
	bm.mu.Lock()
	matched := make([]FrameListener, 0, 1)
	for _, sub := range bm.subscriptions {
		if sub.filter.Match(frame.ID) {
			matched = append(matched, sub.listener)
		}
	}
	bm.mu.Unlock()
	for _, listener := range matched {
		listener.Handle(frame)
	}
}

func (bm *BusManager) Bus() Bus {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	return bm.bus
}

// Send a CAN message
// Limited error handling
func (bm *BusManager) Send(frame Frame) error {
	err := bm.bus.Send(frame)
	if err != nil {
		bm.logger.Warnf("send %v failed : %v", frame, err)
		return err
	}
	bm.logger.Debugf("[TX] %v", frame)
	return nil
}

// Subscribe to frames matching ident/mask. The returned function removes
// the subscription, it is safe to call it more than once.
func (bm *BusManager) Subscribe(ident uint32, mask uint32, listener FrameListener) (func(), error) {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	bm.nextId++
	id := bm.nextId
	bm.subscriptions = append(bm.subscriptions, subscription{
		id:       id,
		filter:   Filter{ID: ident, Mask: mask},
		listener: listener,
	})
	if err := bm.syncFiltersLocked(); err != nil {
		bm.removeLocked(id)
		return nil, err
	}
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			bm.mu.Lock()
			defer bm.mu.Unlock()
			bm.removeLocked(id)
			if err := bm.syncFiltersLocked(); err != nil {
				bm.logger.Warnf("failed to update filters : %v", err)
			}
		})
	}
	return cancel, nil
}

// Number of active subscriptions
func (bm *BusManager) Subscriptions() int {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	return len(bm.subscriptions)
}

func (bm *BusManager) removeLocked(id uint64) {
	for i, sub := range bm.subscriptions {
		if sub.id == id {
			bm.subscriptions = append(bm.subscriptions[:i], bm.subscriptions[i+1:]...)
			return
		}
	}
}

func (bm *BusManager) syncFiltersLocked() error {
	if !bm.kernelFilters {
		return nil
	}
	setter, ok := bm.bus.(FilterSetter)
	if !ok {
		return nil
	}
	filters := make([]Filter, 0, len(bm.subscriptions))
	for _, sub := range bm.subscriptions {
		filters = append(filters, sub.filter)
	}
	return setter.SetFilters(filters)
}

// Push subscription filters down to the driver when it supports it
func (bm *BusManager) EnableKernelFilters(enabled bool) error {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	bm.kernelFilters = enabled
	return bm.syncFiltersLocked()
}

// Create a bus manager and register it as the bus frame listener.
// logger can be nil, in which case the standard logrus logger is used.
func NewBusManager(bus Bus, logger *log.Logger) (*BusManager, error) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	bm := &BusManager{
		bus:           bus,
		logger:        logger.WithField("service", "[CAN]"),
		subscriptions: make([]subscription, 0),
	}
	if err := bus.Subscribe(bm); err != nil {
		return nil, err
	}
	return bm, nil
}
