package sim

import (
	"sync"
	"time"

	can "github.com/kbot-tools/actuatorctl/pkg/can"
	"github.com/kbot-tools/actuatorctl/pkg/powerboard"
	log "github.com/sirupsen/logrus"
)

// PowerBoard answers queries and auto reports like the power board
type PowerBoard struct {
	mu         sync.Mutex
	bus        can.Bus
	logger     *log.Entry
	status     powerboard.Status
	power      powerboard.PowerData
	control    powerboard.Control
	period     time.Duration
	stopReport chan struct{}
}

// NewPowerBoard subscribes to bus, auto reports are sent every period
func NewPowerBoard(bus can.Bus, period time.Duration, logger *log.Logger) (*PowerBoard, error) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	b := &PowerBoard{
		bus:    bus,
		period: period,
		logger: logger.WithField("service", "[SIM]"),
		status: powerboard.Status{BatteryVoltage: 48, MotorVoltage: 47.5, Current: 1.2},
	}
	if err := bus.Subscribe(b); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *PowerBoard) Set(status powerboard.Status, power powerboard.PowerData) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = status
	b.power = power
}

// Last control received
func (b *PowerBoard) Control() powerboard.Control {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.control
}

func (b *PowerBoard) report() {
	b.mu.Lock()
	power, status := b.power.Frame(), b.status.Frame()
	b.mu.Unlock()
	b.send(power)
	b.send(status)
}

func (b *PowerBoard) send(frame can.Frame) {
	if err := b.bus.Send(frame); err != nil {
		b.logger.Warnf("board frame %v not sent : %v", frame, err)
	}
}

// Implements the FrameListener interface
func (b *PowerBoard) Handle(frame can.Frame) {
	t, ok := powerboard.ParseFrameId(frame)
	if !ok {
		return
	}
	switch t {
	case powerboard.MsgQuery:
		b.report()
	case powerboard.MsgControl:
		control := powerboard.DecodeControl(frame)
		b.mu.Lock()
		b.control = control
		if control.ClearFaults {
			b.status.Faults = 0
		}
		switch {
		case control.AutoReport && b.stopReport == nil:
			b.stopReport = make(chan struct{})
			go b.autoReport(b.stopReport)
		case !control.AutoReport && b.stopReport != nil:
			close(b.stopReport)
			b.stopReport = nil
		}
		b.mu.Unlock()
	}
}

func (b *PowerBoard) autoReport(stop <-chan struct{}) {
	ticker := time.NewTicker(b.period)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			b.report()
		}
	}
}

// Stop auto reporting
func (b *PowerBoard) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopReport != nil {
		close(b.stopReport)
		b.stopReport = nil
	}
}
