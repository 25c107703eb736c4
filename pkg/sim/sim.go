// Package sim simulates actuators answering on a CAN bus.
// It is used to exercise the engine without hardware and by the CLI dry run.
package sim

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/kbot-tools/actuatorctl/pkg/actuator"
	can "github.com/kbot-tools/actuatorctl/pkg/can"
	"github.com/kbot-tools/actuatorctl/pkg/param"
	"github.com/kbot-tools/actuatorctl/pkg/protocol"
	log "github.com/sirupsen/logrus"
)

// Actuator is the simulated state of one actuator
type Actuator struct {
	Id     actuator.Id
	Uid    uint64
	Params map[uint16]float32
	Status protocol.Status
	// Do not answer at all
	Silent bool
	// Send a truncated copy of every answer before the real one
	Malformed bool
	// Answer after this delay
	Delay time.Duration
}

func NewActuator(id actuator.Id) *Actuator {
	return &Actuator{
		Id:     id,
		Uid:    0x0000_ac00_0000_0000 | uint64(id),
		Params: make(map[uint16]float32),
		Status: protocol.Status{Temperature: 25, Mode: protocol.ModeRun},
	}
}

// Responder answers requests for the actuators attached to it
type Responder struct {
	mu        sync.Mutex
	bus       can.Bus
	logger    *log.Entry
	catalog   *param.Catalog
	actuators map[actuator.Id]*Actuator
	received  []can.Frame
}

// NewResponder subscribes to bus. catalog gives the parameter types and
// defaults, it can be nil in which case every parameter is a float.
func NewResponder(bus can.Bus, catalog *param.Catalog, logger *log.Logger) (*Responder, error) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	r := &Responder{
		bus:       bus,
		logger:    logger.WithField("service", "[SIM]"),
		catalog:   catalog,
		actuators: make(map[actuator.Id]*Actuator),
	}
	if err := bus.Subscribe(r); err != nil {
		return nil, err
	}
	return r, nil
}

// Attach an actuator, parameters missing from its table take the catalog defaults
func (r *Responder) Attach(a *Actuator) *Actuator {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.catalog != nil {
		for _, d := range r.catalog.Descriptors() {
			if _, ok := a.Params[d.Code]; !ok {
				a.Params[d.Code] = float32(d.Default)
			}
		}
	}
	r.actuators[a.Id] = a
	return a
}

// Get a snapshot of the actuator currently answering on id
func (r *Responder) Actuator(id actuator.Id) (Actuator, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.actuators[id]
	if !ok {
		return Actuator{}, false
	}
	snapshot := *a
	snapshot.Params = make(map[uint16]float32, len(a.Params))
	for code, v := range a.Params {
		snapshot.Params[code] = v
	}
	return snapshot, true
}

// Requests received so far, in order
func (r *Responder) Received() []can.Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	received := make([]can.Frame, len(r.received))
	copy(received, r.received)
	return received
}

func (r *Responder) isUint8(code uint16) bool {
	if r.catalog == nil {
		return false
	}
	d, err := r.catalog.Lookup(code)
	return err == nil && d.Type == param.Uint8
}

// Implements the FrameListener interface
func (r *Responder) Handle(frame can.Frame) {
	if !frame.IsExtended() || frame.DLC != 8 {
		return
	}
	r.mu.Lock()
	r.received = append(r.received, frame)
	answer, a := r.process(frame)
	var delay time.Duration
	malformed := false
	if a != nil {
		delay = a.Delay
		malformed = a.Malformed
	}
	r.mu.Unlock()
	if answer == nil {
		return
	}
	send := func() {
		if malformed {
			truncated := *answer
			truncated.DLC = 4
			r.send(truncated)
		}
		r.send(*answer)
	}
	if delay > 0 {
		time.AfterFunc(delay, send)
		return
	}
	send()
}

func (r *Responder) send(frame can.Frame) {
	if err := r.bus.Send(frame); err != nil {
		r.logger.Warnf("answer %v not sent : %v", frame, err)
	}
}

// Apply a request to the simulated state and build the answer, if any
func (r *Responder) process(frame can.Frame) (*can.Frame, *Actuator) {
	ident := frame.Ident()
	if uint8(ident>>24) == uint8(protocol.OpReassignId) {
		oldId := actuator.Id(ident)
		newId := actuator.Id(ident >> 16)
		a, ok := r.actuators[oldId]
		if !ok || a.Silent {
			return nil, a
		}
		delete(r.actuators, oldId)
		a.Id = newId
		r.actuators[newId] = a
		answer := protocol.EncodeDeviceIdResponse(newId, a.Uid)
		return &answer, a
	}

	op := protocol.Opcode(ident >> 16)
	host := uint8(ident >> 8)
	a, ok := r.actuators[actuator.Id(ident)]
	if !ok || a.Silent {
		return nil, a
	}
	var answer can.Frame
	switch op {
	case protocol.OpReadParam:
		code := protocol.DecodeReadParam(frame.Data)
		value, known := a.Params[code]
		if !known {
			return nil, a
		}
		if r.isUint8(code) {
			answer = protocol.EncodeParamResponseUint8(a.Id, host, code, uint8(value))
		} else {
			answer = protocol.EncodeParamResponse(a.Id, host, code, value)
		}
	case protocol.OpWriteParam:
		code, value := protocol.DecodeWriteParam(frame.Data)
		if r.isUint8(code) {
			value = float32(frame.Data[2])
		}
		a.Params[code] = value
		answer = protocol.EncodeStatusResponse(a.Id, host, a.Status)
	case protocol.OpZero:
		a.Status.Position = 0
		answer = protocol.EncodeStatusResponse(a.Id, host, a.Status)
	case protocol.OpFactoryReset:
		a.Params = make(map[uint16]float32)
		if r.catalog != nil {
			for _, d := range r.catalog.Descriptors() {
				a.Params[d.Code] = float32(d.Default)
			}
		}
		answer = protocol.EncodeStatusResponse(a.Id, host, a.Status)
	case protocol.OpSaveParams, protocol.OpRequestFeedback:
		answer = protocol.EncodeStatusResponse(a.Id, host, a.Status)
	default:
		r.logger.Debugf("ignoring %v (%v)", frame, op)
		return nil, a
	}
	return &answer, a
}

// Update the simulated status, e.g. to move the actuator
func (r *Responder) SetStatus(id actuator.Id, status protocol.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.actuators[id]; ok {
		a.Status = status
	}
}

// Code of the parameter carried by a request payload
func ParamCode(frame can.Frame) uint16 {
	return binary.LittleEndian.Uint16(frame.Data[0:2])
}
