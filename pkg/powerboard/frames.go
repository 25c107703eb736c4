// Package powerboard talks to the power distribution board sitting on its
// own CAN bus. The board switches power to each limb and reports battery,
// motor bus and per limb consumption.
package powerboard

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	can "github.com/kbot-tools/actuatorctl/pkg/can"
)

const Address uint8 = 0xAA

type MessageType uint16

const (
	MsgControl   MessageType = 0x1001 // host to board
	MsgQuery     MessageType = 0x1002 // host to board
	MsgStatus    MessageType = 0x1003 // board to host
	MsgPowerData MessageType = 0x1004 // board to host
)

func (t MessageType) String() string {
	switch t {
	case MsgControl:
		return "CONTROL"
	case MsgQuery:
		return "QUERY"
	case MsgStatus:
		return "STATUS"
	case MsgPowerData:
		return "POWER_DATA"
	default:
		return fmt.Sprintf("MSG(x%04x)", uint16(t))
	}
}

var ErrMalformedFrame = errors.New("malformed power board frame")

// Identifier : address in bits 0-7, message type in bits 8-20
func FrameId(t MessageType) uint32 {
	return uint32(Address) | uint32(t&0x1FFF)<<8
}

// Type of a frame coming from the board, ok is false for other devices
func ParseFrameId(frame can.Frame) (MessageType, bool) {
	if !frame.IsExtended() {
		return 0, false
	}
	id := frame.Ident()
	if uint8(id) != Address {
		return 0, false
	}
	return MessageType((id >> 8) & 0x1FFF), true
}

// Control switches, one byte each on the wire
type Control struct {
	Fan         bool
	Precharge   bool
	MotorOutput bool
	MainControl bool
	Restart     bool
	ClearFaults bool
	AutoReport  bool
}

func flag(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func (c Control) Frame() can.Frame {
	data := [8]byte{
		flag(c.Fan),
		flag(c.Precharge),
		flag(c.MotorOutput),
		flag(c.MainControl),
		flag(c.Restart),
		flag(c.ClearFaults),
		flag(c.AutoReport),
	}
	return can.NewExtendedFrame(FrameId(MsgControl), data)
}

func DecodeControl(frame can.Frame) Control {
	d := frame.Data
	return Control{
		Fan:         d[0] != 0,
		Precharge:   d[1] != 0,
		MotorOutput: d[2] != 0,
		MainControl: d[3] != 0,
		Restart:     d[4] != 0,
		ClearFaults: d[5] != 0,
		AutoReport:  d[6] != 0,
	}
}

func QueryFrame() can.Frame {
	return can.NewExtendedFrame(FrameId(MsgQuery), [8]byte{})
}

type Faults uint16

const (
	FaultChipOvercurrent Faults = 1 << iota
	FaultChipOvertemperature
	FaultChipShortCircuit
	FaultSamplingOvercurrent
	FaultVbusOvervoltage
	FaultVbusUndervoltage
	FaultVmbusOvervoltage
	FaultVmbusUndervoltage
)

var faultNames = []struct {
	fault Faults
	name  string
}{
	{FaultChipOvercurrent, "power chip overcurrent"},
	{FaultChipOvertemperature, "power chip overtemperature"},
	{FaultChipShortCircuit, "power chip short circuit"},
	{FaultSamplingOvercurrent, "sampling overcurrent"},
	{FaultVbusOvervoltage, "vbus overvoltage"},
	{FaultVbusUndervoltage, "vbus undervoltage"},
	{FaultVmbusOvervoltage, "vmbus overvoltage"},
	{FaultVmbusUndervoltage, "vmbus undervoltage"},
}

func (f Faults) Active() []string {
	active := make([]string, 0)
	for _, fn := range faultNames {
		if f&fn.fault != 0 {
			active = append(active, fn.name)
		}
	}
	return active
}

func (f Faults) String() string {
	active := f.Active()
	if len(active) == 0 {
		return "none"
	}
	return strings.Join(active, ", ")
}

type Status struct {
	BatteryVoltage float64 // V
	MotorVoltage   float64 // V
	Current        float64 // A
	Faults         Faults
}

// Per limb consumption in W
type PowerData struct {
	LeftLeg  float64
	RightLeg float64
	LeftArm  float64
	RightArm float64
}

// Values are sent in hundredths
func centi(data []byte) float64 {
	return float64(binary.BigEndian.Uint16(data)) / 100
}

func putCenti(data []byte, v float64) {
	binary.BigEndian.PutUint16(data, uint16(v*100+0.5))
}

func DecodeStatus(frame can.Frame) (Status, error) {
	if t, ok := ParseFrameId(frame); !ok || t != MsgStatus || frame.DLC != 8 {
		return Status{}, fmt.Errorf("%w : %v", ErrMalformedFrame, frame)
	}
	d := frame.Data[:]
	return Status{
		BatteryVoltage: centi(d[0:2]),
		MotorVoltage:   centi(d[2:4]),
		Current:        centi(d[4:6]),
		Faults:         Faults(binary.BigEndian.Uint16(d[6:8])),
	}, nil
}

func DecodePowerData(frame can.Frame) (PowerData, error) {
	if t, ok := ParseFrameId(frame); !ok || t != MsgPowerData || frame.DLC != 8 {
		return PowerData{}, fmt.Errorf("%w : %v", ErrMalformedFrame, frame)
	}
	d := frame.Data[:]
	return PowerData{
		LeftLeg:  centi(d[0:2]),
		RightLeg: centi(d[2:4]),
		LeftArm:  centi(d[4:6]),
		RightArm: centi(d[6:8]),
	}, nil
}

// Board side encoders

func (s Status) Frame() can.Frame {
	var data [8]byte
	putCenti(data[0:2], s.BatteryVoltage)
	putCenti(data[2:4], s.MotorVoltage)
	putCenti(data[4:6], s.Current)
	binary.BigEndian.PutUint16(data[6:8], uint16(s.Faults))
	return can.NewExtendedFrame(FrameId(MsgStatus), data)
}

func (p PowerData) Frame() can.Frame {
	var data [8]byte
	putCenti(data[0:2], p.LeftLeg)
	putCenti(data[2:4], p.RightLeg)
	putCenti(data[4:6], p.LeftArm)
	putCenti(data[6:8], p.RightArm)
	return can.NewExtendedFrame(FrameId(MsgPowerData), data)
}
