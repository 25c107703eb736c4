package protocol

import (
	"encoding/binary"
	"fmt"
	"strings"

	can "github.com/kbot-tools/actuatorctl/pkg/can"
)

type Mode uint8

const (
	ModeReset       Mode = 0
	ModeCalibration Mode = 1
	ModeRun         Mode = 2
)

func (m Mode) String() string {
	switch m {
	case ModeReset:
		return "reset"
	case ModeCalibration:
		return "calibration"
	case ModeRun:
		return "run"
	default:
		return "unknown"
	}
}

// Fault bits carried in the low 6 bits of the status byte
type Faults uint8

const (
	FaultUndervoltage Faults = 1 << iota
	FaultOvercurrent
	FaultOvertemperature
	FaultMagneticEncoder
	FaultHallEncoder
	FaultUncalibrated
)

var faultNames = []struct {
	fault Faults
	name  string
}{
	{FaultUndervoltage, "undervoltage"},
	{FaultOvercurrent, "overcurrent"},
	{FaultOvertemperature, "overtemperature"},
	{FaultMagneticEncoder, "magnetic encoder"},
	{FaultHallEncoder, "hall encoder"},
	{FaultUncalibrated, "uncalibrated"},
}

// Active returns the names of the raised faults
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
	return strings.Join(active, ",")
}

// Status reported by an actuator in a status frame
type Status struct {
	Position    float64 // rad
	VelocityRaw uint16
	TorqueRaw   uint16
	Temperature float64 // °C
	Faults      Faults
	Mode        Mode
}

// Map a raw 16 bit field on a symmetric [-max, +max] range
func scaleSymmetric(raw uint16, max float64) float64 {
	return (float64(raw)/0xFFFF)*2*max - max
}

// Velocity given the actuator's full scale velocity (rad/s)
func (s Status) Velocity(max float64) float64 {
	return scaleSymmetric(s.VelocityRaw, max)
}

// Torque given the actuator's full scale torque (Nm)
func (s Status) Torque(max float64) float64 {
	return scaleSymmetric(s.TorqueRaw, max)
}

func (s Status) String() string {
	return fmt.Sprintf("pos %.4f rad | temp %.1f °C | mode %v | faults %v", s.Position, s.Temperature, s.Mode, s.Faults)
}

// DecodeStatus interprets a status frame : position, velocity, torque
// and temperature as big endian 16 bit fields, mode and faults from the id.
func DecodeStatus(frame can.Frame) (Status, error) {
	if frame.DLC != 8 || !frame.IsExtended() {
		return Status{}, ErrMalformedResponse
	}
	rid := ParseResponseId(frame)
	if rid.Type != RespStatus {
		return Status{}, fmt.Errorf("%w : x%02x", ErrUnexpectedType, rid.Type)
	}
	return Status{
		Position:    DecodePositionResponse(frame.Data),
		VelocityRaw: binary.BigEndian.Uint16(frame.Data[2:4]),
		TorqueRaw:   binary.BigEndian.Uint16(frame.Data[4:6]),
		Temperature: float64(binary.BigEndian.Uint16(frame.Data[6:8])) / 10,
		Faults:      Faults(rid.Status & 0x3F),
		Mode:        Mode(rid.Status >> 6),
	}, nil
}
