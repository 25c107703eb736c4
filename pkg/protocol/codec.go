package protocol

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/kbot-tools/actuatorctl/pkg/actuator"
)

// Codec builds request frames on behalf of one host id.
// All methods are pure : no I/O, same input gives same output.
type Codec struct {
	HostId uint8
}

func NewCodec(hostId uint8) Codec {
	return Codec{HostId: hostId}
}

var Default = NewCodec(DefaultHostId)

func (c Codec) canId(op Opcode, id actuator.Id) uint32 {
	return uint32(op)<<16 | uint32(c.HostId)<<8 | uint32(id)
}

func (c Codec) request(op Opcode, id actuator.Id, payload [8]byte, respType uint8) Request {
	return Request{
		Op:       op,
		Target:   id,
		CanId:    c.canId(op, id),
		Payload:  payload,
		Response: NewResponseFilter(respType, id),
	}
}

// Placeholder id is only valid for the reset / reassign sequence
func validateResetTarget(id actuator.Id) error {
	if id == actuator.PlaceholderId {
		return nil
	}
	return id.Validate()
}

func (c Codec) EncodeReadParam(id actuator.Id, code uint16) (Request, error) {
	if err := id.Validate(); err != nil {
		return Request{}, err
	}
	var payload [8]byte
	binary.LittleEndian.PutUint16(payload[0:2], code)
	req := c.request(OpReadParam, id, payload, RespParam)
	req.Response.CheckParam = true
	req.Response.ParamCode = code
	return req, nil
}

// Payload is code (LE) | float32 (LE) | 2 reserved bytes
func (c Codec) EncodeWriteParam(id actuator.Id, code uint16, value float32) (Request, error) {
	if err := id.Validate(); err != nil {
		return Request{}, err
	}
	var payload [8]byte
	binary.LittleEndian.PutUint16(payload[0:2], code)
	binary.LittleEndian.PutUint32(payload[2:6], math.Float32bits(value))
	return c.request(OpWriteParam, id, payload, RespStatus), nil
}

// Same layout as float writes, the byte sits at the start of the value field
func (c Codec) EncodeWriteParamUint8(id actuator.Id, code uint16, value uint8) (Request, error) {
	if err := id.Validate(); err != nil {
		return Request{}, err
	}
	var payload [8]byte
	binary.LittleEndian.PutUint16(payload[0:2], code)
	payload[2] = value
	return c.request(OpWriteParam, id, payload, RespStatus), nil
}

func (c Codec) EncodeZero(id actuator.Id) (Request, error) {
	if err := id.Validate(); err != nil {
		return Request{}, err
	}
	return c.request(OpZero, id, ZeroPayload, RespStatus), nil
}

func (c Codec) EncodeFactoryReset(id actuator.Id) (Request, error) {
	if err := validateResetTarget(id); err != nil {
		return Request{}, err
	}
	return c.request(OpFactoryReset, id, SequencePayload, RespStatus), nil
}

func (c Codec) EncodeSaveParams(id actuator.Id) (Request, error) {
	if err := id.Validate(); err != nil {
		return Request{}, err
	}
	return c.request(OpSaveParams, id, SequencePayload, RespStatus), nil
}

func (c Codec) EncodeFeedbackRequest(id actuator.Id) (Request, error) {
	if err := id.Validate(); err != nil {
		return Request{}, err
	}
	return c.request(OpRequestFeedback, id, [8]byte{}, RespStatus), nil
}

// Reassign oldId (normally the placeholder id) to newId.
// Identifier is 0x07<<24 | newId<<16 | hostId<<8 | oldId, empty payload.
// The actuator answers with a device id frame from its new id.
func (c Codec) EncodeReassignId(oldId actuator.Id, newId actuator.Id) (Request, error) {
	if err := validateResetTarget(oldId); err != nil {
		return Request{}, err
	}
	if err := newId.Validate(); err != nil {
		return Request{}, err
	}
	req := Request{
		Op:       OpReassignId,
		Target:   newId,
		CanId:    uint32(OpReassignId)<<24 | uint32(newId)<<16 | uint32(c.HostId)<<8 | uint32(oldId),
		Response: NewResponseFilter(RespDeviceId, newId),
	}
	return req, nil
}

// Inverse of the write payload
func DecodeWriteParam(payload [8]byte) (code uint16, value float32) {
	code = binary.LittleEndian.Uint16(payload[0:2])
	value = math.Float32frombits(binary.LittleEndian.Uint32(payload[2:6]))
	return code, value
}

func DecodeReadParam(payload [8]byte) uint16 {
	return binary.LittleEndian.Uint16(payload[0:2])
}

// Last 4 bytes as a little endian IEEE-754 float
func DecodeFloatResponse(data [8]byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(data[4:8]))
}

// Echoed parameter code and raw value bytes of a read response
func DecodeParamResponse(data [8]byte) (code uint16, raw [4]byte) {
	code = binary.LittleEndian.Uint16(data[0:2])
	copy(raw[:], data[4:8])
	return code, raw
}

const (
	PositionMin   = -4 * math.Pi
	PositionRange = 8 * math.Pi
)

// Position from the first two bytes (big endian) as a fraction of full scale,
// mapped onto [-4π, +4π]
func DecodePositionResponse(data [8]byte) float64 {
	raw := binary.BigEndian.Uint16(data[0:2])
	return PositionMin + float64(raw)/0xFFFF*PositionRange
}

// Inverse of [DecodePositionResponse], values are clamped to the range
func EncodePosition(radians float64) uint16 {
	fraction := (radians - PositionMin) / PositionRange
	if fraction <= 0 {
		return 0
	}
	if fraction >= 1 {
		return 0xFFFF
	}
	return uint16(math.Round(fraction * 0xFFFF))
}

func (c Codec) String() string {
	return fmt.Sprintf("codec(host x%02x)", c.HostId)
}
