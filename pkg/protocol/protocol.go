// Package protocol encodes and decodes the actuator request/response
// frames exchanged over CAN.
//
// Request identifiers are 29 bit : opcode<<16 | hostId<<8 | actuatorId,
// where the opcode occupies the two high order bytes (0x1100 read ...).
// Responses come back as respType<<24 | status<<16 | actuatorId<<8 | hostId.
// The layout is only known from reference transactions, it must not be
// assumed to hold for other opcodes.
package protocol

import (
	"errors"
	"fmt"

	"github.com/kbot-tools/actuatorctl/pkg/actuator"
	can "github.com/kbot-tools/actuatorctl/pkg/can"
)

type Opcode uint16

const (
	OpReadParam       Opcode = 0x1100
	OpWriteParam      Opcode = 0x1200
	OpZero            Opcode = 0x0600
	OpFactoryReset    Opcode = 0x0803
	OpSaveParams      Opcode = 0x1600
	OpRequestFeedback Opcode = 0x0400
	// Reassign uses a single byte opcode, the second byte carries the new id
	OpReassignId Opcode = 0x0007
)

func (op Opcode) String() string {
	switch op {
	case OpReadParam:
		return "READ"
	case OpWriteParam:
		return "WRITE"
	case OpZero:
		return "ZERO"
	case OpFactoryReset:
		return "RESET"
	case OpSaveParams:
		return "SAVE"
	case OpRequestFeedback:
		return "FEEDBACK"
	case OpReassignId:
		return "REASSIGN"
	default:
		return fmt.Sprintf("OP(x%04x)", uint16(op))
	}
}

// Response types, high byte of the response identifier
const (
	RespDeviceId uint8 = 0x00
	RespStatus   uint8 = 0x02
	RespParam    uint8 = 0x11
)

const (
	DefaultHostId uint8 = 0xFD
	// Mask keeping response type and actuator id, status and host bytes are ignored
	ResponseMask uint32 = can.CanEffFlag | 0x1F00FF00
)

var (
	ErrMalformedResponse = errors.New("malformed response frame")
	ErrUnexpectedType    = errors.New("unexpected response type")
)

// Fixed payloads
var (
	ZeroPayload     = [8]byte{0x01, 0x01, 0xCD, 0x00, 0x00, 0x00, 0x00, 0x00}
	SequencePayload = [8]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
)

// An encoded request, ready to be put on the bus
type Request struct {
	Op       Opcode
	Target   actuator.Id // Actuator expected to answer
	CanId    uint32      // 29 bit identifier, without flags
	Payload  [8]byte
	Response ResponseFilter
}

func (r Request) Frame() can.Frame {
	return can.NewExtendedFrame(r.CanId, r.Payload)
}

func (r Request) String() string {
	return fmt.Sprintf("%v[%v] %08X#% X", r.Op, r.Target, r.CanId, r.Payload[:])
}
