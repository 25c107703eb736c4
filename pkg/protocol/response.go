package protocol

import (
	"encoding/binary"
	"math"

	"github.com/kbot-tools/actuatorctl/pkg/actuator"
	can "github.com/kbot-tools/actuatorctl/pkg/can"
)

// Actuator side encoders, used to simulate actuators

func responseId(respType uint8, status uint8, id actuator.Id, host uint8) uint32 {
	return uint32(respType&0x1F)<<24 | uint32(status)<<16 | uint32(id)<<8 | uint32(host)
}

func EncodeParamResponse(id actuator.Id, host uint8, code uint16, value float32) can.Frame {
	var data [8]byte
	binary.LittleEndian.PutUint16(data[0:2], code)
	binary.LittleEndian.PutUint32(data[4:8], math.Float32bits(value))
	return can.NewExtendedFrame(responseId(RespParam, 0, id, host), data)
}

func EncodeParamResponseUint8(id actuator.Id, host uint8, code uint16, value uint8) can.Frame {
	var data [8]byte
	binary.LittleEndian.PutUint16(data[0:2], code)
	data[4] = value
	return can.NewExtendedFrame(responseId(RespParam, 0, id, host), data)
}

func EncodeStatusResponse(id actuator.Id, host uint8, status Status) can.Frame {
	var data [8]byte
	binary.BigEndian.PutUint16(data[0:2], EncodePosition(status.Position))
	binary.BigEndian.PutUint16(data[2:4], status.VelocityRaw)
	binary.BigEndian.PutUint16(data[4:6], status.TorqueRaw)
	binary.BigEndian.PutUint16(data[6:8], uint16(math.Round(status.Temperature*10)))
	statusByte := uint8(status.Mode)<<6 | uint8(status.Faults)&0x3F
	return can.NewExtendedFrame(responseId(RespStatus, statusByte, id, host), data)
}

// Device id answer, the payload carries the 64 bit unique id of the actuator
func EncodeDeviceIdResponse(id actuator.Id, uid uint64) can.Frame {
	var data [8]byte
	binary.LittleEndian.PutUint64(data[:], uid)
	return can.NewExtendedFrame(responseId(RespDeviceId, 0, id, 0xFE), data)
}
