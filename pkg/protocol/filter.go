package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/kbot-tools/actuatorctl/pkg/actuator"
	can "github.com/kbot-tools/actuatorctl/pkg/can"
)

// ResponseFilter recognizes the frame answering one outstanding request.
// Ident/Mask are in socketcan form (extended flag included) so that they
// can be pushed down as kernel filters.
type ResponseFilter struct {
	Ident uint32
	Mask  uint32
	// Read responses do not encode the parameter in their identifier,
	// the echoed code in the payload must then match
	CheckParam bool
	ParamCode  uint16
}

func NewResponseFilter(respType uint8, id actuator.Id) ResponseFilter {
	return ResponseFilter{
		Ident: can.CanEffFlag | uint32(respType&0x1F)<<24 | uint32(id)<<8,
		Mask:  ResponseMask,
	}
}

// Match returns true if frame answers the request. Frames that are not
// 8 bytes long are malformed and never match.
func (f ResponseFilter) Match(frame can.Frame) bool {
	if !(can.Filter{ID: f.Ident, Mask: f.Mask}).Match(frame.ID) {
		return false
	}
	if frame.DLC != 8 {
		return false
	}
	if f.CheckParam && binary.LittleEndian.Uint16(frame.Data[0:2]) != f.ParamCode {
		return false
	}
	return true
}

func (f ResponseFilter) String() string {
	if f.CheckParam {
		return fmt.Sprintf("%08X/%08X[x%04x]", f.Ident, f.Mask, f.ParamCode)
	}
	return fmt.Sprintf("%08X/%08X", f.Ident, f.Mask)
}

// Fields of a response identifier
type ResponseId struct {
	Type     uint8
	Status   uint8
	Actuator actuator.Id
	Host     uint8
}

func ParseResponseId(frame can.Frame) ResponseId {
	id := frame.Ident()
	return ResponseId{
		Type:     uint8(id>>24) & 0x1F,
		Status:   uint8(id >> 16),
		Actuator: actuator.Id(id >> 8),
		Host:     uint8(id),
	}
}
