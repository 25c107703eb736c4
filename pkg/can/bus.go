package can

import (
	"errors"
	"fmt"
	"sort"
)

const (
	CanEffFlag uint32 = 0x80000000 // Extended frame format (29 bit identifier)
	CanRtrFlag uint32 = 0x40000000 // Remote transmission request
	CanErrFlag uint32 = 0x20000000 // Error message frame
	CanSffMask uint32 = 0x000007FF
	CanEffMask uint32 = 0x1FFFFFFF
)

var (
	ErrUnsupportedInterface = errors.New("unsupported interface")
	ErrNotConnected         = errors.New("bus is not connected")
)

// A CAN frame
type Frame struct {
	ID    uint32
	Flags uint8
	DLC   uint8
	Data  [8]byte
}

func NewFrame(id uint32, flags uint8, dlc uint8) Frame {
	return Frame{ID: id, Flags: flags, DLC: dlc}
}

// Create an extended (29 bit) frame with a full 8 byte payload
func NewExtendedFrame(id uint32, data [8]byte) Frame {
	return Frame{ID: (id & CanEffMask) | CanEffFlag, DLC: 8, Data: data}
}

// Returns true if the frame uses a 29 bit identifier
func (f Frame) IsExtended() bool {
	return f.ID&CanEffFlag != 0
}

// Identifier without the socketcan flag bits
func (f Frame) Ident() uint32 {
	if f.IsExtended() {
		return f.ID & CanEffMask
	}
	return f.ID & CanSffMask
}

func (f Frame) String() string {
	return fmt.Sprintf("%08X#% X", f.Ident(), f.Data[:f.DLC])
}

// Interface for handling a received CAN frame
type FrameListener interface {
	Handle(frame Frame)
}

// Adapter to use an ordinary function as a [FrameListener]
type FrameListenerFunc func(frame Frame)

func (f FrameListenerFunc) Handle(frame Frame) {
	f(frame)
}

// A CAN Bus interface
type Bus interface {
	Connect(...any) error                   // Connect to the CAN bus
	Disconnect() error                      // Disconnect from CAN bus
	Send(frame Frame) error                 // Send a frame on the bus
	Subscribe(callback FrameListener) error // Subscribe to all received CAN frames
}

type NewInterfaceFunc func(channel string) (Bus, error)

var interfaceRegistry = make(map[string]NewInterfaceFunc)

// Register a new CAN bus interface type
// This should be called inside an init() function of plugin
func RegisterInterface(interfaceType string, newInterface NewInterfaceFunc) {
	interfaceRegistry[interfaceType] = newInterface
}

// Names of the registered bus drivers
func Interfaces() []string {
	names := make([]string, 0, len(interfaceRegistry))
	for name := range interfaceRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Create a new CAN bus with given driver
// Currently supported : socketcan, socketcanv2, virtual
func NewBus(canInterface string, channel string) (Bus, error) {
	createInterface, ok := interfaceRegistry[canInterface]
	if !ok {
		return nil, fmt.Errorf("%w : %v", ErrUnsupportedInterface, canInterface)
	}
	return createInterface(channel)
}
