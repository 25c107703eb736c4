//go:build linux

package socketcanv2

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	can "github.com/kbot-tools/actuatorctl/pkg/can"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

const (
	SocketCANFrameSize = 16
	DefaultRcvTimeout  = 100 * time.Millisecond
)

func init() {
	can.RegisterInterface("socketcanv2", NewSocketCanBus)
}

// Raw socketcan implementation on top of x/sys/unix.
// Unlike the brutella based driver it supports kernel side filtering,
// which keeps the reception path quiet on a bus shared by many actuators.
type SocketcanBus struct {
	mu         sync.Mutex
	fd         int
	channel    string
	rxCallback can.FrameListener
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	logger     *log.Entry
}

// Create a new SocketCAN bus. This expects the CAN channel to be up.
// e.g. running "ip a" should show can0 or something similar.
func NewSocketCanBus(channel string) (can.Bus, error) {
	iface, err := net.InterfaceByName(channel)
	if err != nil {
		return nil, err
	}
	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return nil, fmt.Errorf("failed to create CAN socket : %w", err)
	}
	tv := unix.NsecToTimeval(DefaultRcvTimeout.Nanoseconds())
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("failed to set read timeout : %w", err)
	}
	addr := &unix.SockaddrCAN{Ifindex: iface.Index}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("failed to bind to %v : %w", channel, err)
	}
	socketcan := &SocketcanBus{
		fd:      fd,
		channel: channel,
		logger:  log.WithField("service", "[CAN]").WithField("channel", channel),
	}
	return socketcan, nil
}

// "Connect" implementation of Bus interface
func (s *SocketcanBus) Connect(...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}
	var ctx context.Context
	ctx, s.cancel = context.WithCancel(context.Background())
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.processIncoming(ctx)
	}()
	return nil
}

// "Disconnect" implementation of Bus interface
func (s *SocketcanBus) Disconnect() error {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	s.wg.Wait()
	return unix.Close(s.fd)
}

// "Send" implementation of Bus interface
func (s *SocketcanBus) Send(frame can.Frame) error {
	raw := marshalFrame(frame)
	n, err := unix.Write(s.fd, raw[:])
	if err != nil {
		return err
	}
	if n != SocketCANFrameSize {
		return fmt.Errorf("short write on %v : %v bytes", s.channel, n)
	}
	return nil
}

// process incoming frames. This is meant to be run inside of a goroutine
func (s *SocketcanBus) processIncoming(ctx context.Context) {
	rxFrame := make([]byte, SocketCANFrameSize)
	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("exiting CAN bus reception, closed")
			return
		default:
		}
		n, err := unix.Read(s.fd, rxFrame)
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil || n != SocketCANFrameSize {
			s.logger.Warnf("exiting CAN bus reception : %v", err)
			return
		}
		frame := unmarshalFrame(rxFrame)
		s.mu.Lock()
		callback := s.rxCallback
		s.mu.Unlock()
		if callback != nil {
			callback.Handle(frame)
		}
	}
}

// "Subscribe" implementation of Bus interface
func (s *SocketcanBus) Subscribe(rxCallback can.FrameListener) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rxCallback = rxCallback
	return nil
}

// Enable own reception on the bus. CAN be useful when testing for example
func (s *SocketcanBus) SetReceiveOwn(enabled bool) error {
	enabledInt := 0
	if enabled {
		enabledInt = 1
	}
	s.logger.Debugf("setting option 'CAN_RAW_RECV_OWN_MSGS' to %v", enabled)
	return unix.SetsockoptInt(s.fd, unix.SOL_CAN_RAW, unix.CAN_RAW_RECV_OWN_MSGS, enabledInt)
}

// Replace the kernel acceptance filters of the socket
// An empty list means no frame is received at all
func (s *SocketcanBus) SetFilters(filters []can.Filter) error {
	rawFilters := make([]unix.CanFilter, 0, len(filters))
	for _, f := range filters {
		rawFilters = append(rawFilters, unix.CanFilter{Id: f.ID, Mask: f.Mask})
	}
	s.logger.Debugf("setting option 'CAN_RAW_FILTER' %+v", rawFilters)
	// A zero length filter disables reception
	return unix.SetsockoptCanRawFilter(s.fd, unix.SOL_CAN_RAW, unix.CAN_RAW_FILTER, rawFilters)
}

// struct can_frame layout, host byte order for the identifier
func marshalFrame(frame can.Frame) [SocketCANFrameSize]byte {
	var raw [SocketCANFrameSize]byte
	binary.NativeEndian.PutUint32(raw[0:4], frame.ID)
	raw[4] = frame.DLC
	raw[5] = frame.Flags
	copy(raw[8:], frame.Data[:])
	return raw
}

func unmarshalFrame(raw []byte) can.Frame {
	frame := can.Frame{
		ID:    binary.NativeEndian.Uint32(raw[0:4]),
		DLC:   raw[4],
		Flags: raw[5],
	}
	copy(frame.Data[:], raw[8:16])
	return frame
}
