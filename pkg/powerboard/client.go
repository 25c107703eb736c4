package powerboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	can "github.com/kbot-tools/actuatorctl/pkg/can"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultTimeout   = time.Second
	AutoReportPeriod = 100 * time.Millisecond // interval of the board auto reports
)

var ErrNoResponse = errors.New("power board did not answer")

// Every frame addressed to / sent by the board
const (
	boardIdent = can.CanEffFlag | uint32(Address)
	boardMask  = can.CanEffFlag | 0xFF
)

// Report is the latest known state of the board. Power data is only
// present once a power data frame was received.
type Report struct {
	Status Status
	Power  *PowerData
}

type Client struct {
	bus     *can.BusManager
	logger  *log.Entry
	timeout time.Duration
}

func NewClient(bus *can.BusManager, timeout time.Duration, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.StandardLogger()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{bus: bus, timeout: timeout, logger: logger.WithField("service", "[POWER]")}
}

// Open the board bus with the given driver, the returned function
// disconnects it.
func Open(driver string, channel string, timeout time.Duration, logger *log.Logger) (*Client, func(), error) {
	bus, err := can.NewBus(driver, channel)
	if err != nil {
		return nil, nil, err
	}
	bm, err := can.NewBusManager(bus, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := bus.Connect(); err != nil {
		return nil, nil, fmt.Errorf("connecting to %v : %w", channel, err)
	}
	return NewClient(bm, timeout, logger), func() { bus.Disconnect() }, nil
}

// Route board frames to a channel until the returned function is called
func (c *Client) listen() (<-chan can.Frame, func(), error) {
	frames := make(chan can.Frame, 16)
	release, err := c.bus.Subscribe(boardIdent, boardMask, can.FrameListenerFunc(func(frame can.Frame) {
		select {
		case frames <- frame:
		default:
			c.logger.Warnf("dropped %v", frame)
		}
	}))
	return frames, release, err
}

// Update the report, returns true if the frame was a status
func (c *Client) update(report *Report, frame can.Frame) bool {
	t, ok := ParseFrameId(frame)
	if !ok {
		return false
	}
	switch t {
	case MsgStatus:
		status, err := DecodeStatus(frame)
		if err != nil {
			c.logger.Debugf("ignoring %v", err)
			return false
		}
		report.Status = status
		return true
	case MsgPowerData:
		power, err := DecodePowerData(frame)
		if err != nil {
			c.logger.Debugf("ignoring %v", err)
			return false
		}
		report.Power = &power
	}
	return false
}

// Query sends a query and waits for the status frame. Power data
// received before the status is included.
func (c *Client) Query(ctx context.Context) (Report, error) {
	frames, release, err := c.listen()
	if err != nil {
		return Report{}, err
	}
	defer release()

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	if err := c.bus.Send(QueryFrame()); err != nil {
		return Report{}, err
	}
	report := Report{}
	for {
		select {
		case frame := <-frames:
			if c.update(&report, frame) {
				return report, nil
			}
		case <-timer.C:
			return Report{}, fmt.Errorf("%w within %v", ErrNoResponse, c.timeout)
		case <-ctx.Done():
			return Report{}, ctx.Err()
		}
	}
}

// Send a control frame, the board does not acknowledge it
func (c *Client) Send(control Control) error {
	c.logger.Debugf("control %+v", control)
	return c.bus.Send(control.Frame())
}

func (c *Client) SetAutoReport(enable bool) error {
	return c.Send(Control{AutoReport: enable})
}

func (c *Client) ClearFaults() error {
	return c.Send(Control{ClearFaults: true})
}

func (c *Client) Restart() error {
	return c.Send(Control{Restart: true})
}

// Stream enables auto reporting and calls fn with the latest report each
// time a frame arrives, once a status was received. Auto reporting is
// disabled again when ctx is done.
func (c *Client) Stream(ctx context.Context, fn func(Report)) error {
	frames, release, err := c.listen()
	if err != nil {
		return err
	}
	defer release()
	if err := c.SetAutoReport(true); err != nil {
		return err
	}
	report := Report{}
	haveStatus := false
	for {
		select {
		case frame := <-frames:
			if c.update(&report, frame) {
				haveStatus = true
			}
			if haveStatus {
				fn(report)
			}
		case <-ctx.Done():
			if err := c.SetAutoReport(false); err != nil {
				c.logger.Warnf("disabling auto report : %v", err)
			}
			return nil
		}
	}
}
