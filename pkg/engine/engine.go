package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kbot-tools/actuatorctl/pkg/actuator"
	can "github.com/kbot-tools/actuatorctl/pkg/can"
	"github.com/kbot-tools/actuatorctl/pkg/config"
	"github.com/kbot-tools/actuatorctl/pkg/param"
	"github.com/kbot-tools/actuatorctl/pkg/protocol"
	log "github.com/sirupsen/logrus"
)

var errAttemptTimeout = errors.New("attempt timed out")

// Port is one CAN interface the engine can talk through
type Port struct {
	Name string
	Bus  *can.BusManager
}

// Transaction is a single request and the deadline for its answer,
// it only lives for one request/response exchange.
type Transaction struct {
	Request  protocol.Request
	Deadline time.Duration
}

type Outcome uint8

const (
	Matched Outcome = iota
	TimedOut
	Failed
	Exhausted
)

func (o Outcome) String() string {
	switch o {
	case Matched:
		return "MATCHED"
	case TimedOut:
		return "TIMED_OUT"
	case Failed:
		return "FAILED"
	case Exhausted:
		return "EXHAUSTED"
	default:
		return "UNKNOWN"
	}
}

// Attempt of a transaction on one interface
type Attempt struct {
	Interface string
	Outcome   Outcome
	Err       error
}

// Result of a matched transaction
type Result struct {
	Interface string
	Request   protocol.Request
	Frame     can.Frame
	Elapsed   time.Duration
	Attempts  []Attempt
}

// Value interpreted as a float (last 4 bytes)
func (r *Result) Float() float32 {
	return protocol.DecodeFloatResponse(r.Frame.Data)
}

// Position in radians (first 2 bytes)
func (r *Result) Position() float64 {
	return protocol.DecodePositionResponse(r.Frame.Data)
}

func (r *Result) Status() (protocol.Status, error) {
	return protocol.DecodeStatus(r.Frame)
}

type Options struct {
	HostId   uint8
	Timeouts config.Timeouts
	// Probe every interface at once instead of one after the other
	Parallel bool
}

func DefaultOptions() Options {
	return Options{HostId: protocol.DefaultHostId, Timeouts: config.DefaultTimeouts()}
}

// Engine issues requests to actuators and matches their answer on a shared,
// multi interface bus. Transactions are expected to be issued one at a time.
type Engine struct {
	mu       sync.Mutex
	logger   *log.Entry
	ports    []Port
	codec    protocol.Codec
	registry *actuator.Registry
	catalog  *param.Catalog
	options  Options
}

func New(ports []Port, registry *actuator.Registry, catalog *param.Catalog, options Options, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.StandardLogger()
	}
	candidates := make([]Port, len(ports))
	copy(candidates, ports)
	return &Engine{
		logger:   logger.WithField("service", "[ENGINE]"),
		ports:    candidates,
		codec:    protocol.NewCodec(options.HostId),
		registry: registry,
		catalog:  catalog,
		options:  options,
	}
}

func (e *Engine) Registry() *actuator.Registry {
	return e.registry
}

func (e *Engine) Catalog() *param.Catalog {
	return e.catalog
}

func (e *Engine) Codec() protocol.Codec {
	return e.codec
}

// Names of the candidate interfaces, in probing order
func (e *Engine) Interfaces() []string {
	names := make([]string, 0, len(e.ports))
	for _, port := range e.ports {
		names = append(names, port.Name)
	}
	return names
}

// Execute sends the request on each interface in turn until one of them
// yields a matching response. The first match wins, remaining interfaces
// are not tried. If all interfaces stay silent a [*NoResponseError] is returned.
func (e *Engine) Execute(ctx context.Context, tx Transaction) (*Result, error) {
	if e.options.Parallel {
		return e.ExecuteParallel(ctx, tx)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.ports) == 0 {
		return nil, ErrNoInterfaces
	}
	logger := e.logger.WithField("actuator", tx.Request.Target).WithField("op", tx.Request.Op)
	attempts := make([]Attempt, 0, len(e.ports))
	tried := make([]string, 0, len(e.ports))

	for _, port := range e.ports {
		result, err := e.attempt(ctx, port, tx)
		if err == nil {
			result.Attempts = append(attempts, Attempt{Interface: port.Name, Outcome: Matched})
			logger.Debugf("matched on %v after %v", port.Name, result.Elapsed)
			return result, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		tried = append(tried, port.Name)
		if errors.Is(err, errAttemptTimeout) {
			attempts = append(attempts, Attempt{Interface: port.Name, Outcome: TimedOut})
			logger.Debugf("no response on %v within %v", port.Name, tx.Deadline)
		} else {
			attempts = append(attempts, Attempt{Interface: port.Name, Outcome: Failed, Err: err})
			logger.Warnf("attempt on %v failed : %v", port.Name, err)
		}
	}
	logger.Warnf("exhausted %v", tried)
	return nil, &NoResponseError{Actuator: tx.Request.Target, Op: tx.Request.Op, Tried: tried}
}

// One request on one interface. The listener is armed before the frame is
// sent and released before returning, whatever the outcome.
func (e *Engine) attempt(ctx context.Context, port Port, tx Transaction) (*Result, error) {
	filter := tx.Request.Response
	matched := make(chan can.Frame, 1)
	listener := can.FrameListenerFunc(func(frame can.Frame) {
		if !filter.Match(frame) {
			return
		}
		select {
		case matched <- frame:
		default:
		}
	})
	release, err := port.Bus.Subscribe(filter.Ident, filter.Mask, listener)
	if err != nil {
		return nil, fmt.Errorf("arming listener : %w", err)
	}
	defer release()

	timer := time.NewTimer(tx.Deadline)
	defer timer.Stop()
	start := time.Now()

	if err := port.Bus.Send(tx.Request.Frame()); err != nil {
		return nil, err
	}
	select {
	case frame := <-matched:
		return &Result{
			Interface: port.Name,
			Request:   tx.Request,
			Frame:     frame,
			Elapsed:   time.Since(start),
		}, nil
	case <-timer.C:
		return nil, errAttemptTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ExecuteParallel probes every interface at once. The first interface to
// answer wins, the other attempts are cancelled and their listeners released
// before returning.
func (e *Engine) ExecuteParallel(ctx context.Context, tx Transaction) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.ports) == 0 {
		return nil, ErrNoInterfaces
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		port   Port
		result *Result
		err    error
	}
	outcomes := make(chan outcome, len(e.ports))
	var wg sync.WaitGroup
	for _, port := range e.ports {
		wg.Add(1)
		go func(port Port) {
			defer wg.Done()
			result, err := e.attempt(ctx, port, tx)
			outcomes <- outcome{port: port, result: result, err: err}
		}(port)
	}

	var winner *Result
	attempts := make([]Attempt, 0, len(e.ports))
	tried := make([]string, 0, len(e.ports))
	for range e.ports {
		o := <-outcomes
		switch {
		case o.err == nil && winner == nil:
			winner = o.result
			attempts = append(attempts, Attempt{Interface: o.port.Name, Outcome: Matched})
			cancel()
		case o.err == nil:
			// Late match on another interface, first one already won
		case errors.Is(o.err, errAttemptTimeout):
			tried = append(tried, o.port.Name)
			attempts = append(attempts, Attempt{Interface: o.port.Name, Outcome: TimedOut})
		case winner == nil && !errors.Is(o.err, context.Canceled):
			tried = append(tried, o.port.Name)
			attempts = append(attempts, Attempt{Interface: o.port.Name, Outcome: Failed, Err: o.err})
		}
	}
	wg.Wait()

	if winner != nil {
		winner.Attempts = attempts
		return winner, nil
	}
	// Only the parent can have cancelled at this point, not a silent actuator
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, &NoResponseError{Actuator: tx.Request.Target, Op: tx.Request.Op, Tried: tried}
}
