package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kbot-tools/actuatorctl/pkg/actuator"
	"github.com/kbot-tools/actuatorctl/pkg/param"
	"github.com/kbot-tools/actuatorctl/pkg/protocol"
)

// Value read from an actuator parameter
type ParamValue struct {
	Descriptor param.Descriptor
	Value      float64
	Raw        [4]byte
	Result     *Result
}

func (v ParamValue) String() string {
	if v.Descriptor.Type == param.Uint8 {
		return fmt.Sprintf("%v = %d %v", v.Descriptor.Name, uint8(v.Value), v.Descriptor.Unit)
	}
	return fmt.Sprintf("%v = %.4f %v", v.Descriptor.Name, v.Value, v.Descriptor.Unit)
}

// Check the id is well formed and fitted on the robot
func (e *Engine) target(id actuator.Id) error {
	if err := id.Validate(); err != nil {
		return err
	}
	_, err := e.registry.Lookup(id)
	return err
}

func (e *Engine) ReadParam(ctx context.Context, id actuator.Id, code uint16) (ParamValue, error) {
	if err := e.target(id); err != nil {
		return ParamValue{}, err
	}
	d, err := e.catalog.Lookup(code)
	if err != nil {
		return ParamValue{}, err
	}
	req, err := e.codec.EncodeReadParam(id, code)
	if err != nil {
		return ParamValue{}, err
	}
	result, err := e.Execute(ctx, Transaction{Request: req, Deadline: e.options.Timeouts.Param})
	if err != nil {
		return ParamValue{}, err
	}
	_, raw := protocol.DecodeParamResponse(result.Frame.Data)
	value := ParamValue{Descriptor: d, Raw: raw, Result: result}
	if d.Type == param.Uint8 {
		value.Value = float64(raw[0])
	} else {
		value.Value = float64(result.Float())
	}
	return value, nil
}

// WriteParam writes value to the parameter after checking it against
// the catalog. Nothing is sent when the check fails.
func (e *Engine) WriteParam(ctx context.Context, id actuator.Id, code uint16, value float64) (*Result, error) {
	if err := e.target(id); err != nil {
		return nil, err
	}
	d, err := e.catalog.Validate(code, value)
	if err != nil {
		return nil, err
	}
	var req protocol.Request
	if d.Type == param.Uint8 {
		req, err = e.codec.EncodeWriteParamUint8(id, code, uint8(value))
	} else {
		req, err = e.codec.EncodeWriteParam(id, code, float32(value))
	}
	if err != nil {
		return nil, err
	}
	return e.Execute(ctx, Transaction{Request: req, Deadline: e.options.Timeouts.Param})
}

// SetTorqueLimit pushes a torque limit, bounded by the physical limit of
// the actuator as well as the parameter range
func (e *Engine) SetTorqueLimit(ctx context.Context, id actuator.Id, torque float64) (*Result, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	limit, err := e.registry.MaxTorque(id)
	if err != nil {
		return nil, err
	}
	if torque > limit {
		return nil, fmt.Errorf("%w : %v Nm exceeds %v limit of %v Nm", param.ErrValueOutOfRange, torque, e.registry.Label(id), limit)
	}
	return e.WriteParam(ctx, id, param.LimitTorque, torque)
}

func (e *Engine) simple(ctx context.Context, id actuator.Id, encode func(actuator.Id) (protocol.Request, error), deadline time.Duration) (*Result, error) {
	req, err := encode(id)
	if err != nil {
		return nil, err
	}
	return e.Execute(ctx, Transaction{Request: req, Deadline: deadline})
}

// Zero sets the current position as the encoder offset
func (e *Engine) Zero(ctx context.Context, id actuator.Id) (*Result, error) {
	if err := e.target(id); err != nil {
		return nil, err
	}
	return e.simple(ctx, id, e.codec.EncodeZero, e.options.Timeouts.Zero)
}

// FactoryReset restores the factory parameters. A reset actuator answers on
// the placeholder id from then on, which is also an accepted target here.
func (e *Engine) FactoryReset(ctx context.Context, id actuator.Id) (*Result, error) {
	if id != actuator.PlaceholderId {
		if err := e.target(id); err != nil {
			return nil, err
		}
	}
	return e.simple(ctx, id, e.codec.EncodeFactoryReset, e.options.Timeouts.Reset)
}

// SaveParams persists the current parameters in the actuator flash
func (e *Engine) SaveParams(ctx context.Context, id actuator.Id) (*Result, error) {
	if err := e.target(id); err != nil {
		return nil, err
	}
	return e.simple(ctx, id, e.codec.EncodeSaveParams, e.options.Timeouts.Save)
}

// RequestFeedback asks for one status frame
func (e *Engine) RequestFeedback(ctx context.Context, id actuator.Id) (protocol.Status, error) {
	if err := e.target(id); err != nil {
		return protocol.Status{}, err
	}
	result, err := e.simple(ctx, id, e.codec.EncodeFeedbackRequest, e.options.Timeouts.Feedback)
	if err != nil {
		return protocol.Status{}, err
	}
	return result.Status()
}

// StreamFeedback requests feedback every period and hands each status to fn.
// It returns nil when ctx is cancelled and the no response error as soon as
// one request goes unanswered.
func (e *Engine) StreamFeedback(ctx context.Context, id actuator.Id, period time.Duration, fn func(protocol.Status)) error {
	if period <= 0 {
		return fmt.Errorf("%w : %v", ErrInvalidPeriod, period)
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		status, err := e.RequestFeedback(ctx, id)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return err
		}
		fn(status)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// ReassignId brings a factory reset actuator to its target id.
// The actuator is first reset through the placeholder id, the reassignment
// is only sent if the reset was acknowledged.
func (e *Engine) ReassignId(ctx context.Context, newId actuator.Id) error {
	if err := e.target(newId); err != nil {
		return err
	}
	reassign, err := e.codec.EncodeReassignId(actuator.PlaceholderId, newId)
	if err != nil {
		return err
	}
	logger := e.logger.WithField("actuator", newId)
	if _, err := e.FactoryReset(ctx, actuator.PlaceholderId); err != nil {
		logger.Warnf("factory reset of x%02x failed, not reassigning : %v", uint8(actuator.PlaceholderId), err)
		return &StepError{Step: StepFactoryReset, Err: err}
	}
	if _, err := e.Execute(ctx, Transaction{Request: reassign, Deadline: e.options.Timeouts.Reassign}); err != nil {
		return &StepError{Step: StepReassign, Err: err}
	}
	logger.Infof("reassigned x%02x to %v (%v)", uint8(actuator.PlaceholderId), newId, e.registry.Label(newId))
	return nil
}

// Outcome of one actuator in a batch
type BatchResult struct {
	Id  actuator.Id
	Err error
}

// Batch runs fn for each actuator, one after the other in the given order.
// A failing actuator does not stop the batch, only ctx cancellation does.
func (e *Engine) Batch(ctx context.Context, ids []actuator.Id, fn func(ctx context.Context, id actuator.Id) error) []BatchResult {
	results := make([]BatchResult, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			results = append(results, BatchResult{Id: id, Err: err})
			continue
		}
		err := fn(ctx, id)
		if err != nil && !errors.Is(err, context.Canceled) {
			e.logger.WithField("actuator", id).Warnf("%v : %v", e.registry.Label(id), err)
		}
		results = append(results, BatchResult{Id: id, Err: err})
	}
	return results
}
