package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/kbot-tools/actuatorctl/pkg/actuator"
	can "github.com/kbot-tools/actuatorctl/pkg/can"
	"github.com/kbot-tools/actuatorctl/pkg/can/virtual"
	"github.com/kbot-tools/actuatorctl/pkg/config"
	"github.com/kbot-tools/actuatorctl/pkg/param"
	"github.com/kbot-tools/actuatorctl/pkg/protocol"
	"github.com/kbot-tools/actuatorctl/pkg/sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A test robot : n interfaces, each with its own simulated bus segment
type rig struct {
	engine     *Engine
	ports      []Port
	responders []*sim.Responder
}

func testTimeouts(d time.Duration) config.Timeouts {
	return config.Timeouts{Param: d, Zero: d, Reset: d, Save: d, Reassign: d, Feedback: d, Power: d}
}

func connectVirtual(t *testing.T, channel string) can.Bus {
	bus, err := virtual.NewVirtualCanBus(channel)
	require.NoError(t, err)
	require.NoError(t, bus.Connect())
	t.Cleanup(func() { bus.Disconnect() })
	return bus
}

func newRig(t *testing.T, n int, options Options) *rig {
	r := &rig{}
	catalog := param.Default()
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("can%d", i)
		channel := t.Name() + "/" + name
		bm, err := can.NewBusManager(connectVirtual(t, channel), nil)
		require.NoError(t, err)
		r.ports = append(r.ports, Port{Name: name, Bus: bm})
		responder, err := sim.NewResponder(connectVirtual(t, channel), catalog, nil)
		require.NoError(t, err)
		r.responders = append(r.responders, responder)
	}
	r.engine = New(r.ports, actuator.Default(), catalog, options, nil)
	return r
}

func fastOptions() Options {
	options := DefaultOptions()
	options.Timeouts = testTimeouts(50 * time.Millisecond)
	return options
}

func (r *rig) assertReleased(t *testing.T) {
	for _, port := range r.ports {
		assert.Equal(t, 0, port.Bus.Subscriptions(), port.Name)
	}
}

func TestReadParamFirstMatchWins(t *testing.T) {
	r := newRig(t, 3, fastOptions())
	a := sim.NewActuator(11)
	a.Params[param.LimitTorque] = 42.5
	r.responders[1].Attach(a)
	// Same actuator id on the third segment must never be reached
	r.responders[2].Attach(sim.NewActuator(11))

	value, err := r.engine.ReadParam(context.Background(), 11, param.LimitTorque)
	require.NoError(t, err)
	assert.InDelta(t, 42.5, value.Value, 1e-6)
	assert.Equal(t, "can1", value.Result.Interface)
	assert.Equal(t, []Attempt{
		{Interface: "can0", Outcome: TimedOut},
		{Interface: "can1", Outcome: Matched},
	}, value.Result.Attempts)
	assert.Len(t, r.responders[0].Received(), 1)
	assert.Empty(t, r.responders[2].Received())
	r.assertReleased(t)
}

func TestExhaustionAfterEveryDeadline(t *testing.T) {
	options := DefaultOptions()
	options.Timeouts = testTimeouts(30 * time.Millisecond)
	r := newRig(t, 3, options)

	start := time.Now()
	_, err := r.engine.ReadParam(context.Background(), 11, param.LimitTorque)
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, ErrNoResponse)
	var noResponse *NoResponseError
	require.ErrorAs(t, err, &noResponse)
	assert.Equal(t, []string{"can0", "can1", "can2"}, noResponse.Tried)
	assert.Equal(t, actuator.Id(11), noResponse.Actuator)
	assert.GreaterOrEqual(t, elapsed, 90*time.Millisecond)
	for _, responder := range r.responders {
		assert.Len(t, responder.Received(), 1)
	}
	r.assertReleased(t)
}

func TestWriteParamGuardsBeforeSending(t *testing.T) {
	r := newRig(t, 2, fastOptions())
	r.responders[0].Attach(sim.NewActuator(11))
	ctx := context.Background()

	t.Run("out of range", func(t *testing.T) {
		_, err := r.engine.WriteParam(ctx, 11, param.LimitTorque, 500)
		assert.ErrorIs(t, err, param.ErrValueOutOfRange)
	})
	t.Run("read only", func(t *testing.T) {
		_, err := r.engine.WriteParam(ctx, 11, param.Vbus, 24)
		assert.ErrorIs(t, err, param.ErrReadOnlyParameter)
	})
	t.Run("unknown parameter", func(t *testing.T) {
		_, err := r.engine.WriteParam(ctx, 11, 0x1234, 1)
		assert.ErrorIs(t, err, param.ErrUnknownParameter)
	})
	t.Run("invalid actuator", func(t *testing.T) {
		_, err := r.engine.WriteParam(ctx, 10, param.LimitTorque, 1)
		assert.ErrorIs(t, err, actuator.ErrInvalidActuatorId)
		_, err = r.engine.WriteParam(ctx, actuator.PlaceholderId, param.LimitTorque, 1)
		assert.ErrorIs(t, err, actuator.ErrInvalidActuatorId)
	})
	for _, responder := range r.responders {
		assert.Empty(t, responder.Received())
	}
}

func TestWriteParam(t *testing.T) {
	r := newRig(t, 1, fastOptions())
	r.responders[0].Attach(sim.NewActuator(11))
	ctx := context.Background()

	result, err := r.engine.WriteParam(ctx, 11, param.LimitTorque, 5)
	require.NoError(t, err)
	assert.Equal(t, "can0", result.Interface)
	sent := r.responders[0].Received()
	require.Len(t, sent, 1)
	assert.Equal(t, uint32(0x1200FD0B), sent[0].Ident())
	assert.Equal(t, [8]byte{0x0B, 0x70, 0x00, 0x00, 0xA0, 0x40, 0x00, 0x00}, sent[0].Data)

	_, err = r.engine.WriteParam(ctx, 11, param.RunMode, 2)
	require.NoError(t, err)
	value, err := r.engine.ReadParam(ctx, 11, param.RunMode)
	require.NoError(t, err)
	assert.Equal(t, 2.0, value.Value)
	assert.Equal(t, byte(2), value.Raw[0])
}

func TestSetTorqueLimit(t *testing.T) {
	r := newRig(t, 1, fastOptions())
	r.responders[0].Attach(sim.NewActuator(13))
	ctx := context.Background()

	// Lsy is a 17 Nm actuator, 60 Nm is within the parameter range but not its rating
	_, err := r.engine.SetTorqueLimit(ctx, 13, 60)
	assert.ErrorIs(t, err, param.ErrValueOutOfRange)
	assert.Empty(t, r.responders[0].Received())

	_, err = r.engine.SetTorqueLimit(ctx, 13, 10)
	require.NoError(t, err)
	state, ok := r.responders[0].Actuator(13)
	require.True(t, ok)
	assert.Equal(t, float32(10), state.Params[param.LimitTorque])
}

func TestUnknownActuator(t *testing.T) {
	registry, err := actuator.NewRegistry([]actuator.Info{{Id: 11, Label: "Lsp", MaxTorque: 60}})
	require.NoError(t, err)
	e := New(nil, registry, param.Default(), fastOptions(), nil)
	_, err = e.ReadParam(context.Background(), 45, param.LimitTorque)
	assert.ErrorIs(t, err, actuator.ErrUnknownActuator)
	_, err = e.ReadParam(context.Background(), 11, param.LimitTorque)
	assert.ErrorIs(t, err, ErrNoInterfaces)
}

func TestMalformedFramesIgnored(t *testing.T) {
	r := newRig(t, 1, fastOptions())
	a := sim.NewActuator(11)
	a.Malformed = true
	a.Params[param.LimitSpeed] = 3
	r.responders[0].Attach(a)

	value, err := r.engine.ReadParam(context.Background(), 11, param.LimitSpeed)
	require.NoError(t, err)
	assert.InDelta(t, 3, value.Value, 1e-6)
	assert.Equal(t, uint8(8), value.Result.Frame.DLC)
}

func TestWrongParameterEchoIgnored(t *testing.T) {
	r := newRig(t, 1, fastOptions())
	intruder := connectVirtual(t, t.Name()+"/can0")
	// Answer every read with the wrong parameter code
	require.NoError(t, intruder.Subscribe(can.FrameListenerFunc(func(frame can.Frame) {
		if protocol.Opcode(frame.Ident()>>16) != protocol.OpReadParam {
			return
		}
		intruder.Send(protocol.EncodeParamResponse(actuator.Id(frame.Ident()), 0xFD, param.Vbus, 24))
	})))
	_, err := r.engine.ReadParam(context.Background(), 11, param.LimitSpeed)
	assert.ErrorIs(t, err, ErrNoResponse)
}

func TestZeroSaveAndFeedback(t *testing.T) {
	r := newRig(t, 2, fastOptions())
	a := sim.NewActuator(31)
	a.Status = protocol.Status{Position: 1.5, Temperature: 41.2, Mode: protocol.ModeRun, Faults: protocol.FaultOvertemperature}
	r.responders[1].Attach(a)
	ctx := context.Background()

	status, err := r.engine.RequestFeedback(ctx, 31)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, status.Position, 1e-3)
	assert.InDelta(t, 41.2, status.Temperature, 1e-9)
	assert.Equal(t, protocol.ModeRun, status.Mode)
	assert.Equal(t, []string{"overtemperature"}, status.Faults.Active())

	_, err = r.engine.Zero(ctx, 31)
	require.NoError(t, err)
	status, err = r.engine.RequestFeedback(ctx, 31)
	require.NoError(t, err)
	assert.InDelta(t, 0, status.Position, 1e-3)

	result, err := r.engine.SaveParams(ctx, 31)
	require.NoError(t, err)
	assert.Equal(t, "can1", result.Interface)
	r.assertReleased(t)
}

func TestFactoryReset(t *testing.T) {
	r := newRig(t, 1, fastOptions())
	a := sim.NewActuator(12)
	a.Params[param.LimitTorque] = 3
	r.responders[0].Attach(a)

	_, err := r.engine.FactoryReset(context.Background(), 12)
	require.NoError(t, err)
	state, _ := r.responders[0].Actuator(12)
	assert.Equal(t, float32(12), state.Params[param.LimitTorque])
}

func isReassign(frame can.Frame) bool {
	return uint8(frame.Ident()>>24) == uint8(protocol.OpReassignId)
}

func TestReassignId(t *testing.T) {
	r := newRig(t, 2, fastOptions())
	r.responders[1].Attach(sim.NewActuator(actuator.PlaceholderId))

	require.NoError(t, r.engine.ReassignId(context.Background(), 21))
	_, ok := r.responders[1].Actuator(21)
	assert.True(t, ok)
	_, ok = r.responders[1].Actuator(actuator.PlaceholderId)
	assert.False(t, ok)
	r.assertReleased(t)
}

func TestReassignStopsAfterFailedReset(t *testing.T) {
	r := newRig(t, 2, fastOptions())

	err := r.engine.ReassignId(context.Background(), 21)
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, StepFactoryReset, stepErr.Step)
	assert.ErrorIs(t, err, ErrPartialFailure)
	assert.ErrorIs(t, err, ErrNoResponse)
	for _, responder := range r.responders {
		for _, frame := range responder.Received() {
			assert.False(t, isReassign(frame), "reassign sent after failed reset : %v", frame)
		}
	}
}

func TestReassignInvalidTarget(t *testing.T) {
	r := newRig(t, 1, fastOptions())
	r.responders[0].Attach(sim.NewActuator(actuator.PlaceholderId))

	err := r.engine.ReassignId(context.Background(), 99)
	assert.ErrorIs(t, err, actuator.ErrInvalidActuatorId)
	assert.Empty(t, r.responders[0].Received())
}

func TestReassignStepFails(t *testing.T) {
	options := fastOptions()
	options.Timeouts.Reset = 200 * time.Millisecond
	options.Timeouts.Reassign = 10 * time.Millisecond
	r := newRig(t, 1, options)
	// Answers come back after the reassign deadline but within the reset one
	slow := sim.NewActuator(actuator.PlaceholderId)
	slow.Delay = 40 * time.Millisecond
	r.responders[0].Attach(slow)

	err := r.engine.ReassignId(context.Background(), 22)
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, StepReassign, stepErr.Step)
	assert.ErrorIs(t, err, ErrPartialFailure)
	assert.ErrorIs(t, err, ErrNoResponse)
}

func TestParallelExecution(t *testing.T) {
	options := DefaultOptions()
	options.Timeouts = testTimeouts(300 * time.Millisecond)
	options.Parallel = true
	r := newRig(t, 3, options)
	a := sim.NewActuator(44)
	a.Params[param.LimitCurrent] = 20
	r.responders[2].Attach(a)

	start := time.Now()
	value, err := r.engine.ReadParam(context.Background(), 44, param.LimitCurrent)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 300*time.Millisecond)
	assert.Equal(t, "can2", value.Result.Interface)
	for _, responder := range r.responders {
		assert.Len(t, responder.Received(), 1)
	}
	r.assertReleased(t)

	r.engine.options.Timeouts = testTimeouts(20 * time.Millisecond)
	_, err = r.engine.ReadParam(context.Background(), 45, param.LimitCurrent)
	var noResponse *NoResponseError
	require.ErrorAs(t, err, &noResponse)
	assert.ElementsMatch(t, []string{"can0", "can1", "can2"}, noResponse.Tried)
	r.assertReleased(t)
}

func TestContextCancelled(t *testing.T) {
	options := DefaultOptions()
	options.Timeouts = testTimeouts(time.Second)
	r := newRig(t, 2, options)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := r.engine.ReadParam(ctx, 11, param.LimitTorque)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, errors.Is(err, ErrNoResponse))
	assert.Empty(t, r.responders[1].Received())
	r.assertReleased(t)
}

func TestStreamFeedback(t *testing.T) {
	r := newRig(t, 1, fastOptions())
	r.responders[0].Attach(sim.NewActuator(35))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	count := 0
	err := r.engine.StreamFeedback(ctx, 35, 5*time.Millisecond, func(status protocol.Status) {
		count++
		if count == 3 {
			cancel()
		}
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, count)

	err = r.engine.StreamFeedback(context.Background(), 45, 5*time.Millisecond, func(protocol.Status) {})
	assert.ErrorIs(t, err, ErrNoResponse)
}

func TestStreamFeedbackInvalidPeriod(t *testing.T) {
	r := newRig(t, 1, fastOptions())
	r.responders[0].Attach(sim.NewActuator(35))
	for _, period := range []time.Duration{0, -time.Millisecond} {
		assert.NotPanics(t, func() {
			err := r.engine.StreamFeedback(context.Background(), 35, period, func(protocol.Status) {})
			assert.ErrorIs(t, err, ErrInvalidPeriod)
		})
	}
	assert.Empty(t, r.responders[0].Received())
}

func TestBatchContinuesOnFailure(t *testing.T) {
	r := newRig(t, 1, fastOptions())
	r.responders[0].Attach(sim.NewActuator(11))
	silent := sim.NewActuator(12)
	silent.Silent = true
	r.responders[0].Attach(silent)
	r.responders[0].Attach(sim.NewActuator(13))

	results := r.engine.Batch(context.Background(), []actuator.Id{11, 12, 13}, func(ctx context.Context, id actuator.Id) error {
		_, err := r.engine.Zero(ctx, id)
		return err
	})
	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, ErrNoResponse)
	assert.NoError(t, results[2].Err)
	assert.Equal(t, actuator.Id(13), results[2].Id)
}

func TestOpenPorts(t *testing.T) {
	ports, closeAll, err := OpenPorts("virtual", []string{t.Name() + "/a", t.Name() + "/b"}, true, nil)
	require.NoError(t, err)
	defer closeAll()
	assert.Len(t, ports, 2)

	_, _, err = OpenPorts("nope", []string{"can0"}, false, nil)
	assert.ErrorIs(t, err, ErrNoInterfaces)
}
