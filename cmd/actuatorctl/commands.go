package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strconv"
	"time"

	"github.com/kbot-tools/actuatorctl/pkg/actuator"
	"github.com/kbot-tools/actuatorctl/pkg/engine"
	"github.com/kbot-tools/actuatorctl/pkg/powerboard"
	"github.com/kbot-tools/actuatorctl/pkg/protocol"
	"github.com/pterm/pterm"
)

var errAborted = errors.New("aborted")

func expectArgs(args []string, n int, usage string) error {
	if len(args) != n {
		return fmt.Errorf("usage : %v", usage)
	}
	return nil
}

func cmdInterfaces(ctx context.Context, a *app, args []string) error {
	names, err := a.interfaces()
	if err != nil {
		return err
	}
	data := pterm.TableData{{"Interface", "Role"}}
	for _, name := range names {
		data = append(data, []string{name, "actuators"})
	}
	data = append(data, []string{a.cfg.Power.Interface, "power board"})
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func cmdUp(ctx context.Context, a *app, args []string) error {
	if a.simulate {
		pterm.Warning.Println("dry run : nothing to bring up")
		return nil
	}
	names, err := a.interfaces()
	if err != nil {
		return err
	}
	up, failed := a.bringUp(names)
	if err := pterm.DefaultTable.WithHasHeader().WithData(interfaceRows(names, failed)).Render(); err != nil {
		return err
	}
	if len(up) == 0 {
		return fmt.Errorf("no interface came up")
	}
	return nil
}

// One row per interface, in configuration order
func interfaceRows(names []string, failed map[string]error) pterm.TableData {
	data := pterm.TableData{{"Interface", "State", "Error"}}
	for _, name := range names {
		if err, ok := failed[name]; ok {
			data = append(data, []string{name, "DOWN", err.Error()})
			continue
		}
		data = append(data, []string{name, "UP", ""})
	}
	return data
}

// Run fn on every selected actuator and render one row per actuator
func (a *app) batch(ctx context.Context, e *engine.Engine, selection string, fn func(ctx context.Context, id actuator.Id) (string, error)) error {
	ids, err := e.Registry().ParseSelection(selection)
	if err != nil {
		return err
	}
	details := make(map[actuator.Id]string, len(ids))
	results := e.Batch(ctx, ids, func(ctx context.Context, id actuator.Id) error {
		detail, err := fn(ctx, id)
		details[id] = detail
		return err
	})

	data := pterm.TableData{{"Id", "Label", "Result"}}
	failed := 0
	for _, result := range results {
		detail := details[result.Id]
		if result.Err != nil {
			failed++
			detail = pterm.Red(result.Err.Error())
		}
		data = append(data, []string{result.Id.String(), e.Registry().Label(result.Id), detail})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d actuators failed", failed, len(results))
	}
	return nil
}

func ack(result *engine.Result) string {
	return fmt.Sprintf("ok (%v, %v)", result.Interface, result.Elapsed.Round(time.Microsecond))
}

func cmdRead(ctx context.Context, a *app, args []string) error {
	if err := expectArgs(args, 2, "read <actuators> <param>"); err != nil {
		return err
	}
	e, err := a.engine()
	if err != nil {
		return err
	}
	d, err := e.Catalog().Resolve(args[1])
	if err != nil {
		return err
	}
	return a.batch(ctx, e, args[0], func(ctx context.Context, id actuator.Id) (string, error) {
		value, err := e.ReadParam(ctx, id, d.Code)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%v (%v)", value, value.Result.Interface), nil
	})
}

func cmdWrite(ctx context.Context, a *app, args []string) error {
	if err := expectArgs(args, 3, "write <actuators> <param> <value>"); err != nil {
		return err
	}
	value, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return err
	}
	e, err := a.engine()
	if err != nil {
		return err
	}
	d, err := e.Catalog().Resolve(args[1])
	if err != nil {
		return err
	}
	if !a.confirm("Write %v = %v on %v ?", d.Name, value, args[0]) {
		return errAborted
	}
	return a.batch(ctx, e, args[0], func(ctx context.Context, id actuator.Id) (string, error) {
		result, err := e.WriteParam(ctx, id, d.Code, value)
		if err != nil {
			return "", err
		}
		return ack(result), nil
	})
}

func cmdTorque(ctx context.Context, a *app, args []string) error {
	if err := expectArgs(args, 2, "torque <actuators> <Nm>"); err != nil {
		return err
	}
	torque, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return err
	}
	e, err := a.engine()
	if err != nil {
		return err
	}
	if !a.confirm("Set the torque limit of %v to %v Nm ?", args[0], torque) {
		return errAborted
	}
	return a.batch(ctx, e, args[0], func(ctx context.Context, id actuator.Id) (string, error) {
		result, err := e.SetTorqueLimit(ctx, id, torque)
		if err != nil {
			return "", err
		}
		return ack(result), nil
	})
}

// Commands that only need an acknowledgement
func simpleCommand(name string, question string, op func(e *engine.Engine) func(context.Context, actuator.Id) (*engine.Result, error)) command {
	return func(ctx context.Context, a *app, args []string) error {
		if err := expectArgs(args, 1, name+" <actuators>"); err != nil {
			return err
		}
		e, err := a.engine()
		if err != nil {
			return err
		}
		if question != "" && !a.confirm(question, args[0]) {
			return errAborted
		}
		do := op(e)
		return a.batch(ctx, e, args[0], func(ctx context.Context, id actuator.Id) (string, error) {
			result, err := do(ctx, id)
			if err != nil {
				return "", err
			}
			return ack(result), nil
		})
	}
}

var (
	cmdZero = simpleCommand("zero", "Set the current position of %v as zero ?",
		func(e *engine.Engine) func(context.Context, actuator.Id) (*engine.Result, error) { return e.Zero })
	cmdReset = simpleCommand("reset", "Restore factory parameters of %v ?",
		func(e *engine.Engine) func(context.Context, actuator.Id) (*engine.Result, error) { return e.FactoryReset })
	cmdSave = simpleCommand("save", "",
		func(e *engine.Engine) func(context.Context, actuator.Id) (*engine.Result, error) { return e.SaveParams })
)

func cmdReassign(ctx context.Context, a *app, args []string) error {
	if err := expectArgs(args, 1, "reassign <id>"); err != nil {
		return err
	}
	raw, err := strconv.ParseUint(args[0], 0, 8)
	if err != nil {
		return err
	}
	id := actuator.Id(raw)
	if err := id.Validate(); err != nil {
		return err
	}
	e, err := a.engine()
	if err != nil {
		return err
	}
	if !a.confirm("Factory reset the actuator on x%02x and reassign it to %v (%v) ?", uint8(actuator.PlaceholderId), id, e.Registry().Label(id)) {
		return errAborted
	}
	if err := e.ReassignId(ctx, id); err != nil {
		var stepErr *engine.StepError
		if errors.As(err, &stepErr) {
			pterm.Error.Printfln("step %v failed", stepErr.Step)
		}
		return err
	}
	pterm.Success.Printfln("actuator reassigned to %v (%v)", id, e.Registry().Label(id))
	return nil
}

func statusLine(e *engine.Engine, id actuator.Id, status protocol.Status) string {
	limit, _ := e.Registry().MaxTorque(id)
	return fmt.Sprintf("%v | torque %.2f Nm", status, status.Torque(limit))
}

func cmdFeedback(ctx context.Context, a *app, args []string) error {
	flags := flag.NewFlagSet("feedback", flag.ContinueOnError)
	stream := flags.Bool("stream", false, "keep requesting feedback until interrupted")
	period := flags.Duration("period", 100*time.Millisecond, "streaming period")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if err := expectArgs(flags.Args(), 1, "feedback [-stream] [-period d] <actuators>"); err != nil {
		return err
	}
	if *stream && *period <= 0 {
		return fmt.Errorf("invalid period %v, must be positive", *period)
	}
	e, err := a.engine()
	if err != nil {
		return err
	}
	selection := flags.Arg(0)

	if !*stream {
		return a.batch(ctx, e, selection, func(ctx context.Context, id actuator.Id) (string, error) {
			status, err := e.RequestFeedback(ctx, id)
			if err != nil {
				return "", err
			}
			return statusLine(e, id, status), nil
		})
	}
	ids, err := e.Registry().ParseSelection(selection)
	if err != nil {
		return err
	}
	if len(ids) != 1 {
		return fmt.Errorf("streaming needs exactly one actuator, got %d", len(ids))
	}
	id := ids[0]
	pterm.Info.Printfln("streaming %v (%v), interrupt to stop", id, e.Registry().Label(id))
	return e.StreamFeedback(ctx, id, *period, func(status protocol.Status) {
		pterm.Printfln("%v | %v", time.Now().Format("15:04:05.000"), statusLine(e, id, status))
	})
}

func renderPower(report powerboard.Report) error {
	s := report.Status
	data := pterm.TableData{
		{"Measure", "Value"},
		{"Battery", fmt.Sprintf("%.2f V", s.BatteryVoltage)},
		{"Motor bus", fmt.Sprintf("%.2f V", s.MotorVoltage)},
		{"Current", fmt.Sprintf("%.2f A", s.Current)},
		{"Faults", fmt.Sprintf("x%04x %v", uint16(s.Faults), s.Faults)},
	}
	if p := report.Power; p != nil {
		data = append(data,
			[]string{"Left leg", fmt.Sprintf("%.2f W", p.LeftLeg)},
			[]string{"Right leg", fmt.Sprintf("%.2f W", p.RightLeg)},
			[]string{"Left arm", fmt.Sprintf("%.2f W", p.LeftArm)},
			[]string{"Right arm", fmt.Sprintf("%.2f W", p.RightArm)},
		)
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func queryPower(ctx context.Context, client *powerboard.Client) error {
	report, err := client.Query(ctx)
	if err != nil {
		return err
	}
	return renderPower(report)
}

// Let the board apply a control frame before querying it
const powerSettle = 500 * time.Millisecond

func cmdPower(ctx context.Context, a *app, args []string) error {
	action := "status"
	if len(args) > 0 {
		action = args[0]
	}
	client, err := a.powerBoard()
	if err != nil {
		return err
	}

	switch action {
	case "status":
		return queryPower(ctx, client)
	case "on", "off":
		on := action == "on"
		if !a.confirm("Switch motor power %v ?", action) {
			return errAborted
		}
		err := client.Send(powerboard.Control{Fan: on, Precharge: on, MotorOutput: on, MainControl: on})
		if err != nil {
			return err
		}
		time.Sleep(powerSettle)
		return queryPower(ctx, client)
	case "clear":
		if err := client.ClearFaults(); err != nil {
			return err
		}
		time.Sleep(powerSettle)
		return queryPower(ctx, client)
	case "restart":
		if !a.confirm("Restart the power board ?") {
			return errAborted
		}
		if err := client.Restart(); err != nil {
			return err
		}
		pterm.Success.Println("restart sent, the board is unavailable while restarting")
		return nil
	case "stream":
		pterm.Info.Println("streaming power board reports, interrupt to stop")
		return client.Stream(ctx, func(report powerboard.Report) {
			power := "--"
			if p := report.Power; p != nil {
				power = fmt.Sprintf("LL %.2f W | RL %.2f W | LA %.2f W | RA %.2f W", p.LeftLeg, p.RightLeg, p.LeftArm, p.RightArm)
			}
			s := report.Status
			pterm.Printfln("%v | %.2f V | %.2f V | %.2f A | %v | %v",
				time.Now().Format("15:04:05.000"), s.BatteryVoltage, s.MotorVoltage, s.Current, s.Faults, power)
		})
	default:
		return fmt.Errorf("unknown power action %q", action)
	}
}
